// Package generation is the document-generation ingress: idea in, persisted document out.
package generation

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/tsubouchi/intelligence-agent-maker/internal/domain"
	domarchive "github.com/tsubouchi/intelligence-agent-maker/internal/domain/archive"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec/metadata"
	"github.com/tsubouchi/intelligence-agent-maker/internal/metrics"
	"github.com/tsubouchi/intelligence-agent-maker/internal/usecase/extraction"
)

//go:embed system_prompt.txt
var defaultSystemPrompt string

// DefaultSystemPrompt returns the built-in generation prompt.
func DefaultSystemPrompt() string { return defaultSystemPrompt }

// PlaceholderTitle is stored when metadata carries no title.
const PlaceholderTitle = "title_basic_design.md"

// Request field bounds.
const (
	MaxIdeaLength  = 10000 // characters
	MaxFacetLength = 128   // bytes
)

// maxEmbeddingInput caps the characters sent to the embedding model.
const maxEmbeddingInput = 6000

// Request asks for one document.
type Request struct {
	Idea         string
	UserID       string
	SoftwareType string
	DeployTarget string
}

// Validate checks the request fields.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.Idea) == "" {
		return domain.NewValidationError("idea", "is required")
	}
	if utf8.RuneCountInString(r.Idea) > MaxIdeaLength {
		return domain.NewValidationError("idea", fmt.Sprintf("too long (max %d characters)", MaxIdeaLength))
	}
	if err := domarchive.ValidateID("user_id", r.UserID); err != nil {
		return err
	}
	if len(r.SoftwareType) > MaxFacetLength {
		return domain.NewValidationError("software_type", fmt.Sprintf("too long (max %d bytes)", MaxFacetLength))
	}
	if len(r.DeployTarget) > MaxFacetLength {
		return domain.NewValidationError("deploy_target", fmt.Sprintf("too long (max %d bytes)", MaxFacetLength))
	}
	return nil
}

// Result describes the stored document.
type Result struct {
	ID       string
	Title    string
	FellBack bool
}

// Options configures the pipeline.
type Options struct {
	// SystemPrompt replaces the built-in prompt when set.
	SystemPrompt string
}

// Service runs the generation pipeline.
type Service struct {
	gen      Generator
	embed    Embedder
	extract  Extractor
	store    Store
	archives Archiver
	prompt   string
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a generation service. archives can be nil.
func New(
	gen Generator, embed Embedder, extract Extractor, store Store, archives Archiver,
	opts Options, logger *zap.Logger,
) *Service {
	prompt := opts.SystemPrompt
	if strings.TrimSpace(prompt) == "" {
		prompt = defaultSystemPrompt
	}
	return &Service{
		gen:      gen,
		embed:    embed,
		extract:  extract,
		store:    store,
		archives: archives,
		prompt:   prompt,
		logger:   logger,
		now:      time.Now,
	}
}

// Generate completes, embeds, extracts and inserts one document, then links it
// into the owner's archive. Nothing is persisted when a step before the insert fails;
// a failed archive link is logged only.
func (s *Service) Generate(ctx context.Context, req Request) (Result, error) {
	res, outcome, err := s.generate(ctx, req)
	metrics.GenerationPipelineTotal.WithLabelValues(outcome).Inc()
	return res, err
}

func (s *Service) generate(ctx context.Context, req Request) (Result, string, error) {
	if err := req.Validate(); err != nil {
		return Result{}, "invalid", err
	}

	completion, err := s.gen.Complete(ctx, domain.CompletionRequest{
		SystemPrompt: s.prompt,
		UserPrompt:   req.Idea,
	})
	if err != nil {
		return Result{}, "generate_failed", fmt.Errorf("generate document: %w", err)
	}
	domain.UsageFromContext(ctx).AddGenerationTokens(completion.CompletionTokens)

	content := strings.TrimSpace(completion.Text)
	if content == "" {
		return Result{}, "generate_failed", fmt.Errorf("generate document: empty completion: %w",
			domain.ErrGenerationProviderError)
	}

	emb, err := s.embed.Embed(ctx, metadata.Truncate(content, maxEmbeddingInput))
	if err != nil {
		return Result{}, "embed_failed", fmt.Errorf("embed document: %w", err)
	}
	domain.UsageFromContext(ctx).AddEmbeddingTokens(emb.TotalTokens)

	ext := s.extract.Extract(ctx, extraction.Input{
		Document:     content,
		Idea:         req.Idea,
		SoftwareType: req.SoftwareType,
		DeployTarget: req.DeployTarget,
	})

	title := ext.Metadata.Title
	if title == "" {
		title = PlaceholderTitle
	}

	doc, err := spec.New(req.UserID, title, content, req.SoftwareType, req.DeployTarget,
		emb.Embedding, ext.Metadata, s.now())
	if err != nil {
		return Result{}, "invalid", domain.NewValidationError("document", err.Error())
	}

	id, err := s.store.Insert(ctx, &doc)
	if err != nil {
		return Result{}, "insert_failed", fmt.Errorf("insert document: %w", err)
	}

	s.link(ctx, req.UserID, id)

	s.logger.Info("Spec document generated",
		zap.String("spec_id", id),
		zap.String("user_id", req.UserID),
		zap.Bool("metadata_fallback", ext.FellBack),
	)
	return Result{ID: id, Title: title, FellBack: ext.FellBack}, "ok", nil
}

func (s *Service) link(ctx context.Context, userID, specID string) {
	if s.archives == nil {
		return
	}
	if err := s.archives.Link(ctx, userID, specID); err != nil {
		s.logger.Warn("Failed to link generated spec into archive",
			zap.String("spec_id", specID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}
