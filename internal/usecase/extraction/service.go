// Package extraction turns a generated document into validated metadata,
// with a deterministic model-free record when the model call or its payload fails.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tsubouchi/intelligence-agent-maker/internal/domain"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain/spec/metadata"
	"github.com/tsubouchi/intelligence-agent-maker/internal/metrics"
)

// Document excerpt bounds, in characters.
const (
	MaxDocumentLength = 2500
	headLength        = 1800
	tailLength        = 600
	elision           = "\n\n...\n\n"
)

// FunctionName is the tool the model must call with the metadata payload.
const FunctionName = "record_spec_metadata"

const systemPrompt = `You extract structured metadata from software basic design documents.
Call the provided function exactly once. Use only information stated in the document or the idea.
Keywords must be short nouns that a user would search for. Write the summary in the document's language.`

// Input is a freshly generated document and the request it was generated from.
type Input struct {
	Document     string
	Idea         string
	SoftwareType string
	DeployTarget string
}

// Output is the extracted record. FellBack is set when the deterministic record was used.
type Output struct {
	Metadata metadata.Metadata
	FellBack bool
}

// Service runs the extraction pipeline.
type Service struct {
	gen    Generator
	logger *zap.Logger
	now    func() time.Time
}

// New creates an extraction service.
func New(gen Generator, logger *zap.Logger) *Service {
	return &Service{gen: gen, logger: logger, now: time.Now}
}

// Extract makes exactly one structured model call and validates its payload.
// It never fails: provider errors and malformed payloads yield Fallback.
func (s *Service) Extract(ctx context.Context, in Input) Output {
	now := s.now()

	m, err := s.extract(ctx, in)
	if err != nil {
		outcome := "fallback_invalid"
		if errors.Is(err, domain.ErrProvider) || errors.Is(err, domain.ErrRateLimited) {
			outcome = "fallback_provider"
		}
		metrics.ExtractionTotal.WithLabelValues(outcome).Inc()
		s.logger.Warn("Metadata extraction failed, using fallback",
			zap.String("outcome", outcome),
			zap.Error(err),
		)
		return Output{Metadata: Fallback(in, now), FellBack: true}
	}

	m.SoftwareType = in.SoftwareType
	m.DeployTarget = in.DeployTarget
	m.CloudProvider = in.DeployTarget
	m.CreatedAt = now.UTC().Format(time.RFC3339)
	metrics.ExtractionTotal.WithLabelValues("extracted").Inc()
	return Output{Metadata: m}
}

func (s *Service) extract(ctx context.Context, in Input) (metadata.Metadata, error) {
	out, err := s.gen.CompleteStructured(ctx, domain.StructuredRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt(in),
		FunctionName: FunctionName,
		Description:  "Record the metadata of a software basic design document.",
		Schema:       metadata.Schema(),
		Temperature:  0,
	})
	if err != nil {
		return metadata.Metadata{}, fmt.Errorf("structured call: %w", err)
	}

	m, err := metadata.Parse(out.Arguments)
	if err != nil {
		return metadata.Metadata{}, fmt.Errorf("%w: %w", domain.ErrExtractionValidation, err)
	}
	return m, nil
}

func userPrompt(in Input) string {
	var b strings.Builder
	b.WriteString("Idea:\n")
	b.WriteString(in.Idea)
	b.WriteString("\n\nSoftware type: ")
	b.WriteString(in.SoftwareType)
	b.WriteString("\nDeploy target: ")
	b.WriteString(in.DeployTarget)
	b.WriteString("\n\nDocument:\n")
	b.WriteString(Excerpt(in.Document))
	return b.String()
}

// Excerpt keeps documents up to MaxDocumentLength characters intact; longer ones
// are cut to the first 1800 and last 600 characters around an elision marker.
func Excerpt(doc string) string {
	r := []rune(doc)
	if len(r) <= MaxDocumentLength {
		return doc
	}
	return string(r[:headLength]) + elision + string(r[len(r)-tailLength:])
}
