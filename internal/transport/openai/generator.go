package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tsubouchi/intelligence-agent-maker/internal/domain"
	"github.com/tsubouchi/intelligence-agent-maker/internal/metrics"
)

const (
	kindCompletion = "completion"
	kindStructured = "structured"
)

// GeneratorConfig holds the chat completion provider settings.
type GeneratorConfig struct {
	APIKey string
	// BaseURL overrides the API endpoint (OpenAI-compatible gateways).
	BaseURL string
	// Model is used for free-form completions.
	Model string
	// StructuredModel is used for function calls. Empty means Model.
	StructuredModel string
	// RequestsPerSecond limits calls across the process. Zero disables the limiter.
	RequestsPerSecond float64
	Burst             int
	// Timeout bounds a single call. Zero keeps only the caller's deadline.
	Timeout  time.Duration
	Provider string
	Logger   *zap.Logger
}

// Generator is a chat completion provider using the OpenAI-compatible API.
type Generator struct {
	client          *openai.Client
	model           string
	structuredModel string
	limiter         *rate.Limiter
	timeout         time.Duration
	provider        string
	logger          *zap.Logger
}

// NewGenerator creates a generation provider.
func NewGenerator(cfg *GeneratorConfig) *Generator {
	g := &Generator{
		client:          newClient(cfg.APIKey, cfg.BaseURL),
		model:           cfg.Model,
		structuredModel: cfg.StructuredModel,
		timeout:         cfg.Timeout,
		provider:        cfg.Provider,
		logger:          cfg.Logger,
	}
	if g.structuredModel == "" {
		g.structuredModel = cfg.Model
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return g
}

// Complete runs a free-form chat completion.
func (g *Generator) Complete(ctx context.Context, req domain.CompletionRequest) (domain.Completion, error) {
	chat := openai.ChatCompletionRequest{
		Model:     g.model,
		Messages:  messages(req.SystemPrompt, req.UserPrompt),
		MaxTokens: req.MaxTokens,
	}
	if req.Temperature != nil {
		chat.Temperature = temperature(*req.Temperature)
	}

	resp, err := g.call(ctx, kindCompletion, g.model, chat)
	if err != nil {
		return domain.Completion{}, err
	}
	if len(resp.Choices) == 0 {
		g.countError(kindCompletion, g.model, "empty_response")
		return domain.Completion{}, fmt.Errorf("empty completion response: %w", domain.ErrGenerationProviderError)
	}

	return domain.Completion{
		Text:             resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// CompleteStructured forces a single strict function call and returns its arguments.
// A response without the function payload fails with domain.ErrNoStructuredPayload
// and still carries the token usage.
func (g *Generator) CompleteStructured(
	ctx context.Context, req domain.StructuredRequest,
) (domain.StructuredCompletion, error) {
	chat := openai.ChatCompletionRequest{
		Model:       g.structuredModel,
		Messages:    messages(req.SystemPrompt, req.UserPrompt),
		Temperature: temperature(req.Temperature),
		Tools: []openai.Tool{{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        req.FunctionName,
				Description: req.Description,
				Strict:      true,
				Parameters:  req.Schema,
			},
		}},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: req.FunctionName},
		},
	}

	resp, err := g.call(ctx, kindStructured, g.structuredModel, chat)
	if err != nil {
		return domain.StructuredCompletion{}, err
	}

	out := domain.StructuredCompletion{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	if len(resp.Choices) > 0 {
		for _, tc := range resp.Choices[0].Message.ToolCalls {
			if tc.Function.Name == req.FunctionName && tc.Function.Arguments != "" {
				out.Arguments = json.RawMessage(tc.Function.Arguments)
				return out, nil
			}
		}
	}
	g.countError(kindStructured, g.structuredModel, "no_payload")
	return out, fmt.Errorf("function %s: %w", req.FunctionName, domain.ErrNoStructuredPayload)
}

// HealthCheck verifies API availability.
func (g *Generator) HealthCheck(ctx context.Context) error {
	return healthCheck(ctx, g.client)
}

func (g *Generator) call(
	ctx context.Context, kind, model string, chat openai.ChatCompletionRequest,
) (openai.ChatCompletionResponse, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			g.countError(kind, model, "rate_limited")
			return openai.ChatCompletionResponse{}, fmt.Errorf("wait for %s slot: %w: %w", kind, domain.ErrRateLimited, err)
		}
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()

	resp, err := g.client.CreateChatCompletion(ctx, chat)

	duration := time.Since(start)

	if err != nil {
		g.countError(kind, model, "api_error")
		g.logger.Warn("Chat completion failed",
			zap.String("provider", g.provider),
			zap.String("model", model),
			zap.String("kind", kind),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return openai.ChatCompletionResponse{}, parseAPIError("generation", err, domain.ErrGenerationProviderError)
	}

	metrics.GenerationRequestsTotal.WithLabelValues(g.provider, model, kind, "success").Inc()
	metrics.GenerationRequestDuration.WithLabelValues(g.provider, model, kind).Observe(duration.Seconds())
	metrics.GenerationTokensTotal.WithLabelValues(g.provider, model, "prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.GenerationTokensTotal.WithLabelValues(g.provider, model, "completion").Add(float64(resp.Usage.CompletionTokens))

	g.logger.Debug("Chat completion completed",
		zap.String("provider", g.provider),
		zap.String("model", model),
		zap.String("kind", kind),
		zap.Duration("duration", duration),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	return resp, nil
}

func (g *Generator) countError(kind, model, errorType string) {
	metrics.GenerationRequestsTotal.WithLabelValues(g.provider, model, kind, "error").Inc()
	metrics.GenerationErrorsTotal.WithLabelValues(g.provider, model, errorType).Inc()
}

func messages(system, user string) []openai.ChatCompletionMessage {
	var out []openai.ChatCompletionMessage
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	return append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: user})
}

// temperature maps 0 to the smallest positive float: the client omits a zero value.
func temperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}
