package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/starford/lattice/internal/apperr"
	"github.com/starford/lattice/internal/models"
)

// OpenAIConfig configures the OpenAI provider.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	// RatePerSecond caps provider calls; zero disables limiting.
	RatePerSecond float64
	Burst         int
}

// OpenAI asks an OpenAI-compatible chat completion endpoint for suggestions.
type OpenAI struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewOpenAI builds the provider. The model defaults to gpt-4o-mini.
func NewOpenAI(cfg OpenAIConfig, logger *slog.Logger) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("llm: openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if logger == nil {
		logger = slog.Default()
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	logger.Info("llm: openai provider ready", slog.String("model", cfg.Model))
	return &OpenAI{
		client:  openai.NewClientWithConfig(oc),
		model:   cfg.Model,
		limiter: limiter,
		logger:  logger,
	}, nil
}

func (o *OpenAI) complete(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("llm: rate limit: %w", err)
	}
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("llm: chat completion: %v: %w", err, apperr.ErrExternalService)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: no choices returned: %w", apperr.ErrExternalService)
	}
	o.logger.Debug("llm: completion received", slog.String("finish_reason", string(resp.Choices[0].FinishReason)))
	return resp.Choices[0].Message.Content, nil
}

// RelatedNotes implements suggest.Provider.
func (o *OpenAI) RelatedNotes(ctx context.Context, note models.Note, corpus []models.Note) ([]string, error) {
	if len(corpus) == 0 {
		return []string{}, nil
	}
	out, err := o.complete(ctx, relatedPrompt(note, corpus), true)
	if err != nil {
		return nil, err
	}
	return decodeIDs(out)
}

// NewTopics implements suggest.Provider.
func (o *OpenAI) NewTopics(ctx context.Context, note models.Note) ([]models.Topic, error) {
	out, err := o.complete(ctx, topicsPrompt(note), true)
	if err != nil {
		return nil, err
	}
	return decodeTopics(out)
}

// ExplainRelation implements suggest.Provider.
func (o *OpenAI) ExplainRelation(ctx context.Context, a, b models.Note) (string, error) {
	out, err := o.complete(ctx, reasonPrompt(a, b), false)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
