package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/recaphq/recap-api/internal/config"
	"github.com/recaphq/recap-api/internal/domain"
	"github.com/recaphq/recap-api/internal/generation"
	"github.com/sethvargo/go-retry"
	"google.golang.org/genai"
)

// contentModel is the slice of the genai client the generator calls.
type contentModel interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Generator implements generation.ContentGenerator using the Gemini API.
type Generator struct {
	logger    *slog.Logger
	config    config.LLMConfig
	models    contentModel
	retryBase time.Duration
}

var _ generation.ContentGenerator = (*Generator)(nil)

// NewGenerator creates a Gemini-backed content generator.
//
// It validates the configuration and initializes the genai client for the
// Gemini API backend. Configuration problems wrap generation.ErrInvalidConfig.
func NewGenerator(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Generator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}
	return newGenerator(logger, cfg, client.Models), nil
}

func newGenerator(logger *slog.Logger, cfg config.LLMConfig, models contentModel) *Generator {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelaySeconds < 1 {
		cfg.RetryDelaySeconds = 2
	}
	return &Generator{
		logger:    logger.With(slog.String("component", "gemini_generator")),
		config:    cfg,
		models:    models,
		retryBase: time.Duration(cfg.RetryDelaySeconds) * time.Second,
	}
}

// Generate implements generation.ContentGenerator.
func (g *Generator) Generate(
	ctx context.Context,
	stats *domain.PlatformStats,
	style domain.Style,
) (*domain.GeneratedContent, error) {
	prompt, err := buildPrompt(stats, style)
	if err != nil {
		return nil, err
	}

	g.logger.DebugContext(ctx, "prompt generated",
		slog.String("username", stats.Username),
		slog.String("style", string(style)),
		slog.Int("prompt_length", len(prompt)))

	resp, tokens, err := g.callWithRetry(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return toContent(resp, len(stats.TopContents), tokens), nil
}

// callWithRetry calls the model until it returns a parseable document, a
// permanent error occurs, or the retry budget is spent.
func (g *Generator) callWithRetry(ctx context.Context, prompt string) (*ResponseSchema, int, error) {
	backoff := retry.NewExponential(g.retryBase)
	backoff = retry.WithJitterPercent(25, backoff)
	backoff = retry.WithMaxRetries(uint64(g.config.MaxRetries), backoff)

	genCfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(g.config.Temperature),
		MaxOutputTokens:  g.config.MaxOutputTokens,
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema,
	}

	var (
		out     *ResponseSchema
		tokens  int
		attempt int
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		g.logger.InfoContext(ctx, "calling gemini",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", g.config.MaxRetries+1))

		resp, err := g.models.GenerateContent(ctx, g.config.ModelName, genai.Text(prompt), genCfg)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			g.logger.WarnContext(ctx, "gemini call failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			return retry.RetryableError(err)
		}

		parsed, n, err := parseResponse(resp)
		if err != nil {
			return err
		}
		out, tokens = parsed, n
		return nil
	})

	switch {
	case err == nil:
		g.logger.InfoContext(ctx, "gemini call succeeded",
			slog.Int("attempt", attempt),
			slog.Int("tokens", tokens))
		return out, tokens, nil
	case errors.Is(err, generation.ErrContentBlocked), errors.Is(err, generation.ErrInvalidResponse):
		return nil, 0, err
	case ctx.Err() != nil:
		return nil, 0, fmt.Errorf("%w: %w", generation.ErrTransientFailure, ctx.Err())
	default:
		return nil, 0, fmt.Errorf("%w: exceeded maximum retry attempts (%d): %v",
			generation.ErrTransientFailure, g.config.MaxRetries, err)
	}
}

func parseResponse(resp *genai.GenerateContentResponse) (*ResponseSchema, int, error) {
	if resp == nil {
		return nil, 0, fmt.Errorf("%w: nil response", generation.ErrInvalidResponse)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, 0, fmt.Errorf("%w: prompt blocked (%s)", generation.ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return nil, 0, fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return nil, 0, fmt.Errorf("%w: content blocked by safety filters", generation.ErrContentBlocked)
	}
	if candidate.Content == nil {
		return nil, 0, fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}

	var parsed ResponseSchema
	if err := json.Unmarshal([]byte(stripFence(text.String())), &parsed); err != nil {
		return nil, 0, fmt.Errorf("%w: failed to parse JSON response: %v", generation.ErrInvalidResponse, err)
	}

	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return &parsed, tokens, nil
}

// stripFence removes a markdown code fence some models wrap JSON in.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// toContent maps the model document onto the domain, padding or trimming
// commentaries so there is exactly one per top content item.
func toContent(r *ResponseSchema, items, tokens int) *domain.GeneratedContent {
	commentaries := make([]string, items)
	copy(commentaries, r.Commentaries)
	return &domain.GeneratedContent{
		KeyPhrase:    r.KeyPhrase,
		Tags:         r.Tags,
		Commentaries: commentaries,
		BestSentence: r.BestSentence,
		Closing:      domain.Closing{Title: r.Closing.Title, Content: r.Closing.Content},
		Wish:         r.Wish,
		TokensUsed:   tokens,
	}
}
