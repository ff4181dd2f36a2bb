package gemini

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/recaphq/recap-api/internal/config"
	"github.com/recaphq/recap-api/internal/domain"
	"github.com/recaphq/recap-api/internal/generation"
	"github.com/recaphq/recap-api/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type scriptedModel struct {
	mu        sync.Mutex
	calls     int
	responses []*genai.GenerateContentResponse
	errs      []error
	lastModel string
	lastCfg   *genai.GenerateContentConfig
}

func (m *scriptedModel) GenerateContent(_ context.Context, model string, _ []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.calls
	m.calls++
	m.lastModel, m.lastCfg = model, cfg
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i < len(m.responses) {
		return m.responses[i], nil
	}
	return m.responses[len(m.responses)-1], nil
}

func textResponse(text string, tokens int32) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Parts: []*genai.Part{{Text: text}}},
			FinishReason: genai.FinishReasonStop,
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{TotalTokenCount: tokens},
	}
}

const validDocument = `{
	"dissContents": ["nice repo", "another one", "extra remark"],
	"topKey": "Commit Machine",
	"topTags": ["gopher", "night owl"],
	"bestSentence": "Ship it.",
	"finalDiss": {"title": "The Year of Go", "content": "You wrote a lot of Go."},
	"bestWish": "More green squares."
}`

func testConfig() config.LLMConfig {
	return config.LLMConfig{
		GeminiAPIKey:      "key",
		ModelName:         "gemini-test",
		MaxRetries:        2,
		RetryDelaySeconds: 1,
		Temperature:       0.8,
		MaxOutputTokens:   1000,
	}
}

func testStats() *domain.PlatformStats {
	return &domain.PlatformStats{
		Status:   domain.StatsStatusOK,
		Platform: domain.PlatformGitHub,
		Username: "octocat",
		TopContents: []domain.ContentItem{
			{Content: "Repository hello"},
			{Content: "Repository spoon"},
		},
	}
}

func TestNewGeneratorValidatesConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LLMConfig
	}{
		{name: "missing key", cfg: config.LLMConfig{ModelName: "m"}},
		{name: "missing model", cfg: config.LLMConfig{GeminiAPIKey: "k"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGenerator(context.Background(), logger.Discard(), tt.cfg)
			assert.ErrorIs(t, err, generation.ErrInvalidConfig)
		})
	}

	_, err := NewGenerator(context.Background(), nil, testConfig())
	assert.Error(t, err)
}

func TestGenerate(t *testing.T) {
	model := &scriptedModel{responses: []*genai.GenerateContentResponse{textResponse(validDocument, 321)}}
	g := newGenerator(logger.Discard(), testConfig(), model)

	got, err := g.Generate(context.Background(), testStats(), domain.StyleRoast)
	require.NoError(t, err)

	assert.Equal(t, "Commit Machine", got.KeyPhrase)
	assert.Equal(t, []string{"nice repo", "another one"}, got.Commentaries, "one remark per top content item")
	assert.Equal(t, domain.Closing{Title: "The Year of Go", Content: "You wrote a lot of Go."}, got.Closing)
	assert.Equal(t, "More green squares.", got.Wish)
	assert.Equal(t, 321, got.TokensUsed)

	assert.Equal(t, "gemini-test", model.lastModel)
	assert.Equal(t, "application/json", model.lastCfg.ResponseMIMEType)
	assert.Same(t, responseSchema, model.lastCfg.ResponseSchema)
}

func TestGeneratePadsMissingCommentaries(t *testing.T) {
	model := &scriptedModel{responses: []*genai.GenerateContentResponse{
		textResponse("```json\n{\"topKey\":\"k\",\"dissContents\":[\"only one\"]}\n```", 5),
	}}
	g := newGenerator(logger.Discard(), testConfig(), model)

	got, err := g.Generate(context.Background(), testStats(), domain.StylePraise)
	require.NoError(t, err)
	assert.Equal(t, []string{"only one", ""}, got.Commentaries)
}

func TestGenerateRetriesTransientErrors(t *testing.T) {
	model := &scriptedModel{
		errs:      []error{errors.New("503 unavailable"), nil},
		responses: []*genai.GenerateContentResponse{nil, textResponse(validDocument, 1)},
	}
	g := newGenerator(logger.Discard(), testConfig(), model)
	g.retryBase = time.Millisecond

	got, err := g.Generate(context.Background(), testStats(), domain.StyleSarcasm)
	require.NoError(t, err)
	assert.Equal(t, "Commit Machine", got.KeyPhrase)
	assert.Equal(t, 2, model.calls)
}

func TestGenerateGivesUpAfterMaxRetries(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 0
	boom := errors.New("502 bad gateway")
	model := &scriptedModel{errs: []error{boom}}
	g := newGenerator(logger.Discard(), cfg, model)

	_, err := g.Generate(context.Background(), testStats(), domain.StyleSarcasm)
	assert.ErrorIs(t, err, generation.ErrTransientFailure)
	assert.Equal(t, 1, model.calls)
}

func TestGeneratePermanentErrors(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		want error
	}{
		{
			name: "safety block",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}},
			want: generation.ErrContentBlocked,
		},
		{
			name: "prompt blocked",
			resp: &genai.GenerateContentResponse{PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: "SAFETY"}},
			want: generation.ErrContentBlocked,
		},
		{
			name: "no candidates",
			resp: &genai.GenerateContentResponse{},
			want: generation.ErrInvalidResponse,
		},
		{
			name: "not json",
			resp: textResponse("I cannot do that", 3),
			want: generation.ErrInvalidResponse,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &scriptedModel{responses: []*genai.GenerateContentResponse{tt.resp}}
			g := newGenerator(logger.Discard(), testConfig(), model)

			_, err := g.Generate(context.Background(), testStats(), domain.StyleRoast)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 1, model.calls, "permanent errors are not retried")
		})
	}
}

func TestGenerateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	model := &scriptedModel{errs: []error{context.Canceled}}
	g := newGenerator(logger.Discard(), testConfig(), model)

	_, err := g.Generate(ctx, testStats(), domain.StyleRoast)
	assert.ErrorIs(t, err, generation.ErrTransientFailure)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildPrompt(t *testing.T) {
	stats := testStats()
	stats.Bio = "full-stack tinkerer"
	stats.TopLanguages = []string{"Go", "Rust"}
	stats.Heatmap.Monthly = []domain.MonthlyStat{{Month: "2024-02", Count: 15, TopLanguages: []string{"Go"}}}

	prompt, err := buildPrompt(stats, domain.StyleClassical)
	require.NoError(t, err)
	assert.Contains(t, prompt, "Username: octocat")
	assert.Contains(t, prompt, "Main languages: Go, Rust")
	assert.Contains(t, prompt, "- 2024-02: 15 (Go)")
	assert.Contains(t, prompt, "2. Repository spoon")
	assert.Contains(t, prompt, "classical register")

	_, err = buildPrompt(stats, domain.Style("haiku"))
	assert.ErrorIs(t, err, domain.ErrInvalidStyle)

	_, err = buildPrompt(&domain.PlatformStats{}, domain.StyleRoast)
	assert.ErrorIs(t, err, ErrEmptyStats)
}
