package mocks

import (
	"context"
	"sync"

	"github.com/recaphq/recap-api/internal/domain"
	"github.com/recaphq/recap-api/internal/generation"
)

// MockContentGenerator implements generation.ContentGenerator for testing
type MockContentGenerator struct {
	// GenerateFn allows test cases to mock the Generate behavior
	GenerateFn func(ctx context.Context, stats *domain.PlatformStats, style domain.Style) (*domain.GeneratedContent, error)

	// Default response values
	Content *domain.GeneratedContent
	Err     error

	// Call tracking for verification
	GenerateCalls struct {
		mu sync.Mutex

		// Count tracks how many times Generate was called
		Count int

		// Usernames contains the username of every stats record passed in
		Usernames []string

		// Styles contains the style of every call
		Styles []domain.Style
	}
}

var _ generation.ContentGenerator = (*MockContentGenerator)(nil)

// Generate implements the generation.ContentGenerator interface
func (m *MockContentGenerator) Generate(
	ctx context.Context,
	stats *domain.PlatformStats,
	style domain.Style,
) (*domain.GeneratedContent, error) {
	m.GenerateCalls.mu.Lock()
	m.GenerateCalls.Count++
	if stats != nil {
		m.GenerateCalls.Usernames = append(m.GenerateCalls.Usernames, stats.Username)
	}
	m.GenerateCalls.Styles = append(m.GenerateCalls.Styles, style)
	m.GenerateCalls.mu.Unlock()

	if m.GenerateFn != nil {
		return m.GenerateFn(ctx, stats, style)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Content == nil {
		return nil, generation.ErrGenerationFailed
	}
	c := *m.Content
	return &c, nil
}

// CallCount returns the number of Generate calls.
func (m *MockContentGenerator) CallCount() int {
	m.GenerateCalls.mu.Lock()
	defer m.GenerateCalls.mu.Unlock()
	return m.GenerateCalls.Count
}

// Reset clears the call tracking.
func (m *MockContentGenerator) Reset() {
	m.GenerateCalls.mu.Lock()
	defer m.GenerateCalls.mu.Unlock()
	m.GenerateCalls.Count = 0
	m.GenerateCalls.Usernames = nil
	m.GenerateCalls.Styles = nil
}

// NewMockGeneratorWithContent creates a MockContentGenerator that returns content
func NewMockGeneratorWithContent(content *domain.GeneratedContent) *MockContentGenerator {
	return &MockContentGenerator{Content: content}
}

// NewMockGeneratorWithError creates a MockContentGenerator that returns err
func NewMockGeneratorWithError(err error) *MockContentGenerator {
	return &MockContentGenerator{Err: err}
}

// DefaultContent is a complete generated text set for one top content item.
func DefaultContent() *domain.GeneratedContent {
	return &domain.GeneratedContent{
		KeyPhrase:    "Night Owl",
		Tags:         []string{"Go", "open source"},
		Commentaries: []string{"Stars do not pay rent."},
		BestSentence: "Commits at 3am are a lifestyle.",
		Closing:      domain.Closing{Title: "Year in review", Content: "Loud keyboard, quiet graph."},
		Wish:         "Sleep more.",
		TokensUsed:   256,
	}
}
