package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/recaphq/recap-api/internal/domain"
	"github.com/recaphq/recap-api/internal/generation"
	"github.com/recaphq/recap-api/internal/render"
)

// FakeAdapter is a scriptable platform.Adapter.
type FakeAdapter struct {
	Name      domain.Platform
	Stats     *domain.PlatformStats
	Err       error
	Exists    bool
	ExistsErr error

	// Hang makes Fetch block until its context is done.
	Hang bool

	mu    sync.Mutex
	calls int
}

// Platform implements platform.Adapter.
func (f *FakeAdapter) Platform() domain.Platform {
	if f.Name == "" {
		return domain.PlatformGitHub
	}
	return f.Name
}

// Fetch implements platform.Adapter.
func (f *FakeAdapter) Fetch(ctx context.Context, username string) (*domain.PlatformStats, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.Hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Stats != nil {
		s := *f.Stats
		return &s, nil
	}
	return SampleStats(username), nil
}

// UserExists implements platform.Adapter.
func (f *FakeAdapter) UserExists(context.Context, string) (bool, error) {
	return f.Exists, f.ExistsErr
}

// Calls returns the number of Fetch calls.
func (f *FakeAdapter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// SampleStats returns a small, complete GitHub profile.
func SampleStats(username string) *domain.PlatformStats {
	return &domain.PlatformStats{
		Status:          domain.StatsStatusOK,
		Platform:        domain.PlatformGitHub,
		Username:        username,
		ProfileImageURL: "https://avatars.example/" + username + ".png",
		Bio:             "full-stack tinkerer",
		Basic:           domain.BasicStats{Followers: 150, Following: 3, ContentCount: 12},
		Heatmap: domain.Heatmap{
			Title:     "42 contributions in the last year",
			Dates:     []string{"2024-01-01", "2024-01-02"},
			Counts:    []int{2, 40},
			Intensity: domain.IntensityHigh,
		},
		TopContents:        []domain.ContentItem{{Content: "Repository hello", Stars: 10}},
		TopLanguages:       []string{"Go"},
		Languages:          map[string]int{"Go": 3},
		TopRepos:           []domain.Repo{{Name: "hello", Stars: 10, Language: "Go"}},
		TotalContributions: 42,
		RepoCount:          12,
		Tags:               []string{"Go"},
	}
}

// FakeGenerator is a scriptable generation.ContentGenerator.
type FakeGenerator struct {
	Content *domain.GeneratedContent
	Err     error
}

var _ generation.ContentGenerator = (*FakeGenerator)(nil)

// Generate implements generation.ContentGenerator.
func (f *FakeGenerator) Generate(ctx context.Context, stats *domain.PlatformStats, _ domain.Style) (*domain.GeneratedContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Content != nil {
		c := *f.Content
		return &c, nil
	}
	commentaries := make([]string, len(stats.TopContents))
	for i := range commentaries {
		commentaries[i] = "nice"
	}
	return &domain.GeneratedContent{
		KeyPhrase:    "Commit Machine",
		Tags:         []string{"gopher"},
		Commentaries: commentaries,
		BestSentence: "Ship it.",
		Closing:      domain.Closing{Title: "The Year", Content: "Busy."},
		Wish:         "More green squares.",
		TokensUsed:   120,
	}, nil
}

// FakeRenderer is a scriptable render.Renderer.
type FakeRenderer struct {
	Err error
}

// Render implements render.Renderer.
func (f *FakeRenderer) Render(_ context.Context, r *domain.SummaryResult) (render.Image, error) {
	if f.Err != nil {
		return render.Image{}, f.Err
	}
	return render.Image{Body: []byte("<svg>" + r.Username + "</svg>"), ContentType: "image/svg+xml", Ext: "svg"}, nil
}

// FakeUploader records uploads and returns URLs under BaseURL.
type FakeUploader struct {
	BaseURL string
	Err     error

	mu      sync.Mutex
	Objects map[string][]byte
}

// Upload implements storage.Uploader.
func (f *FakeUploader) Upload(_ context.Context, key string, body []byte, _ string) (string, error) {
	if f.Err != nil {
		return "", f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Objects == nil {
		f.Objects = map[string][]byte{}
	}
	f.Objects[key] = body
	base := f.BaseURL
	if base == "" {
		base = "https://img.example.com"
	}
	return fmt.Sprintf("%s/%s", base, key), nil
}

// Object returns an uploaded object.
func (f *FakeUploader) Object(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.Objects[key]
	return b, ok
}

// FakeImageGenerator is a scriptable generation.ImageGenerator that also
// serves downloads.
type FakeImageGenerator struct {
	URL         string
	Err         error
	DownloadErr error

	mu       sync.Mutex
	Requests []generation.ImageRequest
}

// Generate implements generation.ImageGenerator.
func (f *FakeImageGenerator) Generate(_ context.Context, req generation.ImageRequest) (string, error) {
	f.mu.Lock()
	f.Requests = append(f.Requests, req)
	f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	if f.URL == "" {
		return "https://provider.example/image.png", nil
	}
	return f.URL, nil
}

// Download returns fixed image bytes unless DownloadErr is set.
func (f *FakeImageGenerator) Download(context.Context, string) ([]byte, error) {
	if f.DownloadErr != nil {
		return nil, f.DownloadErr
	}
	return []byte("PNG"), nil
}
