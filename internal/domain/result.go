package domain

import "time"

// StatsStatus is the adapter's verdict on a fetch.
type StatsStatus string

// Adapter fetch outcomes. Anything other than ok fails the task.
const (
	StatsStatusOK         StatsStatus = "ok"
	StatsStatusProcessing StatsStatus = "processing"
	StatsStatusFailed     StatsStatus = "failed"
)

// Intensity buckets the busiest day of the activity heatmap.
type Intensity string

// Heatmap intensities.
const (
	IntensityLow    Intensity = "low"
	IntensityMedium Intensity = "medium"
	IntensityHigh   Intensity = "high"
)

// IntensityFor maps the busiest day's count to an intensity bucket.
func IntensityFor(maxCount int) Intensity {
	switch {
	case maxCount <= 3:
		return IntensityLow
	case maxCount >= 10:
		return IntensityHigh
	default:
		return IntensityMedium
	}
}

// BasicStats holds audience and volume counters.
type BasicStats struct {
	Followers    int `json:"follower"`
	Following    int `json:"following"`
	ContentCount int `json:"contentCnt"`
}

// MonthlyStat aggregates activity for one calendar month (YYYY-MM).
type MonthlyStat struct {
	Month        string   `json:"month"`
	Count        int      `json:"commits"`
	TopLanguages []string `json:"topLanguages,omitempty"`
}

// Heatmap is the daily activity series of the past year.
type Heatmap struct {
	Title     string        `json:"title"`
	Dates     []string      `json:"dates"`
	Counts    []int         `json:"counts"`
	Intensity Intensity     `json:"intensity"`
	Monthly   []MonthlyStat `json:"monthlyStats"`
}

// ContentItem is one highlighted piece of content (a repository, a post).
type ContentItem struct {
	Content    string    `json:"content"`
	Stars      int       `json:"likeStarCnt"`
	Timestamp  time.Time `json:"timestamp"`
	Commentary string    `json:"dissContent,omitempty"`
}

// Repo summarizes a repository.
type Repo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Stars       int    `json:"stars"`
	Language    string `json:"language"`
}

// PlatformStats is the normalized output of a platform adapter.
type PlatformStats struct {
	Status             StatsStatus    `json:"status"`
	Platform           Platform       `json:"platform"`
	Username           string         `json:"userName"`
	ProfileImageURL    string         `json:"profileImageUrl,omitempty"`
	Bio                string         `json:"userSlogan,omitempty"`
	Basic              BasicStats     `json:"basicStats"`
	Heatmap            Heatmap        `json:"heatmapData"`
	TopContents        []ContentItem  `json:"topContents"`
	TopLanguages       []string       `json:"topLanguages,omitempty"`
	Languages          map[string]int `json:"languages,omitempty"`
	TopRepos           []Repo         `json:"topRepos,omitempty"`
	TotalContributions int            `json:"totalContributions"`
	RepoCount          int            `json:"repoCount"`
	Tags               []string       `json:"topTags"`
	ErrorMessage       string         `json:"errorMessage,omitempty"`
}

// Closing is the final paragraph of a summary.
type Closing struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// GeneratedContent is what the content generator derives from PlatformStats.
type GeneratedContent struct {
	KeyPhrase    string   `json:"topKey"`
	Tags         []string `json:"topTags"`
	Commentaries []string `json:"dissContents"`
	BestSentence string   `json:"bestSentence"`
	Closing      Closing  `json:"closing"`
	Wish         string   `json:"bestWish"`
	TokensUsed   int      `json:"tokensUsed"`
}

// SummaryResult is the persisted result of a completed summary task.
type SummaryResult struct {
	PlatformStats
	Style        Style   `json:"style"`
	CreateDate   string  `json:"createDate"`
	PoweredBy    string  `json:"powerBy"`
	KeyPhrase    string  `json:"topKey"`
	BestSentence string  `json:"bestSentence"`
	Closing      Closing `json:"closing"`
	Wish         string  `json:"bestWish"`
	TokensUsed   int     `json:"tokensUsed"`
	// AvatarURL is back-filled when an avatar task for this summary completes.
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// PoweredBy is the attribution printed on every card.
const PoweredBy = "AI Annual Summary"

// AssembleResult merges fetched stats with generated text. Generated tags
// replace the adapter's tags when present, and per-item commentary is attached
// to the top contents in order.
func AssembleResult(style Style, stats PlatformStats, gen GeneratedContent, now time.Time) *SummaryResult {
	merged := stats
	merged.TopContents = make([]ContentItem, len(stats.TopContents))
	copy(merged.TopContents, stats.TopContents)
	for i := range merged.TopContents {
		if i < len(gen.Commentaries) {
			merged.TopContents[i].Commentary = gen.Commentaries[i]
		}
	}
	if len(gen.Tags) > 0 {
		merged.Tags = gen.Tags
	}

	return &SummaryResult{
		PlatformStats: merged,
		Style:         style,
		CreateDate:    now.UTC().Format("2006-01-02"),
		PoweredBy:     PoweredBy,
		KeyPhrase:     gen.KeyPhrase,
		BestSentence:  gen.BestSentence,
		Closing:       gen.Closing,
		Wish:          gen.Wish,
		TokensUsed:    gen.TokensUsed,
	}
}
