// Package github implements the GitHub platform adapter: profile and
// repositories from the REST API, daily activity from the public
// contribution calendar.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/recaphq/recap-api/internal/config"
	"github.com/recaphq/recap-api/internal/domain"
	"github.com/recaphq/recap-api/internal/platform"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

const userAgent = "recap-api"

// errNotFound marks a 404 from either GitHub endpoint.
var errNotFound = errors.New("github resource not found")

// Adapter implements platform.Adapter for GitHub.
type Adapter struct {
	apiURL string
	webURL string
	token  string
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewAdapter creates a GitHub adapter. A nil client gets an instrumented default.
func NewAdapter(cfg config.GitHubConfig, client *http.Client, logger *slog.Logger) *Adapter {
	if client == nil {
		client = &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		apiURL: strings.TrimRight(cfg.APIURL, "/"),
		webURL: strings.TrimRight(cfg.WebURL, "/"),
		token:  cfg.Token,
		client: client,
		logger: logger.With(slog.String("component", "github_adapter")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

var _ platform.Adapter = (*Adapter)(nil)

// Platform implements platform.Adapter.
func (a *Adapter) Platform() domain.Platform { return domain.PlatformGitHub }

type apiUser struct {
	Login       string    `json:"login"`
	Name        string    `json:"name"`
	AvatarURL   string    `json:"avatar_url"`
	Bio         string    `json:"bio"`
	Followers   int       `json:"followers"`
	Following   int       `json:"following"`
	PublicRepos int       `json:"public_repos"`
	CreatedAt   time.Time `json:"created_at"`
}

type apiRepo struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Stars       int       `json:"stargazers_count"`
	Language    string    `json:"language"`
	Fork        bool      `json:"fork"`
	PushedAt    time.Time `json:"pushed_at"`
}

// UserExists implements platform.Adapter.
func (a *Adapter) UserExists(ctx context.Context, username string) (bool, error) {
	var u apiUser
	err := a.getJSON(ctx, a.apiURL+"/users/"+url.PathEscape(username), &u)
	if errors.Is(err, errNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Fetch implements platform.Adapter. An unknown user yields status
// processing; any other upstream failure yields status failed. Only
// cancellation is returned as an error.
func (a *Adapter) Fetch(ctx context.Context, username string) (*domain.PlatformStats, error) {
	var (
		user  apiUser
		repos []apiRepo
		cal   *calendar
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.getJSON(gctx, a.apiURL+"/users/"+url.PathEscape(username), &user)
	})
	g.Go(func() error {
		return a.getJSON(gctx, a.apiURL+"/users/"+url.PathEscape(username)+"/repos?per_page=100&sort=pushed&type=owner", &repos)
	})
	g.Go(func() error {
		c, err := a.fetchCalendar(gctx, username)
		if err != nil {
			// a missing calendar is not fatal
			a.logger.WarnContext(gctx, "contribution calendar unavailable",
				slog.String("username", username),
				slog.String("error", err.Error()))
			return nil
		}
		cal = c
		return nil
	})

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		status := domain.StatsStatusFailed
		if errors.Is(err, errNotFound) {
			status = domain.StatsStatusProcessing
		}
		return &domain.PlatformStats{
			Status:       status,
			Platform:     domain.PlatformGitHub,
			Username:     username,
			ErrorMessage: err.Error(),
		}, nil
	}

	return buildStats(user, repos, cal, a.now()), nil
}

func buildStats(user apiUser, repos []apiRepo, cal *calendar, now time.Time) *domain.PlatformStats {
	owned := make([]apiRepo, 0, len(repos))
	languages := map[string]int{}
	for _, r := range repos {
		if r.Fork {
			continue
		}
		owned = append(owned, r)
		if r.Language != "" {
			languages[r.Language]++
		}
	}
	sort.SliceStable(owned, func(i, j int) bool { return owned[i].Stars > owned[j].Stars })

	topLanguages := rankLanguages(languages, 3)

	stats := &domain.PlatformStats{
		Status:          domain.StatsStatusOK,
		Platform:        domain.PlatformGitHub,
		Username:        user.Login,
		ProfileImageURL: user.AvatarURL,
		Bio:             user.Bio,
		Basic: domain.BasicStats{
			Followers:    user.Followers,
			Following:    user.Following,
			ContentCount: user.PublicRepos,
		},
		TopLanguages: topLanguages,
		Languages:    languages,
		RepoCount:    user.PublicRepos,
	}

	for i, r := range owned {
		if i == 3 {
			break
		}
		stats.TopRepos = append(stats.TopRepos, domain.Repo{
			Name: r.Name, Description: r.Description, Stars: r.Stars, Language: r.Language,
		})
		content := "Repository " + r.Name
		if r.Description != "" {
			content += ": " + r.Description
		}
		stats.TopContents = append(stats.TopContents, domain.ContentItem{
			Content: content, Stars: r.Stars, Timestamp: r.PushedAt,
		})
	}

	if cal != nil {
		stats.Heatmap = cal.heatmap(languagesByMonth(owned, now))
		stats.TotalContributions = cal.total
	} else {
		stats.Heatmap = domain.Heatmap{Intensity: domain.IntensityLow}
	}
	stats.Heatmap.Title = fmt.Sprintf("%d contributions in the last year", stats.TotalContributions)

	stats.Tags = append(stats.Tags, topLanguages...)
	stats.Tags = append(stats.Tags,
		fmt.Sprintf("%d+ Contributions", stats.TotalContributions),
		fmt.Sprintf("%d Repositories", user.PublicRepos))
	return stats
}

// rankLanguages returns up to n languages by repository count, ties by name.
func rankLanguages(counts map[string]int, n int) []string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > n {
		names = names[:n]
	}
	return names
}

// languagesByMonth attributes repository languages to the month of their last push.
func languagesByMonth(repos []apiRepo, now time.Time) map[string][]string {
	byMonth := map[string]map[string]int{}
	cutoff := now.AddDate(-1, 0, 0)
	for _, r := range repos {
		if r.Language == "" || r.PushedAt.Before(cutoff) {
			continue
		}
		m := r.PushedAt.Format("2006-01")
		if byMonth[m] == nil {
			byMonth[m] = map[string]int{}
		}
		byMonth[m][r.Language]++
	}
	out := make(map[string][]string, len(byMonth))
	for m, counts := range byMonth {
		out[m] = rankLanguages(counts, 3)
	}
	return out
}

func (a *Adapter) newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

func (a *Adapter) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := a.newRequest(ctx, rawURL)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("github request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("github returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode github response: %w", err)
	}
	return nil
}
