package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntensityFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, IntensityLow, IntensityFor(0))
	assert.Equal(t, IntensityLow, IntensityFor(3))
	assert.Equal(t, IntensityMedium, IntensityFor(4))
	assert.Equal(t, IntensityMedium, IntensityFor(9))
	assert.Equal(t, IntensityHigh, IntensityFor(10))
}

func TestAssembleResult(t *testing.T) {
	t.Parallel()

	stats := PlatformStats{
		Status:   StatsStatusOK,
		Platform: PlatformGitHub,
		Username: "octocat",
		Tags:     []string{"Go", "42 Repositories"},
		TopContents: []ContentItem{
			{Content: "Repository hello: greets", Stars: 10},
			{Content: "Repository world: spins", Stars: 3},
		},
	}
	gen := GeneratedContent{
		KeyPhrase:    "Relentless shipper",
		Tags:         []string{"night owl"},
		Commentaries: []string{"a classic"},
		BestSentence: "Go Developer with 42 repositories",
		Closing:      Closing{Title: "2024", Content: "what a year"},
		Wish:         "more stars",
		TokensUsed:   321,
	}
	now := time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC)

	result := AssembleResult(StyleRoast, stats, gen, now)

	assert.Equal(t, StyleRoast, result.Style)
	assert.Equal(t, "2024-12-31", result.CreateDate)
	assert.Equal(t, PoweredBy, result.PoweredBy)
	assert.Equal(t, []string{"night owl"}, result.Tags)
	assert.Equal(t, "a classic", result.TopContents[0].Commentary)
	assert.Empty(t, result.TopContents[1].Commentary)
	assert.Equal(t, 321, result.TokensUsed)
	assert.Empty(t, stats.TopContents[0].Commentary, "input stats must not be mutated")

	raw, err := json.Marshal(result)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "octocat", fields["userName"])
	assert.Equal(t, "Relentless shipper", fields["topKey"])
	assert.NotContains(t, fields, "avatarUrl")
}
