package gemini

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/recaphq/recap-api/internal/domain"
)

//go:embed prompts/summary.tmpl
var summaryTemplate string

var promptTemplate = template.Must(template.New("summary").Funcs(template.FuncMap{
	"join": strings.Join,
	"add":  func(a, b int) int { return a + b },
}).Parse(summaryTemplate))

var styleGuidance = map[domain.Style][]string{
	domain.StyleSarcasm: {
		"humorous and lightly sarcastic",
		"remarks point out the funny contradictions in the user's activity",
		"the key phrase and tags tease, the wish stays warm with a wink",
	},
	domain.StyleRoast: {
		"sharp and biting but still funny",
		"remarks go straight to the point and exaggerate freely",
		"the closing reveals the user's habits with ironic flair",
	},
	domain.StylePraise: {
		"warm, encouraging and positive",
		"remarks celebrate progress and effort",
		"the wish is full of hope",
	},
	domain.StyleClassical: {
		"written in an archaic, classical register a modern reader can still follow",
		"the closing title reads like a chronicle, for example 'The Annals of <name>'",
		"the best sentence imitates an aphorism from an old master",
	},
}

// buildPrompt renders the summary prompt for stats in the given style.
func buildPrompt(stats *domain.PlatformStats, style domain.Style) (string, error) {
	if stats == nil || stats.Username == "" {
		return "", ErrEmptyStats
	}
	guidance, ok := styleGuidance[style]
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidStyle, style)
	}

	var monthly strings.Builder
	for _, m := range stats.Heatmap.Monthly {
		fmt.Fprintf(&monthly, "- %s: %d", m.Month, m.Count)
		if len(m.TopLanguages) > 0 {
			fmt.Fprintf(&monthly, " (%s)", strings.Join(m.TopLanguages, ", "))
		}
		monthly.WriteByte('\n')
	}
	if monthly.Len() == 0 {
		monthly.WriteString("(no activity recorded)\n")
	}

	var buf bytes.Buffer
	err := promptTemplate.Execute(&buf, promptData{
		Stats:    stats,
		Guidance: guidance,
		Monthly:  strings.TrimRight(monthly.String(), "\n"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buf.String(), nil
}
