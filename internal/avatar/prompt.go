package avatar

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/recaphq/recap-api/internal/domain"
)

// NegativePrompt lists what the image model should stay away from.
const NegativePrompt = "photorealistic, 3d rendering, realistic, photograph, complex background, " +
	"multiple views, body shot, full body, watermark, text, ugly, deformed, noisy, blurry, low quality"

const defaultKeyPhrase = "creative"

//go:embed prompts/avatar.tmpl
var avatarTemplate string

var promptTemplate = template.Must(template.New("avatar").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(avatarTemplate))

// Traits are the character features derived from a summary.
type Traits struct {
	Traits      []string
	Personality []string
	Appearance  []string
	Tone        string
	Expression  string
	KeyPhrase   string
}

// DeriveTraits reads a completed summary for avatar features.
func DeriveTraits(r *domain.SummaryResult) Traits {
	var t Traits

	switch r.Platform {
	case domain.PlatformGitHub:
		if r.Basic.Followers > 100 {
			t.Traits = append(t.Traits, "popular developer")
		}
		if len(r.TopLanguages) > 0 {
			t.Traits = append(t.Traits, r.TopLanguages[0]+" expert")
		}
	case domain.PlatformTwitter, domain.PlatformJike:
		if r.Basic.Followers > 1000 {
			t.Traits = append(t.Traits, "social media influencer")
		}
		if r.Basic.ContentCount > 1000 {
			t.Traits = append(t.Traits, "active poster")
		}
	}

	t.Traits = append(t.Traits, r.Tags...)

	bio := strings.ToLower(r.Bio)
	if strings.Contains(bio, "embedded") {
		t.Traits = append(t.Traits, "embedded systems specialist")
		t.Appearance = append(t.Appearance, "tech-savvy look")
	}
	if strings.Contains(bio, "full-stack") || strings.Contains(bio, "fullstack") {
		t.Traits = append(t.Traits, "versatile developer")
		t.Appearance = append(t.Appearance, "modern professional")
	}
	if hasWord(bio, "ai") {
		t.Traits = append(t.Traits, "AI enthusiast")
		t.Appearance = append(t.Appearance, "forward-thinking expression")
	}

	sentence := strings.ToLower(r.BestSentence)
	if strings.Contains(sentence, "innovat") {
		t.Personality = append(t.Personality, "innovative mindset")
		t.Appearance = append(t.Appearance, "creative spark in eyes")
	}
	if strings.Contains(sentence, "future") {
		t.Personality = append(t.Personality, "visionary")
		t.Appearance = append(t.Appearance, "confident posture")
	}

	key := strings.ToLower(r.KeyPhrase)
	if strings.Contains(key, "innovat") {
		t.Personality = append(t.Personality, "innovative")
		t.Appearance = append(t.Appearance, "modern attire")
	}
	if strings.Contains(key, "ambitio") || strings.Contains(key, "driven") {
		t.Personality = append(t.Personality, "ambitious")
		t.Appearance = append(t.Appearance, "determined expression")
	}

	for _, repo := range r.TopRepos {
		if strings.Contains(strings.ToLower(repo.Name), "homeassistant") {
			t.Traits = append(t.Traits, "smart home innovator")
			t.Appearance = append(t.Appearance, "tech-integrated appearance")
			break
		}
	}

	if r.Style.IsCritical() {
		t.Personality = append(t.Personality, "sarcastic", "humorous")
		t.Appearance = append(t.Appearance, "playful expression", "witty smile")
		t.Tone = "playful and witty"
		t.Expression = "quirky and humorous"
	} else {
		t.Personality = append(t.Personality, "professional", "friendly", "approachable")
		t.Appearance = append(t.Appearance, "warm smile", "welcoming expression")
		t.Tone = "friendly and professional"
		t.Expression = "warm and approachable"
	}

	t.KeyPhrase = r.KeyPhrase
	if t.KeyPhrase == "" {
		t.KeyPhrase = defaultKeyPhrase
	}
	return t
}

// BuildPrompt renders the image prompt for a summary.
func BuildPrompt(r *domain.SummaryResult) (string, error) {
	if r == nil {
		return "", fmt.Errorf("%w: summary has no result", domain.ErrValidation)
	}
	var b strings.Builder
	if err := promptTemplate.Execute(&b, DeriveTraits(r)); err != nil {
		return "", fmt.Errorf("failed to render avatar prompt: %w", err)
	}
	return b.String(), nil
}

func hasWord(s, word string) bool {
	for _, f := range strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		if f == word {
			return true
		}
	}
	return false
}
