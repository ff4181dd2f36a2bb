package domain

import "strings"

// Platform identifies a social platform a summary can be generated for.
type Platform string

// Known platforms. Only the ones listed as live in configuration accept new tasks.
const (
	PlatformGitHub  Platform = "github"
	PlatformTwitter Platform = "twitter"
	PlatformJike    Platform = "jike"
)

// ParsePlatform normalizes a platform name and reports whether it is known.
func ParsePlatform(s string) (Platform, bool) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PlatformGitHub, PlatformTwitter, PlatformJike:
		return p, true
	default:
		return "", false
	}
}

// Style selects the tone of the generated content and its credit cost.
type Style string

// Supported styles.
const (
	StyleSarcasm   Style = "sarcasm"
	StyleRoast     Style = "roast"
	StylePraise    Style = "praise"
	StyleClassical Style = "classical"
)

// Two price tiers: the light roast is cheaper than the long-form styles.
const (
	BasicStyleCredits   = 5
	PremiumStyleCredits = 8
)

var stylePrices = map[Style]int{
	StyleSarcasm:   BasicStyleCredits,
	StyleRoast:     PremiumStyleCredits,
	StylePraise:    PremiumStyleCredits,
	StyleClassical: PremiumStyleCredits,
}

// ParseStyle normalizes a style name and reports whether it has a price.
func ParseStyle(s string) (Style, bool) {
	st := Style(strings.ToLower(strings.TrimSpace(s)))
	_, ok := stylePrices[st]
	return st, ok
}

// Credits returns the cost of creating a summary task in this style.
func (s Style) Credits() int {
	return stylePrices[s]
}

// IsCritical reports whether the style mocks rather than praises.
func (s Style) IsCritical() bool {
	return s == StyleSarcasm || s == StyleRoast
}
