package render

import (
	"context"
	"encoding/xml"
	"strings"
	"testing"

	"github.com/recaphq/recap-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSVGRendererRender(t *testing.T) {
	r, err := NewSVGRenderer()
	require.NoError(t, err)

	result := &domain.SummaryResult{
		PlatformStats: domain.PlatformStats{
			Platform: domain.PlatformGitHub,
			Username: "octo<cat>",
			Heatmap:  domain.Heatmap{Counts: []int{0, 1, 5, 12}},
			TopContents: []domain.ContentItem{
				{Content: "Repository hello: greets", Stars: 10, Commentary: "cute"},
			},
			Tags: []string{"Go", "Rust"},
		},
		KeyPhrase:  "Ships on Fridays",
		PoweredBy:  domain.PoweredBy,
		CreateDate: "2024-12-31",
	}

	img, err := r.Render(context.Background(), result)
	require.NoError(t, err)
	assert.Equal(t, "image/svg+xml", img.ContentType)
	assert.Equal(t, "svg", img.Ext)

	body := string(img.Body)
	assert.Contains(t, body, "Ships on Fridays")
	assert.NotContains(t, body, "octo<cat>", "user content must be escaped")
	assert.Equal(t, 4, strings.Count(body, `rx="2"`))

	var doc struct{ XMLName xml.Name }
	require.NoError(t, xml.Unmarshal(img.Body, &doc))
	assert.Equal(t, "svg", doc.XMLName.Local)
}

func TestRenderRejectsNil(t *testing.T) {
	r, err := NewSVGRenderer()
	require.NoError(t, err)
	_, err = r.Render(context.Background(), nil)
	assert.Error(t, err)
}

func TestCellColor(t *testing.T) {
	assert.Equal(t, palette[0], cellColor(0, 10))
	assert.Equal(t, palette[len(palette)-1], cellColor(10, 10))
	assert.Equal(t, palette[0], cellColor(3, 0))
}

func TestClip(t *testing.T) {
	assert.Equal(t, "short", clip(" short ", 10))
	assert.Equal(t, "abcd…", clip("abcdefgh", 5))
}
