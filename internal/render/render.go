// Package render draws the shareable summary card.
package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/recaphq/recap-api/internal/domain"
)

// Renderer turns a summary into an image.
type Renderer interface {
	// Render returns the encoded image, its content type and file extension.
	Render(ctx context.Context, result *domain.SummaryResult) (Image, error)
}

// Image is an encoded card.
type Image struct {
	Body        []byte
	ContentType string
	Ext         string
}

// SVGRenderer renders cards as SVG documents.
type SVGRenderer struct {
	tmpl *template.Template
}

// NewSVGRenderer parses the card template.
func NewSVGRenderer() (*SVGRenderer, error) {
	tmpl, err := template.New("card").Funcs(template.FuncMap{
		"add":     func(a, b int) int { return a + b },
		"mul":     func(a, b int) int { return a * b },
		"cellFor": cellColor,
		"clip":    clip,
	}).Parse(cardTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse card template: %w", err)
	}
	return &SVGRenderer{tmpl: tmpl}, nil
}

var _ Renderer = (*SVGRenderer)(nil)

type heatCell struct {
	X, Y  int
	Count int
}

type cardData struct {
	*domain.SummaryResult
	Cells       []heatCell
	MaxCount    int
	Contents    []domain.ContentItem
	Description string
}

// Render implements Renderer.
func (r *SVGRenderer) Render(ctx context.Context, result *domain.SummaryResult) (Image, error) {
	if result == nil {
		return Image{}, fmt.Errorf("nothing to render")
	}
	if err := ctx.Err(); err != nil {
		return Image{}, err
	}

	data := cardData{SummaryResult: result}
	for i, c := range result.Heatmap.Counts {
		data.Cells = append(data.Cells, heatCell{X: i / 7, Y: i % 7, Count: c})
		if c > data.MaxCount {
			data.MaxCount = c
		}
	}
	data.Contents = result.TopContents
	if len(data.Contents) > 3 {
		data.Contents = data.Contents[:3]
	}
	data.Description = result.Closing.Content

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return Image{}, fmt.Errorf("failed to render card: %w", err)
	}
	return Image{Body: buf.Bytes(), ContentType: "image/svg+xml", Ext: "svg"}, nil
}

var palette = []string{"#ebedf0", "#9be9a8", "#40c463", "#30a14e", "#216e39"}

func cellColor(count, max int) string {
	if count <= 0 || max <= 0 {
		return palette[0]
	}
	idx := 1 + (count*(len(palette)-2))/max
	if idx >= len(palette) {
		idx = len(palette) - 1
	}
	return palette[idx]
}

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}

const cardTemplate = `<svg xmlns="http://www.w3.org/2000/svg" width="800" height="1000" viewBox="0 0 800 1000">
<rect width="800" height="1000" fill="#0d1117"/>
<text x="40" y="70" font-family="sans-serif" font-size="36" fill="#ffffff">{{.Username}}</text>
<text x="40" y="105" font-family="sans-serif" font-size="16" fill="#8b949e">{{.Platform}} · {{.CreateDate}} · {{.Style}}</text>
<text x="40" y="160" font-family="sans-serif" font-size="28" fill="#58a6ff">{{clip .KeyPhrase 40}}</text>
<text x="40" y="200" font-family="sans-serif" font-size="16" fill="#c9d1d9">{{clip .BestSentence 80}}</text>
<text x="40" y="250" font-family="sans-serif" font-size="14" fill="#8b949e">followers {{.Basic.Followers}} · following {{.Basic.Following}} · contributions {{.TotalContributions}}</text>
<g transform="translate(40,280)">
{{- $max := .MaxCount}}
{{- range .Cells}}
<rect x="{{mul .X 13}}" y="{{mul .Y 13}}" width="11" height="11" rx="2" fill="{{cellFor .Count $max}}"/>
{{- end}}
</g>
<g transform="translate(40,420)">
{{- range $i, $c := .Contents}}
<text x="0" y="{{mul $i 60}}" font-family="sans-serif" font-size="16" fill="#ffffff">{{clip $c.Content 60}} ★{{$c.Stars}}</text>
<text x="0" y="{{add (mul $i 60) 24}}" font-family="sans-serif" font-size="13" fill="#8b949e">{{clip $c.Commentary 90}}</text>
{{- end}}
</g>
<g transform="translate(40,640)">
{{- range $i, $t := .Tags}}
<text x="{{mul $i 180}}" y="0" font-family="sans-serif" font-size="14" fill="#3fb950">#{{clip $t 18}}</text>
{{- end}}
</g>
<text x="40" y="720" font-family="sans-serif" font-size="22" fill="#ffffff">{{clip .Closing.Title 50}}</text>
<text x="40" y="760" font-family="sans-serif" font-size="14" fill="#c9d1d9">{{clip .Description 100}}</text>
<text x="40" y="820" font-family="sans-serif" font-size="16" fill="#d2a8ff">{{clip .Wish 80}}</text>
<text x="40" y="960" font-family="sans-serif" font-size="12" fill="#484f58">{{.PoweredBy}}</text>
</svg>
`
