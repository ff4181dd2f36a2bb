package gemini

import (
	"github.com/recaphq/recap-api/internal/domain"
	"google.golang.org/genai"
)

// promptData is the input of the summary prompt template.
type promptData struct {
	Stats    *domain.PlatformStats
	Guidance []string
	Monthly  string
}

// ResponseSchema is the JSON document the model is asked to return.
type ResponseSchema struct {
	// Commentaries holds one remark per top content item, in order.
	Commentaries []string `json:"dissContents"`
	KeyPhrase    string   `json:"topKey"`
	Tags         []string `json:"topTags"`
	BestSentence string   `json:"bestSentence"`
	Closing      struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	} `json:"finalDiss"`
	Wish string `json:"bestWish"`
}

func stringSchema(description string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: description}
}

// responseSchema mirrors ResponseSchema for structured output.
var responseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"dissContents": {
			Type:        genai.TypeArray,
			Description: "one remark per top content item, under 30 words each",
			Items:       stringSchema("remark"),
		},
		"topKey": stringSchema("a short key phrase for the year"),
		"topTags": {
			Type:        genai.TypeArray,
			Description: "five short tags covering different traits",
			Items:       stringSchema("tag"),
		},
		"bestSentence": stringSchema("one memorable sentence, under 30 words"),
		"finalDiss": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"title":   stringSchema("closing title"),
				"content": stringSchema("closing summary, under 50 words"),
			},
			Required: []string{"title", "content"},
		},
		"bestWish": stringSchema("a new year wish, under 30 words"),
	},
	Required: []string{"dissContents", "topKey", "topTags", "bestSentence", "finalDiss", "bestWish"},
}
