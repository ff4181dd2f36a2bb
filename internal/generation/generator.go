package generation

import (
	"context"

	"github.com/google/uuid"
	"github.com/recaphq/recap-api/internal/domain"
)

// ContentGenerator writes the text of a summary from normalized platform stats.
type ContentGenerator interface {
	// Generate returns the generated content for stats in the given style.
	// Errors wrapping ErrTransientFailure were retried and still failed.
	Generate(ctx context.Context, stats *domain.PlatformStats, style domain.Style) (*domain.GeneratedContent, error)
}

// ImageRequest describes one avatar drawing.
type ImageRequest struct {
	// IdempotencyKey lets the provider deduplicate retried requests.
	IdempotencyKey uuid.UUID
	Prompt         string
	NegativePrompt string
}

// ImageGenerator draws an image and returns the provider's URL for it.
type ImageGenerator interface {
	Generate(ctx context.Context, req ImageRequest) (string, error)
}
