// Package storage defines where rendered images end up.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Uploader stores an object and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// SummaryKey is the object key of a rendered summary card.
func SummaryKey(taskID uuid.UUID, ext string) string {
	return fmt.Sprintf("summaries/%s.%s", taskID, ext)
}

// AvatarKey is the object key of a generated avatar.
func AvatarKey(taskID uuid.UUID, now time.Time) string {
	return fmt.Sprintf("avatars/%s/%d.png", taskID, now.UnixMilli())
}
