package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/recaphq/recap-api/internal/domain"
)

// AvatarTaskStore persists avatar tasks with the same conditional-update
// rules as TaskStore. Avatars are claimed newest first.
type AvatarTaskStore interface {
	Create(ctx context.Context, task *domain.AvatarTask) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.AvatarTask, error)
	FindStale(ctx context.Context, cutoff time.Time, limit int) ([]*domain.AvatarTask, error)
	MarkAbandoned(ctx context.Context, id uuid.UUID, cutoff time.Time, errMsg string) (bool, error)
	ListClaimable(ctx context.Context, limit int) ([]uuid.UUID, error)
	Claim(ctx context.Context, ids []uuid.UUID) ([]*domain.AvatarTask, error)
	Touch(ctx context.Context, id uuid.UUID) error
	Complete(ctx context.Context, id uuid.UUID, imageURL string) error
	Fail(ctx context.Context, id uuid.UUID, errMsg string) error
	WithTx(tx *sql.Tx) AvatarTaskStore
}
