package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/recaphq/recap-api/internal/domain"
)

// TaskStore persists summary tasks and implements the queue primitives the
// processor relies on. Every method that advances a running task is
// conditional on status = processing and returns
// domain.ErrTaskNoLongerProcessing when the row has moved on.
type TaskStore interface {
	// Create inserts a new task.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID returns a task or ErrTaskNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// ListByUser returns the user's tasks, newest first. An empty userID lists every task.
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Task, error)

	// FindStale returns processing tasks whose updated_at is before cutoff.
	FindStale(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Task, error)

	// MarkAbandoned fails a task only if it is still processing and still stale.
	// It reports whether the row was changed.
	MarkAbandoned(ctx context.Context, id uuid.UUID, cutoff time.Time, errMsg string) (bool, error)

	// ListClaimable returns the ids of the oldest pending tasks without an error.
	ListClaimable(ctx context.Context, limit int) ([]uuid.UUID, error)

	// Claim locks the given pending tasks, skipping rows locked by another
	// worker, and moves them to processing. Only the returned tasks were
	// claimed by this call. Must run inside a transaction.
	Claim(ctx context.Context, ids []uuid.UUID) ([]*domain.Task, error)

	// UpdateStep records pipeline progress and refreshes updated_at.
	UpdateStep(ctx context.Context, id uuid.UUID, step domain.Step, message string) error

	// Complete stores the result and moves the task to completed.
	Complete(ctx context.Context, id uuid.UUID, result *domain.SummaryResult, imageURL string, tokens int) error

	// Fail moves a processing task to failed with the given error.
	Fail(ctx context.Context, id uuid.UUID, errMsg string) error

	// ResetToPending returns a processing task to the queue with the error cleared.
	ResetToPending(ctx context.Context, id uuid.UUID, message string) error

	// CountPendingBefore counts pending tasks created strictly before t.
	CountPendingBefore(ctx context.Context, t time.Time) (int, error)

	// ListProcessing returns every processing task.
	ListProcessing(ctx context.Context) ([]*domain.Task, error)

	// SetAvatarURL writes avatarUrl into the stored result, leaving other fields untouched.
	SetAvatarURL(ctx context.Context, id uuid.UUID, url string) error

	// WithTx returns a TaskStore bound to tx.
	WithTx(tx *sql.Tx) TaskStore
}
