package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/recaphq/recap-api/internal/credit"
	"github.com/recaphq/recap-api/internal/domain"
	"github.com/recaphq/recap-api/internal/platform/logger"
	"github.com/recaphq/recap-api/internal/store"
)

const avatarService = "avatar"

// AvatarCreated is returned after an avatar task was admitted.
type AvatarCreated struct {
	TaskID  uuid.UUID `json:"taskId"`
	Credits int       `json:"credits"`
}

// AvatarStatusView is what a polling client sees for an avatar task.
type AvatarStatusView struct {
	ID       uuid.UUID         `json:"id"`
	Status   domain.TaskStatus `json:"status"`
	ImageURL string            `json:"imageUrl,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// AvatarService admits avatar tasks for completed summaries.
type AvatarService interface {
	CreateTask(ctx context.Context, userID string, summaryID uuid.UUID) (*AvatarCreated, error)
	GetStatus(ctx context.Context, userID string, id uuid.UUID) (*AvatarStatusView, error)
}

type avatarServiceImpl struct {
	tasks   store.TaskStore
	avatars store.AvatarTaskStore
	ledger  *credit.Ledger
	cost    int
	logger  *slog.Logger
}

// NewAvatarService creates an AvatarService charging cost credits per avatar.
func NewAvatarService(
	tasks store.TaskStore,
	avatars store.AvatarTaskStore,
	ledger *credit.Ledger,
	cost int,
	logger *slog.Logger,
) (AvatarService, error) {
	switch {
	case tasks == nil:
		return nil, errors.New("task store cannot be nil")
	case avatars == nil:
		return nil, errors.New("avatar store cannot be nil")
	case ledger == nil:
		return nil, errors.New("credit ledger cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &avatarServiceImpl{
		tasks:   tasks,
		avatars: avatars,
		ledger:  ledger,
		cost:    cost,
		logger:  logger.With(slog.String("component", "avatar_service")),
	}, nil
}

// CreateTask implements AvatarService.CreateTask.
func (s *avatarServiceImpl) CreateTask(ctx context.Context, userID string, summaryID uuid.UUID) (*AvatarCreated, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	if summaryID == uuid.Nil {
		return nil, ErrMissingFields
	}

	summary, err := s.tasks.GetByID(ctx, summaryID)
	if errors.Is(err, store.ErrTaskNotFound) {
		return nil, domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, wrap(avatarService, "create", err)
	}
	if !summary.OwnedBy(userID) {
		return nil, domain.ErrTaskNotFound
	}
	if summary.Status != domain.TaskStatusCompleted {
		return nil, domain.ErrParentNotCompleted
	}

	avatar, err := domain.NewAvatarTask(summaryID, userID, s.cost)
	if err != nil {
		return nil, err
	}
	err = s.ledger.Atomically(ctx, func(ctx context.Context, tx *sql.Tx, ledger *credit.Ledger) error {
		description := fmt.Sprintf("Avatar for %s", summary.Username)
		if err := ledger.TryDebit(ctx, userID, s.cost, domain.EntryUse, description, avatar.ID); err != nil {
			return err
		}
		return s.avatars.WithTx(tx).Create(ctx, avatar)
	})
	if err != nil {
		return nil, wrap(avatarService, "create", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).InfoContext(ctx, "avatar task created",
		slog.String("avatar_task_id", avatar.ID.String()),
		slog.String("summary_id", summaryID.String()),
		slog.Int("credits", s.cost))
	return &AvatarCreated{TaskID: avatar.ID, Credits: s.cost}, nil
}

// GetStatus implements AvatarService.GetStatus.
func (s *avatarServiceImpl) GetStatus(ctx context.Context, userID string, id uuid.UUID) (*AvatarStatusView, error) {
	a, err := s.avatars.GetByID(ctx, id)
	if errors.Is(err, store.ErrAvatarTaskNotFound) {
		return nil, domain.ErrAvatarTaskNotFound
	}
	if err != nil {
		return nil, wrap(avatarService, "get", err)
	}
	if a.UserID != userID {
		return nil, domain.ErrAvatarTaskNotFound
	}
	return &AvatarStatusView{ID: a.ID, Status: a.Status, ImageURL: a.ImageURL, Error: a.Error}, nil
}
