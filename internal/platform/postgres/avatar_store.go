package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/recaphq/recap-api/internal/domain"
	"github.com/recaphq/recap-api/internal/platform/logger"
	"github.com/recaphq/recap-api/internal/store"
)

const avatarColumns = `id, summary_id, user_id, status, credits, image_url, error, created_at, updated_at`

// PostgresAvatarTaskStore implements store.AvatarTaskStore on the avatar_tasks table.
type PostgresAvatarTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresAvatarTaskStore creates an avatar task store on a connection or transaction.
func NewPostgresAvatarTaskStore(db store.DBTX, logger *slog.Logger) *PostgresAvatarTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresAvatarTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "avatar_task_store")),
	}
}

var _ store.AvatarTaskStore = (*PostgresAvatarTaskStore)(nil)

// WithTx implements store.AvatarTaskStore.WithTx.
func (s *PostgresAvatarTaskStore) WithTx(tx *sql.Tx) store.AvatarTaskStore {
	return &PostgresAvatarTaskStore{db: tx, logger: s.logger}
}

// Create implements store.AvatarTaskStore.Create.
func (s *PostgresAvatarTaskStore) Create(ctx context.Context, task *domain.AvatarTask) error {
	if err := task.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO avatar_tasks (id, summary_id, user_id, status, credits, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		task.ID, task.SummaryID, task.UserID, task.Status, task.Credits, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to insert avatar task",
			slog.String("error", err.Error()),
			slog.String("avatar_task_id", task.ID.String()))
		return fmt.Errorf("failed to create avatar task: %w", MapError(err))
	}
	return nil
}

// GetByID implements store.AvatarTaskStore.GetByID.
func (s *PostgresAvatarTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.AvatarTask, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+avatarColumns+` FROM avatar_tasks WHERE id = $1`, id)
	task, err := scanAvatarTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrAvatarTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get avatar task: %w", MapError(err))
	}
	return task, nil
}

// FindStale implements store.AvatarTaskStore.FindStale.
func (s *PostgresAvatarTaskStore) FindStale(ctx context.Context, cutoff time.Time, limit int) ([]*domain.AvatarTask, error) {
	return s.queryAvatarTasks(ctx, `
		SELECT `+avatarColumns+` FROM avatar_tasks
		WHERE status = 'processing' AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2`, cutoff, limit)
}

// MarkAbandoned implements store.AvatarTaskStore.MarkAbandoned.
func (s *PostgresAvatarTaskStore) MarkAbandoned(ctx context.Context, id uuid.UUID, cutoff time.Time, errMsg string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE avatar_tasks SET status = 'failed', error = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'processing' AND updated_at < $3`,
		id, errMsg, cutoff)
	if err != nil {
		return false, fmt.Errorf("failed to mark avatar task abandoned: %w", MapError(err))
	}
	n, err := rowsAffected(result)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListClaimable implements store.AvatarTaskStore.ListClaimable, newest first.
func (s *PostgresAvatarTaskStore) ListClaimable(ctx context.Context, limit int) ([]uuid.UUID, error) {
	return queryIDs(ctx, s.db, `
		SELECT id FROM avatar_tasks
		WHERE status = 'pending'
		ORDER BY created_at DESC
		LIMIT $1`, limit)
}

// Claim implements store.AvatarTaskStore.Claim.
func (s *PostgresAvatarTaskStore) Claim(ctx context.Context, ids []uuid.UUID) ([]*domain.AvatarTask, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	locked, err := queryIDs(ctx, s.db, `
		SELECT id FROM avatar_tasks
		WHERE id = ANY($1::uuid[]) AND status = 'pending'
		FOR UPDATE SKIP LOCKED`, uuidStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to lock pending avatar tasks: %w", err)
	}
	if len(locked) == 0 {
		return nil, nil
	}

	tasks, err := s.queryAvatarTasks(ctx, `
		UPDATE avatar_tasks SET status = 'processing', error = NULL, updated_at = NOW()
		WHERE id = ANY($1::uuid[]) AND status = 'pending'
		RETURNING `+avatarColumns, uuidStrings(locked))
	if err != nil {
		return nil, fmt.Errorf("failed to claim avatar tasks: %w", err)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.After(tasks[j].CreatedAt) })
	return tasks, nil
}

// Touch implements store.AvatarTaskStore.Touch.
func (s *PostgresAvatarTaskStore) Touch(ctx context.Context, id uuid.UUID) error {
	return s.execProcessing(ctx, "touch",
		`UPDATE avatar_tasks SET updated_at = NOW() WHERE id = $1 AND status = 'processing'`, id)
}

// Complete implements store.AvatarTaskStore.Complete.
func (s *PostgresAvatarTaskStore) Complete(ctx context.Context, id uuid.UUID, imageURL string) error {
	return s.execProcessing(ctx, "complete", `
		UPDATE avatar_tasks SET status = 'completed', image_url = $2, error = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'`, id, imageURL)
}

// Fail implements store.AvatarTaskStore.Fail.
func (s *PostgresAvatarTaskStore) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	return s.execProcessing(ctx, "fail", `
		UPDATE avatar_tasks SET status = 'failed', error = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'`, id, errMsg)
}

func (s *PostgresAvatarTaskStore) execProcessing(ctx context.Context, op string, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return store.NewStoreError("avatar_task", op, "query failed", MapError(err))
	}
	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrTaskNoLongerProcessing
	}
	return nil
}

func (s *PostgresAvatarTaskStore) queryAvatarTasks(ctx context.Context, query string, args ...any) ([]*domain.AvatarTask, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query avatar tasks: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.AvatarTask
	for rows.Next() {
		task, err := scanAvatarTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan avatar task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func scanAvatarTask(row rowScanner) (*domain.AvatarTask, error) {
	var (
		t        domain.AvatarTask
		imageURL sql.NullString
		errMsg   sql.NullString
	)
	if err := row.Scan(&t.ID, &t.SummaryID, &t.UserID, &t.Status, &t.Credits,
		&imageURL, &errMsg, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.ImageURL = imageURL.String
	t.Error = errMsg.String
	return &t, nil
}
