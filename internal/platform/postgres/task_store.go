package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
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

const taskColumns = `id, user_id, platform, username, style, status, step,
	message, error, result, image_url, tokens_used, created_at, updated_at`

// PostgresTaskStore implements store.TaskStore on the tasks table.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a task store on a connection or transaction.
// If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

var _ store.TaskStore = (*PostgresTaskStore)(nil)

// WithTx implements store.TaskStore.WithTx.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{db: tx, logger: s.logger}
}

// Create implements store.TaskStore.Create.
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("task validation failed during create",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return err
	}

	query := `
		INSERT INTO tasks (id, user_id, platform, username, style, status, step, message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		nullString(task.UserID),
		task.Platform,
		task.Username,
		task.Style,
		task.Status,
		task.Step,
		nullString(task.Message),
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to insert task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return fmt.Errorf("failed to create task: %w", MapError(err))
	}
	return nil
}

// GetByID implements store.TaskStore.GetByID.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", MapError(err))
	}
	return task, nil
}

// ListByUser implements store.TaskStore.ListByUser.
func (s *PostgresTaskStore) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Task, error) {
	if userID == "" {
		return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC LIMIT $1`, limit)
	}
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit)
}

// FindStale implements store.TaskStore.FindStale.
func (s *PostgresTaskStore) FindStale(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Task, error) {
	return s.queryTasks(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE status = 'processing' AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2`,
		cutoff, limit)
}

// MarkAbandoned implements store.TaskStore.MarkAbandoned.
func (s *PostgresTaskStore) MarkAbandoned(ctx context.Context, id uuid.UUID, cutoff time.Time, errMsg string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = 'failed', message = $2, error = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'processing' AND updated_at < $4`,
		id, domain.MessageFailed, errMsg, cutoff)
	if err != nil {
		return false, fmt.Errorf("failed to mark task abandoned: %w", MapError(err))
	}
	n, err := rowsAffected(result)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListClaimable implements store.TaskStore.ListClaimable.
func (s *PostgresTaskStore) ListClaimable(ctx context.Context, limit int) ([]uuid.UUID, error) {
	return queryIDs(ctx, s.db, `
		SELECT id FROM tasks
		WHERE status = 'pending' AND COALESCE(error, '') = ''
		ORDER BY created_at ASC
		LIMIT $1`, limit)
}

// Claim implements store.TaskStore.Claim. Rows already locked by a
// concurrent claimer are skipped rather than waited on.
func (s *PostgresTaskStore) Claim(ctx context.Context, ids []uuid.UUID) ([]*domain.Task, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	log := logger.FromContextOrDefault(ctx, s.logger)

	locked, err := queryIDs(ctx, s.db, `
		SELECT id FROM tasks
		WHERE id = ANY($1::uuid[]) AND status = 'pending'
		ORDER BY created_at ASC
		FOR UPDATE SKIP LOCKED`, uuidStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to lock pending tasks: %w", err)
	}
	if len(locked) == 0 {
		return nil, nil
	}

	tasks, err := s.queryTasks(ctx, `
		UPDATE tasks
		SET status = 'processing', step = 'queued', message = $2, error = NULL, updated_at = NOW()
		WHERE id = ANY($1::uuid[]) AND status = 'pending'
		RETURNING `+taskColumns,
		uuidStrings(locked), domain.MessageQueued)
	if err != nil {
		return nil, fmt.Errorf("failed to claim tasks: %w", err)
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })
	log.Debug("claimed tasks",
		slog.Int("requested", len(ids)),
		slog.Int("claimed", len(tasks)))
	return tasks, nil
}

// UpdateStep implements store.TaskStore.UpdateStep.
func (s *PostgresTaskStore) UpdateStep(ctx context.Context, id uuid.UUID, step domain.Step, message string) error {
	return s.execProcessing(ctx, "update step", `
		UPDATE tasks SET step = $2, message = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'`,
		id, step, message)
}

// Complete implements store.TaskStore.Complete.
func (s *PostgresTaskStore) Complete(
	ctx context.Context,
	id uuid.UUID,
	result *domain.SummaryResult,
	imageURL string,
	tokens int,
) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode task result: %w", err)
	}
	return s.execProcessing(ctx, "complete", `
		UPDATE tasks
		SET status = 'completed', step = 'done', message = NULL, error = NULL,
			result = $2, image_url = $3, tokens_used = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'`,
		id, payload, nullString(imageURL), tokens)
}

// Fail implements store.TaskStore.Fail.
func (s *PostgresTaskStore) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	return s.execProcessing(ctx, "fail", `
		UPDATE tasks SET status = 'failed', message = $2, error = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'`,
		id, domain.MessageFailed, errMsg)
}

// ResetToPending implements store.TaskStore.ResetToPending.
func (s *PostgresTaskStore) ResetToPending(ctx context.Context, id uuid.UUID, message string) error {
	return s.execProcessing(ctx, "reset", `
		UPDATE tasks SET status = 'pending', step = 'queued', message = $2, error = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'`,
		id, message)
}

// CountPendingBefore implements store.TaskStore.CountPendingBefore.
func (s *PostgresTaskStore) CountPendingBefore(ctx context.Context, t time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE status = 'pending' AND created_at < $1`, t).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending tasks: %w", MapError(err))
	}
	return n, nil
}

// ListProcessing implements store.TaskStore.ListProcessing.
func (s *PostgresTaskStore) ListProcessing(ctx context.Context) ([]*domain.Task, error) {
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE status = 'processing' ORDER BY created_at ASC`)
}

// SetAvatarURL implements store.TaskStore.SetAvatarURL.
func (s *PostgresTaskStore) SetAvatarURL(ctx context.Context, id uuid.UUID, url string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET result = jsonb_set(COALESCE(result, '{}'::jsonb), '{avatarUrl}', to_jsonb($2::text)),
			updated_at = NOW()
		WHERE id = $1`,
		id, url)
	if err != nil {
		return fmt.Errorf("failed to set avatar url: %w", MapError(err))
	}
	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrTaskNotFound
	}
	return nil
}

func (s *PostgresTaskStore) execProcessing(ctx context.Context, op string, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("task write failed",
			slog.String("operation", op),
			slog.String("error", err.Error()))
		return store.NewStoreError("task", op, "query failed", MapError(err))
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

func (s *PostgresTaskStore) queryTasks(ctx context.Context, query string, args ...any) ([]*domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	return tasks, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		t        domain.Task
		userID   sql.NullString
		message  sql.NullString
		errMsg   sql.NullString
		result   []byte
		imageURL sql.NullString
	)
	err := row.Scan(
		&t.ID, &userID, &t.Platform, &t.Username, &t.Style, &t.Status, &t.Step,
		&message, &errMsg, &result, &imageURL, &t.TokensUsed, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.UserID = userID.String
	t.Message = message.String
	t.Error = errMsg.String
	t.ImageURL = imageURL.String
	if len(result) > 0 {
		var r domain.SummaryResult
		if err := json.Unmarshal(result, &r); err != nil {
			return nil, fmt.Errorf("failed to decode task result: %w", err)
		}
		t.Result = &r
	}
	return &t, nil
}

func queryIDs(ctx context.Context, db store.DBTX, query string, args ...any) ([]uuid.UUID, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
