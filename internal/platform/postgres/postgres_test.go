package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/recaphq/recap-api/internal/domain"
	"github.com/recaphq/recap-api/internal/platform/logger"
	"github.com/recaphq/recap-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// arrayConverter lets uuid arrays through the mock driver the way pgx accepts them.
type arrayConverter struct{}

func (arrayConverter) ConvertValue(v any) (driver.Value, error) {
	if s, ok := v.([]string); ok {
		return s, nil
	}
	return driver.DefaultParameterConverter.ConvertValue(v)
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(arrayConverter{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

var taskColumnNames = []string{
	"id", "user_id", "platform", "username", "style", "status", "step",
	"message", "error", "result", "image_url", "tokens_used", "created_at", "updated_at",
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", sql.ErrNoRows, store.ErrNotFound},
		{"unique", &pgconn.PgError{Code: uniqueViolationCode}, store.ErrDuplicate},
		{"check", &pgconn.PgError{Code: checkViolationCode, ConstraintName: "credit_accounts_amount_check"}, store.ErrInvalidEntity},
		{"foreign key", &pgconn.PgError{Code: foreignKeyViolationCode}, store.ErrInvalidEntity},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, MapError(tc.err), tc.want)
		})
	}

	assert.Nil(t, MapError(nil))
	plain := errors.New("plain")
	assert.Equal(t, plain, MapError(plain))
}

func TestIsContention(t *testing.T) {
	for _, code := range []string{"40001", "40P01", "55P03", "53300"} {
		assert.True(t, IsContention(&pgconn.PgError{Code: code}), code)
	}
	assert.False(t, IsContention(&pgconn.PgError{Code: uniqueViolationCode}))
	assert.False(t, IsContention(errors.New("connection reset")))
}

func TestRetryingTransactorRetriesContention(t *testing.T) {
	db, mock := newMock(t)
	tr := &RetryingTransactor{db: db, attempts: 3, base: time.Millisecond}

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	calls := 0
	err := tr.InTx(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		calls++
		if calls == 1 {
			return &pgconn.PgError{Code: serializationFailureCode}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetryingTransactorGivesUp(t *testing.T) {
	db, mock := newMock(t)
	tr := &RetryingTransactor{db: db, attempts: 2, base: time.Millisecond}

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}

	err := tr.InTx(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		return &pgconn.PgError{Code: deadlockDetectedCode}
	})

	assert.ErrorIs(t, err, store.ErrTransactionFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetryingTransactorDoesNotRetryOtherErrors(t *testing.T) {
	db, mock := newMock(t)
	tr := NewRetryingTransactor(db)

	mock.ExpectBegin()
	mock.ExpectRollback()

	calls := 0
	err := tr.InTx(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		calls++
		return domain.ErrInsufficientCredits
	})

	assert.ErrorIs(t, err, domain.ErrInsufficientCredits)
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskStoreClaimSkipsLockedRows(t *testing.T) {
	db, mock := newMock(t)
	s := NewPostgresTaskStore(db, logger.Discard())

	first, second := uuid.New(), uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id FROM tasks WHERE id = ANY\(\$1::uuid\[\]\) AND status = 'pending' ORDER BY created_at ASC FOR UPDATE SKIP LOCKED`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(first.String()))
	mock.ExpectQuery(`UPDATE tasks SET status = 'processing', step = 'queued'`).
		WithArgs([]string{first.String()}, domain.MessageQueued).
		WillReturnRows(sqlmock.NewRows(taskColumnNames).AddRow(
			first.String(), "user-1", "github", "octocat", "roast", "processing", "queued",
			domain.MessageQueued, nil, nil, nil, 0, now, now))

	tasks, err := s.Claim(context.Background(), []uuid.UUID{first, second})

	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, first, tasks[0].ID)
	assert.Equal(t, domain.TaskStatusProcessing, tasks[0].Status)
	assert.Nil(t, tasks[0].Result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskStoreClaimNothingLocked(t *testing.T) {
	db, mock := newMock(t)
	s := NewPostgresTaskStore(db, logger.Discard())

	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	tasks, err := s.Claim(context.Background(), []uuid.UUID{uuid.New()})
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskStoreConditionalWrites(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name  string
		query string
		call  func(s *PostgresTaskStore) error
	}{
		{"update step", `UPDATE tasks SET step = \$2`, func(s *PostgresTaskStore) error {
			return s.UpdateStep(context.Background(), id, domain.StepFetchData, domain.MessageFetching)
		}},
		{"fail", `UPDATE tasks SET status = 'failed'`, func(s *PostgresTaskStore) error {
			return s.Fail(context.Background(), id, "boom")
		}},
		{"reset", `UPDATE tasks SET status = 'pending'`, func(s *PostgresTaskStore) error {
			return s.ResetToPending(context.Background(), id, domain.MessageAwaitingRetry)
		}},
		{"complete", `UPDATE tasks SET status = 'completed'`, func(s *PostgresTaskStore) error {
			return s.Complete(context.Background(), id, &domain.SummaryResult{}, "https://img/x.png", 10)
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMock(t)
			s := NewPostgresTaskStore(db, logger.Discard())

			mock.ExpectExec(tc.query).WillReturnResult(sqlmock.NewResult(0, 0))
			assert.ErrorIs(t, tc.call(s), domain.ErrTaskNoLongerProcessing)

			mock.ExpectExec(tc.query).WillReturnResult(sqlmock.NewResult(0, 1))
			assert.NoError(t, tc.call(s))

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTaskStoreGetByIDNotFound(t *testing.T) {
	db, mock := newMock(t)
	s := NewPostgresTaskStore(db, nil)

	mock.ExpectQuery(`FROM tasks WHERE id = \$1`).WillReturnError(sql.ErrNoRows)

	_, err := s.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestTaskStoreDecodesResult(t *testing.T) {
	db, mock := newMock(t)
	s := NewPostgresTaskStore(db, nil)
	id := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`FROM tasks WHERE id = \$1`).WillReturnRows(sqlmock.NewRows(taskColumnNames).AddRow(
		id.String(), nil, "github", "octocat", "praise", "completed", "done",
		nil, nil, []byte(`{"userName":"octocat","topKey":"builder","avatarUrl":"https://a/b.png"}`),
		"https://img/x.png", 120, now, now))

	task, err := s.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, task.UserID)
	require.NotNil(t, task.Result)
	assert.Equal(t, "octocat", task.Result.Username)
	assert.Equal(t, "builder", task.Result.KeyPhrase)
	assert.Equal(t, "https://a/b.png", task.Result.AvatarURL)
	assert.Equal(t, 120, task.TokensUsed)
}

func TestTaskStoreSetAvatarURLUsesJSONBSet(t *testing.T) {
	db, mock := newMock(t)
	s := NewPostgresTaskStore(db, nil)
	id := uuid.New()

	mock.ExpectExec(`jsonb_set\(COALESCE\(result, '\{\}'::jsonb\), '\{avatarUrl\}'`).
		WithArgs(id, "https://cdn/avatar.png").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.SetAvatarURL(context.Background(), id, "https://cdn/avatar.png"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditStoreDebitAndCreate(t *testing.T) {
	db, mock := newMock(t)
	s := NewPostgresCreditStore(db, logger.Discard())
	ctx := context.Background()

	mock.ExpectExec(`UPDATE credit_accounts SET amount = amount - \$2.*AND amount >= \$2`).
		WithArgs("user-1", 8).
		WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err := s.Debit(ctx, "user-1", 8)
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectQuery(`INSERT INTO credit_accounts .* ON CONFLICT \(user_id\) DO NOTHING`).
		WithArgs("user-1", 30).
		WillReturnError(sql.ErrNoRows)
	created, err := s.CreateAccount(ctx, "user-1", 30)
	require.NoError(t, err)
	assert.False(t, created)

	mock.ExpectQuery(`INSERT INTO credit_accounts`).
		WithArgs("user-2", 30).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("user-2"))
	created, err = s.CreateAccount(ctx, "user-2", 30)
	require.NoError(t, err)
	assert.True(t, created)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditStoreDuplicateRefund(t *testing.T) {
	db, mock := newMock(t)
	s := NewPostgresCreditStore(db, nil)

	mock.ExpectExec(`INSERT INTO credit_history`).
		WillReturnError(&pgconn.PgError{Code: uniqueViolationCode, ConstraintName: "uq_credit_history_refund_task"})

	entry := domain.NewCreditEntry("user-1", 8, domain.EntryRefund, "Refund for failed task", uuid.New())
	err := s.AppendEntry(context.Background(), entry)
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestCouponStoreCreateConflict(t *testing.T) {
	db, mock := newMock(t)
	s := NewPostgresCouponStore(db)

	mock.ExpectExec(`INSERT INTO coupon_redemptions`).
		WillReturnError(&pgconn.PgError{Code: uniqueViolationCode})

	err := s.Create(context.Background(), &domain.CouponRedemption{
		Code: "HELLO", UserID: "user-1", Type: domain.CouponWelcome, Credits: 10, CreatedAt: time.Now(),
	})
	assert.ErrorIs(t, err, store.ErrRedemptionExists)
	assert.True(t, store.IsDuplicateError(err))
}

func TestMigrationFilesEmbedded(t *testing.T) {
	files, err := MigrationFiles()
	require.NoError(t, err)
	assert.Len(t, files, 3)
	assert.Contains(t, files[0], "create_credit_tables")
}
