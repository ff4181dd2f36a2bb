package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/recaphq/recap-api/internal/domain"
	"github.com/recaphq/recap-api/internal/platform/logger"
	"github.com/recaphq/recap-api/internal/store"
)

// PostgresCreditStore implements store.CreditStore on credit_accounts and credit_history.
type PostgresCreditStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresCreditStore creates a credit store on a connection or transaction.
func NewPostgresCreditStore(db store.DBTX, logger *slog.Logger) *PostgresCreditStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresCreditStore{
		db:     db,
		logger: logger.With(slog.String("component", "credit_store")),
	}
}

var _ store.CreditStore = (*PostgresCreditStore)(nil)

// WithTx implements store.CreditStore.WithTx.
func (s *PostgresCreditStore) WithTx(tx *sql.Tx) store.CreditStore {
	return &PostgresCreditStore{db: tx, logger: s.logger}
}

// GetAccount implements store.CreditStore.GetAccount.
func (s *PostgresCreditStore) GetAccount(ctx context.Context, userID string) (*domain.CreditAccount, error) {
	var a domain.CreditAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, amount, is_admin, created_at, updated_at
		FROM credit_accounts WHERE user_id = $1`, userID).
		Scan(&a.UserID, &a.Amount, &a.IsAdmin, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credit account: %w", MapError(err))
	}
	return &a, nil
}

// CreateAccount implements store.CreditStore.CreateAccount.
func (s *PostgresCreditStore) CreateAccount(ctx context.Context, userID string, amount int) (bool, error) {
	var inserted string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO credit_accounts (user_id, amount)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING user_id`, userID, amount).Scan(&inserted)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create credit account: %w", MapError(err))
	}
	logger.FromContextOrDefault(ctx, s.logger).Info("credit account created",
		slog.String("user_id", userID),
		slog.Int("amount", amount))
	return true, nil
}

// Debit implements store.CreditStore.Debit.
func (s *PostgresCreditStore) Debit(ctx context.Context, userID string, amount int) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE credit_accounts SET amount = amount - $2, updated_at = NOW()
		WHERE user_id = $1 AND amount >= $2`, userID, amount)
	if err != nil {
		if IsCheckConstraintViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to debit credits: %w", MapError(err))
	}
	n, err := rowsAffected(result)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Add implements store.CreditStore.Add.
func (s *PostgresCreditStore) Add(ctx context.Context, userID string, amount int) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE credit_accounts SET amount = amount + $2, updated_at = NOW()
		WHERE user_id = $1`, userID, amount)
	if err != nil {
		return fmt.Errorf("failed to add credits: %w", MapError(err))
	}
	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrAccountNotFound
	}
	return nil
}

// AppendEntry implements store.CreditStore.AppendEntry.
func (s *PostgresCreditStore) AppendEntry(ctx context.Context, entry *domain.CreditEntry) error {
	var taskID any
	if entry.TaskID != nil {
		taskID = *entry.TaskID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credit_history (id, user_id, amount, type, description, task_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.UserID, entry.Amount, entry.Type, entry.Description, taskID, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append credit entry: %w", MapError(err))
	}
	return nil
}

// FindEntry implements store.CreditStore.FindEntry.
func (s *PostgresCreditStore) FindEntry(ctx context.Context, taskID uuid.UUID, typ domain.EntryType) (*domain.CreditEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, amount, type, description, task_id, created_at
		FROM credit_history
		WHERE task_id = $1 AND type = $2
		ORDER BY created_at ASC
		LIMIT 1`, taskID, typ)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find credit entry: %w", MapError(err))
	}
	return entry, nil
}

// ListEntries implements store.CreditStore.ListEntries.
func (s *PostgresCreditStore) ListEntries(ctx context.Context, userID string, limit int) ([]*domain.CreditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, amount, type, description, task_id, created_at
		FROM credit_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list credit entries: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var entries []*domain.CreditEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Balances implements store.CreditStore.Balances.
func (s *PostgresCreditStore) Balances(ctx context.Context) ([]store.BalanceCheck, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.user_id, a.amount, COALESCE(SUM(h.amount), 0)
		FROM credit_accounts a
		LEFT JOIN credit_history h ON h.user_id = a.user_id
		GROUP BY a.user_id, a.amount
		ORDER BY a.user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to compute balances: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var checks []store.BalanceCheck
	for rows.Next() {
		var c store.BalanceCheck
		if err := rows.Scan(&c.UserID, &c.Amount, &c.HistorySum); err != nil {
			return nil, err
		}
		checks = append(checks, c)
	}
	return checks, rows.Err()
}

func scanEntry(row rowScanner) (*domain.CreditEntry, error) {
	var (
		e      domain.CreditEntry
		taskID uuid.NullUUID
	)
	if err := row.Scan(&e.ID, &e.UserID, &e.Amount, &e.Type, &e.Description, &taskID, &e.CreatedAt); err != nil {
		return nil, err
	}
	if taskID.Valid {
		id := taskID.UUID
		e.TaskID = &id
	}
	return &e, nil
}

// PostgresCouponStore implements store.CouponStore on coupon_redemptions.
type PostgresCouponStore struct {
	db store.DBTX
}

// NewPostgresCouponStore creates a coupon store on a connection or transaction.
func NewPostgresCouponStore(db store.DBTX) *PostgresCouponStore {
	if db == nil {
		panic("db cannot be nil")
	}
	return &PostgresCouponStore{db: db}
}

var _ store.CouponStore = (*PostgresCouponStore)(nil)

// WithTx implements store.CouponStore.WithTx.
func (s *PostgresCouponStore) WithTx(tx *sql.Tx) store.CouponStore {
	return &PostgresCouponStore{db: tx}
}

// HasRedeemed implements store.CouponStore.HasRedeemed.
func (s *PostgresCouponStore) HasRedeemed(ctx context.Context, code, userID string) (bool, error) {
	return s.exists(ctx,
		`SELECT EXISTS (SELECT 1 FROM coupon_redemptions WHERE code = $1 AND user_id = $2)`, code, userID)
}

// HasType implements store.CouponStore.HasType.
func (s *PostgresCouponStore) HasType(ctx context.Context, userID string, typ domain.CouponType) (bool, error) {
	return s.exists(ctx,
		`SELECT EXISTS (SELECT 1 FROM coupon_redemptions WHERE user_id = $1 AND type = $2)`, userID, typ)
}

// Create implements store.CouponStore.Create.
func (s *PostgresCouponStore) Create(ctx context.Context, r *domain.CouponRedemption) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO coupon_redemptions (code, user_id, type, credits, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		r.Code, r.UserID, r.Type, r.Credits, r.CreatedAt)
	if IsUniqueViolation(err) {
		return fmt.Errorf("%w: %v", store.ErrRedemptionExists, err)
	}
	if err != nil {
		return fmt.Errorf("failed to record coupon redemption: %w", MapError(err))
	}
	return nil
}

func (s *PostgresCouponStore) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var ok bool
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to query coupon redemptions: %w", MapError(err))
	}
	return ok, nil
}
