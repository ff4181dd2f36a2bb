package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/recaphq/recap-api/internal/domain"
)

// BalanceCheck pairs a stored balance with the sum of its history.
type BalanceCheck struct {
	UserID     string
	Amount     int
	HistorySum int
}

// CreditStore persists credit accounts and their append-only history.
type CreditStore interface {
	// GetAccount returns the account or ErrAccountNotFound.
	GetAccount(ctx context.Context, userID string) (*domain.CreditAccount, error)

	// CreateAccount inserts an account with the given amount unless one
	// exists. It reports whether a row was inserted.
	CreateAccount(ctx context.Context, userID string, amount int) (bool, error)

	// Debit subtracts amount only if the balance covers it and reports whether it did.
	Debit(ctx context.Context, userID string, amount int) (bool, error)

	// Add increments the balance.
	Add(ctx context.Context, userID string, amount int) error

	// AppendEntry writes a history entry. A second refund for the same
	// task returns ErrDuplicate.
	AppendEntry(ctx context.Context, entry *domain.CreditEntry) error

	// FindEntry returns the entry of the given type linked to taskID or ErrEntryNotFound.
	FindEntry(ctx context.Context, taskID uuid.UUID, typ domain.EntryType) (*domain.CreditEntry, error)

	// ListEntries returns the user's history, newest first.
	ListEntries(ctx context.Context, userID string, limit int) ([]*domain.CreditEntry, error)

	// Balances returns every account with the sum of its history.
	Balances(ctx context.Context) ([]BalanceCheck, error)

	WithTx(tx *sql.Tx) CreditStore
}

// CouponStore records coupon redemptions.
type CouponStore interface {
	// HasRedeemed reports whether userID already used code.
	HasRedeemed(ctx context.Context, code, userID string) (bool, error)

	// HasType reports whether userID holds any redemption of typ.
	HasType(ctx context.Context, userID string, typ domain.CouponType) (bool, error)

	// Create inserts a redemption; a uniqueness conflict returns ErrRedemptionExists.
	Create(ctx context.Context, r *domain.CouponRedemption) error

	WithTx(tx *sql.Tx) CouponStore
}
