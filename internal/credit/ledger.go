// Package credit implements the per-user credit ledger: a cached balance
// backed by an append-only history, with conditional debits, idempotent
// refunds and welcome-coupon redemption.
package credit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/recaphq/recap-api/internal/config"
	"github.com/recaphq/recap-api/internal/domain"
	"github.com/recaphq/recap-api/internal/platform/logger"
	"github.com/recaphq/recap-api/internal/store"
)

// ErrNotInTransaction is returned when a debit is attempted outside Atomically.
var ErrNotInTransaction = errors.New("credit debit requires a transaction")

// Initial grant descriptions.
const (
	DevGrantDescription     = "Development mode initial credits"
	WelcomeGrantDescription = "Welcome bonus credits"
)

// Options configure a Ledger.
type Options struct {
	// InitialGrant is credited when an account is first created.
	InitialGrant     int
	GrantDescription string
	CouponCredits    int
	CacheTTL         time.Duration
	CacheSize        int
}

// OptionsFromConfig derives ledger options from configuration.
func OptionsFromConfig(cfg config.CreditsConfig, server config.ServerConfig) Options {
	opts := Options{
		InitialGrant:     cfg.FreeGrant,
		GrantDescription: WelcomeGrantDescription,
		CouponCredits:    cfg.CouponCredits,
		CacheTTL:         time.Duration(cfg.CacheTTLSeconds) * time.Second,
		CacheSize:        cfg.CacheSize,
	}
	if server.IsDevelopment() {
		opts.InitialGrant = cfg.DevFreeGrant
		opts.GrantDescription = DevGrantDescription
	}
	return opts
}

// Discrepancy is an account whose balance disagrees with its history.
type Discrepancy struct {
	UserID     string `json:"userId"`
	Amount     int    `json:"amount"`
	HistorySum int    `json:"historySum"`
}

// Ledger owns every balance mutation. A Ledger returned by NewLedger reads
// through a short-lived cache; the transaction-bound Ledger handed to
// Atomically callbacks never consults it.
type Ledger struct {
	transactor store.Transactor
	accounts   store.CreditStore
	coupons    store.CouponStore
	cache      *expirable.LRU[string, int]
	opts       Options
	logger     *slog.Logger

	// set on transaction-bound ledgers only
	touched *touchedSet
}

type touchedSet struct {
	mu    sync.Mutex
	users map[string]struct{}
}

func (t *touchedSet) add(userID string) {
	t.mu.Lock()
	t.users[userID] = struct{}{}
	t.mu.Unlock()
}

// NewLedger creates a ledger.
func NewLedger(
	transactor store.Transactor,
	accounts store.CreditStore,
	coupons store.CouponStore,
	opts Options,
	logger *slog.Logger,
) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 4096
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Minute
	}
	return &Ledger{
		transactor: transactor,
		accounts:   accounts,
		coupons:    coupons,
		cache:      expirable.NewLRU[string, int](opts.CacheSize, nil, opts.CacheTTL),
		opts:       opts,
		logger:     logger.With(slog.String("component", "credit_ledger")),
	}
}

func (l *Ledger) bound() bool { return l.touched != nil }

func (l *Ledger) bind(tx *sql.Tx, touched *touchedSet) *Ledger {
	return &Ledger{
		transactor: l.transactor,
		accounts:   l.accounts.WithTx(tx),
		coupons:    l.coupons.WithTx(tx),
		opts:       l.opts,
		logger:     l.logger,
		touched:    touched,
	}
}

// Atomically runs fn in one transaction with a ledger bound to it. Cached
// balances of every user the callback touched are dropped afterwards,
// whether or not the transaction committed.
func (l *Ledger) Atomically(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx, ledger *Ledger) error) error {
	if l.bound() {
		return fmt.Errorf("nested ledger transaction")
	}
	touched := &touchedSet{users: map[string]struct{}{}}
	err := l.transactor.InTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, tx, l.bind(tx, touched))
	})
	for userID := range touched.users {
		l.cache.Remove(userID)
	}
	return err
}

// run executes fn on a bound ledger, opening a transaction when l is not bound.
func (l *Ledger) run(ctx context.Context, fn func(b *Ledger) error) error {
	if l.bound() {
		return fn(l)
	}
	return l.Atomically(ctx, func(ctx context.Context, _ *sql.Tx, b *Ledger) error {
		return fn(b)
	})
}

// Invalidate drops the cached balance of userID.
func (l *Ledger) Invalidate(userID string) {
	if l.cache != nil {
		l.cache.Remove(userID)
	}
}

// Balance returns the user's balance, creating the account with the
// initial grant when it does not exist yet.
func (l *Ledger) Balance(ctx context.Context, userID string) (int, error) {
	if !l.bound() {
		if amount, ok := l.cache.Get(userID); ok {
			return amount, nil
		}
	}

	account, err := l.accounts.GetAccount(ctx, userID)
	if errors.Is(err, store.ErrAccountNotFound) {
		return l.EnsureAccount(ctx, userID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	if !l.bound() {
		l.cache.Add(userID, account.Amount)
	}
	return account.Amount, nil
}

// EnsureAccount creates the account if missing and returns the current
// balance. It always reads from the store.
func (l *Ledger) EnsureAccount(ctx context.Context, userID string) (int, error) {
	var amount int
	err := l.run(ctx, func(b *Ledger) error {
		if err := b.ensure(ctx, userID); err != nil {
			return err
		}
		account, err := b.accounts.GetAccount(ctx, userID)
		if err != nil {
			return err
		}
		amount = account.Amount
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to initialize credit account: %w", err)
	}
	if !l.bound() {
		l.cache.Add(userID, amount)
	}
	return amount, nil
}

func (l *Ledger) ensure(ctx context.Context, userID string) error {
	created, err := l.accounts.CreateAccount(ctx, userID, l.opts.InitialGrant)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}
	l.touched.add(userID)
	logger.FromContextOrDefault(ctx, l.logger).Info("granted initial credits",
		slog.String("user_id", userID),
		slog.Int("amount", l.opts.InitialGrant))
	entry := domain.NewCreditEntry(userID, l.opts.InitialGrant, domain.EntryInit, l.opts.GrantDescription, uuid.Nil)
	return l.accounts.AppendEntry(ctx, entry)
}

// IsAdmin reports whether the user's account carries the admin flag.
func (l *Ledger) IsAdmin(ctx context.Context, userID string) (bool, error) {
	account, err := l.accounts.GetAccount(ctx, userID)
	if errors.Is(err, store.ErrAccountNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return account.IsAdmin, nil
}

// TryDebit subtracts amount if the balance covers it and records a history
// entry linked to linkedID. It only works on a transaction-bound ledger so
// the debit commits or rolls back together with the write it pays for.
func (l *Ledger) TryDebit(
	ctx context.Context,
	userID string,
	amount int,
	typ domain.EntryType,
	description string,
	linkedID uuid.UUID,
) error {
	if !l.bound() {
		return ErrNotInTransaction
	}
	if amount <= 0 {
		return nil
	}
	if err := l.ensure(ctx, userID); err != nil {
		return err
	}

	ok, err := l.accounts.Debit(ctx, userID, amount)
	if err != nil {
		return fmt.Errorf("failed to debit credits: %w", err)
	}
	if !ok {
		return domain.ErrInsufficientCredits
	}
	l.touched.add(userID)

	return l.accounts.AppendEntry(ctx, domain.NewCreditEntry(userID, -amount, typ, description, linkedID))
}

// Credit adds amount and records a history entry.
func (l *Ledger) Credit(
	ctx context.Context,
	userID string,
	amount int,
	typ domain.EntryType,
	description string,
	linkedID uuid.UUID,
) error {
	return l.run(ctx, func(b *Ledger) error {
		if err := b.ensure(ctx, userID); err != nil {
			return err
		}
		if err := b.accounts.Add(ctx, userID, amount); err != nil {
			return fmt.Errorf("failed to credit account: %w", err)
		}
		b.touched.add(userID)
		return b.accounts.AppendEntry(ctx, domain.NewCreditEntry(userID, amount, typ, description, linkedID))
	})
}

// RefundFor returns the credits debited for linkedID under debitType. It
// is a no-op when nothing was debited or a refund already exists, and
// reports the refunded amount.
func (l *Ledger) RefundFor(ctx context.Context, linkedID uuid.UUID, debitType domain.EntryType) (int, error) {
	var refunded int
	err := l.run(ctx, func(b *Ledger) error {
		if _, err := b.accounts.FindEntry(ctx, linkedID, domain.EntryRefund); err == nil {
			return nil
		} else if !errors.Is(err, store.ErrEntryNotFound) {
			return err
		}

		debit, err := b.accounts.FindEntry(ctx, linkedID, debitType)
		if errors.Is(err, store.ErrEntryNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		amount := debit.Amount
		if amount < 0 {
			amount = -amount
		}
		if amount == 0 {
			return nil
		}

		entry := domain.NewCreditEntry(debit.UserID, amount, domain.EntryRefund,
			fmt.Sprintf("Refund for failed task %s", linkedID), linkedID)
		if err := b.accounts.AppendEntry(ctx, entry); err != nil {
			return fmt.Errorf("failed to record refund: %w", err)
		}
		if err := b.accounts.Add(ctx, debit.UserID, amount); err != nil {
			return fmt.Errorf("failed to apply refund: %w", err)
		}
		b.touched.add(debit.UserID)
		refunded = amount
		return nil
	})
	if err != nil {
		return 0, err
	}
	if refunded > 0 {
		logger.FromContextOrDefault(ctx, l.logger).Info("refunded credits",
			slog.String("task_id", linkedID.String()),
			slog.Int("amount", refunded))
	}
	return refunded, nil
}

// RedeemCoupon credits the welcome coupon amount to userID. A code the user
// already redeemed, or any second welcome coupon, fails with
// domain.ErrCouponAlreadyUsed. It returns the new balance.
func (l *Ledger) RedeemCoupon(ctx context.Context, code, userID string) (int, error) {
	var balance int
	err := l.run(ctx, func(b *Ledger) error {
		if err := b.ensure(ctx, userID); err != nil {
			return err
		}

		used, err := b.coupons.HasRedeemed(ctx, code, userID)
		if err != nil {
			return err
		}
		if used {
			return domain.ErrCouponAlreadyUsed
		}
		hasWelcome, err := b.coupons.HasType(ctx, userID, domain.CouponWelcome)
		if err != nil {
			return err
		}
		if hasWelcome {
			return domain.ErrCouponAlreadyUsed
		}

		redemption := &domain.CouponRedemption{
			Code:      code,
			UserID:    userID,
			Type:      domain.CouponWelcome,
			Credits:   b.opts.CouponCredits,
			CreatedAt: time.Now().UTC(),
		}
		if err := b.coupons.Create(ctx, redemption); err != nil {
			if store.IsDuplicateError(err) {
				return domain.ErrCouponAlreadyUsed
			}
			return err
		}

		if err := b.accounts.Add(ctx, userID, b.opts.CouponCredits); err != nil {
			return err
		}
		b.touched.add(userID)
		entry := domain.NewCreditEntry(userID, b.opts.CouponCredits, domain.EntryCoupon,
			fmt.Sprintf("Welcome coupon: %s", code), uuid.Nil)
		if err := b.accounts.AppendEntry(ctx, entry); err != nil {
			return err
		}

		account, err := b.accounts.GetAccount(ctx, userID)
		if err != nil {
			return err
		}
		balance = account.Amount
		return nil
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// DebitFor returns the debit entry linked to a task, or nil when the task was free.
func (l *Ledger) DebitFor(ctx context.Context, linkedID uuid.UUID, debitType domain.EntryType) (*domain.CreditEntry, error) {
	entry, err := l.accounts.FindEntry(ctx, linkedID, debitType)
	if errors.Is(err, store.ErrEntryNotFound) {
		return nil, nil
	}
	return entry, err
}

// CouponCredits is the amount one welcome coupon grants.
func (l *Ledger) CouponCredits() int { return l.opts.CouponCredits }

// History returns the user's most recent history entries.
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]*domain.CreditEntry, error) {
	return l.accounts.ListEntries(ctx, userID, limit)
}

// Reconcile recomputes every balance from history and returns the accounts
// that disagree.
func (l *Ledger) Reconcile(ctx context.Context) ([]Discrepancy, error) {
	checks, err := l.accounts.Balances(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load balances: %w", err)
	}
	var out []Discrepancy
	for _, c := range checks {
		if c.Amount != c.HistorySum {
			out = append(out, Discrepancy{UserID: c.UserID, Amount: c.Amount, HistorySum: c.HistorySum})
		}
	}
	return out, nil
}
