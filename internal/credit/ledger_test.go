package credit

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/recaphq/recap-api/internal/config"
	"github.com/recaphq/recap-api/internal/domain"
	"github.com/recaphq/recap-api/internal/platform/logger"
	"github.com/recaphq/recap-api/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedger(mem *testutils.MemStore) *Ledger {
	return NewLedger(mem, mem.Credits(), mem.Coupons(), Options{
		InitialGrant:     30,
		GrantDescription: WelcomeGrantDescription,
		CouponCredits:    10,
		CacheTTL:         time.Minute,
		CacheSize:        16,
	}, logger.Discard())
}

func debit(t *testing.T, l *Ledger, userID string, amount int, linked uuid.UUID) error {
	t.Helper()
	return l.Atomically(context.Background(), func(ctx context.Context, _ *sql.Tx, b *Ledger) error {
		return b.TryDebit(ctx, userID, amount, domain.EntryTaskCreation, "Created roast task for octocat", linked)
	})
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.CreditsConfig{FreeGrant: 30, DevFreeGrant: 300, CouponCredits: 10, CacheTTLSeconds: 60, CacheSize: 10}

	prod := OptionsFromConfig(cfg, config.ServerConfig{Environment: "production"})
	assert.Equal(t, 30, prod.InitialGrant)
	assert.Equal(t, WelcomeGrantDescription, prod.GrantDescription)
	assert.Equal(t, time.Minute, prod.CacheTTL)

	dev := OptionsFromConfig(cfg, config.ServerConfig{Environment: "development"})
	assert.Equal(t, 300, dev.InitialGrant)
	assert.Equal(t, DevGrantDescription, dev.GrantDescription)
}

func TestBalanceInitializesOnce(t *testing.T) {
	mem := testutils.NewMemStore()
	l := newLedger(mem)
	ctx := context.Background()

	balance, err := l.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 30, balance)

	balance, err = l.EnsureAccount(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 30, balance)

	entries := mem.Entries("user-1")
	require.Len(t, entries, 1)
	assert.Equal(t, domain.EntryInit, entries[0].Type)
	assert.Equal(t, WelcomeGrantDescription, entries[0].Description)
}

func TestTryDebit(t *testing.T) {
	mem := testutils.NewMemStore()
	mem.SetBalance("user-1", 10)
	l := newLedger(mem)
	taskID := uuid.New()

	require.NoError(t, debit(t, l, "user-1", 8, taskID))
	balance, _ := mem.Balance("user-1")
	assert.Equal(t, 2, balance)

	err := debit(t, l, "user-1", 8, uuid.New())
	assert.ErrorIs(t, err, domain.ErrInsufficientCredits)
	balance, _ = mem.Balance("user-1")
	assert.Equal(t, 2, balance, "failed debit must not change the balance")

	entries := mem.Entries("user-1")
	require.Len(t, entries, 2)
	assert.Equal(t, -8, entries[1].Amount)
	assert.Equal(t, taskID, *entries[1].TaskID)
}

func TestTryDebitRequiresTransaction(t *testing.T) {
	l := newLedger(testutils.NewMemStore())
	err := l.TryDebit(context.Background(), "user-1", 5, domain.EntryUse, "avatar", uuid.New())
	assert.ErrorIs(t, err, ErrNotInTransaction)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	mem := testutils.NewMemStore()
	mem.SetBalance("user-1", 20)
	l := newLedger(mem)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := debit(t, l, "user-1", 8, uuid.New()); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, succeeded)
	balance, _ := mem.Balance("user-1")
	assert.Equal(t, 4, balance)
}

func TestAtomicallyRollsBackDebit(t *testing.T) {
	mem := testutils.NewMemStore()
	mem.SetBalance("user-1", 10)
	l := newLedger(mem)
	insertErr := errors.New("insert failed")

	err := l.Atomically(context.Background(), func(ctx context.Context, _ *sql.Tx, b *Ledger) error {
		if err := b.TryDebit(ctx, "user-1", 5, domain.EntryTaskCreation, "Created sarcasm task", uuid.New()); err != nil {
			return err
		}
		return insertErr
	})

	assert.ErrorIs(t, err, insertErr)
	balance, _ := mem.Balance("user-1")
	assert.Equal(t, 10, balance)
}

func TestRefundFor(t *testing.T) {
	mem := testutils.NewMemStore()
	mem.SetBalance("user-1", 10)
	l := newLedger(mem)
	ctx := context.Background()
	taskID := uuid.New()

	require.NoError(t, debit(t, l, "user-1", 8, taskID))

	refunded, err := l.RefundFor(ctx, taskID, domain.EntryTaskCreation)
	require.NoError(t, err)
	assert.Equal(t, 8, refunded)

	refunded, err = l.RefundFor(ctx, taskID, domain.EntryTaskCreation)
	require.NoError(t, err)
	assert.Zero(t, refunded, "second refund must be a no-op")

	balance, _ := mem.Balance("user-1")
	assert.Equal(t, 10, balance)

	refunded, err = l.RefundFor(ctx, uuid.New(), domain.EntryTaskCreation)
	require.NoError(t, err)
	assert.Zero(t, refunded, "nothing debited, nothing refunded")
}

func TestRedeemCoupon(t *testing.T) {
	mem := testutils.NewMemStore()
	l := newLedger(mem)
	ctx := context.Background()

	balance, err := l.RedeemCoupon(ctx, "HELLO2025", "user-1")
	require.NoError(t, err)
	assert.Equal(t, 40, balance)

	_, err = l.RedeemCoupon(ctx, "HELLO2025", "user-1")
	assert.ErrorIs(t, err, domain.ErrCouponAlreadyUsed)

	_, err = l.RedeemCoupon(ctx, "ANOTHER", "user-1")
	assert.ErrorIs(t, err, domain.ErrCouponAlreadyUsed, "only one welcome coupon per user")

	balance, err = l.RedeemCoupon(ctx, "HELLO2025", "user-2")
	require.NoError(t, err)
	assert.Equal(t, 40, balance)

	current, _ := mem.Balance("user-1")
	assert.Equal(t, 40, current)
}

func TestConcurrentCouponRedemption(t *testing.T) {
	mem := testutils.NewMemStore()
	l := newLedger(mem)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for _, code := range []string{"A", "B", "C", "D"} {
		wg.Add(1)
		go func(code string) {
			defer wg.Done()
			if _, err := l.RedeemCoupon(context.Background(), code, "user-1"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(code)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	balance, _ := mem.Balance("user-1")
	assert.Equal(t, 40, balance)
}

func TestBalanceCacheInvalidatedByWrites(t *testing.T) {
	mem := testutils.NewMemStore()
	mem.SetBalance("user-1", 10)
	l := newLedger(mem)
	ctx := context.Background()

	balance, err := l.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 10, balance)

	require.NoError(t, debit(t, l, "user-1", 5, uuid.New()))

	balance, err = l.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 5, balance)
}

func TestReconcile(t *testing.T) {
	mem := testutils.NewMemStore()
	l := newLedger(mem)
	ctx := context.Background()
	taskID := uuid.New()

	_, err := l.Balance(ctx, "user-1")
	require.NoError(t, err)
	require.NoError(t, debit(t, l, "user-1", 8, taskID))
	_, err = l.RefundFor(ctx, taskID, domain.EntryTaskCreation)
	require.NoError(t, err)
	_, err = l.RedeemCoupon(ctx, "X", "user-1")
	require.NoError(t, err)
	require.NoError(t, l.Credit(ctx, "user-2", 3, domain.EntryCoupon, "manual", uuid.Nil))

	discrepancies, err := l.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, discrepancies)
}

func TestIsAdmin(t *testing.T) {
	mem := testutils.NewMemStore()
	mem.SetBalance("admin", 0)
	mem.SetAdmin("admin")
	l := newLedger(mem)

	ok, err := l.IsAdmin(context.Background(), "admin")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.IsAdmin(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDebitFor(t *testing.T) {
	mem := testutils.NewMemStore()
	mem.SetBalance("user-1", 10)
	l := newLedger(mem)
	taskID := uuid.New()
	require.NoError(t, debit(t, l, "user-1", 8, taskID))

	entry, err := l.DebitFor(context.Background(), taskID, domain.EntryTaskCreation)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, -8, entry.Amount)

	entry, err = l.DebitFor(context.Background(), uuid.New(), domain.EntryTaskCreation)
	require.NoError(t, err)
	assert.Nil(t, entry)
}
