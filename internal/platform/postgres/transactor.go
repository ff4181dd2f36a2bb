package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/recaphq/recap-api/internal/platform/logger"
	"github.com/recaphq/recap-api/internal/store"
	"github.com/sethvargo/go-retry"
)

// DefaultTxAttempts bounds how often a contended transaction is replayed.
const DefaultTxAttempts = 5

// RetryingTransactor runs functions in a transaction and replays the whole
// transaction when Postgres reports lock contention.
type RetryingTransactor struct {
	db       *sql.DB
	attempts uint64
	base     time.Duration
}

// NewRetryingTransactor returns a transactor on db with the default retry policy.
func NewRetryingTransactor(db *sql.DB) *RetryingTransactor {
	return &RetryingTransactor{db: db, attempts: DefaultTxAttempts, base: 20 * time.Millisecond}
}

var _ store.Transactor = (*RetryingTransactor)(nil)

// InTx implements store.Transactor. After the last failed attempt a
// contention error surfaces as store.ErrTransactionFailed.
func (t *RetryingTransactor) InTx(ctx context.Context, fn store.TxFn) error {
	log := logger.FromContext(ctx)

	backoff := retry.NewExponential(t.base)
	backoff = retry.WithJitterPercent(20, backoff)
	backoff = retry.WithMaxRetries(t.attempts-1, backoff)

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := store.RunInTransaction(ctx, t.db, fn)
		if err != nil && IsContention(err) {
			log.Warn("transaction hit contention, retrying",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			return retry.RetryableError(err)
		}
		return err
	})

	if err != nil && IsContention(err) {
		return fmt.Errorf("%w: gave up after %d attempts: %v", store.ErrTransactionFailed, attempt, err)
	}
	return err
}
