package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/recaphq/recap-api/internal/config"
	"github.com/recaphq/recap-api/internal/credit"
	"github.com/recaphq/recap-api/internal/domain"
	"github.com/recaphq/recap-api/internal/generation"
	"github.com/recaphq/recap-api/internal/platform"
	"github.com/recaphq/recap-api/internal/platform/logger"
	"github.com/recaphq/recap-api/internal/redact"
	"github.com/recaphq/recap-api/internal/render"
	"github.com/recaphq/recap-api/internal/storage"
	"github.com/recaphq/recap-api/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "github.com/recaphq/recap-api/internal/task"

	// staleSweepLimit bounds the rows one sweep fails.
	staleSweepLimit = 50

	// settleTimeout bounds the writes that settle a task after its budget ran out.
	settleTimeout = 10 * time.Second
)

// Config controls one processor invocation.
type Config struct {
	BatchSize   int
	Budget      time.Duration
	MinTaskTime time.Duration
	StaleAfter  time.Duration
}

// ConfigFrom converts processor configuration.
func ConfigFrom(cfg config.ProcessorConfig) Config {
	return Config{
		BatchSize:   cfg.BatchSize,
		Budget:      time.Duration(cfg.BudgetSeconds) * time.Second,
		MinTaskTime: time.Duration(cfg.MinTaskTimeSeconds) * time.Second,
		StaleAfter:  time.Duration(cfg.StaleAfterMinutes) * time.Minute,
	}
}

// Deps are the collaborators of a Processor.
type Deps struct {
	Tasks      store.TaskStore
	Transactor store.Transactor
	Ledger     *credit.Ledger
	Adapters   platform.Registry
	Generator  generation.ContentGenerator
	Renderer   render.Renderer
	Uploader   storage.Uploader
	Metrics    *Metrics
}

// Processor executes pending summary tasks.
type Processor struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewProcessor validates its dependencies and returns a Processor.
func NewProcessor(deps Deps, cfg Config, logger *slog.Logger) (*Processor, error) {
	switch {
	case deps.Tasks == nil:
		return nil, errors.New("task store cannot be nil")
	case deps.Transactor == nil:
		return nil, errors.New("transactor cannot be nil")
	case deps.Ledger == nil:
		return nil, errors.New("credit ledger cannot be nil")
	case deps.Generator == nil:
		return nil, errors.New("content generator cannot be nil")
	case deps.Renderer == nil:
		return nil, errors.New("renderer cannot be nil")
	case deps.Uploader == nil:
		return nil, errors.New("uploader cannot be nil")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 2
	}
	if cfg.Budget <= 0 {
		cfg.Budget = 180 * time.Second
	}
	if cfg.MinTaskTime <= 0 {
		cfg.MinTaskTime = 30 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		deps:   deps,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "task_processor")),
		tracer: otel.Tracer(tracerName),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// RunBatch sweeps, claims and executes one batch. Errors before the claim
// are returned; everything after it ends up in task state and the result.
func (p *Processor) RunBatch(ctx context.Context) (*BatchResult, error) {
	start := p.now()
	ctx, span := p.tracer.Start(ctx, "task.batch")
	defer span.End()

	log := logger.FromContextOrDefault(ctx, p.logger)

	if err := p.sweep(ctx); err != nil {
		span.SetStatus(codes.Error, "sweep failed")
		return nil, err
	}

	claimed, err := p.claim(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "claim failed")
		return nil, err
	}
	p.deps.Metrics.ObserveBatch(KindSummary, len(claimed))
	span.SetAttributes(attribute.Int("tasks.claimed", len(claimed)))

	result := &BatchResult{Processed: len(claimed), Details: []Detail{}}
	deadline := start.Add(p.cfg.Budget)
	budgetCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	for _, t := range claimed {
		if deadline.Sub(p.now()) < p.cfg.MinTaskTime {
			p.settle(ctx, t, domain.MessageAwaitingProcess)
			result.Record(t.ID, OutcomeSkipped, "")
			p.deps.Metrics.ObserveTask(KindSummary, OutcomeSkipped)
			continue
		}
		outcome, errMsg := p.execute(budgetCtx, t)
		result.Record(t.ID, outcome, errMsg)
		p.deps.Metrics.ObserveTask(KindSummary, outcome)
	}

	result.Elapsed = p.now().Sub(start)
	log.InfoContext(ctx, "task batch finished",
		slog.Int("processed", result.Processed),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed),
		slog.Int("skipped", result.Skipped),
		slog.Duration("elapsed", result.Elapsed))
	return result, nil
}

// sweep fails processing tasks nobody has touched within StaleAfter and
// refunds them. A task that fails to settle is left for the next sweep.
func (p *Processor) sweep(ctx context.Context) error {
	cutoff := p.now().Add(-p.cfg.StaleAfter)
	stale, err := p.deps.Tasks.FindStale(ctx, cutoff, staleSweepLimit)
	if err != nil {
		return fmt.Errorf("failed to find stale tasks: %w", err)
	}

	for _, t := range stale {
		var refunded int
		err := p.deps.Ledger.Atomically(ctx, func(ctx context.Context, tx *sql.Tx, ledger *credit.Ledger) error {
			changed, err := p.deps.Tasks.WithTx(tx).MarkAbandoned(ctx, t.ID, cutoff, domain.ErrStaleAbandoned.Error())
			if err != nil || !changed {
				return err
			}
			refunded, err = ledger.RefundFor(ctx, t.ID, domain.EntryTaskCreation)
			return err
		})
		if err != nil {
			p.logger.ErrorContext(ctx, "failed to reap stale task",
				slog.String("task_id", t.ID.String()),
				slog.String("error", redact.Error(err)))
			continue
		}
		p.deps.Metrics.IncStaleReaped(KindSummary)
		if refunded > 0 {
			p.deps.Metrics.IncRefund(KindSummary)
		}
		p.logger.WarnContext(ctx, "stale task abandoned",
			slog.String("task_id", t.ID.String()),
			slog.Time("updated_at", t.UpdatedAt),
			slog.Int("refunded", refunded))
	}
	return nil
}

// claim moves up to BatchSize pending tasks to processing. Rows another
// worker holds are skipped rather than waited for.
func (p *Processor) claim(ctx context.Context) ([]*domain.Task, error) {
	ids, err := p.deps.Tasks.ListClaimable(ctx, p.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending tasks: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var claimed []*domain.Task
	err = p.deps.Transactor.InTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		claimed, err = p.deps.Tasks.WithTx(tx).Claim(ctx, ids)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim tasks: %w", err)
	}
	return claimed, nil
}

// execute races the pipeline against the budget and settles the task.
func (p *Processor) execute(ctx context.Context, t *domain.Task) (string, string) {
	log := p.logger.With(
		slog.String("task_id", t.ID.String()),
		slog.String("platform", string(t.Platform)),
		slog.String("username", t.Username))

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("pipeline panic: %v", r)
			}
		}()
		done <- p.pipeline(ctx, t)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	if err == nil {
		log.InfoContext(ctx, "task completed")
		return OutcomeSuccess, ""
	}

	// an expired budget wins over whatever the pipeline reported afterwards
	if ctx.Err() != nil {
		log.WarnContext(ctx, "task budget expired, returning to queue",
			slog.String("error", redact.Error(err)))
		p.settle(ctx, t, domain.MessageAwaitingRetry)
		return OutcomeSkipped, ""
	}

	errMsg := sanitize(err)
	log.ErrorContext(ctx, "task failed", slog.String("error", errMsg))
	p.fail(ctx, t, errMsg)
	return OutcomeFailed, errMsg
}

// settle resets a processing task to pending on a context detached from
// the (possibly expired) budget.
func (p *Processor) settle(ctx context.Context, t *domain.Task, message string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	if err := p.deps.Tasks.ResetToPending(ctx, t.ID, message); err != nil {
		p.logger.ErrorContext(ctx, "failed to reset task",
			slog.String("task_id", t.ID.String()),
			slog.String("error", redact.Error(err)))
	}
}

// fail marks the task failed and refunds its creation debit atomically.
func (p *Processor) fail(ctx context.Context, t *domain.Task, errMsg string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	var refunded int
	err := p.deps.Ledger.Atomically(ctx, func(ctx context.Context, tx *sql.Tx, ledger *credit.Ledger) error {
		if err := p.deps.Tasks.WithTx(tx).Fail(ctx, t.ID, errMsg); err != nil {
			return err
		}
		var err error
		refunded, err = ledger.RefundFor(ctx, t.ID, domain.EntryTaskCreation)
		return err
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to record task failure",
			slog.String("task_id", t.ID.String()),
			slog.String("error", redact.Error(err)))
		return
	}
	if refunded > 0 {
		p.deps.Metrics.IncRefund(KindSummary)
	}
}

// sanitize turns a pipeline error into the message stored on the task.
func sanitize(err error) string {
	return domain.SanitizeError(redact.Error(err))
}

// taskID is a span attribute for the task being worked on.
func taskID(id uuid.UUID) attribute.KeyValue {
	return attribute.String("task.id", id.String())
}
