package avatar

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/recaphq/recap-api/internal/config"
	"github.com/recaphq/recap-api/internal/credit"
	"github.com/recaphq/recap-api/internal/domain"
	"github.com/recaphq/recap-api/internal/generation"
	"github.com/recaphq/recap-api/internal/platform/logger"
	"github.com/recaphq/recap-api/internal/redact"
	"github.com/recaphq/recap-api/internal/storage"
	"github.com/recaphq/recap-api/internal/store"
	"github.com/recaphq/recap-api/internal/task"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName      = "github.com/recaphq/recap-api/internal/avatar"
	staleSweepLimit = 50
	settleTimeout   = 10 * time.Second
)

// Step names used for spans and metrics.
const (
	stepPrompt = "prompt"
	stepImage  = "image_generation"
	stepStore  = "store_image"
)

// Downloader fetches a generated image from the provider.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// Config controls one avatar batch.
type Config struct {
	BatchSize  int
	StaleAfter time.Duration
}

// ConfigFrom converts avatar configuration. Staleness is shared with the
// summary processor.
func ConfigFrom(a config.AvatarConfig, p config.ProcessorConfig) Config {
	return Config{
		BatchSize:  a.BatchSize,
		StaleAfter: time.Duration(p.StaleAfterMinutes) * time.Minute,
	}
}

// Deps are the collaborators of a Processor.
type Deps struct {
	Avatars    store.AvatarTaskStore
	Tasks      store.TaskStore
	Transactor store.Transactor
	Ledger     *credit.Ledger
	Images     generation.ImageGenerator
	Downloader Downloader
	Uploader   storage.Uploader
	Metrics    *task.Metrics
}

// Processor executes pending avatar tasks.
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
	case deps.Avatars == nil:
		return nil, errors.New("avatar store cannot be nil")
	case deps.Tasks == nil:
		return nil, errors.New("task store cannot be nil")
	case deps.Transactor == nil:
		return nil, errors.New("transactor cannot be nil")
	case deps.Ledger == nil:
		return nil, errors.New("credit ledger cannot be nil")
	case deps.Images == nil:
		return nil, errors.New("image generator cannot be nil")
	case deps.Uploader == nil:
		return nil, errors.New("uploader cannot be nil")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 3
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
		logger: logger.With(slog.String("component", "avatar_processor")),
		tracer: otel.Tracer(tracerName),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// RunBatch sweeps, claims and executes one batch of avatar tasks.
func (p *Processor) RunBatch(ctx context.Context) (*task.BatchResult, error) {
	start := p.now()
	ctx, span := p.tracer.Start(ctx, "avatar.batch")
	defer span.End()

	if err := p.sweep(ctx); err != nil {
		span.SetStatus(codes.Error, "sweep failed")
		return nil, err
	}

	claimed, err := p.claim(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "claim failed")
		return nil, err
	}
	p.deps.Metrics.ObserveBatch(task.KindAvatar, len(claimed))

	result := &task.BatchResult{Processed: len(claimed), Details: []task.Detail{}}
	for _, t := range claimed {
		outcome, errMsg := p.execute(ctx, t)
		result.Record(t.ID, outcome, errMsg)
		p.deps.Metrics.ObserveTask(task.KindAvatar, outcome)
	}

	result.Elapsed = p.now().Sub(start)
	logger.FromContextOrDefault(ctx, p.logger).InfoContext(ctx, "avatar batch finished",
		slog.Int("processed", result.Processed),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed),
		slog.Duration("elapsed", result.Elapsed))
	return result, nil
}

func (p *Processor) sweep(ctx context.Context) error {
	cutoff := p.now().Add(-p.cfg.StaleAfter)
	stale, err := p.deps.Avatars.FindStale(ctx, cutoff, staleSweepLimit)
	if err != nil {
		return fmt.Errorf("failed to find stale avatar tasks: %w", err)
	}
	for _, t := range stale {
		var refunded int
		err := p.deps.Ledger.Atomically(ctx, func(ctx context.Context, tx *sql.Tx, ledger *credit.Ledger) error {
			changed, err := p.deps.Avatars.WithTx(tx).MarkAbandoned(ctx, t.ID, cutoff, domain.ErrStaleAbandoned.Error())
			if err != nil || !changed {
				return err
			}
			refunded, err = ledger.RefundFor(ctx, t.ID, domain.EntryUse)
			return err
		})
		if err != nil {
			p.logger.ErrorContext(ctx, "failed to reap stale avatar task",
				slog.String("avatar_task_id", t.ID.String()),
				slog.String("error", redact.Error(err)))
			continue
		}
		p.deps.Metrics.IncStaleReaped(task.KindAvatar)
		if refunded > 0 {
			p.deps.Metrics.IncRefund(task.KindAvatar)
		}
	}
	return nil
}

func (p *Processor) claim(ctx context.Context) ([]*domain.AvatarTask, error) {
	ids, err := p.deps.Avatars.ListClaimable(ctx, p.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending avatar tasks: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	var claimed []*domain.AvatarTask
	err = p.deps.Transactor.InTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		claimed, err = p.deps.Avatars.WithTx(tx).Claim(ctx, ids)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim avatar tasks: %w", err)
	}
	return claimed, nil
}

func (p *Processor) execute(ctx context.Context, t *domain.AvatarTask) (outcome, errMsg string) {
	log := p.logger.With(
		slog.String("avatar_task_id", t.ID.String()),
		slog.String("summary_id", t.SummaryID.String()))

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("avatar pipeline panic: %v", r)
			}
		}()
		return p.pipeline(ctx, t, log)
	}()
	if err == nil {
		log.InfoContext(ctx, "avatar task completed")
		return task.OutcomeSuccess, ""
	}

	errMsg = domain.SanitizeError(redact.Error(err))
	log.ErrorContext(ctx, "avatar task failed", slog.String("error", errMsg))
	p.fail(ctx, t, errMsg)
	return task.OutcomeFailed, errMsg
}

func (p *Processor) pipeline(ctx context.Context, t *domain.AvatarTask, log *slog.Logger) error {
	var (
		parent *domain.Task
		prompt string
	)
	err := p.step(ctx, t, stepPrompt, func(ctx context.Context) error {
		var err error
		parent, err = p.deps.Tasks.GetByID(ctx, t.SummaryID)
		if err != nil {
			return fmt.Errorf("failed to load summary: %w", err)
		}
		if parent.Status != domain.TaskStatusCompleted || parent.Result == nil {
			return domain.ErrParentNotCompleted
		}
		prompt, err = BuildPrompt(parent.Result)
		return err
	})
	if err != nil {
		return err
	}

	var externalURL string
	err = p.step(ctx, t, stepImage, func(ctx context.Context) error {
		var err error
		externalURL, err = p.deps.Images.Generate(ctx, generation.ImageRequest{
			IdempotencyKey: t.ID,
			Prompt:         prompt,
			NegativePrompt: NegativePrompt,
		})
		return err
	})
	if err != nil {
		return err
	}
	if err := p.deps.Avatars.Touch(ctx, t.ID); err != nil {
		return err
	}

	imageURL := externalURL
	err = p.step(ctx, t, stepStore, func(ctx context.Context) error {
		if p.deps.Downloader == nil {
			return errors.New("no downloader configured")
		}
		body, err := p.deps.Downloader.Download(ctx, externalURL)
		if err != nil {
			return err
		}
		stored, err := p.deps.Uploader.Upload(ctx, storage.AvatarKey(t.ID, p.now()), body, "image/png")
		if err != nil {
			return err
		}
		imageURL = stored
		return nil
	})
	if err != nil {
		// the provider URL still works, just not for as long
		log.WarnContext(ctx, "keeping provider image url",
			slog.String("error", redact.Error(err)))
	}

	if err := p.deps.Avatars.Complete(ctx, t.ID, imageURL); err != nil {
		return err
	}
	if err := p.deps.Tasks.SetAvatarURL(ctx, parent.ID, imageURL); err != nil {
		log.WarnContext(ctx, "failed to back-fill summary avatar url",
			slog.String("error", redact.Error(err)))
	}
	return nil
}

func (p *Processor) step(ctx context.Context, t *domain.AvatarTask, name string, fn func(ctx context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, "avatar."+name)
	span.SetAttributes(attribute.String("avatar_task.id", t.ID.String()))
	defer span.End()

	started := time.Now()
	err := fn(ctx)
	p.deps.Metrics.ObserveStep(task.KindAvatar, name, err, time.Since(started))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, name+" failed")
	}
	return err
}

// fail marks the avatar task failed and refunds its debit in one transaction.
func (p *Processor) fail(ctx context.Context, t *domain.AvatarTask, errMsg string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	var refunded int
	err := p.deps.Ledger.Atomically(ctx, func(ctx context.Context, tx *sql.Tx, ledger *credit.Ledger) error {
		if err := p.deps.Avatars.WithTx(tx).Fail(ctx, t.ID, errMsg); err != nil {
			return err
		}
		var err error
		refunded, err = ledger.RefundFor(ctx, t.ID, domain.EntryUse)
		return err
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to record avatar failure",
			slog.String("avatar_task_id", t.ID.String()),
			slog.String("error", redact.Error(err)))
		return
	}
	if refunded > 0 {
		p.deps.Metrics.IncRefund(task.KindAvatar)
	}
}
