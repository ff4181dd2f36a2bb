package task

import (
	"context"
	"fmt"
	"time"

	"github.com/recaphq/recap-api/internal/domain"
	"github.com/recaphq/recap-api/internal/storage"
	"go.opentelemetry.io/otel/codes"
)

// pipeline runs fetch, content generation, rendering and upload for one
// task. It can be re-run from scratch after a reset.
func (p *Processor) pipeline(ctx context.Context, t *domain.Task) error {
	var stats *domain.PlatformStats
	err := p.step(ctx, t, domain.StepFetchData, domain.MessageFetching, func(ctx context.Context) error {
		adapter, err := p.deps.Adapters.Get(t.Platform)
		if err != nil {
			return err
		}
		stats, err = adapter.Fetch(ctx, t.Username)
		if err != nil {
			return err
		}
		if stats.Status != domain.StatsStatusOK {
			return fmt.Errorf("%w: %s", domain.ErrAdapterUnavailable, stats.ErrorMessage)
		}
		return nil
	})
	if err != nil {
		return err
	}

	var content *domain.GeneratedContent
	err = p.step(ctx, t, domain.StepContentGeneration, domain.MessageGeneratingContent, func(ctx context.Context) error {
		var err error
		content, err = p.deps.Generator.Generate(ctx, stats, t.Style)
		return err
	})
	if err != nil {
		return err
	}

	result := domain.AssembleResult(t.Style, *stats, *content, p.now())

	var imageURL string
	err = p.step(ctx, t, domain.StepImageGeneration, domain.MessageGeneratingImage, func(ctx context.Context) error {
		img, err := p.deps.Renderer.Render(ctx, result)
		if err != nil {
			return fmt.Errorf("failed to render card: %w", err)
		}
		imageURL, err = p.deps.Uploader.Upload(ctx, storage.SummaryKey(t.ID, img.Ext), img.Body, img.ContentType)
		return err
	})
	if err != nil {
		return err
	}

	return p.deps.Tasks.Complete(ctx, t.ID, result, imageURL, content.TokensUsed)
}

// step records progress, then runs fn inside a span and times it.
func (p *Processor) step(
	ctx context.Context,
	t *domain.Task,
	step domain.Step,
	message string,
	fn func(ctx context.Context) error,
) error {
	if err := p.deps.Tasks.UpdateStep(ctx, t.ID, step, message); err != nil {
		return err
	}

	ctx, span := p.tracer.Start(ctx, "task."+string(step))
	span.SetAttributes(taskID(t.ID))
	defer span.End()

	started := time.Now()
	err := fn(ctx)
	p.deps.Metrics.ObserveStep(KindSummary, string(step), err, time.Since(started))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(step)+" failed")
	}
	return err
}
