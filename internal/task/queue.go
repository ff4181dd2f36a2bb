package task

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/recaphq/recap-api/internal/domain"
	"github.com/recaphq/recap-api/internal/store"
	"golang.org/x/sync/errgroup"
)

// QueueInfo is a polling client's view of where a task stands.
type QueueInfo struct {
	Status            domain.TaskStatus `json:"status"`
	CurrentStep       *domain.Step      `json:"currentStep"`
	QueuePosition     int               `json:"queuePosition"`
	ProcessingCount   int               `json:"processingCount"`
	EstimatedWaitTime int               `json:"estimatedWaitTime"`
	Message           string            `json:"message"`
}

// QueueInspector computes queue positions and wait estimates.
type QueueInspector struct {
	tasks store.TaskStore
}

// NewQueueInspector creates a QueueInspector.
func NewQueueInspector(tasks store.TaskStore) *QueueInspector {
	return &QueueInspector{tasks: tasks}
}

// Inspect reports the queue position of a task. It never writes.
func (q *QueueInspector) Inspect(ctx context.Context, id uuid.UUID) (*QueueInfo, error) {
	t, err := q.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var (
		ahead      int
		processing []*domain.Task
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := q.tasks.CountPendingBefore(gctx, t.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to count pending tasks: %w", err)
		}
		ahead = n
		return nil
	})
	g.Go(func() error {
		ts, err := q.tasks.ListProcessing(gctx)
		if err != nil {
			return fmt.Errorf("failed to list processing tasks: %w", err)
		}
		processing = ts
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	info := &QueueInfo{
		Status:            t.Status,
		QueuePosition:     ahead + 1,
		ProcessingCount:   len(processing),
		EstimatedWaitTime: EstimateWait(ahead, processing),
		Message:           t.Message,
	}
	if t.Status == domain.TaskStatusProcessing {
		step := t.Step
		info.CurrentStep = &step
	}
	return info, nil
}

// EstimateWait is the seconds until a task behind pendingAhead queued tasks
// starts: a fixed cost per queued task plus what each running task has left.
func EstimateWait(pendingAhead int, processing []*domain.Task) int {
	total := float64(pendingAhead * domain.PendingEstimateSeconds)
	for _, t := range processing {
		total += float64(domain.RemainingSeconds(t.Step))
	}
	return int(math.Ceil(total))
}
