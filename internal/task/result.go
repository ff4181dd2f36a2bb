package task

import (
	"time"

	"github.com/google/uuid"
)

// Outcome of one task within a batch.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Detail reports what happened to one claimed task.
type Detail struct {
	TaskID uuid.UUID `json:"taskId"`
	Status string    `json:"status"`
	Error  string    `json:"error,omitempty"`
}

// BatchResult summarizes one processor invocation.
type BatchResult struct {
	Processed int           `json:"processed"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Details   []Detail      `json:"details"`
	Elapsed   time.Duration `json:"-"`
}

// Record appends a task outcome and bumps the matching counter.
func (r *BatchResult) Record(id uuid.UUID, outcome, errMsg string) {
	switch outcome {
	case OutcomeSuccess:
		r.Succeeded++
	case OutcomeFailed:
		r.Failed++
	case OutcomeSkipped:
		r.Skipped++
	}
	r.Details = append(r.Details, Detail{TaskID: id, Status: outcome, Error: errMsg})
}
