package api

import (
	"context"
	"net/http"
	"time"

	"github.com/recaphq/recap-api/internal/api/shared"
	"github.com/recaphq/recap-api/internal/task"
)

// BatchRunner runs one processor invocation.
type BatchRunner interface {
	RunBatch(ctx context.Context) (*task.BatchResult, error)
}

// ProcessResponse is the body returned by the trigger endpoints.
type ProcessResponse struct {
	*task.BatchResult
	// ProcessingTime is the wall-clock duration of the batch in milliseconds.
	ProcessingTime int64 `json:"processingTime"`
}

// ProcessHandler runs a processor batch on behalf of the external scheduler.
type ProcessHandler struct {
	runner BatchRunner
	now    func() time.Time
}

// NewProcessHandler creates a ProcessHandler.
func NewProcessHandler(runner BatchRunner) *ProcessHandler {
	return &ProcessHandler{runner: runner, now: time.Now}
}

// Process handles POST /api/tasks/process and POST /api/avatar/process. The
// batch survives a client disconnect; its own budget bounds it.
func (h *ProcessHandler) Process(w http.ResponseWriter, r *http.Request) {
	start := h.now()
	result, err := h.runner.RunBatch(context.WithoutCancel(r.Context()))
	if err != nil {
		HandleAPIError(w, r, err, "Failed to process tasks")
		return
	}
	resp := NewBatchResponse(result)
	resp.ProcessingTime = h.now().Sub(start).Milliseconds()
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// NewBatchResponse converts a batch result into the trigger response body.
func NewBatchResponse(result *task.BatchResult) ProcessResponse {
	if result.Details == nil {
		result.Details = []task.Detail{}
	}
	return ProcessResponse{
		BatchResult:    result,
		ProcessingTime: result.Elapsed.Milliseconds(),
	}
}
