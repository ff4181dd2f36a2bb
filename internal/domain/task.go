package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

// Possible task status values.
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// IsTerminal reports whether no further transition is expected.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Display messages written alongside status and step changes.
const (
	MessageCreated           = "task created"
	MessageQueued            = "waiting to be processed"
	MessageFetching          = "fetching data"
	MessageGeneratingContent = "generating content"
	MessageGeneratingImage   = "generating image"
	MessageAwaitingRetry     = "awaiting retry"
	MessageAwaitingProcess   = "awaiting processing"
	MessageFailed            = "generation failed"
)

// MaxErrorLength bounds the failure reason stored on a task.
const MaxErrorLength = 500

// Task is one summary-generation request.
type Task struct {
	ID         uuid.UUID      `json:"id"`
	UserID     string         `json:"userId,omitempty"`
	Platform   Platform       `json:"platform"`
	Username   string         `json:"username"`
	Style      Style          `json:"style"`
	Status     TaskStatus     `json:"status"`
	Step       Step           `json:"step"`
	Message    string         `json:"message,omitempty"`
	Error      string         `json:"error,omitempty"`
	Result     *SummaryResult `json:"result,omitempty"`
	ImageURL   string         `json:"imageUrl,omitempty"`
	TokensUsed int            `json:"tokensUsed,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// NewTask creates a pending task. userID may be empty for anonymous tasks.
func NewTask(userID string, platform Platform, username string, style Style) (*Task, error) {
	now := time.Now().UTC()
	t := &Task{
		ID:        uuid.New(),
		UserID:    userID,
		Platform:  platform,
		Username:  strings.TrimSpace(username),
		Style:     style,
		Status:    TaskStatusPending,
		Step:      StepQueued,
		Message:   MessageCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks the fields every stored task must carry.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return fmt.Errorf("%w: task id is required", ErrValidation)
	}
	if t.Username == "" {
		return fmt.Errorf("%w: username is required", ErrValidation)
	}
	if _, ok := ParsePlatform(string(t.Platform)); !ok {
		return ErrUnsupportedPlatform
	}
	if _, ok := ParseStyle(string(t.Style)); !ok {
		return ErrInvalidStyle
	}
	switch t.Status {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed:
	default:
		return fmt.Errorf("%w: invalid status %q", ErrValidation, t.Status)
	}
	return nil
}

// OwnedBy reports whether the task belongs to userID.
func (t *Task) OwnedBy(userID string) bool {
	return t.UserID != "" && t.UserID == userID
}

// IsStale reports whether a processing task has gone without a heartbeat for longer than after.
func (t *Task) IsStale(now time.Time, after time.Duration) bool {
	return t.Status == TaskStatusProcessing && now.Sub(t.UpdatedAt) > after
}

// SanitizeError turns a pipeline error into the text stored in the task's error field.
// Callers pass the result of redact.Error; this only trims and bounds it.
func SanitizeError(msg string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "unknown error"
	}
	if r := []rune(msg); len(r) > MaxErrorLength {
		return string(r[:MaxErrorLength])
	}
	return msg
}
