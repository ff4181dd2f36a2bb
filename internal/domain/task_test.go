package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTask(t *testing.T) {
	t.Parallel()

	task, err := NewTask("user-1", PlatformGitHub, "  octocat ", StylePraise)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, task.ID)
	assert.Equal(t, "octocat", task.Username)
	assert.Equal(t, TaskStatusPending, task.Status)
	assert.Equal(t, StepQueued, task.Step)
	assert.Equal(t, MessageCreated, task.Message)
	assert.False(t, task.CreatedAt.IsZero())
	assert.Equal(t, task.CreatedAt, task.UpdatedAt)
}

func TestNewTaskValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		platform Platform
		username string
		style    Style
		wantErr  error
	}{
		{"empty username", PlatformGitHub, "   ", StylePraise, ErrValidation},
		{"unknown platform", Platform("myspace"), "octocat", StylePraise, ErrUnsupportedPlatform},
		{"unknown style", PlatformGitHub, "octocat", Style("haiku"), ErrInvalidStyle},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewTask("", tc.platform, tc.username, tc.style)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.wantErr), "got %v", err)
			assert.True(t, errors.Is(err, ErrValidation))
		})
	}
}

func TestTaskOwnedBy(t *testing.T) {
	t.Parallel()

	task := &Task{UserID: "user-1"}
	assert.True(t, task.OwnedBy("user-1"))
	assert.False(t, task.OwnedBy("user-2"))

	anonymous := &Task{}
	assert.False(t, anonymous.OwnedBy(""))
}

func TestTaskIsStale(t *testing.T) {
	t.Parallel()

	now := time.Now()
	stale := &Task{Status: TaskStatusProcessing, UpdatedAt: now.Add(-6 * time.Minute)}
	fresh := &Task{Status: TaskStatusProcessing, UpdatedAt: now.Add(-time.Minute)}
	oldPending := &Task{Status: TaskStatusPending, UpdatedAt: now.Add(-time.Hour)}

	assert.True(t, stale.IsStale(now, 5*time.Minute))
	assert.False(t, fresh.IsStale(now, 5*time.Minute))
	assert.False(t, oldPending.IsStale(now, 5*time.Minute))
}

func TestSanitizeError(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "unknown error", SanitizeError("  "))
	assert.Equal(t, "boom", SanitizeError(" boom\n"))

	long := strings.Repeat("é", MaxErrorLength+20)
	got := SanitizeError(long)
	assert.Len(t, []rune(got), MaxErrorLength)
	assert.True(t, strings.HasPrefix(long, got))
}

func TestTaskStatusIsTerminal(t *testing.T) {
	t.Parallel()

	assert.True(t, TaskStatusCompleted.IsTerminal())
	assert.True(t, TaskStatusFailed.IsTerminal())
	assert.False(t, TaskStatusPending.IsTerminal())
	assert.False(t, TaskStatusProcessing.IsTerminal())
}
