package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/recaphq/recap-api/internal/credit"
	"github.com/recaphq/recap-api/internal/domain"
	"github.com/recaphq/recap-api/internal/platform/logger"
	"github.com/recaphq/recap-api/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAvatarService(t *testing.T, mem *testutils.MemStore) AvatarService {
	t.Helper()
	ledger := credit.NewLedger(mem, mem.Credits(), mem.Coupons(), credit.Options{}, logger.Discard())
	svc, err := NewAvatarService(mem.Tasks(), mem.Avatars(), ledger, 5, logger.Discard())
	require.NoError(t, err)
	return svc
}

func putSummary(mem *testutils.MemStore, userID string, status domain.TaskStatus) *domain.Task {
	t := &domain.Task{
		ID: uuid.New(), UserID: userID, Platform: domain.PlatformGitHub, Username: "octocat",
		Style: domain.StyleRoast, Status: status, Step: domain.StepDone,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	mem.PutTask(t)
	return t
}

func TestCreateAvatarTask(t *testing.T) {
	mem := testutils.NewMemStore()
	mem.SetBalance("user-1", 12)
	summary := putSummary(mem, "user-1", domain.TaskStatusCompleted)
	svc := newAvatarService(t, mem)

	created, err := svc.CreateTask(context.Background(), "user-1", summary.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, created.Credits)

	a := mem.AvatarTask(created.TaskID)
	require.NotNil(t, a)
	assert.Equal(t, domain.TaskStatusPending, a.Status)
	assert.Equal(t, summary.ID, a.SummaryID)

	balance, _ := mem.Balance("user-1")
	assert.Equal(t, 7, balance)
	entries := mem.Entries("user-1")
	assert.Equal(t, domain.EntryUse, entries[len(entries)-1].Type)

	view, err := svc.GetStatus(context.Background(), "user-1", created.TaskID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, view.Status)

	_, err = svc.GetStatus(context.Background(), "user-2", created.TaskID)
	assert.ErrorIs(t, err, domain.ErrAvatarTaskNotFound)
}

func TestCreateAvatarTaskRejections(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		status  domain.TaskStatus
		balance int
		wantErr error
	}{
		{name: "anonymous", status: domain.TaskStatusCompleted, balance: 10, wantErr: domain.ErrUnauthorized},
		{name: "not owner", userID: "user-2", status: domain.TaskStatusCompleted, balance: 10, wantErr: domain.ErrTaskNotFound},
		{name: "summary not completed", userID: "user-1", status: domain.TaskStatusProcessing, balance: 10, wantErr: domain.ErrParentNotCompleted},
		{name: "insufficient credits", userID: "user-1", status: domain.TaskStatusCompleted, balance: 4, wantErr: domain.ErrInsufficientCredits},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := testutils.NewMemStore()
			mem.SetBalance("user-1", tt.balance)
			mem.SetBalance("user-2", tt.balance)
			summary := putSummary(mem, "user-1", tt.status)

			_, err := newAvatarService(t, mem).CreateTask(context.Background(), tt.userID, summary.ID)
			assert.ErrorIs(t, err, tt.wantErr)

			balance, _ := mem.Balance("user-1")
			assert.Equal(t, tt.balance, balance)
		})
	}
}

func TestCreateAvatarTaskUnknownSummary(t *testing.T) {
	mem := testutils.NewMemStore()
	_, err := newAvatarService(t, mem).CreateTask(context.Background(), "user-1", uuid.New())
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}
