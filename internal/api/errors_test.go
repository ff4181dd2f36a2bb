package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/recaphq/recap-api/internal/domain"
	"github.com/recaphq/recap-api/internal/service"
	"github.com/recaphq/recap-api/internal/service/auth"
	"github.com/recaphq/recap-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapErrorToStatusCode(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{"expired token", auth.ErrExpiredToken, http.StatusUnauthorized, "Token expired"},
		{"unauthorized", domain.ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
		{"not owned", service.ErrNotOwned, http.StatusForbidden, "Access denied"},
		{"insufficient credits", fmt.Errorf("debit: %w", domain.ErrInsufficientCredits), http.StatusForbidden, "Insufficient credits"},
		{"platform user", domain.ErrPlatformUserNotFound, http.StatusNotFound, "User not found on platform"},
		{"task", domain.ErrTaskNotFound, http.StatusNotFound, "Task not found"},
		{"store task", store.ErrTaskNotFound, http.StatusNotFound, "Task not found"},
		{"avatar", domain.ErrAvatarTaskNotFound, http.StatusNotFound, "Avatar task not found"},
		{"coupon", domain.ErrCouponAlreadyUsed, http.StatusBadRequest, "coupon_already_used"},
		{"missing fields", service.ErrMissingFields, http.StatusBadRequest, "Missing required fields"},
		{"style", domain.ErrInvalidStyle, http.StatusBadRequest, "Invalid style"},
		{"platform", domain.ErrUnsupportedPlatform, http.StatusBadRequest, "Platform not supported"},
		{"parent", domain.ErrParentNotCompleted, http.StatusBadRequest, "Summary task is not completed"},
		{"generic validation", fmt.Errorf("%w: id", domain.ErrValidation), http.StatusBadRequest, "Invalid request"},
		{"contention", store.ErrTransactionFailed, http.StatusInternalServerError, "An unexpected error occurred"},
		{"service error", service.NewServiceError("summary", "create", errors.New("boom")), http.StatusInternalServerError, "An unexpected error occurred"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, MapErrorToStatusCode(tt.err))
			assert.Equal(t, tt.wantMessage, GetSafeErrorMessage(tt.err))
		})
	}
}

func TestSanitizeValidationError(t *testing.T) {
	err := validator.New().Struct(CreateAvatarRequest{SummaryID: "not-a-uuid"})
	require.Error(t, err)
	assert.Equal(t, "Invalid SummaryID: invalid id format", SanitizeValidationError(err))
	assert.Equal(t, http.StatusBadRequest, MapErrorToStatusCode(err))
	assert.Equal(t, "Validation error", SanitizeValidationError(errors.New("plain")))
}

func TestHandleAPIErrorNeverLeaksInternals(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	err := fmt.Errorf("query failed: %w", errors.New("postgres://recap:hunter22@db/recap"))

	HandleAPIError(rec, req, err, "Failed to list tasks")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Failed to list tasks")
	assert.NotContains(t, rec.Body.String(), "hunter22")
}
