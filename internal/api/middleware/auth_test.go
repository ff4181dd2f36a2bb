package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/recaphq/recap-api/internal/api/shared"
	"github.com/recaphq/recap-api/internal/mocks"
	"github.com/recaphq/recap-api/internal/service/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "middleware-test-secret-long-enough-for-hs256"

// echoUser writes the authenticated user id, or "anonymous".
func echoUser(w http.ResponseWriter, r *http.Request) {
	id, ok := GetUserID(r)
	if !ok {
		id = "anonymous"
	}
	_, _ = w.Write([]byte(id))
}

func TestAuthenticate(t *testing.T) {
	svc, err := auth.NewJWTService(testSecret)
	require.NoError(t, err)
	token, err := svc.GenerateToken(context.Background(), "user_42")
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{name: "valid token", header: "Bearer " + token, wantStatus: http.StatusOK, wantBody: "user_42"},
		{name: "lowercase scheme", header: "bearer " + token, wantStatus: http.StatusOK, wantBody: "user_42"},
		{name: "missing header", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAuthMiddleware(svc).Authenticate(http.HandlerFunc(echoUser))
			req := httptest.NewRequest(http.MethodGet, "/api/credits", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestAuthenticateErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{name: "expired", err: auth.ErrExpiredToken, wantStatus: http.StatusUnauthorized, wantBody: "Token expired"},
		{name: "not yet valid", err: auth.ErrTokenNotYetValid, wantStatus: http.StatusUnauthorized, wantBody: "Invalid token"},
		{name: "unexpected", err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantBody: "Authentication error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAuthMiddleware(&mocks.MockJWTService{ValidateErr: tt.err}).Authenticate(http.HandlerFunc(echoUser))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer token")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestOptional(t *testing.T) {
	h := NewAuthMiddleware(&mocks.MockJWTService{}).Optional(http.HandlerFunc(echoUser))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tasks", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer any")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "user_stub", rec.Body.String())

	rejecting := NewAuthMiddleware(&mocks.MockJWTService{ValidateErr: auth.ErrInvalidToken}).Optional(http.HandlerFunc(echoUser))
	rec = httptest.NewRecorder()
	rejecting.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireTrigger(t *testing.T) {
	verifier, err := auth.NewTriggerVerifier("cron-secret", "")
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "valid secret", header: "Bearer cron-secret", wantStatus: http.StatusNoContent},
		{name: "wrong secret", header: "Bearer guess", wantStatus: http.StatusUnauthorized},
		{name: "missing", wantStatus: http.StatusUnauthorized},
		{name: "not bearer", header: "cron-secret", wantStatus: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			h := RequireTrigger(verifier)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				called = true
				w.WriteHeader(http.StatusNoContent)
			}))
			req := httptest.NewRequest(http.MethodPost, "/api/tasks/process", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantStatus == http.StatusNoContent, called)
		})
	}
}

func TestTrace(t *testing.T) {
	var traceID string
	h := Trace(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = shared.GetTraceID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Len(t, traceID, 32)
}
