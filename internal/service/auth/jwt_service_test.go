package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret-that-is-long-enough-for-testing"

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestNewJWTServiceRejectsShortSecret(t *testing.T) {
	_, err := NewJWTService("short")
	assert.Error(t, err)
}

func TestGenerateToken(t *testing.T) {
	fixedTime := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc, err := newJWTService(testSecret, time.Hour, fixedClock(fixedTime))
	require.NoError(t, err)

	token, err := svc.GenerateToken(context.Background(), "user_2abc")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user_2abc", claims.UserID)
	assert.Equal(t, fixedTime.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, fixedTime.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
	assert.NotEmpty(t, claims.ID)

	_, err = svc.GenerateToken(context.Background(), "")
	assert.Error(t, err)
}

func TestValidateToken(t *testing.T) {
	issued := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	gen, err := newJWTService(testSecret, time.Hour, fixedClock(issued))
	require.NoError(t, err)
	token, err := gen.GenerateToken(context.Background(), "user-1")
	require.NoError(t, err)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "user-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(issued.Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name    string
		secret  string
		now     time.Time
		token   string
		wantErr error
	}{
		{name: "valid", secret: testSecret, now: issued.Add(time.Minute), token: token},
		{name: "within clock skew", secret: testSecret, now: issued.Add(time.Hour + time.Minute), token: token},
		{name: "expired", secret: testSecret, now: issued.Add(2 * time.Hour), token: token, wantErr: ErrExpiredToken},
		{name: "wrong secret", secret: "another-secret-that-is-long-enough-too", now: issued, token: token, wantErr: ErrInvalidToken},
		{name: "malformed", secret: testSecret, now: issued, token: "not.a.jwt", wantErr: ErrInvalidToken},
		{name: "alg none", secret: testSecret, now: issued, token: noneToken, wantErr: ErrInvalidToken},
		{name: "missing subject", secret: testSecret, now: issued, token: noSubject, wantErr: ErrInvalidToken},
		{name: "empty", secret: testSecret, now: issued, token: "", wantErr: ErrMissingToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := newJWTService(tt.secret, time.Hour, fixedClock(tt.now))
			require.NoError(t, err)
			claims, err := svc.ValidateToken(context.Background(), tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, claims)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "user-1", claims.UserID)
		})
	}
}

func TestTriggerVerifier(t *testing.T) {
	hash, err := HashTrigger("cron-secret", bcrypt.MinCost)
	require.NoError(t, err)

	tests := []struct {
		name      string
		token     string
		hash      string
		presented string
		wantErr   error
	}{
		{name: "plain match", token: "cron-secret", presented: "cron-secret"},
		{name: "plain mismatch", token: "cron-secret", presented: "cron-secreT", wantErr: ErrInvalidTrigger},
		{name: "hash match", hash: hash, presented: "cron-secret"},
		{name: "hash mismatch", hash: hash, presented: "guess", wantErr: ErrInvalidTrigger},
		{name: "hash wins over token", token: "other", hash: hash, presented: "other", wantErr: ErrInvalidTrigger},
		{name: "missing", token: "cron-secret", presented: "", wantErr: ErrMissingToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewTriggerVerifier(tt.token, tt.hash)
			require.NoError(t, err)
			err = v.Verify(tt.presented)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}

	_, err = NewTriggerVerifier("", "")
	assert.Error(t, err)
	_, err = NewTriggerVerifier("", "not-a-hash")
	assert.Error(t, err)
}
