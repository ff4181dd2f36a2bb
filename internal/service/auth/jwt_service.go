// Package auth verifies the credentials presented to the API: user session
// tokens signed with a shared HS256 secret and the processor trigger secret.
package auth

import (
	"context"
	"time"
)

// JWTService issues and verifies user session tokens. Sessions are issued by
// the identity provider in production; GenerateToken exists for tooling and
// tests that need a valid session.
type JWTService interface {
	// GenerateToken signs a token whose subject is userID.
	GenerateToken(ctx context.Context, userID string) (string, error)

	// ValidateToken verifies signature and time claims and returns the claims.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims are the verified contents of a session token.
type Claims struct {
	// UserID is the token subject.
	UserID    string    `json:"sub"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	ID        string    `json:"jti,omitempty"`
}
