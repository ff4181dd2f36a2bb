package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/recaphq/recap-api/internal/api/shared"
	"github.com/recaphq/recap-api/internal/platform/logger"
	"github.com/recaphq/recap-api/internal/redact"
	"github.com/recaphq/recap-api/internal/service/auth"
)

// AuthMiddleware authenticates user sessions carried as bearer JWTs.
type AuthMiddleware struct {
	jwtService auth.JWTService
}

// NewAuthMiddleware creates an AuthMiddleware.
func NewAuthMiddleware(jwtService auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{jwtService: jwtService}
}

// Authenticate rejects requests without a valid session and stores the
// session subject in the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return m.handler(next, false)
}

// Optional authenticates a session when one is presented and lets requests
// without an Authorization header through anonymously. A presented but
// invalid token is still rejected.
func (m *AuthMiddleware) Optional(next http.Handler) http.Handler {
	return m.handler(next, true)
}

func (m *AuthMiddleware) handler(next http.Handler, optional bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			if optional {
				next.ServeHTTP(w, r)
				return
			}
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Authorization header required")
			return
		}

		token, ok := bearerToken(header)
		if !ok {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid authorization format")
			return
		}

		claims, err := m.jwtService.ValidateToken(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrExpiredToken):
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Token expired")
			case errors.Is(err, auth.ErrInvalidToken),
				errors.Is(err, auth.ErrTokenNotYetValid),
				errors.Is(err, auth.ErrMissingToken):
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid token")
			default:
				logger.FromContext(r.Context()).Error("failed to validate token", "error", redact.Error(err))
				shared.RespondWithError(w, r, http.StatusInternalServerError, "Authentication error")
			}
			return
		}

		ctx := shared.WithUserID(r.Context(), claims.UserID)
		ctx = logger.WithLogger(ctx, logger.FromContext(ctx).With("user_id", claims.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserID returns the authenticated user id and whether one is present.
func GetUserID(r *http.Request) (string, bool) {
	id := shared.UserID(r.Context())
	return id, id != ""
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}
