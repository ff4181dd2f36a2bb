package middleware

import (
	"errors"
	"net/http"

	"github.com/recaphq/recap-api/internal/api/shared"
	"github.com/recaphq/recap-api/internal/service/auth"
)

// TriggerVerifier checks the scheduler's shared secret.
type TriggerVerifier interface {
	Verify(presented string) error
}

// RequireTrigger guards the batch-processing endpoints. A request without the
// configured secret gets 401 before any handler runs.
func RequireTrigger(verifier TriggerVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, _ := bearerToken(r.Header.Get("Authorization"))
			if err := verifier.Verify(token); err != nil {
				msg := "Unauthorized"
				if errors.Is(err, auth.ErrMissingToken) {
					msg = "Authorization header required"
				}
				shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, msg, err,
					shared.WithElevatedLogLevel())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
