package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/recaphq/recap-api/internal/api/shared"
	"github.com/recaphq/recap-api/internal/domain"
	"github.com/recaphq/recap-api/internal/service"
	"github.com/recaphq/recap-api/internal/service/auth"
	"github.com/recaphq/recap-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// exposing their types to clients.
func MapErrorToStatusCode(err error) int {
	var validationErrs validator.ValidationErrors
	switch {
	case err == nil:
		return http.StatusOK

	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidTrigger),
		errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized

	// Authorization and billing
	case errors.Is(err, domain.ErrForbidden),
		errors.Is(err, domain.ErrInsufficientCredits):
		return http.StatusForbidden

	// Not found errors
	case errors.Is(err, domain.ErrPlatformUserNotFound),
		errors.Is(err, domain.ErrTaskNotFound),
		errors.Is(err, domain.ErrAvatarTaskNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Bad request errors
	case errors.Is(err, domain.ErrCouponAlreadyUsed),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity),
		errors.As(err, &validationErrs):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-safe message for err.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var validationErrs validator.ValidationErrors
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidTrigger),
		errors.Is(err, domain.ErrUnauthorized):
		return "Unauthorized"

	case errors.Is(err, domain.ErrInsufficientCredits):
		return "Insufficient credits"
	case errors.Is(err, domain.ErrForbidden):
		return "Access denied"

	case errors.Is(err, domain.ErrPlatformUserNotFound):
		return "User not found on platform"
	case errors.Is(err, domain.ErrAvatarTaskNotFound),
		errors.Is(err, store.ErrAvatarTaskNotFound):
		return "Avatar task not found"
	case errors.Is(err, domain.ErrTaskNotFound),
		errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"
	case errors.Is(err, store.ErrNotFound):
		return "Not found"

	// the client matches on this literal
	case errors.Is(err, domain.ErrCouponAlreadyUsed):
		return "coupon_already_used"

	case errors.Is(err, service.ErrMissingFields):
		return "Missing required fields"
	case errors.Is(err, domain.ErrUnsupportedPlatform):
		return "Platform not supported"
	case errors.Is(err, domain.ErrInvalidStyle):
		return "Invalid style"
	case errors.Is(err, domain.ErrParentNotCompleted):
		return "Summary task is not completed"
	case errors.As(err, &validationErrs):
		return SanitizeValidationError(validationErrs)
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError reports the first failed field without echoing
// the submitted value.
func SanitizeValidationError(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return "Validation error"
	}
	fe := validationErrs[0]
	return fmt.Sprintf("Invalid %s: %s", fe.Field(), getValidationTagMessage(fe.Tag()))
}

func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "uuid", "uuid4":
		return "invalid id format"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}

// HandleAPIError writes the status and safe message for err and logs the
// redacted original. fallback replaces the generic 500 message when set.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := MapErrorToStatusCode(err)
	msg := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallback != "" {
		msg = fallback
	}
	shared.RespondWithErrorAndLog(w, r, status, msg, err)
}
