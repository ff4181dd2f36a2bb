package service

import (
	"errors"
	"fmt"

	"github.com/recaphq/recap-api/internal/domain"
)

var (
	// ErrNotOwned indicates a task belongs to another user.
	// The API layer maps this to HTTP 403 Forbidden.
	ErrNotOwned = fmt.Errorf("%w: resource is owned by another user", domain.ErrForbidden)

	// ErrMissingFields indicates a create request without username or style.
	ErrMissingFields = fmt.Errorf("%w: missing required fields", domain.ErrValidation)
)

// ServiceError wraps an unexpected failure with the service and operation
// it happened in. Expected conditions are returned as sentinel errors.
type ServiceError struct {
	Service string
	Op      string
	Err     error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s service %s operation failed", e.Service, e.Op)
	}
	return fmt.Sprintf("%s service %s operation failed: %v", e.Service, e.Op, e.Err)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a ServiceError.
func NewServiceError(service, op string, err error) *ServiceError {
	return &ServiceError{Service: service, Op: op, Err: err}
}

// wrap passes domain sentinels through and wraps everything else.
func wrap(service, op string, err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{
		domain.ErrValidation,
		domain.ErrUnauthorized,
		domain.ErrForbidden,
		domain.ErrInsufficientCredits,
		domain.ErrPlatformUserNotFound,
		domain.ErrTaskNotFound,
		domain.ErrAvatarTaskNotFound,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return NewServiceError(service, op, err)
}
