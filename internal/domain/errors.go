package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity or request fails validation.
	// This is usually wrapped with a more specific message.
	ErrValidation = errors.New("validation failed")

	// ErrUnsupportedPlatform is returned when a platform is unknown or not live.
	ErrUnsupportedPlatform = fmt.Errorf("%w: platform not available", ErrValidation)

	// ErrInvalidStyle is returned when a style has no price tier.
	ErrInvalidStyle = fmt.Errorf("%w: unknown style", ErrValidation)

	// ErrUnauthorized is returned when a caller is not authenticated.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when a caller may not access a resource.
	ErrForbidden = errors.New("forbidden")

	// ErrInsufficientCredits is returned when a debit would make a balance negative.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrCouponAlreadyUsed is returned when a coupon was already redeemed by the user,
	// or the user already holds a welcome coupon.
	ErrCouponAlreadyUsed = errors.New("coupon_already_used")

	// ErrPlatformUserNotFound is returned when the platform has no such username.
	ErrPlatformUserNotFound = errors.New("platform user not found")

	// ErrTaskNotFound is returned when a summary task does not exist or is not visible to the caller.
	ErrTaskNotFound = errors.New("task not found")

	// ErrAvatarTaskNotFound is returned when an avatar task does not exist or is not visible to the caller.
	ErrAvatarTaskNotFound = errors.New("avatar task not found")

	// ErrParentNotCompleted is returned when an avatar is requested for a summary that has not completed.
	ErrParentNotCompleted = fmt.Errorf("%w: summary task is not completed", ErrValidation)

	// ErrAdapterUnavailable is returned when the platform adapter reports a not-ok status.
	ErrAdapterUnavailable = errors.New("platform data unavailable")

	// ErrTaskNoLongerProcessing is returned when a pipeline write finds the task
	// already moved out of processing by a sweep or a reset.
	ErrTaskNoLongerProcessing = errors.New("task is no longer processing")

	// ErrStaleAbandoned is recorded on tasks reaped by the staleness sweep.
	ErrStaleAbandoned = errors.New("task abandoned by worker")
)
