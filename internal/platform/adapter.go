// Package platform holds the adapters that talk to external services and
// the Adapter contract every social-platform data source implements.
package platform

import (
	"context"
	"fmt"

	"github.com/recaphq/recap-api/internal/domain"
)

// Adapter fetches public profile data from one social platform.
type Adapter interface {
	// Platform names the platform served by this adapter.
	Platform() domain.Platform

	// Fetch returns normalized stats. A stats value whose Status is not ok
	// means the platform could not serve the user right now.
	Fetch(ctx context.Context, username string) (*domain.PlatformStats, error)

	// UserExists reports whether the platform knows username.
	UserExists(ctx context.Context, username string) (bool, error)
}

// Registry resolves adapters by platform.
type Registry map[domain.Platform]Adapter

// NewRegistry indexes adapters by the platform they serve.
func NewRegistry(adapters ...Adapter) Registry {
	r := make(Registry, len(adapters))
	for _, a := range adapters {
		r[a.Platform()] = a
	}
	return r
}

// Get returns the adapter for p or domain.ErrUnsupportedPlatform.
func (r Registry) Get(p domain.Platform) (Adapter, error) {
	a, ok := r[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedPlatform, p)
	}
	return a, nil
}
