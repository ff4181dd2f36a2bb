// Package mocks provides shared mock implementations for tests.
//
// Each mock carries a function field per interface method plus default
// return values, so a test can either script one call or set a fixed answer:
//
//	gen := &mocks.MockContentGenerator{
//	    GenerateFn: func(ctx context.Context, stats *domain.PlatformStats, style domain.Style) (*domain.GeneratedContent, error) {
//	        return nil, generation.ErrContentBlocked
//	    },
//	}
//
// Stateful fakes that emulate storage live in internal/testutils instead.
package mocks
