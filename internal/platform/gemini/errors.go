package gemini

import "errors"

// Error definitions for the gemini package.
var (
	// ErrEmptyStats is returned when there is nothing to summarize.
	ErrEmptyStats = errors.New("platform stats cannot be empty")
)
