package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited is surfaced when the client exceeded its sliding-window budget.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrEmptyGeneration is surfaced when the provider succeeded but produced nothing usable.
	ErrEmptyGeneration = errors.New("generation failed: provider returned no results")
	// ErrInvalidRequest wraps request validation failures.
	ErrInvalidRequest = errors.New("invalid request")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
