// Package id generates identifiers for bulk batches and requests.
package id

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator produces unique string IDs.
type Generator interface {
	NewID() (string, error)
}

// UUID7 creates time-ordered UUID v7 strings.
type UUID7 struct{}

// New creates a UUID7 generator.
func New() UUID7 {
	return UUID7{}
}

// NewID returns a UUID7 string.
func (UUID7) NewID() (string, error) {
	v, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return v.String(), nil
}

// Must returns g.NewID, falling back to a random v4 UUID if v7 generation fails.
func Must(g Generator) string {
	if v, err := g.NewID(); err == nil {
		return v
	}
	return uuid.NewString()
}
