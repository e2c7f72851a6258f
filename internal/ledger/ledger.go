// Package ledger records the credits charged for each response.
package ledger

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrMissingClient is returned when a charge has no client identifier.
var ErrMissingClient = errors.New("charge has no client id")

// Operation names the endpoint family a charge came from.
type Operation string

// Charged operations.
const (
	OpSuggest  Operation = "suggest"
	OpTask     Operation = "task"
	OpBulk     Operation = "bulk"
	OpGenerate Operation = "generate"
)

// Charge is one billable event.
type Charge struct {
	ClientID  string
	Operation Operation
	// Source is the response provenance (cache, ai, fallback), empty for bulk and generate.
	Source   string
	Credits  int
	CacheKey string
	At       time.Time
}

// Validate checks the fields every backend requires.
func (c Charge) Validate() error {
	if c.ClientID == "" {
		return ErrMissingClient
	}
	if c.Credits < 0 {
		return errors.New("charge credits must not be negative")
	}
	return nil
}

// Recorder persists charges.
type Recorder interface {
	Record(ctx context.Context, charge Charge) error
}

// Nop discards charges.
type Nop struct{}

// Record does nothing.
func (Nop) Record(context.Context, Charge) error { return nil }

// Memory keeps per-client totals in process. Totals reset on restart.
type Memory struct {
	mu     sync.Mutex
	totals map[string]int
	count  int
}

// NewMemory builds an empty Memory ledger.
func NewMemory() *Memory {
	return &Memory{totals: make(map[string]int)}
}

// Record adds charge.Credits to the client's total.
func (m *Memory) Record(_ context.Context, charge Charge) error {
	if err := charge.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals[charge.ClientID] += charge.Credits
	m.count++
	return nil
}

// Total returns the credits charged to clientID so far.
func (m *Memory) Total(_ context.Context, clientID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals[clientID], nil
}

// Count returns how many charges were recorded.
func (m *Memory) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}
