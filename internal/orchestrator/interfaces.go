package orchestrator

import (
	"context"
	"time"

	"github.com/JakeFAU/bizq-orchestrator/internal/ledger"
	"github.com/JakeFAU/bizq-orchestrator/internal/provider"
)

// CandidateCache reads and writes candidate lists by cache key. Implementations absorb their own
// failures: a broken store behaves like an empty one.
type CandidateCache interface {
	Get(ctx context.Context, key string) ([]Candidate, bool)
	Set(ctx context.Context, key, category string, candidates []Candidate, ttl time.Duration)
}

// Limiter gates fresh generations per client.
type Limiter interface {
	Allow(ctx context.Context, clientID string) (bool, error)
}

// Generator produces ordered text items for a prompt.
type Generator interface {
	Generate(ctx context.Context, req provider.Request) ([]string, error)
}

// AvailabilityChecker reports whether name.tld can be registered.
type AvailabilityChecker interface {
	Check(ctx context.Context, name, tld string) (bool, error)
}

// Ledger records credits charged per client.
type Ledger interface {
	Record(ctx context.Context, charge ledger.Charge) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
