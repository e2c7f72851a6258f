package availability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/bizq-orchestrator/internal/metrics"
)

// PacingConfig sets the per-TLD token bucket. WHOIS registries throttle aggressively, so lookups
// against one TLD share a bucket.
type PacingConfig struct {
	// PerSecond is the sustained lookup rate per TLD. Zero or less disables pacing.
	PerSecond float64
	Burst     int
}

// Paced delays lookups so each TLD's WHOIS server sees at most PerSecond queries.
type Paced struct {
	next  Checker
	rate  rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewPaced wraps next with per-TLD pacing.
func NewPaced(next Checker, cfg PacingConfig) *Paced {
	r := rate.Limit(cfg.PerSecond)
	if cfg.PerSecond <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Paced{next: next, rate: r, burst: burst, buckets: make(map[string]*rate.Limiter)}
}

// Check waits for a token for tld, then delegates. A cancelled wait is returned as an error.
func (p *Paced) Check(ctx context.Context, name, tld string) (bool, error) {
	start := time.Now()
	if err := p.bucket(tld).Wait(ctx); err != nil {
		return false, fmt.Errorf("whois pacing %s: %w", tld, err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveWhoisPacingDelay(tld, waited)
	}
	return p.next.Check(ctx, name, tld)
}

func (p *Paced) bucket(tld string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.buckets[tld]
	if !ok {
		b = rate.NewLimiter(p.rate, p.burst)
		p.buckets[tld] = b
	}
	return b
}
