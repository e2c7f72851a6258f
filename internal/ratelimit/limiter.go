// Package ratelimit implements sliding-window admission control keyed by client identifier.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JakeFAU/bizq-orchestrator/internal/clock"
)

// Defaults applied when Config leaves a field unset.
const (
	DefaultLimit  = 50
	DefaultWindow = time.Hour
)

// ErrEmptyClientID is returned when Allow is called without a client identifier.
var ErrEmptyClientID = errors.New("client id is required")

// Config holds rate limiter configuration.
type Config struct {
	// Limit is the maximum number of admitted requests per client inside Window.
	Limit int
	// Window is the trailing interval over which requests are counted.
	Window time.Duration
}

func (c Config) withDefaults() Config {
	if c.Limit <= 0 {
		c.Limit = DefaultLimit
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	return c
}

// Window is an in-memory sliding-window limiter. State is not persisted and resets on restart.
type Window struct {
	mu      sync.Mutex
	clients map[string][]time.Time
	limit   int
	window  time.Duration
	clock   clock.Clock
}

// NewWindow creates a Window limiter. A nil clock uses the system clock.
func NewWindow(cfg Config, clk clock.Clock) *Window {
	cfg = cfg.withDefaults()
	if clk == nil {
		clk = clock.New()
	}
	return &Window{
		clients: make(map[string][]time.Time),
		limit:   cfg.Limit,
		window:  cfg.Window,
		clock:   clk,
	}
}

// Allow reports whether clientID may make another request. Timestamps older than the window are
// pruned for that client first; on admission the current time is recorded.
func (w *Window) Allow(_ context.Context, clientID string) (bool, error) {
	if clientID == "" {
		return false, ErrEmptyClientID
	}
	now := w.clock.Now()
	cutoff := now.Add(-w.window)

	w.mu.Lock()
	defer w.mu.Unlock()

	stamps := prune(w.clients[clientID], cutoff)
	if len(stamps) >= w.limit {
		w.clients[clientID] = stamps
		return false, nil
	}
	w.clients[clientID] = append(stamps, now)
	return true, nil
}

// Sweep drops clients whose every timestamp has left the window. It bounds memory for idle clients.
func (w *Window) Sweep() int {
	cutoff := w.clock.Now().Add(-w.window)

	w.mu.Lock()
	defer w.mu.Unlock()

	removed := 0
	for id, stamps := range w.clients {
		if len(stamps) == 0 || stamps[len(stamps)-1].Before(cutoff) {
			delete(w.clients, id)
			removed++
		}
	}
	return removed
}

// Clients returns the number of tracked client windows.
func (w *Window) Clients() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.clients)
}

// StartJanitor runs Sweep every interval until ctx is canceled.
func (w *Window) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				w.Sweep()
			}
		}
	}()
}

// prune drops timestamps strictly before cutoff. Timestamps are appended in arrival order, so the
// slice is sorted and the first kept index marks the boundary.
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && stamps[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return stamps
	}
	kept := make([]time.Time, len(stamps)-i, max(len(stamps)-i, 1))
	copy(kept, stamps[i:])
	return kept
}
