// Package availability answers whether a domain name can still be registered.
//
// Lookups go through a WHOIS client library and are treated as opaque. The orchestrator only
// ever talks to the FailOpen wrapper: a broken lookup reports "available" rather than blocking a
// suggestion.
package availability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"
	"go.uber.org/zap"

	"github.com/JakeFAU/bizq-orchestrator/internal/metrics"
)

// DefaultTimeout bounds a single WHOIS query.
const DefaultTimeout = 5 * time.Second

// ErrInvalidName is returned for names that cannot form a domain.
var ErrInvalidName = errors.New("invalid domain name")

// Checker reports whether name.tld is free.
type Checker interface {
	Check(ctx context.Context, name, tld string) (bool, error)
}

// Whois looks domains up with a WHOIS client and classifies the parsed record.
type Whois struct {
	lookup func(domain string) (string, error)
	parse  func(text string) (whoisparser.WhoisInfo, error)
}

// NewWhois builds a WHOIS checker whose queries time out after timeout.
func NewWhois(timeout time.Duration) *Whois {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := whois.NewClient().SetTimeout(timeout)
	return &Whois{
		lookup: func(domain string) (string, error) { return client.Whois(domain) },
		parse:  whoisparser.Parse,
	}
}

type result struct {
	available bool
	err       error
}

// Check queries WHOIS for name.tld. A "not found" record means available; a parsed record with
// a domain means taken; anything else is an error. The WHOIS client is not context aware, so the
// lookup runs in its own goroutine and ctx cancellation abandons it.
func (w *Whois) Check(ctx context.Context, name, tld string) (bool, error) {
	domain, err := Domain(name, tld)
	if err != nil {
		return false, err
	}

	done := make(chan result, 1)
	go func() {
		available, err := w.classify(domain)
		done <- result{available: available, err: err}
	}()

	select {
	case r := <-done:
		return r.available, r.err
	case <-ctx.Done():
		return false, fmt.Errorf("whois %s: %w", domain, ctx.Err())
	}
}

func (w *Whois) classify(domain string) (bool, error) {
	raw, err := w.lookup(domain)
	if err != nil {
		return false, fmt.Errorf("whois %s: %w", domain, err)
	}
	info, err := w.parse(raw)
	if errors.Is(err, whoisparser.ErrNotFoundDomain) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("parse whois %s: %w", domain, err)
	}
	if info.Domain == nil || info.Domain.Domain == "" {
		return false, fmt.Errorf("parse whois %s: record has no domain", domain)
	}
	return false, nil
}

// Domain lower-cases name, strips spaces and any trailing TLD, and joins it with tld.
func Domain(name, tld string) (string, error) {
	tld = strings.ToLower(strings.Trim(strings.TrimSpace(tld), "."))
	label := strings.ToLower(strings.Join(strings.Fields(name), ""))
	if tld != "" {
		label = strings.TrimSuffix(label, "."+tld)
	}
	if label == "" || tld == "" || strings.ContainsAny(label, "/:@") {
		return "", fmt.Errorf("%w: %q.%q", ErrInvalidName, name, tld)
	}
	return label + "." + tld, nil
}

// FailOpen wraps a Checker so that every error resolves to available.
type FailOpen struct {
	next    Checker
	logger  *zap.Logger
	timeout time.Duration
}

// NewFailOpen wraps next. A positive timeout bounds each check.
func NewFailOpen(next Checker, logger *zap.Logger, timeout time.Duration) *FailOpen {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FailOpen{next: next, logger: logger.Named("availability"), timeout: timeout}
}

// Check never returns an error.
func (f *FailOpen) Check(ctx context.Context, name, tld string) (bool, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	available, err := f.next.Check(ctx, name, tld)
	if err != nil {
		f.logger.Warn("availability lookup failed, assuming available",
			zap.String("name", name), zap.String("tld", tld), zap.Error(err))
		metrics.ObserveAvailability("error")
		return true, nil
	}
	if available {
		metrics.ObserveAvailability("available")
	} else {
		metrics.ObserveAvailability("taken")
	}
	return available, nil
}
