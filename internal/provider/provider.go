// Package provider defines the generation capability the orchestrator depends on, the normalized
// failure errors every backend returns, and the list parsing shared by all backends.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/JakeFAU/bizq-orchestrator/internal/telemetry"
)

// DefaultTimeout is the hard wall-clock limit applied to a single provider call.
const DefaultTimeout = 30 * time.Second

// MinItemLength drops list lines that are too short to be a real suggestion.
const MinItemLength = 3

var (
	// ErrGenerationFailed is the single normalized provider failure.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrTimeout marks a failure caused by the call deadline. It always wraps ErrGenerationFailed.
	ErrTimeout = fmt.Errorf("%w: provider timed out", ErrGenerationFailed)
	// ErrEmptyOutput marks a call that succeeded but produced only whitespace.
	ErrEmptyOutput = fmt.Errorf("%w: provider returned no text", ErrGenerationFailed)
)

// Format selects how provider output is interpreted.
type Format string

const (
	// FormatText keeps the whole response as one item.
	FormatText Format = "text"
	// FormatStructured parses the response into a list of items.
	FormatStructured Format = "structured"
)

// Request is one generation call.
type Request struct {
	Prompt     string
	MaxResults int
	Format     Format
}

// Generator produces ordered text items for a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) ([]string, error)
}

// Completer is the raw text completion a backend performs. Generate wraps it with timeouts,
// failure normalization and parsing.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
}

// Client adapts a Completer into a Generator.
type Client struct {
	completer Completer
	timeout   time.Duration
}

// New builds a Client. A non-positive timeout uses DefaultTimeout.
func New(c Completer, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{completer: c, timeout: timeout}
}

// Backend reports the underlying completer name.
func (c *Client) Backend() string {
	return c.completer.Name()
}

// Generate runs the completer under the hard timeout and parses its output. Successful calls can
// still return an empty slice; callers decide what that means.
func (c *Client) Generate(ctx context.Context, req Request) ([]string, error) {
	ctx, span := telemetry.Tracer("provider").Start(ctx, "provider.generate", trace.WithAttributes(
		attribute.String("bizq.backend", c.completer.Name()),
		attribute.String("bizq.format", string(req.Format)),
	))
	defer span.End()

	var text string
	err := WithTimeout(ctx, c.timeout, func(ctx context.Context) error {
		var err error
		text, err = c.completer.Complete(ctx, req.Prompt)
		return err
	})
	trimmed := strings.TrimSpace(text)
	if err == nil && trimmed == "" {
		err = ErrEmptyOutput
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if req.Format == FormatText {
		return []string{trimmed}, nil
	}
	return ParseList(text, req.MaxResults), nil
}

// WithTimeout runs fn under a deadline and normalizes its error: deadline expiry becomes
// ErrTimeout and everything else is wrapped in ErrGenerationFailed.
func WithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrGenerationFailed):
		return err
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
}

var (
	fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	listMarker  = regexp.MustCompile(`^(?:[-*•]+|\d+[.)])\s*`)
)

// ParseList extracts up to max items from text. A JSON array of strings wins, whether bare,
// embedded in prose, or inside a fenced code block. Otherwise each line is stripped of quotes,
// brackets, commas and list markers, and lines shorter than MinItemLength are dropped.
// A non-positive max means no limit.
func ParseList(text string, max int) []string {
	items, ok := parseJSONList(text)
	if !ok {
		items = parseLines(text)
	}
	if max > 0 && len(items) > max {
		items = items[:max]
	}
	return items
}

func parseJSONList(text string) ([]string, bool) {
	candidates := []string{strings.TrimSpace(text)}
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if start, end := strings.Index(text, "["), strings.LastIndex(text, "]"); start >= 0 && end > start {
		candidates = append(candidates, text[start:end+1])
	}
	for _, c := range candidates {
		var raw []string
		if err := json.Unmarshal([]byte(c), &raw); err != nil {
			continue
		}
		out := make([]string, 0, len(raw))
		for _, s := range raw {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out, true
	}
	return nil, false
}

func parseLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = listMarker.ReplaceAllString(line, "")
		line = strings.Trim(line, "\"',[] \t")
		if len([]rune(line)) < MinItemLength {
			continue
		}
		out = append(out, line)
	}
	return out
}
