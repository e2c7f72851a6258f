package orchestrator

import (
	"strings"
	"time"

	"github.com/JakeFAU/bizq-orchestrator/internal/fingerprint"
)

// Kind distinguishes the two single-request flows.
type Kind string

const (
	// KindSuggestion asks the provider for a list of name candidates.
	KindSuggestion Kind = "suggestion"
	// KindTask asks the provider for one free-form answer to a business task.
	KindTask Kind = "task"
)

// Source is the provenance tag attached to every Response.
type Source string

const (
	// SourceCache marks a response served from the cache store.
	SourceCache Source = "cache"
	// SourceAI marks a freshly generated response.
	SourceAI Source = "ai"
	// SourceFallback marks a templated response produced after a provider failure.
	SourceFallback Source = "fallback"
)

// Task types with dedicated prompt prefixes and fallback texts.
const (
	TaskFinancial  = "financial"
	TaskMarketing  = "marketing"
	TaskStrategy   = "strategy"
	TaskOperations = "operations"
	TaskGeneral    = "general"
)

// Request limits.
const (
	MinLimit     = 1
	MaxLimit     = 20
	DefaultLimit = 10
	DefaultTLD   = "com"
)

// AnonymousClient is the rate-limit and billing identity used when a request carries none.
const AnonymousClient = "anonymous"

// Request is one inbound orchestration request. Values are treated as immutable; Normalize
// returns a copy.
type Request struct {
	Kind     Kind     `json:"kind"`
	Category string   `json:"category"`
	Content  string   `json:"content,omitempty"`
	Keywords []string `json:"keywords"`
	Limit    int      `json:"limit"`
	Verify   bool     `json:"check_availability"`
	ClientID string   `json:"client_id,omitempty"`
	TLD      string   `json:"tld,omitempty"`
	// SkipCacheRead forces a fresh generation; the result is still written to the cache.
	SkipCacheRead bool `json:"-"`
}

// Normalize returns a copy with defaults applied and keywords lower-cased, sorted, and
// de-duplicated. Category keeps the caller's casing for display; the fingerprint lower-cases it.
func (r Request) Normalize() Request {
	out := r
	out.Category = strings.TrimSpace(r.Category)
	out.Content = strings.TrimSpace(r.Content)
	out.Keywords = fingerprint.Normalize(r.Keywords)
	out.ClientID = strings.TrimSpace(r.ClientID)
	if out.ClientID == "" {
		out.ClientID = AnonymousClient
	}
	if out.Kind == "" {
		out.Kind = KindSuggestion
	}
	if out.Kind == KindTask {
		if out.Category == "" {
			out.Category = TaskGeneral
		}
		out.Limit = 1
		out.Verify = false
		out.TLD = ""
		return out
	}
	if out.Limit == 0 {
		out.Limit = DefaultLimit
	}
	if out.TLD == "" {
		out.TLD = DefaultTLD
	}
	out.TLD = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(out.TLD), "."))
	return out
}

// Validate checks a normalized request.
func (r Request) Validate() error {
	switch r.Kind {
	case KindSuggestion:
		if r.Category == "" {
			return invalidf("industry is required")
		}
		if r.Limit < MinLimit || r.Limit > MaxLimit {
			return invalidf("limit must be between %d and %d", MinLimit, MaxLimit)
		}
	case KindTask:
		if r.Content == "" {
			return invalidf("content is required")
		}
	default:
		return invalidf("unknown request kind %q", r.Kind)
	}
	return nil
}

// CacheKey returns the fingerprint of the request.
func (r Request) CacheKey() string {
	return fingerprint.Key(fingerprint.Input{
		Kind:     string(r.Kind),
		Category: r.Category,
		Content:  r.Content,
		Keywords: r.Keywords,
		Limit:    r.Limit,
		TLD:      r.TLD,
	})
}

// Candidate is one generated item. Available is nil when availability is unknown.
type Candidate struct {
	Name      string `json:"name"`
	Available *bool  `json:"available"`
	TLD       string `json:"tld,omitempty"`
}

// Response is the assembled result of a single request.
type Response struct {
	Request    Request       `json:"request"`
	Candidates []Candidate   `json:"candidates"`
	Source     Source        `json:"source"`
	Elapsed    time.Duration `json:"-"`
	ElapsedMS  float64       `json:"processing_time_ms"`
	Credits    int           `json:"credits"`
	CacheKey   string        `json:"cache_key"`
}

// Text joins the candidate names, which for a task response is the single answer.
func (r Response) Text() string {
	names := make([]string, 0, len(r.Candidates))
	for _, c := range r.Candidates {
		names = append(names, c.Name)
	}
	return strings.Join(names, "\n")
}

// BulkRequest fans one task out across several targets.
type BulkRequest struct {
	TargetIDs []string `json:"target_ids"`
	Content   string   `json:"content"`
	TaskType  string   `json:"type"`
	ClientID  string   `json:"client_id,omitempty"`
}

// BulkResult is the independent outcome for one target.
type BulkResult struct {
	TargetID string    `json:"businessId"`
	Success  bool      `json:"success"`
	Cached   bool      `json:"cached,omitempty"`
	Response *Response `json:"response,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// BulkResponse aggregates all per-target results.
type BulkResponse struct {
	BatchID      string       `json:"batch_id"`
	Results      []BulkResult `json:"results"`
	TotalCredits int          `json:"totalCredits"`
	Succeeded    int          `json:"succeeded"`
	Failed       int          `json:"failed"`
}

// GenerateRequest asks for a piece of content rendered from a context document.
type GenerateRequest struct {
	ContentType string         `json:"type"`
	Context     map[string]any `json:"context"`
	Structured  bool           `json:"-"`
	ClientID    string         `json:"client_id,omitempty"`
}

// GenerateResult carries generated content. Structured is set when the provider returned a JSON
// document and the caller asked for one.
type GenerateResult struct {
	ContentType string `json:"type"`
	Text        string `json:"text,omitempty"`
	Structured  any    `json:"structured,omitempty"`
	Credits     int    `json:"credits"`
}

func ptr[T any](v T) *T { return &v }
