// Package orchestrator owns the single-request flow: fingerprint, cache lookup, rate-limit gate,
// provider call with fallback, availability enrichment, cache write, and response assembly.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/bizq-orchestrator/internal/clock"
	"github.com/JakeFAU/bizq-orchestrator/internal/ledger"
	"github.com/JakeFAU/bizq-orchestrator/internal/metrics"
	"github.com/JakeFAU/bizq-orchestrator/internal/prompt"
	"github.com/JakeFAU/bizq-orchestrator/internal/provider"
	"github.com/JakeFAU/bizq-orchestrator/internal/telemetry"
)

// DefaultAvailabilityConcurrency bounds parallel availability lookups per response.
const DefaultAvailabilityConcurrency = 4

// Credits is the price list per provenance and operation.
type Credits struct {
	Cache         int
	Fallback      int
	AI            int
	Generate      int
	BulkPerTarget int
}

// DefaultCredits returns the standard price list.
func DefaultCredits() Credits {
	return Credits{Cache: 1, Fallback: 5, AI: 10, Generate: 15, BulkPerTarget: 5}
}

// For returns the price of a single response with the given provenance.
func (c Credits) For(source Source) int {
	switch source {
	case SourceCache:
		return c.Cache
	case SourceFallback:
		return c.Fallback
	default:
		return c.AI
	}
}

// Options wires a Service. Cache, Limiter and Generator are required.
type Options struct {
	Cache        CandidateCache
	Limiter      Limiter
	Generator    Generator
	Availability AvailabilityChecker
	Ledger       Ledger
	Clock        Clock
	Logger       *zap.Logger
	Credits      Credits
	// CacheTTL is passed to every cache write; zero lets the cache pick its default.
	CacheTTL                time.Duration
	AvailabilityConcurrency int
}

// Service runs orchestration requests. It is safe for concurrent use.
type Service struct {
	cache        CandidateCache
	limiter      Limiter
	generator    Generator
	availability AvailabilityChecker
	ledger       Ledger
	clock        Clock
	logger       *zap.Logger
	credits      Credits
	cacheTTL     time.Duration
	concurrency  int
	backend      string
}

// NewService validates opts and builds a Service.
func NewService(opts Options) (*Service, error) {
	switch {
	case opts.Cache == nil:
		return nil, errors.New("orchestrator: cache is required")
	case opts.Limiter == nil:
		return nil, errors.New("orchestrator: limiter is required")
	case opts.Generator == nil:
		return nil, errors.New("orchestrator: generator is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Ledger == nil {
		opts.Ledger = ledger.Nop{}
	}
	if opts.Credits == (Credits{}) {
		opts.Credits = DefaultCredits()
	}
	if opts.AvailabilityConcurrency <= 0 {
		opts.AvailabilityConcurrency = DefaultAvailabilityConcurrency
	}
	backend := "default"
	if b, ok := opts.Generator.(interface{ Backend() string }); ok {
		backend = b.Backend()
	}
	return &Service{
		cache:        opts.Cache,
		limiter:      opts.Limiter,
		generator:    opts.Generator,
		availability: opts.Availability,
		ledger:       opts.Ledger,
		clock:        opts.Clock,
		logger:       opts.Logger.Named("orchestrator"),
		credits:      opts.Credits,
		cacheTTL:     opts.CacheTTL,
		concurrency:  opts.AvailabilityConcurrency,
		backend:      backend,
	}, nil
}

// Credits returns the configured price list.
func (s *Service) Credits() Credits {
	return s.credits
}

// Suggest produces name candidates for an industry.
func (s *Service) Suggest(ctx context.Context, req Request) (Response, error) {
	req.Kind = KindSuggestion
	return s.handle(ctx, req, ledger.OpSuggest)
}

// Task produces one free-form answer for a business task.
func (s *Service) Task(ctx context.Context, req Request) (Response, error) {
	req.Kind = KindTask
	return s.handle(ctx, req, ledger.OpTask)
}

func (s *Service) handle(ctx context.Context, req Request, op ledger.Operation) (Response, error) {
	ctx, span := telemetry.Tracer("orchestrator").Start(ctx, "orchestrator."+string(op),
		trace.WithAttributes(attribute.String("bizq.client_id", req.ClientID)))
	defer span.End()

	resp, err := s.serve(ctx, req, op)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return resp, err
	}
	span.SetAttributes(
		attribute.String("bizq.source", string(resp.Source)),
		attribute.Int("bizq.credits", resp.Credits),
	)
	return resp, nil
}

func (s *Service) serve(ctx context.Context, req Request, op ledger.Operation) (Response, error) {
	start := s.clock.Now()
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return Response{}, err
	}
	key := req.CacheKey()
	logger := s.logger.With(zap.String("kind", string(req.Kind)), zap.String("cache_key", key))

	if !req.SkipCacheRead {
		if cached, ok := s.cache.Get(ctx, key); ok {
			return s.finish(ctx, op, req, key, cached, SourceCache, start), nil
		}
	}

	if err := s.Admit(ctx, req.ClientID); err != nil {
		return Response{}, err
	}

	items, err := s.callProvider(ctx, req)
	if err != nil {
		logger.Warn("provider failed, serving fallback", zap.Error(err))
		fallback := []Candidate{{Name: fallbackText(req)}}
		return s.finish(ctx, op, req, key, fallback, SourceFallback, start), nil
	}
	if len(items) == 0 {
		logger.Warn("provider returned no results")
		return Response{}, ErrEmptyGeneration
	}

	candidates := s.enrich(ctx, req, items)
	s.cache.Set(ctx, key, req.Category, candidates, s.cacheTTL)
	return s.finish(ctx, op, req, key, candidates, SourceAI, start), nil
}

// Admit consults the rate limiter for clientID. Limiter errors are logged and admitted.
func (s *Service) Admit(ctx context.Context, clientID string) error {
	if clientID == "" {
		clientID = AnonymousClient
	}
	allowed, err := s.limiter.Allow(ctx, clientID)
	switch {
	case err != nil:
		s.logger.Error("rate limiter unavailable, admitting request",
			zap.String("client_id", clientID), zap.Error(err))
		metrics.ObserveRateLimit("error")
		return nil
	case !allowed:
		metrics.ObserveRateLimit("rejected")
		return ErrRateLimited
	default:
		metrics.ObserveRateLimit("allowed")
		return nil
	}
}

// Resolve answers one request without rate limiting, charging or fallback: a provider failure is
// returned as the error. The bulk dispatcher uses it once per target after admitting the batch.
func (s *Service) Resolve(ctx context.Context, req Request) (Response, error) {
	start := s.clock.Now()
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return Response{}, err
	}
	key := req.CacheKey()
	if cached, ok := s.cache.Get(ctx, key); ok {
		return s.assemble(req, key, cached, SourceCache, start), nil
	}
	items, err := s.callProvider(ctx, req)
	if err != nil {
		return Response{}, err
	}
	if len(items) == 0 {
		return Response{}, ErrEmptyGeneration
	}
	candidates := s.enrich(ctx, req, items)
	s.cache.Set(ctx, key, req.Category, candidates, s.cacheTTL)
	return s.assemble(req, key, candidates, SourceAI, start), nil
}

// ChargeBatch bills a bulk batch at the flat per-target price and returns the total.
func (s *Service) ChargeBatch(ctx context.Context, clientID string, targets int) int {
	total := targets * s.credits.BulkPerTarget
	s.charge(ctx, ledger.Charge{ClientID: clientID, Operation: ledger.OpBulk, Credits: total})
	return total
}

// Generate renders a content-generation prompt and returns the provider output. It is rate
// limited but never cached and has no fallback.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	req.ContentType = strings.TrimSpace(req.ContentType)
	if req.ContentType == "" {
		return GenerateResult{}, invalidf("type is required")
	}
	clientID := strings.TrimSpace(req.ClientID)
	if clientID == "" {
		clientID = AnonymousClient
	}
	if err := s.Admit(ctx, clientID); err != nil {
		return GenerateResult{}, err
	}

	items, err := s.generate(ctx, provider.Request{
		Prompt:     prompt.Generation(req.ContentType, req.Context),
		MaxResults: 1,
		Format:     provider.FormatText,
	})
	if err != nil {
		return GenerateResult{}, err
	}
	if len(items) == 0 {
		return GenerateResult{}, ErrEmptyGeneration
	}

	out := GenerateResult{ContentType: req.ContentType, Text: items[0], Credits: s.credits.Generate}
	if req.Structured {
		if doc, ok := decodeStructured(items[0]); ok {
			out.Structured = doc
		}
	}
	s.charge(ctx, ledger.Charge{ClientID: clientID, Operation: ledger.OpGenerate, Credits: out.Credits})
	metrics.ObserveResponse(string(SourceAI))
	return out, nil
}

// Probe asks the provider a trivial question to confirm it answers.
func (s *Service) Probe(ctx context.Context) (string, error) {
	items, err := s.generate(ctx, provider.Request{Prompt: prompt.ProbePrompt, MaxResults: 1, Format: provider.FormatText})
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "", ErrEmptyGeneration
	}
	return items[0], nil
}

func (s *Service) callProvider(ctx context.Context, req Request) ([]string, error) {
	preq := provider.Request{MaxResults: req.Limit, Format: provider.FormatStructured}
	if req.Kind == KindTask {
		preq.Prompt = prompt.Task(req.Category, req.Content)
		preq.MaxResults = 1
		preq.Format = provider.FormatText
	} else {
		preq.Prompt = prompt.Suggestions(req.Category, req.Keywords, req.Limit)
	}
	items, err := s.generate(ctx, preq)
	if err != nil {
		return nil, err
	}
	if len(items) > preq.MaxResults {
		items = items[:preq.MaxResults]
	}
	return items, nil
}

func (s *Service) generate(ctx context.Context, req provider.Request) ([]string, error) {
	start := time.Now()
	items, err := s.generator.Generate(ctx, req)
	outcome := "success"
	switch {
	case errors.Is(err, provider.ErrTimeout):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	case len(items) == 0:
		outcome = "empty"
	}
	metrics.ObserveProviderCall(s.backend, outcome, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", s.backend, err)
	}
	return items, nil
}

// enrich turns provider items into candidates, checking availability concurrently when asked.
// Order follows the provider output.
func (s *Service) enrich(ctx context.Context, req Request, items []string) []Candidate {
	candidates := make([]Candidate, len(items))
	for i, name := range items {
		candidates[i] = Candidate{Name: name, TLD: req.TLD}
	}
	if !req.Verify || s.availability == nil || req.Kind != KindSuggestion {
		return candidates
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range candidates {
		g.Go(func() error {
			available, err := s.availability.Check(gctx, candidates[i].Name, req.TLD)
			if err != nil {
				available = true
			}
			candidates[i].Available = ptr(available)
			return nil
		})
	}
	_ = g.Wait()
	return candidates
}

func (s *Service) finish(
	ctx context.Context,
	op ledger.Operation,
	req Request,
	key string,
	candidates []Candidate,
	source Source,
	start time.Time,
) Response {
	resp := s.assemble(req, key, candidates, source, start)
	resp.Credits = s.credits.For(source)
	s.charge(ctx, ledger.Charge{
		ClientID:  req.ClientID,
		Operation: op,
		Source:    string(source),
		Credits:   resp.Credits,
		CacheKey:  key,
		At:        s.clock.Now(),
	})
	metrics.ObserveResponse(string(source))
	return resp
}

func (s *Service) assemble(req Request, key string, candidates []Candidate, source Source, start time.Time) Response {
	if len(candidates) > req.Limit && req.Limit > 0 {
		candidates = candidates[:req.Limit]
	}
	elapsed := s.clock.Now().Sub(start)
	return Response{
		Request:    req,
		Candidates: candidates,
		Source:     source,
		Elapsed:    elapsed,
		ElapsedMS:  float64(elapsed.Microseconds()) / 1000,
		CacheKey:   key,
	}
}

func (s *Service) charge(ctx context.Context, c ledger.Charge) {
	if c.At.IsZero() {
		c.At = s.clock.Now()
	}
	if err := s.ledger.Record(ctx, c); err != nil {
		s.logger.Warn("failed to record charge",
			zap.String("client_id", c.ClientID), zap.Int("credits", c.Credits), zap.Error(err))
	}
}

// fallbackText picks canned advice keyed by the request category. Suggestions carry no content,
// so their industry and keywords stand in for it.
func fallbackText(req Request) string {
	content := req.Content
	if req.Kind == KindSuggestion {
		content = strings.TrimSpace(req.Category + " " + strings.Join(req.Keywords, " "))
	}
	return prompt.Fallback(req.Category, content)
}

// decodeStructured parses text as JSON, tolerating a fenced code block around it.
func decodeStructured(text string) (any, bool) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, false
	}
	return doc, true
}
