// Package dispatcher fans a single task out across many targets with a bounded worker pool.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/bizq-orchestrator/internal/id"
	"github.com/JakeFAU/bizq-orchestrator/internal/metrics"
	"github.com/JakeFAU/bizq-orchestrator/internal/orchestrator"
)

// DefaultConcurrency is the number of targets processed at once.
const DefaultConcurrency = 4

// MaxTargets bounds the size of one batch.
const MaxTargets = 100

// Resolver is the slice of the orchestrator the dispatcher needs.
type Resolver interface {
	Admit(ctx context.Context, clientID string) error
	Resolve(ctx context.Context, req orchestrator.Request) (orchestrator.Response, error)
	ChargeBatch(ctx context.Context, clientID string, targets int) int
}

// Dispatcher runs bulk requests. The rate limiter is consulted once per batch; individual
// targets bypass it.
type Dispatcher struct {
	resolver Resolver
	ids      id.Generator
	workers  int
	logger   *zap.Logger
}

// New creates a Dispatcher. A non-positive workers value uses DefaultConcurrency.
func New(resolver Resolver, ids id.Generator, workers int, logger *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = DefaultConcurrency
	}
	if ids == nil {
		ids = id.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		resolver: resolver,
		ids:      ids,
		workers:  workers,
		logger:   logger.Named("dispatcher"),
	}
}

// Run resolves req.Content for every target. One target's failure never affects another, and
// results keep the input order. Only validation and batch admission fail the whole call.
func (d *Dispatcher) Run(ctx context.Context, req orchestrator.BulkRequest) (orchestrator.BulkResponse, error) {
	if len(req.TargetIDs) == 0 {
		return orchestrator.BulkResponse{}, fmt.Errorf("%w: businessIds must not be empty", orchestrator.ErrInvalidRequest)
	}
	if len(req.TargetIDs) > MaxTargets {
		return orchestrator.BulkResponse{}, fmt.Errorf("%w: at most %d businessIds per batch",
			orchestrator.ErrInvalidRequest, MaxTargets)
	}
	if strings.TrimSpace(req.Content) == "" {
		return orchestrator.BulkResponse{}, fmt.Errorf("%w: content is required", orchestrator.ErrInvalidRequest)
	}
	clientID := strings.TrimSpace(req.ClientID)
	if clientID == "" {
		clientID = orchestrator.AnonymousClient
	}
	if err := d.resolver.Admit(ctx, clientID); err != nil {
		return orchestrator.BulkResponse{}, err
	}

	batchID := id.Must(d.ids)
	logger := d.logger.With(zap.String("batch_id", batchID), zap.Int("targets", len(req.TargetIDs)))
	task := orchestrator.Request{
		Kind:     orchestrator.KindTask,
		Category: req.TaskType,
		Content:  req.Content,
		ClientID: clientID,
	}

	results := make([]orchestrator.BulkResult, len(req.TargetIDs))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for range min(d.workers, len(req.TargetIDs)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = d.runTarget(ctx, req.TargetIDs[i], task)
			}
		}()
	}
	for i := range req.TargetIDs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	out := orchestrator.BulkResponse{BatchID: batchID, Results: results}
	for _, r := range results {
		if r.Success {
			out.Succeeded++
		} else {
			out.Failed++
		}
	}
	out.TotalCredits = d.resolver.ChargeBatch(ctx, clientID, len(req.TargetIDs))
	logger.Info("bulk batch finished", zap.Int("succeeded", out.Succeeded), zap.Int("failed", out.Failed))
	return out, nil
}

func (d *Dispatcher) runTarget(ctx context.Context, targetID string, task orchestrator.Request) (result orchestrator.BulkResult) {
	result.TargetID = targetID
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("bulk target panicked", zap.String("target_id", targetID), zap.Any("panic", r))
			result = orchestrator.BulkResult{TargetID: targetID, Error: fmt.Sprintf("internal error: %v", r)}
		}
		metrics.ObserveBulkTarget(result.Success)
	}()

	if err := ctx.Err(); err != nil {
		result.Error = err.Error()
		return result
	}
	resp, err := d.resolver.Resolve(ctx, task)
	if err != nil {
		d.logger.Warn("bulk target failed", zap.String("target_id", targetID), zap.Error(err))
		result.Error = reason(err)
		return result
	}
	result.Success = true
	result.Cached = resp.Source == orchestrator.SourceCache
	result.Response = &resp
	return result
}

func reason(err error) string {
	if errors.Is(err, orchestrator.ErrEmptyGeneration) {
		return orchestrator.ErrEmptyGeneration.Error()
	}
	return err.Error()
}
