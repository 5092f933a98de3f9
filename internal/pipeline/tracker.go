// Package pipeline coordinates stage execution: run tracking, retries with
// backoff, and the end-to-end orchestrator.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"tradeledger/internal/domain"
	"tradeledger/internal/observability"
	"tradeledger/internal/storage"
)

// StaleRunAge marks a RUNNING row as crashed when it is older than this.
const StaleRunAge = 2 * time.Hour

// Tracker records every stage invocation in pipeline_runs.
type Tracker struct {
	runs    storage.PipelineRunStore
	logger  *log.Logger
	metrics *observability.Metrics
}

// TrackerOptions contains configuration for creating a Tracker.
type TrackerOptions struct {
	PipelineRunStore storage.PipelineRunStore
	Logger           *log.Logger
	Metrics          *observability.Metrics
}

// NewTracker creates a new Tracker.
func NewTracker(opts TrackerOptions) *Tracker {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Tracker{
		runs:    opts.PipelineRunStore,
		logger:  logger,
		metrics: opts.Metrics,
	}
}

// Run is a live handle on one stage invocation. Counter methods are safe for
// concurrent workers.
type Run struct {
	tracker *Tracker
	run     *domain.PipelineRun

	processed atomic.Int64
	created   atomic.Int64
	updated   atomic.Int64
	skipped   atomic.Int64
}

// Begin inserts a RUNNING row and returns its handle. Existing stale RUNNING
// rows for the stage are logged; they indicate a crashed worker whose files
// hold expired leases.
func (t *Tracker) Begin(ctx context.Context, stage string, filters map[string]string) (*Run, error) {
	stale, err := t.runs.ListRunning(ctx, stage)
	if err != nil {
		return nil, fmt.Errorf("list running: %w", err)
	}
	for _, s := range stale {
		if time.Since(s.StartedAt) > StaleRunAge {
			t.logger.Printf("[pipeline] stale RUNNING run_id=%s stage=%s started=%s",
				s.RunID, s.Stage, s.StartedAt.Format(time.RFC3339))
		}
	}

	run := &domain.PipelineRun{
		RunID:     uuid.NewString(),
		Stage:     stage,
		Filters:   filters,
		Status:    domain.RunRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := t.runs.Insert(ctx, run); err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return &Run{tracker: t, run: run}, nil
}

// ID returns the run's identifier.
func (r *Run) ID() string { return r.run.RunID }

// AddProcessed increments the processed counter.
func (r *Run) AddProcessed(n int64) { r.processed.Add(n) }

// AddCreated increments the created counter.
func (r *Run) AddCreated(n int64) { r.created.Add(n) }

// AddUpdated increments the updated counter.
func (r *Run) AddUpdated(n int64) { r.updated.Add(n) }

// AddSkipped increments the skipped counter.
func (r *Run) AddSkipped(n int64) { r.skipped.Add(n) }

// Finish writes the terminal status and counters. runErr, when non-nil, is
// recorded as the failure reason.
func (r *Run) Finish(ctx context.Context, status domain.RunStatus, runErr error) error {
	now := time.Now().UTC()
	r.run.Processed = r.processed.Load()
	r.run.Created = r.created.Load()
	r.run.Updated = r.updated.Load()
	r.run.Skipped = r.skipped.Load()
	r.run.Status = status
	r.run.CompletedAt = &now
	if runErr != nil {
		msg := runErr.Error()
		r.run.ErrorMessage = &msg
	}

	if err := r.tracker.runs.Finish(ctx, r.run); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if r.tracker.metrics != nil {
		r.tracker.metrics.PipelineRunsTotal.WithLabelValues(r.run.Stage, string(status)).Inc()
		r.tracker.metrics.StageDuration.WithLabelValues(r.run.Stage).Observe(now.Sub(r.run.StartedAt).Seconds())
	}
	r.tracker.logger.Printf("[pipeline] %s run_id=%s status=%s processed=%d created=%d skipped=%d in %s",
		r.run.Stage, r.run.RunID, status, r.run.Processed, r.run.Created, r.run.Skipped, now.Sub(r.run.StartedAt).Round(time.Millisecond))
	return nil
}
