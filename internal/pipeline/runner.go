package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"tradeledger/internal/analytics"
	"tradeledger/internal/domain"
	"tradeledger/internal/identity"
	"tradeledger/internal/ingest"
	"tradeledger/internal/ledger"
	"tradeledger/internal/mirror"
	"tradeledger/internal/risk"
	"tradeledger/internal/serving"
	"tradeledger/internal/standardize"
	"tradeledger/internal/storage"
)

// DefaultFileTimeout bounds one file's processing in any per-file stage.
const DefaultFileTimeout = time.Hour

// claimBatch is how many ready files a stage pulls per scheduling round.
const claimBatch = 256

// errSoftFailed is returned by a stage body for a file that was marked
// FAILED without being the stage's fault. The lease is released and the
// stage keeps going.
var errSoftFailed = errors.New("file soft-failed")

// Runner coordinates the end-to-end pipeline execution.
// Flow: ingest → standardize → identity → ledger → mirror → analytics →
// risk → serving. Per-file stages run worker pools over leased files.
type Runner struct {
	files storage.FileStore

	scanner      *ingest.Scanner
	dataRoot     string
	ingestor     *ingest.Ingestor
	standardizer *standardize.Standardizer
	resolver     *identity.Resolver
	loader       *ledger.Loader
	matcher      *mirror.Matcher
	builder      *analytics.Builder
	engine       *risk.Engine
	refresher    *serving.Refresher

	tracker     *Tracker
	workers     int
	fileTimeout time.Duration
	logger      *log.Logger
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	FileStore storage.FileStore

	Scanner      *ingest.Scanner
	DataRoot     string
	Ingestor     *ingest.Ingestor
	Standardizer *standardize.Standardizer
	Resolver     *identity.Resolver
	Loader       *ledger.Loader
	Matcher      *mirror.Matcher
	Builder      *analytics.Builder
	Engine       *risk.Engine
	Refresher    *serving.Refresher

	Tracker     *Tracker
	Workers     int           // default GOMAXPROCS
	FileTimeout time.Duration // default DefaultFileTimeout
	Logger      *log.Logger
}

// NewRunner creates a new Runner.
func NewRunner(opts RunnerOptions) *Runner {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	fileTimeout := opts.FileTimeout
	if fileTimeout <= 0 {
		fileTimeout = DefaultFileTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		files:        opts.FileStore,
		scanner:      opts.Scanner,
		dataRoot:     opts.DataRoot,
		ingestor:     opts.Ingestor,
		standardizer: opts.Standardizer,
		resolver:     opts.Resolver,
		loader:       opts.Loader,
		matcher:      opts.Matcher,
		builder:      opts.Builder,
		engine:       opts.Engine,
		refresher:    opts.Refresher,
		tracker:      opts.Tracker,
		workers:      workers,
		fileTimeout:  fileTimeout,
		logger:       logger,
	}
}

// RunResult aggregates the whole pipeline invocation. Errors collects
// soft failures: files that were marked FAILED while their stage completed.
type RunResult struct {
	FilesIngested     int
	FilesStandardized int
	FilesResolved     int
	FilesLoaded       int
	MirrorMatched     int
	ProfilesBuilt     int
	OpinionsWritten   int
	SummaryExported   int
	Errors            []string

	mu sync.Mutex
}

// addError records one soft failure. Stage workers run concurrently.
func (r *RunResult) addError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, msg)
}

func (r *RunResult) errorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Errors)
}

// Run executes all phases in order. A phase error stops the pipeline; a
// cancellation marks the running phase PARTIAL and stops.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	result := &RunResult{}

	phases := []struct {
		stage string
		run   func(ctx context.Context, run *Run) error
	}{
		{"ingest", func(ctx context.Context, run *Run) error { return r.runIngest(ctx, run, result) }},
		{"standardize", func(ctx context.Context, run *Run) error { return r.runStandardize(ctx, run, result) }},
		{"identity", func(ctx context.Context, run *Run) error { return r.runIdentity(ctx, run, result) }},
		{"ledger", func(ctx context.Context, run *Run) error { return r.runLedger(ctx, run, result) }},
		{"mirror", func(ctx context.Context, run *Run) error { return r.runMirror(ctx, run, result) }},
		{"analytics", func(ctx context.Context, run *Run) error { return r.runAnalytics(ctx, run, result) }},
		{"risk", func(ctx context.Context, run *Run) error { return r.runRisk(ctx, run, result) }},
		{"serving", func(ctx context.Context, run *Run) error { return r.runServing(ctx, run, result) }},
	}

	for _, phase := range phases {
		if err := r.runPhase(ctx, phase.stage, result, phase.run); err != nil {
			result.addError(fmt.Sprintf("%s: %v", phase.stage, err))
			return result, fmt.Errorf("stage %s: %w", phase.stage, err)
		}
	}
	return result, nil
}

// runPhase wraps one stage in a tracked run and maps its outcome to a
// terminal status. A stage that completed while some of its files
// soft-failed is recorded PARTIAL. Finish errors after a successful stage
// are logged, not fatal: the stage's work is already durable.
func (r *Runner) runPhase(ctx context.Context, stage string, result *RunResult, run func(ctx context.Context, run *Run) error) error {
	handle, err := r.tracker.Begin(ctx, stage, nil)
	if err != nil {
		return err
	}

	errsBefore := result.errorCount()
	err = run(ctx, handle)
	status := domain.RunSuccess
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		status = domain.RunPartial
	case err != nil:
		status = domain.RunFailed
	case result.errorCount() > errsBefore:
		status = domain.RunPartial
	}

	// Terminal rows are written with a fresh context so a cancelled run is
	// still recorded.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if finishErr := handle.Finish(finishCtx, status, err); finishErr != nil {
		r.logger.Printf("[pipeline] finish failed stage=%s err=%v", stage, finishErr)
	}
	return err
}

func (r *Runner) runIngest(ctx context.Context, run *Run, result *RunResult) error {
	specs, err := r.scanner.Scan(r.dataRoot)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	res, err := r.ingestor.Run(ctx, specs)
	if res != nil {
		run.AddProcessed(int64(res.Processed))
		run.AddCreated(int64(res.Ingested))
		run.AddSkipped(int64(res.Duplicate + res.Skipped))
		result.FilesIngested += res.Ingested
		for _, e := range res.Errors {
			result.addError(e)
		}
	}
	return err
}

// forEachReady drives one per-file stage: list ready files, claim each, run
// the body inside the file timeout, then complete or release the lease.
func (r *Runner) forEachReady(ctx context.Context, stage domain.Stage, run *Run, body func(ctx context.Context, f *domain.SourceFile) error) (int, error) {
	completed := 0
	for {
		if err := ctx.Err(); err != nil {
			return completed, err
		}

		ready, err := r.files.ListReadyForStage(ctx, stage, claimBatch)
		if err != nil {
			return completed, fmt.Errorf("list ready: %w", err)
		}
		if len(ready) == 0 {
			return completed, nil
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.workers)
		var progressed atomic.Int64
		for _, file := range ready {
			g.Go(func() error {
				claimed, err := r.files.ClaimStage(gctx, file.ID, stage, time.Now().UTC())
				if err != nil {
					return fmt.Errorf("claim file %d: %w", file.ID, err)
				}
				if !claimed {
					return nil
				}

				fileCtx, cancel := context.WithTimeout(gctx, r.fileTimeout)
				err = body(fileCtx, file)
				cancel()
				if err != nil {
					if relErr := r.files.ReleaseStage(gctx, file.ID, stage); relErr != nil {
						r.logger.Printf("[pipeline] release failed file_id=%d stage=%s err=%v", file.ID, stage, relErr)
					}
					if errors.Is(err, errSoftFailed) {
						return nil
					}
					return fmt.Errorf("file %d: %w", file.ID, err)
				}

				if err := r.files.CompleteStage(gctx, file.ID, stage, time.Now().UTC()); err != nil {
					return fmt.Errorf("complete file %d: %w", file.ID, err)
				}
				run.AddProcessed(1)
				progressed.Add(1)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return completed, err
		}
		completed += int(progressed.Load())
		if progressed.Load() == 0 {
			// Everything listed was held by someone else.
			return completed, nil
		}
	}
}

func (r *Runner) runStandardize(ctx context.Context, run *Run, result *RunResult) error {
	n, err := r.forEachReady(ctx, domain.StageStandardization, run, func(ctx context.Context, f *domain.SourceFile) error {
		var softErr error
		err := withRetry(ctx, r.logger, fmt.Sprintf("standardize %s", f.Name), func(ctx context.Context) error {
			res, err := r.standardizer.ProcessFile(ctx, f)
			if res != nil {
				run.AddCreated(int64(res.Inserted))
				run.AddSkipped(int64(res.Skipped))
			}
			switch {
			case errors.Is(err, standardize.ErrConfigMissing):
				// Already marked FAILED; not retryable, not fatal to the run.
				r.logger.Printf("[pipeline] mapping missing file_id=%d name=%s", f.ID, f.Name)
				softErr = err
				return nil
			case errors.Is(err, standardize.ErrRowParse):
				// Bad data in the file, not in the infrastructure. The file
				// is already FAILED; the rest of the batch keeps going.
				r.logger.Printf("[pipeline] parse failure file_id=%d name=%s err=%v", f.ID, f.Name, err)
				softErr = err
				return nil
			}
			return err
		})
		if err != nil {
			return err
		}
		if softErr != nil {
			result.addError(fmt.Sprintf("standardize %s: %v", f.Name, softErr))
			return errSoftFailed
		}
		return nil
	})
	result.FilesStandardized += n
	return err
}

func (r *Runner) runIdentity(ctx context.Context, run *Run, result *RunResult) error {
	n, err := r.forEachReady(ctx, domain.StageIdentity, run, func(ctx context.Context, f *domain.SourceFile) error {
		return withRetry(ctx, r.logger, fmt.Sprintf("identity %s", f.Name), func(ctx context.Context) error {
			res, err := r.resolver.ResolveFiles(ctx, []int64{f.ID})
			if res != nil {
				run.AddCreated(int64(res.Created))
				run.AddUpdated(int64(res.RowsUpdated))
			}
			return err
		})
	})
	result.FilesResolved += n
	return err
}

func (r *Runner) runLedger(ctx context.Context, run *Run, result *RunResult) error {
	n, err := r.forEachReady(ctx, domain.StageLedger, run, func(ctx context.Context, f *domain.SourceFile) error {
		return withRetry(ctx, r.logger, fmt.Sprintf("ledger %s", f.Name), func(ctx context.Context) error {
			res, err := r.loader.ProcessFile(ctx, f)
			if res != nil {
				run.AddCreated(int64(res.Created))
				run.AddSkipped(int64(res.Invalid + res.Duplicate))
			}
			return err
		})
	})
	result.FilesLoaded += n
	return err
}

func (r *Runner) runMirror(ctx context.Context, run *Run, result *RunResult) error {
	res, err := r.matcher.Run(ctx)
	if res != nil {
		run.AddProcessed(int64(res.Exports))
		run.AddUpdated(int64(res.Matched))
		run.AddSkipped(int64(res.NoCandidates + res.LowScore + res.Ambiguous))
		result.MirrorMatched += res.Matched
	}
	return err
}

func (r *Runner) runAnalytics(ctx context.Context, run *Run, result *RunResult) error {
	res, err := r.builder.Run(ctx)
	if res != nil {
		built := res.BuyerProfiles + res.ExporterProfiles + res.Corridors + res.Lanes
		run.AddCreated(int64(built))
		result.ProfilesBuilt += res.BuyerProfiles + res.ExporterProfiles
	}
	return err
}

func (r *Runner) runRisk(ctx context.Context, run *Run, result *RunResult) error {
	res, err := r.engine.Run(ctx)
	if res != nil {
		run.AddProcessed(int64(res.FactsScanned))
		run.AddCreated(int64(res.ShipmentWritten + res.BuyerWritten))
		result.OpinionsWritten += res.ShipmentWritten + res.BuyerWritten
	}
	return err
}

func (r *Runner) runServing(ctx context.Context, run *Run, result *RunResult) error {
	res, err := r.refresher.Run(ctx)
	if res != nil {
		run.AddUpdated(int64(res.Exported))
		result.SummaryExported += res.Exported
	}
	return err
}
