package importer

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fourone/rnc-api/internal/metrics"
	"github.com/fourone/rnc-api/internal/storage"
)

// DefaultStaleAfter is how long a run may stay processing before it is
// considered interrupted.
const DefaultStaleAfter = time.Hour

// RunStore is the subset of the import audit log the runner writes.
type RunStore interface {
	CreateImportRun(ctx context.Context, filename, adminUser string) (int64, error)
	FinishImportRun(ctx context.Context, id int64, result storage.ImportRunResult) error
	ReconcileStaleRuns(ctx context.Context, startedBefore time.Time) (int64, error)
}

// Request describes one import triggered by an operator.
type Request struct {
	Path           string
	UpdateExisting bool
	// Operator labels the audit entry: an admin username, "cli" or "boot".
	Operator string
	// Filename is recorded in the audit log; defaults to the base of Path.
	Filename string
	Progress ProgressFunc
}

// Runner serializes imports and records each one in the audit log.
type Runner struct {
	mu         sync.Mutex
	pipeline   *Pipeline
	runs       RunStore
	logger     *slog.Logger
	staleAfter time.Duration
	now        func() time.Time
	onSuccess  []func(ctx context.Context, stats *Stats)
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithStaleAfter sets the age after which processing runs are reconciled.
func WithStaleAfter(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.staleAfter = d
		}
	}
}

// WithRunnerClock overrides the clock used for stale-run cutoffs.
func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// OnSuccess registers a hook invoked after every successful import.
func OnSuccess(fn func(ctx context.Context, stats *Stats)) RunnerOption {
	return func(r *Runner) { r.onSuccess = append(r.onSuccess, fn) }
}

// NewRunner creates a Runner.
func NewRunner(pipeline *Pipeline, runs RunStore, logger *slog.Logger, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		pipeline:   pipeline,
		runs:       runs,
		logger:     logger,
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile closes audit entries left processing for longer than the
// stale timeout, typically by a crashed process.
func (r *Runner) Reconcile(ctx context.Context) (int64, error) {
	n, err := r.runs.ReconcileStaleRuns(ctx, r.now().Add(-r.staleAfter))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Warn("reconciled interrupted imports", "count", n)
	}
	return n, nil
}

// Import runs the pipeline for req. It returns ErrImportInProgress
// without waiting when another import holds the runner.
func (r *Runner) Import(ctx context.Context, req Request) (*Stats, error) {
	if !r.mu.TryLock() {
		return nil, ErrImportInProgress
	}
	defer r.mu.Unlock()

	if _, err := r.Reconcile(ctx); err != nil {
		r.logger.Error("failed to reconcile import runs", "error", err)
	}

	filename := req.Filename
	if filename == "" {
		filename = filepath.Base(req.Path)
	}
	runID, err := r.runs.CreateImportRun(ctx, filename, req.Operator)
	if err != nil {
		return nil, err
	}

	r.logger.Info("import started",
		"run_id", runID,
		"file", filename,
		"operator", req.Operator,
		"update_existing", req.UpdateExisting)

	stats, runErr := r.pipeline.Run(ctx, req.Path, Options{
		UpdateExisting: req.UpdateExisting,
		Progress:       req.Progress,
	})

	result := storage.ImportRunResult{
		Status:          storage.RunSuccess,
		RecordsImported: stats.Imported,
		RecordsUpdated:  stats.Updated,
		RecordsNew:      stats.New,
		Errors:          stats.Errors,
		DurationSeconds: stats.Duration.Seconds(),
	}
	if runErr != nil {
		result.Status = storage.RunError
		result.ErrorMessage = runErr.Error()
	}

	// The audit entry is closed even when the request context is gone.
	finishCtx := context.WithoutCancel(ctx)
	if err := r.runs.FinishImportRun(finishCtx, runID, result); err != nil {
		r.logger.Error("failed to finish import run", "run_id", runID, "error", err)
	}
	metrics.RecordImport(result.Status, result.DurationSeconds)

	if runErr != nil {
		level := slog.LevelError
		if errors.Is(runErr, context.Canceled) {
			level = slog.LevelWarn
		}
		r.logger.Log(ctx, level, "import failed", "run_id", runID, "error", runErr)
		return stats, runErr
	}

	for _, fn := range r.onSuccess {
		fn(finishCtx, stats)
	}
	return stats, nil
}
