package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fourone/rnc-api/internal/metrics"
	"github.com/fourone/rnc-api/internal/storage"
)

// DefaultBatchSize is the number of staged records committed per transaction.
const DefaultBatchSize = 5000

// RecordWriter is the subset of the record store the pipeline writes through.
type RecordWriter interface {
	ListRNCs(ctx context.Context) (map[string]struct{}, error)
	UpsertBatch(ctx context.Context, records []storage.Record, mode storage.WriteMode) (storage.BatchResult, error)
	UpsertOne(ctx context.Context, record storage.Record, mode storage.WriteMode) (bool, error)
}

// Options controls one pipeline run.
type Options struct {
	// UpdateExisting overwrites records whose RNC is already stored.
	// When false, known RNCs are skipped as duplicates.
	UpdateExisting bool

	Progress ProgressFunc
}

// Stats is the outcome of an import. Imported is always New + Updated and
// counts each RNC once; every further occurrence of an RNC in the file is a
// Duplicate, wherever it falls in the file.
type Stats struct {
	Processed  int
	Imported   int
	New        int
	Updated    int
	Errors     int
	Rejected   int
	Duplicates int
	Encoding   Encoding
	Duration   time.Duration
}

// Pipeline decodes a registry file and writes it to the store in batches.
type Pipeline struct {
	store     RecordWriter
	logger    *slog.Logger
	batchSize int
	decode    func(path string) (*Table, Encoding, error)
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithBatchSize sets the number of records per committed batch.
func WithBatchSize(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// NewPipeline creates a pipeline writing through store.
func NewPipeline(store RecordWriter, logger *slog.Logger, opts ...PipelineOption) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		store:     store,
		logger:    logger,
		batchSize: DefaultBatchSize,
		decode:    Decode,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// run holds the mutable state of one pipeline execution.
type run struct {
	p        *Pipeline
	opts     Options
	mode     storage.WriteMode
	stats    *Stats
	total    int
	interval int

	known    map[string]struct{}
	staged   []storage.Record
	stagedAt map[string]int
	// written holds RNCs committed by earlier batches in update mode.
	written map[string]struct{}
}

// Run imports the file at path. Row and batch failures are counted in the
// returned stats; only a missing file, an undecodable file, a failure to
// load the known RNCs or a cancelled context end the run with an error.
func (p *Pipeline) Run(ctx context.Context, path string, opts Options) (*Stats, error) {
	start := time.Now()
	stats := &Stats{}
	r := &run{p: p, opts: opts, stats: stats, mode: storage.InsertOnly}
	if opts.UpdateExisting {
		r.mode = storage.Upsert
	}
	defer func() { stats.Duration = time.Since(start) }()

	if _, err := os.Stat(path); err != nil {
		r.emit(PhaseFailed)
		if errors.Is(err, os.ErrNotExist) {
			return stats, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return stats, fmt.Errorf("stat %s: %w", path, err)
	}

	r.emit(PhaseDecoding)
	table, enc, err := p.decode(path)
	if err != nil {
		r.emit(PhaseFailed)
		return stats, err
	}
	stats.Encoding = enc
	r.total = len(table.Rows)
	r.interval = progressInterval(r.total)
	p.logger.Info("registry file decoded",
		"path", path,
		"encoding", string(enc),
		"rows", r.total,
		"update_existing", opts.UpdateExisting)

	if opts.UpdateExisting {
		r.stagedAt = make(map[string]int)
		r.written = make(map[string]struct{})
	} else {
		known, err := p.store.ListRNCs(ctx)
		if err != nil {
			r.emit(PhaseFailed)
			return stats, fmt.Errorf("load known RNCs: %w", err)
		}
		r.known = known
	}

	r.emit(PhaseProcessing)
	for _, row := range table.Rows {
		if err := ctx.Err(); err != nil {
			r.emit(PhaseFailed)
			return stats, fmt.Errorf("import cancelled after %d rows: %w", stats.Processed, err)
		}

		r.stage(row)
		stats.Processed++

		if len(r.staged) >= p.batchSize {
			r.commit(ctx)
		}
		if stats.Processed%r.interval == 0 {
			r.emit(PhaseProcessing)
		}
	}
	r.commit(ctx)

	stats.Imported = stats.New + stats.Updated
	r.emit(PhaseCompleted)
	p.logger.Info("registry import completed",
		"processed", stats.Processed,
		"imported", stats.Imported,
		"new", stats.New,
		"updated", stats.Updated,
		"duplicates", stats.Duplicates,
		"errors", stats.Errors,
		"duration", time.Since(start))
	return stats, nil
}

func (r *run) stage(row []string) {
	rec, err := Map(row)
	if err != nil {
		r.stats.Errors++
		r.stats.Rejected++
		return
	}

	if !r.opts.UpdateExisting {
		if _, dup := r.known[rec.RNC]; dup {
			r.stats.Duplicates++
			return
		}
		r.known[rec.RNC] = struct{}{}
		r.staged = append(r.staged, rec)
		return
	}

	// The last occurrence of an RNC wins. Repeats of an RNC written by an
	// earlier batch are staged again and counted when they commit.
	if i, dup := r.stagedAt[rec.RNC]; dup {
		r.staged[i] = rec
		r.stats.Duplicates++
		return
	}
	r.stagedAt[rec.RNC] = len(r.staged)
	r.staged = append(r.staged, rec)
}

// commit writes the staged batch, falling back to one write per record
// when the batch fails so a single bad record cannot void the others.
func (r *run) commit(ctx context.Context) {
	if len(r.staged) == 0 {
		return
	}
	batch := r.staged
	r.staged = nil
	if r.stagedAt != nil {
		clear(r.stagedAt)
	}

	res, err := r.p.store.UpsertBatch(ctx, batch, r.mode)
	if err == nil {
		repeats := 0
		for i := range batch {
			if r.markWritten(batch[i].RNC) {
				repeats++
			}
		}
		r.stats.New += res.Inserted
		r.stats.Updated += res.Updated - repeats
		r.stats.Duplicates += repeats
		r.emit(PhaseCommitting)
		return
	}

	r.p.logger.Warn("batch commit failed, retrying record by record",
		"records", len(batch),
		"error", err)

	for _, rec := range batch {
		inserted, err := r.p.store.UpsertOne(ctx, rec, r.mode)
		if err != nil {
			r.stats.Errors++
			r.p.logger.Debug("record commit failed", "rnc", rec.RNC, "error", err)
			continue
		}
		switch {
		case r.markWritten(rec.RNC):
			r.stats.Duplicates++
		case inserted:
			r.stats.New++
		default:
			r.stats.Updated++
		}
	}
	r.emit(PhaseCommitting)
}

// markWritten records a committed RNC in update mode and reports whether an
// earlier batch had already written it.
func (r *run) markWritten(rnc string) bool {
	if r.written == nil {
		return false
	}
	if _, ok := r.written[rnc]; ok {
		return true
	}
	r.written[rnc] = struct{}{}
	return false
}

func (r *run) emit(phase Phase) {
	ev := Progress{Phase: phase, Processed: r.stats.Processed, Total: r.total}
	metrics.SetImportProgress(ev.Processed, ev.Total)
	if phase == PhaseProcessing && ev.Processed > 0 {
		r.p.logger.Debug("import progress", "processed", ev.Processed, "total", ev.Total)
	}
	if r.opts.Progress != nil {
		r.opts.Progress(ev)
	}
}
