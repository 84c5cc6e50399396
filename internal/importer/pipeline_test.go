package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fourone/rnc-api/internal/storage"
	"github.com/fourone/rnc-api/internal/testutil/mockstore"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	s, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// registryFile builds a registry export with one row per RNC.
func registryFile(rncs ...string) []byte {
	var b strings.Builder
	b.WriteString(registryHeader)
	for i, rnc := range rncs {
		fmt.Fprintf(&b, "%s|EMPRESA %d|.|COMERCIO|||||01/01/2000|ACTIVO|NORMAL\n", rnc, i)
	}
	return []byte(b.String())
}

func sequentialRNCs(n int) []string {
	rncs := make([]string, n)
	for i := range rncs {
		rncs[i] = fmt.Sprintf("%09d", 100000000+i)
	}
	return rncs
}

func TestPipelineIdempotentInsertOnly(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	path := writeTempFile(t, registryFile(sequentialRNCs(25)...))
	p := NewPipeline(store, discardLogger(), WithBatchSize(10))
	ctx := context.Background()

	first, err := p.Run(ctx, path, Options{})
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if first.Processed != 25 || first.New != 25 || first.Imported != 25 || first.Errors != 0 {
		t.Errorf("unexpected first stats %+v", first)
	}

	second, err := p.Run(ctx, path, Options{})
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if second.Processed != 25 || second.New != 0 || second.Imported != 0 || second.Duplicates != 25 {
		t.Errorf("unexpected second stats %+v", second)
	}

	count, err := store.CountRecords(ctx)
	if err != nil {
		t.Fatalf("CountRecords failed: %v", err)
	}
	if count != 25 {
		t.Errorf("expected 25 records, got %d", count)
	}
}

func TestPipelineRejectedRowsCountAsErrors(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	path := writeTempFile(t, registryFile("101010101", "BAD", "1234", "00101010101"))

	stats, err := NewPipeline(store, discardLogger()).Run(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.Processed != 4 || stats.New != 2 || stats.Errors != 2 || stats.Rejected != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestPipelineInsertOnlySkipsDuplicatesInFile(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	path := writeTempFile(t, registryFile("101010101", "101010101", "202020202"))

	stats, err := NewPipeline(store, discardLogger()).Run(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.New != 2 || stats.Duplicates != 1 || stats.Errors != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestPipelineUpdateExistingUpserts(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	if _, err := store.UpsertBatch(ctx, []storage.Record{{RNC: "101010101", Nombre: "OLD"}}, storage.InsertOnly); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	data := []byte(registryHeader +
		"101010101|FIRST|||||||||\n" +
		"202020202|NEW|||||||||\n" +
		"101010101|LAST|||||||||\n")
	path := writeTempFile(t, data)

	stats, err := NewPipeline(store, discardLogger()).Run(ctx, path, Options{UpdateExisting: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.Processed != 3 || stats.New != 1 || stats.Updated != 1 || stats.Imported != 2 || stats.Duplicates != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}

	got, err := store.GetRecord(ctx, "101010101")
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if got.Nombre != "LAST" {
		t.Errorf("expected last occurrence to win, got %q", got.Nombre)
	}
}

// staleKnownStore hides stored RNCs from the pre-load so a colliding
// record reaches the batch commit.
type staleKnownStore struct {
	*storage.SQLiteStorage
}

func (staleKnownStore) ListRNCs(context.Context) (map[string]struct{}, error) {
	return map[string]struct{}{}, nil
}

func TestPipelineBatchFallbackIsolatesCollision(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	if _, err := store.UpsertBatch(ctx, []storage.Record{{RNC: "100000003", Nombre: "EXISTING"}}, storage.InsertOnly); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	path := writeTempFile(t, registryFile(sequentialRNCs(8)...))
	p := NewPipeline(staleKnownStore{store}, discardLogger(), WithBatchSize(100))

	stats, err := p.Run(ctx, path, Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.New != 7 || stats.Errors != 1 || stats.Processed != 8 {
		t.Errorf("expected 7 new and exactly 1 error, got %+v", stats)
	}

	count, err := store.CountRecords(ctx)
	if err != nil {
		t.Fatalf("CountRecords failed: %v", err)
	}
	if count != 8 {
		t.Errorf("expected 8 records, got %d", count)
	}
}

func TestPipelineProgressEvents(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	path := writeTempFile(t, registryFile(sequentialRNCs(2500)...))

	var events []Progress
	opts := Options{Progress: func(p Progress) { events = append(events, p) }}
	stats, err := NewPipeline(store, discardLogger(), WithBatchSize(1000)).Run(context.Background(), path, opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.New != 2500 {
		t.Fatalf("expected 2500 new, got %+v", stats)
	}

	if events[0].Phase != PhaseDecoding {
		t.Errorf("expected first event decoding, got %+v", events[0])
	}
	last := events[len(events)-1]
	if last.Phase != PhaseCompleted || last.Processed != 2500 || last.Total != 2500 {
		t.Errorf("unexpected final event %+v", last)
	}

	var commits, processing int
	for _, e := range events {
		switch e.Phase {
		case PhaseCommitting:
			commits++
		case PhaseProcessing:
			processing++
		}
	}
	if commits != 3 {
		t.Errorf("expected 3 commit events, got %d", commits)
	}
	// one at start, then every 1000 rows
	if processing != 3 {
		t.Errorf("expected 3 processing events, got %d", processing)
	}
}

func TestProgressInterval(t *testing.T) {
	t.Parallel()

	tests := []struct{ total, want int }{
		{0, 1000},
		{10000, 1000},
		{200000, 1000},
		{700000, 3500},
	}
	for _, tt := range tests {
		if got := progressInterval(tt.total); got != tt.want {
			t.Errorf("progressInterval(%d) = %d, want %d", tt.total, got, tt.want)
		}
	}
}

func TestPipelineHardFailures(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	p := NewPipeline(store, discardLogger())
	ctx := context.Background()

	_, err := p.Run(ctx, filepath.Join(t.TempDir(), "missing.txt"), Options{})
	if !errors.Is(err, ErrFileNotFound) {
		t.Errorf("expected ErrFileNotFound, got %v", err)
	}

	_, err = p.Run(ctx, writeTempFile(t, nil), Options{})
	if !errors.Is(err, ErrDecodeFailure) {
		t.Errorf("expected ErrDecodeFailure, got %v", err)
	}
}

func TestPipelineKnownRNCLoadFailure(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	store := &mockstore.MockStorage{
		ListRNCsFunc: func(context.Context) (map[string]struct{}, error) { return nil, errBoom },
	}
	path := writeTempFile(t, registryFile("101010101"))

	_, err := NewPipeline(store, discardLogger()).Run(context.Background(), path, Options{})
	if !errors.Is(err, errBoom) {
		t.Errorf("expected store error, got %v", err)
	}
}

func TestPipelineCancelled(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	path := writeTempFile(t, registryFile(sequentialRNCs(10)...))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := NewPipeline(store, discardLogger()).Run(ctx, path, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if stats.Processed != 0 {
		t.Errorf("expected no rows processed, got %d", stats.Processed)
	}
}

func TestPipelineBatchWriteFailureCountsPerRecord(t *testing.T) {
	t.Parallel()

	store := &mockstore.MockStorage{
		UpsertBatchFunc: func(context.Context, []storage.Record, storage.WriteMode) (storage.BatchResult, error) {
			return storage.BatchResult{}, errors.New("disk full")
		},
		UpsertOneFunc: func(_ context.Context, r storage.Record, _ storage.WriteMode) (bool, error) {
			if r.RNC == "202020202" {
				return false, errors.New("disk full")
			}
			return true, nil
		},
	}
	path := writeTempFile(t, registryFile("101010101", "202020202", "303030303"))

	stats, err := NewPipeline(store, discardLogger()).Run(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.New != 2 || stats.Errors != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestPipelineQuotedNamesKeepEveryRow(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	data := []byte(registryHeader +
		`101010101|"LA ECONOMIA" SRL|||||||01/01/2000|ACTIVO|NORMAL` + "\n" +
		`202020202|"LA CASA|||||||01/01/2000|ACTIVO|NORMAL` + "\n" +
		"303030303|TERCERA SRL|||||||01/01/2000|ACTIVO|NORMAL\n")
	path := writeTempFile(t, data)

	stats, err := NewPipeline(store, discardLogger()).Run(ctx, path, Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.Processed != 3 || stats.New != 3 || stats.Errors != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}

	tests := []struct {
		rnc    string
		nombre string
	}{
		{"101010101", `"LA ECONOMIA" SRL`},
		{"202020202", `"LA CASA`},
		{"303030303", "TERCERA SRL"},
	}
	for _, tt := range tests {
		got, err := store.GetRecord(ctx, tt.rnc)
		if err != nil {
			t.Fatalf("GetRecord(%s) failed: %v", tt.rnc, err)
		}
		if got.Nombre != tt.nombre {
			t.Errorf("GetRecord(%s).Nombre = %q, want %q", tt.rnc, got.Nombre, tt.nombre)
		}
	}
}

func TestPipelineUpdateRepeatsAcrossBatches(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	data := []byte(registryHeader +
		"101010101|FIRST|||||||||\n" +
		"202020202|B|||||||||\n" +
		"303030303|C|||||||||\n" +
		"101010101|LAST|||||||||\n")
	path := writeTempFile(t, data)

	stats, err := NewPipeline(store, discardLogger(), WithBatchSize(2)).Run(ctx, path, Options{UpdateExisting: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.New != 3 || stats.Updated != 0 || stats.Imported != 3 || stats.Duplicates != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}

	got, err := store.GetRecord(ctx, "101010101")
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if got.Nombre != "LAST" {
		t.Errorf("expected last occurrence to win, got %q", got.Nombre)
	}
}

func TestPipelineUpdateRepeatsAcrossBatchesFallback(t *testing.T) {
	t.Parallel()

	written := make(map[string]bool)
	store := &mockstore.MockStorage{
		UpsertBatchFunc: func(context.Context, []storage.Record, storage.WriteMode) (storage.BatchResult, error) {
			return storage.BatchResult{}, errors.New("database is locked")
		},
		UpsertOneFunc: func(_ context.Context, r storage.Record, _ storage.WriteMode) (bool, error) {
			inserted := !written[r.RNC]
			written[r.RNC] = true
			return inserted, nil
		},
	}
	path := writeTempFile(t, registryFile("101010101", "202020202", "101010101"))

	stats, err := NewPipeline(store, discardLogger(), WithBatchSize(2)).Run(context.Background(), path, Options{UpdateExisting: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.New != 2 || stats.Updated != 0 || stats.Imported != 2 || stats.Duplicates != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}
