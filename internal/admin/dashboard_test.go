package admin

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/fourone/rnc-api/internal/lookup"
	"github.com/fourone/rnc-api/internal/storage"
)

func TestHandleDashboard(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.registry.stats = lookup.Stats{Loaded: true, TotalRecords: 750000, SampleRNC: "101000001"}
	env.store.CountTokensFunc = func(context.Context) (int, int, error) { return 5, 3, nil }
	var gotLimit int
	env.store.ListImportRunsFunc = func(_ context.Context, limit, _ int) ([]*storage.ImportRun, int, error) {
		gotLimit = limit
		return []*storage.ImportRun{{ID: 2, Status: storage.RunError, ErrorMessage: "boom"}}, 2, nil
	}

	w := env.do(t, http.MethodGet, "/api/dashboard", nil, env.login(t))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if gotLimit != recentRuns {
		t.Errorf("expected %d recent runs requested, got %d", recentRuns, gotLimit)
	}

	resp := decode[DashboardResponse](t, w)
	if !resp.Registry.Loaded || resp.Registry.TotalRecords != 750000 || resp.Registry.SampleRNC != "101000001" {
		t.Errorf("unexpected registry summary: %+v", resp.Registry)
	}
	if resp.TotalTokens != 5 || resp.ActiveTokens != 3 {
		t.Errorf("unexpected token counts: %+v", resp)
	}
	if len(resp.RecentRuns) != 1 || resp.RecentRuns[0].ErrorMessage != "boom" {
		t.Errorf("unexpected runs: %+v", resp.RecentRuns)
	}
}

func TestHandleDashboardErrors(t *testing.T) {
	t.Parallel()

	failing := errors.New("db closed")
	tests := []struct {
		name  string
		setup func(e *testEnv)
	}{
		{"registry stats", func(e *testEnv) { e.registry.err = failing }},
		{"count tokens", func(e *testEnv) {
			e.store.CountTokensFunc = func(context.Context) (int, int, error) { return 0, 0, failing }
		}},
		{"import runs", func(e *testEnv) {
			e.store.ListImportRunsFunc = func(context.Context, int, int) ([]*storage.ImportRun, int, error) {
				return nil, 0, failing
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)
			tt.setup(env)
			if w := env.do(t, http.MethodGet, "/api/dashboard", nil, env.login(t)); w.Code != http.StatusInternalServerError {
				t.Errorf("expected 500, got %d", w.Code)
			}
		})
	}
}
