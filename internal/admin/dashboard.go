package admin

import (
	"net/http"
	"time"

	"github.com/fourone/rnc-api/internal/storage"
)

// recentRuns is how many audit entries the dashboard shows.
const recentRuns = 10

// RegistrySummary is the registry block of the dashboard.
type RegistrySummary struct {
	Loaded       bool   `json:"loaded"`
	TotalRecords int64  `json:"total_records"`
	SampleRNC    string `json:"sample_rnc,omitempty"`
}

// ImportRunResponse is one audit entry in admin responses.
type ImportRunResponse struct {
	ID              int64     `json:"id"`
	Filename        string    `json:"filename"`
	Status          string    `json:"status"`
	RecordsImported int       `json:"records_imported"`
	RecordsNew      int       `json:"records_new"`
	RecordsUpdated  int       `json:"records_updated"`
	Errors          int       `json:"errors"`
	DurationSeconds float64   `json:"duration_seconds"`
	AdminUser       string    `json:"admin_user"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func importRunResponse(run *storage.ImportRun) ImportRunResponse {
	return ImportRunResponse{
		ID:              run.ID,
		Filename:        run.Filename,
		Status:          run.Status,
		RecordsImported: run.RecordsImported,
		RecordsNew:      run.RecordsNew,
		RecordsUpdated:  run.RecordsUpdated,
		Errors:          run.Errors,
		DurationSeconds: run.DurationSeconds,
		AdminUser:       run.AdminUser,
		ErrorMessage:    run.ErrorMessage,
		CreatedAt:       run.CreatedAt,
		UpdatedAt:       run.UpdatedAt,
	}
}

// DashboardResponse is returned by GET /admin/api/dashboard.
type DashboardResponse struct {
	Registry     RegistrySummary     `json:"registry"`
	ActiveTokens int                 `json:"active_tokens"`
	TotalTokens  int                 `json:"total_tokens"`
	RecentRuns   []ImportRunResponse `json:"recent_runs"`
}

// HandleDashboard summarizes registry, token and import state.
// GET /admin/api/dashboard
func (h *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.registry.Stats(ctx)
	if err != nil {
		h.log(r).Error("dashboard: registry stats failed", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to load registry stats")
		return
	}

	total, active, err := h.storage.CountTokens(ctx)
	if err != nil {
		h.log(r).Error("dashboard: count tokens failed", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to count tokens")
		return
	}

	runs, _, err := h.storage.ListImportRuns(ctx, recentRuns, 0)
	if err != nil {
		h.log(r).Error("dashboard: list import runs failed", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to list import runs")
		return
	}

	resp := DashboardResponse{
		Registry: RegistrySummary{
			Loaded:       stats.Loaded,
			TotalRecords: stats.TotalRecords,
			SampleRNC:    stats.SampleRNC,
		},
		ActiveTokens: active,
		TotalTokens:  total,
		RecentRuns:   make([]ImportRunResponse, len(runs)),
	}
	for i, run := range runs {
		resp.RecentRuns[i] = importRunResponse(run)
	}
	writeJSON(w, http.StatusOK, resp)
}
