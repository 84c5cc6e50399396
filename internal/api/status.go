package api

import (
	"context"
	"net/http"
	"time"
)

// DatabaseStatus is the database block of GET /api/status.
type DatabaseStatus struct {
	Loaded       bool     `json:"loaded"`
	TotalRecords int64    `json:"total_records"`
	Columns      []string `json:"columns"`
	SampleRNC    *string  `json:"sample_rnc"`
	Error        string   `json:"error,omitempty"`
}

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	Status     string         `json:"status"`
	Database   DatabaseStatus `json:"database"`
	APIVersion string         `json:"api_version"`
	Brand      string         `json:"brand"`
}

// HandleStatus reports service and registry status. Not rate limited.
// GET /api/status
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:     "online",
		APIVersion: h.version,
		Brand:      Brand,
	}

	stats, err := h.lookup.Stats(r.Context())
	switch {
	case err != nil:
		h.log(r).Error("status stats failed", "error", err)
		resp.Database = DatabaseStatus{Error: "Database unavailable"}
	case !stats.Loaded:
		resp.Database = DatabaseStatus{Columns: stats.Columns, Error: "Database not loaded"}
	default:
		resp.Database = DatabaseStatus{
			Loaded:       true,
			TotalRecords: stats.TotalRecords,
			Columns:      stats.Columns,
		}
		if stats.SampleRNC != "" {
			sample := stats.SampleRNC
			resp.Database.SampleRNC = &sample
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleHealth returns OK if the process is alive.
// GET /health
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleReady checks database connectivity.
// GET /ready
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "database": "not configured"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.log(r).Warn("readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "database": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "connected"})
}
