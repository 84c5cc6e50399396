// Package api implements the public RNC lookup endpoints.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/fourone/rnc-api/internal/logging"
	"github.com/fourone/rnc-api/internal/lookup"
	"github.com/fourone/rnc-api/internal/storage"
)

// Brand is reported by GET /api/status.
const Brand = "Four One RNC Validator"

// MaxBatchSize caps the number of RNCs in one POST /api/search.
const MaxBatchSize = 10

// Response status values.
const (
	StatusSuccess  = "success"
	StatusNotFound = "not_found"
	StatusError    = "error"
)

const msgInternal = "Internal server error"

// Lookup is the lookup surface the handlers need.
type Lookup interface {
	Lookup(ctx context.Context, raw string) (lookup.Result, error)
	SearchByName(ctx context.Context, query string, limit int) ([]*storage.Record, error)
	Stats(ctx context.Context) (lookup.Stats, error)
}

// Pinger reports store availability for /ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the public API.
type Handler struct {
	lookup  Lookup
	db      Pinger
	logger  *slog.Logger
	version string
}

// NewHandler creates a new API handler.
// If logger is nil, slog.Default() will be used.
func NewHandler(l Lookup, db Pinger, version string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		lookup:  l,
		db:      db,
		logger:  logger,
		version: version,
	}
}

func (h *Handler) log(r *http.Request) *slog.Logger {
	return logging.FromContext(r.Context(), h.logger)
}

// errorBody is the error envelope of the public API.
type errorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Default().Error("failed to encode JSON response", "error", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Status: StatusError, Message: message})
}

// HandleNotFound answers unknown routes.
func HandleNotFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, "Endpoint not found")
}

// HandleMethodNotAllowed answers known routes called with the wrong method.
func HandleMethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}
