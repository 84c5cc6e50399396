package admin

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/fourone/rnc-api/internal/logging"
)

// SetLogLevelRequest is the request body for POST /admin/api/loglevel
type SetLogLevelRequest struct {
	Level string `json:"level"`
}

// HandleSetLogLevel changes runtime log level
// POST /admin/api/loglevel
// Body: {"level": "debug|info|warn|error"}
func (h *Handler) HandleSetLogLevel(w http.ResponseWriter, r *http.Request) {
	var req SetLogLevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON")
		return
	}

	if !logging.ValidLevel(req.Level) {
		WriteErrorWithHint(w, http.StatusBadRequest, ErrCodeInvalidRequest,
			"Invalid level", "Use one of: debug, info, warn, error")
		return
	}

	previous := h.logLevel.Level()
	h.logLevel.Set(logging.ParseLevel(req.Level))
	h.log(r).Info("log level changed", "from", previous.String(), "to", h.logLevel.Level().String())

	writeJSON(w, http.StatusOK, map[string]string{
		"level": strings.ToLower(h.logLevel.Level().String()),
	})
}
