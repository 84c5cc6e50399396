package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fourone/rnc-api/internal/storage"
)

// MaxExpiresDays bounds the lifetime accepted for a new token.
const MaxExpiresDays = 3650

// TokenResponse represents an API token in admin responses.
// The credential itself is never included.
type TokenResponse struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	RequestsPerHour int        `json:"requests_per_hour"`
	RequestsUsed    int        `json:"requests_used"`
	WindowStart     time.Time  `json:"window_start"`
	IsActive        bool       `json:"is_active"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	CreatedBy       string     `json:"created_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	LastUsedAt      *time.Time `json:"last_used_at,omitempty"`
}

func tokenResponse(t *storage.Token) TokenResponse {
	return TokenResponse{
		ID:              t.ID,
		Name:            t.Name,
		RequestsPerHour: t.RequestsPerHour,
		RequestsUsed:    t.RequestsUsed,
		WindowStart:     t.WindowStart,
		IsActive:        t.IsActive,
		ExpiresAt:       t.ExpiresAt,
		CreatedBy:       t.CreatedBy,
		CreatedAt:       t.CreatedAt,
		LastUsedAt:      t.LastUsedAt,
	}
}

// CreateTokenRequest is the request body for POST /admin/api/tokens
type CreateTokenRequest struct {
	Name            string `json:"name"`
	RequestsPerHour int    `json:"requests_per_hour"`
	ExpiresDays     *int   `json:"expires_days,omitempty"`
}

// CreateTokenResponse includes the plaintext token, shown only once.
type CreateTokenResponse struct {
	TokenResponse
	Token string `json:"token"`
}

// HandleListTokens returns all API tokens, newest first.
// GET /admin/api/tokens
func (h *Handler) HandleListTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.storage.ListTokens(r.Context())
	if err != nil {
		h.log(r).Error("failed to list tokens", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to list tokens")
		return
	}

	response := make([]TokenResponse, len(tokens))
	for i, t := range tokens {
		response[i] = tokenResponse(t)
	}
	writeJSON(w, http.StatusOK, response)
}

// HandleCreateToken issues a new API token.
// POST /admin/api/tokens
// Body: {"name": "...", "requests_per_hour": 60, "expires_days": 30}
func (h *Handler) HandleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req CreateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Token name is required")
		return
	}
	if req.RequestsPerHour < 0 {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "requests_per_hour must be positive")
		return
	}
	if req.RequestsPerHour == 0 {
		req.RequestsPerHour = h.cfg.DefaultRequestsPerHour
	}

	var expiresAt *time.Time
	if req.ExpiresDays != nil {
		days := *req.ExpiresDays
		if days <= 0 || days > MaxExpiresDays {
			WriteErrorWithHint(w, http.StatusBadRequest, ErrCodeInvalidRequest,
				"expires_days out of range", "Use 1 to "+strconv.Itoa(MaxExpiresDays)+" or omit for no expiry")
			return
		}
		exp := h.now().UTC().Add(time.Duration(days) * 24 * time.Hour)
		expiresAt = &exp
	}

	plain, err := storage.GenerateToken()
	if err != nil {
		h.log(r).Error("failed to generate token", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to generate token")
		return
	}

	created, err := h.storage.CreateToken(r.Context(), &storage.Token{
		TokenHash:       storage.HashToken(plain),
		Name:            req.Name,
		RequestsPerHour: req.RequestsPerHour,
		ExpiresAt:       expiresAt,
		CreatedBy:       operator(r),
	})
	if err != nil {
		h.log(r).Error("failed to create token", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to create token")
		return
	}

	h.log(r).Info("api token created", "id", created.ID, "name", created.Name,
		"requests_per_hour", created.RequestsPerHour, "created_by", created.CreatedBy)

	writeJSON(w, http.StatusCreated, CreateTokenResponse{
		TokenResponse: tokenResponse(created),
		Token:         plain,
	})
}

// HandleToggleToken flips a token between active and inactive.
// POST /admin/api/tokens/{id}/toggle
func (h *Handler) HandleToggleToken(w http.ResponseWriter, r *http.Request) {
	id, ok := tokenID(w, r)
	if !ok {
		return
	}

	token, err := h.storage.GetTokenByID(r.Context(), id)
	if err != nil {
		h.tokenLookupError(w, r, id, err)
		return
	}

	active := !token.IsActive
	if err := h.storage.SetTokenActive(r.Context(), id, active); err != nil {
		h.tokenLookupError(w, r, id, err)
		return
	}
	token.IsActive = active

	h.log(r).Info("api token toggled", "id", id, "active", active)
	writeJSON(w, http.StatusOK, tokenResponse(token))
}

// HandleDeleteToken removes a token.
// DELETE /admin/api/tokens/{id}
func (h *Handler) HandleDeleteToken(w http.ResponseWriter, r *http.Request) {
	id, ok := tokenID(w, r)
	if !ok {
		return
	}

	if err := h.storage.DeleteToken(r.Context(), id); err != nil {
		h.tokenLookupError(w, r, id, err)
		return
	}

	h.log(r).Info("api token deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

func tokenID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid token ID")
		return 0, false
	}
	return id, true
}

func (h *Handler) tokenLookupError(w http.ResponseWriter, r *http.Request, id int64, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		WriteError(w, http.StatusNotFound, ErrCodeNotFound, "Token not found")
		return
	}
	h.log(r).Error("token operation failed", "id", id, "error", err)
	WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "Internal error")
}
