package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fourone/rnc-api/internal/lookup"
	"github.com/fourone/rnc-api/internal/storage"
)

// ValidateResponse is returned by GET /api/validate/{rnc}.
type ValidateResponse struct {
	Status  string `json:"status"`
	RNC     string `json:"rnc"`
	Exists  bool   `json:"exists"`
	Message string `json:"message"`
}

// InfoResponse is returned by GET /api/info/{rnc}.
type InfoResponse struct {
	Status  string            `json:"status"`
	RNC     string            `json:"rnc"`
	Exists  bool              `json:"exists"`
	Data    map[string]string `json:"data,omitempty"`
	Message string            `json:"message,omitempty"`
}

// SearchRequest is the body of POST /api/search.
type SearchRequest struct {
	RNCs json.RawMessage `json:"rncs"`
}

// SearchItem is one entry of a batch search result.
type SearchItem struct {
	RNC     string            `json:"rnc"`
	Exists  bool              `json:"exists"`
	Data    map[string]string `json:"data,omitempty"`
	Message string            `json:"message,omitempty"`
}

// SearchResponse is returned by POST /api/search.
type SearchResponse struct {
	Status  string       `json:"status"`
	Results []SearchItem `json:"results"`
	Total   int          `json:"total"`
}

// recordData flattens a record into its non-empty fields.
func recordData(rec *storage.Record) map[string]string {
	fields := rec.Fields()
	data := make(map[string]string, len(fields))
	for _, f := range fields {
		data[f.Name] = f.Value
	}
	return data
}

// statusFor maps a lookup result to its HTTP status and envelope status.
func statusFor(res lookup.Result) (int, string) {
	switch res.Status {
	case lookup.Found:
		return http.StatusOK, StatusSuccess
	case lookup.NotFound:
		return http.StatusNotFound, StatusNotFound
	default:
		return http.StatusBadRequest, StatusError
	}
}

// HandleValidate reports whether an RNC exists.
// GET /api/validate/{rnc}
func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "rnc")
	res, err := h.lookup.Lookup(r.Context(), raw)
	if err != nil {
		h.log(r).Error("validate failed", "rnc", raw, "error", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	code, status := statusFor(res)
	writeJSON(w, code, ValidateResponse{
		Status:  status,
		RNC:     res.RNC,
		Exists:  res.Status == lookup.Found,
		Message: res.Reason,
	})
}

// HandleInfo returns the full record for an RNC.
// GET /api/info/{rnc}
func (h *Handler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "rnc")
	res, err := h.lookup.Lookup(r.Context(), raw)
	if err != nil {
		h.log(r).Error("info failed", "rnc", raw, "error", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	code, status := statusFor(res)
	resp := InfoResponse{
		Status: status,
		RNC:    res.RNC,
		Exists: res.Status == lookup.Found,
	}
	if res.Record != nil {
		resp.Data = recordData(res.Record)
	} else {
		resp.Message = res.Reason
	}
	writeJSON(w, code, resp)
}

// HandleSearch looks up to MaxBatchSize RNCs in one request.
// POST /api/search
// Body: {"rncs": ["101000001", ...]}
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.RNCs) == 0 || string(req.RNCs) == "null" {
		writeError(w, http.StatusBadRequest, "Request body must contain 'rncs' array")
		return
	}

	items, ok := decodeRNCList(req.RNCs)
	if !ok {
		writeError(w, http.StatusBadRequest, "'rncs' must be an array")
		return
	}
	if len(items) > MaxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Maximum %d RNCs per batch request", MaxBatchSize))
		return
	}

	results := make([]SearchItem, 0, len(items))
	for _, raw := range items {
		res, err := h.lookup.Lookup(r.Context(), raw)
		if err != nil {
			h.log(r).Error("batch search failed", "rnc", raw, "error", err)
			writeError(w, http.StatusInternalServerError, msgInternal)
			return
		}

		item := SearchItem{RNC: res.RNC, Exists: res.Status == lookup.Found}
		if res.Record != nil {
			item.Data = recordData(res.Record)
		} else {
			item.Message = res.Reason
		}
		results = append(results, item)
	}

	writeJSON(w, http.StatusOK, SearchResponse{
		Status:  StatusSuccess,
		Results: results,
		Total:   len(results),
	})
}

// decodeRNCList accepts a JSON array of strings or numbers.
func decodeRNCList(raw json.RawMessage) ([]string, bool) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, false
	}

	out := make([]string, 0, len(elems))
	for _, e := range elems {
		var s string
		if err := json.Unmarshal(e, &s); err == nil {
			out = append(out, s)
			continue
		}
		var n json.Number
		dec := json.NewDecoder(bytes.NewReader(e))
		dec.UseNumber()
		if err := dec.Decode(&n); err == nil {
			out = append(out, n.String())
			continue
		}
		// Anything else cannot be an RNC; let lookup report it as invalid.
		out = append(out, string(e))
	}
	return out, true
}

// Suggestion is one name-search hit.
type Suggestion struct {
	RNC                string `json:"rnc"`
	Nombre             string `json:"nombre"`
	Estado             string `json:"estado"`
	ActividadEconomica string `json:"actividad_economica,omitempty"`
}

// NameSearchResponse is returned by GET /api/search-by-name.
type NameSearchResponse struct {
	Status      string       `json:"status"`
	Query       string       `json:"query"`
	Suggestions []Suggestion `json:"suggestions"`
	TotalFound  int          `json:"total_found"`
	Message     string       `json:"message"`
}

// HandleSearchByName suggests records whose name contains the query.
// GET /api/search-by-name?q=<text>&limit=<1..50>
func (h *Handler) HandleSearchByName(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		query = q.Get("query")
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	records, err := h.lookup.SearchByName(r.Context(), query, limit)
	if errors.Is(err, lookup.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Query parameter 'q' must have at least %d characters", lookup.MinQueryLength))
		return
	}
	if err != nil {
		h.log(r).Error("name search failed", "error", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	suggestions := make([]Suggestion, 0, len(records))
	for _, rec := range records {
		suggestions = append(suggestions, Suggestion{
			RNC:                rec.RNC,
			Nombre:             rec.Nombre,
			Estado:             rec.Estado,
			ActividadEconomica: rec.ActividadEconomica,
		})
	}

	msg := fmt.Sprintf("Found %d matching records", len(suggestions))
	if len(suggestions) == 0 {
		msg = "No records match the query"
	}
	writeJSON(w, http.StatusOK, NameSearchResponse{
		Status:      StatusSuccess,
		Query:       query,
		Suggestions: suggestions,
		TotalFound:  len(suggestions),
		Message:     msg,
	})
}
