package admin

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/fourone/rnc-api/internal/importer"
)

// RunsPerPage is the page size of GET /admin/api/import/runs.
const RunsPerPage = 20

// multipartMemory is how much of an upload ParseMultipartForm keeps in memory.
const multipartMemory = 32 << 20

var allowedExtensions = map[string]bool{".txt": true, ".csv": true}

// ImportResponse reports a finished import.
type ImportResponse struct {
	Filename        string  `json:"filename"`
	UpdateExisting  bool    `json:"update_existing"`
	Encoding        string  `json:"encoding,omitempty"`
	Processed       int     `json:"processed"`
	Imported        int     `json:"imported"`
	New             int     `json:"new"`
	Updated         int     `json:"updated"`
	Duplicates      int     `json:"duplicates"`
	Rejected        int     `json:"rejected"`
	Errors          int     `json:"errors"`
	DurationSeconds float64 `json:"duration_seconds"`
}

func importResponse(filename string, update bool, s *importer.Stats) ImportResponse {
	return ImportResponse{
		Filename:        filename,
		UpdateExisting:  update,
		Encoding:        string(s.Encoding),
		Processed:       s.Processed,
		Imported:        s.Imported,
		New:             s.New,
		Updated:         s.Updated,
		Duplicates:      s.Duplicates,
		Rejected:        s.Rejected,
		Errors:          s.Errors,
		DurationSeconds: s.Duration.Seconds(),
	}
}

// HandleImportUpload stores an uploaded registry file and imports it.
// POST /admin/api/import/upload
// Multipart form: file=<.txt|.csv>, update_existing=<bool, default false>
func (h *Handler) HandleImportUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, http.StatusRequestEntityTooLarge, ErrCodeFileTooLarge,
				fmt.Sprintf("Upload exceeds %d bytes", h.cfg.MaxUploadBytes))
			return
		}
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Expected a multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "No file selected")
		return
	}
	defer file.Close()

	name := SanitizeFilename(header.Filename)
	if !allowedExtensions[strings.ToLower(filepath.Ext(name))] {
		WriteErrorWithHint(w, http.StatusBadRequest, ErrCodeUnsupportedFile,
			"File type not allowed", "Upload a .txt or .csv registry export")
		return
	}

	update, err := parseFlag(r.FormValue("update_existing"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "update_existing must be a boolean")
		return
	}

	stored, err := h.saveUpload(file, name)
	if err != nil {
		h.log(r).Error("failed to store upload", "filename", name, "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to store upload")
		return
	}
	h.log(r).Info("registry file uploaded", "path", stored, "size", header.Size)

	h.runImport(w, r, importer.Request{
		Path:           stored,
		UpdateExisting: update,
		Operator:       operator(r),
		Filename:       filepath.Base(stored),
	})
}

// HandleImportManual re-imports the configured registry file in update mode.
// POST /admin/api/import/manual
func (h *Handler) HandleImportManual(w http.ResponseWriter, r *http.Request) {
	if h.cfg.RegistryFile == "" {
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "No registry file configured")
		return
	}

	h.runImport(w, r, importer.Request{
		Path:           h.cfg.RegistryFile,
		UpdateExisting: true,
		Operator:       operator(r),
	})
}

func (h *Handler) runImport(w http.ResponseWriter, r *http.Request, req importer.Request) {
	filename := req.Filename
	if filename == "" {
		filename = filepath.Base(req.Path)
	}

	stats, err := h.importer.Import(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, importResponse(filename, req.UpdateExisting, stats))
	case errors.Is(err, importer.ErrImportInProgress):
		WriteErrorWithHint(w, http.StatusConflict, ErrCodeImportInProgress,
			"Another import is running", "Wait for it to finish and check GET /admin/api/import/runs")
	case errors.Is(err, importer.ErrFileNotFound):
		WriteError(w, http.StatusNotFound, ErrCodeNotFound, "Registry file not found")
	case errors.Is(err, importer.ErrDecodeFailure):
		WriteErrorWithHint(w, http.StatusUnprocessableEntity, ErrCodeImportFailed,
			"File could not be decoded", "Expected a pipe-delimited export in Latin-1, Windows-1252 or UTF-8")
	default:
		h.log(r).Error("import failed", "file", filename, "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeImportFailed, "Import failed: "+err.Error())
	}
}

// saveUpload writes src under the upload directory with a unique
// timestamped name and returns the stored path.
func (h *Handler) saveUpload(src io.Reader, name string) (string, error) {
	if err := os.MkdirAll(h.cfg.UploadDir, 0o750); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	stamp := h.now().UTC().Format("20060102_150405")
	stored := filepath.Join(h.cfg.UploadDir, fmt.Sprintf("%s_%s_%s", stamp, uuid.NewString()[:8], name))

	dst, err := os.OpenFile(stored, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(stored)
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(stored)
		return "", err
	}
	return stored, nil
}

// SanitizeFilename reduces a client-supplied filename to a safe base name
// of letters, digits, dot, dash and underscore.
func SanitizeFilename(name string) string {
	// Browsers on Windows may send the full client path.
	name = name[strings.LastIndexAny(name, `/\`)+1:]

	var b strings.Builder
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.', c == '-', c == '_':
			b.WriteRune(c)
		case c == ' ':
			b.WriteRune('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "upload"
	}
	return out
}

func parseFlag(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "off", "no":
		return false, nil
	case "1", "true", "on", "yes":
		return true, nil
	}
	return strconv.ParseBool(v)
}

// ImportRunsResponse is one page of the import audit log.
type ImportRunsResponse struct {
	Runs       []ImportRunResponse `json:"runs"`
	Page       int                 `json:"page"`
	PerPage    int                 `json:"per_page"`
	Total      int                 `json:"total"`
	TotalPages int                 `json:"total_pages"`
}

// HandleListImportRuns pages through the import audit log, newest first.
// GET /admin/api/import/runs?page=<n>
func (h *Handler) HandleListImportRuns(w http.ResponseWriter, r *http.Request) {
	page := 1
	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "page must be a positive integer")
			return
		}
		page = n
	}

	runs, total, err := h.storage.ListImportRuns(r.Context(), RunsPerPage, (page-1)*RunsPerPage)
	if err != nil {
		h.log(r).Error("failed to list import runs", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to list import runs")
		return
	}

	resp := ImportRunsResponse{
		Runs:       make([]ImportRunResponse, len(runs)),
		Page:       page,
		PerPage:    RunsPerPage,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / RunsPerPage)),
	}
	for i, run := range runs {
		resp.Runs[i] = importRunResponse(run)
	}
	writeJSON(w, http.StatusOK, resp)
}
