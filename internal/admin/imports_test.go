package admin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/fourone/rnc-api/internal/importer"
	"github.com/fourone/rnc-api/internal/storage"
)

const registrySample = "101000001|BANCO DE PRUEBA SA|||\n"

// uploadRequest builds a multipart upload for the admin router.
func uploadRequest(t *testing.T, filename, content string, fields map[string]string, cookie *http.Cookie) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/import/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return req
}

func (e *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestHandleImportUpload(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.handler.now = func() time.Time { return time.Date(2026, 7, 4, 9, 30, 15, 0, time.UTC) }
	env.importer.importFunc = func(_ context.Context, req importer.Request) (*importer.Stats, error) {
		data, err := os.ReadFile(req.Path)
		if err != nil {
			t.Errorf("uploaded file not readable: %v", err)
		}
		if string(data) != registrySample {
			t.Errorf("stored content = %q", data)
		}
		return &importer.Stats{Processed: 1, Imported: 1, Updated: 1, Encoding: importer.Latin1, Duration: 1500 * time.Millisecond}, nil
	}

	req := uploadRequest(t, "DGII RNC.txt", registrySample, map[string]string{"update_existing": "true"}, env.login(t))
	w := env.serve(req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if len(env.importer.calls) != 1 {
		t.Fatalf("expected one import, got %d", len(env.importer.calls))
	}
	call := env.importer.calls[0]
	if !call.UpdateExisting {
		t.Error("expected update_existing to be passed through")
	}
	if call.Operator != testUser {
		t.Errorf("expected operator %s, got %q", testUser, call.Operator)
	}
	if filepath.Dir(call.Path) != env.handler.cfg.UploadDir {
		t.Errorf("file stored outside upload dir: %s", call.Path)
	}
	stored := regexp.MustCompile(`^20260704_093015_[0-9a-f]{8}_DGII_RNC\.txt$`)
	if !stored.MatchString(filepath.Base(call.Path)) {
		t.Errorf("unexpected stored name %q", filepath.Base(call.Path))
	}

	resp := decode[ImportResponse](t, w)
	if resp.Updated != 1 || resp.Encoding != "latin-1" || resp.DurationSeconds != 1.5 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestHandleImportUploadDefaultsToInsertOnly(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	w := env.serve(uploadRequest(t, "rnc.CSV", registrySample, nil, env.login(t)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if env.importer.calls[0].UpdateExisting {
		t.Error("expected insert-only import by default")
	}
}

func TestHandleImportUploadRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		filename string
		content  string
		fields   map[string]string
		wantCode int
		wantErr  string
	}{
		{"no file", "", "", nil, http.StatusBadRequest, ErrCodeInvalidRequest},
		{"wrong extension", "registry.xlsx", registrySample, nil, http.StatusBadRequest, ErrCodeUnsupportedFile},
		{"no extension", "registry", registrySample, nil, http.StatusBadRequest, ErrCodeUnsupportedFile},
		{"bad flag", "rnc.txt", registrySample, map[string]string{"update_existing": "maybe"}, http.StatusBadRequest, ErrCodeInvalidRequest},
		{"too large", "rnc.txt", strings.Repeat("x", 2<<20), nil, http.StatusRequestEntityTooLarge, ErrCodeFileTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)

			w := env.serve(uploadRequest(t, tt.filename, tt.content, tt.fields, env.login(t)))
			if w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
			if got := decode[APIError](t, w); got.Error != tt.wantErr {
				t.Errorf("expected %s, got %s", tt.wantErr, got.Error)
			}
			if len(env.importer.calls) != 0 {
				t.Error("importer should not run")
			}
		})
	}
}

func TestHandleImportUploadNotMultipart(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/import/upload", map[string]string{"file": "x"}, env.login(t))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleImportErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"in progress", importer.ErrImportInProgress, http.StatusConflict, ErrCodeImportInProgress},
		{"missing file", fmt.Errorf("open: %w", importer.ErrFileNotFound), http.StatusNotFound, ErrCodeNotFound},
		{"undecodable", importer.ErrDecodeFailure, http.StatusUnprocessableEntity, ErrCodeImportFailed},
		{"store failure", errors.New("database is locked"), http.StatusInternalServerError, ErrCodeImportFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)
			env.importer.importFunc = func(context.Context, importer.Request) (*importer.Stats, error) {
				return &importer.Stats{}, tt.err
			}

			w := env.do(t, http.MethodPost, "/api/import/manual", nil, env.login(t))
			if w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, w.Code)
			}
			if got := decode[APIError](t, w); got.Error != tt.wantErr {
				t.Errorf("expected %s, got %s", tt.wantErr, got.Error)
			}
		})
	}
}

func TestHandleImportManual(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/import/manual", nil, env.login(t))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	call := env.importer.calls[0]
	if call.Path != "/data/DGII_RNC.TXT" || !call.UpdateExisting {
		t.Errorf("unexpected import request: %+v", call)
	}
	if resp := decode[ImportResponse](t, w); resp.Filename != "DGII_RNC.TXT" {
		t.Errorf("expected filename DGII_RNC.TXT, got %q", resp.Filename)
	}
}

func TestHandleImportManualWithoutRegistryFile(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.handler.cfg.RegistryFile = ""
	if w := env.do(t, http.MethodPost, "/api/import/manual", nil, env.login(t)); w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestHandleListImportRuns(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	var gotLimit, gotOffset int
	env.store.ListImportRunsFunc = func(_ context.Context, limit, offset int) ([]*storage.ImportRun, int, error) {
		gotLimit, gotOffset = limit, offset
		return []*storage.ImportRun{
			{ID: 45, Filename: "a.txt", Status: storage.RunSuccess, RecordsImported: 10, AdminUser: "admin"},
		}, 45, nil
	}
	cookie := env.login(t)

	w := env.do(t, http.MethodGet, "/api/import/runs?page=3", nil, cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if gotLimit != RunsPerPage || gotOffset != 40 {
		t.Errorf("expected limit %d offset 40, got %d/%d", RunsPerPage, gotLimit, gotOffset)
	}

	resp := decode[ImportRunsResponse](t, w)
	if resp.Page != 3 || resp.Total != 45 || resp.TotalPages != 3 || len(resp.Runs) != 1 {
		t.Errorf("unexpected page: %+v", resp)
	}
	if resp.Runs[0].Status != storage.RunSuccess {
		t.Errorf("unexpected run: %+v", resp.Runs[0])
	}

	for _, page := range []string{"0", "-1", "abc"} {
		if w := env.do(t, http.MethodGet, "/api/import/runs?page="+page, nil, cookie); w.Code != http.StatusBadRequest {
			t.Errorf("page=%s: expected 400, got %d", page, w.Code)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"DGII_RNC.TXT", "DGII_RNC.TXT"},
		{"my file.csv", "my_file.csv"},
		{"../../etc/passwd.txt", "passwd.txt"},
		{`C:\Users\ana\rnc.txt`, "rnc.txt"},
		{"ñandú.txt", "and.txt"},
		{".hidden.txt", "hidden.txt"},
		{"", "upload"},
		{"///", "upload"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
