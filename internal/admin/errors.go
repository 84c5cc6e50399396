package admin

import (
	"encoding/json"
	"net/http"
)

// Standard error codes for API responses.
const (
	// ErrCodeInvalidRequest indicates a malformed request body or parameter.
	ErrCodeInvalidRequest = "invalid_request"

	// ErrCodeInvalidCredentials indicates a failed login.
	ErrCodeInvalidCredentials = "invalid_credentials"

	// ErrCodeSessionRequired indicates a missing or expired admin session.
	ErrCodeSessionRequired = "session_required"

	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeUnsupportedFile indicates an upload that is not .txt or .csv.
	ErrCodeUnsupportedFile = "unsupported_file"

	// ErrCodeFileTooLarge indicates an upload over the configured limit.
	ErrCodeFileTooLarge = "file_too_large"

	// ErrCodeImportInProgress indicates another import holds the importer.
	ErrCodeImportInProgress = "import_in_progress"

	// ErrCodeImportFailed indicates the import ran and ended in error.
	ErrCodeImportFailed = "import_failed"

	// ErrCodeInternalError indicates a server error.
	ErrCodeInternalError = "internal_error"
)

// APIError is the standard error response format for JSON APIs.
type APIError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// WriteError writes a JSON error response with the given status code, error code, and message.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteErrorWithHint(w, status, code, message, "")
}

// WriteErrorWithHint writes a JSON error response with an optional hint for resolving the error.
func WriteErrorWithHint(w http.ResponseWriter, status int, code, message, hint string) {
	writeJSON(w, status, APIError{
		Error:   code,
		Message: message,
		Hint:    hint,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // Response write errors are unrecoverable
	json.NewEncoder(w).Encode(v)
}
