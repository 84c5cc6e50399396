package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fourone/rnc-api/internal/logging"
)

// maxLoggedBody caps how much of a request or response body is logged.
const maxLoggedBody = 64 << 10

// HTTPLogging logs requests and responses with credentials masked.
// It does nothing unless logger has DEBUG enabled, so the level can be
// raised at runtime without restarting.
//
// Multipart bodies (registry uploads) are never buffered; only their size
// is reported.
func HTTPLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !logger.Enabled(r.Context(), slog.LevelDebug) {
				next.ServeHTTP(w, r)
				return
			}

			logRequest(logger, r)

			rec := &responseRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
				body:           new(bytes.Buffer),
			}

			start := time.Now()
			next.ServeHTTP(rec, r)
			logResponse(logger, r, rec, time.Since(start))
		})
	}
}

func logRequest(logger *slog.Logger, r *http.Request) {
	body := "[MULTIPART]"
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		var raw []byte
		if r.Body != nil {
			var err error
			raw, err = io.ReadAll(io.LimitReader(r.Body, maxLoggedBody+1))
			if err != nil {
				logger.Error("Failed to read request body", "error", err)
				return
			}
			// Hand the handler the bytes we consumed plus whatever remains.
			r.Body = readCloser{io.MultiReader(bytes.NewReader(raw), r.Body), r.Body}
		}
		body = maskBody(raw)
	}

	logger.Debug("HTTP Request",
		"request_id", GetRequestID(r.Context()),
		"method", r.Method,
		"url", r.URL.Path,
		"query_params", logging.MaskQuery(r.URL.RawQuery),
		"client_ip", GetClientIP(r),
		"headers", maskHeaders(r.Header),
		"body", body,
	)
}

func logResponse(logger *slog.Logger, r *http.Request, rec *responseRecorder, duration time.Duration) {
	logger.Debug("HTTP Response",
		"request_id", GetRequestID(r.Context()),
		"method", r.Method,
		"url", r.URL.Path,
		"status_code", rec.statusCode,
		"headers", maskHeaders(rec.Header()),
		"body", maskBody(rec.body.Bytes()),
		"duration_ms", duration.Milliseconds(),
	)
}

func maskHeaders(headers http.Header) map[string]string {
	result := make(map[string]string, len(headers))
	for k, v := range headers {
		if len(v) > 0 {
			result[k] = logging.MaskHeader(k, v[0])
		}
	}
	return result
}

func maskBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	truncated := len(body) > maxLoggedBody
	if truncated {
		return "[TRUNCATED: body exceeds log limit]"
	}
	if !utf8.Valid(body) {
		return logging.FormatBinaryData(body)
	}
	return string(logging.MaskJSONBody(body))
}

type readCloser struct {
	io.Reader
	io.Closer
}

// responseRecorder captures response details for logging.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

// WriteHeader captures the status code and writes it to the response.
func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Write captures up to maxLoggedBody+1 bytes and writes everything through.
func (r *responseRecorder) Write(b []byte) (int, error) {
	if room := maxLoggedBody + 1 - r.body.Len(); room > 0 {
		if len(b) < room {
			room = len(b)
		}
		r.body.Write(b[:room])
	}
	return r.ResponseWriter.Write(b)
}
