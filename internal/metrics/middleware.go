package metrics

import (
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// digitSegment matches path segments that start with a digit, such as RNCs
// and token IDs.
var digitSegment = regexp.MustCompile(`/\d[^/]*`)

// codeWriter remembers the first status code written.
type codeWriter struct {
	http.ResponseWriter
	code int
}

func (w *codeWriter) WriteHeader(code int) {
	if w.code != 0 {
		return
	}
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *codeWriter) Write(b []byte) (int, error) {
	if w.code == 0 {
		w.code = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// status returns the code to report, treating "nothing written" as 200.
func (w *codeWriter) status() int {
	if w.code == 0 {
		return http.StatusOK
	}
	return w.code
}

// Middleware counts requests and observes their latency by method, route
// and status code. A panicking handler is counted as 500 and the panic is
// passed on to the recoverer further out.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cw := &codeWriter{ResponseWriter: w}
		start := time.Now()

		defer func() {
			code := cw.status()
			rec := recover()
			if rec != nil {
				code = http.StatusInternalServerError
			}

			route := routeLabel(r)
			status := strconv.Itoa(code)
			RecordRequest(r.Method, route, status)
			RecordRequestDuration(r.Method, route, status, time.Since(start).Seconds())

			if rec != nil {
				panic(rec)
			}
		}()

		next.ServeHTTP(cw, r)
	})
}

// routeLabel prefers the matched chi route pattern and falls back to the
// normalized URL path, keeping label cardinality bounded.
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return normalizePath(r.URL.Path)
}

// normalizePath replaces digit-led segments with ":id".
//
//	/api/validate/101010101 -> /api/validate/:id
//	/admin/api/tokens/7/toggle -> /admin/api/tokens/:id/toggle
func normalizePath(path string) string {
	return digitSegment.ReplaceAllString(path, "/:id")
}
