package middleware

import "net/http"

// MaxBodySize limits request bodies to maxBytes. Requests that declare a
// larger Content-Length are refused with 413 before reaching the handler.
// Bodies without a declared length fail on the read past the limit, and
// the handler decides how to report it.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				//nolint:errcheck // Response write errors are unrecoverable
				w.Write([]byte(`{"status":"error","message":"Request body too large"}`))
				return
			}
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
