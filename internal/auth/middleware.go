package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/fourone/rnc-api/internal/logging"
	"github.com/fourone/rnc-api/internal/middleware"
	"github.com/fourone/rnc-api/internal/ratelimit"
)

// Admitter decides whether a caller may proceed.
type Admitter interface {
	Admit(ctx context.Context, id ratelimit.Identity) (ratelimit.Decision, error)
	Now() time.Time
}

// Rate limit response headers.
const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
	HeaderPath      = "X-RateLimit-Path"
)

// rejection is the body of a 401 or 429 response.
type rejection struct {
	Status  string `json:"status"`
	Error   string `json:"error"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// Middleware admits each request through gate before calling next.
// Invalid or expired tokens get 401, exhausted quotas get 429 with
// Retry-After. The decision is stored on the request context.
func Middleware(gate Admitter, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ratelimit.Identity{
				Token: ExtractToken(r),
				IP:    middleware.GetClientIP(r),
			}

			d, err := gate.Admit(r.Context(), id)
			setRateHeaders(w, d)

			if err != nil {
				reason := ratelimit.Reason(err)
				if reason == "" {
					logging.FromContext(r.Context(), logger).Error("admission failed", "error", err)
					writeRejection(w, http.StatusInternalServerError, rejection{
						Status:  "error",
						Error:   "internal_error",
						Message: "Internal server error",
					})
					return
				}

				status := http.StatusUnauthorized
				if reason == ratelimit.ReasonQuotaExceeded {
					status = http.StatusTooManyRequests
					retry := d.RetryAfter(gate.Now())
					w.Header().Set("Retry-After", strconv.Itoa(int(retry/time.Second)))
				}
				logging.FromContext(r.Context(), logger).Info("request rejected",
					"path", d.Path, "reason", reason, "client_ip", id.IP, "token_id", d.TokenID)
				writeRejection(w, status, rejection{
					Status:  "error",
					Error:   rejectionTitle(reason),
					Reason:  reason,
					Message: rejectionMessage(reason, d),
				})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithDecision(r.Context(), d)))
		})
	}
}

func setRateHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	if d.Limit <= 0 {
		return
	}
	h := w.Header()
	h.Set(HeaderLimit, strconv.Itoa(d.Limit))
	h.Set(HeaderRemaining, strconv.Itoa(d.Remaining))
	h.Set(HeaderPath, d.Path)
	if !d.ResetAt.IsZero() {
		h.Set(HeaderReset, strconv.FormatInt(d.ResetAt.Unix(), 10))
	}
}

func rejectionTitle(reason string) string {
	switch reason {
	case ratelimit.ReasonQuotaExceeded:
		return "Rate limit exceeded"
	case ratelimit.ReasonTokenExpired:
		return "Token expired"
	default:
		return "Invalid token"
	}
}

func rejectionMessage(reason string, d ratelimit.Decision) string {
	switch reason {
	case ratelimit.ReasonQuotaExceeded:
		if d.Path == ratelimit.PathToken {
			return "Maximum " + strconv.Itoa(d.Limit) + " requests per hour allowed for this token"
		}
		return "Maximum " + strconv.Itoa(d.Limit) + " requests per minute allowed"
	case ratelimit.ReasonTokenExpired:
		return "The API token has expired"
	default:
		return "The API token is invalid or inactive"
	}
}

// writeRejection writes a JSON error response
func writeRejection(w http.ResponseWriter, status int, body rejection) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // Response write errors are unrecoverable
	json.NewEncoder(w).Encode(body)
}
