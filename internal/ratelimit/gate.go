// Package ratelimit decides whether a public API request is admitted,
// either against a registered token's hourly quota or an anonymous
// per-IP sliding window.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fourone/rnc-api/internal/metrics"
	"github.com/fourone/rnc-api/internal/storage"
)

var (
	// ErrInvalidToken is returned for unknown or deactivated tokens.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned once a token's expiry has passed.
	ErrTokenExpired = errors.New("token expired")

	// ErrQuotaExceeded is returned when the applicable quota is used up.
	ErrQuotaExceeded = errors.New("quota exceeded")
)

// Machine-readable rejection reasons.
const (
	ReasonInvalidToken  = "invalid_token"
	ReasonTokenExpired  = "token_expired"
	ReasonQuotaExceeded = "quota_exceeded"
)

// Identification paths.
const (
	PathToken     = "token"
	PathAnonymous = "anonymous"
)

// Defaults for the two quota tiers.
const (
	DefaultAnonymousPerMinute = 10
	DefaultTokenPerHour       = 60

	anonymousWindow = time.Minute
	tokenWindow     = time.Hour
)

// Identity is what a request presents for admission. A non-empty Token
// selects the token path; otherwise IP is rate limited anonymously.
type Identity struct {
	Token string
	IP    string
}

// Decision describes the quota that applied to a request.
// It is filled in for rejected requests as well.
type Decision struct {
	Path      string
	Limit     int
	Remaining int
	ResetAt   time.Time
	TokenID   int64
	TokenName string
}

// RetryAfter returns the wait until the quota frees up, at least one second.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait < time.Second {
		return time.Second
	}
	return wait.Round(time.Second)
}

// TokenQuotaStore updates token quota counters atomically.
type TokenQuotaStore interface {
	UpdateTokenQuota(ctx context.Context, tokenHash string, fn func(t *storage.Token) error) (*storage.Token, error)
}

// Gate makes admission decisions.
type Gate struct {
	tokens    TokenQuotaStore
	windows   *WindowStore
	anonLimit int
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithAnonymousLimit sets the per-minute ceiling for anonymous clients.
func WithAnonymousLimit(n int) Option {
	return func(g *Gate) {
		if n > 0 {
			g.anonLimit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

// NewGate creates a Gate over a token store and an injected window store.
func NewGate(tokens TokenQuotaStore, windows *WindowStore, opts ...Option) *Gate {
	g := &Gate{
		tokens:    tokens,
		windows:   windows,
		anonLimit: DefaultAnonymousPerMinute,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Now returns the gate's current time.
func (g *Gate) Now() time.Time {
	return g.now()
}

// Admit decides whether a request from id may proceed. Rejections return
// ErrInvalidToken, ErrTokenExpired or ErrQuotaExceeded; any other error
// is a store failure.
func (g *Gate) Admit(ctx context.Context, id Identity) (Decision, error) {
	if id.Token != "" {
		d, err := g.admitToken(ctx, id.Token)
		metrics.RecordAdmission(PathToken, resultLabel(err))
		return d, err
	}

	d, err := g.admitAnonymous(id.IP)
	metrics.RecordAdmission(PathAnonymous, resultLabel(err))
	return d, err
}

func (g *Gate) admitToken(ctx context.Context, token string) (Decision, error) {
	now := g.now().UTC()
	d := Decision{Path: PathToken}

	t, err := g.tokens.UpdateTokenQuota(ctx, storage.HashToken(token), func(t *storage.Token) error {
		if !t.IsActive {
			return ErrInvalidToken
		}
		if t.ExpiresAt != nil && now.After(*t.ExpiresAt) {
			return ErrTokenExpired
		}
		if now.Sub(t.WindowStart) >= tokenWindow {
			t.RequestsUsed = 0
			t.WindowStart = now
		}
		if t.RequestsUsed >= t.RequestsPerHour {
			return ErrQuotaExceeded
		}
		t.RequestsUsed++
		t.LastUsedAt = &now
		return nil
	})
	if t != nil {
		d.TokenID = t.ID
		d.TokenName = t.Name
		d.Limit = t.RequestsPerHour
		d.Remaining = max(t.RequestsPerHour-t.RequestsUsed, 0)
		d.ResetAt = t.WindowStart.Add(tokenWindow)
	}

	switch {
	case err == nil:
		return d, nil
	case errors.Is(err, storage.ErrNotFound):
		return d, ErrInvalidToken
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenExpired), errors.Is(err, ErrQuotaExceeded):
		g.logger.Debug("token rejected", "token_id", d.TokenID, "reason", Reason(err))
		return d, err
	default:
		return d, fmt.Errorf("consume token quota: %w", err)
	}
}

func (g *Gate) admitAnonymous(ip string) (Decision, error) {
	res := g.windows.Allow(ip, g.anonLimit, anonymousWindow, g.now())
	d := Decision{
		Path:      PathAnonymous,
		Limit:     res.Limit,
		Remaining: res.Remaining,
		ResetAt:   res.ResetAt,
	}
	if !res.Allowed {
		return d, ErrQuotaExceeded
	}
	return d, nil
}

// Reason maps a rejection error to its machine-readable reason.
// Returns "" for nil and for errors that are not rejections.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidToken):
		return ReasonInvalidToken
	case errors.Is(err, ErrTokenExpired):
		return ReasonTokenExpired
	case errors.Is(err, ErrQuotaExceeded):
		return ReasonQuotaExceeded
	default:
		return ""
	}
}

func resultLabel(err error) string {
	if err == nil {
		return "admitted"
	}
	if r := Reason(err); r != "" {
		return r
	}
	return "error"
}
