package auth

import (
	"context"

	"github.com/fourone/rnc-api/internal/ratelimit"
)

type ctxKey int

const (
	decisionKey ctxKey = iota // stores ratelimit.Decision
)

// WithDecision stores the admission decision on the context.
func WithDecision(ctx context.Context, d ratelimit.Decision) context.Context {
	return context.WithValue(ctx, decisionKey, d)
}

// DecisionFromContext returns the admission decision for the request.
func DecisionFromContext(ctx context.Context) (ratelimit.Decision, bool) {
	d, ok := ctx.Value(decisionKey).(ratelimit.Decision)
	return d, ok
}
