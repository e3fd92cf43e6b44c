package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AuthMetrics records authentication outcomes per strategy. Counters go
// through the global meter provider, so they are noops until telemetry is
// initialized.
type AuthMetrics struct {
	attempts     metric.Int64Counter
	sessionSweep metric.Int64Counter
}

// NewAuthMetrics registers the authentication instruments.
func NewAuthMetrics() (*AuthMetrics, error) {
	meter := otel.Meter("portal/auth")

	attempts, err := meter.Int64Counter("auth.attempts",
		metric.WithDescription("Authentication attempts by strategy and outcome"))
	if err != nil {
		return nil, fmt.Errorf("create auth.attempts counter: %w", err)
	}

	swept, err := meter.Int64Counter("auth.sessions.swept",
		metric.WithDescription("Expired sessions removed by the sweeper"))
	if err != nil {
		return nil, fmt.Errorf("create auth.sessions.swept counter: %w", err)
	}

	return &AuthMetrics{attempts: attempts, sessionSweep: swept}, nil
}

// RecordAttempt counts one authentication attempt.
func (m *AuthMetrics) RecordAttempt(ctx context.Context, strategy, outcome string) {
	if m == nil {
		return
	}
	m.attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.String("outcome", outcome),
	))
}

// RecordSweep counts sessions removed by one sweeper pass.
func (m *AuthMetrics) RecordSweep(ctx context.Context, removed int64) {
	if m == nil {
		return
	}
	m.sessionSweep.Add(ctx, removed)
}
