package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the metric instruments for the RPC surface and the
// authorization engine. Initialize once at startup and share; all record
// methods are safe on a nil receiver so wiring stays optional in tests.
type Metrics struct {
	RequestCounter  metric.Int64Counter     // Total RPC requests by method and code
	RequestDuration metric.Float64Histogram // RPC latency
	DecisionCounter metric.Int64Counter     // Authorization decisions by outcome
	ExpansionSize   metric.Int64Histogram   // Closure sizes per relation
}

// NewMetrics creates the instrument set on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("iam")

	requestCounter, err := meter.Int64Counter(
		"rpc.server.request.count",
		metric.WithDescription("Total number of RPC requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"rpc.server.request.duration",
		metric.WithDescription("RPC request duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)
	if err != nil {
		return nil, err
	}

	decisionCounter, err := meter.Int64Counter(
		"authz.decision.count",
		metric.WithDescription("Authorization decisions"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	expansionSize, err := meter.Int64Histogram(
		"authz.expansion.size",
		metric.WithDescription("Attribute closure sizes"),
		metric.WithUnit("{attribute}"),
		metric.WithExplicitBucketBoundaries(1, 4, 16, 64, 256, 1024),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:  requestCounter,
		RequestDuration: requestDuration,
		DecisionCounter: decisionCounter,
		ExpansionSize:   expansionSize,
	}, nil
}

// RecordRequest records one RPC request with its method, result code and
// duration.
func (m *Metrics) RecordRequest(ctx context.Context, method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("rpc.method", method),
		attribute.Int("rpc.code", code),
	)
	m.RequestCounter.Add(ctx, 1, attrs)
	m.RequestDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordDecision records one authorization decision.
func (m *Metrics) RecordDecision(ctx context.Context, allowed bool) {
	if m == nil {
		return
	}
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	m.DecisionCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("authz.outcome", outcome)))
}

// RecordExpansion records the size of one computed closure.
func (m *Metrics) RecordExpansion(ctx context.Context, relation string, size int) {
	if m == nil {
		return
	}
	m.ExpansionSize.Record(ctx, int64(size), metric.WithAttributes(attribute.String("authz.relation", relation)))
}
