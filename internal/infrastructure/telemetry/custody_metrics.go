package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when no meter is supplied
var ErrMeterNil = errors.New("telemetry: meter is nil")

// Metric attribute keys
var (
	AttrKeyKind    = attribute.Key("kind")
	AttrKeyOutcome = attribute.Key("outcome")
	AttrKeyCode    = attribute.Key("code")
)

// Flow outcomes
const (
	OutcomeCompleted = "completed"
	OutcomeRejected  = "rejected"
)

// CustodyMetrics counts custody flows by kind and outcome
type CustodyMetrics struct {
	flows    metric.Int64Counter
	duration metric.Float64Histogram
	released metric.Int64Counter
}

// NewCustodyMetrics registers the custody instruments on meter
func NewCustodyMetrics(meter metric.Meter) (*CustodyMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	flows, err := meter.Int64Counter("custody.flows",
		metric.WithDescription("Custody flows by kind and outcome"),
		metric.WithUnit("{flow}"),
	)
	if err != nil {
		return nil, fmt.Errorf("custody.flows: %w", err)
	}
	duration, err := meter.Float64Histogram("custody.flow.duration",
		metric.WithDescription("Wall time of custody flows"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("custody.flow.duration: %w", err)
	}
	released, err := meter.Int64Counter("custody.redemption.released_assets",
		metric.WithDescription("Asset entries reported by in-kind redemptions"),
		metric.WithUnit("{asset}"),
	)
	if err != nil {
		return nil, fmt.Errorf("custody.redemption.released_assets: %w", err)
	}

	return &CustodyMetrics{flows: flows, duration: duration, released: released}, nil
}

// RecordFlow records one finished flow. code is empty on success.
func (m *CustodyMetrics) RecordFlow(ctx context.Context, kind, code string, elapsed time.Duration) {
	outcome := OutcomeCompleted
	if code != "" {
		outcome = OutcomeRejected
	}
	attrs := metric.WithAttributes(
		AttrKeyKind.String(kind),
		AttrKeyOutcome.String(outcome),
		AttrKeyCode.String(code),
	)
	m.flows.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
}

// RecordReleased records how many asset entries a redemption returned
func (m *CustodyMetrics) RecordReleased(ctx context.Context, n int) {
	m.released.Add(ctx, int64(n))
}
