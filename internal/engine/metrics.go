package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// metrics holds the engine's own operational instruments (spec.md's
// expanded ambient stack): cycle duration and the consecutive-error
// count the Checker is tracking. These describe the engine's health,
// not Project progress statistics, which stay out of scope.
type metrics struct {
	provider          *sdkmetric.MeterProvider
	cycleDuration     metric.Float64Histogram
	consecutiveErrors metric.Int64Gauge
}

func newMetrics() (*metrics, error) {
	exporter, err := stdoutmetric.New(stdoutmetric.WithoutTimestamps())
	if err != nil {
		return nil, fmt.Errorf("engine: create metrics exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(5*time.Minute))),
	)
	meter := provider.Meter("github.com/pixelhawk/hawk/internal/engine")

	cycleDuration, err := meter.Float64Histogram(
		"pixelhawk.engine.cycle_duration_seconds",
		metric.WithDescription("Wall-clock duration of one polling cycle."),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("engine: create cycle duration histogram: %w", err)
	}

	consecutiveErrors, err := meter.Int64Gauge(
		"pixelhawk.engine.consecutive_errors",
		metric.WithDescription("Current count of consecutive complete-cycle failures."),
	)
	if err != nil {
		return nil, fmt.Errorf("engine: create consecutive errors gauge: %w", err)
	}

	return &metrics{
		provider:          provider,
		cycleDuration:     cycleDuration,
		consecutiveErrors: consecutiveErrors,
	}, nil
}

// noopMetrics returns a metrics value whose instruments are nil; all
// methods on metrics must tolerate that (recordCycle does).
func noopMetrics() *metrics { return &metrics{} }

func (m *metrics) recordCycle(ctx context.Context, elapsed time.Duration, consecutiveErrors int) {
	if m == nil {
		return
	}
	if m.cycleDuration != nil {
		m.cycleDuration.Record(ctx, elapsed.Seconds())
	}
	if m.consecutiveErrors != nil {
		m.consecutiveErrors.Record(ctx, int64(consecutiveErrors))
	}
}

func (m *metrics) shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
