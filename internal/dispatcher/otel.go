package dispatcher

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/0xlouis/MarioKart8-Gym-Env/internal/dispatcher"

type metrics struct {
	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter
	duration  metric.Float64Histogram
}

// newMetrics creates the instruments. lengths reports the current lane
// lengths when the gauge is collected.
func newMetrics(lengths func(observe func(command string, n int))) (*metrics, error) {
	m := otel.Meter(instrumentationName)
	var (
		out metrics
		err error
	)

	out.queueSize, err = m.Int64ObservableGauge("dispatcher.queue.size",
		metric.WithDescription("Events waiting in a lane"))
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}
	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		lengths(func(command string, n int) {
			o.ObserveInt64(out.queueSize, int64(n), metric.WithAttributes(attribute.String("command", command)))
		})
		return nil
	}, out.queueSize)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	if out.processed, err = m.Int64Counter("dispatcher.events.processed",
		metric.WithDescription("Lane events handled")); err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}
	if out.dropped, err = m.Int64Counter("dispatcher.events.dropped",
		metric.WithDescription("Lane events refused because the lane was full")); err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}
	if out.duration, err = m.Float64Histogram("dispatcher.handle.duration",
		metric.WithDescription("Time spent in handlers"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}
	return &out, nil
}
