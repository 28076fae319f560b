package episode

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/0xlouis/MarioKart8-Gym-Env/internal/episode"

type metrics struct {
	episodes   metric.Int64Counter
	steps      metric.Int64Counter
	recoveries metric.Int64Counter
	timeouts   metric.Int64Counter
	setupTime  metric.Float64Histogram
}

func newMetrics() *metrics {
	m := otel.Meter(instrumentationName)
	count := func(name, desc string) metric.Int64Counter {
		c, err := m.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			c, _ = noop.Meter{}.Int64Counter(name)
		}
		return c
	}
	setup, err := m.Float64Histogram("episode.setup.duration",
		metric.WithDescription("Time from reset to race ready"),
		metric.WithUnit("s"),
	)
	if err != nil {
		setup, _ = noop.Meter{}.Float64Histogram("episode.setup.duration")
	}
	return &metrics{
		episodes:   count("episode.count", "Episodes started"),
		steps:      count("episode.steps", "Steps taken across episodes"),
		recoveries: count("episode.recoveries", "Emulator relaunches after a failed setup"),
		timeouts:   count("episode.timeouts", "Episodes ended by the step budget"),
		setupTime:  setup,
	}
}
