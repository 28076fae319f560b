package sampler

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/0xlouis/MarioKart8-Gym-Env/internal/sampler"

type metrics struct {
	ticks    metric.Int64Counter
	holds    metric.Int64Counter
	releases metric.Int64Counter
	faults   metric.Int64Counter
}

func counter(m metric.Meter, name, desc string) metric.Int64Counter {
	c, err := m.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		c, _ = noop.Meter{}.Int64Counter(name)
	}
	return c
}

func newMetrics() *metrics {
	m := otel.Meter(instrumentationName)
	return &metrics{
		ticks:    counter(m, "sampler.ticks", "Tick stops observed"),
		holds:    counter(m, "sampler.holds", "Ticks held in stepper mode"),
		releases: counter(m, "sampler.releases", "Held ticks released"),
		faults:   counter(m, "sampler.capture.faults", "Captures discarded on read or decode failure"),
	}
}
