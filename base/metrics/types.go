package metrics

import (
	"fmt"
	"io"

	vm "github.com/VictoriaMetrics/metrics"
)

// Counter is a counter that is increased by the owning package.
type Counter struct {
	*metricBase
	*vm.Counter
}

// FetchingCounter is a counter whose value is read from a function on every
// export, for totals that are already kept elsewhere.
type FetchingCounter struct {
	*metricBase
	counter *vm.Counter
	fetch   func() uint64
}

// Gauge is a gauge that reads its value from a function on every export.
type Gauge struct {
	*metricBase
	*vm.Gauge
}

// NewCounter registers a new counter metric.
func NewCounter(id string, labels map[string]string, opts *Options) (*Counter, error) {
	return newRegistered(id, labels, opts, func(base *metricBase) *Counter {
		return &Counter{
			metricBase: base,
			Counter:    base.set.NewCounter(base.LabeledID()),
		}
	})
}

// NewFetchingCounter registers a new fetching counter metric.
func NewFetchingCounter(id string, labels map[string]string, fn func() uint64, opts *Options) (*FetchingCounter, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: no fetch function provided", ErrInvalidOptions)
	}
	return newRegistered(id, labels, opts, func(base *metricBase) *FetchingCounter {
		return &FetchingCounter{
			metricBase: base,
			counter:    base.set.NewCounter(base.LabeledID()),
			fetch:      fn,
		}
	})
}

// NewGauge registers a new gauge metric.
func NewGauge(id string, labels map[string]string, fn func() float64, opts *Options) (*Gauge, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: no value function provided", ErrInvalidOptions)
	}
	return newRegistered(id, labels, opts, func(base *metricBase) *Gauge {
		return &Gauge{
			metricBase: base,
			Gauge:      base.set.NewGauge(base.LabeledID(), fn),
		}
	})
}

// newRegistered builds the metric base, lets create wrap it and registers
// the result.
func newRegistered[M Metric](id string, labels map[string]string, opts *Options, create func(*metricBase) M) (M, error) {
	var none M
	if opts == nil {
		opts = &Options{}
	}

	base, err := newMetricBase(id, labels, *opts)
	if err != nil {
		return none, err
	}

	m := create(base)
	if err := register(m); err != nil {
		return none, err
	}
	return m, nil
}

// CurrentValue returns the current counter value.
func (c *Counter) CurrentValue() uint64 {
	return c.Get()
}

// CurrentValue returns the current counter value.
func (fc *FetchingCounter) CurrentValue() uint64 {
	return fc.fetch()
}

// WritePrometheus writes the metric in the prometheus format to the given writer.
func (fc *FetchingCounter) WritePrometheus(w io.Writer) {
	fc.counter.Set(fc.fetch())
	fc.metricBase.WritePrometheus(w)
}

// CurrentValue returns the current gauge value.
func (g *Gauge) CurrentValue() float64 {
	return g.Get()
}
