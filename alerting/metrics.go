package alerting

import (
	"log/slog"
	"sync"

	vm "github.com/VictoriaMetrics/metrics"

	"github.com/safing/scanguard/base/metrics"
)

var (
	alertsTotal     *metrics.Counter
	metricsOnce     sync.Once
	metricsErr      error

	sinkMetrics     = make(map[string]*sinkMetricSet)
	sinkMetricsLock sync.Mutex
)

type sinkMetricSet struct {
	errors  *metrics.Counter
	dropped *metrics.Counter
}

func registerMetrics() error {
	metricsOnce.Do(func() {
		alertsTotal, metricsErr = metrics.NewCounter(
			"alerts/total",
			nil,
			&metrics.Options{Name: "Port Scan Alerts"},
		)
		if metricsErr != nil {
			alertsTotal = &metrics.Counter{Counter: new(vm.Counter)}
		}
	})
	return metricsErr
}

func countAlert() {
	_ = registerMetrics()
	alertsTotal.Inc()
}

// sinkCounters returns the counters of a sink and registers them on first use.
func sinkCounters(sinkName string) *sinkMetricSet {
	sinkMetricsLock.Lock()
	defer sinkMetricsLock.Unlock()

	if set, ok := sinkMetrics[sinkName]; ok {
		return set
	}

	set := &sinkMetricSet{
		errors:  newSinkCounter("sink/errors/total", sinkName, "Alert Sink Errors"),
		dropped: newSinkCounter("sink/dropped/total", sinkName, "Alerts Dropped by Full Sink Queue"),
	}
	sinkMetrics[sinkName] = set
	return set
}

func newSinkCounter(id, sinkName, name string) *metrics.Counter {
	c, err := metrics.NewCounter(id, map[string]string{"sink": sinkName}, &metrics.Options{Name: name})
	if err != nil {
		// Keep counting without exporting.
		slog.Warn("failed to register sink metric", "sink", sinkName, "err", err)
		return &metrics.Counter{Counter: new(vm.Counter)}
	}
	return c
}
