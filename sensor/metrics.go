package sensor

import (
	"sync"
	"sync/atomic"

	"github.com/safing/scanguard/base/metrics"
	"github.com/safing/scanguard/network/packet"
)

var (
	framesTotal       *metrics.Counter
	segmentsTotal     *metrics.Counter
	readTimeoutsTotal *metrics.Counter
	droppedByOutcome  map[packet.Outcome]*metrics.Counter

	// trackedSources is published by the loop for the gauge.
	trackedSources atomic.Int64

	metricsOnce sync.Once
	metricsErr  error
)

func registerMetrics() error {
	metricsOnce.Do(func() {
		metricsErr = doRegisterMetrics()
	})
	return metricsErr
}

func doRegisterMetrics() (err error) {
	framesTotal, err = metrics.NewCounter(
		"frames/total",
		nil,
		&metrics.Options{Name: "Captured Frames"},
	)
	if err != nil {
		return err
	}

	segmentsTotal, err = metrics.NewCounter(
		"segments/total",
		nil,
		&metrics.Options{Name: "Decoded TCP Segments"},
	)
	if err != nil {
		return err
	}

	readTimeoutsTotal, err = metrics.NewCounter(
		"read/timeouts/total",
		nil,
		&metrics.Options{Name: "Frame Read Timeouts"},
	)
	if err != nil {
		return err
	}

	droppedByOutcome = make(map[packet.Outcome]*metrics.Counter, len(packet.Outcomes))
	for _, outcome := range packet.Outcomes {
		droppedByOutcome[outcome], err = metrics.NewCounter(
			"decode/dropped/total",
			map[string]string{"reason": outcome.String()},
			&metrics.Options{Name: "Dropped Frames"},
		)
		if err != nil {
			return err
		}
	}

	_, err = metrics.NewGauge(
		"tracked/sources",
		nil,
		func() float64 {
			return float64(trackedSources.Load())
		},
		&metrics.Options{Name: "Tracked Source IPs"},
	)
	return err
}
