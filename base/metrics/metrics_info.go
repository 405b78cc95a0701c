package metrics

import (
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/safing/scanguard/base/info"
)

var reportedStart atomic.Bool

func registerInfoMetric() error {
	meta := info.GetInfo()
	_, err := NewGauge(
		"info",
		map[string]string{
			"name":       meta.Name,
			"version":    checkUnknown(meta.Version),
			"commit":     checkUnknown(meta.Commit),
			"build_date": checkUnknown(meta.BuildTime),
			"go_os":      runtime.GOOS,
			"go_arch":    runtime.GOARCH,
			"go_version": meta.GoVersion,
			"dirty":      strconv.FormatBool(meta.Dirty),
		},
		func() float64 {
			// The first export reports 0, so restarts show up as a change.
			if reportedStart.CompareAndSwap(false, true) {
				return 0
			}
			return 1
		},
		&Options{Name: "Build Info"},
	)
	return err
}

func checkUnknown(s string) string {
	if strings.Contains(s, "unknown") {
		return "unknown"
	}
	return s
}
