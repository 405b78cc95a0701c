package metrics

import (
	"github.com/safing/scanguard/base/log"
)

// countedSeverities are the severities the logger keeps totals for.
var countedSeverities = []log.Severity{
	log.WarningLevel,
	log.ErrorLevel,
	log.CriticalLevel,
}

func registerLogMetrics() error {
	for _, severity := range countedSeverities {
		_, err := NewFetchingCounter(
			"logs/total",
			map[string]string{"severity": severity.Name()},
			func() uint64 { return log.TotalLogLines(severity) },
			&Options{Name: "Log Lines by Severity"},
		)
		if err != nil {
			return err
		}
	}
	return nil
}
