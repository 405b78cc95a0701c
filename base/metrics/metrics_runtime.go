package metrics

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	vm "github.com/VictoriaMetrics/metrics"

	"github.com/safing/scanguard/base/log"
)

func registerRuntimeMetric() error {
	runtimeBase, err := newMetricBase("_runtime", nil, Options{
		Name: "Golang Runtime",
	})
	if err != nil {
		return err
	}

	return register(&runtimeMetrics{
		metricBase: runtimeBase,
	})
}

type runtimeMetrics struct {
	*metricBase
}

// WritePrometheus writes the go runtime and process metrics with the global
// labels added to every line.
func (r *runtimeMetrics) WritePrometheus(w io.Writer) {
	registryLock.RLock()
	labels := make([]string, 0, len(globalLabels))
	for labelKey, labelValue := range globalLabels {
		labels = append(labels, fmt.Sprintf("%s=%q", labelKey, labelValue))
	}
	registryLock.RUnlock()

	// If there nothing to change, just write directly to w.
	if len(labels) == 0 {
		vm.WriteProcessMetrics(w)
		return
	}

	buf := new(bytes.Buffer)
	vm.WriteProcessMetrics(buf)

	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			fmt.Fprintln(w, line)
			continue
		}

		// Merge into existing labels or add a new label set before the value.
		if insertAt := strings.Index(line, "{") + 1; insertAt > 0 {
			fmt.Fprintf(w, "%s%s,%s\n", line[:insertAt], strings.Join(labels, ","), line[insertAt:])
			continue
		}
		insertAt := strings.Index(line, " ")
		if insertAt < 0 {
			continue
		}
		fmt.Fprintf(w, "%s{%s}%s\n", line[:insertAt], strings.Join(labels, ","), line[insertAt:])
	}

	if scanner.Err() != nil {
		log.Warningf("metrics: failed to scan go process metrics: %s", scanner.Err())
	}
}
