package metrics

import (
	"fmt"
	"io"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	vm "github.com/VictoriaMetrics/metrics"
)

// PrometheusFormatRequirement is the format prometheus requires for metric
// and label names.
const PrometheusFormatRequirement = "^[a-zA-Z_][a-zA-Z0-9_]*$"

var prometheusFormat = regexp.MustCompile(PrometheusFormatRequirement)

// Metric is a registered metric.
type Metric interface {
	ID() string
	LabeledID() string
	Opts() *Options
	WritePrometheus(w io.Writer)
}

// Options holds optional metric settings.
type Options struct {
	// Name is a human readable name.
	Name string
}

// metricBase holds what all metric types share. Every metric has its own
// set, so that metrics can be written one by one in registry order.
type metricBase struct {
	id        string
	labels    map[string]string
	labeledID string
	opts      *Options
	set       *vm.Set
}

// newMetricBase checks the ID and labels and builds the labeled ID. IDs use
// slashes as separators, eg. "sink/errors/total".
func newMetricBase(id string, labels map[string]string, opts Options) (*metricBase, error) {
	name := strings.ReplaceAll(strings.TrimSpace(id), "/", "_")
	if !prometheusFormat.MatchString(name) {
		return nil, fmt.Errorf("%w: metric name %q must match %s", ErrInvalidOptions, id, PrometheusFormatRequirement)
	}
	for labelName := range labels {
		if !prometheusFormat.MatchString(labelName) {
			return nil, fmt.Errorf("%w: label name %q must match %s", ErrInvalidOptions, labelName, PrometheusFormatRequirement)
		}
	}

	base := &metricBase{
		id:     id,
		labels: maps.Clone(labels),
		opts:   &opts,
		set:    vm.NewSet(),
	}
	if base.labels == nil {
		base.labels = make(map[string]string)
	}
	base.labeledID = base.buildLabeledID(name)
	return base, nil
}

// ID returns the ID the metric was registered with.
func (m *metricBase) ID() string {
	return m.id
}

// LabeledID returns the full prometheus name of the metric, including the
// namespace and all labels.
func (m *metricBase) LabeledID() string {
	return m.labeledID
}

// Opts returns the metric options. They must not be modified.
func (m *metricBase) Opts() *Options {
	return m.opts
}

// WritePrometheus writes the metric in the prometheus text format.
func (m *metricBase) WritePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
}

func (m *metricBase) buildLabeledID(name string) string {
	// The namespace and global labels are fixed from now on.
	registryLock.Lock()
	defer registryLock.Unlock()
	firstMetricRegistered = true

	if metricNamespace != "" {
		name = metricNamespace + "_" + name
	}

	// Metric labels take precedence over global labels.
	for labelName, labelValue := range globalLabels {
		if _, ok := m.labels[labelName]; !ok {
			m.labels[labelName] = labelValue
		}
	}
	if len(m.labels) == 0 {
		return name
	}

	// Sorted, so that the ID is reproducible.
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, labelName := range slices.Sorted(maps.Keys(m.labels)) {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(labelName)
		b.WriteByte('=')
		b.WriteString(strconv.Quote(m.labels[labelName]))
	}
	b.WriteByte('}')
	return b.String()
}
