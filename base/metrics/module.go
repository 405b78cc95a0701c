package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/tevino/abool"

	"github.com/safing/scanguard/service/mgr"
)

// Metrics exposes all registered metrics over HTTP and optionally pushes them
// to a remote endpoint.
type Metrics struct {
	listen       string
	pushURL      string
	pushInterval time.Duration

	server *http.Server
}

var (
	registry     []Metric
	registryLock sync.RWMutex

	firstMetricRegistered bool
	metricNamespace       = "scanguard"
	globalLabels          = make(map[string]string)

	baseMetricsRegistered = abool.New()

	// ErrAlreadyStarted is returned when an operation is only valid before the
	// first metric is registered, and is called after.
	ErrAlreadyStarted = errors.New("can only be changed before first metric is registered")

	// ErrAlreadyRegistered is returned when a metric with the same ID is
	// registered again.
	ErrAlreadyRegistered = errors.New("metric already registered")

	// ErrInvalidOptions is returned when invalid options where provided.
	ErrInvalidOptions = errors.New("invalid options")
)

// New returns a new metrics module.
// The HTTP server only runs if listen is set, metrics are only pushed if
// pushURL is set.
func New(listen, pushURL string) *Metrics {
	return &Metrics{
		listen:       listen,
		pushURL:      pushURL,
		pushInterval: time.Minute,
	}
}

// Start registers the process metrics and starts the exporters.
func (met *Metrics) Start(m *mgr.Manager) error {
	if err := registerBaseMetrics(); err != nil {
		return err
	}

	if met.listen != "" {
		met.server = &http.Server{
			Addr:              met.listen,
			Handler:           newRouter(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		m.Go("http server", met.serve)
		m.Info("serving metrics", "listen", met.listen)
	}

	if met.pushURL != "" {
		m.Go("metric pusher", met.pushWorker)
	}

	return nil
}

// Stop pushes the metrics a last time and shuts down the HTTP server.
func (met *Metrics) Stop(m *mgr.Manager) error {
	if met.pushURL != "" {
		err := m.Do("final metric push", func(w *mgr.WorkerCtx) error {
			return writeMetricsTo(w.Ctx(), met.pushURL)
		})
		if err != nil {
			m.Warn("failed to push metrics on shutdown", "err", err)
		}
	}

	if met.server == nil {
		return nil
	}
	if err := met.server.Close(); err != nil {
		return fmt.Errorf("failed to stop http server: %w", err)
	}
	return nil
}

func (met *Metrics) serve(w *mgr.WorkerCtx) error {
	err := met.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func registerBaseMetrics() error {
	// Only register once.
	if !baseMetricsRegistered.SetToIf(false, true) {
		return nil
	}

	if err := registerInfoMetric(); err != nil {
		return err
	}
	if err := registerRuntimeMetric(); err != nil {
		return err
	}
	if err := registerHostMetrics(); err != nil {
		return err
	}
	return registerLogMetrics()
}

func register(m Metric) error {
	registryLock.Lock()
	defer registryLock.Unlock()

	// Check if metric ID is already registered.
	for _, registeredMetric := range registry {
		if m.LabeledID() == registeredMetric.LabeledID() {
			return fmt.Errorf("%w: %s", ErrAlreadyRegistered, m.LabeledID())
		}
	}

	// Add new metric to registry and sort it.
	registry = append(registry, m)
	sort.Sort(byLabeledID(registry))

	// Set flag that first metric is now registered.
	firstMetricRegistered = true

	return nil
}

// SetNamespace sets the namespace for all metrics. It is prefixed to all
// metric IDs. It defaults to "scanguard".
// It must be set before any metric is registered.
// Does not affect golang runtime metrics.
func SetNamespace(namespace string) error {
	// Lock registry and check if a first metric is already registered.
	registryLock.Lock()
	defer registryLock.Unlock()
	if firstMetricRegistered {
		return ErrAlreadyStarted
	}

	metricNamespace = namespace
	return nil
}

// AddGlobalLabel adds a global label to all metrics.
// Global labels must be added before any metric is registered.
// Does not affect golang runtime metrics.
func AddGlobalLabel(name, value string) error {
	// Lock registry and check if a first metric is already registered.
	registryLock.Lock()
	defer registryLock.Unlock()
	if firstMetricRegistered {
		return ErrAlreadyStarted
	}

	// Check format.
	if !prometheusFormat.MatchString(name) {
		return fmt.Errorf("metric label name %q must match %s", name, PrometheusFormatRequirement)
	}

	globalLabels[name] = value
	return nil
}

type byLabeledID []Metric

func (r byLabeledID) Len() int           { return len(r) }
func (r byLabeledID) Less(i, j int) bool { return r[i].LabeledID() < r[j].LabeledID() }
func (r byLabeledID) Swap(i, j int)      { r[i], r[j] = r[j], r[i] }
