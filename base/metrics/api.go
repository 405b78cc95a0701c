package metrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/safing/scanguard/service/mgr"
)

func newRouter() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/metrics", serveMetrics).Methods(http.MethodGet)
	router.HandleFunc("/health", serveHealth).Methods(http.MethodGet)
	return router
}

func serveMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	WriteMetrics(w)
}

func serveHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok\n")
}

// WriteMetrics writes all registered metrics to the given writer.
func WriteMetrics(w io.Writer) {
	registryLock.RLock()
	defer registryLock.RUnlock()

	for _, metric := range registry {
		metric.WritePrometheus(w)
	}
}

func writeMetricsTo(ctx context.Context, url string) error {
	// First, collect metrics into buffer.
	buf := &bytes.Buffer{}
	WriteMetrics(buf)

	// Check if there is something to send.
	if buf.Len() == 0 {
		return nil
	}

	// Create request
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// Send.
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Check return status.
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}

	// Get and return error.
	body, _ := io.ReadAll(resp.Body)
	return fmt.Errorf(
		"got %s while writing metrics to %s: %s",
		resp.Status,
		url,
		body,
	)
}

func (met *Metrics) pushWorker(w *mgr.WorkerCtx) error {
	ticker := time.NewTicker(met.pushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.Done():
			return nil
		case <-ticker.C:
			// A failed push is retried on the next tick.
			if err := writeMetricsTo(w.Ctx(), met.pushURL); err != nil {
				w.Warn("failed to push metrics", "url", met.pushURL, "err", err)
			}
		}
	}
}
