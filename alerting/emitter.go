package alerting

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/safing/scanguard/service/mgr"
)

const (
	// DefaultQueueSize is the number of alerts buffered per sink.
	DefaultQueueSize = 64

	drainTimeout = 5 * time.Second
)

// Emitter prints alerts to the console and hands them to the sinks.
// Emit never blocks on a sink: every sink has its own queue and worker, and
// alerts that do not fit into a full queue are dropped for that sink.
type Emitter struct {
	console   io.Writer
	sinks     []Sink
	queueSize int

	// consoleLock serializes console lines written by Emit and Print.
	consoleLock sync.Mutex

	events *mgr.EventMgr[Alert]
}

// NewEmitter returns a new emitter writing to console, which defaults to
// stdout.
func NewEmitter(console io.Writer, sinks ...Sink) *Emitter {
	if console == nil {
		console = os.Stdout
	}
	return &Emitter{
		console:   console,
		sinks:     sinks,
		queueSize: DefaultQueueSize,
	}
}

// SetQueueSize sets the per sink queue size. It must be called before Start.
func (e *Emitter) SetQueueSize(size int) {
	if size > 0 {
		e.queueSize = size
	}
}

// Sinks returns the names of the configured sinks.
func (e *Emitter) Sinks() []string {
	names := make([]string, 0, len(e.sinks))
	for _, s := range e.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Start starts a worker per sink.
func (e *Emitter) Start(m *mgr.Manager) error {
	if err := registerMetrics(); err != nil {
		return err
	}

	e.events = mgr.NewEventMgr[Alert]("alert", m)
	e.events.OnOverflow = func(sinkName string) {
		sinkCounters(sinkName).dropped.Inc()
	}

	for _, sink := range e.sinks {
		sub := e.events.Subscribe(sink.Name(), e.queueSize)
		m.Go(sink.Name()+" sink", func(w *mgr.WorkerCtx) error {
			return e.sinkWorker(w, sink, sub)
		})
	}

	m.Debug("alert sinks ready", "sinks", e.Sinks())
	return nil
}

// Stop waits for the sink workers to deliver queued alerts and closes the
// sinks.
func (e *Emitter) Stop(m *mgr.Manager) error {
	m.Cancel()
	if !m.WaitForWorkers(drainTimeout + time.Second) {
		m.Warn("sink workers did not finish in time")
	}

	var result *multierror.Error
	for _, sink := range e.sinks {
		if err := sink.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close %s sink: %w", sink.Name(), err))
		}
	}
	return result.ErrorOrNil()
}

// Emit prints the alert to the console and queues it for all sinks.
// A failure of the console or any sink never affects the others.
func (e *Emitter) Emit(alert Alert) {
	countAlert()
	e.Print(alert.Line())

	if e.events != nil {
		e.events.Submit(alert)
	}
}

// Print writes a line to the console.
func (e *Emitter) Print(line string) {
	e.consoleLock.Lock()
	defer e.consoleLock.Unlock()

	if _, err := fmt.Fprintln(e.console, line); err != nil {
		slog.Warn("failed to write to console", "err", err)
	}
}

func (e *Emitter) sinkWorker(w *mgr.WorkerCtx, sink Sink, sub *mgr.EventSubscription[Alert]) error {
	for {
		select {
		case alert := <-sub.Events():
			e.send(w.Ctx(), w.Logger(), sink, alert)

		case <-w.Done():
			sub.Cancel()
			return e.drain(w.Logger(), sink, sub)
		}
	}
}

// drain delivers alerts that were queued before shutdown.
func (e *Emitter) drain(logger *slog.Logger, sink Sink, sub *mgr.EventSubscription[Alert]) error {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		select {
		case alert := <-sub.Events():
			e.send(ctx, logger, sink, alert)
		default:
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (e *Emitter) send(ctx context.Context, logger *slog.Logger, sink Sink, alert Alert) {
	if err := sink.Send(ctx, alert); err != nil {
		sinkCounters(sink.Name()).errors.Inc()
		logger.Warn(
			"failed to deliver alert",
			"sink", sink.Name(),
			"source", alert.Source,
			"err", err,
		)
	}
}
