package mgr

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// DefaultStopTimeout is how long WaitForWorkers waits if no maximum is given.
const DefaultStopTimeout = time.Minute

// Manager runs the workers of a module and ties their lifetime to its context.
type Manager struct {
	name   string
	logger *slog.Logger

	ctx       context.Context
	cancelCtx context.CancelFunc

	workerCnt   atomic.Int32
	workersDone chan struct{}
}

// New returns a new standalone manager.
func New(name string) *Manager {
	return newManager(context.Background(), name, "manager")
}

func newManager(ctx context.Context, name string, logNameKey string) *Manager {
	m := &Manager{
		name:        name,
		logger:      slog.Default().With(logNameKey, name),
		workersDone: make(chan struct{}),
	}
	m.ctx, m.cancelCtx = context.WithCancel(ctx)
	return m
}

// Name returns the manager name.
func (m *Manager) Name() string {
	return m.name
}

// Ctx returns the manager context.
func (m *Manager) Ctx() context.Context {
	return m.ctx
}

// Cancel cancels the manager context, which signals all workers to stop.
func (m *Manager) Cancel() {
	m.cancelCtx()
}

// Done returns the context Done channel.
func (m *Manager) Done() <-chan struct{} {
	return m.ctx.Done()
}

// IsDone checks whether the manager context is done.
func (m *Manager) IsDone() bool {
	return m.ctx.Err() != nil
}

// Debug logs at LevelDebug with the manager context.
func (m *Manager) Debug(msg string, args ...any) {
	m.logger.Log(m.ctx, slog.LevelDebug, msg, args...)
}

// Info logs at LevelInfo with the manager context.
func (m *Manager) Info(msg string, args ...any) {
	m.logger.Log(m.ctx, slog.LevelInfo, msg, args...)
}

// Warn logs at LevelWarn with the manager context.
func (m *Manager) Warn(msg string, args ...any) {
	m.logger.Log(m.ctx, slog.LevelWarn, msg, args...)
}

// Error logs at LevelError with the manager context.
func (m *Manager) Error(msg string, args ...any) {
	m.logger.Log(m.ctx, slog.LevelError, msg, args...)
}

// WorkerCount returns the number of running workers.
func (m *Manager) WorkerCount() int {
	return int(m.workerCnt.Load())
}

// WaitForWorkers waits until all workers of the manager returned or max
// passed, and reports whether all workers are done. A max of zero or less
// means DefaultStopTimeout.
func (m *Manager) WaitForWorkers(max time.Duration) (done bool) {
	if m.workerCnt.Load() == 0 {
		return true
	}
	if max <= 0 {
		max = DefaultStopTimeout
	}

	// The count is polled with backoff in addition to the signal, as a
	// worker may finish between the check and the select.
	poll := 100 * time.Millisecond
	reCheck := time.NewTimer(poll)
	maxWait := time.NewTimer(max)
	defer reCheck.Stop()
	defer maxWait.Stop()

	for {
		if m.workerCnt.Load() == 0 {
			return true
		}

		select {
		case <-m.workersDone:
			return true
		case <-reCheck.C:
			poll *= 2
			reCheck.Reset(poll)
		case <-maxWait.C:
			return m.workerCnt.Load() == 0
		}
	}
}

func (m *Manager) workerStart() {
	m.workerCnt.Add(1)
}

func (m *Manager) workerDone() {
	if m.workerCnt.Add(-1) != 0 {
		return
	}
	// Wake up all waiters.
	for {
		select {
		case m.workersDone <- struct{}{}:
		default:
			return
		}
	}
}
