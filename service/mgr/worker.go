package mgr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"time"
)

// WorkerCtx provides workers with the necessary environment for flow control
// and logging.
type WorkerCtx struct {
	name string

	ctx       context.Context
	cancelCtx context.CancelFunc

	logger *slog.Logger
}

// Ctx returns the worker context.
// Is automatically canceled after the worker stops/returns, regardless of error.
func (w *WorkerCtx) Ctx() context.Context {
	return w.ctx
}

// Cancel cancels the worker context.
// Is automatically called after the worker stops/returns, regardless of error.
func (w *WorkerCtx) Cancel() {
	w.cancelCtx()
}

// Done returns the context Done channel.
func (w *WorkerCtx) Done() <-chan struct{} {
	return w.ctx.Done()
}

// IsDone checks whether the worker context is done.
func (w *WorkerCtx) IsDone() bool {
	return w.ctx.Err() != nil
}

// Logger returns the logger used by the worker context.
func (w *WorkerCtx) Logger() *slog.Logger {
	return w.logger
}

// Debug logs at LevelDebug with the worker context.
func (w *WorkerCtx) Debug(msg string, args ...any) {
	w.logger.Log(w.ctx, slog.LevelDebug, msg, args...)
}

// Info logs at LevelInfo with the worker context.
func (w *WorkerCtx) Info(msg string, args ...any) {
	w.logger.Log(w.ctx, slog.LevelInfo, msg, args...)
}

// Warn logs at LevelWarn with the worker context.
func (w *WorkerCtx) Warn(msg string, args ...any) {
	w.logger.Log(w.ctx, slog.LevelWarn, msg, args...)
}

// Error logs at LevelError with the worker context.
func (w *WorkerCtx) Error(msg string, args ...any) {
	w.logger.Log(w.ctx, slog.LevelError, msg, args...)
}

const (
	minRestartBackoff = 2 * time.Second
	maxRestartBackoff = time.Minute
)

// Go runs fn in a new goroutine as a worker of the manager.
// The worker gets its own context, which is canceled when fn returns, and a
// logger named after the worker. Panics are recovered. If fn fails, it is
// restarted with exponential backoff until the manager is done.
func (m *Manager) Go(name string, fn func(w *WorkerCtx) error) {
	m.workerStart()
	go m.manageWorker(m.newWorkerCtx(name), fn)
}

// Do runs fn as a worker in the current goroutine and returns its error.
// Panics are recovered and returned as error. Nothing is retried.
func (m *Manager) Do(name string, fn func(w *WorkerCtx) error) error {
	m.workerStart()
	defer m.workerDone()

	w := m.newWorkerCtx(name)
	panicLoc, err := m.runWorker(w, fn)
	if panicLoc != "" {
		w.Error("worker failed", "err", err, "file", panicLoc)
	}
	return err
}

func (m *Manager) newWorkerCtx(name string) *WorkerCtx {
	return &WorkerCtx{
		name:   name,
		logger: m.logger.With("worker", name),
	}
}

func (m *Manager) manageWorker(w *WorkerCtx, fn func(w *WorkerCtx) error) {
	defer m.workerDone()

	backoff := minRestartBackoff / 2
	for failCnt := 1; ; failCnt++ {
		panicLoc, err := m.runWorker(w, fn)
		if workerFinished(err) {
			return
		}

		if m.IsDone() {
			w.Error("worker failed", "err", err, "file", panicLoc)
			return
		}

		backoff = min(backoff*2, maxRestartBackoff)
		w.Error(
			"worker failed",
			"failCnt", failCnt,
			"backoff", backoff,
			"err", err,
			"file", panicLoc,
		)
		select {
		case <-time.After(backoff):
		case <-m.ctx.Done():
			return
		}
	}
}

// workerFinished reports whether a worker returning err is done for good.
func workerFinished(err error) bool {
	return err == nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (m *Manager) runWorker(w *WorkerCtx, fn func(w *WorkerCtx) error) (panicLoc string, err error) {
	// The worker context ends with the worker.
	w.ctx, w.cancelCtx = context.WithCancel(m.ctx)
	defer w.Cancel()

	defer func() {
		panicVal := recover()
		if panicVal == nil {
			return
		}
		err = fmt.Errorf("panic: %s", panicVal)

		stack := string(debug.Stack())
		fmt.Fprintf(os.Stderr, "===== PANIC =====\n%s\n\n%s=====  END  =====\n", panicVal, stack)
		panicLoc = panicLocation(stack)
	}()

	return "", fn(w)
}

// panicLocation returns the file and line of the first scanguard frame below
// the panic call in stack.
func panicLocation(stack string) string {
	lines := strings.Split(stack, "\n")
	afterPanic := false
	for i, line := range lines {
		switch {
		case !afterPanic:
			afterPanic = strings.Contains(line, "panic(")
		case strings.Contains(line, "scanguard") && i+1 < len(lines):
			loc, _, _ := strings.Cut(strings.TrimSpace(lines[i+1]), " ")
			return loc
		}
	}
	return ""
}
