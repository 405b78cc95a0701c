package cmdbase

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/safing/scanguard/service"
)

// ShutdownTimeout is how long to wait for a clean shutdown before the
// goroutine summary is printed and the process exits.
var ShutdownTimeout = time.Minute

// Force exit after this many stop signals during shutdown.
const forceExitSignals = 5

var errShutdownIncomplete = errors.New("shutdown did not complete cleanly")

// ServiceInstance is a runnable scanguard instance.
type ServiceInstance interface {
	Start() error
	Shutdown() bool
	Stopped() <-chan struct{}
	Err() error
	ExitCode() int
}

// RunService starts the instance, waits until the sensor ends or a stop
// signal arrives, shuts the instance down and returns the exit code.
func RunService(instance ServiceInstance) int {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, stopSignals...)
	if dumpSignal != nil {
		signal.Notify(signalCh, dumpSignal)
	}
	defer signal.Stop(signalCh)

	// START

	if err := instance.Start(); err != nil {
		slog.Error("failed to start", "err", err)
		return 1
	}

	// Wait for the sensor to end or a stop signal.
wait:
	for {
		select {
		case <-instance.Stopped():
			if err := instance.Err(); err != nil {
				slog.Error("sensor failed", "err", err)
			}
			break wait
		case sig := <-signalCh:
			if sig == dumpSignal {
				printGoroutinesTo(os.Stderr, "PRINTING GOROUTINES ON REQUEST")
				continue wait
			}
			fmt.Printf(" <SIGNAL: %v>\n", sig) // CLI output.
			slog.Warn("received stop signal", "signal", sig)
			break wait
		}
	}

	// SHUTDOWN

	done := make(chan struct{})
	var group errgroup.Group
	group.Go(func() error {
		defer close(done)
		if !instance.Shutdown() {
			return errShutdownIncomplete
		}
		return nil
	})
	group.Go(func() error {
		return watchShutdown(done, signalCh)
	})
	if err := group.Wait(); err != nil {
		slog.Error("shutdown failed", "err", err)
		return 1
	}

	return instance.ExitCode()
}

// watchShutdown catches signals during shutdown and forces an exit after
// repeated stop signals or when the shutdown takes too long.
func watchShutdown(done <-chan struct{}, signalCh <-chan os.Signal) error {
	timeout := time.NewTimer(ShutdownTimeout)
	defer timeout.Stop()

	forceCnt := forceExitSignals
	for {
		select {
		case <-done:
			return nil
		case <-timeout.C:
			printGoroutinesTo(os.Stderr, "PRINTING GOROUTINES - TAKING TOO LONG FOR SHUTDOWN")
			os.Exit(1)
		case sig := <-signalCh:
			if sig == dumpSignal {
				continue
			}
			forceCnt--
			if forceCnt > 0 {
				fmt.Printf(" <SIGNAL: %s> again, but already shutting down - %d more to force\n", sig, forceCnt)
			} else {
				printGoroutinesTo(os.Stderr, "PRINTING GOROUTINES ON FORCED EXIT")
				os.Exit(1)
			}
		}
	}
}

// printGoroutinesTo writes a goroutine summary. It must not go through the
// logger, which may not be running.
func printGoroutinesTo(writer io.Writer, msg string) {
	summary, err := service.GetGoroutineSummary()
	if err == nil {
		_, err = fmt.Fprintf(writer, "===== %s =====\n%s", msg, summary.Format())
	}
	if err != nil {
		slog.Error("failed to write goroutine summary", "err", err)
	}
}
