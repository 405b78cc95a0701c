//go:build !windows

package cmdbase

import (
	"os"
	"syscall"
)

var (
	stopSignals = []os.Signal{
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	}

	// dumpSignal prints the goroutine summary without stopping.
	dumpSignal os.Signal = syscall.SIGUSR1
)
