package cmdbase

import (
	"os"
)

var (
	stopSignals = []os.Signal{os.Interrupt}

	dumpSignal os.Signal
)
