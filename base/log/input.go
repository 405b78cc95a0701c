package log

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"
)

// lineCounts counts emitted lines per severity, whether they pass the level
// filter or not.
var lineCounts [CriticalLevel + 1]atomic.Uint64

// TotalLogLines returns the number of lines logged with severity since the
// start of the program.
func TotalLogLines(severity Severity) uint64 {
	if severity > CriticalLevel {
		return 0
	}
	return lineCounts[severity].Load()
}

func enabled(level Severity) bool {
	return uint32(level) >= atomic.LoadUint32(logLevel)
}

func count(level Severity) {
	if level <= CriticalLevel {
		lineCounts[level].Add(1)
	}
}

// log queues msg for the writer. The caller location is taken two frames up,
// so it must be called directly by the exported log functions.
func log(level Severity, msg string) {
	if !started.IsSet() {
		// Hold early lines back until the writer runs.
		go func() {
			<-startedSignal
			log(level, msg)
		}()
		return
	}
	if !enabled(level) {
		return
	}

	ll := &logLine{
		msg:       msg,
		level:     level,
		timestamp: time.Now(),
	}
	if _, file, line, ok := runtime.Caller(2); ok && len(file) > 3 {
		ll.file = file[:len(file)-3] // Strip ".go".
		ll.line = line
	}

	enqueue(ll)

	// Wake the writer, unless it already was.
	if logsWaitingFlag.SetToIf(false, true) {
		select {
		case logsWaiting <- struct{}{}:
		default:
		}
	}
}

// enqueue puts ll into the buffer and makes the writer empty a full buffer.
func enqueue(ll *logLine) {
	for {
		select {
		case logBuffer <- ll:
			return
		case forceEmptyingOfBuffer <- struct{}{}:
		}
	}
}

// Trace logs tiny steps, such as skipped frames.
func Trace(msg string) {
	if enabled(TraceLevel) {
		log(TraceLevel, msg)
	}
}

// Tracef logs tiny steps, such as skipped frames.
func Tracef(format string, things ...interface{}) {
	if enabled(TraceLevel) {
		log(TraceLevel, fmt.Sprintf(format, things...))
	}
}

// Debug logs details that help to follow what the sensor does.
func Debug(msg string) {
	if enabled(DebugLevel) {
		log(DebugLevel, msg)
	}
}

// Debugf logs details that help to follow what the sensor does.
func Debugf(format string, things ...interface{}) {
	if enabled(DebugLevel) {
		log(DebugLevel, fmt.Sprintf(format, things...))
	}
}

// Info logs mildly significant events.
func Info(msg string) {
	if enabled(InfoLevel) {
		log(InfoLevel, msg)
	}
}

// Infof logs mildly significant events.
func Infof(format string, things ...interface{}) {
	if enabled(InfoLevel) {
		log(InfoLevel, fmt.Sprintf(format, things...))
	}
}

// Warning logs events that are suspicious, but nothing broke.
func Warning(msg string) {
	count(WarningLevel)
	if enabled(WarningLevel) {
		log(WarningLevel, msg)
	}
}

// Warningf logs events that are suspicious, but nothing broke.
func Warningf(format string, things ...interface{}) {
	count(WarningLevel)
	if enabled(WarningLevel) {
		log(WarningLevel, fmt.Sprintf(format, things...))
	}
}

// Error logs failures that impair functionality, such as a failing alert
// sink. The sensor keeps running.
func Error(msg string) {
	count(ErrorLevel)
	if enabled(ErrorLevel) {
		log(ErrorLevel, msg)
	}
}

// Errorf logs failures that impair functionality, such as a failing alert
// sink. The sensor keeps running.
func Errorf(format string, things ...interface{}) {
	count(ErrorLevel)
	if enabled(ErrorLevel) {
		log(ErrorLevel, fmt.Sprintf(format, things...))
	}
}

// Critical logs failures that stop the sensor, such as a vanished capture
// device.
func Critical(msg string) {
	count(CriticalLevel)
	if enabled(CriticalLevel) {
		log(CriticalLevel, msg)
	}
}

// Criticalf logs failures that stop the sensor, such as a vanished capture
// device.
func Criticalf(format string, things ...interface{}) {
	count(CriticalLevel)
	if enabled(CriticalLevel) {
		log(CriticalLevel, fmt.Sprintf(format, things...))
	}
}
