package log

import (
	"fmt"
	"os"
	"runtime/debug"
	"time"
)

// collapser merges runs of equal lines into one line with a repeat count.
type collapser struct {
	w          *LogWriter
	current    *logLine
	duplicates uint64
}

func (c *collapser) add(line *logLine) {
	if c.current != nil && line.Equal(c.current) {
		c.duplicates++
		return
	}
	c.flush()
	c.current = line
}

func (c *collapser) flush() {
	if c.current == nil {
		return
	}
	c.w.WriteMessage(c.current, c.duplicates)
	c.current = nil
	c.duplicates = 0
}

func startWriter() {
	GlobalWriter.WriteMarker("BOF", rightArrow)

	shutdownWaitGroup.Add(1)
	go func() {
		defer shutdownWaitGroup.Done()

		// A panicking writer is restarted, a clean return means shutdown.
		for {
			err := runWriter()
			if err == nil {
				return
			}
			Errorf("log: writer failed: %s", err)
		}
	}()
}

func runWriter() (err error) {
	defer func() {
		if panicVal := recover(); panicVal != nil {
			err = fmt.Errorf("%s", panicVal)
			fmt.Fprintf(os.Stderr, "===== log writer panic =====\n%s\n\n%s\n", err, debug.Stack())
		}
	}()

	lines := &collapser{w: GlobalWriter}
	for {
		select {
		case <-logsWaiting:
			logsWaitingFlag.UnSet()
		case <-forceEmptyingOfBuffer:
		case <-shutdownSignal:
			drainBuffer(lines)
			return nil
		}

		// Write everything that is buffered right now.
	buffered:
		for {
			select {
			case line := <-logBuffer:
				lines.add(line)
			default:
				break buffered
			}
		}
		lines.flush()

		// Give lines that arrive in quick succession a chance to be batched.
		select {
		case <-time.After(10 * time.Millisecond):
		case <-shutdownSignal:
			drainBuffer(lines)
			return nil
		}
	}
}

// drainBuffer writes the remaining lines and the end marker.
func drainBuffer(lines *collapser) {
	for {
		select {
		case line := <-logBuffer:
			lines.add(line)
		case <-time.After(10 * time.Millisecond):
			lines.flush()
			lines.w.WriteMarker("EOF", leftArrow)
			return
		}
	}
}
