package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// GlobalWriter is the global log writer.
var GlobalWriter *LogWriter

// LogWriter writes formatted log lines to the console or a log file.
type LogWriter struct {
	writeLock sync.Mutex
	isConsole bool
	useColor  bool
	out       io.WriteCloser
}

// NewConsoleWriter creates a new log writer that writes to stderr.
// Stdout is reserved for alert and heartbeat lines.
func NewConsoleWriter() *LogWriter {
	fd := os.Stderr.Fd()
	return &LogWriter{
		out:       os.Stderr,
		isConsole: true,
		useColor:  isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd),
	}
}

// NewFileWriter creates a new log writer that will write to a file. The file path will be <dir>/2006-01-02-15-04-05.log (with current date and time)
func NewFileWriter(dir string) (*LogWriter, error) {
	if err := os.MkdirAll(dir, 0o0755); err != nil {
		return nil, err
	}
	logFile := fmt.Sprintf("%s.log", time.Now().UTC().Format("2006-01-02-15-04-05"))
	file, err := os.Create(filepath.Join(dir, logFile))
	if err != nil {
		return nil, err
	}
	return &LogWriter{
		out:       file,
		isConsole: false,
	}, nil
}

// Write writes the buffer to the writer. Used by the slog handler.
func (l *LogWriter) Write(buf []byte) (int, error) {
	if l == nil {
		return 0, fmt.Errorf("log writer not initialized")
	}
	l.writeLock.Lock()
	defer l.writeLock.Unlock()

	return l.out.Write(buf)
}

// WriteMessage writes the message to the writer.
func (l *LogWriter) WriteMessage(msg Message, duplicates uint64) {
	if l == nil {
		return
	}
	line, ok := msg.(*logLine)
	if !ok {
		return
	}

	l.writeLock.Lock()
	defer l.writeLock.Unlock()

	fmt.Fprintln(l.out, formatLine(line, duplicates, l.useColor))
}

// WriteMarker writes a start or end marker line.
func (l *LogWriter) WriteMarker(marker, arrow string) {
	if l == nil {
		return
	}

	l.writeLock.Lock()
	defer l.writeLock.Unlock()

	if l.useColor {
		fmt.Fprintf(l.out, "%s%s%s %s%s %s%s\n", colorDim, time.Now().Format(timeFormat), colorEndDim, colorBlue, marker, arrow, endColor())
		return
	}
	fmt.Fprintf(l.out, "%s %s %s\n", time.Now().Format(timeFormat), marker, arrow)
}

// IsConsole returns true if writer was initialized for the console.
func (l *LogWriter) IsConsole() bool {
	return l != nil && l.isConsole
}

// UseColor returns whether the writer emits color codes.
func (l *LogWriter) UseColor() bool {
	return l != nil && l.useColor
}

// Close closes the writer.
func (l *LogWriter) Close() {
	if l != nil && !l.isConsole {
		_ = l.out.Close()
	}
}

// CleanOldLogs clean all logs in dir that are older then threshold.
func CleanOldLogs(dir string, threshold time.Duration) error {
	files, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read dir: %w", err)
	}

	for _, f := range files {
		if f.IsDir() {
			continue
		}
		logDateStr := strings.TrimSuffix(f.Name(), ".log")
		logDate, err := time.Parse("2006-01-02-15-04-05", logDateStr)
		if err != nil {
			continue
		}

		if logDate.Add(threshold).Before(time.Now()) {
			_ = os.Remove(filepath.Join(dir, f.Name()))
		}
	}
	return nil
}
