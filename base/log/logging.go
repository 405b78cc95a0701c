package log

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tevino/abool"
)

// Lines are handed to a buffered channel and written by a single writer
// goroutine, which collapses consecutive duplicates. A full buffer makes the
// logging goroutine wait for the writer. Alerts and heartbeats are product
// output and are written to stdout by their owners, never through here.

// Severity describes a log level.
type Severity uint32

// Log Levels.
const (
	TraceLevel    Severity = 1
	DebugLevel    Severity = 2
	InfoLevel     Severity = 3
	WarningLevel  Severity = 4
	ErrorLevel    Severity = 5
	CriticalLevel Severity = 6
)

var severities = [...]struct {
	name  string
	slog  slog.Level
	alias string
}{
	TraceLevel:    {name: "trace", slog: slog.LevelDebug - 4},
	DebugLevel:    {name: "debug", slog: slog.LevelDebug},
	InfoLevel:     {name: "info", slog: slog.LevelInfo},
	WarningLevel:  {name: "warning", slog: slog.LevelWarn, alias: "warn"},
	ErrorLevel:    {name: "error", slog: slog.LevelError},
	CriticalLevel: {name: "critical", slog: slog.LevelError + 4},
}

func (s Severity) valid() bool {
	return s >= TraceLevel && s <= CriticalLevel
}

// Name returns the name of the log level.
func (s Severity) Name() string {
	if !s.valid() {
		return "none"
	}
	return severities[s].name
}

func (s Severity) toSLogLevel() slog.Level {
	if !s.valid() {
		return slog.LevelWarn
	}
	return severities[s].slog
}

// ParseLevel returns the severity of a log level name, or 0 if the name is
// unknown.
func ParseLevel(level string) Severity {
	level = strings.ToLower(level)
	for s := TraceLevel; s <= CriticalLevel; s++ {
		if level == severities[s].name || (level != "" && level == severities[s].alias) {
			return s
		}
	}
	return 0
}

// Message describes a log level message and is implemented
// by logLine.
type Message interface {
	Text() string
	Severity() Severity
	Time() time.Time
	File() string
	LineNumber() int
}

type logLine struct {
	msg       string
	level     Severity
	timestamp time.Time
	file      string
	line      int
}

func (ll *logLine) Text() string { return ll.msg }
func (ll *logLine) Severity() Severity { return ll.level }
func (ll *logLine) Time() time.Time { return ll.timestamp }
func (ll *logLine) File() string { return ll.file }
func (ll *logLine) LineNumber() int { return ll.line }

// Equal reports whether both lines have the same content and origin.
// The timestamp is ignored.
func (ll *logLine) Equal(ol *logLine) bool {
	return ll.msg == ol.msg &&
		ll.file == ol.file &&
		ll.line == ol.line &&
		ll.level == ol.level
}

var (
	logBuffer             chan *logLine
	forceEmptyingOfBuffer = make(chan struct{})

	logLevelInt = uint32(InfoLevel)
	logLevel    = &logLevelInt

	logsWaiting     = make(chan struct{}, 1)
	logsWaitingFlag = abool.NewBool(false)

	shutdownFlag      = abool.NewBool(false)
	shutdownSignal    = make(chan struct{})
	shutdownWaitGroup sync.WaitGroup

	initializing  = abool.NewBool(false)
	started       = abool.NewBool(false)
	startedSignal = make(chan struct{})
)

// GetLogLevel returns the current log level.
func GetLogLevel() Severity {
	return Severity(atomic.LoadUint32(logLevel))
}

// SetLogLevel sets a new log level.
func SetLogLevel(level Severity) {
	atomic.StoreUint32(logLevel, uint32(level))

	// Keep slog in sync, so that manager and worker logs follow the same level.
	setupSLog(level)
}

// Start starts the logging system. Must be called in order to see logs.
// If logToStdout is set, logs go to the console (stderr), otherwise to a new
// file in logDir.
func Start(level string, logToStdout bool, logDir string) (err error) {
	if !initializing.SetToIf(false, true) {
		return nil
	}

	// Parse log level argument.
	initialLogLevel := InfoLevel
	if level != "" {
		initialLogLevel = ParseLevel(level)
		if initialLogLevel == 0 {
			fmt.Fprintf(os.Stderr, "log warning: invalid log level %q, falling back to level info\n", level)
			initialLogLevel = InfoLevel
		}
	}

	// Setup writer.
	if logToStdout || logDir == "" {
		GlobalWriter = NewConsoleWriter()
	} else {
		GlobalWriter, err = NewFileWriter(logDir)
		if err != nil {
			return fmt.Errorf("failed to initialize log file: %w", err)
		}
	}

	// Init logging systems.
	SetLogLevel(initialLogLevel)
	logBuffer = make(chan *logLine, 1024)
	startWriter()

	started.Set()
	close(startedSignal)

	// Delete all logs older than one month.
	if !GlobalWriter.IsConsole() {
		if err := CleanOldLogs(logDir, 30*24*time.Hour); err != nil {
			Errorf("log: failed to clean old log files: %s", err)
		}
	}

	return nil
}

// Shutdown writes remaining log lines and then stops the log system.
func Shutdown() {
	if !started.IsSet() {
		return
	}
	if shutdownFlag.SetToIf(false, true) {
		close(shutdownSignal)
	}
	shutdownWaitGroup.Wait()
	GlobalWriter.Close()
}
