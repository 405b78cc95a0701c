package log

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	err := Start("trace", true, "")
	if err != nil {
		panic(fmt.Sprintf("start failed: %s", err))
	}
}

func TestLogging(t *testing.T) {
	t.Parallel()

	// skip
	if testing.Short() {
		t.Skip()
	}

	// set levels (static random)
	SetLogLevel(WarningLevel)
	SetLogLevel(InfoLevel)
	SetLogLevel(ErrorLevel)
	SetLogLevel(DebugLevel)
	SetLogLevel(CriticalLevel)
	SetLogLevel(TraceLevel)

	// log
	Trace("Trace")
	Debug("Debug")
	Info("Info")
	Warning("Warning")
	Error("Error")
	Critical("Critical")

	// logf
	Tracef("Trace %s", "f")
	Debugf("Debug %s", "f")
	Infof("Info %s", "f")
	Warningf("Warning %s", "f")
	Errorf("Error %s", "f")
	Criticalf("Critical %s", "f")

	// play with levels
	SetLogLevel(CriticalLevel)
	Warning("Warning")
	SetLogLevel(TraceLevel)

	// log invalid level
	log(0xFF, "msg")

	// wait logs to be written
	time.Sleep(1 * time.Millisecond)
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, TraceLevel, ParseLevel("trace"))
	assert.Equal(t, WarningLevel, ParseLevel("WARNING"))
	assert.Equal(t, WarningLevel, ParseLevel("warn"))
	assert.Equal(t, CriticalLevel, ParseLevel("critical"))
	assert.Equal(t, Severity(0), ParseLevel("loud"))

	for _, s := range []Severity{TraceLevel, DebugLevel, InfoLevel, WarningLevel, ErrorLevel, CriticalLevel} {
		assert.Equal(t, s, ParseLevel(s.Name()))
	}
}

func TestFormatLine(t *testing.T) {
	t.Parallel()

	line := &logLine{
		msg:       "sensor: capture started",
		level:     InfoLevel,
		timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	formatted := formatLine(line, 2, false)
	assert.Contains(t, formatted, "240102 03:04:05.000")
	assert.Contains(t, formatted, "INFO")
	assert.Contains(t, formatted, "[3x]")
	assert.Contains(t, formatted, "sensor: capture started")
}

func TestCleanOldLogs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	old := filepath.Join(dir, time.Now().Add(-48*time.Hour).UTC().Format("2006-01-02-15-04-05")+".log")
	fresh := filepath.Join(dir, time.Now().UTC().Format("2006-01-02-15-04-05")+".log")
	other := filepath.Join(dir, "notes.txt")
	for _, path := range []string{old, fresh, other} {
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o0600))
	}

	require.NoError(t, CleanOldLogs(dir, 24*time.Hour))

	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.FileExists(t, other)
}

type nopCloser struct {
	*bytes.Buffer
}

func (nopCloser) Close() error { return nil }

func TestCollapser(t *testing.T) {
	t.Parallel()

	buf := new(bytes.Buffer)
	c := &collapser{w: &LogWriter{out: nopCloser{buf}}}

	line := func(msg string) *logLine {
		return &logLine{msg: msg, level: WarningLevel, timestamp: time.Now()}
	}
	c.add(line("sink failed"))
	c.add(line("sink failed"))
	c.add(line("sink failed"))
	c.add(line("sink recovered"))
	c.flush()
	c.flush()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "[3x]")
	assert.Contains(t, lines[0], "sink failed")
	assert.NotContains(t, lines[1], "x]")
	assert.Contains(t, lines[1], "sink recovered")
}

func TestTotalLogLines(t *testing.T) {
	t.Parallel()

	before := TotalLogLines(ErrorLevel)
	Errorf("counted %d", 1)
	assert.GreaterOrEqual(t, TotalLogLines(ErrorLevel), before+1)
	assert.Zero(t, TotalLogLines(Severity(0xFF)))
}
