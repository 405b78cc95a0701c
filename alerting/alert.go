package alerting

import (
	"fmt"
	"net/netip"
	"time"
)

// Line markers.
const (
	MarkerWarning = "⚠️ "
	MarkerOK      = "✅"
	MarkerFailed  = "❌"
)

const timeFormat = "2006-01-02 15:04:05"

// Alert describes a detected port scan.
type Alert struct {
	Time      time.Time
	Source    netip.Addr
	PortCount int
	Window    time.Duration
}

// Line returns the alert as a single human readable line without newline.
func (a Alert) Line() string {
	return Stamp(a.Time, MarkerWarning, a.Message())
}

// Message returns the alert text without time stamp and marker.
func (a Alert) Message() string {
	return fmt.Sprintf(
		"Potential port scan from %s: %d ports in %ds",
		a.Source, a.PortCount, int64(a.Window/time.Second),
	)
}

// Stamp formats a status line: the UTC time in brackets, the marker and the
// message.
func Stamp(t time.Time, marker, msg string) string {
	return fmt.Sprintf("[%s] %s %s", t.UTC().Format(timeFormat), marker, msg)
}
