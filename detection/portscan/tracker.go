package portscan

import (
	"container/heap"
	"errors"
	"fmt"
	"maps"
	"net/netip"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Errors returned by NewTracker.
var (
	ErrInvalidThreshold = errors.New("threshold must be at least 1")
	ErrInvalidWindow    = errors.New("window must be positive")
)

// Verdict is the result of observing a segment.
// The zero value means no alert.
type Verdict struct {
	Detected  bool
	IP        netip.Addr
	PortCount int
}

func (v Verdict) String() string {
	if !v.Detected {
		return "no alert"
	}
	return fmt.Sprintf("scan detected from %s: %d ports", v.IP, v.PortCount)
}

// activity holds the distinct destination ports a source contacted since
// windowStart.
type activity struct {
	ip          netip.Addr
	ports       map[uint16]struct{}
	windowStart time.Time

	// index in the expiry queue.
	index int
}

// Tracker counts distinct destination ports per source IP within a window
// anchored at the first packet of the source, and reports a scan when the
// count reaches the threshold. The record is dropped on alert, so a source
// scanning on produces one alert per threshold new ports.
//
// Tracker is not safe for concurrent use; it must have a single owner.
type Tracker struct {
	window    time.Duration
	threshold int

	sources map[netip.Addr]*activity
	queue   expiryQueue
}

// NewTracker returns a new tracker.
func NewTracker(threshold int, window time.Duration) (*Tracker, error) {
	if threshold < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidThreshold, threshold)
	}
	if window <= 0 {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidWindow, window)
	}

	return &Tracker{
		window:    window,
		threshold: threshold,
		sources:   make(map[netip.Addr]*activity),
	}, nil
}

// Window returns the configured window.
func (t *Tracker) Window() time.Duration {
	return t.window
}

// Threshold returns the configured threshold.
func (t *Tracker) Threshold() int {
	return t.threshold
}

// Observe records that ip contacted port at now.
// Records older than the window are expired before the port is counted.
func (t *Tracker) Observe(ip netip.Addr, port uint16, now time.Time) Verdict {
	t.Sweep(now)

	rec, ok := t.sources[ip]
	if !ok {
		rec = &activity{
			ip:          ip,
			ports:       make(map[uint16]struct{}, 1),
			windowStart: now,
		}
		t.sources[ip] = rec
		heap.Push(&t.queue, rec)
	}
	rec.ports[port] = struct{}{}

	if len(rec.ports) < t.threshold {
		return Verdict{}
	}

	// Reset, so the next packet from this source starts a new window.
	t.remove(rec)
	return Verdict{
		Detected:  true,
		IP:        ip,
		PortCount: len(rec.ports),
	}
}

// Sweep removes all records whose age exceeds the window and returns how many
// were removed. A record exactly one window old is kept.
func (t *Tracker) Sweep(now time.Time) (removed int) {
	for len(t.queue) > 0 {
		oldest := t.queue[0]
		if now.Sub(oldest.windowStart) <= t.window {
			break
		}
		t.remove(oldest)
		removed++
	}
	return removed
}

func (t *Tracker) remove(rec *activity) {
	heap.Remove(&t.queue, rec.index)
	delete(t.sources, rec.ip)
}

// Len returns the number of tracked sources.
func (t *Tracker) Len() int {
	return len(t.sources)
}

// Ports returns the sorted ports counted for ip, or nil if ip is not tracked.
func (t *Tracker) Ports(ip netip.Addr) []uint16 {
	rec, ok := t.sources[ip]
	if !ok {
		return nil
	}
	return slices.Sorted(maps.Keys(rec.ports))
}

// WindowStart returns when the current window of ip started.
func (t *Tracker) WindowStart(ip netip.Addr) (start time.Time, ok bool) {
	rec, ok := t.sources[ip]
	if !ok {
		return time.Time{}, false
	}
	return rec.windowStart, true
}

func (a *activity) String() string {
	ports := make([]string, 0, len(a.ports))
	for _, p := range slices.Sorted(maps.Keys(a.ports)) {
		ports = append(ports, strconv.Itoa(int(p)))
	}
	return fmt.Sprintf(
		"%s: windowStart: %s, ports: [%s]",
		a.ip, a.windowStart.Format(time.RFC3339), strings.Join(ports, ", "),
	)
}
