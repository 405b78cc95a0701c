package portscan

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	epoch   = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	scanner = netip.MustParseAddr("10.0.0.5")
	other   = netip.MustParseAddr("10.0.0.6")
)

func newTestTracker(t *testing.T, threshold int, window time.Duration) *Tracker {
	t.Helper()

	tr, err := NewTracker(threshold, window)
	require.NoError(t, err)
	return tr
}

func TestNewTrackerValidates(t *testing.T) {
	t.Parallel()

	_, err := NewTracker(0, time.Minute)
	require.ErrorIs(t, err, ErrInvalidThreshold)

	_, err = NewTracker(3, 0)
	require.ErrorIs(t, err, ErrInvalidWindow)

	_, err = NewTracker(3, -time.Second)
	require.ErrorIs(t, err, ErrInvalidWindow)

	tr, err := NewTracker(1, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, tr.Threshold())
	assert.Equal(t, time.Second, tr.Window())
}

func TestScanWithinWindow(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t, 3, 60*time.Second)

	assert.Equal(t, Verdict{}, tr.Observe(scanner, 22, epoch))
	assert.Equal(t, Verdict{}, tr.Observe(scanner, 80, epoch.Add(2*time.Second)))
	v := tr.Observe(scanner, 443, epoch.Add(5*time.Second))

	assert.Equal(t, Verdict{Detected: true, IP: scanner, PortCount: 3}, v)
	assert.Equal(t, 0, tr.Len(), "record should be reset after alert")
	assert.Nil(t, tr.Ports(scanner))
}

func TestSlowScanExpires(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t, 3, 60*time.Second)

	tr.Observe(scanner, 22, epoch)
	tr.Observe(scanner, 80, epoch)
	v := tr.Observe(scanner, 443, epoch.Add(61*time.Second))

	assert.False(t, v.Detected)
	assert.Equal(t, []uint16{443}, tr.Ports(scanner))
	start, ok := tr.WindowStart(scanner)
	require.True(t, ok)
	assert.Equal(t, epoch.Add(61*time.Second), start)
}

func TestRecordExactlyOneWindowOldIsKept(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t, 3, 60*time.Second)

	tr.Observe(scanner, 22, epoch)
	tr.Observe(scanner, 80, epoch.Add(30*time.Second))
	v := tr.Observe(scanner, 443, epoch.Add(60*time.Second))

	assert.True(t, v.Detected)
	assert.Equal(t, 3, v.PortCount)
}

func TestRepeatedPortsDoNotCount(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t, 3, time.Minute)

	for i := range 100 {
		v := tr.Observe(scanner, 22, epoch.Add(time.Duration(i)*time.Millisecond))
		assert.False(t, v.Detected)
	}
	tr.Observe(scanner, 80, epoch.Add(time.Second))
	assert.Equal(t, []uint16{22, 80}, tr.Ports(scanner))

	v := tr.Observe(scanner, 80, epoch.Add(2*time.Second))
	assert.False(t, v.Detected)
}

func TestAlertIsEdgeTriggered(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t, 3, time.Minute)

	var alerts []Verdict
	for i := range 9 {
		v := tr.Observe(scanner, uint16(1000+i), epoch.Add(time.Duration(i)*time.Second))
		if v.Detected {
			alerts = append(alerts, v)
		}
	}

	// One alert per batch of three new ports.
	require.Len(t, alerts, 3)
	for _, v := range alerts {
		assert.Equal(t, 3, v.PortCount)
	}

	// The port after an alert starts a fresh count.
	tr.Observe(scanner, 2000, epoch.Add(10*time.Second))
	assert.Equal(t, []uint16{2000}, tr.Ports(scanner))
	start, _ := tr.WindowStart(scanner)
	assert.Equal(t, epoch.Add(10*time.Second), start)
}

func TestThresholdOne(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t, 1, time.Minute)

	v := tr.Observe(scanner, 22, epoch)
	assert.Equal(t, Verdict{Detected: true, IP: scanner, PortCount: 1}, v)
	v = tr.Observe(scanner, 22, epoch)
	assert.True(t, v.Detected, "every packet alerts with threshold 1")
	assert.Equal(t, 0, tr.Len())
}

func TestSourcesAreIndependent(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t, 3, time.Minute)

	tr.Observe(scanner, 22, epoch)
	tr.Observe(other, 22, epoch)
	tr.Observe(scanner, 80, epoch)
	tr.Observe(other, 80, epoch)
	assert.Equal(t, 2, tr.Len())

	v := tr.Observe(scanner, 443, epoch)
	assert.Equal(t, scanner, v.IP)
	assert.Equal(t, 1, tr.Len())
	assert.Equal(t, []uint16{22, 80}, tr.Ports(other))
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t, 10, time.Minute)

	for i := range 5 {
		ip := netip.AddrFrom4([4]byte{10, 1, 0, byte(i)})
		tr.Observe(ip, 22, epoch.Add(time.Duration(i)*10*time.Second))
	}
	assert.Equal(t, 5, tr.Len())

	// Sources first seen at 0s and 10s are older than a minute at 75s.
	assert.Equal(t, 2, tr.Sweep(epoch.Add(75*time.Second)))
	assert.Equal(t, 3, tr.Len())
	_, ok := tr.WindowStart(netip.AddrFrom4([4]byte{10, 1, 0, 1}))
	assert.False(t, ok)
	_, ok = tr.WindowStart(netip.AddrFrom4([4]byte{10, 1, 0, 2}))
	assert.True(t, ok)

	assert.Equal(t, 0, tr.Sweep(epoch.Add(75*time.Second)))
	assert.Equal(t, 3, tr.Sweep(epoch.Add(time.Hour)))
	assert.Equal(t, 0, tr.Len())
}

func TestObserveSweepsOtherSources(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t, 10, time.Minute)

	tr.Observe(other, 22, epoch)
	tr.Observe(scanner, 22, epoch.Add(2*time.Minute))

	assert.Equal(t, 1, tr.Len())
	assert.Nil(t, tr.Ports(other))
}

func TestQueueStaysConsistent(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t, 4, 30*time.Second)

	// Interleave alerts, expiry and new records for many sources.
	now := epoch
	for i := range 2000 {
		ip := netip.AddrFrom4([4]byte{10, 2, byte(i % 7), byte(i % 13)})
		now = now.Add(time.Duration(i%5) * time.Second)
		tr.Observe(ip, uint16(i%11), now)

		require.Equal(t, len(tr.sources), tr.queue.Len())
		for idx, rec := range tr.queue {
			require.Equal(t, idx, rec.index)
			require.Same(t, tr.sources[rec.ip], rec)
			require.LessOrEqual(t, now.Sub(rec.windowStart), tr.window)
		}
	}
}

func TestVerdictString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "no alert", Verdict{}.String())
	assert.Equal(t,
		"scan detected from 10.0.0.5: 3 ports",
		Verdict{Detected: true, IP: scanner, PortCount: 3}.String(),
	)
}
