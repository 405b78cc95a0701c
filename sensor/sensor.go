// Package sensor runs the detection loop: it reads frames, decodes them,
// tracks the decoded segments and raises alerts.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tevino/abool"

	"github.com/safing/scanguard/alerting"
	"github.com/safing/scanguard/base/log"
	"github.com/safing/scanguard/base/metrics"
	"github.com/safing/scanguard/detection/portscan"
	"github.com/safing/scanguard/network/capture"
	"github.com/safing/scanguard/network/packet"
	"github.com/safing/scanguard/service/mgr"
)

// DefaultHeartbeat is the default interval of the liveness line.
const DefaultHeartbeat = 30 * time.Second

// FrameSource provides captured frames.
// NextFrame returns capture.ErrTimeout if no frame arrived within the read
// timeout and io.EOF if the source is exhausted. Any other error is fatal.
type FrameSource interface {
	NextFrame() (capture.Frame, error)
}

// Emitter receives alerts and status lines.
type Emitter interface {
	Emit(alert alerting.Alert)
	Print(line string)
}

// Options configures a Sensor.
type Options struct {
	Threshold int
	Window    time.Duration
	Heartbeat time.Duration

	// SourceName is shown in the startup line, eg. the interface name.
	SourceName string

	// UseCaptureTime feeds the capture timestamps of frames to the tracker
	// instead of the current time. Used for replaying capture files.
	UseCaptureTime bool

	// Clock replaces time.Now, for heartbeats and tracking.
	Clock func() time.Time
}

// Stats holds the counters of a sensor run.
type Stats struct {
	Frames       uint64
	Segments     uint64
	Dropped      uint64
	ReadTimeouts uint64
	Alerts       uint64
}

// Sensor reads frames from a source and detects port scans.
// The tracker is owned by the loop goroutine.
type Sensor struct {
	source    FrameSource
	emitter   Emitter
	tracker   *portscan.Tracker
	heartbeat time.Duration
	opts      Options
	now       func() time.Time
	logger    *slog.Logger

	running *abool.AtomicBool

	frames       atomic.Uint64
	segments     atomic.Uint64
	dropped      atomic.Uint64
	readTimeouts atomic.Uint64
	alerts       atomic.Uint64

	// done is closed when the loop started by Start ended, err holds its result.
	done     chan struct{}
	doneOnce sync.Once
	err      error
}

// New returns a new sensor.
func New(source FrameSource, emitter Emitter, opts Options) (*Sensor, error) {
	if source == nil {
		return nil, errors.New("no frame source")
	}
	if emitter == nil {
		return nil, errors.New("no emitter")
	}

	tracker, err := portscan.NewTracker(opts.Threshold, opts.Window)
	if err != nil {
		return nil, err
	}
	if err := registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	s := &Sensor{
		source:    source,
		emitter:   emitter,
		tracker:   tracker,
		heartbeat: opts.Heartbeat,
		opts:      opts,
		now:       opts.Clock,
		logger:    slog.Default(),
		running:   abool.New(),
		done:      make(chan struct{}),
	}
	if s.heartbeat <= 0 {
		s.heartbeat = DefaultHeartbeat
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Start starts the loop in a worker.
func (s *Sensor) Start(m *mgr.Manager) error {
	m.Go("loop", func(w *mgr.WorkerCtx) error {
		s.logger = w.Logger()
		s.finish(s.Run(w.Ctx()))
		// The result is reported through Done and Err, never restart.
		return nil
	})
	return nil
}

// Stop implements mgr.Module. The loop ends with the manager context.
func (s *Sensor) Stop(m *mgr.Manager) error {
	stats := s.Stats()
	m.Info(
		"sensor stopped",
		"frames", stats.Frames,
		"segments", stats.Segments,
		"dropped", stats.Dropped,
		"alerts", stats.Alerts,
	)
	return nil
}

func (s *Sensor) finish(err error) {
	s.doneOnce.Do(func() {
		s.err = err
		close(s.done)
	})
}

// Done is closed when the loop started by Start ended.
func (s *Sensor) Done() <-chan struct{} {
	return s.done
}

// Err returns the fatal error that ended the loop, if any.
// It must only be called after Done is closed.
func (s *Sensor) Err() error {
	return s.err
}

// IsRunning returns whether the loop is running.
func (s *Sensor) IsRunning() bool {
	return s.running.IsSet()
}

// Stats returns the counters of the sensor.
func (s *Sensor) Stats() Stats {
	return Stats{
		Frames:       s.frames.Load(),
		Segments:     s.segments.Load(),
		Dropped:      s.dropped.Load(),
		ReadTimeouts: s.readTimeouts.Load(),
		Alerts:       s.alerts.Load(),
	}
}

// Run runs the loop until ctx is canceled, the source is exhausted or the
// source fails. Only a failing source returns an error.
func (s *Sensor) Run(ctx context.Context) error {
	if !s.running.SetToIf(false, true) {
		return errors.New("sensor already running")
	}
	defer s.running.UnSet()

	lastHeartbeat := s.now()
	s.emitter.Print(alerting.Stamp(lastHeartbeat, alerting.MarkerOK, fmt.Sprintf(
		"Starting scanguard on interface '%s' with threshold=%d ports, window=%ds",
		s.opts.SourceName,
		s.tracker.Threshold(),
		int64(s.tracker.Window()/time.Second),
	)))

	// Tracker time of the last frame, used for sweeping in capture time mode.
	var lastTrackTime time.Time

	for {
		if ctx.Err() != nil {
			return nil
		}

		frame, err := s.source.NextFrame()
		switch {
		case err == nil:
			lastTrackTime = s.trackTime(frame)
			s.handleFrame(frame, lastTrackTime)

		case errors.Is(err, capture.ErrTimeout):
			s.readTimeouts.Add(1)
			readTimeoutsTotal.Inc()
			// Release memory of idle sources while there is no traffic.
			if !s.opts.UseCaptureTime {
				s.tracker.Sweep(s.now())
			} else if !lastTrackTime.IsZero() {
				s.tracker.Sweep(lastTrackTime)
			}

		case errors.Is(err, io.EOF):
			s.logger.Info("frame source exhausted", "frames", s.frames.Load())
			trackedSources.Store(int64(s.tracker.Len()))
			return nil

		default:
			return fmt.Errorf("read frame: %w", err)
		}
		trackedSources.Store(int64(s.tracker.Len()))

		if now := s.now(); now.Sub(lastHeartbeat) >= s.heartbeat {
			s.emitHeartbeat(now)
			lastHeartbeat = now
		}
	}
}

func (s *Sensor) trackTime(frame capture.Frame) time.Time {
	if s.opts.UseCaptureTime && !frame.Timestamp.IsZero() {
		return frame.Timestamp
	}
	return s.now()
}

func (s *Sensor) handleFrame(frame capture.Frame, now time.Time) {
	s.frames.Add(1)
	framesTotal.Inc()

	seg, outcome := packet.Decode(frame.LinkType, frame.Data)
	if outcome != packet.Decoded {
		s.dropped.Add(1)
		if c, ok := droppedByOutcome[outcome]; ok {
			c.Inc()
		}
		log.Tracef("sensor: dropped frame of %d bytes: %s", len(frame.Data), outcome)
		return
	}
	s.segments.Add(1)
	segmentsTotal.Inc()

	verdict := s.tracker.Observe(seg.Src, seg.DstPort, now)
	if !verdict.Detected {
		return
	}

	s.alerts.Add(1)
	s.emitter.Emit(alerting.Alert{
		Time:      now,
		Source:    verdict.IP,
		PortCount: verdict.PortCount,
		Window:    s.tracker.Window(),
	})
}

func (s *Sensor) emitHeartbeat(now time.Time) {
	s.emitter.Print(alerting.Stamp(now, alerting.MarkerOK, "IDS still running..."))

	if !s.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	proc := metrics.GetProcessStats()
	attrs := []any{
		"frames", s.frames.Load(),
		"segments", s.segments.Load(),
		"alerts", s.alerts.Load(),
		"tracked", s.tracker.Len(),
		"rss", proc.RSS,
		"cpu", proc.CPUPercent,
	}
	if cs, ok := s.source.(captureStatser); ok {
		if stats, err := cs.Stats(); err == nil {
			attrs = append(attrs,
				"pcapReceived", stats.Received,
				"pcapDropped", stats.Dropped,
				"ifDropped", stats.InterfaceDropped,
			)
		}
	}
	s.logger.Debug("heartbeat", attrs...)
}

// captureStatser is implemented by sources that know how many frames the
// kernel dropped.
type captureStatser interface {
	Stats() (capture.Stats, error)
}
