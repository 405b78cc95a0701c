package service

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/safing/scanguard/alerting"
	"github.com/safing/scanguard/alerting/journal"
	"github.com/safing/scanguard/base/metrics"
	"github.com/safing/scanguard/sensor"
	"github.com/safing/scanguard/service/configure"
	"github.com/safing/scanguard/service/mgr"
)

// Source is a frame source that can be closed.
type Source interface {
	sensor.FrameSource
	Name() string
	io.Closer
}

// Instance is an instance of the scanguard sensor with all its modules.
type Instance struct {
	*mgr.Group

	cfg    *configure.Config
	source Source

	metrics *metrics.Metrics
	emitter *alerting.Emitter
	journal *journal.Journal
	sensor  *sensor.Sensor
}

// Options holds instance settings that do not come from the config.
type Options struct {
	// Console receives alert and heartbeat lines. Defaults to stdout.
	Console io.Writer

	// Replay makes the sensor use the capture time of frames.
	Replay bool
}

// New returns a new scanguard instance reading from source.
// The instance takes ownership of source and closes it on Shutdown.
func New(cfg *configure.Config, source Source, opts Options) (*Instance, error) {
	if source == nil {
		return nil, errors.New("no frame source")
	}

	instance := &Instance{
		cfg:    cfg,
		source: source,
	}

	if cfg.MetricsListen != "" || cfg.MetricsPush != "" {
		instance.metrics = metrics.New(cfg.MetricsListen, cfg.MetricsPush)
	}

	sinks, err := instance.buildSinks()
	if err != nil {
		return nil, err
	}
	instance.emitter = alerting.NewEmitter(opts.Console, sinks...)
	instance.emitter.SetQueueSize(cfg.QueueSize)

	instance.sensor, err = sensor.New(source, instance.emitter, sensor.Options{
		Threshold:      cfg.Threshold,
		Window:         cfg.Window.Std(),
		Heartbeat:      cfg.Heartbeat.Std(),
		SourceName:     source.Name(),
		UseCaptureTime: opts.Replay,
	})
	if err != nil {
		if instance.journal != nil {
			_ = instance.journal.Close()
		}
		return nil, fmt.Errorf("create sensor: %w", err)
	}

	// Add all modules to instance group.
	// The sensor comes last, so that it stops first.
	instance.Group = mgr.NewGroup(
		instance.metrics,
		instance.emitter,
		instance.sensor,
	)

	return instance, nil
}

func (i *Instance) buildSinks() ([]alerting.Sink, error) {
	var sinks []alerting.Sink

	if i.cfg.LogFile != "" {
		sinks = append(sinks, alerting.NewFileSink(i.cfg.LogFile))
	}

	var notifier *alerting.DBusNotifier
	if i.cfg.Notify || (i.cfg.Audio && i.cfg.AudioCommand == "") {
		notifier = alerting.NewDBusNotifier()
	}
	if i.cfg.Notify {
		sinks = append(sinks, alerting.NewNotifySink(notifier))
	}

	if i.cfg.Audio {
		var player alerting.Player
		if i.cfg.AudioCommand != "" {
			cp, err := alerting.NewCommandPlayer(i.cfg.AudioCommand, i.cfg.AudioFile)
			if err != nil {
				return nil, err
			}
			player = cp
		} else {
			player = &alerting.NotificationPlayer{
				Notifier: notifier,
				File:     i.cfg.AudioFile,
			}
		}
		sinks = append(sinks, alerting.NewAudioSink(player, i.cfg.AudioCooldown.Std()))
	}

	if i.cfg.Journal != "" {
		j, err := journal.Open(i.cfg.Journal)
		if err != nil {
			return nil, fmt.Errorf("open alert journal: %w", err)
		}
		i.journal = j
		sinks = append(sinks, j)
	}

	return sinks, nil
}

// Shutdown stops all modules and closes the frame source.
// It returns false if any module failed to stop.
func (i *Instance) Shutdown() (ok bool) {
	ok = i.Stop()
	if err := i.source.Close(); err != nil {
		slog.Error("failed to close frame source", "source", i.source.Name(), "err", err)
		ok = false
	}
	return ok
}

// Stopped is closed when the sensor loop ended on its own, because the
// source was exhausted or failed.
func (i *Instance) Stopped() <-chan struct{} {
	return i.sensor.Done()
}

// ExitCode returns the exit code for the process: 1 if the sensor failed,
// 0 otherwise.
func (i *Instance) ExitCode() int {
	select {
	case <-i.sensor.Done():
		if i.sensor.Err() != nil {
			return 1
		}
	default:
	}
	return 0
}

// Err returns the error that ended the sensor, if it ended.
func (i *Instance) Err() error {
	select {
	case <-i.sensor.Done():
		return i.sensor.Err()
	default:
		return nil
	}
}

// Config returns the config of the instance.
func (i *Instance) Config() *configure.Config {
	return i.cfg
}

// Sensor returns the sensor module.
func (i *Instance) Sensor() *sensor.Sensor {
	return i.sensor
}

// Emitter returns the alerting module.
func (i *Instance) Emitter() *alerting.Emitter {
	return i.emitter
}
