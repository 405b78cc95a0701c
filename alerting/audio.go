package alerting

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/google/shlex"
)

// DefaultAudioCooldown is the minimum time between two played sounds.
const DefaultAudioCooldown = 10 * time.Second

const playTimeout = 10 * time.Second

// Player plays the notification sound.
type Player interface {
	Play(ctx context.Context) error
}

// AudioSink plays a sound for alerts, at most once per cooldown no matter
// how many alerts arrive.
type AudioSink struct {
	player   Player
	cooldown time.Duration
	now      func() time.Time

	lock       sync.Mutex
	lastPlayed time.Time
	played     int
	suppressed int
}

// NewAudioSink returns a new audio sink.
// A cooldown of zero or less uses DefaultAudioCooldown.
func NewAudioSink(player Player, cooldown time.Duration) *AudioSink {
	if cooldown <= 0 {
		cooldown = DefaultAudioCooldown
	}
	return &AudioSink{
		player:   player,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// SetClock replaces the clock used for the cooldown.
func (as *AudioSink) SetClock(now func() time.Time) {
	as.lock.Lock()
	defer as.lock.Unlock()

	as.now = now
}

// Name implements Sink.
func (as *AudioSink) Name() string {
	return "audio"
}

// Send plays the sound unless the cooldown since the last attempt has not
// passed yet. A failed attempt starts the cooldown as well.
func (as *AudioSink) Send(ctx context.Context, _ Alert) error {
	as.lock.Lock()
	now := as.now()
	if !as.lastPlayed.IsZero() && now.Sub(as.lastPlayed) < as.cooldown {
		as.suppressed++
		as.lock.Unlock()
		return nil
	}
	as.lastPlayed = now
	as.played++
	as.lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, playTimeout)
	defer cancel()

	if err := as.player.Play(ctx); err != nil {
		return fmt.Errorf("failed to play sound: %w", err)
	}
	return nil
}

// Stats returns how often a sound was played and how often it was suppressed
// by the cooldown.
func (as *AudioSink) Stats() (played, suppressed int) {
	as.lock.Lock()
	defer as.lock.Unlock()

	return as.played, as.suppressed
}

// Close implements Sink.
func (as *AudioSink) Close() error {
	return nil
}

// CommandPlayer plays a sound file with an external command, such as paplay
// or aplay.
type CommandPlayer struct {
	Command string
	Args    []string
	File    string
}

// DefaultPlayCommand is used when no command is configured.
const DefaultPlayCommand = "paplay"

// NewCommandPlayer returns a player that runs commandLine with file appended.
// The command line is split like a shell would, eg. "paplay --volume 40000".
func NewCommandPlayer(commandLine, file string) (*CommandPlayer, error) {
	args, err := shlex.Split(commandLine)
	if err != nil {
		return nil, fmt.Errorf("invalid audio command %q: %w", commandLine, err)
	}

	cp := &CommandPlayer{File: file}
	if len(args) > 0 {
		cp.Command = args[0]
		cp.Args = args[1:]
	}
	return cp, nil
}

// Play implements Player.
func (cp *CommandPlayer) Play(ctx context.Context) error {
	if cp.File == "" {
		return errors.New("no sound file configured")
	}
	command := cp.Command
	if command == "" {
		command = DefaultPlayCommand
	}

	args := append(append([]string{}, cp.Args...), cp.File)
	out, err := exec.CommandContext(ctx, command, args...).CombinedOutput() //nolint:gosec
	if err != nil {
		if len(out) > 0 {
			return fmt.Errorf("%s: %w: %s", command, err, out)
		}
		return fmt.Errorf("%s: %w", command, err)
	}
	return nil
}

// DefaultSoundName is the freedesktop sound theme name played by
// NotificationPlayer when no sound file is set.
const DefaultSoundName = "dialog-warning"

// NotificationPlayer lets the desktop notification server play the sound.
type NotificationPlayer struct {
	Notifier Notifier
	// File is an optional sound file, the sound theme name is used otherwise.
	File string
}

// Play implements Player.
func (np *NotificationPlayer) Play(ctx context.Context) error {
	hints := map[string]dbus.Variant{
		"transient": dbus.MakeVariant(true),
	}
	if np.File != "" {
		hints["sound-file"] = dbus.MakeVariant(np.File)
	} else {
		hints["sound-name"] = dbus.MakeVariant(DefaultSoundName)
	}
	return np.Notifier.Notify(ctx, "Potential port scan", "", hints)
}
