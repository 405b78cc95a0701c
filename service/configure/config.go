// Package configure holds the configuration of scanguard and loads it from
// defaults, a YAML file, the environment and command line flags.
package configure

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/safing/scanguard/base/log"
)

// EnvPrefix is the prefix of all environment variables read by LoadEnv.
const EnvPrefix = "SCANGUARD_"

// ErrInvalid is wrapped by all validation errors.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete configuration.
type Config struct {
	// Detection.
	Threshold int      `yaml:"threshold"`
	Window    Duration `yaml:"window"`
	Heartbeat Duration `yaml:"heartbeat"`

	// Capture.
	Interface   string   `yaml:"interface"`
	Filter      string   `yaml:"filter"`
	SnapLen     int32    `yaml:"snaplen"`
	Promiscuous bool     `yaml:"promiscuous"`
	ReadTimeout Duration `yaml:"read_timeout"`

	// Alerting.
	LogFile       string   `yaml:"log_file"`
	Audio         bool     `yaml:"audio"`
	AudioFile     string   `yaml:"audio_file"`
	AudioCommand  string   `yaml:"audio_command"`
	AudioCooldown Duration `yaml:"audio_cooldown"`
	Notify        bool     `yaml:"notify"`
	Journal       string   `yaml:"journal"`
	QueueSize     int      `yaml:"queue_size"`

	// Metrics.
	MetricsListen string `yaml:"metrics_listen"`
	MetricsPush   string `yaml:"metrics_push"`

	// Logging.
	LogLevel    string `yaml:"log_level"`
	LogToStdout bool   `yaml:"log_stdout"`
	LogDir      string `yaml:"log_dir"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Threshold:     20,
		Window:        Duration(60 * time.Second),
		Heartbeat:     Duration(30 * time.Second),
		Filter:        "tcp",
		SnapLen:       262144,
		Promiscuous:   true,
		ReadTimeout:   Duration(time.Second),
		AudioCooldown: Duration(10 * time.Second),
		QueueSize:     64,
		LogLevel:      "info",
		LogToStdout:   true,
	}
}

// Load builds the config from the defaults, the YAML file at path (if set),
// the environment and the flags that were set, in that order, and validates
// the result.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if flags != nil {
		if err := cfg.ApplyFlags(flags); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile merges the YAML file at path into the config.
// Keys missing from the file keep their current value.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// LoadEnv applies SCANGUARD_* environment variables, as returned by lookup.
// Pass os.LookupEnv to read the process environment.
func (c *Config) LoadEnv(lookup func(string) (string, bool)) error {
	var result *multierror.Error
	for _, opt := range c.options() {
		value, ok := lookup(EnvPrefix + opt.env)
		if !ok {
			continue
		}
		if err := opt.set(value); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s%s: %w", EnvPrefix, opt.env, err))
		}
	}
	return result.ErrorOrNil()
}

// ApplyFlags copies the values of all flags that were set on the command
// line. Flags are matched by name, unknown flags are ignored.
func (c *Config) ApplyFlags(flags *pflag.FlagSet) error {
	var result *multierror.Error
	for _, opt := range c.options() {
		if opt.flag == "" {
			continue
		}
		flag := flags.Lookup(opt.flag)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := opt.set(flag.Value.String()); err != nil {
			result = multierror.Append(result, fmt.Errorf("--%s: %w", opt.flag, err))
		}
	}
	return result.ErrorOrNil()
}

// Validate checks the config and returns all problems at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	invalid := func(format string, args ...any) {
		result = multierror.Append(result, fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...)))
	}

	if c.Threshold < 1 {
		invalid("threshold must be at least 1, got %d", c.Threshold)
	}
	// Alerts report the window in whole seconds.
	if c.Window.Std() < time.Second || c.Window.Std()%time.Second != 0 {
		invalid("window must be a positive number of whole seconds, got %s", c.Window)
	}
	if c.Heartbeat.Std() <= 0 {
		invalid("heartbeat must be positive, got %s", c.Heartbeat)
	}
	if c.ReadTimeout.Std() <= 0 {
		invalid("read timeout must be positive, got %s", c.ReadTimeout)
	}
	if c.SnapLen < 64 {
		invalid("snaplen must be at least 64, got %d", c.SnapLen)
	}
	if c.AudioCooldown.Std() < 0 {
		invalid("audio cooldown must not be negative, got %s", c.AudioCooldown)
	}
	if c.AudioCommand != "" && c.AudioFile == "" {
		invalid("audio command requires an audio file")
	}
	if c.QueueSize < 1 {
		invalid("queue size must be at least 1, got %d", c.QueueSize)
	}
	if !validLogLevel(c.LogLevel) {
		invalid("unknown log level %q", c.LogLevel)
	}

	return result.ErrorOrNil()
}

func validLogLevel(level string) bool {
	if level == "" {
		return false
	}
	// ParseLevel returns 0 for unknown names.
	return log.ParseLevel(level) != 0
}

// option binds a config field to its environment variable and flag.
type option struct {
	env  string
	flag string
	set  func(string) error
}

func (c *Config) options() []option {
	return []option{
		{"THRESHOLD", "threshold", intSetter(&c.Threshold)},
		{"WINDOW", "window", durationSetter(&c.Window)},
		{"HEARTBEAT", "heartbeat", durationSetter(&c.Heartbeat)},
		{"INTERFACE", "interface", stringSetter(&c.Interface)},
		{"FILTER", "filter", stringSetter(&c.Filter)},
		{"SNAPLEN", "snaplen", int32Setter(&c.SnapLen)},
		{"PROMISCUOUS", "promiscuous", boolSetter(&c.Promiscuous)},
		{"READ_TIMEOUT", "read-timeout", durationSetter(&c.ReadTimeout)},
		{"LOG_FILE", "log-file", stringSetter(&c.LogFile)},
		{"AUDIO", "audio", boolSetter(&c.Audio)},
		{"AUDIO_FILE", "audio-file", stringSetter(&c.AudioFile)},
		{"AUDIO_COMMAND", "audio-command", stringSetter(&c.AudioCommand)},
		{"AUDIO_COOLDOWN", "audio-cooldown", durationSetter(&c.AudioCooldown)},
		{"NOTIFY", "notify", boolSetter(&c.Notify)},
		{"JOURNAL", "journal", stringSetter(&c.Journal)},
		{"QUEUE_SIZE", "", intSetter(&c.QueueSize)},
		{"METRICS_LISTEN", "metrics-listen", stringSetter(&c.MetricsListen)},
		{"METRICS_PUSH", "metrics-push", stringSetter(&c.MetricsPush)},
		{"LOG_LEVEL", "log", stringSetter(&c.LogLevel)},
		{"LOG_STDOUT", "log-stdout", boolSetter(&c.LogToStdout)},
		{"LOG_DIR", "log-dir", stringSetter(&c.LogDir)},
	}
}

func stringSetter(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}

func intSetter(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %q is not a number", ErrInvalid, v)
		}
		*dst = n
		return nil
	}
}

func int32Setter(dst *int32) func(string) error {
	return func(v string) error {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 32)
		if err != nil {
			return fmt.Errorf("%w: %q is not a number", ErrInvalid, v)
		}
		*dst = int32(n)
		return nil
	}
}

func boolSetter(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %q is not a boolean", ErrInvalid, v)
		}
		*dst = b
		return nil
	}
}

// durationSetter accepts plain seconds, as the window flag always did, or a
// duration string.
func durationSetter(dst *Duration) func(string) error {
	return func(v string) error {
		d, err := parseDuration(v, time.Second)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}
