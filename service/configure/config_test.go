package configure

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 20, cfg.Threshold)
	assert.Equal(t, 60*time.Second, cfg.Window.Std())
	assert.Equal(t, 30*time.Second, cfg.Heartbeat.Std())
	assert.Equal(t, "tcp", cfg.Filter)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "scanguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o0600))
	return path
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.LoadFile(writeConfig(t, `
threshold: 5
window: 2m
heartbeat: 45
log_file: /var/log/scanguard/alerts.log
audio: true
`)))

	assert.Equal(t, 5, cfg.Threshold)
	assert.Equal(t, 2*time.Minute, cfg.Window.Std())
	assert.Equal(t, 45*time.Second, cfg.Heartbeat.Std())
	assert.Equal(t, "/var/log/scanguard/alerts.log", cfg.LogFile)
	assert.True(t, cfg.Audio)
	// Untouched keys keep their defaults.
	assert.Equal(t, "tcp", cfg.Filter)
	assert.Equal(t, time.Second, cfg.ReadTimeout.Std())
}

func TestLoadFileErrors(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.Error(t, cfg.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")))
	require.Error(t, cfg.LoadFile(writeConfig(t, "treshold: 5\n")), "unknown keys are rejected")
	require.ErrorIs(t, cfg.LoadFile(writeConfig(t, "window: soon\n")), ErrInvalid)
	require.NoError(t, cfg.LoadFile(writeConfig(t, "")))
}

func TestLoadEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"SCANGUARD_THRESHOLD":    "7",
		"SCANGUARD_WINDOW":       "30",
		"SCANGUARD_INTERFACE":    "eth1",
		"SCANGUARD_PROMISCUOUS":  "false",
		"SCANGUARD_READ_TIMEOUT": "250ms",
		"THRESHOLD":              "99",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.LoadEnv(lookup))
	assert.Equal(t, 7, cfg.Threshold)
	assert.Equal(t, 30*time.Second, cfg.Window.Std())
	assert.Equal(t, "eth1", cfg.Interface)
	assert.False(t, cfg.Promiscuous)
	assert.Equal(t, 250*time.Millisecond, cfg.ReadTimeout.Std())

	env = map[string]string{
		"SCANGUARD_THRESHOLD": "many",
		"SCANGUARD_AUDIO":     "loud",
	}
	err := Default().LoadEnv(lookup)
	require.ErrorIs(t, err, ErrInvalid)
	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 2)
}

func TestApplyFlags(t *testing.T) {
	t.Parallel()

	flags := pflag.NewFlagSet("scanguard", pflag.ContinueOnError)
	flags.IntP("threshold", "t", 20, "")
	flags.IntP("window", "w", 60, "")
	flags.StringP("log-file", "l", "", "")
	flags.Duration("read-timeout", time.Second, "")
	flags.String("interface", "", "")
	require.NoError(t, flags.Parse([]string{"-t", "3", "-w", "90", "--read-timeout", "500ms"}))

	cfg := Default()
	cfg.Interface = "from-file"
	require.NoError(t, cfg.ApplyFlags(flags))
	assert.Equal(t, 3, cfg.Threshold)
	assert.Equal(t, 90*time.Second, cfg.Window.Std())
	assert.Equal(t, 500*time.Millisecond, cfg.ReadTimeout.Std())
	assert.Equal(t, "from-file", cfg.Interface, "unset flags do not override")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Threshold = 0
	cfg.Window = 0
	cfg.LogLevel = "loud"
	cfg.AudioCommand = "paplay"

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 4)
	assert.Contains(t, err.Error(), "threshold must be at least 1")
	assert.Contains(t, err.Error(), "window must be a positive number of whole seconds")
}

func TestValidateWindowSeconds(t *testing.T) {
	t.Parallel()

	for _, window := range []time.Duration{500 * time.Millisecond, 1500 * time.Millisecond} {
		cfg := Default()
		cfg.Window = Duration(window)
		require.ErrorIs(t, cfg.Validate(), ErrInvalid, window.String())
	}

	cfg := Default()
	cfg.Window = Duration(time.Second)
	require.NoError(t, cfg.Validate())
}

func TestParseDurationOverflow(t *testing.T) {
	t.Parallel()

	_, err := parseDuration("9223372036854775807", time.Second)
	require.ErrorIs(t, err, ErrInvalid)
	_, err = parseDuration("-9223372036854775807", time.Second)
	require.ErrorIs(t, err, ErrInvalid)

	d, err := parseDuration("9223372036", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 9223372036*time.Second, d.Std())
}

func TestThresholdOne(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Threshold = 1
	require.NoError(t, cfg.Validate())
}
