package configure

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that is written as a duration string ("90s",
// "2m") or as a plain number of seconds.
type Duration time.Duration

// Std returns the duration as time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// Seconds returns the duration in whole seconds.
func (d Duration) Seconds() int64 {
	return int64(time.Duration(d) / time.Second)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: line %d: duration must be a scalar", ErrInvalid, value.Line)
	}
	parsed, err := parseDuration(value.Value, time.Second)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// parseDuration parses a duration string, or a plain number in units.
func parseDuration(v string, unit time.Duration) (Duration, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		if n > math.MaxInt64/int64(unit) || n < math.MinInt64/int64(unit) {
			return 0, fmt.Errorf("%w: %q is out of range", ErrInvalid, v)
		}
		return Duration(time.Duration(n) * unit), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a duration", ErrInvalid, v)
	}
	return Duration(d), nil
}
