package alerting

import "context"

// Sink receives alerts in addition to the console.
// Send is called from a dedicated worker, one alert at a time.
type Sink interface {
	Name() string
	Send(ctx context.Context, alert Alert) error
	Close() error
}
