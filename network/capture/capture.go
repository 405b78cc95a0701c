// Package capture provides frame sources: live capture from a network
// interface and replay of capture files.
package capture

import (
	"errors"
	"time"

	"github.com/google/gopacket/layers"
)

// ErrTimeout is returned by NextFrame when no frame arrived within the read
// timeout. It is routine and not a failure.
var ErrTimeout = errors.New("read timeout expired")

// Frame is a captured link-layer frame.
type Frame struct {
	Data      []byte
	Timestamp time.Time
	LinkType  layers.LinkType
}

// Stats holds capture statistics, as far as the source provides them.
type Stats struct {
	Received         int
	Dropped          int
	InterfaceDropped int
}
