package capture

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// LiveOptions configures a live capture.
type LiveOptions struct {
	Interface   string
	SnapLen     int32
	Promiscuous bool
	ReadTimeout time.Duration
	// Filter is a BPF expression applied in the kernel, if supported.
	Filter string
}

// Live captures frames from a network interface.
type Live struct {
	handle   *pcap.Handle
	iface    string
	linkType layers.LinkType
}

// OpenLive starts capturing on the configured interface.
func OpenLive(opts LiveOptions) (*Live, error) {
	if opts.Interface == "" {
		return nil, errors.New("no interface given")
	}
	if opts.ReadTimeout <= 0 {
		return nil, errors.New("read timeout must be positive")
	}

	handle, err := pcap.OpenLive(opts.Interface, opts.SnapLen, opts.Promiscuous, opts.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to open interface %s: %w", opts.Interface, err)
	}

	if opts.Filter != "" {
		if err := handle.SetBPFFilter(opts.Filter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("failed to set filter %q: %w", opts.Filter, err)
		}
	}

	return &Live{
		handle:   handle,
		iface:    opts.Interface,
		linkType: handle.LinkType(),
	}, nil
}

// NextFrame blocks until the next frame arrives or the read timeout expires.
func (l *Live) NextFrame() (Frame, error) {
	data, ci, err := l.handle.ReadPacketData()
	switch {
	case err == nil:
		return Frame{
			Data:      data,
			Timestamp: ci.Timestamp,
			LinkType:  l.linkType,
		}, nil
	case errors.Is(err, pcap.NextErrorTimeoutExpired):
		return Frame{}, ErrTimeout
	default:
		return Frame{}, err
	}
}

// Name returns the interface name.
func (l *Live) Name() string {
	return l.iface
}

// LinkType returns the link type of the interface.
func (l *Live) LinkType() layers.LinkType {
	return l.linkType
}

// Stats returns the capture statistics of libpcap.
func (l *Live) Stats() (Stats, error) {
	s, err := l.handle.Stats()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Received:         s.PacketsReceived,
		Dropped:          s.PacketsDropped,
		InterfaceDropped: s.PacketsIfDropped,
	}, nil
}

// Close stops the capture.
func (l *Live) Close() error {
	l.handle.Close()
	return nil
}
