package packetgen

import (
	"io"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Recorded is a frame with its capture time.
type Recorded struct {
	Time  time.Time
	Frame []byte
}

// WriteFrames writes a pcap file header and the frames to w.
func WriteFrames(w io.Writer, linkType layers.LinkType, frames ...Recorded) error {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(65536, linkType); err != nil {
		return err
	}
	for _, r := range frames {
		if err := pw.WritePacket(CaptureInfo(r.Frame, r.Time), r.Frame); err != nil {
			return err
		}
	}
	return nil
}
