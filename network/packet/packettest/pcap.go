// Package packettest provides capture file fixtures for tests.
package packettest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/gopacket/layers"

	"github.com/safing/scanguard/network/packet/packetgen"
)

// WritePcap writes the frames to a pcap file in a temporary directory and
// returns its path.
func WritePcap(t testing.TB, linkType layers.LinkType, frames ...packetgen.Recorded) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "capture.pcap")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create pcap: %s", err)
	}
	defer func() {
		_ = f.Close()
	}()

	if err := packetgen.WriteFrames(f, linkType, frames...); err != nil {
		t.Fatalf("write pcap: %s", err)
	}
	return path
}
