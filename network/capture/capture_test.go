package capture

import (
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safing/scanguard/network/packet/packetgen"
	"github.com/safing/scanguard/network/packet/packettest"
)

func TestFileReplay(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	frames := []packetgen.Recorded{
		{Time: start, Frame: packetgen.TCPFrame{Src: net.IPv4(10, 0, 0, 5), DstPort: 22, SYN: true}.Ethernet()},
		{Time: start.Add(time.Second), Frame: packetgen.TCPFrame{Src: net.IPv4(10, 0, 0, 5), DstPort: 80, SYN: true}.Ethernet()},
	}
	path := packettest.WritePcap(t, layers.LinkTypeEthernet, frames...)

	f, err := OpenFile(path)
	require.NoError(t, err)
	defer func() {
		_ = f.Close()
	}()
	assert.Equal(t, layers.LinkTypeEthernet, f.LinkType())
	assert.Equal(t, path, f.Name())

	for _, want := range frames {
		frame, err := f.NextFrame()
		require.NoError(t, err)
		assert.Equal(t, want.Frame, frame.Data)
		assert.True(t, want.Time.Equal(frame.Timestamp))
		assert.Equal(t, layers.LinkTypeEthernet, frame.LinkType)
	}

	_, err = f.NextFrame()
	require.ErrorIs(t, err, io.EOF)
}

func TestFileReplayPcapng(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "capture.pcapng")
	out, err := os.Create(path)
	require.NoError(t, err)
	w, err := pcapgo.NewNgWriter(out, layers.LinkTypeRaw)
	require.NoError(t, err)
	frame := packetgen.TCPFrame{Src: net.IPv4(10, 0, 0, 7), DstPort: 443, SYN: true}.Raw()
	require.NoError(t, w.WritePacket(packetgen.CaptureInfo(frame, time.Now()), frame))
	require.NoError(t, w.Flush())
	require.NoError(t, out.Close())

	f, err := OpenFile(path)
	require.NoError(t, err)
	defer func() {
		_ = f.Close()
	}()

	got, err := f.NextFrame()
	require.NoError(t, err)
	assert.Equal(t, frame, got.Data)
	assert.Equal(t, layers.LinkTypeRaw, got.LinkType)

	_, err = f.NextFrame()
	require.ErrorIs(t, err, io.EOF)
}

func TestOpenFileErrors(t *testing.T) {
	t.Parallel()

	_, err := OpenFile(filepath.Join(t.TempDir(), "missing.pcap"))
	require.Error(t, err)

	garbage := filepath.Join(t.TempDir(), "garbage.pcap")
	require.NoError(t, os.WriteFile(garbage, []byte("this is not a capture file"), 0o0600))
	_, err = OpenFile(garbage)
	require.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.pcap")
	require.NoError(t, os.WriteFile(empty, nil, 0o0600))
	_, err = OpenFile(empty)
	require.Error(t, err)
}

func TestPickInterface(t *testing.T) {
	t.Parallel()

	candidates := []candidate{
		{name: "lo", flags: net.FlagUp | net.FlagLoopback, hasAddrs: true},
		{name: "eth0", flags: 0, hasAddrs: true},
		{name: "eth1", flags: net.FlagUp, hasAddrs: false},
		{name: "wlan0", flags: net.FlagUp | net.FlagBroadcast, hasAddrs: true},
		{name: "wlan1", flags: net.FlagUp, hasAddrs: true},
		{name: "enp3s0", flags: net.FlagUp, hasAddrs: true},
	}

	name, err := pickInterface(candidates, nil)
	require.NoError(t, err)
	assert.Equal(t, "wlan0", name)

	name, err = pickInterface(candidates, glob.MustCompile("en*"))
	require.NoError(t, err)
	assert.Equal(t, "enp3s0", name)

	_, err = pickInterface(candidates, glob.MustCompile("eth*"))
	require.ErrorIs(t, err, ErrNoInterface)

	_, err = pickInterface([]candidate{
		{name: "lo", flags: net.FlagUp | net.FlagLoopback, hasAddrs: true},
	}, nil)
	require.ErrorIs(t, err, ErrNoInterface)
}

func TestResolveInterfaceKeepsPlainNames(t *testing.T) {
	t.Parallel()

	name, err := ResolveInterface("eth7")
	require.NoError(t, err)
	assert.Equal(t, "eth7", name)
}

func TestOpenLiveValidates(t *testing.T) {
	t.Parallel()

	_, err := OpenLive(LiveOptions{ReadTimeout: time.Second})
	require.Error(t, err)
	_, err = OpenLive(LiveOptions{Interface: "eth0"})
	require.Error(t, err)
}
