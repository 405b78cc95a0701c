package packetgen

import (
	"bytes"
	"go/build"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFrames(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	syn := TCPFrame{Src: net.IPv4(10, 0, 0, 5), DstPort: 22, SYN: true}.Ethernet()

	buf := new(bytes.Buffer)
	require.NoError(t, WriteFrames(buf, layers.LinkTypeEthernet,
		Recorded{Time: start, Frame: syn},
		Recorded{Time: start.Add(time.Second), Frame: syn},
	))

	r, err := pcapgo.NewReader(buf)
	require.NoError(t, err)
	assert.Equal(t, layers.LinkTypeEthernet, r.LinkType())

	data, ci, err := r.ReadPacketData()
	require.NoError(t, err)
	assert.Equal(t, syn, data)
	assert.True(t, start.Equal(ci.Timestamp))

	_, ci, err = r.ReadPacketData()
	require.NoError(t, err)
	assert.True(t, start.Add(time.Second).Equal(ci.Timestamp))
}

// Commands build their frames with this package, so it must not pull the
// testing package into their binaries.
func TestNoTestingImport(t *testing.T) {
	t.Parallel()

	pkg, err := build.ImportDir(".", 0)
	require.NoError(t, err)
	assert.NotContains(t, pkg.Imports, "testing")
}
