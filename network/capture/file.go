package capture

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// pcapng files start with a section header block.
const pcapngMagic = 0x0A0D0D0A

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// File replays frames from a pcap or pcapng file.
type File struct {
	f      *os.File
	reader packetReader
	path   string
}

// OpenFile opens a capture file. The format is detected from its header.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}

	reader, err := newPacketReader(bufio.NewReader(f))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to read capture file %s: %w", path, err)
	}

	return &File{
		f:      f,
		reader: reader,
		path:   path,
	}, nil
}

func newPacketReader(r *bufio.Reader) (packetReader, error) {
	magic, err := r.Peek(4)
	if err != nil {
		return nil, err
	}

	// The section header block type is the same in both byte orders.
	if binary.LittleEndian.Uint32(magic) == pcapngMagic {
		return pcapgo.NewNgReader(r, pcapgo.DefaultNgReaderOptions)
	}
	return pcapgo.NewReader(r)
}

// NextFrame returns the next frame of the file, or io.EOF at its end.
func (cf *File) NextFrame() (Frame, error) {
	data, ci, err := cf.reader.ReadPacketData()
	switch {
	case err == nil:
		return Frame{
			Data:      data,
			Timestamp: ci.Timestamp,
			LinkType:  cf.reader.LinkType(),
		}, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		// A file cut off while it was written ends like a complete one.
		return Frame{}, io.EOF
	default:
		return Frame{}, err
	}
}

// Name returns the file path.
func (cf *File) Name() string {
	return cf.path
}

// LinkType returns the link type of the file.
func (cf *File) LinkType() layers.LinkType {
	return cf.reader.LinkType()
}

// Close closes the file.
func (cf *File) Close() error {
	return cf.f.Close()
}
