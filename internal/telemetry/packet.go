package telemetry

import (
	"bytes"
	"encoding/binary"
	"io"
)

// Packet reads the little endian fields of a datagram sent by the game.
type Packet struct {
	buf *bytes.Buffer
	err error
}

func NewPacket(b []byte) *Packet {
	return &Packet{
		buf: bytes.NewBuffer(b),
	}
}

// Read decodes the next fixed size value into out. After the first failure all further
// reads are no-ops, and the failure is returned by Err.
func (p *Packet) Read(out interface{}) {
	if p.err != nil {
		return
	}

	err := binary.Read(p.buf, binary.LittleEndian, out)

	if err == io.EOF || err == io.ErrUnexpectedEOF {
		err = ErrShortPacket
	}

	p.err = err
}

func (p *Packet) ReadUint8() uint8 {
	var i uint8

	p.Read(&i)

	return i
}

func (p *Packet) Err() error {
	return p.err
}

// cString converts a NUL terminated, NUL padded byte array to a string.
func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}

	return string(b)
}
