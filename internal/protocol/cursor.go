package protocol

import (
	"encoding/binary"
	"errors"
)

// ErrShortBuffer is returned when a read would run past the end of the buffer.
var ErrShortBuffer = errors.New("protocol: short buffer")

// Cursor is a bounds-checked sequential reader over a byte slice.
// A failed read never moves the position.
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor creates a cursor positioned at the start of buf.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Len returns the total length of the underlying buffer.
func (c *Cursor) Len() int { return len(c.buf) }

// Pos returns the current read position.
func (c *Cursor) Pos() int { return c.pos }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.buf) - c.pos }

// Seek moves the read position to an absolute offset.
func (c *Cursor) Seek(pos int) error {
	if pos < 0 || pos > len(c.buf) {
		return ErrShortBuffer
	}
	c.pos = pos
	return nil
}

// Skip advances the read position by n bytes.
func (c *Cursor) Skip(n int) error {
	if n < 0 || n > c.Remaining() {
		return ErrShortBuffer
	}
	c.pos += n
	return nil
}

func (c *Cursor) take(n int) ([]byte, error) {
	if n < 0 || n > c.Remaining() {
		return nil, ErrShortBuffer
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// ReadUint16 reads a big-endian uint16.
func (c *Cursor) ReadUint16() (uint16, error) {
	b, err := c.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// ReadUint32 reads a big-endian uint32.
func (c *Cursor) ReadUint32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// ReadUint64 reads a big-endian uint64.
func (c *Cursor) ReadUint64() (uint64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// PeekUint32 reads a big-endian uint32 without advancing.
func (c *Cursor) PeekUint32() (uint32, error) {
	if c.Remaining() < 4 {
		return 0, ErrShortBuffer
	}
	return binary.BigEndian.Uint32(c.buf[c.pos:]), nil
}

// ReadUint32LE reads a little-endian uint32. The container sub-streams
// inside dirty-data blobs use little-endian words.
func (c *Cursor) ReadUint32LE() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadInt32LE reads a little-endian int32.
func (c *Cursor) ReadInt32LE() (int32, error) {
	v, err := c.ReadUint32LE()
	return int32(v), err
}

// ReadBytes reads exactly n bytes. The returned slice aliases the buffer.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	return c.take(n)
}

// Rest returns every unread byte and moves the position to the end.
func (c *Cursor) Rest() []byte {
	b := c.buf[c.pos:]
	c.pos = len(c.buf)
	return b
}
