package protocol

import (
	"bytes"
	"encoding/binary"
)

// FrameBuilder constructs big-endian frames, mainly to synthesise
// server streams in tests.
type FrameBuilder struct {
	buf bytes.Buffer
}

// NewFrameBuilder creates a new FrameBuilder.
func NewFrameBuilder() *FrameBuilder {
	return &FrameBuilder{}
}

// WriteUint16 writes a uint16 in big-endian order.
func (b *FrameBuilder) WriteUint16(v uint16) *FrameBuilder {
	binary.Write(&b.buf, binary.BigEndian, v)
	return b
}

// WriteUint32 writes a uint32 in big-endian order.
func (b *FrameBuilder) WriteUint32(v uint32) *FrameBuilder {
	binary.Write(&b.buf, binary.BigEndian, v)
	return b
}

// WriteUint64 writes a uint64 in big-endian order.
func (b *FrameBuilder) WriteUint64(v uint64) *FrameBuilder {
	binary.Write(&b.buf, binary.BigEndian, v)
	return b
}

// WriteBytes writes raw bytes.
func (b *FrameBuilder) WriteBytes(data []byte) *FrameBuilder {
	b.buf.Write(data)
	return b
}

// Frame wraps the body in a frame header of the given type.
// Format: [length:4][type word:2][body...]
func (b *FrameBuilder) Frame(t MessageType, compressed bool) []byte {
	body := b.buf.Bytes()
	word := uint16(t) & TypeMask
	if compressed {
		word |= CompressedFlag
	}
	out := make([]byte, MinFrameSize+len(body))
	binary.BigEndian.PutUint32(out[:4], uint32(len(out)))
	binary.BigEndian.PutUint16(out[4:6], word)
	copy(out[6:], body)
	return out
}

// BuildNotify creates a Notify frame for the game-world service.
// Format: [length:4][type:2][service:8][stub:4][method:4][body...]
func BuildNotify(method uint32, body []byte, compressed bool) []byte {
	return BuildServiceNotify(ServiceUUID, 0, method, body, compressed)
}

// BuildServiceNotify creates a Notify frame for an arbitrary service.
func BuildServiceNotify(service uint64, stub, method uint32, body []byte, compressed bool) []byte {
	b := NewFrameBuilder()
	b.WriteUint64(service).WriteUint32(stub).WriteUint32(method).WriteBytes(body)
	return b.Frame(MsgNotify, compressed)
}

// BuildFrameDown wraps an embedded frame stream.
// Format: [length:4][type:2][seq:4][nested frames...]
func BuildFrameDown(seq uint32, nested []byte, compressed bool) []byte {
	b := NewFrameBuilder()
	b.WriteUint32(seq).WriteBytes(nested)
	return b.Frame(MsgFrameDown, compressed)
}
