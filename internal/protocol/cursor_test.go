package protocol

import (
	"errors"
	"testing"
)

func TestCursorReadsMixedEndianness(t *testing.T) {
	buf := []byte{
		0x12, 0x34, // u16 BE
		0x00, 0x00, 0x01, 0x00, // u32 BE
		0x01, 0x00, 0x00, 0x00, // u32 LE
		0xfe, 0xff, 0xff, 0xff, // i32 LE = -2
	}
	c := NewCursor(buf)

	v16, err := c.ReadUint16()
	if err != nil || v16 != 0x1234 {
		t.Fatalf("ReadUint16 = %#x, %v", v16, err)
	}
	v32, err := c.ReadUint32()
	if err != nil || v32 != 256 {
		t.Fatalf("ReadUint32 = %d, %v", v32, err)
	}
	le, err := c.ReadUint32LE()
	if err != nil || le != 1 {
		t.Fatalf("ReadUint32LE = %d, %v", le, err)
	}
	i, err := c.ReadInt32LE()
	if err != nil || i != -2 {
		t.Fatalf("ReadInt32LE = %d, %v", i, err)
	}
	if c.Remaining() != 0 {
		t.Fatalf("Remaining = %d, want 0", c.Remaining())
	}
}

func TestCursorShortReadDoesNotMove(t *testing.T) {
	c := NewCursor([]byte{1, 2, 3})
	if _, err := c.ReadUint32(); !errors.Is(err, ErrShortBuffer) {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}
	if c.Pos() != 0 {
		t.Fatalf("position moved to %d after failed read", c.Pos())
	}
	if _, err := c.ReadBytes(4); !errors.Is(err, ErrShortBuffer) {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}
	if err := c.Skip(-1); !errors.Is(err, ErrShortBuffer) {
		t.Fatalf("negative skip should fail, got %v", err)
	}
}

func TestCursorSeekAndPeek(t *testing.T) {
	c := NewCursor([]byte{0, 0, 0, 9, 0xaa})
	v, err := c.PeekUint32()
	if err != nil || v != 9 {
		t.Fatalf("PeekUint32 = %d, %v", v, err)
	}
	if c.Pos() != 0 {
		t.Fatal("peek advanced the cursor")
	}
	if err := c.Seek(4); err != nil {
		t.Fatal(err)
	}
	if rest := c.Rest(); len(rest) != 1 || rest[0] != 0xaa {
		t.Fatalf("Rest = %x", rest)
	}
	if err := c.Seek(6); err == nil {
		t.Fatal("seek past end should fail")
	}
}
