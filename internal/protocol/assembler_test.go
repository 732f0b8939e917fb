package protocol

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"pgregory.net/rapid"
)

type frameSink struct {
	frames [][]byte
}

func (s *frameSink) HandleFrame(frame []byte) {
	s.frames = append(s.frames, frame)
}

func makeFrame(t MessageType, body []byte) []byte {
	return NewFrameBuilder().WriteBytes(body).Frame(t, false)
}

func TestAssemblerWholeFrame(t *testing.T) {
	sink := &frameSink{}
	a := NewAssembler(sink)

	f := makeFrame(MsgNotify, []byte("hello"))
	a.Feed(f)

	if len(sink.frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(sink.frames))
	}
	if !bytes.Equal(sink.frames[0], f) {
		t.Errorf("frame = %x, want %x", sink.frames[0], f)
	}
	if a.Buffered() != 0 {
		t.Errorf("Buffered = %d, want 0", a.Buffered())
	}
}

func TestAssemblerByteByByte(t *testing.T) {
	sink := &frameSink{}
	a := NewAssembler(sink)

	f1 := makeFrame(MsgNotify, []byte{1, 2, 3})
	f2 := makeFrame(MsgReturn, nil)
	stream := append(append([]byte{}, f1...), f2...)

	for i := range stream {
		a.Feed(stream[i : i+1])
	}

	if len(sink.frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(sink.frames))
	}
	if !bytes.Equal(sink.frames[0], f1) || !bytes.Equal(sink.frames[1], f2) {
		t.Errorf("frames out of order or corrupted: %x", sink.frames)
	}
}

func TestAssemblerKeepsPartialFrame(t *testing.T) {
	sink := &frameSink{}
	a := NewAssembler(sink)

	f := makeFrame(MsgNotify, bytes.Repeat([]byte{7}, 32))
	a.Feed(f[:10])
	if len(sink.frames) != 0 {
		t.Fatal("partial frame delivered")
	}
	if a.Buffered() != 10 {
		t.Fatalf("Buffered = %d, want 10", a.Buffered())
	}
	a.Feed(f[10:])
	if len(sink.frames) != 1 {
		t.Fatalf("got %d frames after completion, want 1", len(sink.frames))
	}
}

func TestAssemblerMaxFrameBoundary(t *testing.T) {
	sink := &frameSink{}
	a := NewAssembler(sink)

	f := makeFrame(MsgNotify, make([]byte, DefaultMaxFrameSize-MinFrameSize))
	if len(f) != DefaultMaxFrameSize {
		t.Fatalf("test frame is %d bytes", len(f))
	}
	a.Feed(f)
	if len(sink.frames) != 1 {
		t.Fatalf("max-size frame not delivered")
	}

	over := make([]byte, 8)
	binary.BigEndian.PutUint32(over, DefaultMaxFrameSize+1)
	a.Feed(over)
	if len(sink.frames) != 1 || a.Buffered() != 0 {
		t.Fatalf("oversized header should drop backlog: frames=%d buffered=%d", len(sink.frames), a.Buffered())
	}
}

func TestAssemblerDropsBacklogOnShortLength(t *testing.T) {
	sink := &frameSink{}
	a := NewAssembler(sink)

	a.Feed([]byte{0, 0, 0, 5, 0xde, 0xad, 0xbe, 0xef})
	if len(sink.frames) != 0 {
		t.Fatal("frame delivered for length 5")
	}
	if a.Buffered() != 0 {
		t.Fatalf("backlog not dropped, %d bytes buffered", a.Buffered())
	}
	if a.Dropped() != 8 {
		t.Errorf("Dropped = %d, want 8", a.Dropped())
	}

	// The stream recovers once a valid frame arrives.
	f := makeFrame(MsgNotify, []byte{1})
	a.Feed(f)
	if len(sink.frames) != 1 {
		t.Fatal("assembler did not recover after dropping backlog")
	}
}

func TestAssemblerHeaderValidatorResync(t *testing.T) {
	sink := &frameSink{}
	validTypes := func(header []byte) bool {
		word := binary.BigEndian.Uint16(header[4:6]) & TypeMask
		return word >= uint16(MsgCall) && word <= uint16(MsgFrameDown)
	}
	a := NewAssembler(sink, WithHeaderValidator(validTypes))

	f := makeFrame(MsgNotify, []byte{9, 9})
	// Junk word with a plausible length; the bytes after it form type 0.
	stream := append([]byte{0, 0, 0, 8}, f...)
	a.Feed(stream)

	if len(sink.frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(sink.frames))
	}
	if !bytes.Equal(sink.frames[0], f) {
		t.Errorf("resynced frame = %x, want %x", sink.frames[0], f)
	}
}

func TestAssemblerAnyChunkingProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 5).Draw(t, "frames")
		var stream []byte
		var want [][]byte
		for i := 0; i < n; i++ {
			body := rapid.SliceOfN(rapid.Byte(), 0, 300).Draw(t, "body")
			f := makeFrame(MsgNotify, body)
			want = append(want, f)
			stream = append(stream, f...)
		}
		cuts := rapid.SliceOfN(rapid.IntRange(1, 97), 1, 32).Draw(t, "cuts")

		sink := &frameSink{}
		a := NewAssembler(sink)
		for i, off := 0, 0; off < len(stream); i++ {
			end := off + cuts[i%len(cuts)]
			if end > len(stream) {
				end = len(stream)
			}
			a.Feed(stream[off:end])
			off = end
		}

		if len(sink.frames) != len(want) {
			t.Fatalf("got %d frames, want %d", len(sink.frames), len(want))
		}
		for i := range want {
			if !bytes.Equal(sink.frames[i], want[i]) {
				t.Fatalf("frame %d differs", i)
			}
		}
		if a.Buffered() != 0 {
			t.Fatalf("Buffered = %d after complete stream", a.Buffered())
		}
	})
}

func TestAssemblerOutOfRangeLengthProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		size := rapid.OneOf(
			rapid.Uint32Range(0, MinFrameSize-1),
			rapid.Uint32Range(DefaultMaxFrameSize+1, math.MaxUint32),
		).Draw(t, "size")
		tail := rapid.SliceOfN(rapid.Byte(), 0, 64).Draw(t, "tail")

		head := make([]byte, 4)
		binary.BigEndian.PutUint32(head, size)

		sink := &frameSink{}
		a := NewAssembler(sink)
		a.Feed(append(head, tail...))

		if len(sink.frames) != 0 {
			t.Fatalf("frame delivered for declared length %d", size)
		}
		if a.Buffered() != 0 {
			t.Fatalf("backlog of %d bytes kept for declared length %d", a.Buffered(), size)
		}
	})
}
