package protocol

import (
	"encoding/binary"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// FrameHandler receives complete frames, length prefix included.
type FrameHandler interface {
	HandleFrame(frame []byte)
}

// FrameHandlerFunc adapts a function to FrameHandler.
type FrameHandlerFunc func(frame []byte)

// HandleFrame calls f(frame).
func (f FrameHandlerFunc) HandleFrame(frame []byte) { f(frame) }

// HeaderValidator inspects the first MinFrameSize bytes of a candidate
// frame. Returning false makes the assembler skip the 4-byte prefix and
// resynchronise on the following bytes.
type HeaderValidator func(header []byte) bool

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithMaxFrameSize overrides the largest accepted declared frame length.
func WithMaxFrameSize(n int) AssemblerOption {
	return func(a *Assembler) {
		if n >= MinFrameSize {
			a.maxFrame = n
		}
	}
}

// WithHeaderValidator installs a header check run before each extraction.
func WithHeaderValidator(v HeaderValidator) AssemblerOption {
	return func(a *Assembler) { a.validate = v }
}

// WithLogger sets the logger used for resynchronisation warnings.
func WithLogger(l zerolog.Logger) AssemblerOption {
	return func(a *Assembler) { a.logger = l }
}

// Assembler turns an arbitrarily chunked byte stream into frames.
// It is not safe for concurrent use: one assembler serves one stream.
type Assembler struct {
	buf      []byte
	maxFrame int
	validate HeaderValidator
	handler  FrameHandler
	logger   zerolog.Logger

	delivered uint64
	dropped   uint64
}

// NewAssembler creates an assembler delivering frames to handler.
func NewAssembler(handler FrameHandler, opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		handler:  handler,
		maxFrame: DefaultMaxFrameSize,
		logger:   log.With().Str("component", "assembler").Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Feed appends chunk to the backlog and delivers every complete frame.
func (a *Assembler) Feed(chunk []byte) {
	a.buf = append(a.buf, chunk...)

	off := 0
	for len(a.buf)-off >= LengthPrefixSize {
		size := binary.BigEndian.Uint32(a.buf[off:])
		if size < MinFrameSize || size > uint32(a.maxFrame) {
			a.logger.Warn().
				Uint32("declared_len", size).
				Int("backlog", len(a.buf)-off).
				Msg("frame length out of range, dropping backlog")
			a.dropped += uint64(len(a.buf) - off)
			a.buf = a.buf[:0]
			return
		}

		if a.validate != nil {
			if len(a.buf)-off < MinFrameSize {
				break
			}
			if !a.validate(a.buf[off : off+MinFrameSize]) {
				a.logger.Debug().Uint32("declared_len", size).Msg("bad frame header, resyncing")
				a.dropped += LengthPrefixSize
				off += LengthPrefixSize
				continue
			}
		}

		if len(a.buf)-off < int(size) {
			break
		}

		frame := make([]byte, size)
		copy(frame, a.buf[off:off+int(size)])
		off += int(size)
		a.delivered++
		a.handler.HandleFrame(frame)
	}

	if off > 0 {
		n := copy(a.buf, a.buf[off:])
		a.buf = a.buf[:n]
	}
}

// Buffered returns the number of bytes waiting for the rest of a frame.
func (a *Assembler) Buffered() int { return len(a.buf) }

// Delivered returns the number of frames handed to the handler.
func (a *Assembler) Delivered() uint64 { return a.delivered }

// Dropped returns the number of bytes discarded while resynchronising.
func (a *Assembler) Dropped() uint64 { return a.dropped }

// Reset discards any buffered bytes.
func (a *Assembler) Reset() { a.buf = a.buf[:0] }
