package protocol

import (
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NotifyHandler consumes game-world notifications.
type NotifyHandler interface {
	HandleNotify(n *Notify)
}

// PlayerContext is implemented by notify handlers that know which player
// the stream belongs to. It is used to annotate recovered panics.
type PlayerContext interface {
	LocalPlayer() uint64
}

// Decompressor expands a compressed payload.
type Decompressor interface {
	Decompress(src []byte) ([]byte, error)
}

// DispatcherStats is a point-in-time copy of the dispatcher counters.
type DispatcherStats struct {
	Frames     uint64 `json:"frames"`
	Notifies   uint64 `json:"notifies"`
	Foreign    uint64 `json:"foreign_service"`
	FrameDowns uint64 `json:"frame_downs"`
	Ignored    uint64 `json:"ignored"`
	Malformed  uint64 `json:"malformed"`
	Panics     uint64 `json:"panics"`
}

// Dispatcher routes complete frames by message type.
type Dispatcher struct {
	handler  NotifyHandler
	decomp   Decompressor
	maxFrame int
	logger   zerolog.Logger

	frames     atomic.Uint64
	notifies   atomic.Uint64
	foreign    atomic.Uint64
	frameDowns atomic.Uint64
	ignored    atomic.Uint64
	malformed  atomic.Uint64
	panics     atomic.Uint64
}

// NewDispatcher creates a dispatcher. decomp may be nil, in which case
// compressed payloads are passed through untouched.
func NewDispatcher(handler NotifyHandler, decomp Decompressor, maxFrame int) *Dispatcher {
	if maxFrame < MinFrameSize {
		maxFrame = DefaultMaxFrameSize
	}
	return &Dispatcher{
		handler:  handler,
		decomp:   decomp,
		maxFrame: maxFrame,
		logger:   log.With().Str("component", "dispatcher").Logger(),
	}
}

// HandleFrame implements FrameHandler. A panic raised while handling the
// frame is recovered and logged; the caller keeps feeding the stream.
func (d *Dispatcher) HandleFrame(frame []byte) {
	d.frames.Add(1)
	defer func() {
		if r := recover(); r != nil {
			d.panics.Add(1)
			ev := d.logger.Error().Interface("panic", r).Int("frame_len", len(frame))
			if pc, ok := d.handler.(PlayerContext); ok {
				ev = ev.Uint64("player_uuid", pc.LocalPlayer())
			}
			ev.Msg("frame handler panicked")
		}
	}()

	c := NewCursor(frame)
	if err := c.Skip(LengthPrefixSize); err != nil {
		d.malformed.Add(1)
		return
	}
	word, err := c.ReadUint16()
	if err != nil {
		d.malformed.Add(1)
		return
	}

	compressed := word&CompressedFlag != 0
	switch MessageType(word & TypeMask) {
	case MsgNotify:
		d.handleNotify(c, compressed)
	case MsgReturn:
		d.handleReturn(c, compressed)
	case MsgFrameDown:
		d.handleFrameDown(c, compressed)
	default:
		d.ignored.Add(1)
	}
}

func (d *Dispatcher) handleNotify(c *Cursor, compressed bool) {
	service, err := c.ReadUint64()
	if err != nil {
		d.malformed.Add(1)
		return
	}
	stub, err := c.ReadUint32()
	if err != nil {
		d.malformed.Add(1)
		return
	}
	method, err := c.ReadUint32()
	if err != nil {
		d.malformed.Add(1)
		return
	}

	if service != ServiceUUID {
		d.foreign.Add(1)
		d.logger.Debug().
			Str("service", fmt.Sprintf("0x%016x", service)).
			Uint32("method", method).
			Msg("notify for foreign service dropped")
		return
	}

	body := c.Rest()
	if compressed {
		body = d.decompress(body)
	}

	d.notifies.Add(1)
	d.handler.HandleNotify(&Notify{
		ServiceUUID: service,
		StubID:      stub,
		MethodID:    method,
		Compressed:  compressed,
		Body:        body,
	})
}

func (d *Dispatcher) handleReturn(c *Cursor, compressed bool) {
	seq, err := c.ReadUint32()
	if err != nil {
		d.malformed.Add(1)
		return
	}
	d.logger.Trace().
		Uint32("seq", seq).
		Bool("compressed", compressed).
		Int("len", c.Remaining()).
		Msg("return message")
}

func (d *Dispatcher) handleFrameDown(c *Cursor, compressed bool) {
	seq, err := c.ReadUint32()
	if err != nil {
		d.malformed.Add(1)
		return
	}
	nested := c.Rest()
	if len(nested) == 0 {
		return
	}
	if compressed {
		nested = d.decompress(nested)
	}

	d.frameDowns.Add(1)
	sub := NewAssembler(d, WithMaxFrameSize(d.maxFrame), WithLogger(d.logger))
	sub.Feed(nested)
	if left := sub.Buffered(); left > 0 {
		d.logger.Debug().
			Uint32("seq", seq).
			Int("trailing", left).
			Msg("frame-down stream ended inside a frame")
	}
}

func (d *Dispatcher) decompress(src []byte) []byte {
	if d.decomp == nil {
		d.logger.Warn().Int("len", len(src)).Msg("no decompressor configured, passing payload through")
		return src
	}
	out, err := d.decomp.Decompress(src)
	if err != nil {
		d.logger.Warn().Err(err).Int("len", len(src)).Msg("decompression failed, passing payload through")
		return src
	}
	return out
}

// Stats returns the current counters.
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Frames:     d.frames.Load(),
		Notifies:   d.notifies.Load(),
		Foreign:    d.foreign.Load(),
		FrameDowns: d.frameDowns.Load(),
		Ignored:    d.ignored.Load(),
		Malformed:  d.malformed.Load(),
		Panics:     d.panics.Load(),
	}
}
