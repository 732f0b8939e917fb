// Package capture moves raw stream bytes from a capture source (the TCP
// ingest socket or an offline pcap replay) into the decode pipeline. All
// decoding happens on the single goroutine running Worker.Run.
package capture

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/rs/zerolog"

	"github.com/energizer-project/combatlens/internal/protocol"
	"github.com/energizer-project/combatlens/internal/util"
)

// DefaultQueueLimit bounds the number of chunks waiting for the decoder.
const DefaultQueueLimit = 4096

// Decoder consumes frames. *protocol.Dispatcher implements it.
type Decoder interface {
	protocol.FrameHandler
	Stats() protocol.DispatcherStats
}

// Stats is a point-in-time view of the pipeline.
type Stats struct {
	Chunks     uint64                   `json:"chunks"`
	Bytes      uint64                   `json:"bytes"`
	Overflows  uint64                   `json:"queue_overflows"`
	Queued     int                      `json:"queued"`
	Streams    int                      `json:"streams"`
	Frames     uint64                   `json:"frames"`
	Discarded  uint64                   `json:"discarded_bytes"`
	Dispatcher protocol.DispatcherStats `json:"dispatcher"`
}

type chunk struct {
	stream string
	data   []byte
	closed bool
}

// Worker owns one frame assembler per stream and feeds every assembled
// frame to the decoder.
type Worker struct {
	mu     sync.Mutex
	q      *queue.Queue
	limit  int
	signal chan struct{}

	decoder  Decoder
	maxFrame int
	streams  map[string]*protocol.Assembler
	logger   zerolog.Logger

	chunks    atomic.Uint64
	bytes     atomic.Uint64
	overflows atomic.Uint64
	frames    atomic.Uint64
	discarded atomic.Uint64
	open      atomic.Int64
}

// NewWorker creates a worker feeding decoder. limit <= 0 selects
// DefaultQueueLimit.
func NewWorker(decoder Decoder, maxFrame, limit int) *Worker {
	if limit <= 0 {
		limit = DefaultQueueLimit
	}
	return &Worker{
		q:        queue.New(),
		limit:    limit,
		signal:   make(chan struct{}, 1),
		decoder:  decoder,
		maxFrame: maxFrame,
		streams:  make(map[string]*protocol.Assembler),
		logger:   util.ComponentLogger("capture"),
	}
}

// Submit queues a copy of data for stream. It returns false when the
// queue is full and the chunk was dropped.
func (w *Worker) Submit(stream string, data []byte) bool {
	if len(data) == 0 {
		return true
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return w.push(chunk{stream: stream, data: buf})
}

// CloseStream discards the partial frame buffered for stream once the
// chunks queued before it have been decoded.
func (w *Worker) CloseStream(stream string) {
	w.mu.Lock()
	w.q.Add(chunk{stream: stream, closed: true})
	w.mu.Unlock()
	w.wake()
}

func (w *Worker) push(c chunk) bool {
	w.mu.Lock()
	if w.q.Length() >= w.limit {
		w.mu.Unlock()
		if w.overflows.Add(1)%1000 == 1 {
			w.logger.Warn().Str("stream", c.stream).Int("limit", w.limit).Msg("decode queue full, dropping chunk")
		}
		return false
	}
	w.q.Add(c)
	w.mu.Unlock()
	w.wake()
	return true
}

func (w *Worker) wake() {
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func (w *Worker) pop() (chunk, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.q.Length() == 0 {
		return chunk{}, false
	}
	return w.q.Remove().(chunk), true
}

// Run decodes queued chunks until ctx is cancelled. Chunks already queued
// at cancellation are still decoded.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Int("queue_limit", w.limit).Msg("decode worker started")
	for {
		w.drain()
		select {
		case <-ctx.Done():
			w.drain()
			w.logger.Info().Uint64("chunks", w.chunks.Load()).Msg("decode worker stopped")
			return nil
		case <-w.signal:
		}
	}
}

func (w *Worker) drain() {
	for {
		c, ok := w.pop()
		if !ok {
			return
		}
		w.process(c)
	}
}

func (w *Worker) process(c chunk) {
	if c.closed {
		if a, ok := w.streams[c.stream]; ok {
			if n := a.Buffered(); n > 0 {
				w.logger.Debug().Str("stream", c.stream).Int("buffered", n).Msg("stream closed mid-frame")
			}
			delete(w.streams, c.stream)
			w.open.Add(-1)
		}
		return
	}

	a, ok := w.streams[c.stream]
	if !ok {
		a = protocol.NewAssembler(w.decoder,
			protocol.WithMaxFrameSize(w.maxFrame),
			protocol.WithLogger(w.logger.With().Str("stream", c.stream).Logger()),
		)
		w.streams[c.stream] = a
		w.open.Add(1)
		w.logger.Debug().Str("stream", c.stream).Msg("stream opened")
	}

	delivered, dropped := a.Delivered(), a.Dropped()
	a.Feed(c.data)
	w.frames.Add(a.Delivered() - delivered)
	w.discarded.Add(a.Dropped() - dropped)
	w.chunks.Add(1)
	w.bytes.Add(uint64(len(c.data)))
}

// Stats returns the current counters.
func (w *Worker) Stats() Stats {
	w.mu.Lock()
	queued := w.q.Length()
	w.mu.Unlock()
	return Stats{
		Chunks:     w.chunks.Load(),
		Bytes:      w.bytes.Load(),
		Overflows:  w.overflows.Load(),
		Queued:     queued,
		Streams:    int(w.open.Load()),
		Frames:     w.frames.Load(),
		Discarded:  w.discarded.Load(),
		Dispatcher: w.decoder.Stats(),
	}
}
