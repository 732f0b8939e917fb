package capture

import (
	"bytes"
	"context"
	"testing"

	"github.com/energizer-project/combatlens/internal/protocol"
)

type recorder struct {
	frames [][]byte
}

func (r *recorder) HandleFrame(frame []byte) {
	r.frames = append(r.frames, frame)
}

func (r *recorder) Stats() protocol.DispatcherStats {
	return protocol.DispatcherStats{Frames: uint64(len(r.frames))}
}

func drained(t *testing.T, w *Worker) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestWorkerKeepsStreamsApart(t *testing.T) {
	rec := &recorder{}
	w := NewWorker(rec, 0, 0)

	a := protocol.BuildNotify(protocol.MethodSyncNearDeltaInfo, []byte("stream-a"), false)
	b := protocol.BuildNotify(protocol.MethodSyncToMeDeltaInfo, []byte("stream-b"), false)

	// Interleave halves of the two frames.
	w.Submit("a", a[:5])
	w.Submit("b", b[:9])
	w.Submit("a", a[5:])
	w.Submit("b", b[9:])
	drained(t, w)

	if len(rec.frames) != 2 {
		t.Fatalf("frames = %d, want 2", len(rec.frames))
	}
	if !bytes.Equal(rec.frames[0], a) || !bytes.Equal(rec.frames[1], b) {
		t.Errorf("frames were mixed across streams")
	}

	st := w.Stats()
	if st.Chunks != 4 || st.Frames != 2 || st.Streams != 2 || st.Bytes != uint64(len(a)+len(b)) {
		t.Errorf("stats = %+v", st)
	}
	if st.Dispatcher.Frames != 2 {
		t.Errorf("dispatcher stats not forwarded: %+v", st.Dispatcher)
	}
}

func TestWorkerCopiesSubmittedChunks(t *testing.T) {
	rec := &recorder{}
	w := NewWorker(rec, 0, 0)

	frame := protocol.BuildNotify(protocol.MethodSyncNearEntities, []byte{1, 2, 3}, false)
	buf := append([]byte(nil), frame...)
	w.Submit("s", buf)
	for i := range buf {
		buf[i] = 0xff
	}
	drained(t, w)

	if len(rec.frames) != 1 || !bytes.Equal(rec.frames[0], frame) {
		t.Fatalf("frame changed after submit: %x", rec.frames)
	}
}

func TestWorkerCloseStreamDropsPartialFrame(t *testing.T) {
	rec := &recorder{}
	w := NewWorker(rec, 0, 0)

	frame := protocol.BuildNotify(protocol.MethodSyncNearEntities, []byte("payload"), false)
	w.Submit("s", frame[:7])
	w.CloseStream("s")
	w.Submit("s", frame)
	drained(t, w)

	if len(rec.frames) != 1 || !bytes.Equal(rec.frames[0], frame) {
		t.Fatalf("frames = %x", rec.frames)
	}
	if w.Stats().Streams != 1 {
		t.Errorf("streams = %d, want 1", w.Stats().Streams)
	}
}

func TestWorkerQueueLimit(t *testing.T) {
	rec := &recorder{}
	w := NewWorker(rec, 0, 2)

	if !w.Submit("s", []byte{0}) || !w.Submit("s", []byte{0}) {
		t.Fatal("submit under the limit failed")
	}
	if w.Submit("s", []byte{0}) {
		t.Fatal("submit over the limit succeeded")
	}
	st := w.Stats()
	if st.Overflows != 1 || st.Queued != 2 {
		t.Errorf("stats = %+v", st)
	}
}

func TestWorkerCountsDiscardedBytes(t *testing.T) {
	rec := &recorder{}
	w := NewWorker(rec, 64, 0)

	// Declared length far above the 64-byte limit.
	w.Submit("s", []byte{0x00, 0x10, 0x00, 0x00, 0x00, 0x02, 0xaa, 0xbb})
	drained(t, w)

	if len(rec.frames) != 0 {
		t.Fatalf("oversized frame delivered")
	}
	if got := w.Stats().Discarded; got != 8 {
		t.Errorf("discarded = %d, want 8", got)
	}
}
