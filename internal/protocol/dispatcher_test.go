package protocol

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/zstd"
)

type notifySink struct {
	notifies []*Notify
	panicOn  uint32
}

func (s *notifySink) HandleNotify(n *Notify) {
	if s.panicOn != 0 && n.MethodID == s.panicOn {
		panic("boom")
	}
	s.notifies = append(s.notifies, n)
}

func (s *notifySink) LocalPlayer() uint64 { return 42 }

func newTestDispatcher(t *testing.T, sink *notifySink) *Dispatcher {
	t.Helper()
	z, err := NewZstdDecompressor(0)
	if err != nil {
		t.Fatalf("NewZstdDecompressor: %v", err)
	}
	t.Cleanup(z.Close)
	return NewDispatcher(sink, z, DefaultMaxFrameSize)
}

func zstdEncode(t *testing.T, b []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd.NewWriter: %v", err)
	}
	defer enc.Close()
	return enc.EncodeAll(b, nil)
}

func TestDispatcherRoutesNotify(t *testing.T) {
	sink := &notifySink{}
	d := newTestDispatcher(t, sink)

	d.HandleFrame(BuildNotify(MethodSyncNearDeltaInfo, []byte{1, 2, 3}, false))

	if len(sink.notifies) != 1 {
		t.Fatalf("got %d notifies, want 1", len(sink.notifies))
	}
	n := sink.notifies[0]
	if n.MethodID != MethodSyncNearDeltaInfo || !bytes.Equal(n.Body, []byte{1, 2, 3}) {
		t.Errorf("notify = %+v", n)
	}
}

func TestDispatcherDecompressesNotifyBody(t *testing.T) {
	sink := &notifySink{}
	d := newTestDispatcher(t, sink)

	body := bytes.Repeat([]byte("combat"), 50)
	d.HandleFrame(BuildNotify(MethodSyncNearEntities, zstdEncode(t, body), true))

	if len(sink.notifies) != 1 {
		t.Fatalf("got %d notifies, want 1", len(sink.notifies))
	}
	if !sink.notifies[0].Compressed || !bytes.Equal(sink.notifies[0].Body, body) {
		t.Errorf("body not decompressed: %d bytes", len(sink.notifies[0].Body))
	}
}

func TestDispatcherPassesThroughWithoutDecompressor(t *testing.T) {
	sink := &notifySink{}
	d := NewDispatcher(sink, nil, 0)

	raw := []byte{0x28, 0xb5, 0x2f, 0xfd, 0x00}
	d.HandleFrame(BuildNotify(MethodSyncNearEntities, raw, true))

	if len(sink.notifies) != 1 || !bytes.Equal(sink.notifies[0].Body, raw) {
		t.Fatalf("raw payload not passed through: %+v", sink.notifies)
	}
}

func TestDispatcherDropsForeignService(t *testing.T) {
	sink := &notifySink{}
	d := newTestDispatcher(t, sink)

	d.HandleFrame(BuildServiceNotify(0x1234, 0, MethodSyncNearEntities, []byte{1}, false))

	if len(sink.notifies) != 0 {
		t.Fatal("foreign service notify was handled")
	}
	if got := d.Stats().Foreign; got != 1 {
		t.Errorf("Foreign = %d, want 1", got)
	}
}

func TestDispatcherFrameDownRefeedsNestedFrames(t *testing.T) {
	sink := &notifySink{}
	d := newTestDispatcher(t, sink)

	nested := append(
		BuildNotify(MethodSyncNearEntities, []byte{1}, false),
		BuildNotify(MethodSyncToMeDeltaInfo, []byte{2}, false)...,
	)
	d.HandleFrame(BuildFrameDown(7, nested, false))
	d.HandleFrame(BuildFrameDown(8, zstdEncode(t, nested), true))

	if len(sink.notifies) != 4 {
		t.Fatalf("got %d notifies, want 4", len(sink.notifies))
	}
	wantMethods := []uint32{MethodSyncNearEntities, MethodSyncToMeDeltaInfo, MethodSyncNearEntities, MethodSyncToMeDeltaInfo}
	for i, m := range wantMethods {
		if sink.notifies[i].MethodID != m {
			t.Errorf("notify %d method = %#x, want %#x", i, sink.notifies[i].MethodID, m)
		}
	}
	if got := d.Stats().FrameDowns; got != 2 {
		t.Errorf("FrameDowns = %d, want 2", got)
	}
}

func TestDispatcherIgnoresOtherTypes(t *testing.T) {
	sink := &notifySink{}
	d := newTestDispatcher(t, sink)

	for _, mt := range []MessageType{MsgNone, MsgCall, MsgEcho, MsgFrameUp, MessageType(0x55)} {
		d.HandleFrame(NewFrameBuilder().WriteUint64(ServiceUUID).Frame(mt, false))
	}
	d.HandleFrame(NewFrameBuilder().WriteUint32(3).Frame(MsgReturn, false))

	if len(sink.notifies) != 0 {
		t.Fatal("non-notify frame reached the handler")
	}
	if got := d.Stats().Ignored; got != 5 {
		t.Errorf("Ignored = %d, want 5", got)
	}
}

func TestDispatcherTruncatedNotify(t *testing.T) {
	sink := &notifySink{}
	d := newTestDispatcher(t, sink)

	d.HandleFrame(NewFrameBuilder().WriteUint64(ServiceUUID).WriteUint16(1).Frame(MsgNotify, false))

	if len(sink.notifies) != 0 {
		t.Fatal("truncated notify was handled")
	}
	if got := d.Stats().Malformed; got != 1 {
		t.Errorf("Malformed = %d, want 1", got)
	}
}

func TestDispatcherRecoversFromHandlerPanic(t *testing.T) {
	sink := &notifySink{panicOn: MethodSyncNearEntities}
	d := newTestDispatcher(t, sink)
	a := NewAssembler(d)

	stream := append(
		BuildNotify(MethodSyncNearEntities, nil, false),
		BuildNotify(MethodSyncNearDeltaInfo, nil, false)...,
	)
	a.Feed(stream)

	if len(sink.notifies) != 1 || sink.notifies[0].MethodID != MethodSyncNearDeltaInfo {
		t.Fatalf("frame after panic not handled: %+v", sink.notifies)
	}
	if got := d.Stats().Panics; got != 1 {
		t.Errorf("Panics = %d, want 1", got)
	}
}
