package network

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"
)

type chunkRecorder struct {
	mu     sync.Mutex
	data   map[string][]byte
	closed chan string
}

func newChunkRecorder() *chunkRecorder {
	return &chunkRecorder{data: make(map[string][]byte), closed: make(chan string, 4)}
}

func (r *chunkRecorder) Submit(stream string, data []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[stream] = append(r.data[stream], data...)
	return true
}

func (r *chunkRecorder) CloseStream(stream string) {
	r.closed <- stream
}

func (r *chunkRecorder) get(stream string) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.data[stream]...)
}

func TestListenerForwardsEachConnectionAsAStream(t *testing.T) {
	sink := newChunkRecorder()
	l := NewTCPListener("127.0.0.1:0", sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- l.Start(ctx) }()

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	stream := conn.LocalAddr().String()

	payload := bytes.Repeat([]byte{0x00, 0x00, 0x00, 0x06, 0x00, 0x04}, 100)
	for i := 0; i < len(payload); i += 50 {
		if _, err := conn.Write(payload[i : i+50]); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	conn.Close()

	select {
	case got := <-sink.closed:
		if got != stream {
			t.Errorf("closed stream = %q, want %q", got, stream)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream was never closed")
	}
	if got := sink.get(stream); !bytes.Equal(got, payload) {
		t.Errorf("forwarded %d bytes, want %d", len(got), len(payload))
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestListenerReportsBindFailure(t *testing.T) {
	l := NewTCPListener("256.0.0.1:0", newChunkRecorder())
	if err := l.Start(context.Background()); err == nil {
		t.Fatal("expected a bind error")
	}
}
