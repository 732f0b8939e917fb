package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// ReadTimeout is how long a connection may stay silent before it is
	// considered stale.
	ReadTimeout = 5 * time.Minute

	readBufferSize = 64 * 1024
)

// ChunkSink receives the bytes read from each connection.
type ChunkSink interface {
	Submit(stream string, data []byte) bool
	CloseStream(stream string)
}

// TCPListener accepts ingest connections and forwards their bytes.
type TCPListener struct {
	addr     string
	sink     ChunkSink
	listener net.Listener

	mu    sync.Mutex
	conns map[*Connection]struct{}
	ready chan struct{}
}

// NewTCPListener creates a listener on addr.
func NewTCPListener(addr string, sink ChunkSink) *TCPListener {
	return &TCPListener{
		addr:  addr,
		sink:  sink,
		conns: make(map[*Connection]struct{}),
		ready: make(chan struct{}),
	}
}

// Start accepts connections until ctx is cancelled.
func (l *TCPListener) Start(ctx context.Context) error {
	lc := ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", l.addr)
	if err != nil {
		return fmt.Errorf("failed to start ingest listener on %s: %w", l.addr, err)
	}
	l.mu.Lock()
	l.listener = ln
	l.mu.Unlock()
	close(l.ready)

	log.Info().Str("addr", ln.Addr().String()).Msg("ingest listener started")

	go func() {
		<-ctx.Done()
		ln.Close()
		l.closeAll()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				log.Info().Msg("ingest listener stopping")
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Error().Err(err).Msg("failed to accept connection")
			continue
		}

		go l.handleConnection(ctx, conn)
	}
}

// Addr blocks until the listener is bound and returns its address.
func (l *TCPListener) Addr() net.Addr {
	<-l.ready
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.listener.Addr()
}

func (l *TCPListener) handleConnection(ctx context.Context, rawConn net.Conn) {
	conn := NewConnection(rawConn)
	l.mu.Lock()
	l.conns[conn] = struct{}{}
	l.mu.Unlock()

	defer func() {
		conn.Close()
		l.sink.CloseStream(conn.ID())
		l.mu.Lock()
		delete(l.conns, conn)
		l.mu.Unlock()
	}()

	logger := log.With().Str("component", "ingest").Str("stream", conn.ID()).Logger()
	logger.Info().Msg("capture source connected")

	buf := make([]byte, readBufferSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := conn.ReadChunk(buf, ReadTimeout)
		if n > 0 {
			l.sink.Submit(conn.ID(), buf[:n])
		}
		if err == nil {
			continue
		}
		if conn.IsClosed() || errors.Is(err, io.EOF) {
			logger.Info().Uint64("bytes", conn.Bytes()).Msg("capture source disconnected")
			return
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			logger.Warn().Dur("idle", ReadTimeout).Msg("capture source idle, closing")
			return
		}
		logger.Error().Err(err).Msg("read error, closing connection")
		return
	}
}

func (l *TCPListener) closeAll() {
	l.mu.Lock()
	conns := make([]*Connection, 0, len(l.conns))
	for c := range l.conns {
		conns = append(conns, c)
	}
	l.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

// Stop closes the listener and every open connection.
func (l *TCPListener) Stop() error {
	l.mu.Lock()
	ln := l.listener
	l.mu.Unlock()
	l.closeAll()
	if ln != nil {
		return ln.Close()
	}
	return nil
}
