// Package network implements the raw byte-stream ingest socket. An external
// sniffer connects to it and forwards the reassembled server-to-client TCP
// payload of the game link; each connection is one stream.
package network

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Connection is one ingest stream. Its remote address doubles as the
// stream id handed to the capture worker.
type Connection struct {
	conn     net.Conn
	stream   string
	opened   time.Time
	received atomic.Uint64
	closed   atomic.Bool
	once     sync.Once
	closeErr error
}

func NewConnection(conn net.Conn) *Connection {
	return &Connection{
		conn:   conn,
		stream: conn.RemoteAddr().String(),
		opened: time.Now(),
	}
}

func (c *Connection) ID() string { return c.stream }

// ReadChunk reads whatever is available into buf. A timeout of zero
// waits indefinitely.
func (c *Connection) ReadChunk(buf []byte, timeout time.Duration) (int, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}

	n, err := c.conn.Read(buf)
	if n > 0 {
		c.received.Add(uint64(n))
	}
	return n, err
}

// Close is idempotent; later calls return the first result.
func (c *Connection) Close() error {
	c.once.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.conn.Close()
		log.Info().
			Str("stream", c.stream).
			Uint64("bytes", c.received.Load()).
			Dur("open_for", time.Since(c.opened)).
			Msg("ingest connection closed")
	})
	return c.closeErr
}

func (c *Connection) IsClosed() bool { return c.closed.Load() }

func (c *Connection) Bytes() uint64 { return c.received.Load() }
