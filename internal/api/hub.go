package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/energizer-project/combatlens/internal/events"
	"github.com/energizer-project/combatlens/internal/util"
)

const writeWait = 5 * time.Second

// PushMessage is the envelope of every websocket message.
type PushMessage struct {
	Type string      `json:"type"`
	At   int64       `json:"at"`
	Data interface{} `json:"data,omitempty"`
}

type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *subscriber) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub fans bus events and periodic data frames out to websocket clients.
type Hub struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	upgrader    websocket.Upgrader
	logger      zerolog.Logger
	now         func() time.Time
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: util.ComponentLogger("ws_hub"),
		now:    time.Now,
	}
}

// Attach forwards the pushed event types of bus to every client.
func (h *Hub) Attach(bus *events.EventBus) {
	bus.SubscribeMany(events.PushedEvents, "ws_hub", func(ctx context.Context, e events.Event) error {
		h.Broadcast(string(e.Type), e.Payload)
		return nil
	})
}

// ServeWS upgrades the request and keeps the client registered until it
// disconnects. Clients only listen; anything they send is discarded.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	sub := &subscriber{conn: conn}
	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	count := len(h.subscribers)
	h.mu.Unlock()
	h.logger.Debug().Str("remote", r.RemoteAddr).Int("clients", count).Msg("websocket client connected")

	hello, _ := json.Marshal(PushMessage{Type: "hello", At: h.now().UnixMilli()})
	if err := sub.write(hello); err != nil {
		h.remove(sub)
		return
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.remove(sub)
			return
		}
	}
}

// Broadcast sends one message to every client. Clients that cannot be
// written to are dropped.
func (h *Hub) Broadcast(kind string, payload interface{}) {
	h.mu.Lock()
	if len(h.subscribers) == 0 {
		h.mu.Unlock()
		return
	}
	subs := make([]*subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	data, err := json.Marshal(PushMessage{Type: kind, At: h.now().UnixMilli(), Data: payload})
	if err != nil {
		h.logger.Error().Err(err).Str("type", kind).Msg("failed to marshal push message")
		return
	}

	for _, sub := range subs {
		if err := sub.write(data); err != nil {
			h.logger.Debug().Err(err).Msg("dropping websocket client")
			h.remove(sub)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	_, ok := h.subscribers[sub]
	delete(h.subscribers, sub)
	h.mu.Unlock()
	if ok {
		sub.conn.Close()
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subscribers
	h.subscribers = make(map[*subscriber]struct{})
	h.mu.Unlock()

	for sub := range subs {
		sub.mu.Lock()
		sub.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		sub.mu.Unlock()
		sub.conn.Close()
	}
}
