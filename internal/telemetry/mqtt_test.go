package telemetry

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/energizer-project/combatlens/internal/config"
	"github.com/energizer-project/combatlens/internal/events"
)

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (doneToken) Error() error { return nil }

type published struct {
	topic string
	body  map[string]interface{}
}

type fakePublisher struct {
	mu        sync.Mutex
	connected bool
	messages  []published
}

func (f *fakePublisher) IsConnected() bool { return f.connected }

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	var body map[string]interface{}
	json.Unmarshal(payload.([]byte), &body)
	f.mu.Lock()
	f.messages = append(f.messages, published{topic: topic, body: body})
	f.mu.Unlock()
	return doneToken{}
}

func (f *fakePublisher) snapshot() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.messages...)
}

func newTestHandler(t *testing.T, pub *fakePublisher) *MQTTHandler {
	t.Helper()
	cfg, err := config.Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cfg.MQTT.Enabled = true
	h, err := NewMQTTHandler(cfg, events.NewEventBus(), "test", func() interface{} {
		return map[string]int{"users": 3}
	})
	if err != nil {
		t.Fatal(err)
	}
	h.pub = pub
	h.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return h
}

func TestDisabledHandler(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewMQTTHandler(cfg, events.NewEventBus(), "test", nil); err == nil {
		t.Fatal("expected an error for disabled MQTT")
	}
}

func TestPushedEventsArePublished(t *testing.T) {
	pub := &fakePublisher{connected: true}
	h := newTestHandler(t, pub)
	h.subscribeEvents()

	h.eventBus.EmitSync(context.Background(), events.Event{
		Type:    events.EventSessionEnded,
		Payload: events.SessionEndedPayload{ID: "abc", Reason: "manual_clear"},
	})

	msgs := pub.snapshot()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	if msgs[0].topic != "combatlens/session/session_ended" {
		t.Errorf("topic = %q", msgs[0].topic)
	}
	if msgs[0].body["app_version"] != "test" || msgs[0].body["timestamp"] != "2026-03-01T12:00:00Z" {
		t.Errorf("envelope = %v", msgs[0].body)
	}
	if payload := msgs[0].body["payload"].(map[string]interface{}); payload["id"] != "abc" {
		t.Errorf("payload = %v", payload)
	}
}

func TestHeartbeatCarriesStatus(t *testing.T) {
	pub := &fakePublisher{connected: true}
	h := newTestHandler(t, pub)
	h.publishHeartbeat()

	msgs := pub.snapshot()
	if len(msgs) != 1 || msgs[0].topic != "combatlens/status" {
		t.Fatalf("messages = %+v", msgs)
	}
	payload := msgs[0].body["payload"].(map[string]interface{})
	if payload["event"] != "heartbeat" || payload["status"].(map[string]interface{})["users"] != float64(3) {
		t.Errorf("payload = %v", payload)
	}
}

func TestNothingPublishedWhileDisconnected(t *testing.T) {
	pub := &fakePublisher{}
	h := newTestHandler(t, pub)
	h.publishHeartbeat()
	if n := len(pub.snapshot()); n != 0 {
		t.Errorf("published %d messages while disconnected", n)
	}
}

func TestTopicWithoutPrefix(t *testing.T) {
	h := &MQTTHandler{}
	if got := h.topic("session", "dps_cleared"); got != "session/dps_cleared" {
		t.Errorf("topic = %q", got)
	}
}
