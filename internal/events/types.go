// Package events defines the event types pushed to presentation-layer
// consumers (websocket clients, MQTT) and the bus that carries them.
package events

import "time"

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Session lifecycle
	EventSessionStarted   EventType = "session_started"
	EventSessionEnded     EventType = "session_ended"
	EventSessionChanged   EventType = "session_changed"
	EventSessionPersisted EventType = "session_persisted"
	EventDpsCleared       EventType = "dps_cleared"

	// Roster
	EventUserDeleted EventType = "user_deleted"

	// Control
	EventPauseChanged  EventType = "pause_changed"
	EventConfigChanged EventType = "config_changed"
	EventShutdown      EventType = "shutdown"

	// Health
	EventHealthAlert EventType = "health_alert"
)

// PushedEvents are the events forwarded to external subscribers.
var PushedEvents = []EventType{
	EventSessionStarted,
	EventSessionEnded,
	EventSessionChanged,
	EventSessionPersisted,
	EventDpsCleared,
	EventUserDeleted,
	EventPauseChanged,
	EventHealthAlert,
}

// Event represents a single event in the system.
type Event struct {
	Type    EventType
	Source  string
	Payload interface{}
}

// UserDeletedPayload is emitted when a user leaves the live roster.
type UserDeletedPayload struct {
	UID uint64 `json:"uid"`
}

// SessionStartedPayload describes a freshly opened session.
type SessionStartedPayload struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	StartedAt    time.Time `json:"startedAt"`
	InstanceID   uint64    `json:"instanceId"`
	FromInstance uint64    `json:"fromInstance"`
	Seq          uint64    `json:"seq"`
	ReasonStart  string    `json:"reasonStart"`
}

// SessionEndedPayload is emitted when a session is finalized.
type SessionEndedPayload struct {
	ID        string    `json:"id"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
	Persisted bool      `json:"persisted"`
}

// SessionChangedPayload accompanies an instance-driven rollover.
type SessionChangedPayload struct {
	Seq          uint64                 `json:"seq"`
	Reason       string                 `json:"reason"`
	FromInstance uint64                 `json:"fromInstance"`
	ToInstance   uint64                 `json:"toInstance"`
	Extra        map[string]interface{} `json:"extra,omitempty"`
}

// SessionPersistedPayload is emitted after a record reached storage.
type SessionPersistedPayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	PartySize int    `json:"partySize"`
}

// DpsClearedPayload is emitted when an operator clears all statistics.
type DpsClearedPayload struct {
	At time.Time `json:"at"`
}

// PauseChangedPayload is emitted when stat recording is paused or resumed.
type PauseChangedPayload struct {
	Paused bool `json:"paused"`
}

// ConfigChangedPayload is emitted when configuration changes occur.
type ConfigChangedPayload struct {
	Section string      `json:"section"`
	Key     string      `json:"key"`
	Value   interface{} `json:"value"`
}

// HealthAlertPayload is emitted when a health check changes level.
type HealthAlertPayload struct {
	Check   string `json:"check"`
	Level   string `json:"level"`
	Message string `json:"message"`
}
