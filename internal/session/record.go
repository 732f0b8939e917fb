// Package session defines the finalized combat-session record and the
// persistence contract that stores it.
package session

import (
	"time"

	"github.com/energizer-project/combatlens/internal/stats"
)

// Reason explains why a session started or ended.
type Reason string

const (
	ReasonStartup        Reason = "startup"
	ReasonInstanceChange Reason = "instance_change"
	ReasonManualClear    Reason = "manual_clear"
	ReasonManualRestart  Reason = "manual_restart"
	ReasonProcessExit    Reason = "process_exit"
	ReasonSIGINT         Reason = "SIGINT"
	ReasonSIGTERM        Reason = "SIGTERM"
	ReasonBeforeExit     Reason = "beforeExit"
)

// UserSummary is the per-user view shown by the API and written to
// allUserData.json. Field names are a compatibility surface.
type UserSummary struct {
	RealtimeDPS    float64      `json:"realtime_dps"`
	RealtimeDPSMax float64      `json:"realtime_dps_max"`
	TotalDPS       float64      `json:"total_dps"`
	TotalDamage    stats.Values `json:"total_damage"`
	TotalCount     stats.Counts `json:"total_count"`
	RealtimeHPS    float64      `json:"realtime_hps"`
	RealtimeHPSMax float64      `json:"realtime_hps_max"`
	TotalHPS       float64      `json:"total_hps"`
	TotalHealing   stats.Values `json:"total_healing"`
	TakenDamage    uint64       `json:"taken_damage"`
	Profession     string       `json:"profession"`
	Name           string       `json:"name"`
	FightPoint     int64        `json:"fightPoint"`
	HP             int64        `json:"hp"`
	MaxHP          int64        `json:"max_hp"`
	DeadCount      int          `json:"dead_count"`
}

// PlayerSnapshot is a qualifying player's contribution to a session.
type PlayerSnapshot struct {
	UID          uint64  `json:"uid"`
	Name         string  `json:"name"`
	Profession   string  `json:"profession"`
	FightPoint   int64   `json:"fight_point"`
	TotalDamage  uint64  `json:"total_damage"`
	TotalHealing uint64  `json:"total_healing"`
	TakenDamage  uint64  `json:"taken_damage"`
	DPS          float64 `json:"dps"`
	HPS          float64 `json:"hps"`
	DeadCount    int     `json:"dead_count"`
}

// Snapshot is the frozen state of a session at finalization.
type Snapshot struct {
	Users   map[uint64]UserSummary `json:"users"`
	Players []PlayerSnapshot       `json:"players"`
}

// Record is a finalized session.
type Record struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at"`
	ReasonStart  Reason    `json:"reason_start"`
	ReasonEnd    Reason    `json:"reason_end"`
	InstanceID   uint64    `json:"instance_id"`
	FromInstance uint64    `json:"from_instance"`
	Seq          uint64    `json:"seq"`
	PartySize    int       `json:"party_size"`
	Snapshot     Snapshot  `json:"snapshot"`
}

// Duration returns the wall-clock length of the session.
func (r *Record) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// Summary is the list view of a stored session.
type Summary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
	ReasonStart Reason    `json:"reason_start"`
	ReasonEnd   Reason    `json:"reason_end"`
	InstanceID  uint64    `json:"instance_id"`
	PartySize   int       `json:"party_size"`
}

//go:generate go tool mockgen -destination=./mocks/mock_store.go -package=mocks . Store

// Store persists finalized sessions.
type Store interface {
	AddSession(rec *Record) error
	ListSessions() ([]Summary, error)
	GetSession(id string) (*Record, error)
	DeleteSession(id string) error
	PlayerHistory(uid uint64, limit int) ([]Summary, error)
}
