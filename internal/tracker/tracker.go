// Package tracker decides when the local player has moved to another
// instance. It only sees weak signals (scene ids in sync data, a byte-level
// probe, AOI wipes) and debounces them into single session rollovers.
package tracker

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/energizer-project/combatlens/internal/session"
	"github.com/energizer-project/combatlens/internal/util"
)

// Sink receives instance decisions. The state store implements it.
type Sink interface {
	OnInstanceChanged(seq uint64, reason session.Reason, toInstance uint64, extra map[string]interface{})
	TagInstance(instanceID uint64)
}

// State of the tracker.
type State int

const (
	StateUnknown State = iota
	StateTracking
)

func (s State) String() string {
	if s == StateTracking {
		return "tracking"
	}
	return "unknown"
}

// Confidence of a probe hit.
type Confidence int

const (
	ConfidenceLow Confidence = iota
	ConfidenceHigh
)

// Signal sources reported in the rollover extra map.
const (
	SourceScene = "scene"
	SourceProbe = "probe"
	SourceWipe  = "aoi_wipe"
)

// Config tunes the tracker.
type Config struct {
	Debounce   time.Duration
	WipeWindow time.Duration
	Now        func() time.Time
}

// Status is a point-in-time view of the tracker.
type Status struct {
	State       string `json:"state"`
	LocalPlayer uint64 `json:"localPlayer"`
	Instance    uint64 `json:"instance"`
	Seq         uint64 `json:"seq"`
	Pending     uint64 `json:"pending,omitempty"`
	Hint        uint64 `json:"hint,omitempty"`
	Population  int64  `json:"population"`
}

// Tracker is the instance state machine.
type Tracker struct {
	mu     sync.Mutex
	sink   Sink
	cfg    Config
	logger zerolog.Logger

	state    State
	player   uint64
	instance uint64
	seq      uint64

	pending       *time.Timer
	pendingID     uint64
	pendingSource string
	gen           uint64

	hint       uint64
	wipeAt     time.Time
	population int64
}

// New creates a tracker reporting to sink.
func New(sink Sink, cfg Config) *Tracker {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.WipeWindow <= 0 {
		cfg.WipeWindow = 10 * time.Second
	}
	return &Tracker{
		sink:   sink,
		cfg:    cfg,
		logger: util.ComponentLogger("tracker"),
	}
}

// SetLocalPlayer records the uuid of the local player.
func (t *Tracker) SetLocalPlayer(uuid uint64) {
	if uuid == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.player != uuid {
		t.logger.Info().Uint64("uuid", uuid).Msg("local player identified")
	}
	t.player = uuid
	t.state = StateTracking
}

// LocalPlayer returns the uuid of the local player, 0 if unknown.
func (t *Tracker) LocalPlayer() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.player
}

// ObserveScene reports a scene id read from full sync data.
func (t *Tracker) ObserveScene(id uint64) {
	t.candidate(id, SourceScene)
}

// ObserveProbe reports a scene-like id found by the dirty-data probe. Only
// high-confidence hits can move the tracker; the rest are kept as hints.
func (t *Tracker) ObserveProbe(id uint64, c Confidence) {
	if c == ConfidenceHigh {
		t.candidate(id, SourceProbe)
		return
	}
	if id == 0 {
		return
	}
	t.mu.Lock()
	if id != t.instance {
		t.hint = id
	}
	t.mu.Unlock()
}

// ObserveAOIWipe reports that most of the visible world just vanished.
func (t *Tracker) ObserveAOIWipe() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.wipeAt = t.cfg.Now()
	t.logger.Debug().Msg("aoi wipe observed")
}

// ObservePopulation reports the net appear/disappear balance of one sync.
func (t *Tracker) ObservePopulation(delta int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.population += int64(delta)
}

// SelfDisappeared reports that the local player left its own AOI.
func (t *Tracker) SelfDisappeared() {
	t.logger.Trace().Msg("local player left aoi")
}

// SelfAppeared reports that the local player entered its own AOI. Right
// after a wipe this means the player loaded into a new area.
func (t *Tracker) SelfAppeared() {
	t.mu.Lock()
	if t.wipeAt.IsZero() || t.cfg.Now().Sub(t.wipeAt) > t.cfg.WipeWindow {
		t.wipeAt = time.Time{}
		t.mu.Unlock()
		return
	}
	t.wipeAt = time.Time{}
	t.population = 0
	target := t.hint
	t.mu.Unlock()

	t.logger.Debug().Uint64("hint", target).Msg("aoi wipe followed by self appear")
	t.candidate(target, SourceWipe)
}

// candidate proposes a move to id. The very first id is adopted without a
// rollover. Wipe-driven candidates may carry id 0 (destination unknown).
// The hint only ever holds an id other than the current instance.
func (t *Tracker) candidate(id uint64, source string) {
	t.mu.Lock()

	if id == 0 && source != SourceWipe {
		t.mu.Unlock()
		return
	}

	if t.instance == 0 && id != 0 {
		t.cancelLocked()
		t.instance = id
		t.hint = 0
		t.state = StateTracking
		t.mu.Unlock()
		t.logger.Info().Uint64("instance", id).Str("source", source).Msg("instance identified")
		t.sink.TagInstance(id)
		return
	}

	if id == t.instance {
		// Corroborates where we already are.
		t.cancelLocked()
		t.hint = 0
		t.mu.Unlock()
		return
	}
	if id != 0 {
		t.hint = id
	}
	if t.pending != nil && t.pendingID == id {
		t.mu.Unlock()
		return
	}

	t.cancelLocked()
	t.gen++
	gen := t.gen
	t.pendingID = id
	t.pendingSource = source

	if t.cfg.Debounce <= 0 {
		t.mu.Unlock()
		t.fire(gen)
		return
	}
	t.pending = time.AfterFunc(t.cfg.Debounce, func() { t.fire(gen) })
	t.mu.Unlock()
}

func (t *Tracker) cancelLocked() {
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
	t.pendingID = 0
	t.pendingSource = ""
	t.gen++
}

func (t *Tracker) fire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.pendingID == t.instance {
		t.mu.Unlock()
		return
	}
	from, to, source := t.instance, t.pendingID, t.pendingSource
	t.instance = to
	if t.hint == to {
		t.hint = 0
	}
	if to != 0 {
		t.state = StateTracking
	}
	t.seq++
	seq := t.seq
	t.pending = nil
	t.pendingID = 0
	t.pendingSource = ""
	t.mu.Unlock()

	t.logger.Info().
		Uint64("from", from).
		Uint64("to", to).
		Uint64("seq", seq).
		Str("source", source).
		Msg("instance changed")

	t.sink.OnInstanceChanged(seq, session.ReasonInstanceChange, to, map[string]interface{}{
		"source":       source,
		"fromInstance": from,
	})
}

// Stop cancels any pending transition.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
}

// Status returns a snapshot of the tracker.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Status{
		State:       t.state.String(),
		LocalPlayer: t.player,
		Instance:    t.instance,
		Seq:         t.seq,
		Pending:     t.pendingID,
		Hint:        t.hint,
		Population:  t.population,
	}
}
