// Package modules keeps the module (equipment) loadout last seen for each
// player. Loadouts arrive with full container syncs.
package modules

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/energizer-project/combatlens/internal/util"
)

// Slot is one equipped module.
type Slot struct {
	SlotID   int32 `json:"slotId"`
	ItemUUID int64 `json:"itemUuid"`
	ConfigID int32 `json:"configId"`
	Level    int32 `json:"level"`
}

// Loadout is the set of modules of one player.
type Loadout struct {
	UID       uint64    `json:"uid"`
	Slots     []Slot    `json:"slots"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Collector stores loadouts by uid. It is safe for concurrent use.
type Collector struct {
	mu       sync.RWMutex
	loadouts map[uint64]Loadout
	now      func() time.Time
	logger   zerolog.Logger
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		loadouts: make(map[uint64]Loadout),
		now:      time.Now,
		logger:   util.ComponentLogger("modules"),
	}
}

// Update replaces the loadout of uid. Slots are kept ordered by slot id.
func (c *Collector) Update(uid uint64, slots []Slot) {
	if uid == 0 {
		return
	}
	sorted := append([]Slot(nil), slots...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SlotID < sorted[j].SlotID })

	c.mu.Lock()
	c.loadouts[uid] = Loadout{UID: uid, Slots: sorted, UpdatedAt: c.now()}
	c.mu.Unlock()

	c.logger.Debug().Uint64("uid", uid).Int("slots", len(sorted)).Msg("module loadout updated")
}

// Get returns the loadout of uid.
func (c *Collector) Get(uid uint64) (Loadout, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.loadouts[uid]
	if !ok {
		return Loadout{}, false
	}
	l.Slots = append([]Slot(nil), l.Slots...)
	return l, true
}

// UIDs returns every uid with a known loadout, sorted.
func (c *Collector) UIDs() []uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]uint64, 0, len(c.loadouts))
	for uid := range c.loadouts {
		out = append(out, uid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clear forgets every loadout.
func (c *Collector) Clear() {
	c.mu.Lock()
	c.loadouts = make(map[uint64]Loadout)
	c.mu.Unlock()
}
