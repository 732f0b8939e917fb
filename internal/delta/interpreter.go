// Package delta interprets game-world notifications: entity appearance,
// container syncs and the combat deltas carried by AOI updates. It turns
// them into store updates, tracker signals and combat log lines.
package delta

import (
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/energizer-project/combatlens/internal/modules"
	"github.com/energizer-project/combatlens/internal/protocol"
	"github.com/energizer-project/combatlens/internal/schema"
	"github.com/energizer-project/combatlens/internal/tracker"
	"github.com/energizer-project/combatlens/internal/util"
)

// Store receives everything the interpreter extracts.
type Store interface {
	AddDamage(uid, skillID uint64, element string, damage uint64, isCrit, isLucky, isCauseLucky bool, hpLessen, targetUID uint64)
	AddHealing(uid, skillID uint64, element string, healing uint64, isCrit, isLucky, isCauseLucky bool, targetUID uint64)
	AddTakenDamage(uid, damage uint64, isDead bool)
	SetName(uid uint64, name string)
	SetProfession(uid uint64, profession string)
	SetFightPoint(uid uint64, fp int64)
	SetAttr(uid uint64, key string, value int64)
	SetEnemyName(uid uint64, name string)
	SetEnemyHP(uid uint64, hp int64)
	SetEnemyMaxHP(uid uint64, maxHP int64)
	DeleteEnemy(uid uint64)
	UserName(uid uint64) (string, bool)
	EnemyName(uid uint64) (string, bool)
	AddLog(line string)
}

// Tracker receives instance signals.
type Tracker interface {
	SetLocalPlayer(uuid uint64)
	LocalPlayer() uint64
	ObserveScene(id uint64)
	ObserveProbe(id uint64, c tracker.Confidence)
	ObserveAOIWipe()
	ObservePopulation(delta int)
	SelfAppeared()
	SelfDisappeared()
}

// Names resolves monster template ids.
type Names interface {
	MonsterName(id uint64) (string, bool)
}

// ModuleSink receives module loadouts from full container syncs.
type ModuleSink interface {
	Update(uid uint64, slots []modules.Slot)
}

// Options configures an Interpreter.
type Options struct {
	Names   Names
	Modules ModuleSink

	// AOI wipe: disappeared >= max(WipeMin, WipeRatio*(appeared+disappeared)).
	WipeMin   int
	WipeRatio float64
}

// candidates lists the schema names tried for each method, newest first.
var candidates = map[uint32][]string{
	protocol.MethodSyncNearEntities:       {"zproto.WorldNtf.SyncNearEntities", schema.FullName("SyncNearEntities")},
	protocol.MethodSyncContainerData:      {"zproto.WorldNtf.SyncContainerData", schema.FullName("SyncContainerData")},
	protocol.MethodSyncContainerDirtyData: {"zproto.WorldNtf.SyncContainerDirtyData", schema.FullName("SyncContainerDirtyData")},
	protocol.MethodSyncNearDeltaInfo:      {"zproto.WorldNtf.SyncNearDeltaInfo", schema.FullName("SyncNearDeltaInfo")},
	protocol.MethodSyncToMeDeltaInfo:      {"zproto.WorldNtf.SyncToMeDeltaInfo", schema.FullName("SyncToMeDeltaInfo")},
}

// Stats counts interpreter activity.
type Stats struct {
	Events   uint64 `json:"events"`
	Wipes    uint64 `json:"aoi_wipes"`
	Unknown  uint64 `json:"unknown_methods"`
	Rejected uint64 `json:"rejected_payloads"`
}

// Interpreter implements protocol.NotifyHandler. It is driven by a single
// decode goroutine.
type Interpreter struct {
	registry *schema.Registry
	store    Store
	tracker  Tracker
	names    Names
	modules  ModuleSink
	opts     Options
	logger   zerolog.Logger

	events   atomic.Uint64
	wipes    atomic.Uint64
	unknown  atomic.Uint64
	rejected atomic.Uint64
}

// New creates an interpreter.
func New(registry *schema.Registry, store Store, tr Tracker, opts Options) *Interpreter {
	if opts.WipeMin <= 0 {
		opts.WipeMin = 10
	}
	if opts.WipeRatio <= 0 {
		opts.WipeRatio = 0.8
	}
	return &Interpreter{
		registry: registry,
		store:    store,
		tracker:  tr,
		names:    opts.Names,
		modules:  opts.Modules,
		opts:     opts,
		logger:   util.ComponentLogger("delta"),
	}
}

// LocalPlayer implements protocol.PlayerContext.
func (in *Interpreter) LocalPlayer() uint64 {
	return in.tracker.LocalPlayer()
}

// HandleNotify implements protocol.NotifyHandler.
func (in *Interpreter) HandleNotify(n *protocol.Notify) {
	switch n.MethodID {
	case protocol.MethodSyncNearEntities:
		if v, ok := in.decode(n); ok {
			in.nearEntities(v)
		}
	case protocol.MethodSyncContainerData:
		if v, ok := in.decode(n); ok {
			in.containerData(v)
		}
	case protocol.MethodSyncContainerDirtyData:
		in.dirtyData(n)
	case protocol.MethodSyncNearDeltaInfo:
		if v, ok := in.decode(n); ok {
			for _, d := range v.List("DeltaInfos") {
				in.aoiDelta(d)
			}
		}
	case protocol.MethodSyncToMeDeltaInfo:
		if v, ok := in.decode(n); ok {
			in.toMeDelta(v)
		}
	case protocol.MethodSyncServerTime:
	default:
		in.unknown.Add(1)
		in.logger.Trace().Uint32("method", n.MethodID).Int("len", len(n.Body)).Msg("unhandled method")
	}
}

func (in *Interpreter) decode(n *protocol.Notify) (schema.View, bool) {
	v, ok := in.registry.Decode(n.Body, candidates[n.MethodID]...)
	if !ok {
		in.rejected.Add(1)
	}
	return v, ok
}

func (in *Interpreter) toMeDelta(v schema.View) {
	info := v.Msg("DeltaInfo")
	if !info.Valid() {
		return
	}
	if uuid := info.Uint("Uuid"); uuid != 0 {
		in.tracker.SetLocalPlayer(uuid)
	}
	if base := info.Msg("BaseDelta"); base.Valid() {
		in.aoiDelta(base)
	}
}

// aoiDelta handles the attributes and skill effects of one entity.
func (in *Interpreter) aoiDelta(d schema.View) {
	uuid := d.Uint("Uuid")
	if uuid == 0 {
		return
	}
	kind := Classify(uuid, 0, false)
	uid := UID(uuid)

	if attrs := d.Msg("Attrs"); attrs.Valid() {
		switch kind {
		case KindPlayer:
			in.playerAttrs(uid, attrs.List("Attrs"))
		case KindMonster:
			in.enemyAttrs(uid, attrs.List("Attrs"))
		}
	}

	effects := d.Msg("SkillEffects")
	if !effects.Valid() {
		return
	}
	for _, dmg := range effects.List("Damages") {
		ev, ok := parseDamage(uuid, dmg)
		if !ok {
			continue
		}
		in.apply(ev)
	}
}

func (in *Interpreter) dirtyData(n *protocol.Notify) {
	local := in.tracker.LocalPlayer()
	if local == 0 {
		in.logger.Trace().Msg("dirty data before local player is known")
		return
	}
	v, ok := in.decode(n)
	if !ok {
		return
	}
	blob := v.Msg("VData").Bytes("Buffer")
	if len(blob) == 0 {
		return
	}

	in.applyDirty(UID(local), blob)
	if id, conf, ok := probeScene(blob); ok {
		in.logger.Debug().Uint64("scene", id).Bool("high", conf == tracker.ConfidenceHigh).Msg("scene probe hit")
		in.tracker.ObserveProbe(id, conf)
	}
}

// Stats returns the current counters.
func (in *Interpreter) Stats() Stats {
	return Stats{
		Events:   in.events.Load(),
		Wipes:    in.wipes.Load(),
		Unknown:  in.unknown.Load(),
		Rejected: in.rejected.Load(),
	}
}
