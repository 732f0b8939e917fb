package delta

import (
	"math"

	"github.com/energizer-project/combatlens/internal/gamedata"
	"github.com/energizer-project/combatlens/internal/modules"
	"github.com/energizer-project/combatlens/internal/schema"
	"github.com/energizer-project/combatlens/internal/state"
)

// disappearDead is EDisappearType.EDisappearDead.
const disappearDead = 1

// isWipe reports whether a near-entities sync removed most of the world.
func (in *Interpreter) isWipe(appeared, disappeared int) bool {
	if disappeared == 0 {
		return false
	}
	need := math.Max(float64(in.opts.WipeMin), in.opts.WipeRatio*float64(appeared+disappeared))
	return float64(disappeared) >= need
}

func (in *Interpreter) nearEntities(v schema.View) {
	appear := v.List("Appear")
	disappear := v.List("Disappear")
	local := in.tracker.LocalPlayer()

	in.tracker.ObservePopulation(len(appear) - len(disappear))
	if in.isWipe(len(appear), len(disappear)) {
		in.wipes.Add(1)
		in.logger.Debug().
			Int("appeared", len(appear)).
			Int("disappeared", len(disappear)).
			Msg("aoi wipe")
		in.tracker.ObserveAOIWipe()
	}

	for _, d := range disappear {
		uuid := d.Uint("Uuid")
		if uuid == 0 {
			continue
		}
		if uuid == local {
			in.tracker.SelfDisappeared()
			continue
		}
		if IsMonster(uuid) && d.Int("Type") == disappearDead {
			in.store.SetEnemyHP(UID(uuid), 0)
			in.store.DeleteEnemy(UID(uuid))
		}
	}

	selfAppeared := false
	for _, e := range appear {
		uuid := e.Uint("Uuid")
		if uuid == 0 {
			continue
		}
		if uuid == local {
			selfAppeared = true
		}
		attrs := e.Msg("Attrs")
		if !attrs.Valid() {
			continue
		}
		switch Classify(uuid, e.Int("EntType"), e.Has("EntType")) {
		case KindPlayer:
			in.playerAttrs(UID(uuid), attrs.List("Attrs"))
		case KindMonster:
			in.enemyAttrs(UID(uuid), attrs.List("Attrs"))
		}
	}
	if selfAppeared {
		in.tracker.SelfAppeared()
	}
}

// containerData applies a full sync of the local character.
func (in *Interpreter) containerData(v schema.View) {
	vd := v.Msg("VData")
	if !vd.Valid() {
		return
	}
	uid := vd.Uint("CharId")
	if uid == 0 {
		return
	}
	if in.tracker.LocalPlayer() == 0 {
		in.tracker.SetLocalPlayer(PlayerUUID(uid))
	}

	if base := vd.Msg("CharBase"); base.Valid() {
		if name := base.String("Name"); name != "" {
			in.store.SetName(uid, name)
		}
		if fp := base.Int("FightPoint"); fp > 0 {
			in.store.SetFightPoint(uid, fp)
		}
	}
	if lvl := vd.Msg("RoleLevel"); lvl.Valid() {
		if l := lvl.Int("Level"); l > 0 {
			in.store.SetAttr(uid, state.AttrLevel, l)
		}
	}
	if attr := vd.Msg("Attr"); attr.Valid() {
		if attr.Has("CurHp") {
			in.store.SetAttr(uid, state.AttrHP, attr.Int("CurHp"))
		}
		if maxHP := attr.Int("MaxHp"); maxHP > 0 {
			in.store.SetAttr(uid, state.AttrMaxHP, maxHP)
		}
	}
	if prof := vd.Msg("ProfessionList"); prof.Valid() {
		if name, ok := gamedata.ProfessionName(prof.Int("CurProfessionId")); ok {
			in.store.SetProfession(uid, name)
		}
	}
	if scene := vd.Msg("SceneData"); scene.Valid() {
		if id := scene.Uint("MapId"); id != 0 {
			in.tracker.ObserveScene(id)
		}
	}
	if mod := vd.Msg("Mod"); mod.Valid() && in.modules != nil {
		var slots []modules.Slot
		for _, s := range mod.List("Slots") {
			slots = append(slots, modules.Slot{
				SlotID:   int32(s.Int("SlotId")),
				ItemUUID: s.Int("ItemUuid"),
				ConfigID: int32(s.Int("ConfigId")),
				Level:    int32(s.Int("Level")),
			})
		}
		in.modules.Update(uid, slots)
	}
}
