package delta

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/energizer-project/combatlens/internal/gamedata"
	"github.com/energizer-project/combatlens/internal/schema"
	"github.com/energizer-project/combatlens/internal/state"
)

// Attribute ids found in AttrCollection.
const (
	attrName           = 0x01
	attrID             = 0x0a
	attrProfessionID   = 0xdc
	attrLevel          = 0x2710
	attrFightPoint     = 0x272e
	attrRankLevel      = 0x274c
	attrCri            = 0x2b66
	attrLucky          = 0x2b7a
	attrHP             = 0x2c2e
	attrMaxHP          = 0x2c38
	attrReductionLevel = 0x64696d
	attrElementFlag    = 0x646d6c
	attrReductionID    = 0x6f6c65
	attrEnergyFlag     = 0x543cd3c6
)

// playerIntAttrs are stored verbatim under a user attribute key.
var playerIntAttrs = map[int64]string{
	attrLevel:          state.AttrLevel,
	attrRankLevel:      state.AttrRankLevel,
	attrCri:            state.AttrCri,
	attrLucky:          state.AttrLucky,
	attrHP:             state.AttrHP,
	attrMaxHP:          state.AttrMaxHP,
	attrElementFlag:    state.AttrElementFlag,
	attrEnergyFlag:     state.AttrEnergyFlag,
	attrReductionLevel: state.AttrReductionLevel,
	attrReductionID:    state.AttrReductionID,
}

func rawString(raw []byte) (string, bool) {
	s, n := protowire.ConsumeString(raw)
	if n < 0 || s == "" {
		return "", false
	}
	return s, true
}

func rawVarint(raw []byte) (uint64, bool) {
	v, n := protowire.ConsumeVarint(raw)
	if n < 0 {
		return 0, false
	}
	return v, true
}

// rawHP reads an hp value. An empty payload means the entity is at zero.
func rawHP(raw []byte) (int64, bool) {
	if len(raw) == 0 {
		return 0, true
	}
	v, ok := rawVarint(raw)
	return int64(v), ok
}

func (in *Interpreter) playerAttrs(uid uint64, attrs []schema.View) {
	for _, a := range attrs {
		if !a.Has("Id") {
			continue
		}
		id, raw := a.Int("Id"), a.Bytes("RawData")

		switch id {
		case attrName:
			if name, ok := rawString(raw); ok {
				in.store.SetName(uid, name)
			}
		case attrProfessionID:
			v, ok := rawVarint(raw)
			if !ok {
				continue
			}
			if name, ok := gamedata.ProfessionName(int64(v)); ok {
				in.store.SetProfession(uid, name)
			} else {
				in.logger.Debug().Uint64("uid", uid).Uint64("profession", v).Msg("unknown profession id")
			}
		case attrFightPoint:
			if v, ok := rawVarint(raw); ok {
				in.store.SetFightPoint(uid, int64(v))
			}
		case attrHP:
			if v, ok := rawHP(raw); ok {
				in.store.SetAttr(uid, state.AttrHP, v)
			}
		default:
			key, known := playerIntAttrs[id]
			if !known {
				continue
			}
			if v, ok := rawVarint(raw); ok {
				in.store.SetAttr(uid, key, int64(v))
			}
		}
	}
}

func (in *Interpreter) enemyAttrs(uid uint64, attrs []schema.View) {
	for _, a := range attrs {
		if !a.Has("Id") {
			continue
		}
		raw := a.Bytes("RawData")

		switch a.Int("Id") {
		case attrName:
			if name, ok := rawString(raw); ok {
				in.store.SetEnemyName(uid, name)
			}
		case attrID:
			v, ok := rawVarint(raw)
			if !ok || in.names == nil {
				continue
			}
			if name, ok := in.names.MonsterName(v); ok {
				in.store.SetEnemyName(uid, name)
			}
		case attrHP:
			if v, ok := rawHP(raw); ok {
				in.store.SetEnemyHP(uid, v)
			}
		case attrMaxHP:
			if v, ok := rawVarint(raw); ok {
				in.store.SetEnemyMaxHP(uid, int64(v))
			}
		}
	}
}
