package delta

import (
	"strconv"
	"strings"

	"github.com/energizer-project/combatlens/internal/gamedata"
	"github.com/energizer-project/combatlens/internal/schema"
)

// TypeFlag bits of SyncDamageInfo.
const (
	flagCrit       = 1 << 0
	flagCauseLucky = 1 << 2
)

// Event is one damage or heal record of a delta.
type Event struct {
	TargetUID   uint64
	Target      Kind
	AttackerUID uint64
	Attacker    Kind
	Source      int64
	SkillID     uint64
	Amount      uint64
	HpLessen    uint64
	Element     string
	Heal        bool
	Crit        bool
	Lucky       bool
	CauseLucky  bool
	Dead        bool
}

// parseDamage extracts the event of one SyncDamageInfo aimed at
// targetUUID. Zero-magnitude records are reported as !ok.
func parseDamage(targetUUID uint64, d schema.View) (Event, bool) {
	amount := d.Uint("Value")
	if !d.Has("Value") {
		amount = d.Uint("LuckyValue")
	}
	if amount == 0 {
		return Event{}, false
	}

	attacker := d.Uint("TopSummonerId")
	if attacker == 0 {
		attacker = d.Uint("AttackerUuid")
	}
	flag := d.Int("TypeFlag")

	return Event{
		TargetUID:   UID(targetUUID),
		Target:      Classify(targetUUID, 0, false),
		AttackerUID: UID(attacker),
		Attacker:    Classify(attacker, 0, false),
		Source:      d.Int("DamageSource"),
		SkillID:     d.Uint("OwnerId"),
		Amount:      amount,
		HpLessen:    d.Uint("HpLessenValue"),
		Element:     gamedata.ElementName(d.Int("Property")),
		Heal:        d.Int("Type") == schema.DamageHeal,
		Crit:        flag&flagCrit != 0,
		Lucky:       d.Has("LuckyValue"),
		CauseLucky:  flag&flagCauseLucky != 0,
		Dead:        d.Bool("IsDead"),
	}, true
}

// apply credits an event to the store and writes its combat log line.
func (in *Interpreter) apply(ev Event) {
	if ev.Target == KindPlayer {
		if ev.Heal {
			healer := uint64(0)
			if ev.Attacker == KindPlayer {
				healer = ev.AttackerUID
			}
			in.store.AddHealing(healer, ev.SkillID, ev.Element, ev.Amount, ev.Crit, ev.Lucky, ev.CauseLucky, ev.TargetUID)
		} else {
			in.store.AddTakenDamage(ev.TargetUID, ev.Amount, ev.Dead)
		}
	} else {
		if !ev.Heal && ev.Attacker == KindPlayer {
			in.store.AddDamage(ev.AttackerUID, ev.SkillID, ev.Element, ev.Amount, ev.Crit, ev.Lucky, ev.CauseLucky, ev.HpLessen, ev.TargetUID)
		}
		if ev.Dead {
			in.store.DeleteEnemy(ev.TargetUID)
		}
	}

	in.events.Add(1)
	in.store.AddLog(in.logLine(ev))
}

func (in *Interpreter) label(uid uint64, k Kind) string {
	id := strconv.FormatUint(uid, 10)
	var name string
	var ok bool
	switch k {
	case KindPlayer:
		name, ok = in.store.UserName(uid)
	case KindMonster:
		name, ok = in.store.EnemyName(uid)
	}
	if !ok || name == "" {
		return "#" + id + "(" + k.String() + ")"
	}
	return name + "#" + id + "(" + k.String() + ")"
}

// logLine renders an event as
// [DMG] DS: 0 SRC: Name#1(player) TGT: #2(enemy) ID: 1241 VAL: 100 HPLSN: 90 ELEM: fire EXT: Crit|Lucky
func (in *Interpreter) logLine(ev Event) string {
	kind := "DMG"
	if ev.Heal {
		kind = "HEAL"
	}

	var ext []string
	if ev.Crit {
		ext = append(ext, "Crit")
	}
	if ev.Lucky {
		ext = append(ext, "Lucky")
	}
	if ev.CauseLucky {
		ext = append(ext, "CauseLucky")
	}
	if ev.Dead {
		ext = append(ext, "Dead")
	}
	if len(ext) == 0 {
		ext = append(ext, "Normal")
	}

	var b strings.Builder
	b.WriteString("[" + kind + "]")
	b.WriteString(" DS: " + strconv.FormatInt(ev.Source, 10))
	b.WriteString(" SRC: " + in.label(ev.AttackerUID, ev.Attacker))
	b.WriteString(" TGT: " + in.label(ev.TargetUID, ev.Target))
	b.WriteString(" ID: " + strconv.FormatUint(ev.SkillID, 10))
	b.WriteString(" VAL: " + strconv.FormatUint(ev.Amount, 10))
	b.WriteString(" HPLSN: " + strconv.FormatUint(ev.HpLessen, 10))
	b.WriteString(" ELEM: " + ev.Element)
	b.WriteString(" EXT: " + strings.Join(ext, "|"))
	return b.String()
}
