package state

import (
	"time"

	"github.com/energizer-project/combatlens/internal/gamedata"
	"github.com/energizer-project/combatlens/internal/session"
	"github.com/energizer-project/combatlens/internal/stats"
)

// Attribute keys kept in User.Attrs.
const (
	AttrHP             = "hp"
	AttrMaxHP          = "max_hp"
	AttrLevel          = "level"
	AttrRankLevel      = "rank_level"
	AttrCri            = "cri"
	AttrLucky          = "lucky"
	AttrElementFlag    = "element_flag"
	AttrEnergyFlag     = "energy_flag"
	AttrReductionLevel = "reduction_level"
	AttrReductionID    = "reduction_id"
)

// skillStats is the per-skill breakdown of one user.
type skillStats struct {
	agg        *stats.Aggregate
	heal       bool
	element    string
	causeLucky uint64
}

// User is the live record of one player. All access goes through Store.
type User struct {
	UID           uint64
	Name          string
	Profession    string
	SubProfession string
	FightPoint    int64
	TakenDamage   uint64
	DeadCount     int
	Attrs         map[string]int64
	LastSeen      time.Time

	damage   *stats.Aggregate
	healing  *stats.Aggregate
	skills   map[uint64]*skillStats
	subUsage map[string]int
	horizon  time.Duration
}

func newUser(uid uint64, horizon time.Duration, now time.Time) *User {
	return &User{
		UID:      uid,
		Attrs:    make(map[string]int64),
		LastSeen: now,
		damage:   stats.New(horizon),
		healing:  stats.New(horizon),
		skills:   make(map[uint64]*skillStats),
		subUsage: make(map[string]int),
		horizon:  horizon,
	}
}

func (u *User) skill(key uint64, heal bool, element string) *skillStats {
	s, ok := u.skills[key]
	if !ok {
		s = &skillStats{agg: stats.New(u.horizon), heal: heal, element: element}
		u.skills[key] = s
	}
	return s
}

// setProfession reports whether the profession changed. A new class
// invalidates the specialization evidence gathered so far.
func (u *User) setProfession(p string) bool {
	if p == "" || p == u.Profession {
		return false
	}
	u.Profession = p
	u.SubProfession = ""
	u.subUsage = make(map[string]int)
	return true
}

// observeSkill feeds one cast into specialization inference. A candidate
// only displaces the current specialization once it has been seen at least
// ratio times as often.
func (u *User) observeSkill(skillID uint64, ratio float64) {
	candidate, ok := gamedata.Specialization(skillID)
	if !ok || u.Profession == "" {
		return
	}

	u.subUsage[candidate]++
	if u.SubProfession == "" {
		u.SubProfession = candidate
		return
	}
	if candidate == u.SubProfession {
		return
	}
	if float64(u.subUsage[candidate]) >= ratio*float64(u.subUsage[u.SubProfession]) {
		u.SubProfession = candidate
	}
}

// DisplayProfession joins class and specialization the way the overlay
// shows them.
func (u *User) DisplayProfession() string {
	if u.SubProfession == "" {
		return u.Profession
	}
	return u.Profession + "-" + u.SubProfession
}

func (u *User) updateRealtime(now time.Time) {
	u.damage.UpdateRealtime(now)
	u.healing.UpdateRealtime(now)
}

func (u *User) summary() session.UserSummary {
	return session.UserSummary{
		RealtimeDPS:    u.damage.Rate(),
		RealtimeDPSMax: u.damage.MaxRate(),
		TotalDPS:       u.damage.TotalPerSecond(),
		TotalDamage:    u.damage.Values(),
		TotalCount:     u.damage.Counts(),
		RealtimeHPS:    u.healing.Rate(),
		RealtimeHPSMax: u.healing.MaxRate(),
		TotalHPS:       u.healing.TotalPerSecond(),
		TotalHealing:   u.healing.Values(),
		TakenDamage:    u.TakenDamage,
		Profession:     u.DisplayProfession(),
		Name:           u.Name,
		FightPoint:     u.FightPoint,
		HP:             u.Attrs[AttrHP],
		MaxHP:          u.Attrs[AttrMaxHP],
		DeadCount:      u.DeadCount,
	}
}

func (u *User) player() session.PlayerSnapshot {
	return session.PlayerSnapshot{
		UID:          u.UID,
		Name:         u.Name,
		Profession:   u.DisplayProfession(),
		FightPoint:   u.FightPoint,
		TotalDamage:  u.damage.Total(),
		TotalHealing: u.healing.Total(),
		TakenDamage:  u.TakenDamage,
		DPS:          u.damage.TotalPerSecond(),
		HPS:          u.healing.TotalPerSecond(),
		DeadCount:    u.DeadCount,
	}
}

// qualifies reports whether the user contributed enough to make a session
// worth keeping.
func (u *User) qualifies(min uint64) bool {
	return u.damage.Total() > min || u.healing.Total() > min
}

func (u *User) active() bool {
	return u.damage.Counts().Total > 0 || u.healing.Counts().Total > 0 || u.TakenDamage > 0
}
