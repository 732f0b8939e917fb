package state

import (
	"sort"
	"time"

	"github.com/energizer-project/combatlens/internal/gamedata"
	"github.com/energizer-project/combatlens/internal/stats"
)

// SkillReport is one skill row of a user breakdown. JSON names match the
// users/<uid>.json files written by earlier versions.
type SkillReport struct {
	DisplayName     string       `json:"displayName"`
	Type            string       `json:"type"`
	ElementType     string       `json:"elementype"`
	TotalDamage     uint64       `json:"totalDamage"`
	TotalCount      uint64       `json:"totalCount"`
	CritCount       uint64       `json:"critCount"`
	LuckyCount      uint64       `json:"luckyCount"`
	CauseLuckyCount uint64       `json:"causeLuckyCount"`
	CritRate        float64      `json:"critRate"`
	LuckyRate       float64      `json:"luckyRate"`
	DamageBreakdown stats.Values `json:"damageBreakdown"`
	CountBreakdown  stats.Counts `json:"countBreakdown"`
}

// UserReport is the per-user artifact and the skill breakdown served to
// readers.
type UserReport struct {
	UID        uint64                 `json:"uid"`
	Name       string                 `json:"name"`
	Profession string                 `json:"profession"`
	Skills     map[uint64]SkillReport `json:"skills"`
	Attr       map[string]int64       `json:"attr"`
}

// SessionSummary is summary.json of a session log directory.
type SessionSummary struct {
	StartTime int64  `json:"startTime"`
	EndTime   int64  `json:"endTime"`
	Duration  int64  `json:"duration"`
	UserCount int    `json:"userCount"`
	Version   string `json:"version"`
}

// EnemyInfo is one row of the enemy cache.
type EnemyInfo struct {
	Name  string `json:"name,omitempty"`
	HP    int64  `json:"hp,omitempty"`
	MaxHP int64  `json:"max_hp,omitempty"`
}

// SkillNamer resolves skill ids for reports.
type SkillNamer interface {
	SkillName(id uint64) string
}

func (u *User) report(names SkillNamer) UserReport {
	r := UserReport{
		UID:        u.UID,
		Name:       u.Name,
		Profession: u.DisplayProfession(),
		Skills:     make(map[uint64]SkillReport, len(u.skills)),
		Attr:       make(map[string]int64, len(u.Attrs)),
	}
	for k, v := range u.Attrs {
		r.Attr[k] = v
	}

	for key, s := range u.skills {
		values, counts := s.agg.Values(), s.agg.Counts()
		row := SkillReport{
			Type:            "damage",
			ElementType:     s.element,
			TotalDamage:     values.Total,
			TotalCount:      counts.Total,
			CritCount:       counts.Crits(),
			LuckyCount:      counts.Luckies(),
			CauseLuckyCount: s.causeLucky,
			DamageBreakdown: values,
			CountBreakdown:  counts,
		}
		if s.heal {
			row.Type = "healing"
		}
		if names != nil {
			row.DisplayName = names.SkillName(gamedata.RawSkillID(key))
		}
		if counts.Total > 0 {
			row.CritRate = float64(row.CritCount) / float64(counts.Total)
			row.LuckyRate = float64(row.LuckyCount) / float64(counts.Total)
		}
		r.Skills[key] = row
	}
	return r
}

func sortedUIDs(users map[uint64]*User) []uint64 {
	ids := make([]uint64, 0, len(users))
	for uid := range users {
		ids = append(ids, uid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
