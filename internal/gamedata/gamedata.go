// Package gamedata holds the static lookup tables of the game: skill,
// monster and scene names loaded from JSON, plus the built-in profession
// and specialization tables.
package gamedata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"
)

const (
	SkillNamesFile   = "skill_names.json"
	MonsterNamesFile = "monster_names.json"
	SceneNamesFile   = "scene_names.json"
)

// Tables resolves numeric ids to display names. Missing entries fall back
// to the raw id.
type Tables struct {
	skills   map[uint64]string
	monsters map[uint64]string
	scenes   map[uint64]string
}

// New returns empty tables.
func New() *Tables {
	return &Tables{
		skills:   make(map[uint64]string),
		monsters: make(map[uint64]string),
		scenes:   make(map[uint64]string),
	}
}

// Load reads the name tables from dir. Absent files are not an error.
func Load(dir string) (*Tables, error) {
	t := New()
	for file, dst := range map[string]map[uint64]string{
		SkillNamesFile:   t.skills,
		MonsterNamesFile: t.monsters,
		SceneNamesFile:   t.scenes,
	} {
		n, err := loadTable(filepath.Join(dir, file), dst)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("file", file).Int("entries", n).Msg("name table loaded")
	}
	return t, nil
}

// loadTable reads a {"id": "name"} JSON object.
func loadTable(path string, dst map[uint64]string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}

	raw := make(map[string]string)
	if err := json.Unmarshal(data, &raw); err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	for k, v := range raw {
		id, err := strconv.ParseUint(k, 10, 64)
		if err != nil {
			log.Warn().Str("file", path).Str("key", k).Msg("skipping non-numeric id")
			continue
		}
		dst[id] = v
	}
	return len(raw), nil
}

// SetSkill registers a skill name.
func (t *Tables) SetSkill(id uint64, name string) { t.skills[id] = name }

// SetMonster registers a monster name.
func (t *Tables) SetMonster(id uint64, name string) { t.monsters[id] = name }

// SetScene registers a scene name.
func (t *Tables) SetScene(id uint64, name string) { t.scenes[id] = name }

// SkillName returns the display name of a skill. Healing keys carry an
// offset and are reduced back to the raw id first.
func (t *Tables) SkillName(id uint64) string {
	raw := RawSkillID(id)
	if name, ok := t.skills[raw]; ok {
		return name
	}
	return strconv.FormatUint(raw, 10)
}

// MonsterName returns the monster template name and whether it was known.
func (t *Tables) MonsterName(id uint64) (string, bool) {
	name, ok := t.monsters[id]
	return name, ok
}

// SceneName returns the display name of an instance or map, falling back
// to "Instance {id}".
func (t *Tables) SceneName(id uint64) string {
	if name, ok := t.scenes[id]; ok {
		return name
	}
	return fmt.Sprintf("Instance %d", id)
}
