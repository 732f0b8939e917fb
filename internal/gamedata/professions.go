package gamedata

// HealSkillOffset separates healing skill keys from damage skill keys that
// share the same raw id.
const HealSkillOffset = 1_000_000_000

// HealSkillKey returns the storage key of a healing skill.
func HealSkillKey(skillID uint64) uint64 { return skillID + HealSkillOffset }

// RawSkillID reverses HealSkillKey. Damage keys are returned unchanged.
func RawSkillID(key uint64) uint64 { return key % HealSkillOffset }

var professions = map[int64]string{
	1:  "Stormblade",
	2:  "Frost Mage",
	3:  "Flame Berserker",
	4:  "Wind Knight",
	5:  "Verdant Oracle",
	8:  "Thunder Gunner",
	9:  "Heavy Guardian",
	10: "Spirit Dancer",
	11: "Marksman",
	12: "Shield Knight",
	13: "Soul Musician",
}

// ProfessionName maps a profession id to its class name.
func ProfessionName(id int64) (string, bool) {
	name, ok := professions[id]
	return name, ok
}

// specializations maps signature skills to the specialization they imply.
// Skills shared between specializations of a class are left out.
var specializations = map[uint64]string{
	1241:    "Beam",
	2307:    "Concerto",
	2361:    "Concerto",
	55302:   "Concerto",
	20301:   "Lifebind",
	1518:    "Smite",
	1541:    "Smite",
	21402:   "Smite",
	2306:    "Dissonance",
	120901:  "Icicle",
	120902:  "Icicle",
	1714:    "Iaido",
	1734:    "Iaido",
	44701:   "Moonstrike",
	179906:  "Moonstrike",
	220112:  "Falconry",
	2203622: "Falconry",
	2292:    "Wildpack",
	1700820: "Wildpack",
	1700825: "Wildpack",
	1700827: "Wildpack",
	1419:    "Skyward",
	1405:    "Vanguard",
	1418:    "Vanguard",
	2405:    "Shield",
	2406:    "Recovery",
	199902:  "Earthfort",
	1930:    "Block",
	1931:    "Block",
	1934:    "Block",
	1935:    "Block",
}

// Specialization returns the specialization implied by a raw skill id.
func Specialization(skillID uint64) (string, bool) {
	tag, ok := specializations[RawSkillID(skillID)]
	return tag, ok
}

var elements = []string{"physical", "fire", "ice", "thunder", "forest", "wind", "rock", "light", "dark"}

// ElementName maps a damage property to an element name.
func ElementName(property int64) string {
	if property < 0 || property >= int64(len(elements)) {
		return "unknown"
	}
	return elements[property]
}
