package delta

import "github.com/energizer-project/combatlens/internal/schema"

// Kind is what an entity uuid refers to.
type Kind int

const (
	KindOther Kind = iota
	KindPlayer
	KindMonster
)

func (k Kind) String() string {
	switch k {
	case KindPlayer:
		return "player"
	case KindMonster:
		return "enemy"
	}
	return "other"
}

// Low 16 bits of an entity uuid.
const (
	uuidTagMask    = 0xffff
	uuidTagPlayer  = 640
	uuidTagMonster = 64
)

// UID strips the type tag from an entity uuid.
func UID(uuid uint64) uint64 { return uuid >> 16 }

// PlayerUUID rebuilds the uuid of a player from its uid.
func PlayerUUID(uid uint64) uint64 { return uid<<16 | uuidTagPlayer }

// IsPlayer reports whether the uuid carries the player tag.
func IsPlayer(uuid uint64) bool { return uuid&uuidTagMask == uuidTagPlayer }

// IsMonster reports whether the uuid carries the monster tag.
func IsMonster(uuid uint64) bool { return uuid&uuidTagMask == uuidTagMonster }

// Classify decides whether uuid is a player or a monster. An explicit
// entity type wins; anything else falls back to the uuid tag.
func Classify(uuid uint64, entType int64, hasType bool) Kind {
	if hasType {
		switch entType {
		case schema.EntChar:
			return KindPlayer
		case schema.EntMonster:
			return KindMonster
		}
	}
	switch {
	case IsPlayer(uuid):
		return KindPlayer
	case IsMonster(uuid):
		return KindMonster
	}
	return KindOther
}
