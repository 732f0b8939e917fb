package state

// enemyCache keeps what is known about monsters in range. Enemies are only
// partially observable, so there is no record type, just three maps.
type enemyCache struct {
	names map[uint64]string
	hp    map[uint64]int64
	maxHP map[uint64]int64
}

func newEnemyCache() enemyCache {
	return enemyCache{
		names: make(map[uint64]string),
		hp:    make(map[uint64]int64),
		maxHP: make(map[uint64]int64),
	}
}

func (e enemyCache) remove(uid uint64) {
	delete(e.names, uid)
	delete(e.hp, uid)
	delete(e.maxHP, uid)
}

func (e enemyCache) all() map[uint64]EnemyInfo {
	out := make(map[uint64]EnemyInfo)
	for uid, name := range e.names {
		info := out[uid]
		info.Name = name
		out[uid] = info
	}
	for uid, hp := range e.hp {
		info := out[uid]
		info.HP = hp
		out[uid] = info
	}
	for uid, max := range e.maxHP {
		info := out[uid]
		info.MaxHP = max
		out[uid] = info
	}
	return out
}

// SetEnemyName records the display name of a monster.
func (s *Store) SetEnemyName(uid uint64, name string) {
	if name == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enemies.names[uid] = name
}

// SetEnemyHP records the current hp of a monster.
func (s *Store) SetEnemyHP(uid uint64, hp int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enemies.hp[uid] = hp
}

// SetEnemyMaxHP records the max hp of a monster.
func (s *Store) SetEnemyMaxHP(uid uint64, maxHP int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enemies.maxHP[uid] = maxHP
}

// DeleteEnemy forgets a monster, typically on death.
func (s *Store) DeleteEnemy(uid uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enemies.remove(uid)
}

// EnemyName returns the cached name of a monster.
func (s *Store) EnemyName(uid uint64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.enemies.names[uid]
	return name, ok
}

// AllEnemies returns a copy of the enemy cache.
func (s *Store) AllEnemies() map[uint64]EnemyInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enemies.all()
}
