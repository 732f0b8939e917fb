// Package state is the single owner of live combat state: the user
// registry and its graveyard, the enemy cache and the current session.
// The decode pipeline writes into it, timers and API readers read from it,
// and one mutex serialises all of them.
package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/energizer-project/combatlens/internal/config"
	"github.com/energizer-project/combatlens/internal/events"
	"github.com/energizer-project/combatlens/internal/gamedata"
	"github.com/energizer-project/combatlens/internal/session"
	"github.com/energizer-project/combatlens/internal/util"
)

// Notifier publishes store events to presentation consumers.
type Notifier interface {
	Emit(ctx context.Context, event events.Event)
}

// Names resolves ids used in session names and reports.
type Names interface {
	SkillName(id uint64) string
	SceneName(id uint64) string
}

// Options wires a Store to its collaborators. Every field is optional.
type Options struct {
	Engine   config.EngineConfig
	Runtime  *config.Runtime
	Names    Names
	Sessions session.Store
	Notifier Notifier
	Cache    *NameCache
	LogRoot  string
	Version  string
	Now      func() time.Time
}

// Store holds all mutable combat state.
type Store struct {
	mu sync.Mutex

	engine   config.EngineConfig
	runtime  *config.Runtime
	names    Names
	sessions session.Store
	notifier Notifier
	cache    *NameCache
	logRoot  string
	version  string
	now      func() time.Time
	logger   zerolog.Logger

	users     map[uint64]*User
	graveyard map[uint64]*User
	enemies   enemyCache

	current    *epoch
	instanceID uint64
	lastLogDir int64
	activity   bool
	closed     bool
}

// NewStore creates a store and opens the startup session.
func NewStore(opts Options) *Store {
	engine := opts.Engine
	if engine.SubProfessionRatio <= 0 {
		engine.SubProfessionRatio = 2
	}
	if engine.InactiveTimeoutSecs <= 0 {
		engine.InactiveTimeoutSecs = 60
	}

	s := &Store{
		engine:    engine,
		runtime:   opts.Runtime,
		names:     opts.Names,
		sessions:  opts.Sessions,
		notifier:  opts.Notifier,
		cache:     opts.Cache,
		logRoot:   opts.LogRoot,
		version:   opts.Version,
		now:       opts.Now,
		logger:    util.ComponentLogger("state"),
		users:     make(map[uint64]*User),
		graveyard: make(map[uint64]*User),
		enemies:   newEnemyCache(),
	}
	if s.runtime == nil {
		s.runtime = config.NewRuntime(engine)
	}
	if s.names == nil {
		s.names = gamedata.New()
	}
	if s.now == nil {
		s.now = time.Now
	}

	s.mu.Lock()
	started := s.startEpochLocked(session.ReasonStartup, 0, 0, 0)
	s.mu.Unlock()
	s.emit(events.EventSessionStarted, started)

	return s
}

func (s *Store) emit(t events.EventType, payload interface{}) {
	if s.notifier == nil {
		return
	}
	s.notifier.Emit(context.Background(), events.Event{Type: t, Source: "state", Payload: payload})
}

// userLocked returns the live record of uid, reviving it from the
// graveyard or creating it from the identity cache as needed.
func (s *Store) userLocked(uid uint64) *User {
	if u, ok := s.users[uid]; ok {
		return u
	}
	now := s.now()
	if u, ok := s.graveyard[uid]; ok {
		delete(s.graveyard, uid)
		u.LastSeen = now
		s.users[uid] = u
		return u
	}

	u := newUser(uid, s.engine.RealtimeWindow(), now)
	if s.cache != nil {
		if c, ok := s.cache.Get(uid); ok {
			u.Name = c.Name
			u.setProfession(c.Profession)
			u.FightPoint = c.FightPoint
			if c.MaxHP > 0 {
				u.Attrs[AttrMaxHP] = c.MaxHP
			}
		}
	}
	s.users[uid] = u
	return u
}

// GetOrCreateUser returns the summary of uid, creating the record if needed.
func (s *Store) GetOrCreateUser(uid uint64) session.UserSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userLocked(uid).summary()
}

func (s *Store) recording() bool {
	return !s.runtime.Paused()
}

// AddDamage credits damage dealt by uid with skillID.
func (s *Store) AddDamage(uid, skillID uint64, element string, damage uint64, isCrit, isLucky, isCauseLucky bool, hpLessen, targetUID uint64) {
	if !s.recording() {
		return
	}
	if only := s.runtime.OnlyRecordTarget(); only != 0 && targetUID != only {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	u := s.userLocked(uid)
	u.damage.AddRecordAt(now, damage, isCrit, isLucky, hpLessen)
	sk := u.skill(skillID, false, element)
	sk.agg.AddRecordAt(now, damage, isCrit, isLucky, hpLessen)
	if isCauseLucky {
		sk.causeLucky++
	}
	u.observeSkill(skillID, s.engine.SubProfessionRatio)
	u.LastSeen = now
}

// AddHealing credits healing done by uid with skillID. Heals from an
// unknown source (uid 0) are not attributed to anyone.
func (s *Store) AddHealing(uid, skillID uint64, element string, healing uint64, isCrit, isLucky, isCauseLucky bool, targetUID uint64) {
	if !s.recording() || uid == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	u := s.userLocked(uid)
	u.healing.AddRecordAt(now, healing, isCrit, isLucky, 0)
	sk := u.skill(gamedata.HealSkillKey(skillID), true, element)
	sk.agg.AddRecordAt(now, healing, isCrit, isLucky, 0)
	if isCauseLucky {
		sk.causeLucky++
	}
	u.observeSkill(skillID, s.engine.SubProfessionRatio)
	u.LastSeen = now
}

// AddTakenDamage records damage received by uid. A killing blow zeroes
// the cached hp and counts a death.
func (s *Store) AddTakenDamage(uid, damage uint64, isDead bool) {
	if !s.recording() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.userLocked(uid)
	u.TakenDamage += damage
	if isDead {
		u.DeadCount++
		u.Attrs[AttrHP] = 0
	}
	u.LastSeen = s.now()
}

// SetProfession sets the class of uid.
func (s *Store) SetProfession(uid uint64, profession string) {
	s.mu.Lock()
	changed := s.userLocked(uid).setProfession(profession)
	s.mu.Unlock()

	if changed && s.cache != nil {
		s.cache.Update(uid, func(c *CachedUser) { c.Profession = profession })
	}
}

// SetName sets the display name of uid.
func (s *Store) SetName(uid uint64, name string) {
	if name == "" {
		return
	}
	s.mu.Lock()
	u := s.userLocked(uid)
	changed := u.Name != name
	u.Name = name
	s.mu.Unlock()

	if changed && s.cache != nil {
		s.cache.Update(uid, func(c *CachedUser) { c.Name = name })
	}
}

// SetFightPoint sets the fight score of uid.
func (s *Store) SetFightPoint(uid uint64, fp int64) {
	s.mu.Lock()
	u := s.userLocked(uid)
	changed := u.FightPoint != fp
	u.FightPoint = fp
	s.mu.Unlock()

	if changed && s.cache != nil {
		s.cache.Update(uid, func(c *CachedUser) { c.FightPoint = fp })
	}
}

// SetAttr sets a free-form attribute of uid.
func (s *Store) SetAttr(uid uint64, key string, value int64) {
	s.mu.Lock()
	u := s.userLocked(uid)
	old, had := u.Attrs[key]
	u.Attrs[key] = value
	s.mu.Unlock()

	if key == AttrMaxHP && (!had || old != value) && s.cache != nil {
		s.cache.Update(uid, func(c *CachedUser) { c.MaxHP = value })
	}
}

// CleanUpInactiveUsers moves users idle longer than the inactivity timeout
// to the graveyard and returns their uids.
func (s *Store) CleanUpInactiveUsers() []uint64 {
	s.mu.Lock()
	now := s.now()
	timeout := s.engine.InactiveTimeout()
	var retired []uint64
	for _, uid := range sortedUIDs(s.users) {
		u := s.users[uid]
		if now.Sub(u.LastSeen) > timeout {
			delete(s.users, uid)
			s.graveyard[uid] = u
			retired = append(retired, uid)
		}
	}
	s.mu.Unlock()

	for _, uid := range retired {
		s.logger.Debug().Uint64("uid", uid).Msg("user moved to graveyard")
		s.emit(events.EventUserDeleted, events.UserDeletedPayload{UID: uid})
	}
	return retired
}

// UpdateRealtimeStats recomputes realtime rates of live users.
func (s *Store) UpdateRealtimeStats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, u := range s.users {
		u.updateRealtime(now)
	}
}

// AddLog appends one line to the combat log of the current session.
func (s *Store) AddLog(line string) {
	s.mu.Lock()
	sl := s.current.log
	s.activity = true
	now := s.now()
	s.mu.Unlock()

	if err := sl.appendLine(now, line); err != nil {
		s.logger.Warn().Err(err).Msg("combat log append failed")
	}
}

// AutoSave writes the session artifacts if there was combat activity since
// the previous save.
func (s *Store) AutoSave() error {
	s.mu.Lock()
	if !s.activity {
		s.mu.Unlock()
		return nil
	}
	s.activity = false
	sl := s.current.log
	art := s.artifactsLocked(s.current, s.now(), s.allUsersLocked())
	s.mu.Unlock()

	if err := sl.writeArtifacts(art); err != nil {
		return fmt.Errorf("failed to auto-save session: %w", err)
	}
	return nil
}

func (s *Store) allUsersLocked() map[uint64]*User {
	all := make(map[uint64]*User, len(s.users)+len(s.graveyard))
	for uid, u := range s.graveyard {
		all[uid] = u
	}
	for uid, u := range s.users {
		all[uid] = u
	}
	return all
}

func (s *Store) artifactsLocked(ep *epoch, now time.Time, all map[uint64]*User) artifacts {
	a := artifacts{
		users:   make(map[uint64]session.UserSummary, len(all)),
		reports: make([]UserReport, 0, len(all)),
		summary: SessionSummary{
			StartTime: millis(ep.startedAt),
			EndTime:   millis(now),
			Duration:  now.Sub(ep.startedAt).Milliseconds(),
			UserCount: len(all),
			Version:   s.version,
		},
	}
	for _, uid := range sortedUIDs(all) {
		u := all[uid]
		a.users[uid] = u.summary()
		a.reports = append(a.reports, u.report(s.names))
	}
	return a
}

// AllUsersSummary returns the summaries of live users.
func (s *Store) AllUsersSummary() map[uint64]session.UserSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uint64]session.UserSummary, len(s.users))
	for uid, u := range s.users {
		out[uid] = u.summary()
	}
	return out
}

// UserSkills returns the skill breakdown of uid, live or retired.
func (s *Store) UserSkills(uid uint64) (UserReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[uid]
	if !ok {
		u, ok = s.graveyard[uid]
	}
	if !ok {
		return UserReport{}, false
	}
	return u.report(s.names), true
}

// UserIDs returns the uids of live users in ascending order.
func (s *Store) UserIDs() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedUIDs(s.users)
}

// UserName returns the known name of a live or retired user.
func (s *Store) UserName(uid uint64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[uid]
	if !ok {
		u, ok = s.graveyard[uid]
	}
	if !ok || u.Name == "" {
		return "", false
	}
	return u.Name, true
}

// Counts returns the number of live and retired users.
func (s *Store) Counts() (live, retired int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users), len(s.graveyard)
}

// Paused reports whether stat recording is suspended.
func (s *Store) Paused() bool {
	return s.runtime.Paused()
}

// SetPaused suspends or resumes stat recording.
func (s *Store) SetPaused(paused bool) {
	if s.runtime.SetPaused(paused) {
		s.logger.Info().Bool("paused", paused).Msg("stat recording toggled")
		s.emit(events.EventPauseChanged, events.PauseChangedPayload{Paused: paused})
	}
}
