package state

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/energizer-project/combatlens/internal/events"
	"github.com/energizer-project/combatlens/internal/session"
)

// epoch is the session currently being recorded.
type epoch struct {
	id           string
	name         string
	startedAt    time.Time
	reasonStart  session.Reason
	instanceID   uint64
	fromInstance uint64
	seq          uint64
	log          *sessionLog
	finalized    bool
}

// SessionInfo describes the current session.
type SessionInfo struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	StartedAt    time.Time `json:"startedAt"`
	InstanceID   uint64    `json:"instanceId"`
	FromInstance uint64    `json:"fromInstance"`
	Seq          uint64    `json:"seq"`
	ReasonStart  string    `json:"reasonStart"`
	LogDir       string    `json:"logDir,omitempty"`
}

// closing carries a finalized epoch out of the lock for I/O.
type closing struct {
	record *session.Record
	log    *sessionLog
	art    artifacts
	write  bool
	ended  events.SessionEndedPayload
}

func (s *Store) sessionName(instanceID uint64, at time.Time) string {
	return fmt.Sprintf("%s %s", s.names.SceneName(instanceID), at.Format("2006-01-02 15:04:05"))
}

func (s *Store) startEpochLocked(reason session.Reason, instanceID, from, seq uint64) events.SessionStartedPayload {
	now := s.now()

	// Two epochs opened in the same millisecond must not share a log
	// directory.
	stamp := now.UnixMilli()
	if stamp <= s.lastLogDir {
		stamp = s.lastLogDir + 1
	}
	s.lastLogDir = stamp

	ep := &epoch{
		id:           uuid.NewString(),
		name:         s.sessionName(instanceID, now),
		startedAt:    now,
		reasonStart:  reason,
		instanceID:   instanceID,
		fromInstance: from,
		seq:          seq,
		log:          newSessionLog(s.logRoot, time.UnixMilli(stamp)),
	}
	s.current = ep
	s.activity = false

	s.logger.Info().
		Str("session", ep.id).
		Str("name", ep.name).
		Str("reason", string(reason)).
		Uint64("instance", instanceID).
		Msg("session started")

	return events.SessionStartedPayload{
		ID:           ep.id,
		Name:         ep.name,
		StartedAt:    ep.startedAt,
		InstanceID:   instanceID,
		FromInstance: from,
		Seq:          seq,
		ReasonStart:  string(reason),
	}
}

// finalizeLocked freezes the current epoch. The returned record is nil
// when nobody contributed enough for the session to be kept, or when
// persist is false.
func (s *Store) finalizeLocked(reason session.Reason, persist bool) *closing {
	ep := s.current
	if ep == nil || ep.finalized {
		return nil
	}
	ep.finalized = true

	now := s.now()
	all := s.allUsersLocked()
	c := &closing{
		log:   ep.log,
		art:   s.artifactsLocked(ep, now, all),
		ended: events.SessionEndedPayload{ID: ep.id, Reason: string(reason), At: now},
	}

	snap := session.Snapshot{Users: make(map[uint64]session.UserSummary, len(all))}
	for _, uid := range sortedUIDs(all) {
		u := all[uid]
		snap.Users[uid] = c.art.users[uid]
		if u.active() {
			c.write = true
		}
		if u.qualifies(s.engine.MinContribution) {
			snap.Players = append(snap.Players, u.player())
		}
	}

	if !persist || len(snap.Players) == 0 {
		s.logger.Debug().
			Str("session", ep.id).
			Bool("persist", persist).
			Msg("session discarded")
		return c
	}

	sort.SliceStable(snap.Players, func(i, j int) bool {
		return snap.Players[i].TotalDamage > snap.Players[j].TotalDamage
	})

	c.record = &session.Record{
		ID:           ep.id,
		Name:         ep.name,
		StartedAt:    ep.startedAt,
		EndedAt:      now,
		ReasonStart:  ep.reasonStart,
		ReasonEnd:    reason,
		InstanceID:   ep.instanceID,
		FromInstance: ep.fromInstance,
		Seq:          ep.seq,
		PartySize:    len(snap.Players),
		Snapshot:     snap,
	}
	return c
}

// commit performs the I/O of a finalized epoch: artifacts, persistence and
// notifications.
func (s *Store) commit(c *closing) (bool, error) {
	if c == nil {
		return false, nil
	}

	if c.write {
		if err := c.log.writeArtifacts(c.art); err != nil {
			s.logger.Warn().Err(err).Msg("failed to write session artifacts")
		}
	}

	var err error
	if c.record != nil {
		if s.sessions == nil {
			s.logger.Debug().Str("session", c.record.ID).Msg("no session store, record dropped")
		} else if err = s.sessions.AddSession(c.record); err != nil {
			err = fmt.Errorf("failed to persist session %s: %w", c.record.ID, err)
			s.logger.Error().Err(err).Msg("session persistence failed")
		} else {
			c.ended.Persisted = true
		}
	}

	s.emit(events.EventSessionEnded, c.ended)
	if c.ended.Persisted {
		s.logger.Info().
			Str("session", c.record.ID).
			Str("name", c.record.Name).
			Int("party_size", c.record.PartySize).
			Msg("session persisted")
		s.emit(events.EventSessionPersisted, events.SessionPersistedPayload{
			ID:        c.record.ID,
			Name:      c.record.Name,
			PartySize: c.record.PartySize,
		})
	}
	return c.ended.Persisted, err
}

func (s *Store) clearLocked() {
	s.users = make(map[uint64]*User)
	s.graveyard = make(map[uint64]*User)
	s.enemies = newEnemyCache()
}

// OnInstanceChanged closes the current session and opens a new one for
// toInstance.
func (s *Store) OnInstanceChanged(seq uint64, reason session.Reason, toInstance uint64, extra map[string]interface{}) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	from := s.instanceID
	c := s.finalizeLocked(reason, true)
	s.clearLocked()
	s.instanceID = toInstance
	started := s.startEpochLocked(reason, toInstance, from, seq)
	s.mu.Unlock()

	s.commit(c)
	s.emit(events.EventSessionChanged, events.SessionChangedPayload{
		Seq:          seq,
		Reason:       string(reason),
		FromInstance: from,
		ToInstance:   toInstance,
		Extra:        extra,
	})
	s.emit(events.EventSessionStarted, started)
}

// TagInstance records the instance the player is in without a rollover.
// A session opened before any instance was known takes its name from it.
func (s *Store) TagInstance(instanceID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.instanceID == instanceID {
		return
	}
	s.instanceID = instanceID
	if ep := s.current; ep != nil && ep.instanceID == 0 {
		ep.instanceID = instanceID
		ep.name = s.sessionName(instanceID, ep.startedAt)
	}
}

// InstanceID returns the last known instance.
func (s *Store) InstanceID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instanceID
}

// ClearAll drops every statistic and starts a fresh session. With persist
// the closing session goes through the usual persistence gate.
func (s *Store) ClearAll(persist bool) (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, nil
	}
	seq := s.current.seq
	c := s.finalizeLocked(session.ReasonManualClear, persist)
	s.clearLocked()
	started := s.startEpochLocked(session.ReasonManualClear, s.instanceID, s.instanceID, seq)
	s.mu.Unlock()

	persisted, err := s.commit(c)
	s.emit(events.EventDpsCleared, events.DpsClearedPayload{At: started.StartedAt})
	s.emit(events.EventSessionStarted, started)
	return persisted, err
}

// Finalize closes the current session without opening a new one. It acts
// once per session; repeated calls return false, nil.
func (s *Store) Finalize(reason session.Reason) (bool, error) {
	s.mu.Lock()
	c := s.finalizeLocked(reason, true)
	s.mu.Unlock()
	return s.commit(c)
}

// Shutdown finalizes the current session and flushes the identity cache.
// Only the first call does anything; later calls return false, nil.
func (s *Store) Shutdown(reason session.Reason) (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, nil
	}
	s.closed = true
	c := s.finalizeLocked(reason, true)
	s.mu.Unlock()

	persisted, err := s.commit(c)
	if s.cache != nil {
		if cerr := s.cache.ForceSave(); cerr != nil {
			s.logger.Warn().Err(cerr).Msg("failed to flush user cache on shutdown")
		}
	}
	s.logger.Info().Str("reason", string(reason)).Bool("persisted", persisted).Msg("state store shut down")
	return persisted, err
}

// CurrentSession describes the session being recorded.
func (s *Store) CurrentSession() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep := s.current
	return SessionInfo{
		ID:           ep.id,
		Name:         ep.name,
		StartedAt:    ep.startedAt,
		InstanceID:   ep.instanceID,
		FromInstance: ep.fromInstance,
		Seq:          ep.seq,
		ReasonStart:  string(ep.reasonStart),
		LogDir:       ep.log.Dir(),
	}
}
