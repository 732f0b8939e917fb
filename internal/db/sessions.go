package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/energizer-project/combatlens/internal/session"
)

// ErrSessionNotFound is returned for an unknown session id.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore implements session.Store on SQLite.
type SessionStore struct {
	db *Database
}

var _ session.Store = (*SessionStore)(nil)

// NewSessionStore opens the session database and migrates its schema.
func NewSessionStore(dbPath string) (*SessionStore, error) {
	database, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	s := &SessionStore{db: database}
	if err := s.migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate session database: %w", err)
	}
	return s, nil
}

var sessionSchema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER NOT NULL,
		reason_start TEXT NOT NULL,
		reason_end TEXT NOT NULL,
		instance_id INTEGER NOT NULL DEFAULT 0,
		from_instance INTEGER NOT NULL DEFAULT 0,
		seq INTEGER NOT NULL DEFAULT 0,
		party_size INTEGER NOT NULL DEFAULT 0,
		users TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS session_players (
		session_id TEXT NOT NULL,
		ordinal INTEGER NOT NULL,
		uid INTEGER NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		profession TEXT NOT NULL DEFAULT '',
		fight_point INTEGER NOT NULL DEFAULT 0,
		total_damage INTEGER NOT NULL DEFAULT 0,
		total_healing INTEGER NOT NULL DEFAULT 0,
		taken_damage INTEGER NOT NULL DEFAULT 0,
		dps REAL NOT NULL DEFAULT 0,
		hps REAL NOT NULL DEFAULT 0,
		dead_count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (session_id, uid),
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_session_players_uid ON session_players(uid)`,
}

func (s *SessionStore) migrate() error {
	if err := s.db.Migrate(sessionSchema...); err != nil {
		return err
	}
	log.Debug().Int("statements", len(sessionSchema)).Msg("session schema migrated")
	return nil
}

// Close closes the underlying database.
func (s *SessionStore) Close() error {
	return s.db.Close()
}

// AddSession stores a finalized session and its qualifying players.
func (s *SessionStore) AddSession(rec *session.Record) error {
	users, err := json.Marshal(rec.Snapshot.Users)
	if err != nil {
		return fmt.Errorf("failed to encode session users: %w", err)
	}

	return s.db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO sessions (id, name, started_at, ended_at, reason_start, reason_end,
				instance_id, from_instance, seq, party_size, users)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.Name, rec.StartedAt.UnixMilli(), rec.EndedAt.UnixMilli(),
			string(rec.ReasonStart), string(rec.ReasonEnd),
			int64(rec.InstanceID), int64(rec.FromInstance), int64(rec.Seq), rec.PartySize, string(users))
		if err != nil {
			return fmt.Errorf("failed to insert session %s: %w", rec.ID, err)
		}

		for i, p := range rec.Snapshot.Players {
			_, err := tx.Exec(`
				INSERT INTO session_players (session_id, ordinal, uid, name, profession, fight_point,
					total_damage, total_healing, taken_damage, dps, hps, dead_count)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				rec.ID, i, int64(p.UID), p.Name, p.Profession, p.FightPoint,
				int64(p.TotalDamage), int64(p.TotalHealing), int64(p.TakenDamage), p.DPS, p.HPS, p.DeadCount)
			if err != nil {
				return fmt.Errorf("failed to insert player %d of session %s: %w", p.UID, rec.ID, err)
			}
		}
		return nil
	})
}

// ListSessions returns every stored session, newest first.
func (s *SessionStore) ListSessions() ([]session.Summary, error) {
	rows, err := s.db.Query(`
		SELECT id, name, started_at, ended_at, reason_start, reason_end, instance_id, party_size
		FROM sessions
		ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	return scanSummaries(rows)
}

// GetSession loads one session with its snapshot.
func (s *SessionStore) GetSession(id string) (*session.Record, error) {
	var (
		rec                 session.Record
		started, ended      int64
		rStart, rEnd, users string
		instance, from, seq int64
	)
	err := s.db.QueryRow(`
		SELECT id, name, started_at, ended_at, reason_start, reason_end,
			instance_id, from_instance, seq, party_size, users
		FROM sessions WHERE id = ?`, id).
		Scan(&rec.ID, &rec.Name, &started, &ended, &rStart, &rEnd, &instance, &from, &seq, &rec.PartySize, &users)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	rec.StartedAt = time.UnixMilli(started)
	rec.EndedAt = time.UnixMilli(ended)
	rec.ReasonStart = session.Reason(rStart)
	rec.ReasonEnd = session.Reason(rEnd)
	rec.InstanceID = uint64(instance)
	rec.FromInstance = uint64(from)
	rec.Seq = uint64(seq)
	if err := json.Unmarshal([]byte(users), &rec.Snapshot.Users); err != nil {
		return nil, fmt.Errorf("failed to decode users of session %s: %w", id, err)
	}

	players, err := s.players(id)
	if err != nil {
		return nil, err
	}
	rec.Snapshot.Players = players
	return &rec, nil
}

func (s *SessionStore) players(id string) ([]session.PlayerSnapshot, error) {
	rows, err := s.db.Query(`
		SELECT uid, name, profession, fight_point, total_damage, total_healing,
			taken_damage, dps, hps, dead_count
		FROM session_players WHERE session_id = ?
		ORDER BY ordinal`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load players of session %s: %w", id, err)
	}
	defer rows.Close()

	var out []session.PlayerSnapshot
	for rows.Next() {
		var (
			p                     session.PlayerSnapshot
			uid, dmg, heal, taken int64
		)
		if err := rows.Scan(&uid, &p.Name, &p.Profession, &p.FightPoint, &dmg, &heal, &taken, &p.DPS, &p.HPS, &p.DeadCount); err != nil {
			return nil, fmt.Errorf("failed to scan player row: %w", err)
		}
		p.UID = uint64(uid)
		p.TotalDamage = uint64(dmg)
		p.TotalHealing = uint64(heal)
		p.TakenDamage = uint64(taken)
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and its players.
func (s *SessionStore) DeleteSession(id string) error {
	return s.db.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM session_players WHERE session_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete players of session %s: %w", id, err)
		}
		res, err := tx.Exec("DELETE FROM sessions WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete session %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil
	})
}

// PruneBefore deletes sessions that started before cutoff and returns how
// many were removed.
func (s *SessionStore) PruneBefore(cutoff time.Time) (int64, error) {
	var n int64
	err := s.db.Transaction(func(tx *sql.Tx) error {
		ms := cutoff.UnixMilli()
		if _, err := tx.Exec(`
			DELETE FROM session_players
			WHERE session_id IN (SELECT id FROM sessions WHERE started_at < ?)`, ms); err != nil {
			return err
		}
		res, err := tx.Exec("DELETE FROM sessions WHERE started_at < ?", ms)
		if err != nil {
			return err
		}
		n, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}
	if n > 0 {
		log.Info().Int64("removed", n).Time("cutoff", cutoff).Msg("old sessions pruned")
	}
	return n, nil
}

// PlayerHistory returns the sessions uid qualified for, newest first.
func (s *SessionStore) PlayerHistory(uid uint64, limit int) ([]session.Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT s.id, s.name, s.started_at, s.ended_at, s.reason_start, s.reason_end, s.instance_id, s.party_size
		FROM sessions s
		JOIN session_players p ON p.session_id = s.id
		WHERE p.uid = ?
		ORDER BY s.started_at DESC
		LIMIT ?`, int64(uid), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history of %d: %w", uid, err)
	}
	defer rows.Close()

	return scanSummaries(rows)
}

func scanSummaries(rows *sql.Rows) ([]session.Summary, error) {
	var out []session.Summary
	for rows.Next() {
		var (
			sum            session.Summary
			started, ended int64
			rStart, rEnd   string
			instance       int64
		)
		if err := rows.Scan(&sum.ID, &sum.Name, &started, &ended, &rStart, &rEnd, &instance, &sum.PartySize); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sum.StartedAt = time.UnixMilli(started)
		sum.EndedAt = time.UnixMilli(ended)
		sum.ReasonStart = session.Reason(rStart)
		sum.ReasonEnd = session.Reason(rEnd)
		sum.InstanceID = uint64(instance)
		out = append(out, sum)
	}
	return out, rows.Err()
}
