// Package db is the SQLite persistence layer: finalized combat sessions
// and the players that qualified for them.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// pragmas applied to every connection; failures are logged, not fatal.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA foreign_keys=ON",
	"PRAGMA busy_timeout=5000",
}

// Database is a single-connection SQLite handle. Writers take mu so a
// session flush and a retention prune never interleave.
type Database struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// NewDatabase opens dbPath, creating the file and its directory if needed.
func NewDatabase(dbPath string) (*Database, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dbPath, err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			log.Warn().Err(err).Str("pragma", p).Msg("sqlite pragma rejected")
		}
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %s: %w", dbPath, err)
	}

	log.Info().Str("path", dbPath).Msg("session database opened")
	return &Database{db: conn, path: dbPath}, nil
}

// Path is the file the database was opened from.
func (d *Database) Path() string { return d.path }

func (d *Database) Close() error { return d.db.Close() }

// Migrate runs the given DDL statements in one transaction.
func (d *Database) Migrate(statements ...string) error {
	return d.Transaction(func(tx *sql.Tx) error {
		for i, stmt := range statements {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("migration step %d: %w", i, err)
			}
		}
		return nil
	})
}

func (d *Database) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return d.db.Query(query, args...)
}

func (d *Database) QueryRow(query string, args ...interface{}) *sql.Row {
	return d.db.QueryRow(query, args...)
}

// Transaction commits when fn returns nil and rolls back otherwise.
func (d *Database) Transaction(fn func(tx *sql.Tx) error) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Warn().Err(rbErr).Msg("rollback failed")
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
