package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/energizer-project/combatlens/internal/session"
)

// Files of a session log directory.
const (
	FightLogFile    = "fight.log"
	AllUserDataFile = "allUserData.json"
	SummaryFile     = "summary.json"
	UsersDir        = "users"
)

// sessionLog owns logs/<startMillis>/ for one session. Directory creation
// and appends are serialised so concurrent writers never interleave.
type sessionLog struct {
	mu  sync.Mutex
	dir string
}

func newSessionLog(root string, startedAt time.Time) *sessionLog {
	if root == "" {
		return &sessionLog{}
	}
	return &sessionLog{dir: filepath.Join(root, strconv.FormatInt(startedAt.UnixMilli(), 10))}
}

// Dir returns the directory, empty when logging to disk is disabled.
func (l *sessionLog) Dir() string { return l.dir }

func (l *sessionLog) appendLine(at time.Time, line string) error {
	if l.dir == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("failed to create session log directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(l.dir, FightLogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open fight log: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "[%s] %s\n", at.Format("2006-01-02 15:04:05.000"), line); err != nil {
		return fmt.Errorf("failed to append fight log: %w", err)
	}
	return nil
}

// artifacts is everything written by one autosave.
type artifacts struct {
	users   map[uint64]session.UserSummary
	reports []UserReport
	summary SessionSummary
}

func (l *sessionLog) writeArtifacts(a artifacts) error {
	if l.dir == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	usersDir := filepath.Join(l.dir, UsersDir)
	if err := os.MkdirAll(usersDir, 0755); err != nil {
		return fmt.Errorf("failed to create session log directory: %w", err)
	}

	if err := writeJSON(filepath.Join(l.dir, AllUserDataFile), a.users); err != nil {
		return err
	}
	for _, r := range a.reports {
		path := filepath.Join(usersDir, strconv.FormatUint(r.UID, 10)+".json")
		if err := writeJSON(path, r); err != nil {
			return err
		}
	}
	return writeJSON(filepath.Join(l.dir, SummaryFile), a.summary)
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
