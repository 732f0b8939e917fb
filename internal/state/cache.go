package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// CachedUser is what survives a restart about a player.
type CachedUser struct {
	Name       string `json:"name,omitempty"`
	Profession string `json:"profession,omitempty"`
	FightPoint int64  `json:"fightPoint,omitempty"`
	MaxHP      int64  `json:"maxHp,omitempty"`
}

// NameCache is the users.json cache of player identity. Changes are
// flushed to disk after a quiet period; ForceSave flushes immediately.
type NameCache struct {
	mu      sync.Mutex
	path    string
	delay   time.Duration
	entries map[uint64]CachedUser
	timer   *time.Timer
	dirty   bool
}

// NewNameCache creates a cache backed by path. An empty path keeps the
// cache in memory only.
func NewNameCache(path string, delay time.Duration) *NameCache {
	return &NameCache{
		path:    path,
		delay:   delay,
		entries: make(map[uint64]CachedUser),
	}
}

// Load reads the cache file. A missing file is not an error.
func (c *NameCache) Load() error {
	if c.path == "" {
		return nil
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read user cache %s: %w", c.path, err)
	}

	entries := make(map[uint64]CachedUser)
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse user cache %s: %w", c.path, err)
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()

	log.Info().Str("path", c.path).Int("users", len(entries)).Msg("user cache loaded")
	return nil
}

// Get returns the cached identity of uid.
func (c *NameCache) Get(uid uint64) (CachedUser, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[uid]
	return e, ok
}

// Update applies fn to the entry of uid and schedules a flush.
func (c *NameCache) Update(uid uint64, fn func(*CachedUser)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entries[uid]
	fn(&e)
	c.entries[uid] = e
	c.dirty = true

	if c.path == "" {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.delay, func() {
		if err := c.ForceSave(); err != nil {
			log.Warn().Err(err).Msg("user cache flush failed")
		}
	})
}

// ForceSave cancels any pending flush and writes the cache now.
func (c *NameCache) ForceSave() error {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if !c.dirty || c.path == "" {
		c.mu.Unlock()
		return nil
	}
	data, err := json.MarshalIndent(c.entries, "", "  ")
	c.dirty = false
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to marshal user cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0644); err != nil {
		c.mu.Lock()
		c.dirty = true
		c.mu.Unlock()
		return fmt.Errorf("failed to write user cache: %w", err)
	}
	return nil
}

// Len returns the number of cached users.
func (c *NameCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
