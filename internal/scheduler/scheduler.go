// Package scheduler runs the periodic background tasks of combatlens:
// realtime rate updates and dashboard pushes, inactive user cleanup,
// session auto-save and the daily retention cleaner.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/energizer-project/combatlens/internal/config"
	"github.com/energizer-project/combatlens/internal/session"
	"github.com/energizer-project/combatlens/internal/util"
)

// Engine is the state store surface driven by the timers.
type Engine interface {
	UpdateRealtimeStats()
	CleanUpInactiveUsers() []uint64
	AutoSave() error
	AllUsersSummary() map[uint64]session.UserSummary
}

// Pruner deletes stored sessions older than a cutoff.
type Pruner interface {
	PruneBefore(cutoff time.Time) (int64, error)
}

// Pusher forwards realtime data to connected dashboards.
type Pusher interface {
	Broadcast(kind string, payload interface{})
	Clients() int
}

// Scheduler manages periodic background tasks.
type Scheduler struct {
	cfg    *config.Config
	engine Engine
	pruner Pruner
	pusher Pusher
	now    func() time.Time
}

// NewScheduler creates a new task scheduler. pruner and pusher may be nil.
func NewScheduler(cfg *config.Config, engine Engine, pruner Pruner, pusher Pusher) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		engine: engine,
		pruner: pruner,
		pusher: pusher,
		now:    time.Now,
	}
}

// Start runs every task until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	timers := s.cfg.GetTimers()
	log.Info().
		Int("realtime_tick_ms", timers.RealtimeTickMs).
		Int("autosave_sec", timers.AutoSaveIntervalSecs).
		Msg("scheduler started")

	go s.every(ctx, "realtime", time.Duration(timers.RealtimeTickMs)*time.Millisecond, s.realtimeTick)
	go s.every(ctx, "inactive_cleanup", time.Duration(timers.InactiveCheckSecs)*time.Second, s.inactiveCleanup)
	go s.every(ctx, "autosave", time.Duration(timers.AutoSaveIntervalSecs)*time.Second, s.autoSave)
	if s.cfg.GetStorage().RetentionDays > 0 {
		go s.runRetentionLoop(ctx)
	}

	<-ctx.Done()
	log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) every(ctx context.Context, name string, interval time.Duration, fn func()) {
	if interval <= 0 {
		log.Debug().Str("task", name).Msg("task disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

func (s *Scheduler) realtimeTick() {
	s.engine.UpdateRealtimeStats()
	if s.pusher != nil && s.pusher.Clients() > 0 {
		s.pusher.Broadcast("data", s.engine.AllUsersSummary())
	}
}

func (s *Scheduler) inactiveCleanup() {
	if retired := s.engine.CleanUpInactiveUsers(); len(retired) > 0 {
		log.Debug().Int("count", len(retired)).Msg("inactive users retired")
	}
}

func (s *Scheduler) autoSave() {
	if err := s.engine.AutoSave(); err != nil {
		log.Warn().Err(err).Msg("session auto-save failed")
	}
}

// runRetentionLoop runs the retention cleaner at the configured time.
func (s *Scheduler) runRetentionLoop(ctx context.Context) {
	for {
		nextRun := s.nextCleanupTime()
		sleepDuration := nextRun.Sub(s.now())
		if sleepDuration <= 0 {
			sleepDuration = 24 * time.Hour
		}

		log.Info().
			Time("next_run", nextRun).
			Dur("sleep", sleepDuration).
			Msg("retention cleaner scheduled")

		select {
		case <-ctx.Done():
			return
		case <-time.After(sleepDuration):
			s.RunRetention()
		}
	}
}

// RunRetention deletes session log directories and stored sessions older
// than the retention period, and trims old application logs.
func (s *Scheduler) RunRetention() {
	storage := s.cfg.GetStorage()
	if storage.RetentionDays <= 0 {
		return
	}
	cutoff := s.now().Add(-time.Duration(storage.RetentionDays) * 24 * time.Hour)

	log.Info().
		Str("directory", storage.LogDirectory).
		Int("retention_days", storage.RetentionDays).
		Msg("running retention cleaner")

	dirs, freed := cleanSessionLogs(storage.LogDirectory, cutoff)

	var pruned int64
	if s.pruner != nil {
		n, err := s.pruner.PruneBefore(cutoff)
		if err != nil {
			log.Warn().Err(err).Msg("failed to prune stored sessions")
		}
		pruned = n
	}

	logging := s.cfg.GetLogging()
	removedLogs := util.CleanOldLogs(logging.Directory, logging.MaxBackups)

	log.Info().
		Int("deleted_dirs", dirs).
		Str("freed_space", formatBytes(freed)).
		Int64("pruned_sessions", pruned).
		Int("deleted_app_logs", len(removedLogs)).
		Msg("retention cleaner completed")
}

// cleanSessionLogs removes logs/<startMillis>/ directories that started
// before cutoff. Other entries of root are left alone.
func cleanSessionLogs(root string, cutoff time.Time) (int, int64) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return 0, 0
	}

	var (
		deleted int
		freed   int64
	)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		started, err := strconv.ParseInt(entry.Name(), 10, 64)
		if err != nil || !time.UnixMilli(started).Before(cutoff) {
			continue
		}

		path := filepath.Join(root, entry.Name())
		size := dirSize(path)
		if err := os.RemoveAll(path); err != nil {
			log.Warn().Err(err).Str("dir", path).Msg("failed to delete session log directory")
			continue
		}
		deleted++
		freed += size
		log.Debug().Str("dir", entry.Name()).Msg("deleted old session log")
	}
	return deleted, freed
}

func dirSize(path string) int64 {
	var size int64
	filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size
}

// nextCleanupTime returns the next occurrence of the configured HH:MM.
func (s *Scheduler) nextCleanupTime() time.Time {
	parts := strings.Split(s.cfg.GetStorage().CleanupTime, ":")

	hour, minute := 4, 0
	if len(parts) >= 2 {
		fmt.Sscanf(parts[0], "%d", &hour)
		fmt.Sscanf(parts[1], "%d", &minute)
	}

	now := s.now()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

// formatBytes formats bytes into human-readable format.
func formatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
