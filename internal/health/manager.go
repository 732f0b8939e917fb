// Package health runs periodic checks on the capture and decode pipeline
// and on the disk holding the session logs.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/energizer-project/combatlens/internal/capture"
	"github.com/energizer-project/combatlens/internal/config"
	"github.com/energizer-project/combatlens/internal/events"
	"github.com/energizer-project/combatlens/internal/util"
)

// Check levels, in increasing severity.
const (
	LevelOK       = "ok"
	LevelInfo     = "info"
	LevelWarning  = "warning"
	LevelError    = "error"
	LevelCritical = "critical"
)

// PipelineSource reports decode pipeline counters.
type PipelineSource interface {
	Stats() capture.Stats
}

// Result is the latest outcome of one check.
type Result struct {
	Level     string    `json:"level"`
	Message   string    `json:"message,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Manager runs the health checks.
type Manager struct {
	cfg      *config.Config
	eventBus *events.EventBus
	pipeline PipelineSource
	disk     func(dir string) (usedPercent float64, freeGB uint64)
	now      func() time.Time

	mu      sync.Mutex
	last    capture.Stats
	primed  bool
	results map[string]Result
}

// NewManager creates a new health check manager.
func NewManager(cfg *config.Config, eventBus *events.EventBus, pipeline PipelineSource) *Manager {
	return &Manager{
		cfg:      cfg,
		eventBus: eventBus,
		pipeline: pipeline,
		disk: func(dir string) (float64, uint64) {
			usage := util.GetResourceUsage(dir)
			return usage.DiskUsedPercent, usage.DiskFreeGB
		},
		now:     time.Now,
		results: make(map[string]Result),
	}
}

// Start runs the checks until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	interval := time.Duration(m.cfg.GetTimers().HealthCheckSecs) * time.Second
	if interval <= 0 {
		log.Info().Msg("health checks disabled")
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("health check manager started")
	m.RunChecks(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("health check manager stopped")
			return
		case <-ticker.C:
			m.RunChecks(ctx)
		}
	}
}

// RunChecks runs every check once.
func (m *Manager) RunChecks(ctx context.Context) {
	if m.pipeline != nil {
		stats := m.pipeline.Stats()
		m.mu.Lock()
		prev, primed := m.last, m.primed
		m.last, m.primed = stats, true
		m.mu.Unlock()

		m.record(ctx, "capture", m.checkCapture(prev, stats, primed))
		if primed {
			m.record(ctx, "queue", checkQueue(prev, stats))
			m.record(ctx, "decode", checkDecode(prev, stats))
		}
	}
	m.record(ctx, "disk", m.checkDisk())
}

// Status returns the latest result of every check.
func (m *Manager) Status() map[string]Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Result, len(m.results))
	for k, v := range m.results {
		out[k] = v
	}
	return out
}

// record stores a result and announces level changes.
func (m *Manager) record(ctx context.Context, check string, r Result) {
	r.CheckedAt = m.now()

	m.mu.Lock()
	prev, seen := m.results[check]
	m.results[check] = r
	m.mu.Unlock()

	if seen && prev.Level == r.Level {
		return
	}
	if r.Level == LevelOK && !seen {
		return
	}

	ev := log.Info()
	if r.Level != LevelOK && r.Level != LevelInfo {
		ev = log.Warn()
	}
	ev.Str("check", check).Str("level", r.Level).Msg(r.Message)

	if m.eventBus != nil {
		m.eventBus.Emit(ctx, events.Event{
			Type:   events.EventHealthAlert,
			Source: "health_check",
			Payload: events.HealthAlertPayload{
				Check:   check,
				Level:   r.Level,
				Message: r.Message,
			},
		})
	}
}

// checkCapture flags a capture source that is missing or connected but silent.
func (m *Manager) checkCapture(prev, cur capture.Stats, primed bool) Result {
	if m.cfg.GetCapture().Mode != config.CaptureTCP {
		return Result{Level: LevelOK}
	}
	if cur.Streams == 0 {
		return Result{Level: LevelInfo, Message: "no capture source connected"}
	}
	if primed && cur.Bytes == prev.Bytes {
		return Result{Level: LevelWarning, Message: "capture source connected but no data received"}
	}
	return Result{Level: LevelOK}
}

func checkQueue(prev, cur capture.Stats) Result {
	if dropped := cur.Overflows - prev.Overflows; dropped > 0 {
		return Result{
			Level:   LevelError,
			Message: fmt.Sprintf("decode queue full, %d chunks dropped", dropped),
		}
	}
	return Result{Level: LevelOK}
}

func checkDecode(prev, cur capture.Stats) Result {
	panics := cur.Dispatcher.Panics - prev.Dispatcher.Panics
	malformed := cur.Dispatcher.Malformed - prev.Dispatcher.Malformed
	discarded := cur.Discarded - prev.Discarded

	switch {
	case panics > 0:
		return Result{Level: LevelError, Message: fmt.Sprintf("%d frames crashed the decoder", panics)}
	case discarded > 0:
		return Result{Level: LevelWarning, Message: fmt.Sprintf("stream resynchronised, %d bytes discarded", discarded)}
	case malformed > 0:
		return Result{Level: LevelWarning, Message: fmt.Sprintf("%d malformed frames", malformed)}
	}
	return Result{Level: LevelOK}
}

// checkDisk alerts at 80%, 90%, 95% and 100% usage of the log disk.
func (m *Manager) checkDisk() Result {
	used, free := m.disk(m.cfg.GetStorage().LogDirectory)

	var level string
	switch {
	case used >= 100:
		level = LevelCritical
	case used >= 95:
		level = LevelError
	case used >= 90:
		level = LevelWarning
	case used >= 80:
		level = LevelInfo
	default:
		return Result{Level: LevelOK}
	}
	return Result{
		Level:   level,
		Message: fmt.Sprintf("log disk usage at %.1f%% (%d GB free)", used, free),
	}
}
