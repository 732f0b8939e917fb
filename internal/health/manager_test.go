package health

import (
	"context"
	"testing"
	"time"

	"github.com/energizer-project/combatlens/internal/capture"
	"github.com/energizer-project/combatlens/internal/config"
	"github.com/energizer-project/combatlens/internal/events"
	"github.com/energizer-project/combatlens/internal/protocol"
)

type fakePipeline struct {
	stats capture.Stats
}

func (f *fakePipeline) Stats() capture.Stats { return f.stats }

func newTestManager(t *testing.T, pipeline PipelineSource, bus *events.EventBus) *Manager {
	t.Helper()
	cfg, err := config.Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	m := NewManager(cfg, bus, pipeline)
	m.disk = func(string) (float64, uint64) { return 40, 100 }
	return m
}

func TestCaptureStall(t *testing.T) {
	p := &fakePipeline{}
	m := newTestManager(t, p, nil)

	m.RunChecks(context.Background())
	if got := m.Status()["capture"].Level; got != LevelInfo {
		t.Errorf("no source: level = %q", got)
	}

	p.stats = capture.Stats{Streams: 1, Bytes: 100}
	m.RunChecks(context.Background())
	if got := m.Status()["capture"].Level; got != LevelOK {
		t.Errorf("flowing: level = %q", got)
	}

	m.RunChecks(context.Background())
	if got := m.Status()["capture"].Level; got != LevelWarning {
		t.Errorf("stalled: level = %q", got)
	}
}

func TestQueueAndDecodeDeltas(t *testing.T) {
	p := &fakePipeline{stats: capture.Stats{Streams: 1, Bytes: 10}}
	m := newTestManager(t, p, nil)
	m.RunChecks(context.Background())

	p.stats = capture.Stats{
		Streams:    1,
		Bytes:      20,
		Overflows:  3,
		Discarded:  8,
		Dispatcher: protocol.DispatcherStats{Malformed: 1},
	}
	m.RunChecks(context.Background())
	status := m.Status()
	if status["queue"].Level != LevelError {
		t.Errorf("queue = %+v", status["queue"])
	}
	if status["decode"].Level != LevelWarning {
		t.Errorf("decode = %+v", status["decode"])
	}

	p.stats.Bytes = 30
	m.RunChecks(context.Background())
	status = m.Status()
	if status["queue"].Level != LevelOK || status["decode"].Level != LevelOK {
		t.Errorf("counters unchanged but status = %+v", status)
	}
}

func TestDiskThresholds(t *testing.T) {
	m := newTestManager(t, nil, nil)
	cases := map[float64]string{
		50:  LevelOK,
		85:  LevelInfo,
		92:  LevelWarning,
		97:  LevelError,
		100: LevelCritical,
	}
	for used, want := range cases {
		used := used
		m.disk = func(string) (float64, uint64) { return used, 1 }
		if got := m.checkDisk().Level; got != want {
			t.Errorf("%.0f%%: level = %q, want %q", used, got, want)
		}
	}
}

func TestLevelChangesAreAnnounced(t *testing.T) {
	bus := events.NewEventBus()
	alerts := make(chan events.HealthAlertPayload, 4)
	bus.Subscribe(events.EventHealthAlert, "test", func(_ context.Context, e events.Event) error {
		alerts <- e.Payload.(events.HealthAlertPayload)
		return nil
	})

	m := newTestManager(t, nil, bus)
	m.disk = func(string) (float64, uint64) { return 96, 2 }
	m.RunChecks(context.Background())
	m.RunChecks(context.Background())

	select {
	case a := <-alerts:
		if a.Check != "disk" || a.Level != LevelError {
			t.Errorf("alert = %+v", a)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no alert emitted")
	}
	select {
	case a := <-alerts:
		t.Errorf("repeated alert for unchanged level: %+v", a)
	case <-time.After(100 * time.Millisecond):
	}
}
