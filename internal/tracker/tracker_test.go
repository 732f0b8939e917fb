package tracker

import (
	"sync"
	"testing"
	"time"

	"github.com/energizer-project/combatlens/internal/session"
)

type change struct {
	seq    uint64
	to     uint64
	source string
}

type fakeSink struct {
	mu      sync.Mutex
	changes []change
	tags    []uint64
	fired   chan struct{}
}

func newFakeSink() *fakeSink {
	return &fakeSink{fired: make(chan struct{}, 16)}
}

func (f *fakeSink) OnInstanceChanged(seq uint64, reason session.Reason, to uint64, extra map[string]interface{}) {
	f.mu.Lock()
	src, _ := extra["source"].(string)
	f.changes = append(f.changes, change{seq: seq, to: to, source: src})
	f.mu.Unlock()
	f.fired <- struct{}{}
}

func (f *fakeSink) TagInstance(id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags = append(f.tags, id)
}

func (f *fakeSink) snapshot() ([]change, []uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]change(nil), f.changes...), append([]uint64(nil), f.tags...)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestFirstSceneIsAdoptedSilently(t *testing.T) {
	sink := newFakeSink()
	tr := New(sink, Config{})

	if tr.Status().State != "unknown" {
		t.Fatalf("initial state = %s", tr.Status().State)
	}
	tr.SetLocalPlayer(640 | 5<<16)
	tr.ObserveScene(100)
	tr.ObserveScene(100)

	changes, tags := sink.snapshot()
	if len(changes) != 0 {
		t.Fatalf("first scene caused rollover: %+v", changes)
	}
	if len(tags) != 1 || tags[0] != 100 {
		t.Fatalf("tags = %v", tags)
	}
	st := tr.Status()
	if st.State != "tracking" || st.Instance != 100 || st.LocalPlayer != 640|5<<16 {
		t.Errorf("status = %+v", st)
	}
}

func TestSceneChangeWithoutDebounceIsSynchronous(t *testing.T) {
	sink := newFakeSink()
	tr := New(sink, Config{})

	tr.ObserveScene(100)
	tr.ObserveScene(200)
	tr.ObserveScene(200)
	tr.ObserveScene(300)

	changes, _ := sink.snapshot()
	if len(changes) != 2 {
		t.Fatalf("changes = %+v", changes)
	}
	if changes[0] != (change{seq: 1, to: 200, source: SourceScene}) || changes[1] != (change{seq: 2, to: 300, source: SourceScene}) {
		t.Errorf("changes = %+v", changes)
	}
}

func TestDebounceCoalescesBursts(t *testing.T) {
	sink := newFakeSink()
	tr := New(sink, Config{Debounce: 30 * time.Millisecond})
	defer tr.Stop()

	tr.ObserveScene(100)
	tr.ObserveScene(200)
	tr.ObserveProbe(300, ConfidenceHigh)
	tr.ObserveScene(300)

	select {
	case <-sink.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("debounced transition never fired")
	}
	time.Sleep(60 * time.Millisecond)

	changes, _ := sink.snapshot()
	if len(changes) != 1 || changes[0].to != 300 || changes[0].source != SourceProbe {
		t.Fatalf("changes = %+v", changes)
	}
}

func TestReturnToCurrentCancelsPending(t *testing.T) {
	sink := newFakeSink()
	tr := New(sink, Config{Debounce: 30 * time.Millisecond})

	tr.ObserveScene(100)
	tr.ObserveScene(200)
	tr.ObserveScene(100)

	time.Sleep(80 * time.Millisecond)
	changes, _ := sink.snapshot()
	if len(changes) != 0 {
		t.Fatalf("cancelled transition fired: %+v", changes)
	}
}

func TestLowConfidenceProbeOnlyHints(t *testing.T) {
	sink := newFakeSink()
	tr := New(sink, Config{})

	tr.ObserveScene(100)
	tr.ObserveProbe(555, ConfidenceLow)

	changes, _ := sink.snapshot()
	if len(changes) != 0 {
		t.Fatalf("low confidence probe moved the tracker: %+v", changes)
	}
	if tr.Status().Hint != 555 {
		t.Errorf("hint = %d", tr.Status().Hint)
	}
}

func TestWipeThenSelfAppearRollsOver(t *testing.T) {
	sink := newFakeSink()
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	tr := New(sink, Config{Now: clk.Now, WipeWindow: 10 * time.Second})

	tr.ObserveScene(100)
	tr.ObserveProbe(777, ConfidenceLow)
	tr.ObserveAOIWipe()
	clk.Advance(3 * time.Second)
	tr.SelfAppeared()

	changes, _ := sink.snapshot()
	if len(changes) != 1 || changes[0].to != 777 || changes[0].source != SourceWipe {
		t.Fatalf("changes = %+v", changes)
	}

	// The wipe is consumed.
	tr.SelfAppeared()
	if changes, _ := sink.snapshot(); len(changes) != 1 {
		t.Fatalf("self appear without wipe rolled over: %+v", changes)
	}
}

func TestStaleWipeIsIgnored(t *testing.T) {
	sink := newFakeSink()
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	tr := New(sink, Config{Now: clk.Now, WipeWindow: 10 * time.Second})

	tr.ObserveScene(100)
	tr.ObserveProbe(777, ConfidenceLow)
	tr.ObserveAOIWipe()
	clk.Advance(11 * time.Second)
	tr.SelfAppeared()

	if changes, _ := sink.snapshot(); len(changes) != 0 {
		t.Fatalf("stale wipe rolled over: %+v", changes)
	}
}

func TestConfirmedSceneClearsHint(t *testing.T) {
	sink := newFakeSink()
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	tr := New(sink, Config{Now: clk.Now})

	tr.ObserveScene(100)
	tr.ObserveProbe(777, ConfidenceLow)
	tr.ObserveProbe(100, ConfidenceLow)
	if tr.Status().Hint != 777 {
		t.Fatalf("hint = %d, the current instance must not replace it", tr.Status().Hint)
	}
	tr.ObserveScene(100)
	if tr.Status().Hint != 0 {
		t.Fatalf("hint = %d after the instance was confirmed", tr.Status().Hint)
	}

	tr.ObservePopulation(-30)
	if tr.Status().Population != -30 {
		t.Errorf("population = %d", tr.Status().Population)
	}
}

func TestWipeWithoutHintLeavesKnownInstance(t *testing.T) {
	sink := newFakeSink()
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	tr := New(sink, Config{Now: clk.Now})

	tr.ObserveScene(100)
	tr.ObserveScene(100)
	tr.ObserveAOIWipe()
	clk.Advance(time.Second)
	tr.SelfAppeared()

	changes, _ := sink.snapshot()
	if len(changes) != 1 || changes[0] != (change{seq: 1, to: 0, source: SourceWipe}) {
		t.Fatalf("changes = %+v", changes)
	}
	if st := tr.Status(); st.Instance != 0 || st.Hint != 0 {
		t.Fatalf("status = %+v", st)
	}

	// The destination is learned afterwards and adopted without a rollover.
	tr.ObserveScene(200)
	changes, tags := sink.snapshot()
	if len(changes) != 1 {
		t.Fatalf("changes = %+v", changes)
	}
	if len(tags) != 2 || tags[1] != 200 {
		t.Fatalf("tags = %v", tags)
	}
	if st := tr.Status(); st.Instance != 200 || st.State != "tracking" {
		t.Errorf("status = %+v", st)
	}
}

func TestAdoptedInstanceMeansTracking(t *testing.T) {
	tr := New(newFakeSink(), Config{})
	tr.ObserveScene(42)
	if st := tr.Status(); st.State != "tracking" || st.LocalPlayer != 0 {
		t.Errorf("status = %+v", st)
	}
}
