package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/energizer-project/combatlens/internal/events"
	"github.com/energizer-project/combatlens/internal/session"
	"github.com/energizer-project/combatlens/internal/session/mocks"
	"github.com/energizer-project/combatlens/internal/state"
	"github.com/energizer-project/combatlens/internal/stats"
)

type fakeEngine struct {
	paused  bool
	cleared []bool
}

func (f *fakeEngine) AllUsersSummary() map[uint64]session.UserSummary {
	return map[uint64]session.UserSummary{
		1: {Name: "Alice", Profession: "Stormblade", TotalDamage: stats.Values{Total: 500}},
		2: {Name: "Bob", Profession: "Verdant Oracle", TotalDamage: stats.Values{Total: 900}},
	}
}

func (f *fakeEngine) UserSkills(uid uint64) (state.UserReport, bool) {
	if uid != 1 {
		return state.UserReport{}, false
	}
	return state.UserReport{UID: 1, Name: "Alice", Skills: map[uint64]state.SkillReport{
		1701: {DisplayName: "Iaido Slash", Type: "damage", TotalDamage: 400, TotalCount: 4},
	}}, true
}

func (f *fakeEngine) AllEnemies() map[uint64]state.EnemyInfo {
	return map[uint64]state.EnemyInfo{77: {Name: "Golem", HP: 5, MaxHP: 50}}
}

func (f *fakeEngine) CurrentSession() state.SessionInfo {
	return state.SessionInfo{ID: "abc", Name: "Session 1"}
}

func (f *fakeEngine) ClearAll(persist bool) (bool, error) {
	f.cleared = append(f.cleared, persist)
	return persist, nil
}

func (f *fakeEngine) Paused() bool          { return f.paused }
func (f *fakeEngine) SetPaused(paused bool) { f.paused = paused }

func run(t *testing.T, c *CLI, line string) string {
	t.Helper()
	var out bytes.Buffer
	c.out = &out
	parts := strings.Fields(line)
	if err := c.execute(context.Background(), parts[0], parts[1:]); err != nil {
		out.WriteString("Error: " + err.Error())
	}
	return out.String()
}

func TestStatusOrdersByDamage(t *testing.T) {
	c := NewCLI(events.NewEventBus(), &fakeEngine{}, nil, nil, nil)
	out := run(t, c, "status")
	bob, alice := strings.Index(out, "Bob"), strings.Index(out, "Alice")
	if bob < 0 || alice < 0 || bob > alice {
		t.Errorf("unexpected order:\n%s", out)
	}
}

func TestSkillsCommand(t *testing.T) {
	c := NewCLI(events.NewEventBus(), &fakeEngine{}, nil, nil, nil)
	if out := run(t, c, "skills 1"); !strings.Contains(out, "Iaido Slash") {
		t.Errorf("skills output:\n%s", out)
	}
	if out := run(t, c, "skills 9"); !strings.Contains(out, "not found") {
		t.Errorf("missing user output: %s", out)
	}
	if out := run(t, c, "skills"); !strings.Contains(out, "usage") {
		t.Errorf("no arg output: %s", out)
	}
}

func TestClearPauseResume(t *testing.T) {
	engine := &fakeEngine{}
	c := NewCLI(events.NewEventBus(), engine, nil, nil, nil)

	if out := run(t, c, "clear save"); !strings.Contains(out, "session saved") {
		t.Errorf("clear save output: %s", out)
	}
	run(t, c, "clear")
	if len(engine.cleared) != 2 || !engine.cleared[0] || engine.cleared[1] {
		t.Errorf("cleared = %v", engine.cleared)
	}

	run(t, c, "pause")
	if !engine.paused {
		t.Error("pause did not apply")
	}
	run(t, c, "resume")
	if engine.paused {
		t.Error("resume did not apply")
	}
}

func TestSessionsCommand(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	started := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	store.EXPECT().ListSessions().Return([]session.Summary{{
		ID: "s1", Name: "Raid night", StartedAt: started, EndedAt: started.Add(90 * time.Second), PartySize: 4,
	}}, nil)

	c := NewCLI(events.NewEventBus(), &fakeEngine{}, store, nil, nil)
	out := run(t, c, "sessions")
	if !strings.Contains(out, "Raid night") || !strings.Contains(out, "1m30s") {
		t.Errorf("sessions output:\n%s", out)
	}

	c.sessions = nil
	if out := run(t, c, "sessions"); !strings.Contains(out, "disabled") {
		t.Errorf("disabled output: %s", out)
	}
}

func TestQuitEmitsShutdown(t *testing.T) {
	bus := events.NewEventBus()
	got := make(chan struct{}, 1)
	bus.Subscribe(events.EventShutdown, "test", func(context.Context, events.Event) error {
		got <- struct{}{}
		return nil
	})

	var out bytes.Buffer
	c := NewCLI(bus, &fakeEngine{}, nil, strings.NewReader("pause\nquit\n"), &out)
	c.Start(context.Background())

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown was not emitted")
	}
	if !strings.Contains(out.String(), "Recording paused") {
		t.Errorf("output: %s", out.String())
	}
}
