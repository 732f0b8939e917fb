// Package cli implements the interactive operator console of combatlens.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/combatlens/internal/events"
	"github.com/energizer-project/combatlens/internal/session"
	"github.com/energizer-project/combatlens/internal/state"
)

// Engine is the live state the console reads and controls.
type Engine interface {
	AllUsersSummary() map[uint64]session.UserSummary
	UserSkills(uid uint64) (state.UserReport, bool)
	AllEnemies() map[uint64]state.EnemyInfo
	CurrentSession() state.SessionInfo
	ClearAll(persist bool) (bool, error)
	Paused() bool
	SetPaused(paused bool)
}

// CLI provides an interactive command-line interface.
type CLI struct {
	eventBus *events.EventBus
	engine   Engine
	sessions session.Store
	in       io.Reader
	out      io.Writer
}

// NewCLI creates a new CLI handler. sessions may be nil.
func NewCLI(eventBus *events.EventBus, engine Engine, sessions session.Store, in io.Reader, out io.Writer) *CLI {
	return &CLI{
		eventBus: eventBus,
		engine:   engine,
		sessions: sessions,
		in:       in,
		out:      out,
	}
}

// Start reads commands until input ends or ctx is cancelled.
func (c *CLI) Start(ctx context.Context) {
	fmt.Fprintln(c.out, "\ncombatlens console ready. Type 'help' for available commands.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(c.out, "combatlens> ")
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				log.Debug().Msg("CLI: input closed")
				return
			}
			parts := strings.Fields(line)
			if len(parts) == 0 {
				continue
			}
			if err := c.execute(ctx, strings.ToLower(parts[0]), parts[1:]); err != nil {
				fmt.Fprintf(c.out, "Error: %v\n", err)
			}
		}
	}
}

// execute processes a single CLI command.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		c.printStatus()
	case "enemies", "e":
		c.printEnemies()
	case "skills":
		return c.printSkills(args)
	case "sessions":
		return c.printSessions()
	case "clear":
		return c.cmdClear(args)
	case "pause":
		c.engine.SetPaused(true)
		fmt.Fprintln(c.out, "Recording paused")
	case "resume":
		c.engine.SetPaused(false)
		fmt.Fprintln(c.out, "Recording resumed")
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Shutting down combatlens...")
		c.eventBus.Emit(ctx, events.Event{
			Type:   events.EventShutdown,
			Source: "cli",
		})
	default:
		fmt.Fprintf(c.out, "Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

func (c *CLI) printHelp() {
	fmt.Fprintln(c.out, "\n  status            Live damage and healing per player")
	fmt.Fprintln(c.out, "  enemies           Known enemies with their health")
	fmt.Fprintln(c.out, "  skills <uid>      Skill breakdown of one player")
	fmt.Fprintln(c.out, "  sessions          Stored sessions, newest first")
	fmt.Fprintln(c.out, "  clear [save]      Reset statistics, optionally saving the session")
	fmt.Fprintln(c.out, "  pause | resume    Stop or restart recording")
	fmt.Fprintln(c.out, "  quit              Shut down combatlens")
	fmt.Fprintln(c.out)
}

func (c *CLI) table(header []string) *tablewriter.Table {
	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	return tw
}

// printStatus displays the live user summaries ordered by damage.
func (c *CLI) printStatus() {
	sess := c.engine.CurrentSession()
	fmt.Fprintf(c.out, "\n  Session: %s (%s), started %s", sess.Name, sess.ID, sess.StartedAt.Format(time.TimeOnly))
	if c.engine.Paused() {
		fmt.Fprint(c.out, " [PAUSED]")
	}
	fmt.Fprintln(c.out)

	users := c.engine.AllUsersSummary()
	uids := make([]uint64, 0, len(users))
	for uid := range users {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool {
		return users[uids[i]].TotalDamage.Total > users[uids[j]].TotalDamage.Total
	})

	tw := c.table([]string{"UID", "Name", "Profession", "Damage", "DPS", "Healing", "HPS", "Taken", "Deaths"})
	for _, uid := range uids {
		u := users[uid]
		tw.Append([]string{
			strconv.FormatUint(uid, 10),
			u.Name,
			u.Profession,
			strconv.FormatUint(u.TotalDamage.Total, 10),
			fmt.Sprintf("%.0f", u.TotalDPS),
			strconv.FormatUint(u.TotalHealing.Total, 10),
			fmt.Sprintf("%.0f", u.TotalHPS),
			strconv.FormatUint(u.TakenDamage, 10),
			strconv.Itoa(u.DeadCount),
		})
	}
	tw.Render()
	fmt.Fprintln(c.out)
}

func (c *CLI) printEnemies() {
	enemies := c.engine.AllEnemies()
	ids := make([]uint64, 0, len(enemies))
	for id := range enemies {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	tw := c.table([]string{"ID", "Name", "HP", "Max HP"})
	for _, id := range ids {
		e := enemies[id]
		tw.Append([]string{
			strconv.FormatUint(id, 10),
			e.Name,
			strconv.FormatInt(e.HP, 10),
			strconv.FormatInt(e.MaxHP, 10),
		})
	}
	tw.Render()
}

func (c *CLI) printSkills(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: skills <uid>")
	}
	uid, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid uid: %s", args[0])
	}
	report, ok := c.engine.UserSkills(uid)
	if !ok {
		return fmt.Errorf("user %d not found", uid)
	}

	fmt.Fprintf(c.out, "\n  %s (%s)\n", report.Name, report.Profession)

	ids := make([]uint64, 0, len(report.Skills))
	for id := range report.Skills {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return report.Skills[ids[i]].TotalDamage > report.Skills[ids[j]].TotalDamage
	})

	tw := c.table([]string{"Skill", "Type", "Total", "Hits", "Crit %", "Lucky %"})
	for _, id := range ids {
		s := report.Skills[id]
		tw.Append([]string{
			s.DisplayName,
			s.Type,
			strconv.FormatUint(s.TotalDamage, 10),
			strconv.FormatUint(s.TotalCount, 10),
			fmt.Sprintf("%.1f", s.CritRate*100),
			fmt.Sprintf("%.1f", s.LuckyRate*100),
		})
	}
	tw.Render()
	return nil
}

func (c *CLI) printSessions() error {
	if c.sessions == nil {
		return fmt.Errorf("session storage is disabled")
	}
	list, err := c.sessions.ListSessions()
	if err != nil {
		return err
	}

	tw := c.table([]string{"ID", "Name", "Started", "Duration", "Players", "End"})
	for _, s := range list {
		tw.Append([]string{
			s.ID,
			s.Name,
			s.StartedAt.Local().Format(time.DateTime),
			s.EndedAt.Sub(s.StartedAt).Round(time.Second).String(),
			strconv.Itoa(s.PartySize),
			string(s.ReasonEnd),
		})
	}
	tw.Render()
	return nil
}

func (c *CLI) cmdClear(args []string) error {
	save := len(args) > 0 && strings.EqualFold(args[0], "save")
	persisted, err := c.engine.ClearAll(save)
	if err != nil {
		return err
	}
	if persisted {
		fmt.Fprintln(c.out, "Statistics cleared, session saved")
	} else {
		fmt.Fprintln(c.out, "Statistics cleared")
	}
	return nil
}
