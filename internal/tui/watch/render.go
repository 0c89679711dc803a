package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/mapswitch/internal/orchestrator"
	"github.com/Iron-Ham/mapswitch/internal/session"
	"github.com/Iron-Ham/mapswitch/internal/tui/styles"
)

// maxBroadcasts is how many recent broadcasts the status view lists.
const maxBroadcasts = 5

// Render draws st as it looks at now. width <= 0 leaves lines unwrapped.
// The status command prints this directly when not watching.
func Render(st orchestrator.Status, now time.Time, width int) string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("mapswitch"))
	b.WriteString("\n")

	current := st.Current
	if current == "" {
		current = styles.Muted.Render("(none)")
	}
	b.WriteString(field("Current map", current))
	b.WriteString(field("Slots", fmt.Sprintf("%d", st.SlotCount)))
	b.WriteString(field("Server", serverState(st.ServerRunning)))
	b.WriteString(field("Gate", gateState(st.GateHeld)))
	b.WriteString(field("Next map", rollingState(st.Rolling, now)))

	if st.Vote != nil {
		b.WriteString("\n")
		b.WriteString(renderVote(*st.Vote, now))
	}

	if len(st.Sessions) > 0 {
		b.WriteString("\n")
		b.WriteString(styles.SectionTitle.Render("Sessions"))
		b.WriteString("\n")
		for _, info := range st.Sessions {
			b.WriteString(fmt.Sprintf("  %-10s %s  %s\n",
				info.Kind, info.ID, styles.Muted.Render("for "+roundDuration(now.Sub(info.StartedAt)))))
		}
	}

	if len(st.Broadcasts) > 0 {
		b.WriteString("\n")
		b.WriteString(styles.SectionTitle.Render("Recent broadcasts"))
		b.WriteString("\n")
		msgs := st.Broadcasts
		if len(msgs) > maxBroadcasts {
			msgs = msgs[len(msgs)-maxBroadcasts:]
		}
		for _, m := range msgs {
			line := fmt.Sprintf("  %s %s", styles.Muted.Render(m.At.Local().Format("15:04:05")), m.Text)
			b.WriteString(styles.Truncate(line, width))
			b.WriteString("\n")
		}
	}

	out := b.String()
	if width > 0 {
		out = lipgloss.NewStyle().Width(width).Render(out)
	}
	return out
}

func field(label, value string) string {
	return styles.Label.Render(label) + value + "\n"
}

func serverState(running bool) string {
	if running {
		return styles.Secondary.Render("running")
	}
	return styles.Error.Render("stopped")
}

func gateState(held bool) string {
	if held {
		return styles.Warning.Render("busy")
	}
	return styles.Muted.Render("free")
}

func rollingState(r *orchestrator.RollingStatus, now time.Time) string {
	if r == nil {
		return styles.Muted.Render("rolling off")
	}
	if r.Pending {
		return styles.Warning.Render("switching now")
	}
	remaining := r.NextFire.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return fmt.Sprintf("in %s %s", roundDuration(remaining),
		styles.Muted.Render("("+r.NextFire.Local().Format("15:04")+")"))
}

func renderVote(v session.VoteState, now time.Time) string {
	var b strings.Builder
	title := fmt.Sprintf("Vote: %s", v.Target)
	if v.Overtime > 0 {
		title += fmt.Sprintf(" (overtime %d)", v.Overtime)
	}
	b.WriteString(styles.SectionTitle.Render(title))
	b.WriteString("\n")

	left := v.Deadline.Sub(now)
	if left < 0 {
		left = 0
	}
	b.WriteString(styles.Muted.Render(fmt.Sprintf("  started by %s, %d ballot(s), %s left", v.Initiator, v.Ballots, roundDuration(left))))
	b.WriteString("\n")

	for _, t := range v.Options {
		name := styles.OptionColor(t.Option.Color).Render(t.Option.Name)
		line := fmt.Sprintf("  %-3d %s  %s", t.Votes, name, t.Option.Label)
		if !t.Active {
			line = styles.Muted.Strikethrough(true).Render(fmt.Sprintf("  %-3d %s  %s", t.Votes, t.Option.Name, t.Option.Label))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return styles.ContentBox.Render(strings.TrimRight(b.String(), "\n")) + "\n"
}

// roundDuration shortens d to whole seconds.
func roundDuration(d time.Duration) string {
	return d.Round(time.Second).String()
}
