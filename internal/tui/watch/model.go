// Package watch is the live status view behind "mapswitch status --watch".
// It polls the daemon and redraws until the user quits.
package watch

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/mapswitch/internal/orchestrator"
	"github.com/Iron-Ham/mapswitch/internal/tui/styles"
)

// DefaultInterval is the polling period when none is given.
const DefaultInterval = time.Second

// fetchTimeout bounds one status request.
const fetchTimeout = 5 * time.Second

// StatusSource is what the view polls. *api.Client implements it.
type StatusSource interface {
	Status(ctx context.Context) (orchestrator.Status, error)
}

// tickMsg carries the poll generation it was scheduled for; stale ticks
// from before a manual refresh are dropped.
type tickMsg struct {
	seq int
}

type statusMsg struct {
	status orchestrator.Status
	err    error
}

// Model is the bubbletea model of the watch view.
type Model struct {
	source   StatusSource
	interval time.Duration
	now      func() time.Time

	status  orchestrator.Status
	loaded  bool
	err     error
	width   int
	polling bool
	seq     int
}

// New creates a Model polling source every interval.
func New(source StatusSource, interval time.Duration) Model {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return Model{source: source, interval: interval, now: time.Now}
}

// Run starts the view on the terminal and blocks until the user quits.
func Run(source StatusSource, interval time.Duration) error {
	_, err := tea.NewProgram(New(source, interval), tea.WithAltScreen()).Run()
	return err
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.fetch()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			if !m.polling {
				m.polling = true
				return m, m.fetch()
			}
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case statusMsg:
		m.polling = false
		m.err = msg.err
		if msg.err == nil {
			m.status = msg.status
			m.loaded = true
		}
		m.seq++
		return m, m.tick(m.seq)

	case tickMsg:
		if msg.seq != m.seq || m.polling {
			return m, nil
		}
		m.polling = true
		return m, m.fetch()
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	var out string
	if m.loaded {
		out = Render(m.status, m.now(), m.width)
	} else if m.err == nil {
		out = styles.Muted.Render("Connecting to the mapswitch daemon...") + "\n"
	}
	if m.err != nil {
		out += styles.ErrorMsg.Render("Error: "+m.err.Error()) + "\n"
	}
	return out + styles.HelpBar.Render("r refresh  q quit")
}

func (m Model) fetch() tea.Cmd {
	source := m.source
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		st, err := source.Status(ctx)
		return statusMsg{status: st, err: err}
	}
}

func (m Model) tick(seq int) tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg {
		return tickMsg{seq: seq}
	})
}
