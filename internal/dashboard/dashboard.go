// Package dashboard renders a live terminal view of the daemon status.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sweeney/stride-sync/internal/status"
)

// Source provides status snapshots. *status.Tracker satisfies it.
type Source interface {
	Snapshot() status.Snapshot
}

// DefaultRefresh is how often the dashboard re-reads the tracker.
const DefaultRefresh = 250 * time.Millisecond

type snapshotMsg status.Snapshot

// Model is the bubbletea model for the dashboard.
type Model struct {
	source  Source
	refresh time.Duration
	snap    status.Snapshot
	ready   bool
	width   int
}

// New creates a dashboard model polling source every refresh.
func New(source Source, refresh time.Duration) Model {
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	return Model{source: source, refresh: refresh, width: 60}
}

func (m Model) poll() tea.Cmd {
	return tea.Tick(m.refresh, func(time.Time) tea.Msg {
		return snapshotMsg(m.source.Snapshot())
	})
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	src := m.source
	return func() tea.Msg { return snapshotMsg(src.Snapshot()) }
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case snapshotMsg:
		m.snap = status.Snapshot(msg)
		m.ready = true
		return m, m.poll()
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "stride-sync: waiting for status...\n"
	}
	s := m.snap

	var b strings.Builder
	b.WriteString("stride-sync\n")
	b.WriteString(strings.Repeat("=", 11) + "\n\n")

	fmt.Fprintf(&b, "Cadence  %4.0f spm\n", s.Cadence)
	fmt.Fprintf(&b, "Tempo    %4s bpm\n", orDash(s.Tempo))
	fmt.Fprintf(&b, "Sync     %4s %%  %s\n", orDash(s.Score), bar(s.Score, m.barWidth()))
	if s.HighSync() {
		b.WriteString("\n  >>> IN SYNC <<<\n")
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "Last frame  %s\n", frameOrNone(s))
	fmt.Fprintf(&b, "History     %s\n", history(s.History))
	fmt.Fprintf(&b, "Frames      %d (active %d, still %d, undefined %d, high %d)\n",
		s.Counts.Frames, s.Counts.Active, s.Counts.Stationary, s.Counts.Undefined, s.Counts.HighSync)
	fmt.Fprintf(&b, "Readings    %d (%d malformed)\n", s.Source.Produced, s.Source.Malformed)
	fmt.Fprintf(&b, "Tempo poll  %d ok, %d failed, last %s bpm\n", s.TempoPoll.OK, s.TempoPoll.Failed, orDash(s.TempoPoll.LastBPM))

	mqttState := "disconnected"
	if s.MQTTConnected {
		mqttState = "connected"
	}
	fmt.Fprintf(&b, "MQTT        %s\n", mqttState)
	fmt.Fprintf(&b, "Uptime      %s\n", s.Uptime().Truncate(time.Second))

	b.WriteString("\n(q to quit)\n")
	return b.String()
}

func (m Model) barWidth() int {
	w := m.width - 24
	if w > 40 {
		w = 40
	}
	if w < 10 {
		w = 10
	}
	return w
}

func orDash(v *float64) string {
	if v == nil {
		return "--"
	}
	return fmt.Sprintf("%.0f", *v)
}

// bar renders a 0..100 score as a fixed-width gauge.
func bar(score *float64, width int) string {
	if score == nil {
		return "[" + strings.Repeat(" ", width) + "]"
	}
	filled := int(*score / 100 * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

func frameOrNone(s status.Snapshot) string {
	if s.LastFrame == "" {
		return "NONE"
	}
	return string(s.LastFrame)
}

func history(h []float64) string {
	if len(h) == 0 {
		return "-"
	}
	parts := make([]string, len(h))
	for i, v := range h {
		parts[i] = fmt.Sprintf("%.0f", v)
	}
	return strings.Join(parts, " ")
}

// Run shows the dashboard until the user quits or ctx is cancelled.
func Run(ctx context.Context, source Source, refresh time.Duration) error {
	p := tea.NewProgram(New(source, refresh), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}
