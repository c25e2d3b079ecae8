// Package tui renders the live ingestion dashboard for `kijko watch`.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	prog "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Anansitrading/kijko/pkg/progress"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 60
)

// Pipeline phases in execution order, with display labels.
var phaseOrder = []struct {
	key   string
	label string
}{
	{"repository_fetch", "Fetch"},
	{"parsing", "Parse"},
	{"chunking", "Chunk"},
	{"optimization", "Optimize"},
	{"indexing", "Index"},
}

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("46")).
		Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	sparkStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51"))
)

// Message types delivered from the progress client goroutine.
type snapshotMsg progress.Snapshot
type stateMsg progress.State

// Model is the bubbletea model for the watch dashboard.
type Model struct {
	projectID string
	client    *progress.Client
	updates   <-chan tea.Msg

	state      progress.State
	snap       progress.Snapshot
	haveSnap   bool
	history    []float64
	lastUpdate time.Time
	quitting   bool

	spin       spinner.Model
	overallBar prog.Model
	phaseBar   prog.Model
}

// NewModel creates the dashboard model. updates carries snapshotMsg and
// stateMsg values from the client callbacks; use Pump to build it.
func NewModel(projectID string, client *progress.Client, updates <-chan tea.Msg) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("51"))

	return Model{
		projectID: projectID,
		client:    client,
		updates:   updates,
		state:     progress.StateDisconnected,
		history:   make([]float64, 0, historySize),
		spin:      sp,
		overallBar: prog.New(
			prog.WithGradient("#00ffff", "#ff00ff"),
			prog.WithWidth(40),
		),
		phaseBar: prog.New(
			prog.WithGradient("#00ff00", "#ffff00"),
			prog.WithWidth(40),
		),
	}
}

// Pump returns the callback pair for progress.Options and the channel
// the model consumes.
func Pump() (onSnapshot func(progress.Snapshot), onState func(progress.State), updates <-chan tea.Msg) {
	ch := make(chan tea.Msg, 32)
	onSnapshot = func(s progress.Snapshot) {
		select {
		case ch <- snapshotMsg(s):
		default:
		}
	}
	onState = func(s progress.State) {
		select {
		case ch <- stateMsg(s):
		default:
		}
	}
	return onSnapshot, onState, ch
}

func (m Model) listen() tea.Cmd {
	return func() tea.Msg {
		return <-m.updates
	}
}

// Init starts the spinner and the update listener.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.listen())
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			if m.client != nil {
				m.client.Reconnect()
			}
			return m, nil
		}

	case snapshotMsg:
		m.snap = progress.Snapshot(msg)
		m.haveSnap = true
		m.lastUpdate = time.Now()
		m.history = appendToHistory(m.history, m.snap.OverallPercent)
		return m, m.listen()

	case stateMsg:
		m.state = progress.State(msg)
		if m.state == progress.StateCompleted || m.state == progress.StateError {
			return m, tea.Sequence(m.listen(), tea.Quit)
		}
		return m, m.listen()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting && m.state != progress.StateCompleted && m.state != progress.StateError {
		return ""
	}

	var b strings.Builder

	header := headerStyle.Render(" kijko watch ")
	headerLine := fmt.Sprintf("%s   %s %s   %s",
		connectionBadge(m.state, m.spin.View()),
		dimStyle.Render("Project:"),
		valueStyle.Render(m.projectID),
		dimStyle.Render(lastUpdateLabel(m.lastUpdate)),
	)
	b.WriteString(header + "\n" + headerLine + "\n")

	b.WriteString("\n" + sectionStyle.Render("┃ Pipeline") + "\n")
	for _, phase := range phaseOrder {
		b.WriteString("  " + m.phaseLine(phase.key, phase.label) + "\n")
	}

	b.WriteString("\n" + sectionStyle.Render("┃ Overall") + "\n")
	overall := m.snap.OverallPercent / 100
	if overall > 1 {
		overall = 1
	}
	b.WriteString(labelStyle.Render("  Progress: ") +
		m.overallBar.ViewAs(overall) +
		" " + dimStyle.Render(fmt.Sprintf("%.0f%%", m.snap.OverallPercent)) + "\n")
	b.WriteString(labelStyle.Render("  Trend:    ") + renderSparkline(m.history) + "\n")
	if m.snap.EstimatedEnd != nil && !m.snap.Status.Terminal() {
		eta := time.Until(*m.snap.EstimatedEnd).Round(time.Second)
		if eta > 0 {
			b.WriteString(labelStyle.Render("  ETA:      ") + valueStyle.Render(eta.String()) + "\n")
		}
	}

	if len(m.snap.Metrics) > 0 {
		b.WriteString("\n" + sectionStyle.Render("┃ Metrics") + "\n")
		b.WriteString("  " + metricsLine(m.snap.Metrics) + "\n")
	}

	if m.snap.ErrorMessage != "" {
		b.WriteString("\n" + errStyle.Render("✗ "+m.snap.ErrorCode) + " " +
			dimStyle.Render(m.snap.ErrorMessage) + "\n")
	}
	if clientErr := m.clientErr(); clientErr != "" {
		b.WriteString("\n" + errStyle.Render("✗ "+clientErr) + "\n")
	}

	footer := footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ") +
		footerKeyStyle.Render("[r]") + footerStyle.Render(" reconnect")
	b.WriteString("\n" + footer)

	return containerStyle.Render(b.String())
}

func (m Model) clientErr() string {
	if m.state != progress.StateError || m.client == nil {
		return ""
	}
	if err := m.client.Err(); err != nil {
		return err.Error()
	}
	return ""
}

// phaseLine renders one pipeline phase with its completion marker.
func (m Model) phaseLine(key, label string) string {
	idx := phaseIndex(key)
	current := phaseIndex(m.snap.Phase)

	marker := dimStyle.Render("○")
	name := dimStyle.Render(label)

	switch {
	case !m.haveSnap:
	case m.snap.Status == progress.StatusCompleted || idx < current:
		marker = okStyle.Render("✓")
		name = valueStyle.Render(label)
	case idx == current && m.snap.Status == progress.StatusFailed:
		marker = errStyle.Render("✗")
		name = errStyle.Render(label)
	case idx == current:
		marker = m.spin.View()
		name = valueStyle.Render(label)
		pct := m.snap.PhasePercent / 100
		if pct > 1 {
			pct = 1
		}
		return fmt.Sprintf("%s %-9s %s %s", marker, name,
			m.phaseBar.ViewAs(pct),
			dimStyle.Render(fmt.Sprintf("%.0f%%", m.snap.PhasePercent)))
	}

	return fmt.Sprintf("%s %s", marker, name)
}

func phaseIndex(key string) int {
	for i, phase := range phaseOrder {
		if phase.key == key {
			return i
		}
	}
	return -1
}

func connectionBadge(state progress.State, spin string) string {
	switch state {
	case progress.StateConnected:
		return okStyle.Render("● LIVE")
	case progress.StateConnecting:
		return warnStyle.Render(spin + " CONNECTING")
	case progress.StateReconnecting:
		return warnStyle.Render(spin + " RECONNECTING")
	case progress.StatePolling:
		return warnStyle.Render("◌ POLLING")
	case progress.StateCompleted:
		return okStyle.Render("✓ DONE")
	case progress.StateError:
		return errStyle.Render("✗ ERROR")
	default:
		return dimStyle.Render("○ OFFLINE")
	}
}

func lastUpdateLabel(t time.Time) string {
	if t.IsZero() {
		return "waiting for updates"
	}
	return "updated " + t.Format("15:04:05")
}

func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

func renderSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}

	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}
	return sparkStyle.Render(spark.View())
}

// metricsLine formats the snapshot metrics in a stable order.
func metricsLine(metrics map[string]int64) string {
	keys := []string{"files_parsed", "chunks_created", "chunks_indexed", "secrets_redacted", "tokens_estimated"}
	var parts []string
	for _, k := range keys {
		if v, ok := metrics[k]; ok {
			parts = append(parts, labelStyle.Render(metricLabel(k)+": ")+valueStyle.Render(fmt.Sprintf("%d", v)))
		}
	}
	return strings.Join(parts, "  ")
}

func metricLabel(key string) string {
	switch key {
	case "files_parsed":
		return "Files"
	case "chunks_created":
		return "Chunks"
	case "chunks_indexed":
		return "Indexed"
	case "secrets_redacted":
		return "Redacted"
	case "tokens_estimated":
		return "Tokens"
	}
	return key
}
