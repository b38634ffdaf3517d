// Package ui is the terminal front end: start and stop a recording and watch
// its transcript arrive.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/foxseedlab/koewake/internal/diarization"
	"github.com/foxseedlab/koewake/internal/session"
	"github.com/foxseedlab/koewake/internal/transcript"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	startTimeout = 30 * time.Second
	stopTimeout  = 10 * time.Second
	// Header, status, two dividers, footer.
	chromeLines = 5
)

// Controller starts and stops recordings.
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Model is the root bubbletea model.
type Model struct {
	ctrl       Controller
	backendURL string

	// Recording state
	state    session.State
	starting bool
	quitting bool

	// Transcript
	entries      []transcript.Entry
	partialLabel string
	partialText  string

	// UI state
	width  int
	height int

	errorMessage string
}

func New(ctrl Controller, backendURL string) Model {
	return Model{
		ctrl:       ctrl,
		backendURL: backendURL,
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func startCmd(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
		defer cancel()
		return StartResultMsg{Err: ctrl.Start(ctx)}
	}
}

func stopCmd(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		return StopResultMsg{Err: ctrl.Stop(ctx)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case StateChangedMsg:
		m.state = msg.State
		switch msg.State {
		case session.StateConnecting:
			// A new recording starts with an empty transcript.
			m.entries = nil
			m.clearPartial()
		case session.StateIdle, session.StateClosed:
			m.clearPartial()
		}
		return m, nil

	case EntryAppendedMsg:
		m.entries = append(m.entries, msg.Entry)
		m.clearPartial()
		return m, nil

	case PartialMsg:
		m.partialLabel = msg.Label
		m.partialText = msg.Text
		return m, nil

	case FailureMsg:
		m.errorMessage = msg.Message
		return m, nil

	case StartResultMsg:
		m.starting = false
		if m.quitting {
			return m, stopCmd(m.ctrl)
		}
		return m, nil

	case StopResultMsg:
		if m.quitting {
			return m, tea.Quit
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyStart:
		if m.starting || m.quitting || m.state.Running() {
			return m, nil
		}
		m.starting = true
		m.errorMessage = ""
		return m, startCmd(m.ctrl)

	case KeyStop:
		if !m.state.Running() {
			return m, nil
		}
		return m, stopCmd(m.ctrl)

	case KeyQuit, KeyQuitUpper, KeyCtrlC:
		if m.quitting {
			return m, nil
		}
		m.quitting = true
		if m.starting {
			// Stop once the start request returns.
			return m, nil
		}
		if m.state.Running() {
			return m, stopCmd(m.ctrl)
		}
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) clearPartial() {
	m.partialLabel = ""
	m.partialText = ""
}

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderStatusBar())
	sections = append(sections, DividerStyle.Render(strings.Repeat("─", m.width)))
	sections = append(sections, m.renderTranscript())
	sections = append(sections, DividerStyle.Render(strings.Repeat("─", m.width)))
	if m.errorMessage != "" {
		sections = append(sections, ErrorStyle.Render("! "+m.errorMessage))
	}
	sections = append(sections, m.renderFooter())
	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	return TitleStyle.Render("KOEWAKE") + DimStyle.Render(" "+m.backendURL)
}

func (m Model) renderStatusBar() string {
	switch m.state {
	case session.StateActive:
		return RecordingDotStyle.Render("● REC") + " " + LiveBadgeStyle.Render(m.state.String())
	case session.StateConnecting, session.StateClosing:
		return ConnectingDotStyle.Render("◌ "+m.state.String()) + DimStyle.Render("...")
	default:
		if m.starting {
			return ConnectingDotStyle.Render("◌ Starting") + DimStyle.Render("...")
		}
		return IdleDotStyle.Render("○ IDLE") + DimStyle.Render(fmt.Sprintf(" %d entries", len(m.entries)))
	}
}

func (m Model) renderTranscript() string {
	lines := make([]string, 0, len(m.entries)+1)
	for _, e := range m.entries {
		lines = append(lines, renderEntry(e))
	}
	if m.partialText != "" {
		lines = append(lines, labelStyle(m.partialLabel).Render("["+m.partialLabel+"]")+" "+PartialTextStyle.Render(m.partialText+"…"))
	}
	if len(lines) == 0 {
		return DimStyle.Render("Press r to start recording.")
	}

	// Keep the newest lines in view.
	if room := m.height - chromeLines; room > 0 && len(lines) > room {
		lines = lines[len(lines)-room:]
	}
	return strings.Join(lines, "\n")
}

func renderEntry(e transcript.Entry) string {
	return TimestampStyle.Render(e.ReceivedAt.Format("15:04:05")) + " " +
		labelStyle(e.Label()).Render("["+e.Label()+"]") + " " + e.Text
}

func labelStyle(label string) lipgloss.Style {
	switch label {
	case diarization.RoleUser.String():
		return UserLabelStyle
	case diarization.RoleAIAgent.String():
		return AgentLabelStyle
	default:
		return OtherLabelStyle
	}
}

func (m Model) renderFooter() string {
	keys := []struct{ key, desc string }{
		{KeyStart, "start"},
		{KeyStop, "stop"},
		{KeyQuit, "quit"},
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, FooterKeyStyle.Render(k.key)+" "+FooterDescStyle.Render(k.desc))
	}
	return strings.Join(parts, "  ")
}
