package ui

import (
	"github.com/foxseedlab/koewake/internal/session"
	"github.com/foxseedlab/koewake/internal/transcript"

	tea "github.com/charmbracelet/bubbletea"
)

// ProgramListener forwards recording events into a running tea.Program.
type ProgramListener struct {
	send func(tea.Msg)
}

func NewProgramListener(p *tea.Program) *ProgramListener {
	return &ProgramListener{send: p.Send}
}

func (l *ProgramListener) StateChanged(state session.State) {
	l.send(StateChangedMsg{State: state})
}

func (l *ProgramListener) EntryAppended(entry transcript.Entry) {
	l.send(EntryAppendedMsg{Entry: entry})
}

func (l *ProgramListener) PartialReceived(label, text string) {
	l.send(PartialMsg{Label: label, Text: text})
}

func (l *ProgramListener) Failed(message string) {
	l.send(FailureMsg{Message: message})
}
