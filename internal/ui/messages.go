package ui

import (
	"github.com/foxseedlab/koewake/internal/session"
	"github.com/foxseedlab/koewake/internal/transcript"
)

// StateChangedMsg carries a session state transition.
type StateChangedMsg struct {
	State session.State
}

// EntryAppendedMsg carries a final transcript entry.
type EntryAppendedMsg struct {
	Entry transcript.Entry
}

// PartialMsg updates the live, not yet final, line.
type PartialMsg struct {
	Label string
	Text  string
}

// FailureMsg carries a user-facing failure notice.
type FailureMsg struct {
	Message string
}

// StartResultMsg is returned when a start request finishes.
type StartResultMsg struct {
	Err error
}

// StopResultMsg is returned when a stop request finishes.
type StopResultMsg struct {
	Err error
}
