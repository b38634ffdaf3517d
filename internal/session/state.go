package session

import "fmt"

// State is the lifecycle state of one recording session.
//
//	Idle -> Connecting -> Active -> Closing -> Closed
//	         |                        ^
//	         +-- capture fails: back to Idle
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateActive:
		return "Active"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Running reports whether a session in this state still holds, or is
// acquiring, resources.
func (s State) Running() bool {
	return s == StateConnecting || s == StateActive || s == StateClosing
}
