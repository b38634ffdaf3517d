package diarization

import "fmt"

// Tag is the opaque speaker identifier assigned by the diarization backend.
type Tag int

// Role is a stable, human-meaningful speaker identity.
type Role uint8

const (
	RoleUnassigned Role = iota
	RoleUser
	RoleAIAgent

	roleCount
)

// assignmentOrder is the precedence in which unseen tags receive roles.
var assignmentOrder = [...]Role{RoleUser, RoleAIAgent}

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAIAgent:
		return "AI Agent"
	case RoleUnassigned:
		return "Unassigned"
	default:
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
}

func (r Role) Assigned() bool {
	return r == RoleUser || r == RoleAIAgent
}

// Label is what the transcript shows for a speaker. Unassigned tags fall back
// to a tag-derived label.
func Label(tag Tag, role Role) string {
	if role.Assigned() {
		return role.String()
	}
	return fmt.Sprintf("Speaker %d", int(tag))
}
