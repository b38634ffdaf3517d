package transcript

import (
	"time"

	"github.com/foxseedlab/koewake/internal/diarization"
)

// Entry is one final transcript segment. Entries are never changed after
// they are appended.
type Entry struct {
	Index      int
	Tag        diarization.Tag
	Role       diarization.Role
	Text       string
	ReceivedAt time.Time
}

func (e Entry) Label() string {
	return diarization.Label(e.Tag, e.Role)
}

// Log is the append-only transcript of one recording. Like RoleMap it relies
// on the owning session for serialization.
type Log struct {
	entries []Entry
}

func NewLog() *Log {
	return &Log{}
}

func (l *Log) Append(tag diarization.Tag, role diarization.Role, text string, at time.Time) Entry {
	e := Entry{
		Index:      len(l.entries),
		Tag:        tag,
		Role:       role,
		Text:       text,
		ReceivedAt: at,
	}
	l.entries = append(l.entries, e)
	return e
}

func (l *Log) Len() int {
	return len(l.entries)
}

// Entries returns a copy in receipt order.
func (l *Log) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Reset drops every entry.
func (l *Log) Reset() {
	l.entries = nil
}
