// Package publisher defines the outbound stream of final transcript entries.
package publisher

import (
	"context"
	"time"
)

// EventTypeFinal identifies FinalEntryEvent payloads.
const EventTypeFinal = "koewake.transcript.final"

// FinalEntryEvent is published once per durable transcript entry.
type FinalEntryEvent struct {
	EventType   string    `json:"event_type"`
	RecordingID string    `json:"recording_id"`
	Index       int       `json:"index"`
	SpeakerTag  int       `json:"speaker_tag"`
	Role        string    `json:"role"`
	Label       string    `json:"label"`
	Transcript  string    `json:"transcript"`
	SpokenAt    time.Time `json:"spoken_at"`
}

type Publisher interface {
	PublishFinal(ctx context.Context, event FinalEntryEvent) error
	Close() error
}
