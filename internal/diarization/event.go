package diarization

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMalformedEvent = errors.New("malformed diarization event")

// Event is one transcript message from the backend.
type Event struct {
	Tag     Tag
	Text    string
	IsFinal bool
}

type wireEvent struct {
	IsFinal    *bool   `json:"is_final"`
	SpeakerTag *int    `json:"speaker_tag"`
	Transcript *string `json:"transcript"`
}

// DecodeEvent parses `{"is_final": bool, "speaker_tag": int, "transcript": string}`.
// Every field is required.
func DecodeEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	switch {
	case w.IsFinal == nil:
		return Event{}, fmt.Errorf("%w: missing is_final", ErrMalformedEvent)
	case w.SpeakerTag == nil:
		return Event{}, fmt.Errorf("%w: missing speaker_tag", ErrMalformedEvent)
	case w.Transcript == nil:
		return Event{}, fmt.Errorf("%w: missing transcript", ErrMalformedEvent)
	}
	return Event{
		Tag:     Tag(*w.SpeakerTag),
		Text:    *w.Transcript,
		IsFinal: *w.IsFinal,
	}, nil
}

// EncodeEvent is the inverse of DecodeEvent, used by the relay.
func EncodeEvent(ev Event) ([]byte, error) {
	tag := int(ev.Tag)
	return json.Marshal(wireEvent{
		IsFinal:    &ev.IsFinal,
		SpeakerTag: &tag,
		Transcript: &ev.Text,
	})
}
