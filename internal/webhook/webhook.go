package webhook

import "context"

const TranscriptWebhookSchemaVersion = "2026-10-15"

type TranscriptWebhookPayload struct {
	SchemaVersion   string                     `json:"schema_version"`
	RecordingID     string                     `json:"recording_id"`
	StartAt         string                     `json:"start_at"`
	EndAt           string                     `json:"end_at"`
	Timezone        string                     `json:"timezone"`
	DurationSeconds int64                      `json:"duration_seconds"`
	StopReason      string                     `json:"stop_reason"`
	Speakers        []TranscriptWebhookSpeaker `json:"speakers"`
	EntryCount      int                        `json:"entry_count"`
	Entries         []TranscriptWebhookEntry   `json:"entries"`
	Transcript      string                     `json:"transcript"`
}

type TranscriptWebhookSpeaker struct {
	SpeakerTag int    `json:"speaker_tag"`
	Role       string `json:"role"`
	Label      string `json:"label"`
}

type TranscriptWebhookEntry struct {
	Index      int    `json:"index"`
	SpeakerTag int    `json:"speaker_tag"`
	Label      string `json:"label"`
	SpokenAt   string `json:"spoken_at"`
	Transcript string `json:"transcript"`
}

type Sender interface {
	SendTranscript(ctx context.Context, payload TranscriptWebhookPayload) error
}
