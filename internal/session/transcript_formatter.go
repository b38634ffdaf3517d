package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/foxseedlab/koewake/internal/diarization"
	"github.com/foxseedlab/koewake/internal/transcript"
	"github.com/foxseedlab/koewake/internal/webhook"
)

const transcriptTimeLayout = "2006-01-02 15:04:05"

type transcriptMetadata struct {
	RecordingID string
	ChannelName string
	StartedAt   time.Time
	EndedAt     time.Time
	Timezone    string
	Location    *time.Location
	StopReason  string
}

func buildTranscriptText(meta transcriptMetadata, assignments []diarization.Assignment, entries []transcript.Entry) []byte {
	loc := safeLocation(meta.Location)
	startText := meta.StartedAt.In(loc).Format(transcriptTimeLayout)
	endText := meta.EndedAt.In(loc).Format(transcriptTimeLayout)

	lines := []string{
		fmt.Sprintf("Recording: %s", meta.RecordingID),
	}
	if meta.ChannelName != "" {
		lines = append(lines, fmt.Sprintf("Channel: #%s", meta.ChannelName))
	}
	lines = append(lines,
		fmt.Sprintf("Period: %s ~ %s (%s)", startText, endText, meta.Timezone),
		fmt.Sprintf("Speakers: %s", speakerSummary(assignments)),
		fmt.Sprintf("Ended: %s", stopReasonDetail(meta.StopReason)),
		"",
	)
	for _, e := range entries {
		elapsed := e.ReceivedAt.Sub(meta.StartedAt)
		if elapsed < 0 {
			elapsed = 0
		}
		lines = append(lines, fmt.Sprintf("%s [%s] %s", formatElapsedHMS(elapsed), e.Label(), e.Text))
	}
	return []byte(strings.Join(lines, "\n"))
}

func speakerSummary(assignments []diarization.Assignment) string {
	if len(assignments) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(assignments))
	for _, a := range assignments {
		parts = append(parts, fmt.Sprintf("%s (tag %d)", diarization.Label(a.Tag, a.Role), a.Tag))
	}
	return strings.Join(parts, ", ")
}

func buildTranscriptWebhookPayload(meta transcriptMetadata, assignments []diarization.Assignment, entries []transcript.Entry) webhook.TranscriptWebhookPayload {
	loc := safeLocation(meta.Location)
	speakers := make([]webhook.TranscriptWebhookSpeaker, 0, len(assignments))
	for _, a := range assignments {
		speakers = append(speakers, webhook.TranscriptWebhookSpeaker{
			SpeakerTag: int(a.Tag),
			Role:       roleName(a.Role),
			Label:      diarization.Label(a.Tag, a.Role),
		})
	}
	out := make([]webhook.TranscriptWebhookEntry, 0, len(entries))
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, webhook.TranscriptWebhookEntry{
			Index:      e.Index,
			SpeakerTag: int(e.Tag),
			Label:      e.Label(),
			SpokenAt:   e.ReceivedAt.In(loc).Format(time.RFC3339),
			Transcript: e.Text,
		})
		lines = append(lines, fmt.Sprintf("[%s] %s", e.Label(), e.Text))
	}

	durationSeconds := int64(meta.EndedAt.Sub(meta.StartedAt).Seconds())
	if durationSeconds < 0 {
		durationSeconds = 0
	}

	return webhook.TranscriptWebhookPayload{
		SchemaVersion:   webhook.TranscriptWebhookSchemaVersion,
		RecordingID:     meta.RecordingID,
		StartAt:         meta.StartedAt.In(loc).Format(time.RFC3339),
		EndAt:           meta.EndedAt.In(loc).Format(time.RFC3339),
		Timezone:        meta.Timezone,
		DurationSeconds: durationSeconds,
		StopReason:      meta.StopReason,
		Speakers:        speakers,
		EntryCount:      len(entries),
		Entries:         out,
		Transcript:      strings.Join(lines, "\n"),
	}
}

// roleName is empty for unassigned tags so consumers can tell them apart
// from the two roles.
func roleName(r diarization.Role) string {
	if !r.Assigned() {
		return ""
	}
	return r.String()
}

func formatElapsedHMS(d time.Duration) string {
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func safeLocation(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
