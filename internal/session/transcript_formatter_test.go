package session

import (
	"strings"
	"testing"
	"time"

	"github.com/foxseedlab/koewake/internal/diarization"
	"github.com/foxseedlab/koewake/internal/transcript"
)

func sampleTranscript(startedAt time.Time) ([]diarization.Assignment, []transcript.Entry) {
	roles := diarization.NewRoleMap()
	log := transcript.NewLog()
	for _, ev := range []struct {
		tag  diarization.Tag
		text string
		at   time.Duration
	}{
		{5, "hi", 15 * time.Second},
		{7, "hello", 75 * time.Second},
		{9, "what", 3*time.Hour + 2*time.Second},
	} {
		role := roles.Observe(ev.tag)
		log.Append(ev.tag, role, ev.text, startedAt.Add(ev.at))
	}
	return roles.Assignments(), log.Entries()
}

func TestBuildTranscriptText(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatalf("failed to load location: %v", err)
	}
	startedAt := time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC)
	assignments, entries := sampleTranscript(startedAt)

	body := string(buildTranscriptText(transcriptMetadata{
		RecordingID: "rec-1",
		ChannelName: "meeting-notes",
		StartedAt:   startedAt,
		EndedAt:     startedAt.Add(4 * time.Hour),
		Timezone:    "Asia/Tokyo",
		Location:    loc,
		StopReason:  stopReasonManual,
	}, assignments, entries))

	for _, want := range []string{
		"Recording: rec-1",
		"Channel: #meeting-notes",
		"Period: 2026-02-28 21:00:00 ~ 2026-03-01 01:00:00 (Asia/Tokyo)",
		"Speakers: User (tag 5), AI Agent (tag 7), Speaker 9 (tag 9)",
		"Ended: stopped by the user.",
		"00:00:15 [User] hi",
		"00:01:15 [AI Agent] hello",
		"03:00:02 [Speaker 9] what",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("%q not found in body:\n%s", want, body)
		}
	}
}

func TestBuildTranscriptText_NoSpeakersNoChannel(t *testing.T) {
	startedAt := time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC)
	body := string(buildTranscriptText(transcriptMetadata{
		RecordingID: "rec-2",
		StartedAt:   startedAt,
		EndedAt:     startedAt,
		Timezone:    "UTC",
	}, nil, nil))
	if strings.Contains(body, "Channel:") {
		t.Fatalf("unexpected channel line: %s", body)
	}
	if !strings.Contains(body, "Speakers: none") {
		t.Fatalf("expected empty speaker summary: %s", body)
	}
}

func TestBuildTranscriptWebhookPayload(t *testing.T) {
	startedAt := time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC)
	assignments, entries := sampleTranscript(startedAt)

	payload := buildTranscriptWebhookPayload(transcriptMetadata{
		RecordingID: "rec-1",
		StartedAt:   startedAt,
		EndedAt:     startedAt.Add(90 * time.Second),
		Timezone:    "UTC",
		StopReason:  stopReasonTransportError,
	}, assignments, entries)

	if payload.DurationSeconds != 90 || payload.EntryCount != 3 || payload.StopReason != stopReasonTransportError {
		t.Fatalf("unexpected payload header: %+v", payload)
	}
	if payload.Speakers[0].Role != "User" || payload.Speakers[1].Role != "AI Agent" || payload.Speakers[2].Role != "" {
		t.Fatalf("unexpected speakers: %+v", payload.Speakers)
	}
	if payload.Speakers[2].Label != "Speaker 9" {
		t.Fatalf("unexpected unassigned label: %q", payload.Speakers[2].Label)
	}
	if payload.Entries[0].SpokenAt != "2026-02-28T12:00:15Z" {
		t.Fatalf("unexpected spoken at: %s", payload.Entries[0].SpokenAt)
	}
	if payload.Transcript != "[User] hi\n[AI Agent] hello\n[Speaker 9] what" {
		t.Fatalf("unexpected transcript: %q", payload.Transcript)
	}
}

func TestBuildTranscriptWebhookPayload_NegativeDurationClamped(t *testing.T) {
	startedAt := time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC)
	payload := buildTranscriptWebhookPayload(transcriptMetadata{
		StartedAt: startedAt,
		EndedAt:   startedAt.Add(-time.Minute),
	}, nil, nil)
	if payload.DurationSeconds != 0 {
		t.Fatalf("expected 0, got %d", payload.DurationSeconds)
	}
}

func TestFormatElapsedHMS(t *testing.T) {
	if got := formatElapsedHMS(3*time.Hour + 4*time.Minute + 5*time.Second); got != "03:04:05" {
		t.Fatalf("unexpected format: %s", got)
	}
}
