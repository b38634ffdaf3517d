package repository

import "time"

type RecordingStatus string

const (
	RecordingStatusRunning   RecordingStatus = "running"
	RecordingStatusCompleted RecordingStatus = "completed"
)

type Recording struct {
	ID         string
	BackendURL string
	StartedAt  time.Time
	EndedAt    *time.Time
	Status     RecordingStatus
	StopReason string
	EntryCount int
}

type TranscriptEntry struct {
	RecordingID string
	EntryIndex  int
	SpeakerTag  int
	Role        string
	Label       string
	Content     string
	SpokenAt    time.Time
}
