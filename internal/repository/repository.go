package repository

import (
	"context"
	"time"
)

type CreateRecordingInput struct {
	ID         string
	BackendURL string
	StartedAt  time.Time
}

type CompleteRecordingInput struct {
	RecordingID string
	EndedAt     time.Time
	StopReason  string
	EntryCount  int
}

type InsertEntryInput struct {
	RecordingID string
	EntryIndex  int
	SpeakerTag  int
	Role        string
	Label       string
	Content     string
	SpokenAt    time.Time
}

type RecordingRepository interface {
	CreateRecording(ctx context.Context, input CreateRecordingInput) (*Recording, error)
	CompleteRecording(ctx context.Context, input CompleteRecordingInput) error
	// CompleteOrphanedRecordings closes recordings left running by a previous
	// process and returns how many were closed.
	CompleteOrphanedRecordings(ctx context.Context, endedAt time.Time, stopReason string) (int, error)
	// GetRecording returns nil, nil when no recording has the given ID.
	GetRecording(ctx context.Context, id string) (*Recording, error)
	// ListRecordings returns the newest recordings first.
	ListRecordings(ctx context.Context, limit int) ([]Recording, error)
}

type TranscriptRepository interface {
	InsertEntry(ctx context.Context, input InsertEntryInput) error
	ListEntriesByRecordingID(ctx context.Context, recordingID string) ([]TranscriptEntry, error)
}

type Repository interface {
	RecordingRepository
	TranscriptRepository
	Close() error
}
