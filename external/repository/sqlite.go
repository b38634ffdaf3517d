package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/foxseedlab/koewake/internal/repository"
	_ "modernc.org/sqlite"
)

// SQLiteRepository keeps recordings in a local SQLite file. Timestamps are
// stored as fractional unix seconds.
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and migrates it.
// Use ":memory:" for a throwaway store.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepository, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: a :memory: database exists per connection, and SQLite
	// serializes writers anyway.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunSQLiteMigration(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

const sqliteRecordingColumns = `id, backend_url, started_at, ended_at, status, stop_reason, entry_count`

func (r *SQLiteRepository) CreateRecording(ctx context.Context, input repository.CreateRecordingInput) (*repository.Recording, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO recordings (id, backend_url, started_at, status) VALUES (?, ?, ?, 'running')`,
		input.ID, input.BackendURL, unixFromTime(input.StartedAt))
	if err != nil {
		return nil, fmt.Errorf("insert recording: %w", err)
	}
	rec, err := r.GetRecording(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("recording %s vanished after insert", input.ID)
	}
	return rec, nil
}

func (r *SQLiteRepository) CompleteRecording(ctx context.Context, input repository.CompleteRecordingInput) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE recordings SET status = 'completed', ended_at = ?, stop_reason = ?, entry_count = ? WHERE id = ?`,
		unixFromTime(input.EndedAt), input.StopReason, input.EntryCount, input.RecordingID)
	if err != nil {
		return fmt.Errorf("complete recording: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) CompleteOrphanedRecordings(ctx context.Context, endedAt time.Time, stopReason string) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recordings SET status = 'completed', ended_at = ?, stop_reason = ?,
		 entry_count = (SELECT COUNT(*) FROM transcript_entries e WHERE e.recording_id = recordings.id)
		 WHERE status = 'running'`,
		unixFromTime(endedAt), stopReason)
	if err != nil {
		return 0, fmt.Errorf("complete orphaned recordings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *SQLiteRepository) GetRecording(ctx context.Context, id string) (*repository.Recording, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sqliteRecordingColumns+` FROM recordings WHERE id = ?`, id)
	rec, err := scanSQLiteRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan recording: %w", err)
	}
	return rec, nil
}

func (r *SQLiteRepository) ListRecordings(ctx context.Context, limit int) ([]repository.Recording, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sqliteRecordingColumns+` FROM recordings ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recordings: %w", err)
	}
	defer rows.Close()

	var list []repository.Recording
	for rows.Next() {
		rec, err := scanSQLiteRecording(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		list = append(list, *rec)
	}
	return list, rows.Err()
}

func (r *SQLiteRepository) InsertEntry(ctx context.Context, input repository.InsertEntryInput) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transcript_entries (recording_id, entry_index, speaker_tag, role, label, content, spoken_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		input.RecordingID, input.EntryIndex, input.SpeakerTag, input.Role, input.Label, input.Content,
		unixFromTime(input.SpokenAt), unixFromTime(time.Now()))
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListEntriesByRecordingID(ctx context.Context, recordingID string) ([]repository.TranscriptEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT recording_id, entry_index, speaker_tag, role, label, content, spoken_at
		FROM transcript_entries
		WHERE recording_id = ?
		ORDER BY entry_index ASC
	`, recordingID)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var list []repository.TranscriptEntry
	for rows.Next() {
		var e repository.TranscriptEntry
		var spokenAt float64
		if err := rows.Scan(&e.RecordingID, &e.EntryIndex, &e.SpeakerTag, &e.Role, &e.Label, &e.Content, &spokenAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.SpokenAt = timeFromUnix(spokenAt)
		list = append(list, e)
	}
	return list, rows.Err()
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecording(row rowScanner) (*repository.Recording, error) {
	var rec repository.Recording
	var startedAt float64
	var endedAt sql.NullFloat64
	var status string
	if err := row.Scan(&rec.ID, &rec.BackendURL, &startedAt, &endedAt, &status, &rec.StopReason, &rec.EntryCount); err != nil {
		return nil, err
	}
	rec.StartedAt = timeFromUnix(startedAt)
	if endedAt.Valid {
		t := timeFromUnix(endedAt.Float64)
		rec.EndedAt = &t
	}
	rec.Status = repository.RecordingStatus(status)
	return &rec, nil
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
