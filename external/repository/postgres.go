package repository

import (
	"context"
	"errors"
	"time"

	"github.com/foxseedlab/koewake/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) repository.Repository {
	return &PostgresRepository{pool: pool}
}

const postgresRecordingColumns = `id, backend_url, started_at, ended_at, status, stop_reason, entry_count`

func (r *PostgresRepository) CreateRecording(ctx context.Context, input repository.CreateRecordingInput) (*repository.Recording, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO recordings (id, backend_url, started_at, status)
		 VALUES ($1, $2, $3, 'running')
		 RETURNING `+postgresRecordingColumns,
		input.ID, input.BackendURL, input.StartedAt)
	return scanPostgresRecording(row)
}

func (r *PostgresRepository) CompleteRecording(ctx context.Context, input repository.CompleteRecordingInput) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE recordings SET status = 'completed', ended_at = $2, stop_reason = $3, entry_count = $4 WHERE id = $1`,
		input.RecordingID, input.EndedAt, input.StopReason, input.EntryCount)
	return err
}

func (r *PostgresRepository) CompleteOrphanedRecordings(ctx context.Context, endedAt time.Time, stopReason string) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE recordings SET status = 'completed', ended_at = $1, stop_reason = $2,
		 entry_count = (SELECT COUNT(*) FROM transcript_entries e WHERE e.recording_id = recordings.id)
		 WHERE status = 'running'`,
		endedAt, stopReason)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *PostgresRepository) GetRecording(ctx context.Context, id string) (*repository.Recording, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+postgresRecordingColumns+` FROM recordings WHERE id = $1`, id)
	rec, err := scanPostgresRecording(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (r *PostgresRepository) ListRecordings(ctx context.Context, limit int) ([]repository.Recording, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+postgresRecordingColumns+` FROM recordings ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.Recording
	for rows.Next() {
		rec, err := scanPostgresRecording(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *rec)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) InsertEntry(ctx context.Context, input repository.InsertEntryInput) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO transcript_entries (recording_id, entry_index, speaker_tag, role, label, content, spoken_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		input.RecordingID, input.EntryIndex, input.SpeakerTag, input.Role, input.Label, input.Content, input.SpokenAt)
	return err
}

func (r *PostgresRepository) ListEntriesByRecordingID(ctx context.Context, recordingID string) ([]repository.TranscriptEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT recording_id, entry_index, speaker_tag, role, label, content, spoken_at
		 FROM transcript_entries WHERE recording_id = $1 ORDER BY entry_index ASC`,
		recordingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.TranscriptEntry
	for rows.Next() {
		var e repository.TranscriptEntry
		if err := rows.Scan(&e.RecordingID, &e.EntryIndex, &e.SpeakerTag, &e.Role, &e.Label, &e.Content, &e.SpokenAt); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func scanPostgresRecording(row pgx.Row) (*repository.Recording, error) {
	var rec repository.Recording
	var endedAt *time.Time
	var status string
	if err := row.Scan(&rec.ID, &rec.BackendURL, &rec.StartedAt, &endedAt, &status, &rec.StopReason, &rec.EntryCount); err != nil {
		return nil, err
	}
	rec.EndedAt = endedAt
	rec.Status = repository.RecordingStatus(status)
	return &rec, nil
}
