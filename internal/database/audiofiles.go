package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when no audio file exists for the requested id.
var ErrNotFound = errors.New("audio file not found")

// FileMetadata describes the stored file itself, independent of any
// transcription outcome.
type FileMetadata struct {
	FileName      string
	Mime          string
	FileSize      int64
	RequestSentAt time.Time
}

// AudioFile is one ingested file plus its transcription outcome.
// Transcript, Confidence and NoOfAlternatives are set together after a
// successful speech call, or not at all.
type AudioFile struct {
	ID int64
	FileMetadata
	RateHertz        int
	Transcript       *string
	Confidence       *float32
	NoOfAlternatives *int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// InsertAudioFile persists a fully populated record and fills in the
// store-assigned id and timestamps.
func (db *DB) InsertAudioFile(ctx context.Context, rec *AudioFile) (int64, error) {
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO audio_files (
			file_name, mime, rate_hertz,
			transcript, confidence, no_of_alternatives,
			file_size, request_sent_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`,
		rec.FileName, rec.Mime, rec.RateHertz,
		rec.Transcript, rec.Confidence, rec.NoOfAlternatives,
		rec.FileSize, rec.RequestSentAt,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert audio file: %w", err)
	}
	return rec.ID, nil
}

// GetAudioFile returns the record for the given id, or ErrNotFound.
func (db *DB) GetAudioFile(ctx context.Context, id int64) (*AudioFile, error) {
	var rec AudioFile
	err := db.Pool.QueryRow(ctx, `
		SELECT id, file_name, mime, rate_hertz,
			transcript, confidence, no_of_alternatives,
			file_size, request_sent_at, created_at, updated_at
		FROM audio_files
		WHERE id = $1
	`, id).Scan(
		&rec.ID, &rec.FileName, &rec.Mime, &rec.RateHertz,
		&rec.Transcript, &rec.Confidence, &rec.NoOfAlternatives,
		&rec.FileSize, &rec.RequestSentAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get audio file %d: %w", id, err)
	}
	return &rec, nil
}
