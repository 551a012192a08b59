// Package ingest turns an uploaded payload into a persisted transcription
// record: spool, decode, store, transcribe, persist. One pipeline run per
// request, fully synchronous; every failure is terminal.
package ingest

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/audiofile-api/internal/database"
	"github.com/snarg/audiofile-api/internal/metrics"
	"github.com/snarg/audiofile-api/internal/speech"
	"github.com/snarg/audiofile-api/internal/storage"
)

const audioMime = "audio/flac"

// RecordStore persists completed transcription records.
type RecordStore interface {
	InsertAudioFile(ctx context.Context, rec *database.AudioFile) (int64, error)
}

// EventPublisher announces completed transcriptions. Best-effort; failures
// never affect the pipeline outcome.
type EventPublisher interface {
	TranscriptionCompleted(rec *database.AudioFile)
}

// Pipeline orchestrates one upload from raw bytes to a persisted record.
type Pipeline struct {
	store  RecordStore
	blobs  storage.BlobStore // permanent decoded audio
	spool  storage.BlobStore // raw upload spool, always local
	speech speech.Recognizer
	events EventPublisher // may be nil
	log    zerolog.Logger
}

// Options configures a Pipeline.
type Options struct {
	Store  RecordStore
	Blobs  storage.BlobStore
	Spool  storage.BlobStore
	Speech speech.Recognizer
	Events EventPublisher
	Log    zerolog.Logger
}

// New creates a Pipeline.
func New(opts Options) *Pipeline {
	return &Pipeline{
		store:  opts.Store,
		blobs:  opts.Blobs,
		spool:  opts.Spool,
		speech: opts.Speech,
		events: opts.Events,
		log:    opts.Log.With().Str("component", "ingest").Logger(),
	}
}

// ProcessAudioUpload runs the full pipeline for one uploaded file.
// requestSentAt is captured by the handler before any I/O. The returned
// record has been persisted; any error is a *PipelineError and nothing was
// persisted to the record store (though a decoded blob may remain on
// permanent storage after a late failure — it is retained, not reaped).
func (p *Pipeline) ProcessAudioUpload(ctx context.Context, origName string, raw []byte, requestSentAt time.Time) (*database.AudioFile, error) {
	// Spool the raw upload, then read it back for decoding. The spool entry
	// is discarded whether or not the rest of the pipeline succeeds.
	spoolKey := "temp/" + UniqueName(origName, time.Now())
	if err := p.spool.Save(ctx, spoolKey, raw, "application/octet-stream"); err != nil {
		return nil, failure(KindPersistence, fmt.Errorf("spool upload: %w", err))
	}
	defer func() {
		if err := p.spool.Delete(context.WithoutCancel(ctx), spoolKey); err != nil {
			p.log.Warn().Err(err).Str("key", spoolKey).Msg("failed to clean up spool file")
		}
	}()

	spooled, err := p.readSpool(ctx, spoolKey)
	if err != nil {
		return nil, failure(KindPersistence, err)
	}

	decoded, err := DecodeAudio(spooled)
	if err != nil {
		metrics.PipelineFailuresTotal.WithLabelValues("decode").Inc()
		return nil, failure(KindDecode, err)
	}

	// Permanent write under the timestamp-suffixed name. An existing key
	// means a same-second collision; refuse rather than overwrite.
	fileName := UniqueName(origName, time.Now())
	blobKey := "audio/" + fileName
	if p.blobs.Exists(ctx, blobKey) {
		return nil, failure(KindPersistence, fmt.Errorf("blob key %s already exists", blobKey))
	}
	if err := p.blobs.Save(ctx, blobKey, decoded, audioMime); err != nil {
		return nil, failure(KindPersistence, fmt.Errorf("save decoded audio: %w", err))
	}

	size, err := p.blobs.Size(ctx, blobKey)
	if err != nil {
		return nil, failure(KindPersistence, fmt.Errorf("size decoded audio: %w", err))
	}

	start := time.Now()
	result, err := p.speech.Recognize(ctx, decoded)
	metrics.SpeechRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PipelineFailuresTotal.WithLabelValues("service").Inc()
		return nil, failure(KindService, err)
	}

	// Transcript, confidence and alternative count are set together; no
	// partial record ever reaches the store.
	rec := &database.AudioFile{
		FileMetadata: database.FileMetadata{
			FileName:      fileName,
			Mime:          audioMime,
			FileSize:      size,
			RequestSentAt: requestSentAt,
		},
		RateHertz:        speech.SampleRateHertz,
		Transcript:       &result.Transcript,
		Confidence:       &result.Confidence,
		NoOfAlternatives: &result.Alternatives,
	}

	if _, err := p.store.InsertAudioFile(ctx, rec); err != nil {
		metrics.PipelineFailuresTotal.WithLabelValues("persistence").Inc()
		p.log.Error().Err(err).
			Str("file_name", fileName).
			Str("blob_key", blobKey).
			Msg("record save failed after transcription, decoded blob retained")
		return nil, failure(KindPersistence, err)
	}

	metrics.TranscriptionsTotal.Inc()

	if p.events != nil {
		p.events.TranscriptionCompleted(rec)
	}

	p.log.Info().
		Int64("id", rec.ID).
		Str("file_name", fileName).
		Int64("file_size", size).
		Float32("confidence", *rec.Confidence).
		Msg("audio file transcribed")

	return rec, nil
}

func (p *Pipeline) readSpool(ctx context.Context, key string) ([]byte, error) {
	r, err := p.spool.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open spool file: %w", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read spool file: %w", err)
	}
	return data, nil
}
