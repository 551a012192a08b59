package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/audiofile-api/internal/config"
)

// BlobStore abstracts byte storage addressed by key.
type BlobStore interface {
	// Save stores data under key. key format: {audio|temp}/{filename}
	Save(ctx context.Context, key string, data []byte, contentType string) error

	// Open returns a reader for the stored bytes.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Size returns the stored byte size for key.
	Size(ctx context.Context, key string) (int64, error)

	// Delete removes the stored bytes. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists checks whether key is present.
	Exists(ctx context.Context, key string) bool

	// Type returns "local" or "s3".
	Type() string
}

// New creates the permanent BlobStore based on config: S3 when a bucket is
// configured, local disk otherwise. S3 credentials and bucket access are
// verified at startup.
func New(cfg config.S3Config, audioDir string, log zerolog.Logger) (BlobStore, error) {
	if !cfg.Enabled() {
		return NewLocalStore(audioDir), nil
	}

	s3store, err := NewS3Store(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("S3 init failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3store.HeadBucket(ctx); err != nil {
		return nil, fmt.Errorf("S3 startup check failed (bucket=%q endpoint=%q): %w",
			cfg.Bucket, cfg.Endpoint, err)
	}
	log.Info().Str("bucket", cfg.Bucket).Str("endpoint", cfg.Endpoint).Msg("S3 connection verified")

	return s3store, nil
}
