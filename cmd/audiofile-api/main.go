package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	audiofileapi "github.com/snarg/audiofile-api"
	"github.com/snarg/audiofile-api/internal/api"
	"github.com/snarg/audiofile-api/internal/config"
	"github.com/snarg/audiofile-api/internal/database"
	"github.com/snarg/audiofile-api/internal/events"
	"github.com/snarg/audiofile-api/internal/ingest"
	"github.com/snarg/audiofile-api/internal/speech"
	"github.com/snarg/audiofile-api/internal/storage"
)

var version = "dev"

func main() {
	startTime := time.Now()

	// Config
	cfg, err := config.Load()
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("audiofile-api starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	dbLog := log.With().Str("component", "database").Logger()
	db, err := database.Connect(ctx, cfg.DatabaseURL, dbLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.InitSchema(ctx, audiofileapi.SchemaSQL); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize schema")
	}

	// Blob storage: permanent store per config, raw upload spool always local
	storeLog := log.With().Str("component", "storage").Logger()
	blobs, err := storage.New(cfg.S3, cfg.AudioDir, storeLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize blob storage")
	}
	spool := storage.NewLocalStore(cfg.AudioDir)

	// Speech client with credentials resolved once at startup
	credsJSON, err := cfg.GoogleCredentialsJSON()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load google credentials")
	}
	recognizer, err := speech.NewGoogleClient(ctx, credsJSON, cfg.SpeechEndpoint, cfg.SpeechTimeout, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create speech client")
	}

	// Optional transcription event publisher
	var publisher *events.Publisher
	if cfg.MQTT.BrokerURL != "" {
		publisher, err = events.Connect(events.Options{
			BrokerURL: cfg.MQTT.BrokerURL,
			ClientID:  cfg.MQTT.ClientID,
			Topic:     cfg.MQTT.Topic,
			Username:  cfg.MQTT.Username,
			Password:  cfg.MQTT.Password,
			Log:       log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
		defer publisher.Close()
	}

	// Ingestion pipeline
	pipelineOpts := ingest.Options{
		Store:  db,
		Blobs:  blobs,
		Spool:  spool,
		Speech: recognizer,
		Log:    log,
	}
	if publisher != nil {
		pipelineOpts.Events = publisher
	}
	pipeline := ingest.New(pipelineOpts)

	// HTTP Server
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(cfg, db, pipeline, version, startTime, httpLog)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("audiofile-api stopped")
}
