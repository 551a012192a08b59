package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all process configuration, parsed from the environment.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"120s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	// AudioDir is the root of the local blob spool. Decoded files live under
	// audio/, raw upload spool files under temp/.
	AudioDir string `env:"AUDIO_DIR" envDefault:"./data"`

	// GoogleCredentials is either a path to a service account JSON key file
	// or the JSON itself. Empty means application default credentials.
	// Resolved once at startup and injected into the speech client.
	GoogleCredentials string        `env:"GOOGLE_CREDENTIALS"`
	SpeechEndpoint    string        `env:"SPEECH_ENDPOINT" envDefault:"https://speech.googleapis.com/v1/speech:recognize"`
	SpeechTimeout     time.Duration `env:"SPEECH_TIMEOUT" envDefault:"90s"`

	S3   S3Config   `envPrefix:"S3_"`
	MQTT MQTTConfig `envPrefix:"MQTT_"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// S3Config configures the optional S3 blob backend. Unset bucket = local disk.
type S3Config struct {
	Bucket    string `env:"BUCKET"`
	Region    string `env:"REGION" envDefault:"us-east-1"`
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Prefix    string `env:"PREFIX"`
}

// Enabled reports whether the S3 backend is configured.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

// MQTTConfig configures the optional transcription event publisher.
// Unset broker URL disables publishing.
type MQTTConfig struct {
	BrokerURL string `env:"BROKER_URL"`
	ClientID  string `env:"CLIENT_ID" envDefault:"audiofile-api"`
	Topic     string `env:"TOPIC" envDefault:"audiofiles/transcribed"`
	Username  string `env:"USERNAME"`
	Password  string `env:"PASSWORD"`
}

// GoogleCredentialsJSON resolves the configured credentials to raw JSON bytes.
// Returns nil when no credentials are configured (default credential chain).
func (c *Config) GoogleCredentialsJSON() ([]byte, error) {
	raw := strings.TrimSpace(c.GoogleCredentials)
	if raw == "" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "{") {
		return []byte(raw), nil
	}
	data, err := os.ReadFile(raw)
	if err != nil {
		return nil, fmt.Errorf("read credentials file %s: %w", raw, err)
	}
	return data, nil
}

// Load reads configuration from an optional .env file and the environment.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
