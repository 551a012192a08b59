// Package events publishes transcription completion notifications to an MQTT
// broker. Publishing is best-effort and never blocks or fails the pipeline.
package events

import (
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/snarg/audiofile-api/internal/database"
)

// Publisher is a publish-only MQTT client.
type Publisher struct {
	conn  mqtt.Client
	topic string
	log   zerolog.Logger
}

type Options struct {
	BrokerURL string
	ClientID  string
	Topic     string
	Username  string
	Password  string
	Log       zerolog.Logger
}

// Connect establishes the broker connection. Auto-reconnects on loss.
func Connect(opts Options) (*Publisher, error) {
	p := &Publisher{
		topic: opts.Topic,
		log:   opts.Log.With().Str("component", "events").Logger(),
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			p.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
		})

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	p.conn = mqtt.NewClient(clientOpts)
	token := p.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}

	p.log.Info().Str("broker", opts.BrokerURL).Str("topic", opts.Topic).Msg("mqtt connected")
	return p, nil
}

// transcribedEvent is the published payload for a completed transcription.
type transcribedEvent struct {
	ID         int64     `json:"id"`
	FileName   string    `json:"file_name"`
	Transcript string    `json:"transcript"`
	Confidence float32   `json:"confidence"`
	FileSize   int64     `json:"file_size"`
	CreatedAt  time.Time `json:"created_at"`
}

// TranscriptionCompleted publishes a completion event. Fire-and-forget: the
// token is drained in the background and failures only log.
func (p *Publisher) TranscriptionCompleted(rec *database.AudioFile) {
	evt := transcribedEvent{
		ID:        rec.ID,
		FileName:  rec.FileName,
		FileSize:  rec.FileSize,
		CreatedAt: rec.CreatedAt,
	}
	if rec.Transcript != nil {
		evt.Transcript = *rec.Transcript
	}
	if rec.Confidence != nil {
		evt.Confidence = *rec.Confidence
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		p.log.Error().Err(err).Int64("id", rec.ID).Msg("failed to marshal event")
		return
	}

	token := p.conn.Publish(p.topic, 0, false, payload)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			p.log.Warn().Err(err).Int64("id", rec.ID).Msg("event publish failed")
		}
	}()
}

func (p *Publisher) Close() {
	p.log.Info().Msg("disconnecting mqtt client")
	p.conn.Disconnect(1000)
}
