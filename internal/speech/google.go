package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// GoogleClient calls the Google Cloud Speech-to-Text v1 REST API.
// Implements the Recognizer interface.
type GoogleClient struct {
	endpoint string
	client   *http.Client
	log      zerolog.Logger
}

// recognizeRequest is the JSON request for v1/speech:recognize.
type recognizeRequest struct {
	Config recognizeConfig `json:"config"`
	Audio  recognizeAudio  `json:"audio"`
}

type recognizeConfig struct {
	Encoding        string `json:"encoding"`
	SampleRateHertz int    `json:"sampleRateHertz"`
	LanguageCode    string `json:"languageCode"`
}

type recognizeAudio struct {
	Content string `json:"content"` // base64-encoded audio bytes
}

// recognizeResponse is the JSON response from v1/speech:recognize.
type recognizeResponse struct {
	Results []recognizeResult `json:"results"`
	Error   *apiError         `json:"error,omitempty"`
}

type recognizeResult struct {
	Alternatives []alternative `json:"alternatives"`
}

type alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float32 `json:"confidence"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// NewGoogleClient creates a speech client. credsJSON is service account JSON
// built once at process start; nil falls back to application default
// credentials, or an unauthenticated client when none exist (useful with a
// SPEECH_ENDPOINT override pointing at a stub).
func NewGoogleClient(ctx context.Context, credsJSON []byte, endpoint string, timeout time.Duration, log zerolog.Logger) (*GoogleClient, error) {
	log = log.With().Str("component", "speech").Logger()

	var client *http.Client
	if len(credsJSON) > 0 {
		creds, err := google.CredentialsFromJSON(ctx, credsJSON, cloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("parse google credentials: %w", err)
		}
		client = oauth2.NewClient(ctx, creds.TokenSource)
	} else if creds, err := google.FindDefaultCredentials(ctx, cloudPlatformScope); err == nil {
		client = oauth2.NewClient(ctx, creds.TokenSource)
	} else {
		log.Warn().Msg("no google credentials found, speech requests will be unauthenticated")
		client = &http.Client{}
	}
	client.Timeout = timeout

	return &GoogleClient{
		endpoint: endpoint,
		client:   client,
		log:      log,
	}, nil
}

// Recognize sends raw audio bytes to the recognize endpoint with the fixed
// FLAC/44100/en-GB config and reduces the response: the top-ranked alternative
// of every result is concatenated into one transcript, while the confidence
// and alternative count come from the first result.
func (g *GoogleClient) Recognize(ctx context.Context, audio []byte) (*Recognition, error) {
	reqBody := recognizeRequest{
		Config: recognizeConfig{
			Encoding:        Encoding,
			SampleRateHertz: SampleRateHertz,
			LanguageCode:    LanguageCode,
		},
		Audio: recognizeAudio{
			Content: base64.StdEncoding.EncodeToString(audio),
		},
	}

	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal recognize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech request: %w", err)
	}
	// Session is held per call and released on every exit path.
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("speech API error (status %d): %s", resp.StatusCode, string(body))
	}

	var out recognizeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("speech API error %d (%s): %s", out.Error.Code, out.Error.Status, out.Error.Message)
	}

	rec := reduceResults(out.Results)
	if rec == nil {
		return nil, fmt.Errorf("speech API returned no transcription results")
	}

	g.log.Debug().
		Int("results", len(out.Results)).
		Float32("confidence", rec.Confidence).
		Msg("transcription received")

	return rec, nil
}

// reduceResults collapses multi-result responses. Returns nil when no result
// carries an alternative.
func reduceResults(results []recognizeResult) *Recognition {
	var (
		parts []string
		rec   *Recognition
	)
	for _, r := range results {
		if len(r.Alternatives) == 0 {
			continue
		}
		top := r.Alternatives[0]
		if t := strings.TrimSpace(top.Transcript); t != "" {
			parts = append(parts, t)
		}
		if rec == nil {
			rec = &Recognition{
				Confidence:   top.Confidence,
				Alternatives: len(r.Alternatives),
			}
		}
	}
	if rec == nil {
		return nil
	}
	rec.Transcript = strings.Join(parts, " ")
	return rec
}
