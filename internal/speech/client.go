// Package speech calls the external speech-recognition service and reduces
// its response to a single transcript with a confidence score.
package speech

import "context"

// Recognition config constants. These are declared values, not measured from
// the audio: uploads with a different real encoding are trusted, not rejected,
// and will degrade transcription quality silently.
const (
	Encoding        = "FLAC"
	SampleRateHertz = 44100
	LanguageCode    = "en-GB"
)

// Recognition is the reduced transcription result.
type Recognition struct {
	Transcript   string
	Confidence   float32
	Alternatives int
}

// Recognizer is the interface for speech-to-text backends.
type Recognizer interface {
	Recognize(ctx context.Context, audio []byte) (*Recognition, error)
}
