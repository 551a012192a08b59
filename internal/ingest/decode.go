package ingest

import (
	"encoding/base64"
	"fmt"
)

// DecodeAudio decodes the transport encoding of an uploaded payload into raw
// audio bytes. Uploads are standard base64; encoders commonly wrap output in
// newlines, so ASCII whitespace is stripped before the strict decode. Any
// other non-alphabet byte fails the decode: truncated or garbage output
// would corrupt size accounting and the transcription downstream.
func DecodeAudio(encoded []byte) ([]byte, error) {
	compact := make([]byte, 0, len(encoded))
	for _, b := range encoded {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		compact = append(compact, b)
	}

	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(compact)))
	n, err := base64.StdEncoding.Decode(decoded, compact)
	if err != nil {
		return nil, fmt.Errorf("decode base64 payload: %w", err)
	}
	return decoded[:n], nil
}
