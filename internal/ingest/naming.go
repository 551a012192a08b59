package ingest

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// UniqueName derives a storage file name from the client-supplied name plus
// the unix timestamp at the moment of naming. Two uploads with the same
// original name within the same second collide; the pipeline refuses to
// overwrite an existing key, so such a collision surfaces as a save failure
// rather than silent data loss.
func UniqueName(original string, now time.Time) string {
	base := filepath.Base(strings.TrimSpace(original))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == ".." {
		base = "upload"
	}
	return base + strconv.FormatInt(now.Unix(), 10)
}
