// Package ids generates the identifiers the teams core hands out:
// team IDs (derived from a sanitized name plus random bytes) and
// uuid-based IDs for everything else (queries, keepers, pair sessions).
package ids

import (
	"crypto/rand"
	"encoding/base64"
	"strings"

	"github.com/google/uuid"
)

const maxNameLen = 20

// GenerateTeamID derives a team ID from a human-readable name:
// lowercase(name) |> replace_non_[a-z0-9-]_with_- |> truncate(20) |> "-" |> base64url(random(4)).
func GenerateTeamID(name string) string {
	lower := strings.ToLower(name)
	var b strings.Builder
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	sanitized := b.String()
	if len(sanitized) > maxNameLen {
		sanitized = sanitized[:maxNameLen]
	}
	suffix := randomBase64URL(4)
	return sanitized + "-" + suffix
}

func randomBase64URL(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read only fails on a broken entropy source; there
		// is no sane fallback that preserves uniqueness guarantees.
		panic("ids: crypto/rand unavailable: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// New returns a fresh random uuid string, used for queries, keepers,
// pair sessions, and decision graph node IDs.
func New() string {
	return uuid.NewString()
}
