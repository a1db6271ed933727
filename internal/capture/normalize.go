package capture

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// Normalize returns the canonical form of capture text used for
// content-based deduplication: trimmed, with runs of whitespace collapsed
// to single spaces. Case is preserved; "Buy milk" and "buy milk" are
// distinct thoughts.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))

	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !space {
				b.WriteByte(' ')
				space = true
			}
			continue
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

// Fingerprint returns the hex-encoded SHA-256 digest of normalized text.
// Stored server-side as the content half of the dedup key.
func Fingerprint(normalized string) string {
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
