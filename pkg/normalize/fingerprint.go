package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
)

// Fingerprint returns a stable key for a normalized title: the sha256 of its
// sorted, de-duplicated tokens. Word order variants of one title collapse to
// the same key. The empty title has the empty fingerprint.
func Fingerprint(normalized string) string {
	tokens := strings.Fields(normalized)
	if len(tokens) == 0 {
		return ""
	}

	slices.Sort(tokens)
	tokens = slices.Compact(tokens)

	sum := sha256.Sum256([]byte(strings.Join(tokens, " ")))
	return hex.EncodeToString(sum[:])
}
