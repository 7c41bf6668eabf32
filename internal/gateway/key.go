package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// buildKey derives the cache key for a completion request. The text is
// trimmed and lower-cased so trivially different keystrokes ("Hello " vs
// "hello") share a cache slot; the remaining context fields are joined with
// an unprintable separator so field boundaries cannot collide, and the whole
// thing is hashed so keys stay fixed-size no matter how large the screenshot
// payloads are.
func buildKey(text string, context ...string) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(text))))
	for _, c := range context {
		h.Write([]byte{0x1f})
		h.Write([]byte(c))
	}
	return hex.EncodeToString(h.Sum(nil))
}
