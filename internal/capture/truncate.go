package capture

import (
	"crypto/sha256"
	"encoding/hex"
)

// truncateBytes caps a journaled body at maxBytes. When it truncates, it
// also returns the original length and the SHA-256 of the full body so the
// record stays attributable to what was actually on the wire.
func truncateBytes(in []byte, maxBytes int) ([]byte, bool, int, string) {
	if maxBytes <= 0 || len(in) <= maxBytes {
		return in, false, len(in), ""
	}
	sum := sha256.Sum256(in)
	return in[:maxBytes], true, len(in), hex.EncodeToString(sum[:])
}
