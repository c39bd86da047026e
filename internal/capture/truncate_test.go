package capture

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestTruncateBytes(t *testing.T) {
	t.Run("no_truncation_when_within_limit", func(t *testing.T) {
		input := []byte(`{"price":"0.42"}`)
		out, truncated, origLen, hash := truncateBytes(input, len(input))

		if truncated {
			t.Fatalf("expected truncated=false, got true")
		}
		if origLen != len(input) {
			t.Fatalf("expected original size %d, got %d", len(input), origLen)
		}
		if hash != "" {
			t.Fatalf("expected empty hash, got %q", hash)
		}
		if string(out) != string(input) {
			t.Fatalf("expected output %q, got %q", string(input), string(out))
		}
	})

	t.Run("truncate_large_body", func(t *testing.T) {
		input := []byte(`{"price":"0.42","book":[...]}`)
		maxBytes := 8
		expectedHash := sha256.Sum256(input)
		out, truncated, origLen, hash := truncateBytes(input, maxBytes)

		if !truncated {
			t.Fatalf("expected truncated=true, got false")
		}
		if origLen != len(input) {
			t.Fatalf("expected original size %d, got %d", len(input), origLen)
		}
		if string(out) != `{"price"` {
			t.Fatalf("unexpected output %q", string(out))
		}
		if hash != hex.EncodeToString(expectedHash[:]) {
			t.Fatalf("unexpected hash %q", hash)
		}
	})
}
