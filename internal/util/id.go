package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random identifier. The prefix names the entity kind
// ("org", "cmp", "don") so ids stay recognizable in logs; an empty prefix
// yields the bare hex string.
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}
