package session

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// FingerprintFunc digests a payload for the dirty check. Fingerprints live
// only in memory and are never persisted.
type FingerprintFunc func(data []byte) string

// Fingerprint returns the hex encoded BLAKE2b-256 digest of data.
func Fingerprint(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
