package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// ImageFingerprint returns the SHA-256 of the raw image bytes as lowercase hex.
//
// Only the bytes are hashed: the same photo uploaded for a different location
// or at a different time must produce the same fingerprint.
func ImageFingerprint(imageBytes []byte) string {
	sum := sha256.Sum256(imageBytes)
	return hex.EncodeToString(sum[:])
}
