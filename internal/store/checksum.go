package store

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Checksum returns the hex blake2b-256 digest of a document body.
func Checksum(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
