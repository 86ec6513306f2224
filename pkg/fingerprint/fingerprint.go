package fingerprint

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Sum returns the hex BLAKE2b-256 digest of data. Audit documents store
// one per embedded record snapshot so tampering or duplicated conflicts
// are cheap to spot.
func Sum(data []byte) string {
	digest := blake2b.Sum256(data)
	return hex.EncodeToString(digest[:])
}
