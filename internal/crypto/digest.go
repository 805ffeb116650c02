package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// TokenDigest returns the hex SHA-256 of a bearer string. Only the digest is
// persisted, so a database read does not yield usable credentials.
func TokenDigest(bearer string) string {
	sum := sha256.Sum256([]byte(bearer))
	return hex.EncodeToString(sum[:])
}
