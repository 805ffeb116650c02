package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// ChallengeMethodS256 is the only supported PKCE challenge method
const ChallengeMethodS256 = "S256"

const (
	MinVerifierLength = 43
	MaxVerifierLength = 128
	challengeLength   = sha256.Size * 2
)

// ChallengeFromVerifier returns the hex encoded SHA-256 digest of verifier
func ChallengeFromVerifier(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return hex.EncodeToString(sum[:])
}

// NormalizeChallenge lower-cases a well formed challenge. ok is false when the
// value is not 64 hex characters.
func NormalizeChallenge(challenge string) (normalized string, ok bool) {
	if len(challenge) != challengeLength {
		return "", false
	}
	if _, err := hex.DecodeString(challenge); err != nil {
		return "", false
	}
	return strings.ToLower(challenge), true
}

// ValidVerifier reports whether verifier has the RFC 7636 length and alphabet
func ValidVerifier(verifier string) bool {
	if len(verifier) < MinVerifierLength || len(verifier) > MaxVerifierLength {
		return false
	}
	for i := 0; i < len(verifier); i++ {
		c := verifier[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '-', c == '.', c == '_', c == '~':
		default:
			return false
		}
	}
	return true
}

// VerifyPKCE checks that the SHA-256 of verifier equals the stored challenge
func VerifyPKCE(verifier, challenge string) bool {
	if !ValidVerifier(verifier) {
		return false
	}
	normalized, ok := NormalizeChallenge(challenge)
	if !ok {
		return false
	}
	computed := ChallengeFromVerifier(verifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(normalized)) == 1
}
