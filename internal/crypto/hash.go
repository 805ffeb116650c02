package crypto

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmptyPassword = errors.New("password cannot be empty")
	ErrEmptyHash     = errors.New("hash cannot be empty")
)

// HashPassword hashes a client secret using bcrypt with default cost
func HashPassword(password string) (string, error) {
	return HashPasswordWithCost(password, bcrypt.DefaultCost)
}

// HashPasswordWithCost hashes a client secret using bcrypt with the given cost
func HashPasswordWithCost(password string, cost int) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// VerifyPassword verifies a secret against a bcrypt hash
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return ErrEmptyHash
	}
	if password == "" {
		return ErrEmptyPassword
	}

	// bcrypt.CompareHashAndPassword uses constant-time comparison internally
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// BcryptHasher hashes client secrets at a fixed cost
type BcryptHasher struct {
	Cost int
}

// HashPassword implements the secret hasher used when registering clients
func (h BcryptHasher) HashPassword(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return HashPasswordWithCost(password, cost)
}
