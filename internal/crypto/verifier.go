package crypto

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/semaphore"
)

// SecretVerifier bounds how many bcrypt comparisons run at once so that slow
// hashing cannot starve the request-accept path.
type SecretVerifier struct {
	sem     *semaphore.Weighted
	observe func(time.Duration)
}

// NewSecretVerifier creates a verifier with the given number of worker slots.
// A non-positive concurrency uses runtime.NumCPU. observe may be nil.
func NewSecretVerifier(concurrency int, observe func(time.Duration)) *SecretVerifier {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &SecretVerifier{
		sem:     semaphore.NewWeighted(int64(concurrency)),
		observe: observe,
	}
}

// Verify waits for a free slot and compares secret against hash. It returns
// ctx.Err() if the request is cancelled while queued.
func (v *SecretVerifier) Verify(ctx context.Context, hash, secret string) error {
	if err := v.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for secret verification slot: %w", err)
	}
	defer v.sem.Release(1)

	start := time.Now()
	err := VerifyPassword(hash, secret)
	if v.observe != nil {
		v.observe(time.Since(start))
	}
	return err
}
