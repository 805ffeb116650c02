package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/dlddu/registry-oauth/internal/repository"
)

// Sweeper deletes expired authorization codes and tokens. Reads already treat
// expired records as absent; sweeping only reclaims storage and quota slots
// for tokens nobody presents again.
type Sweeper struct {
	tx     repository.Transactor
	tokens *TokenStore
	now    func() time.Time
	logger *slog.Logger
}

// NewSweeper creates a Sweeper
func NewSweeper(tx repository.Transactor, tokens *TokenStore, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		tx:     tx,
		tokens: tokens,
		now:    time.Now,
		logger: logger,
	}
}

// SweepResult counts what one pass removed
type SweepResult struct {
	Codes  int64
	Tokens int
}

// Sweep runs one pass
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := s.now()
	err := s.tx.RunInTx(ctx, func(ctx context.Context, st repository.Stores) error {
		var err error
		if res.Codes, err = st.Codes.DeleteExpired(ctx, now); err != nil {
			return err
		}
		res.Tokens, err = s.tokens.DeleteExpired(ctx, st, now)
		return err
	})
	if err != nil {
		return SweepResult{}, err
	}
	return res, nil
}

// Run sweeps every interval until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			res, err := s.Sweep(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.ErrorContext(ctx, "sweep failed", "error", err)
				continue
			}
			if res.Codes > 0 || res.Tokens > 0 {
				s.logger.InfoContext(ctx, "swept expired records", "codes", res.Codes, "tokens", res.Tokens)
			}
		}
	}
}
