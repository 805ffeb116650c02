//go:build integration

package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dlddu/registry-oauth/internal/domain"
	"github.com/dlddu/registry-oauth/internal/scope"
)

func newPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("registry_oauth"),
		postgres.WithUsername("oauth"),
		postgres.WithPassword("oauth"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, dsn, 10)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = Migrate(ctx, pool)
	require.NoError(t, err)
	return pool
}

func TestPostgres_RoundTripWideMask(t *testing.T) {
	pool := newPostgres(t)
	tx := NewPgTransactor(pool)
	ctx := context.Background()
	wide := scope.Union(scope.Bit(0), scope.Bit(150))
	now := time.Now().UTC().Truncate(time.Microsecond)

	err := tx.RunInTx(ctx, func(ctx context.Context, s Stores) error {
		require.NoError(t, s.Clients.Create(ctx, &domain.Client{
			ClientID: "c1", Name: "One", RedirectURIs: []string{"https://app.example/cb"},
			Permissions: wide, Quota: 5, CreatedAt: now, UpdatedAt: now,
		}))
		return s.Codes.Create(ctx, &domain.AuthorizationCode{
			Code: "X", ClientID: "c1", UserID: "u1", Permissions: wide,
			RedirectURI: "https://app.example/cb", CodeChallenge: "ab",
			TokenTTL: time.Hour, CreatedAt: now, ExpiresAt: now.Add(time.Minute),
		})
	})
	require.NoError(t, err)

	c, err := tx.Stores().Clients.GetByClientID(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, c.Permissions.Equal(wide))
	assert.Equal(t, []string{"https://app.example/cb"}, c.RedirectURIs)
	assert.False(t, c.IsConfidential())

	ac, err := tx.Stores().Codes.Take(ctx, "X")
	require.NoError(t, err)
	assert.True(t, ac.Permissions.Equal(wide))
	assert.Equal(t, time.Hour, ac.TokenTTL)
}

func TestPostgres_ConcurrentTakeSucceedsOnce(t *testing.T) {
	pool := newPostgres(t)
	tx := NewPgTransactor(pool)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, tx.RunInTx(ctx, func(ctx context.Context, s Stores) error {
		if err := s.Clients.Create(ctx, &domain.Client{ClientID: "c1", Name: "One", Quota: 1, CreatedAt: now, UpdatedAt: now}); err != nil {
			return err
		}
		return s.Codes.Create(ctx, &domain.AuthorizationCode{
			Code: "X", ClientID: "c1", UserID: "u1", Permissions: scope.FromUint64(1),
			TokenTTL: time.Hour, CreatedAt: now, ExpiresAt: now.Add(time.Minute),
		})
	}))

	var wg sync.WaitGroup
	results := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = tx.RunInTx(ctx, func(ctx context.Context, s Stores) error {
				_, err := s.Codes.Take(ctx, "X")
				return err
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrCodeNotFound)
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestPostgres_QuotaIncrementIsBounded(t *testing.T) {
	pool := newPostgres(t)
	tx := NewPgTransactor(pool)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, tx.Stores().Clients.Create(ctx, &domain.Client{ClientID: "c1", Name: "One", Quota: 3, CreatedAt: now, UpdatedAt: now}))

	var wg sync.WaitGroup
	results := make([]error, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = tx.RunInTx(ctx, func(ctx context.Context, s Stores) error {
				return s.Clients.IncrementUsers(ctx, "c1")
			})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range results {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, ErrQuotaExceeded)
		}
	}
	assert.Equal(t, 3, ok)

	c, err := tx.Stores().Clients.GetByClientID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, c.CurrentUsers)
}

func TestPostgres_TokenUniquePerUserClient(t *testing.T) {
	pool := newPostgres(t)
	retries := 0
	tx := NewPgTransactor(pool, WithMaxAttempts(2), WithRetryHook(func() { retries++ }))
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, tx.Stores().Clients.Create(ctx, &domain.Client{ClientID: "c1", Name: "One", Quota: 3, CreatedAt: now, UpdatedAt: now}))
	tok := &domain.Token{
		TokenID: "t1", UserID: "u1", ClientID: "c1", ClientName: "One",
		Permissions: scope.FromUint64(1), SecretDigest: "d1", Expiry: now.Add(time.Hour),
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, tx.Stores().Tokens.Create(ctx, tok))

	dup := *tok
	dup.TokenID, dup.SecretDigest = "t2", "d2"
	err := tx.RunInTx(ctx, func(ctx context.Context, s Stores) error {
		return s.Tokens.Create(ctx, &dup)
	})

	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 1, retries)

	removed, err := tx.Stores().Tokens.DeleteByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, "t1", removed[0].TokenID)
}
