package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dlddu/registry-oauth/internal/config"
	"github.com/dlddu/registry-oauth/internal/crypto"
	"github.com/dlddu/registry-oauth/internal/jwt"
	"github.com/dlddu/registry-oauth/internal/metrics"
	"github.com/dlddu/registry-oauth/internal/repository"
	"github.com/dlddu/registry-oauth/internal/service"
)

// services holds the wired services for one process
type services struct {
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	pool     *pgxpool.Pool
	tx       repository.Transactor
	clients  *service.ClientService
	users    *service.UserService
	tokens   *service.TokenStore
	oauth    *service.OAuthService
}

func (c *cli) openStore(ctx context.Context, m *metrics.Metrics) (repository.Transactor, *pgxpool.Pool, error) {
	if c.cfg.Store.Driver == config.DriverMemory {
		c.logger.Warn("using the in-memory store; state is lost on exit and not shared between processes")
		return repository.NewMemoryTransactor(), nil, nil
	}

	pool, err := repository.NewPool(ctx, c.cfg.Database.URL, c.cfg.Database.MaxConns)
	if err != nil {
		return nil, nil, err
	}
	tx := repository.NewPgTransactor(pool,
		repository.WithMaxAttempts(c.cfg.Database.TxMaxAttempts),
		repository.WithRetryHook(m.IncTxRetry),
		repository.WithLogger(c.logger),
	)
	return tx, pool, nil
}

// newRuntime wires storage, signing keys and services. withSigner is false
// for commands that never mint or parse bearer tokens; their TokenStore can
// only delete records.
func (c *cli) newRuntime(ctx context.Context, withSigner bool) (*services, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var signer service.BearerSigner
	if withSigner {
		tm, err := c.loadSigner()
		if err != nil {
			return nil, err
		}
		signer = tm
	}

	tx, pool, err := c.openStore(ctx, m)
	if err != nil {
		return nil, err
	}
	rt := &services{registry: reg, metrics: m, pool: pool, tx: tx}

	verifier := crypto.NewSecretVerifier(c.cfg.Security.SecretVerifyConcurrency, m.ObserveSecretVerify)
	rt.clients = service.NewClientService(tx, crypto.BcryptHasher{}, verifier)
	rt.users = service.NewUserService(tx)
	rt.tokens = service.NewTokenStore(signer, m, c.logger)
	rt.oauth = service.NewOAuthService(tx, rt.clients,
		service.NewCodeStore(c.cfg.OAuth.AuthorizationCodeTTL, m, c.logger),
		rt.tokens,
		service.OAuthConfig{
			DefaultTokenTTL:   c.cfg.OAuth.DefaultTokenTTL,
			MaxTokenTTL:       c.cfg.OAuth.MaxTokenTTL,
			DeveloperClientID: c.cfg.OAuth.DeveloperClientID,
		},
		m, c.logger)
	return rt, nil
}

func (c *cli) loadSigner() (*jwt.TokenManager, error) {
	priv, pub, generated, err := jwt.LoadKeyPair(c.cfg.JWT.PrivateKeyPath, c.cfg.JWT.PublicKeyPath, c.cfg.JWT.GenerateIfMissing)
	if err != nil {
		return nil, fmt.Errorf("load signing keys: %w", err)
	}
	if generated {
		c.logger.Warn("generated an ephemeral signing key; issued tokens stop validating on restart",
			"private_key_path", c.cfg.JWT.PrivateKeyPath)
	}

	tm, err := jwt.NewTokenManager(priv, pub, c.cfg.JWT.Issuer)
	if err != nil {
		return nil, err
	}
	if c.cfg.JWT.KeyID != "" {
		tm.SetKID(c.cfg.JWT.KeyID)
	}
	return tm, nil
}

// Close releases the database pool, if any
func (rt *services) Close() {
	if rt.pool != nil {
		rt.pool.Close()
	}
}

// requirePostgres rejects admin commands against the throwaway memory store
func (c *cli) requirePostgres() error {
	if c.cfg.Store.Driver != config.DriverPostgres {
		return errors.New("this command needs the postgres store; the memory store does not outlive the process")
	}
	return nil
}
