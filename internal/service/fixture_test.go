package service

import (
	"context"
	"crypto/rsa"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dlddu/registry-oauth/internal/crypto"
	"github.com/dlddu/registry-oauth/internal/domain"
	"github.com/dlddu/registry-oauth/internal/jwt"
	"github.com/dlddu/registry-oauth/internal/logger"
	"github.com/dlddu/registry-oauth/internal/metrics"
	"github.com/dlddu/registry-oauth/internal/repository"
	"github.com/dlddu/registry-oauth/internal/scope"
)

const (
	testVerifier    = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	testRedirectURI = "https://app.example/cb"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func signingKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		var err error
		testKey, _, err = jwt.GenerateKeyPair(2048)
		if err != nil {
			panic(err)
		}
	})
	return testKey
}

// fixture wires the services against the in-memory store with a movable clock
type fixture struct {
	tx      *repository.MemoryTransactor
	metrics *metrics.Metrics
	clients *ClientService
	users   *UserService
	codes   *CodeStore
	tokens  *TokenStore
	svc     *OAuthService
	clock   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	key := signingKey(t)
	tm, err := jwt.NewTokenManager(key, &key.PublicKey, "https://auth.example.test")
	require.NoError(t, err)

	f := &fixture{
		tx:      repository.NewMemoryTransactor(),
		metrics: metrics.New(prometheus.NewRegistry()),
		clock:   time.Now(),
	}
	log := logger.Discard()
	now := func() time.Time { return f.clock }

	f.clients = NewClientService(f.tx, crypto.BcryptHasher{Cost: bcrypt.MinCost}, crypto.NewSecretVerifier(2, f.metrics.ObserveSecretVerify))
	f.users = NewUserService(f.tx)
	f.codes = NewCodeStore(10*time.Minute, f.metrics, log)
	f.codes.now = now
	f.tokens = NewTokenStore(tm, f.metrics, log)
	f.tokens.now = now
	f.svc = NewOAuthService(f.tx, f.clients, f.codes, f.tokens, OAuthConfig{
		DefaultTokenTTL:   24 * time.Hour,
		MaxTokenTTL:       30 * 24 * time.Hour,
		DeveloperClientID: "developer-portal",
	}, f.metrics, log)
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

type clientOption func(*CreateClientParams)

func withSecret(secret string) clientOption {
	return func(p *CreateClientParams) { p.Secret = secret }
}

func withQuota(quota int) clientOption {
	return func(p *CreateClientParams) { p.Quota = quota }
}

func trusted() clientOption {
	return func(p *CreateClientParams) { p.Trusted = true }
}

// seedClient registers an untrusted clientID allowing scope 0b011 with quota 5.
// authorizeRequest grants consent, so tests opt out explicitly.
func (f *fixture) seedClient(t *testing.T, clientID string, opts ...clientOption) {
	t.Helper()
	p := CreateClientParams{
		ClientID:     clientID,
		Name:         "Client " + clientID,
		RedirectURIs: []string{testRedirectURI},
		Permissions:  scope.FromUint64(0b011),
		Quota:        5,
	}
	for _, opt := range opts {
		opt(&p)
	}
	_, err := f.clients.CreateClient(context.Background(), p)
	require.NoError(t, err)
}

func (f *fixture) seedUser(t *testing.T, id string) {
	t.Helper()
	_, err := f.users.CreateUser(context.Background(), id, "User "+id, "")
	require.NoError(t, err)
}

func (f *fixture) client(t *testing.T, clientID string) *domain.Client {
	t.Helper()
	c, err := f.clients.GetClientByID(context.Background(), clientID)
	require.NoError(t, err)
	return c
}

func (f *fixture) user(t *testing.T, id string) *domain.User {
	t.Helper()
	u, err := f.users.GetByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func authorizeRequest(userID, clientID, scopeValue string) AuthorizeRequest {
	return AuthorizeRequest{
		UserID:              userID,
		ClientID:            clientID,
		Scope:               scopeValue,
		RedirectURI:         testRedirectURI,
		ResponseType:        ResponseTypeCode,
		CodeChallenge:       crypto.ChallengeFromVerifier(testVerifier),
		CodeChallengeMethod: crypto.ChallengeMethodS256,
		State:               "opaque-state",
		ConsentGranted:      true,
	}
}

// authorize runs /authorize and returns the issued code
func (f *fixture) authorize(t *testing.T, userID, clientID, scopeValue string) string {
	t.Helper()
	res, err := f.svc.Authorize(context.Background(), authorizeRequest(userID, clientID, scopeValue))
	require.NoError(t, err)
	return res.Code
}

func tokenRequest(clientID, code string) TokenRequest {
	return TokenRequest{
		ClientID:     clientID,
		GrantType:    GrantTypeAuthorizationCode,
		Code:         code,
		RedirectURI:  testRedirectURI,
		CodeVerifier: testVerifier,
	}
}
