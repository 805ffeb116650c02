package jwt

import (
	"crypto/rsa"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*TokenManager, *rsa.PrivateKey) {
	t.Helper()
	priv, pub, err := GenerateKeyPair(2048)
	require.NoError(t, err)
	tm, err := NewTokenManager(priv, pub, "https://auth.example.test")
	require.NoError(t, err)
	return tm, priv
}

func testClaims() BearerClaims {
	return BearerClaims{
		TokenID:   "tok-1",
		UserID:    "u1",
		ClientID:  "c1",
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func TestNewTokenManager(t *testing.T) {
	priv, pub, err := GenerateKeyPair(2048)
	require.NoError(t, err)

	tests := []struct {
		name    string
		priv    *rsa.PrivateKey
		pub     *rsa.PublicKey
		issuer  string
		wantErr string
	}{
		{name: "should create token manager", priv: priv, pub: pub, issuer: "iss"},
		{name: "should fail without private key", pub: pub, issuer: "iss", wantErr: "private key is required"},
		{name: "should fail without public key", priv: priv, issuer: "iss", wantErr: "public key is required"},
		{name: "should fail without issuer", priv: priv, pub: pub, wantErr: "issuer is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tm, err := NewTokenManager(tt.priv, tt.pub, tt.issuer)
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, tm)
		})
	}
}

func TestSignAndParse(t *testing.T) {
	tm, _ := newTestManager(t)
	claims := testClaims()

	bearer, err := tm.Sign(claims)
	require.NoError(t, err)
	assert.Len(t, strings.Split(bearer, "."), 3)

	parsed, err := tm.Parse(bearer)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", parsed.TokenID)
	assert.Equal(t, "u1", parsed.UserID)
	assert.Equal(t, "c1", parsed.ClientID)
	assert.Equal(t, claims.ExpiresAt.Unix(), parsed.ExpiresAt.Unix())
}

func TestSign_DistinctStringsForSameClaims(t *testing.T) {
	tm, _ := newTestManager(t)
	claims := testClaims()

	first, err := tm.Sign(claims)
	require.NoError(t, err)
	second, err := tm.Sign(claims)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestSign_RejectsIncompleteClaims(t *testing.T) {
	tm, _ := newTestManager(t)
	claims := testClaims()
	claims.ClientID = ""

	_, err := tm.Sign(claims)

	assert.EqualError(t, err, "client id is required")
}

func TestParse_IgnoresExpiry(t *testing.T) {
	tm, _ := newTestManager(t)
	claims := testClaims()
	claims.ExpiresAt = time.Now().Add(-time.Hour)

	bearer, err := tm.Sign(claims)
	require.NoError(t, err)

	parsed, err := tm.Parse(bearer)
	require.NoError(t, err)
	assert.True(t, parsed.ExpiresAt.Before(time.Now()))
}

func TestParse_Rejects(t *testing.T) {
	tm, tmKey := newTestManager(t)
	other, _ := newTestManager(t)

	foreign, err := other.Sign(testClaims())
	require.NoError(t, err)

	wrongIssuer, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss": "someone-else", "sub": "u1", "client_id": "c1", "jti": "x",
	}).SignedString(tmKey)
	require.NoError(t, err)

	hmac, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "https://auth.example.test", "sub": "u1", "client_id": "c1", "jti": "x",
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		bearer string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"signed by another key", foreign},
		{"wrong issuer", wrongIssuer},
		{"hmac algorithm", hmac},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tm.Parse(tt.bearer)
			assert.ErrorIs(t, err, ErrMalformedToken)
		})
	}
}

func TestSign_SetsKID(t *testing.T) {
	tm, _ := newTestManager(t)
	tm.SetKID("key-2026")

	bearer, err := tm.Sign(testClaims())
	require.NoError(t, err)

	token, _, err := jwt.NewParser().ParseUnverified(bearer, jwt.MapClaims{})
	require.NoError(t, err)
	assert.Equal(t, "key-2026", token.Header["kid"])
}
