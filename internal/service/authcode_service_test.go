package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlddu/registry-oauth/internal/crypto"
	"github.com/dlddu/registry-oauth/internal/repository"
	"github.com/dlddu/registry-oauth/internal/scope"
)

func issueCode(t *testing.T, f *fixture) string {
	t.Helper()
	var code string
	err := f.tx.RunInTx(context.Background(), func(ctx context.Context, st repository.Stores) error {
		var err error
		code, err = f.codes.Issue(ctx, st.Codes, IssueCodeParams{
			ClientID:      "c1",
			UserID:        "u1",
			Scope:         scope.FromUint64(0b001),
			TokenTTL:      time.Hour,
			CodeChallenge: crypto.ChallengeFromVerifier(testVerifier),
			RedirectURI:   testRedirectURI,
		})
		return err
	})
	require.NoError(t, err)
	return code
}

func redeem(f *fixture, clientID, code, verifier, redirectURI string) (*Grant, error) {
	var grant *Grant
	err := f.tx.RunInTx(context.Background(), func(ctx context.Context, st repository.Stores) error {
		var err error
		grant, err = f.codes.Redeem(ctx, st.Codes, clientID, code, verifier, redirectURI)
		return err
	})
	return grant, err
}

func TestCodeStore_IssueThenRedeemOnce(t *testing.T) {
	// Arrange
	f := newFixture(t)
	code := issueCode(t, f)

	// Act
	grant, err := redeem(f, "c1", code, testVerifier, testRedirectURI)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "u1", grant.UserID)
	assert.True(t, grant.Permissions.Equal(scope.FromUint64(0b001)))
	assert.Equal(t, time.Hour, grant.TokenTTL)
	assert.GreaterOrEqual(t, len(code), 32)

	_, err = redeem(f, "c1", code, testVerifier, testRedirectURI)
	assert.ErrorIs(t, err, repository.ErrCodeNotFound)
}

func TestCodeStore_RedeemRejectsUniformly(t *testing.T) {
	tests := []struct {
		name        string
		clientID    string
		verifier    string
		redirectURI string
		advance     time.Duration
	}{
		{
			name:        "should reject wrong verifier",
			clientID:    "c1",
			verifier:    "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
			redirectURI: testRedirectURI,
		},
		{
			name:        "should reject redirect uri that differs only by a trailing slash",
			clientID:    "c1",
			verifier:    testVerifier,
			redirectURI: testRedirectURI + "/",
		},
		{
			name:        "should reject code presented by another client",
			clientID:    "c2",
			verifier:    testVerifier,
			redirectURI: testRedirectURI,
		},
		{
			name:        "should reject expired code",
			clientID:    "c1",
			verifier:    testVerifier,
			redirectURI: testRedirectURI,
			advance:     10 * time.Minute,
		},
		{
			name:        "should reject verifier shorter than 43 characters",
			clientID:    "c1",
			verifier:    "short",
			redirectURI: testRedirectURI,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			f := newFixture(t)
			code := issueCode(t, f)
			f.advance(tt.advance)

			// Act
			_, err := redeem(f, tt.clientID, code, tt.verifier, tt.redirectURI)

			// Assert
			assert.ErrorIs(t, err, repository.ErrCodeNotFound)
		})
	}
}

func TestCodeStore_FailedRedeemLeavesCodeInPlace(t *testing.T) {
	f := newFixture(t)
	code := issueCode(t, f)

	_, err := redeem(f, "c1", code, "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", testRedirectURI)
	require.ErrorIs(t, err, repository.ErrCodeNotFound)

	_, err = redeem(f, "c1", code, testVerifier, testRedirectURI)
	assert.NoError(t, err)
}

func TestCodeStore_IssueRejectsMalformedChallenge(t *testing.T) {
	f := newFixture(t)

	err := f.tx.RunInTx(context.Background(), func(ctx context.Context, st repository.Stores) error {
		_, err := f.codes.Issue(ctx, st.Codes, IssueCodeParams{
			ClientID:      "c1",
			UserID:        "u1",
			TokenTTL:      time.Hour,
			CodeChallenge: "not-hex",
			RedirectURI:   testRedirectURI,
		})
		return err
	})

	assert.Error(t, err)
}
