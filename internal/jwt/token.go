package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrMalformedToken = errors.New("malformed bearer token")

// TokenManager signs and parses bearer strings
type TokenManager struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
	kid        string
	parser     *jwt.Parser
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(privateKey *rsa.PrivateKey, publicKey *rsa.PublicKey, issuer string) (*TokenManager, error) {
	if privateKey == nil {
		return nil, errors.New("private key is required")
	}
	if publicKey == nil {
		return nil, errors.New("public key is required")
	}
	if issuer == "" {
		return nil, errors.New("issuer is required")
	}

	return &TokenManager{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		// Expiry is enforced against the stored record so that expired
		// records can be deleted on read.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// SetKID sets the Key ID (kid) for the token header
func (tm *TokenManager) SetKID(kid string) {
	tm.kid = kid
}

// Sign produces a new bearer string. Every call yields a distinct string,
// even for identical claims, because a random nonce is embedded.
func (tm *TokenManager) Sign(claims BearerClaims) (string, error) {
	if err := claims.Validate(); err != nil {
		return "", err
	}

	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	issuedAt := claims.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}

	jwtClaims := jwt.MapClaims{
		"iss":       tm.issuer,
		"sub":       claims.UserID,
		"client_id": claims.ClientID,
		"jti":       claims.TokenID,
		"iat":       issuedAt.Unix(),
		"exp":       claims.ExpiresAt.Unix(),
		"nonce":     base64.RawURLEncoding.EncodeToString(nonce),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwtClaims)
	if tm.kid != "" {
		token.Header["kid"] = tm.kid
	}

	tokenString, err := token.SignedString(tm.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// Parse verifies the signature and issuer of a bearer string and returns its
// claims. It does not check expiry.
func (tm *TokenManager) Parse(tokenString string) (*BearerClaims, error) {
	if tokenString == "" {
		return nil, ErrMalformedToken
	}

	claims := jwt.MapClaims{}
	token, err := tm.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return tm.publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
	if !token.Valid {
		return nil, ErrMalformedToken
	}

	if iss, _ := claims["iss"].(string); iss != tm.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer", ErrMalformedToken)
	}

	out := &BearerClaims{}
	var ok bool
	if out.TokenID, ok = claims["jti"].(string); !ok || out.TokenID == "" {
		return nil, fmt.Errorf("%w: missing jti", ErrMalformedToken)
	}
	if out.UserID, ok = claims["sub"].(string); !ok || out.UserID == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrMalformedToken)
	}
	if out.ClientID, ok = claims["client_id"].(string); !ok || out.ClientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", ErrMalformedToken)
	}
	if iat, ok := claims["iat"].(float64); ok {
		out.IssuedAt = time.Unix(int64(iat), 0)
	}
	if exp, ok := claims["exp"].(float64); ok {
		out.ExpiresAt = time.Unix(int64(exp), 0)
	}

	return out, nil
}
