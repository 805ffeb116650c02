// Package auth extracts client and user credentials from HTTP requests.
package auth

import (
	"encoding/base64"
	"errors"
	"net/url"
	"strings"
)

var (
	ErrEmptyHeader        = errors.New("authorization header is empty")
	ErrInvalidScheme      = errors.New("unexpected authorization scheme")
	ErrInvalidBase64      = errors.New("invalid base64 encoding")
	ErrInvalidCredentials = errors.New("invalid credentials format")
	ErrEmptyClientID      = errors.New("client_id cannot be empty")
	ErrEmptyBearer        = errors.New("bearer token is empty")
)

// ParseBasicAuth decodes a client_secret_basic header. Both halves are
// form-urlencoded before base64 per RFC 6749 section 2.3.1, so they are
// unescaped after the split.
func ParseBasicAuth(header string) (clientID, clientSecret string, err error) {
	if header == "" {
		return "", "", ErrEmptyHeader
	}
	encoded, ok := cutScheme(header, "Basic")
	if !ok {
		return "", "", ErrInvalidScheme
	}
	if encoded == "" {
		return "", "", ErrInvalidBase64
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", ErrInvalidBase64
	}

	rawID, rawSecret, found := strings.Cut(string(decoded), ":")
	if !found {
		return "", "", ErrInvalidCredentials
	}
	if clientID, err = url.QueryUnescape(rawID); err != nil {
		return "", "", ErrInvalidCredentials
	}
	if clientSecret, err = url.QueryUnescape(rawSecret); err != nil {
		return "", "", ErrInvalidCredentials
	}
	if clientID == "" {
		return "", "", ErrEmptyClientID
	}
	return clientID, clientSecret, nil
}

// ParseBearer returns the token carried by an Authorization header. The
// "Bearer " prefix is optional: resource servers forward the raw token too.
func ParseBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrEmptyHeader
	}
	if token, ok := cutScheme(header, "Bearer"); ok {
		header = token
	} else if strings.ContainsRune(header, ' ') {
		return "", ErrInvalidScheme
	}
	if header == "" {
		return "", ErrEmptyBearer
	}
	return header, nil
}

// cutScheme strips a case-insensitive auth scheme and the following spaces.
func cutScheme(header, scheme string) (string, bool) {
	if len(header) < len(scheme) || !strings.EqualFold(header[:len(scheme)], scheme) {
		return "", false
	}
	rest := header[len(scheme):]
	if rest != "" && rest[0] != ' ' {
		return "", false
	}
	return strings.TrimSpace(rest), true
}
