package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// GenerateKeyPair generates an RSA key pair with the specified bit size
func GenerateKeyPair(bitSize int) (*rsa.PrivateKey, *rsa.PublicKey, error) {
	if bitSize < 2048 {
		return nil, nil, errors.New("bit size must be at least 2048")
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, bitSize)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate key pair: %w", err)
	}

	return privateKey, &privateKey.PublicKey, nil
}

// SaveKeyPair writes the private key (0600) and public key (0644) as PEM files
func SaveKeyPair(privateKey *rsa.PrivateKey, privateKeyPath, publicKeyPath string) error {
	privPEM := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	}
	if err := writePEM(privateKeyPath, privPEM, 0600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}

	pubBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return fmt.Errorf("failed to marshal public key: %w", err)
	}
	pubPEM := &pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubBytes,
	}
	if err := writePEM(publicKeyPath, pubPEM, 0644); err != nil {
		return fmt.Errorf("failed to write public key: %w", err)
	}

	return nil
}

func writePEM(path string, block *pem.Block, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer f.Close()

	return pem.Encode(f, block)
}

// LoadKeyPair loads the signing key pair from PEM files. When both files are
// missing and generate is true, an ephemeral 2048-bit pair is created instead;
// bearer tokens signed with it do not survive a restart.
func LoadKeyPair(privateKeyPath, publicKeyPath string, generate bool) (*rsa.PrivateKey, *rsa.PublicKey, bool, error) {
	_, privErr := os.Stat(privateKeyPath)
	_, pubErr := os.Stat(publicKeyPath)
	if generate && os.IsNotExist(privErr) && os.IsNotExist(pubErr) {
		priv, pub, err := GenerateKeyPair(2048)
		return priv, pub, true, err
	}

	priv, err := LoadPrivateKeyFromFile(privateKeyPath)
	if err != nil {
		return nil, nil, false, fmt.Errorf("load private key %s: %w", privateKeyPath, err)
	}
	pub, err := LoadPublicKeyFromFile(publicKeyPath)
	if err != nil {
		return nil, nil, false, fmt.Errorf("load public key %s: %w", publicKeyPath, err)
	}
	if priv.PublicKey.N.Cmp(pub.N) != 0 || priv.PublicKey.E != pub.E {
		return nil, nil, false, errors.New("public key does not match private key")
	}

	return priv, pub, false, nil
}

// LoadPrivateKeyFromFile loads an RSA private key from a file
func LoadPrivateKeyFromFile(path string) (*rsa.PrivateKey, error) {
	keyData, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("file does not exist")
		}
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}

	return parsePrivateKey(keyData)
}

// LoadPublicKeyFromFile loads an RSA public key from a file
func LoadPublicKeyFromFile(path string) (*rsa.PublicKey, error) {
	keyData, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("file does not exist")
		}
		return nil, fmt.Errorf("failed to read public key file: %w", err)
	}

	return parsePublicKey(keyData)
}

// parsePrivateKey accepts PKCS1 and PKCS8 PEM blocks
func parsePrivateKey(keyData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, errors.New("invalid PEM format")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		return privateKey, nil
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		privateKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("not an RSA private key")
		}
		return privateKey, nil
	default:
		return nil, errors.New("wrong key type")
	}
}

// parsePublicKey accepts PKIX and PKCS1 PEM blocks
func parsePublicKey(keyData []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, errors.New("invalid PEM format")
	}

	switch block.Type {
	case "PUBLIC KEY":
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
		publicKey, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("not an RSA public key")
		}
		return publicKey, nil
	case "RSA PUBLIC KEY":
		publicKey, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
		return publicKey, nil
	default:
		return nil, errors.New("wrong key type")
	}
}
