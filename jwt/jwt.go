// Package jwtkit holds the RSA key plumbing for entitlement tokens: a
// minimal RS256 signer (dev and test issuance), PEM helpers, and the
// public-key discovery sources consumed by the verifier.
package jwtkit

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Signer issues signed entitlement tokens. Production tokens come from the
// license server; this interface exists for the test issuer and local dev.
type Signer interface {
	// Algorithm returns the JWS algorithm (RS256).
	Algorithm() string
	// KID returns the current key id.
	KID() string
	// Sign creates a signed token with the provided claims.
	Sign(ctx context.Context, claims jwt.MapClaims) (token string, err error)
}

// RSASigner is a minimal in-memory RS256 signer.
type RSASigner struct {
	key *rsa.PrivateKey
	kid string
}

// NewRSASigner generates a fresh RSA key pair. bits defaults to 2048.
func NewRSASigner(bits int, kid string) (*RSASigner, error) {
	if bits == 0 {
		bits = 2048
	}
	k, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, err
	}
	return &RSASigner{key: k, kid: kid}, nil
}

// NewRSASignerFromPEM constructs an RSASigner from a PEM-encoded private key
// (PKCS1 or PKCS8).
func NewRSASignerFromPEM(kid string, pemBytes []byte) (*RSASigner, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("jwtkit: no PEM block in private key input")
	}

	if block.Type == "RSA PRIVATE KEY" {
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		return &RSASigner{key: key, kid: kid}, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("jwtkit: PKCS8 block does not hold an RSA private key")
	}
	return &RSASigner{key: key, kid: kid}, nil
}

func (s *RSASigner) Algorithm() string         { return jwt.SigningMethodRS256.Alg() }
func (s *RSASigner) KID() string               { return s.kid }
func (s *RSASigner) PublicKey() *rsa.PublicKey { return &s.key.PublicKey }

func (s *RSASigner) Sign(_ context.Context, claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.kid
	return token.SignedString(s.key)
}

// PublicKeyPEM returns the signer's public key as a PEM-encoded SPKI block,
// the format the verifier consumes from configuration.
func (s *RSASigner) PublicKeyPEM() (string, error) {
	return EncodePublicKeyPEM(s.PublicKey())
}

// EncodePublicKeyPEM marshals an RSA public key to a PEM SPKI block.
func EncodePublicKeyPEM(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", err
	}
	block := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return string(block), nil
}
