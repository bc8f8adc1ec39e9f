package jwtkit

import (
	"context"
	"crypto/rsa"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

const (
	// DefaultKeyPath is the default directory where deployments mount the
	// license public key.
	DefaultKeyPath = "/etc/licensekit"

	publicKeyFile = "public.pem"

	envPublicKeyPEM  = "LICENSE_PUBLIC_KEY_PEM"
	envPublicKeyFile = "LICENSE_PUBLIC_KEY_FILE"
)

// KeySource yields the RSA public key entitlement tokens are verified with.
type KeySource interface {
	PublicKey(ctx context.Context) (*rsa.PublicKey, error)
}

// StaticKey is an in-memory KeySource.
type StaticKey struct {
	Key *rsa.PublicKey
}

func (s StaticKey) PublicKey(context.Context) (*rsa.PublicKey, error) {
	if s.Key == nil {
		return nil, fmt.Errorf("static key source holds no key")
	}
	return s.Key, nil
}

// ParsePublicKeyPEM parses a PEM-encoded SPKI (or PKCS1) RSA public key.
func ParsePublicKeyPEM(pemKey string) (*rsa.PublicKey, error) {
	return jwt.ParseRSAPublicKeyFromPEM([]byte(pemKey))
}

// NewAutoKeySource discovers the license public key with the following
// priority:
//  1. LICENSE_PUBLIC_KEY_PEM environment variable (inline PEM)
//  2. LICENSE_PUBLIC_KEY_FILE environment variable (path to a PEM file)
//  3. /etc/licensekit/public.pem (mounted by the deployment)
//
// Returns an error if a key is explicitly provided but unparseable, or if
// no key is found anywhere. Verification cannot run without a key, so there
// is no generated fallback here.
func NewAutoKeySource() (KeySource, error) {
	if pemStr := strings.TrimSpace(os.Getenv(envPublicKeyPEM)); pemStr != "" {
		pub, err := ParsePublicKeyPEM(pemStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", envPublicKeyPEM, err)
		}
		return StaticKey{Key: pub}, nil
	}

	path := strings.TrimSpace(os.Getenv(envPublicKeyFile))
	explicit := path != ""
	if !explicit {
		path = filepath.Join(DefaultKeyPath, publicKeyFile)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil, fmt.Errorf("no license public key found: set %s or %s, or mount %s", envPublicKeyPEM, envPublicKeyFile, path)
		}
		return nil, fmt.Errorf("failed to read license public key %s: %w", path, err)
	}
	pub, err := ParsePublicKeyPEM(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse license public key %s: %w", path, err)
	}
	return StaticKey{Key: pub}, nil
}

// JWKSKeySource fetches the verification key from a JWKS endpoint published
// by the license server. The fetch happens per call; wrap in a StaticKey if
// the host wants to pin the result.
type JWKSKeySource struct {
	// URL of the JWKS document, e.g. https://license.example.com/.well-known/jwks.json.
	URL string
	// KID selects a key from the set. Empty picks the first RSA key.
	KID string
}

func (j JWKSKeySource) PublicKey(ctx context.Context) (*rsa.PublicKey, error) {
	set, err := jwk.Fetch(ctx, j.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", j.URL, err)
	}

	if j.KID != "" {
		key, ok := set.LookupKeyID(j.KID)
		if !ok {
			return nil, fmt.Errorf("JWKS at %s has no key %q", j.URL, j.KID)
		}
		return rawRSA(key)
	}

	for i := 0; i < set.Len(); i++ {
		key, _ := set.Key(i)
		if pub, err := rawRSA(key); err == nil {
			return pub, nil
		}
	}
	return nil, fmt.Errorf("JWKS at %s contains no RSA key", j.URL)
}

func rawRSA(key jwk.Key) (*rsa.PublicKey, error) {
	var pub rsa.PublicKey
	if err := key.Raw(&pub); err != nil {
		return nil, fmt.Errorf("key %q is not an RSA public key: %w", key.KeyID(), err)
	}
	return &pub, nil
}
