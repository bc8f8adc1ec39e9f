// Package testing provides a mock license issuer for tests: it signs
// entitlement tokens with a throwaway RSA key and serves the matching JWKS,
// so verification paths can be exercised without a real license server.
//
// Example usage:
//
//	issuer := testing.NewTestIssuer()
//	defer issuer.Close()
//
//	token := issuer.IssueToken(testing.Entitlement{
//		Subject:   "user-123",
//		Plan:      "pro",
//		Features:  map[string]bool{"export": true},
//		ExpiresAt: time.Now().Add(30 * 24 * time.Hour),
//	})
package testing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	jwtkit "github.com/open-rails/licensekit/jwt"
)

// Entitlement describes the claims of a token to issue. Zero-value
// timestamps are filled with sensible defaults relative to IssuedAt.
type Entitlement struct {
	Subject        string
	Plan           string
	Features       map[string]bool
	IssuedAt       time.Time
	ExpiresAt      time.Time
	GraceExpiresAt time.Time
	EntitlementID  string
	Rev            int64
	DeviceLimit    *int
}

// TestIssuer signs entitlement tokens and serves its public key, both as
// JWKS (at /.well-known/jwks.json) and as SPKI PEM.
type TestIssuer struct {
	server *httptest.Server
	signer *jwtkit.RSASigner
}

// NewTestIssuer creates an issuer with a fresh RSA key pair. Call Close
// when done.
func NewTestIssuer() *TestIssuer {
	signer, err := jwtkit.NewRSASigner(2048, "test-key-1")
	if err != nil {
		panic("failed to create RSA signer: " + err.Error())
	}

	ti := &TestIssuer{signer: signer}

	var keys jwtkit.KeySet
	keys.AddRSA(signer.PublicKey(), signer.KID(), signer.Algorithm())

	mux := http.NewServeMux()
	mux.Handle("/.well-known/jwks.json", keys.Handler())
	ti.server = httptest.NewServer(mux)
	return ti
}

// URL returns the base URL of the JWKS server.
func (ti *TestIssuer) URL() string { return ti.server.URL }

// JWKSURL returns the full JWKS document URL.
func (ti *TestIssuer) JWKSURL() string { return ti.server.URL + "/.well-known/jwks.json" }

// Close shuts down the JWKS server.
func (ti *TestIssuer) Close() {
	if ti.server != nil {
		ti.server.Close()
	}
}

// PublicKeyPEM returns the verification key as PEM SPKI, the format the
// cache consumes from configuration.
func (ti *TestIssuer) PublicKeyPEM() string {
	pemStr, err := ti.signer.PublicKeyPEM()
	if err != nil {
		panic("failed to encode public key: " + err.Error())
	}
	return pemStr
}

// IssueToken signs an entitlement token. Defaults: IssuedAt now, ExpiresAt
// thirty days after IssuedAt, GraceExpiresAt seven days after ExpiresAt,
// a random EntitlementID, Rev 1.
func (ti *TestIssuer) IssueToken(e Entitlement) string {
	if e.IssuedAt.IsZero() {
		e.IssuedAt = time.Now()
	}
	if e.ExpiresAt.IsZero() {
		e.ExpiresAt = e.IssuedAt.Add(30 * 24 * time.Hour)
	}
	if e.GraceExpiresAt.IsZero() {
		e.GraceExpiresAt = e.ExpiresAt.Add(7 * 24 * time.Hour)
	}
	if e.EntitlementID == "" {
		e.EntitlementID = uuid.NewString()
	}
	if e.Rev == 0 {
		e.Rev = 1
	}
	if e.Features == nil {
		e.Features = map[string]bool{}
	}

	claims := jwt.MapClaims{
		"sub":              e.Subject,
		"plan":             e.Plan,
		"features":         e.Features,
		"issued_at":        e.IssuedAt.UTC().Format(time.RFC3339),
		"expires_at":       e.ExpiresAt.UTC().Format(time.RFC3339),
		"grace_expires_at": e.GraceExpiresAt.UTC().Format(time.RFC3339),
		"entitlement_id":   e.EntitlementID,
		"rev":              e.Rev,
	}
	if e.DeviceLimit != nil {
		claims["device_limit"] = *e.DeviceLimit
	}

	token, err := ti.signer.Sign(context.Background(), claims)
	if err != nil {
		panic("failed to sign token: " + err.Error())
	}
	return token
}

// IssueRawClaims signs an arbitrary claim set. Tests use it to produce
// tokens with missing or mistyped fields.
func (ti *TestIssuer) IssueRawClaims(claims map[string]any) string {
	token, err := ti.signer.Sign(context.Background(), jwt.MapClaims(claims))
	if err != nil {
		panic("failed to sign token: " + err.Error())
	}
	return token
}
