// Package verify validates signed entitlement tokens against a known RSA
// public key. Verification is pure and fast; every failure is reported as a
// typed rejection, never as a panic.
package verify

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/open-rails/licensekit/entitlements"
)

// Rejection reasons surfaced in Result.Reason and mirrored into snapshots.
const (
	ReasonMalformedToken       = "malformed token"
	ReasonUnsupportedAlgorithm = "unsupported algorithm"
	ReasonInvalidPayload       = "invalid entitlement payload"
	ReasonInvalidSignature     = "invalid entitlement signature"
	ReasonNoPublicKey          = "verification unavailable: no public key configured"
)

// Result is the outcome of a verification attempt. Payload is non-nil only
// when Valid is true.
type Result struct {
	Valid   bool
	Payload *entitlements.Payload
	Reason  string
}

// Verifier checks RS256 entitlement tokens. Only RS256 is accepted; the
// allow-list prevents algorithm-confusion downgrades (alg:none, HMAC with
// the public key as secret, and so on).
type Verifier struct {
	key any // *rsa.PublicKey, kept opaque for golang-jwt's Verify
}

// New builds a Verifier around an RSA public key. A nil key yields a
// Verifier whose every result is a "no public key" failure rather than a
// panic, so a misconfigured host degrades to deny-by-default.
func New(key any) *Verifier {
	return &Verifier{key: key}
}

// NewFromPEM builds a Verifier from a PEM-encoded SPKI (or PKCS1) RSA
// public key.
func NewFromPEM(pemKey string) (*Verifier, error) {
	pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemKey))
	if err != nil {
		return nil, err
	}
	return &Verifier{key: pub}, nil
}

func reject(reason string) Result {
	return Result{Valid: false, Payload: nil, Reason: reason}
}

// Verify decodes and validates one token. Checks run cheapest-first:
// segment structure, header algorithm, payload shape, then the RSA
// signature over the ASCII bytes "header.payload".
func (v *Verifier) Verify(token string) Result {
	if v == nil || v.key == nil {
		return reject(ReasonNoPublicKey)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return reject(ReasonMalformedToken)
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return reject(ReasonMalformedToken)
	}
	payloadJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return reject(ReasonMalformedToken)
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return reject(ReasonMalformedToken)
	}

	var header struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return reject(ReasonMalformedToken)
	}
	if header.Alg != jwt.SigningMethodRS256.Alg() {
		return reject(ReasonUnsupportedAlgorithm)
	}

	// Shape-check before crypto so unsigned garbage never reaches the
	// signature routine.
	payload, err := entitlements.ParsePayload(payloadJSON)
	if err != nil {
		return reject(ReasonInvalidPayload)
	}

	signingString := parts[0] + "." + parts[1]
	if err := jwt.SigningMethodRS256.Verify(signingString, sig, v.key); err != nil {
		return reject(ReasonInvalidSignature)
	}

	return Result{Valid: true, Payload: payload}
}
