package verify_test

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	lktesting "github.com/open-rails/licensekit/testing"
	"github.com/open-rails/licensekit/verify"
)

func newVerifier(t *testing.T, issuer *lktesting.TestIssuer) *verify.Verifier {
	t.Helper()
	v, err := verify.NewFromPEM(issuer.PublicKeyPEM())
	if err != nil {
		t.Fatalf("NewFromPEM: %v", err)
	}
	return v
}

func TestVerifyValidToken(t *testing.T) {
	issuer := lktesting.NewTestIssuer()
	defer issuer.Close()
	v := newVerifier(t, issuer)

	token := issuer.IssueToken(lktesting.Entitlement{
		Subject:  "user-123",
		Plan:     "pro",
		Features: map[string]bool{"export": true},
	})

	res := v.Verify(token)
	if !res.Valid {
		t.Fatalf("expected valid, got reason %q", res.Reason)
	}
	if res.Payload == nil {
		t.Fatal("payload missing")
	}
	if res.Payload.Subject != "user-123" || res.Payload.Plan != "pro" {
		t.Errorf("payload fields wrong: %+v", res.Payload)
	}
	if !res.Payload.Features["export"] {
		t.Error("export feature should be enabled")
	}
}

func TestVerifyTamperedPayload(t *testing.T) {
	issuer := lktesting.NewTestIssuer()
	defer issuer.Close()
	v := newVerifier(t, issuer)

	token := issuer.IssueToken(lktesting.Entitlement{Subject: "u", Plan: "free"})
	parts := strings.Split(token, ".")

	// Re-encode the payload with an upgraded plan, keeping the original
	// signature. Shape stays valid so the failure must come from crypto.
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	obj["plan"] = "enterprise"
	forged, _ := json.Marshal(obj)
	parts[1] = base64.RawURLEncoding.EncodeToString(forged)

	res := v.Verify(strings.Join(parts, "."))
	if res.Valid {
		t.Fatal("tampered token must not verify")
	}
	if res.Payload != nil {
		t.Error("payload must be nil on failure")
	}
	if res.Reason != verify.ReasonInvalidSignature {
		t.Errorf("reason = %q, want %q", res.Reason, verify.ReasonInvalidSignature)
	}
}

func TestVerifyMalformedTokens(t *testing.T) {
	issuer := lktesting.NewTestIssuer()
	defer issuer.Close()
	v := newVerifier(t, issuer)

	cases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"one segment", "abc"},
		{"two segments", "abc.def"},
		{"four segments", "a.b.c.d"},
		{"empty segment", "a..c"},
		{"bad base64 header", "!!!.e30.e30"},
		{"bad base64 signature", "e30.e30.!!!"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := v.Verify(tc.token)
			if res.Valid {
				t.Fatal("must not verify")
			}
			if res.Reason != verify.ReasonMalformedToken {
				t.Errorf("reason = %q, want %q", res.Reason, verify.ReasonMalformedToken)
			}
		})
	}
}

// forgeToken builds header.payload.signature from raw JSON segments with a
// garbage signature.
func forgeToken(header, payload string) string {
	enc := base64.RawURLEncoding.EncodeToString
	return enc([]byte(header)) + "." + enc([]byte(payload)) + "." + enc([]byte("sig"))
}

func TestVerifyAlgorithmAllowList(t *testing.T) {
	issuer := lktesting.NewTestIssuer()
	defer issuer.Close()
	v := newVerifier(t, issuer)

	payload := `{"sub":"u","plan":"p","features":{},` +
		`"issued_at":"2026-02-01T00:00:00Z","expires_at":"2026-03-03T00:00:00Z",` +
		`"grace_expires_at":"2026-03-10T00:00:00Z","entitlement_id":"e","rev":1}`

	for _, alg := range []string{"none", "HS256", "RS384", "ES256", ""} {
		header := `{"alg":"` + alg + `","typ":"JWT"}`
		if alg == "" {
			header = `{"typ":"JWT"}`
		}
		res := v.Verify(forgeToken(header, payload))
		if res.Valid {
			t.Fatalf("alg %q must not verify", alg)
		}
		if res.Reason != verify.ReasonUnsupportedAlgorithm {
			t.Errorf("alg %q: reason = %q, want %q", alg, res.Reason, verify.ReasonUnsupportedAlgorithm)
		}
	}
}

func TestVerifyPayloadShapeBeforeCrypto(t *testing.T) {
	issuer := lktesting.NewTestIssuer()
	defer issuer.Close()
	v := newVerifier(t, issuer)

	// Properly signed but shape-invalid payloads must fail as payload
	// errors, not signature errors.
	token := issuer.IssueRawClaims(map[string]any{
		"sub": "u", "plan": 42, "features": map[string]bool{},
	})
	res := v.Verify(token)
	if res.Valid {
		t.Fatal("must not verify")
	}
	if res.Reason != verify.ReasonInvalidPayload {
		t.Errorf("reason = %q, want %q", res.Reason, verify.ReasonInvalidPayload)
	}
}

func TestVerifyExpiredTokenStillVerifies(t *testing.T) {
	// Temporal status is the cache's concern; the verifier only checks
	// structure and signature.
	issuer := lktesting.NewTestIssuer()
	defer issuer.Close()
	v := newVerifier(t, issuer)

	token := issuer.IssueToken(lktesting.Entitlement{
		Subject:        "u",
		Plan:           "pro",
		IssuedAt:       time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		ExpiresAt:      time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC),
		GraceExpiresAt: time.Date(2020, 2, 8, 0, 0, 0, 0, time.UTC),
	})
	if res := v.Verify(token); !res.Valid {
		t.Fatalf("expired-but-authentic token must verify, got %q", res.Reason)
	}
}

func TestVerifyNoKeyConfigured(t *testing.T) {
	v := verify.New(nil)
	res := v.Verify("a.b.c")
	if res.Valid {
		t.Fatal("must not verify without a key")
	}
	if res.Reason != verify.ReasonNoPublicKey {
		t.Errorf("reason = %q, want %q", res.Reason, verify.ReasonNoPublicKey)
	}
}
