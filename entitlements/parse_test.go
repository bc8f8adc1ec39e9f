package entitlements

import (
	"testing"
	"time"
)

const validPayloadJSON = `{
	"sub": "user-123",
	"plan": "pro",
	"features": {"export": true, "sync": false},
	"issued_at": "2026-02-01T00:00:00Z",
	"expires_at": "2026-03-03T00:00:00Z",
	"grace_expires_at": "2026-03-10T00:00:00Z",
	"entitlement_id": "ent-1",
	"rev": 4,
	"device_limit": 3
}`

func TestParsePayload(t *testing.T) {
	p, err := ParsePayload([]byte(validPayloadJSON))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Subject != "user-123" || p.Plan != "pro" || p.EntitlementID != "ent-1" {
		t.Errorf("string fields wrong: %+v", p)
	}
	if !p.Features["export"] || p.Features["sync"] {
		t.Errorf("features wrong: %v", p.Features)
	}
	if p.Rev != 4 {
		t.Errorf("rev = %d, want 4", p.Rev)
	}
	if p.DeviceLimit == nil || *p.DeviceLimit != 3 {
		t.Errorf("device_limit not carried through: %v", p.DeviceLimit)
	}
	wantExp := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	if !p.ExpiresAt.Equal(wantExp) {
		t.Errorf("expires_at = %v, want %v", p.ExpiresAt, wantExp)
	}
}

func TestParsePayloadDeviceLimitOptional(t *testing.T) {
	raw := `{
		"sub": "u", "plan": "p", "features": {},
		"issued_at": "2026-02-01T00:00:00Z",
		"expires_at": "2026-03-03T00:00:00Z",
		"grace_expires_at": "2026-03-10T00:00:00Z",
		"entitlement_id": "e", "rev": 1
	}`
	p, err := ParsePayload([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.DeviceLimit != nil {
		t.Errorf("device_limit should be nil, got %v", *p.DeviceLimit)
	}
}

func TestParsePayloadFeatureCoercion(t *testing.T) {
	raw := `{
		"sub": "u", "plan": "p",
		"features": {"a": true, "b": "true", "c": 1, "d": null, "e": false},
		"issued_at": "2026-02-01T00:00:00Z",
		"expires_at": "2026-03-03T00:00:00Z",
		"grace_expires_at": "2026-03-10T00:00:00Z",
		"entitlement_id": "e", "rev": 1
	}`
	p, err := ParsePayload([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Only JSON true enables a feature.
	if !p.Features["a"] {
		t.Error("a should be enabled")
	}
	for _, name := range []string{"b", "c", "d", "e"} {
		if p.Features[name] {
			t.Errorf("%s should be coerced to false", name)
		}
	}
}

func TestParsePayloadShapeErrors(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `not json`},
		{"not object", `[1,2,3]`},
		{"sub not string", `{"sub": 7, "plan": "p", "features": {}, "issued_at": "2026-02-01T00:00:00Z", "expires_at": "2026-03-03T00:00:00Z", "grace_expires_at": "2026-03-10T00:00:00Z", "entitlement_id": "e", "rev": 1}`},
		{"missing plan", `{"sub": "u", "features": {}, "issued_at": "2026-02-01T00:00:00Z", "expires_at": "2026-03-03T00:00:00Z", "grace_expires_at": "2026-03-10T00:00:00Z", "entitlement_id": "e", "rev": 1}`},
		{"features not object", `{"sub": "u", "plan": "p", "features": [], "issued_at": "2026-02-01T00:00:00Z", "expires_at": "2026-03-03T00:00:00Z", "grace_expires_at": "2026-03-10T00:00:00Z", "entitlement_id": "e", "rev": 1}`},
		{"bad timestamp", `{"sub": "u", "plan": "p", "features": {}, "issued_at": "yesterday", "expires_at": "2026-03-03T00:00:00Z", "grace_expires_at": "2026-03-10T00:00:00Z", "entitlement_id": "e", "rev": 1}`},
		{"rev not number", `{"sub": "u", "plan": "p", "features": {}, "issued_at": "2026-02-01T00:00:00Z", "expires_at": "2026-03-03T00:00:00Z", "grace_expires_at": "2026-03-10T00:00:00Z", "entitlement_id": "e", "rev": "1"}`},
		{"device_limit not number", `{"sub": "u", "plan": "p", "features": {}, "issued_at": "2026-02-01T00:00:00Z", "expires_at": "2026-03-03T00:00:00Z", "grace_expires_at": "2026-03-10T00:00:00Z", "entitlement_id": "e", "rev": 1, "device_limit": "3"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParsePayload([]byte(tc.raw)); err == nil {
				t.Errorf("expected error for %s", tc.name)
			}
		})
	}
}

func TestStatusDenied(t *testing.T) {
	denied := []Status{StatusExpired, StatusInvalidSignature, StatusNoEntitlement, StatusError}
	for _, s := range denied {
		if !s.Denied() {
			t.Errorf("%s should deny", s)
		}
	}
	for _, s := range []Status{StatusOK, StatusGrace} {
		if s.Denied() {
			t.Errorf("%s should not deny", s)
		}
	}
}

func TestFeatureEnabledNilPayload(t *testing.T) {
	var p *Payload
	if p.FeatureEnabled("anything") {
		t.Error("nil payload must disable every feature")
	}
}
