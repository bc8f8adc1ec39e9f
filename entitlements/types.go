// Package entitlements defines the payload, snapshot, and persisted record
// types shared by the verifier, cache, and feature gate.
package entitlements

import "time"

// Status is the point-in-time entitlement state.
type Status string

const (
	// StatusOK means a verified entitlement whose expiry is still in the future.
	StatusOK Status = "ok"
	// StatusGrace means the entitlement expired but the grace window is still open.
	StatusGrace Status = "grace"
	// StatusExpired means both the expiry and the grace window have passed.
	StatusExpired Status = "expired"
	// StatusInvalidSignature means the token failed verification (malformed,
	// wrong algorithm, bad shape, or bad signature).
	StatusInvalidSignature Status = "invalid_signature"
	// StatusNoEntitlement means no token has ever been stored. This is the
	// safe default and is deliberately distinct from StatusExpired.
	StatusNoEntitlement Status = "no_entitlement"
	// StatusError means verification could not run at all (e.g., no public
	// key configured). Deny-by-default, like every non-ok/grace state.
	StatusError Status = "error"
)

// Denied reports whether the status denies every feature regardless of plan.
func (s Status) Denied() bool {
	switch s {
	case StatusOK, StatusGrace:
		return false
	}
	return true
}

// Payload is a decoded entitlement claim set. It is trusted only after
// signature verification; use ParsePayload to build one from raw JSON.
type Payload struct {
	Subject        string          `json:"sub"`
	Plan           string          `json:"plan"`
	Features       map[string]bool `json:"features"`
	IssuedAt       time.Time       `json:"issued_at"`
	ExpiresAt      time.Time       `json:"expires_at"`
	GraceExpiresAt time.Time       `json:"grace_expires_at"`
	EntitlementID  string          `json:"entitlement_id"`
	Rev            int64           `json:"rev"`

	// DeviceLimit is carried through for the issuer's benefit; this core
	// does not enforce device policy.
	DeviceLimit *int `json:"device_limit,omitempty"`
}

// FeatureEnabled reports whether the plan enables the named feature.
// Absent keys are disabled.
func (p *Payload) FeatureEnabled(name string) bool {
	if p == nil {
		return false
	}
	return p.Features[name]
}

// Snapshot is an immutable, point-in-time view of entitlement status.
// A new one is computed on every store/refresh; existing snapshots are
// never mutated.
type Snapshot struct {
	Status               Status     `json:"status"`
	Reason               string     `json:"reason"`
	Payload              *Payload   `json:"payload,omitempty"`
	SignatureValid       bool       `json:"signature_valid"`
	DaysUntilExpiry      float64    `json:"days_until_expiry"`
	DaysUntilGraceExpiry float64    `json:"days_until_grace_expiry"`
	LastRefreshAt        *time.Time `json:"last_refresh_at,omitempty"`
}

// CacheRecordVersion is the current on-disk/backend CacheRecord format.
const CacheRecordVersion = 1

// CacheRecord is the persisted form of the last stored token. It carries
// enough to rebuild a Snapshot at startup without contacting the network.
// A token that failed verification is kept too, so reconstruction yields
// invalid_signature rather than no_entitlement. An empty token means no
// entitlement was ever stored.
type CacheRecord struct {
	Version       int       `json:"version"`
	Token         string    `json:"token,omitempty"`
	LastRefreshAt time.Time `json:"last_refresh_at"`
}
