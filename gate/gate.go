// Package gate answers "can feature X be used right now" from the current
// entitlement snapshot. It performs no I/O and no crypto.
package gate

import (
	"fmt"
	"time"

	"github.com/open-rails/licensekit/entitlements"
	"github.com/open-rails/licensekit/metrics"
)

// SnapshotSource yields the current entitlement snapshot; *cache.Cache
// satisfies it.
type SnapshotSource interface {
	Snapshot() entitlements.Snapshot
}

// Decision is the outcome of a feature check.
type Decision struct {
	Allowed bool                `json:"allowed"`
	Status  entitlements.Status `json:"status"`
	Reason  string              `json:"reason"`
}

// Gate is the deny-by-default feature gate.
type Gate struct {
	source  SnapshotSource
	metrics *metrics.Metrics
}

// New builds a Gate over a snapshot source. metrics may be nil.
func New(source SnapshotSource, m *metrics.Metrics) *Gate {
	return &Gate{source: source, metrics: m}
}

// CanUse decides whether the named feature may be used now. Every status
// outside ok/grace denies every feature; within ok/grace only features the
// plan explicitly enables are allowed. Grace allowances carry a warning so
// the host can nudge the user to reconnect.
func (g *Gate) CanUse(feature string) Decision {
	snap := g.source.Snapshot()
	d := g.decide(feature, snap)
	g.metrics.GateDecision(d.Allowed)
	return d
}

func (g *Gate) decide(feature string, snap entitlements.Snapshot) Decision {
	if snap.Status.Denied() {
		return Decision{Allowed: false, Status: snap.Status, Reason: snap.Reason}
	}

	if !snap.Payload.FeatureEnabled(feature) {
		plan := ""
		if snap.Payload != nil {
			plan = snap.Payload.Plan
		}
		return Decision{
			Allowed: false,
			Status:  snap.Status,
			Reason:  fmt.Sprintf("plan %q does not include feature %q", plan, feature),
		}
	}

	if snap.Status == entitlements.StatusGrace {
		deadline := ""
		if snap.Payload != nil {
			deadline = snap.Payload.GraceExpiresAt.Format(time.RFC3339)
		}
		return Decision{
			Allowed: true,
			Status:  snap.Status,
			Reason:  fmt.Sprintf("feature %q available during grace period; reconnect to refresh the entitlement before %s", feature, deadline),
		}
	}

	return Decision{
		Allowed: true,
		Status:  snap.Status,
		Reason:  fmt.Sprintf("feature %q enabled by plan %q", feature, snap.Payload.Plan),
	}
}
