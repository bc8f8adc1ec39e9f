// Package metrics exposes Prometheus counters for the entitlement core.
// Everything is optional: a nil *Metrics is a no-op, so embedding hosts that
// do not scrape pay nothing.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the core's counters.
type Metrics struct {
	verifications *prometheus.CounterVec
	snapshots     *prometheus.CounterVec
	gateDecisions *prometheus.CounterVec
	fallbackTrips *prometheus.CounterVec
}

// New creates and registers the counters. reg may be
// prometheus.DefaultRegisterer or a per-test registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "licensekit_verifications_total",
			Help: "Entitlement token verification attempts by outcome.",
		}, []string{"outcome"}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "licensekit_snapshots_total",
			Help: "Computed entitlement snapshots by status.",
		}, []string{"status"}),
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "licensekit_gate_decisions_total",
			Help: "Feature gate decisions by result.",
		}, []string{"allowed"}),
		fallbackTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "licensekit_storage_fallback_trips_total",
			Help: "One-way switches from backend storage to local fallback.",
		}, []string{"store"}),
	}
	if reg != nil {
		reg.MustRegister(m.verifications, m.snapshots, m.gateDecisions, m.fallbackTrips)
	}
	return m
}

// Verification records one verification attempt. outcome is "valid" or the
// rejection reason.
func (m *Metrics) Verification(outcome string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(outcome).Inc()
}

// Snapshot records one computed snapshot status.
func (m *Metrics) Snapshot(status string) {
	if m == nil {
		return
	}
	m.snapshots.WithLabelValues(status).Inc()
}

// GateDecision records one feature gate decision.
func (m *Metrics) GateDecision(allowed bool) {
	if m == nil {
		return
	}
	v := "false"
	if allowed {
		v = "true"
	}
	m.gateDecisions.WithLabelValues(v).Inc()
}

// FallbackTrip records a synced store permanently switching to its local
// fallback. store is "entitlement", "session", or "refresh_token".
func (m *Metrics) FallbackTrip(store string) {
	if m == nil {
		return
	}
	m.fallbackTrips.WithLabelValues(store).Inc()
}
