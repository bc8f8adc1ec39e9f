// Package cache computes and persists entitlement snapshots. It is the only
// component that touches both the verifier and the storage layer; the
// feature gate reads its snapshots and nothing else.
package cache

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/open-rails/licensekit/entitlements"
	"github.com/open-rails/licensekit/metrics"
	"github.com/open-rails/licensekit/storage"
	"github.com/open-rails/licensekit/verify"
)

// Clock supplies the current time. Injected so state-machine transitions
// are deterministic in tests.
type Clock func() time.Time

// DefaultGraceDays is the grace window applied when a payload carries no
// usable grace deadline.
const DefaultGraceDays = 7.0

// Config configures a Cache.
type Config struct {
	// PublicKeyPEM is the SPKI-encoded RSA public key entitlement tokens
	// are verified with. Ignored when Verifier is set.
	PublicKeyPEM string
	// Verifier overrides PublicKeyPEM with a prebuilt verifier.
	Verifier *verify.Verifier
	// GraceDays is the fallback grace window; defaults to DefaultGraceDays.
	GraceDays float64
	// Clock defaults to time.Now.
	Clock Clock
	// Logger defaults to a discard logger.
	Logger logrus.FieldLogger
	// Metrics is optional; nil disables instrumentation.
	Metrics *metrics.Metrics
}

// Cache owns the persisted entitlement record and the in-memory snapshot.
// Writes (verify + persist) are serialized per instance; Snapshot is a pure
// synchronous read.
type Cache struct {
	verifier  *verify.Verifier
	records   storage.RecordStore[entitlements.CacheRecord]
	graceDays float64
	clock     Clock
	log       logrus.FieldLogger
	metrics   *metrics.Metrics

	writeMu sync.Mutex // serializes verify+persist sequences

	snapMu   sync.RWMutex
	snapshot entitlements.Snapshot

	cronMu sync.Mutex
	sched  *cron.Cron
}

// New builds a Cache and reconstructs the last snapshot from the persisted
// record. A missing or corrupted record yields the no_entitlement snapshot;
// construction fails only on unparseable key configuration.
func New(ctx context.Context, records storage.RecordStore[entitlements.CacheRecord], cfg Config) (*Cache, error) {
	verifier := cfg.Verifier
	if verifier == nil {
		if cfg.PublicKeyPEM == "" {
			// No key at all: the cache still works, every verification
			// reports the unavailability reason and denies.
			verifier = verify.New(nil)
		} else {
			v, err := verify.NewFromPEM(cfg.PublicKeyPEM)
			if err != nil {
				return nil, fmt.Errorf("cache: invalid public key: %w", err)
			}
			verifier = v
		}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	graceDays := cfg.GraceDays
	if graceDays <= 0 {
		graceDays = DefaultGraceDays
	}
	log := cfg.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	c := &Cache{
		verifier:  verifier,
		records:   records,
		graceDays: graceDays,
		clock:     clock,
		log:       log,
		metrics:   cfg.Metrics,
	}
	c.snapshot = c.rebuild(ctx)
	return c, nil
}

// rebuild computes the startup snapshot from whatever record is persisted.
// Verification here is local crypto only; no network is involved.
func (c *Cache) rebuild(ctx context.Context) entitlements.Snapshot {
	record, ok, err := c.records.Load(ctx)
	if err != nil || !ok || record.Token == "" {
		if err != nil {
			c.log.WithError(err).Warn("entitlement record load failed; starting with no entitlement")
		}
		return c.noEntitlement()
	}
	var refreshedAt *time.Time
	if !record.LastRefreshAt.IsZero() {
		t := record.LastRefreshAt
		refreshedAt = &t
	}
	snap := c.compute(c.verifier.Verify(record.Token), refreshedAt)
	c.metrics.Snapshot(string(snap.Status))
	return snap
}

func (c *Cache) noEntitlement() entitlements.Snapshot {
	return entitlements.Snapshot{
		Status:         entitlements.StatusNoEntitlement,
		Reason:         "no entitlement stored",
		SignatureValid: false,
	}
}

// graceDeadline returns the effective end of the grace window.
func (c *Cache) graceDeadline(p *entitlements.Payload) time.Time {
	if !p.GraceExpiresAt.IsZero() {
		return p.GraceExpiresAt
	}
	return p.ExpiresAt.Add(time.Duration(c.graceDays * 24 * float64(time.Hour)))
}

const dayHours = 24.0

// compute classifies a verification result against the injected clock.
func (c *Cache) compute(res verify.Result, refreshedAt *time.Time) entitlements.Snapshot {
	if !res.Valid {
		status := entitlements.StatusInvalidSignature
		if res.Reason == verify.ReasonNoPublicKey {
			status = entitlements.StatusError
		}
		return entitlements.Snapshot{
			Status:         status,
			Reason:         res.Reason,
			Payload:        nil,
			SignatureValid: false,
			LastRefreshAt:  refreshedAt,
		}
	}

	now := c.clock()
	p := res.Payload
	grace := c.graceDeadline(p)

	snap := entitlements.Snapshot{
		Payload:              p,
		SignatureValid:       true,
		DaysUntilExpiry:      p.ExpiresAt.Sub(now).Hours() / dayHours,
		DaysUntilGraceExpiry: grace.Sub(now).Hours() / dayHours,
		LastRefreshAt:        refreshedAt,
	}

	switch {
	case now.Before(p.ExpiresAt):
		snap.Status = entitlements.StatusOK
		snap.Reason = fmt.Sprintf("entitlement active for plan %q", p.Plan)
	case now.Before(grace):
		snap.Status = entitlements.StatusGrace
		snap.Reason = fmt.Sprintf("entitlement expired %s; grace period ends %s",
			p.ExpiresAt.Format(time.RFC3339), grace.Format(time.RFC3339))
	default:
		snap.Status = entitlements.StatusExpired
		snap.Reason = fmt.Sprintf("entitlement and grace period expired %s", grace.Format(time.RFC3339))
	}
	return snap
}

// StoreSignedEntitlement verifies a freshly obtained token, computes a new
// snapshot, persists the record, and publishes the snapshot. Verification
// failures become snapshot statuses, never errors; storage failures are
// absorbed by the storage layer.
func (c *Cache) StoreSignedEntitlement(ctx context.Context, token string) entitlements.Snapshot {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	res := c.verifier.Verify(token)
	if res.Valid {
		c.metrics.Verification("valid")
	} else {
		c.metrics.Verification(res.Reason)
	}

	now := c.clock()
	snap := c.compute(res, &now)
	c.metrics.Snapshot(string(snap.Status))

	record := entitlements.CacheRecord{
		Version:       entitlements.CacheRecordVersion,
		Token:         token,
		LastRefreshAt: now,
	}
	if err := c.records.Save(ctx, record); err != nil {
		c.log.WithError(err).Warn("entitlement record save failed")
	}

	c.publish(snap)
	return snap
}

// Refresh recomputes the snapshot from the persisted token with the current
// clock. Status drifts ok -> grace -> expired as time passes even when no
// new token arrives.
func (c *Cache) Refresh(ctx context.Context) entitlements.Snapshot {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	record, ok, err := c.records.Load(ctx)
	if err != nil || !ok || record.Token == "" {
		snap := c.noEntitlement()
		c.publish(snap)
		return snap
	}

	now := c.clock()
	snap := c.compute(c.verifier.Verify(record.Token), &now)
	c.metrics.Snapshot(string(snap.Status))

	record.LastRefreshAt = now
	record.Version = entitlements.CacheRecordVersion
	if err := c.records.Save(ctx, record); err != nil {
		c.log.WithError(err).Warn("entitlement record save failed")
	}

	c.publish(snap)
	return snap
}

// Clear drops the persisted record and resets to no_entitlement (logout).
func (c *Cache) Clear(ctx context.Context) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.records.Clear(ctx); err != nil {
		c.log.WithError(err).Warn("entitlement record clear failed")
	}
	c.publish(c.noEntitlement())
}

func (c *Cache) publish(snap entitlements.Snapshot) {
	c.snapMu.Lock()
	c.snapshot = snap
	c.snapMu.Unlock()
}

// Snapshot returns the last computed snapshot. Synchronous, no I/O, no
// crypto; safe to call from hot paths.
func (c *Cache) Snapshot() entitlements.Snapshot {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snapshot
}

// StartAutoRefresh schedules Refresh on a cron spec (e.g. "@hourly") for
// long-running hosts. Call StopAutoRefresh to cancel.
func (c *Cache) StartAutoRefresh(spec string) error {
	c.cronMu.Lock()
	defer c.cronMu.Unlock()
	if c.sched != nil {
		return fmt.Errorf("cache: auto refresh already running")
	}
	sched := cron.New()
	if _, err := sched.AddFunc(spec, func() {
		c.Refresh(context.Background())
	}); err != nil {
		return err
	}
	sched.Start()
	c.sched = sched
	return nil
}

// StopAutoRefresh stops a running auto-refresh schedule, if any.
func (c *Cache) StopAutoRefresh() {
	c.cronMu.Lock()
	defer c.cronMu.Unlock()
	if c.sched != nil {
		c.sched.Stop()
		c.sched = nil
	}
}
