// Package session tracks the login session metadata and the long-lived
// refresh-token secret. The core treats both as opaque: created on login,
// read on resume, cleared on logout.
package session

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/open-rails/licensekit/storage"
)

// Metadata describes the current session. Attributes carry host-specific
// values this core does not interpret.
type Metadata struct {
	ID         string            `json:"id"`
	Subject    string            `json:"subject"`
	StartedAt  time.Time         `json:"started_at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Manager owns the session record and refresh-token secret lifecycle.
// Storage failures never surface as errors; a failed read just looks like
// "no session".
type Manager struct {
	records storage.RecordStore[Metadata]
	secrets storage.SecretStore
	clock   func() time.Time
	log     logrus.FieldLogger
}

// NewManager builds a session manager. clock defaults to time.Now, log to a
// discard logger.
func NewManager(records storage.RecordStore[Metadata], secrets storage.SecretStore, clock func() time.Time, log logrus.FieldLogger) *Manager {
	if clock == nil {
		clock = time.Now
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Manager{records: records, secrets: secrets, clock: clock, log: log}
}

// Begin records a fresh session and its refresh token (login).
func (m *Manager) Begin(ctx context.Context, subject, refreshToken string, attrs map[string]string) Metadata {
	meta := Metadata{
		ID:         uuid.NewString(),
		Subject:    subject,
		StartedAt:  m.clock(),
		Attributes: attrs,
	}
	if err := m.records.Save(ctx, meta); err != nil {
		m.log.WithError(err).Warn("session metadata save failed")
	}
	if refreshToken != "" {
		if err := m.secrets.Save(ctx, refreshToken); err != nil {
			m.log.WithError(err).Warn("refresh token save failed")
		}
	}
	return meta
}

// Resume loads the stored session and refresh token (app restart). ok is
// false when no session is stored.
func (m *Manager) Resume(ctx context.Context) (meta Metadata, refreshToken string, ok bool) {
	meta, ok, err := m.records.Load(ctx)
	if err != nil {
		m.log.WithError(err).Warn("session metadata load failed")
		return Metadata{}, "", false
	}
	if !ok {
		return Metadata{}, "", false
	}
	secret, _, err := m.secrets.Load(ctx)
	if err != nil {
		m.log.WithError(err).Warn("refresh token load failed")
	}
	return meta, secret, true
}

// End clears the session and its secret (logout).
func (m *Manager) End(ctx context.Context) {
	if err := m.records.Clear(ctx); err != nil {
		m.log.WithError(err).Warn("session metadata clear failed")
	}
	if err := m.secrets.Clear(ctx); err != nil {
		m.log.WithError(err).Warn("refresh token clear failed")
	}
}

// SecretStrategy reports where the refresh token currently lives.
func (m *Manager) SecretStrategy() storage.Strategy {
	return m.secrets.Strategy()
}
