package storage

import (
	"context"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// fallbackSwitch is a per-instance, one-way circuit breaker. Once tripped it
// stays tripped for the life of the store; there is no re-probe.
type fallbackSwitch struct {
	mu      sync.Mutex
	tripped bool
}

func (f *fallbackSwitch) isTripped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tripped
}

func (f *fallbackSwitch) trip() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	first := !f.tripped
	f.tripped = true
	return first
}

func ensureLogger(log logrus.FieldLogger) logrus.FieldLogger {
	if log != nil {
		return log
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// SyncedRecordStore tries the backend first and falls back to a local store
// permanently once the backend proves unsupported or unreachable. Every
// failure is swallowed: callers only ever observe a value, an absence, or a
// successful write.
type SyncedRecordStore[T any] struct {
	remote RecordStore[T]
	local  RecordStore[T]
	sw     fallbackSwitch
	log    logrus.FieldLogger
	onTrip func()
}

// NewSyncedRecordStore composes a backend store with its local fallback.
func NewSyncedRecordStore[T any](remote, local RecordStore[T], log logrus.FieldLogger) *SyncedRecordStore[T] {
	return &SyncedRecordStore[T]{remote: remote, local: local, log: ensureLogger(log)}
}

// OnTrip registers a hook invoked once, when the store first switches to
// its local fallback. Used for metrics.
func (s *SyncedRecordStore[T]) OnTrip(fn func()) *SyncedRecordStore[T] {
	s.onTrip = fn
	return s
}

// UsingFallback reports whether the breaker has tripped.
func (s *SyncedRecordStore[T]) UsingFallback() bool { return s.sw.isTripped() }

func (s *SyncedRecordStore[T]) handle(err error) (useLocal bool) {
	if err == nil {
		return false
	}
	if tripsFallback(err) {
		if s.sw.trip() {
			s.log.WithError(err).Warn("backend storage disabled; switching to local fallback")
			if s.onTrip != nil {
				s.onTrip()
			}
		}
		return true
	}
	s.log.WithError(err).Warn("backend storage call failed")
	return false
}

func (s *SyncedRecordStore[T]) Load(ctx context.Context) (T, bool, error) {
	if !s.sw.isTripped() {
		v, ok, err := s.remote.Load(ctx)
		if err == nil {
			return v, ok, nil
		}
		if !s.handle(err) {
			var zero T
			return zero, false, nil
		}
	}
	v, ok, err := s.local.Load(ctx)
	if err != nil {
		s.log.WithError(err).Warn("local record load failed")
		var zero T
		return zero, false, nil
	}
	return v, ok, nil
}

func (s *SyncedRecordStore[T]) Save(ctx context.Context, value T) error {
	if !s.sw.isTripped() {
		err := s.remote.Save(ctx, value)
		if err == nil {
			return nil
		}
		if !s.handle(err) {
			return nil
		}
	}
	if err := s.local.Save(ctx, value); err != nil {
		s.log.WithError(err).Warn("local record save failed")
	}
	return nil
}

func (s *SyncedRecordStore[T]) Clear(ctx context.Context) error {
	if !s.sw.isTripped() {
		err := s.remote.Clear(ctx)
		if err == nil {
			return nil
		}
		if !s.handle(err) {
			return nil
		}
	}
	if err := s.local.Clear(ctx); err != nil {
		s.log.WithError(err).Warn("local record clear failed")
	}
	return nil
}

// SyncedSecretStore is the secret-flavored synced store. Its strategy
// mirrors wherever the secret currently lives: the backend's native secure
// store until the breaker trips, the encrypted local store after.
type SyncedSecretStore struct {
	remote SecretStore
	local  SecretStore
	sw     fallbackSwitch
	log    logrus.FieldLogger
	onTrip func()
}

// NewSyncedSecretStore composes a backend secret store with its encrypted
// local fallback.
func NewSyncedSecretStore(remote, local SecretStore, log logrus.FieldLogger) *SyncedSecretStore {
	return &SyncedSecretStore{remote: remote, local: local, log: ensureLogger(log)}
}

// OnTrip registers a hook invoked once, when the store first switches to
// its local fallback.
func (s *SyncedSecretStore) OnTrip(fn func()) *SyncedSecretStore {
	s.onTrip = fn
	return s
}

// UsingFallback reports whether the breaker has tripped.
func (s *SyncedSecretStore) UsingFallback() bool { return s.sw.isTripped() }

func (s *SyncedSecretStore) handle(err error) (useLocal bool) {
	if err == nil {
		return false
	}
	if tripsFallback(err) {
		if s.sw.trip() {
			s.log.WithError(err).Warn("backend secret storage disabled; switching to encrypted local fallback")
			if s.onTrip != nil {
				s.onTrip()
			}
		}
		return true
	}
	s.log.WithError(err).Warn("backend secret storage call failed")
	return false
}

func (s *SyncedSecretStore) Load(ctx context.Context) (string, bool, error) {
	if !s.sw.isTripped() {
		v, ok, err := s.remote.Load(ctx)
		if err == nil {
			return v, ok, nil
		}
		if !s.handle(err) {
			return "", false, nil
		}
	}
	v, ok, err := s.local.Load(ctx)
	if err != nil {
		s.log.WithError(err).Warn("local secret load failed")
		return "", false, nil
	}
	return v, ok, nil
}

func (s *SyncedSecretStore) Save(ctx context.Context, secret string) error {
	if !s.sw.isTripped() {
		err := s.remote.Save(ctx, secret)
		if err == nil {
			return nil
		}
		if !s.handle(err) {
			return nil
		}
	}
	if err := s.local.Save(ctx, secret); err != nil {
		s.log.WithError(err).Warn("local secret save failed")
	}
	return nil
}

func (s *SyncedSecretStore) Clear(ctx context.Context) error {
	if !s.sw.isTripped() {
		err := s.remote.Clear(ctx)
		if err == nil {
			return nil
		}
		if !s.handle(err) {
			return nil
		}
	}
	if err := s.local.Clear(ctx); err != nil {
		s.log.WithError(err).Warn("local secret clear failed")
	}
	return nil
}

func (s *SyncedSecretStore) Strategy() Strategy {
	if s.sw.isTripped() {
		return s.local.Strategy()
	}
	return s.remote.Strategy()
}
