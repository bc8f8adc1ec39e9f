// Package memorystore provides in-memory record and secret stores. They are
// used by tests and by hosts that embed the core without durable storage.
package memorystore

import (
	"context"
	"sync"

	"github.com/open-rails/licensekit/storage"
)

// RecordStore is an in-memory storage.RecordStore.
type RecordStore[T any] struct {
	mu    sync.Mutex
	value T
	set   bool
}

// NewRecordStore creates an empty in-memory record store.
func NewRecordStore[T any]() *RecordStore[T] {
	return &RecordStore[T]{}
}

func (s *RecordStore[T]) Load(_ context.Context) (T, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		var zero T
		return zero, false, nil
	}
	return s.value, true, nil
}

func (s *RecordStore[T]) Save(_ context.Context, value T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = value
	s.set = true
	return nil
}

func (s *RecordStore[T]) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	s.value = zero
	s.set = false
	return nil
}

// SecretStore is an in-memory storage.SecretStore. It reports the encrypted
// local strategy so composed stores behave like their production fallback.
type SecretStore struct {
	mu     sync.Mutex
	secret string
	set    bool
}

// NewSecretStore creates an empty in-memory secret store.
func NewSecretStore() *SecretStore {
	return &SecretStore{}
}

func (s *SecretStore) Load(_ context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return "", false, nil
	}
	return s.secret, true, nil
}

func (s *SecretStore) Save(_ context.Context, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secret = secret
	s.set = true
	return nil
}

func (s *SecretStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secret = ""
	s.set = false
	return nil
}

func (s *SecretStore) Strategy() storage.Strategy {
	return storage.StrategyEncryptedLocalStorage
}
