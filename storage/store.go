// Package storage defines the record and secret store contracts plus the
// backend-synced decorators that fall back to local persistence when the
// backend does not support client storage.
package storage

import (
	"context"
	"errors"
)

// Strategy names how a secret is actually held.
type Strategy string

const (
	// StrategyNativeSecureStore means the backend keeps the secret in the
	// deployment's secure store.
	StrategyNativeSecureStore Strategy = "native_secure_store"
	// StrategyEncryptedLocalStorage means the secret lives in an encrypted
	// local blob.
	StrategyEncryptedLocalStorage Strategy = "encrypted_local_storage"
)

// Sentinel errors returned by backend implementations. The synced decorators
// use them to decide when to trip the permanent local fallback.
var (
	// ErrUnsupported signals HTTP 404/501: this deployment has no client
	// storage endpoint.
	ErrUnsupported = errors.New("storage: backend endpoint not supported")
	// ErrUnreachable signals a transport failure or timeout.
	ErrUnreachable = errors.New("storage: backend unreachable")
)

// RecordStore persists one structured record under a stable key.
// Load reports (zero, false, nil) when nothing is stored.
type RecordStore[T any] interface {
	Load(ctx context.Context) (T, bool, error)
	Save(ctx context.Context, value T) error
	Clear(ctx context.Context) error
}

// SecretStore persists one opaque secret string (the refresh token).
type SecretStore interface {
	Load(ctx context.Context) (string, bool, error)
	Save(ctx context.Context, secret string) error
	Clear(ctx context.Context) error
	// Strategy reports where the secret currently lives.
	Strategy() Strategy
}

// tripsFallback reports whether a backend error permanently disables the
// remote path. Only "not supported here" and transport failures qualify;
// other errors are swallowed per call without giving up on the backend.
func tripsFallback(err error) bool {
	return errors.Is(err, ErrUnsupported) || errors.Is(err, ErrUnreachable)
}
