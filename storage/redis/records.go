// Package redisstore provides a Redis-backed record store. Server-resident
// clients (CI runners, render workers) use it as a durable alternative to
// the file-based fallback.
package redisstore

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// RecordStore persists one JSON-serialized record under a namespaced key.
// Entries do not expire; the entitlement cache owns their lifecycle.
type RecordStore[T any] struct {
	rdb *redis.Client
	key string
}

// NewRecordStore creates a Redis record store. keyPrefix defaults to
// "licensekit:" when empty.
func NewRecordStore[T any](rdb *redis.Client, keyPrefix, name string) *RecordStore[T] {
	if keyPrefix == "" {
		keyPrefix = "licensekit:"
	}
	return &RecordStore[T]{rdb: rdb, key: keyPrefix + name}
}

func (s *RecordStore[T]) Load(ctx context.Context) (T, bool, error) {
	var zero T
	val, err := s.rdb.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	var v T
	if err := json.Unmarshal(val, &v); err != nil {
		return zero, false, err
	}
	return v, true, nil
}

func (s *RecordStore[T]) Save(ctx context.Context, value T) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key, b, 0).Err()
}

func (s *RecordStore[T]) Clear(ctx context.Context) error {
	return s.rdb.Del(ctx, s.key).Err()
}
