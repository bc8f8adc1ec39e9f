// Package localstore holds the local fallback implementations: plain JSON
// blobs for structured records and an AES-GCM encrypted blob for the
// refresh-token secret.
package localstore

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

const recordBlobVersion = 1

type recordBlob struct {
	Version int             `json:"version"`
	Value   json.RawMessage `json:"value"`
}

// RecordFile persists one record as a versioned JSON blob under a stable
// file name. A corrupted blob loads as "nothing stored"; it is never
// surfaced as an error.
type RecordFile[T any] struct {
	dir  string
	name string
	log  logrus.FieldLogger
}

// NewRecordFile creates a file-backed record store. name is the stable key,
// e.g. "entitlement" or "session".
func NewRecordFile[T any](dir, name string, log logrus.FieldLogger) *RecordFile[T] {
	if log == nil {
		log = discardLogger()
	}
	return &RecordFile[T]{dir: dir, name: name, log: log}
}

func (r *RecordFile[T]) path() string {
	return filepath.Join(r.dir, r.name+".json")
}

func (r *RecordFile[T]) Load(_ context.Context) (T, bool, error) {
	var zero T
	data, err := os.ReadFile(r.path())
	if err != nil {
		return zero, false, nil
	}
	var blob recordBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		r.log.WithError(err).WithField("file", r.path()).Warn("corrupted local record; treating as absent")
		return zero, false, nil
	}
	var v T
	if err := json.Unmarshal(blob.Value, &v); err != nil {
		r.log.WithError(err).WithField("file", r.path()).Warn("corrupted local record; treating as absent")
		return zero, false, nil
	}
	return v, true, nil
}

func (r *RecordFile[T]) Save(_ context.Context, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	data, err := json.Marshal(recordBlob{Version: recordBlobVersion, Value: raw})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(r.path(), data, 0o600)
}

func (r *RecordFile[T]) Clear(_ context.Context) error {
	err := os.Remove(r.path())
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
