// Package backendstore implements the remote half of the synced stores: a
// small HTTP client for the deployment's client-storage endpoints.
//
//	GET/PUT/DELETE {base}/client/entitlement
//	GET/PUT/DELETE {base}/client/session
//	GET/PUT/DELETE {base}/client/refresh-token
//
// PUT bodies are {"value": <T>}; GET responses are {"value": <T>} (value
// omitted when nothing is stored). Refresh-token responses additionally
// carry {"strategy": "native_secure_store"|"encrypted_local_storage"}.
package backendstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/open-rails/licensekit/storage"
)

// Stable endpoint paths under the auth base URL.
const (
	PathEntitlement  = "/client/entitlement"
	PathSession      = "/client/session"
	PathRefreshToken = "/client/refresh-token"
)

// DefaultTimeout bounds every backend call. On timeout the synced store
// treats the backend exactly like a 404/501.
const DefaultTimeout = 5 * time.Second

// Client talks to one storage base URL.
type Client struct {
	base string
	http *http.Client
}

// NewClient builds a Client for the given base URL. A nil httpClient gets a
// DefaultTimeout-bounded client.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), http: httpClient}
}

type valueEnvelope struct {
	Value    json.RawMessage `json:"value,omitempty"`
	Strategy string          `json:"strategy,omitempty"`
}

// do performs one request. It maps 404/501 to storage.ErrUnsupported and
// transport failures to storage.ErrUnreachable so the synced decorator can
// trip its breaker; other non-2xx statuses come back as plain errors.
func (c *Client) do(ctx context.Context, method, path string, body any) (*valueEnvelope, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNotImplemented:
		return nil, fmt.Errorf("%w: %s %s returned %d", storage.ErrUnsupported, method, path, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%s %s returned %d", method, path, resp.StatusCode)
	}

	if method == http.MethodDelete {
		return &valueEnvelope{}, nil
	}
	var env valueEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return &env, nil
}

// RecordClient is a storage.RecordStore backed by one endpoint path.
type RecordClient[T any] struct {
	c    *Client
	path string
}

// NewRecordClient binds a Client to an endpoint path for records of type T.
func NewRecordClient[T any](c *Client, path string) *RecordClient[T] {
	return &RecordClient[T]{c: c, path: path}
}

func (r *RecordClient[T]) Load(ctx context.Context) (T, bool, error) {
	var zero T
	env, err := r.c.do(ctx, http.MethodGet, r.path, nil)
	if err != nil {
		return zero, false, err
	}
	if len(env.Value) == 0 || string(env.Value) == "null" {
		return zero, false, nil
	}
	var v T
	if err := json.Unmarshal(env.Value, &v); err != nil {
		return zero, false, fmt.Errorf("decode stored value: %w", err)
	}
	return v, true, nil
}

func (r *RecordClient[T]) Save(ctx context.Context, value T) error {
	_, err := r.c.do(ctx, http.MethodPut, r.path, map[string]any{"value": value})
	return err
}

func (r *RecordClient[T]) Clear(ctx context.Context) error {
	_, err := r.c.do(ctx, http.MethodDelete, r.path, nil)
	return err
}

// SecretClient is the storage.SecretStore flavor for the refresh-token
// endpoint. The backend reports its own strategy; until it does, the
// endpoint is assumed to be a native secure store.
type SecretClient struct {
	c    *Client
	path string

	mu       sync.Mutex
	strategy storage.Strategy
}

// NewSecretClient binds a Client to the refresh-token endpoint.
func NewSecretClient(c *Client) *SecretClient {
	return &SecretClient{c: c, path: PathRefreshToken, strategy: storage.StrategyNativeSecureStore}
}

func (s *SecretClient) remember(reported string) {
	if reported == "" {
		return
	}
	s.mu.Lock()
	s.strategy = storage.Strategy(reported)
	s.mu.Unlock()
}

func (s *SecretClient) Load(ctx context.Context) (string, bool, error) {
	env, err := s.c.do(ctx, http.MethodGet, s.path, nil)
	if err != nil {
		return "", false, err
	}
	s.remember(env.Strategy)
	if len(env.Value) == 0 || string(env.Value) == "null" {
		return "", false, nil
	}
	var v string
	if err := json.Unmarshal(env.Value, &v); err != nil {
		return "", false, fmt.Errorf("decode stored secret: %w", err)
	}
	return v, true, nil
}

func (s *SecretClient) Save(ctx context.Context, secret string) error {
	env, err := s.c.do(ctx, http.MethodPut, s.path, map[string]any{"value": secret})
	if err != nil {
		return err
	}
	s.remember(env.Strategy)
	return nil
}

func (s *SecretClient) Clear(ctx context.Context) error {
	_, err := s.c.do(ctx, http.MethodDelete, s.path, nil)
	return err
}

func (s *SecretClient) Strategy() storage.Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.strategy
}
