package entitlements

import (
	"encoding/json"
	"fmt"
	"time"
)

// ParsePayload decodes and shape-checks a raw entitlement payload. It
// returns a typed Payload or a descriptive error; it never panics on
// malformed input. Field rules:
//
//   - sub, plan, entitlement_id: strings
//   - features: object; values are coerced to strict booleans (anything
//     other than JSON true becomes false)
//   - issued_at, expires_at, grace_expires_at: ISO-8601 timestamps
//   - rev: number
//   - device_limit: optional number, carried through untouched
//
// Callers run this before any signature check so malformed garbage never
// reaches the crypto routine.
func ParsePayload(raw []byte) (*Payload, error) {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("payload is not a JSON object: %w", err)
	}

	p := &Payload{}
	var err error

	if p.Subject, err = stringField(obj, "sub"); err != nil {
		return nil, err
	}
	if p.Plan, err = stringField(obj, "plan"); err != nil {
		return nil, err
	}
	if p.EntitlementID, err = stringField(obj, "entitlement_id"); err != nil {
		return nil, err
	}
	if p.Features, err = featureMap(obj); err != nil {
		return nil, err
	}
	if p.IssuedAt, err = timeField(obj, "issued_at"); err != nil {
		return nil, err
	}
	if p.ExpiresAt, err = timeField(obj, "expires_at"); err != nil {
		return nil, err
	}
	if p.GraceExpiresAt, err = timeField(obj, "grace_expires_at"); err != nil {
		return nil, err
	}

	rev, ok := obj["rev"].(float64)
	if !ok {
		return nil, fmt.Errorf("field %q must be a number", "rev")
	}
	p.Rev = int64(rev)

	if v, present := obj["device_limit"]; present && v != nil {
		n, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("field %q must be a number", "device_limit")
		}
		limit := int(n)
		p.DeviceLimit = &limit
	}

	return p, nil
}

func stringField(obj map[string]any, key string) (string, error) {
	s, ok := obj[key].(string)
	if !ok {
		return "", fmt.Errorf("field %q must be a string", key)
	}
	return s, nil
}

func timeField(obj map[string]any, key string) (time.Time, error) {
	s, ok := obj[key].(string)
	if !ok {
		return time.Time{}, fmt.Errorf("field %q must be an ISO-8601 timestamp", key)
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("field %q is not a valid timestamp: %w", key, err)
	}
	return t, nil
}

func featureMap(obj map[string]any) (map[string]bool, error) {
	raw, ok := obj["features"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("field %q must be an object", "features")
	}
	features := make(map[string]bool, len(raw))
	for name, v := range raw {
		// Strict boolean coercion: only JSON true enables a feature.
		b, _ := v.(bool)
		features[name] = b
	}
	return features, nil
}
