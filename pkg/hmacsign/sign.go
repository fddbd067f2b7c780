// Package hmacsign implements deterministic HMAC-SHA256 signing and
// constant-time verification of JSON payloads for shared export
// packages. The payload is a black-box helper by design — the core
// only ever calls Sign/Verify and never inspects the digest — so this
// is implemented directly against the standard library rather than a
// pack dependency: no example or ecosystem library does canonical-JSON
// HMAC signing, and the algorithm itself is a few lines of crypto/hmac.
package hmacsign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Sign computes the hex-encoded HMAC-SHA256 of payload's canonical
// (sorted-key) JSON encoding under secret.
func Sign(secret string, payload map[string]any) (string, error) {
	message, err := canonicalJSON(payload)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify reports whether signature is the correct HMAC-SHA256 of
// payload under secret, using a constant-time comparison.
func Verify(secret string, payload map[string]any, signature string) (bool, error) {
	expected, err := Sign(secret, payload)
	if err != nil {
		return false, err
	}
	return hmac.Equal([]byte(expected), []byte(signature)), nil
}

// canonicalJSON recursively sorts map keys at every level so the
// encoding matches Python's json.dumps(payload, sort_keys=True)
// byte-for-byte on JSON-primitive-only structures.
func canonicalJSON(v any) ([]byte, error) {
	normalized := normalize(v)
	return json.Marshal(normalized)
}

func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(orderedMap, 0, len(keys))
		for _, k := range keys {
			out = append(out, kv{key: k, value: normalize(val[k])})
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = normalize(e)
		}
		return out
	default:
		return val
	}
}

type kv struct {
	key   string
	value any
}

type orderedMap []kv

// MarshalJSON emits the pairs in the order they were appended, which
// normalize() guarantees is key-sorted.
func (m orderedMap) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, pair := range m {
		if i > 0 {
			buf = append(buf, ',')
		}
		keyJSON, err := json.Marshal(pair.key)
		if err != nil {
			return nil, err
		}
		valJSON, err := json.Marshal(pair.value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, keyJSON...)
		buf = append(buf, ':')
		buf = append(buf, valJSON...)
	}
	buf = append(buf, '}')
	return buf, nil
}
