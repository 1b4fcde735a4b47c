// Package fingerprint computes the stable 12-hex-character page
// fingerprint from spec.md §4.6.4: a short hash of canonical JSON, used as
// the upsert key for both the compile and extract handlers so recompiling
// the same txt tree twice is idempotent (spec.md §8).
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Record is the canonical page record spec.md §3.4 hashes. Subdomain and
// Municipality are optional (per the bracketed "[, subdomain,
// municipality]" in spec.md) and omitted from the hash input when empty,
// so a record that sets either one hashes differently from the same
// record without it.
type Record struct {
	Kind         string `json:"kind"`
	Meeting      string `json:"meeting"`
	Date         string `json:"date"`
	Page         int    `json:"page"`
	Text         string `json:"text"`
	Subdomain    string `json:"subdomain,omitempty"`
	Municipality string `json:"municipality,omitempty"`
}

// canonical returns the record as a JSON object with keys in a fixed
// order, independent of Go struct field order or map iteration, so the
// same logical record hashes identically across implementations.
func (r Record) canonical() ([]byte, error) {
	ordered := []struct {
		Key   string
		Value any
	}{
		{"kind", r.Kind},
		{"meeting", r.Meeting},
		{"date", r.Date},
		{"page", r.Page},
		{"text", r.Text},
	}
	if r.Subdomain != "" {
		ordered = append(ordered, struct {
			Key   string
			Value any
		}{"subdomain", r.Subdomain})
	}
	if r.Municipality != "" {
		ordered = append(ordered, struct {
			Key   string
			Value any
		}{"municipality", r.Municipality})
	}

	buf := []byte{'{'}
	for i, kv := range ordered {
		if i > 0 {
			buf = append(buf, ',')
		}
		keyJSON, err := json.Marshal(kv.Key)
		if err != nil {
			return nil, err
		}
		valJSON, err := json.Marshal(kv.Value)
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

// Of computes the 12-hex-character fingerprint of r. Deterministic: the
// same Record always yields the same output across processes and
// platforms, satisfying spec.md §8's round-trip law.
func Of(r Record) (string, error) {
	canon, err := r.canonical()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:])[:12], nil
}
