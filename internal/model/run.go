package model

import (
	"crypto/rand"
	"fmt"
	"time"
)

const runIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewRunID generates a "{subdomain}_{unix_ts}_{random6}" run identifier,
// spec.md §3.3: human-readable, sortable by creation time, and unique
// enough that two concurrent enqueues for the same site never collide.
func NewRunID(subdomain string, now time.Time) (string, error) {
	suffix, err := randomSuffix(6)
	if err != nil {
		return "", fmt.Errorf("model: generating run id: %w", err)
	}
	return fmt.Sprintf("%s_%d_%s", subdomain, now.Unix(), suffix), nil
}

func randomSuffix(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = runIDAlphabet[int(b)%len(runIDAlphabet)]
	}
	return string(out), nil
}
