// Package extract defines the pluggable entity/vote extraction engine
// used by the extract stage handler. Like internal/ocr's backends, the
// engine itself is an external collaborator (spec.md's Non-goals exclude
// "OCR backend implementations" and, by the same reasoning, the NLP
// models behind entity/vote extraction) — this package only owns the
// interface and a mock suitable for tests.
package extract

import "context"

// Request carries one page of compiled text to the extraction engine.
type Request struct {
	Subdomain string
	Kind      string
	Meeting   string
	Date      string
	Page      int
	Text      string
}

// Engine extracts structured entities/votes from a page of text.
// Implementations wrap whatever subprocess or model does the real work
// (SPACY_N_PROCESS governs that subprocess's fan-out and is opaque to
// this interface).
type Engine interface {
	Extract(ctx context.Context, req Request) (map[string]any, error)
}

// Mock is a deterministic stand-in Engine for tests and for sites that
// don't configure extraction.
type Mock struct {
	Fail   map[string]bool
	Result map[string]any
}

// NewMock builds a Mock with an empty failure set.
func NewMock() *Mock {
	return &Mock{Fail: map[string]bool{}}
}

// Extract implements Engine.
func (m *Mock) Extract(ctx context.Context, req Request) (map[string]any, error) {
	if m.Fail[req.Text] {
		return nil, errExtractionFailed
	}
	if m.Result != nil {
		return m.Result, nil
	}
	return map[string]any{"entities": []any{}, "votes": []any{}}, nil
}
