// Package ocr defines the backend interface the ocr-page handler invokes
// (spec.md §4.6.2): render each page of a PDF and write its extracted
// text to the per-site txt tree. Real backend implementations (Tesseract
// subprocess, Google Cloud Vision API) are outside this module's scope —
// spec.md's Non-goals exclude "the OCR engines themselves" — so this
// package ships the interface plus a deterministic mock used by tests and
// the Test-Mode Runner.
package ocr

import (
	"context"
	"fmt"
)

// Name identifies a registered backend; callers pass the same string
// config.OCRBackend carries ("tesseract", "vision") without this package
// importing internal/config, avoiding a cycle with internal/pipeline,
// which imports both.
type Name string

// Backend renders every page of a PDF to text and writes
// txt/.../page-N.txt files under dest, per spec.md §4.6.2 step 2. It
// returns the number of pages written.
type Backend interface {
	Name() Name
	Render(ctx context.Context, req RenderRequest) (pages int, err error)
}

// RenderRequest carries the inputs a Backend needs for one PDF.
type RenderRequest struct {
	PDFPath string
	DestDir string // directory page-N.txt files are written into
}

// Registry resolves a backend name to its Backend implementation.
type Registry struct {
	backends map[Name]Backend
}

func NewRegistry() *Registry {
	return &Registry{backends: make(map[Name]Backend)}
}

func (r *Registry) Register(b Backend) {
	r.backends[b.Name()] = b
}

func (r *Registry) Get(name Name) (Backend, error) {
	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("ocr: no backend registered for %q", name)
	}
	return b, nil
}
