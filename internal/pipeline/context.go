// Package pipeline implements the six stage handlers from spec.md §4.6:
// fetch, ocr-page, ocr-coordinator, compile, extract and deploy. Spec.md
// §9 flags the source's reliance on a global manager singleton as a
// redesign point ("explicit context instead"): every handler here takes
// a *Context carrying its store/queue/registry/ocr dependencies and a
// model.Job, rather than reaching for package-level state, so the exact
// same handler functions run identically from a distributed worker
// (internal/worker) or the in-process Test-Mode Runner
// (internal/testrunner).
package pipeline

import (
	"github.com/civicband/clerk-sub001/internal/config"
	"github.com/civicband/clerk-sub001/internal/extract"
	"github.com/civicband/clerk-sub001/internal/ocr"
	"github.com/civicband/clerk-sub001/internal/plugin"
	"github.com/civicband/clerk-sub001/internal/queue"
	"github.com/civicband/clerk-sub001/internal/store"
)

// Context bundles every dependency a stage handler needs. One Context is
// constructed at process startup and shared by every job a worker (or
// the Test-Mode Runner) processes.
type Context struct {
	Store            store.Store
	Queue            queue.Queue
	Registry         *plugin.Registry
	OCR              *ocr.Registry
	Extraction       extract.Engine
	StorageDir       string
	EnableExtraction bool
}

// New builds a Context from a loaded Config and its already-constructed
// collaborators.
func New(cfg config.Config, st store.Store, q queue.Queue, reg *plugin.Registry, ocrReg *ocr.Registry, extractEngine extract.Engine) *Context {
	return &Context{
		Store:            st,
		Queue:            q,
		Registry:         reg,
		OCR:              ocrReg,
		Extraction:       extractEngine,
		StorageDir:       cfg.StorageDir,
		EnableExtraction: cfg.EnableExtraction,
	}
}
