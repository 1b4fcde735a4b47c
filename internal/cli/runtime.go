// Package cli wires together the collaborators every subcommand in cmd/
// needs — store, queue, plugin registry, OCR registry and extraction
// engine — from a loaded config.Config. Teacher's own internal/cli
// existed to resolve a remote cluster endpoint and format MCP tool
// results for its aggregator-backed CLI; this module's CLI instead talks
// directly to a store and queue it owns, so that connection-resolution
// and result-formatting code has no equivalent here (see DESIGN.md) and
// this package carries only the construction logic every subcommand
// shares, grounded on the shape of the teacher's own
// internal/cli/executor.go Connect step (build once, defer Close).
package cli

import (
	"context"
	"fmt"

	"github.com/civicband/clerk-sub001/internal/config"
	"github.com/civicband/clerk-sub001/internal/extract"
	"github.com/civicband/clerk-sub001/internal/ocr"
	"github.com/civicband/clerk-sub001/internal/pipeline"
	"github.com/civicband/clerk-sub001/internal/plugin"
	"github.com/civicband/clerk-sub001/internal/queue"
	"github.com/civicband/clerk-sub001/internal/store"
)

// Runtime bundles every long-lived collaborator a CLI invocation needs.
// Exactly one is built per process (cmd.Execute's entry point) and Closed
// on exit.
type Runtime struct {
	Config   config.Config
	Store    store.Store
	Queue    queue.Queue
	Registry *plugin.Registry
	OCR      *ocr.Registry
	Extract  extract.Engine
}

// NewRuntime connects to the store and queue DATABASE_URL/REDIS_URL name,
// builds the plugin and OCR registries, and returns a ready Runtime.
// Real OCR backends and extraction engines are external collaborators
// (spec.md's Non-goals) — this module has nothing to register but its
// own deterministic mocks, so operators are expected to register real
// backends before running workers in production; see SPEC_FULL.md.
func NewRuntime(ctx context.Context, cfg config.Config) (*Runtime, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("cli: DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("cli: REDIS_URL is required")
	}

	st, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("cli: connecting to central store: %w", err)
	}

	q, err := queue.NewRedis(cfg.RedisURL)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("cli: connecting to queue: %w", err)
	}

	reg := plugin.NewRegistry(st)
	reg.Register(plugin.NewDefaultStoreWriter(st))
	reg.Register(plugin.NewIdentityTransformer())
	reg.Register(plugin.NewGenericLoader())
	st.SetHooks(reg)

	ocrReg := ocr.NewRegistry()
	ocrReg.Register(ocr.NewMock("tesseract"))
	ocrReg.Register(ocr.NewMock("vision"))

	return &Runtime{
		Config:   cfg,
		Store:    st,
		Queue:    q,
		Registry: reg,
		OCR:      ocrReg,
		Extract:  extract.NewMock(),
	}, nil
}

// PipelineContext builds the *pipeline.Context stage handlers and the
// worker/test-mode runner dispatch against.
func (rt *Runtime) PipelineContext() *pipeline.Context {
	return pipeline.New(rt.Config, rt.Store, rt.Queue, rt.Registry, rt.OCR, rt.Extract)
}

// Close releases the store and queue connections.
func (rt *Runtime) Close() {
	_ = rt.Queue.Close()
	_ = rt.Store.Close()
}
