package plugin

import (
	"context"

	"github.com/civicband/clerk-sub001/internal/model"
	"github.com/civicband/clerk-sub001/internal/store"
)

// DefaultStoreWriter is the always-registered-first plugin that stands
// for the central-store write on create_site/update_site (spec.md §4.1).
// Its hooks do nothing: the write already happened inside
// store.Store.CreateSite/UpdateSite before hooks fire, so this plugin
// only makes the write's presence explicit and first in dispatch order.
// Operator-supplied plugins registered after it only observe.
type DefaultStoreWriter struct {
	st store.Store
}

func NewDefaultStoreWriter(st store.Store) *DefaultStoreWriter {
	return &DefaultStoreWriter{st: st}
}

func (*DefaultStoreWriter) Label() string { return "default-store-writer" }

func (*DefaultStoreWriter) OnCreateSite(context.Context, string, model.Site) {}
func (*DefaultStoreWriter) OnUpdateSite(context.Context, string, store.SiteUpdate) {}

// IdentityTransformer is the default Transformer: returns text unchanged.
type IdentityTransformer struct{}

func NewIdentityTransformer() *IdentityTransformer { return &IdentityTransformer{} }

func (*IdentityTransformer) Label() string { return "identity" }

func (*IdentityTransformer) Transform(_ context.Context, text string) (string, error) {
	return text, nil
}

// GenericLoader is the default Loader: hands records to whatever
// internal/sitedb writer the caller supplies through LoadRecord's
// Fingerprint-keyed upsert — this plugin itself is a thin pass-through
// that site-specific loaders can be registered to replace.
type GenericLoader struct{}

func NewGenericLoader() *GenericLoader { return &GenericLoader{} }

func (*GenericLoader) Label() string { return "generic" }

func (*GenericLoader) Load(_ context.Context, _ LoadRecord) error {
	// The generic loader delegates persistence to internal/sitedb, which
	// the compile/extract handlers call directly for the default pipeline;
	// this hook exists so a site can override storage (e.g. an external
	// API) purely by registering a different Loader under a different
	// label, per spec.md §3.1's per-site pipeline override.
	return nil
}
