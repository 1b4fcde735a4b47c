package plugin

import (
	"context"
	"fmt"

	"github.com/civicband/clerk-sub001/internal/logging"
	"github.com/civicband/clerk-sub001/internal/model"
	"github.com/civicband/clerk-sub001/internal/store"
)

// Registry holds every registered plugin in registration order and
// dispatches the hook interfaces defined in plugin.go against them.
// Lookup hooks (extractor/transformer/loader/fetcher class resolution)
// return the first non-nil match; notification hooks fire every
// implementer, in order, isolating one plugin's panic/error from the
// rest (spec.md §7: "one failing plugin does not prevent others from
// being invoked").
type Registry struct {
	plugins []any
}

// NewRegistry returns a Registry with the three default plugins
// registered first, exactly as spec.md §4.1 requires ("Default plugins
// are always registered first").
func NewRegistry(st store.Store) *Registry {
	r := &Registry{}
	r.Register(NewDefaultStoreWriter(st))
	r.Register(NewIdentityTransformer())
	r.Register(NewGenericLoader())
	return r
}

// Register appends p to the dispatch order. p may implement any subset
// of the hook interfaces in plugin.go; implementing none is legal but
// pointless.
func (r *Registry) Register(p any) {
	r.plugins = append(r.plugins, p)
}

// Extractor returns the first registered plugin whose Label matches and
// which implements Extractor, or nil if none does.
func (r *Registry) Extractor(label string) Extractor {
	for _, p := range r.plugins {
		if e, ok := p.(Extractor); ok && e.Label() == label {
			return e
		}
	}
	return nil
}

// Transformer returns the first registered plugin whose Label matches
// and which implements Transformer, or nil if none does.
func (r *Registry) Transformer(label string) Transformer {
	for _, p := range r.plugins {
		if t, ok := p.(Transformer); ok && t.Label() == label {
			return t
		}
	}
	return nil
}

// Loader returns the first registered plugin whose Label matches and
// which implements Loader, or nil if none does.
func (r *Registry) Loader(label string) Loader {
	for _, p := range r.plugins {
		if l, ok := p.(Loader); ok && l.Label() == label {
			return l
		}
	}
	return nil
}

// Fetcher returns the first registered plugin whose Label matches and
// which implements Fetcher, or nil if none does (legacy adapter path,
// spec.md §9).
func (r *Registry) Fetcher(label string) Fetcher {
	for _, p := range r.plugins {
		if f, ok := p.(Fetcher); ok && f.Label() == label {
			return f
		}
	}
	return nil
}

// DispatchCreateSite fires OnCreateSite on every registered
// SiteObserver, in registration order, isolating per-plugin panics.
// Satisfies store.Hooks so a Registry can be handed directly to a Store
// via SetHooks.
func (r *Registry) DispatchCreateSite(ctx context.Context, subdomain string, site model.Site) {
	for _, p := range r.plugins {
		if o, ok := p.(SiteObserver); ok {
			r.safely(subdomain, "create_site", func() { o.OnCreateSite(ctx, subdomain, site) })
		}
	}
	for _, p := range r.plugins {
		if o, ok := p.(SiteLifecycleObserver); ok {
			r.safely(subdomain, "post_create", func() { o.PostCreate(ctx, subdomain) })
		}
	}
}

// DispatchUpdateSite fires OnUpdateSite on every registered SiteObserver.
func (r *Registry) DispatchUpdateSite(ctx context.Context, subdomain string, updates store.SiteUpdate) {
	for _, p := range r.plugins {
		if o, ok := p.(SiteObserver); ok {
			r.safely(subdomain, "update_site", func() { o.OnUpdateSite(ctx, subdomain, updates) })
		}
	}
}

// DispatchDeploy fires deploy_municipality then post_deploy across all
// registered DeployObservers, per spec.md §4.6.6. Errors from each
// plugin are collected and logged, not short-circuited, but the first
// non-nil error from either DeployMunicipality or PostDeploy is still
// returned to the caller so the deploy handler can mark the job failed.
func (r *Registry) DispatchDeploy(ctx context.Context, subdomain string, site model.Site) error {
	var firstErr error
	for _, p := range r.plugins {
		o, ok := p.(DeployObserver)
		if !ok {
			continue
		}
		if err := o.DeployMunicipality(ctx, subdomain); err != nil {
			logging.FromContext(ctx, "plugin").Error("deploy_municipality hook failed", err, map[string]any{"subdomain": subdomain})
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	for _, p := range r.plugins {
		o, ok := p.(DeployObserver)
		if !ok {
			continue
		}
		if err := o.PostDeploy(ctx, site); err != nil {
			logging.FromContext(ctx, "plugin").Error("post_deploy hook failed", err, map[string]any{"subdomain": subdomain})
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// DispatchUploadStaticFile fires upload_static_file on every registered
// StaticFileObserver.
func (r *Registry) DispatchUploadStaticFile(ctx context.Context, filePath, storagePath string) {
	for _, p := range r.plugins {
		if o, ok := p.(StaticFileObserver); ok {
			r.safely(filePath, "upload_static_file", func() { o.UploadStaticFile(ctx, filePath, storagePath) })
		}
	}
}

// safely runs fn, recovering a panic into a logged error so one
// misbehaving plugin never aborts dispatch to the rest.
func (r *Registry) safely(subject, hook string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.New("plugin").Error("plugin hook panicked", fmt.Errorf("%v", rec), map[string]any{
				"hook":    hook,
				"subject": subject,
			})
		}
	}()
	fn()
}
