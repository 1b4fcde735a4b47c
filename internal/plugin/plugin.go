// Package plugin implements the Plugin Registry from spec.md §4.1: a
// closed set of hook interfaces, dispatched over an ordered list of
// opaque plugin values. Spec.md §9 calls this out explicitly as a
// redesign point ("Dynamic dispatch → tagged variants"): the source
// introspects runtime-loaded classes for hook-marker methods, where Go
// instead defines fixed hook interfaces and uses type assertion —
// a plugin implements any subset simply by implementing any subset of
// the interfaces below.
package plugin

import (
	"context"

	"github.com/civicband/clerk-sub001/internal/model"
	"github.com/civicband/clerk-sub001/internal/store"
)

// Extractor populates a site's PDF tree from its upstream source
// (spec.md §4.6.1 step 3). label identifies which registered Extractor a
// site's resolved pipeline selects.
type Extractor interface {
	Label() string
	Fetch(ctx context.Context, req FetchRequest) error
}

// FetchRequest carries everything an Extractor needs to run one fetch.
type FetchRequest struct {
	Subdomain  string
	RunID      string
	StorageDir string
	AllYears   bool
	AllAgendas bool
}

// Transformer adapts raw extracted text before it is written to the per-site
// database (spec.md §3.1's `pipeline.transformer`; default is identity).
type Transformer interface {
	Label() string
	Transform(ctx context.Context, text string) (string, error)
}

// Loader persists a transformed record into the destination the site's
// pipeline selects (default: the per-site sqlite database via
// internal/sitedb). The compile and extract handlers write through
// internal/sitedb directly and do not call a Loader.
type Loader interface {
	Label() string
	Load(ctx context.Context, record LoadRecord) error
}

// LoadRecord is one compiled or extracted row ready for persistence.
type LoadRecord struct {
	Subdomain    string
	Kind         string
	Meeting      string
	Date         string
	Page         int
	Text         string
	Fingerprint  string
	Extraction   map[string]any
}

// Fetcher is the legacy hook spec.md §9 calls "FetcherAdapter": a site
// configured with a bare `scraper` label (no structured `pipeline`) is
// adapted into an opaque Extractor backed by a Fetcher plugin.
type Fetcher interface {
	Label() string
	FetchLegacy(ctx context.Context, req FetchRequest) error
}

// SiteObserver is the create_site/update_site notification hook pair.
// The Store has already written the change when these fire (they are
// dispatched from Store.CreateSite/UpdateSite), so every registered
// plugin, DefaultStoreWriter included, only observes.
type SiteObserver interface {
	OnCreateSite(ctx context.Context, subdomain string, site model.Site)
	OnUpdateSite(ctx context.Context, subdomain string, updates store.SiteUpdate)
}

// DeployObserver is the deploy_municipality/post_deploy hook pair
// (spec.md §4.6.6).
type DeployObserver interface {
	DeployMunicipality(ctx context.Context, subdomain string) error
	PostDeploy(ctx context.Context, site model.Site) error
}

// SiteLifecycleObserver is the post_create hook, dispatched by
// DispatchCreateSite right after the create_site hooks, before the `new`
// command enqueues the site's first fetch job.
type SiteLifecycleObserver interface {
	PostCreate(ctx context.Context, subdomain string)
}

// StaticFileObserver is upload_static_file, fired through
// Registry.DispatchUploadStaticFile; no stage handler in this module
// calls that dispatcher.
type StaticFileObserver interface {
	UploadStaticFile(ctx context.Context, filePath, storagePath string)
}
