// Package store implements the Central Store from spec.md §4.3: the
// single source of truth for Site records, per-stage atomic counters and
// job tracking rows, with get_oldest_site eligibility selection.
// Re-deriving OCR progress from the filesystem for reconciliation is
// done by layout.CountOnDisk, not by this package.
package store

import (
	"context"
	"time"

	"github.com/civicband/clerk-sub001/internal/model"
)

// Store is the Central Store contract. Postgres (production) and Memory
// (Test-Mode Runner, unit tests) both implement it.
type Store interface {
	// GetSite returns the site, or ok=false if it does not exist.
	GetSite(ctx context.Context, subdomain string) (model.Site, bool, error)

	// CreateSite inserts a new site and dispatches the registry's
	// create_site hook (spec.md §4.1, §4.3) — the Hooks dependency is
	// injected via SetHooks rather than imported, so this package has no
	// compile-time dependency on internal/plugin.
	CreateSite(ctx context.Context, site model.Site) error

	// UpdateSite applies a partial update and dispatches update_site.
	UpdateSite(ctx context.Context, subdomain string, updates SiteUpdate) error

	// GetOldestSite returns the subdomain whose LastUpdated is NULL or
	// older than now-lookbackHours, NULL-first then ascending by
	// timestamp, or ok=false if none qualify (spec.md §4.3, §4.7).
	GetOldestSite(ctx context.Context, lookbackHours int, now time.Time) (subdomain string, ok bool, err error)

	// IncrementCounter atomically adds delta to one counter field.
	IncrementCounter(ctx context.Context, subdomain string, stage model.CounterStage, field CounterField, delta int) error

	// SetCounter atomically overwrites one counter field.
	SetCounter(ctx context.Context, subdomain string, stage model.CounterStage, field CounterField, value int) error

	// ReadCounters returns the current counter set for a site.
	ReadCounters(ctx context.Context, subdomain string) (map[model.CounterStage]model.Counter, error)

	// TrackJob records a job for audit, spec.md §4.3.
	TrackJob(ctx context.Context, jobID, subdomain string, jobType model.JobType, stage model.Stage, parentJobID string) error

	// AllSites returns every tracked site, used by the reconciler and the
	// `status` CLI command.
	AllSites(ctx context.Context) ([]model.Site, error)

	// SetHooks installs the plugin registry's notification hooks so
	// CreateSite/UpdateSite can dispatch them. Called once at startup.
	SetHooks(hooks Hooks)

	Close() error
}

// CounterField is one of the three fields in a model.Counter.
type CounterField string

const (
	FieldTotal     CounterField = "total"
	FieldCompleted CounterField = "completed"
	FieldFailed    CounterField = "failed"
)

// SiteUpdate is a partial update to a Site; nil fields are left
// unchanged. Mirrors the shape of the `updates` map the Python source
// passes to update_site, but typed.
type SiteUpdate struct {
	CurrentStage        *model.Stage
	Status              *model.Status
	ExtractionStatus    *model.ExtractionStatus
	StartedAt           *time.Time
	LastUpdated         *time.Time
	LastExtracted       *time.Time
	Pages               *int
	CoordinatorEnqueued *bool
}

// Hooks is the subset of the plugin registry's notification hooks the
// store needs to dispatch on create/update, per spec.md §4.3 ("go
// through the Plugin Registry's create_site/update_site hooks rather
// than writing directly, so observers can react"). Defined here (not
// imported from internal/plugin) to avoid a store<->plugin import cycle;
// internal/plugin.Registry satisfies it.
type Hooks interface {
	DispatchCreateSite(ctx context.Context, subdomain string, site model.Site)
	DispatchUpdateSite(ctx context.Context, subdomain string, updates SiteUpdate)
}

// noopHooks satisfies Hooks until SetHooks is called, so a Store is
// usable standalone in tests that don't care about plugin fan-out.
type noopHooks struct{}

func (noopHooks) DispatchCreateSite(context.Context, string, model.Site)    {}
func (noopHooks) DispatchUpdateSite(context.Context, string, SiteUpdate) {}
