package pipeline

import (
	"context"
	"time"

	pkgerrors "github.com/civicband/clerk-sub001/internal/errors"
	"github.com/civicband/clerk-sub001/internal/logging"
	"github.com/civicband/clerk-sub001/internal/model"
	"github.com/civicband/clerk-sub001/internal/store"
)

// Deploy implements spec.md §4.6.6: fire every deploy_municipality hook,
// then every post_deploy hook, and mark the site deployed.
func (c *Context) Deploy(ctx context.Context, job model.Job) error {
	start := time.Now()
	subdomain, err := requireString(job.Payload, "subdomain")
	if err != nil {
		return pkgerrors.New(pkgerrors.Configuration, "deploy job missing subdomain", err, nil)
	}
	runID := payloadString(job.Payload, "run_id")

	log, ctx := logging.WithJob(ctx, "deploy", job.ID, job.ParentJobID, runID, subdomain, string(model.StageDeploy))
	log.StageStarted("deploy", map[string]any{"subdomain": subdomain})

	site, ok, err := c.Store.GetSite(ctx, subdomain)
	if err != nil {
		return pkgerrors.New(pkgerrors.Transient, "loading site", err, map[string]any{"subdomain": subdomain})
	}
	if !ok {
		return pkgerrors.New(pkgerrors.Configuration, "unknown site", nil, map[string]any{"subdomain": subdomain})
	}

	if err := c.Registry.DispatchDeploy(ctx, subdomain, site); err != nil {
		wrapped := pkgerrors.New(pkgerrors.Transient, "deploy hooks failed", err, map[string]any{"subdomain": subdomain})
		log.StageFailed("deploy", time.Since(start), string(pkgerrors.KindOf(wrapped)), wrapped, map[string]any{"subdomain": subdomain})
		return wrapped
	}

	deployed := model.StatusDeployed
	completed := model.StageCompleted
	now := time.Now().UTC()
	if err := c.Store.UpdateSite(ctx, subdomain, store.SiteUpdate{
		Status: &deployed, CurrentStage: &completed, LastUpdated: &now,
	}); err != nil {
		return pkgerrors.New(pkgerrors.Transient, "marking site deployed", err, map[string]any{"subdomain": subdomain})
	}

	log.StageCompleted("deploy", time.Since(start), map[string]any{"subdomain": subdomain})
	return nil
}
