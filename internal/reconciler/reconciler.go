// Package reconciler implements the self-healing sweep from spec.md
// §4.8: a single-shot command, invoked periodically by an external
// trigger, that re-derives progress from disk for any site stuck
// mid-pipeline and nudges it forward. Grounded on the teacher's
// Manager/Reconciler split (internal/reconciler/manager.go) but
// radically simplified: muster's Manager runs a channel-driven worker
// pool reconciling Kubernetes-backed resources continuously, where this
// system's reconciler is a stateless one-shot sweep over sites — closer
// to the scheduler's Tick shape than to muster's daemon.
package reconciler

import (
	"context"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/civicband/clerk-sub001/internal/errors"
	"github.com/civicband/clerk-sub001/internal/layout"
	"github.com/civicband/clerk-sub001/internal/logging"
	"github.com/civicband/clerk-sub001/internal/model"
	"github.com/civicband/clerk-sub001/internal/queue"
	"github.com/civicband/clerk-sub001/internal/store"
)

const stuckAfter = 2 * time.Hour

// Reconciler bundles the dependencies Sweep needs.
type Reconciler struct {
	Store      store.Store
	Queue      queue.Queue
	StorageDir string
}

// New builds a Reconciler.
func New(st store.Store, q queue.Queue, storageDir string) *Reconciler {
	return &Reconciler{Store: st, Queue: q, StorageDir: storageDir}
}

// Sweep implements spec.md §4.8. It visits every site not in
// {completed, none} whose UpdatedAt is older than the stuck threshold
// and re-derives its OCR progress from disk.
func (r *Reconciler) Sweep(ctx context.Context) error {
	log := logging.New("reconciler")
	now := time.Now().UTC()

	sites, err := r.Store.AllSites(ctx)
	if err != nil {
		return pkgerrors.New(pkgerrors.Transient, "listing sites", err, nil)
	}

	for _, site := range sites {
		if site.CurrentStage == model.StageCompleted || site.CurrentStage == model.StageNone {
			continue
		}
		if !site.UpdatedAt.Before(now.Add(-stuckAfter)) {
			continue
		}

		if err := r.reconcileSite(ctx, log, site); err != nil {
			log.Error("reconcile failed", err, map[string]any{"subdomain": site.Subdomain})
		}
	}
	return nil
}

func (r *Reconciler) reconcileSite(ctx context.Context, log *logging.Logger, site model.Site) error {
	l := layout.New(r.StorageDir, site.Subdomain)
	total, completed, err := l.CountOnDisk()
	if err != nil {
		return pkgerrors.New(pkgerrors.Transient, "scanning storage layout", err, map[string]any{"subdomain": site.Subdomain})
	}

	if err := r.Store.SetCounter(ctx, site.Subdomain, model.CounterOCR, store.FieldCompleted, completed); err != nil {
		return pkgerrors.New(pkgerrors.Transient, "updating ocr_completed", err, nil)
	}

	if completed == 0 {
		log.Warn("all OCR failed", map[string]any{"subdomain": site.Subdomain, "total": total})
		return nil
	}

	// Tie-break (spec.md §4.8 step 4): never enqueue a second coordinator
	// while one is already live for this site.
	if site.CoordinatorEnqueued {
		return nil
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return pkgerrors.New(pkgerrors.Fatal, "generating job id", err, nil)
	}
	job := model.Job{
		ID:        id.String(),
		Type:      model.JobOCRCoordinator,
		Subdomain: site.Subdomain,
		Stage:     model.StageCompilation,
		Priority:  model.PriorityNormal,
		Payload:   map[string]any{"subdomain": site.Subdomain},
		Status:    model.JobQueued,
	}
	if err := r.Queue.Enqueue(ctx, job); err != nil {
		return pkgerrors.New(pkgerrors.Transient, "enqueueing recovery coordinator", err, nil)
	}
	if err := r.Store.TrackJob(ctx, job.ID, site.Subdomain, model.JobOCRCoordinator, model.StageCompilation, ""); err != nil {
		return pkgerrors.New(pkgerrors.Transient, "tracking recovery coordinator", err, nil)
	}

	enqueued := true
	if err := r.Store.UpdateSite(ctx, site.Subdomain, store.SiteUpdate{CoordinatorEnqueued: &enqueued}); err != nil {
		return pkgerrors.New(pkgerrors.Transient, "marking coordinator_enqueued", err, nil)
	}

	log.Info("recovery_coordinator_enqueued", map[string]any{
		"subdomain": site.Subdomain, "completed": completed, "total": total,
	})
	return nil
}
