package pipeline

import (
	"context"
	"time"

	pkgerrors "github.com/civicband/clerk-sub001/internal/errors"
	"github.com/civicband/clerk-sub001/internal/layout"
	"github.com/civicband/clerk-sub001/internal/logging"
	"github.com/civicband/clerk-sub001/internal/model"
	"github.com/civicband/clerk-sub001/internal/store"
)

// OCRCoordinator implements spec.md §4.6.3. It runs exactly once per run
// (enforced by the queue's depends_on fan-in) once every ocr-page job for
// the site has reached a terminal state, and must be idempotent under
// reconciler retries.
func (c *Context) OCRCoordinator(ctx context.Context, job model.Job) error {
	start := time.Now()
	subdomain, err := requireString(job.Payload, "subdomain")
	if err != nil {
		return pkgerrors.New(pkgerrors.Configuration, "ocr-coordinator job missing subdomain", err, nil)
	}
	runID := payloadString(job.Payload, "run_id")

	log, ctx := logging.WithJob(ctx, "ocr-coordinator", job.ID, job.ParentJobID, runID, subdomain, string(model.StageOCR))
	log.StageStarted("ocr_coordinator", map[string]any{"subdomain": subdomain})

	l := layout.New(c.StorageDir, subdomain)
	total, completed, err := l.CountOnDisk()
	if err != nil {
		return pkgerrors.New(pkgerrors.Transient, "scanning storage layout", err, map[string]any{"subdomain": subdomain})
	}
	failed := total - completed
	if failed < 0 {
		failed = 0
	}

	if err := c.Store.SetCounter(ctx, subdomain, model.CounterOCR, store.FieldCompleted, completed); err != nil {
		return pkgerrors.New(pkgerrors.Transient, "setting ocr_completed", err, nil)
	}
	if err := c.Store.SetCounter(ctx, subdomain, model.CounterOCR, store.FieldFailed, failed); err != nil {
		return pkgerrors.New(pkgerrors.Transient, "setting ocr_failed", err, nil)
	}

	stage := model.StageCompilation
	if err := c.Store.UpdateSite(ctx, subdomain, store.SiteUpdate{CurrentStage: &stage}); err != nil {
		return pkgerrors.New(pkgerrors.Transient, "marking current_stage=compilation", err, nil)
	}

	compileID, err := newJobID()
	if err != nil {
		return pkgerrors.New(pkgerrors.Fatal, "generating compile job id", err, nil)
	}
	compileJob := model.Job{
		ID: compileID, Type: model.JobCompile, Subdomain: subdomain, RunID: runID,
		Stage: model.StageCompilation, Priority: job.Priority,
		Payload: map[string]any{"subdomain": subdomain, "run_id": runID},
		Status:  model.JobQueued,
	}
	if err := c.Queue.Enqueue(ctx, compileJob); err != nil {
		return pkgerrors.New(pkgerrors.Transient, "enqueueing compile job", err, nil)
	}
	if err := c.Store.TrackJob(ctx, compileID, subdomain, model.JobCompile, model.StageCompilation, job.ID); err != nil {
		return pkgerrors.New(pkgerrors.Transient, "tracking compile job", err, nil)
	}

	// The state machine's parallel branch (spec.md §4.6) joins at deploy:
	// when extraction is enabled, deploy must wait on both compile and
	// extract. Rather than have whichever of the two finishes last enqueue
	// deploy itself (a race with no natural winner), the coordinator uses
	// the same depends_on fan-in it relies on for ocr-page — grounded on
	// the queue's existing fan-in primitive rather than inventing a second
	// one. When extraction is disabled there is nothing to join, so
	// compile enqueues deploy directly (spec.md §4.6.4) and no deploy job
	// is created here.
	deployDeps := []string{compileID}

	if c.EnableExtraction {
		extractID, err := newJobID()
		if err != nil {
			return pkgerrors.New(pkgerrors.Fatal, "generating extract job id", err, nil)
		}
		extractJob := model.Job{
			ID: extractID, Type: model.JobExtract, Subdomain: subdomain, RunID: runID,
			Stage: model.StageExtraction, Priority: job.Priority,
			Payload: map[string]any{"subdomain": subdomain, "run_id": runID},
			Status:  model.JobQueued,
		}
		if err := c.Queue.Enqueue(ctx, extractJob); err != nil {
			return pkgerrors.New(pkgerrors.Transient, "enqueueing extract job", err, nil)
		}
		if err := c.Store.TrackJob(ctx, extractID, subdomain, model.JobExtract, model.StageExtraction, job.ID); err != nil {
			return pkgerrors.New(pkgerrors.Transient, "tracking extract job", err, nil)
		}
		deployDeps = append(deployDeps, extractID)

		deployID, err := newJobID()
		if err != nil {
			return pkgerrors.New(pkgerrors.Fatal, "generating deploy job id", err, nil)
		}
		deployJob := model.Job{
			ID: deployID, Type: model.JobDeploy, Subdomain: subdomain, RunID: runID,
			Stage: model.StageDeploy, Priority: job.Priority, DependsOn: deployDeps,
			Payload: map[string]any{"subdomain": subdomain, "run_id": runID},
			Status:  model.JobQueued,
		}
		if err := c.Queue.Enqueue(ctx, deployJob); err != nil {
			return pkgerrors.New(pkgerrors.Transient, "enqueueing deploy job", err, nil)
		}
		if err := c.Store.TrackJob(ctx, deployID, subdomain, model.JobDeploy, model.StageDeploy, job.ID); err != nil {
			return pkgerrors.New(pkgerrors.Transient, "tracking deploy job", err, nil)
		}
	}

	log.Info("ocr_coordinator_completed", map[string]any{
		"completed": completed, "failed": failed, "total": total,
		"duration_seconds": time.Since(start).Seconds(),
	})
	return nil
}
