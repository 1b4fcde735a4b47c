// Package scheduler implements the single-shot scheduler tick from
// spec.md §4.7: pick the one site most overdue for a fetch run and
// enqueue it. Grounded on the teacher's reconciler one-shot-per-call
// design (internal/reconciler/manager.go's Reconcile loop) adapted from
// "process every pending request" to "pick exactly one site per Tick",
// since spec.md drives this from an external periodic trigger (e.g.
// cron or a systemd timer) rather than an internal loop.
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/civicband/clerk-sub001/internal/errors"
	"github.com/civicband/clerk-sub001/internal/logging"
	"github.com/civicband/clerk-sub001/internal/model"
	"github.com/civicband/clerk-sub001/internal/queue"
	"github.com/civicband/clerk-sub001/internal/store"
)

const lookbackHours = 23

// Scheduler bundles the dependencies Tick needs.
type Scheduler struct {
	Store store.Store
	Queue queue.Queue
}

// New builds a Scheduler.
func New(st store.Store, q queue.Queue) *Scheduler {
	return &Scheduler{Store: st, Queue: q}
}

// Tick implements spec.md §4.7 steps 1-3: skip sites with a live
// coordinator, pick the oldest remaining eligible site, and enqueue a
// normal-priority fetch run for it with a fresh run_id.
func (s *Scheduler) Tick(ctx context.Context) error {
	log := logging.New("scheduler")

	subdomain, ok, err := s.pickEligibleSite(ctx, time.Now().UTC())
	if err != nil {
		return pkgerrors.New(pkgerrors.Transient, "selecting eligible site", err, nil)
	}
	if !ok {
		log.Info("no eligible sites", nil)
		return nil
	}

	runID, err := model.NewRunID(subdomain, time.Now().UTC())
	if err != nil {
		return pkgerrors.New(pkgerrors.Fatal, "generating run id", err, nil)
	}

	if err := enqueueFetch(ctx, s.Queue, s.Store, subdomain, runID, model.PriorityNormal, FetchOptions{}); err != nil {
		return pkgerrors.New(pkgerrors.Transient, "enqueueing scheduled fetch", err, map[string]any{"subdomain": subdomain})
	}

	log.Info("scheduled_fetch_enqueued", map[string]any{"subdomain": subdomain, "run_id": runID})
	return nil
}

// pickEligibleSite implements step 1's exclusion rule directly against
// AllSites, since store.GetOldestSite's ordering alone does not know
// about a site's OCR counters: a site with coordinator_enqueued=true and
// non-terminal OCR counters is mid-run and must not be picked again.
func (s *Scheduler) pickEligibleSite(ctx context.Context, now time.Time) (string, bool, error) {
	sites, err := s.Store.AllSites(ctx)
	if err != nil {
		return "", false, err
	}

	cutoff := now.Add(-lookbackHours * time.Hour)
	var best model.Site
	var bestIsNull bool
	found := false

	for _, site := range sites {
		if site.CoordinatorEnqueued && !site.Counters[model.CounterOCR].Terminal() {
			continue
		}
		eligible := site.LastUpdated == nil || site.LastUpdated.Before(cutoff)
		if !eligible {
			continue
		}
		isNull := site.LastUpdated == nil

		if !found {
			best, bestIsNull, found = site, isNull, true
			continue
		}
		if isNull && !bestIsNull {
			best, bestIsNull = site, isNull
			continue
		}
		if isNull == bestIsNull {
			if !isNull && site.LastUpdated.Before(*best.LastUpdated) {
				best = site
				continue
			}
			if (isNull || site.LastUpdated.Equal(*best.LastUpdated)) && site.Subdomain < best.Subdomain {
				best = site
			}
		}
	}
	return best.Subdomain, found, nil
}

// FetchOptions carries the `update` command's optional fetch-job
// parameters (spec.md §6): which years/agendas to re-scrape and which
// OCR backend the resulting ocr-page jobs should target.
type FetchOptions struct {
	AllYears   bool
	AllAgendas bool
	Backend    string
}

// enqueueFetch is shared with the manual `new`/`update` commands
// (spec.md: "Manual commands ... enqueue with priority=high and
// preempt"), which reach it through EnqueueManualFetch /
// EnqueueManualFetchWithOptions with model.PriorityHigh instead of going
// through Tick.
func enqueueFetch(ctx context.Context, q queue.Queue, st store.Store, subdomain, runID string, priority model.Priority, opts FetchOptions) error {
	jobID, err := uuid.NewRandom()
	if err != nil {
		return err
	}
	id := jobID.String()
	payload := map[string]any{"subdomain": subdomain, "run_id": runID}
	if opts.AllYears {
		payload["all_years"] = true
	}
	if opts.AllAgendas {
		payload["all_agendas"] = true
	}
	if opts.Backend != "" {
		payload["backend"] = opts.Backend
	}
	job := model.Job{
		ID:        id,
		Type:      model.JobFetch,
		Subdomain: subdomain,
		RunID:     runID,
		Stage:     model.StageFetch,
		Priority:  priority,
		Payload:   payload,
		Status:    model.JobQueued,
	}
	if err := q.Enqueue(ctx, job); err != nil {
		return err
	}
	return st.TrackJob(ctx, id, subdomain, model.JobFetch, model.StageFetch, "")
}

// EnqueueManualFetch is the entry point `new`/`update -s` CLI commands
// use to preempt the scheduler with a high-priority run.
func EnqueueManualFetch(ctx context.Context, q queue.Queue, st store.Store, subdomain string) (string, error) {
	return EnqueueManualFetchWithOptions(ctx, q, st, subdomain, FetchOptions{})
}

// EnqueueManualFetchWithOptions is EnqueueManualFetch with the `update`
// command's optional fetch parameters threaded through to the job
// payload the fetch handler reads (spec.md §4.6.1).
func EnqueueManualFetchWithOptions(ctx context.Context, q queue.Queue, st store.Store, subdomain string, opts FetchOptions) (string, error) {
	return EnqueueFetch(ctx, q, st, subdomain, model.PriorityHigh, opts)
}

// EnqueueFetch is the general-purpose entry point the `enqueue` CLI
// command uses to queue a fetch run for a site at an arbitrary priority.
func EnqueueFetch(ctx context.Context, q queue.Queue, st store.Store, subdomain string, priority model.Priority, opts FetchOptions) (string, error) {
	runID, err := model.NewRunID(subdomain, time.Now().UTC())
	if err != nil {
		return "", err
	}
	if err := enqueueFetch(ctx, q, st, subdomain, runID, priority, opts); err != nil {
		return "", err
	}
	return runID, nil
}
