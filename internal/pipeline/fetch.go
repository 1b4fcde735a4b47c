package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	pkgerrors "github.com/civicband/clerk-sub001/internal/errors"
	"github.com/civicband/clerk-sub001/internal/layout"
	"github.com/civicband/clerk-sub001/internal/logging"
	"github.com/civicband/clerk-sub001/internal/model"
	"github.com/civicband/clerk-sub001/internal/plugin"
	"github.com/civicband/clerk-sub001/internal/store"
)

// enqueueFanoutConcurrency bounds how many ocr-page jobs Fetch enqueues
// at once: the queue and store both accept concurrent calls (Redis,
// Postgres connection pool), so this is a throughput knob, not a
// correctness requirement — unlike the single coordinator enqueue that
// must wait for every ocr-page job id.
const enqueueFanoutConcurrency = 8

// Fetch implements spec.md §4.6.1.
func (c *Context) Fetch(ctx context.Context, job model.Job) error {
	start := time.Now()
	subdomain, err := requireString(job.Payload, "subdomain")
	if err != nil {
		return pkgerrors.New(pkgerrors.Configuration, "fetch job missing subdomain", err, nil)
	}
	runID := payloadString(job.Payload, "run_id")
	allYears := payloadBool(job.Payload, "all_years")
	allAgendas := payloadBool(job.Payload, "all_agendas")

	log, ctx := logging.WithJob(ctx, "fetch", job.ID, job.ParentJobID, runID, subdomain, string(model.StageFetch))

	site, ok, err := c.Store.GetSite(ctx, subdomain)
	if err != nil {
		return pkgerrors.New(pkgerrors.Transient, "loading site", err, map[string]any{"subdomain": subdomain})
	}
	if !ok {
		return pkgerrors.New(pkgerrors.Configuration, "unknown site", nil, map[string]any{"subdomain": subdomain})
	}

	resolved, err := site.Resolve()
	if err != nil {
		return pkgerrors.New(pkgerrors.Configuration, "resolving pipeline", err, map[string]any{"subdomain": subdomain})
	}

	var extractor plugin.Extractor
	if resolved.Legacy {
		fetcher := c.Registry.Fetcher(resolved.Extractor)
		if fetcher == nil {
			return pkgerrors.New(pkgerrors.Configuration, "no legacy fetcher registered", nil,
				map[string]any{"subdomain": subdomain, "label": resolved.Extractor})
		}
		extractor = &legacyFetcherAdapter{fetcher: fetcher}
	} else {
		extractor = c.Registry.Extractor(resolved.Extractor)
		if extractor == nil {
			return pkgerrors.New(pkgerrors.Configuration, "no extractor registered", nil,
				map[string]any{"subdomain": subdomain, "label": resolved.Extractor})
		}
	}

	stage := model.StageFetch
	if err := c.Store.UpdateSite(ctx, subdomain, store.SiteUpdate{CurrentStage: &stage}); err != nil {
		return pkgerrors.New(pkgerrors.Transient, "marking current_stage=fetch", err, nil)
	}
	log.StageStarted("fetch", map[string]any{"subdomain": subdomain, "extractor": resolved.Extractor, "all_years": allYears, "all_agendas": allAgendas})

	if err := extractor.Fetch(ctx, plugin.FetchRequest{
		Subdomain:  subdomain,
		RunID:      runID,
		StorageDir: c.StorageDir,
		AllYears:   allYears,
		AllAgendas: allAgendas,
	}); err != nil {
		wrapped := pkgerrors.New(pkgerrors.Transient, "extractor fetch failed", err, map[string]any{"subdomain": subdomain})
		log.StageFailed("fetch", time.Since(start), string(pkgerrors.KindOf(wrapped)), wrapped, map[string]any{"subdomain": subdomain})
		return wrapped
	}

	l := layout.New(c.StorageDir, subdomain)
	docs, err := l.ListPDFs()
	if err != nil {
		return pkgerrors.New(pkgerrors.Transient, "listing fetched PDFs", err, map[string]any{"subdomain": subdomain})
	}
	n := len(docs)

	if n == 0 {
		completed := model.StageCompleted
		if err := c.Store.UpdateSite(ctx, subdomain, store.SiteUpdate{CurrentStage: &completed}); err != nil {
			return pkgerrors.New(pkgerrors.Transient, "marking empty site completed", err, nil)
		}
		log.StageCompleted("fetch", time.Since(start), map[string]any{"total_pdfs": 0})
		return nil
	}

	if err := c.Store.SetCounter(ctx, subdomain, model.CounterOCR, store.FieldTotal, n); err != nil {
		return pkgerrors.New(pkgerrors.Transient, "setting ocr_total", err, nil)
	}
	if err := c.Store.SetCounter(ctx, subdomain, model.CounterOCR, store.FieldCompleted, 0); err != nil {
		return pkgerrors.New(pkgerrors.Transient, "resetting ocr_completed", err, nil)
	}
	if err := c.Store.SetCounter(ctx, subdomain, model.CounterOCR, store.FieldFailed, 0); err != nil {
		return pkgerrors.New(pkgerrors.Transient, "resetting ocr_failed", err, nil)
	}
	coordinatorEnqueued := false
	if err := c.Store.UpdateSite(ctx, subdomain, store.SiteUpdate{CoordinatorEnqueued: &coordinatorEnqueued}); err != nil {
		return pkgerrors.New(pkgerrors.Transient, "resetting coordinator_enqueued", err, nil)
	}

	backend := payloadString(job.Payload, "backend")
	if backend == "" {
		backend = "tesseract"
	}

	ocrJobIDs := make([]string, len(docs))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(enqueueFanoutConcurrency)
	for i, doc := range docs {
		i, doc := i, doc
		group.Go(func() error {
			id, err := newJobID()
			if err != nil {
				return pkgerrors.New(pkgerrors.Fatal, "generating job id", err, nil)
			}
			ocrJob := model.Job{
				ID:        id,
				Type:      model.JobOCRPage,
				Subdomain: subdomain,
				RunID:     runID,
				Stage:     model.StageOCR,
				Priority:  job.Priority,
				Payload: map[string]any{
					"subdomain": subdomain,
					"run_id":    runID,
					"pdf_path":  doc.PDFPath,
					"backend":   backend,
				},
				Status: model.JobQueued,
			}
			if err := c.Queue.Enqueue(groupCtx, ocrJob); err != nil {
				return pkgerrors.New(pkgerrors.Transient, "enqueueing ocr-page job", err, map[string]any{"pdf_path": doc.PDFPath})
			}
			if err := c.Store.TrackJob(groupCtx, id, subdomain, model.JobOCRPage, model.StageOCR, job.ID); err != nil {
				return pkgerrors.New(pkgerrors.Transient, "tracking ocr-page job", err, nil)
			}
			ocrJobIDs[i] = id
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	coordID, err := newJobID()
	if err != nil {
		return pkgerrors.New(pkgerrors.Fatal, "generating coordinator job id", err, nil)
	}
	coordJob := model.Job{
		ID:        coordID,
		Type:      model.JobOCRCoordinator,
		Subdomain: subdomain,
		RunID:     runID,
		Stage:     model.StageCompilation,
		Priority:  job.Priority,
		DependsOn: ocrJobIDs,
		Payload:   map[string]any{"subdomain": subdomain, "run_id": runID},
		Status:    model.JobQueued,
	}
	if err := c.Queue.Enqueue(ctx, coordJob); err != nil {
		return pkgerrors.New(pkgerrors.Transient, "enqueueing ocr-coordinator job", err, nil)
	}
	if err := c.Store.TrackJob(ctx, coordID, subdomain, model.JobOCRCoordinator, model.StageCompilation, job.ID); err != nil {
		return pkgerrors.New(pkgerrors.Transient, "tracking ocr-coordinator job", err, nil)
	}

	coordinatorEnqueued = true
	if err := c.Store.UpdateSite(ctx, subdomain, store.SiteUpdate{CoordinatorEnqueued: &coordinatorEnqueued}); err != nil {
		return pkgerrors.New(pkgerrors.Transient, "marking coordinator_enqueued", err, nil)
	}

	log.StageCompleted("fetch", time.Since(start), map[string]any{"total_pdfs": n})
	return nil
}

// legacyFetcherAdapter adapts a plugin.Fetcher (spec.md §9's legacy hook)
// into the plugin.Extractor interface the fetch handler invokes, so the
// rest of this handler never needs to know whether a site is configured
// via the modern `pipeline` column or the legacy `scraper` label.
type legacyFetcherAdapter struct {
	fetcher plugin.Fetcher
}

func (a *legacyFetcherAdapter) Label() string { return a.fetcher.Label() }

func (a *legacyFetcherAdapter) Fetch(ctx context.Context, req plugin.FetchRequest) error {
	return a.fetcher.FetchLegacy(ctx, req)
}
