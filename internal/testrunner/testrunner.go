// Package testrunner implements the Test-Mode Runner from spec.md §4.9:
// drive every stage handler in-process, sequentially, for one
// subdomain, without a distributed worker or Redis, reusing the exact
// same handler functions a production worker dispatches
// (internal/worker's dispatch table). Spec.md calls this out as a
// design requirement, not a convenience: "it prevents drift between
// what workers do and what tests exercise" (spec.md §9).
//
// Grounded on the teacher's own self-test harness shape
// (internal/testing's fixture-driven scenario runner), but driven by
// draining an in-memory queue.Queue to completion rather than a
// fixture file, since this module's handlers communicate through job
// enqueues rather than direct function calls.
package testrunner

import (
	"context"
	"fmt"
	"sort"
	"time"

	pkgerrors "github.com/civicband/clerk-sub001/internal/errors"
	"github.com/civicband/clerk-sub001/internal/logging"
	"github.com/civicband/clerk-sub001/internal/model"
	"github.com/civicband/clerk-sub001/internal/pipeline"
)

// Options mirrors the `test-pipeline` CLI flags from spec.md §6.
type Options struct {
	DryRun            bool
	SkipFetch         bool
	SkipOCR           bool
	NoExtractEntities bool
}

// Report is the outcome of one Run: every handler actually invoked, the
// handlers spec.md's resolved pipeline expected to run, and whatever
// expected handler never fired.
type Report struct {
	Invoked  []string
	Expected []string
	Missing  []string
}

// Passed reports whether every expected handler was invoked.
func (r Report) Passed() bool { return len(r.Missing) == 0 }

var queueNames = []string{"high", "fetch", "ocr", "compilation", "extraction", "deploy"}

// drainTimeout bounds each Claim call. Claim on an empty in-memory queue
// waits the full timeout before reporting that nothing was claimed, so
// every drain ends with one wait of this length.
const drainTimeout = 50 * time.Millisecond

// Run drives one subdomain's pipeline to completion against pc's queue,
// which must be an in-process queue.Queue (e.g. queue.NewInMemory()) —
// spec.md §4.9's "without Redis".
func Run(ctx context.Context, pc *pipeline.Context, subdomain string, opts Options) (Report, error) {
	effective := *pc
	if opts.NoExtractEntities {
		effective.EnableExtraction = false
	}

	expected := expectedHandlers(effective.EnableExtraction, opts)
	if opts.DryRun {
		return Report{Expected: expected}, nil
	}

	invoked := map[string]bool{}
	log := logging.New("test-pipeline")

	if !opts.SkipFetch {
		if err := effective.Fetch(ctx, model.Job{
			ID: "test-fetch", Type: model.JobFetch, Subdomain: subdomain,
			Payload: map[string]any{"subdomain": subdomain, "run_id": "test-run"},
		}); err != nil {
			return Report{}, pkgerrors.New(pkgerrors.Fatal, "fetch handler failed in test mode", err, map[string]any{"subdomain": subdomain})
		}
		invoked["fetch"] = true
	}

	if err := drain(ctx, &effective, opts, invoked, log); err != nil {
		return Report{}, err
	}

	var missing []string
	for _, h := range expected {
		if !invoked[h] {
			missing = append(missing, h)
		}
	}

	var invokedList []string
	for h := range invoked {
		invokedList = append(invokedList, h)
	}
	sort.Strings(invokedList)
	sort.Strings(missing)

	return Report{Invoked: invokedList, Expected: expected, Missing: missing}, nil
}

// drain claims every job the fetch handler (or a prior drain iteration)
// enqueued, dispatching it to the matching handler until the queue is
// empty, in the same job_type → handler mapping internal/worker uses.
func drain(ctx context.Context, pc *pipeline.Context, opts Options, invoked map[string]bool, log *logging.Logger) error {
	q := pc.Queue
	for {
		job, ok, err := q.Claim(ctx, queueNames, "test-pipeline", drainTimeout)
		if err != nil {
			return pkgerrors.New(pkgerrors.Fatal, "draining test-mode queue", err, nil)
		}
		if !ok {
			return nil
		}

		if opts.SkipOCR && job.Type == model.JobOCRPage {
			if cErr := q.Complete(ctx, job.ID); cErr != nil {
				return pkgerrors.New(pkgerrors.Fatal, "completing skipped ocr-page job", cErr, nil)
			}
			continue
		}

		handler, name, err := dispatch(pc, job.Type)
		if err != nil {
			return pkgerrors.New(pkgerrors.Configuration, "no test-mode handler for job type", err, map[string]any{"job_type": string(job.Type)})
		}

		if err := handler(ctx, job); err != nil {
			if cErr := q.Fail(ctx, job.ID, err); cErr != nil {
				log.Error("marking test-mode job failed also failed", cErr, map[string]any{"job_id": job.ID})
			}
			return pkgerrors.New(pkgerrors.Fatal, "handler failed in test mode", err, map[string]any{"job_type": string(job.Type), "job_id": job.ID})
		}
		if err := q.Complete(ctx, job.ID); err != nil {
			return pkgerrors.New(pkgerrors.Fatal, "completing test-mode job", err, nil)
		}
		invoked[name] = true
	}
}

func dispatch(pc *pipeline.Context, jobType model.JobType) (func(context.Context, model.Job) error, string, error) {
	switch jobType {
	case model.JobOCRPage:
		return pc.OCRPage, "ocr-page", nil
	case model.JobOCRCoordinator:
		return pc.OCRCoordinator, "ocr-coordinator", nil
	case model.JobCompile:
		return pc.Compile, "compile", nil
	case model.JobExtract:
		return pc.Extract, "extract", nil
	case model.JobDeploy:
		return pc.Deploy, "deploy", nil
	default:
		return nil, "", fmt.Errorf("testrunner: unrecognized job type %q", jobType)
	}
}

// expectedHandlers is the static set of handler names spec.md §4.9 says
// every invocation of a fully-configured pipeline must exercise.
func expectedHandlers(enableExtraction bool, opts Options) []string {
	expected := []string{}
	if !opts.SkipFetch {
		expected = append(expected, "fetch")
	}
	if !opts.SkipOCR {
		expected = append(expected, "ocr-page")
	}
	expected = append(expected, "ocr-coordinator", "compile", "deploy")
	if enableExtraction {
		expected = append(expected, "extract")
	}
	sort.Strings(expected)
	return expected
}
