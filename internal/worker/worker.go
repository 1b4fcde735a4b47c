// Package worker implements the Worker Runtime from spec.md §4.5: a
// loop parameterized by a list of queue names that claims a job,
// dispatches it to the stage handler matching its job_type, and marks
// it complete or failed before repeating. Grounded on the teacher's
// Manager.worker(id int) goroutine shape (internal/reconciler/manager.go)
// — claim, process, mark done, loop until told to stop — adapted from a
// fixed in-process request channel to the durable queue.Queue interface
// so a worker survives process restarts.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	pkgerrors "github.com/civicband/clerk-sub001/internal/errors"
	"github.com/civicband/clerk-sub001/internal/logging"
	"github.com/civicband/clerk-sub001/internal/model"
	"github.com/civicband/clerk-sub001/internal/pipeline"
	"github.com/civicband/clerk-sub001/internal/queue"
)

// claimTimeout bounds how long one Claim call blocks before the loop
// re-checks ctx for cancellation.
const claimTimeout = 5 * time.Second

// Handler processes one claimed job.
type Handler func(ctx context.Context, job model.Job) error

// Runner is one worker process: a queue list, a worker identity, and the
// dispatch table built from a pipeline.Context's stage handlers.
type Runner struct {
	Queue    queue.Queue
	Queues   []string
	WorkerID string

	handlers map[model.JobType]Handler
}

// New builds a Runner whose dispatch table covers every job_type the
// given pipeline.Context can handle.
func New(q queue.Queue, pc *pipeline.Context, queues []string, workerID string) *Runner {
	return &Runner{
		Queue:    q,
		Queues:   queues,
		WorkerID: workerID,
		handlers: map[model.JobType]Handler{
			model.JobFetch:          pc.Fetch,
			model.JobOCRPage:        pc.OCRPage,
			model.JobOCRCoordinator: pc.OCRCoordinator,
			model.JobCompile:        pc.Compile,
			model.JobExtract:        pc.Extract,
			model.JobDeploy:         pc.Deploy,
		},
	}
}

// Run loops claim → dispatch → complete/fail until ctx is cancelled,
// per spec.md §4.5 ("exit cleanly on termination signal after finishing
// the current job").
func (r *Runner) Run(ctx context.Context) error {
	log := logging.New("worker")
	log.Info("worker_started", map[string]any{"worker_id": r.WorkerID, "queues": r.Queues})

	for {
		select {
		case <-ctx.Done():
			log.Info("worker_stopped", map[string]any{"worker_id": r.WorkerID})
			return nil
		default:
		}

		job, ok, err := r.Queue.Claim(ctx, r.Queues, r.WorkerID, claimTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error("claim failed", err, map[string]any{"worker_id": r.WorkerID})
			continue
		}
		if !ok {
			continue
		}

		r.process(ctx, log, job)
	}
}

// process dispatches one job, isolating a handler panic the same way
// spec.md §4.5 requires ("catch all handler exceptions, record
// structured failure log with traceback, mark the job failed, and
// continue").
func (r *Runner) process(ctx context.Context, log *logging.Logger, job model.Job) {
	handler, ok := r.handlers[job.Type]
	if !ok {
		r.fail(ctx, log, job, pkgerrors.New(pkgerrors.Configuration, "no handler registered for job type", nil,
			map[string]any{"job_type": string(job.Type)}))
		return
	}

	err := r.runHandler(ctx, handler, job)
	if err != nil {
		r.fail(ctx, log, job, err)
		return
	}

	if cErr := r.Queue.Complete(ctx, job.ID); cErr != nil {
		log.Error("marking job complete failed", cErr, map[string]any{"job_id": job.ID})
	}
}

// runHandler recovers a panicking handler into an error so one bad job
// never takes the worker process down.
func (r *Runner) runHandler(ctx context.Context, handler Handler, job model.Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = pkgerrors.New(pkgerrors.Fatal, "handler panicked", fmt.Errorf("%v", rec), map[string]any{
				"job_id": job.ID, "job_type": string(job.Type), "stack": string(debug.Stack()),
			})
		}
	}()
	return handler(ctx, job)
}

func (r *Runner) fail(ctx context.Context, log *logging.Logger, job model.Job, cause error) {
	sanitized := pkgerrors.SanitizeMessage(cause.Error())
	if fErr := r.Queue.Fail(ctx, job.ID, cause); fErr != nil {
		log.Error("marking job failed also failed", fErr, map[string]any{"job_id": job.ID})
	}
	fields := map[string]any{
		"job_id": job.ID, "job_type": string(job.Type), "kind": string(pkgerrors.KindOf(cause)), "message": sanitized,
	}
	if pe, ok := cause.(*pkgerrors.Error); ok {
		if stack, ok := pe.Context["stack"]; ok {
			fields["traceback"] = stack
		}
	}
	log.Error("job failed", cause, fields)
}
