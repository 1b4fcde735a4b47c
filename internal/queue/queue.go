// Package queue implements the durable, priority-aware job queue from
// spec.md §4.4: one named queue per pipeline stage plus a high-priority
// queue that preempts at claim time, and `depends_on` fan-in tracking so
// a dependent job only becomes claimable once every dependency is
// terminal.
package queue

import (
	"context"
	"time"

	"github.com/civicband/clerk-sub001/internal/model"
)

// Queue is the durable job queue contract. Two implementations exist:
// Redis (production, multi-process) and InMemory (Test-Mode Runner and
// unit tests, grounded on the teacher's workQueue in
// internal/reconciler/queue.go).
type Queue interface {
	// Enqueue adds a job. If DependsOn is non-empty the job starts
	// Deferred and is released to Queued once every dependency job
	// reaches a terminal state.
	Enqueue(ctx context.Context, job model.Job) error

	// Claim blocks (up to timeout) for the next queued job across the
	// given named queues, preferring any queue named "high" over the
	// rest. Moves the job Queued -> Running.
	Claim(ctx context.Context, queues []string, workerID string, timeout time.Duration) (model.Job, bool, error)

	// Complete marks a job Completed and releases any dependents whose
	// remaining dependency set becomes empty.
	Complete(ctx context.Context, jobID string) error

	// Fail marks a job Failed, preserves it in the failed registry, and
	// still releases dependents — spec.md §4.4: "Deferred jobs whose
	// dependencies all failed are still released to run."
	Fail(ctx context.Context, jobID string, cause error) error

	// Length returns the number of Queued jobs in the named queue.
	Length(ctx context.Context, queueName string) (int, error)

	// FailedRegistry lists jobs currently in the Failed state.
	FailedRegistry(ctx context.Context) ([]model.Job, error)

	// DeferredRegistry lists jobs currently in the Deferred state.
	DeferredRegistry(ctx context.Context) ([]model.Job, error)

	// Get fetches a job by ID regardless of its current state.
	Get(ctx context.Context, jobID string) (model.Job, bool, error)

	// Close releases any resources (connections, goroutines) held by the
	// queue implementation.
	Close() error
}

// QueueNameForJobType maps a stage's job type to the named queue spec.md §4.6
// enqueues onto.
func QueueNameForJobType(t model.JobType) string {
	switch t {
	case model.JobFetch:
		return "fetch"
	case model.JobOCRPage:
		return "ocr"
	case model.JobOCRCoordinator, model.JobCompile:
		return "compilation"
	case model.JobExtract:
		return "extraction"
	case model.JobDeploy:
		return "deploy"
	case model.JobReconcile:
		return "reconcile"
	default:
		return "default"
	}
}

// HighQueueName is the queue that takes precedence over all normal
// priority stage queues at claim time, spec.md §4.4.
const HighQueueName = "high"

// QueueNameForJob returns HighQueueName when the job is high priority,
// else the stage queue for its job type — high priority jobs are routed
// to a separate queue so a worker serving both can prefer it at claim
// time without per-item priority comparisons.
func QueueNameForJob(j model.Job) string {
	if j.Priority == model.PriorityHigh {
		return HighQueueName
	}
	return QueueNameForJobType(j.Type)
}
