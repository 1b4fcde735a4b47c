package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/civicband/clerk-sub001/internal/model"
)

// InMemory is a single-process Queue used by the Test-Mode Runner and by
// unit tests that exercise stage handlers without a live Redis. It is a
// direct generalization of the teacher's workQueue
// (internal/reconciler/queue.go): the same condition-variable blocking
// Get, adapted from one dedup'd FIFO to N named queues plus depends_on
// fan-in bookkeeping. A job ID that is already known is rejected at
// Enqueue, and a claimed job is never replayed.
type InMemory struct {
	mu   sync.Mutex
	cond *sync.Cond

	queues map[string][]string // queue name -> ordered job IDs waiting to be claimed
	jobs   map[string]*model.Job

	// remaining[jobID] is the set of not-yet-terminal dependency job IDs.
	remaining map[string]map[string]bool
	// dependents[depJobID] is the set of job IDs waiting on depJobID.
	dependents map[string][]string

	shuttingDown bool
}

// NewInMemory constructs an empty InMemory queue.
func NewInMemory() *InMemory {
	q := &InMemory{
		queues:     make(map[string][]string),
		jobs:       make(map[string]*model.Job),
		remaining:  make(map[string]map[string]bool),
		dependents: make(map[string][]string),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *InMemory) Enqueue(_ context.Context, job model.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if job.ID == "" {
		return fmt.Errorf("queue: job id is required")
	}
	if _, exists := q.jobs[job.ID]; exists {
		return fmt.Errorf("queue: job %s already exists", job.ID)
	}

	stored := job
	pending := map[string]bool{}
	for _, dep := range job.DependsOn {
		if depJob, ok := q.jobs[dep]; ok && depJob.Terminal() {
			continue
		}
		pending[dep] = true
		q.dependents[dep] = append(q.dependents[dep], job.ID)
	}

	if len(pending) > 0 {
		stored.Status = model.JobDeferred
		q.remaining[job.ID] = pending
		q.jobs[job.ID] = &stored
		return nil
	}

	stored.Status = model.JobQueued
	q.jobs[job.ID] = &stored
	qname := QueueNameForJob(stored)
	q.queues[qname] = append(q.queues[qname], job.ID)
	q.cond.Broadcast()
	return nil
}

func (q *InMemory) Claim(ctx context.Context, queues []string, _ string, timeout time.Duration) (model.Job, bool, error) {
	deadline := time.Now().Add(timeout)

	// A periodic broadcaster wakes any goroutine blocked in cond.Wait so
	// this call can notice context cancellation or deadline expiry even
	// when nothing else touches the queue.
	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		ticker := time.NewTicker(25 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stopWatch:
				return
			case <-ticker.C:
				q.mu.Lock()
				q.cond.Broadcast()
				q.mu.Unlock()
			}
		}
	}()

	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if id, _, ok := q.popFirstQueued(queues); ok {
			job := q.jobs[id]
			job.Status = model.JobRunning
			return *job, true, nil
		}

		if q.shuttingDown || ctx.Err() != nil || time.Now().After(deadline) {
			return model.Job{}, false, nil
		}

		q.cond.Wait()
	}
}

// popFirstQueued checks the high-priority queue (if present in queues)
// before the caller's other named queues, matching spec.md §4.4's
// "high-priority jobs preempt at claim time" rule.
func (q *InMemory) popFirstQueued(queues []string) (id string, qname string, ok bool) {
	ordered := orderWithHighFirst(queues)
	for _, name := range ordered {
		ids := q.queues[name]
		if len(ids) == 0 {
			continue
		}
		id = ids[0]
		q.queues[name] = ids[1:]
		return id, name, true
	}
	return "", "", false
}

func orderWithHighFirst(queues []string) []string {
	out := make([]string, 0, len(queues))
	for _, q := range queues {
		if q == HighQueueName {
			out = append([]string{q}, out...)
		} else {
			out = append(out, q)
		}
	}
	return out
}

func (q *InMemory) Complete(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return fmt.Errorf("queue: unknown job %s", jobID)
	}
	job.Status = model.JobCompleted
	q.releaseDependents(jobID)
	return nil
}

func (q *InMemory) Fail(_ context.Context, jobID string, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return fmt.Errorf("queue: unknown job %s", jobID)
	}
	job.Status = model.JobFailed
	if cause != nil {
		job.Error = cause.Error()
	}
	// Dependents still get released even when a dependency failed —
	// spec.md §4.4: the coordinator observes partial failure via counters.
	q.releaseDependents(jobID)
	return nil
}

func (q *InMemory) releaseDependents(jobID string) {
	for _, depID := range q.dependents[jobID] {
		pending := q.remaining[depID]
		if pending == nil {
			continue
		}
		delete(pending, jobID)
		if len(pending) == 0 {
			delete(q.remaining, depID)
			job := q.jobs[depID]
			job.Status = model.JobQueued
			qname := QueueNameForJob(*job)
			q.queues[qname] = append(q.queues[qname], depID)
		}
	}
	delete(q.dependents, jobID)
	q.cond.Broadcast()
}

func (q *InMemory) Length(_ context.Context, queueName string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[queueName]), nil
}

func (q *InMemory) FailedRegistry(_ context.Context) ([]model.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []model.Job
	for _, j := range q.jobs {
		if j.Status == model.JobFailed {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (q *InMemory) DeferredRegistry(_ context.Context) ([]model.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []model.Job
	for _, j := range q.jobs {
		if j.Status == model.JobDeferred {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (q *InMemory) Get(_ context.Context, jobID string) (model.Job, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[jobID]
	if !ok {
		return model.Job{}, false, nil
	}
	return *j, true, nil
}

func (q *InMemory) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.shuttingDown = true
	q.cond.Broadcast()
	return nil
}
