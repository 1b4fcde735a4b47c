package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/civicband/clerk-sub001/internal/model"
)

// Redis is the durable, multi-process Queue implementation backed by a
// Redis list per named queue (the Queued state), one string key per job
// holding its JSON body, and a per-dependent SET of outstanding dependency IDs
// used for depends_on fan-in, grounded on spec.md §4.4's durability and
// fan-in requirements. Lists give FIFO-by-enqueue-time ordering within a
// queue for free; the per-dependent SET gives O(1) "did the last
// dependency just finish" checks on Complete/Fail.
type Redis struct {
	rdb *redis.Client
}

const (
	keyJob          = "clerk:job:"           // + job_id -> JSON body
	keyQueuePrefix  = "clerk:queue:"         // + name -> list of job_id
	keyDeps         = "clerk:deps:"          // + job_id -> set of outstanding dependency job_ids
	keyDependents   = "clerk:dependents:"    // + dep_job_id -> set of job_ids waiting on it
	keyFailed       = "clerk:failed"         // set of failed job_ids
	keyDeferred     = "clerk:deferred"       // set of deferred job_ids
)

// NewRedis dials url (a redis:// connection string) and returns a Redis queue.
func NewRedis(url string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("queue: parsing REDIS_URL: %w", err)
	}
	return &Redis{rdb: redis.NewClient(opt)}, nil
}

func (r *Redis) Close() error { return r.rdb.Close() }

func (r *Redis) saveJob(ctx context.Context, job model.Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, keyJob+job.ID, body, 0).Err()
}

func (r *Redis) loadJob(ctx context.Context, id string) (model.Job, bool, error) {
	body, err := r.rdb.Get(ctx, keyJob+id).Bytes()
	if err == redis.Nil {
		return model.Job{}, false, nil
	}
	if err != nil {
		return model.Job{}, false, err
	}
	var job model.Job
	if err := json.Unmarshal(body, &job); err != nil {
		return model.Job{}, false, err
	}
	return job, true, nil
}

func (r *Redis) Enqueue(ctx context.Context, job model.Job) error {
	if job.ID == "" {
		return fmt.Errorf("queue: job id is required")
	}

	var pending []string
	for _, dep := range job.DependsOn {
		depJob, ok, err := r.loadJob(ctx, dep)
		if err != nil {
			return err
		}
		if ok && depJob.Terminal() {
			continue
		}
		pending = append(pending, dep)
	}

	if len(pending) > 0 {
		job.Status = model.JobDeferred
		if err := r.saveJob(ctx, job); err != nil {
			return err
		}
		pipe := r.rdb.TxPipeline()
		pipe.SAdd(ctx, keyDeps+job.ID, toAny(pending)...)
		for _, dep := range pending {
			pipe.SAdd(ctx, keyDependents+dep, job.ID)
		}
		pipe.SAdd(ctx, keyDeferred, job.ID)
		_, err := pipe.Exec(ctx)
		return err
	}

	job.Status = model.JobQueued
	if err := r.saveJob(ctx, job); err != nil {
		return err
	}
	return r.rdb.RPush(ctx, keyQueuePrefix+QueueNameForJob(job), job.ID).Err()
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func (r *Redis) Claim(ctx context.Context, queues []string, _ string, timeout time.Duration) (model.Job, bool, error) {
	ordered := orderWithHighFirst(queues)
	keys := make([]string, len(ordered))
	for i, q := range ordered {
		keys[i] = keyQueuePrefix + q
	}

	res, err := r.rdb.BLPop(ctx, timeout, keys...).Result()
	if err == redis.Nil {
		return model.Job{}, false, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return model.Job{}, false, nil
		}
		return model.Job{}, false, err
	}
	id := res[1]

	job, ok, err := r.loadJob(ctx, id)
	if err != nil || !ok {
		return model.Job{}, false, err
	}
	job.Status = model.JobRunning
	if err := r.saveJob(ctx, job); err != nil {
		return model.Job{}, false, err
	}
	return job, true, nil
}

func (r *Redis) Complete(ctx context.Context, jobID string) error {
	job, ok, err := r.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("queue: unknown job %s", jobID)
	}
	job.Status = model.JobCompleted
	if err := r.saveJob(ctx, job); err != nil {
		return err
	}
	return r.releaseDependents(ctx, jobID)
}

func (r *Redis) Fail(ctx context.Context, jobID string, cause error) error {
	job, ok, err := r.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("queue: unknown job %s", jobID)
	}
	job.Status = model.JobFailed
	if cause != nil {
		job.Error = cause.Error()
	}
	if err := r.saveJob(ctx, job); err != nil {
		return err
	}
	if err := r.rdb.SAdd(ctx, keyFailed, jobID).Err(); err != nil {
		return err
	}
	// Dependents are still released on failure (spec.md §4.4): the
	// coordinator observes partial failure via counters, not via the
	// queue refusing to run it.
	return r.releaseDependents(ctx, jobID)
}

func (r *Redis) releaseDependents(ctx context.Context, jobID string) error {
	dependents, err := r.rdb.SMembers(ctx, keyDependents+jobID).Result()
	if err != nil {
		return err
	}
	for _, depID := range dependents {
		if err := r.rdb.SRem(ctx, keyDeps+depID, jobID).Err(); err != nil {
			return err
		}
		remaining, err := r.rdb.SCard(ctx, keyDeps+depID).Result()
		if err != nil {
			return err
		}
		if remaining == 0 {
			job, ok, err := r.loadJob(ctx, depID)
			if err != nil || !ok {
				continue
			}
			job.Status = model.JobQueued
			if err := r.saveJob(ctx, job); err != nil {
				return err
			}
			pipe := r.rdb.TxPipeline()
			pipe.SRem(ctx, keyDeferred, depID)
			pipe.RPush(ctx, keyQueuePrefix+QueueNameForJob(job), depID)
			if _, err := pipe.Exec(ctx); err != nil {
				return err
			}
		}
	}
	return r.rdb.Del(ctx, keyDependents+jobID).Err()
}

func (r *Redis) Length(ctx context.Context, queueName string) (int, error) {
	n, err := r.rdb.LLen(ctx, keyQueuePrefix+queueName).Result()
	return int(n), err
}

func (r *Redis) FailedRegistry(ctx context.Context) ([]model.Job, error) {
	ids, err := r.rdb.SMembers(ctx, keyFailed).Result()
	if err != nil {
		return nil, err
	}
	return r.loadAll(ctx, ids)
}

func (r *Redis) DeferredRegistry(ctx context.Context) ([]model.Job, error) {
	ids, err := r.rdb.SMembers(ctx, keyDeferred).Result()
	if err != nil {
		return nil, err
	}
	return r.loadAll(ctx, ids)
}

func (r *Redis) loadAll(ctx context.Context, ids []string) ([]model.Job, error) {
	out := make([]model.Job, 0, len(ids))
	for _, id := range ids {
		job, ok, err := r.loadJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, job)
		}
	}
	return out, nil
}

func (r *Redis) Get(ctx context.Context, jobID string) (model.Job, bool, error) {
	return r.loadJob(ctx, jobID)
}
