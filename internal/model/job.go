package model

// JobType is one of the handler-dispatchable job kinds, spec.md §3.2.
type JobType string

const (
	JobFetch           JobType = "fetch"
	JobOCRPage         JobType = "ocr-page"
	JobOCRCoordinator  JobType = "ocr-coordinator"
	JobCompile         JobType = "compile"
	JobExtract         JobType = "extract"
	JobDeploy          JobType = "deploy"
	JobReconcile       JobType = "reconcile"
)

// Priority is one of the three priority classes, spec.md §3.2.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// JobStatus is the lifecycle state of a Job, spec.md §3.2.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobDeferred  JobStatus = "deferred"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job is a unit of work in the queue, spec.md §3.2.
type Job struct {
	ID            string         `json:"job_id"`
	Type          JobType        `json:"job_type"`
	Subdomain     string         `json:"subdomain"`
	RunID         string         `json:"run_id"`
	Stage         Stage          `json:"stage"`
	Priority      Priority       `json:"priority"`
	DependsOn     []string       `json:"depends_on,omitempty"`
	ParentJobID   string         `json:"parent_job_id,omitempty"`
	Payload       map[string]any `json:"payload"`
	Attempt       int            `json:"attempt"`
	Status        JobStatus      `json:"status"`
	Error         string         `json:"error,omitempty"`
}

// Terminal reports whether the job has reached a state that no longer
// changes — used by the fan-in coordinator's dependency check.
func (j Job) Terminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}
