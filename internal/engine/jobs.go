package engine

import (
	"encoding/json"
	"fmt"

	"binkb/internal/errors"
	"binkb/internal/jobs"
)

func unmarshalScope(job *jobs.Job, out interface{}) error {
	if job.Scope == "" {
		return fmt.Errorf("job %s has no scope", job.ID)
	}
	return json.Unmarshal([]byte(job.Scope), out)
}

// JobStatus returns the full record of one job.
func (e *Engine) JobStatus(jobID string) (*jobs.Job, error) {
	job := e.runner.GetJob(jobID)
	if job == nil {
		return nil, errors.NewNotFound(fmt.Sprintf("no job with id %q", jobID))
	}
	return job, nil
}

// ListJobs lists jobs, newest first, optionally filtered by status.
func (e *Engine) ListJobs(status string, limit int) (*jobs.ListResult, error) {
	opts := jobs.ListOptions{Limit: limit}
	if status != "" {
		switch s := jobs.JobStatus(status); s {
		case jobs.JobQueued, jobs.JobRunning, jobs.JobCompleted, jobs.JobFailed, jobs.JobCancelled:
			opts.Status = []jobs.JobStatus{s}
		default:
			return nil, errors.NewInvalidFormat("status", fmt.Sprintf("unknown job status %q", status))
		}
	}
	return e.runner.ListJobs(opts), nil
}

// CancelJob cancels a queued or running job.
func (e *Engine) CancelJob(jobID string) (*jobs.Job, error) {
	if e.runner.GetJob(jobID) == nil {
		return nil, errors.NewNotFound(fmt.Sprintf("no job with id %q", jobID))
	}
	if err := e.runner.Cancel(jobID); err != nil {
		return nil, errors.NewInvalidFormat("jobId", err.Error())
	}
	return e.runner.GetJob(jobID), nil
}
