package jobs

import (
	"context"
	"testing"
	"time"

	"binkb/internal/logging"
)

func waitFor(t *testing.T, r *Runner, id string, want JobStatus) *Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if j := r.GetJob(id); j != nil && j.Status == want {
			return j
		}
		time.Sleep(5 * time.Millisecond)
	}
	j := r.GetJob(id)
	t.Fatalf("job %s never reached %s (now %+v)", id, want, j)
	return nil
}

func TestSubmitAndComplete(t *testing.T) {
	r := NewRunner(NewStore(), logging.Discard(), DefaultRunnerConfig())
	r.RegisterHandler(JobTypeCacheBuild, func(ctx context.Context, job *Job, progress func(int)) (interface{}, error) {
		progress(50)
		return map[string]int{"strings": 42}, nil
	})
	r.Start()
	defer func() { _ = r.Stop(time.Second) }()

	job, err := NewJob(JobTypeCacheBuild, map[string]string{"docId": "d1"})
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	if err := r.Submit(job); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	done := waitFor(t, r, job.ID, JobCompleted)
	if done.Progress != 100 {
		t.Errorf("progress = %d, want 100", done.Progress)
	}
	if done.Result == "" {
		t.Error("completed job has no result")
	}
	if done.StartedAt == nil || done.CompletedAt == nil {
		t.Error("timestamps not set")
	}
}

func TestFailedJobKeepsError(t *testing.T) {
	r := NewRunner(NewStore(), logging.Discard(), DefaultRunnerConfig())
	r.RegisterHandler(JobTypeCacheBuild, func(ctx context.Context, job *Job, progress func(int)) (interface{}, error) {
		return nil, errBoom{}
	})
	r.Start()
	defer func() { _ = r.Stop(time.Second) }()

	job, _ := NewJob(JobTypeCacheBuild, nil)
	if err := r.Submit(job); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	failed := waitFor(t, r, job.ID, JobFailed)
	if failed.Error != "boom" {
		t.Errorf("error = %q, want boom", failed.Error)
	}
}

func TestCancelRunningJob(t *testing.T) {
	started := make(chan struct{})
	r := NewRunner(NewStore(), logging.Discard(), DefaultRunnerConfig())
	r.RegisterHandler(JobTypeCacheBuild, func(ctx context.Context, job *Job, progress func(int)) (interface{}, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	r.Start()
	defer func() { _ = r.Stop(time.Second) }()

	job, _ := NewJob(JobTypeCacheBuild, nil)
	if err := r.Submit(job); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	<-started
	if err := r.Cancel(job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	waitFor(t, r, job.ID, JobCancelled)
}

func TestCancelQueuedJobNeverRuns(t *testing.T) {
	r := NewRunner(NewStore(), logging.Discard(), DefaultRunnerConfig())
	ran := false
	r.RegisterHandler(JobTypeCacheBuild, func(ctx context.Context, job *Job, progress func(int)) (interface{}, error) {
		ran = true
		return nil, nil
	})

	// Worker not started yet: the job stays queued.
	job, _ := NewJob(JobTypeCacheBuild, nil)
	if err := r.Submit(job); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := r.Cancel(job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got := r.GetJob(job.ID); got.Status != JobCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}

	r.Start()
	defer func() { _ = r.Stop(time.Second) }()
	time.Sleep(50 * time.Millisecond)
	if ran {
		t.Error("cancelled job was executed")
	}
	if got := r.GetJob(job.ID); got.Status != JobCancelled {
		t.Errorf("status = %s after worker start, want cancelled", got.Status)
	}
}

func TestCancelTerminalJobRejected(t *testing.T) {
	r := NewRunner(NewStore(), logging.Discard(), DefaultRunnerConfig())
	r.RegisterHandler(JobTypeCacheBuild, func(ctx context.Context, job *Job, progress func(int)) (interface{}, error) {
		return nil, nil
	})
	r.Start()
	defer func() { _ = r.Stop(time.Second) }()

	job, _ := NewJob(JobTypeCacheBuild, nil)
	if err := r.Submit(job); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitFor(t, r, job.ID, JobCompleted)

	if err := r.Cancel(job.ID); err == nil {
		t.Error("cancelling a completed job succeeded")
	}
}

func TestListJobsFilters(t *testing.T) {
	store := NewStore()

	a, _ := NewJob(JobTypeCacheBuild, nil)
	store.Create(a)
	b, _ := NewJob(JobTypeStringExport, nil)
	b.MarkStarted()
	if err := b.MarkCompleted(nil); err != nil {
		t.Fatal(err)
	}
	store.Create(b)

	all := store.List(ListOptions{})
	if all.TotalCount != 2 {
		t.Fatalf("total = %d, want 2", all.TotalCount)
	}

	queued := store.List(ListOptions{Status: []JobStatus{JobQueued}})
	if queued.TotalCount != 1 || queued.Jobs[0].ID != a.ID {
		t.Errorf("queued filter = %+v", queued)
	}

	exports := store.List(ListOptions{Type: []JobType{JobTypeStringExport}})
	if exports.TotalCount != 1 || exports.Jobs[0].ID != b.ID {
		t.Errorf("type filter = %+v", exports)
	}

	limited := store.List(ListOptions{Limit: 1})
	if len(limited.Jobs) != 1 || limited.TotalCount != 2 {
		t.Errorf("limit = %+v, want 1 job of 2 total", limited)
	}
}

func TestJobStateTransitions(t *testing.T) {
	j, err := NewJob(JobTypeCacheBuild, nil)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	if j.ID == "" || j.Status != JobQueued {
		t.Fatalf("fresh job = %+v", j)
	}
	if j.IsTerminal() || !j.CanCancel() {
		t.Error("queued job should be cancellable, not terminal")
	}

	j.MarkStarted()
	if j.Status != JobRunning || j.StartedAt == nil {
		t.Errorf("after start: %+v", j)
	}

	j.SetProgress(150)
	if j.Progress != 100 {
		t.Errorf("progress clamped to %d, want 100", j.Progress)
	}

	if err := j.MarkCompleted("done"); err != nil {
		t.Fatal(err)
	}
	if !j.IsTerminal() || j.CanCancel() {
		t.Error("completed job should be terminal and uncancellable")
	}
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
