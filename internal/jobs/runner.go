package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"binkb/internal/logging"
)

// JobHandler executes a specific type of job.
type JobHandler func(ctx context.Context, job *Job, progress func(int)) (interface{}, error)

// Runner manages background job execution. A single worker drains the
// queue: the backend bridge is single-threaded, so concurrent cache
// builds would only contend on it.
type Runner struct {
	store    *Store
	logger   *logging.Logger
	handlers map[JobType]JobHandler

	queue     chan *Job
	queueSize int

	done   chan struct{}
	cancel map[string]context.CancelFunc

	mu sync.RWMutex
	wg sync.WaitGroup
}

// RunnerConfig contains configuration for the job runner.
type RunnerConfig struct {
	QueueSize int
}

// DefaultRunnerConfig returns the default runner configuration.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{QueueSize: 16}
}

// NewRunner creates a new job runner.
func NewRunner(store *Store, logger *logging.Logger, config RunnerConfig) *Runner {
	if config.QueueSize <= 0 {
		config.QueueSize = 16
	}
	return &Runner{
		store:     store,
		logger:    logger,
		handlers:  make(map[JobType]JobHandler),
		queue:     make(chan *Job, config.QueueSize),
		queueSize: config.QueueSize,
		done:      make(chan struct{}),
		cancel:    make(map[string]context.CancelFunc),
	}
}

// RegisterHandler registers a handler for a job type.
func (r *Runner) RegisterHandler(jobType JobType, handler JobHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = handler
	r.logger.Debug("Registered job handler", map[string]interface{}{
		"type": jobType,
	})
}

// Start begins processing jobs.
func (r *Runner) Start() {
	r.logger.Info("Starting job runner", map[string]interface{}{
		"queueSize": r.queueSize,
	})
	r.wg.Add(1)
	go r.worker()
}

// Stop gracefully shuts down the runner, cancelling running jobs.
func (r *Runner) Stop(timeout time.Duration) error {
	r.logger.Info("Stopping job runner", nil)
	close(r.done)

	r.mu.Lock()
	for id, cancel := range r.cancel {
		r.logger.Debug("Cancelling running job", map[string]interface{}{
			"jobId": id,
		})
		cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("job runner shutdown timed out after %v", timeout)
	}
}

// Submit registers and enqueues a job. A full queue is an immediate
// error; there is no database to park overflow in.
func (r *Runner) Submit(job *Job) error {
	r.store.Create(job)

	select {
	case r.queue <- job:
		r.logger.Debug("Job queued", map[string]interface{}{
			"jobId": job.ID,
			"type":  job.Type,
		})
		return nil
	case <-r.done:
		return fmt.Errorf("runner is shutting down")
	default:
		job.MarkFailed(fmt.Errorf("job queue is full"))
		r.store.Update(job)
		return fmt.Errorf("job queue is full (%d pending)", len(r.queue))
	}
}

// Cancel attempts to cancel a job.
func (r *Runner) Cancel(jobID string) error {
	job := r.store.Get(jobID)
	if job == nil {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if !job.CanCancel() {
		return fmt.Errorf("job cannot be cancelled in state: %s", job.Status)
	}

	r.mu.Lock()
	cancel, running := r.cancel[jobID]
	r.mu.Unlock()
	if running {
		// The worker observes the context error and publishes the
		// cancelled state itself.
		cancel()
		return nil
	}

	job.MarkCancelled()
	r.store.Update(job)
	return nil
}

// GetJob retrieves a job by ID, or nil.
func (r *Runner) GetJob(jobID string) *Job {
	return r.store.Get(jobID)
}

// ListJobs lists jobs with filters.
func (r *Runner) ListJobs(opts ListOptions) *ListResult {
	return r.store.List(opts)
}

func (r *Runner) worker() {
	defer r.wg.Done()

	for {
		select {
		case job := <-r.queue:
			r.processJob(job)
		case <-r.done:
			return
		}
	}
}

func (r *Runner) processJob(job *Job) {
	// A cancel between enqueue and dequeue already settled the record.
	if current := r.store.Get(job.ID); current != nil && current.IsTerminal() {
		return
	}

	r.mu.RLock()
	handler, ok := r.handlers[job.Type]
	r.mu.RUnlock()
	if !ok {
		job.MarkFailed(fmt.Errorf("no handler for job type: %s", job.Type))
		r.store.Update(job)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancel[job.ID] = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.cancel, job.ID)
		r.mu.Unlock()
		cancel()
	}()

	job.MarkStarted()
	r.store.Update(job)
	r.logger.Info("Processing job", map[string]interface{}{
		"jobId": job.ID,
		"type":  job.Type,
	})

	progress := func(pct int) {
		job.SetProgress(pct)
		r.store.Update(job)
	}

	start := time.Now()
	result, err := handler(ctx, job, progress)
	duration := time.Since(start)

	switch {
	case err != nil && ctx.Err() == context.Canceled:
		job.MarkCancelled()
		r.logger.Info("Job cancelled", map[string]interface{}{
			"jobId":    job.ID,
			"duration": duration.String(),
		})
	case err != nil:
		job.MarkFailed(err)
		r.logger.Error("Job failed", map[string]interface{}{
			"jobId":    job.ID,
			"error":    err.Error(),
			"duration": duration.String(),
		})
	default:
		if err := job.MarkCompleted(result); err != nil {
			job.MarkFailed(err)
		} else {
			r.logger.Info("Job completed", map[string]interface{}{
				"jobId":    job.ID,
				"duration": duration.String(),
			})
		}
	}
	r.store.Update(job)
}

// Stats returns runner statistics.
func (r *Runner) Stats() map[string]interface{} {
	r.mu.RLock()
	running := len(r.cancel)
	r.mu.RUnlock()

	return map[string]interface{}{
		"queueLength":   len(r.queue),
		"queueCapacity": r.queueSize,
		"runningJobs":   running,
	}
}
