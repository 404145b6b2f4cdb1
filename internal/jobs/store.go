package jobs

import (
	"sort"
	"sync"
)

// Store keeps job records in memory. It holds copies: the worker owns
// the live Job and publishes state transitions through Update, so
// readers never observe a half-written record. Records accumulate for
// the life of the process; a cap evicts the oldest terminal jobs so a
// long session does not grow without bound.
type Store struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	order []string // insertion order, oldest first
	cap   int
}

const defaultStoreCap = 256

// NewStore creates an in-memory job store.
func NewStore() *Store {
	return &Store{jobs: make(map[string]*Job), cap: defaultStoreCap}
}

// Create registers a new job.
func (s *Store) Create(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *job
	s.jobs[job.ID] = &clone
	s.order = append(s.order, job.ID)
	s.evictLocked()
}

// Update publishes the job's current state.
func (s *Store) Update(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return
	}
	clone := *job
	s.jobs[job.ID] = &clone
}

// evictLocked drops the oldest terminal jobs beyond the cap.
func (s *Store) evictLocked() {
	if len(s.order) <= s.cap {
		return
	}
	kept := s.order[:0]
	excess := len(s.order) - s.cap
	for _, id := range s.order {
		if excess > 0 && s.jobs[id].IsTerminal() {
			delete(s.jobs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

// Get returns a copy of the job with the given ID, or nil.
func (s *Store) Get(id string) *Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil
	}
	clone := *j
	return &clone
}

// ListOptions filters a job listing.
type ListOptions struct {
	Status []JobStatus
	Type   []JobType
	Limit  int
}

// ListResult contains the result of listing jobs.
type ListResult struct {
	Jobs       []JobSummary `json:"jobs"`
	TotalCount int          `json:"totalCount"`
}

// List returns job summaries newest first. TotalCount counts all
// matches before the limit is applied.
func (s *Store) List(opts ListOptions) *ListResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*Job
	for _, id := range s.order {
		j := s.jobs[id]
		if !matchStatus(j, opts.Status) || !matchType(j, opts.Type) {
			continue
		}
		all = append(all, j)
	}
	sort.Slice(all, func(i, k int) bool { return all[i].CreatedAt.After(all[k].CreatedAt) })

	res := &ListResult{Jobs: []JobSummary{}, TotalCount: len(all)}
	limit := opts.Limit
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	for _, j := range all[:limit] {
		res.Jobs = append(res.Jobs, j.ToSummary())
	}
	return res
}

func matchStatus(j *Job, want []JobStatus) bool {
	if len(want) == 0 {
		return true
	}
	for _, s := range want {
		if j.Status == s {
			return true
		}
	}
	return false
}

func matchType(j *Job, want []JobType) bool {
	if len(want) == 0 {
		return true
	}
	for _, t := range want {
		if j.Type == t {
			return true
		}
	}
	return false
}
