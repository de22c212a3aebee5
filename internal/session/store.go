// =============================================================================
// Accounting Export Converter - Conversion Job Store
// =============================================================================
//
// A ConversionJob holds the uploaded dataset(s) and the latest output of
// one caller's upload -> convert -> download sequence. Jobs are keyed by an
// explicit job id, so concurrent callers on the same route never share
// state.
//
// LIFECYCLE:
//   - Upload without a job id creates a job bound to the route.
//   - Upload with a job id replaces the job's datasets and discards any
//     previous output.
//   - Convert stores the output on the job; download reads it. Output
//     rendered from a replaced upload is rejected (Generation).
//
// EVICTION:
//   - TTL: jobs untouched for longer than the TTL are removed by Sweep
//     (run periodically by Run).
//   - Capacity: creating a job beyond MaxJobs evicts the least recently
//     touched job.
//
// =============================================================================

package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ginjaninja78/accounting-export-converter/internal/doctype"
	"github.com/ginjaninja78/accounting-export-converter/internal/types"
	"github.com/google/uuid"
)

var (
	// ErrJobNotFound is returned for unknown or evicted job ids.
	ErrJobNotFound = errors.New("conversion job not found")

	// ErrRouteMismatch is returned when a job is used on a route other than
	// the one that created it.
	ErrRouteMismatch = errors.New("conversion job belongs to another route")

	// ErrNoDataset is returned when a job has nothing uploaded.
	ErrNoDataset = errors.New("no dataset uploaded")

	// ErrNoOutput is returned when a job has not been converted.
	ErrNoOutput = errors.New("no converted output")

	// ErrInputReplaced is returned when output is stored for an upload that
	// a later upload has already replaced.
	ErrInputReplaced = errors.New("conversion input was replaced by a newer upload")
)

// =============================================================================
// JOB
// =============================================================================

// Input is what one upload call provides.
type Input struct {
	// Dataset is the single input of a single-file type.
	Dataset *types.Dataset

	// Key and Value are the inputs of a dual-file type.
	Key   *types.Dataset
	Value *types.Dataset

	// FileName is the original upload name, used for the output filename.
	FileName string

	// Currency is the caller's currency code, if given.
	Currency string
}

// Output is a converted artifact.
type Output struct {
	Data     []byte
	FileName string
	Rows     int
	Columns  []string
	Created  time.Time
}

// Job is a snapshot of a conversion job.
type Job struct {
	ID      string
	Route   doctype.Route
	Input   Input
	Output  *Output
	Created time.Time
	Touched time.Time

	// Generation counts uploads; output is accepted only for the
	// generation it was rendered from.
	Generation uint64
}

// HasInput reports whether anything was uploaded.
func (j *Job) HasInput() bool {
	return j.Input.Dataset != nil || j.Input.Key != nil || j.Input.Value != nil
}

// =============================================================================
// STORE
// =============================================================================

// Store is a concurrency-safe job registry.
type Store struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	ttl     time.Duration
	maxJobs int
	now     func() time.Time
}

// NewStore creates a store. ttl <= 0 disables expiry; maxJobs <= 0
// disables the capacity limit.
func NewStore(ttl time.Duration, maxJobs int) *Store {
	return &Store{
		jobs:    make(map[string]*Job),
		ttl:     ttl,
		maxJobs: maxJobs,
		now:     time.Now,
	}
}

// Upload stores in on a job and returns the job snapshot. An empty id
// creates a new job; otherwise the job's input is replaced and its output
// dropped.
func (s *Store) Upload(id string, route doctype.Route, in Input) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if id == "" {
		s.evictForCapacity()
		job := &Job{
			ID:         uuid.NewString(),
			Route:      route,
			Input:      in,
			Created:    now,
			Touched:    now,
			Generation: 1,
		}
		s.jobs[job.ID] = job
		return *job, nil
	}

	job, err := s.lookup(id, route)
	if err != nil {
		return Job{}, err
	}
	job.Input = in
	job.Output = nil
	job.Touched = now
	job.Generation++
	return *job, nil
}

// Get returns a snapshot of the job and refreshes its TTL.
func (s *Store) Get(id string, route doctype.Route) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.lookup(id, route)
	if err != nil {
		return Job{}, err
	}
	job.Touched = s.now()
	return *job, nil
}

// SetOutput stores a converted artifact rendered from upload generation.
// It fails with ErrInputReplaced when the job has been uploaded to since.
func (s *Store) SetOutput(id string, route doctype.Route, generation uint64, out *Output) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.lookup(id, route)
	if err != nil {
		return err
	}
	if job.Generation != generation {
		return ErrInputReplaced
	}
	job.Output = out
	job.Touched = s.now()
	return nil
}

// Output returns the job's converted artifact.
func (s *Store) Output(id string, route doctype.Route) (*Output, error) {
	job, err := s.Get(id, route)
	if err != nil {
		return nil, err
	}
	if job.Output == nil {
		return nil, ErrNoOutput
	}
	return job.Output, nil
}

// Delete removes a job. Unknown ids are ignored.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
}

// Len returns the number of live jobs.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Sweep removes expired jobs and returns how many were removed.
func (s *Store) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for id, job := range s.jobs {
		if job.Touched.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done. onSweep, when non-nil, is
// called with the number of jobs each sweep removed.
func (s *Store) Run(ctx context.Context, interval time.Duration, onSweep func(removed int)) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := s.Sweep()
			if onSweep != nil {
				onSweep(n)
			}
		}
	}
}

// lookup must be called with mu held.
func (s *Store) lookup(id string, route doctype.Route) (*Job, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	if s.ttl > 0 && s.now().Sub(job.Touched) > s.ttl {
		delete(s.jobs, id)
		return nil, ErrJobNotFound
	}
	if job.Route != route {
		return nil, ErrRouteMismatch
	}
	return job, nil
}

// evictForCapacity must be called with mu held.
func (s *Store) evictForCapacity() {
	if s.maxJobs <= 0 {
		return
	}
	for len(s.jobs) >= s.maxJobs {
		var oldest *Job
		for _, job := range s.jobs {
			if oldest == nil || job.Touched.Before(oldest.Touched) {
				oldest = job
			}
		}
		delete(s.jobs, oldest.ID)
	}
}
