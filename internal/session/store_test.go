package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ginjaninja78/accounting-export-converter/internal/doctype"
	"github.com/ginjaninja78/accounting-export-converter/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestStore(ttl time.Duration, max int) (*Store, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)}
	s := NewStore(ttl, max)
	s.now = clock.Now
	return s, clock
}

func route(t *testing.T, slug string) doctype.Route {
	t.Helper()
	r, err := doctype.ParseRoute("au-myob-xero", "single", slug)
	require.NoError(t, err)
	return r
}

func dataset(values ...string) *types.Dataset {
	ds := &types.Dataset{}
	for _, v := range values {
		ds.Rows = append(ds.Rows, types.RowOf("Code", v))
	}
	return ds
}

func TestSecondUploadDiscardsFirst(t *testing.T) {
	s, _ := newTestStore(time.Hour, 10)
	coa := route(t, "coa")

	job, err := s.Upload("", coa, Input{Dataset: dataset("1", "2"), FileName: "first.csv"})
	require.NoError(t, err)
	require.NoError(t, s.SetOutput(job.ID, coa, job.Generation, &Output{Data: []byte("x")}))

	_, err = s.Upload(job.ID, coa, Input{Dataset: dataset("3"), FileName: "second.csv"})
	require.NoError(t, err)

	got, err := s.Get(job.ID, coa)
	require.NoError(t, err)
	assert.Equal(t, "second.csv", got.Input.FileName)
	assert.Equal(t, 1, got.Input.Dataset.Len())
	assert.Nil(t, got.Output, "a new upload discards the previous output")

	_, err = s.Output(job.ID, coa)
	assert.ErrorIs(t, err, ErrNoOutput)
}

func TestOutputFromReplacedUploadIsRejected(t *testing.T) {
	s, _ := newTestStore(time.Hour, 10)
	coa := route(t, "coa")

	job, err := s.Upload("", coa, Input{Dataset: dataset("old"), FileName: "old.csv"})
	require.NoError(t, err)
	snapshot, err := s.Get(job.ID, coa)
	require.NoError(t, err)

	replaced, err := s.Upload(job.ID, coa, Input{Dataset: dataset("new"), FileName: "new.csv"})
	require.NoError(t, err)
	assert.Greater(t, replaced.Generation, snapshot.Generation)

	err = s.SetOutput(job.ID, coa, snapshot.Generation, &Output{Data: []byte("rendered from old")})
	assert.ErrorIs(t, err, ErrInputReplaced)

	_, err = s.Output(job.ID, coa)
	assert.ErrorIs(t, err, ErrNoOutput)

	require.NoError(t, s.SetOutput(job.ID, coa, replaced.Generation, &Output{Data: []byte("rendered from new")}))
	out, err := s.Output(job.ID, coa)
	require.NoError(t, err)
	assert.Equal(t, "rendered from new", string(out.Data))
}

func TestJobsAreIsolated(t *testing.T) {
	s, _ := newTestStore(time.Hour, 10)
	coa := route(t, "coa")

	a, err := s.Upload("", coa, Input{Dataset: dataset("a")})
	require.NoError(t, err)
	b, err := s.Upload("", coa, Input{Dataset: dataset("b1", "b2")})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	got, err := s.Get(a.ID, coa)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Input.Dataset.Rows[0].Str("Code"))
}

func TestRouteBinding(t *testing.T) {
	s, _ := newTestStore(time.Hour, 10)

	job, err := s.Upload("", route(t, "coa"), Input{Dataset: dataset("1")})
	require.NoError(t, err)

	_, err = s.Get(job.ID, route(t, "invoice"))
	assert.ErrorIs(t, err, ErrRouteMismatch)

	_, err = s.Upload("missing", route(t, "coa"), Input{})
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestTTLExpiry(t *testing.T) {
	s, clock := newTestStore(time.Hour, 10)
	coa := route(t, "coa")

	old, _ := s.Upload("", coa, Input{Dataset: dataset("1")})
	clock.Advance(40 * time.Minute)
	fresh, _ := s.Upload("", coa, Input{Dataset: dataset("2")})
	clock.Advance(30 * time.Minute)

	assert.Equal(t, 1, s.Sweep())
	_, err := s.Get(old.ID, coa)
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = s.Get(fresh.ID, coa)
	assert.NoError(t, err)
}

func TestCapacityEvictsLeastRecentlyTouched(t *testing.T) {
	s, clock := newTestStore(0, 2)
	coa := route(t, "coa")

	first, _ := s.Upload("", coa, Input{})
	clock.Advance(time.Second)
	second, _ := s.Upload("", coa, Input{})
	clock.Advance(time.Second)
	_, err := s.Get(first.ID, coa)
	require.NoError(t, err)
	clock.Advance(time.Second)

	third, _ := s.Upload("", coa, Input{})

	assert.Equal(t, 2, s.Len())
	_, err = s.Get(second.ID, coa)
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = s.Get(first.ID, coa)
	assert.NoError(t, err)
	_, err = s.Get(third.ID, coa)
	assert.NoError(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	s := NewStore(time.Nanosecond, 0)
	_, err := s.Upload("", route(t, "coa"), Input{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var removed atomic.Int64
	done := make(chan struct{})
	go func() {
		s.Run(ctx, time.Millisecond, func(n int) { removed.Add(int64(n)) })
		close(done)
	}()

	assert.Eventually(t, func() bool { return removed.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestConcurrentUploads(t *testing.T) {
	s, _ := newTestStore(time.Hour, 0)
	coa := route(t, "coa")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := s.Upload("", coa, Input{Dataset: dataset("x")})
			assert.NoError(t, err)
			assert.NoError(t, s.SetOutput(job.ID, coa, job.Generation, &Output{Rows: 1}))
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, s.Len())
}
