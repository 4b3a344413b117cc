package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/sequencer/pkg/schema"
)

// counter is a Task that records how often it ran.
type counter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *counter) run(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.err
}

func (c *counter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

var epoch = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

// newTestScheduler returns a scheduler whose clock is driven by the test.
func newTestScheduler() (*Scheduler, *time.Time) {
	now := epoch
	s := NewScheduler(slog.Default())
	s.now = func() time.Time { return now }
	return s, &now
}

func TestCalculateNextRun(t *testing.T) {
	sched, _ := newTestScheduler()
	from := epoch

	next, err := sched.CalculateNextRun("0 * * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 10, 13, 0, 0, 0, time.UTC), next)

	next, err = sched.CalculateNextRun("*/15 * * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 10, 12, 15, 0, 0, time.UTC), next)

	next, err = sched.CalculateNextRun("@every 30s", from)
	require.NoError(t, err)
	assert.Equal(t, from.Add(30*time.Second), next)

	_, err = sched.CalculateNextRun("invalid cron", from)
	require.Error(t, err)
}

func TestAddJob(t *testing.T) {
	sched, _ := newTestScheduler()
	c := &counter{}

	require.NoError(t, sched.AddJob("flush", "*/5 * * * *", c.run))

	err := sched.AddJob("flush", "*/5 * * * *", c.run)
	assert.True(t, schema.HasCode(err, schema.ErrCodeConflict))

	err = sched.AddJob("bad", "not a cron", c.run)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))

	err = sched.AddJob("", "* * * * *", c.run)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))

	err = sched.AddJob("nil", "* * * * *", nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))

	jobs := sched.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "flush", jobs[0].Name)
	assert.True(t, jobs[0].Enabled)
	require.NotNil(t, jobs[0].NextRunAt)
	assert.Equal(t, epoch.Add(5*time.Minute), *jobs[0].NextRunAt)
	assert.Nil(t, jobs[0].LastRunAt)
}

func TestTickRunsDueJobs(t *testing.T) {
	sched, now := newTestScheduler()
	c := &counter{}
	require.NoError(t, sched.AddJob("flush", "0 * * * *", c.run))

	sched.tick(context.Background())
	assert.Zero(t, c.count(), "not due yet")

	*now = epoch.Add(time.Hour)
	sched.tick(context.Background())
	assert.Equal(t, 1, c.count())

	job := sched.Jobs()[0]
	require.NotNil(t, job.LastRunAt)
	assert.Equal(t, epoch.Add(time.Hour), *job.LastRunAt)
	assert.Equal(t, epoch.Add(2*time.Hour), *job.NextRunAt)
	assert.Equal(t, StatusSuccess, job.LastRunStatus)

	// Same instant again: next run moved forward, so nothing happens.
	sched.tick(context.Background())
	assert.Equal(t, 1, c.count())
}

func TestJobRunFailure(t *testing.T) {
	sched, now := newTestScheduler()
	c := &counter{err: errors.New("disk full")}
	require.NoError(t, sched.AddJob("flush", "0 * * * *", c.run))

	*now = epoch.Add(time.Hour)
	sched.tick(context.Background())

	job := sched.Jobs()[0]
	assert.Equal(t, StatusError, job.LastRunStatus)
	assert.Equal(t, epoch.Add(2*time.Hour), *job.NextRunAt)
}

func TestDisabledJobsSkipped(t *testing.T) {
	sched, now := newTestScheduler()
	c := &counter{}
	require.NoError(t, sched.AddJob("flush", "0 * * * *", c.run))
	require.NoError(t, sched.SetEnabled("flush", false))

	*now = epoch.Add(time.Hour)
	sched.tick(context.Background())
	assert.Zero(t, c.count())

	require.NoError(t, sched.SetEnabled("flush", true))
	sched.tick(context.Background())
	assert.Equal(t, 1, c.count())

	err := sched.SetEnabled("missing", true)
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestMultipleJobsSomeDue(t *testing.T) {
	sched, now := newTestScheduler()
	hourly, daily := &counter{}, &counter{}
	require.NoError(t, sched.AddJob("hourly", "0 * * * *", hourly.run))
	require.NoError(t, sched.AddJob("daily", "0 0 * * *", daily.run))

	*now = epoch.Add(time.Hour)
	sched.tick(context.Background())

	assert.Equal(t, 1, hourly.count())
	assert.Zero(t, daily.count())
}

func TestDedupPreventsDoubleRun(t *testing.T) {
	sched, now := newTestScheduler()
	c := &counter{}
	require.NoError(t, sched.AddJob("flush", "0 * * * *", c.run))
	*now = epoch.Add(time.Hour)

	// Simulate an in-flight execution.
	assert.True(t, sched.tryAcquire("flush"))
	assert.False(t, sched.tryAcquire("flush"))

	sched.tick(context.Background())
	assert.Zero(t, c.count())

	err := sched.RunNow(context.Background(), "flush")
	assert.True(t, schema.HasCode(err, schema.ErrCodeConflict))

	sched.releaseJob("flush")
	sched.tick(context.Background())
	assert.Equal(t, 1, c.count())
}

func TestRunNow(t *testing.T) {
	sched, _ := newTestScheduler()
	c := &counter{}
	require.NoError(t, sched.AddJob("flush", "0 * * * *", c.run))

	require.NoError(t, sched.RunNow(context.Background(), "flush"))
	assert.Equal(t, 1, c.count())
	assert.Equal(t, StatusSuccess, sched.Jobs()[0].LastRunStatus)

	c.err = errors.New("boom")
	require.Error(t, sched.RunNow(context.Background(), "flush"))
	assert.Equal(t, StatusError, sched.Jobs()[0].LastRunStatus)

	err := sched.RunNow(context.Background(), "missing")
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestRemoveJob(t *testing.T) {
	sched, now := newTestScheduler()
	c := &counter{}
	require.NoError(t, sched.AddJob("flush", "0 * * * *", c.run))

	assert.True(t, sched.RemoveJob("flush"))
	assert.False(t, sched.RemoveJob("flush"))

	*now = epoch.Add(time.Hour)
	sched.tick(context.Background())
	assert.Zero(t, c.count())
	assert.Empty(t, sched.Jobs())
}

func TestMissedRecovery(t *testing.T) {
	sched, now := newTestScheduler()
	c := &counter{}
	require.NoError(t, sched.AddJob("flush", "0 * * * *", c.run))

	assert.Zero(t, sched.RecoverMissed(context.Background()))

	// Suspended across several scheduled runs: one catch-up run only.
	*now = epoch.Add(5*time.Hour + time.Minute)
	assert.Equal(t, 1, sched.RecoverMissed(context.Background()))
	assert.Equal(t, 1, c.count())
	assert.Equal(t, epoch.Add(6*time.Hour), *sched.Jobs()[0].NextRunAt)
}

func TestStartStop(t *testing.T) {
	sched := NewScheduler(slog.Default(), WithTickInterval(10*time.Millisecond))
	var runs atomic.Int32
	require.NoError(t, sched.AddJob("tick", "@every 1s", func(context.Context) error {
		runs.Add(1)
		return nil
	}))
	// Make it due right away.
	sched.jobsMu.Lock()
	sched.jobs["tick"].NextRunAt = nil
	sched.jobsMu.Unlock()

	ctx := context.Background()
	require.NoError(t, sched.Start(ctx))

	err := sched.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")

	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, sched.Stop())
	require.NoError(t, sched.Stop())
}

type fakeSaver struct {
	n   int
	err error
	hit int
}

func (f *fakeSaver) SaveDirty(context.Context) (int, error) {
	f.hit++
	return f.n, f.err
}

func TestAutosave(t *testing.T) {
	saver := &fakeSaver{n: 2}
	task := Autosave(saver, nil)
	require.NoError(t, task(context.Background()))
	assert.Equal(t, 1, saver.hit)

	saver.err = errors.New("locked")
	assert.EqualError(t, task(context.Background()), "locked")
}
