package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/sequencer/pkg/schema"
)

// Task is the work a job performs on each run.
type Task func(ctx context.Context) error

// Run statuses recorded on a job after it runs.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// DefaultTickInterval is how often the loop looks for due jobs.
const DefaultTickInterval = 15 * time.Second

// Job is a named task on a cron schedule.
type Job struct {
	Name           string     `json:"name"`
	CronExpression string     `json:"cron_expression"`
	Enabled        bool       `json:"enabled"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	LastRunStatus  string     `json:"last_run_status,omitempty"`

	task Task
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTickInterval overrides DefaultTickInterval.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// Scheduler runs registered jobs when their cron schedule comes due.
type Scheduler struct {
	parser   cron.Parser
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	jobsMu sync.Mutex
	jobs   map[string]*Job

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]struct{} // job names currently executing (dedup)
}

// NewScheduler creates a new Scheduler.
func NewScheduler(logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		logger:   logger.With("component", "scheduler"),
		interval: DefaultTickInterval,
		now:      func() time.Time { return time.Now().UTC() },
		jobs:     make(map[string]*Job),
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddJob registers task under name. The first run is the next time
// cronExpr fires after now.
func (s *Scheduler) AddJob(name, cronExpr string, task Task) error {
	if strings.TrimSpace(name) == "" {
		return schema.NewError(schema.ErrCodeValidation, "job name is required")
	}
	if task == nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "job %q has no task", name)
	}
	next, err := s.CalculateNextRun(cronExpr, s.now())
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "job %q", name).WithCause(err)
	}

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	if _, ok := s.jobs[name]; ok {
		return schema.NewErrorf(schema.ErrCodeConflict, "job %q already registered", name)
	}
	s.jobs[name] = &Job{
		Name:           name,
		CronExpression: cronExpr,
		Enabled:        true,
		NextRunAt:      &next,
		task:           task,
	}
	s.logger.Info("job registered", slog.String("job", name), slog.String("cron", cronExpr), slog.Time("next_run_at", next))
	return nil
}

// RemoveJob unregisters a job. It reports whether the job existed.
func (s *Scheduler) RemoveJob(name string) bool {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	_, ok := s.jobs[name]
	delete(s.jobs, name)
	return ok
}

// SetEnabled pauses or resumes a job.
func (s *Scheduler) SetEnabled(name string, enabled bool) error {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	job, ok := s.jobs[name]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "job %q not found", name)
	}
	job.Enabled = enabled
	return nil
}

// Jobs returns a snapshot of the registered jobs sorted by name.
func (s *Scheduler) Jobs() []Job {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		cp := *job
		cp.task = nil
		out = append(out, cp)
	}
	slices.SortFunc(out, func(a, b Job) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Start launches the background scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx, s.done)
	s.logger.Info("scheduler started", slog.Duration("tick", s.interval))
	return nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// due returns the enabled jobs whose next run is at or before now.
func (s *Scheduler) due(now time.Time) []*Job {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	var out []*Job
	for _, job := range s.jobs {
		if !job.Enabled {
			continue
		}
		if job.NextRunAt == nil || !job.NextRunAt.After(now) {
			out = append(out, job)
		}
	}
	slices.SortFunc(out, func(a, b *Job) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// tick runs every due job once.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	for _, job := range s.due(now) {
		if !s.tryAcquire(job.Name) {
			continue // already running (dedup)
		}
		if err := s.runJob(ctx, job, now); err != nil {
			s.logger.Error("failed to run scheduled job",
				slog.String("job", job.Name),
				slog.String("error", err.Error()),
			)
		}
		s.releaseJob(job.Name)
	}
}

// runJob executes a job and updates its timestamps.
func (s *Scheduler) runJob(ctx context.Context, job *Job, now time.Time) error {
	s.logger.Debug("running scheduled job", slog.String("job", job.Name))

	status := StatusSuccess
	if err := job.task(ctx); err != nil {
		status = StatusError
		s.logger.Error("scheduled job execution failed",
			slog.String("job", job.Name),
			slog.String("error", err.Error()),
		)
	}
	return s.updateJobStatus(job, now, status)
}

func (s *Scheduler) updateJobStatus(job *Job, now time.Time, status string) error {
	nextRun, err := s.CalculateNextRun(job.CronExpression, now)
	if err != nil {
		return fmt.Errorf("calculate next run for job %q: %w", job.Name, err)
	}

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	job.LastRunAt = &now
	job.NextRunAt = &nextRun
	job.LastRunStatus = status
	return nil
}

// RunNow runs a job immediately, outside its schedule. Runs already in
// flight are not doubled: a conflict error is returned instead.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.jobsMu.Lock()
	job, ok := s.jobs[name]
	s.jobsMu.Unlock()
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "job %q not found", name)
	}
	if !s.tryAcquire(name) {
		return schema.NewErrorf(schema.ErrCodeConflict, "job %q is already running", name)
	}
	defer s.releaseJob(name)

	if err := job.task(ctx); err != nil {
		_ = s.updateJobStatus(job, s.now(), StatusError)
		return err
	}
	return s.updateJobStatus(job, s.now(), StatusSuccess)
}

// tryAcquire returns true and marks the job as in-flight if it is not already running.
func (s *Scheduler) tryAcquire(name string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[name]; ok {
		return false
	}
	s.inflight[name] = struct{}{}
	return true
}

// releaseJob removes the job from the in-flight set.
func (s *Scheduler) releaseJob(name string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, name)
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}

// RecoverMissed runs once every enabled job whose next run is already in the
// past, as happens after the process was suspended. It returns how many ran.
func (s *Scheduler) RecoverMissed(ctx context.Context) int {
	now := s.now()
	recovered := 0
	for _, job := range s.due(now) {
		if job.NextRunAt == nil || !job.NextRunAt.Before(now) {
			continue
		}
		if !s.tryAcquire(job.Name) {
			continue
		}
		if err := s.runJob(ctx, job, now); err != nil {
			s.logger.Error("failed to recover missed job",
				slog.String("job", job.Name),
				slog.String("error", err.Error()),
			)
			s.releaseJob(job.Name)
			continue
		}
		s.releaseJob(job.Name)
		recovered++
	}

	if recovered > 0 {
		s.logger.Info("recovered missed jobs", slog.Int("count", recovered))
	}
	return recovered
}
