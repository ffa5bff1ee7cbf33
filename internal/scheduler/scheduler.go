package scheduler

import (
	"context"
	"os"
	"reflect"
	"time"

	"fuzzexp/internal/backend"
	"fuzzexp/internal/resource"
	"fuzzexp/internal/types"

	"go.uber.org/zap"
)

// Launcher starts a job without waiting for it (see runner.Runner).
type Launcher interface {
	Launch(ctx context.Context, a types.JobAssignment) (backend.Handle, error)
}

// Collector harvests a terminal job (see collector.Collector).
type Collector interface {
	Collect(ctx context.Context, a types.JobAssignment, handle backend.Handle) types.Result
}

// Observer is told about every job state change, synchronously, from the loop.
// Observers must return quickly and must not call back into the scheduler.
type Observer interface {
	JobTransition(ctx context.Context, a types.JobAssignment, from, to types.JobState)
}

// RunObserver is optionally implemented by observers that care about the whole run.
type RunObserver interface {
	RunStarted(ctx context.Context, runID types.RunID, total int)
	RunFinished(ctx context.Context, runID types.RunID, summary Summary)
}

type Summary struct {
	Total          int `json:"total"`
	Launched       int `json:"launched"`
	LaunchFailures int `json:"launch_failures"`
	Cleaned        int `json:"cleaned"`
	Completed      int `json:"completed"`
	Failed         int `json:"failed"` // nonzero exit status
	Dropped        int `json:"dropped"`
}

// pollFailureThreshold is the number of consecutive failed status polls after
// which a job is reported as stalled.
const pollFailureThreshold = 5

type Options struct {
	RunID         types.RunID
	ResultsFolder string
	PollInterval  time.Duration
}

// Scheduler is the single-threaded admission and completion loop. It owns the
// pending queue, the running registry, and the resource pools; nothing else
// mutates them, so none of them is locked.
type Scheduler struct {
	opts      Options
	pending   []types.Job
	running   *registry
	states    map[types.JobID]types.JobState
	pools     *resource.Pools
	launcher  Launcher
	collector Collector
	observers []Observer
	logger    *zap.Logger
	summary   Summary

	pollFailures map[types.JobID]int

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func New(jobs []types.Job, pools *resource.Pools, launcher Launcher, collector Collector, observers []Observer, logger *zap.Logger, opts Options) *Scheduler {
	pending := make([]types.Job, 0, len(jobs))
	states := make(map[types.JobID]types.JobState, len(jobs))
	for _, job := range jobs {
		if _, ok := states[job.ID()]; ok {
			// a second instance would share the first one's name and output folder
			logger.Error("duplicate job ignored", zap.String("job", job.Name()))
			continue
		}
		states[job.ID()] = types.Pending
		pending = append(pending, job)
	}

	active := make([]Observer, 0, len(observers))
	for _, o := range observers {
		oV := reflect.ValueOf(o)
		if o == nil || (oV.Kind() == reflect.Ptr && oV.IsNil()) {
			continue
		}
		active = append(active, o)
	}

	return &Scheduler{
		opts:      opts,
		pending:   pending,
		running:   newRegistry(),
		states:    states,
		pools:     pools,
		launcher:  launcher,
		collector: collector,
		observers: active,
		logger:    logger.With(zap.String("run_id", string(opts.RunID))),
		summary:   Summary{Total: len(pending)},
		sleep:     sleepContext,
		now:       time.Now,

		pollFailures: make(map[types.JobID]int),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run drives every job to a terminal state and returns once the pending queue
// and the running registry are both empty. The context is only cancelled on
// process shutdown; jobs still running at that point are left to the backend.
func (s *Scheduler) Run(ctx context.Context) (Summary, error) {
	s.logger.Info("jobs to create", zap.Int("count", len(s.pending)))
	for _, o := range s.observers {
		if ro, ok := o.(RunObserver); ok {
			ro.RunStarted(ctx, s.opts.RunID, s.summary.Total)
		}
	}

	for {
		s.sweep(ctx)

		if len(s.pending) == 0 && s.running.len() == 0 {
			break
		}

		if len(s.pending) == 0 || !s.pools.CanAdmit() {
			if err := s.sleep(ctx, s.opts.PollInterval); err != nil {
				s.logger.Warn("scheduler interrupted",
					zap.Int("pending", len(s.pending)),
					zap.Int("running", s.running.len()),
					zap.Error(err))
				return s.summary, err
			}
			continue
		}

		s.admitNext(ctx)
	}

	for _, o := range s.observers {
		if ro, ok := o.(RunObserver); ok {
			ro.RunFinished(ctx, s.opts.RunID, s.summary)
		}
	}
	s.logger.Info("all jobs finished",
		zap.Int("cleaned", s.summary.Cleaned),
		zap.Int("completed", s.summary.Completed),
		zap.Int("failed", s.summary.Failed),
		zap.Int("dropped", s.summary.Dropped),
	)
	return s.summary, nil
}

// sweep polls every running job, then harvests the terminal ones. Terminal jobs
// are collected first and handled afterwards so the registry is never changed
// while it is being scanned.
func (s *Scheduler) sweep(ctx context.Context) {
	var finished []runningEntry
	for _, e := range s.running.snapshot() {
		id := e.assignment.Job.ID()
		terminal, err := e.handle.IsTerminal(ctx)
		if err != nil {
			s.pollFailures[id]++
			failures := s.pollFailures[id]
			fields := []zap.Field{
				zap.String("job", e.assignment.Job.Name()),
				zap.Int("consecutive_failures", failures),
				zap.Error(err),
			}
			if failures >= pollFailureThreshold {
				s.logger.Error("job status unavailable, job keeps its resources", fields...)
			} else {
				s.logger.Warn("failed to poll job status", fields...)
			}
			continue
		}
		delete(s.pollFailures, id)
		if terminal {
			finished = append(finished, e)
		}
	}

	for _, e := range finished {
		job := e.assignment.Job
		s.logger.Info("job finished running", zap.String("job", job.Name()))

		result := s.collector.Collect(ctx, e.assignment, e.handle)

		if err := s.pools.Free(e.assignment); err != nil {
			s.logger.Error("failed to release resources", zap.String("job", job.Name()), zap.Error(err))
		}
		s.running.remove(job.ID())

		final := result.State
		if final != types.Cleaned {
			final = types.Completed
		}
		s.transition(ctx, e.assignment, final)

		switch final {
		case types.Cleaned:
			s.summary.Cleaned++
		default:
			s.summary.Completed++
		}
		if result.Failed() {
			s.summary.Failed++
		}
	}
	if len(finished) > 0 {
		s.checkInvariant()
	}
}

// admitNext pops the queue head and launches it. Callers guarantee there is a
// pending job and that the pools can admit it.
func (s *Scheduler) admitNext(ctx context.Context) {
	job := s.pending[0]
	s.pending = s.pending[1:]
	logger := s.logger.With(zap.String("job", job.Name()))

	assignment, err := s.pools.Assign(job)
	if err != nil {
		// unreachable behind CanAdmit; keep the job and retry on the next round
		logger.Error("admission without free resources", zap.Error(err))
		s.pending = append([]types.Job{job}, s.pending...)
		return
	}
	assignment.Start = s.now()

	outputDir := job.OutputDir(s.opts.ResultsFolder)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		logger.Warn("failed to create output folder, skipping job", zap.String("path", outputDir), zap.Error(err))
		s.drop(ctx, assignment)
		return
	}

	if assignment.HasGPU() {
		logger.Info("running experiment", zap.Int("core", assignment.CPU), zap.Int("gpu", *assignment.GPU))
	} else {
		logger.Info("running experiment", zap.Int("core", assignment.CPU))
	}

	handle, err := s.launcher.Launch(ctx, assignment)
	if err != nil {
		if handle == nil {
			logger.Warn("job could not be submitted, skipping job", zap.Error(err))
			s.drop(ctx, assignment)
			return
		}
		// the outcome is known only once the instance is polled
		logger.Warn("job submission returned an error, tracking it anyway", zap.Error(err))
		s.summary.LaunchFailures++
	}

	if err := s.running.add(runningEntry{assignment, handle}); err != nil {
		logger.Error("failed to register job", zap.Error(err))
		s.drop(ctx, assignment)
		return
	}
	s.summary.Launched++
	s.transition(ctx, assignment, types.Running)
	s.checkInvariant()
}

// drop gives back the resources of a job that will never run.
func (s *Scheduler) drop(ctx context.Context, a types.JobAssignment) {
	if err := s.pools.Free(a); err != nil {
		s.logger.Error("failed to release resources", zap.String("job", a.Job.Name()), zap.Error(err))
	}
	s.summary.Dropped++
	s.transition(ctx, a, types.Dropped)
	s.checkInvariant()
}

func (s *Scheduler) transition(ctx context.Context, a types.JobAssignment, to types.JobState) {
	id := a.Job.ID()
	from := s.states[id]
	if _, err := types.Transition(from, to); err != nil {
		s.logger.Error("job state machine violated", zap.String("job", a.Job.Name()), zap.Error(err))
		return
	}
	s.states[id] = to
	for _, o := range s.observers {
		o.JobTransition(ctx, a, from, to)
	}
}

func (s *Scheduler) checkInvariant() {
	if err := s.pools.Check(); err != nil {
		s.logger.Error("resource pools inconsistent", zap.Error(err))
	}
}

// State reports the current state of a job.
func (s *Scheduler) State(id types.JobID) (types.JobState, bool) {
	state, ok := s.states[id]
	return state, ok
}
