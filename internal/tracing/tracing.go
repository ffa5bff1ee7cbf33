package tracing

import (
	"context"
	"fmt"

	"fuzzexp/internal/scheduler"
	"fuzzexp/internal/types"
	"fuzzexp/pkg/telemetry"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// JobTracer opens one span for the whole run and a child span per job,
// from admission to its terminal state.
type JobTracer struct {
	factory *telemetry.TracerFactory
	logger  *zap.Logger

	run  telemetry.Tracer
	jobs map[types.JobID]telemetry.Tracer
}

type JobTracerParams struct {
	fx.In

	Factory *telemetry.TracerFactory
	Logger  *zap.Logger
}

// NewJobTracer returns nil when telemetry is disabled, so the scheduler skips it.
func NewJobTracer(p JobTracerParams) *JobTracer {
	if !p.Factory.Enabled() {
		return nil
	}
	return &JobTracer{
		factory: p.Factory,
		logger:  p.Logger.Named("tracing"),
		jobs:    make(map[types.JobID]telemetry.Tracer),
	}
}

func (t *JobTracer) RunStarted(ctx context.Context, runID types.RunID, total int) {
	t.run = t.factory.NewTracer(ctx, "fuzzing experiment").
		WithAttributes(telemetry.NewSpanAttributes(telemetry.Experiment).
			WithRunID(string(runID)).
			WithExtraAttribute("experiment.jobs.total", total))
	t.run.Start()
}

func (t *JobTracer) RunFinished(ctx context.Context, runID types.RunID, summary scheduler.Summary) {
	if t.run == nil {
		return
	}
	t.run.WithAttributes(telemetry.EmptySpanAttributes().WithExtraAttributes(map[string]any{
		"experiment.jobs.cleaned":   summary.Cleaned,
		"experiment.jobs.completed": summary.Completed,
		"experiment.jobs.failed":    summary.Failed,
		"experiment.jobs.dropped":   summary.Dropped,
	}))
	if summary.Failed > 0 || summary.Dropped > 0 {
		t.run.SetStatus(codes.Error, fmt.Sprintf("%d failed, %d dropped", summary.Failed, summary.Dropped))
	}
	t.run.End()
	t.run = nil
}

func (t *JobTracer) JobTransition(ctx context.Context, a types.JobAssignment, from, to types.JobState) {
	if t.run == nil {
		t.logger.Debug("job transition outside of a traced run", zap.String("job", a.Job.Name()))
		return
	}
	job := a.Job
	switch to {
	case types.Running:
		attrs := telemetry.NewSpanAttributes(telemetry.Fuzzing).
			WithJob(job.Target, job.Fuzzer.String(), job.Trial, job.RNGSeed).
			WithCPU(a.CPU)
		if a.GPU != nil {
			attrs = attrs.WithGPU(*a.GPU)
		}
		span := t.run.Spawn(fmt.Sprintf("fuzzing %s", job.Name())).WithAttributes(attrs)
		span.Start()
		t.jobs[job.ID()] = span

	case types.Dropped:
		t.run.AddEvent("job_dropped", telemetry.NewEventAttributes(map[string]string{
			"job": job.Name(),
		}))

	case types.Completed, types.Cleaned:
		span, ok := t.jobs[job.ID()]
		if !ok {
			return
		}
		delete(t.jobs, job.ID())
		span.AddEvent("job_finished", telemetry.NewEventAttributes(map[string]string{
			"state": to.String(),
		}))
		if to == types.Completed {
			span.SetStatus(codes.Error, "job did not exit cleanly")
		}
		span.End()
	}
}
