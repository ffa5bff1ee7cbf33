package scheduler

import (
	"context"
	"errors"

	"fuzzexp/config"
	"fuzzexp/internal/catalog"
	"fuzzexp/internal/collector"
	"fuzzexp/internal/resource"
	"fuzzexp/internal/runner"
	"fuzzexp/internal/types"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewRunID() types.RunID {
	return types.RunID(uuid.New().String())
}

type SchedulerParams struct {
	fx.In

	Config    *config.ExperimentConfig
	Logger    *zap.Logger
	RunID     types.RunID
	Runner    *runner.Runner
	Collector *collector.Collector
	Observers []Observer `group:"observers"`
}

// NewScheduler expands the catalog and builds the loop for this experiment.
func NewScheduler(p SchedulerParams) (*Scheduler, error) {
	if err := catalog.EnsureSeeds(p.Config, p.Logger); err != nil {
		return nil, err
	}
	jobs, err := catalog.Expand(p.Config)
	if err != nil {
		return nil, err
	}

	pools := resource.NewPools(p.Config.NCPUs, p.Config.NGPUs, p.Config.UseGPU)
	return New(jobs, pools, p.Runner, p.Collector, p.Observers, p.Logger, Options{
		RunID:         p.RunID,
		ResultsFolder: p.Config.ResultsFolder,
		PollInterval:  p.Config.PollInterval,
	}), nil
}

type LifecycleParams struct {
	fx.In

	Lc         fx.Lifecycle
	Shutdowner fx.Shutdowner
	Logger     *zap.Logger
	Scheduler  *Scheduler
}

// RegisterLifecycle runs the loop once the app has started and shuts the app
// down as soon as every job is finished.
func RegisterLifecycle(p LifecycleParams) {
	schedulerCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer close(done)
				_, err := p.Scheduler.Run(schedulerCtx)
				exitCode := 0
				if err != nil && !errors.Is(err, context.Canceled) {
					p.Logger.Error("scheduler stopped", zap.Error(err))
					exitCode = 1
				}
				if err := p.Shutdowner.Shutdown(fx.ExitCode(exitCode)); err != nil {
					p.Logger.Error("failed to shut down", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		},
	})
}

var Module = fx.Options(
	fx.Provide(
		NewRunID,
		NewScheduler,
	),
	fx.Invoke(RegisterLifecycle),
)
