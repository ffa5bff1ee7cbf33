package cli

import (
	"context"
	"fmt"

	"fuzzexp/config"
	"fuzzexp/internal/backend"
	"fuzzexp/internal/collector"
	"fuzzexp/internal/crashwatch"
	"fuzzexp/internal/notify"
	"fuzzexp/internal/registry"
	"fuzzexp/internal/runner"
	"fuzzexp/internal/scheduler"
	"fuzzexp/internal/tracing"
	"fuzzexp/pkg/database"
	"fuzzexp/pkg/logger"
	"fuzzexp/pkg/mq"
	"fuzzexp/pkg/telemetry"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every job of the experiment until all of them finished",
		RunE: func(cmd *cobra.Command, args []string) error {
			experiment, err := config.LoadExperimentConfig(appConfig.ExperimentConfigPath)
			if err != nil {
				return fmt.Errorf("load experiment config: %w", err)
			}
			return runApp(cmd.Context(), newApp(appConfig, experiment))
		},
	}
}

func asObserver(f any) any {
	return fx.Annotate(f,
		fx.As(new(scheduler.Observer)),
		fx.ResultTags(`group:"observers"`))
}

func asSink(f any) any {
	return fx.Annotate(f,
		fx.As(new(collector.ResultSink)),
		fx.ResultTags(`group:"sinks"`))
}

func newApp(appConfig *config.AppConfig, experiment *config.ExperimentConfig) *fx.App {
	options := []fx.Option{
		fx.Supply(appConfig, experiment),
		fx.Provide(
			logger.NewLogger,           // inject logger
			telemetry.NewTracerFactory, // inject telemetry tracer factory
			fx.Annotate(backend.NewDockerBackend, fx.As(new(backend.Backend))),
			runner.NewRunner,
			collector.NewCollector,
		),
		fx.Provide(
			asObserver(tracing.NewJobTracer),
			asObserver(crashwatch.NewWatcher),
			asObserver(registry.NewMirror),
			asSink(database.NewResultRepository),
			asSink(notify.NewPublisher),
		),
		scheduler.Module,
		fx.StopTimeout(appConfig.ShutdownTimeout),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			zlogger := fxevent.ZapLogger{Logger: log}
			zlogger.UseLogLevel(zap.DebugLevel)
			return &zlogger
		}),
	}

	// optional integrations
	if appConfig.TelemetryEnabled() {
		options = append(options, fx.Provide(telemetry.NewTelemetry))
	}
	if appConfig.RedisEnabled() {
		options = append(options, fx.Provide(database.NewRedisClient))
	}
	if appConfig.DatabaseEnabled() {
		options = append(options, fx.Provide(database.NewDBConnection))
	}
	if appConfig.RabbitMQEnabled() {
		options = append(options, fx.Provide(mq.NewRabbitMQ))
	}

	return fx.New(options...)
}

// runApp blocks until the scheduler shut the app down or the process got a signal.
func runApp(ctx context.Context, app *fx.App) error {
	if ctx == nil {
		ctx = context.Background()
	}
	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	signal := <-app.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	if signal.ExitCode != 0 {
		return fmt.Errorf("experiment stopped with exit code %d", signal.ExitCode)
	}
	return nil
}
