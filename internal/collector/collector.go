package collector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"time"

	"fuzzexp/config"
	"fuzzexp/internal/backend"
	"fuzzexp/internal/types"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	LogFileName      = "docker.log"
	ExitCodeFileName = "docker.exitcode"
	NativeSubdir     = "default" // AFL++ puts its output tree under default/
)

var ErrCleanupFailure = errors.New("cleanup failed")

// ResultSink receives every collected result. Sinks must not fail the run.
type ResultSink interface {
	Name() string
	Record(ctx context.Context, result types.Result) error
}

type Collector struct {
	cfg    *config.ExperimentConfig
	logger *zap.Logger
	sinks  []ResultSink
	now    func() time.Time
}

type CollectorParams struct {
	fx.In

	Config *config.ExperimentConfig
	Logger *zap.Logger
	Sinks  []ResultSink `group:"sinks"`
}

func NewCollector(p CollectorParams) *Collector {
	sinks := make([]ResultSink, 0, len(p.Sinks))
	for _, sink := range p.Sinks {
		sinkV := reflect.ValueOf(sink)
		if sink == nil || (sinkV.Kind() == reflect.Ptr && sinkV.IsNil()) {
			continue // integration not configured
		}
		sinks = append(sinks, sink)
		p.Logger.Debug("result sink registered", zap.String("sink", sink.Name()))
	}
	return &Collector{
		cfg:    p.Config,
		logger: p.Logger.Named("collector"),
		sinks:  sinks,
		now:    time.Now,
	}
}

// ResultDir is where the job's log lands: the fuzzer-native subdirectory
// when the fuzzer created one, else the trial directory itself.
func ResultDir(trialDir string) string {
	native := filepath.Join(trialDir, NativeSubdir)
	if info, err := os.Stat(native); err == nil && info.IsDir() {
		return native
	}
	return trialDir
}

// Collect persists logs and exit status of a terminal job and disposes of the
// backend instance when the job exited cleanly. Every failure in here is logged
// and reflected in the result; none is returned.
func (c *Collector) Collect(ctx context.Context, a types.JobAssignment, handle backend.Handle) types.Result {
	job := a.Job
	logger := c.logger.With(zap.String("job", job.Name()))
	outDir := ResultDir(job.OutputDir(c.cfg.ResultsFolder))

	result := types.Result{
		Job:        job,
		State:      types.Completed,
		ExitStatus: backend.MissingExitStatus,
		CPU:        a.CPU,
		GPU:        a.GPU,
		StartedAt:  a.Start,
		FinishedAt: c.now(),
	}

	logs, err := handle.FetchLogs(ctx)
	if err != nil {
		logger.Warn("failed to fetch logs, log file may be incomplete", zap.Error(err))
	}
	logPath := filepath.Join(outDir, LogFileName)
	if err := os.WriteFile(logPath, logs, 0644); err != nil {
		logger.Warn("failed to write log file", zap.String("path", logPath), zap.Error(err))
	} else {
		result.LogPath = logPath
	}

	exitStatus, err := handle.ExitStatus(ctx)
	if err != nil {
		logger.Warn("failed to read exit status", zap.Error(err))
	}
	result.ExitStatus = exitStatus
	exitPath := filepath.Join(outDir, ExitCodeFileName)
	if err := os.WriteFile(exitPath, []byte(strconv.Itoa(exitStatus)+"\n"), 0644); err != nil {
		logger.Warn("failed to write exit status", zap.String("path", exitPath), zap.Error(err))
	}

	if exitStatus != 0 {
		// keep the instance around for triage
		logger.Warn("container exited with nonzero code", zap.Int("exit_code", exitStatus))
	} else if err := handle.Dispose(ctx); err != nil {
		logger.Warn("failed to dispose backend instance",
			zap.Error(fmt.Errorf("%w: %w", ErrCleanupFailure, err)))
	} else {
		result.Disposed = true
		result.State = types.Cleaned
	}

	if stats, err := readFuzzerStats(outDir); err == nil {
		result.Stats = stats
	} else if !os.IsNotExist(err) {
		logger.Debug("failed to read fuzzer stats", zap.Error(err))
	}
	result.CrashCount = countCrashes(outDir)

	for _, sink := range c.sinks {
		if err := sink.Record(ctx, result); err != nil {
			logger.Warn("failed to record result", zap.String("sink", sink.Name()), zap.Error(err))
		}
	}

	logger.Info("job finished",
		zap.String("state", result.State.String()),
		zap.Int("exit_code", result.ExitStatus),
		zap.Int("crashes", result.CrashCount),
		zap.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)),
	)
	return result
}
