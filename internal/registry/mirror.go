package registry

import (
	"context"
	"fmt"
	"time"

	"fuzzexp/internal/scheduler"
	"fuzzexp/internal/types"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	RunsKey      = "fuzzexp:runs"
	writeTimeout = 2 * time.Second
	keyTTL       = 7 * 24 * time.Hour
)

func JobsKey(runID types.RunID) string {
	return fmt.Sprintf("fuzzexp:%s:jobs", runID)
}

func SummaryKey(runID types.RunID) string {
	return fmt.Sprintf("fuzzexp:%s:summary", runID)
}

// store is the part of the redis client the mirror writes through.
type store interface {
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// Mirror publishes the job registry of the current run to redis so that other
// tools can follow an experiment while it runs. Redis is never read back.
type Mirror struct {
	client store
	runID  types.RunID
	logger *zap.Logger
}

type MirrorParams struct {
	fx.In

	Client *redis.Client `optional:"true"`
	RunID  types.RunID
	Logger *zap.Logger
}

// NewMirror returns nil when redis is not configured.
func NewMirror(p MirrorParams) *Mirror {
	if p.Client == nil {
		return nil
	}
	return newMirror(p.Client, p.RunID, p.Logger)
}

func newMirror(client store, runID types.RunID, logger *zap.Logger) *Mirror {
	return &Mirror{
		client: client,
		runID:  runID,
		logger: logger.Named("registry-mirror"),
	}
}

func (m *Mirror) RunStarted(ctx context.Context, runID types.RunID, total int) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := m.client.SAdd(ctx, RunsKey, string(runID)).Err(); err != nil {
		m.logger.Warn("failed to register run", zap.String("run_id", string(runID)), zap.Error(err))
		return
	}
	if err := m.client.HSet(ctx, SummaryKey(runID),
		"total", total,
		"started_at", time.Now().UTC().Format(time.RFC3339),
	).Err(); err != nil {
		m.logger.Warn("failed to write run summary", zap.Error(err))
	}
}

func (m *Mirror) JobTransition(ctx context.Context, a types.JobAssignment, from, to types.JobState) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	key := JobsKey(m.runID)
	if err := m.client.HSet(ctx, key, a.Job.Name(), to.String()).Err(); err != nil {
		m.logger.Warn("failed to mirror job state",
			zap.String("job", a.Job.Name()),
			zap.Stringer("state", to),
			zap.Error(err))
	}
}

func (m *Mirror) RunFinished(ctx context.Context, runID types.RunID, summary scheduler.Summary) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := m.client.HSet(ctx, SummaryKey(runID),
		"launched", summary.Launched,
		"launch_failures", summary.LaunchFailures,
		"cleaned", summary.Cleaned,
		"completed", summary.Completed,
		"failed", summary.Failed,
		"dropped", summary.Dropped,
		"finished_at", time.Now().UTC().Format(time.RFC3339),
	).Err(); err != nil {
		m.logger.Warn("failed to write run summary", zap.Error(err))
	}
	for _, key := range []string{JobsKey(runID), SummaryKey(runID)} {
		if err := m.client.Expire(ctx, key, keyTTL).Err(); err != nil {
			m.logger.Warn("failed to set expiry", zap.String("key", key), zap.Error(err))
		}
	}
}
