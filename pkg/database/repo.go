package database

import (
	"context"

	"fuzzexp/internal/types"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NewJobResult converts a collected result into its database row.
func NewJobResult(runID types.RunID, r types.Result) *JobResult {
	return &JobResult{
		RunID:      string(runID),
		Target:     r.Job.Target,
		Fuzzer:     r.Job.Fuzzer.String(),
		Trial:      r.Job.Trial,
		RNGSeed:    r.Job.RNGSeed,
		State:      r.State.String(),
		ExitStatus: r.ExitStatus,
		CPU:        r.CPU,
		GPU:        r.GPU,
		CrashCount: r.CrashCount,
		LogPath:    r.LogPath,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Metric:     Metric(r.Stats),
	}
}

// inserts a single result record into the database
func AddJobResult(ctx context.Context, db *gorm.DB, result *JobResult) error {
	if result == nil {
		return nil
	}
	return db.WithContext(ctx).Create(result).Error
}

// ResultRepository stores every collected result of the current run.
type ResultRepository struct {
	db     *gorm.DB
	runID  types.RunID
	logger *zap.Logger
}

type ResultRepositoryParams struct {
	fx.In

	DB     *gorm.DB `optional:"true"`
	RunID  types.RunID
	Logger *zap.Logger
}

// NewResultRepository returns nil when no database is configured.
func NewResultRepository(p ResultRepositoryParams) *ResultRepository {
	if p.DB == nil {
		return nil
	}
	return &ResultRepository{
		db:     p.DB,
		runID:  p.RunID,
		logger: p.Logger.Named("results-db"),
	}
}

func (r *ResultRepository) Name() string {
	return "postgres"
}

func (r *ResultRepository) Record(ctx context.Context, result types.Result) error {
	row := NewJobResult(r.runID, result)
	if err := AddJobResult(ctx, r.db, row); err != nil {
		return err
	}
	r.logger.Debug("result stored", zap.String("job", result.Job.Name()), zap.Int("id", row.ID))
	return nil
}
