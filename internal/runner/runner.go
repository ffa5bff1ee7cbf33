package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"fuzzexp/config"
	"fuzzexp/internal/backend"
	"fuzzexp/internal/types"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrLaunchFailure = errors.New("job launch failed")

// Runner turns a job assignment into a detached backend instance.
type Runner struct {
	backend backend.Backend
	cfg     *config.ExperimentConfig
	logger  *zap.Logger
	user    string
}

type RunnerParams struct {
	fx.In

	Backend backend.Backend
	Config  *config.ExperimentConfig
	Logger  *zap.Logger
}

func NewRunner(p RunnerParams) *Runner {
	return &Runner{
		backend: p.Backend,
		cfg:     p.Config,
		logger:  p.Logger.Named("runner"),
		// files written into the shared folders stay owned by the invoking user
		user: fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()),
	}
}

// Spec resolves the invocation for an assignment. The fuzzer kind selects the
// entry point; everything else is bound from the job and the experiment folders.
func (r *Runner) Spec(a types.JobAssignment) backend.LaunchSpec {
	job := a.Job
	command := []string{
		"python", job.Fuzzer.EntryPoint(),
		job.SeedDir(r.cfg.SeedsFolder),
		job.OutputDir(r.cfg.ResultsFolder),
		job.Binary,
		"-d", strconv.Itoa(r.cfg.Duration),
		"-s", strconv.Itoa(job.RNGSeed),
	}
	if job.PassByFile {
		command = append(command, "--pass_by_file")
	}

	spec := backend.LaunchSpec{
		Name:    job.Name(),
		Image:   r.cfg.DockerImage,
		User:    r.user,
		Command: command,
		Binds:   samePathBinds(r.cfg.BinariesFolder, r.cfg.SeedsFolder, r.cfg.ResultsFolder),
		CPUSet:  strconv.Itoa(a.CPU),
	}
	if a.GPU != nil {
		gpu := *a.GPU
		spec.GPUDevice = &gpu
	}
	return spec
}

// mount every folder at the same path inside the instance
func samePathBinds(folders ...string) []string {
	binds := make([]string, 0, len(folders))
	for _, folder := range folders {
		binds = append(binds, folder+":"+folder)
	}
	return binds
}

// Launch starts the job without waiting for it. When the submission fails but the
// backend still hands back a handle, both are returned: the caller keeps polling it.
func (r *Runner) Launch(ctx context.Context, a types.JobAssignment) (backend.Handle, error) {
	outputDir := a.Job.OutputDir(r.cfg.ResultsFolder)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create output folder %s: %w", ErrLaunchFailure, outputDir, err)
	}

	spec := r.Spec(a)
	logger := r.logger.With(zap.String("job", spec.Name))
	logger.Debug("launching job", zap.Strings("command", spec.Command), zap.String("cpuset", spec.CPUSet))

	handle, err := r.backend.Launch(ctx, spec)
	if err != nil {
		return handle, fmt.Errorf("%w: %s: %w", ErrLaunchFailure, spec.Name, err)
	}
	return handle, nil
}
