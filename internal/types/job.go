package types

import (
	"fmt"
	"path/filepath"
	"time"
)

// JobID identifies a job within one experiment.
type JobID struct {
	Target string
	Fuzzer FuzzerKind
	Trial  int
}

func (id JobID) String() string {
	return fmt.Sprintf("%s/%s/trial-%d", id.Target, id.Fuzzer, id.Trial)
}

// Job is one (target, fuzzer, trial) unit of work. Jobs are created once by
// catalog expansion and never modified afterwards.
type Job struct {
	Target     string     `json:"target"`
	Binary     string     `json:"binary"` // absolute path to the variant matching Fuzzer
	Fuzzer     FuzzerKind `json:"fuzzer"`
	Trial      int        `json:"trial"`
	RNGSeed    int        `json:"rng_seed"`
	PassByFile bool       `json:"pass_by_file"`
}

func (j Job) ID() JobID {
	return JobID{j.Target, j.Fuzzer, j.Trial}
}

// Name is the backend instance name of the job.
func (j Job) Name() string {
	if j.PassByFile {
		return fmt.Sprintf("%s_%s_slow_trial-%d", j.Target, j.Fuzzer, j.Trial)
	}
	return fmt.Sprintf("%s_%s_trial-%d", j.Target, j.Fuzzer, j.Trial)
}

// OutputDir is the per-trial result directory:
// <results>/<target>/<FUZZER>/trial-<index>
func (j Job) OutputDir(resultsFolder string) string {
	return filepath.Join(resultsFolder, j.Target, j.Fuzzer.String(), fmt.Sprintf("trial-%d", j.Trial))
}

// SeedDir is the corpus folder shared by every job of a target.
func (j Job) SeedDir(seedsFolder string) string {
	return filepath.Join(seedsFolder, j.Target)
}

// JobAssignment binds a job to the resources it holds while running.
type JobAssignment struct {
	Job   Job
	CPU   int
	GPU   *int // nil when the job runs without a GPU
	Start time.Time
}

func (a JobAssignment) HasGPU() bool {
	return a.GPU != nil
}

// Result is what the collector records for a job once it reached a terminal state.
type Result struct {
	Job        Job            `json:"job"`
	State      JobState       `json:"state"`
	ExitStatus int            `json:"exit_status"`
	LogPath    string         `json:"log_path"`
	Disposed   bool           `json:"disposed"`
	CPU        int            `json:"cpu"`
	GPU        *int           `json:"gpu,omitempty"`
	CrashCount int            `json:"crash_count"`
	Stats      map[string]any `json:"stats,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

func (r Result) Failed() bool {
	return r.ExitStatus != 0
}

// RunID identifies one scheduler invocation.
type RunID string
