package types

import "time"

// ResultMessage is published for every finished job so downstream analyses
// (coverage, crash triage) can pick the trial up.
type ResultMessage struct {
	RunID      RunID          `json:"run_id"`
	Target     string         `json:"target"`
	Fuzzer     string         `json:"fuzzer"`
	Trial      int            `json:"trial"`
	RNGSeed    int            `json:"rng_seed"`
	State      string         `json:"state"`
	ExitStatus int            `json:"exit_status"`
	OutputDir  string         `json:"output_dir"`
	LogPath    string         `json:"log_path"`
	CrashCount int            `json:"crash_count"`
	Stats      map[string]any `json:"stats,omitempty"`
	FinishedAt time.Time      `json:"finished_at"`
}

func NewResultMessage(runID RunID, resultsFolder string, r Result) ResultMessage {
	return ResultMessage{
		RunID:      runID,
		Target:     r.Job.Target,
		Fuzzer:     r.Job.Fuzzer.String(),
		Trial:      r.Job.Trial,
		RNGSeed:    r.Job.RNGSeed,
		State:      r.State.String(),
		ExitStatus: r.ExitStatus,
		OutputDir:  r.Job.OutputDir(resultsFolder),
		LogPath:    r.LogPath,
		CrashCount: r.CrashCount,
		Stats:      r.Stats,
		FinishedAt: r.FinishedAt,
	}
}
