package catalog

import (
	"fmt"
	"os"
	"path/filepath"

	"fuzzexp/config"
	"fuzzexp/internal/types"

	"go.uber.org/zap"
)

const (
	DefaultSeedName    = "default_seed"
	DefaultSeedContent = "hi" // same trivial seed FuzzBench falls back to
)

// Expand turns the experiment configuration into the ordered job list:
// fuzzer-major, then target, then trial index. This order is the admission order.
func Expand(cfg *config.ExperimentConfig) ([]types.Job, error) {
	if len(cfg.RNGSeeds) < cfg.NTrials {
		return nil, &config.ConfigError{
			Field: "rng_seeds",
			Err:   fmt.Errorf("%d seeds for %d trials", len(cfg.RNGSeeds), cfg.NTrials),
		}
	}

	kinds := make([]types.FuzzerKind, 0, len(cfg.Fuzzers))
	for _, name := range cfg.Fuzzers {
		kind, err := types.ParseFuzzerKind(name)
		if err != nil {
			return nil, &config.ConfigError{Field: "fuzzers", Err: err}
		}
		kinds = append(kinds, kind)
	}

	jobs := make([]types.Job, 0, len(kinds)*len(cfg.Targets)*cfg.NTrials)
	seen := make(map[types.JobID]struct{}, cap(jobs))
	for _, kind := range kinds {
		for _, target := range cfg.Targets {
			binary := BinaryPath(cfg.BinariesFolder, target, kind)
			for trial, seed := range cfg.RNGSeeds[:cfg.NTrials] {
				job := types.Job{
					Target:     target,
					Binary:     binary,
					Fuzzer:     kind,
					Trial:      trial,
					RNGSeed:    seed,
					PassByFile: cfg.PassByFile,
				}
				if _, ok := seen[job.ID()]; ok {
					return nil, &config.ConfigError{
						Field: "targets",
						Err:   fmt.Errorf("duplicate job %s from repeated %s or %s", job.ID(), target, kind),
					}
				}
				seen[job.ID()] = struct{}{}
				jobs = append(jobs, job)
			}
		}
	}
	return jobs, nil
}

// BinaryPath returns <binaries>/<target>.<variant> for the fuzzer's build lineage.
func BinaryPath(binariesFolder, target string, kind types.FuzzerKind) string {
	return filepath.Join(binariesFolder, target+"."+string(kind.Variant()))
}

// EnsureSeeds makes sure every target has a non-empty seed directory,
// writing a trivial default seed where none exists.
func EnsureSeeds(cfg *config.ExperimentConfig, logger *zap.Logger) error {
	for _, target := range cfg.Targets {
		seedDir := filepath.Join(cfg.SeedsFolder, target)
		if err := os.MkdirAll(seedDir, 0755); err != nil {
			return fmt.Errorf("failed to create seed folder for %s: %w", target, err)
		}
		entries, err := os.ReadDir(seedDir)
		if err != nil {
			return fmt.Errorf("failed to read seed folder for %s: %w", target, err)
		}
		if len(entries) > 0 {
			continue
		}
		seedPath := filepath.Join(seedDir, DefaultSeedName)
		if err := os.WriteFile(seedPath, []byte(DefaultSeedContent), 0644); err != nil {
			return fmt.Errorf("failed to write default seed for %s: %w", target, err)
		}
		logger.Info("created default seed", zap.String("target", target), zap.String("path", seedPath))
	}
	return nil
}

// Count returns the number of jobs per fuzzer, in the order fuzzers first appear.
func Count(jobs []types.Job) ([]types.FuzzerKind, map[types.FuzzerKind]int) {
	order := make([]types.FuzzerKind, 0)
	counts := make(map[types.FuzzerKind]int)
	for _, job := range jobs {
		if _, ok := counts[job.Fuzzer]; !ok {
			order = append(order, job.Fuzzer)
		}
		counts[job.Fuzzer]++
	}
	return order, counts
}
