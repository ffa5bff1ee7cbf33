package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"fuzzexp/config"
	"fuzzexp/internal/types"

	"go.uber.org/zap/zaptest"
)

func testConfig(t *testing.T) *config.ExperimentConfig {
	t.Helper()
	root := t.TempDir()
	return &config.ExperimentConfig{
		BinariesFolder: filepath.Join(root, "binaries"),
		SeedsFolder:    filepath.Join(root, "seeds"),
		ResultsFolder:  filepath.Join(root, "results"),
		Fuzzers:        []string{"AFL", "NEUZZPP"},
		Targets:        []string{"libpng", "libxml2"},
		NTrials:        3,
		RNGSeeds:       []int{7, 8, 9, 10},
		Duration:       60,
		NCPUs:          2,
		DockerImage:    "fuzz-exp:latest",
	}
}

func TestExpand(t *testing.T) {
	cfg := testConfig(t)
	jobs, err := Expand(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 2*2*3 {
		t.Fatalf("expected 12 jobs, got %d", len(jobs))
	}

	// fuzzer-major, then target, then trial
	i := 0
	for _, kind := range []types.FuzzerKind{types.AFL, types.NEUZZPP} {
		for _, target := range cfg.Targets {
			for trial := range cfg.NTrials {
				job := jobs[i]
				if job.Fuzzer != kind || job.Target != target || job.Trial != trial {
					t.Fatalf("job %d = %s, want %s/%s/trial-%d", i, job.ID(), target, kind, trial)
				}
				if job.RNGSeed != cfg.RNGSeeds[trial] {
					t.Errorf("job %s seed %d, want %d", job.ID(), job.RNGSeed, cfg.RNGSeeds[trial])
				}
				i++
			}
		}
	}

	seen := make(map[types.JobID]bool)
	for _, job := range jobs {
		if seen[job.ID()] {
			t.Errorf("duplicate job %s", job.ID())
		}
		seen[job.ID()] = true
	}
}

func TestExpandBinaryVariant(t *testing.T) {
	cfg := testConfig(t)
	jobs, err := Expand(cfg)
	if err != nil {
		t.Fatal(err)
	}
	for _, job := range jobs {
		want := filepath.Join(cfg.BinariesFolder, job.Target+".afl")
		if job.Fuzzer == types.NEUZZPP {
			want = filepath.Join(cfg.BinariesFolder, job.Target+".aflpp")
		}
		if job.Binary != want {
			t.Errorf("%s: binary %q, want %q", job.ID(), job.Binary, want)
		}
	}
}

func TestExpandErrors(t *testing.T) {
	cfg := testConfig(t)
	cfg.RNGSeeds = []int{1}
	if _, err := Expand(cfg); !errors.Is(err, config.ErrConfig) {
		t.Errorf("expected ErrConfig for missing seeds, got %v", err)
	}

	cfg = testConfig(t)
	cfg.Fuzzers = []string{"AFL", "symcc"}
	if _, err := Expand(cfg); !errors.Is(err, types.ErrUnknownFuzzer) {
		t.Errorf("expected ErrUnknownFuzzer, got %v", err)
	}

	for _, tc := range []struct {
		name    string
		fuzzers []string
		targets []string
	}{
		{"repeated fuzzer", []string{"AFL", "afl"}, []string{"zlib"}},
		{"repeated target", []string{"AFL"}, []string{"zlib", "zlib"}},
	} {
		cfg = testConfig(t)
		cfg.Fuzzers, cfg.Targets, cfg.NTrials = tc.fuzzers, tc.targets, 1
		jobs, err := Expand(cfg)
		if !errors.Is(err, config.ErrConfig) {
			t.Errorf("%s: expected ErrConfig, got %d jobs and %v", tc.name, len(jobs), err)
		}
	}
}

func TestEnsureSeeds(t *testing.T) {
	cfg := testConfig(t)

	// libxml2 already has a corpus that must be left alone
	existing := filepath.Join(cfg.SeedsFolder, "libxml2")
	if err := os.MkdirAll(existing, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(existing, "input.xml"), []byte("<a/>"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := EnsureSeeds(cfg, zaptest.NewLogger(t)); err != nil {
		t.Fatal(err)
	}

	content, err := os.ReadFile(filepath.Join(cfg.SeedsFolder, "libpng", DefaultSeedName))
	if err != nil {
		t.Fatalf("default seed not written: %v", err)
	}
	if string(content) != DefaultSeedContent {
		t.Errorf("default seed = %q", content)
	}
	if _, err := os.Stat(filepath.Join(existing, DefaultSeedName)); !os.IsNotExist(err) {
		t.Errorf("default seed written into non-empty corpus")
	}
}

func TestCount(t *testing.T) {
	cfg := testConfig(t)
	jobs, err := Expand(cfg)
	if err != nil {
		t.Fatal(err)
	}
	order, counts := Count(jobs)
	if len(order) != 2 || order[0] != types.AFL || order[1] != types.NEUZZPP {
		t.Fatalf("order = %v", order)
	}
	if counts[types.AFL] != 6 || counts[types.NEUZZPP] != 6 {
		t.Errorf("counts = %v", counts)
	}
}
