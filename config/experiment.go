package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"fuzzexp/internal/types"

	"github.com/shirou/gopsutil/v3/cpu"
	"gopkg.in/yaml.v3"
)

var ErrConfig = errors.New("invalid experiment configuration")

// ConfigError reports a malformed or missing experiment setting.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrConfig, e.Field, e.Err)
}

func (e *ConfigError) Unwrap() []error {
	return []error{ErrConfig, e.Err}
}

func configErrorf(field, format string, args ...any) error {
	return &ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
}

const DefaultPollInterval = 10 * time.Second

// ExperimentConfig is the experiment description, read once from experiment_config.yaml.
type ExperimentConfig struct {
	BinariesFolder string        `yaml:"binaries_folder"`
	SeedsFolder    string        `yaml:"seeds_folder"`
	ResultsFolder  string        `yaml:"results_folder"`
	Fuzzers        []string      `yaml:"fuzzers"`
	Targets        []string      `yaml:"targets"`
	NTrials        int           `yaml:"n_trials"`
	RNGSeeds       []int         `yaml:"rng_seeds"`
	Duration       int           `yaml:"duration"` // seconds
	PassByFile     bool          `yaml:"pass_by_file"`
	UseGPU         bool          `yaml:"use_gpu"`
	NCPUs          int           `yaml:"n_cpus"`
	NGPUs          int           `yaml:"n_gpus"`
	DockerImage    string        `yaml:"docker_image"`
	PollInterval   time.Duration `yaml:"poll_interval"`

	// parsed from Fuzzers by Validate
	FuzzerKinds []types.FuzzerKind `yaml:"-"`
}

// LoadExperimentConfig reads and validates the YAML experiment description at path.
func LoadExperimentConfig(path string) (*ExperimentConfig, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Field: "path", Err: err}
	}
	return ParseExperimentConfig(content)
}

func ParseExperimentConfig(content []byte) (*ExperimentConfig, error) {
	var cfg ExperimentConfig
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, &ConfigError{Field: "yaml", Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every setting, fills defaults, and resolves fuzzer names.
// Unknown fuzzers are rejected here so that nothing fails at launch time.
func (c *ExperimentConfig) Validate() error {
	required := []struct{ field, value string }{
		{"binaries_folder", c.BinariesFolder},
		{"seeds_folder", c.SeedsFolder},
		{"results_folder", c.ResultsFolder},
		{"docker_image", c.DockerImage},
	}
	for _, r := range required {
		if r.value == "" {
			return configErrorf(r.field, "missing")
		}
	}

	if len(c.Fuzzers) == 0 {
		return configErrorf("fuzzers", "at least one fuzzer is required")
	}
	kinds := make([]types.FuzzerKind, 0, len(c.Fuzzers))
	for _, name := range c.Fuzzers {
		kind, err := types.ParseFuzzerKind(name)
		if err != nil {
			return &ConfigError{Field: "fuzzers", Err: err}
		}
		if slices.Contains(kinds, kind) {
			return configErrorf("fuzzers", "%s listed more than once", kind)
		}
		kinds = append(kinds, kind)
	}
	c.FuzzerKinds = kinds

	if len(c.Targets) == 0 {
		return configErrorf("targets", "at least one target is required")
	}
	// a job is identified by (target, fuzzer, trial)
	seen := make(map[string]struct{}, len(c.Targets))
	for _, target := range c.Targets {
		if target == "" {
			return configErrorf("targets", "empty target name")
		}
		if _, ok := seen[target]; ok {
			return configErrorf("targets", "%s listed more than once", target)
		}
		seen[target] = struct{}{}
	}
	if c.NTrials < 1 {
		return configErrorf("n_trials", "must be positive, got %d", c.NTrials)
	}
	if len(c.RNGSeeds) < c.NTrials {
		return configErrorf("rng_seeds", "%d seeds for %d trials", len(c.RNGSeeds), c.NTrials)
	}
	if c.Duration <= 0 {
		return configErrorf("duration", "must be positive, got %d", c.Duration)
	}
	if c.NCPUs < 0 {
		return configErrorf("n_cpus", "must not be negative, got %d", c.NCPUs)
	}
	if c.NCPUs == 0 {
		n, err := cpu.Counts(true)
		if err != nil || n < 1 {
			return configErrorf("n_cpus", "not set and CPU count detection failed: %v", err)
		}
		c.NCPUs = n
	}
	if c.NGPUs < 0 {
		return configErrorf("n_gpus", "must not be negative, got %d", c.NGPUs)
	}
	if c.UseGPU && c.NGPUs == 0 {
		return configErrorf("n_gpus", "use_gpu is set but no GPU is available")
	}
	if c.PollInterval < 0 {
		return configErrorf("poll_interval", "must not be negative, got %s", c.PollInterval)
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	return nil
}
