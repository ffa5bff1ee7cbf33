package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fuzzexp/internal/types"
)

const validConfig = `
binaries_folder: /data/binaries
seeds_folder: /data/seeds
results_folder: /data/results
fuzzers: [afl, NEUZZPP]
targets: [libpng, libxml2]
n_trials: 2
rng_seeds: [11, 22, 33]
duration: 3600
pass_by_file: false
use_gpu: true
n_cpus: 4
n_gpus: 1
docker_image: fuzz-exp:latest
`

func TestParseExperimentConfig(t *testing.T) {
	cfg, err := ParseExperimentConfig([]byte(validConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.NCPUs != 4 || cfg.NGPUs != 1 || !cfg.UseGPU {
		t.Errorf("unexpected resources: %+v", cfg)
	}
	if cfg.PollInterval != DefaultPollInterval {
		t.Errorf("poll interval = %s, want default", cfg.PollInterval)
	}
	want := []types.FuzzerKind{types.AFL, types.NEUZZPP}
	if len(cfg.FuzzerKinds) != len(want) {
		t.Fatalf("fuzzer kinds = %v", cfg.FuzzerKinds)
	}
	for i := range want {
		if cfg.FuzzerKinds[i] != want[i] {
			t.Errorf("fuzzer kind %d = %s, want %s", i, cfg.FuzzerKinds[i], want[i])
		}
	}
}

func TestParseExperimentConfigPollInterval(t *testing.T) {
	cfg, err := ParseExperimentConfig([]byte(validConfig + "poll_interval: 250ms\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Errorf("poll interval = %s", cfg.PollInterval)
	}
}

func TestParseExperimentConfigDetectsCPUs(t *testing.T) {
	content := strings.Replace(validConfig, "n_cpus: 4", "n_cpus: 0", 1)
	cfg, err := ParseExperimentConfig([]byte(content))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.NCPUs < 1 {
		t.Errorf("n_cpus not detected: %d", cfg.NCPUs)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		replace [2]string
		field   string
	}{
		{"missing image", [2]string{"docker_image: fuzz-exp:latest", ""}, "docker_image"},
		{"missing results", [2]string{"results_folder: /data/results", ""}, "results_folder"},
		{"unknown fuzzer", [2]string{"[afl, NEUZZPP]", "[afl, honggfuzz]"}, "fuzzers"},
		{"no fuzzers", [2]string{"[afl, NEUZZPP]", "[]"}, "fuzzers"},
		{"duplicate fuzzer", [2]string{"[afl, NEUZZPP]", "[afl, NEUZZPP, neuzzpp]"}, "fuzzers"},
		{"duplicate fuzzer case", [2]string{"[afl, NEUZZPP]", "[AFL, afl]"}, "fuzzers"},
		{"duplicate target", [2]string{"[libpng, libxml2]", "[libpng, libxml2, libpng]"}, "targets"},
		{"empty target", [2]string{"[libpng, libxml2]", "[libpng, \"\"]"}, "targets"},
		{"no targets", [2]string{"[libpng, libxml2]", "[]"}, "targets"},
		{"zero trials", [2]string{"n_trials: 2", "n_trials: 0"}, "n_trials"},
		{"too few seeds", [2]string{"[11, 22, 33]", "[11]"}, "rng_seeds"},
		{"zero duration", [2]string{"duration: 3600", "duration: 0"}, "duration"},
		{"gpu without gpus", [2]string{"n_gpus: 1", "n_gpus: 0"}, "n_gpus"},
		{"negative cpus", [2]string{"n_cpus: 4", "n_cpus: -1"}, "n_cpus"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := strings.Replace(validConfig, tt.replace[0], tt.replace[1], 1)
			_, err := ParseExperimentConfig([]byte(content))
			if !errors.Is(err, ErrConfig) {
				t.Fatalf("expected ErrConfig, got %v", err)
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %T", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("field = %q, want %q", cfgErr.Field, tt.field)
			}
		})
	}
}

func TestUnknownFuzzerWrapsErrUnknownFuzzer(t *testing.T) {
	content := strings.Replace(validConfig, "[afl, NEUZZPP]", "[afl, honggfuzz]", 1)
	_, err := ParseExperimentConfig([]byte(content))
	if !errors.Is(err, types.ErrUnknownFuzzer) {
		t.Errorf("expected ErrUnknownFuzzer, got %v", err)
	}
}

func TestLoadExperimentConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experiment_config.yaml")
	if err := os.WriteFile(path, []byte(validConfig), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadExperimentConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DockerImage != "fuzz-exp:latest" {
		t.Errorf("docker image = %q", cfg.DockerImage)
	}

	_, err = LoadExperimentConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, ErrConfig) || !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrConfig wrapping ErrNotExist, got %v", err)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("EXPERIMENT_CONFIG", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("SERVICE_NAME", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("REDIS_SENTINEL_HOSTS", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("SHUTDOWN_TIMEOUT", "5s")

	cfg := LoadConfig()
	if cfg.ExperimentConfigPath != DefaultExperimentConfig {
		t.Errorf("experiment config = %q", cfg.ExperimentConfigPath)
	}
	if cfg.LogLevel != "info" || cfg.ServiceName != "fuzzexp" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("shutdown timeout = %s", cfg.ShutdownTimeout)
	}
	if cfg.RedisEnabled() || cfg.DatabaseEnabled() || cfg.RabbitMQEnabled() || cfg.TelemetryEnabled() {
		t.Errorf("integrations enabled without settings")
	}
}
