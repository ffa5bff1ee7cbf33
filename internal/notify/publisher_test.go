package notify

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"fuzzexp/config"
	"fuzzexp/internal/types"

	"go.uber.org/fx/fxtest"
	"go.uber.org/zap/zaptest"
)

func TestNewPublisherWithoutRabbitMQ(t *testing.T) {
	pub := NewPublisher(PublisherParams{
		Lc:         fxtest.NewLifecycle(t),
		RunID:      "r",
		Experiment: &config.ExperimentConfig{ResultsFolder: "/results"},
		Logger:     zaptest.NewLogger(t),
	})
	if pub != nil {
		t.Error("publisher created without RabbitMQ")
	}
}

func TestResultMessage(t *testing.T) {
	finished := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	r := types.Result{
		Job:        types.Job{Target: "libpng", Fuzzer: types.AFLPP, Trial: 2, RNGSeed: 5},
		State:      types.Cleaned,
		LogPath:    "/results/libpng/AFLPP/trial-2/default/docker.log",
		CrashCount: 1,
		FinishedAt: finished,
	}
	body, err := json.Marshal(types.NewResultMessage("run-3", "/results", r))
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{
		"run_id":     "run-3",
		"target":     "libpng",
		"fuzzer":     "AFLPP",
		"state":      "CLEANED",
		"output_dir": filepath.Join("/results", "libpng", "AFLPP", "trial-2"),
	}
	for k, v := range want {
		if decoded[k] != v {
			t.Errorf("%s = %v, want %v", k, decoded[k], v)
		}
	}
	if decoded["crash_count"] != float64(1) || decoded["trial"] != float64(2) {
		t.Errorf("message = %s", body)
	}
	if _, ok := decoded["stats"]; ok {
		t.Errorf("empty stats serialized: %s", body)
	}
}
