package collector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fuzzexp/config"
	"fuzzexp/internal/backend"
	"fuzzexp/internal/types"

	"go.uber.org/zap/zaptest"
)

type fakeHandle struct {
	name       string
	exitStatus int
	exitErr    error
	logs       string
	logsErr    error
	disposeErr error
	disposed   bool
}

func (h *fakeHandle) Name() string                                 { return h.name }
func (h *fakeHandle) IsTerminal(ctx context.Context) (bool, error) { return true, nil }
func (h *fakeHandle) ExitStatus(ctx context.Context) (int, error)  { return h.exitStatus, h.exitErr }
func (h *fakeHandle) FetchLogs(ctx context.Context) ([]byte, error) {
	return []byte(h.logs), h.logsErr
}
func (h *fakeHandle) Dispose(ctx context.Context) error {
	if h.disposeErr != nil {
		return h.disposeErr
	}
	h.disposed = true
	return nil
}

type recordingSink struct {
	results []types.Result
	err     error
}

func (s *recordingSink) Name() string { return "recording" }
func (s *recordingSink) Record(ctx context.Context, r types.Result) error {
	s.results = append(s.results, r)
	return s.err
}

func newTestCollector(t *testing.T, sinks ...ResultSink) (*Collector, *config.ExperimentConfig) {
	t.Helper()
	cfg := &config.ExperimentConfig{ResultsFolder: t.TempDir()}
	c := NewCollector(CollectorParams{Config: cfg, Logger: zaptest.NewLogger(t), Sinks: sinks})
	return c, cfg
}

func testAssignment(t *testing.T, cfg *config.ExperimentConfig) types.JobAssignment {
	t.Helper()
	a := types.JobAssignment{
		Job:   types.Job{Target: "libpng", Fuzzer: types.AFLPP, Trial: 2},
		CPU:   1,
		Start: time.Now().Add(-time.Hour),
	}
	if err := os.MkdirAll(a.Job.OutputDir(cfg.ResultsFolder), 0755); err != nil {
		t.Fatal(err)
	}
	return a
}

func TestCollectCleanExit(t *testing.T) {
	sink := &recordingSink{}
	c, cfg := newTestCollector(t, sink)
	a := testAssignment(t, cfg)
	h := &fakeHandle{name: a.Job.Name(), logs: "all good\n"}

	result := c.Collect(context.Background(), a, h)

	if result.State != types.Cleaned || !result.Disposed || !h.disposed {
		t.Errorf("clean exit not disposed: %+v", result)
	}
	trialDir := a.Job.OutputDir(cfg.ResultsFolder)
	logPath := filepath.Join(trialDir, LogFileName)
	if result.LogPath != logPath {
		t.Errorf("log path = %q, want %q", result.LogPath, logPath)
	}
	content, err := os.ReadFile(logPath)
	if err != nil || string(content) != "all good\n" {
		t.Errorf("log file = %q, err = %v", content, err)
	}
	exitCode, err := os.ReadFile(filepath.Join(trialDir, ExitCodeFileName))
	if err != nil || strings.TrimSpace(string(exitCode)) != "0" {
		t.Errorf("exit code file = %q, err = %v", exitCode, err)
	}
	if len(sink.results) != 1 {
		t.Errorf("sink saw %d results", len(sink.results))
	}
}

func TestCollectNonzeroExitKeepsInstance(t *testing.T) {
	c, cfg := newTestCollector(t)
	a := testAssignment(t, cfg)
	h := &fakeHandle{name: a.Job.Name(), exitStatus: 137, logs: "killed\n"}

	result := c.Collect(context.Background(), a, h)

	if h.disposed || result.Disposed {
		t.Error("instance disposed after nonzero exit")
	}
	if result.State != types.Completed || result.ExitStatus != 137 || !result.Failed() {
		t.Errorf("result = %+v", result)
	}
}

func TestCollectDisposeFailure(t *testing.T) {
	c, cfg := newTestCollector(t)
	a := testAssignment(t, cfg)
	h := &fakeHandle{name: a.Job.Name(), disposeErr: errors.New("device busy")}

	result := c.Collect(context.Background(), a, h)
	if result.State != types.Completed || result.Disposed {
		t.Errorf("result = %+v", result)
	}
	if result.Failed() {
		t.Error("cleanup failure counted as job failure")
	}
}

func TestCollectMissingInstance(t *testing.T) {
	c, cfg := newTestCollector(t)
	a := testAssignment(t, cfg)
	h := &fakeHandle{
		name:       a.Job.Name(),
		exitStatus: backend.MissingExitStatus,
		exitErr:    backend.ErrInstanceNotFound,
		logsErr:    backend.ErrInstanceNotFound,
	}

	result := c.Collect(context.Background(), a, h)
	if result.State != types.Completed || result.ExitStatus != backend.MissingExitStatus {
		t.Errorf("result = %+v", result)
	}
	// the log file is written even when empty
	if _, err := os.Stat(result.LogPath); err != nil {
		t.Errorf("log file missing: %v", err)
	}
}

func TestCollectNativeSubdir(t *testing.T) {
	c, cfg := newTestCollector(t)
	a := testAssignment(t, cfg)
	native := filepath.Join(a.Job.OutputDir(cfg.ResultsFolder), NativeSubdir)
	if err := os.MkdirAll(filepath.Join(native, CrashesDir), 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"README.txt", "id:000000,sig:11", "id:000001,sig:06"} {
		if err := os.WriteFile(filepath.Join(native, CrashesDir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	stats := "start_time        : 1700000000\nexecs_per_sec     : 1234.56\nbitmap_cvg        : 12.34%\nafl_version       : ++4.09c\n"
	if err := os.WriteFile(filepath.Join(native, FuzzerStatsFile), []byte(stats), 0644); err != nil {
		t.Fatal(err)
	}

	result := c.Collect(context.Background(), a, &fakeHandle{name: a.Job.Name(), logs: "x"})

	if result.LogPath != filepath.Join(native, LogFileName) {
		t.Errorf("log path = %q", result.LogPath)
	}
	if result.CrashCount != 2 {
		t.Errorf("crash count = %d", result.CrashCount)
	}
	if result.Stats["start_time"] != int64(1700000000) {
		t.Errorf("start_time = %#v", result.Stats["start_time"])
	}
	if result.Stats["bitmap_cvg"] != 12.34 {
		t.Errorf("bitmap_cvg = %#v", result.Stats["bitmap_cvg"])
	}
	if result.Stats["afl_version"] != "++4.09c" {
		t.Errorf("afl_version = %#v", result.Stats["afl_version"])
	}
}

func TestCollectSinkErrorsIgnored(t *testing.T) {
	failing := &recordingSink{err: errors.New("database down")}
	second := &recordingSink{}
	var nilSink *recordingSink
	c, cfg := newTestCollector(t, failing, nilSink, second)
	a := testAssignment(t, cfg)

	result := c.Collect(context.Background(), a, &fakeHandle{name: a.Job.Name()})
	if result.State != types.Cleaned {
		t.Errorf("sink failure changed the result: %+v", result)
	}
	if len(failing.results) != 1 || len(second.results) != 1 {
		t.Errorf("sinks called %d and %d times", len(failing.results), len(second.results))
	}
}

func TestParseFuzzerStats(t *testing.T) {
	stats, err := parseFuzzerStats(strings.NewReader("a : 1\n\nnot a stat line\nb: 2.5\n : skipped\nc : text value\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 3 {
		t.Errorf("stats = %v", stats)
	}
	if stats["a"] != int64(1) || stats["b"] != 2.5 || stats["c"] != "text value" {
		t.Errorf("stats = %#v", stats)
	}
}
