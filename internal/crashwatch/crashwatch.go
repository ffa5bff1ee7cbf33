package crashwatch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"fuzzexp/config"
	"fuzzexp/internal/collector"
	"fuzzexp/internal/types"
	"fuzzexp/pkg/telemetry"
	"fuzzexp/pkg/watchdog"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const DefaultScanInterval = 10 * time.Second

// crash folders a fuzzer may create, relative to the trial directory
var crashDirs = []string{
	collector.CrashesDir,
	filepath.Join(collector.NativeSubdir, collector.CrashesDir),
}

func isCrashFile(name string) bool {
	return filepath.Base(name) != "README.txt"
}

// Watcher follows the crash folders of every running job and reports the
// first crash of each trial as soon as it lands on disk.
type Watcher struct {
	factory       *watchdog.WatchDogFactory
	tracerFactory *telemetry.TracerFactory
	resultsFolder string
	scanInterval  time.Duration
	logger        *zap.Logger

	mu      sync.Mutex
	watches map[types.JobID]*jobWatch
}

type WatcherParams struct {
	fx.In

	Lc            fx.Lifecycle
	Experiment    *config.ExperimentConfig
	TracerFactory *telemetry.TracerFactory
	Logger        *zap.Logger
}

func NewWatcher(p WatcherParams) *Watcher {
	w := newWatcher(p.Experiment.ResultsFolder, DefaultScanInterval, p.TracerFactory, p.Logger)
	p.Lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			w.StopAll()
			return nil
		},
	})
	return w
}

func newWatcher(resultsFolder string, scanInterval time.Duration, tracerFactory *telemetry.TracerFactory, logger *zap.Logger) *Watcher {
	logger = logger.Named("crashwatch")
	return &Watcher{
		factory:       watchdog.NewWatchDogFactory(logger),
		tracerFactory: tracerFactory,
		resultsFolder: resultsFolder,
		scanInterval:  scanInterval,
		logger:        logger,
		watches:       make(map[types.JobID]*jobWatch),
	}
}

func (w *Watcher) JobTransition(ctx context.Context, a types.JobAssignment, from, to types.JobState) {
	switch {
	case to == types.Running:
		w.start(a.Job)
	case from == types.Running:
		w.stop(a.Job.ID())
	}
}

// Crashes returns the number of crashes seen so far for a watched job.
func (w *Watcher) Crashes(id types.JobID) (int, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	jw, ok := w.watches[id]
	if !ok {
		return 0, false
	}
	return int(jw.crashes.Load()), true
}

// StopAll stops every watch still running.
func (w *Watcher) StopAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, jw := range w.watches {
		jw.cancel()
		delete(w.watches, id)
	}
}

func (w *Watcher) start(job types.Job) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.watches[job.ID()]; ok {
		return
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	notifyChan := make(chan string)
	dog, err := w.factory.New(watchCtx, notifyChan, isCrashFile)
	if err != nil {
		cancel()
		w.logger.Warn("crash watch disabled for job", zap.String("job", job.Name()), zap.Error(err))
		return
	}

	jw := &jobWatch{
		job:      job,
		trialDir: job.OutputDir(w.resultsFolder),
		dog:      dog,
		cancel:   cancel,
		logger:   w.logger.With(zap.String("job", job.Name())),
	}
	w.watches[job.ID()] = jw

	tracer := w.tracerFactory.NewTracer(watchCtx, "crash watch "+job.Name()).
		WithAttributes(telemetry.NewSpanAttributes(telemetry.Fuzzing).
			WithJob(job.Target, job.Fuzzer.String(), job.Trial, job.RNGSeed))
	go jw.scan(watchCtx, w.scanInterval)
	go jw.proxy(tracer, notifyChan)
}

func (w *Watcher) stop(id types.JobID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if jw, ok := w.watches[id]; ok {
		jw.cancel()
		delete(w.watches, id)
	}
}

type jobWatch struct {
	job      types.Job
	trialDir string
	dog      *watchdog.WatchDog
	cancel   context.CancelFunc
	logger   *zap.Logger

	crashes atomic.Int64
}

// scan adds crash folders to the watchdog as the fuzzer creates them.
func (jw *jobWatch) scan(ctx context.Context, interval time.Duration) {
	watched := make(map[string]struct{}, len(crashDirs))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		jw.addCrashDirs(watched)
		if len(watched) == len(crashDirs) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (jw *jobWatch) addCrashDirs(watched map[string]struct{}) {
	for _, rel := range crashDirs {
		dir := filepath.Join(jw.trialDir, rel)
		if _, ok := watched[dir]; ok {
			continue
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		if err := jw.dog.AddDir(dir); err != nil {
			jw.logger.Debug("failed to watch crash folder", zap.String("crash_dir", dir), zap.Error(err))
			continue
		}
		watched[dir] = struct{}{}
	}
}

// proxy counts crash notifications until the watchdog closes notifyChan.
func (jw *jobWatch) proxy(tracer telemetry.Tracer, notifyChan <-chan string) {
	tracer.Start()
	defer tracer.End()

	for crashFile := range notifyChan {
		if jw.crashes.Add(1) == 1 {
			jw.logger.Info("first crash found", zap.String("crash", filepath.Base(crashFile)))
			tracer.AddEvent("first_crash_found", telemetry.NewEventAttributes(map[string]string{
				"crash_name": filepath.Base(crashFile),
			}))
		}
	}
}
