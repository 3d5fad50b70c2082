// Package guard watches the process's own resource usage and owns the
// registry of temporary artifacts created during a run.
package guard

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/lintmend/lintmend/internal/config"
)

// systemMemoryWarnPercent is the system-wide used-memory level that
// triggers a warning regardless of this process's own footprint.
const systemMemoryWarnPercent = 90.0

// Sample is one reading of the process and system resource state.
type Sample struct {
	RSSBytes      uint64
	CPUPercent    float64
	SystemPercent float64
}

// RSSMegabytes returns the resident set size in whole megabytes.
func (s Sample) RSSMegabytes() uint64 {
	return s.RSSBytes / (1 << 20)
}

// windowPruner is the slice of the rate limiter the guard needs.
type windowPruner interface {
	Prune()
}

// Guard samples resource usage on a fixed cadence from a background
// goroutine. Crossing the memory ceiling or the cleanup threshold runs a
// sweep that deletes aged temp artifacts and prunes the rate window. The
// goroutine never touches orchestration state and Stop joins it cleanly.
type Guard struct {
	interval      time.Duration
	maxMemBytes   uint64
	cleanupBytes  uint64
	maxCPUPercent float64
	tempMaxAge    time.Duration
	limiter       windowPruner
	log           *slog.Logger

	mu    sync.Mutex
	temps map[string]time.Time

	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	stopped bool

	// Test seams.
	sampleFn func() (Sample, error)
	removeFn func(string) error
	nowFn    func() time.Time
}

// New creates a Guard from the limits config. The limiter may be nil when
// no rate window needs pruning.
func New(cfg config.LimitsConfig, limiter windowPruner, log *slog.Logger) *Guard {
	return &Guard{
		interval:      time.Second,
		maxMemBytes:   uint64(cfg.MaxMemoryMB) << 20,
		cleanupBytes:  uint64(cfg.CleanupThreshold) << 20,
		maxCPUPercent: cfg.MaxCPUPercent,
		tempMaxAge:    time.Duration(cfg.TempMaxAgeMinutes) * time.Minute,
		limiter:       limiter,
		log:           log,
		temps:         make(map[string]time.Time),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
		sampleFn:      sampleUsage,
		removeFn:      os.Remove,
		nowFn:         time.Now,
	}
}

// Start launches the sampling goroutine. A Guard runs at most once;
// calling Start again, or after Stop, is a no-op.
func (g *Guard) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started {
		return
	}
	g.started = true
	go g.loop()
}

// Stop signals the sampling goroutine and waits for it to exit, then runs
// a final sweep so no registered artifact outlives the guard. Stop is
// idempotent.
func (g *Guard) Stop() {
	g.mu.Lock()
	if !g.started || g.stopped {
		g.mu.Unlock()
		return
	}
	g.stopped = true
	g.mu.Unlock()

	close(g.stopCh)
	<-g.doneCh
	g.releaseAll()
}

func (g *Guard) loop() {
	defer close(g.doneCh)

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stopCh:
			return
		case <-ticker.C:
			g.check()
		}
	}
}

// check takes one sample and reacts to threshold crossings.
func (g *Guard) check() {
	s, err := g.sampleFn()
	if err != nil {
		g.log.Debug("resource sample failed", "error", err)
		return
	}

	if g.maxMemBytes > 0 && s.RSSBytes > g.maxMemBytes {
		g.log.Warn("memory ceiling exceeded",
			"rss_mb", s.RSSMegabytes(),
			"limit_mb", g.maxMemBytes>>20)
		g.Cleanup()
		return
	}
	if g.cleanupBytes > 0 && s.RSSBytes > g.cleanupBytes {
		g.log.Info("memory above cleanup threshold",
			"rss_mb", s.RSSMegabytes(),
			"threshold_mb", g.cleanupBytes>>20)
		g.Cleanup()
	}
	if g.maxCPUPercent > 0 && s.CPUPercent > g.maxCPUPercent {
		g.log.Warn("cpu usage high",
			"cpu_percent", s.CPUPercent,
			"limit_percent", g.maxCPUPercent)
	}
	if s.SystemPercent > systemMemoryWarnPercent {
		g.log.Warn("system memory pressure",
			"system_percent", s.SystemPercent)
	}
}

// RegisterTemp records a temporary artifact for age-based cleanup.
func (g *Guard) RegisterTemp(path string) {
	if path == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.temps[path]; !ok {
		g.temps[path] = g.nowFn()
	}
}

// ReleaseTemp deletes one registered artifact immediately. Releasing an
// unknown or already-deleted path is a no-op.
func (g *Guard) ReleaseTemp(path string) {
	g.mu.Lock()
	_, ok := g.temps[path]
	delete(g.temps, path)
	g.mu.Unlock()

	if !ok {
		return
	}
	g.remove(path)
}

// Cleanup deletes registered artifacts older than the configured age and
// prunes the rate window.
func (g *Guard) Cleanup() {
	now := g.nowFn()

	g.mu.Lock()
	var expired []string
	for path, created := range g.temps {
		if now.Sub(created) > g.tempMaxAge {
			expired = append(expired, path)
			delete(g.temps, path)
		}
	}
	g.mu.Unlock()

	for _, path := range expired {
		g.remove(path)
	}
	if len(expired) > 0 {
		g.log.Info("cleaned temp artifacts", "count", len(expired))
	}

	if g.limiter != nil {
		g.limiter.Prune()
	}
}

// TempCount returns the number of currently registered artifacts.
func (g *Guard) TempCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.temps)
}

// releaseAll deletes every registered artifact regardless of age.
func (g *Guard) releaseAll() {
	g.mu.Lock()
	paths := make([]string, 0, len(g.temps))
	for path := range g.temps {
		paths = append(paths, path)
	}
	g.temps = make(map[string]time.Time)
	g.mu.Unlock()

	for _, path := range paths {
		g.remove(path)
	}
}

func (g *Guard) remove(path string) {
	if err := g.removeFn(path); err != nil && !os.IsNotExist(err) {
		g.log.Error("temp artifact removal failed", "path", path, "error", err)
	}
}

// sampleUsage reads this process's RSS and CPU plus system memory pressure.
func sampleUsage() (Sample, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return Sample{}, err
	}

	var s Sample
	if mi, err := proc.MemoryInfo(); err == nil && mi != nil {
		s.RSSBytes = mi.RSS
	}
	if pct, err := proc.CPUPercent(); err == nil {
		s.CPUPercent = pct
	}
	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		s.SystemPercent = vm.UsedPercent
	}
	return s, nil
}
