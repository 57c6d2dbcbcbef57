// Package profiler - Operation timings and runtime metrics with periodic reports.
package profiler

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MetricsCollector defines the interface for collecting custom metrics.
type MetricsCollector interface {
	CollectMetrics() map[string]float64
}

// RuntimeProfiler tracks operation timings, custom metrics and runtime memory statistics, and
// logs a report every ReportInterval while running. It is safe for concurrent use, and a nil
// *RuntimeProfiler is a valid no-op profiler.
type RuntimeProfiler struct {
	// Configuration
	reportInterval time.Duration
	sampleInterval time.Duration
	maxSamples     int
	logger         *zap.Logger

	// State management
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
	startTime time.Time
	running   bool

	// System metrics
	memStats    runtime.MemStats
	lastGCCount uint32

	// Custom metrics
	customMetrics map[string]*MetricTracker
	collectors    []MetricsCollector

	// Performance tracking
	operationTimes map[string]*TimeTracker
}

// MetricTracker tracks statistics for a custom metric over a sliding window.
type MetricTracker struct {
	values []float64
	sum    float64
	min    float64
	max    float64
	count  int64
}

// TimeTracker tracks operation timing statistics over a sliding window.
type TimeTracker struct {
	durations []time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// ProfilingOptions configures the runtime profiler.
type ProfilingOptions struct {
	// ReportInterval specifies how often to emit status reports (default: 2s)
	ReportInterval time.Duration `json:"report_interval" yaml:"report_interval"`
	// SampleInterval specifies how often to collect samples (default: 100ms)
	SampleInterval time.Duration `json:"sample_interval" yaml:"sample_interval"`
	// MaxSamples specifies maximum number of samples to keep (default: 600)
	MaxSamples int `json:"max_samples" yaml:"max_samples"`
}

// MetricStats summarizes a custom metric.
type MetricStats struct {
	Avg     float64 `json:"avg"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Samples int     `json:"samples"`
	Count   int64   `json:"count"`
}

// OperationStats summarizes an operation's timings.
type OperationStats struct {
	Avg     time.Duration `json:"avg"`
	Min     time.Duration `json:"min"`
	Max     time.Duration `json:"max"`
	Samples int           `json:"samples"`
	Count   int64         `json:"count"`
}

// MemoryStats is the subset of runtime.MemStats included in reports.
type MemoryStats struct {
	Alloc         uint64  `json:"alloc"`
	TotalAlloc    uint64  `json:"total_alloc"`
	Sys           uint64  `json:"sys"`
	HeapAlloc     uint64  `json:"heap_alloc"`
	HeapObjects   uint64  `json:"heap_objects"`
	GCCycles      uint32  `json:"gc_cycles"`
	GCCPUFraction float64 `json:"gc_cpu_fraction"`
}

// Snapshot is a point-in-time copy of everything the profiler tracks.
type Snapshot struct {
	Uptime     time.Duration             `json:"uptime"`
	Goroutines int                       `json:"goroutines"`
	CgoCalls   int64                     `json:"cgo_calls"`
	Memory     MemoryStats               `json:"memory"`
	Metrics    map[string]MetricStats    `json:"metrics"`
	Operations map[string]OperationStats `json:"operations"`
}

// NewRuntimeProfiler creates a new runtime profiler with the specified options.
//
// Arguments:
//   - opts: Configuration options for the profiler.
//   - logger: Receives the periodic reports; nil disables them.
//
// Returns:
//   - A configured RuntimeProfiler instance.
//
// @example
// p := NewRuntimeProfiler(ProfilingOptions{ReportInterval: 5 * time.Second}, logger)
// p.Start()
// defer p.Stop()
//
// stop := p.StartOperation("inference")
// runInference()
// stop()
func NewRuntimeProfiler(opts ProfilingOptions, logger *zap.Logger) *RuntimeProfiler {
	// Set defaults
	if opts.ReportInterval <= 0 {
		opts.ReportInterval = 2 * time.Second
	}
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = 100 * time.Millisecond
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = 600 // 1 minute of samples at 100ms intervals
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RuntimeProfiler{
		reportInterval: opts.ReportInterval,
		sampleInterval: opts.SampleInterval,
		maxSamples:     opts.MaxSamples,
		logger:         logger,
		startTime:      time.Now(),
		customMetrics:  make(map[string]*MetricTracker),
		operationTimes: make(map[string]*TimeTracker),
	}
}

// Start begins sampling and reporting in the background. Calling Start on a running
// profiler does nothing.
func (rp *RuntimeProfiler) Start() {
	if rp == nil {
		return
	}

	rp.mu.Lock()
	defer rp.mu.Unlock()

	if rp.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rp.cancel = cancel
	rp.running = true
	rp.startTime = time.Now()

	rp.wg.Add(2)
	go rp.sampleLoop(ctx)
	go rp.reportLoop(ctx)
}

// Stop stops the background goroutines and waits for them to finish.
func (rp *RuntimeProfiler) Stop() {
	if rp == nil {
		return
	}

	rp.mu.Lock()
	if !rp.running {
		rp.mu.Unlock()
		return
	}
	rp.running = false
	rp.cancel()
	rp.mu.Unlock()

	rp.wg.Wait()
}

// AddMetricsCollector registers a collector that is polled every sample interval.
func (rp *RuntimeProfiler) AddMetricsCollector(collector MetricsCollector) {
	if rp == nil {
		return
	}

	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.collectors = append(rp.collectors, collector)
}

// RecordMetric records a custom metric value.
func (rp *RuntimeProfiler) RecordMetric(name string, value float64) {
	if rp == nil {
		return
	}

	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.recordMetricLocked(name, value)
}

func (rp *RuntimeProfiler) recordMetricLocked(name string, value float64) {
	tracker, exists := rp.customMetrics[name]
	if !exists {
		tracker = &MetricTracker{
			values: make([]float64, 0, rp.maxSamples),
			min:    value,
			max:    value,
		}
		rp.customMetrics[name] = tracker
	}

	tracker.values = append(tracker.values, value)
	tracker.sum += value
	if len(tracker.values) > rp.maxSamples {
		// Remove oldest sample
		tracker.sum -= tracker.values[0]
		tracker.values = tracker.values[1:]
	}
	tracker.count++

	if value < tracker.min {
		tracker.min = value
	}
	if value > tracker.max {
		tracker.max = value
	}
}

// StartOperation begins timing an operation.
//
// Arguments:
//   - name: The name of the operation to track.
//
// Returns:
//   - A function to call when the operation completes.
func (rp *RuntimeProfiler) StartOperation(name string) func() {
	if rp == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		rp.RecordOperation(name, time.Since(start))
	}
}

// RecordOperation records the duration of a completed operation.
func (rp *RuntimeProfiler) RecordOperation(name string, duration time.Duration) {
	if rp == nil {
		return
	}

	rp.mu.Lock()
	defer rp.mu.Unlock()

	tracker, exists := rp.operationTimes[name]
	if !exists {
		tracker = &TimeTracker{
			minTime: duration,
			maxTime: duration,
		}
		rp.operationTimes[name] = tracker
	}

	tracker.durations = append(tracker.durations, duration)
	tracker.totalTime += duration
	if len(tracker.durations) > rp.maxSamples {
		// Remove oldest sample
		tracker.totalTime -= tracker.durations[0]
		tracker.durations = tracker.durations[1:]
	}
	tracker.count++

	if duration < tracker.minTime {
		tracker.minTime = duration
	}
	if duration > tracker.maxTime {
		tracker.maxTime = duration
	}
}

// sampleLoop continuously collects system metrics.
func (rp *RuntimeProfiler) sampleLoop(ctx context.Context) {
	defer rp.wg.Done()

	ticker := time.NewTicker(rp.sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rp.sample()
		}
	}
}

func (rp *RuntimeProfiler) sample() {
	rp.mu.RLock()
	collectors := append([]MetricsCollector(nil), rp.collectors...)
	rp.mu.RUnlock()

	// Collectors run without the lock so they may call back into the profiler.
	collected := make([]map[string]float64, 0, len(collectors))
	for _, collector := range collectors {
		collected = append(collected, collector.CollectMetrics())
	}

	rp.mu.Lock()
	defer rp.mu.Unlock()

	runtime.ReadMemStats(&rp.memStats)
	for _, metrics := range collected {
		for name, value := range metrics {
			rp.recordMetricLocked(name, value)
		}
	}
}

func (rp *RuntimeProfiler) reportLoop(ctx context.Context) {
	defer rp.wg.Done()

	ticker := time.NewTicker(rp.reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rp.emitStatusReport()
		}
	}
}

// emitStatusReport logs a summary line for the runtime and one line per tracked operation
// and metric, in name order.
func (rp *RuntimeProfiler) emitStatusReport() {
	snap := rp.Snapshot()

	fields := []zap.Field{
		zap.Duration("uptime", snap.Uptime.Truncate(time.Millisecond)),
		zap.Int("goroutines", snap.Goroutines),
		zap.Int64("cgo_calls", snap.CgoCalls),
		zap.String("alloc", formatBytes(snap.Memory.Alloc)),
		zap.String("sys", formatBytes(snap.Memory.Sys)),
		zap.Uint64("heap_objects", snap.Memory.HeapObjects),
	}

	rp.mu.Lock()
	if snap.Memory.GCCycles > rp.lastGCCount {
		fields = append(fields,
			zap.Uint32("gc_cycles", snap.Memory.GCCycles),
			zap.Uint32("gc_new", snap.Memory.GCCycles-rp.lastGCCount),
			zap.Float64("gc_cpu_fraction", snap.Memory.GCCPUFraction),
		)
		rp.lastGCCount = snap.Memory.GCCycles
	}
	rp.mu.Unlock()

	rp.logger.Info("runtime profile", fields...)

	for _, name := range sortedKeys(snap.Operations) {
		op := snap.Operations[name]
		rp.logger.Info("operation timing",
			zap.String("operation", name),
			zap.Duration("avg", op.Avg.Truncate(time.Microsecond)),
			zap.Duration("min", op.Min.Truncate(time.Microsecond)),
			zap.Duration("max", op.Max.Truncate(time.Microsecond)),
			zap.Int64("count", op.Count),
		)
	}

	for _, name := range sortedKeys(snap.Metrics) {
		m := snap.Metrics[name]
		rp.logger.Info("metric",
			zap.String("metric", name),
			zap.Float64("avg", m.Avg),
			zap.Float64("min", m.Min),
			zap.Float64("max", m.Max),
			zap.Int("samples", m.Samples),
		)
	}
}

// Snapshot returns the current profiling statistics.
func (rp *RuntimeProfiler) Snapshot() Snapshot {
	if rp == nil {
		return Snapshot{}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	rp.mu.RLock()
	defer rp.mu.RUnlock()

	snap := Snapshot{
		Uptime:     time.Since(rp.startTime),
		Goroutines: runtime.NumGoroutine(),
		CgoCalls:   runtime.NumCgoCall(),
		Memory: MemoryStats{
			Alloc:         mem.Alloc,
			TotalAlloc:    mem.TotalAlloc,
			Sys:           mem.Sys,
			HeapAlloc:     mem.HeapAlloc,
			HeapObjects:   mem.HeapObjects,
			GCCycles:      mem.NumGC,
			GCCPUFraction: mem.GCCPUFraction,
		},
		Metrics:    make(map[string]MetricStats, len(rp.customMetrics)),
		Operations: make(map[string]OperationStats, len(rp.operationTimes)),
	}

	for name, tracker := range rp.customMetrics {
		if len(tracker.values) == 0 {
			continue
		}
		snap.Metrics[name] = MetricStats{
			Avg:     tracker.sum / float64(len(tracker.values)),
			Min:     tracker.min,
			Max:     tracker.max,
			Samples: len(tracker.values),
			Count:   tracker.count,
		}
	}

	for name, tracker := range rp.operationTimes {
		if len(tracker.durations) == 0 {
			continue
		}
		snap.Operations[name] = OperationStats{
			Avg:     tracker.totalTime / time.Duration(len(tracker.durations)),
			Min:     tracker.minTime,
			Max:     tracker.maxTime,
			Samples: len(tracker.durations),
			Count:   tracker.count,
		}
	}

	return snap
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatBytes formats byte counts in human-readable format.
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
