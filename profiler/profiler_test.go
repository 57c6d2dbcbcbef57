package profiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type staticCollector map[string]float64

func (c staticCollector) CollectMetrics() map[string]float64 { return c }

func TestRecordOperation(t *testing.T) {
	p := NewRuntimeProfiler(ProfilingOptions{MaxSamples: 3}, nil)

	for _, d := range []time.Duration{10, 20, 30, 40} {
		p.RecordOperation("inference", d*time.Millisecond)
	}

	op := p.Snapshot().Operations["inference"]
	assert.Equal(t, 3, op.Samples, "the window keeps the newest samples")
	assert.Equal(t, int64(4), op.Count)
	assert.Equal(t, 30*time.Millisecond, op.Avg)
	assert.Equal(t, 10*time.Millisecond, op.Min)
	assert.Equal(t, 40*time.Millisecond, op.Max)
}

func TestRecordMetric(t *testing.T) {
	p := NewRuntimeProfiler(ProfilingOptions{MaxSamples: 2}, nil)

	p.RecordMetric("detections", 1)
	p.RecordMetric("detections", 5)
	p.RecordMetric("detections", 3)

	m := p.Snapshot().Metrics["detections"]
	assert.Equal(t, 2, m.Samples)
	assert.Equal(t, int64(3), m.Count)
	assert.Equal(t, 4.0, m.Avg)
	assert.Equal(t, 1.0, m.Min)
	assert.Equal(t, 5.0, m.Max)
}

func TestStartOperation(t *testing.T) {
	p := NewRuntimeProfiler(ProfilingOptions{}, nil)

	stop := p.StartOperation("decode")
	time.Sleep(time.Millisecond)
	stop()

	op, ok := p.Snapshot().Operations["decode"]
	require.True(t, ok)
	assert.GreaterOrEqual(t, op.Min, time.Millisecond)
}

func TestNilProfiler(t *testing.T) {
	var p *RuntimeProfiler

	assert.NotPanics(t, func() {
		p.Start()
		p.RecordMetric("x", 1)
		p.RecordOperation("y", time.Second)
		p.StartOperation("z")()
		p.AddMetricsCollector(staticCollector{})
		p.Stop()
		_ = p.Snapshot()
	})
}

func TestReports(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := NewRuntimeProfiler(ProfilingOptions{
		ReportInterval: 10 * time.Millisecond,
		SampleInterval: 5 * time.Millisecond,
	}, zap.New(core))

	p.AddMetricsCollector(staticCollector{"queue_depth": 2})
	p.RecordOperation("inference", 5*time.Millisecond)

	p.Start()
	p.Start()
	require.Eventually(t, func() bool {
		return logs.FilterMessage("metric").Len() > 0
	}, time.Second, 5*time.Millisecond)
	p.Stop()
	p.Stop()

	assert.Positive(t, logs.FilterMessage("runtime profile").Len())
	assert.Positive(t, logs.FilterMessage("operation timing").FilterField(zap.String("operation", "inference")).Len())
	assert.Positive(t, logs.FilterMessage("metric").FilterField(zap.String("metric", "queue_depth")).Len())
	assert.Equal(t, 2.0, p.Snapshot().Metrics["queue_depth"].Avg)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.0 KB", formatBytes(1024))
	assert.Equal(t, "1.5 MB", formatBytes(1536*1024))
}
