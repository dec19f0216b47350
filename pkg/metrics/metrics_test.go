package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestInMemoryProvider_CounterAccumulates(t *testing.T) {
	p := NewInMemoryProvider()
	p.Counter("tool_calls_total", 1, MustLabel("tool", "http_fetch"))
	p.Counter("tool_calls_total", 1, MustLabel("tool", "http_fetch"))
	p.Counter("tool_calls_total", 1, MustLabel("tool", "shell_exec"))

	snap, ok := p.Snapshot("tool_calls_total", MustLabel("tool", "http_fetch"))
	require.True(t, ok)
	require.Equal(t, float64(2), snap.Value)
	require.Equal(t, int64(2), snap.Count)

	snap, ok = p.Snapshot("tool_calls_total", MustLabel("tool", "shell_exec"))
	require.True(t, ok)
	require.Equal(t, float64(1), snap.Value)
}

func TestInMemoryProvider_GaugeOverwrites(t *testing.T) {
	p := NewInMemoryProvider()
	p.Gauge("queue_depth", 5, nil)
	p.Gauge("queue_depth", 3, nil)

	snap, ok := p.Snapshot("queue_depth", nil)
	require.True(t, ok)
	require.Equal(t, float64(3), snap.Value)
	require.Equal(t, "gauge", snap.Kind)
}

func TestInMemoryProvider_HistogramAccumulatesSum(t *testing.T) {
	p := NewInMemoryProvider()
	p.Histogram("verify_duration_ms", 10, nil)
	p.Histogram("verify_duration_ms", 20, nil)

	snap, ok := p.Snapshot("verify_duration_ms", nil)
	require.True(t, ok)
	require.Equal(t, float64(30), snap.Sum)
	require.Equal(t, int64(2), snap.Count)
	require.Equal(t, float64(20), snap.Value)
}

func TestSeriesKey_LabelOrderInsensitive(t *testing.T) {
	require.Equal(t,
		seriesKey("x", map[string]string{"a": "1", "b": "2"}),
		seriesKey("x", map[string]string{"b": "2", "a": "1"}),
	)
}

func TestInMemoryProvider_DistinctLabelsDistinctSeries(t *testing.T) {
	p := NewInMemoryProvider()
	p.Counter("x", 1, MustLabel("tier", "low"))
	p.Counter("x", 1, MustLabel("tier", "high"))

	all := p.All()
	require.Len(t, all, 2)
}

func TestNoopProvider_DiscardsObservations(t *testing.T) {
	var p NoopProvider
	require.NotPanics(t, func() {
		p.Counter("x", 1, nil)
		p.Gauge("y", 1, nil)
		p.Histogram("z", 1, nil)
	})
}

func TestOTelProvider_RecordsThroughManualReader(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	p := NewOTelProvider("agentruntime.test", reader)

	p.Counter("requests_total", 1, MustLabel("outcome", "ok"))
	p.Histogram("latency_ms", 42, nil)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.NotEmpty(t, rm.ScopeMetrics)

	var sawCounter, sawHistogram bool
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch m.Name {
			case "requests_total":
				sawCounter = true
			case "latency_ms":
				sawHistogram = true
			}
		}
	}
	require.True(t, sawCounter)
	require.True(t, sawHistogram)
}
