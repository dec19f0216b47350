package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// OTelProvider adapts the Provider interface onto an OpenTelemetry meter, for
// processes that want metrics exported through an OTLP pipeline instead of
// read back in-process. Grounded on the teacher's
// pkg/observability.Provider RED-metric wiring, stripped of tracing and of
// the OTLP gRPC exporters (transport selection is left to the caller,
// through the readers passed to NewOTelProvider).
type OTelProvider struct {
	meter metric.Meter

	mu         sync.Mutex
	counters   map[string]metric.Float64Counter
	gauges     map[string]metric.Float64Gauge
	histograms map[string]metric.Float64Histogram
}

// NewOTelProvider builds an OTelProvider from caller-supplied sdk/metric
// readers (e.g. a periodic reader wrapping an OTLP exporter, or a manual
// reader for tests). Passing no readers still produces a valid, inert
// MeterProvider.
func NewOTelProvider(instrumentationName string, readers ...sdkmetric.Reader) *OTelProvider {
	opts := make([]sdkmetric.Option, 0, len(readers))
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}
	mp := sdkmetric.NewMeterProvider(opts...)
	return &OTelProvider{
		meter:      mp.Meter(instrumentationName),
		counters:   make(map[string]metric.Float64Counter),
		gauges:     make(map[string]metric.Float64Gauge),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

func toAttrs(labels map[string]string) []attribute.KeyValue {
	if len(labels) == 0 {
		return nil
	}
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

func (p *OTelProvider) Counter(name string, delta float64, labels map[string]string) {
	p.mu.Lock()
	c, ok := p.counters[name]
	if !ok {
		var err error
		c, err = p.meter.Float64Counter(name)
		if err != nil {
			p.mu.Unlock()
			return
		}
		p.counters[name] = c
	}
	p.mu.Unlock()
	c.Add(context.Background(), delta, metric.WithAttributes(toAttrs(labels)...))
}

func (p *OTelProvider) Gauge(name string, value float64, labels map[string]string) {
	p.mu.Lock()
	g, ok := p.gauges[name]
	if !ok {
		var err error
		g, err = p.meter.Float64Gauge(name)
		if err != nil {
			p.mu.Unlock()
			return
		}
		p.gauges[name] = g
	}
	p.mu.Unlock()
	g.Record(context.Background(), value, metric.WithAttributes(toAttrs(labels)...))
}

func (p *OTelProvider) Histogram(name string, value float64, labels map[string]string) {
	p.mu.Lock()
	h, ok := p.histograms[name]
	if !ok {
		var err error
		h, err = p.meter.Float64Histogram(name)
		if err != nil {
			p.mu.Unlock()
			return
		}
		p.histograms[name] = h
	}
	p.mu.Unlock()
	h.Record(context.Background(), value, metric.WithAttributes(toAttrs(labels)...))
}

var _ Provider = (*OTelProvider)(nil)
