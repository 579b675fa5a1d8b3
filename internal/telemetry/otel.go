package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// WrapMeter exports Metrics keys as OpenTelemetry instruments. Add maps to
// an Int64Counter and Store to an Int64Gauge, each created on first use.
func WrapMeter(meter metric.Meter, logger Logger) Metrics {
	return &meterAdapter{meter: meter, logger: logger}
}

type meterAdapter struct {
	meter    metric.Meter
	logger   Logger
	counters sync.Map
	gauges   sync.Map
}

func (m *meterAdapter) Add(key string, delta uint64) {
	if m == nil || m.meter == nil {
		return
	}
	counter, ok := m.counter(key)
	if !ok {
		return
	}
	counter.Add(context.Background(), int64(delta))
}

func (m *meterAdapter) Store(key string, value uint64) {
	if m == nil || m.meter == nil {
		return
	}
	gauge, ok := m.gauge(key)
	if !ok {
		return
	}
	gauge.Record(context.Background(), int64(value))
}

func (m *meterAdapter) counter(key string) (metric.Int64Counter, bool) {
	if v, ok := m.counters.Load(key); ok {
		return v.(metric.Int64Counter), true
	}
	counter, err := m.meter.Int64Counter(key)
	if err != nil {
		m.printf("telemetry: create counter %s: %v", key, err)
		return nil, false
	}
	v, _ := m.counters.LoadOrStore(key, counter)
	return v.(metric.Int64Counter), true
}

func (m *meterAdapter) gauge(key string) (metric.Int64Gauge, bool) {
	if v, ok := m.gauges.Load(key); ok {
		return v.(metric.Int64Gauge), true
	}
	gauge, err := m.meter.Int64Gauge(key)
	if err != nil {
		m.printf("telemetry: create gauge %s: %v", key, err)
		return nil, false
	}
	v, _ := m.gauges.LoadOrStore(key, gauge)
	return v.(metric.Int64Gauge), true
}

func (m *meterAdapter) printf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}

// Fanout sends every update to each non-nil target.
func Fanout(targets ...Metrics) Metrics {
	var kept multiMetrics
	for _, t := range targets {
		if t != nil {
			kept = append(kept, t)
		}
	}
	return kept
}

type multiMetrics []Metrics

func (m multiMetrics) Add(key string, delta uint64) {
	for _, t := range m {
		t.Add(key, delta)
	}
}

func (m multiMetrics) Store(key string, value uint64) {
	for _, t := range m {
		t.Store(key, value)
	}
}

// Collect reads every int64 instrument from reader. Counter data points
// are summed; gauges report their last value.
func Collect(ctx context.Context, reader sdkmetric.Reader) (map[string]int64, error) {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}
	values := make(map[string]int64)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					values[m.Name] += dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					values[m.Name] = dp.Value
				}
			}
		}
	}
	return values, nil
}
