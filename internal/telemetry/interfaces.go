// Package telemetry defines the narrow logger and metrics interfaces the
// server components depend on, plus adapters onto the process counters
// and an OpenTelemetry meter.
package telemetry

import "log"

// Logger receives operational messages that are not simulation events.
type Logger interface {
	Printf(format string, args ...any)
}

type LoggerFunc func(format string, args ...any)

func (f LoggerFunc) Printf(format string, args ...any) {
	if f != nil {
		f(format, args...)
	}
}

// WrapLogger returns l as a Logger. A nil l discards everything.
func WrapLogger(l *log.Logger) Logger {
	if l == nil {
		return LoggerFunc(nil)
	}
	return l
}

// Metrics records named counters (Add) and gauges (Store).
type Metrics interface {
	Add(key string, delta uint64)
	Store(key string, value uint64)
}

// CounterStore is implemented by *logging.Metrics.
type CounterStore interface {
	TelemetryAdd(key string, delta uint64)
	TelemetryStore(key string, value uint64)
}

// WrapMetrics forwards to store. A nil store discards everything.
func WrapMetrics(store CounterStore) Metrics {
	return storeMetrics{store: store}
}

type storeMetrics struct {
	store CounterStore
}

func (m storeMetrics) Add(key string, delta uint64) {
	if m.store != nil {
		m.store.TelemetryAdd(key, delta)
	}
}

func (m storeMetrics) Store(key string, value uint64) {
	if m.store != nil {
		m.store.TelemetryStore(key, value)
	}
}
