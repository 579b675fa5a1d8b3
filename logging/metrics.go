package logging

import (
	"sync"
	"sync/atomic"
)

// Metrics is a process-local counter and gauge registry keyed by name.
type Metrics struct {
	values sync.Map
}

func (m *Metrics) slot(key string) *atomic.Uint64 {
	if v, ok := m.values.Load(key); ok {
		return v.(*atomic.Uint64)
	}
	v, _ := m.values.LoadOrStore(key, new(atomic.Uint64))
	return v.(*atomic.Uint64)
}

// TelemetryAdd increments key by delta.
func (m *Metrics) TelemetryAdd(key string, delta uint64) {
	if m == nil || key == "" {
		return
	}
	m.slot(key).Add(delta)
}

// TelemetryStore overwrites key with value.
func (m *Metrics) TelemetryStore(key string, value uint64) {
	if m == nil || key == "" {
		return
	}
	m.slot(key).Store(value)
}

// Snapshot copies every recorded value.
func (m *Metrics) Snapshot() map[string]uint64 {
	out := make(map[string]uint64)
	if m == nil {
		return out
	}
	m.values.Range(func(k, v any) bool {
		out[k.(string)] = v.(*atomic.Uint64).Load()
		return true
	})
	return out
}
