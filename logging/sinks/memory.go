package sinks

import (
	"context"
	"sync"

	"skirmish/server/logging"
)

// MemorySink records every event so tests can assert on them.
type MemorySink struct {
	mu     sync.RWMutex
	events []logging.Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Write(event logging.Event) error {
	s.mu.Lock()
	s.events = append(s.events, event.Clone())
	s.mu.Unlock()
	return nil
}

func (s *MemorySink) Events() []logging.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]logging.Event, len(s.events))
	for i, event := range s.events {
		out[i] = event.Clone()
	}
	return out
}

// OfType returns the recorded events with the given type, oldest first.
func (s *MemorySink) OfType(typ logging.EventType) []logging.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []logging.Event
	for _, event := range s.events {
		if event.Type == typ {
			out = append(out, event.Clone())
		}
	}
	return out
}

func (s *MemorySink) Reset() {
	s.mu.Lock()
	s.events = nil
	s.mu.Unlock()
}

func (s *MemorySink) Close(context.Context) error {
	return nil
}
