package sinks

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"skirmish/server/logging"
)

// JSON writes newline-delimited events. With a positive flush interval the
// buffer is flushed on a timer, otherwise after every event.
type JSON struct {
	mu      sync.Mutex
	writer  *bufio.Writer
	encoder *json.Encoder
	done    chan struct{}
	once    sync.Once
}

type jsonRecord struct {
	Type      logging.EventType   `json:"type"`
	Tick      uint64              `json:"tick"`
	Time      string              `json:"time"`
	Severity  string              `json:"severity"`
	Category  string              `json:"category,omitempty"`
	Actor     logging.EntityRef   `json:"actor"`
	Targets   []logging.EntityRef `json:"targets,omitempty"`
	Payload   any                 `json:"payload,omitempty"`
	Extra     map[string]any      `json:"extra,omitempty"`
	CommandID string              `json:"commandId,omitempty"`
}

func NewJSON(w io.Writer, flushInterval time.Duration) *JSON {
	if w == nil {
		w = io.Discard
	}
	buf := bufio.NewWriter(w)
	sink := &JSON{writer: buf, encoder: json.NewEncoder(buf)}
	if flushInterval > 0 {
		sink.done = make(chan struct{})
		go sink.flushEvery(flushInterval)
	}
	return sink
}

func (s *JSON) Write(event logging.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.encoder.Encode(jsonRecord{
		Type:      event.Type,
		Tick:      event.Tick,
		Time:      event.Time.UTC().Format(time.RFC3339Nano),
		Severity:  event.Severity.String(),
		Category:  event.Category,
		Actor:     event.Actor,
		Targets:   event.Targets,
		Payload:   event.Payload,
		Extra:     event.Extra,
		CommandID: event.CommandID,
	})
	if err != nil {
		return err
	}
	if s.done == nil {
		return s.writer.Flush()
	}
	return nil
}

// Close stops the flush timer and flushes what is buffered.
func (s *JSON) Close(context.Context) error {
	s.once.Do(func() {
		if s.done != nil {
			close(s.done)
		}
	})
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer.Flush()
}

func (s *JSON) flushEvery(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.writer.Flush()
			s.mu.Unlock()
		}
	}
}
