// Package logging routes structured simulation events to pluggable sinks.
// Producers publish typed events through the helpers in the subpackages;
// the Router fans them out asynchronously so the tick loop never blocks
// on I/O.
package logging

import (
	"context"
	"maps"
	"slices"
	"time"
)

type EventType string

type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

type EntityKind string

const (
	EntityKindPlayer     EntityKind = "player"
	EntityKindConnection EntityKind = "connection"
	EntityKindWorld      EntityKind = "world"
)

// Event is one structured log record. CommandID links events raised while
// handling the same interaction request.
type Event struct {
	Type      EventType      `json:"type"`
	Tick      uint64         `json:"tick"`
	Time      time.Time      `json:"time"`
	Actor     EntityRef      `json:"actor"`
	Targets   []EntityRef    `json:"targets,omitempty"`
	Severity  Severity       `json:"severity"`
	Category  string         `json:"category,omitempty"`
	Payload   any            `json:"payload,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
	CommandID string         `json:"commandId,omitempty"`
}

type EntityRef struct {
	ID   string     `json:"id"`
	Kind EntityKind `json:"kind"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event)
}

type PublisherFunc func(ctx context.Context, event Event)

func (f PublisherFunc) Publish(ctx context.Context, event Event) {
	if f == nil {
		return
	}
	f(ctx, event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) {}

func NopPublisher() Publisher {
	return nopPublisher{}
}

// Clone returns a copy of e whose Targets and Extra do not alias e.
func (e Event) Clone() Event {
	cloned := e
	cloned.Targets = slices.Clone(e.Targets)
	cloned.Extra = maps.Clone(e.Extra)
	return cloned
}

// withDefaults copies fields into Extra without overwriting keys the
// producer set itself.
func (e Event) withDefaults(fields map[string]any) Event {
	if len(fields) == 0 {
		return e
	}
	e = e.Clone()
	if e.Extra == nil {
		e.Extra = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		if _, exists := e.Extra[k]; !exists {
			e.Extra[k] = v
		}
	}
	return e
}
