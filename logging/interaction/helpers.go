package interaction

import (
	"context"

	"skirmish/server/logging"
)

const (
	// EventAdmitted is emitted when a request passes validation and is queued.
	EventAdmitted logging.EventType = "interaction.admitted"
	// EventRejected is emitted when a request is dropped at admission.
	EventRejected logging.EventType = "interaction.rejected"
	// EventExecuted is emitted after the consumer runs a request's handler.
	EventExecuted logging.EventType = "interaction.executed"
	// EventBacklogDiscarded is emitted when shutdown drops queued requests.
	EventBacklogDiscarded logging.EventType = "interaction.backlog_discarded"
)

// RequestPayload identifies a request in admission events.
type RequestPayload struct {
	Kind         string `json:"kind"`
	Category     string `json:"category"`
	ConnectionID int    `json:"connectionId"`
	Reason       string `json:"reason,omitempty"`
}

// ExecutedPayload records a handler outcome.
type ExecutedPayload struct {
	Kind    string `json:"kind"`
	OK      bool   `json:"ok"`
	Detail  string `json:"detail,omitempty"`
	Latency int64  `json:"latencyMicros"`
}

// BacklogDiscardedPayload records how many requests were dropped on shutdown.
type BacklogDiscardedPayload struct {
	Discarded int `json:"discarded"`
}

// Admitted publishes a debug event for a queued request.
func Admitted(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, commandID string, payload RequestPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:      EventAdmitted,
		Tick:      tick,
		Actor:     actor,
		Severity:  logging.SeverityDebug,
		Category:  "interaction",
		Payload:   payload,
		Extra:     extra,
		CommandID: commandID,
	})
}

// Rejected publishes a warning for a request dropped at admission.
func Rejected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, commandID string, payload RequestPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:      EventRejected,
		Tick:      tick,
		Actor:     actor,
		Severity:  logging.SeverityWarn,
		Category:  "interaction",
		Payload:   payload,
		Extra:     extra,
		CommandID: commandID,
	})
}

// Executed publishes the result of a handler. Failed handlers are warnings.
func Executed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, commandID string, payload ExecutedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	severity := logging.SeverityInfo
	if !payload.OK {
		severity = logging.SeverityWarn
	}
	pub.Publish(ctx, logging.Event{
		Type:      EventExecuted,
		Tick:      tick,
		Actor:     actor,
		Severity:  severity,
		Category:  "interaction",
		Payload:   payload,
		Extra:     extra,
		CommandID: commandID,
	})
}

// BacklogDiscarded publishes an info event when shutdown drops queued requests.
func BacklogDiscarded(ctx context.Context, pub logging.Publisher, tick uint64, payload BacklogDiscardedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventBacklogDiscarded,
		Tick:     tick,
		Actor:    logging.EntityRef{ID: "interaction-pipeline", Kind: logging.EntityKindWorld},
		Severity: logging.SeverityInfo,
		Category: "interaction",
		Payload:  payload,
		Extra:    extra,
	})
}
