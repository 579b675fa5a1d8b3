package prediction

import (
	"context"

	"skirmish/server/logging"
)

const (
	// EventCommandDropped is emitted when a predicted command is refused before simulation.
	EventCommandDropped logging.EventType = "prediction.command_dropped"
	// EventInputRejected is emitted when a state machine refuses a command during simulation.
	EventInputRejected logging.EventType = "prediction.input_rejected"
	// EventReconciled is emitted when a predicted state is rewound to the server state and replayed.
	EventReconciled logging.EventType = "prediction.reconciled"
)

// CommandDroppedPayload names the reason a command never reached simulation.
type CommandDroppedPayload struct {
	Reason       string `json:"reason"`
	Category     string `json:"category"`
	ConnectionID int    `json:"connectionId"`
	CommandTick  int64  `json:"commandTick"`
}

// InputRejectedPayload describes a refused input.
type InputRejectedPayload struct {
	Reason    string  `json:"reason"`
	Animation string  `json:"animation,omitempty"`
	Required  float64 `json:"required,omitempty"`
	Available float64 `json:"available,omitempty"`
}

// ReconciledPayload summarises a rewind and replay.
type ReconciledPayload struct {
	ConfirmedTick int64 `json:"confirmedTick"`
	Replayed      int   `json:"replayed"`
	Rejected      int   `json:"rejected,omitempty"`
}

// CommandDropped publishes a debug event for a dropped command.
func CommandDropped(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload CommandDroppedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventCommandDropped,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: "prediction",
		Payload:  payload,
		Extra:    extra,
	})
}

// InputRejected publishes a warning when simulation refuses an input.
func InputRejected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload InputRejectedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventInputRejected,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: "prediction",
		Payload:  payload,
		Extra:    extra,
	})
}

// Reconciled publishes an info event after a replay.
func Reconciled(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ReconciledPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventReconciled,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: "prediction",
		Payload:  payload,
		Extra:    extra,
	})
}
