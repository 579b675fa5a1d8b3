package network

import (
	"context"

	"skirmish/server/logging"
)

const (
	// EventAckAdvanced is emitted when a client acknowledges a newer tick.
	EventAckAdvanced logging.EventType = "network.ack_advanced"
	// EventAckRegression is emitted when a client reports an older acknowledgement than previously recorded.
	EventAckRegression logging.EventType = "network.ack_regression"
	// EventRateLimited is emitted when a connection exceeds its request budget.
	EventRateLimited logging.EventType = "network.rate_limited"
	// EventFrameRejected is emitted when a client frame cannot be decoded or routed.
	EventFrameRejected logging.EventType = "network.frame_rejected"
)

// AckPayload captures acknowledgement progression details.
type AckPayload struct {
	Previous uint64 `json:"previous"`
	Ack      uint64 `json:"ack"`
}

// RateLimitedPayload records how many frames a connection has had dropped.
type RateLimitedPayload struct {
	Dropped uint64 `json:"dropped"`
}

// FrameRejectedPayload records why a frame was refused.
type FrameRejectedPayload struct {
	Reason string `json:"reason"`
	Bytes  int    `json:"bytes"`
}

// AckAdvanced publishes a debug event when a client acknowledgement advances.
func AckAdvanced(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload AckPayload, extra map[string]any) {
	publish(ctx, pub, EventAckAdvanced, logging.SeverityDebug, tick, actor, payload, extra)
}

// AckRegression publishes a warning event when a client acknowledgement regresses.
func AckRegression(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload AckPayload, extra map[string]any) {
	publish(ctx, pub, EventAckRegression, logging.SeverityWarn, tick, actor, payload, extra)
}

// RateLimited publishes a warning when a connection's limiter refuses a frame.
func RateLimited(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload RateLimitedPayload, extra map[string]any) {
	publish(ctx, pub, EventRateLimited, logging.SeverityWarn, tick, actor, payload, extra)
}

// FrameRejected publishes a warning for an undecodable frame.
func FrameRejected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload FrameRejectedPayload, extra map[string]any) {
	publish(ctx, pub, EventFrameRejected, logging.SeverityWarn, tick, actor, payload, extra)
}

func publish(ctx context.Context, pub logging.Publisher, typ logging.EventType, severity logging.Severity, tick uint64, actor logging.EntityRef, payload any, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     typ,
		Tick:     tick,
		Actor:    actor,
		Severity: severity,
		Category: "network",
		Payload:  payload,
		Extra:    extra,
	})
}
