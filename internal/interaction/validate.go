package interaction

import (
	"time"

	"github.com/google/uuid"
)

const (
	RejectMalformed        = "malformed"
	RejectMissingCommandID = "missing_command_id"
	RejectInvalidTick      = "invalid_tick"
	RejectStaleTimestamp   = "stale_timestamp"
	RejectUnknownCategory  = "unknown_category"
	RejectCategoryMismatch = "category_mismatch"
	RejectInvalidPayload   = "invalid_payload"
	RejectQueueFull        = "queue_full"
	RejectConnectionLimit  = "connection_limit"
	RejectRateLimited      = "rate_limited"
	RejectStopped          = "stopped"
	RejectUnauthorized     = "unauthorized"
)

// DefaultTimestampTolerance bounds how far a request timestamp may drift
// from the server clock.
const DefaultTimestampTolerance = 5000 * time.Millisecond

// Validate checks header and payload legality. It never mutates req.
func Validate(req Request, now time.Time, tolerance time.Duration) (bool, string) {
	h := req.Header
	if h.CommandID == uuid.Nil {
		return false, RejectMissingCommandID
	}
	if h.Tick <= 0 {
		return false, RejectInvalidTick
	}
	if tolerance <= 0 {
		tolerance = DefaultTimestampTolerance
	}
	drift := now.Sub(time.UnixMilli(h.TimestampMs))
	if drift < 0 {
		drift = -drift
	}
	if drift > tolerance {
		return false, RejectStaleTimestamp
	}
	if !h.Category.Valid() {
		return false, RejectUnknownCategory
	}
	if req.Payload == nil || !req.Payload.IsValid() {
		return false, RejectInvalidPayload
	}
	if req.Payload.Category() != h.Category {
		return false, RejectCategoryMismatch
	}
	if _, ok := req.Payload.(UnionChangePayload); ok && h.Authority != AuthorityServer {
		return false, RejectUnauthorized
	}
	return true, ""
}
