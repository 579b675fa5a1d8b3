package simulation

import (
	"context"

	"skirmish/server/logging"
)

const (
	EventTickBudgetOverrun logging.EventType = "simulation.tick_budget_overrun"
	// EventTickBudgetAlarm follows an overrun streak long enough to force
	// keyframes for every subscriber.
	EventTickBudgetAlarm logging.EventType = "simulation.tick_budget_alarm"
)

type TickBudgetOverrunPayload struct {
	DurationMillis int64   `json:"durationMillis"`
	BudgetMillis   int64   `json:"budgetMillis"`
	Ratio          float64 `json:"ratio"`
	Streak         uint64  `json:"streak"`
}

type TickBudgetAlarmPayload struct {
	DurationMillis  int64   `json:"durationMillis"`
	BudgetMillis    int64   `json:"budgetMillis"`
	Ratio           float64 `json:"ratio"`
	Streak          uint64  `json:"streak"`
	ResyncScheduled bool    `json:"resyncScheduled"`
	ThresholdRatio  float64 `json:"thresholdRatio"`
	ThresholdStreak uint64  `json:"thresholdStreak"`
}

var loopActor = logging.EntityRef{ID: "loop", Kind: logging.EntityKindWorld}

func TickBudgetOverrun(ctx context.Context, pub logging.Publisher, tick uint64, payload TickBudgetOverrunPayload, extra map[string]any) {
	publish(ctx, pub, EventTickBudgetOverrun, logging.SeverityWarn, tick, payload, extra)
}

func TickBudgetAlarm(ctx context.Context, pub logging.Publisher, tick uint64, payload TickBudgetAlarmPayload, extra map[string]any) {
	publish(ctx, pub, EventTickBudgetAlarm, logging.SeverityError, tick, payload, extra)
}

func publish(ctx context.Context, pub logging.Publisher, typ logging.EventType, severity logging.Severity, tick uint64, payload any, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     typ,
		Tick:     tick,
		Actor:    loopActor,
		Severity: severity,
		Category: "simulation",
		Payload:  payload,
		Extra:    extra,
	})
}
