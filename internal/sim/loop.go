package sim

import (
	"context"
	"time"

	"skirmish/server/internal/telemetry"
	"skirmish/server/logging"
	loggingsimulation "skirmish/server/logging/simulation"
)

const (
	metricKeyTicks        = "sim_ticks_total"
	metricKeyTickDuration = "sim_tick_duration_micros"
	metricKeyOverruns     = "sim_budget_overruns_total"
	metricKeyClamped      = "sim_clamped_deltas_total"
)

// Default alarm thresholds for sustained budget overruns.
const (
	DefaultAlarmRatio  = 2.0
	DefaultAlarmStreak = 3
)

// TickContext describes one simulation step.
type TickContext struct {
	Tick  int64
	Now   time.Time
	Delta float64
}

// StepResult records timing for a completed step.
type StepResult struct {
	Tick         int64
	Duration     time.Duration
	Budget       time.Duration
	ClampedDelta bool
	MaxDelta     float64
	Streak       uint64
	Alarm        bool
}

// Stepper advances the game state by one tick.
type Stepper interface {
	Advance(ctx TickContext)
}

// StepperFunc adapts a function into a Stepper.
type StepperFunc func(ctx TickContext)

// Advance implements Stepper.
func (f StepperFunc) Advance(ctx TickContext) {
	if f != nil {
		f(ctx)
	}
}

// LoopConfig tunes the fixed-timestep runner.
type LoopConfig struct {
	CatchupMaxTicks int
	AlarmRatio      float64
	AlarmStreak     uint64
}

// LoopHooks observe loop progress.
type LoopHooks struct {
	AfterStep     func(StepResult)
	OnBudgetAlarm func(StepResult)
}

// Deps bundles loop dependencies.
type Deps struct {
	Clock     logging.Clock
	Publisher logging.Publisher
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
}

// Loop advances a Stepper at the clock's tick rate.
type Loop struct {
	stepper Stepper
	ticks   *Clock
	config  LoopConfig
	deps    Deps
	hooks   LoopHooks

	last   time.Time
	streak uint64
}

// NewLoop constructs a loop over the provided tick clock.
func NewLoop(stepper Stepper, ticks *Clock, cfg LoopConfig, deps Deps, hooks LoopHooks) *Loop {
	if stepper == nil || ticks == nil {
		return nil
	}
	if deps.Clock == nil {
		deps.Clock = logging.ClockFunc(time.Now)
	}
	if cfg.AlarmRatio <= 0 {
		cfg.AlarmRatio = DefaultAlarmRatio
	}
	if cfg.AlarmStreak == 0 {
		cfg.AlarmStreak = DefaultAlarmStreak
	}
	return &Loop{stepper: stepper, ticks: ticks, config: cfg, deps: deps, hooks: hooks}
}

// Step runs one tick. The delta is the wall time since the previous step,
// clamped to CatchupMaxTicks budgets.
func (l *Loop) Step() StepResult {
	clock := l.deps.Clock
	budget := l.ticks.Interval()
	budgetSeconds := budget.Seconds()
	maxDt := budgetSeconds
	if l.config.CatchupMaxTicks > 1 {
		maxDt = budgetSeconds * float64(l.config.CatchupMaxTicks)
	}

	now := clock.Now()
	dt := budgetSeconds
	clamped := false
	if !l.last.IsZero() {
		dt = now.Sub(l.last).Seconds()
		if dt <= 0 {
			dt = budgetSeconds
		} else if dt > maxDt {
			dt = maxDt
			clamped = true
		}
	}
	l.last = now

	tick := l.ticks.Next()
	start := clock.Now()
	l.stepper.Advance(TickContext{Tick: tick, Now: now, Delta: dt})
	result := StepResult{
		Tick:         tick,
		Duration:     clock.Now().Sub(start),
		Budget:       budget,
		ClampedDelta: clamped,
		MaxDelta:     maxDt,
	}
	l.observe(&result)
	return result
}

// Run drives the loop until the stop channel closes.
func (l *Loop) Run(stop <-chan struct{}) {
	if l == nil {
		return
	}
	ticker := time.NewTicker(l.ticks.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.Step()
		}
	}
}

func (l *Loop) observe(result *StepResult) {
	if m := l.deps.Metrics; m != nil {
		m.Add(metricKeyTicks, 1)
		m.Store(metricKeyTickDuration, uint64(result.Duration.Microseconds()))
		if result.ClampedDelta {
			m.Add(metricKeyClamped, 1)
		}
	}

	if result.Duration <= result.Budget || result.Budget <= 0 {
		l.streak = 0
		if l.hooks.AfterStep != nil {
			l.hooks.AfterStep(*result)
		}
		return
	}

	l.streak++
	result.Streak = l.streak
	ratio := float64(result.Duration) / float64(result.Budget)
	if l.deps.Metrics != nil {
		l.deps.Metrics.Add(metricKeyOverruns, 1)
	}
	tick := uint64(result.Tick)
	loggingsimulation.TickBudgetOverrun(context.Background(), l.deps.Publisher, tick, loggingsimulation.TickBudgetOverrunPayload{
		DurationMillis: result.Duration.Milliseconds(),
		BudgetMillis:   result.Budget.Milliseconds(),
		Ratio:          ratio,
		Streak:         l.streak,
	}, nil)

	if ratio >= l.config.AlarmRatio && l.streak >= l.config.AlarmStreak {
		result.Alarm = true
		loggingsimulation.TickBudgetAlarm(context.Background(), l.deps.Publisher, tick, loggingsimulation.TickBudgetAlarmPayload{
			DurationMillis:  result.Duration.Milliseconds(),
			BudgetMillis:    result.Budget.Milliseconds(),
			Ratio:           ratio,
			Streak:          l.streak,
			ResyncScheduled: l.hooks.OnBudgetAlarm != nil,
			ThresholdRatio:  l.config.AlarmRatio,
			ThresholdStreak: l.config.AlarmStreak,
		}, nil)
		if l.deps.Logger != nil {
			l.deps.Logger.Printf("[sim] tick %d took %s (budget %s, streak %d)", result.Tick, result.Duration, result.Budget, l.streak)
		}
		if l.hooks.OnBudgetAlarm != nil {
			l.hooks.OnBudgetAlarm(*result)
		}
		l.streak = 0
	}
	if l.hooks.AfterStep != nil {
		l.hooks.AfterStep(*result)
	}
}
