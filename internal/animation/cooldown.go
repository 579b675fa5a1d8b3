package animation

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidComboWindow reports a combo window at or below the configured minimum.
	ErrInvalidComboWindow = errors.New("animation: combo window too short")
	// ErrInvalidMaxStages reports a combo with fewer than one stage.
	ErrInvalidMaxStages = errors.New("animation: combo needs at least one stage")
)

// DefaultMinComboWindow is the shortest combo window accepted when no
// minimum is configured.
const DefaultMinComboWindow = 0.3

// Cooldown is implemented by SimpleCooldown and ComboCooldown.
type Cooldown interface {
	// Use consumes the action. It is a no-op returning false unless IsReady.
	Use() bool
	IsReady() bool
	// Update advances timers by dt seconds.
	Update(dt float64)
	State() CooldownState
	Restore(CooldownState)
	sealed()
}

// CooldownState is the comparable snapshot of a cooldown.
type CooldownState struct {
	Stage           int
	Remaining       float64
	InWindow        bool
	WindowRemaining float64
}

// SimpleCooldown charges its full duration on every use.
type SimpleCooldown struct {
	duration  float64
	remaining float64
}

// NewSimpleCooldown builds a cooldown of duration seconds.
func NewSimpleCooldown(duration float64) *SimpleCooldown {
	return &SimpleCooldown{duration: max(duration, 0)}
}

func (c *SimpleCooldown) sealed() {}

func (c *SimpleCooldown) IsReady() bool {
	return c.remaining <= 0
}

func (c *SimpleCooldown) Use() bool {
	if !c.IsReady() {
		return false
	}
	c.remaining = c.duration
	return true
}

func (c *SimpleCooldown) Update(dt float64) {
	if c.remaining > 0 {
		c.remaining = max(c.remaining-dt, 0)
	}
}

func (c *SimpleCooldown) State() CooldownState {
	return CooldownState{Remaining: c.remaining}
}

func (c *SimpleCooldown) Restore(s CooldownState) {
	c.remaining = s.Remaining
}

// ComboCooldown chains up to maxStages uses. A follow-up use is only
// accepted while the combo window opened by the current stage's attack
// point is open. The cooldown is charged when the chain ends, either by
// exceeding maxStages, by the window closing unused or by an interrupt.
type ComboCooldown struct {
	duration  float64
	maxStages int
	window    float64

	stage           int
	remaining       float64
	inWindow        bool
	windowRemaining float64
}

// NewComboCooldown validates the combo configuration. window must be
// strictly greater than minWindow.
func NewComboCooldown(duration float64, maxStages int, window, minWindow float64) (*ComboCooldown, error) {
	if maxStages < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidMaxStages, maxStages)
	}
	if window <= minWindow {
		return nil, fmt.Errorf("%w: %.3fs <= %.3fs", ErrInvalidComboWindow, window, minWindow)
	}
	return &ComboCooldown{duration: max(duration, 0), maxStages: maxStages, window: window}, nil
}

func (c *ComboCooldown) sealed() {}

// Stage reports the current chain stage, 0 when idle.
func (c *ComboCooldown) Stage() int { return c.stage }

// InWindow reports whether the combo window is open.
func (c *ComboCooldown) InWindow() bool { return c.inWindow }

// WindowRemaining reports the seconds left in the open window.
func (c *ComboCooldown) WindowRemaining() float64 { return c.windowRemaining }

// Remaining reports the seconds of cooldown left.
func (c *ComboCooldown) Remaining() float64 { return c.remaining }

func (c *ComboCooldown) IsReady() bool {
	return c.remaining <= 0 && (c.stage == 0 || c.inWindow)
}

// Use starts the chain from idle or advances it inside an open window. The
// window stays open after an advance until the next attack point resets it.
// Advancing past maxStages ends the chain and charges the cooldown instead;
// that use still reports true.
func (c *ComboCooldown) Use() bool {
	if !c.IsReady() {
		return false
	}
	if c.stage == 0 {
		c.stage = 1
		c.remaining = 0
		return true
	}
	if c.stage+1 > c.maxStages {
		c.finish()
		return true
	}
	c.stage++
	return true
}

// OnAttackPointReached opens the combo window when stage is the current stage.
func (c *ComboCooldown) OnAttackPointReached(stage int) {
	if c.stage == 0 || stage != c.stage {
		return
	}
	c.inWindow = true
	c.windowRemaining = c.window
}

// OnAttackEnded ends the chain when the current stage's animation finishes
// without an open window.
func (c *ComboCooldown) OnAttackEnded(stage int) {
	if c.stage == 0 || stage != c.stage || c.inWindow {
		return
	}
	c.finish()
}

func (c *ComboCooldown) Update(dt float64) {
	if c.remaining > 0 {
		c.remaining = max(c.remaining-dt, 0)
	}
	if !c.inWindow {
		return
	}
	c.windowRemaining -= dt
	if c.windowRemaining <= 0 {
		c.finish()
	}
}

func (c *ComboCooldown) State() CooldownState {
	return CooldownState{
		Stage:           c.stage,
		Remaining:       c.remaining,
		InWindow:        c.inWindow,
		WindowRemaining: c.windowRemaining,
	}
}

func (c *ComboCooldown) Restore(s CooldownState) {
	c.stage = min(max(s.Stage, 0), c.maxStages)
	c.remaining = s.Remaining
	c.inWindow = s.InWindow && c.stage > 0
	c.windowRemaining = s.WindowRemaining
	if !c.inWindow {
		c.windowRemaining = 0
	}
}

// Interrupt ends a chain in progress and charges the cooldown. It reports
// whether a chain was running.
func (c *ComboCooldown) Interrupt() bool {
	if c.stage == 0 {
		return false
	}
	c.finish()
	return true
}

func (c *ComboCooldown) ends() bool {
	return c.stage > 0 && c.stage+1 > c.maxStages
}

func (c *ComboCooldown) finish() {
	c.stage = 0
	c.inWindow = false
	c.windowRemaining = 0
	c.remaining = c.duration
}
