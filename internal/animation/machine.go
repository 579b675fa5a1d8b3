package animation

import (
	"context"
	"fmt"
	"maps"
	"strconv"

	"skirmish/server/internal/command"
	"skirmish/server/logging"
	loggingprediction "skirmish/server/logging/prediction"
)

const (
	RejectUnknownAnimation     = "unknown_animation"
	RejectCooldown             = "cooldown"
	RejectInsufficientStrength = "insufficient_strength"
	RejectCostRefused          = "cost_refused"
)

// PropertyReader exposes the actor's current properties.
type PropertyReader interface {
	GetProperty(property command.Property) float64
}

// CommandSink receives the property commands that pay for an action.
type CommandSink interface {
	Simulate(cmd command.Command) bool
}

// InputSource maps the current frame's raw input to requested animation ids.
type InputSource interface {
	RequestedAnimations() []command.AnimationID
}

// InputSourceFunc adapts a function to InputSource.
type InputSourceFunc func() []command.AnimationID

func (f InputSourceFunc) RequestedAnimations() []command.AnimationID {
	if f == nil {
		return nil
	}
	return f()
}

// Config wires a Machine to its actor.
type Config struct {
	EntityID       command.EntityID
	Table          Table
	MinComboWindow float64
	Properties     PropertyReader
	Costs          CommandSink
	Input          InputSource
	Publisher      logging.Publisher
}

// State snapshots every cooldown of a Machine.
type State map[command.AnimationID]CooldownState

// Machine simulates input commands against per-animation cooldowns and the
// actor's strength.
type Machine struct {
	cfg       Config
	cooldowns map[command.AnimationID]Cooldown
	actor     logging.EntityRef
}

// NewMachine builds one cooldown per table entry. Invalid combo
// configurations fail construction.
func NewMachine(cfg Config) (*Machine, error) {
	if cfg.Table == nil {
		cfg.Table = DefaultTable()
	}
	if cfg.MinComboWindow <= 0 {
		cfg.MinComboWindow = DefaultMinComboWindow
	}
	if cfg.Publisher == nil {
		cfg.Publisher = logging.NopPublisher()
	}
	m := &Machine{
		cfg:       cfg,
		cooldowns: make(map[command.AnimationID]Cooldown, len(cfg.Table)),
		actor: logging.EntityRef{
			ID:   "entity-" + strconv.FormatUint(uint64(cfg.EntityID), 10),
			Kind: logging.EntityKindPlayer,
		},
	}
	for _, id := range cfg.Table.IDs() {
		cd, err := cfg.Table[id].NewCooldown(cfg.MinComboWindow)
		if err != nil {
			return nil, fmt.Errorf("animation %q: %w", id, err)
		}
		m.cooldowns[id] = cd
	}
	return m, nil
}

func (m *Machine) Category() command.Category {
	return command.CategoryInput
}

// Simulate applies an input command. It refuses unknown animations,
// animations on cooldown and actions the actor cannot pay for; a refusal
// leaves every cooldown and property untouched. A use that ends a combo
// chain is accepted without a cost. Accepted movement interrupts every
// other combo chain in progress.
func (m *Machine) Simulate(cmd command.Command) bool {
	input, ok := cmd.Payload.(command.InputPayload)
	if !ok {
		return false
	}
	entry, known := m.cfg.Table[input.Animation]
	cd, hasCooldown := m.cooldowns[input.Animation]
	if !known || !hasCooldown {
		m.reject(cmd, loggingprediction.InputRejectedPayload{Reason: RejectUnknownAnimation, Animation: string(input.Animation)})
		return false
	}
	if !cd.IsReady() {
		m.reject(cmd, loggingprediction.InputRejectedPayload{Reason: RejectCooldown, Animation: string(input.Animation)})
		return false
	}
	combo, isCombo := cd.(*ComboCooldown)
	ending := isCombo && combo.ends()
	if entry.StrengthCost > 0 && !ending {
		available := 0.0
		if m.cfg.Properties != nil {
			available = m.cfg.Properties.GetProperty(command.PropertyStrength)
		}
		if available < entry.StrengthCost {
			m.reject(cmd, loggingprediction.InputRejectedPayload{
				Reason:    RejectInsufficientStrength,
				Animation: string(input.Animation),
				Required:  entry.StrengthCost,
				Available: available,
			})
			return false
		}
	}
	before := cd.State()
	if !cd.Use() {
		return false
	}
	if entry.StrengthCost > 0 && m.cfg.Costs != nil && !ending {
		cost := command.New(cmd.Header, command.AnimationCostPayload{Animation: input.Animation, Cost: entry.StrengthCost})
		if !m.cfg.Costs.Simulate(cost) {
			cd.Restore(before)
			m.reject(cmd, loggingprediction.InputRejectedPayload{Reason: RejectCostRefused, Animation: string(input.Animation)})
			return false
		}
	}
	if entry.Action == ActionMovement {
		m.interruptCombos(input.Animation)
	}
	return true
}

func (m *Machine) interruptCombos(except command.AnimationID) {
	for id, cd := range m.cooldowns {
		if combo, ok := cd.(*ComboCooldown); ok && id != except {
			combo.Interrupt()
		}
	}
}

// HandleEvent feeds an animation timeline event to the animation's combo.
// Events for non-combo animations are ignored.
func (m *Machine) HandleEvent(event command.AnimationEventPayload) bool {
	combo, ok := m.cooldowns[event.Animation].(*ComboCooldown)
	if !ok {
		return false
	}
	switch event.Event {
	case command.AnimationEventAttackPoint:
		combo.OnAttackPointReached(event.Stage)
	case command.AnimationEventAttackEnded:
		combo.OnAttackEnded(event.Stage)
	default:
		return false
	}
	return true
}

// Update advances every cooldown by dt seconds.
func (m *Machine) Update(dt float64) {
	for _, cd := range m.cooldowns {
		cd.Update(dt)
	}
}

// Cooldown returns the cooldown for id.
func (m *Machine) Cooldown(id command.AnimationID) (Cooldown, bool) {
	cd, ok := m.cooldowns[id]
	return cd, ok
}

// GetAnimationStates returns the animations requested this frame that the
// table knows, in input order.
func (m *Machine) GetAnimationStates() []command.AnimationID {
	if m.cfg.Input == nil {
		return nil
	}
	requested := m.cfg.Input.RequestedAnimations()
	out := make([]command.AnimationID, 0, len(requested))
	for _, id := range requested {
		if _, ok := m.cfg.Table[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func (m *Machine) State() State {
	s := make(State, len(m.cooldowns))
	for id, cd := range m.cooldowns {
		s[id] = cd.State()
	}
	return s
}

// SetState restores every cooldown; ids missing from s become idle.
func (m *Machine) SetState(s State) {
	for id, cd := range m.cooldowns {
		cd.Restore(s[id])
	}
}

func (m *Machine) Equal(a, b State) bool {
	return maps.Equal(a, b)
}

// Events returns the animation-category view of the machine, sharing its
// cooldowns.
func (m *Machine) Events() *EventMachine {
	return &EventMachine{machine: m}
}

func (m *Machine) reject(cmd command.Command, payload loggingprediction.InputRejectedPayload) {
	tick := uint64(0)
	if cmd.Tick() > 0 {
		tick = uint64(cmd.Tick())
	}
	loggingprediction.InputRejected(context.Background(), m.cfg.Publisher, tick, m.actor, payload, nil)
}

// EventMachine simulates animation timeline events.
type EventMachine struct {
	machine *Machine
}

func (e *EventMachine) Category() command.Category {
	return command.CategoryAnimation
}

func (e *EventMachine) Simulate(cmd command.Command) bool {
	event, ok := cmd.Payload.(command.AnimationEventPayload)
	if !ok {
		return false
	}
	return e.machine.HandleEvent(event)
}

func (e *EventMachine) State() State          { return e.machine.State() }
func (e *EventMachine) SetState(s State)      { e.machine.SetState(s) }
func (e *EventMachine) Equal(a, b State) bool { return e.machine.Equal(a, b) }
