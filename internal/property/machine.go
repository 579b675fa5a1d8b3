// Package property simulates an actor's numeric properties. Every change is
// an increase by a delta clamped to the property's bounds, applied to the
// server generation when authoritative and to the predicted generation
// otherwise.
package property

import (
	"context"
	"maps"
	"math"
	"slices"
	"strconv"

	"skirmish/server/internal/command"
	"skirmish/server/internal/predicted"
	"skirmish/server/internal/wire"
	"skirmish/server/logging"
	loggingstatus "skirmish/server/logging/status_effects"
)

var codec = wire.FuncCodec[command.Property]{
	EncodeFunc: func(w *wire.Writer, num wire.Number, p command.Property) { w.Uint(num, uint64(p)) },
	DecodeFunc: func(f wire.Field) (command.Property, error) {
		v, err := f.Uint()
		return command.Property(v), err
	},
}

// State is a snapshot of every property value.
type State map[command.Property]float64

// DefaultValues seeds a new actor.
func DefaultValues() State {
	return State{
		command.PropertyHealth:           100,
		command.PropertyMaxHealth:        100,
		command.PropertyStrength:         100,
		command.PropertyMaxStrength:      100,
		command.PropertySpeed:            4,
		command.PropertyDefense:          5,
		command.PropertyAttack:           20,
		command.PropertyHealthRecovery:   1,
		command.PropertyStrengthRecovery: 10,
	}
}

// Config wires a Machine to its actor.
type Config struct {
	EntityID command.EntityID
	// Authoritative machines write the server generation.
	Authoritative bool
	Initial       State
	Publisher     logging.Publisher
}

// Machine owns an actor's predicted property map.
type Machine struct {
	cfg       Config
	values    *predicted.Map[command.Property, float64]
	baseSpeed float64
	buffs     []buff
	tick      int64
	actor     logging.EntityRef
}

type buff struct {
	property  command.Property
	applied   float64
	appliedAt int64
	expiresAt int64
}

// NewMachine seeds the property map from cfg.Initial over DefaultValues.
func NewMachine(cfg Config) *Machine {
	if cfg.Publisher == nil {
		cfg.Publisher = logging.NopPublisher()
	}
	initial := DefaultValues()
	maps.Copy(initial, cfg.Initial)
	m := &Machine{
		cfg:       cfg,
		values:    predicted.NewMap[command.Property, float64](codec, wire.Float64Codec{}, !cfg.Authoritative),
		baseSpeed: initial[command.PropertySpeed],
		actor: logging.EntityRef{
			ID:   "entity-" + strconv.FormatUint(uint64(cfg.EntityID), 10),
			Kind: logging.EntityKindPlayer,
		},
	}
	m.values.ServerReplace(initial)
	return m
}

// Values exposes the predicted map for schema registration.
func (m *Machine) Values() *predicted.Map[command.Property, float64] {
	return m.values
}

// EntityID reports the actor the machine belongs to.
func (m *Machine) EntityID() command.EntityID {
	return m.cfg.EntityID
}

// GetProperty reads the predicted generation.
func (m *Machine) GetProperty(p command.Property) float64 {
	v, _ := m.values.Get(p)
	return v
}

// Alive reports whether health is above zero.
func (m *Machine) Alive() bool {
	return m.GetProperty(command.PropertyHealth) > 0
}

func (m *Machine) Category() command.Category {
	return command.CategoryProperty
}

// Simulate applies a property command.
func (m *Machine) Simulate(cmd command.Command) bool {
	if cmd.Tick() > m.tick {
		m.tick = cmd.Tick()
	}
	switch p := cmd.Payload.(type) {
	case command.RecoverPayload:
		m.HandlePropertyRecover(p.DeltaSeconds)
		return true
	case command.AnimationCostPayload:
		return m.HandleAnimationCommand(p.Animation, p.Cost)
	case command.EnvironmentPayload:
		m.HandleEnvironmentChange(p.HasInput, p.Environment, p.Sprinting, p.DeltaSeconds)
		return true
	case command.BuffPayload:
		return m.applyBuff(p.Property, p.Delta, p.DurationTicks, cmd.Tick())
	default:
		return false
	}
}

func (m *Machine) State() State {
	return State(m.values.Snapshot())
}

// SetState overwrites both generations with s.
func (m *Machine) SetState(s State) {
	m.values.ServerReplace(s)
}

// DiscardAfter forgets buffs applied after tick without reverting them. A
// rewind calls it before SetState so replayed buff commands are recorded
// once.
func (m *Machine) DiscardAfter(tick int64) {
	m.buffs = slices.DeleteFunc(m.buffs, func(b buff) bool { return b.appliedAt > tick })
}

func (m *Machine) Equal(a, b State) bool {
	return maps.Equal(a, b)
}

// Add increases p by delta clamped to its bounds and returns the change
// actually applied.
func (m *Machine) Add(p command.Property, delta float64) float64 {
	if delta == 0 || math.IsNaN(delta) {
		return 0
	}
	current := m.GetProperty(p)
	lo, hi := m.bounds(p)
	next := min(max(current+delta, lo), hi)
	if next == current {
		return 0
	}
	if m.cfg.Authoritative {
		m.values.ServerSet(p, next)
	} else if !m.values.PredictSet(p, next) {
		return 0
	}
	if p == command.PropertyMaxHealth || p == command.PropertyMaxStrength {
		m.clampToMax(p)
	}
	return next - current
}

// HandlePropertyRecover applies dt seconds of health and strength recovery.
func (m *Machine) HandlePropertyRecover(dt float64) {
	if dt <= 0 || !m.Alive() {
		return
	}
	m.Add(command.PropertyHealth, m.GetProperty(command.PropertyHealthRecovery)*dt)
	m.Add(command.PropertyStrength, m.GetProperty(command.PropertyStrengthRecovery)*dt)
}

// HandleAnimationCommand pays an animation's strength cost. It refuses
// when the actor cannot afford the full cost.
func (m *Machine) HandleAnimationCommand(animation command.AnimationID, cost float64) bool {
	if cost <= 0 {
		return true
	}
	if m.GetProperty(command.PropertyStrength) < cost {
		return false
	}
	m.Add(command.PropertyStrength, -cost)
	return true
}

// ApplyBuff adds delta to p until durationTicks have elapsed. The change
// actually applied is what gets reverted on expiry.
func (m *Machine) ApplyBuff(p command.Property, delta float64, durationTicks int64) bool {
	return m.applyBuff(p, delta, durationTicks, m.tick)
}

// applyBuff starts the buff's duration at the given tick so a replayed
// command expires exactly when the original did.
func (m *Machine) applyBuff(p command.Property, delta float64, durationTicks, at int64) bool {
	if durationTicks <= 0 {
		return false
	}
	applied := m.Add(p, delta)
	if applied == 0 {
		return false
	}
	m.buffs = append(m.buffs, buff{property: p, applied: applied, appliedAt: at, expiresAt: at + durationTicks})
	loggingstatus.Applied(context.Background(), m.cfg.Publisher, tickOf(m.tick), m.actor, m.actor, loggingstatus.AppliedPayload{
		Property:      propertyName(p),
		Delta:         applied,
		DurationTicks: durationTicks,
	}, nil)
	return true
}

// Advance moves the machine's clock to tick and reverts expired buffs.
func (m *Machine) Advance(tick int64) int {
	if tick > m.tick {
		m.tick = tick
	}
	kept := m.buffs[:0]
	expired := 0
	for _, b := range m.buffs {
		if b.expiresAt > m.tick {
			kept = append(kept, b)
			continue
		}
		m.Add(b.property, -b.applied)
		expired++
		loggingstatus.Expired(context.Background(), m.cfg.Publisher, tickOf(m.tick), m.actor, loggingstatus.ExpiredPayload{
			Property: propertyName(b.property),
			Reverted: -b.applied,
		}, nil)
	}
	clear(m.buffs[len(kept):])
	m.buffs = kept
	return expired
}

// ActiveBuffs reports how many buffs have not expired.
func (m *Machine) ActiveBuffs() int {
	return len(m.buffs)
}

func (m *Machine) bounds(p command.Property) (float64, float64) {
	switch p {
	case command.PropertyHealth:
		return 0, m.GetProperty(command.PropertyMaxHealth)
	case command.PropertyStrength:
		return 0, m.GetProperty(command.PropertyMaxStrength)
	case command.PropertyMaxHealth, command.PropertyMaxStrength:
		return 1, math.Inf(1)
	default:
		return 0, math.Inf(1)
	}
}

func (m *Machine) clampToMax(p command.Property) {
	current := command.PropertyHealth
	if p == command.PropertyMaxStrength {
		current = command.PropertyStrength
	}
	if over := m.GetProperty(current) - m.GetProperty(p); over > 0 {
		m.Add(current, -over)
	}
}

func propertyName(p command.Property) string {
	switch p {
	case command.PropertyHealth:
		return "health"
	case command.PropertyMaxHealth:
		return "max_health"
	case command.PropertyStrength:
		return "strength"
	case command.PropertyMaxStrength:
		return "max_strength"
	case command.PropertySpeed:
		return "speed"
	case command.PropertyDefense:
		return "defense"
	case command.PropertyAttack:
		return "attack"
	case command.PropertyHealthRecovery:
		return "health_recovery"
	case command.PropertyStrengthRecovery:
		return "strength_recovery"
	default:
		return "property_" + strconv.Itoa(int(p))
	}
}

func tickOf(tick int64) uint64 {
	if tick < 0 {
		return 0
	}
	return uint64(tick)
}
