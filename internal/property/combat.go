package property

import (
	"context"

	"skirmish/server/internal/command"
	"skirmish/server/logging"
	loggingcombat "skirmish/server/logging/combat"
)

// Reader is the read side of a Machine.
type Reader interface {
	GetProperty(p command.Property) float64
}

// DamageFunc computes the health removed from defender by one hit.
type DamageFunc func(attacker, defender Reader, base float64) float64

// DefaultDamage adds the attacker's attack to base and subtracts the
// defender's defense, never going below zero.
func DefaultDamage(attacker, defender Reader, base float64) float64 {
	return max(base+attacker.GetProperty(command.PropertyAttack)-defender.GetProperty(command.PropertyDefense), 0)
}

// Hit is the outcome of an attack on one defender.
type Hit struct {
	Target   command.EntityID
	Damage   float64
	Defeated bool
}

// HandleAttack removes damage from every living defender's health.
func (m *Machine) HandleAttack(animation command.AnimationID, base float64, defenders []*Machine, damage DamageFunc) []Hit {
	if damage == nil {
		damage = DefaultDamage
	}
	if !m.Alive() {
		return nil
	}
	hits := make([]Hit, 0, len(defenders))
	for _, defender := range defenders {
		if defender == nil || defender == m || !defender.Alive() {
			continue
		}
		amount := damage(m, defender, base)
		applied := -defender.Add(command.PropertyHealth, -amount)
		hit := Hit{Target: defender.cfg.EntityID, Damage: applied, Defeated: !defender.Alive()}
		hits = append(hits, hit)

		loggingcombat.Damage(context.Background(), m.cfg.Publisher, tickOf(m.tick), m.actor, defender.actor, loggingcombat.DamagePayload{
			Ability:      string(animation),
			Amount:       applied,
			TargetHealth: defender.GetProperty(command.PropertyHealth),
		}, nil)
		if hit.Defeated {
			loggingcombat.Defeat(context.Background(), m.cfg.Publisher, tickOf(m.tick), m.actor, defender.actor, loggingcombat.DefeatPayload{
				Ability: string(animation),
			}, nil)
		}
	}
	return hits
}

// Lookup resolves defender ids to their machines.
type Lookup func(id command.EntityID) (*Machine, bool)

// CombatMachine resolves attack commands issued by one attacker.
type CombatMachine struct {
	attacker *Machine
	lookup   Lookup
	damage   DamageFunc
	hits     []Hit
}

// NewCombatMachine binds attacks to attacker.
func NewCombatMachine(attacker *Machine, lookup Lookup, damage DamageFunc) *CombatMachine {
	return &CombatMachine{attacker: attacker, lookup: lookup, damage: damage}
}

func (c *CombatMachine) Category() command.Category {
	return command.CategoryCombat
}

// Simulate resolves an AttackPayload against the defenders it names.
func (c *CombatMachine) Simulate(cmd command.Command) bool {
	attack, ok := cmd.Payload.(command.AttackPayload)
	if !ok || c.lookup == nil {
		return false
	}
	if cmd.Tick() > c.attacker.tick {
		c.attacker.tick = cmd.Tick()
	}
	defenders := make([]*Machine, 0, len(attack.Defenders))
	targets := make([]logging.EntityRef, 0, len(attack.Defenders))
	for _, id := range attack.Defenders {
		if defender, found := c.lookup(id); found {
			defenders = append(defenders, defender)
			targets = append(targets, defender.actor)
		}
	}
	if len(defenders) == 0 {
		return false
	}
	hits := c.attacker.HandleAttack(attack.Animation, attack.BaseDamage, defenders, c.damage)
	c.hits = append(c.hits, hits...)
	if len(defenders) > 1 {
		loggingcombat.AttackOverlap(context.Background(), c.attacker.cfg.Publisher, tickOf(cmd.Tick()), c.attacker.actor, targets, loggingcombat.AttackOverlapPayload{
			Ability: string(attack.Animation),
			Hits:    len(hits),
		}, nil)
	}
	return len(hits) > 0
}

// TakeHits returns the hits resolved since the previous call.
func (c *CombatMachine) TakeHits() []Hit {
	hits := c.hits
	c.hits = nil
	return hits
}
