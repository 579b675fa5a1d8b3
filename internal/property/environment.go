package property

import (
	"context"

	"skirmish/server/internal/command"
	loggingconditions "skirmish/server/logging/conditions"
)

const (
	sprintMultiplier     = 1.6
	sprintStrengthPerSec = 12.0
)

func terrainMultiplier(env command.Environment) float64 {
	switch env {
	case command.EnvironmentWater:
		return 0.5
	case command.EnvironmentMud:
		return 0.7
	case command.EnvironmentIce:
		return 1.2
	default:
		return 1
	}
}

func environmentName(env command.Environment) string {
	switch env {
	case command.EnvironmentWater:
		return "water"
	case command.EnvironmentMud:
		return "mud"
	case command.EnvironmentIce:
		return "ice"
	default:
		return "ground"
	}
}

// HandleEnvironmentChange drains strength while sprinting with input and
// moves speed toward the terrain's target by delta. Sprinting is ignored
// once strength is exhausted.
func (m *Machine) HandleEnvironmentChange(hasInput bool, env command.Environment, sprinting bool, dt float64) {
	sprint := sprinting && hasInput && m.GetProperty(command.PropertyStrength) > 0
	if sprint && dt > 0 {
		m.Add(command.PropertyStrength, -sprintStrengthPerSec*dt)
	}
	target := m.baseSpeed * terrainMultiplier(env)
	if sprint {
		target *= sprintMultiplier
	}
	applied := m.Add(command.PropertySpeed, target-m.GetProperty(command.PropertySpeed))
	if applied == 0 {
		return
	}
	loggingconditions.Applied(context.Background(), m.cfg.Publisher, tickOf(m.tick), m.actor, m.actor, loggingconditions.AppliedPayload{
		Environment: environmentName(env),
		Sprinting:   sprint,
		Speed:       m.GetProperty(command.PropertySpeed),
	}, nil)
}
