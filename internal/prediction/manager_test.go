package prediction

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"skirmish/server/internal/command"
	"skirmish/server/logging"
	loggingprediction "skirmish/server/logging/prediction"
	"skirmish/server/logging/sinks"
)

// counterMachine sums RecoverPayload deltas and refuses negative ones.
type counterMachine struct {
	total     float64
	simulated []int64
}

func (m *counterMachine) Category() command.Category { return command.CategoryProperty }

func (m *counterMachine) Simulate(cmd command.Command) bool {
	p, ok := cmd.Payload.(command.RecoverPayload)
	if !ok || p.DeltaSeconds < 0 {
		return false
	}
	m.total += p.DeltaSeconds
	m.simulated = append(m.simulated, cmd.Tick())
	return true
}

func (m *counterMachine) State() float64         { return m.total }
func (m *counterMachine) SetState(s float64)     { m.total = s }
func (m *counterMachine) Equal(a, b float64) bool { return a == b }

func recoverCmd(conn int, tick int64, delta float64) command.Command {
	return command.New(command.Header{ConnectionID: conn, Tick: tick, ClientOriginated: true, EntityID: 1}, command.RecoverPayload{DeltaSeconds: delta})
}

func newManager(machine *counterMachine) *Manager[float64] {
	return NewManager[float64](machine, ManagerConfig{EntityID: 1, ConnectionID: 7})
}

func TestAddPredictedCommandGates(t *testing.T) {
	machine := &counterMachine{}
	m := newManager(machine)

	ok, reason := m.AddPredictedCommand(recoverCmd(8, 1, 1))
	require.False(t, ok)
	require.Equal(t, DropWrongConnection, reason)

	wrongCategory := command.New(command.Header{ConnectionID: 7, Tick: 1}, command.InputPayload{Animation: "slash"})
	ok, reason = m.AddPredictedCommand(wrongCategory)
	require.False(t, ok)
	require.Equal(t, DropWrongCategory, reason)

	ok, reason = m.AddPredictedCommand(recoverCmd(7, 1, -1))
	require.False(t, ok)
	require.Equal(t, DropSimulation, reason)

	require.Zero(t, machine.total)
	require.Zero(t, m.Pending())

	ok, _ = m.AddPredictedCommand(recoverCmd(7, 2, 1.5))
	require.True(t, ok)
	require.Equal(t, 1.5, machine.total)
	require.Equal(t, 1, m.Pending())
}

func TestAddPredictedCommandRejectsOlderTicks(t *testing.T) {
	m := newManager(&counterMachine{})
	ok, _ := m.AddPredictedCommand(recoverCmd(7, 5, 1))
	require.True(t, ok)

	ok, reason := m.AddPredictedCommand(recoverCmd(7, 4, 1))
	require.False(t, ok)
	require.Equal(t, DropOutOfOrder, reason)

	ok, _ = m.AddPredictedCommand(recoverCmd(7, 5, 1))
	require.True(t, ok, "equal ticks are accepted")

	m.CleanupConfirmedCommands(6)
	ok, reason = m.AddPredictedCommand(recoverCmd(7, 6, 1))
	require.False(t, ok)
	require.Equal(t, DropStaleTick, reason)
}

func TestCleanupConfirmedCommands(t *testing.T) {
	m := newManager(&counterMachine{})
	for tick := int64(1); tick <= 5; tick++ {
		m.AddPredictedCommand(recoverCmd(7, tick, 1))
	}
	require.Equal(t, 3, m.CleanupConfirmedCommands(3))
	pending := m.PendingCommands()
	require.Len(t, pending, 2)
	require.Equal(t, int64(4), pending[0].Tick())
	require.Zero(t, m.CleanupConfirmedCommands(2))
	require.Equal(t, int64(3), m.ConfirmedTick())
}

func TestReconcileReplaysOnlyUnconfirmedCommands(t *testing.T) {
	machine := &counterMachine{}
	memory := sinks.NewMemorySink()
	pub := logging.PublisherFunc(func(_ context.Context, e logging.Event) { _ = memory.Write(e) })
	m := NewManager[float64](machine, ManagerConfig{EntityID: 1, ConnectionID: 7, Publisher: pub})
	for tick := int64(1); tick <= 4; tick++ {
		m.AddPredictedCommand(recoverCmd(7, tick, 1))
	}
	require.Equal(t, 4.0, machine.total)
	machine.simulated = nil

	// The server applied ticks 1 and 2 but saw a different outcome.
	require.True(t, m.Reconcile(2, 10))
	require.Equal(t, 12.0, machine.total)
	require.Equal(t, []int64{3, 4}, machine.simulated)

	events := memory.Events()
	require.Len(t, events, 1)
	require.Equal(t, loggingprediction.EventReconciled, events[0].Type)
	require.Equal(t, loggingprediction.ReconciledPayload{ConfirmedTick: 2, Replayed: 2}, events[0].Payload)

	require.False(t, m.Reconcile(3, 12), "matching state needs no rewind")
}

func TestTakeOutgoingDrains(t *testing.T) {
	m := newManager(&counterMachine{})
	m.AddPredictedCommand(recoverCmd(7, 1, 1))
	m.AddPredictedCommand(recoverCmd(7, 2, 1))
	require.Len(t, m.TakeOutgoing(), 2)
	require.Empty(t, m.TakeOutgoing())
	require.Equal(t, 2, m.Pending(), "outgoing is independent of the confirmation buffer")
}

func TestDispatcherRoutesByCategory(t *testing.T) {
	property := newManager(&counterMachine{})
	d, err := NewDispatcher(property)
	require.NoError(t, err)

	ok, _ := d.Dispatch(recoverCmd(7, 1, 2))
	require.True(t, ok)
	ok, reason := d.Dispatch(command.New(command.Header{ConnectionID: 7, Tick: 1}, command.InputPayload{}))
	require.False(t, ok)
	require.Equal(t, DropWrongCategory, reason)

	require.Equal(t, 1, d.Pending())
	require.Len(t, d.TakeOutgoing(), 1)
	require.Equal(t, 1, d.Confirm(1))

	_, err = NewDispatcher(property, newManager(&counterMachine{}))
	require.Error(t, err)
}

func TestBufferTickMonotonicityProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("buffered ticks are non-decreasing and cleanup leaves none at or below the confirmed tick", prop.ForAll(
		func(ticks []int64, confirms []int64) bool {
			m := newManager(&counterMachine{})
			for i, tick := range ticks {
				m.AddPredictedCommand(recoverCmd(7, tick, 1))
				if i < len(confirms) && i%3 == 2 {
					confirmed := confirms[i]
					m.CleanupConfirmedCommands(confirmed)
					for _, cmd := range m.PendingCommands() {
						if cmd.Tick() <= confirmed {
							return false
						}
					}
				}
				pending := m.PendingCommands()
				for j := 1; j < len(pending); j++ {
					if pending[j].Tick() < pending[j-1].Tick() {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOf(gen.Int64Range(0, 50)),
		gen.SliceOf(gen.Int64Range(0, 50)),
	))

	properties.TestingRun(t)
}
