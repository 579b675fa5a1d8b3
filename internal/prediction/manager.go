package prediction

import (
	"context"
	"strconv"

	"skirmish/server/internal/command"
	"skirmish/server/internal/telemetry"
	"skirmish/server/logging"
	loggingprediction "skirmish/server/logging/prediction"
)

const (
	DropWrongConnection = "wrong_connection"
	DropWrongCategory   = "wrong_category"
	DropStaleTick       = "stale_tick"
	DropOutOfOrder      = "out_of_order"
	DropSimulation      = "simulation_rejected"
)

const (
	metricKeyAccepted    = "prediction_commands_accepted_total"
	metricKeyDropped     = "prediction_commands_dropped_total"
	metricKeyReconciled  = "prediction_reconciliations_total"
	metricKeyReplayed    = "prediction_commands_replayed_total"
	metricKeyBufferDepth = "prediction_buffer_depth"
)

// StateMachine is the per-concern simulation driven by predicted commands.
// Simulate reports whether the command took effect.
type StateMachine[S any] interface {
	Category() command.Category
	Simulate(cmd command.Command) bool
	State() S
	SetState(S)
	Equal(a, b S) bool
}

// Rewinder is implemented by machines that keep bookkeeping outside S,
// such as timed effects. Reconcile calls DiscardAfter with the confirmed
// tick before SetState so replay does not record those effects twice.
type Rewinder interface {
	DiscardAfter(tick int64)
}

// ManagerConfig binds a manager to the entity and connection it predicts for.
type ManagerConfig struct {
	EntityID     command.EntityID
	ConnectionID int
	Publisher    logging.Publisher
	Metrics      telemetry.Metrics
}

// Manager gates predicted commands into one state machine and keeps the
// buffer of commands the server has not yet confirmed.
type Manager[S any] struct {
	machine       StateMachine[S]
	cfg           ManagerConfig
	buffer        Buffer
	outgoing      []command.Command
	confirmedTick int64
	lastTick      int64
	actor         logging.EntityRef
}

// NewManager wraps machine for the configured entity.
func NewManager[S any](machine StateMachine[S], cfg ManagerConfig) *Manager[S] {
	if cfg.Publisher == nil {
		cfg.Publisher = logging.NopPublisher()
	}
	return &Manager[S]{
		machine:       machine,
		cfg:           cfg,
		confirmedTick: -1,
		lastTick:      -1,
		actor:         EntityRef(cfg.EntityID),
	}
}

// EntityRef names an entity in log events.
func EntityRef(id command.EntityID) logging.EntityRef {
	return logging.EntityRef{ID: "entity-" + strconv.FormatUint(uint64(id), 10), Kind: logging.EntityKindPlayer}
}

// Category reports the category handled by the wrapped machine.
func (m *Manager[S]) Category() command.Category {
	return m.machine.Category()
}

// Machine exposes the wrapped state machine.
func (m *Manager[S]) Machine() StateMachine[S] {
	return m.machine
}

// AddPredictedCommand simulates cmd locally and buffers it until the server
// confirms its tick. Commands for another connection or category, and
// commands older than what is already buffered or confirmed, are dropped
// without side effects.
func (m *Manager[S]) AddPredictedCommand(cmd command.Command) (bool, string) {
	if cmd.Header.ConnectionID != m.cfg.ConnectionID {
		return m.drop(cmd, DropWrongConnection)
	}
	if cmd.Header.Category != m.machine.Category() {
		return m.drop(cmd, DropWrongCategory)
	}
	if cmd.Tick() <= m.confirmedTick {
		return m.drop(cmd, DropStaleTick)
	}
	if cmd.Tick() < m.lastTick {
		return m.drop(cmd, DropOutOfOrder)
	}
	if !m.machine.Simulate(cmd) {
		return m.drop(cmd, DropSimulation)
	}
	m.buffer.Push(cmd)
	m.lastTick = cmd.Tick()
	m.outgoing = append(m.outgoing, cmd)
	m.addMetric(metricKeyAccepted, 1)
	m.storeMetric(metricKeyBufferDepth, uint64(m.buffer.Len()))
	return true, ""
}

// CleanupConfirmedCommands drops every buffered command at or before
// confirmedTick and reports how many were removed.
func (m *Manager[S]) CleanupConfirmedCommands(confirmedTick int64) int {
	if confirmedTick > m.confirmedTick {
		m.confirmedTick = confirmedTick
	}
	removed := m.buffer.PopConfirmed(confirmedTick)
	m.storeMetric(metricKeyBufferDepth, uint64(m.buffer.Len()))
	return removed
}

// NeedsReconciliation compares the predicted state against an authoritative one.
func (m *Manager[S]) NeedsReconciliation(server S) bool {
	return !m.machine.Equal(m.machine.State(), server)
}

// Reconcile confirms confirmedTick and, when the prediction diverged,
// rewinds to the server state and replays every still-unconfirmed command
// on top of it. Commands at or before confirmedTick are never replayed.
// It reports whether a rewind happened.
func (m *Manager[S]) Reconcile(confirmedTick int64, server S) bool {
	m.CleanupConfirmedCommands(confirmedTick)
	if !m.NeedsReconciliation(server) {
		return false
	}
	if r, ok := m.machine.(Rewinder); ok {
		r.DiscardAfter(confirmedTick)
	}
	m.machine.SetState(server)
	replayed, rejected := 0, 0
	for _, cmd := range m.buffer.Commands() {
		if m.machine.Simulate(cmd) {
			replayed++
		} else {
			rejected++
		}
	}
	m.addMetric(metricKeyReconciled, 1)
	m.addMetric(metricKeyReplayed, uint64(replayed))
	loggingprediction.Reconciled(context.Background(), m.cfg.Publisher, tickOf(confirmedTick), m.actor, loggingprediction.ReconciledPayload{
		ConfirmedTick: confirmedTick,
		Replayed:      replayed,
		Rejected:      rejected,
	}, map[string]any{"category": m.machine.Category().String()})
	return true
}

// TakeOutgoing returns the commands accepted since the previous call, for
// transmission to the server.
func (m *Manager[S]) TakeOutgoing() []command.Command {
	out := m.outgoing
	m.outgoing = nil
	return out
}

// Pending reports the number of unconfirmed commands.
func (m *Manager[S]) Pending() int {
	return m.buffer.Len()
}

// PendingCommands copies the unconfirmed commands in tick order.
func (m *Manager[S]) PendingCommands() []command.Command {
	return m.buffer.Commands()
}

// ConfirmedTick reports the newest confirmed tick, or -1 before any confirmation.
func (m *Manager[S]) ConfirmedTick() int64 {
	return m.confirmedTick
}

func (m *Manager[S]) drop(cmd command.Command, reason string) (bool, string) {
	m.addMetric(metricKeyDropped+"_"+reason, 1)
	loggingprediction.CommandDropped(context.Background(), m.cfg.Publisher, tickOf(cmd.Tick()), m.actor, loggingprediction.CommandDroppedPayload{
		Reason:       reason,
		Category:     cmd.Header.Category.String(),
		ConnectionID: cmd.Header.ConnectionID,
		CommandTick:  cmd.Tick(),
	}, nil)
	return false, reason
}

func (m *Manager[S]) addMetric(key string, delta uint64) {
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.Add(key, delta)
	}
}

func (m *Manager[S]) storeMetric(key string, value uint64) {
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.Store(key, value)
	}
}

func tickOf(tick int64) uint64 {
	if tick < 0 {
		return 0
	}
	return uint64(tick)
}
