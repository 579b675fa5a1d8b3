// Package server hosts the session hub: it owns the authoritative entity
// state machines, applies client commands, and broadcasts predicted-field
// snapshots to subscribers every tick.
package server

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"skirmish/server/internal/animation"
	"skirmish/server/internal/command"
	"skirmish/server/internal/interaction"
	"skirmish/server/internal/predicted"
	"skirmish/server/internal/prediction"
	"skirmish/server/internal/property"
	"skirmish/server/internal/sim"
	"skirmish/server/internal/telemetry"
	"skirmish/server/internal/wire"
	"skirmish/server/internal/world"
	"skirmish/server/logging"
	loggingcombat "skirmish/server/logging/combat"
	"skirmish/server/logging/lifecycle"
	"skirmish/server/logging/network"
)

// Command rejection reasons returned by HandleCommand.
const (
	CommandRejectMalformed    = "malformed"
	CommandRejectUnknownActor = "unknown_actor"
	CommandRejectNotOwner     = "not_owner"
	CommandRejectServerOwned  = "server_owned"
	CommandRejectStaleTick    = "stale_tick"
	CommandRejectSimulation   = "simulation_rejected"
)

// Disconnect reasons.
const (
	DisconnectClosed      = "closed"
	DisconnectWriteFailed = "write_failed"
)

const (
	defaultKeyframeInterval = 30
	defaultHazardDamage     = 10
	defaultReviveFraction   = 0.5

	metricKeyBroadcastBytes = "hub_broadcast_bytes_total"
	metricKeyKeyframes      = "hub_keyframes_total"
	metricKeyPlayers        = "hub_players"
	metricKeyCommands       = "hub_commands_total"
	metricKeyCommandDrops   = "hub_commands_rejected_total"
)

// Predicted field names registered on every entity.
const (
	FieldProperties = "properties"
	FieldInventory  = "inventory"
	FieldUnion      = "union"
)

var errMissingTicks = errors.New("server: hub requires a tick clock")

// Subscriber receives encoded snapshot frames for one connection.
type Subscriber interface {
	Send(data []byte) error
	Close() error
}

// HubConfig wires the hub to its collaborators.
type HubConfig struct {
	KeyframeInterval int
	MinComboWindow   float64
	Animations       animation.Table
	HazardDamage     float64
	ReviveFraction   float64
	Ticks            *sim.Clock
	Clock            logging.Clock
	Logger           telemetry.Logger
	Metrics          telemetry.Metrics
	Publisher        logging.Publisher
}

// DefaultHubConfig returns the default hub tuning.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		KeyframeInterval: defaultKeyframeInterval,
		MinComboWindow:   animation.DefaultMinComboWindow,
		Animations:       animation.DefaultTable(),
		HazardDamage:     defaultHazardDamage,
		ReviveFraction:   defaultReviveFraction,
	}
}

type entity struct {
	id           command.EntityID
	connectionID int
	owned        bool

	properties *property.Machine
	animations *animation.Machine
	combat     *property.CombatMachine
	inventory  *predicted.Map[uint32, int]
	union      *predicted.Value[uint32]
	fields     *predicted.Set

	input           command.InputPayload
	environment     command.Environment
	lastCommandTick int64
	lastAck         int64
	needsKeyframe   bool
}

// Hub owns every live entity and the subscribers that observe them.
type Hub struct {
	cfg      HubConfig
	world    *world.World
	pipeline atomic.Pointer[interaction.Pipeline]

	mu             sync.Mutex
	entities       map[command.EntityID]*entity
	connections    map[int]*entity
	subscribers    map[int]Subscriber
	removed        []command.EntityID
	nextEntity     command.EntityID
	nextConnection int

	forceKeyframe atomic.Bool
}

// NewHub constructs a hub over w. The animation table is validated once
// here so entity construction cannot fail on configuration.
func NewHub(cfg HubConfig, w *world.World) (*Hub, error) {
	defaults := DefaultHubConfig()
	if cfg.KeyframeInterval <= 0 {
		cfg.KeyframeInterval = defaults.KeyframeInterval
	}
	if cfg.MinComboWindow <= 0 {
		cfg.MinComboWindow = defaults.MinComboWindow
	}
	if cfg.Animations == nil {
		cfg.Animations = defaults.Animations
	}
	if cfg.HazardDamage <= 0 {
		cfg.HazardDamage = defaults.HazardDamage
	}
	if cfg.ReviveFraction <= 0 || cfg.ReviveFraction > 1 {
		cfg.ReviveFraction = defaults.ReviveFraction
	}
	if cfg.Ticks == nil {
		return nil, errMissingTicks
	}
	if cfg.Clock == nil {
		cfg.Clock = logging.ClockFunc(time.Now)
	}
	if cfg.Publisher == nil {
		cfg.Publisher = logging.NopPublisher()
	}
	if err := cfg.Animations.Validate(cfg.MinComboWindow); err != nil {
		return nil, fmt.Errorf("hub animations: %w", err)
	}
	if w == nil {
		w = world.New(world.Deps{Publisher: cfg.Publisher, CurrentTick: cfg.Ticks.CurrentTick})
	}
	h := &Hub{
		cfg:         cfg,
		world:       w,
		entities:    make(map[command.EntityID]*entity),
		connections: make(map[int]*entity),
		subscribers: make(map[int]Subscriber),
	}
	w.SetHooks(world.Hooks{OnHazard: h.applyHazard, OnRevive: h.revive})
	return h, nil
}

// World exposes the scene registries.
func (h *Hub) World() *world.World {
	return h.world
}

// AttachPipeline lets the hub raise server interaction requests, such as
// union changes after a defeat.
func (h *Hub) AttachPipeline(p *interaction.Pipeline) {
	h.pipeline.Store(p)
}

// Tick reports the current simulation tick.
func (h *Hub) Tick() int64 {
	return h.cfg.Ticks.CurrentTick()
}

// TickRate reports the simulation rate in ticks per second.
func (h *Hub) TickRate() int {
	return h.cfg.Ticks.TickRate()
}

// Join allocates a connection id and a player entity bound to it. The
// connection's first snapshot is a keyframe.
func (h *Hub) Join() (int, command.EntityID, error) {
	h.mu.Lock()
	h.nextConnection++
	connectionID := h.nextConnection
	e, err := h.spawnLocked(connectionID, true)
	if err != nil {
		h.mu.Unlock()
		return 0, 0, err
	}
	if err := h.world.AddPlayer(connectionID, e.id); err != nil {
		delete(h.entities, e.id)
		delete(h.connections, connectionID)
		h.mu.Unlock()
		return 0, 0, err
	}
	players := len(h.connections)
	h.mu.Unlock()

	h.storeMetric(metricKeyPlayers, uint64(players))
	lifecycle.PlayerJoined(context.Background(), h.cfg.Publisher, h.tick(), prediction.EntityRef(e.id), lifecycle.PlayerJoinedPayload{
		ConnectionID: connectionID,
		EntityID:     uint32(e.id),
	}, nil)
	return connectionID, e.id, nil
}

// SpawnServerEntity creates an entity no connection owns. Only server
// commands may drive it.
func (h *Hub) SpawnServerEntity() (command.EntityID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, err := h.spawnLocked(0, false)
	if err != nil {
		return 0, err
	}
	return e.id, nil
}

func (h *Hub) spawnLocked(connectionID int, owned bool) (*entity, error) {
	h.nextEntity++
	id := h.nextEntity
	props := property.NewMachine(property.Config{EntityID: id, Authoritative: true, Publisher: h.cfg.Publisher})
	anims, err := animation.NewMachine(animation.Config{
		EntityID:       id,
		Table:          h.cfg.Animations,
		MinComboWindow: h.cfg.MinComboWindow,
		Properties:     props,
		Costs:          props,
		Publisher:      h.cfg.Publisher,
	})
	if err != nil {
		return nil, err
	}
	inventory := predicted.NewMap[uint32, int](wire.Uint32Codec{}, wire.IntCodec{}, false)
	union := predicted.NewValue[uint32](wire.Uint32Codec{}, uint32(id), false)
	fields, err := predicted.NewSchema().
		Field(FieldProperties, props.Values()).
		Field(FieldInventory, inventory).
		Field(FieldUnion, union).
		Build()
	if err != nil {
		return nil, err
	}
	e := &entity{
		id:              id,
		connectionID:    connectionID,
		owned:           owned,
		properties:      props,
		animations:      anims,
		combat:          property.NewCombatMachine(props, h.lookupLocked, nil),
		inventory:       inventory,
		union:           union,
		fields:          fields,
		lastCommandTick: -1,
		needsKeyframe:   true,
	}
	h.entities[id] = e
	if owned {
		h.connections[connectionID] = e
	}
	return e, nil
}

func (h *Hub) lookupLocked(id command.EntityID) (*property.Machine, bool) {
	e, ok := h.entities[id]
	if !ok {
		return nil, false
	}
	return e.properties, true
}

// Subscribe attaches the snapshot sink for a joined connection. A previous
// sink is closed.
func (h *Hub) Subscribe(connectionID int, sub Subscriber) bool {
	h.mu.Lock()
	e, ok := h.connections[connectionID]
	if !ok {
		h.mu.Unlock()
		return false
	}
	previous := h.subscribers[connectionID]
	h.subscribers[connectionID] = sub
	e.needsKeyframe = true
	h.mu.Unlock()

	if previous != nil {
		_ = previous.Close()
	}
	return true
}

// Disconnect despawns the connection's entity and closes its subscriber.
func (h *Hub) Disconnect(connectionID int, reason string) bool {
	h.mu.Lock()
	e, ok := h.connections[connectionID]
	sub := h.subscribers[connectionID]
	delete(h.subscribers, connectionID)
	if ok {
		delete(h.connections, connectionID)
		delete(h.entities, e.id)
		h.removed = append(h.removed, e.id)
	}
	players := len(h.connections)
	h.mu.Unlock()

	if sub != nil {
		_ = sub.Close()
	}
	if !ok {
		return false
	}
	h.world.RemovePlayer(connectionID)
	h.storeMetric(metricKeyPlayers, uint64(players))
	lifecycle.PlayerDisconnected(context.Background(), h.cfg.Publisher, h.tick(), prediction.EntityRef(e.id), lifecycle.PlayerDisconnectedPayload{Reason: reason}, nil)
	return true
}

// ForceKeyframe makes the next broadcast a full keyframe for everyone.
func (h *Hub) ForceKeyframe() {
	h.forceKeyframe.Store(true)
}

// SetEnvironment records the terrain an entity stands on.
func (h *Hub) SetEnvironment(id command.EntityID, env command.Environment) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entities[id]
	if ok {
		e.environment = env
	}
	return ok
}

// ApplyBuff grants any live entity, player or server owned, a timed
// property change starting at the current tick. Server commands cannot
// target player entities, so gameplay systems buff players here.
func (h *Hub) ApplyBuff(id command.EntityID, p command.Property, delta float64, durationTicks int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entities[id]
	if !ok || !e.properties.Alive() {
		return false
	}
	return e.properties.ApplyBuff(p, delta, durationTicks)
}

// Properties returns a copy of an entity's authoritative properties.
func (h *Hub) Properties(id command.EntityID) (property.State, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entities[id]
	if !ok {
		return nil, false
	}
	return e.properties.State(), true
}

// Cooldowns returns a copy of an entity's cooldown states.
func (h *Hub) Cooldowns(id command.EntityID) (animation.State, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entities[id]
	if !ok {
		return nil, false
	}
	return e.animations.State(), true
}

// Exists implements command.Directory.
func (h *Hub) Exists(id command.EntityID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return directory{h}.Exists(id)
}

// OwnerConnection implements command.Directory.
func (h *Hub) OwnerConnection(id command.EntityID) (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return directory{h}.OwnerConnection(id)
}

// ServerAuthoritative implements command.Directory.
func (h *Hub) ServerAuthoritative(id command.EntityID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return directory{h}.ServerAuthoritative(id)
}

// directory answers ownership questions with the hub lock already held.
type directory struct{ h *Hub }

func (d directory) Exists(id command.EntityID) bool {
	_, ok := d.h.entities[id]
	return ok
}

func (d directory) OwnerConnection(id command.EntityID) (int, bool) {
	e, ok := d.h.entities[id]
	if !ok || !e.owned {
		return 0, false
	}
	return e.connectionID, true
}

func (d directory) ServerAuthoritative(id command.EntityID) bool {
	e, ok := d.h.entities[id]
	return ok && !e.owned
}

// HandleCommand applies a command received from a client connection. The
// header is restamped with the connection and a missing entity id
// defaults to the connection's own entity. The command tick is
// acknowledged in later snapshots whether or not simulation accepts it.
func (h *Hub) HandleCommand(connectionID int, cmd command.Command) (bool, string) {
	if cmd.Payload == nil {
		h.addMetric(metricKeyCommandDrops, 1)
		return false, CommandRejectMalformed
	}
	h.mu.Lock()
	e, ok := h.connections[connectionID]
	if !ok {
		h.mu.Unlock()
		h.addMetric(metricKeyCommandDrops, 1)
		return false, CommandRejectUnknownActor
	}
	cmd.Header.ConnectionID = connectionID
	cmd.Header.ClientOriginated = true
	cmd.Header.Category = cmd.Payload.Category()
	if cmd.Header.EntityID == 0 {
		cmd.Header.EntityID = e.id
	}
	ok, reason := h.applyLocked(cmd)
	h.mu.Unlock()

	h.addMetric(metricKeyCommands, 1)
	if !ok {
		h.addMetric(metricKeyCommandDrops, 1)
	}
	return ok, reason
}

// HandleServerCommand applies a command the server issued itself. It may
// only drive server-authoritative entities.
func (h *Hub) HandleServerCommand(cmd command.Command) (bool, string) {
	if cmd.Payload == nil {
		return false, CommandRejectMalformed
	}
	cmd.Header.ClientOriginated = false
	cmd.Header.Category = cmd.Payload.Category()
	h.mu.Lock()
	ok, reason := h.applyLocked(cmd)
	h.mu.Unlock()
	return ok, reason
}

func (h *Hub) applyLocked(cmd command.Command) (bool, string) {
	if !cmd.Header.Valid(directory{h}) {
		if _, exists := h.entities[cmd.Header.EntityID]; !exists {
			return false, CommandRejectUnknownActor
		}
		return false, CommandRejectNotOwner
	}
	e := h.entities[cmd.Header.EntityID]
	if cmd.Tick() < e.lastCommandTick {
		return false, CommandRejectStaleTick
	}
	e.lastCommandTick = cmd.Tick()

	switch p := cmd.Payload.(type) {
	case command.InputPayload:
		e.input = p
		if p.Animation == "" {
			return true, ""
		}
		if !e.animations.Simulate(cmd) {
			return false, CommandRejectSimulation
		}
	case command.AnimationEventPayload:
		if !e.animations.Events().Simulate(cmd) {
			return false, CommandRejectSimulation
		}
	case command.AttackPayload:
		if !e.combat.Simulate(cmd) {
			return false, CommandRejectSimulation
		}
		h.resolveHitsLocked(e)
	default:
		if cmd.Header.ClientOriginated {
			return false, CommandRejectServerOwned
		}
		if !e.properties.Simulate(cmd) {
			return false, CommandRejectSimulation
		}
	}
	return true, ""
}

func (h *Hub) resolveHitsLocked(attacker *entity) {
	pipeline := h.pipeline.Load()
	for _, hit := range attacker.combat.TakeHits() {
		if !hit.Defeated || pipeline == nil || !attacker.owned {
			continue
		}
		defender, ok := h.entities[hit.Target]
		if !ok || !defender.owned {
			continue
		}
		// The pipeline consumer takes the world lock, never the hub lock
		// while holding it, so enqueueing here cannot deadlock.
		pipeline.EnqueueServerCommand(interaction.Request{
			Header: interaction.Header{
				OriginConnectionID: attacker.connectionID,
				Tick:               max(h.cfg.Ticks.CurrentTick(), 1),
				Category:           interaction.CategoryPlayerToPlayer,
			},
			Payload: interaction.UnionChangePayload{KillerID: attacker.id, VictimID: defender.id},
		})
	}
}

// RecordAck stores the last snapshot tick a connection applied.
func (h *Hub) RecordAck(connectionID int, ack int64) {
	h.mu.Lock()
	e, ok := h.connections[connectionID]
	if !ok {
		h.mu.Unlock()
		return
	}
	previous := e.lastAck
	if ack > previous {
		e.lastAck = ack
	}
	h.mu.Unlock()

	payload := network.AckPayload{Previous: uint64(max(previous, 0)), Ack: uint64(max(ack, 0))}
	actor := prediction.EntityRef(e.id)
	switch {
	case ack > previous:
		network.AckAdvanced(context.Background(), h.cfg.Publisher, h.tick(), actor, payload, nil)
	case ack < previous:
		network.AckRegression(context.Background(), h.cfg.Publisher, h.tick(), actor, payload, nil)
	}
}

// Advance runs one simulation step and broadcasts the resulting snapshots.
// It implements sim.Stepper.
func (h *Hub) Advance(ctx sim.TickContext) {
	h.mu.Lock()
	ids := h.sortedIDsLocked()
	for _, id := range ids {
		e := h.entities[id]
		e.animations.Update(ctx.Delta)
		e.properties.Advance(ctx.Tick)
		e.properties.HandlePropertyRecover(ctx.Delta)
		hasInput := e.input.MoveX != 0 || e.input.MoveY != 0
		e.properties.HandleEnvironmentChange(hasInput, e.environment, e.input.Sprinting, ctx.Delta)
		if e.owned {
			e.inventory.ServerReplace(h.world.Inventory(e.id))
			e.union.ServerSet(uint32(h.world.UnionOf(e.id)))
		}
	}
	sends, keyframe := h.buildFramesLocked(ctx, ids)
	h.mu.Unlock()

	if keyframe {
		h.addMetric(metricKeyKeyframes, 1)
	}
	h.deliver(sends)
}

type outgoing struct {
	connectionID int
	sub          Subscriber
	data         []byte
}

func (h *Hub) buildFramesLocked(ctx sim.TickContext, ids []command.EntityID) ([]outgoing, bool) {
	keyframe := h.forceKeyframe.Swap(false) || ctx.Tick%int64(h.cfg.KeyframeInterval) == 0
	needFull := keyframe
	for conn, e := range h.connections {
		if e.needsKeyframe && h.subscribers[conn] != nil {
			needFull = true
		}
	}

	var full []EntityState
	delta := make([]EntityState, 0, len(ids))
	for _, id := range ids {
		e := h.entities[id]
		if needFull {
			fw := wire.NewWriter(128)
			e.fields.SerializeAll(fw)
			full = append(full, EntityState{ID: id, Body: fw.Bytes()})
		}
		dw := wire.NewWriter(64)
		if e.fields.SerializeDelta(dw) {
			delta = append(delta, EntityState{ID: id, Body: dw.Bytes()})
		}
	}
	removed := h.removed
	h.removed = nil

	serverTime := h.cfg.Clock.Now().UnixMilli()
	sends := make([]outgoing, 0, len(h.subscribers))
	for conn, sub := range h.subscribers {
		e, ok := h.connections[conn]
		if !ok {
			continue
		}
		frame := Snapshot{
			Version:    ProtocolVersion,
			Kind:       FrameDelta,
			Tick:       ctx.Tick,
			Ack:        e.lastCommandTick,
			Self:       e.id,
			ServerTime: serverTime,
			Entities:   delta,
			Removed:    removed,
		}
		if keyframe || e.needsKeyframe {
			frame.Kind = FrameKeyframe
			frame.Entities = full
			frame.Removed = nil
			e.needsKeyframe = false
		}
		sends = append(sends, outgoing{connectionID: conn, sub: sub, data: EncodeSnapshot(frame)})
	}
	return sends, keyframe
}

func (h *Hub) deliver(sends []outgoing) {
	var bytes uint64
	for _, s := range sends {
		if err := s.sub.Send(s.data); err != nil {
			if h.cfg.Logger != nil {
				h.cfg.Logger.Printf("failed to send snapshot to connection %d: %v", s.connectionID, err)
			}
			h.Disconnect(s.connectionID, DisconnectWriteFailed)
			continue
		}
		bytes += uint64(len(s.data))
	}
	if bytes > 0 {
		h.addMetric(metricKeyBroadcastBytes, bytes)
	}
}

// DiagnosticsSnapshot describes every connected player.
func (h *Hub) DiagnosticsSnapshot() []DiagnosticsPlayer {
	h.mu.Lock()
	defer h.mu.Unlock()
	players := make([]DiagnosticsPlayer, 0, len(h.connections))
	for _, id := range h.sortedIDsLocked() {
		e := h.entities[id]
		if !e.owned {
			continue
		}
		players = append(players, DiagnosticsPlayer{
			ConnectionID: e.connectionID,
			EntityID:     uint32(e.id),
			LastAck:      e.lastAck,
			LastCommand:  e.lastCommandTick,
			Health:       e.properties.GetProperty(command.PropertyHealth),
			Strength:     e.properties.GetProperty(command.PropertyStrength),
			Union:        e.union.Get(),
		})
	}
	return players
}

func (h *Hub) applyHazard(target command.EntityID, hazardID uint32, intensity float64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entities[target]
	if !ok || !e.properties.Alive() {
		return false
	}
	applied := -e.properties.Add(command.PropertyHealth, -intensity*h.cfg.HazardDamage)
	hazard := logging.EntityRef{ID: "hazard-" + strconv.FormatUint(uint64(hazardID), 10), Kind: logging.EntityKindWorld}
	loggingcombat.Damage(context.Background(), h.cfg.Publisher, h.tick(), hazard, prediction.EntityRef(target), loggingcombat.DamagePayload{
		Ability:      "hazard",
		Amount:       applied,
		TargetHealth: e.properties.GetProperty(command.PropertyHealth),
	}, nil)
	return true
}

func (h *Hub) revive(actor, target command.EntityID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	reviver, ok := h.entities[actor]
	if !ok || !reviver.properties.Alive() {
		return false
	}
	e, ok := h.entities[target]
	if !ok || e.properties.Alive() {
		return false
	}
	restore := e.properties.GetProperty(command.PropertyMaxHealth) * h.cfg.ReviveFraction
	return e.properties.Add(command.PropertyHealth, restore) > 0
}

func (h *Hub) sortedIDsLocked() []command.EntityID {
	ids := make([]command.EntityID, 0, len(h.entities))
	for id := range h.entities {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (h *Hub) tick() uint64 {
	if t := h.cfg.Ticks.CurrentTick(); t > 0 {
		return uint64(t)
	}
	return 0
}

func (h *Hub) addMetric(key string, delta uint64) {
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.Add(key, delta)
	}
}

func (h *Hub) storeMetric(key string, value uint64) {
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.Store(key, value)
	}
}
