package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"skirmish/server/internal/animation"
	"skirmish/server/internal/command"
	"skirmish/server/internal/interaction"
	"skirmish/server/internal/predicted"
	"skirmish/server/internal/property"
	"skirmish/server/internal/sim"
	"skirmish/server/internal/wire"
	"skirmish/server/internal/world"
	"skirmish/server/logging"
)

var hubTestNow = time.UnixMilli(1_700_000_000_000)

type recordingSubscriber struct {
	mu     sync.Mutex
	frames [][]byte
	fail   error
	closed bool
}

func (s *recordingSubscriber) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.frames = append(s.frames, data)
	return nil
}

func (s *recordingSubscriber) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *recordingSubscriber) last(t *testing.T) Snapshot {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		t.Fatalf("no frames received")
	}
	frame, err := DecodeSnapshot(s.frames[len(s.frames)-1])
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return frame
}

func (s *recordingSubscriber) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func newTestHub(t *testing.T) (*Hub, *world.World) {
	t.Helper()
	ticks := sim.NewClock(sim.DefaultTickRate)
	w := world.New(world.Deps{CurrentTick: ticks.CurrentTick})
	hub, err := NewHub(HubConfig{
		Ticks: ticks,
		Clock: logging.ClockFunc(func() time.Time { return hubTestNow }),
	}, w)
	if err != nil {
		t.Fatalf("NewHub: %v", err)
	}
	return hub, w
}

func joinSubscribed(t *testing.T, hub *Hub) (int, command.EntityID, *recordingSubscriber) {
	t.Helper()
	conn, id, err := hub.Join()
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	sub := &recordingSubscriber{}
	if !hub.Subscribe(conn, sub) {
		t.Fatalf("Subscribe(%d) refused", conn)
	}
	return conn, id, sub
}

func step(hub *Hub, tick int64) {
	hub.Advance(sim.TickContext{Tick: tick})
}

// clientView mirrors the entity field schema the hub registers.
type clientView struct {
	properties *property.Machine
	inventory  *predicted.Map[uint32, int]
	union      *predicted.Value[uint32]
	fields     *predicted.Set
}

func newClientView(t *testing.T) *clientView {
	t.Helper()
	props := property.NewMachine(property.Config{})
	view := &clientView{
		properties: props,
		inventory:  predicted.NewMap[uint32, int](wire.Uint32Codec{}, wire.IntCodec{}, true),
		union:      predicted.NewValue[uint32](wire.Uint32Codec{}, 0, true),
	}
	fields, err := predicted.NewSchema().
		Field(FieldProperties, props.Values()).
		Field(FieldInventory, view.inventory).
		Field(FieldUnion, view.union).
		Build()
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}
	view.fields = fields
	return view
}

func entityBody(t *testing.T, frame Snapshot, id command.EntityID) []byte {
	t.Helper()
	for _, e := range frame.Entities {
		if e.ID == id {
			return e.Body
		}
	}
	t.Fatalf("entity %d missing from frame %+v", id, frame)
	return nil
}

func hasEntity(frame Snapshot, id command.EntityID) bool {
	for _, e := range frame.Entities {
		if e.ID == id {
			return true
		}
	}
	return false
}

func input(conn int, tick int64, animation command.AnimationID) command.Command {
	return command.New(command.Header{ConnectionID: conn, Tick: tick}, command.InputPayload{Animation: animation})
}

func TestHubFirstFrameIsKeyframe(t *testing.T) {
	hub, _ := newTestHub(t)
	_, id, sub := joinSubscribed(t, hub)

	step(hub, 1)

	frame := sub.last(t)
	if frame.Kind != FrameKeyframe {
		t.Fatalf("expected keyframe, got kind %d", frame.Kind)
	}
	if frame.Self != id || frame.Tick != 1 || frame.Version != ProtocolVersion {
		t.Fatalf("unexpected frame header %+v", frame)
	}
	if frame.ServerTime != hubTestNow.UnixMilli() {
		t.Fatalf("expected server time %d, got %d", hubTestNow.UnixMilli(), frame.ServerTime)
	}

	view := newClientView(t)
	if err := view.fields.DeserializeAll(wire.NewReader(entityBody(t, frame, id))); err != nil {
		t.Fatalf("apply keyframe: %v", err)
	}
	if got := view.properties.GetProperty(command.PropertyHealth); got != 100 {
		t.Fatalf("expected health 100, got %v", got)
	}
	if got := view.union.Get(); got != uint32(id) {
		t.Fatalf("expected player to lead its own union, got %d", got)
	}
}

func TestHubDeltaCarriesOnlyChangedEntities(t *testing.T) {
	hub, _ := newTestHub(t)
	conn, id, sub := joinSubscribed(t, hub)
	_, other, _ := joinSubscribed(t, hub)
	step(hub, 1)

	view := newClientView(t)
	if err := view.fields.DeserializeAll(wire.NewReader(entityBody(t, sub.last(t), id))); err != nil {
		t.Fatalf("apply keyframe: %v", err)
	}

	if ok, reason := hub.HandleCommand(conn, input(0, 2, "heavy_slam")); !ok {
		t.Fatalf("heavy_slam rejected: %s", reason)
	}
	step(hub, 2)

	frame := sub.last(t)
	if frame.Kind != FrameDelta {
		t.Fatalf("expected delta, got kind %d", frame.Kind)
	}
	if frame.Ack != 2 {
		t.Fatalf("expected ack 2, got %d", frame.Ack)
	}
	if hasEntity(frame, other) {
		t.Fatalf("idle entity %d should not appear in delta", other)
	}
	if err := view.fields.DeserializeDelta(wire.NewReader(entityBody(t, frame, id))); err != nil {
		t.Fatalf("apply delta: %v", err)
	}
	if got := view.properties.GetProperty(command.PropertyStrength); got != 70 {
		t.Fatalf("expected strength 70 after heavy_slam, got %v", got)
	}

	step(hub, 3)
	if frame := sub.last(t); len(frame.Entities) != 0 {
		t.Fatalf("expected empty delta once changes were sent, got %d entities", len(frame.Entities))
	}
}

func TestHubHandleCommandRejections(t *testing.T) {
	hub, _ := newTestHub(t)
	conn, _, _ := joinSubscribed(t, hub)
	_, other, _ := joinSubscribed(t, hub)

	cases := []struct {
		name   string
		conn   int
		cmd    command.Command
		reason string
	}{
		{"unknown connection", 99, input(0, 1, "dodge"), CommandRejectUnknownActor},
		{"missing payload", conn, command.Command{Header: command.Header{Tick: 1}}, CommandRejectMalformed},
		{"foreign entity", conn, command.New(command.Header{Tick: 1, EntityID: other}, command.InputPayload{Animation: "dodge"}), CommandRejectNotOwner},
		{"missing entity", conn, command.New(command.Header{Tick: 1, EntityID: 404}, command.InputPayload{Animation: "dodge"}), CommandRejectUnknownActor},
		{"server owned property", conn, command.New(command.Header{Tick: 1}, command.RecoverPayload{DeltaSeconds: 1}), CommandRejectServerOwned},
		{"unknown animation", conn, input(0, 1, "moonwalk"), CommandRejectSimulation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, reason := hub.HandleCommand(tc.conn, tc.cmd)
			if ok || reason != tc.reason {
				t.Fatalf("expected rejection %q, got ok=%v reason=%q", tc.reason, ok, reason)
			}
		})
	}

	if ok, reason := hub.HandleCommand(conn, input(0, 5, "walk")); !ok {
		t.Fatalf("walk rejected: %s", reason)
	}
	if ok, reason := hub.HandleCommand(conn, input(0, 4, "walk")); ok || reason != CommandRejectStaleTick {
		t.Fatalf("expected stale tick rejection, got ok=%v reason=%q", ok, reason)
	}
	if ok, reason := hub.HandleCommand(conn, input(0, 5, "interact")); !ok {
		t.Fatalf("same tick command rejected: %s", reason)
	}
}

func TestHubServerEntityAcceptsOnlyServerCommands(t *testing.T) {
	hub, _ := newTestHub(t)
	conn, _, _ := joinSubscribed(t, hub)
	npc, err := hub.SpawnServerEntity()
	if err != nil {
		t.Fatalf("SpawnServerEntity: %v", err)
	}

	buff := command.New(command.Header{Tick: 1, EntityID: npc}, command.BuffPayload{Property: command.PropertyAttack, Delta: 5, DurationTicks: 3})
	if ok, reason := hub.HandleCommand(conn, buff); ok || reason != CommandRejectNotOwner {
		t.Fatalf("client drove server entity: ok=%v reason=%q", ok, reason)
	}
	if ok, reason := hub.HandleServerCommand(buff); !ok {
		t.Fatalf("server buff rejected: %s", reason)
	}
	props, _ := hub.Properties(npc)
	if props[command.PropertyAttack] != 25 {
		t.Fatalf("expected buffed attack 25, got %v", props[command.PropertyAttack])
	}

	step(hub, 4)
	props, _ = hub.Properties(npc)
	if props[command.PropertyAttack] != 20 {
		t.Fatalf("expected buff to expire by tick 4, got %v", props[command.PropertyAttack])
	}

	self := command.New(command.Header{Tick: 1, EntityID: 1}, command.BuffPayload{Property: command.PropertyAttack, Delta: 5, DurationTicks: 3})
	if ok, _ := hub.HandleServerCommand(self); ok {
		t.Fatalf("server command drove a player entity")
	}
}

func TestHubApplyBuffReachesPlayers(t *testing.T) {
	hub, _ := newTestHub(t)
	_, id, _ := joinSubscribed(t, hub)
	step(hub, 1)

	if !hub.ApplyBuff(id, command.PropertyAttack, 5, 3) {
		t.Fatalf("player buff refused")
	}
	props, _ := hub.Properties(id)
	if props[command.PropertyAttack] != 25 {
		t.Fatalf("expected buffed attack 25, got %v", props[command.PropertyAttack])
	}

	step(hub, 3)
	props, _ = hub.Properties(id)
	if props[command.PropertyAttack] != 25 {
		t.Fatalf("buff expired early: %v", props[command.PropertyAttack])
	}
	step(hub, 4)
	props, _ = hub.Properties(id)
	if props[command.PropertyAttack] != 20 {
		t.Fatalf("expected buff to expire by tick 4, got %v", props[command.PropertyAttack])
	}

	if hub.ApplyBuff(404, command.PropertyAttack, 5, 3) {
		t.Fatalf("buffed a missing entity")
	}
	if hub.ApplyBuff(id, command.PropertyAttack, 5, 0) {
		t.Fatalf("accepted a buff without duration")
	}
}

func TestHubDisconnectBroadcastsRemoval(t *testing.T) {
	hub, w := newTestHub(t)
	_, _, watcher := joinSubscribed(t, hub)
	conn, id, leaver := joinSubscribed(t, hub)
	step(hub, 1)

	if !hub.Disconnect(conn, DisconnectClosed) {
		t.Fatalf("Disconnect returned false")
	}
	if hub.Disconnect(conn, DisconnectClosed) {
		t.Fatalf("second Disconnect should report false")
	}
	if !leaver.closed {
		t.Fatalf("subscriber was not closed")
	}
	if _, ok := w.GetPlayerNetId(conn); ok {
		t.Fatalf("world still binds connection %d", conn)
	}

	step(hub, 2)
	frame := watcher.last(t)
	if len(frame.Removed) != 1 || frame.Removed[0] != id {
		t.Fatalf("expected removal of %d, got %v", id, frame.Removed)
	}
	step(hub, 3)
	if frame := watcher.last(t); len(frame.Removed) != 0 {
		t.Fatalf("removal repeated: %v", frame.Removed)
	}
}

func TestHubWriteFailureDisconnects(t *testing.T) {
	hub, _ := newTestHub(t)
	conn, _, sub := joinSubscribed(t, hub)
	sub.fail = errors.New("broken pipe")

	step(hub, 1)

	if _, ok := hub.connections[conn]; ok {
		t.Fatalf("connection %d survived a failed write", conn)
	}
	if len(hub.DiagnosticsSnapshot()) != 0 {
		t.Fatalf("diagnostics still list the failed connection")
	}
}

func TestHubForceKeyframe(t *testing.T) {
	hub, _ := newTestHub(t)
	_, _, sub := joinSubscribed(t, hub)
	step(hub, 1)
	step(hub, 2)
	if frame := sub.last(t); frame.Kind != FrameDelta {
		t.Fatalf("expected delta at tick 2, got %d", frame.Kind)
	}

	hub.ForceKeyframe()
	step(hub, 3)
	frame := sub.last(t)
	if frame.Kind != FrameKeyframe || len(frame.Entities) != 1 {
		t.Fatalf("expected forced keyframe with one entity, got %+v", frame)
	}
	if sub.count() != 3 {
		t.Fatalf("expected three frames, got %d", sub.count())
	}
}

func TestHubHazardAndReviveHooks(t *testing.T) {
	hub, w := newTestHub(t)
	_, healer, _ := joinSubscribed(t, hub)
	_, victim, _ := joinSubscribed(t, hub)

	if !w.ApplyHazard(victim, 7, 2) {
		t.Fatalf("hazard was not applied")
	}
	props, _ := hub.Properties(victim)
	if props[command.PropertyHealth] != 80 {
		t.Fatalf("expected health 80 after hazard, got %v", props[command.PropertyHealth])
	}

	if w.InteractPlayers(healer, victim, interaction.PlayerInteractionRevive) {
		t.Fatalf("revived a living player")
	}
	if !w.ApplyHazard(victim, 7, 100) {
		t.Fatalf("lethal hazard was not applied")
	}
	if w.ApplyHazard(victim, 7, 1) {
		t.Fatalf("hazard applied to a defeated player")
	}
	if !w.InteractPlayers(healer, victim, interaction.PlayerInteractionRevive) {
		t.Fatalf("revive failed")
	}
	props, _ = hub.Properties(victim)
	if props[command.PropertyHealth] != 50 {
		t.Fatalf("expected revive to restore half health, got %v", props[command.PropertyHealth])
	}
}

func TestHubDefeatRaisesUnionChange(t *testing.T) {
	hub, w := newTestHub(t)
	pipeline := interaction.NewPipeline(interaction.Config{
		Capacity: 4,
		Clock:    logging.ClockFunc(func() time.Time { return hubTestNow }),
		Items:    w,
		Players:  w,
	})
	hub.AttachPipeline(pipeline)

	conn, killer, _ := joinSubscribed(t, hub)
	_, victim, _ := joinSubscribed(t, hub)

	attack := command.New(command.Header{Tick: 3}, command.AttackPayload{Animation: "slash", Defenders: []command.EntityID{victim}, BaseDamage: 500})
	if ok, reason := hub.HandleCommand(conn, attack); !ok {
		t.Fatalf("attack rejected: %s", reason)
	}
	if pipeline.Pending() != 1 {
		t.Fatalf("expected one queued union change, got %d", pipeline.Pending())
	}

	if w.UnionOf(victim) == killer {
		t.Fatalf("union changed before the pipeline ran")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pipeline.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for w.UnionOf(victim) != killer {
		if time.Now().After(deadline) {
			t.Fatalf("union change was never executed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	step(hub, 4)
	players := hub.DiagnosticsSnapshot()
	if len(players) != 2 || players[1].Union != uint32(killer) {
		t.Fatalf("expected victim to join union %d, got %+v", killer, players)
	}
}

func TestHubRecordAckIsMonotonic(t *testing.T) {
	hub, _ := newTestHub(t)
	conn, id, _ := joinSubscribed(t, hub)

	hub.RecordAck(conn, 9)
	hub.RecordAck(conn, 4)
	hub.RecordAck(404, 12)

	players := hub.DiagnosticsSnapshot()
	if len(players) != 1 || players[0].EntityID != uint32(id) {
		t.Fatalf("unexpected diagnostics %+v", players)
	}
	if players[0].LastAck != 9 {
		t.Fatalf("expected ack 9 to stick, got %d", players[0].LastAck)
	}
}

func TestNewHubValidatesAnimations(t *testing.T) {
	ticks := sim.NewClock(sim.DefaultTickRate)
	_, err := NewHub(HubConfig{}, nil)
	if err == nil {
		t.Fatalf("expected missing tick clock to fail")
	}
	cfg := DefaultHubConfig()
	cfg.Ticks = ticks
	cfg.Animations["slash"] = animation.Entry{
		Action:      animation.ActionAnimation,
		Cooldown:    animation.CooldownCombo,
		Duration:    1,
		MaxStages:   2,
		ComboWindow: 0.1,
	}
	if _, err := NewHub(cfg, nil); err == nil {
		t.Fatalf("expected short combo window to fail validation")
	}
}
