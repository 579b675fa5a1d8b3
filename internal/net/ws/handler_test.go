package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"skirmish/server"
	"skirmish/server/internal/command"
	"skirmish/server/internal/interaction"
	"skirmish/server/internal/sim"
	"skirmish/server/internal/world"
)

type harness struct {
	hub      *server.Hub
	world    *world.World
	pipeline *interaction.Pipeline
	url      string
}

func newHarness(t *testing.T, cfg HandlerConfig) *harness {
	t.Helper()
	ticks := sim.NewClock(sim.DefaultTickRate)
	w := world.New(world.Deps{CurrentTick: ticks.CurrentTick})
	hub, err := server.NewHub(server.HubConfig{Ticks: ticks}, w)
	require.NoError(t, err)
	pipeline := interaction.NewPipeline(interaction.Config{Capacity: 8, Items: w, Players: w, CurrentTick: ticks.CurrentTick})
	cfg.Pipeline = pipeline

	srv := httptest.NewServer(http.HandlerFunc(NewHandler(hub, cfg).Handle))
	t.Cleanup(srv.Close)
	return &harness{hub: hub, world: w, pipeline: pipeline, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(h.url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

func send(t *testing.T, conn *websocket.Conn, frame server.ClientFrame) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, server.EncodeClientFrame(frame)))
}

func TestSessionStreamsKeyframeAfterJoin(t *testing.T) {
	h := newHarness(t, HandlerConfig{})
	conn := h.dial(t)
	waitFor(t, func() bool { return len(h.hub.DiagnosticsSnapshot()) == 1 }, "player never joined")

	h.hub.Advance(sim.TickContext{Tick: 1})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	messageType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, messageType)

	frame, err := server.DecodeSnapshot(data)
	require.NoError(t, err)
	require.Equal(t, server.FrameKeyframe, frame.Kind)
	require.Len(t, frame.Entities, 1)
	require.Equal(t, frame.Self, frame.Entities[0].ID)
}

func TestSessionRoutesCommandsAndInteractions(t *testing.T) {
	h := newHarness(t, HandlerConfig{})
	conn := h.dial(t)
	waitFor(t, func() bool { return len(h.hub.DiagnosticsSnapshot()) == 1 }, "player never joined")

	slam := command.Encode(command.New(command.Header{Tick: 3}, command.InputPayload{Animation: "heavy_slam"}))
	pickup := interaction.Encode(interaction.Request{
		Header: interaction.Header{
			CommandID:          uuid.New(),
			OriginConnectionID: 77,
			Tick:               3,
			Category:           interaction.CategoryPlayerToScene,
			TimestampMs:        time.Now().UnixMilli(),
		},
		Payload: interaction.SceneObjectPayload{ObjectID: 5, Interaction: interaction.SceneInteractionPickup},
	})
	send(t, conn, server.ClientFrame{Ack: 2, Commands: [][]byte{slam}, Interactions: [][]byte{pickup}})

	waitFor(t, func() bool {
		players := h.hub.DiagnosticsSnapshot()
		return len(players) == 1 && players[0].Strength == 70 && players[0].LastAck == 2
	}, "command and ack never applied")
	waitFor(t, func() bool { return h.pipeline.Pending() == 1 }, "interaction never admitted")
}

func TestSessionRateLimitsFrames(t *testing.T) {
	h := newHarness(t, HandlerConfig{RateLimit: 0.001, RateBurst: 1})
	conn := h.dial(t)
	waitFor(t, func() bool { return len(h.hub.DiagnosticsSnapshot()) == 1 }, "player never joined")

	for i := 0; i < 3; i++ {
		send(t, conn, server.ClientFrame{Ack: int64(i + 1)})
	}

	waitFor(t, func() bool { return h.pipeline.Stats().Rejected[interaction.RejectRateLimited] == 2 }, "frames were not rate limited")
	require.Equal(t, int64(1), h.hub.DiagnosticsSnapshot()[0].LastAck)
}

func TestSessionDisconnectsOnClose(t *testing.T) {
	h := newHarness(t, HandlerConfig{})
	conn := h.dial(t)
	waitFor(t, func() bool { return h.world.PlayerCount() == 1 }, "player never joined")

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	waitFor(t, func() bool { return h.world.PlayerCount() == 0 }, "player was never removed")
	require.Empty(t, h.hub.DiagnosticsSnapshot())
}
