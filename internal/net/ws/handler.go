// Package ws runs one websocket session per player: it joins the hub,
// streams snapshots out, and routes client frames to the hub and the
// interaction pipeline.
package ws

import (
	"context"
	nethttp "net/http"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"skirmish/server"
	"skirmish/server/internal/command"
	"skirmish/server/internal/interaction"
	"skirmish/server/internal/prediction"
	"skirmish/server/internal/telemetry"
	"skirmish/server/logging"
	"skirmish/server/logging/network"
)

// Frame rejection reasons.
const (
	FrameRejectText      = "text_frame"
	FrameRejectMalformed = "malformed_frame"
	FrameRejectCommand   = "malformed_command"
)

const (
	defaultMaxFrameBytes = 64 << 10
	defaultRateLimit     = 30
	defaultRateBurst     = 10

	metricKeyFramesReceived = "ws_frames_received_total"
	metricKeyFramesLimited  = "ws_frames_rate_limited_total"
	metricKeyFramesRejected = "ws_frames_rejected_total"
)

type HandlerConfig struct {
	Pipeline      *interaction.Pipeline
	Publisher     logging.Publisher
	Logger        telemetry.Logger
	Metrics       telemetry.Metrics
	RateLimit     rate.Limit
	RateBurst     int
	MaxFrameBytes int64
}

type Handler struct {
	hub      *server.Hub
	cfg      HandlerConfig
	upgrader websocket.Upgrader
}

func NewHandler(hub *server.Hub, cfg HandlerConfig) *Handler {
	if cfg.Publisher == nil {
		cfg.Publisher = logging.NopPublisher()
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = defaultMaxFrameBytes
	}
	return &Handler{
		hub: hub,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *nethttp.Request) bool {
				return true
			},
		},
	}
}

// Handle upgrades the request and serves the session until the client
// goes away.
func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.printf("upgrade failed: %v", err)
		return
	}
	conn.SetReadLimit(h.cfg.MaxFrameBytes)

	connectionID, entityID, err := h.hub.Join()
	if err != nil {
		h.printf("join failed: %v", err)
		message := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "join failed")
		conn.WriteMessage(websocket.CloseMessage, message)
		conn.Close()
		return
	}
	session := newSession(conn)
	if !h.hub.Subscribe(connectionID, session) {
		session.Close()
		return
	}
	h.serve(r.Context(), conn, connectionID, entityID)
}

func (h *Handler) serve(ctx context.Context, conn *websocket.Conn, connectionID int, entityID command.EntityID) {
	defer h.hub.Disconnect(connectionID, server.DisconnectClosed)

	actor := prediction.EntityRef(entityID)
	limiter := rate.NewLimiter(h.cfg.RateLimit, h.cfg.RateBurst)
	var limited uint64

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.printf("connection %d read failed: %v", connectionID, err)
			}
			return
		}
		h.addMetric(metricKeyFramesReceived, 1)

		if !limiter.Allow() {
			limited++
			h.addMetric(metricKeyFramesLimited, 1)
			if h.cfg.Pipeline != nil {
				h.cfg.Pipeline.Reject(interaction.RejectRateLimited, interaction.Request{
					Header: interaction.Header{OriginConnectionID: connectionID},
				})
			}
			if limited&(limited-1) == 0 {
				network.RateLimited(ctx, h.cfg.Publisher, h.tick(), actor, network.RateLimitedPayload{Dropped: limited}, nil)
			}
			continue
		}
		if messageType != websocket.BinaryMessage {
			h.rejectFrame(ctx, actor, FrameRejectText, len(payload))
			continue
		}
		frame, err := server.DecodeClientFrame(payload)
		if err != nil {
			h.rejectFrame(ctx, actor, FrameRejectMalformed, len(payload))
			continue
		}
		h.apply(ctx, actor, connectionID, frame)
	}
}

func (h *Handler) apply(ctx context.Context, actor logging.EntityRef, connectionID int, frame server.ClientFrame) {
	if frame.Ack > 0 {
		h.hub.RecordAck(connectionID, frame.Ack)
	}
	for _, data := range frame.Commands {
		cmd, err := command.Decode(data)
		if err != nil {
			h.rejectFrame(ctx, actor, FrameRejectCommand, len(data))
			continue
		}
		h.hub.HandleCommand(connectionID, cmd)
	}
	if h.cfg.Pipeline == nil {
		return
	}
	for _, data := range frame.Interactions {
		h.cfg.Pipeline.EnqueueFrom(connectionID, data)
	}
}

func (h *Handler) rejectFrame(ctx context.Context, actor logging.EntityRef, reason string, size int) {
	h.addMetric(metricKeyFramesRejected, 1)
	network.FrameRejected(ctx, h.cfg.Publisher, h.tick(), actor, network.FrameRejectedPayload{Reason: reason, Bytes: size}, nil)
}

func (h *Handler) tick() uint64 {
	if t := h.hub.Tick(); t > 0 {
		return uint64(t)
	}
	return 0
}

func (h *Handler) printf(format string, args ...any) {
	if h.cfg.Logger != nil {
		h.cfg.Logger.Printf(format, args...)
	}
}

func (h *Handler) addMetric(key string, delta uint64) {
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.Add(key, delta)
	}
}
