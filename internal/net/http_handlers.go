// Package net exposes the server over HTTP: health and diagnostics
// endpoints, an OpenTelemetry metrics dump, and the websocket upgrade.
package net

import (
	"encoding/json"
	nethttp "net/http"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"skirmish/server"
	"skirmish/server/internal/config"
	"skirmish/server/internal/interaction"
	"skirmish/server/internal/net/ws"
	"skirmish/server/internal/telemetry"
	"skirmish/server/logging"
)

type HTTPHandlerConfig struct {
	Pipeline *interaction.Pipeline
	Sessions *ws.Handler
	// Counters is the in-process metrics registry reported by /diagnostics.
	Counters *logging.Metrics
	// Reader backs /metrics. Without it the endpoint is not registered.
	Reader sdkmetric.Reader
	Router interface{ Stats() logging.RouterStats }
	Logger telemetry.Logger
	Clock  logging.Clock
}

type diagnosticsResponse struct {
	Status      string                     `json:"status"`
	ServerTime  int64                      `json:"serverTime"`
	Tick        int64                      `json:"tick"`
	TickRate    int                        `json:"tickRate"`
	Players     []server.DiagnosticsPlayer `json:"players"`
	Pipeline    *interaction.Stats         `json:"pipeline,omitempty"`
	Counters    map[string]uint64          `json:"counters,omitempty"`
	EventsTotal uint64                     `json:"eventsTotal"`
	EventsDrop  uint64                     `json:"eventsDropped"`
	SinkDrops   map[string]uint64          `json:"sinkDrops,omitempty"`
}

func NewHTTPHandler(hub *server.Hub, cfg HTTPHandlerConfig) nethttp.Handler {
	clock := cfg.Clock
	if clock == nil {
		clock = logging.ClockFunc(time.Now)
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		payload := diagnosticsResponse{
			Status:     "ok",
			ServerTime: clock.Now().UnixMilli(),
			Tick:       hub.Tick(),
			TickRate:   hub.TickRate(),
			Players:    hub.DiagnosticsSnapshot(),
		}
		if cfg.Pipeline != nil {
			stats := cfg.Pipeline.Stats()
			payload.Pipeline = &stats
		}
		if cfg.Counters != nil {
			payload.Counters = cfg.Counters.Snapshot()
		}
		if cfg.Router != nil {
			stats := cfg.Router.Stats()
			payload.EventsTotal = stats.EventsTotal
			payload.EventsDrop = stats.DroppedTotal
			payload.SinkDrops = stats.SinkDrops
		}
		writeJSON(w, cfg.Logger, payload)
	})

	if cfg.Reader != nil {
		mux.HandleFunc("/metrics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
			values, err := telemetry.Collect(r.Context(), cfg.Reader)
			if err != nil {
				httpError(w, "failed to collect metrics", nethttp.StatusInternalServerError)
				return
			}
			writeJSON(w, cfg.Logger, values)
		})
	}

	animationsSchema := config.AnimationsSchema()
	mux.HandleFunc("/schema/animations", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		writeJSON(w, cfg.Logger, animationsSchema)
	})

	if cfg.Sessions != nil {
		mux.HandleFunc("/ws", cfg.Sessions.Handle)
	}

	return mux
}

func writeJSON(w nethttp.ResponseWriter, logger telemetry.Logger, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		if logger != nil {
			logger.Printf("failed to encode response: %v", err)
		}
		httpError(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
