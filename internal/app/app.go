// Package app assembles the server from configuration and runs it until
// the context is cancelled.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	server "skirmish/server"
	"skirmish/server/internal/config"
	"skirmish/server/internal/interaction"
	servernet "skirmish/server/internal/net"
	"skirmish/server/internal/net/ws"
	"skirmish/server/internal/sim"
	"skirmish/server/internal/telemetry"
	"skirmish/server/internal/world"
	"skirmish/server/logging"
	loggingSinks "skirmish/server/logging/sinks"
)

const shutdownTimeout = 5 * time.Second

// Options carries the process-level collaborators Run does not build
// from configuration.
type Options struct {
	Logger telemetry.Logger
	// Listen overrides the TCP listener; tests use it to bind an ephemeral
	// port through httptest.
	Listen func(srv *http.Server) error
	// Ready is called once every component is wired, before serving.
	Ready func(handler http.Handler)
}

// Run serves until ctx is cancelled or a component fails.
func Run(ctx context.Context, cfg config.Server, opts Options) error {
	telemetryLogger := opts.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}

	table, err := cfg.Animations()
	if err != nil {
		return fmt.Errorf("load animations: %w", err)
	}

	clock := logging.ClockFunc(time.Now)
	sinks, closeFiles, err := buildSinks(cfg)
	if err != nil {
		return err
	}
	defer closeFiles()

	router, err := logging.NewRouter(clock, cfg.Logging(), sinks)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	counters := &logging.Metrics{}
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() {
		if serr := provider.Shutdown(context.Background()); serr != nil {
			telemetryLogger.Printf("failed to shut down meter provider: %v", serr)
		}
	}()
	metrics := telemetry.Fanout(
		telemetry.WrapMetrics(counters),
		telemetry.WrapMeter(provider.Meter("skirmish/server"), telemetryLogger),
	)

	ticks := sim.NewClock(cfg.TickRate)
	w := world.New(world.Deps{Publisher: router, CurrentTick: ticks.CurrentTick})

	hubCfg := server.DefaultHubConfig()
	hubCfg.KeyframeInterval = cfg.KeyframeInterval
	hubCfg.MinComboWindow = cfg.ComboWindowMin
	hubCfg.Animations = table
	hubCfg.Ticks = ticks
	hubCfg.Clock = clock
	hubCfg.Logger = telemetryLogger
	hubCfg.Metrics = metrics
	hubCfg.Publisher = router
	hub, err := server.NewHub(hubCfg, w)
	if err != nil {
		return fmt.Errorf("construct hub: %w", err)
	}

	pipeline := interaction.NewPipeline(interaction.Config{
		Capacity:           cfg.QueueCapacity,
		PerConnectionLimit: cfg.PerConnectionLimit,
		TimestampTolerance: cfg.TimestampTolerance,
		Clock:              clock,
		CurrentTick:        ticks.CurrentTick,
		Items:              w,
		Players:            w,
		Publisher:          router,
		Logger:             telemetryLogger,
		Metrics:            metrics,
	})
	hub.AttachPipeline(pipeline)

	loop := sim.NewLoop(hub, ticks, sim.LoopConfig{CatchupMaxTicks: cfg.CatchupMaxTicks}, sim.Deps{
		Clock:     clock,
		Publisher: router,
		Logger:    telemetryLogger,
		Metrics:   metrics,
	}, sim.LoopHooks{
		OnBudgetAlarm: func(sim.StepResult) { hub.ForceKeyframe() },
	})

	sessions := ws.NewHandler(hub, ws.HandlerConfig{
		Pipeline:  pipeline,
		Publisher: router,
		Logger:    telemetryLogger,
		Metrics:   metrics,
		RateLimit: rate.Limit(cfg.RateLimit),
		RateBurst: cfg.RateBurst,
	})
	handler := servernet.NewHTTPHandler(hub, servernet.HTTPHandlerConfig{
		Pipeline: pipeline,
		Sessions: sessions,
		Counters: counters,
		Reader:   reader,
		Router:   router,
		Logger:   telemetryLogger,
		Clock:    clock,
	})
	if opts.Ready != nil {
		opts.Ready(handler)
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: handler}
	listen := opts.Listen
	if listen == nil {
		listen = func(srv *http.Server) error { return srv.ListenAndServe() }
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pipeline.Run(ctx)
	})
	g.Go(func() error {
		loop.Run(ctx.Done())
		return nil
	})
	g.Go(func() error {
		telemetryLogger.Printf("server listening on %s", srv.Addr)
		if err := listen(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func buildSinks(cfg config.Server) ([]logging.NamedSink, func(), error) {
	var (
		sinks []logging.NamedSink
		files []*os.File
	)
	closeFiles := func() {
		for _, f := range files {
			f.Close()
		}
	}
	logCfg := cfg.Logging()
	for _, name := range logCfg.EnabledSinks {
		switch name {
		case "console":
			sinks = append(sinks, logging.NamedSink{Name: name, Sink: loggingSinks.NewConsoleSink(os.Stdout, logCfg.Console)})
		case "json":
			f, err := os.OpenFile(logCfg.JSON.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				closeFiles()
				return nil, nil, fmt.Errorf("open json log: %w", err)
			}
			files = append(files, f)
			sinks = append(sinks, logging.NamedSink{Name: name, Sink: loggingSinks.NewJSON(f, logCfg.JSON.FlushInterval)})
		case "memory":
			sinks = append(sinks, logging.NamedSink{Name: name, Sink: loggingSinks.NewMemorySink()})
		default:
			closeFiles()
			return nil, nil, fmt.Errorf("unknown log sink %q", name)
		}
	}
	return sinks, closeFiles, nil
}
