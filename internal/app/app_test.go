package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"skirmish/server/internal/config"
	"skirmish/server/internal/telemetry"
)

func testConfig() config.Server {
	return config.Server{
		Addr:               "127.0.0.1:0",
		TickRate:           30,
		CatchupMaxTicks:    3,
		KeyframeInterval:   30,
		TimestampTolerance: 5 * time.Second,
		ComboWindowMin:     0.3,
		QueueCapacity:      16,
		PerConnectionLimit: 4,
		RateLimit:          10,
		RateBurst:          5,
		LogSinks:           []string{"memory"},
		LogLevel:           "info",
	}
}

// blockingListen serves nothing and returns once the server shuts down.
func blockingListen(srv *http.Server) error {
	done := make(chan struct{})
	srv.RegisterOnShutdown(func() { close(done) })
	<-done
	return http.ErrServerClosed
}

func TestRunServesUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handlers := make(chan http.Handler, 1)
	errc := make(chan error, 1)
	go func() {
		errc <- Run(ctx, testConfig(), Options{
			Logger: telemetry.LoggerFunc(func(string, ...any) {}),
			Listen: blockingListen,
			Ready:  func(h http.Handler) { handlers <- h },
		})
	}()

	var handler http.Handler
	select {
	case handler = <-handlers:
	case err := <-errc:
		t.Fatalf("Run exited early: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("Run never became ready")
	}

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not stop after cancellation")
	}
}

func TestRunRejectsUnknownSink(t *testing.T) {
	cfg := testConfig()
	cfg.LogSinks = []string{"syslog"}
	err := Run(context.Background(), cfg, Options{Listen: blockingListen})
	require.ErrorContains(t, err, `unknown log sink "syslog"`)
}

func TestRunRejectsMissingAnimationsFile(t *testing.T) {
	cfg := testConfig()
	cfg.AnimationsFile = t.TempDir() + "/missing.yaml"
	err := Run(context.Background(), cfg, Options{Listen: blockingListen})
	require.ErrorContains(t, err, "load animations")
}
