package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	muxHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/mvrilo/go-redoc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"escoresheet/match-relay/config"
	"escoresheet/match-relay/internal/handlers"
	"escoresheet/match-relay/internal/middlewares"
	"escoresheet/match-relay/internal/realtime"
	"escoresheet/match-relay/internal/relay"
	"escoresheet/match-relay/pkg/log"
)

func main() {
	// Load config and init systems
	cfg := config.LoadConfig()
	log.InitLogger(cfg.LogDir, cfg.LogLevel)

	rl := relay.New(relay.Options{
		BridgeTimeout: cfg.BridgeTimeout,
		Mode:          cfg.Mode,
		Logger:        log.Logger,
		Registerer:    prometheus.DefaultRegisterer,
	})

	// API Docs
	doc := &redoc.Redoc{
		Title:       "eScoresheet Match Relay API",
		Description: "Live match state relay between the scoresheet, referee, bench and livescore views",
		SpecFile:    cfg.APISpecFile,
		SpecPath:    "/swagger/doc.json",
		DocsPath:    "/docs",
	}

	// Router
	r := mux.NewRouter()
	r.Use(middlewares.RequestLogger)
	r.Use(middlewares.PrometheusMetricsMiddleware)

	// Docs & metrics
	r.HandleFunc(doc.SpecPath, func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, doc.SpecFile)
	}).Methods(http.MethodGet)
	r.Handle(doc.DocsPath, doc.Handler()).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// WebSocket
	r.Handle(cfg.WSPath, realtime.Handler(rl, realtime.Options{
		PingInterval:    cfg.WSPingInterval,
		PongWait:        cfg.WSPongWait,
		SendBuffer:      cfg.WSSendBuffer,
		MaxMessageBytes: cfg.WSMaxMessageBytes,
	})).Methods(http.MethodGet)

	// Synchronous API
	tlsEnabled := cfg.TLSEnabled()
	handlers.RegisterRoutes(r, rl, handlers.ServerInfo{
		Hostname: cfg.Hostname,
		Port:     cfg.Port,
		WSPath:   cfg.WSPath,
		TLS:      tlsEnabled,
	}, middlewares.NewRateLimiter(cfg.PinRateLimit, nil))

	handler := middlewares.CORS(cfg.AllowedOrigins)(r)
	handler = muxHandlers.RecoveryHandler(muxHandlers.PrintRecoveryStack(true))(handler)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ==== START SERVER ====
	errCh := make(chan error, 1)
	go func() {
		log.Logger.Info().
			Str("port", cfg.Port).
			Str("mode", cfg.Mode).
			Bool("tls", tlsEnabled).
			Str("ws_path", cfg.WSPath).
			Msg("Server starting")
		if tlsEnabled {
			errCh <- srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Logger.Fatal().Err(err).Msg("server failed")
		}
	case sig := <-stop:
		log.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	// Closing the relay first fails bridged requests still waiting, so
	// Shutdown does not sit out their timeouts. Hijacked websockets are
	// not tracked by Shutdown; the relay closes them.
	rl.Close()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Logger.Info().Msg("server stopped")
}
