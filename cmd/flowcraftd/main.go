// Command flowcraftd runs Flowcraft as a standalone HTTP server: REST
// endpoints for storing blueprints and launching runs, plus a websocket
// endpoint for observing run events as they happen.
//
// Grounded on smilemakc-mbflow's cmd/server/main.go: flag parsing,
// config.Load(), logger.Setup(cfg.LogLevel), constructing the storage
// backend, wiring the REST server, and the http.Server{ReadTimeout,
// WriteTimeout, IdleTimeout}+signal.Notify+Shutdown graceful-shutdown
// sequence are all reproduced structurally unchanged. Where the teacher
// always runs against PostgreSQL via BunStore, flowcraftd additionally
// supports an in-memory backend for local development, selected with
// -store=memory.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorango/flowcraft"
	"github.com/gorango/flowcraft/internal/api"
	gcfg "github.com/gorango/flowcraft/internal/config"
	"github.com/gorango/flowcraft/internal/logging"
	"github.com/gorango/flowcraft/internal/storage"
	"github.com/gorango/flowcraft/internal/wsobserver"
)

func main() {
	var (
		port       = flag.String("port", "", "Server port (overrides config)")
		enableCORS = flag.Bool("cors", true, "Enable CORS (logged only; the server sets no CORS headers)")
		store      = flag.String("store", "postgres", "Blueprint store backend: postgres or memory")
	)
	flag.Parse()

	cfg := gcfg.Load()
	if *port != "" {
		cfg.Port = *port
	}

	log := logging.Setup(cfg.LogLevel)
	log.Info().
		Str("version", "1.0.0").
		Str("port", cfg.Port).
		Bool("cors", *enableCORS).
		Str("store", *store).
		Msg("starting flowcraft server")

	var blueprints api.BlueprintRepository
	switch strings.ToLower(*store) {
	case "memory":
		blueprints = storage.NewMemoryBlueprintStore()
		log.Info().Msg("using in-memory blueprint store")
	default:
		pg := storage.NewPostgresStore(cfg.DatabaseDSN)
		ctx := context.Background()
		if err := pg.InitSchema(ctx); err != nil {
			log.Error().Err(err).Msg("failed to initialize database schema")
			os.Exit(1)
		}
		blueprints = pg.Blueprints()
		log.Info().Msg("database schema initialized")
	}

	hub := wsobserver.NewHub(log)
	go hub.Run()
	defer hub.Close()

	rt := flowcraft.New()

	srv := api.NewServer(rt, blueprints, hub, log, api.Config{EnableCORS: *enableCORS})

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("address", httpServer.Addr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed")
			os.Exit(1)
		}
	}()

	log.Info().
		Str("health", "GET /health").
		Str("ready", "GET /ready").
		Str("put_blueprint", "PUT /api/v1/blueprints/{id}").
		Str("get_blueprint", "GET /api/v1/blueprints/{id}").
		Str("run_blueprint", "POST /api/v1/blueprints/{id}/runs").
		Str("observe", "GET /ws").
		Msg("available endpoints")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server exited gracefully")
}
