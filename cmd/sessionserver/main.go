// Package main provides the session server binary: a single-session
// turn-based combat authority reachable over TCP.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/tinyrpg/tinyrpg/internal/config"
	"github.com/tinyrpg/tinyrpg/internal/frontend/handlers"
	"github.com/tinyrpg/tinyrpg/internal/frontend/netio"
	"github.com/tinyrpg/tinyrpg/internal/game/profession"
	"github.com/tinyrpg/tinyrpg/internal/game/session"
	"github.com/tinyrpg/tinyrpg/internal/observability"
	"github.com/tinyrpg/tinyrpg/internal/scripting"
	"github.com/tinyrpg/tinyrpg/internal/server"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	professionsDir := flag.String("professions-dir", "", "path to profession YAML files directory; overrides config")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if *professionsDir != "" {
		cfg.Lobby.ProfessionsDir = *professionsDir
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting session server",
		zap.String("addr", cfg.Server.Addr()),
	)

	// Load profession catalogue
	loadStart := time.Now()
	registry, err := profession.LoadDirectory(cfg.Lobby.ProfessionsDir)
	if err != nil {
		logger.Fatal("loading professions", zap.Error(err))
	}
	logger.Info("professions loaded",
		zap.Int("count", registry.Count()),
		zap.Strings("names", registry.Names()),
		zap.Duration("elapsed", time.Since(loadStart)),
	)

	scriptMgr := scripting.NewManagerWithLimit(logger, cfg.Scripting.InstructionLimit)

	sess := session.New(registry, scriptMgr, cfg.Lobby.MinPlayers, logger)
	router := handlers.NewRouter(sess, logger)
	acceptor := netio.NewAcceptor(cfg.Server, router, logger)

	// Wire lifecycle
	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("acceptor", &server.FuncService{
		StartFn: acceptor.ListenAndServe,
		StopFn:  acceptor.Stop,
	})

	logger.Info("session server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.Int("min_players", cfg.Lobby.MinPlayers),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
