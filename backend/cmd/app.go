package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dupuishugo80/ranked4/backend/game"
	httpServer "github.com/dupuishugo80/ranked4/backend/server/http"
	websocketServer "github.com/dupuishugo80/ranked4/backend/server/websocket"
	"github.com/dupuishugo80/ranked4/backend/service"
	store "github.com/dupuishugo80/ranked4/backend/storage/memory"
	sw "github.com/dupuishugo80/ranked4/backend/switch"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

const (
	envAPIAddr  = "RANKED4_API_ADDR"
	envWSAddr   = "RANKED4_WS_ADDR"
	envLogLevel = "RANKED4_LOG_LEVEL"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("app", "ranked4-devserver").Logger()

	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn().Err(err).Msg("failed to load .env")
	}

	flags := pflag.NewFlagSet("ranked4-devserver", pflag.ContinueOnError)
	var (
		apiAddr     = flags.StringP("api-listen-addr", "a", envOr(envAPIAddr, ":8080"), "REST api listen address")
		wsAddr      = flags.StringP("ws-listen-addr", "w", envOr(envWSAddr, ":8888"), "stomp broker listen address")
		logLevel    = flags.StringP("log-level", "l", envOr(envLogLevel, "debug"), "log level")
		turnTimeout = flags.DurationP("turn-timeout", "t", service.DefaultTurnTimeout, "time a player has to move")
		aiSeed      = flags.Uint64("ai-seed", 0, "seed of the computer opponent, random when 0")
	)
	if err := flags.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	seed := *aiSeed
	if seed == 0 {
		seed = uint64(os.Getpid())
	}

	broker := sw.NewSwitch(&logger)
	svc := service.NewService(service.Config{
		Store:       store.NewMemStore(),
		Switch:      broker,
		AI:          game.NewAI(seed),
		Logger:      &logger,
		TurnTimeout: *turnTimeout,
	})
	broker.Handle(svc.HandleMessage)

	apiSrv := httpServer.NewServer(httpServer.Config{
		Logger:      &logger,
		GameService: svc,
		ListenAddr:  *apiAddr,
	})
	stompSrv := websocketServer.NewServer(websocketServer.Config{
		Logger:        &logger,
		BrokerService: svc,
		ListenAddr:    *wsAddr,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	wg := &sync.WaitGroup{}
	errc := make(chan error, 2)
	wg.Add(3)
	go apiSrv.Run(ctx, wg, errc)
	go stompSrv.Run(ctx, wg, errc)
	go svc.RunSweeper(ctx, wg, service.DefaultSweepInterval)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("server failed, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
