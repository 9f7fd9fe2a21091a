package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dupuishugo80/ranked4/client/api"
	"github.com/dupuishugo80/ranked4/client/loop"
	"github.com/dupuishugo80/ranked4/client/session"
	"github.com/dupuishugo80/ranked4/client/transport"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

const (
	envAPIURL   = "RANKED4_API_URL"
	envWSURL    = "RANKED4_WS_URL"
	envToken    = "RANKED4_TOKEN"
	envUserID   = "RANKED4_USER_ID"
	envLogLevel = "RANKED4_LOG_LEVEL"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()

	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn().Err(err).Msg("failed to load .env")
	}

	flags := pflag.NewFlagSet("ranked4", pflag.ContinueOnError)
	var (
		apiURL   = flags.StringP("api-url", "a", envOr(envAPIURL, "http://localhost:8080/api"), "game services base url")
		wsURL    = flags.StringP("ws-url", "w", envOr(envWSURL, "ws://localhost:8888/ws"), "realtime broker url")
		token    = flags.StringP("token", "t", os.Getenv(envToken), "bearer token")
		userID   = flags.StringP("user-id", "u", os.Getenv(envUserID), "user id, fetched from the profile when empty")
		logLevel = flags.StringP("log-level", "l", envOr(envLogLevel, "info"), "log level")
		dump     = flags.Bool("dump", false, "dump every game snapshot")
		timeout  = flags.Duration("request-timeout", api.DefaultTimeout, "REST request timeout")
	)
	if err := flags.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	if *token == "" {
		logger.Fatal().Msg("token is required, use --token or " + envToken)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := api.New(api.Config{
		Logger:  &logger,
		BaseURL: *apiURL,
		Token:   *token,
		Timeout: *timeout,
	})
	if *userID == "" {
		profile, err := client.MyProfile(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to resolve user id")
		}
		*userID = profile.UserID
		logger.Info().Str("user", profile.DisplayName).Int("elo", profile.Elo).Msg("signed in")
	}

	lp := loop.New(loop.Config{Logger: &logger})
	ch := transport.NewChannel(transport.Config{
		Logger: &logger,
		Loop:   lp,
		URL:    *wsURL,
		Token:  *token,
	})
	coord := session.NewCoordinator(session.Config{
		Logger:         &logger,
		Loop:           lp,
		Channel:        ch,
		API:            client,
		UserID:         *userID,
		RequestTimeout: *timeout,
	})
	con := newConsole(consoleConfig{
		Logger:   &logger,
		Loop:     lp,
		Session:  coord,
		Profiles: client,
		Out:      os.Stdout,
		Dump:     *dump,
	})

	// the loop outlives the signal context so the session can be released
	loopCtx, stopLoop := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		lp.Run(loopCtx)
	}()

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	con.start()
	con.printHelp()

RunLoop:
	for {
		select {
		case <-ctx.Done():
			logger.Warn().Msg("interrupted")
			break RunLoop
		case line, ok := <-lines:
			if !ok || !con.exec(line) {
				break RunLoop
			}
		}
	}

	con.stop()
	lp.Post(ch.Disconnect)
	lp.Flush()
	stopLoop()
	wg.Wait()
	ch.Wait()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
