package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rocketarena/client/internal/api"
	"github.com/rocketarena/client/internal/config"
	"github.com/rocketarena/client/internal/push"
	"github.com/rocketarena/client/internal/session"
)

func main() {
	configPath := flag.String("config", "", "path to yaml config file")
	inviteCode := flag.String("room", "", "invite code of the room to join on startup")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)

	initData := os.Getenv("TELEGRAM_INIT_DATA")
	if initData == "" {
		log.Fatal().Msg("TELEGRAM_INIT_DATA environment variable is required")
	}

	clock := clockwork.NewRealClock()

	pushConfig := push.DefaultConfig(cfg.WSBaseURL)
	pushConfig.Header = http.Header{api.InitDataHeader: []string{initData}}
	pushMgr := push.NewManager(pushConfig, clock)

	backend := api.NewClient(cfg.APIBaseURL, initData)
	sess := session.New(backend, pushMgr, clock)
	defer sess.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sess.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start session")
	}

	if *inviteCode != "" {
		if _, err := sess.JoinRoom(ctx, *inviteCode); err != nil {
			log.Fatal().Err(err).Str("invite_code", *inviteCode).Msg("failed to join room")
		}
	}

	go logStateChanges(ctx, sess)

	sess.Run(ctx)
	log.Info().Msg("session stopped")
}

// logStateChanges mirrors battle state transitions to the log so the
// runtime is observable without a rendering layer.
func logStateChanges(ctx context.Context, sess *session.Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sess.Updates():
			state := sess.Battle()
			limits := sess.Limits()
			log.Info().
				Str("status", string(state.Status)).
				Int("round", state.CurrentRound).
				Int("participants", len(state.Participants)).
				Int("balance", limits.Balance).
				Int("cooldown", limits.CooldownSecondsRemaining).
				Msg("battle state")
		}
	}
}
