package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/keshon/jukebox/internal/config"
	"github.com/keshon/jukebox/internal/discord"
	"github.com/keshon/jukebox/internal/dispatch"
	"github.com/keshon/jukebox/internal/logger"
	"github.com/keshon/jukebox/internal/metrics"
	"github.com/keshon/jukebox/internal/middleware"
	"github.com/keshon/jukebox/internal/music/player"
	"github.com/keshon/jukebox/internal/music/resolver"
	"github.com/keshon/jukebox/internal/session"
	"github.com/keshon/jukebox/internal/status"
	"github.com/keshon/jukebox/internal/storage"
	"github.com/keshon/jukebox/pkg/cmd"
)

func main() {
	logger.Init(logger.Options{})
	config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	_, closeLog := logger.Init(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	err = run(cfg)
	if err != nil {
		log.Error().Err(err).Msg("jukebox stopped with error")
	} else {
		log.Info().Msg("jukebox exited cleanly")
	}
	_ = closeLog.Close()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.New(ctx, cfg.StoragePath)
	if err != nil {
		return err
	}
	defer store.Close()

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return err
	}

	res, err := resolver.New(resolver.Config{
		YouTubeAPIKey:       cfg.YouTubeAPIKey,
		SpotifyClientID:     cfg.SpotifyClientID,
		SpotifyClientSecret: cfg.SpotifyClientSecret,
		Proxy:               cfg.YouTubeProxy,
	})
	if err != nil {
		return err
	}

	players := player.NewManager(player.NewDiscordJoiner(dg), res, res, player.WithHistory(store))
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		players.Shutdown(shutdownCtx)
	}()

	sessions := session.NewRegistry()
	dispatcher := dispatch.New(sessions, players,
		dispatch.WithAutoDisconnect(cfg.AutoDisconnect),
		dispatch.WithRecorder(players, !cfg.AutoDisconnect),
		dispatch.WithObserver(metrics.ObserveCommand),
		dispatch.WithNotifier(discord.NewChannelNotifier(dg)),
	)

	commands := cmd.NewRegistry()
	for _, c := range dispatch.Commands(dispatcher) {
		commands.Register(cmd.Apply(c, middleware.Defaults(store)...))
	}

	bot := discord.New(dg, commands, dispatcher,
		discord.WithBlacklist(cfg.Blacklisted),
		discord.WithClearThreshold(cfg.ClearThreshold),
		discord.WithPlayerEvents(players.Events()),
		discord.WithSessions(sessions),
	)

	if cfg.StatusAddr != "" {
		srv := status.New(cfg.StatusAddr, status.Deps{
			Sessions: sessions,
			Players:  players,
			Jobs:     players.Jobs(),
			History:  store,
		})
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.Error().Err(err).Msg("status server stopped")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- bot.Run(ctx)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	log.Info().Msg("starting jukebox bot")
	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("shutting down")
		cancel()
		return <-errCh
	case err := <-errCh:
		return err
	}
}
