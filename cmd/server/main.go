// Binary server runs the Twitch Stonks backend: chat ingestion, the price
// engine, and the HTTP/websocket surface.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/Aithusa712/TwitchStonks/internal/config"
	"github.com/Aithusa712/TwitchStonks/internal/engine"
	"github.com/Aithusa712/TwitchStonks/internal/hub"
	"github.com/Aithusa712/TwitchStonks/internal/metrics"
	"github.com/Aithusa712/TwitchStonks/internal/server"
	"github.com/Aithusa712/TwitchStonks/internal/store"
	"github.com/Aithusa712/TwitchStonks/internal/twitch"
	"github.com/Aithusa712/TwitchStonks/internal/util"
)

func main() {
	// .env is optional; in production the variables come from the
	// environment directly.
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to YAML config")
	flag.Parse()

	log := util.NewLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	log = util.NewLogger(cfg.App.LogLevel)

	_ = metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	// Persistence must be reachable before the engine starts; recovery
	// replays history through it.
	pg, err := store.Open(cfg.Repository.DSN(), cfg.Repository.ConnectAttempts, util.Component(log, "store"))
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pg.Close()

	var repo store.TickRepository = pg
	if cfg.Cache.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		defer rdb.Close()
		repo = store.NewCached(pg, rdb, util.Component(log, "cache"))
		log.Info().Str("addr", cfg.Cache.Addr).Msg("latest-tick cache enabled")
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	h := hub.New(util.Component(log, "hub"))
	go h.Run()

	eng := engine.New(util.Component(log, "engine"), repo, h, engine.Config{
		Channel:      cfg.Twitch.Channel,
		UpKeyword:    cfg.Stonks.UpKeyword,
		DownKeyword:  cfg.Stonks.DownKeyword,
		TickInterval: cfg.TickInterval(),
		InitialPrice: cfg.Stonks.InitialPrice,
		UnitStep:     cfg.Stonks.UnitStep,
	})
	if err := eng.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start engine")
	}

	chat := twitch.NewChatClient(util.Component(log, "chat"),
		cfg.Twitch.BotUsername, cfg.Twitch.OAuthToken, cfg.Twitch.Channel,
		eng.HandleMessage, eng.SetChatConnected)
	go func() {
		if err := chat.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("chat client stopped")
		}
	}()

	helix := twitch.NewHelixClient(util.Component(log, "helix"),
		cfg.Twitch.ClientID, cfg.Twitch.ClientSecret, cfg.Twitch.Channel,
		eng.SetStreamLive, twitch.WithHelixPollInterval(cfg.HelixPollInterval()))
	go func() {
		if err := helix.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("helix poller stopped")
		}
	}()

	api := &http.Server{
		Addr:    cfg.App.ListenAddr,
		Handler: server.New(util.Component(log, "http"), eng, cfg.App.AllowedOrigins).Handler(),
	}
	go func() {
		log.Info().Str("addr", cfg.App.ListenAddr).Str("channel", cfg.Twitch.Channel).Msg("stonks server up")
		if err := api.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server failed")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := api.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	eng.Stop()
	log.Info().Msg("bye")
}
