package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/channelkit/telegram-parser/internal/authsession"
	"github.com/channelkit/telegram-parser/internal/callback"
	"github.com/channelkit/telegram-parser/internal/config"
	"github.com/channelkit/telegram-parser/internal/ingest"
	"github.com/channelkit/telegram-parser/internal/logger"
	"github.com/channelkit/telegram-parser/internal/media"
	"github.com/channelkit/telegram-parser/internal/publisher"
	"github.com/channelkit/telegram-parser/internal/server"
	"github.com/channelkit/telegram-parser/internal/syncjob"
	"github.com/channelkit/telegram-parser/internal/telegram"
)

func main() {
	// 1. Load config
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// 2. Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	log := logger.Get()
	log.Info().Msg("starting telegram parser service")

	// telegram credentials are the one hard requirement
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("configuration missing")
	}

	// 3. Setup context with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("received shutdown signal")
		cancel()
	}()

	// 4. Connect to NATS (optional)
	var pub syncjob.EventPublisher
	if cfg.NatsURL != "" {
		nc, err := nats.Connect(cfg.NatsURL)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to nats, completion events disabled")
		} else {
			defer nc.Close()
			pub = publisher.NewNATSPublisher(nc)
		}
	}

	// 5. Telegram dialers: one connection per auth session / sync job,
	// nothing is shared across jobs
	authDialer := func(ctx context.Context) (authsession.Conn, error) {
		return telegram.Dial(ctx, telegram.Options{
			APIID:   cfg.APIID,
			APIHash: cfg.APIHash,
			RPS:     cfg.TelegramRPS,
		})
	}
	ingestDialer := func(ctx context.Context, sessionString string) (ingest.ChannelConn, error) {
		return telegram.Dial(ctx, telegram.Options{
			APIID:         cfg.APIID,
			APIHash:       cfg.APIHash,
			SessionString: sessionString,
			RPS:           cfg.TelegramRPS,
		})
	}

	// 6. Wire services
	authStore := authsession.NewStore(authDialer, cfg.AuthSessionTTL)
	resolver := media.NewResolver(cfg.FileGatewayURL)
	ingestSvc := ingest.NewService(ingestDialer, resolver)
	delivery := callback.NewService(cfg.CallbackTimeout)
	syncManager := syncjob.NewManager(ingestSvc, delivery, pub)

	handler := server.NewHandler(authStore, syncManager, ingestSvc)
	router := server.NewRouter(handler)

	// 7. Start server
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: router,
	}

	log.Info().Int("port", cfg.HTTPPort).Msg("starting http server")
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// 8. Wait for shutdown
	<-ctx.Done()
	log.Info().Msg("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	log.Info().Msg("shutdown complete")
}
