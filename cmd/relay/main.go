// Command relay serves the Telegram webhook that bridges private chats with
// the staff forum group.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-relay-bot/internal/cache"
	"github.com/tbourn/go-relay-bot/internal/config"
	"github.com/tbourn/go-relay-bot/internal/content"
	"github.com/tbourn/go-relay-bot/internal/dedup"
	httpapi "github.com/tbourn/go-relay-bot/internal/http"
	"github.com/tbourn/go-relay-bot/internal/http/handlers"
	"github.com/tbourn/go-relay-bot/internal/observability"
	"github.com/tbourn/go-relay-bot/internal/repo"
	"github.com/tbourn/go-relay-bot/internal/services"
	"github.com/tbourn/go-relay-bot/internal/sysutil"
	"github.com/tbourn/go-relay-bot/internal/telegram"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	sysutil.ConfigureLogging(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	dsn := cfg.DBPath
	if cfg.StoreDriver == config.DriverPostgres {
		dsn = cfg.DatabaseURL
	}
	db, err := repo.Open(cfg.StoreDriver, dsn)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := repo.SeedSettings(ctx, db, services.DefaultSettings); err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}

	wh := &handlers.WebhookHandler{
		Secret:  cfg.WebhookSecret,
		Timeout: handlers.DispatchTimeout(cfg.WriteTimeout),
	}
	if relayErr := cfg.ValidateRelay(); relayErr != nil {
		// Keep serving so /health explains the problem; updates get 503.
		log.Error().Err(relayErr).Msg("relay not configured, running degraded")
		wh.ConfigErr = relayErr
	} else {
		d, closeRelay, err := buildRelay(ctx, cfg, repo.NewStore(db))
		if err != nil {
			return err
		}
		defer closeRelay()
		wh.Dispatcher = d
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, wh, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}

// buildRelay assembles the cached store, the dedup ledger, the outbound
// gateway and the dispatcher over them.
func buildRelay(ctx context.Context, cfg config.Config, backend *repo.Store) (*services.Dispatcher, func(), error) {
	store, err := cache.New(backend, cache.Options{Capacity: cfg.CacheCapacity, TTL: cfg.CacheTTL})
	if err != nil {
		return nil, nil, err
	}
	closers := []func(){store.Close}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var ledger dedup.Ledger
	if cfg.RedisURL != "" {
		client, err := dedup.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() { _ = client.Close() })
		ledger = dedup.NewRedis(client, cfg.DedupTTL)
	} else {
		lru, err := dedup.NewLRU(cfg.DedupCapacity)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		ledger = lru
	}

	bot, err := telegram.New(telegram.Options{
		BaseURL:     cfg.TelegramAPIURL,
		Token:       cfg.BotToken,
		Timeout:     cfg.OutboundTimeout,
		MaxAttempts: cfg.OutboundRetries,
	})
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	settings := services.NewSettings(store)
	settings.TTL = cfg.CacheTTL
	if err := settings.Load(ctx); err != nil {
		closeAll()
		return nil, nil, err
	}

	d := services.NewDispatcher(services.Options{
		GroupID:      cfg.GroupID,
		MessageLimit: cfg.MessageLimit,
		VerifiedTTL:  cfg.VerifiedTTL,
		ChallengeTTL: cfg.ChallengeTTL,
		WelcomeURL:   cfg.WelcomeURL,
		ThreadURL:    cfg.NoticeURL,
	}, store, bot, content.NewFetcher(cfg.OutboundTimeout), ledger, settings)
	return d, closeAll, nil
}
