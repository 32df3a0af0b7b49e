// Package main запускает HTTP-сервер сервиса погашения скидок.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/boomcard-redemption/internal/cache"
	"github.com/mmeshcher/boomcard-redemption/internal/config"
	"github.com/mmeshcher/boomcard-redemption/internal/events"
	"github.com/mmeshcher/boomcard-redemption/internal/handler"
	"github.com/mmeshcher/boomcard-redemption/internal/middleware"
	"github.com/mmeshcher/boomcard-redemption/internal/repository"
	"github.com/mmeshcher/boomcard-redemption/internal/service"
	"github.com/mmeshcher/boomcard-redemption/internal/subscription"
	"github.com/mmeshcher/boomcard-redemption/internal/tokenstore"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		sugar.Fatalw("redis configuration error", "error", err.Error())
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	tokens := tokenstore.NewStore(redisClient, tokenstore.DefaultPrefix)
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	err = tokens.Ping(pingCtx)
	cancelPing()
	if err != nil {
		sugar.Fatalw("redis initialization error", "error", err.Error())
	}

	var entitlements subscription.Store = repo
	if cfg.SubscriptionServiceAddress != "" {
		entitlements = subscription.NewClient(cfg.SubscriptionServiceAddress)
	}

	var offers service.OfferStore = repo
	if cfg.OfferCacheTTL > 0 {
		offers = cache.NewOffers(repo, cfg.OfferCacheTTL)
	}

	var publisher events.Publisher = events.NewNopPublisher(logger)
	if cfg.RabbitMQURL != "" {
		producer, err := events.NewProducer(cfg.RabbitMQURL, logger)
		if err != nil {
			sugar.Warnw("rabbitmq unavailable, events disabled", "error", err.Error())
		} else {
			publisher = producer
		}
	}
	dispatcher := events.NewDispatcher(publisher, events.DefaultQueueSize, logger)
	defer dispatcher.Close()

	svc := service.NewService(offers, repo, tokens, subscription.NewGate(entitlements),
		service.WithLogger(logger),
		service.WithPublisher(dispatcher),
		service.WithTokenTTL(cfg.TokenTTL),
		service.WithReconcileInterval(cfg.ReconcileInterval),
	)

	terminalAuth := middleware.NewTerminalAuth(cfg.TerminalSecret)
	if !terminalAuth.Enabled() {
		sugar.Warn("terminal authentication disabled: TERMINAL_SECRET is empty")
	}

	h := handler.NewHandler(svc, logger, terminalAuth, cfg.CORSAllowedOrigins)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		dispatcher.Run(ctx)
		return nil
	})

	// Досылка транзакций, отложенных после сбоев хранилища
	g.Go(func() error {
		svc.RunReconciler(ctx)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting redemption server", "addr", cfg.RunAddress, "token_ttl", cfg.TokenTTL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
