package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/prospector/internal/auth"
	billingstripe "github.com/dukerupert/prospector/internal/billing/stripe"
	"github.com/dukerupert/prospector/internal/config"
	"github.com/dukerupert/prospector/internal/generator"
	"github.com/dukerupert/prospector/internal/logging"
	"github.com/dukerupert/prospector/internal/plan"
	"github.com/dukerupert/prospector/internal/server"
	"github.com/dukerupert/prospector/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	s, closeStore, err := store.Open(cfg.StoreDriver, cfg.DBPath)
	if err != nil {
		return err
	}
	defer closeStore()

	base, err := plan.Load(cfg.PlansFile)
	if err != nil {
		return err
	}
	catalog, err := base.WithPrices(cfg.StripePrices)
	if err != nil {
		return err
	}

	var gen generator.Generator
	switch cfg.Generator {
	case "static":
		logger.Warn("using static generator; profiles are canned")
		gen = generator.Static{}
	default:
		gen = generator.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel, "")
	}

	payments := billingstripe.NewClient(billingstripe.Config{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		SuccessURL:    cfg.BaseURL + "/billing/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     cfg.BaseURL + "/pricing",
		PortalReturn:  cfg.BaseURL + "/account",
	})

	srv := server.New(s, catalog, payments, gen, server.Config{
		Verifier:        auth.NewVerifier(cfg.AuthJWTSecret, cfg.AuthIssuer),
		AdminToken:      cfg.AdminToken,
		RateLimit:       cfg.RateLimit,
		RateLimitWindow: cfg.RateLimitWindow,
	}, logger)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("prospector starting",
			"addr", httpServer.Addr,
			"store", cfg.StoreDriver,
			"generator", cfg.Generator,
			"plans", len(catalog.All()),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return srv.RateLimiter().Run(ctx, time.Hour)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
