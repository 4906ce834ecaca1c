// Package main is the entry point for the Folio portfolio analytics server.
// It loads the configured holdings and factor tables, keeps a price cache
// warm, and serves dimensional metrics queries and rebalancing runs over
// HTTP.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/folio/internal/config"
	"github.com/aristath/folio/internal/database"
	"github.com/aristath/folio/internal/modules/marketdata"
	"github.com/aristath/folio/internal/modules/metrics"
	metricshandlers "github.com/aristath/folio/internal/modules/metrics/handlers"
	"github.com/aristath/folio/internal/modules/portfolio"
	portfoliohandlers "github.com/aristath/folio/internal/modules/portfolio/handlers"
	"github.com/aristath/folio/internal/modules/rebalancing"
	rebalancinghandlers "github.com/aristath/folio/internal/modules/rebalancing/handlers"
	"github.com/aristath/folio/internal/scheduler"
	"github.com/aristath/folio/internal/server"
	"github.com/aristath/folio/internal/solver"
	"github.com/aristath/folio/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("config", cfg.AnalyticsPath).
		Str("data_dir", cfg.DataDir).
		Int("port", cfg.Port).
		Msg("Starting Folio")

	// Price cache database
	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	priceRepo, err := marketdata.NewPriceRepository(cacheDB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize price repository")
	}

	provider := marketdata.NewHTTPProvider(cfg.Analytics.QuoteAPIURL, log)
	marketData := marketdata.NewService(provider, priceRepo, cfg.Analytics.PriceTTL.Std(), log)

	// Portfolio snapshot service over the configured loaders
	portfolioService := portfolio.NewService(cfg.Analytics, portfolio.NewLoader(cfg.Analytics, log), marketData, log)

	// Analytics engines share one solver instance; solves carry no state
	// between runs
	miqp := solver.NewMIQPSolver()
	solverOpts := solver.Options{}
	metricsEngine := metrics.NewEngine(log)
	portfolioRebalancer := rebalancing.NewPortfolioRebalancer(miqp, solverOpts, log)
	singleRebalancer := rebalancing.NewSingleAccountRebalancer(miqp, solverOpts, log)

	srv := server.New(server.Config{
		Log:                 log,
		Port:                cfg.Port,
		DevMode:             cfg.DevMode,
		PortfolioHandlers:   portfoliohandlers.NewHandler(portfolioService, log),
		MetricsHandlers:     metricshandlers.NewHandler(portfolioService, metricsEngine, log),
		RebalancingHandlers: rebalancinghandlers.NewHandler(portfolioService, portfolioRebalancer, singleRebalancer, log),
	})

	// Background price refresh
	sched := scheduler.New(log)
	if cfg.Analytics.RefreshSchedule != "" {
		job := portfolio.RefreshPricesJob(portfolioService, marketData, log)
		if err := sched.AddJob(cfg.Analytics.RefreshSchedule, job); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.Analytics.RefreshSchedule).Msg("Failed to register price refresh job")
		}
	}
	sched.Start()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}

	log.Info().Msg("Folio stopped")
}
