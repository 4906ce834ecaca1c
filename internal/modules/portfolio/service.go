package portfolio

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/config"
	"github.com/aristath/folio/internal/modules/factors"
	"github.com/aristath/folio/internal/modules/holdings"
	"github.com/aristath/folio/internal/modules/marketdata"
)

// PriceSource resolves current prices for tickers. The marketdata service
// satisfies it.
type PriceSource interface {
	GetPrices(ctx context.Context, tickers []string, forceRefresh bool) (map[string]float64, error)
}

// Service builds and caches portfolio snapshots from the configured sources.
type Service struct {
	cfg    config.AnalyticsConfig
	loader *holdings.Loader
	prices PriceSource
	log    zerolog.Logger

	mu       sync.RWMutex
	snapshot *Snapshot
}

// NewService creates a portfolio service.
func NewService(cfg config.AnalyticsConfig, loader *holdings.Loader, prices PriceSource, log zerolog.Logger) *Service {
	return &Service{
		cfg:    cfg,
		loader: loader,
		prices: prices,
		log:    log.With().Str("service", "portfolio").Logger(),
	}
}

// Snapshot returns the current snapshot, building it on first use. With
// forceRefresh the holdings and factor files are re-read and prices are
// re-fetched regardless of cache freshness.
func (s *Service) Snapshot(ctx context.Context, forceRefresh bool) (*Snapshot, error) {
	if !forceRefresh {
		s.mu.RLock()
		cached := s.snapshot
		s.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}
	}

	snap, err := s.build(ctx, forceRefresh)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()
	return snap, nil
}

// Populated reports whether a snapshot has been built.
func (s *Service) Populated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot != nil
}

// Tickers returns the held tickers of the current snapshot, or nil before
// the first build. The price refresh job uses it.
func (s *Service) Tickers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil {
		return nil
	}
	return s.snapshot.Holdings.Tickers()
}

func (s *Service) build(ctx context.Context, forceRefresh bool) (*Snapshot, error) {
	held, err := s.loader.LoadDir(s.cfg.HoldingsDir)
	if err != nil {
		return nil, err
	}

	weights, err := factors.LoadWeightsCSV(s.cfg.WeightsCSV, s.cfg.NormalizeWeights)
	if err != nil {
		return nil, err
	}

	var hierarchy *factors.Hierarchy
	if s.cfg.HierarchyYAML != "" {
		hierarchy, err = factors.LoadHierarchy(s.cfg.HierarchyYAML)
		if err != nil {
			return nil, err
		}
	}

	prices, err := s.prices.GetPrices(ctx, held.Tickers(), forceRefresh)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Holdings:  held,
		Prices:    prices,
		Weights:   weights,
		Hierarchy: hierarchy,
		LoadedAt:  time.Now(),
	}
	s.log.Info().
		Int("holdings", len(held)).
		Int("accounts", len(held.Accounts())).
		Float64("total_value", snap.TotalValue()).
		Msg("Built portfolio snapshot")
	return snap, nil
}

// NewLoader builds the holdings loader from the analytics config.
func NewLoader(cfg config.AnalyticsConfig, log zerolog.Logger) *holdings.Loader {
	return holdings.NewLoader(cfg.IgnoreTickers, cfg.ProxyFunds, log)
}

// RefreshPricesJob wires the marketdata refresh job to the current snapshot's
// ticker set.
func RefreshPricesJob(service *Service, md *marketdata.Service, log zerolog.Logger) *marketdata.RefreshPricesJob {
	return marketdata.NewRefreshPricesJob(md, service.Tickers, log)
}
