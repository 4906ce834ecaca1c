package marketdata

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// Service resolves current prices for a set of tickers, serving from the
// cache database when entries are fresh and falling back to the provider
// for the rest. Tickers the provider cannot price come back as NaN so the
// caller can decide how to degrade.
type Service struct {
	provider Provider
	repo     *PriceRepository
	ttl      time.Duration
	log      zerolog.Logger
}

// NewService creates a new market data service.
func NewService(provider Provider, repo *PriceRepository, ttl time.Duration, log zerolog.Logger) *Service {
	return &Service{
		provider: provider,
		repo:     repo,
		ttl:      ttl,
		log:      log.With().Str("service", "marketdata").Logger(),
	}
}

// GetPrices returns one price per requested ticker. When forceRefresh is
// set the cache is bypassed and every ticker is fetched from the provider.
func (s *Service) GetPrices(ctx context.Context, tickers []string, forceRefresh bool) (map[string]float64, error) {
	prices := make(map[string]float64, len(tickers))
	var missing []string

	if forceRefresh {
		missing = tickers
	} else {
		cached, err := s.repo.GetAll()
		if err != nil {
			return nil, err
		}
		now := time.Now()
		for _, ticker := range tickers {
			entry, ok := cached[ticker]
			if ok && now.Sub(entry.FetchedAt) < s.ttl {
				prices[ticker] = entry.Price
			} else {
				missing = append(missing, ticker)
			}
		}
	}

	if len(missing) == 0 {
		return prices, nil
	}

	fetched, err := s.provider.GetQuotes(ctx, missing)
	if err != nil {
		// Step 3: degrade to stale cache entries rather than failing the run
		s.log.Warn().Err(err).Int("tickers", len(missing)).Msg("Quote fetch failed, falling back to cache")
		fetched = nil
	}

	now := time.Now()
	for _, ticker := range missing {
		price, ok := fetched[ticker]
		if !ok {
			if entry, found, getErr := s.repo.Get(ticker); getErr == nil && found {
				prices[ticker] = entry.Price
				continue
			}
			s.log.Warn().Str("ticker", ticker).Msg("No price available")
			prices[ticker] = math.NaN()
			continue
		}
		prices[ticker] = price
		if err := s.repo.Upsert(ticker, price, now); err != nil {
			s.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to cache price")
		}
	}

	return prices, nil
}
