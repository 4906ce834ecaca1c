// Package portfolio assembles holdings, prices and factor tables into a
// consistent snapshot and exposes the analytics that run against it.
package portfolio

import (
	"math"
	"time"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/modules/factors"
	"github.com/aristath/folio/internal/modules/metrics"
	"github.com/aristath/folio/internal/modules/rebalancing"
)

// Snapshot is one consistent view of the portfolio. It is immutable once
// built: every query and rebalance run against a snapshot sees the same
// holdings and prices.
type Snapshot struct {
	Holdings  domain.Holdings
	Prices    map[string]float64
	Weights   *factors.Table
	Hierarchy *factors.Hierarchy
	LoadedAt  time.Time
}

// MetricsInput adapts the snapshot for the metrics engine.
func (s *Snapshot) MetricsInput() metrics.Input {
	return metrics.Input{
		Holdings:  s.Holdings,
		Prices:    s.Prices,
		Weights:   s.Weights,
		Hierarchy: s.Hierarchy,
	}
}

// RebalancingInput adapts the snapshot for the rebalancers.
func (s *Snapshot) RebalancingInput() rebalancing.Input {
	return rebalancing.Input{
		Holdings: s.Holdings,
		Prices:   s.Prices,
		Weights:  s.Weights,
	}
}

// TotalValue sums quantity×price over holdings with a valid price.
func (s *Snapshot) TotalValue() float64 {
	total := 0.0
	for _, h := range s.Holdings {
		price, ok := s.Prices[h.Ticker]
		if !ok || math.IsNaN(price) {
			continue
		}
		total += h.Quantity * price
	}
	return total
}

// Summary is the condensed view served by the API.
type Summary struct {
	TotalValue  float64   `json:"total_value"`
	Accounts    []string  `json:"accounts"`
	TickerCount int       `json:"ticker_count"`
	LoadedAt    time.Time `json:"loaded_at"`
}

// Summarize builds the condensed view of the snapshot.
func (s *Snapshot) Summarize() Summary {
	return Summary{
		TotalValue:  s.TotalValue(),
		Accounts:    s.Holdings.Accounts(),
		TickerCount: len(s.Holdings.Tickers()),
		LoadedAt:    s.LoadedAt,
	}
}
