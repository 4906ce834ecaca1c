package portfolio

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/folio/internal/config"
)

type staticPrices struct {
	prices map[string]float64
	calls  int
}

func (p *staticPrices) GetPrices(_ context.Context, tickers []string, _ bool) (map[string]float64, error) {
	p.calls++
	out := make(map[string]float64)
	for _, t := range tickers {
		out[t] = p.prices[t]
	}
	return out, nil
}

func writeFixtures(t *testing.T) config.AnalyticsConfig {
	t.Helper()
	dir := t.TempDir()

	holdingsDir := filepath.Join(dir, "holdings")
	require.NoError(t, os.Mkdir(holdingsDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(holdingsDir, "ira.csv"),
		[]byte("Ticker,Quantity\nVTI,10\nBND,20\n"), 0644))

	weightsPath := filepath.Join(dir, "weights.csv")
	require.NoError(t, os.WriteFile(weightsPath,
		[]byte("Ticker,Factor,Weight\nVTI,US Equity,1.0\nBND,Bonds,1.0\n"), 0644))

	hierarchyPath := filepath.Join(dir, "hierarchy.yaml")
	require.NoError(t, os.WriteFile(hierarchyPath,
		[]byte("Equity:\n  - US Equity\nFixed Income:\n  - Bonds\n"), 0644))

	return config.AnalyticsConfig{
		HoldingsDir:   holdingsDir,
		WeightsCSV:    weightsPath,
		HierarchyYAML: hierarchyPath,
	}
}

func TestServiceBuildsAndCachesSnapshot(t *testing.T) {
	cfg := writeFixtures(t)
	prices := &staticPrices{prices: map[string]float64{"VTI": 100, "BND": 50}}
	service := NewService(cfg, NewLoader(cfg, zerolog.Nop()), prices, zerolog.Nop())

	assert.False(t, service.Populated())
	assert.Nil(t, service.Tickers())

	snap, err := service.Snapshot(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, service.Populated())
	assert.Equal(t, []string{"BND", "VTI"}, service.Tickers())
	assert.Equal(t, 2000.0, snap.TotalValue())
	assert.NotNil(t, snap.Hierarchy)

	// a second call without force serves the cached snapshot
	again, err := service.Snapshot(context.Background(), false)
	require.NoError(t, err)
	assert.Same(t, snap, again)
	assert.Equal(t, 1, prices.calls)

	// force rebuilds
	fresh, err := service.Snapshot(context.Background(), true)
	require.NoError(t, err)
	assert.NotSame(t, snap, fresh)
	assert.Equal(t, 2, prices.calls)
}

func TestSnapshotSummarize(t *testing.T) {
	cfg := writeFixtures(t)
	prices := &staticPrices{prices: map[string]float64{"VTI": 100, "BND": 50}}
	service := NewService(cfg, NewLoader(cfg, zerolog.Nop()), prices, zerolog.Nop())

	snap, err := service.Snapshot(context.Background(), false)
	require.NoError(t, err)

	summary := snap.Summarize()
	assert.Equal(t, 2000.0, summary.TotalValue)
	assert.Equal(t, []string{"ira"}, summary.Accounts)
	assert.Equal(t, 2, summary.TickerCount)
	assert.False(t, summary.LoadedAt.IsZero())
}

func TestSnapshotAdapters(t *testing.T) {
	cfg := writeFixtures(t)
	prices := &staticPrices{prices: map[string]float64{"VTI": 100, "BND": 50}}
	service := NewService(cfg, NewLoader(cfg, zerolog.Nop()), prices, zerolog.Nop())

	snap, err := service.Snapshot(context.Background(), false)
	require.NoError(t, err)

	mi := snap.MetricsInput()
	assert.Equal(t, snap.Weights, mi.Weights)
	assert.Equal(t, snap.Hierarchy, mi.Hierarchy)

	ri := snap.RebalancingInput()
	assert.Equal(t, snap.Holdings, ri.Holdings)
}

func TestServiceMissingInputs(t *testing.T) {
	cfg := writeFixtures(t)
	cfg.WeightsCSV = filepath.Join(t.TempDir(), "missing.csv")
	prices := &staticPrices{prices: map[string]float64{}}
	service := NewService(cfg, NewLoader(cfg, zerolog.Nop()), prices, zerolog.Nop())

	_, err := service.Snapshot(context.Background(), false)
	require.Error(t, err)
	assert.False(t, service.Populated())
}
