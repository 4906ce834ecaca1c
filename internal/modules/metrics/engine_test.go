package metrics

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/modules/factors"
)

func testInput(t *testing.T) Input {
	t.Helper()

	weights, err := factors.NewTable([]factors.Weight{
		{Ticker: "VTI", Factor: "US Equity", Value: 1.0},
		{Ticker: "VXUS", Factor: "Intl Equity", Value: 1.0},
		{Ticker: "AOR", Factor: "US Equity", Value: 0.36},
		{Ticker: "AOR", Factor: "Intl Equity", Value: 0.24},
		{Ticker: "AOR", Factor: "Bonds", Value: 0.40},
	})
	require.NoError(t, err)

	hierarchy, err := factors.ParseHierarchy([]byte(`
Equity:
  US:
    - US Equity
  International:
    - Intl Equity
Bonds:
  - Bonds
`))
	require.NoError(t, err)

	return Input{
		Holdings: domain.Holdings{
			{Ticker: "VTI", Account: "ira", Quantity: 10},
			{Ticker: "VXUS", Account: "ira", Quantity: 20},
			{Ticker: "AOR", Account: "taxable", Quantity: 50},
		},
		Prices: map[string]float64{
			"VTI":  100, // ira value 1000
			"VXUS": 50,  // ira value 1000
			"AOR":  40,  // taxable value 2000
		},
		Weights:   weights,
		Hierarchy: hierarchy,
	}
}

func TestQueryByAccount(t *testing.T) {
	engine := NewEngine(zerolog.Nop())

	res, err := engine.Query(testInput(t), Query{Dimensions: []string{"Account"}})
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, 4000.0, res.TotalValue)

	assert.Equal(t, "ira", res.Rows[0].Dimensions["Account"])
	assert.Equal(t, 30.0, res.Rows[0].Metrics["Quantity"])
	assert.Equal(t, 2000.0, res.Rows[0].Metrics["Value"])
	assert.InDelta(t, 0.5, res.Rows[0].Metrics["Allocation"], 1e-12)

	assert.Equal(t, "taxable", res.Rows[1].Dimensions["Account"])
	assert.Equal(t, 2000.0, res.Rows[1].Metrics["Value"])
}

func TestAllocationsSumToOneAtEveryGranularity(t *testing.T) {
	engine := NewEngine(zerolog.Nop())
	in := testInput(t)

	for _, dims := range [][]string{
		nil,
		{"Ticker"},
		{"Account"},
		{"Account", "Ticker"},
		{"Factor"},
		{"Level_0"},
		{"Account", "Factor"},
	} {
		res, err := engine.Query(in, Query{Dimensions: dims})
		require.NoError(t, err)

		sum := 0.0
		for _, row := range res.Rows {
			sum += row.Metrics["Allocation"]
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "dims %v", dims)
	}
}

func TestFactorGroupingOmitsQuantityAndWeighsValue(t *testing.T) {
	engine := NewEngine(zerolog.Nop())

	res, err := engine.Query(testInput(t), Query{Dimensions: []string{"Factor"}})
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)

	byFactor := map[string]Row{}
	for _, row := range res.Rows {
		_, hasQuantity := row.Metrics["Quantity"]
		assert.False(t, hasQuantity, "quantity has no meaning per factor")
		byFactor[row.Dimensions["Factor"]] = row
	}

	// AOR alone carries bonds: 2000 * 0.40
	assert.InDelta(t, 800.0, byFactor["Bonds"].Metrics["Value"], 1e-9)
	// VTI 1000 + AOR 2000*0.36
	assert.InDelta(t, 1720.0, byFactor["US Equity"].Metrics["Value"], 1e-9)
	assert.InDelta(t, 1480.0, byFactor["Intl Equity"].Metrics["Value"], 1e-9)
}

func TestHierarchyLevels(t *testing.T) {
	engine := NewEngine(zerolog.Nop())

	res, err := engine.Query(testInput(t), Query{Dimensions: []string{"Level_0"}})
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "Bonds", res.Rows[0].Dimensions["Level_0"])
	assert.Equal(t, "Equity", res.Rows[1].Dimensions["Level_0"])
	assert.InDelta(t, 3200.0, res.Rows[1].Metrics["Value"], 1e-9)

	// Bonds is a shallow leaf: it has no Level_1 value, so at Level_1 its
	// rows are absent rather than reported as an empty group.
	res, err = engine.Query(testInput(t), Query{
		Dimensions: []string{"Level_1"},
		Scope:      ScopeFiltered,
	})
	require.NoError(t, err)
	names := []string{}
	for _, row := range res.Rows {
		names = append(names, row.Dimensions["Level_1"])
	}
	assert.Equal(t, []string{"International", "US"}, names)
}

func TestFilteredAllocationScopes(t *testing.T) {
	engine := NewEngine(zerolog.Nop())
	in := testInput(t)
	filters := map[string][]string{"Account": {"ira"}}

	// portfolio scope: the subset's share of the whole portfolio
	res, err := engine.Query(in, Query{Dimensions: []string{"Ticker"}, Filters: filters})
	require.NoError(t, err)
	sum := 0.0
	for _, row := range res.Rows {
		sum += row.Metrics["Allocation"]
	}
	assert.InDelta(t, 0.5, sum, 1e-9)

	// filtered scope: allocations close over the subset itself
	res, err = engine.Query(in, Query{
		Dimensions: []string{"Ticker"},
		Filters:    filters,
		Scope:      ScopeFiltered,
	})
	require.NoError(t, err)
	sum = 0.0
	for _, row := range res.Rows {
		sum += row.Metrics["Allocation"]
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestFilterOnFactorDimension(t *testing.T) {
	engine := NewEngine(zerolog.Nop())

	res, err := engine.Query(testInput(t), Query{
		Dimensions: []string{"Ticker"},
		Filters:    map[string][]string{"Factor": {"Bonds"}},
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "AOR", res.Rows[0].Dimensions["Ticker"])
	assert.InDelta(t, 800.0, res.Rows[0].Metrics["Value"], 1e-9)
}

func TestNaNPricesExcludedFromValueButNotQuantity(t *testing.T) {
	engine := NewEngine(zerolog.Nop())
	in := testInput(t)
	in.Prices = map[string]float64{
		"VTI":  100,
		"VXUS": math.NaN(),
		// AOR missing entirely, treated as NaN
	}

	res, err := engine.Query(in, Query{Dimensions: []string{"Ticker"}})
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, 1000.0, res.TotalValue)

	byTicker := map[string]Row{}
	for _, row := range res.Rows {
		byTicker[row.Dimensions["Ticker"]] = row
	}
	assert.Equal(t, 20.0, byTicker["VXUS"].Metrics["Quantity"])
	assert.Equal(t, 0.0, byTicker["VXUS"].Metrics["Value"])
	assert.InDelta(t, 1.0, byTicker["VTI"].Metrics["Allocation"], 1e-9)
}

func TestNoValidPricesIsAnError(t *testing.T) {
	engine := NewEngine(zerolog.Nop())
	in := testInput(t)
	in.Prices = map[string]float64{}

	_, err := engine.Query(in, Query{Dimensions: []string{"Ticker"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no valid prices")

	// value-only queries still work, they just report zeros
	res, err := engine.Query(in, Query{
		Dimensions: []string{"Ticker"},
		Metrics:    []string{"Value", "Quantity"},
	})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 3)
}

func TestTickerMissingFromWeightsDropsFromFactorJoin(t *testing.T) {
	engine := NewEngine(zerolog.Nop())
	in := testInput(t)
	in.Holdings = append(in.Holdings, domain.Holding{Ticker: "CASH", Account: "ira", Quantity: 500})
	in.Prices["CASH"] = 1

	res, err := engine.Query(in, Query{Dimensions: []string{"Factor"}, Scope: ScopeFiltered})
	require.NoError(t, err)

	sum := 0.0
	for _, row := range res.Rows {
		sum += row.Metrics["Value"]
	}
	// CASH contributes nothing to factor aggregates
	assert.InDelta(t, 4000.0, sum, 1e-9)
}

func TestQueryErrors(t *testing.T) {
	engine := NewEngine(zerolog.Nop())
	in := testInput(t)

	_, err := engine.Query(in, Query{Dimensions: []string{"Sector"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Sector")

	_, err = engine.Query(in, Query{Filters: map[string][]string{"Region": {"US"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Region")

	_, err = engine.Query(in, Query{Metrics: []string{"Sharpe"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Sharpe")

	bare := Input{Holdings: in.Holdings, Prices: in.Prices}
	_, err = engine.Query(bare, Query{Dimensions: []string{"Factor"}})
	require.Error(t, err)

	noHier := Input{Holdings: in.Holdings, Prices: in.Prices, Weights: in.Weights}
	_, err = engine.Query(noHier, Query{Dimensions: []string{"Level_0"}})
	require.Error(t, err)
}
