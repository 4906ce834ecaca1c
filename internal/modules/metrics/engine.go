// Package metrics aggregates portfolio holdings along configurable dimensions.
package metrics

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/modules/factors"
)

// Dimension and metric names accepted by Query.
const (
	DimTicker  = "Ticker"
	DimAccount = "Account"
	DimFactor  = "Factor"

	MetricQuantity   = "Quantity"
	MetricValue      = "Value"
	MetricAllocation = "Allocation"
)

// AllocationScope selects the divisor used for the Allocation metric.
type AllocationScope string

const (
	// ScopePortfolio divides by the total unfiltered portfolio value.
	ScopePortfolio AllocationScope = "portfolio"
	// ScopeFiltered divides by the total value of the filtered subset.
	ScopeFiltered AllocationScope = "filtered"
)

// Input is the stable snapshot of tables a query runs against. Weights and
// Hierarchy may be nil when no factor dimension is used.
type Input struct {
	Holdings  domain.Holdings
	Prices    map[string]float64
	Weights   *factors.Table
	Hierarchy *factors.Hierarchy
}

// Query describes one dimensional aggregation request.
type Query struct {
	// Dimensions to group by: Ticker, Account, Factor, or a hierarchy
	// level name such as Level_0. Empty means a single total row.
	Dimensions []string `json:"dimensions"`
	// Metrics to compute. Empty means all applicable metrics.
	Metrics []string `json:"metrics"`
	// Filters are per-dimension membership tests applied before grouping.
	Filters map[string][]string `json:"filters"`
	// Scope defaults to ScopePortfolio.
	Scope AllocationScope `json:"allocation_scope"`
}

// Row is one output group.
type Row struct {
	Dimensions map[string]string  `json:"dimensions"`
	Metrics    map[string]float64 `json:"metrics"`
}

// Result is an executed query.
type Result struct {
	Rows       []Row   `json:"rows"`
	TotalValue float64 `json:"total_value"`
}

// Engine executes dimensional queries over an Input.
type Engine struct {
	log zerolog.Logger
}

// NewEngine creates a new metrics engine.
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{log: log.With().Str("service", "metrics").Logger()}
}

// joinedRow is one row of the holdings join. Under the factor join each
// holding expands to one row per factor weight of its ticker.
type joinedRow struct {
	ticker   string
	account  string
	quantity float64
	price    float64
	factor   string
	weight   float64
	levels   []string
}

// Query runs one dimensional aggregation.
func (e *Engine) Query(in Input, q Query) (*Result, error) {
	scope := q.Scope
	if scope == "" {
		scope = ScopePortfolio
	}
	if scope != ScopePortfolio && scope != ScopeFiltered {
		return nil, fmt.Errorf("unknown allocation scope %q", scope)
	}

	factorJoin := false
	needHierarchy := false
	check := func(dim string) error {
		switch dim {
		case DimTicker, DimAccount:
			return nil
		case DimFactor:
			factorJoin = true
			return nil
		}
		if _, ok := parseLevel(dim); ok {
			factorJoin = true
			needHierarchy = true
			return nil
		}
		return fmt.Errorf("unknown dimension %q", dim)
	}
	for _, dim := range q.Dimensions {
		if err := check(dim); err != nil {
			return nil, err
		}
	}
	for dim := range q.Filters {
		if err := check(dim); err != nil {
			return nil, fmt.Errorf("invalid filter: %w", err)
		}
	}

	if factorJoin && in.Weights == nil {
		return nil, fmt.Errorf("query requires factor weights but none are loaded")
	}
	if needHierarchy && in.Hierarchy == nil {
		return nil, fmt.Errorf("query requires a factor hierarchy but none is loaded")
	}

	metricSet, err := resolveMetrics(q.Metrics, factorJoin)
	if err != nil {
		return nil, err
	}

	unfiltered := e.join(in, factorJoin)
	filtered, err := applyFilters(unfiltered, q.Filters, in.Hierarchy)
	if err != nil {
		return nil, err
	}

	divisorRows := unfiltered
	if scope == ScopeFiltered {
		divisorRows = filtered
	}
	divisor := totalValue(divisorRows)
	if metricSet[MetricAllocation] && divisor == 0 {
		return nil, fmt.Errorf("no valid prices available to compute allocations")
	}

	rows, err := aggregate(filtered, q.Dimensions, metricSet, divisor)
	if err != nil {
		return nil, err
	}

	e.log.Debug().
		Strs("dimensions", q.Dimensions).
		Int("rows", len(rows)).
		Msg("Executed metrics query")

	return &Result{Rows: rows, TotalValue: totalValue(unfiltered)}, nil
}

// parseLevel recognizes hierarchy level dimensions of the form Level_N.
func parseLevel(dim string) (int, bool) {
	rest, ok := strings.CutPrefix(dim, "Level_")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func resolveMetrics(requested []string, factorJoin bool) (map[string]bool, error) {
	set := make(map[string]bool)
	if len(requested) == 0 {
		set[MetricValue] = true
		set[MetricAllocation] = true
		if !factorJoin {
			set[MetricQuantity] = true
		}
		return set, nil
	}
	for _, m := range requested {
		switch m {
		case MetricQuantity, MetricValue, MetricAllocation:
			set[m] = true
		default:
			return nil, fmt.Errorf("unknown metric %q", m)
		}
	}
	// a ticker's quantity splits across factors, so it has no meaning there
	if factorJoin {
		delete(set, MetricQuantity)
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("no applicable metrics for a factor-grouped query")
	}
	return set, nil
}

// join builds holdings ⋈ prices, expanded through factor weights and
// hierarchy levels when the factor join is active. Tickers absent from the
// weights table drop out of a factor join.
func (e *Engine) join(in Input, factorJoin bool) []joinedRow {
	var rows []joinedRow
	for _, h := range in.Holdings {
		price, ok := in.Prices[h.Ticker]
		if !ok {
			price = math.NaN()
		}
		if !factorJoin {
			rows = append(rows, joinedRow{
				ticker:   h.Ticker,
				account:  h.Account,
				quantity: h.Quantity,
				price:    price,
				weight:   1,
			})
			continue
		}
		weights, ok := in.Weights.WeightsFor(h.Ticker)
		if !ok {
			continue
		}
		factorNames := make([]string, 0, len(weights))
		for f := range weights {
			factorNames = append(factorNames, f)
		}
		sort.Strings(factorNames)
		for _, f := range factorNames {
			row := joinedRow{
				ticker:   h.Ticker,
				account:  h.Account,
				quantity: h.Quantity,
				price:    price,
				factor:   f,
				weight:   weights[f],
			}
			if in.Hierarchy != nil {
				if levels, ok := in.Hierarchy.Levels(f); ok {
					row.levels = levels
				}
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// dimValue extracts one dimension value from a row. ok=false means the row
// has no value at that dimension (a leaf shallower than the requested level)
// and is absent from that grouping.
func dimValue(row joinedRow, dim string) (string, bool) {
	switch dim {
	case DimTicker:
		return row.ticker, true
	case DimAccount:
		return row.account, true
	case DimFactor:
		return row.factor, true
	}
	n, _ := parseLevel(dim)
	if n >= len(row.levels) || row.levels[n] == "" {
		return "", false
	}
	return row.levels[n], true
}

func applyFilters(rows []joinedRow, filters map[string][]string, _ *factors.Hierarchy) ([]joinedRow, error) {
	if len(filters) == 0 {
		return rows, nil
	}
	sets := make(map[string]map[string]bool, len(filters))
	for dim, values := range filters {
		set := make(map[string]bool, len(values))
		for _, v := range values {
			set[v] = true
		}
		sets[dim] = set
	}

	var out []joinedRow
	for _, row := range rows {
		keep := true
		for dim, set := range sets {
			value, ok := dimValue(row, dim)
			if !ok || !set[value] {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, row)
		}
	}
	return out, nil
}

// totalValue sums quantity×price×weight over rows with a valid price.
func totalValue(rows []joinedRow) float64 {
	total := 0.0
	for _, row := range rows {
		if math.IsNaN(row.price) {
			continue
		}
		total += row.quantity * row.price * row.weight
	}
	return total
}

type groupAccum struct {
	dims     map[string]string
	quantity float64
	value    float64
}

func aggregate(rows []joinedRow, dimensions []string, metrics map[string]bool, divisor float64) ([]Row, error) {
	groups := make(map[string]*groupAccum)
	var keys []string

	for _, row := range rows {
		dims := make(map[string]string, len(dimensions))
		keyParts := make([]string, 0, len(dimensions))
		skip := false
		for _, dim := range dimensions {
			value, ok := dimValue(row, dim)
			if !ok {
				skip = true
				break
			}
			dims[dim] = value
			keyParts = append(keyParts, value)
		}
		if skip {
			continue
		}
		key := strings.Join(keyParts, "\x00")
		acc, ok := groups[key]
		if !ok {
			acc = &groupAccum{dims: dims}
			groups[key] = acc
			keys = append(keys, key)
		}
		acc.quantity += row.quantity
		if !math.IsNaN(row.price) {
			acc.value += row.quantity * row.price * row.weight
		}
	}

	sort.Strings(keys)
	out := make([]Row, 0, len(keys))
	for _, key := range keys {
		acc := groups[key]
		m := make(map[string]float64, len(metrics))
		if metrics[MetricQuantity] {
			m[MetricQuantity] = acc.quantity
		}
		if metrics[MetricValue] {
			m[MetricValue] = acc.value
		}
		if metrics[MetricAllocation] {
			m[MetricAllocation] = acc.value / divisor
		}
		out = append(out, Row{Dimensions: acc.dims, Metrics: m})
	}
	return out, nil
}
