// Package factors provides the factor-weight table, the factor hierarchy, and
// the construction of dense weight matrices aligned to canonical orders.
package factors

import (
	"fmt"
	"math"
	"sort"

	"github.com/aristath/folio/internal/domain"
	"gonum.org/v1/gonum/mat"
)

// WeightSumTolerance is the allowed deviation of one ticker's factor weights
// from summing to 1.0.
const WeightSumTolerance = 1e-5

// Weight is one row of the long-form factor-weight table: the fraction of one
// ticker's value attributed to one factor.
type Weight struct {
	Ticker string
	Factor string
	Value  float64
}

// Table is a validated long-form factor-weight table. Each ticker's weights
// sum to 1.0 within WeightSumTolerance; the table itself never re-normalizes.
type Table struct {
	rows    []Weight
	byPair  map[[2]string]float64 // (ticker, factor) -> weight
	tickers []string
	factors []string
}

// NewTable validates the rows and builds a table. Weights outside [0, 1],
// duplicate (ticker, factor) pairs, and per-ticker sums away from 1.0 are all
// hard errors: a malformed weights table would silently corrupt every
// downstream exposure figure.
func NewTable(rows []Weight) (*Table, error) {
	byPair := make(map[[2]string]float64, len(rows))
	sums := make(map[string]float64)
	tickerSet := make(map[string]bool)
	factorSet := make(map[string]bool)

	for _, row := range rows {
		if row.Ticker == "" || row.Factor == "" {
			return nil, fmt.Errorf("factor weight row has empty ticker or factor")
		}
		if row.Value < 0 || row.Value > 1 {
			return nil, fmt.Errorf("weight %.6f for ticker %s factor %s outside [0, 1]", row.Value, row.Ticker, row.Factor)
		}
		key := [2]string{row.Ticker, row.Factor}
		if _, dup := byPair[key]; dup {
			return nil, fmt.Errorf("duplicate weight for ticker %s factor %s", row.Ticker, row.Factor)
		}
		byPair[key] = row.Value
		sums[row.Ticker] += row.Value
		tickerSet[row.Ticker] = true
		factorSet[row.Factor] = true
	}

	for ticker, sum := range sums {
		if math.Abs(sum-1.0) > WeightSumTolerance {
			return nil, fmt.Errorf("factor weights for ticker %s sum to %.6f, expected 1.0", ticker, sum)
		}
	}

	table := &Table{
		rows:    append([]Weight(nil), rows...),
		byPair:  byPair,
		tickers: sortedKeys(tickerSet),
		factors: sortedKeys(factorSet),
	}
	return table, nil
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Rows returns a copy of the long-form rows.
func (t *Table) Rows() []Weight {
	return append([]Weight(nil), t.rows...)
}

// Tickers returns the distinct tickers, sorted.
func (t *Table) Tickers() []string {
	return append([]string(nil), t.tickers...)
}

// Factors returns the distinct factors, sorted.
func (t *Table) Factors() []string {
	return append([]string(nil), t.factors...)
}

// HasTicker reports whether the table carries weights for ticker.
func (t *Table) HasTicker(ticker string) bool {
	i := sort.SearchStrings(t.tickers, ticker)
	return i < len(t.tickers) && t.tickers[i] == ticker
}

// HasFactor reports whether any ticker loads onto factor.
func (t *Table) HasFactor(factor string) bool {
	i := sort.SearchStrings(t.factors, factor)
	return i < len(t.factors) && t.factors[i] == factor
}

// Weight returns the weight of (ticker, factor), zero when absent.
func (t *Table) Weight(ticker, factor string) float64 {
	return t.byPair[[2]string{ticker, factor}]
}

// WeightsFor returns the factor->weight map of one ticker, and whether the
// ticker appears in the table at all.
func (t *Table) WeightsFor(ticker string) (map[string]float64, bool) {
	out := make(map[string]float64)
	for _, row := range t.rows {
		if row.Ticker == ticker {
			out[row.Factor] = row.Value
		}
	}
	return out, len(out) > 0
}

// BuildMatrix pivots the table into a dense factorOrder.Len() x
// tickerOrder.Len() matrix. Row i is factorOrder.At(i), column j is
// tickerOrder.At(j); pairs absent from the table are 0. A factor requested in
// factorOrder but entirely absent from the table is an error: a silently
// zeroed factor row would make the optimizer treat the factor as untrackable
// without anyone noticing.
//
// The positional guarantee is what downstream code relies on: the matrix is
// multiplied against variable vectors built from the same orders, so labels
// disappear the moment this function returns.
func BuildMatrix(t *Table, factorOrder, tickerOrder *domain.CanonicalOrder) (*mat.Dense, error) {
	for _, factor := range factorOrder.Labels() {
		if !t.HasFactor(factor) {
			return nil, fmt.Errorf("factor %q not present in factor-weights table", factor)
		}
	}
	m := mat.NewDense(factorOrder.Len(), tickerOrder.Len(), nil)
	for i := 0; i < factorOrder.Len(); i++ {
		factor := factorOrder.At(i)
		for j := 0; j < tickerOrder.Len(); j++ {
			m.Set(i, j, t.Weight(tickerOrder.At(j), factor))
		}
	}
	return m, nil
}
