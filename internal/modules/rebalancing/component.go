package rebalancing

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/modules/factors"
)

// targetSumTolerance is the allowed deviation of the portfolio-level target
// allocations from summing to 1.0, and of an account's scaled target from
// summing to its proportion.
const targetSumTolerance = 1e-5

// accountComponent holds everything needed to place one account's variables
// into the combined program and to read its slice of the solution back out.
// The solution is decomposed through the account and ticker order carried
// here, never by parsing variable names back apart.
type accountComponent struct {
	account      string
	tickers      *domain.CanonicalOrder
	current      *mat.VecDense // fractions of total portfolio value
	weights      *mat.Dense    // factor x ticker, account scoped
	proportion   float64
	scaledTarget *mat.VecDense
	offset       int // position of the account's first variable
}

// buildComponent assembles the per-account piece of the program. The target
// vector is the portfolio-level target in factorOrder; it is scaled by the
// account's share of total portfolio value.
func buildComponent(in Input, account string, factorOrder *domain.CanonicalOrder, target *mat.VecDense, totalValue float64) (*accountComponent, error) {
	held := in.Holdings.ForAccount(account)
	if len(held) == 0 {
		return nil, fmt.Errorf("unknown account %q, available accounts: %s",
			account, strings.Join(in.Holdings.Accounts(), ", "))
	}

	tickers, err := domain.NewCanonicalOrder(held.Tickers())
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", account, err)
	}

	// Step 2: current allocations as fractions of the whole portfolio
	current := make(map[string]float64, len(held))
	accountValue := 0.0
	for _, h := range held {
		price, ok := in.Prices[h.Ticker]
		if !ok || math.IsNaN(price) {
			return nil, fmt.Errorf("account %s: no valid price for ticker %s", account, h.Ticker)
		}
		value := h.Quantity * price
		current[h.Ticker] += value / totalValue
		accountValue += value
	}

	weights, err := factors.BuildMatrix(in.Weights, factorOrder, tickers)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", account, err)
	}

	proportion := accountValue / totalValue

	// Step 5: scale the portfolio target down to the account's share and
	// verify the arithmetic closed
	scaled := mat.NewVecDense(target.Len(), nil)
	scaled.ScaleVec(proportion, target)
	scaledSum := mat.Sum(scaled)
	if proportion > 0 && math.Abs(scaledSum-proportion)/proportion > targetSumTolerance {
		return nil, fmt.Errorf("account %s: scaled target sums to %.8f, expected proportion %.8f",
			account, scaledSum, proportion)
	}

	return &accountComponent{
		account:      account,
		tickers:      tickers,
		current:      tickers.Vector(current),
		weights:      weights,
		proportion:   proportion,
		scaledTarget: scaled,
	}, nil
}

// targetVector resolves the target map into a canonical factor order and a
// matching vector.
func targetVector(targets map[string]float64) (*domain.CanonicalOrder, *mat.VecDense, error) {
	names := make([]string, 0, len(targets))
	for factor := range targets {
		names = append(names, factor)
	}
	sort.Strings(names)

	order, err := domain.NewCanonicalOrder(names)
	if err != nil {
		return nil, nil, err
	}
	return order, order.Vector(targets), nil
}

// portfolioValue sums quantity×price over all holdings, failing on any
// missing or NaN price.
func portfolioValue(in Input) (float64, error) {
	total := 0.0
	for _, h := range in.Holdings {
		price, ok := in.Prices[h.Ticker]
		if !ok || math.IsNaN(price) {
			return 0, fmt.Errorf("no valid price for ticker %s", h.Ticker)
		}
		total += h.Quantity * price
	}
	if total <= 0 {
		return 0, fmt.Errorf("portfolio has no value")
	}
	return total, nil
}
