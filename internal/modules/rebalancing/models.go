// Package rebalancing turns target factor allocations into per-ticker trade
// recommendations by solving a mixed-integer quadratic program over the
// current holdings.
package rebalancing

import (
	"fmt"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/modules/factors"
	"github.com/aristath/folio/internal/solver"
)

// Input is the resolved snapshot a rebalance runs against. Prices must be
// valid for every held ticker; the optimizer cannot work around a NaN.
type Input struct {
	Holdings domain.Holdings
	Prices   map[string]float64
	Weights  *factors.Table
}

// Params are the tuning knobs of one rebalance request.
type Params struct {
	// Targets maps factor name to its desired share of the portfolio.
	// Must sum to 1.0.
	Targets map[string]float64 `json:"targets"`
	// TurnoverPenalty weighs deviation from the current allocations.
	TurnoverPenalty float64 `json:"turnover_penalty"`
	// ComplexityPenalty is the cost per fund held in the solution.
	ComplexityPenalty float64 `json:"complexity_penalty"`
	// AccountAlignPenalty weighs each account's deviation from its own
	// proportional share of the target, on top of the portfolio-level fit.
	AccountAlignPenalty float64 `json:"account_align_penalty"`
	// MinTickerAlloc is the smallest allocation a selected fund may take.
	MinTickerAlloc float64 `json:"min_ticker_alloc"`
}

// TickerResult is one row of the per-ticker recommendation table. All
// allocations are fractions of total portfolio value.
type TickerResult struct {
	Account    string  `json:"account"`
	Ticker     string  `json:"ticker"`
	Original   float64 `json:"original"`
	New        float64 `json:"new"`
	Difference float64 `json:"difference"`
}

// FactorResult is one row of the per-factor exposure table.
type FactorResult struct {
	Account    string  `json:"account"`
	Factor     string  `json:"factor"`
	Original   float64 `json:"original"`
	New        float64 `json:"new"`
	Target     float64 `json:"target"`
	Difference float64 `json:"difference"`
}

// Result is a completed rebalance run.
type Result struct {
	RunID     string         `json:"run_id"`
	Status    string         `json:"status"`
	Objective float64        `json:"objective"`
	Tickers   []TickerResult `json:"tickers"`
	Factors   []FactorResult `json:"factors"`
}

// Solver solves the assembled program. The in-process branch-and-bound solver
// satisfies it; an external MIQP solver can be substituted.
type Solver interface {
	Solve(p *solver.Problem, opts solver.Options) (*solver.Solution, error)
}

// SolverStatusError reports a solve that finished without an optimal
// solution. The caller decides whether to relax the parameters and resubmit;
// no retry happens here.
type SolverStatusError struct {
	Status solver.Status
}

func (e *SolverStatusError) Error() string {
	return fmt.Sprintf("solver finished with status %q", e.Status)
}

func validateParams(p Params) error {
	if len(p.Targets) == 0 {
		return fmt.Errorf("no target allocations given")
	}
	sum := 0.0
	for factor, value := range p.Targets {
		if factor == "" {
			return fmt.Errorf("target allocation has an empty factor name")
		}
		if value < 0 {
			return fmt.Errorf("target allocation for %q is negative (%.6f)", factor, value)
		}
		sum += value
	}
	if diff := sum - 1.0; diff > targetSumTolerance || diff < -targetSumTolerance {
		return fmt.Errorf("target allocations sum to %.6f, expected 1.0", sum)
	}
	if p.TurnoverPenalty < 0 || p.ComplexityPenalty < 0 || p.AccountAlignPenalty < 0 {
		return fmt.Errorf("penalty weights must be non-negative")
	}
	if p.MinTickerAlloc < 0 || p.MinTickerAlloc > 1 {
		return fmt.Errorf("minimum ticker allocation %.6f outside [0, 1]", p.MinTickerAlloc)
	}
	return nil
}
