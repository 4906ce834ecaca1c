package rebalancing

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/solver"
	"github.com/aristath/folio/internal/utils"
)

// PortfolioRebalancer optimizes allocations across every account at once.
// The combined objective fits the summed factor exposure to the global
// target, optionally keeps each account near its own proportional target,
// and penalizes turnover and the number of funds held.
type PortfolioRebalancer struct {
	solver Solver
	opts   solver.Options
	log    zerolog.Logger
}

// NewPortfolioRebalancer creates a rebalancer over the given solver.
func NewPortfolioRebalancer(s Solver, opts solver.Options, log zerolog.Logger) *PortfolioRebalancer {
	return &PortfolioRebalancer{
		solver: s,
		opts:   opts,
		log:    log.With().Str("service", "rebalancing").Logger(),
	}
}

// Rebalance solves for new allocations across all accounts in the input.
func (r *PortfolioRebalancer) Rebalance(in Input, params Params) (*Result, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	return run(in, in.Holdings.Accounts(), params, r.solver, r.opts, r.log)
}

// run is the shared pipeline behind the portfolio and single-account
// rebalancers: build one component per account, assemble the combined
// program, solve, and decompose the solution back into result tables.
func run(in Input, accounts []string, params Params, s Solver, opts solver.Options, log zerolog.Logger) (*Result, error) {
	totalValue, err := portfolioValue(in)
	if err != nil {
		return nil, err
	}

	factorOrder, target, err := targetVector(params.Targets)
	if err != nil {
		return nil, err
	}

	components := make([]*accountComponent, 0, len(accounts))
	n := 0
	for _, account := range accounts {
		comp, err := buildComponent(in, account, factorOrder, target, totalValue)
		if err != nil {
			return nil, err
		}
		comp.offset = n
		n += comp.tickers.Len()
		components = append(components, comp)
	}

	problem := assemble(components, params, factorOrder, target, n)

	timer := utils.NewTimer("rebalance_solve", log)
	sol, err := s.Solve(problem, opts)
	timer.Stop()
	if err != nil {
		return nil, err
	}
	if sol.Status != solver.StatusOptimal {
		return nil, &SolverStatusError{Status: sol.Status}
	}

	result := decompose(components, factorOrder, sol)
	log.Info().
		Str("run_id", result.RunID).
		Int("accounts", len(components)).
		Int("variables", n).
		Int("nodes", sol.Nodes).
		Float64("objective", sol.Objective).
		Msg("Rebalance solved")
	return result, nil
}

// assemble builds the combined MIQP from the per-account components.
func assemble(components []*accountComponent, params Params, factorOrder *domain.CanonicalOrder, target *mat.VecDense, n int) *solver.Problem {
	nFactors := factorOrder.Len()

	// portfolio-level factor fit: || sum_a W_a x_a - t ||^2
	global := mat.NewDense(nFactors, n, nil)
	for _, comp := range components {
		copyBlock(global, comp.weights, comp.offset)
	}
	quads := []solver.QuadTerm{{Weight: 1, A: global, B: mat.VecDenseCopyOf(target)}}

	// per-account alignment with the account's proportional target
	if params.AccountAlignPenalty > 0 {
		for _, comp := range components {
			block := mat.NewDense(nFactors, n, nil)
			copyBlock(block, comp.weights, comp.offset)
			quads = append(quads, solver.QuadTerm{
				Weight: params.AccountAlignPenalty,
				A:      block,
				B:      mat.VecDenseCopyOf(comp.scaledTarget),
			})
		}
	}

	// turnover against the combined current allocation vector
	if params.TurnoverPenalty > 0 {
		identity := mat.NewDense(n, n, nil)
		current := mat.NewVecDense(n, nil)
		for _, comp := range components {
			for i := 0; i < comp.tickers.Len(); i++ {
				identity.Set(comp.offset+i, comp.offset+i, 1)
				current.SetVec(comp.offset+i, comp.current.AtVec(i))
			}
		}
		quads = append(quads, solver.QuadTerm{
			Weight: params.TurnoverPenalty,
			A:      identity,
			B:      current,
		})
	}

	minAlloc := make([]float64, n)
	cost := make([]float64, n)
	for i := range minAlloc {
		minAlloc[i] = params.MinTickerAlloc
		cost[i] = params.ComplexityPenalty
	}

	groups := make([]solver.Group, len(components))
	for gi, comp := range components {
		indices := make([]int, comp.tickers.Len())
		for i := range indices {
			indices[i] = comp.offset + i
		}
		groups[gi] = solver.Group{Indices: indices, Sum: comp.proportion}
	}

	total := 1.0
	return &solver.Problem{
		N:              n,
		MinAlloc:       minAlloc,
		ActivationCost: cost,
		Quadratic:      quads,
		Groups:         groups,
		TotalSum:       &total,
	}
}

// copyBlock writes the account-scoped weight matrix into the combined matrix
// at the account's variable offset.
func copyBlock(dst *mat.Dense, src *mat.Dense, offset int) {
	rows, cols := src.Dims()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			dst.Set(r, offset+c, src.At(r, c))
		}
	}
}

// decompose reads the solved variable vector back into ticker and factor
// tables, each account's block in its construction order.
func decompose(components []*accountComponent, factorOrder *domain.CanonicalOrder, sol *solver.Solution) *Result {
	result := &Result{
		RunID:     uuid.NewString(),
		Status:    string(sol.Status),
		Objective: sol.Objective,
	}

	for _, comp := range components {
		count := comp.tickers.Len()
		solved := mat.NewVecDense(count, sol.X[comp.offset:comp.offset+count])

		for i := 0; i < count; i++ {
			orig := comp.current.AtVec(i)
			next := solved.AtVec(i)
			result.Tickers = append(result.Tickers, TickerResult{
				Account:    comp.account,
				Ticker:     comp.tickers.At(i),
				Original:   orig,
				New:        next,
				Difference: next - orig,
			})
		}

		origFactors := mat.NewVecDense(factorOrder.Len(), nil)
		origFactors.MulVec(comp.weights, comp.current)
		newFactors := mat.NewVecDense(factorOrder.Len(), nil)
		newFactors.MulVec(comp.weights, solved)

		for f := 0; f < factorOrder.Len(); f++ {
			result.Factors = append(result.Factors, FactorResult{
				Account:    comp.account,
				Factor:     factorOrder.At(f),
				Original:   origFactors.AtVec(f),
				New:        newFactors.AtVec(f),
				Target:     comp.scaledTarget.AtVec(f),
				Difference: newFactors.AtVec(f) - comp.scaledTarget.AtVec(f),
			})
		}
	}

	return result
}
