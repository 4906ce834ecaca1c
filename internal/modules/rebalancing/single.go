package rebalancing

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/solver"
)

// SingleAccountRebalancer optimizes one account in isolation. The account is
// treated as the whole portfolio: its proportion is 1.0 and there is no
// cross-account alignment term.
type SingleAccountRebalancer struct {
	solver Solver
	opts   solver.Options
	log    zerolog.Logger
}

// NewSingleAccountRebalancer creates a rebalancer over the given solver.
func NewSingleAccountRebalancer(s Solver, opts solver.Options, log zerolog.Logger) *SingleAccountRebalancer {
	return &SingleAccountRebalancer{
		solver: s,
		opts:   opts,
		log:    log.With().Str("service", "rebalancing").Logger(),
	}
}

// Rebalance solves for new allocations within one account.
func (r *SingleAccountRebalancer) Rebalance(in Input, account string, params Params) (*Result, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	if !in.Holdings.HasAccount(account) {
		return nil, fmt.Errorf("unknown account %q, available accounts: %s",
			account, strings.Join(in.Holdings.Accounts(), ", "))
	}

	scoped := Input{
		Holdings: in.Holdings.ForAccount(account),
		Prices:   in.Prices,
		Weights:  in.Weights,
	}
	// with one account the portfolio term already covers alignment
	params.AccountAlignPenalty = 0

	return run(scoped, []string{account}, params, r.solver, r.opts, r.log)
}
