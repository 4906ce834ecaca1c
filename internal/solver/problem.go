// Package solver implements a small mixed-integer quadratic program solver for
// fund-allocation problems: continuous allocation fractions that are either
// zero or at least a minimum lot, with an activation cost per selected fund, a
// weighted sum of convex quadratic tracking terms, and sum-equality
// constraints over disjoint variable groups.
//
// Branch and bound runs over the activation decisions; each node's continuous
// relaxation is a convex QP solved by accelerated projected gradient with an
// exact projection onto the group simplices.
package solver

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Status is the outcome of a solve.
type Status string

const (
	// StatusOptimal means the search completed and the incumbent is proven
	// optimal within tolerance.
	StatusOptimal Status = "optimal"
	// StatusInfeasible means the constraints admit no solution.
	StatusInfeasible Status = "infeasible"
	// StatusNodeLimit means the node budget was exhausted before the search
	// completed. The best incumbent found so far, if any, is returned.
	StatusNodeLimit Status = "node_limit_exceeded"
)

// QuadTerm is a convex objective term weight * ||A x - b||^2 over the full
// variable vector.
type QuadTerm struct {
	Weight float64
	A      *mat.Dense
	B      *mat.VecDense
}

// Group is a sum-equality constraint over a subset of variables:
// sum(x[Indices]) == Sum. Groups must not share variables; the projection
// step relies on them being disjoint.
type Group struct {
	Indices []int
	Sum     float64
}

// Problem is a fund-allocation MIQP.
//
// Each variable x_i is semicontinuous: x_i == 0 or MinAlloc[i] <= x_i <=
// Upper[i]. Whenever x_i > 0 the activation cost ActivationCost[i] is added
// to the objective (the binary selection indicator of the fund).
type Problem struct {
	N              int
	MinAlloc       []float64 // nil means all zero
	Upper          []float64 // nil means all 1.0
	ActivationCost []float64 // nil means all zero
	Quadratic      []QuadTerm
	Groups         []Group

	// TotalSum, when set, asserts that the group sums add up to this value.
	// It is redundant with the per-group constraints but kept explicit so an
	// inconsistent formulation fails fast instead of solving the wrong
	// problem.
	TotalSum *float64
}

// Options controls the search.
type Options struct {
	// MaxNodes bounds the branch-and-bound tree. Zero means DefaultMaxNodes.
	MaxNodes int
	// Tol is the feasibility/integrality tolerance. Zero means DefaultTol.
	Tol float64
}

// DefaultMaxNodes bounds the search tree when Options.MaxNodes is zero.
const DefaultMaxNodes = 100000

// DefaultTol is the feasibility tolerance when Options.Tol is zero.
const DefaultTol = 1e-6

// Solution is the result of a solve.
type Solution struct {
	Status    Status
	X         []float64
	Active    []bool // which funds ended up selected (x_i > 0)
	Objective float64
	Nodes     int
}

// validate checks the problem shape and fills defaulted slices.
func (p *Problem) validate() error {
	if p.N <= 0 {
		return fmt.Errorf("problem has no variables")
	}
	if p.MinAlloc == nil {
		p.MinAlloc = make([]float64, p.N)
	}
	if p.Upper == nil {
		p.Upper = make([]float64, p.N)
		for i := range p.Upper {
			p.Upper[i] = 1.0
		}
	}
	if p.ActivationCost == nil {
		p.ActivationCost = make([]float64, p.N)
	}
	if len(p.MinAlloc) != p.N || len(p.Upper) != p.N || len(p.ActivationCost) != p.N {
		return fmt.Errorf("variable attribute length mismatch: n=%d minalloc=%d upper=%d cost=%d",
			p.N, len(p.MinAlloc), len(p.Upper), len(p.ActivationCost))
	}
	for i := 0; i < p.N; i++ {
		if p.MinAlloc[i] < 0 || p.Upper[i] < 0 {
			return fmt.Errorf("variable %d has negative bound", i)
		}
		if p.MinAlloc[i] > p.Upper[i]+1e-12 {
			return fmt.Errorf("variable %d has minimum lot %.6f above upper bound %.6f", i, p.MinAlloc[i], p.Upper[i])
		}
		if p.ActivationCost[i] < 0 {
			return fmt.Errorf("variable %d has negative activation cost", i)
		}
	}
	seen := make([]bool, p.N)
	groupTotal := 0.0
	for gi, g := range p.Groups {
		if len(g.Indices) == 0 {
			return fmt.Errorf("group %d is empty", gi)
		}
		for _, i := range g.Indices {
			if i < 0 || i >= p.N {
				return fmt.Errorf("group %d references variable %d out of range", gi, i)
			}
			if seen[i] {
				return fmt.Errorf("variable %d appears in more than one group", i)
			}
			seen[i] = true
		}
		groupTotal += g.Sum
	}
	if p.TotalSum != nil && math.Abs(groupTotal-*p.TotalSum) > 1e-6 {
		return fmt.Errorf("group sums add to %.8f, expected total %.8f", groupTotal, *p.TotalSum)
	}
	for qi, q := range p.Quadratic {
		if q.Weight < 0 {
			return fmt.Errorf("quadratic term %d has negative weight", qi)
		}
		r, c := q.A.Dims()
		if c != p.N {
			return fmt.Errorf("quadratic term %d has %d columns, expected %d", qi, c, p.N)
		}
		if q.B.Len() != r {
			return fmt.Errorf("quadratic term %d has %d rows but target length %d", qi, r, q.B.Len())
		}
	}
	return nil
}
