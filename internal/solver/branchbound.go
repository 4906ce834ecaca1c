package solver

import (
	"math"
)

type varState int8

const (
	stateFree varState = iota
	stateIn            // fund forced selected: x in [minAlloc, upper]
	stateOut           // fund forced deselected: x == 0
)

type node struct {
	states []varState
}

func (n *node) child(idx int, s varState) *node {
	states := make([]varState, len(n.states))
	copy(states, n.states)
	states[idx] = s
	return &node{states: states}
}

// MIQPSolver solves fund-allocation MIQPs by branch and bound over the
// activation decisions.
type MIQPSolver struct{}

// NewMIQPSolver creates a solver.
func NewMIQPSolver() *MIQPSolver {
	return &MIQPSolver{}
}

// Solve runs the search. A shape or consistency error in the problem itself
// is returned as an error; an unsatisfiable or unfinished search is reported
// through Solution.Status.
func (s *MIQPSolver) Solve(p *Problem, opts Options) (*Solution, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	maxNodes := opts.MaxNodes
	if maxNodes <= 0 {
		maxNodes = DefaultMaxNodes
	}
	tol := opts.Tol
	if tol <= 0 {
		tol = DefaultTol
	}

	best := &Solution{Status: StatusInfeasible, Objective: math.Inf(1)}
	stack := []*node{{states: make([]varState, p.N)}}
	nodes := 0
	hitLimit := false

	for len(stack) > 0 {
		if nodes >= maxNodes {
			hitLimit = true
			break
		}
		nodes++
		nd := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		reg, lin, constant := s.nodeRelaxation(p, nd)
		if err := reg.checkFeasible(tol); err != nil {
			continue // node admits no solution
		}
		x, relaxObj := qpSolve(p.Quadratic, lin, reg)
		bound := relaxObj + constant
		if bound >= best.Objective-1e-9 {
			continue
		}

		// Incumbent probe: accept the relaxation point whenever it respects
		// the minimum lots, charging the true activation cost.
		if s.lotsFeasible(p, nd, x, tol) {
			trueObj, active := s.trueObjective(p, x, tol)
			if trueObj < best.Objective-1e-12 {
				xCopy := make([]float64, len(x))
				copy(xCopy, x)
				best = &Solution{Status: StatusOptimal, X: xCopy, Active: active, Objective: trueObj}
			}
		}

		branchIdx := s.pickBranch(p, nd, x, tol)
		if branchIdx < 0 {
			continue // activation decisions fully resolved at this node
		}
		if bound >= best.Objective-1e-9 {
			continue
		}
		// Depth-first, exploring the "selected" child first: it usually stays
		// close to the relaxation point and tightens the incumbent early.
		stack = append(stack, nd.child(branchIdx, stateOut))
		stack = append(stack, nd.child(branchIdx, stateIn))
	}

	best.Nodes = nodes
	if hitLimit {
		// Even with an incumbent in hand, optimality was not proven.
		best.Status = StatusNodeLimit
	}
	return best, nil
}

// nodeRelaxation builds the continuous relaxation of a node: bounds per
// variable state, the relaxed activation cost (cost * x/upper for free
// variables, since the relaxed indicator is z = x/upper), and the constant
// cost of the funds already forced in.
func (s *MIQPSolver) nodeRelaxation(p *Problem, nd *node) (region, []float64, float64) {
	lower := make([]float64, p.N)
	upper := make([]float64, p.N)
	lin := make([]float64, p.N)
	constant := 0.0
	for i := 0; i < p.N; i++ {
		switch nd.states[i] {
		case stateOut:
			lower[i], upper[i] = 0, 0
		case stateIn:
			lower[i], upper[i] = p.MinAlloc[i], p.Upper[i]
			constant += p.ActivationCost[i]
		default:
			lower[i], upper[i] = 0, p.Upper[i]
			if p.ActivationCost[i] > 0 && p.Upper[i] > 0 {
				lin[i] = p.ActivationCost[i] / p.Upper[i]
			}
		}
	}
	return region{lower: lower, upper: upper, groups: p.Groups}, lin, constant
}

// lotsFeasible reports whether every free variable sits at zero or above its
// minimum lot.
func (s *MIQPSolver) lotsFeasible(p *Problem, nd *node, x []float64, tol float64) bool {
	for i := 0; i < p.N; i++ {
		if nd.states[i] != stateFree {
			continue
		}
		if x[i] > tol && x[i] < p.MinAlloc[i]-tol {
			return false
		}
	}
	return true
}

// trueObjective charges the quadratic terms at x plus the activation cost of
// every fund with a positive allocation.
func (s *MIQPSolver) trueObjective(p *Problem, x []float64, tol float64) (float64, []bool) {
	obj := qpObjective(p.Quadratic, nil, x)
	active := make([]bool, p.N)
	for i := 0; i < p.N; i++ {
		if x[i] > tol {
			active[i] = true
			obj += p.ActivationCost[i]
		}
	}
	return obj, active
}

// pickBranch selects the free variable whose activation decision is least
// resolved at the relaxation point, or -1 when all decisions are resolved.
// Minimum-lot violations always outrank fractional activation indicators.
func (s *MIQPSolver) pickBranch(p *Problem, nd *node, x []float64, tol float64) int {
	bestIdx := -1
	bestScore := 0.0
	for i := 0; i < p.N; i++ {
		if nd.states[i] != stateFree || x[i] <= tol {
			continue
		}
		var score float64
		switch {
		case x[i] < p.MinAlloc[i]-tol:
			score = 1.0 + math.Min(x[i], p.MinAlloc[i]-x[i])
		case p.ActivationCost[i] > 0 && p.Upper[i] > 0 && x[i] < p.Upper[i]-tol:
			frac := x[i] / p.Upper[i]
			score = p.ActivationCost[i] * math.Min(frac, 1-frac)
		}
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	return bestIdx
}
