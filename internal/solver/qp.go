package solver

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// region is the continuous feasible set of one branch-and-bound node: box
// bounds plus the sum-equality groups.
type region struct {
	lower  []float64
	upper  []float64
	groups []Group
}

// checkFeasible verifies every group can reach its sum within the box bounds.
func (r *region) checkFeasible(tol float64) error {
	for gi, g := range r.groups {
		var lo, hi float64
		for _, i := range g.Indices {
			lo += r.lower[i]
			hi += r.upper[i]
		}
		if g.Sum < lo-tol || g.Sum > hi+tol {
			return fmt.Errorf("group %d sum %.8f outside attainable range [%.8f, %.8f]", gi, g.Sum, lo, hi)
		}
	}
	for i := range r.lower {
		if r.lower[i] > r.upper[i]+tol {
			return fmt.Errorf("variable %d has empty bound interval", i)
		}
	}
	return nil
}

// project returns the Euclidean projection of v onto the region. Groups are
// disjoint, so each group projects independently onto its capped simplex
// slice; ungrouped variables are clamped to their box.
func (r *region) project(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	grouped := make([]bool, len(v))
	for _, g := range r.groups {
		projectCappedSimplex(out, g.Indices, r.lower, r.upper, g.Sum)
		for _, i := range g.Indices {
			grouped[i] = true
		}
	}
	for i := range out {
		if !grouped[i] {
			out[i] = clamp(out[i], r.lower[i], r.upper[i])
		}
	}
	return out
}

// projectCappedSimplex projects v[idx] onto {x : sum(x) = target, lower <= x
// <= upper} in place. The projection is clamp(v_i - lambda) for the unique
// dual value lambda located by bisection: the clamped sum is monotone
// non-increasing in lambda.
func projectCappedSimplex(v []float64, idx []int, lower, upper []float64, target float64) {
	lambdaLo, lambdaHi := math.Inf(1), math.Inf(-1)
	for _, i := range idx {
		lambdaLo = math.Min(lambdaLo, v[i]-upper[i])
		lambdaHi = math.Max(lambdaHi, v[i]-lower[i])
	}
	sumAt := func(lambda float64) float64 {
		s := 0.0
		for _, i := range idx {
			s += clamp(v[i]-lambda, lower[i], upper[i])
		}
		return s
	}
	// Clamp target into the attainable range; callers check feasibility first,
	// this only absorbs tolerance-level slack.
	if target >= sumAt(lambdaLo) {
		for _, i := range idx {
			v[i] = upper[i]
		}
		return
	}
	if target <= sumAt(lambdaHi) {
		for _, i := range idx {
			v[i] = lower[i]
		}
		return
	}
	for iter := 0; iter < 100; iter++ {
		mid := 0.5 * (lambdaLo + lambdaHi)
		if sumAt(mid) > target {
			lambdaLo = mid
		} else {
			lambdaHi = mid
		}
	}
	lambda := 0.5 * (lambdaLo + lambdaHi)
	for _, i := range idx {
		v[i] = clamp(v[i]-lambda, lower[i], upper[i])
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// qpObjective evaluates sum_k w_k ||A_k x - b_k||^2 + lin . x.
func qpObjective(quads []QuadTerm, lin []float64, x []float64) float64 {
	obj := 0.0
	xv := mat.NewVecDense(len(x), x)
	for _, q := range quads {
		if q.Weight == 0 {
			continue
		}
		rows, _ := q.A.Dims()
		r := mat.NewVecDense(rows, nil)
		r.MulVec(q.A, xv)
		r.SubVec(r, q.B)
		obj += q.Weight * mat.Dot(r, r)
	}
	for i, c := range lin {
		obj += c * x[i]
	}
	return obj
}

// qpGradient evaluates the gradient 2 sum_k w_k A_k^T (A_k x - b_k) + lin.
func qpGradient(quads []QuadTerm, lin []float64, x []float64, grad []float64) {
	copy(grad, lin)
	xv := mat.NewVecDense(len(x), x)
	gv := mat.NewVecDense(len(x), nil)
	for _, q := range quads {
		if q.Weight == 0 {
			continue
		}
		rows, _ := q.A.Dims()
		r := mat.NewVecDense(rows, nil)
		r.MulVec(q.A, xv)
		r.SubVec(r, q.B)
		gv.MulVec(q.A.T(), r)
		for i := 0; i < len(x); i++ {
			grad[i] += 2 * q.Weight * gv.AtVec(i)
		}
	}
}

// lipschitzBound returns an upper bound on the gradient Lipschitz constant,
// 2 sum_k w_k ||A_k||_F^2. The Frobenius norm dominates the spectral norm, so
// the 1/L step size is always safe.
func lipschitzBound(quads []QuadTerm) float64 {
	total := 0.0
	for _, q := range quads {
		if q.Weight == 0 {
			continue
		}
		rows, cols := q.A.Dims()
		frobSq := 0.0
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				a := q.A.At(i, j)
				frobSq += a * a
			}
		}
		total += 2 * q.Weight * frobSq
	}
	return total
}

const (
	qpMaxIter  = 20000
	qpStopTol  = 1e-12
	qpDescTiny = 1e-15
)

// qpSolve minimizes the convex objective over the region.
//
// With quadratic terms present it runs accelerated projected gradient (FISTA
// with function-value restart, falling back to a plain descent step whenever
// the accelerated step would increase the objective). A purely linear
// objective is solved exactly with a greedy fill per group.
func qpSolve(quads []QuadTerm, lin []float64, reg region) ([]float64, float64) {
	n := len(reg.lower)
	l := lipschitzBound(quads)
	if l == 0 {
		x := greedyLinear(lin, reg)
		return x, qpObjective(quads, lin, x)
	}

	// Start from the projected midpoint of the box.
	start := make([]float64, n)
	for i := range start {
		start[i] = 0.5 * (reg.lower[i] + reg.upper[i])
	}
	x := reg.project(start)
	y := make([]float64, n)
	copy(y, x)
	grad := make([]float64, n)
	step := 1.0 / l
	fx := qpObjective(quads, lin, x)
	t := 1.0

	for iter := 0; iter < qpMaxIter; iter++ {
		qpGradient(quads, lin, y, grad)
		cand := make([]float64, n)
		for i := range cand {
			cand[i] = y[i] - step*grad[i]
		}
		cand = reg.project(cand)
		fCand := qpObjective(quads, lin, cand)

		if fCand > fx+qpDescTiny {
			// Momentum overshot: restart from the last iterate with a plain
			// projected gradient step, which cannot increase the objective.
			qpGradient(quads, lin, x, grad)
			for i := range cand {
				cand[i] = x[i] - step*grad[i]
			}
			cand = reg.project(cand)
			fCand = qpObjective(quads, lin, cand)
			t = 1.0
		}

		tNext := 0.5 * (1 + math.Sqrt(1+4*t*t))
		maxDiff := 0.0
		for i := range cand {
			y[i] = cand[i] + (t-1)/tNext*(cand[i]-x[i])
			maxDiff = math.Max(maxDiff, math.Abs(cand[i]-x[i]))
		}
		copy(x, cand)
		fx = fCand
		t = tNext

		if maxDiff < qpStopTol {
			break
		}
	}
	return x, fx
}

// greedyLinear minimizes lin . x over the region exactly: each group starts at
// its lower bounds and distributes the remaining mass to the cheapest
// variables first; ungrouped variables sit at whichever bound is cheaper.
func greedyLinear(lin []float64, reg region) []float64 {
	n := len(reg.lower)
	x := make([]float64, n)
	grouped := make([]bool, n)
	for _, g := range reg.groups {
		remaining := g.Sum
		for _, i := range g.Indices {
			x[i] = reg.lower[i]
			remaining -= reg.lower[i]
			grouped[i] = true
		}
		order := make([]int, len(g.Indices))
		copy(order, g.Indices)
		sort.SliceStable(order, func(a, b int) bool {
			return lin[order[a]] < lin[order[b]]
		})
		for _, i := range order {
			if remaining <= 0 {
				break
			}
			add := math.Min(remaining, reg.upper[i]-x[i])
			x[i] += add
			remaining -= add
		}
	}
	for i := 0; i < n; i++ {
		if grouped[i] {
			continue
		}
		if lin[i] > 0 {
			x[i] = reg.lower[i]
		} else {
			x[i] = reg.upper[i]
		}
	}
	return x
}
