package solver

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func identityTerm(n int, target []float64, weight float64) QuadTerm {
	a := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		a.Set(i, i, 1)
	}
	return QuadTerm{Weight: weight, A: a, B: mat.NewVecDense(n, target)}
}

func TestProjectCappedSimplex(t *testing.T) {
	v := []float64{0.9, 0.9, 0.9}
	lower := []float64{0, 0, 0}
	upper := []float64{1, 1, 1}
	projectCappedSimplex(v, []int{0, 1, 2}, lower, upper, 1.0)

	sum := v[0] + v[1] + v[2]
	assert.InDelta(t, 1.0, sum, 1e-9)
	for _, x := range v {
		assert.InDelta(t, 1.0/3.0, x, 1e-9, "symmetric input should project to uniform")
	}
}

func TestProjectCappedSimplex_RespectsBounds(t *testing.T) {
	v := []float64{2.0, -1.0, 0.4}
	lower := []float64{0, 0, 0}
	upper := []float64{0.5, 1, 1}
	projectCappedSimplex(v, []int{0, 1, 2}, lower, upper, 1.0)

	assert.InDelta(t, 1.0, v[0]+v[1]+v[2], 1e-9)
	for i := range v {
		assert.GreaterOrEqual(t, v[i], lower[i]-1e-12)
		assert.LessOrEqual(t, v[i], upper[i]+1e-12)
	}
	assert.InDelta(t, 0.5, v[0], 1e-9, "largest coordinate should hit its cap")
}

func TestQPSolve_TracksTarget(t *testing.T) {
	target := []float64{0.25, 0.35, 0.40}
	reg := region{
		lower:  []float64{0, 0, 0},
		upper:  []float64{1, 1, 1},
		groups: []Group{{Indices: []int{0, 1, 2}, Sum: 1.0}},
	}
	x, obj := qpSolve([]QuadTerm{identityTerm(3, target, 1.0)}, make([]float64, 3), reg)

	for i := range target {
		assert.InDelta(t, target[i], x[i], 1e-6)
	}
	assert.InDelta(t, 0.0, obj, 1e-9)
}

func TestGreedyLinear_FillsCheapestFirst(t *testing.T) {
	reg := region{
		lower:  []float64{0, 0, 0},
		upper:  []float64{0.5, 0.5, 0.5},
		groups: []Group{{Indices: []int{0, 1, 2}, Sum: 1.0}},
	}
	x := greedyLinear([]float64{3, 1, 2}, reg)

	assert.InDelta(t, 0.0, x[0], 1e-12)
	assert.InDelta(t, 0.5, x[1], 1e-12)
	assert.InDelta(t, 0.5, x[2], 1e-12)
}

func TestSolve_PureQuadratic(t *testing.T) {
	target := []float64{0.25, 0.35, 0.40}
	p := &Problem{
		N:         3,
		Quadratic: []QuadTerm{identityTerm(3, target, 1.0)},
		Groups:    []Group{{Indices: []int{0, 1, 2}, Sum: 1.0}},
	}
	sol, err := NewMIQPSolver().Solve(p, Options{})

	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	for i := range target {
		assert.InDelta(t, target[i], sol.X[i], 1e-4)
	}
}

func TestSolve_ActivationCostDrivesSparsity(t *testing.T) {
	p := &Problem{
		N:              3,
		ActivationCost: []float64{1, 1, 1},
		Groups:         []Group{{Indices: []int{0, 1, 2}, Sum: 1.0}},
	}
	sol, err := NewMIQPSolver().Solve(p, Options{})

	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, 1.0, sol.Objective, 1e-9, "exactly one activation cost should be paid")

	activeCount := 0
	for i, active := range sol.Active {
		if active {
			activeCount++
			assert.InDelta(t, 1.0, sol.X[i], 1e-6)
		} else {
			assert.InDelta(t, 0.0, sol.X[i], 1e-6)
		}
	}
	assert.Equal(t, 1, activeCount)
}

func TestSolve_MinimumLotForcesExit(t *testing.T) {
	// Tracking pulls toward {0.05, 0.95} but the 0.10 minimum lot makes a
	// 0.05 position illegal: the solver must either drop it or lift it.
	target := []float64{0.05, 0.95}
	p := &Problem{
		N:         2,
		MinAlloc:  []float64{0.10, 0.10},
		Quadratic: []QuadTerm{identityTerm(2, target, 1.0)},
		Groups:    []Group{{Indices: []int{0, 1}, Sum: 1.0}},
	}
	sol, err := NewMIQPSolver().Solve(p, Options{})

	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	for i := range sol.X {
		ok := sol.X[i] < 1e-6 || sol.X[i] >= 0.10-1e-6
		assert.True(t, ok, "allocation %d = %f violates the minimum lot", i, sol.X[i])
	}
	assert.InDelta(t, 1.0, sol.X[0]+sol.X[1], 1e-6)
	// Dropping the small position costs (0.05)^2 + (0.05)^2; lifting it to
	// 0.10 costs (0.05)^2 * 2 as well, so either answer is optimal at 0.005.
	assert.InDelta(t, 0.005, sol.Objective, 1e-4)
}

func TestSolve_InfeasibleGroup(t *testing.T) {
	p := &Problem{
		N:      2,
		Upper:  []float64{0.3, 0.3},
		Groups: []Group{{Indices: []int{0, 1}, Sum: 1.0}},
	}
	sol, err := NewMIQPSolver().Solve(p, Options{})

	require.NoError(t, err)
	assert.Equal(t, StatusInfeasible, sol.Status)
}

func TestSolve_InconsistentTotalSum(t *testing.T) {
	total := 2.0
	p := &Problem{
		N:        2,
		Groups:   []Group{{Indices: []int{0, 1}, Sum: 1.0}},
		TotalSum: &total,
	}
	_, err := NewMIQPSolver().Solve(p, Options{})
	assert.Error(t, err)
}

func TestSolve_MultiGroup(t *testing.T) {
	// Two accounts holding disjoint funds, each tracking half the portfolio.
	target := []float64{0.2, 0.3, 0.1, 0.4}
	p := &Problem{
		N:         4,
		Quadratic: []QuadTerm{identityTerm(4, target, 1.0)},
		Groups: []Group{
			{Indices: []int{0, 1}, Sum: 0.5},
			{Indices: []int{2, 3}, Sum: 0.5},
		},
		TotalSum: ptrFloat(1.0),
	}
	sol, err := NewMIQPSolver().Solve(p, Options{})

	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, 0.5, sol.X[0]+sol.X[1], 1e-6)
	assert.InDelta(t, 0.5, sol.X[2]+sol.X[3], 1e-6)
	for i := range target {
		assert.InDelta(t, target[i], sol.X[i], 1e-4)
	}
}

func TestSolve_ValidatesShapes(t *testing.T) {
	p := &Problem{
		N:         2,
		Quadratic: []QuadTerm{{Weight: 1, A: mat.NewDense(1, 3, nil), B: mat.NewVecDense(1, nil)}},
	}
	_, err := NewMIQPSolver().Solve(p, Options{})
	assert.Error(t, err)
}

func TestTrueObjective_CountsActiveFunds(t *testing.T) {
	p := &Problem{
		N:              3,
		ActivationCost: []float64{1, 1, 1},
		MinAlloc:       make([]float64, 3),
		Upper:          []float64{1, 1, 1},
	}
	obj, active := NewMIQPSolver().trueObjective(p, []float64{0.5, 0.5, 0.0}, 1e-6)

	assert.InDelta(t, 2.0, obj, 1e-12)
	assert.Equal(t, []bool{true, true, false}, active)
}

func TestSolve_NaNFreeSolution(t *testing.T) {
	target := []float64{0.5, 0.5}
	p := &Problem{
		N:         2,
		Quadratic: []QuadTerm{identityTerm(2, target, 1.0)},
		Groups:    []Group{{Indices: []int{0, 1}, Sum: 1.0}},
	}
	sol, err := NewMIQPSolver().Solve(p, Options{})

	require.NoError(t, err)
	for _, x := range sol.X {
		assert.False(t, math.IsNaN(x))
	}
}

func ptrFloat(v float64) *float64 { return &v }
