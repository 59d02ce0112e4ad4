// Package ilp solves small pure-integer linear programs of the form
//
//	minimize    c·x
//	subject to  lower_i <= a_i·x <= upper_i   for every row i
//	            x_j >= 0, x_j integer
//
// by depth-first branch and bound over the LP relaxation, which is solved with
// the gonum simplex implementation. Costs must be non-negative, so every
// relaxation is bounded below by zero.
package ilp

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const (
	defaultMaxNodes  = 200_000
	simplexTolerance = 1e-10
	integralityTol   = 1e-6
	feasibilityTol   = 1e-7
	objectiveEpsilon = 1e-9
)

// ErrInvalidProblem is returned when the problem dimensions or coefficients are malformed.
var ErrInvalidProblem = errors.New("ilp: invalid problem")

// Problem is a pure-integer program over len(Cost) variables.
// Use math.Inf(-1) / math.Inf(1) for absent row bounds.
type Problem struct {
	Cost  []float64
	Rows  [][]float64
	Lower []float64
	Upper []float64
}

// Status describes how the search ended.
type Status int

const (
	// StatusOptimal means the returned solution is proven optimal.
	StatusOptimal Status = iota
	// StatusInfeasible means no integer point satisfies the constraints.
	StatusInfeasible
	// StatusNodeLimit means the node budget ran out before optimality was proven.
	StatusNodeLimit
	// StatusCancelled means the context ended before optimality was proven.
	StatusCancelled
	// StatusNumericFailure means relaxations failed numerically and no solution was found.
	StatusNumericFailure
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusNodeLimit:
		return "node_limit"
	case StatusCancelled:
		return "cancelled"
	case StatusNumericFailure:
		return "numeric_failure"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Solution is the outcome of Solve. X holds the best integer point found, if
// any, even when Status is not optimal.
type Solution struct {
	Status          Status
	X               []int
	Objective       float64
	Nodes           int
	NumericFailures int
}

// Option configures Solve.
type Option func(*settings)

type settings struct {
	maxNodes int
}

// WithMaxNodes caps the number of relaxations solved. Values <= 0 keep the default.
func WithMaxNodes(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxNodes = n
		}
	}
}

type node struct {
	lo    []float64
	hi    []float64
	bound float64
}

// Solve runs branch and bound. The context is checked between nodes.
func Solve(ctx context.Context, p Problem, opts ...Option) (Solution, error) {
	cfg := settings{maxNodes: defaultMaxNodes}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := p.validate(); err != nil {
		return Solution{}, err
	}

	n := len(p.Cost)
	root := node{
		lo:    make([]float64, n),
		hi:    make([]float64, n),
		bound: math.Inf(-1),
	}
	for j := range root.hi {
		root.hi[j] = math.Inf(1)
	}

	sol := Solution{Status: StatusInfeasible, Objective: math.Inf(1)}
	stack := []node{root}

	for len(stack) > 0 {
		if ctx.Err() != nil {
			sol.Status = StatusCancelled
			return sol, nil
		}
		if sol.Nodes >= cfg.maxNodes {
			sol.Status = StatusNodeLimit
			return sol, nil
		}

		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur.bound >= sol.Objective-objectiveEpsilon {
			continue
		}

		sol.Nodes++
		obj, x, err := p.relax(cur.lo, cur.hi)
		if err != nil {
			if !errors.Is(err, lp.ErrInfeasible) {
				sol.NumericFailures++
			}
			continue
		}
		if obj >= sol.Objective-objectiveEpsilon {
			continue
		}

		j := mostFractional(x)
		if j < 0 {
			xi := roundAll(x)
			if p.feasible(xi) {
				if cost := p.objective(xi); cost < sol.Objective-objectiveEpsilon {
					sol.Objective = cost
					sol.X = xi
				}
				continue
			}
			// Rounding broke a row, so split on the residue instead.
			j = largestResidue(x, cur.lo, cur.hi)
			if j < 0 {
				sol.NumericFailures++
				continue
			}
		}

		floor := math.Floor(x[j])
		up := node{lo: cloneFloats(cur.lo), hi: cloneFloats(cur.hi), bound: obj}
		up.lo[j] = floor + 1
		down := node{lo: cloneFloats(cur.lo), hi: cloneFloats(cur.hi), bound: obj}
		down.hi[j] = floor
		// down is explored first
		stack = append(stack, up, down)
	}

	switch {
	case sol.X != nil:
		sol.Status = StatusOptimal
	case sol.NumericFailures > 0:
		sol.Status = StatusNumericFailure
	default:
		sol.Status = StatusInfeasible
	}
	return sol, nil
}

func (p Problem) validate() error {
	n := len(p.Cost)
	m := len(p.Rows)
	if len(p.Lower) != m || len(p.Upper) != m {
		return fmt.Errorf("%w: %d rows but %d lower and %d upper bounds", ErrInvalidProblem, m, len(p.Lower), len(p.Upper))
	}
	for j, c := range p.Cost {
		if c < 0 || math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("%w: cost[%d] = %v must be finite and non-negative", ErrInvalidProblem, j, c)
		}
	}
	for i, row := range p.Rows {
		if len(row) != n {
			return fmt.Errorf("%w: row %d has %d coefficients, want %d", ErrInvalidProblem, i, len(row), n)
		}
		for j, a := range row {
			if math.IsNaN(a) || math.IsInf(a, 0) {
				return fmt.Errorf("%w: row %d coefficient %d is not finite", ErrInvalidProblem, i, j)
			}
		}
		if math.IsNaN(p.Lower[i]) || math.IsNaN(p.Upper[i]) || p.Lower[i] > p.Upper[i] {
			return fmt.Errorf("%w: row %d bounds [%v, %v]", ErrInvalidProblem, i, p.Lower[i], p.Upper[i])
		}
	}
	return nil
}

// relax solves the LP relaxation with per-variable bounds lo <= x <= hi.
// Variables are shifted to y = x - lo so that y >= 0, and every inequality
// gets its own slack column, which keeps A at full row rank.
func (p Problem) relax(lo, hi []float64) (float64, []float64, error) {
	n := len(p.Cost)

	bounded := make([]int, 0, len(p.Rows))
	for i := range p.Rows {
		if !math.IsInf(p.Lower[i], -1) || !math.IsInf(p.Upper[i], 1) {
			bounded = append(bounded, i)
		}
	}

	// Columns that appear in no bounded row can sit at their lower bound.
	active := make([]int, 0, n)
	for j := 0; j < n; j++ {
		if hi[j] < lo[j] {
			return 0, nil, lp.ErrInfeasible
		}
		for _, i := range bounded {
			if p.Rows[i][j] != 0 {
				active = append(active, j)
				break
			}
		}
	}

	type constraint struct {
		coeffs []float64 // over active columns
		slack  float64   // +1 for <=, -1 for >=
		rhs    float64
	}
	constraints := make([]constraint, 0, 2*len(bounded)+len(active))

	for _, i := range bounded {
		row := p.Rows[i]
		shift := 0.0
		for j, v := range row {
			shift += v * lo[j]
		}
		coeffs := make([]float64, len(active))
		for k, j := range active {
			coeffs[k] = row[j]
		}
		if !math.IsInf(p.Lower[i], -1) {
			constraints = append(constraints, constraint{coeffs: coeffs, slack: -1, rhs: p.Lower[i] - shift})
		}
		if !math.IsInf(p.Upper[i], 1) {
			constraints = append(constraints, constraint{coeffs: coeffs, slack: 1, rhs: p.Upper[i] - shift})
		}
	}
	for k, j := range active {
		if math.IsInf(hi[j], 1) {
			continue
		}
		coeffs := make([]float64, len(active))
		coeffs[k] = 1
		constraints = append(constraints, constraint{coeffs: coeffs, slack: 1, rhs: hi[j] - lo[j]})
	}

	x := cloneFloats(lo)
	if len(active) == 0 || len(constraints) == 0 {
		// Nothing to optimise: every active variable stays at its lower bound.
		for _, c := range constraints {
			if (c.slack < 0 && c.rhs > feasibilityTol) || (c.slack > 0 && c.rhs < -feasibilityTol) {
				return 0, nil, lp.ErrInfeasible
			}
		}
		return p.objectiveFloat(x), x, nil
	}

	rows := len(constraints)
	cols := len(active) + rows
	a := mat.NewDense(rows, cols, nil)
	b := make([]float64, rows)
	for r, c := range constraints {
		sign := 1.0
		if c.rhs < 0 {
			sign = -1
		}
		for k, v := range c.coeffs {
			a.Set(r, k, sign*v)
		}
		a.Set(r, len(active)+r, sign*c.slack)
		b[r] = sign * c.rhs
	}
	cost := make([]float64, cols)
	for k, j := range active {
		cost[k] = p.Cost[j]
	}

	_, y, err := lp.Simplex(cost, a, b, simplexTolerance, nil)
	if err != nil {
		return 0, nil, err
	}
	for k, j := range active {
		x[j] = lo[j] + y[k]
	}
	return p.objectiveFloat(x), x, nil
}

func (p Problem) feasible(x []int) bool {
	for i, row := range p.Rows {
		sum := 0.0
		for j, a := range row {
			sum += a * float64(x[j])
		}
		if sum < p.Lower[i]-feasibilityTol || sum > p.Upper[i]+feasibilityTol {
			return false
		}
	}
	return true
}

func (p Problem) objective(x []int) float64 {
	total := 0.0
	for j, c := range p.Cost {
		total += c * float64(x[j])
	}
	return total
}

func (p Problem) objectiveFloat(x []float64) float64 {
	total := 0.0
	for j, c := range p.Cost {
		total += c * x[j]
	}
	return total
}

// mostFractional returns the index of the variable farthest from an integer,
// or -1 when all are integral. Ties go to the lowest index.
func mostFractional(x []float64) int {
	best := -1
	bestDist := integralityTol
	for j, v := range x {
		dist := math.Abs(v - math.Round(v))
		if dist > bestDist {
			best = j
			bestDist = dist
		}
	}
	return best
}

// largestResidue returns the index of the non-integral variable with the
// largest distance to an integer whose split tightens both children, or -1.
func largestResidue(x, lo, hi []float64) int {
	best := -1
	bestDist := 0.0
	for j, v := range x {
		f := math.Floor(v)
		if f < lo[j] || f+1 > hi[j] {
			continue
		}
		if dist := math.Abs(v - math.Round(v)); dist > bestDist {
			best = j
			bestDist = dist
		}
	}
	return best
}

func roundAll(x []float64) []int {
	out := make([]int, len(x))
	for j, v := range x {
		out[j] = int(math.Round(v))
		if out[j] < 0 {
			out[j] = 0
		}
	}
	return out
}

func cloneFloats(src []float64) []float64 {
	out := make([]float64, len(src))
	copy(out, src)
	return out
}
