package opt

import "errors"

// ErrExhausted reports that a strategy ran out of its iteration or
// evaluation budget before converging.
var ErrExhausted = errors.New("opt: search budget exhausted")

// ErrDecomposition reports a numerical breakdown inside a strategy's linear
// algebra (a rank-deficient or non-factorizable internal system).
var ErrDecomposition = errors.New("opt: decomposition failed")

// Objective is the function a strategy minimizes.
type Objective struct {
	// Func evaluates the objective at x.
	Func func(x []float64) float64
	// Grad fills grad with the gradient at x. Nil for derivative-free use.
	Grad func(grad, x []float64)
	// Lower and Upper are per-coordinate bounds. Nil for unbounded use;
	// bounded strategies require both sides.
	Lower, Upper []float64
}

// Budget limits one strategy run. Zero fields mean no limit.
type Budget struct {
	MaxIterations  int
	MaxEvaluations int
}

// Result is the outcome of one strategy run.
type Result struct {
	X           []float64
	F           float64
	Evaluations int
}

// Strategy is a search strategy: a pure minimization run from an initial
// guess under a budget. Implementations are safe to reuse across runs.
type Strategy interface {
	Minimize(obj *Objective, x0 []float64, budget Budget) (*Result, error)
}
