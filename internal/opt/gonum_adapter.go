package opt

import (
	"gonum.org/v1/gonum/optimize"
)

// NelderMead is the unconstrained direct pattern search strategy: a
// derivative-free simplex search over coordinate directions.
type NelderMead struct{}

func (NelderMead) Minimize(obj *Objective, x0 []float64, budget Budget) (*Result, error) {
	p := optimize.Problem{Func: obj.Func}
	return minimizeGonum(p, x0, budget, &optimize.NelderMead{})
}

// ConjugateVariant selects the conjugate-direction update formula.
type ConjugateVariant int

const (
	FletcherReeves ConjugateVariant = iota
	PolakRibiere
)

// Conjugate is the gradient-based conjugate-direction strategy. It requires
// an objective with an analytic gradient and does not enforce bounds.
type Conjugate struct {
	Variant ConjugateVariant
}

func (c Conjugate) Minimize(obj *Objective, x0 []float64, budget Budget) (*Result, error) {
	var variant optimize.CGVariant
	switch c.Variant {
	case PolakRibiere:
		variant = &optimize.PolakRibierePolyak{}
	default:
		variant = &optimize.FletcherReeves{}
	}
	p := optimize.Problem{Func: obj.Func, Grad: obj.Grad}
	return minimizeGonum(p, x0, budget, &optimize.CG{Variant: variant})
}

// minimizeGonum runs a gonum optimize method and translates its outcome:
// budget-limited statuses surface as ErrExhausted alongside the best point.
func minimizeGonum(p optimize.Problem, x0 []float64, budget Budget, method optimize.Method) (*Result, error) {
	settings := &optimize.Settings{
		MajorIterations: budget.MaxIterations,
		FuncEvaluations: budget.MaxEvaluations,
	}

	r, err := optimize.Minimize(p, x0, settings, method)
	if r == nil {
		return nil, err
	}
	res := &Result{X: r.X, F: r.F, Evaluations: r.Stats.FuncEvaluations}
	if err != nil {
		return res, err
	}
	switch r.Status {
	case optimize.IterationLimit, optimize.FunctionEvaluationLimit, optimize.RuntimeLimit:
		return res, ErrExhausted
	}
	return res, nil
}
