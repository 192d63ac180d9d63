package opt

import (
	"fmt"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// Mayfly is the stochastic evolutionary strategy, wrapping the external
// mayfly optimizer. The search runs in the unit cube and is rescaled onto
// the bounds per dimension (the library itself only takes scalar bounds).
//
// A run that finishes having spent fewer than roughly 30·m² objective
// evaluations is restarted with doubled population size, keeping the best
// result across restarts. Premature convergence of small populations is the
// usual failure mode of this family; the 30·m² level is vendor folklore, not
// a derived bound.
type Mayfly struct {
	MaxIterations int
	PopSize       int
	Seed          int64
}

// NewMayfly creates an evolutionary strategy adapter.
func NewMayfly(maxIters, popSize int, seed int64) *Mayfly {
	return &Mayfly{MaxIterations: maxIters, PopSize: popSize, Seed: seed}
}

func (m *Mayfly) Minimize(obj *Objective, x0 []float64, budget Budget) (*Result, error) {
	if obj.Lower == nil || obj.Upper == nil {
		return nil, fmt.Errorf("opt: evolutionary search requires lower and upper bounds")
	}

	dim := len(x0)
	scaled := make([]float64, dim)
	evals := 0
	eval := func(u []float64) float64 {
		for i := range u {
			scaled[i] = obj.Lower[i] + u[i]*(obj.Upper[i]-obj.Lower[i])
		}
		evals++
		return obj.Func(scaled)
	}

	iters := m.MaxIterations
	if iters <= 0 {
		iters = 200
	}
	if budget.MaxIterations > 0 && budget.MaxIterations < iters {
		iters = budget.MaxIterations
	}
	pop := m.PopSize
	if pop < 20 {
		pop = 20 // mayfly v0.1.0 needs at least 20
	}

	minEvals := 30 * dim * dim
	res := &Result{}
	found := false

	for run := 0; ; run++ {
		config := mayfly.NewDefaultConfig()
		config.ObjectiveFunc = eval
		config.ProblemSize = dim
		config.MaxIterations = iters
		config.NPop = pop
		config.LowerBound = 0
		config.UpperBound = 1
		config.Rand = rand.New(rand.NewSource(m.Seed + int64(run)))

		result, err := mayfly.Optimize(config)
		if err != nil {
			if found {
				res.Evaluations = evals
				return res, nil
			}
			return nil, fmt.Errorf("opt: mayfly: %w", err)
		}

		if !found || result.GlobalBest.Cost < res.F {
			x := make([]float64, dim)
			for i, u := range result.GlobalBest.Position {
				x[i] = obj.Lower[i] + u*(obj.Upper[i]-obj.Lower[i])
			}
			res.X = x
			res.F = result.GlobalBest.Cost
			found = true
		}

		if evals >= minEvals {
			break
		}
		if budget.MaxEvaluations > 0 && evals >= budget.MaxEvaluations {
			break
		}
		pop *= 2
	}

	res.Evaluations = evals
	return res, nil
}
