package fit

import "math"

// minPoissonMean guards the log against non-positive model values.
const minPoissonMean = 1e-10

// poissonObjective is the negative Poisson log-likelihood of a model against
// observed counts, with constant ln(k!) terms dropped:
//
//	-ln L = Σᵢ fᵢ - kᵢ·ln(fᵢ)
//
// The search strategies work in the fitted-coefficient subspace; the
// objective scatters a search point into the full coefficient vector before
// evaluating the model. Negative observed counts are clipped to zero when
// the objective is built, since the Poisson model is undefined below zero.
type poissonObjective struct {
	model   GradientModel
	counts  []float64
	a       []float64
	indices []int
	dyda    []float64
}

func newPoissonObjective(model GradientModel, y, a []float64) *poissonObjective {
	counts := make([]float64, len(y))
	for i, v := range y {
		if v > 0 {
			counts[i] = v
		}
	}
	indices := model.GradientIndices()
	return &poissonObjective{
		model:   model,
		counts:  counts,
		a:       append([]float64(nil), a...),
		indices: indices,
		dyda:    make([]float64, len(indices)),
	}
}

func (p *poissonObjective) scatter(x []float64) {
	for j, idx := range p.indices {
		p.a[idx] = x[j]
	}
}

func (p *poissonObjective) value(x []float64) float64 {
	p.scatter(x)
	p.model.Initialise(p.a)
	var ll float64
	for i, k := range p.counts {
		u := p.model.Eval(i)
		if u < minPoissonMean {
			u = minPoissonMean
		}
		ll += u
		if k > 0 {
			ll -= k * math.Log(u)
		}
	}
	return ll
}

func (p *poissonObjective) gradient(grad, x []float64) {
	p.scatter(x)
	p.model.Initialise(p.a)
	for j := range grad {
		grad[j] = 0
	}
	for i, k := range p.counts {
		u := p.model.EvalGradient(i, p.dyda)
		if u < minPoissonMean {
			u = minPoissonMean
		}
		w := 1 - k/u
		for j := range grad {
			grad[j] += w * p.dyda[j]
		}
	}
}
