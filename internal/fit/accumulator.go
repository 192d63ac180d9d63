package fit

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Accumulator computes the Gauss-Newton normal-equation components: given a
// model, coefficients and observed data it fills the approximate Hessian
// (alpha) and gradient vector (beta) and returns the residual sum of squares.
type Accumulator struct {
	dyda []float64
}

func (ac *Accumulator) resize(m int) {
	if len(ac.dyda) != m {
		ac.dyda = make([]float64, m)
	}
}

// Compute initialises the model at a and accumulates alpha, beta and the sum
// of squared residuals over y. It returns ok=false when any computed gradient
// is NaN, in which case alpha and beta must not be trusted.
func (ac *Accumulator) Compute(model GradientModel, a, y []float64, alpha *mat.SymDense, beta []float64) (ssq float64, ok bool) {
	m := len(beta)
	ac.resize(m)

	for j := 0; j < m; j++ {
		beta[j] = 0
		for k := j; k < m; k++ {
			alpha.SetSym(j, k, 0)
		}
	}

	model.Initialise(a)
	ok = true
	for i := range y {
		value := model.EvalGradient(i, ac.dyda)
		dy := y[i] - value
		ssq += dy * dy
		for j := 0; j < m; j++ {
			g := ac.dyda[j]
			if math.IsNaN(g) {
				ok = false
			}
			beta[j] += dy * g
			for k := j; k < m; k++ {
				alpha.SetSym(j, k, alpha.At(j, k)+g*ac.dyda[k])
			}
		}
	}
	return ssq, ok
}

// FisherDiagonal fills diag with a diagonal Fisher-information approximation
// at the coefficients a, assuming Poisson statistics on the model values:
// I_jj = Σᵢ (∂fᵢ/∂aⱼ)² / fᵢ. Used as a loose fallback uncertainty bound when
// the full covariance inversion fails.
func (ac *Accumulator) FisherDiagonal(model GradientModel, a []float64, n int, diag []float64) {
	m := len(diag)
	ac.resize(m)

	for j := range diag {
		diag[j] = 0
	}

	model.Initialise(a)
	for i := 0; i < n; i++ {
		value := model.EvalGradient(i, ac.dyda)
		if value < 1e-12 {
			value = 1e-12
		}
		for j := 0; j < m; j++ {
			diag[j] += ac.dyda[j] * ac.dyda[j] / value
		}
	}
}
