package opt

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Quadratic is a derivative-free trust-region strategy. Each iteration
// samples the objective around the current point, fits a full quadratic
// surrogate by least squares, steps to the surrogate minimizer within the
// trust radius, and grows or shrinks the radius on the outcome. Bounds are
// honoured by clipping both the samples and the step.
type Quadratic struct {
	// InitialRadius is the starting trust radius. Defaults to 1.
	InitialRadius float64
	// MinRadius stops the search once the radius collapses below it.
	// Defaults to 1e-9.
	MinRadius float64
}

func (q Quadratic) Minimize(obj *Objective, x0 []float64, budget Budget) (*Result, error) {
	m := len(x0)
	radius := q.InitialRadius
	if radius <= 0 {
		radius = 1
	}
	minRadius := q.MinRadius
	if minRadius <= 0 {
		minRadius = 1e-9
	}
	maxIter := budget.MaxIterations
	if maxIter <= 0 {
		maxIter = 100
	}

	x := make([]float64, m)
	copy(x, x0)
	clipToBounds(x, obj)
	fx := obj.Func(x)
	evals := 1

	res := &Result{X: append([]float64(nil), x...), F: fx}

	// One sample per surrogate coefficient gives a square interpolation
	// system: constant, m gradient terms, m diagonal and m(m-1)/2 cross
	// curvature terms.
	ncoef := 1 + m + m*(m+1)/2
	design := mat.NewDense(ncoef, ncoef, nil)
	rhs := mat.NewVecDense(ncoef, nil)
	coef := mat.NewVecDense(ncoef, nil)
	grad := make([]float64, m)
	hess := mat.NewSymDense(m, nil)
	step := mat.NewVecDense(m, nil)
	pt := make([]float64, m)
	off := make([]float64, m)
	o1 := make([]float64, m)
	o2 := make([]float64, m)

	for iter := 0; iter < maxIter; iter++ {
		h := radius
		// Two distinct in-bounds offsets per coordinate; +h/-h when room
		// allows, one-sided otherwise.
		for j := 0; j < m; j++ {
			up, down := h, h
			if obj.Upper != nil {
				up = math.Min(up, obj.Upper[j]-x[j])
			}
			if obj.Lower != nil {
				down = math.Min(down, x[j]-obj.Lower[j])
			}
			switch {
			case up >= h/4 && down >= h/4:
				o1[j], o2[j] = up, -down
			case up >= h/4:
				o1[j], o2[j] = up, up/2
			default:
				o1[j], o2[j] = -down, -down/2
			}
		}

		row := 0
		sample := func() {
			for j := 0; j < m; j++ {
				pt[j] = x[j] + off[j]
			}
			clipToBounds(pt, obj)
			for j := 0; j < m; j++ {
				off[j] = pt[j] - x[j]
			}
			col := 0
			design.Set(row, col, 1)
			col++
			for j := 0; j < m; j++ {
				design.Set(row, col, off[j])
				col++
			}
			for j := 0; j < m; j++ {
				design.Set(row, col, 0.5*off[j]*off[j])
				col++
			}
			for j := 0; j < m; j++ {
				for k := j + 1; k < m; k++ {
					design.Set(row, col, off[j]*off[k])
					col++
				}
			}
			rhs.SetVec(row, obj.Func(pt))
			evals++
			row++
		}

		for j := range off {
			off[j] = 0
		}
		design.Set(row, 0, 1)
		for c := 1; c < ncoef; c++ {
			design.Set(row, c, 0)
		}
		rhs.SetVec(row, fx)
		row++

		for j := 0; j < m; j++ {
			for k := range off {
				off[k] = 0
			}
			off[j] = o1[j]
			sample()
			for k := range off {
				off[k] = 0
			}
			off[j] = o2[j]
			sample()
		}
		for j := 0; j < m; j++ {
			for k := j + 1; k < m; k++ {
				for l := range off {
					off[l] = 0
				}
				off[j], off[k] = o1[j], o1[k]
				sample()
			}
		}

		var qr mat.QR
		qr.Factorize(design)
		if err := qr.SolveVecTo(coef, false, rhs); err != nil {
			res.Evaluations = evals
			return res, fmt.Errorf("%w: surrogate fit: %v", ErrDecomposition, err)
		}

		col := 1
		for j := 0; j < m; j++ {
			grad[j] = coef.AtVec(col)
			col++
		}
		for j := 0; j < m; j++ {
			hess.SetSym(j, j, coef.AtVec(col))
			col++
		}
		for j := 0; j < m; j++ {
			for k := j + 1; k < m; k++ {
				hess.SetSym(j, k, coef.AtVec(col))
				col++
			}
		}

		// Newton step on the surrogate; steepest descent when the surrogate
		// is not positive definite.
		var chol mat.Cholesky
		newton := chol.Factorize(hess)
		if newton {
			newton = chol.SolveVecTo(step, mat.NewVecDense(m, grad)) == nil
		}
		if newton {
			step.ScaleVec(-1, step)
		} else {
			norm := floatsNorm(grad)
			if norm == 0 {
				res.Evaluations = evals
				return res, nil
			}
			for j := 0; j < m; j++ {
				step.SetVec(j, -grad[j]/norm*radius)
			}
		}
		if norm := mat.Norm(step, 2); norm > radius {
			step.ScaleVec(radius/norm, step)
		}

		for j := 0; j < m; j++ {
			pt[j] = x[j] + step.AtVec(j)
		}
		clipToBounds(pt, obj)
		f1 := obj.Func(pt)
		evals++

		if f1 < fx {
			if fx-f1 > 0.1*math.Abs(fx) {
				radius *= 2
			}
			copy(x, pt)
			fx = f1
			if fx < res.F {
				copy(res.X, x)
				res.F = fx
			}
		} else {
			radius *= 0.5
		}

		if radius < minRadius {
			res.Evaluations = evals
			return res, nil
		}
		if budget.MaxEvaluations > 0 && evals >= budget.MaxEvaluations {
			res.Evaluations = evals
			return res, ErrExhausted
		}
	}

	res.Evaluations = evals
	return res, ErrExhausted
}

func clipToBounds(x []float64, obj *Objective) {
	if obj.Lower != nil {
		for i := range x {
			if x[i] < obj.Lower[i] {
				x[i] = obj.Lower[i]
			}
		}
	}
	if obj.Upper != nil {
		for i := range x {
			if x[i] > obj.Upper[i] {
				x[i] = obj.Upper[i]
			}
		}
	}
}

func floatsNorm(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}
