package fit

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	defaultInitialLambda = 0.01
	lambdaDecrease       = 0.1
	lambdaIncrease       = 10
)

// solverHooks are the extension points of the Gauss-Newton iteration. The
// bounded/clamped solver layers its behaviour through these instead of
// subclassing: a begin-of-fit reset, a trial-step projection, a recovery for
// failed solves, and a post-accept damping policy. Nil hooks select the
// default behaviour.
type solverHooks struct {
	// begin is called once per fit call after the working buffers are sized
	// to the fitted-coefficient count m.
	begin func(m int)

	// project applies the raw shift da to a, writing the trial coefficients
	// into ap. Only entries at the fitted indices may differ from a.
	project func(a, da, ap []float64, indices []int)

	// excludePinned modifies the prepared system (covar, da) to exclude
	// coefficients pinned at a bound after a failed solve. It reports
	// whether a retry is worthwhile.
	excludePinned func(covar *mat.SymDense, da []float64) bool

	// allowLambdaDecrease reports whether an accepted step may decrease the
	// damping factor.
	allowLambdaDecrease func() bool
}

// GaussNewton is the damped Gauss-Newton (Levenberg-Marquardt style) solver.
// One instance runs one fit at a time; working buffers are reused across
// calls and are not safe for concurrent use.
type GaussNewton struct {
	model  GradientModel
	policy ConvergencePolicy
	acc    Accumulator
	lin    linearSolver
	hooks  solverHooks

	initialLambda float64
	lambda        float64
	noise         float64

	// working buffers, sized to the fitted-coefficient count
	m            int
	indices      []int
	alpha, covar *mat.SymDense
	beta, da     []float64
	ap           []float64
	fisher       []float64
}

// NewGaussNewton creates a solver using the given convergence policy. A nil
// policy selects RelativeConvergence with default config.
func NewGaussNewton(policy ConvergencePolicy) *GaussNewton {
	if policy == nil {
		policy = NewRelativeConvergence(DefaultConvergenceConfig())
	}
	return &GaussNewton{
		policy:        policy,
		initialLambda: defaultInitialLambda,
	}
}

// SetObjectiveModel sets the model whose coefficients are fitted.
func (s *GaussNewton) SetObjectiveModel(model GradientModel) {
	s.model = model
}

// SetInitialLambda sets the damping factor used at the start of each fit.
func (s *GaussNewton) SetInitialLambda(lambda float64) {
	s.initialLambda = lambda
}

// SetMaxIterations sets the iteration budget of the convergence policy.
func (s *GaussNewton) SetMaxIterations(n int) {
	s.policy.SetMaxIterations(n)
}

// SetNoiseEstimate supplies the data noise standard deviation used to
// normalise the error estimate. Zero disables the normalisation.
func (s *GaussNewton) SetNoiseEstimate(noise float64) {
	s.noise = noise
}

func (s *GaussNewton) IsBounded() bool { return false }

func (s *GaussNewton) IsConstrained() bool { return false }

// ensureBuffers sizes the working buffers for m fitted coefficients and a
// full coefficient vector of length na. Buffers are recreated only when the
// sizes change; repeat fits with the same layout reuse them.
func (s *GaussNewton) ensureBuffers(m, na int) {
	if s.m != m {
		s.m = m
		s.alpha = mat.NewSymDense(m, nil)
		s.covar = mat.NewSymDense(m, nil)
		s.beta = make([]float64, m)
		s.da = make([]float64, m)
		s.fisher = make([]float64, m)
	}
	if len(s.ap) != na {
		s.ap = make([]float64, na)
	}
}

// Fit runs the damped Gauss-Newton iteration, refining a in place on
// success. fitted receives the final model curve and deviations the
// per-coefficient standard deviation estimates; both may be nil. If no
// improving step is ever accepted, a is left untouched.
func (s *GaussNewton) Fit(y, fitted, a, deviations []float64) *Result {
	res := &Result{Status: StatusUnknown}
	if s.model == nil {
		return res
	}

	s.indices = s.model.GradientIndices()
	s.ensureBuffers(len(s.indices), len(a))
	s.policy.Reset()
	s.lambda = s.initialLambda
	if s.hooks.begin != nil {
		s.hooks.begin(s.m)
	}

	best, ok := s.acc.Compute(s.model, a, y, s.alpha, s.beta)
	res.Evaluations++
	if !ok {
		res.Status = StatusInvalidGradients
		return res
	}

	for {
		res.Iterations++

		s.prepareSystem()
		if err := s.lin.Solve(s.covar, s.da); err != nil {
			recovered := false
			if s.hooks.excludePinned != nil {
				s.prepareSystem()
				if s.hooks.excludePinned(s.covar, s.da) {
					recovered = s.lin.Solve(s.covar, s.da) == nil
				}
			}
			if !recovered {
				res.Status = StatusSingularModel
				res.ResidualSS = best
				res.Error = errorEstimate(best, s.noise, len(y), s.m)
				return res
			}
		}

		if s.hooks.project != nil {
			s.hooks.project(a, s.da, s.ap, s.indices)
		} else {
			applyShift(a, s.da, s.ap, s.indices)
		}

		// The trial accumulation writes into covar/da so an accepted step can
		// simply promote them to alpha/beta.
		trial, ok := s.acc.Compute(s.model, s.ap, y, s.covar, s.da)
		res.Evaluations++
		if !ok {
			res.Status = StatusInvalidGradients
			res.ResidualSS = best
			res.Error = errorEstimate(best, s.noise, len(y), s.m)
			return res
		}

		previous := best
		if trial < best {
			if s.hooks.allowLambdaDecrease == nil || s.hooks.allowLambdaDecrease() {
				s.lambda *= lambdaDecrease
			}
			s.alpha.CopySym(s.covar)
			copy(s.beta, s.da)
			copy(a, s.ap)
			best = trial
		} else {
			s.lambda *= lambdaIncrease
		}

		slog.Debug("Gauss-Newton step",
			"iteration", res.Iterations,
			"lambda", s.lambda,
			"ssq", best,
			"trial_ssq", trial,
			"accepted", trial < previous,
		)

		switch s.policy.Check(previous, best, a) {
		case Satisfied:
			return s.finalize(y, fitted, a, deviations, best, res)
		case Exhausted:
			res.Status = StatusTooManyIterations
			res.ResidualSS = best
			res.Error = errorEstimate(best, s.noise, len(y), s.m)
			return res
		}
	}
}

// prepareSystem builds the damped normal-equation system: covar is alpha with
// its diagonal scaled by (1+lambda), da is a copy of beta.
func (s *GaussNewton) prepareSystem() {
	s.covar.CopySym(s.alpha)
	for j := 0; j < s.m; j++ {
		s.covar.SetSym(j, j, s.alpha.At(j, j)*(1+s.lambda))
	}
	copy(s.da, s.beta)
}

// applyShift is the default trial-step projection: ap = a + da at the fitted
// indices, a elsewhere.
func applyShift(a, da, ap []float64, indices []int) {
	copy(ap, a)
	for j, idx := range indices {
		ap[idx] = a[idx] + da[j]
	}
}

func (s *GaussNewton) finalize(y, fitted, a, deviations []float64, best float64, res *Result) *Result {
	if deviations != nil {
		s.computeDeviations(y, a, deviations)
	}

	res.ResidualSS = best
	if fitted != nil || s.model.CanComputeWeights() {
		// The fitting metric may be a weighted or likelihood quantity; the
		// least-squares residual has to come from the curve itself.
		s.model.Initialise(a)
		var rss float64
		for i := range y {
			v := s.model.Eval(i)
			if fitted != nil {
				fitted[i] = v
			}
			dy := y[i] - v
			rss += dy * dy
		}
		if s.model.CanComputeWeights() {
			res.ResidualSS = rss
		}
	}

	res.Error = errorEstimate(res.ResidualSS, s.noise, len(y), s.m)
	res.Status = StatusOK
	return res
}

// computeDeviations estimates per-coefficient standard deviations by
// inverting the undamped normal equations. When the inversion fails the
// reciprocal square root of the diagonal Fisher information stands in as a
// loose bound.
func (s *GaussNewton) computeDeviations(y, a, deviations []float64) {
	for i := range deviations {
		deviations[i] = 0
	}

	// alpha holds the undamped accumulation at the accepted coefficients.
	if s.lin.Invert(s.alpha, s.covar) == nil {
		for j, idx := range s.indices {
			v := s.covar.At(j, j)
			if v > 0 {
				deviations[idx] = math.Sqrt(v)
			}
		}
		return
	}

	s.acc.FisherDiagonal(s.model, a, len(y), s.fisher)
	for j, idx := range s.indices {
		if s.fisher[j] > 0 {
			deviations[idx] = 1 / math.Sqrt(s.fisher[j])
		}
	}
}

// errorEstimate normalises a residual sum of squares by the degrees of
// freedom, and by the noise variance when an estimate is available.
func errorEstimate(rss, noise float64, n, m int) float64 {
	dof := n - m
	if dof < 1 {
		dof = 1
	}
	e := rss / float64(dof)
	if noise > 0 {
		e /= noise * noise
	}
	return e
}
