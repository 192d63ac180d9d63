package fit

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cwbudde/peakfit/internal/opt"
)

// SearchMethod selects the search strategy of the likelihood solver.
type SearchMethod int

const (
	// SearchPattern is an unconstrained direct pattern search.
	SearchPattern SearchMethod = iota
	// SearchBoundedPattern composes the pattern search with a variable
	// transform onto the bounded space.
	SearchBoundedPattern
	// SearchQuadratic is a derivative-free quadratic-surrogate trust-region
	// search, bounded by clipping.
	SearchQuadratic
	// SearchEvolutionary is a bounded stochastic evolutionary search.
	SearchEvolutionary
	// SearchConjugateFR is a gradient-based conjugate-direction search with
	// the Fletcher-Reeves update.
	SearchConjugateFR
	// SearchConjugatePR is a gradient-based conjugate-direction search with
	// the Polak-Ribiere update.
	SearchConjugatePR
)

func (m SearchMethod) String() string {
	switch m {
	case SearchPattern:
		return "pattern"
	case SearchBoundedPattern:
		return "bounded_pattern"
	case SearchQuadratic:
		return "quadratic"
	case SearchEvolutionary:
		return "evolutionary"
	case SearchConjugateFR:
		return "conjugate_fr"
	case SearchConjugatePR:
		return "conjugate_pr"
	default:
		return "unknown"
	}
}

// Bounded reports whether the method enforces coefficient bounds.
func (m SearchMethod) Bounded() bool {
	switch m {
	case SearchBoundedPattern, SearchQuadratic, SearchEvolutionary:
		return true
	}
	return false
}

// MaximumLikelihood fits a model to observed counts by minimizing the
// negative Poisson log-likelihood with a selectable search strategy. It is
// independent of the Gauss-Newton solvers and does not compute deviations.
type MaximumLikelihood struct {
	model  GradientModel
	method SearchMethod

	maxIterations  int
	maxEvaluations int
	noise          float64

	// full-length coefficient bound arrays; the fitted subset is extracted
	// per fit call
	lower, upper []float64

	// evolutionary search knobs
	seed    int64
	popSize int
}

// NewMaximumLikelihood creates a likelihood solver with the pattern search
// strategy selected.
func NewMaximumLikelihood() *MaximumLikelihood {
	return &MaximumLikelihood{
		method:        SearchPattern,
		maxIterations: 1000,
		seed:          42,
		popSize:       20,
	}
}

// SetObjectiveModel sets the model whose coefficients are fitted.
func (s *MaximumLikelihood) SetObjectiveModel(model GradientModel) {
	s.model = model
}

// SetSearchMethod selects the search strategy.
func (s *MaximumLikelihood) SetSearchMethod(method SearchMethod) {
	s.method = method
}

// SetMaxIterations sets the iteration budget of the search.
func (s *MaximumLikelihood) SetMaxIterations(n int) {
	s.maxIterations = n
}

// SetMaxEvaluations sets the objective-evaluation budget of the search.
// Zero means no limit.
func (s *MaximumLikelihood) SetMaxEvaluations(n int) {
	s.maxEvaluations = n
}

// SetNoiseEstimate supplies the data noise standard deviation used to
// normalise the error estimate. Zero disables the normalisation.
func (s *MaximumLikelihood) SetNoiseEstimate(noise float64) {
	s.noise = noise
}

// SetSeed sets the random seed of the evolutionary strategy.
func (s *MaximumLikelihood) SetSeed(seed int64) { s.seed = seed }

// SetPopulationSize sets the starting population of the evolutionary
// strategy.
func (s *MaximumLikelihood) SetPopulationSize(n int) { s.popSize = n }

// SetBounds configures full-length coefficient bounds. Mandatory before
// running a bounded strategy. Invalid bounds (lower > upper) are rejected
// and the prior bounds stay in effect.
func (s *MaximumLikelihood) SetBounds(lower, upper []float64) error {
	if lower == nil || upper == nil {
		return fmt.Errorf("fit: likelihood solver requires both lower and upper bounds")
	}
	n := len(lower)
	if len(upper) < n {
		n = len(upper)
	}
	for i := 0; i < n; i++ {
		if lower[i] > upper[i] {
			return fmt.Errorf("fit: invalid bounds at coefficient %d: lower %g > upper %g", i, lower[i], upper[i])
		}
	}
	s.lower = cloneOrNil(lower)
	s.upper = cloneOrNil(upper)
	return nil
}

func (s *MaximumLikelihood) IsBounded() bool { return s.method.Bounded() }

func (s *MaximumLikelihood) IsConstrained() bool { return false }

// Fit minimizes the negative Poisson log-likelihood of the model against y,
// refining a in place on success. Negative observed counts behave as if
// clipped to zero. deviations are not supported and are silently skipped;
// fitted may be nil.
func (s *MaximumLikelihood) Fit(y, fitted, a, deviations []float64) *Result {
	res := &Result{Status: StatusUnknown}
	if s.model == nil {
		return res
	}
	if s.method.Bounded() && (s.lower == nil || s.upper == nil) {
		slog.Warn("Bounded search strategy without bounds", "method", s.method.String())
		return res
	}

	obj := newPoissonObjective(s.model, y, a)
	m := len(obj.indices)

	x0 := make([]float64, m)
	for j, idx := range obj.indices {
		x0[j] = a[idx]
	}

	objective := &opt.Objective{Func: obj.value, Grad: obj.gradient}
	if s.lower != nil && s.upper != nil {
		objective.Lower = make([]float64, m)
		objective.Upper = make([]float64, m)
		for j, idx := range obj.indices {
			objective.Lower[j] = s.lower[idx]
			objective.Upper[j] = s.upper[idx]
		}
	}

	budget := opt.Budget{
		MaxIterations:  s.maxIterations,
		MaxEvaluations: s.maxEvaluations,
	}

	result, err := s.strategy().Minimize(objective, x0, budget)
	if err != nil {
		res.Status = searchStatus(err)
		if result != nil {
			res.Evaluations = result.Evaluations
		}
		return res
	}

	for j, idx := range obj.indices {
		a[idx] = result.X[j]
	}

	// The likelihood objective is not a sum of squares; the residual comes
	// from the fitted curve.
	s.model.Initialise(a)
	var rss float64
	for i := range obj.counts {
		v := s.model.Eval(i)
		if fitted != nil {
			fitted[i] = v
		}
		dy := obj.counts[i] - v
		rss += dy * dy
	}

	res.Status = StatusOK
	res.ResidualSS = rss
	res.Error = errorEstimate(rss, s.noise, len(y), m)
	res.Evaluations = result.Evaluations
	return res
}

// strategy builds the search strategy for the configured method.
func (s *MaximumLikelihood) strategy() opt.Strategy {
	switch s.method {
	case SearchBoundedPattern:
		return opt.BoundedNelderMead{}
	case SearchQuadratic:
		return opt.Quadratic{}
	case SearchEvolutionary:
		return opt.NewMayfly(s.maxIterations, s.popSize, s.seed)
	case SearchConjugateFR:
		return opt.Conjugate{Variant: opt.FletcherReeves}
	case SearchConjugatePR:
		return opt.Conjugate{Variant: opt.PolakRibiere}
	default:
		return opt.NelderMead{}
	}
}

// searchStatus maps a strategy failure onto the fit status taxonomy.
func searchStatus(err error) Status {
	switch {
	case errors.Is(err, opt.ErrExhausted):
		return StatusFailedToConverge
	case errors.Is(err, opt.ErrDecomposition):
		return StatusSingularModel
	default:
		return StatusUnknown
	}
}
