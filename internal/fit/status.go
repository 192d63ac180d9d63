package fit

// Status is the outcome of a fit call. Solvers report failure through this
// closed enumeration rather than returning errors across the fit boundary.
type Status int

const (
	// StatusOK means the fit converged and the coefficients were refined.
	StatusOK Status = iota
	// StatusFailedToConverge means the solver stopped without satisfying the
	// convergence policy (including search-strategy budget exhaustion).
	StatusFailedToConverge
	// StatusTooManyIterations means the iteration budget was exhausted.
	StatusTooManyIterations
	// StatusSingularModel means the normal equations could not be solved.
	StatusSingularModel
	// StatusInvalidGradients means the model produced NaN gradients.
	StatusInvalidGradients
	// StatusUnknown covers any other internal failure.
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFailedToConverge:
		return "failed_to_converge"
	case StatusTooManyIterations:
		return "too_many_iterations"
	case StatusSingularModel:
		return "singular_model"
	case StatusInvalidGradients:
		return "invalid_gradients"
	default:
		return "unknown"
	}
}

// Solver is the common surface of the fitting solvers.
type Solver interface {
	// Fit refines a in place. y holds the observed samples; fitted and
	// deviations may be nil. The returned result carries the status and
	// summary statistics.
	Fit(y, fitted, a, deviations []float64) *Result

	// IsBounded reports whether the solver enforces hard coefficient bounds
	// by projection.
	IsBounded() bool
	// IsConstrained reports whether the solver enforces penalty-based
	// constraints (none of the solvers here do).
	IsConstrained() bool
}

// Result holds the output of one fit call.
type Result struct {
	Status      Status
	ResidualSS  float64 // residual sum of squares at the returned coefficients
	Error       float64 // residual normalised by degrees of freedom (and noise)
	Iterations  int
	Evaluations int
}
