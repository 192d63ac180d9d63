package fit

import (
	"log/slog"
	"math"
)

// Decision is the verdict of the convergence policy for one iteration.
type Decision int

const (
	// Continue means the solver should keep iterating.
	Continue Decision = iota
	// Satisfied means the fit has converged.
	Satisfied
	// Exhausted means the iteration budget ran out before convergence.
	Exhausted
)

// ConvergencePolicy decides, iteration by iteration, whether the solver
// should continue, and distinguishes convergence from budget exhaustion.
type ConvergencePolicy interface {
	// Reset prepares the policy for a new fit call.
	Reset()
	// Check inspects the previous and current best error values and the
	// current coefficients and returns a verdict.
	Check(previous, current float64, a []float64) Decision
	// SetMaxIterations replaces the iteration budget.
	SetMaxIterations(n int)
	// MaxIterations returns the iteration budget.
	MaxIterations() int
}

// ConvergenceConfig defines parameters for detecting fit convergence.
type ConvergenceConfig struct {
	// MaxIterations is the iteration budget for one fit call.
	MaxIterations int

	// Patience is the number of iterations with no significant improvement
	// before the fit is declared converged.
	Patience int

	// Relative is the minimum relative improvement required to count as
	// progress: an improvement is significant when
	// (previous - current) > Absolute + Relative*|previous|.
	Relative float64

	// Absolute is the minimum absolute improvement required to count as
	// progress.
	Absolute float64
}

// DefaultConvergenceConfig returns sensible defaults for peak fitting.
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		MaxIterations: 100,
		Patience:      3,
		Relative:      1e-10,
		Absolute:      1e-16,
	}
}

// RelativeConvergence tracks the error value across iterations and detects
// convergence once the improvement stays below a relative threshold for a
// configured number of consecutive iterations.
type RelativeConvergence struct {
	config     ConvergenceConfig
	iterations int
	staleCount int
}

// NewRelativeConvergence creates a policy with the given config.
func NewRelativeConvergence(config ConvergenceConfig) *RelativeConvergence {
	return &RelativeConvergence{config: config}
}

func (c *RelativeConvergence) Reset() {
	c.iterations = 0
	c.staleCount = 0
}

func (c *RelativeConvergence) SetMaxIterations(n int) { c.config.MaxIterations = n }

func (c *RelativeConvergence) MaxIterations() int { return c.config.MaxIterations }

func (c *RelativeConvergence) Check(previous, current float64, a []float64) Decision {
	c.iterations++
	if c.iterations >= c.config.MaxIterations {
		slog.Debug("Iteration budget exhausted", "iterations", c.iterations)
		return Exhausted
	}

	improvement := previous - current
	significant := c.config.Absolute + c.config.Relative*math.Abs(previous)

	if improvement > significant {
		c.staleCount = 0
		return Continue
	}

	c.staleCount++
	if c.staleCount >= c.config.Patience {
		slog.Debug("Convergence detected",
			"iterations", c.iterations,
			"error", current,
			"stale_count", c.staleCount,
		)
		return Satisfied
	}
	return Continue
}
