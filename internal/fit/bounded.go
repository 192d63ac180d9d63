package fit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// BoundedGaussNewton layers hard coefficient bounds and per-coefficient step
// clamping onto the Gauss-Newton solver through its extension hooks. Bounds
// are enforced by projection: every trial coefficient is clipped into
// [lower, upper] and clipped coefficients are tracked as pinned. Clamping
// divides each raw shift by 1+|shift|/clamp so no coefficient can move more
// than its clamp value in one iteration.
type BoundedGaussNewton struct {
	*GaussNewton

	// per fitted coefficient; nil disables that side
	lower, upper []float64

	// per fitted coefficient; 0 disables clamping for that coefficient
	clampInitial []float64
	clamp        []float64

	dir           []float64 // sign of the previous raw shift
	atBounds      []bool
	atBoundsCount int

	dynamic     bool
	localSearch float64
	nonLocal    bool
}

// NewBoundedGaussNewton creates a bounded solver using the given convergence
// policy. A nil policy selects RelativeConvergence with default config.
func NewBoundedGaussNewton(policy ConvergencePolicy) *BoundedGaussNewton {
	b := &BoundedGaussNewton{GaussNewton: NewGaussNewton(policy)}
	b.GaussNewton.hooks = solverHooks{
		begin:               b.begin,
		project:             b.project,
		excludePinned:       b.excludePinned,
		allowLambdaDecrease: b.allowLambdaDecrease,
	}
	return b
}

// SetObjectiveModel sets the model. Bounds are cleared because they are tied
// to the fitted-index layout; clamp values are kept so models sharing a
// coefficient layout can reuse them.
func (b *BoundedGaussNewton) SetObjectiveModel(model GradientModel) {
	b.GaussNewton.SetObjectiveModel(model)
	b.lower, b.upper = nil, nil
}

// SetBounds configures hard per-fitted-coefficient bounds. Either side may be
// nil to disable it. Invalid bounds (lower > upper) are rejected and the
// prior bounds stay in effect.
func (b *BoundedGaussNewton) SetBounds(lower, upper []float64) error {
	if lower != nil && upper != nil {
		n := len(lower)
		if len(upper) < n {
			n = len(upper)
		}
		for i := 0; i < n; i++ {
			if lower[i] > upper[i] {
				return fmt.Errorf("fit: invalid bounds at coefficient %d: lower %g > upper %g", i, lower[i], upper[i])
			}
		}
	}
	b.lower = cloneOrNil(lower)
	b.upper = cloneOrNil(upper)
	return nil
}

// SetClampValues configures the maximum step per fitted coefficient. A zero
// or non-finite entry disables clamping for that coefficient. Nil disables
// clamping entirely.
func (b *BoundedGaussNewton) SetClampValues(values []float64) {
	if values == nil {
		b.clampInitial, b.clamp = nil, nil
		return
	}
	b.clampInitial = make([]float64, len(values))
	for i, v := range values {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			v = 0
		}
		b.clampInitial[i] = math.Abs(v)
	}
	b.clamp = make([]float64, len(b.clampInitial))
	copy(b.clamp, b.clampInitial)
}

// SetDynamicClamp enables halving a coefficient's clamp when its step
// direction oscillates. The working clamps are restored from the configured
// values at the start of every fit call while enabled.
func (b *BoundedGaussNewton) SetDynamicClamp(dynamic bool) {
	b.dynamic = dynamic
}

// SetLocalSearch sets the non-local step threshold. When non-zero, a trial
// step whose magnitude scaled by the threshold exceeds the configured clamp
// suppresses the lambda decrease on acceptance. Zero disables the check.
func (b *BoundedGaussNewton) SetLocalSearch(threshold float64) {
	b.localSearch = threshold
}

func (b *BoundedGaussNewton) IsBounded() bool { return true }

func (b *BoundedGaussNewton) IsConstrained() bool { return false }

// AtBoundsCount returns the number of fitted coefficients pinned at a bound
// by the most recent projection.
func (b *BoundedGaussNewton) AtBoundsCount() int { return b.atBoundsCount }

func (b *BoundedGaussNewton) begin(m int) {
	if len(b.dir) != m {
		b.dir = make([]float64, m)
		b.atBounds = make([]bool, m)
	}
	for j := 0; j < m; j++ {
		b.dir[j] = 0
		b.atBounds[j] = false
	}
	b.atBoundsCount = 0
	b.nonLocal = false
	if b.dynamic && b.clampInitial != nil {
		copy(b.clamp, b.clampInitial)
	}
}

func (b *BoundedGaussNewton) project(a, da, ap []float64, indices []int) {
	copy(ap, a)
	b.nonLocal = false
	for j := range b.atBounds {
		b.atBounds[j] = false
	}
	b.atBoundsCount = 0

	for j, idx := range indices {
		step := da[j]
		if j < len(b.clamp) && step != 0 {
			if c := b.clamp[j]; c != 0 {
				if b.dynamic {
					if b.dir[j]*step < 0 {
						// Oscillation: the clamp is too loose.
						c *= 0.5
						b.clamp[j] = c
					}
					if step > 0 {
						b.dir[j] = 1
					} else {
						b.dir[j] = -1
					}
				}
				step /= 1 + math.Abs(step)/c
			}
		}

		v := a[idx] + step
		if b.lower != nil && j < len(b.lower) && v < b.lower[j] {
			v = b.lower[j]
			b.atBounds[j] = true
			b.atBoundsCount++
		}
		if b.upper != nil && j < len(b.upper) && v > b.upper[j] {
			v = b.upper[j]
			b.atBounds[j] = true
			b.atBoundsCount++
		}
		ap[idx] = v

		if b.localSearch != 0 && j < len(b.clampInitial) && b.clampInitial[j] != 0 {
			if b.localSearch*math.Abs(v-a[idx]) > b.clampInitial[j] {
				b.nonLocal = true
			}
		}
	}
}

// excludePinned zeroes the gradient and Hessian contributions of every
// coefficient pinned at a bound so the remaining free coefficients can still
// be solved for. Reports false when nothing is pinned and the solve failure
// is fatal.
func (b *BoundedGaussNewton) excludePinned(covar *mat.SymDense, da []float64) bool {
	if b.atBoundsCount == 0 {
		return false
	}
	m := len(da)
	for j := 0; j < m; j++ {
		if j >= len(b.atBounds) || !b.atBounds[j] {
			continue
		}
		da[j] = 0
		for k := 0; k < m; k++ {
			covar.SetSym(j, k, 0)
		}
		covar.SetSym(j, j, 1)
	}
	return true
}

func (b *BoundedGaussNewton) allowLambdaDecrease() bool {
	return !b.nonLocal
}

func cloneOrNil(v []float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
