package opt

import (
	"fmt"
	"math"
)

// boundTransform maps an unbounded search space onto [lower, upper] per
// coordinate with a sine map, so an unconstrained search composed with it
// can only ever produce in-bounds points:
//
//	x = lower + (upper-lower) · (sin(v)+1)/2
type boundTransform struct {
	lower, upper []float64
}

func (t *boundTransform) apply(internal, external []float64) {
	for i, v := range internal {
		external[i] = t.lower[i] + (t.upper[i]-t.lower[i])*(math.Sin(v)+1)/2
	}
}

func (t *boundTransform) invert(external, internal []float64) {
	for i, x := range external {
		s := 2*(x-t.lower[i])/(t.upper[i]-t.lower[i]) - 1
		if s < -1 {
			s = -1
		} else if s > 1 {
			s = 1
		}
		internal[i] = math.Asin(s)
	}
}

// BoundedNelderMead composes the direct pattern search with a variable
// transform onto the bounded space. The objective must carry both bounds.
type BoundedNelderMead struct{}

func (BoundedNelderMead) Minimize(obj *Objective, x0 []float64, budget Budget) (*Result, error) {
	if obj.Lower == nil || obj.Upper == nil {
		return nil, fmt.Errorf("opt: bounded pattern search requires lower and upper bounds")
	}

	t := &boundTransform{lower: obj.Lower, upper: obj.Upper}
	external := make([]float64, len(x0))
	mapped := &Objective{
		Func: func(v []float64) float64 {
			t.apply(v, external)
			return obj.Func(external)
		},
	}

	v0 := make([]float64, len(x0))
	t.invert(x0, v0)

	res, err := NelderMead{}.Minimize(mapped, v0, budget)
	if res != nil {
		x := make([]float64, len(res.X))
		t.apply(res.X, x)
		res.X = x
	}
	return res, err
}
