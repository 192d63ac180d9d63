package fit

import (
	"math"
	"testing"
)

func TestBoundedSetBoundsRejectsInverted(t *testing.T) {
	b := NewBoundedGaussNewton(nil)
	if err := b.SetBounds([]float64{0, 0}, []float64{10, 10}); err != nil {
		t.Fatalf("valid bounds rejected: %v", err)
	}
	if err := b.SetBounds([]float64{5, 0}, []float64{1, 10}); err == nil {
		t.Fatal("inverted bounds accepted")
	}
	// The failed call must not disturb the bounds already in effect.
	if b.lower[0] != 0 || b.upper[0] != 10 {
		t.Errorf("prior bounds lost: lower %v upper %v", b.lower, b.upper)
	}
}

func TestBoundedSetModelClearsBoundsKeepsClamps(t *testing.T) {
	b := NewBoundedGaussNewton(nil)
	if err := b.SetBounds([]float64{0, 0}, []float64{10, 10}); err != nil {
		t.Fatal(err)
	}
	b.SetClampValues([]float64{3, 3})

	b.SetObjectiveModel(&lineModel{})
	if b.lower != nil || b.upper != nil {
		t.Error("bounds survived a model change")
	}
	if b.clamp == nil || b.clamp[0] != 3 {
		t.Errorf("clamps did not survive a model change: %v", b.clamp)
	}
}

func TestBoundedClampFormula(t *testing.T) {
	b := NewBoundedGaussNewton(nil)
	b.SetClampValues([]float64{2, 0})
	b.begin(2)

	a := []float64{0, 0}
	da := []float64{3, 3}
	ap := make([]float64, 2)
	b.project(a, da, ap, []int{0, 1})

	// clamped: 3 / (1 + 3/2) = 1.2
	if math.Abs(ap[0]-1.2) > 1e-12 {
		t.Errorf("clamped step: got %g, want 1.2", ap[0])
	}
	// zero clamp leaves the coefficient unclamped
	if ap[1] != 3 {
		t.Errorf("unclamped step altered: got %g, want 3", ap[1])
	}
}

func TestBoundedDynamicClampHalvesOnOscillation(t *testing.T) {
	b := NewBoundedGaussNewton(nil)
	b.SetClampValues([]float64{10})
	b.SetDynamicClamp(true)
	b.begin(1)

	a := []float64{0}
	ap := make([]float64, 1)

	b.project(a, []float64{4}, ap, []int{0})
	if b.clamp[0] != 10 {
		t.Errorf("first step halved the clamp: %g", b.clamp[0])
	}

	// Direction flip halves the clamp before the step is applied.
	b.project(a, []float64{-4}, ap, []int{0})
	if b.clamp[0] != 5 {
		t.Errorf("oscillation did not halve the clamp: %g", b.clamp[0])
	}
	want := -4 / (1 + 4.0/5.0)
	if math.Abs(ap[0]-want) > 1e-12 {
		t.Errorf("halved clamp not applied to the flipping step: got %g, want %g", ap[0], want)
	}

	// Same direction again keeps the halved clamp.
	b.project(a, []float64{-4}, ap, []int{0})
	if b.clamp[0] != 5 {
		t.Errorf("clamp halved without oscillation: %g", b.clamp[0])
	}
}

func TestBoundedDynamicClampRestoredPerFit(t *testing.T) {
	b := NewBoundedGaussNewton(nil)
	b.SetClampValues([]float64{10})
	b.SetDynamicClamp(true)
	b.begin(1)

	a := []float64{0}
	ap := make([]float64, 1)
	b.project(a, []float64{4}, ap, []int{0})
	b.project(a, []float64{-4}, ap, []int{0})
	if b.clamp[0] != 5 {
		t.Fatalf("setup: clamp %g", b.clamp[0])
	}

	b.begin(1)
	if b.clamp[0] != 10 {
		t.Errorf("begin did not restore the configured clamp: %g", b.clamp[0])
	}
}

func TestBoundedProjectionPins(t *testing.T) {
	b := NewBoundedGaussNewton(nil)
	if err := b.SetBounds([]float64{0, 0}, []float64{1, 10}); err != nil {
		t.Fatal(err)
	}
	b.begin(2)

	a := []float64{0.5, 5}
	ap := make([]float64, 2)
	b.project(a, []float64{2, -20}, ap, []int{0, 1})

	if ap[0] != 1 {
		t.Errorf("upper bound not enforced: %g", ap[0])
	}
	if ap[1] != 0 {
		t.Errorf("lower bound not enforced: %g", ap[1])
	}
	if b.AtBoundsCount() != 2 {
		t.Errorf("expected 2 pinned coefficients, got %d", b.AtBoundsCount())
	}

	// Steps that stay inside reset the pinned set.
	b.project(a, []float64{0.1, 0.1}, ap, []int{0, 1})
	if b.AtBoundsCount() != 0 {
		t.Errorf("pinned count not reset: %d", b.AtBoundsCount())
	}
}

func TestBoundedExcludePinned(t *testing.T) {
	b := NewBoundedGaussNewton(nil)
	if err := b.SetBounds([]float64{0, 0}, []float64{1, 10}); err != nil {
		t.Fatal(err)
	}
	b.begin(2)

	a := []float64{0.5, 5}
	ap := make([]float64, 2)
	b.project(a, []float64{2, 0.1}, ap, []int{0, 1}) // pins coefficient 0

	s := NewGaussNewton(nil)
	s.SetObjectiveModel(&lineModel{})
	s.ensureBuffers(2, 2)
	s.alpha.SetSym(0, 0, 4)
	s.alpha.SetSym(0, 1, 1)
	s.alpha.SetSym(1, 1, 3)
	s.covar.CopySym(s.alpha)
	da := []float64{7, 8}

	if !b.excludePinned(s.covar, da) {
		t.Fatal("expected a retry with one pinned coefficient")
	}
	if da[0] != 0 {
		t.Errorf("pinned shift not zeroed: %g", da[0])
	}
	if s.covar.At(0, 0) != 1 || s.covar.At(0, 1) != 0 {
		t.Errorf("pinned row not replaced with identity: [%g %g]", s.covar.At(0, 0), s.covar.At(0, 1))
	}
	if s.covar.At(1, 1) != 3 {
		t.Errorf("free coefficient disturbed: %g", s.covar.At(1, 1))
	}

	// Nothing pinned means the solve failure is final.
	b.begin(2)
	if b.excludePinned(s.covar, da) {
		t.Error("retry offered with nothing pinned")
	}
}

func TestBoundedNonLocalSuppressesLambdaDecrease(t *testing.T) {
	b := NewBoundedGaussNewton(nil)
	b.SetClampValues([]float64{1})
	b.SetLocalSearch(10)
	b.begin(1)

	if !b.allowLambdaDecrease() {
		t.Fatal("fresh fit must allow lambda decreases")
	}

	a := []float64{0}
	ap := make([]float64, 1)
	// Raw step 5 clamps to 5/6; scaled by the threshold that exceeds the
	// configured clamp, so the step counts as non-local.
	b.project(a, []float64{5}, ap, []int{0})
	if b.allowLambdaDecrease() {
		t.Error("non-local step did not suppress the lambda decrease")
	}

	b.project(a, []float64{0.01}, ap, []int{0})
	if !b.allowLambdaDecrease() {
		t.Error("local step left the suppression latched")
	}
}

func TestBoundedRecoveryWithinBounds(t *testing.T) {
	truth := []float64{10, 100, 7.5, 7.2, 1.5, 1.8}
	y := noiselessRegion(16, truth)

	b := NewBoundedGaussNewton(nil)
	b.SetObjectiveModel(NewGaussian2D(16, 16))
	lower := []float64{0, 0, 0, 0, 0.1, 0.1}
	upper := []float64{1e3, 1e3, 16, 16, 10, 10}
	if err := b.SetBounds(lower, upper); err != nil {
		t.Fatal(err)
	}
	b.SetClampValues([]float64{100, 1000, 4, 4, 3, 3})
	b.SetDynamicClamp(true)

	// Every trial the solver evaluates must respect the bounds, not just the
	// final result.
	orig := b.GaussNewton.hooks.project
	b.GaussNewton.hooks.project = func(a, da, ap []float64, indices []int) {
		orig(a, da, ap, indices)
		for j, idx := range indices {
			if ap[idx] < lower[j] || ap[idx] > upper[j] {
				t.Errorf("trial coefficient %d outside bounds: %g", idx, ap[idx])
			}
		}
	}

	a := []float64{12, 90, 7.0, 7.8, 1.2, 1.5}
	res := b.Fit(y, nil, a, nil)
	if res.Status != StatusOK {
		t.Fatalf("expected OK, got %v", res.Status)
	}
	for j := range truth {
		rel := math.Abs(a[j]-truth[j]) / math.Abs(truth[j])
		if rel > 1e-4 {
			t.Errorf("coefficient %d: got %g, want %g", j, a[j], truth[j])
		}
	}
	if !b.IsBounded() {
		t.Error("bounded solver must report bounded")
	}
}
