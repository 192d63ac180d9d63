package fit

import (
	"math"
	"testing"
)

// noiselessRegion samples a Gaussian peak without noise.
func noiselessRegion(size int, truth []float64) []float64 {
	g := NewGaussian2D(size, size)
	g.Initialise(truth)
	data := make([]float64, size*size)
	for i := range data {
		data[i] = g.Eval(i)
	}
	return data
}

func TestGaussNewtonExactRecovery(t *testing.T) {
	truth := []float64{10, 100, 7.5, 7.2, 1.5, 1.8}
	y := noiselessRegion(16, truth)

	s := NewGaussNewton(nil)
	s.SetObjectiveModel(NewGaussian2D(16, 16))

	a := []float64{12, 90, 7.0, 7.8, 1.2, 1.5}
	fitted := make([]float64, len(y))
	deviations := make([]float64, len(a))

	res := s.Fit(y, fitted, a, deviations)
	if res.Status != StatusOK {
		t.Fatalf("expected OK, got %v", res.Status)
	}

	for j := range truth {
		rel := math.Abs(a[j]-truth[j]) / math.Abs(truth[j])
		if rel > 1e-6 {
			t.Errorf("coefficient %d: got %g, want %g (rel %g)", j, a[j], truth[j], rel)
		}
	}

	if res.ResidualSS > 1e-10 {
		t.Errorf("expected near-zero residual, got %g", res.ResidualSS)
	}
	for j, d := range deviations {
		if d <= 0 {
			t.Errorf("deviation %d not positive: %g", j, d)
		}
	}
	for i := range y {
		if math.Abs(fitted[i]-y[i]) > 1e-5 {
			t.Errorf("fitted curve diverges at %d: %g vs %g", i, fitted[i], y[i])
			break
		}
	}
}

func TestGaussNewtonLineFit(t *testing.T) {
	y := []float64{1, 3, 5, 7, 9} // a0=1, a1=2

	s := NewGaussNewton(nil)
	s.SetObjectiveModel(&lineModel{})

	a := []float64{0, 0}
	res := s.Fit(y, nil, a, nil)
	if res.Status != StatusOK {
		t.Fatalf("expected OK, got %v", res.Status)
	}
	if math.Abs(a[0]-1) > 1e-8 || math.Abs(a[1]-2) > 1e-8 {
		t.Errorf("expected [1 2], got %v", a)
	}
}

// lambdaRecorder snapshots the damping factor every time the policy runs,
// which is immediately after the accept/reject lambda update.
type lambdaRecorder struct {
	ConvergencePolicy
	solver   *GaussNewton
	lambdas  []float64
	accepted []bool
}

func (r *lambdaRecorder) Check(previous, current float64, a []float64) Decision {
	r.lambdas = append(r.lambdas, r.solver.lambda)
	r.accepted = append(r.accepted, current < previous)
	return r.ConvergencePolicy.Check(previous, current, a)
}

func TestGaussNewtonLambdaPolicy(t *testing.T) {
	truth := []float64{10, 100, 7.5, 7.2, 1.5, 1.8}
	y := noiselessRegion(16, truth)

	rec := &lambdaRecorder{ConvergencePolicy: NewRelativeConvergence(DefaultConvergenceConfig())}
	s := NewGaussNewton(rec)
	rec.solver = s
	s.SetObjectiveModel(NewGaussian2D(16, 16))

	a := []float64{12, 90, 7.0, 7.8, 1.2, 1.5}
	if res := s.Fit(y, nil, a, nil); res.Status != StatusOK {
		t.Fatalf("expected OK, got %v", res.Status)
	}

	sawAccept, sawReject := false, false
	prev := defaultInitialLambda
	for i, l := range rec.lambdas {
		var want float64
		if rec.accepted[i] {
			want = prev * lambdaDecrease
			sawAccept = true
		} else {
			want = prev * lambdaIncrease
			sawReject = true
		}
		if math.Abs(l-want) > 1e-15*want {
			t.Errorf("iteration %d: lambda %g, want %g (accepted=%v)", i, l, want, rec.accepted[i])
		}
		prev = l
	}
	if !sawAccept {
		t.Error("fit never accepted a step")
	}
	_ = sawReject // rejection is data dependent; the factor check above covers it when present
}

func TestGaussNewtonInvalidGradients(t *testing.T) {
	s := NewGaussNewton(nil)
	s.SetObjectiveModel(&nanModel{})

	a := []float64{5, 5}
	before := append([]float64(nil), a...)

	res := s.Fit([]float64{1, 3, 5}, nil, a, nil)
	if res.Status != StatusInvalidGradients {
		t.Fatalf("expected invalid gradients, got %v", res.Status)
	}
	for j := range a {
		if a[j] != before[j] {
			t.Errorf("coefficients modified on failure: %v", a)
		}
	}
}

func TestGaussNewtonReuseAcrossFits(t *testing.T) {
	truth := []float64{10, 100, 7.5, 7.2, 1.5, 1.8}
	y := noiselessRegion(16, truth)

	s := NewGaussNewton(nil)
	s.SetObjectiveModel(NewGaussian2D(16, 16))

	for run := 0; run < 3; run++ {
		a := []float64{12, 90, 7.0, 7.8, 1.2, 1.5}
		if res := s.Fit(y, nil, a, nil); res.Status != StatusOK {
			t.Fatalf("run %d: expected OK, got %v", run, res.Status)
		}
		if math.Abs(a[GaussAmplitude]-100) > 1e-4 {
			t.Errorf("run %d: amplitude %g", run, a[GaussAmplitude])
		}
	}
}

func TestGaussNewtonCapabilities(t *testing.T) {
	s := NewGaussNewton(nil)
	if s.IsBounded() {
		t.Error("core solver must not report bounded")
	}
	if s.IsConstrained() {
		t.Error("core solver must not report constrained")
	}
}
