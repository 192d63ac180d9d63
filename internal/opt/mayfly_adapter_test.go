package opt

import (
	"math"
	"testing"
)

func TestMayflySphere(t *testing.T) {
	obj := sphereAt([]float64{0, 0, 0})
	obj.Lower = []float64{-10, -10, -10}
	obj.Upper = []float64{10, 10, 10}

	res, err := NewMayfly(200, 20, 42).Minimize(obj, []float64{5, 5, 5}, Budget{})
	if err != nil {
		t.Fatalf("minimize failed: %v", err)
	}
	if res.F > 0.1 {
		t.Errorf("expected cost below 0.1, got %g", res.F)
	}
	for i, v := range res.X {
		if v < -10 || v > 10 {
			t.Errorf("coordinate %d out of bounds: %g", i, v)
		}
	}
}

func TestMayflyDeterministicSeed(t *testing.T) {
	run := func() []float64 {
		obj := sphereAt([]float64{1, -2})
		obj.Lower = []float64{-10, -10}
		obj.Upper = []float64{10, 10}
		res, err := NewMayfly(100, 20, 7).Minimize(obj, []float64{0, 0}, Budget{})
		if err != nil {
			t.Fatalf("minimize failed: %v", err)
		}
		return res.X
	}

	first := run()
	second := run()
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("same seed diverged at %d: %g vs %g", i, first[i], second[i])
		}
	}
}

func TestMayflyRestartsUntilEvaluationFloor(t *testing.T) {
	obj := sphereAt([]float64{0, 0})
	obj.Lower = []float64{-1, -1}
	obj.Upper = []float64{1, 1}

	// One iteration per run forces restarts until the evaluation floor of
	// 30 per squared dimension is met.
	res, err := NewMayfly(1, 20, 42).Minimize(obj, []float64{0, 0}, Budget{})
	if err != nil {
		t.Fatalf("minimize failed: %v", err)
	}
	if res.Evaluations < 30*2*2 {
		t.Errorf("expected at least %d evaluations, got %d", 30*2*2, res.Evaluations)
	}
}

func TestMayflyRequiresBounds(t *testing.T) {
	obj := sphereAt([]float64{0, 0})
	if _, err := NewMayfly(10, 20, 1).Minimize(obj, []float64{0, 0}, Budget{}); err == nil {
		t.Error("expected an error without bounds")
	}
}

func TestMayflyBudgetCapsRestarts(t *testing.T) {
	obj := sphereAt([]float64{0, 0, 0})
	obj.Lower = []float64{-1, -1, -1}
	obj.Upper = []float64{1, 1, 1}

	res, err := NewMayfly(1, 20, 42).Minimize(obj, []float64{0, 0, 0}, Budget{MaxEvaluations: 50})
	if err != nil {
		t.Fatalf("minimize failed: %v", err)
	}
	// The floor is 270 for three dimensions but the budget stops the
	// restart loop well before that.
	if res.Evaluations >= 270 {
		t.Errorf("budget did not cap the restarts: %d evaluations", res.Evaluations)
	}
	if math.IsNaN(res.F) {
		t.Error("result cost is NaN")
	}
}
