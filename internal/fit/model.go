package fit

// Model is the objective-model contract consumed by the solvers. A model maps
// a full coefficient vector to a predicted value at each sample index.
//
// GradientIndices identifies which coefficients are optimized: it returns an
// ordered list of positions into the full coefficient vector. Its length m
// sizes every working buffer of a fit call and it must not change between
// Initialise and the end of the call.
type Model interface {
	// GradientIndices returns the ordered positions of the fitted
	// coefficients within the full coefficient vector.
	GradientIndices() []int

	// Initialise prepares the model to evaluate at the given coefficients.
	Initialise(a []float64)

	// Eval returns the predicted value at sample index i.
	Eval(i int) float64

	// CanComputeWeights reports whether the model's fitting metric is a
	// weighted or likelihood quantity, in which case the residual sum of
	// squares must be recomputed from the fitted curve after the fit.
	CanComputeWeights() bool
}

// GradientModel extends Model with analytic first derivatives.
type GradientModel interface {
	Model

	// EvalGradient returns the predicted value at sample index i and fills
	// dyda with the partial derivatives with respect to each fitted
	// coefficient, in GradientIndices order. len(dyda) equals the number of
	// fitted coefficients.
	EvalGradient(i int, dyda []float64) float64
}
