package fit

import "math"

// Coefficient positions for the 2D Gaussian peak model.
const (
	GaussBackground = iota
	GaussAmplitude
	GaussX
	GaussY
	GaussWidthX
	GaussWidthY
	gaussCoefficients
)

// Gaussian2D is a single elliptical 2D Gaussian peak with constant background,
// evaluated over a width×height sample grid in row-major order:
//
//	f(x, y) = B + A·exp(-(x-x0)²/(2·sx²) - (y-y0)²/(2·sy²))
//
// All six coefficients are fitted unless some are fixed.
type Gaussian2D struct {
	width, height int
	indices       []int

	// captured at Initialise
	background, amplitude float64
	x0, y0                float64
	nx, ny                float64 // -1/(2·s²) per axis
	sx, sy                float64
}

// NewGaussian2D creates a Gaussian peak model over a width×height grid with
// all six coefficients fitted.
func NewGaussian2D(width, height int) *Gaussian2D {
	g := &Gaussian2D{width: width, height: height}
	g.indices = make([]int, gaussCoefficients)
	for i := range g.indices {
		g.indices[i] = i
	}
	return g
}

// FixCoefficients removes the given coefficient positions from the fitted set.
// The remaining coefficients keep their relative order.
func (g *Gaussian2D) FixCoefficients(fixed ...int) {
	kept := g.indices[:0]
	for _, idx := range g.indices {
		hold := false
		for _, f := range fixed {
			if idx == f {
				hold = true
				break
			}
		}
		if !hold {
			kept = append(kept, idx)
		}
	}
	g.indices = kept
}

// Size returns the number of samples in the grid.
func (g *Gaussian2D) Size() int { return g.width * g.height }

func (g *Gaussian2D) GradientIndices() []int { return g.indices }

func (g *Gaussian2D) CanComputeWeights() bool { return false }

func (g *Gaussian2D) Initialise(a []float64) {
	g.background = a[GaussBackground]
	g.amplitude = a[GaussAmplitude]
	g.x0 = a[GaussX]
	g.y0 = a[GaussY]
	g.sx = a[GaussWidthX]
	g.sy = a[GaussWidthY]
	g.nx = -1 / (2 * g.sx * g.sx)
	g.ny = -1 / (2 * g.sy * g.sy)
}

func (g *Gaussian2D) Eval(i int) float64 {
	dx := float64(i%g.width) - g.x0
	dy := float64(i/g.width) - g.y0
	return g.background + g.amplitude*math.Exp(g.nx*dx*dx+g.ny*dy*dy)
}

func (g *Gaussian2D) EvalGradient(i int, dyda []float64) float64 {
	dx := float64(i%g.width) - g.x0
	dy := float64(i/g.width) - g.y0
	e := math.Exp(g.nx*dx*dx + g.ny*dy*dy)
	ae := g.amplitude * e

	var full [gaussCoefficients]float64
	full[GaussBackground] = 1
	full[GaussAmplitude] = e
	full[GaussX] = ae * dx / (g.sx * g.sx)
	full[GaussY] = ae * dy / (g.sy * g.sy)
	full[GaussWidthX] = ae * dx * dx / (g.sx * g.sx * g.sx)
	full[GaussWidthY] = ae * dy * dy / (g.sy * g.sy * g.sy)

	for j, idx := range g.indices {
		dyda[j] = full[idx]
	}
	return g.background + ae
}
