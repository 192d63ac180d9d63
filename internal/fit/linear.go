package fit

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// epsGradient is the magnitude below which a gradient entry is treated as
// already converged and fixed at zero before solving the normal equations.
// This stops the solve from amplifying noise in tiny gradients. The level is
// a heuristic with no sensitivity analysis behind it; tune with care.
const epsGradient = 1e-16

var errSingular = errors.New("fit: singular normal equations")

// linearSolver solves the symmetric normal-equation systems of the
// Gauss-Newton iteration and inverts the undamped system for covariance
// estimation. Cholesky is attempted first; LU is the fallback for systems the
// damping has not made positive definite.
type linearSolver struct {
	x *mat.VecDense
}

// Solve solves a·x = b and writes x over b. Entries of b below epsGradient in
// magnitude are fixed at zero by replacing the matching row and column of a
// with the identity, excluding that variable from the system. a is clobbered.
func (ls *linearSolver) Solve(a *mat.SymDense, b []float64) error {
	m := len(b)
	for j := 0; j < m; j++ {
		if b[j] > -epsGradient && b[j] < epsGradient {
			b[j] = 0
			for k := 0; k < m; k++ {
				a.SetSym(j, k, 0)
			}
			a.SetSym(j, j, 1)
		}
	}

	if ls.x == nil || ls.x.Len() != m {
		ls.x = mat.NewVecDense(m, nil)
	}
	rhs := mat.NewVecDense(m, b)

	var chol mat.Cholesky
	if chol.Factorize(a) {
		if err := chol.SolveVecTo(ls.x, rhs); err == nil {
			copy(b, ls.x.RawVector().Data)
			return nil
		}
	}

	// Not positive definite; fall back to a pivoted LU solve.
	var lu mat.LU
	lu.Factorize(a)
	if err := lu.SolveVecTo(ls.x, false, rhs); err != nil {
		return errSingular
	}
	copy(b, ls.x.RawVector().Data)
	return nil
}

// Invert inverts the symmetric matrix a into dst. Used only for covariance
// estimation after a successful fit.
func (ls *linearSolver) Invert(a *mat.SymDense, dst *mat.SymDense) error {
	var chol mat.Cholesky
	if !chol.Factorize(a) {
		return errSingular
	}
	if err := chol.InverseTo(dst); err != nil {
		return errSingular
	}
	return nil
}
