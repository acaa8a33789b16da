// Package optimize provides the numerical machinery for the built-in
// geometry driver: a BFGS minimizer with a trust-radius step, a symmetric
// eigensolver, and an eigenvector-following step for saddle point searches.
// All vectors are flattened cartesian coordinates in bohr; gradients are in
// hartree/bohr.
package optimize

import (
	"fmt"
	"math"
)

// Convergence thresholds on the gradient, in hartree/bohr.
const (
	MaxGradientTol = 4.5e-4
	RMSGradientTol = 3.0e-4
)

// GradientConverged reports whether the gradient satisfies both the max
// component and RMS thresholds.
func GradientConverged(g []float64) bool {
	if len(g) == 0 {
		return false
	}
	var maxAbs, sumSq float64
	for _, v := range g {
		if a := math.Abs(v); a > maxAbs {
			maxAbs = a
		}
		sumSq += v * v
	}
	rms := math.Sqrt(sumSq / float64(len(g)))
	return maxAbs < MaxGradientTol && rms < RMSGradientTol
}

// BFGS maintains an inverse Hessian approximation for minimization.
type BFGS struct {
	h [][]float64
}

// NewBFGS starts from the identity, equivalent to a first steepest descent
// step.
func NewBFGS(n int) *BFGS {
	h := make([][]float64, n)
	for i := range h {
		h[i] = make([]float64, n)
		h[i][i] = 1
	}
	return &BFGS{h: h}
}

// Step proposes a quasi-Newton displacement, scaled down to the trust radius
// when it overshoots.
func (b *BFGS) Step(g []float64, trust float64) []float64 {
	dx := make([]float64, len(g))
	for i := range b.h {
		for j, v := range b.h[i] {
			dx[i] -= v * g[j]
		}
	}
	clip(dx, trust)
	return dx
}

// Update applies the BFGS inverse Hessian update for displacement dx and
// gradient change dg. Updates with non-positive curvature are skipped to keep
// the approximation positive definite.
func (b *BFGS) Update(dx, dg []float64) {
	sy := dot(dx, dg)
	if sy <= 1e-10 {
		return
	}
	n := len(dx)
	rho := 1 / sy

	// H' = (I - rho s y^T) H (I - rho y s^T) + rho s s^T
	hy := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			hy[i] += b.h[i][j] * dg[j]
		}
	}
	yhy := dot(dg, hy)

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			b.h[i][j] += rho*rho*yhy*dx[i]*dx[j] +
				rho*dx[i]*dx[j] -
				rho*(dx[i]*hy[j]+hy[i]*dx[j])
		}
	}
}

// Jacobi diagonalizes a symmetric matrix by cyclic Jacobi rotations. It
// returns the eigenvalues ascending and the matching eigenvectors as rows.
func Jacobi(a [][]float64) (vals []float64, vecs [][]float64, err error) {
	n := len(a)
	m := make([][]float64, n)
	v := make([][]float64, n)
	for i := 0; i < n; i++ {
		if len(a[i]) != n {
			return nil, nil, fmt.Errorf("matrix is not square: row %d has %d columns, want %d", i, len(a[i]), n)
		}
		m[i] = append([]float64(nil), a[i]...)
		v[i] = make([]float64, n)
		v[i][i] = 1
	}

	for sweep := 0; sweep < 100; sweep++ {
		var off float64
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				off += m[i][j] * m[i][j]
			}
		}
		if off < 1e-20 {
			break
		}
		for p := 0; p < n; p++ {
			for q := p + 1; q < n; q++ {
				if math.Abs(m[p][q]) < 1e-15 {
					continue
				}
				theta := (m[q][q] - m[p][p]) / (2 * m[p][q])
				t := math.Copysign(1, theta) / (math.Abs(theta) + math.Sqrt(theta*theta+1))
				c := 1 / math.Sqrt(t*t+1)
				s := t * c
				for k := 0; k < n; k++ {
					mkp, mkq := m[k][p], m[k][q]
					m[k][p] = c*mkp - s*mkq
					m[k][q] = s*mkp + c*mkq
				}
				for k := 0; k < n; k++ {
					mpk, mqk := m[p][k], m[q][k]
					m[p][k] = c*mpk - s*mqk
					m[q][k] = s*mpk + c*mqk
				}
				for k := 0; k < n; k++ {
					vkp, vkq := v[k][p], v[k][q]
					v[k][p] = c*vkp - s*vkq
					v[k][q] = s*vkp + c*vkq
				}
			}
		}
	}

	vals = make([]float64, n)
	vecs = make([][]float64, n)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if m[order[j]][order[j]] < m[order[i]][order[i]] {
				order[i], order[j] = order[j], order[i]
			}
		}
	}
	for rank, col := range order {
		vals[rank] = m[col][col]
		vec := make([]float64, n)
		for k := 0; k < n; k++ {
			vec[k] = v[k][col]
		}
		vecs[rank] = vec
	}
	return vals, vecs, nil
}

// SaddleStep proposes an eigenvector-following displacement toward a first
// order saddle point: uphill along the lowest Hessian mode, downhill along
// the rest.
func SaddleStep(hess [][]float64, g []float64, trust float64) ([]float64, error) {
	vals, vecs, err := Jacobi(hess)
	if err != nil {
		return nil, err
	}
	n := len(g)
	const shift = 0.05

	dx := make([]float64, n)
	for mode := 0; mode < n; mode++ {
		gm := dot(vecs[mode], g)
		var coeff float64
		if mode == 0 {
			coeff = gm / (math.Abs(vals[mode]) + shift)
		} else {
			denom := vals[mode]
			if denom < shift {
				denom = shift
			}
			coeff = -gm / denom
		}
		for k := 0; k < n; k++ {
			dx[k] += coeff * vecs[mode][k]
		}
	}
	clip(dx, trust)
	return dx, nil
}

// BofillUpdate refines a Hessian approximation in place from one
// displacement and gradient change. Unlike BFGS it tolerates negative
// curvature, which saddle searches depend on.
func BofillUpdate(hess [][]float64, dx, dg []float64) {
	n := len(dx)
	// xi = dg - H dx
	xi := make([]float64, n)
	for i := 0; i < n; i++ {
		xi[i] = dg[i]
		for j := 0; j < n; j++ {
			xi[i] -= hess[i][j] * dx[j]
		}
	}
	xs := dot(xi, dx)
	ss := dot(dx, dx)
	xx := dot(xi, xi)
	if ss < 1e-14 || xx < 1e-14 {
		return
	}

	// Mix of symmetric rank-one and Powell updates per Bofill's phi. The
	// rank-one term is dropped when its denominator vanishes.
	phi := (xs * xs) / (ss * xx)
	if math.Abs(xs) <= 1e-14 {
		phi = 0
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var sr1 float64
			if phi > 0 {
				sr1 = xi[i] * xi[j] / xs
			}
			powell := (xi[i]*dx[j]+dx[i]*xi[j])/ss - xs*dx[i]*dx[j]/(ss*ss)
			hess[i][j] += phi*sr1 + (1-phi)*powell
		}
	}
}

// NumericalHessian builds a Hessian by central differences of the gradient.
// grad is called 2n times with displaced coordinates.
func NumericalHessian(grad func(x []float64) ([]float64, error), x []float64, step float64) ([][]float64, error) {
	n := len(x)
	hess := make([][]float64, n)
	for i := range hess {
		hess[i] = make([]float64, n)
	}

	probe := append([]float64(nil), x...)
	for i := 0; i < n; i++ {
		probe[i] = x[i] + step
		plus, err := grad(probe)
		if err != nil {
			return nil, err
		}
		probe[i] = x[i] - step
		minus, err := grad(probe)
		if err != nil {
			return nil, err
		}
		probe[i] = x[i]
		for j := 0; j < n; j++ {
			hess[i][j] = (plus[j] - minus[j]) / (2 * step)
		}
	}

	// Symmetrize; finite differences never come out exactly symmetric.
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			avg := (hess[i][j] + hess[j][i]) / 2
			hess[i][j] = avg
			hess[j][i] = avg
		}
	}
	return hess, nil
}

func dot(a, b []float64) float64 {
	var sum float64
	for i, v := range a {
		sum += v * b[i]
	}
	return sum
}

func clip(dx []float64, trust float64) {
	if trust <= 0 {
		return
	}
	norm := math.Sqrt(dot(dx, dx))
	if norm <= trust {
		return
	}
	scale := trust / norm
	for i := range dx {
		dx[i] *= scale
	}
}
