// Public domain.

// Package rtinteg integrates the vector radiative transfer equation along
// a propagation path, with Jacobians, and converts the resulting spectra to
// output units.
package rtinteg

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/soniakeys/rtpath/internal/rtstokes"
)

// EmissionStep advances radiance iy over one path step toward the sensor.
// t is the step transmission and c the case of the mean extinction it was
// computed from.  b is the mean blackbody radiance.  For a non-LTE step k
// is the mean extinction and j the mean non-LTE source, both nil in LTE.
//
// EmissionStep panics if a general non-LTE step has a singular k.
func EmissionStep(iy []float64, t mat.Matrix, c rtstokes.Case, b float64, k *rtstokes.ExtMat, j []float64) {
	n := len(iy)
	if n == 1 || c == rtstokes.Unpolarized {
		s := b
		if j != nil {
			s += j[0] / k.At(0, 0)
		}
		t00 := t.At(0, 0)
		iy[0] = t00*iy[0] + (1-t00)*s
		for is := 1; is < n; is++ {
			iy[is] *= t.At(is, is)
		}
		return
	}
	tt := mat.NewVecDense(n, nil)
	tt.MulVec(t, mat.NewVecDense(n, iy))
	if j == nil {
		iy[0] = tt.AtVec(0) + (1-t.At(0, 0))*b
		for is := 1; is < n; is++ {
			iy[is] = tt.AtVec(is) - t.At(is, 0)*b
		}
		return
	}
	jn := solve(k, j)
	jn[0] += b
	var tj mat.VecDense
	tj.MulVec(t, mat.NewVecDense(n, jn))
	for is := range iy {
		iy[is] = tt.AtVec(is) + jn[is] - tj.AtVec(is)
	}
}

// stepSource returns the source vector s of a step, the vector with
// iy' = T·iy + (1-T)·s for EmissionStep.
func stepSource(n int, c rtstokes.Case, b float64, k *rtstokes.ExtMat, j []float64) []float64 {
	s := make([]float64, n)
	switch {
	case j == nil:
		s[0] = b
	case n == 1 || c == rtstokes.Unpolarized:
		s[0] = b + j[0]/k.At(0, 0)
	default:
		s = solve(k, j)
		s[0] += b
	}
	return s
}

// dStepSource returns the derivative of the step source for a change db
// of the mean blackbody radiance, dj of the mean non-LTE source and dk of
// the mean extinction.  dj and dk may be nil.
func dStepSource(n int, c rtstokes.Case, db float64, k *rtstokes.ExtMat, j, dj []float64, dk mat.Matrix) []float64 {
	ds := make([]float64, n)
	ds[0] = db
	if j == nil {
		return ds
	}
	if n == 1 || c == rtstokes.Unpolarized {
		k00 := k.At(0, 0)
		if dj != nil {
			ds[0] += dj[0] / k00
		}
		if dk != nil {
			ds[0] -= j[0] * dk.At(0, 0) / (k00 * k00)
		}
		return ds
	}
	// d(K⁻¹J) = K⁻¹(dJ - dK·K⁻¹J)
	rhs := make([]float64, n)
	if dj != nil {
		copy(rhs, dj)
	}
	if dk != nil {
		var v mat.VecDense
		v.MulVec(dk, mat.NewVecDense(n, solve(k, j)))
		for i := range rhs {
			rhs[i] -= v.AtVec(i)
		}
	}
	d := solve(k, rhs)
	for i := range ds {
		ds[i] += d[i]
	}
	return ds
}

// solve returns K⁻¹·j.
func solve(k *rtstokes.ExtMat, j []float64) []float64 {
	n := len(j)
	var x mat.VecDense
	if err := x.SolveVec(k.Dense(), mat.NewVecDense(n, append([]float64{}, j...))); err != nil {
		if _, ok := err.(mat.Condition); !ok {
			panic(fmt.Sprintf("rtinteg: singular extinction matrix in non-LTE step: %v", err))
		}
	}
	return append([]float64{}, x.RawVector().Data[:n]...)
}
