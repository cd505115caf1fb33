// Public domain.

package rttrans

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// SeriesOrder is the Padé order used for the general matrix exponential.
const SeriesOrder = 10

// scaling returns j, the number of squarings bringing a's infinity norm
// below 1/2.
func scaling(a mat.Matrix) int {
	norm := mat.Norm(a, math.Inf(1))
	if norm == 0 {
		return 0
	}
	return max(0, 1+int(math.Floor(math.Log2(norm))))
}

// MatrixExp sets dst to exp(a) using a Padé approximation of order q with
// scaling and squaring.
func MatrixExp(dst *mat.Dense, a mat.Matrix, q int) {
	MatrixExpDeriv(dst, nil, a, nil, q)
}

// MatrixExpDeriv sets dst to exp(a) and each dF[i] to the derivative of
// exp(a) in the direction da[i].
func MatrixExpDeriv(dst *mat.Dense, dF []*mat.Dense, a mat.Matrix, da []mat.Matrix, q int) {
	n, _ := a.Dims()
	j := scaling(a)
	s := math.Ldexp(1, -j)

	var as mat.Dense
	as.Scale(s, a)
	nd := len(da)
	das := make([]*mat.Dense, nd)
	for i, d := range da {
		das[i] = mat.NewDense(n, n, nil)
		das[i].Scale(s, d)
	}

	c := .5
	x := mat.DenseCopyOf(&as)
	num := identity(n)
	num.Add(num, scaled(c, x))
	den := identity(n)
	den.Sub(den, scaled(c, x))
	dx := make([]*mat.Dense, nd)
	dnum := make([]*mat.Dense, nd)
	dden := make([]*mat.Dense, nd)
	for i := range das {
		dx[i] = mat.DenseCopyOf(das[i])
		dnum[i] = scaled(c, das[i])
		dden[i] = scaled(-c, das[i])
	}

	var t1, t2 mat.Dense
	for k := 2; k <= q; k++ {
		c *= float64(q-k+1) / float64(k*(2*q-k+1))
		for i := range dx {
			// d(A·X) = dA·X + A·dX
			t1.Mul(das[i], x)
			t2.Mul(&as, dx[i])
			dx[i].Add(&t1, &t2)
		}
		x.Mul(&as, x)
		num.Add(num, scaled(c, x))
		for i := range dx {
			dnum[i].Add(dnum[i], scaled(c, dx[i]))
		}
		sign := c
		if k%2 == 1 {
			sign = -c
		}
		den.Add(den, scaled(sign, x))
		for i := range dx {
			dden[i].Add(dden[i], scaled(sign, dx[i]))
		}
	}

	solve(dst, den, num)
	for i := range dF {
		// dE = D⁻¹(dN − dD·E)
		t1.Mul(dden[i], dst)
		t2.Sub(dnum[i], &t1)
		solve(dF[i], den, &t2)
	}
	for k := 0; k < j; k++ {
		for i := range dF {
			t1.Mul(dF[i], dst)
			t2.Mul(dst, dF[i])
			dF[i].Add(&t1, &t2)
		}
		dst.Mul(dst, dst)
	}
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

func scaled(f float64, a mat.Matrix) *mat.Dense {
	var m mat.Dense
	m.Scale(f, a)
	return &m
}

// solve sets dst to a⁻¹b.  The Padé denominator of a scaled matrix is well
// conditioned, so only an exactly singular a is fatal.
func solve(dst *mat.Dense, a, b mat.Matrix) {
	var x mat.Dense
	if err := x.Solve(a, b); err != nil {
		if _, ok := err.(mat.Condition); !ok {
			panic("rttrans: singular Padé denominator: " + err.Error())
		}
	}
	dst.CloneFrom(&x)
}
