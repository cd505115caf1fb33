// Public domain.

// Package rtstokes holds Stokes extinction matrices and the polarization
// structure that selects a closed form for their exponential.
package rtstokes

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Case is the polarization structure of an extinction matrix.
type Case int

const (
	// Unclassified is the zero Case, not yet analysed.
	Unclassified Case = iota
	// Unpolarized matrices are diagonal, or Stokes dimension 1.
	Unpolarized
	// LinearCircularSymmetric matrices couple I with Q and U with V only.
	LinearCircularSymmetric
	// General is any other valid extinction matrix.
	General
)

var caseNames = [...]string{"unclassified", "unpolarized",
	"linear/circular symmetric", "general"}

func (c Case) String() string {
	if c < 0 || int(c) >= len(caseNames) {
		return fmt.Sprintf("Case(%d)", int(c))
	}
	return caseNames[c]
}

// ExtMat is a Stokes extinction matrix with its Case cached after first
// analysis.  Modifying the matrix through Set or Add resets the cache;
// modifying it through Dense does not.
type ExtMat struct {
	m *mat.Dense
	c Case
}

// NewExtMat returns a zero n×n extinction matrix, n the Stokes dimension.
func NewExtMat(n int) *ExtMat {
	return &ExtMat{m: mat.NewDense(n, n, nil)}
}

// FromDense wraps m, which must be square with 1 to 4 rows.
func FromDense(m *mat.Dense) *ExtMat {
	r, c := m.Dims()
	if r != c || r < 1 || r > 4 {
		panic(fmt.Sprintf("rtstokes: extinction matrix must be square with "+
			"Stokes dimension 1 to 4, got %dx%d", r, c))
	}
	return &ExtMat{m: m}
}

// Diag returns an unpolarized extinction matrix with k on the diagonal.
func Diag(n int, k float64) *ExtMat {
	e := NewExtMat(n)
	for i := 0; i < n; i++ {
		e.m.Set(i, i, k)
	}
	e.c = Unpolarized
	return e
}

// Stokes returns the Stokes dimension.
func (e *ExtMat) Stokes() int {
	n, _ := e.m.Dims()
	return n
}

// Dense returns the underlying matrix.
func (e *ExtMat) Dense() *mat.Dense { return e.m }

// At returns element i, j.
func (e *ExtMat) At(i, j int) float64 { return e.m.At(i, j) }

// Set sets element i, j.
func (e *ExtMat) Set(i, j int, v float64) {
	e.m.Set(i, j, v)
	e.c = Unclassified
}

// Clone returns a deep copy with the same cached Case.
func (e *ExtMat) Clone() *ExtMat {
	return &ExtMat{m: mat.DenseCopyOf(e.m), c: e.c}
}

// Add adds b to e.
func (e *ExtMat) Add(b *ExtMat) {
	e.m.Add(e.m, b.m)
	e.c = Unclassified
}

// Scale multiplies e by f.  The Case is unchanged unless f is 0.
func (e *ExtMat) Scale(f float64) {
	e.m.Scale(f, e.m)
	if f == 0 {
		e.c = Unclassified
	}
}

// Mean returns the element-wise mean of a and b.  The Case is not carried
// over.
func Mean(a, b *ExtMat) *ExtMat {
	var m mat.Dense
	m.Add(a.m, b.m)
	m.Scale(.5, &m)
	return &ExtMat{m: &m}
}

// Case returns the cached Case, analysing the matrix on first use.
// Analysis panics if the matrix violates the symmetries of an extinction
// matrix.
func (e *ExtMat) Case() Case {
	if e.c == Unclassified {
		e.c = Classify(e.m)
	}
	return e.c
}

// WithCase sets the Case a priori, skipping analysis and its checks.
// It returns e.
func (e *ExtMat) WithCase(c Case) *ExtMat {
	e.c = c
	return e
}

// Classify analyses the structure of extinction matrix k.  It panics on a
// symmetry violation, which indicates an inconsistent matrix from the
// absorption model.
func Classify(k mat.Matrix) Case {
	n, _ := k.Dims()
	c := Unpolarized
	if n == 1 {
		return c
	}
	mustEqual(k, 1, 1, 0, 0, 1)
	mustEqual(k, 1, 0, 0, 1, 1)
	if k.At(1, 0) != 0 {
		c = LinearCircularSymmetric
	}
	if n >= 3 {
		mustEqual(k, 2, 2, 0, 0, 1)
		mustEqual(k, 2, 1, 1, 2, -1)
		mustEqual(k, 2, 0, 0, 2, 1)
		if k.At(2, 0) != 0 || k.At(2, 1) != 0 {
			c = General
		}
		if n > 3 {
			mustEqual(k, 3, 3, 0, 0, 1)
			mustEqual(k, 3, 2, 2, 3, -1)
			mustEqual(k, 3, 1, 1, 3, -1)
			mustEqual(k, 3, 0, 0, 3, 1)
			if c < General {
				switch {
				case k.At(3, 0) != 0 || k.At(3, 1) != 0:
					c = General
				case k.At(3, 2) != 0:
					c = LinearCircularSymmetric
				}
			}
		}
	}
	return c
}

// mustEqual panics unless k(i, j) == sign·k(p, q).
func mustEqual(k mat.Matrix, i, j, p, q int, sign float64) {
	if a, b := k.At(i, j), sign*k.At(p, q); a != b {
		s := ""
		if sign < 0 {
			s = "-"
		}
		panic(fmt.Sprintf("rtstokes: extinction matrix symmetry violated: "+
			"ext(%d,%d) = %g, %sext(%d,%d) = %g", i, j, a, s, p, q, b))
	}
}

// Identity returns an n×n identity matrix.
func Identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}
