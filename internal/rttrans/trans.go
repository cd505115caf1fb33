// Public domain.

// Package rttrans computes transmission matrices along a propagation path.
package rttrans

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/soniakeys/rtpath/internal/rtjac"
	"github.com/soniakeys/rtpath/internal/rtpath"
	"github.com/soniakeys/rtpath/internal/rtpropmat"
	"github.com/soniakeys/rtpath/internal/rtstokes"
)

// Ext2Trans returns the transmission exp(-K·l) for extinction k over a
// distance l.  The unpolarized and the linear/circular symmetric cases use
// closed forms, the general case the Padé series.
func Ext2Trans(k *rtstokes.ExtMat, l float64) *mat.Dense {
	n := k.Stokes()
	t := mat.NewDense(n, n, nil)
	switch k.Case() {
	case rtstokes.Unpolarized:
		e := math.Exp(-k.At(0, 0) * l)
		for i := 0; i < n; i++ {
			t.Set(i, i, e)
		}
	case rtstokes.LinearCircularSymmetric:
		tI := math.Exp(-k.At(0, 0) * l)
		hq := k.At(0, 1) * l
		ch := tI * math.Cosh(hq)
		sh := -tI * math.Sinh(hq)
		t.Set(0, 0, ch)
		t.Set(1, 1, ch)
		t.Set(0, 1, sh)
		t.Set(1, 0, sh)
		switch n {
		case 3:
			t.Set(2, 2, tI)
		case 4:
			rq := k.At(2, 3) * l
			c := tI * math.Cos(rq)
			s := tI * math.Sin(rq)
			t.Set(2, 2, c)
			t.Set(3, 3, c)
			t.Set(3, 2, s)
			t.Set(2, 3, -s)
		}
	default:
		MatrixExp(t, scaled(-l, k.Dense()), SeriesOrder)
	}
	return t
}

// Ext2TransDeriv returns the transmission for k over l and its derivatives
// for extinction derivatives dk.  A nil dk gives a nil derivative.  The
// unpolarized case with diagonal derivatives is closed form, everything
// else goes through the series.
func Ext2TransDeriv(k *rtstokes.ExtMat, l float64, dk []*mat.Dense) (t *mat.Dense, dt []*mat.Dense) {
	dt = make([]*mat.Dense, len(dk))
	closed := k.Case() == rtstokes.Unpolarized
	for _, d := range dk {
		closed = closed && (d == nil || diagonal(d))
	}
	if closed {
		t = Ext2Trans(k, l)
		n := k.Stokes()
		for i, d := range dk {
			if d == nil {
				continue
			}
			dt[i] = mat.NewDense(n, n, nil)
			v := -t.At(0, 0) * l * d.At(0, 0)
			for j := 0; j < n; j++ {
				dt[i].Set(j, j, v)
			}
		}
		return
	}
	n := k.Stokes()
	t = mat.NewDense(n, n, nil)
	var da []mat.Matrix
	var idx []int
	for i, d := range dk {
		if d != nil {
			da = append(da, scaled(-l, d))
			idx = append(idx, i)
		}
	}
	df := make([]*mat.Dense, len(da))
	for i := range df {
		df[i] = mat.NewDense(n, n, nil)
	}
	MatrixExpDeriv(t, df, scaled(-l, k.Dense()), da, SeriesOrder)
	for i, j := range idx {
		dt[j] = df[i]
	}
	return
}

// diagonal reports whether d is a multiple of the identity.
func diagonal(d mat.Matrix) bool {
	n, _ := d.Dims()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j && d.At(i, j) != 0 || i == j && d.At(i, j) != d.At(0, 0) {
				return false
			}
		}
	}
	return true
}

// Set holds transmissions along a path.
type Set struct {
	NP, NF, Stokes int

	Partial    [][]*mat.Dense       // [step][f], step i from point i to i+1
	Cumulative [][]*mat.Dense       // [point][f], identity at point 0
	ExtBar     [][]*rtstokes.ExtMat // [step][f], mean extinction
	Cases      [][]rtstokes.Case    // [step][f]
	ScalarTau  []float64            // [f], total unpolarized optical depth
	// DAbove and DBelow are the partial transmission derivatives for
	// extinction changes at the far and near point of each step,
	// [target][step][f].  Entries for skipped targets are nil.
	DAbove, DBelow [][][]*mat.Dense
}

// Compute integrates transmissions along p for propagation matrices pm.
// Derivatives are computed when pm has them, targets gives their methods.
func Compute(p *rtpath.Path, pm *rtpropmat.Set, targets *rtjac.Set) (*Set, error) {
	return ComputeCloudy(p, pm, nil, targets)
}

// ComputeCloudy is Compute with particle extinction pt added at cloudy
// points.  pt may be nil.
func ComputeCloudy(p *rtpath.Path, pm *rtpropmat.Set, pt *rtpropmat.Particles, targets *rtjac.Set) (*Set, error) {
	if pm.NP != p.NP {
		return nil, fmt.Errorf("propagation matrix points: expected %d, got %d", p.NP, pm.NP)
	}
	if len(p.Lstep) != p.NP-1 {
		return nil, fmt.Errorf("path steps: expected %d, got %d", p.NP-1, len(p.Lstep))
	}
	nq := targets.Len()
	if len(pm.DExt) != nq {
		return nil, fmt.Errorf("extinction derivatives: expected %d targets, got %d",
			nq, len(pm.DExt))
	}
	if pt != nil && len(pt.Clear2Cloud) != p.NP {
		return nil, fmt.Errorf("particle points: expected %d, got %d",
			p.NP, len(pt.Clear2Cloud))
	}
	nf, ns := pm.NF, pm.Stokes
	nstep := max(p.NP-1, 0)
	s := &Set{NP: p.NP, NF: nf, Stokes: ns,
		Partial:    make([][]*mat.Dense, nstep),
		Cumulative: make([][]*mat.Dense, p.NP),
		ExtBar:     make([][]*rtstokes.ExtMat, nstep),
		Cases:      make([][]rtstokes.Case, nstep),
		ScalarTau:  make([]float64, nf),
	}
	if nq > 0 {
		s.DAbove = make([][][]*mat.Dense, nq)
		s.DBelow = make([][][]*mat.Dense, nq)
		for iq := range pm.DExt {
			if pm.DExt[iq] != nil {
				s.DAbove[iq] = make([][]*mat.Dense, nstep)
				s.DBelow[iq] = make([][]*mat.Dense, nstep)
			}
		}
	}

	ext := func(ip, iv int) *rtstokes.ExtMat {
		k := pm.Ext[ip][iv]
		if e := pt.ExtAt(ip, iv); e != nil {
			k = k.Clone()
			k.Add(e)
		}
		return k
	}
	s.Cumulative[0] = make([]*mat.Dense, nf)
	for iv := range s.Cumulative[0] {
		s.Cumulative[0][iv] = rtstokes.Identity(ns)
	}
	dk := make([]*mat.Dense, 2*nq)
	for i := 0; i < nstep; i++ {
		l := p.Lstep[i]
		s.Partial[i] = make([]*mat.Dense, nf)
		s.Cumulative[i+1] = make([]*mat.Dense, nf)
		s.ExtBar[i] = make([]*rtstokes.ExtMat, nf)
		s.Cases[i] = make([]rtstokes.Case, nf)
		for iq := range s.DAbove {
			if s.DAbove[iq] != nil {
				s.DAbove[iq][i] = make([]*mat.Dense, nf)
				s.DBelow[iq][i] = make([]*mat.Dense, nf)
			}
		}
		for iv := 0; iv < nf; iv++ {
			kb := rtstokes.Mean(ext(i, iv), ext(i+1, iv))
			s.ExtBar[i][iv] = kb
			s.Cases[i][iv] = kb.Case()
			s.ScalarTau[iv] += l * kb.At(0, 0)

			var t *mat.Dense
			if nq == 0 {
				t = Ext2Trans(kb, l)
			} else {
				for iq := 0; iq < nq; iq++ {
					dk[2*iq], dk[2*iq+1] = nil, nil
					d := pm.DExt[iq]
					if d == nil {
						continue
					}
					w := .5
					if targets.Targets[iq].Method == rtjac.Flux {
						w = 0
						if l > 0 {
							w = .5 / l
						}
					}
					dk[2*iq] = scaled(w, d[i+1][iv])
					dk[2*iq+1] = scaled(w, d[i][iv])
				}
				var dt []*mat.Dense
				t, dt = Ext2TransDeriv(kb, l, dk)
				for iq := 0; iq < nq; iq++ {
					if s.DAbove[iq] != nil {
						s.DAbove[iq][i][iv] = dt[2*iq]
						s.DBelow[iq][i][iv] = dt[2*iq+1]
					}
				}
			}
			s.Partial[i][iv] = t
			var c mat.Dense
			c.Mul(s.Cumulative[i][iv], t)
			s.Cumulative[i+1][iv] = &c
		}
	}
	return s, nil
}

// Mult returns near·far per frequency, the total transmission when a path
// segment far, further from the sensor, is appended to near.
func Mult(near, far []*mat.Dense) ([]*mat.Dense, error) {
	if len(near) != len(far) {
		return nil, fmt.Errorf("transmission frequencies: expected %d, got %d",
			len(near), len(far))
	}
	t := make([]*mat.Dense, len(near))
	for iv := range near {
		r, c := near[iv].Dims()
		r2, c2 := far[iv].Dims()
		if r != c || r2 != r || c2 != c {
			return nil, fmt.Errorf("transmission at frequency %d: expected %dx%d, got %dx%d",
				iv, r, c, r2, c2)
		}
		t[iv] = &mat.Dense{}
		t[iv].Mul(near[iv], far[iv])
	}
	return t, nil
}
