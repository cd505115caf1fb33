// Public domain.

// Package rtabs has simple absorption and particle providers.
//
// The models are deliberately plain: Lorentz lines with a gray continuum,
// a magnetic coupling that gives the extinction matrix the symmetries of a
// polarized medium, and gray particles.  They exercise the radiative
// transfer machinery, they are not spectroscopy.
package rtabs

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/soniakeys/rtpath/internal/rtgeom"
	"github.com/soniakeys/rtpath/internal/rtjac"
	"github.com/soniakeys/rtpath/internal/rtphys"
	"github.com/soniakeys/rtpath/internal/rtpropmat"
	"github.com/soniakeys/rtpath/internal/rtstokes"
)

// Line is a Lorentz line.
type Line struct {
	Species int
	F0      float64 // center frequency, Hz
	S       float64 // intensity at T0, m² Hz
	Gamma   float64 // pressure broadening at T0, Hz/Pa
	N       float64 // temperature exponent of Gamma
	// Level is the index of the NLTE temperature giving the line's
	// excitation temperature, -1 for a line in LTE.
	Level int
}

// Gas is a line-by-line absorption model.
type Gas struct {
	Lines     []Line
	Continuum []float64 // per species, m² per molecule, may be short
	// Zeeman and Faraday scale the linear polarization coupling with the
	// field component across the line-of-sight and the rotation with the
	// component along it, per T.
	Zeeman, Faraday float64
	T0              float64 // reference temperature, 0 for 296 K
}

const defaultT0 = 296

func (g *Gas) t0() float64 {
	if g.T0 == 0 {
		return defaultT0
	}
	return g.T0
}

// lorentz returns the normalized line shape at f and its frequency
// derivative.
func lorentz(f, f0, gamma float64) (l, dl float64) {
	d := f - f0
	q := d*d + gamma*gamma
	l = gamma / math.Pi / q
	dl = -2 * d * gamma / math.Pi / (q * q)
	return
}

// absorption returns the scalar absorption coefficient of species is at
// unit vmr, its frequency derivative, and the NLTE source at unit vmr.
func (g *Gas) absorption(r *rtpropmat.Request, is int, f float64) (a, da, j float64) {
	n := r.P / (rtphys.Boltzmann * r.T)
	t0 := g.t0()
	for _, ln := range g.Lines {
		if ln.Species != is {
			continue
		}
		gamma := ln.Gamma * r.P * math.Pow(t0/r.T, ln.N)
		l, dl := lorentz(f, ln.F0, gamma)
		s := n * ln.S * t0 / r.T
		a += s * l
		da += s * dl
		if ln.Level >= 0 && r.NLTE != nil {
			j += s * l * (rtphys.B(f, r.NLTE[ln.Level]) - rtphys.B(f, r.T))
		}
	}
	if is < len(g.Continuum) {
		a += n * g.Continuum[is]
	}
	return
}

// coupling holds the relative polarization terms of the extinction matrix.
type coupling struct{ q, u, rho float64 }

func (g *Gas) coupling(r *rtpropmat.Request) (c coupling) {
	if r.Stokes == 1 || r.Mag.IsZero() {
		return
	}
	b, bdir := rtgeom.VectorFieldLOS(r.Mag[0], r.Mag[1], r.Mag[2])
	par := rtgeom.DotProdWithLOS(r.LOS, r.Mag[0], r.Mag[1], r.Mag[2], 3)
	perp := math.Sqrt(math.Max(b*b-par*par, 0))
	chi := 2 * (bdir.Aa - r.LOS.Aa).Rad()
	c.q = g.Zeeman * perp * math.Cos(chi)
	c.u = g.Zeeman * perp * math.Sin(chi)
	c.rho = g.Faraday * par
	return
}

// extMat returns the extinction matrix for scalar absorption a.
func (c coupling) extMat(stokes int, a float64) *rtstokes.ExtMat {
	e := rtstokes.NewExtMat(stokes)
	k := e.Dense()
	for i := 0; i < stokes; i++ {
		k.Set(i, i, a)
	}
	if stokes >= 2 {
		k.Set(0, 1, a*c.q)
		k.Set(1, 0, a*c.q)
	}
	if stokes >= 3 {
		k.Set(0, 2, a*c.u)
		k.Set(2, 0, a*c.u)
	}
	if stokes == 4 {
		k.Set(2, 3, a*c.rho)
		k.Set(3, 2, -a*c.rho)
	}
	return e
}

// Propmat implements rtpropmat.Provider.
func (g *Gas) Propmat(ctx context.Context, r *rtpropmat.Request) (*rtpropmat.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ns := len(r.VMR)
	for il, ln := range g.Lines {
		if ln.Species < 0 || ln.Species >= max(ns, 1) {
			return nil, fmt.Errorf("line %d: species %d, expected 0 to %d",
				il, ln.Species, ns-1)
		}
		if r.NLTE != nil && ln.Level >= len(r.NLTE) {
			return nil, fmt.Errorf("line %d: NLTE level %d, expected 0 to %d",
				il, ln.Level, len(r.NLTE)-1)
		}
	}
	vmr := r.VMR
	if ns == 0 {
		vmr = []float64{1}
	}
	nf := len(r.F)
	c := g.coupling(r)
	nlte := false
	if r.NLTE != nil {
		for _, ln := range g.Lines {
			nlte = nlte || ln.Level >= 0
		}
	}

	resp := &rtpropmat.Response{Ext: make([][]*rtstokes.ExtMat, len(vmr))}
	if nlte {
		resp.NLTESource = make([][][]float64, len(vmr))
	}
	// per species at unit vmr, kept for derivatives
	unitExt := make([][]*rtstokes.ExtMat, len(vmr))
	unitSrc := make([][][]float64, len(vmr))
	dadf := make([]float64, nf)
	for is, x := range vmr {
		resp.Ext[is] = make([]*rtstokes.ExtMat, nf)
		unitExt[is] = make([]*rtstokes.ExtMat, nf)
		unitSrc[is] = make([][]float64, nf)
		if nlte {
			resp.NLTESource[is] = make([][]float64, nf)
		}
		for iv, f := range r.F {
			a, da, j := g.absorption(r, is, f)
			dadf[iv] += x * da
			unitExt[is][iv] = c.extMat(r.Stokes, a)
			resp.Ext[is][iv] = c.extMat(r.Stokes, x*a)
			unitSrc[is][iv] = make([]float64, r.Stokes)
			unitSrc[is][iv][0] = j
			if nlte {
				resp.NLTESource[is][iv] = make([]float64, r.Stokes)
				resp.NLTESource[is][iv][0] = x * j
			}
		}
	}

	nq := r.Targets.Len()
	if nq == 0 {
		return resp, nil
	}
	resp.DExt = make([][]*mat.Dense, nq)
	resp.DSource = make([][][]float64, nq)
	for iq, t := range r.Targets.Targets {
		if t.Method != rtjac.FromProvider {
			continue
		}
		switch {
		case t.Kind == rtjac.Species:
			resp.DExt[iq] = make([]*mat.Dense, nf)
			for iv := range r.F {
				resp.DExt[iq][iv] = unitExt[t.Species][iv].Dense()
			}
			if nlte {
				resp.DSource[iq] = unitSrc[t.Species]
			}
		case t.Kind.Wind():
			resp.DExt[iq] = make([]*mat.Dense, nf)
			for iv := range r.F {
				resp.DExt[iq][iv] = c.extMat(r.Stokes, dadf[iv]).Dense()
			}
		}
	}
	return resp, nil
}
