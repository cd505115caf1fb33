// Public domain.

package rtinteg

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/soniakeys/rtpath/internal/rtatm"
	"github.com/soniakeys/rtpath/internal/rtjac"
	"github.com/soniakeys/rtpath/internal/rtpath"
	"github.com/soniakeys/rtpath/internal/rtphys"
	"github.com/soniakeys/rtpath/internal/rtpropmat"
	"github.com/soniakeys/rtpath/internal/rtstokes"
	"github.com/soniakeys/rtpath/internal/rttrans"
)

// Input is everything computed for one path before integration.
type Input struct {
	Path    *rtpath.Path
	State   *rtatm.State
	Prop    *rtpropmat.Set
	Trans   *rttrans.Set
	Targets *rtjac.Set
	F       []float64 // Hz, before Doppler shift
	// Background is the radiance at the far end of the path, [f][stokes].
	Background [][]float64
	// Particles, if not nil, adds particle emission to steps with a
	// cloudy end.  Scattering into the path is not included.
	Particles *rtpropmat.Particles
	// Aux lists auxiliary quantities to return, see AuxShape.
	Aux []string
}

// Result is the radiance at the sensor and along the path.
type Result struct {
	I     [][]float64   // [f][stokes], at the sensor
	IPath [][][]float64 // [point][f][stokes]
	// DPath is the derivative of I for a change at each path point,
	// [target][point][f][stokes].  DPath[iq] is nil for skipped targets.
	DPath [][][][]float64
	// Aux holds the quantities of Input.Aux, [aux][f or 1][stokes or 1].
	Aux [][][]float64
}

// PathBlackbody returns the blackbody radiance and its temperature
// derivative at each point of st, on the Doppler shifted frequencies,
// [point][f].
func PathBlackbody(st *rtatm.State) (b, dbdt [][]float64) {
	b = make([][]float64, st.NP)
	dbdt = make([][]float64, st.NP)
	for ip := range b {
		f := st.F[ip]
		b[ip] = make([]float64, len(f))
		dbdt[ip] = make([]float64, len(f))
		rtphys.Blackbody(b[ip], f, st.T[ip])
		for iv, fv := range f {
			dbdt[ip][iv] = rtphys.DBDT(fv, st.T[ip])
		}
	}
	return
}

func (in *Input) check() error {
	np := in.Path.NP
	if in.State.NP != np {
		return fmt.Errorf("atmospheric state points: expected %d, got %d", np, in.State.NP)
	}
	if in.Prop.NP != np {
		return fmt.Errorf("propagation matrix points: expected %d, got %d", np, in.Prop.NP)
	}
	if in.Trans.NP != np {
		return fmt.Errorf("transmission points: expected %d, got %d", np, in.Trans.NP)
	}
	nf, ns := in.Prop.NF, in.Prop.Stokes
	if in.Trans.NF != nf {
		return fmt.Errorf("transmission frequencies: expected %d, got %d", nf, in.Trans.NF)
	}
	if in.Trans.Stokes != ns {
		return fmt.Errorf("transmission Stokes dimension: expected %d, got %d",
			ns, in.Trans.Stokes)
	}
	if len(in.F) != nf {
		return fmt.Errorf("frequencies: expected %d, got %d", nf, len(in.F))
	}
	if err := CheckRadiance("background radiance", in.Background, nf, ns); err != nil {
		return err
	}
	if nq := in.Targets.Len(); len(in.Trans.DAbove) != nq {
		return fmt.Errorf("transmission derivatives: expected %d targets, got %d",
			nq, len(in.Trans.DAbove))
	}
	if pt := in.Particles; pt != nil {
		if len(pt.Clear2Cloud) != np {
			return fmt.Errorf("particle points: expected %d, got %d", np, len(pt.Clear2Cloud))
		}
		if len(pt.Abs) != len(pt.Ext) {
			return fmt.Errorf("particle absorption: expected %d cloud points, got %d",
				len(pt.Ext), len(pt.Abs))
		}
		for ic, ext := range pt.Ext {
			if len(ext) != nf {
				return fmt.Errorf("particle extinction at cloud point %d: expected %d "+
					"frequencies, got %d", ic, nf, len(ext))
			}
		}
		for ic, abs := range pt.Abs {
			if err := CheckRadiance(fmt.Sprint("particle absorption at cloud point ", ic),
				abs, nf, ns); err != nil {
				return err
			}
		}
	}
	for _, a := range in.Aux {
		if _, _, err := AuxShape(a, nf, ns); err != nil {
			return err
		}
	}
	return nil
}

// CheckRadiance checks that r has shape [nf][stokes].
func CheckRadiance(what string, r [][]float64, nf, stokes int) error {
	if len(r) != nf {
		return fmt.Errorf("%s frequencies: expected %d, got %d", what, nf, len(r))
	}
	for iv, v := range r {
		if len(v) != stokes {
			return fmt.Errorf("%s at frequency %d: expected Stokes dimension %d, got %d",
				what, iv, stokes, len(v))
		}
	}
	return nil
}

// step holds the source terms of one path step at one frequency.
type step struct {
	c rtstokes.Case
	k *rtstokes.ExtMat // mean extinction, non-LTE or cloudy only
	j []float64        // mean non-LTE and particle source, nil otherwise
	s []float64        // source vector
}

// Integrate computes the radiance at the sensor by stepping from the far
// end of the path toward the sensor, starting from the background
// radiance.  Jacobians for the targets of in are computed along the path
// by the chain rule.
func Integrate(in *Input) (*Result, error) {
	if err := in.check(); err != nil {
		return nil, err
	}
	np, nf, ns := in.Path.NP, in.Prop.NF, in.Prop.Stokes
	tr := in.Trans
	b, dbdt := PathBlackbody(in.State)

	res := &Result{IPath: make([][][]float64, np)}
	res.IPath[np-1] = make([][]float64, nf)
	for iv := range res.IPath[np-1] {
		res.IPath[np-1][iv] = append([]float64{}, in.Background[iv]...)
	}
	steps := make([][]step, np-1)
	for i := np - 2; i >= 0; i-- {
		steps[i] = make([]step, nf)
		res.IPath[i] = make([][]float64, nf)
		for iv := 0; iv < nf; iv++ {
			st := step{c: tr.Cases[i][iv]}
			cloudy := in.Particles.ExtAt(i, iv) != nil || in.Particles.ExtAt(i+1, iv) != nil
			if !in.Prop.LTE[i] || !in.Prop.LTE[i+1] || cloudy {
				st.k = tr.ExtBar[i][iv]
				st.j = meanSource(in.Prop, i, iv)
				for _, ip := range []int{i, i + 1} {
					if w := in.Particles.SourceWeight(ip, iv); w != nil {
						floats.AddScaled(st.j, .5*b[ip][iv], w)
					}
				}
			}
			bb := .5 * (b[i][iv] + b[i+1][iv])
			st.s = stepSource(ns, st.c, bb, st.k, st.j)
			steps[i][iv] = st
			iy := append([]float64{}, res.IPath[i+1][iv]...)
			EmissionStep(iy, tr.Partial[i][iv], st.c, bb, st.k, st.j)
			res.IPath[i][iv] = iy
		}
	}
	res.I = res.IPath[0]
	res.Aux = auxValues(in)

	nq := in.Targets.Len()
	if nq == 0 {
		return res, nil
	}
	res.DPath = make([][][][]float64, nq)
	for iq := range res.DPath {
		if tr.DAbove[iq] == nil {
			continue
		}
		t := &in.Targets.Targets[iq]
		var dfdv [][]float64
		if t.Kind.Wind() {
			var err error
			dfdv, err = rtatm.FrequencyPartial(in.F, in.Path, int(t.Kind-rtjac.WindAlong))
			if err != nil {
				return nil, err
			}
		}
		d := make([][][]float64, np)
		for ip := range d {
			d[ip] = make([][]float64, nf)
			for iv := range d[ip] {
				d[ip][iv] = make([]float64, ns)
				var db float64
				switch {
				case t.Kind == rtjac.Temperature:
					db = .5 * dbdt[ip][iv]
				case dfdv != nil:
					db = .5 * rtphys.DBDF(in.State.F[ip][iv], in.State.T[ip]) * dfdv[ip][iv]
				}
				if ip > 0 {
					i := ip - 1
					chain(d[ip][iv], tr.Cumulative[i][iv], tr.Partial[i][iv],
						tr.DAbove[iq][i][iv], res.IPath[ip][iv], &steps[i][iv],
						sourceDeriv(in, t, &steps[i][iv], iq, ip, iv, db))
				}
				if ip < np-1 {
					chain(d[ip][iv], tr.Cumulative[ip][iv], tr.Partial[ip][iv],
						tr.DBelow[iq][ip][iv], res.IPath[ip+1][iv], &steps[ip][iv],
						sourceDeriv(in, t, &steps[ip][iv], iq, ip, iv, db))
				}
			}
		}
		res.DPath[iq] = d
	}
	return res, nil
}

// meanSource returns the mean non-LTE source of step i.  An LTE end point
// contributes zero.
func meanSource(pm *rtpropmat.Set, i, iv int) []float64 {
	j := make([]float64, pm.Stokes)
	for _, ip := range []int{i, i + 1} {
		if !pm.LTE[ip] {
			floats.Add(j, pm.NLTESource[ip][iv])
		}
	}
	floats.Scale(.5, j)
	return j
}

// sourceDeriv returns the derivative of the source of step st for a change
// of target iq at point ip.  db is the change of the mean blackbody
// radiance, which also scales particle emission at ip.  Flux targets have
// no source derivative.
func sourceDeriv(in *Input, t *rtjac.Target, st *step, iq, ip, iv int, db float64) []float64 {
	ns := in.Prop.Stokes
	if t.Method == rtjac.Flux {
		return make([]float64, ns)
	}
	var dj []float64
	var dk mat.Matrix
	if st.j != nil {
		if src := in.Prop.DSource[iq][ip]; src != nil {
			dj = append([]float64{}, src[iv]...)
			floats.Scale(.5, dj)
		}
		if w := in.Particles.SourceWeight(ip, iv); w != nil && db != 0 {
			if dj == nil {
				dj = make([]float64, ns)
			}
			floats.AddScaled(dj, db, w)
		}
		var m mat.Dense
		m.Scale(.5, in.Prop.DExt[iq][ip][iv])
		dk = &m
	}
	return dStepSource(ns, st.c, db, st.k, st.j, dj, dk)
}

// chain adds c·[dt·(iy - s) + (1 - t)·ds] to d, the contribution of one
// step to a Jacobian.  iy is the radiance entering the step from the far
// end and dt may be nil.
func chain(d []float64, c, t, dt mat.Matrix, iy []float64, st *step, ds []float64) {
	n := len(d)
	dsv := mat.NewVecDense(n, append([]float64{}, ds...))
	var tds, sum mat.VecDense
	tds.MulVec(t, dsv)
	sum.SubVec(dsv, &tds)
	if dt != nil {
		x := make([]float64, n)
		floats.SubTo(x, iy, st.s)
		var v mat.VecDense
		v.MulVec(dt, mat.NewVecDense(n, x))
		sum.AddVec(&sum, &v)
	}
	var r mat.VecDense
	r.MulVec(c, &sum)
	for i := range d {
		d[i] += r.AtVec(i)
	}
}
