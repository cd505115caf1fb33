// Public domain.

package rtpropmat_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/soniakeys/rtpath/internal/rtabs"
	"github.com/soniakeys/rtpath/internal/rtatm"
	"github.com/soniakeys/rtpath/internal/rtgeom"
	"github.com/soniakeys/rtpath/internal/rtgrid"
	"github.com/soniakeys/rtpath/internal/rtjac"
	"github.com/soniakeys/rtpath/internal/rtpath"
	"github.com/soniakeys/rtpath/internal/rtpropmat"
	"github.com/soniakeys/rtpath/internal/rtstokes"
)

var freq = []float64{150e9, 160e9}

func gas() *rtabs.Gas {
	return &rtabs.Gas{
		Lines: []rtabs.Line{
			{Species: 0, F0: 118.75e9, S: 1e-17, Gamma: 2e4, N: .75, Level: -1},
			{Species: 1, F0: 183.31e9, S: 3e-15, Gamma: 3e4, N: .7, Level: -1},
		},
		Continuum: []float64{1e-30},
		Zeeman:    1e3,
		Faraday:   5e2,
	}
}

// scene returns a limb path through a 1D atmosphere with two species,
// wind and a magnetic field.
func scene(t *testing.T) (*rtpath.Atmosphere, *rtatm.Fields, *rtpath.Path) {
	t.Helper()
	n := 11
	p := make([]float64, n)
	z := make([]float64, n)
	temp := make([]float64, n)
	o2 := make([]float64, n)
	h2o := make([]float64, n)
	wind := make([]float64, n)
	mag := make([]float64, n)
	for i := range p {
		z[i] = float64(i) * 10e3
		p[i] = 101325 * math.Exp(-z[i]/7e3)
		temp[i] = 290 - 5*float64(i)
		o2[i] = .21
		h2o[i] = 1e-2 / float64(i+1)
		wind[i] = 10 + float64(i)
		mag[i] = 40e-6
	}
	atm := &rtpath.Atmosphere{Dim: 1, PGrid: p, Z: rtgrid.Profile(z),
		ZSurface: [][]float64{{0}}, RGeoid: 6371e3}
	fs := &rtatm.Fields{
		T:     rtgrid.Profile(temp),
		VMR:   []rtgrid.Field3{rtgrid.Profile(o2), rtgrid.Profile(h2o)},
		WindV: rtgrid.Profile(wind),
		MagU:  rtgrid.Profile(append([]float64{}, mag...)),
		MagW:  rtgrid.Profile(mag),
	}
	path, err := rtpath.Trace(atm, rtpath.Pos{Z: 100e3}, rtgeom.NewLOS(100, 0),
		rtpath.StepPolicy{LMax: 50e3})
	require.NoError(t, err)
	return atm, fs, path
}

func sample(t *testing.T) (*rtpath.Path, *rtatm.State) {
	t.Helper()
	atm, fs, p := scene(t)
	st, err := rtatm.Sample(atm, fs, p, freq, 0)
	require.NoError(t, err)
	return p, st
}

func grid() []float64 { return []float64{1e5, 1e3, 10} }

func equalApprox(t *testing.T, want, got mat.Matrix, rel float64, what string) {
	t.Helper()
	tol := rel * mat.Norm(want, math.Inf(1))
	assert.True(t, mat.EqualApprox(want, got, tol), "%s\nwant\n%v\ngot\n%v",
		what, mat.Formatted(want), mat.Formatted(got))
}

func TestEvaluateSums(t *testing.T) {
	p, st := sample(t)
	e := &rtpropmat.Engine{Provider: gas(),
		Opts: rtpropmat.Options{Stokes: 4, PerSpecies: []int{1}}}
	s, err := e.Evaluate(context.Background(), p, st, freq, nil)
	require.NoError(t, err)
	assert.Equal(t, p.NP, s.NP)
	assert.Equal(t, len(freq), s.NF)
	assert.True(t, s.AllLTE())
	assert.Nil(t, s.DExt)
	require.Len(t, s.PerSpecies, 1)

	g := gas()
	for ip := 0; ip < p.NP; ip++ {
		r, err := g.Propmat(context.Background(), &rtpropmat.Request{
			Stokes: 4, F: st.F[ip], Mag: st.Mag[ip], LOS: p.LOS[ip],
			P: st.P[ip], T: st.T[ip], VMR: st.VMR[ip]})
		require.NoError(t, err)
		for iv := range freq {
			var sum mat.Dense
			sum.Add(r.Ext[0][iv].Dense(), r.Ext[1][iv].Dense())
			assert.True(t, mat.Equal(&sum, s.Ext[ip][iv].Dense()), "point %d", ip)
			assert.True(t, mat.Equal(r.Ext[1][iv].Dense(), s.PerSpecies[0][ip][iv].Dense()))
			assert.NotEqual(t, rtstokes.Unpolarized, s.Ext[ip][iv].Case())
		}
	}
}

func TestEvaluateChecks(t *testing.T) {
	p, st := sample(t)
	ctx := context.Background()
	e := &rtpropmat.Engine{Provider: gas(), Opts: rtpropmat.Options{Stokes: 5}}
	_, err := e.Evaluate(ctx, p, st, freq, nil)
	assert.EqualError(t, err, "stokes_dim: expected 1 to 4, got 5")

	e.Opts = rtpropmat.Options{Stokes: 1, PerSpecies: []int{2}}
	_, err = e.Evaluate(ctx, p, st, freq, nil)
	assert.EqualError(t, err, "per species index 2: expected 0 to 1")

	e.Opts = rtpropmat.Options{Stokes: 1}
	short := *st
	short.NP--
	_, err = e.Evaluate(ctx, p, &short, freq, nil)
	assert.Error(t, err)

	_, err = e.Evaluate(ctx, p, st, freq, rtjac.NewSet(rtjac.Target{
		Kind: rtjac.Temperature, Method: rtjac.Analytical, Grid: grid()}))
	assert.ErrorContains(t, err, "analytical method is for species only")

	e.Provider = oneSpecies{}
	_, err = e.Evaluate(ctx, p, st, freq, nil)
	assert.EqualError(t, err,
		"path point 0: absorption provider: extinction species: expected 2, got 1")
}

type oneSpecies struct{}

func (oneSpecies) Propmat(ctx context.Context, r *rtpropmat.Request) (*rtpropmat.Response, error) {
	ext := make([]*rtstokes.ExtMat, len(r.F))
	for i := range ext {
		ext[i] = rtstokes.Diag(r.Stokes, 1e-5)
	}
	return &rtpropmat.Response{Ext: [][]*rtstokes.ExtMat{ext}}, nil
}

// targets covers every derivative method.
func targets() *rtjac.Set {
	return rtjac.NewSet(
		rtjac.Target{Kind: rtjac.Temperature, Method: rtjac.Perturbation, Grid: grid()},
		rtjac.Target{Kind: rtjac.WindV, Method: rtjac.Perturbation, Grid: grid()},
		rtjac.Target{Kind: rtjac.WindV, Method: rtjac.FromProvider, Grid: grid()},
		rtjac.Target{Kind: rtjac.MagU, Method: rtjac.Perturbation, Grid: grid()},
		rtjac.Target{Kind: rtjac.Species, Method: rtjac.Analytical, Species: 1,
			Unit: rtjac.UnitVMR, Grid: grid()},
		rtjac.Target{Kind: rtjac.Species, Method: rtjac.FromProvider, Species: 1,
			Unit: rtjac.UnitVMR, Grid: grid()},
		rtjac.Target{Kind: rtjac.Species, Method: rtjac.FromProvider, Species: 0,
			Unit: rtjac.UnitRel, Grid: grid()},
		rtjac.Target{Kind: rtjac.Other, Method: rtjac.Flux, Grid: grid()},
		rtjac.Target{Kind: rtjac.Other, Method: rtjac.Skip, Grid: grid()},
	)
}

// perturbed evaluates with a modified copy of st and returns the forward
// difference against base.
func perturbed(t *testing.T, p *rtpath.Path, st *rtatm.State, base *rtpropmat.Set, d float64, modify func(*rtatm.State)) [][]*mat.Dense {
	t.Helper()
	st2 := *st
	st2.T = append([]float64{}, st.T...)
	st2.Wind = append([]rtatm.Vec3{}, st.Wind...)
	st2.Mag = append([]rtatm.Vec3{}, st.Mag...)
	modify(&st2)
	e := &rtpropmat.Engine{Provider: gas(), Opts: rtpropmat.Options{Stokes: base.Stokes}}
	s2, err := e.Evaluate(context.Background(), p, &st2, freq, nil)
	require.NoError(t, err)
	d2 := make([][]*mat.Dense, p.NP)
	for ip := range d2 {
		d2[ip] = make([]*mat.Dense, len(freq))
		for iv := range freq {
			var m mat.Dense
			m.Sub(s2.Ext[ip][iv].Dense(), base.Ext[ip][iv].Dense())
			m.Scale(1/d, &m)
			d2[ip][iv] = &m
		}
	}
	return d2
}

func TestDerivatives(t *testing.T) {
	p, st := sample(t)
	ts := targets()
	e := &rtpropmat.Engine{Provider: gas(), Opts: rtpropmat.Options{Stokes: 4}}
	s, err := e.Evaluate(context.Background(), p, st, freq, ts)
	require.NoError(t, err)
	require.Len(t, s.DExt, len(ts.Targets))
	assert.Nil(t, s.DExt[8], "skipped")

	dT := perturbed(t, p, st, s, ts.Perturb.Temperature, func(s *rtatm.State) {
		for i := range s.T {
			s.T[i] += ts.Perturb.Temperature
		}
	})
	dW := perturbed(t, p, st, s, ts.Perturb.Wind, func(s *rtatm.State) {
		for i := range s.Wind {
			s.Wind[i][1] += ts.Perturb.Wind
		}
		s.F = rtatm.DopplerGrids(freq, p, s.Wind, 0)
	})
	dB := perturbed(t, p, st, s, ts.Perturb.Magnetic, func(s *rtatm.State) {
		for i := range s.Mag {
			s.Mag[i][0] += ts.Perturb.Magnetic
		}
	})
	for ip := 0; ip < p.NP; ip++ {
		for iv := range freq {
			at := func(iq int) *mat.Dense { return s.DExt[iq][ip][iv] }
			assert.True(t, mat.Equal(dT[ip][iv], at(0)), "temperature")
			assert.True(t, mat.Equal(dW[ip][iv], at(1)), "wind")
			// Doppler step is far below the line width off the line centers
			equalApprox(t, at(1), at(2), 1e-4, fmt.Sprint("wind from provider, point ", ip))
			assert.True(t, mat.Equal(dB[ip][iv], at(3)), "magnetic")
			equalApprox(t, at(4), at(5), 1e-12, fmt.Sprint("species, point ", ip))
			var neg mat.Dense
			neg.Scale(-1, s.Ext[ip][iv].Dense())
			assert.True(t, mat.Equal(&neg, at(7)), "flux")
			for i := 0; i < 4; i++ {
				assert.True(t, at(2).At(i, i) != 0, "wind sensitivity")
			}
		}
		assert.Nil(t, s.DSource[0][ip], "LTE point has no source derivative")
	}
}

func TestSpeciesRelative(t *testing.T) {
	p, st := sample(t)
	ts := rtjac.NewSet(
		rtjac.Target{Kind: rtjac.Species, Method: rtjac.FromProvider, Species: 0,
			Unit: rtjac.UnitRel, Grid: grid()},
		rtjac.Target{Kind: rtjac.Species, Method: rtjac.Analytical, Species: 0,
			Unit: rtjac.UnitRel, Grid: grid()},
	)
	e := &rtpropmat.Engine{Provider: gas(),
		Opts: rtpropmat.Options{Stokes: 2, PerSpecies: []int{0}}}
	s, err := e.Evaluate(context.Background(), p, st, freq, ts)
	require.NoError(t, err)
	for ip := 0; ip < p.NP; ip++ {
		for iv := range freq {
			// relative derivative of a linear absorber is its own extinction
			own := s.PerSpecies[0][ip][iv].Dense()
			equalApprox(t, own, s.DExt[0][ip][iv], 1e-12, "relative from provider")
			assert.True(t, mat.Equal(own, s.DExt[1][ip][iv]))
		}
	}
}

// A species absent at a path point has a zero number density derivative
// there.
func TestSpeciesAbsent(t *testing.T) {
	p, st := sample(t)
	st.VMR = append([][]float64{}, st.VMR...)
	st.VMR[2] = []float64{st.VMR[2][0], 0}
	ts := rtjac.NewSet(rtjac.Target{Kind: rtjac.Species, Method: rtjac.Analytical,
		Species: 1, Unit: rtjac.UnitND, Grid: grid()})
	e := &rtpropmat.Engine{Provider: gas(), Opts: rtpropmat.Options{Stokes: 4}}
	s, err := e.Evaluate(context.Background(), p, st, freq, ts)
	require.NoError(t, err)
	for ip := 0; ip < p.NP; ip++ {
		for iv := range freq {
			d := s.DExt[0][ip][iv]
			for _, v := range d.RawMatrix().Data {
				require.False(t, math.IsNaN(v) || math.IsInf(v, 0), "point %d", ip)
			}
			if ip == 2 {
				assert.Zero(t, mat.Norm(d, 1))
			} else {
				assert.NotZero(t, d.At(0, 0), "point %d", ip)
			}
		}
	}
}

func nlteScene(t *testing.T) (*rtpath.Path, *rtatm.State, *rtabs.Gas) {
	atm, fs, p := scene(t)
	tex := append([]float64{}, fs.T.Data...)
	for i := range tex {
		tex[i] += 20
	}
	fs.NLTE = []rtgrid.Field3{rtgrid.Profile(tex)}
	st, err := rtatm.Sample(atm, fs, p, freq, 0)
	require.NoError(t, err)
	g := gas()
	g.Lines[1].Level = 0
	return p, st, g
}

func TestNLTE(t *testing.T) {
	p, st, g := nlteScene(t)
	ts := rtjac.NewSet(rtjac.Target{Kind: rtjac.Temperature,
		Method: rtjac.Perturbation, Grid: grid()})
	e := &rtpropmat.Engine{Provider: g, Opts: rtpropmat.Options{Stokes: 1}}
	s, err := e.Evaluate(context.Background(), p, st, freq, ts)
	require.NoError(t, err)
	assert.False(t, s.AllLTE())
	for ip := 0; ip < p.NP; ip++ {
		require.NotNil(t, s.NLTESource[ip])
		assert.True(t, s.NLTESource[ip][0][0] > 0, "hot excitation")
		require.NotNil(t, s.DSource[0][ip])
		// a warmer kinetic temperature shrinks the excess source
		assert.True(t, s.DSource[0][ip][0][0] < 0)
	}

	ts = rtjac.NewSet(rtjac.Target{Kind: rtjac.Species, Method: rtjac.Analytical,
		Species: 1, Unit: rtjac.UnitVMR, Grid: grid()})
	_, err = e.Evaluate(context.Background(), p, st, freq, ts)
	assert.ErrorContains(t, err, "analytical species derivatives are not available")
	assert.ErrorContains(t, err, "path point 0: jacobian target 0, species 1")
}

func TestParallel(t *testing.T) {
	p, st := sample(t)
	ts := targets()
	seq := &rtpropmat.Engine{Provider: gas(), Opts: rtpropmat.Options{Stokes: 3}}
	want, err := seq.Evaluate(context.Background(), p, st, freq, ts)
	require.NoError(t, err)

	par := &rtpropmat.Engine{Provider: gas(),
		Opts: rtpropmat.Options{Stokes: 3, InnerParallel: true, Workers: 4, MinPointsParallel: 2}}
	got, err := par.Evaluate(context.Background(), p, st, freq, ts)
	require.NoError(t, err)
	for ip := 0; ip < p.NP; ip++ {
		for iv := range freq {
			assert.True(t, mat.Equal(want.Ext[ip][iv].Dense(), got.Ext[ip][iv].Dense()))
			for iq := range ts.Targets {
				if want.DExt[iq] == nil {
					assert.Nil(t, got.DExt[iq])
					continue
				}
				assert.True(t, mat.Equal(want.DExt[iq][ip][iv], got.DExt[iq][ip][iv]))
			}
		}
	}
}

// cloned counts calls without synchronization, each worker has its own.
type cloned struct {
	*rtabs.Gas
	calls  int
	clones *[]*cloned
}

func (c *cloned) Propmat(ctx context.Context, r *rtpropmat.Request) (*rtpropmat.Response, error) {
	c.calls++
	return c.Gas.Propmat(ctx, r)
}

func (c *cloned) Clone() rtpropmat.Provider {
	n := &cloned{Gas: c.Gas, clones: c.clones}
	*c.clones = append(*c.clones, n)
	return n
}

func TestCloner(t *testing.T) {
	p, st := sample(t)
	require.True(t, p.NP >= 4)
	var clones []*cloned
	e := &rtpropmat.Engine{Provider: &cloned{Gas: gas(), clones: &clones},
		Opts: rtpropmat.Options{Stokes: 1, InnerParallel: true, Workers: 4}}
	_, err := e.Evaluate(context.Background(), p, st, freq, nil)
	require.NoError(t, err)
	require.Len(t, clones, 4)
	n := 0
	for _, c := range clones {
		n += c.calls
	}
	assert.Equal(t, p.NP, n)
}

var errBoom = errors.New("boom")

// failing fails at low pressure.
type failing struct{ *rtabs.Gas }

func (f failing) Propmat(ctx context.Context, r *rtpropmat.Request) (*rtpropmat.Response, error) {
	if r.P > 1e3 {
		return nil, errBoom
	}
	return f.Gas.Propmat(ctx, r)
}

func TestProviderError(t *testing.T) {
	p, st := sample(t)
	for _, w := range []int{1, 4} {
		e := &rtpropmat.Engine{Provider: failing{gas()},
			Opts: rtpropmat.Options{Stokes: 1, InnerParallel: true, Workers: w, MinPointsParallel: 1}}
		s, err := e.Evaluate(context.Background(), p, st, freq, nil)
		assert.Nil(t, s)
		assert.ErrorIs(t, err, errBoom, "%d workers", w)
		assert.ErrorContains(t, err, "path point ")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := &rtpropmat.Engine{Provider: gas(), Opts: rtpropmat.Options{Stokes: 1}}
	_, err := e.Evaluate(ctx, p, st, freq, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
