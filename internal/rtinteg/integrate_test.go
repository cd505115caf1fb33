// Public domain.

package rtinteg_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soniakeys/rtpath/internal/rtabs"
	"github.com/soniakeys/rtpath/internal/rtatm"
	"github.com/soniakeys/rtpath/internal/rtgeom"
	"github.com/soniakeys/rtpath/internal/rtgrid"
	"github.com/soniakeys/rtpath/internal/rtinteg"
	"github.com/soniakeys/rtpath/internal/rtjac"
	"github.com/soniakeys/rtpath/internal/rtpath"
	"github.com/soniakeys/rtpath/internal/rtphys"
	"github.com/soniakeys/rtpath/internal/rtpropmat"
	"github.com/soniakeys/rtpath/internal/rtstokes"
	"github.com/soniakeys/rtpath/internal/rttrans"
)

var freq = []float64{150e9, 175e9}

func gas() *rtabs.Gas {
	return &rtabs.Gas{
		Lines: []rtabs.Line{
			{Species: 0, F0: 118.75e9, S: 1e-17, Gamma: 2e4, N: .75, Level: -1},
			{Species: 1, F0: 183.31e9, S: 3e-15, Gamma: 3e4, N: .7, Level: -1},
		},
		Zeeman:  1e3,
		Faraday: 5e2,
	}
}

var surface = &rtinteg.Background{SurfaceT: 285, SurfaceEmissivity: .9}

// fixture is one path through a 1D atmosphere with two species, wind
// and, optionally, a magnetic field.
type fixture struct {
	atm  *rtpath.Atmosphere
	fs   *rtatm.Fields
	path *rtpath.Path
	st   *rtatm.State
	eng  *rtpropmat.Engine
	pt   *rtpropmat.Particles
}

func newFixture(t *testing.T, z, za float64, stokes int, temp func(i int) float64) *fixture {
	t.Helper()
	n := 11
	p := make([]float64, n)
	zg := make([]float64, n)
	tg := make([]float64, n)
	o2 := make([]float64, n)
	h2o := make([]float64, n)
	wind := make([]float64, n)
	mag := make([]float64, n)
	for i := range p {
		zg[i] = float64(i) * 10e3
		p[i] = 101325 * math.Exp(-zg[i]/7e3)
		tg[i] = temp(i)
		o2[i] = .21
		h2o[i] = 1e-2 / float64(i+1)
		wind[i] = 10 + float64(i)
		mag[i] = 40e-6
	}
	fx := &fixture{}
	fx.atm = &rtpath.Atmosphere{Dim: 1, PGrid: p, Z: rtgrid.Profile(zg),
		ZSurface: [][]float64{{0}}, RGeoid: 6371e3}
	fx.fs = &rtatm.Fields{
		T:     rtgrid.Profile(tg),
		VMR:   []rtgrid.Field3{rtgrid.Profile(o2), rtgrid.Profile(h2o)},
		WindV: rtgrid.Profile(wind),
	}
	if stokes > 1 {
		fx.fs.MagU = rtgrid.Profile(mag)
		fx.fs.MagW = rtgrid.Profile(append([]float64{}, mag...))
	}
	var err error
	fx.path, err = rtpath.Trace(fx.atm, rtpath.Pos{Z: z}, rtgeom.NewLOS(za, 0),
		rtpath.StepPolicy{LMax: 5e3})
	require.NoError(t, err)
	fx.st, err = rtatm.Sample(fx.atm, fx.fs, fx.path, freq, 0)
	require.NoError(t, err)
	fx.eng = &rtpropmat.Engine{Provider: gas(), Opts: rtpropmat.Options{Stokes: stokes}}
	return fx
}

func lapse(i int) float64 { return 290 - 6*float64(i) }

func (fx *fixture) radiance(t *testing.T, st *rtatm.State, ts *rtjac.Set) *rtinteg.Result {
	t.Helper()
	pm, err := fx.eng.Evaluate(context.Background(), fx.path, st, freq, ts)
	require.NoError(t, err)
	tr, err := rttrans.ComputeCloudy(fx.path, pm, fx.pt, ts)
	require.NoError(t, err)
	bg, err := rtinteg.BackgroundRadiance(fx.path.Background, freq, pm.Stokes, surface)
	require.NoError(t, err)
	res, err := rtinteg.Integrate(&rtinteg.Input{Path: fx.path, State: st,
		Prop: pm, Trans: tr, Targets: ts, F: freq, Background: bg, Particles: fx.pt})
	require.NoError(t, err)
	return res
}

func cloneState(st *rtatm.State) *rtatm.State {
	c := *st
	c.P = append([]float64{}, st.P...)
	c.T = append([]float64{}, st.T...)
	c.Wind = append([]rtatm.Vec3{}, st.Wind...)
	c.Mag = append([]rtatm.Vec3{}, st.Mag...)
	c.VMR = make([][]float64, st.NP)
	c.F = make([][]float64, st.NP)
	for i := range c.VMR {
		c.VMR[i] = append([]float64{}, st.VMR[i]...)
		c.F[i] = append([]float64{}, st.F[i]...)
	}
	if st.NLTE != nil {
		c.NLTE = make([][]float64, st.NP)
		for i := range c.NLTE {
			c.NLTE[i] = append([]float64{}, st.NLTE[i]...)
		}
	}
	return &c
}

func TestIsothermal(t *testing.T) {
	fx := newFixture(t, 0, 30, 1, func(int) float64 { return 250 })
	require.Equal(t, rtpath.Space, fx.path.Background)
	// no wind, so the Doppler shift leaves one Planck value on the path
	fx.fs.WindV = rtgrid.Field3{}
	st, err := rtatm.Sample(fx.atm, fx.fs, fx.path, freq, 0)
	require.NoError(t, err)
	pm, err := fx.eng.Evaluate(context.Background(), fx.path, st, freq, nil)
	require.NoError(t, err)
	tr, err := rttrans.Compute(fx.path, pm, nil)
	require.NoError(t, err)
	res := fx.radiance(t, st, nil)
	for iv, f := range freq {
		tau := tr.ScalarTau[iv]
		assert.True(t, tau > .01, "optical depth %g", tau)
		want := rtphys.B(f, rtphys.CosmicBG)*math.Exp(-tau) + rtphys.B(f, 250)*(1-math.Exp(-tau))
		assert.InEpsilon(t, want, res.I[iv][0], 1e-10)
	}
	// the far end carries the background
	assert.Equal(t, rtphys.B(freq[0], rtphys.CosmicBG), res.IPath[fx.path.NP-1][0][0])
	assert.Nil(t, res.DPath)
}

func TestTransparent(t *testing.T) {
	fx := newFixture(t, 100e3, 160, 4, lapse)
	require.Equal(t, rtpath.Surface, fx.path.Background)
	st := cloneState(fx.st)
	for i := range st.VMR {
		st.VMR[i] = []float64{0, 0}
	}
	res := fx.radiance(t, st, nil)
	for iv, f := range freq {
		assert.Equal(t, []float64{surface.SurfaceEmissivity * rtphys.B(f, surface.SurfaceT), 0, 0, 0},
			res.I[iv])
	}
}

func TestPolarizedUnpolarizedAgree(t *testing.T) {
	// without a magnetic field the first Stokes element does not depend on
	// the Stokes dimension
	f1 := newFixture(t, 100e3, 160, 1, lapse)
	f4 := newFixture(t, 100e3, 160, 4, lapse)
	f4.fs.MagU, f4.fs.MagW = rtgrid.Field3{}, rtgrid.Field3{}
	st, err := rtatm.Sample(f4.atm, f4.fs, f4.path, freq, 0)
	require.NoError(t, err)
	r1 := f1.radiance(t, f1.st, nil)
	r4 := f4.radiance(t, st, nil)
	for iv := range freq {
		assert.InEpsilon(t, r1.I[iv][0], r4.I[iv][0], 1e-12)
		assert.Equal(t, []float64{0, 0, 0}, r4.I[iv][1:])
	}
}

// checkJacobian compares the Jacobian of target 0 against differences of
// the radiance when modify changes the state at one point by h.  Central
// differences are used unless forward is set.
func checkJacobian(t *testing.T, fx *fixture, st *rtatm.State, ts *rtjac.Set, h float64, forward bool, rel float64, modify func(st *rtatm.State, ip int, h float64)) {
	t.Helper()
	base := fx.radiance(t, st, ts)
	require.NotNil(t, base.DPath[0])
	np, nf := fx.path.NP, len(freq)
	ns := fx.eng.Opts.Stokes
	scale := make([]float64, nf)
	for ip := 0; ip < np; ip++ {
		for iv := 0; iv < nf; iv++ {
			for _, x := range base.DPath[0][ip][iv] {
				scale[iv] = math.Max(scale[iv], math.Abs(x))
			}
		}
	}
	for ip := 0; ip < np; ip += 3 {
		up := cloneState(st)
		modify(up, ip, h)
		iUp := fx.radiance(t, up, nil).I
		iDn := base.I
		div := h
		if !forward {
			dn := cloneState(st)
			modify(dn, ip, -h)
			iDn = fx.radiance(t, dn, nil).I
			div = 2 * h
		}
		for iv := 0; iv < nf; iv++ {
			require.True(t, scale[iv] > 0)
			for is := 0; is < ns; is++ {
				num := (iUp[iv][is] - iDn[iv][is]) / div
				assert.InDelta(t, num, base.DPath[0][ip][iv][is], rel*scale[iv],
					"%s, point %d, frequency %d, Stokes %d", &ts.Targets[0], ip, iv, is)
			}
		}
	}
}

var retrievalGrid = []float64{1e5, 1e3, 10}

func TestJacobians(t *testing.T) {
	for _, stokes := range []int{1, 4} {
		for _, geom := range []struct{ z, za float64 }{{0, 30}, {100e3, 160}} {
			fx := newFixture(t, geom.z, geom.za, stokes, lapse)

			ts := rtjac.NewSet(rtjac.Target{Kind: rtjac.Temperature,
				Method: rtjac.Perturbation, Grid: retrievalGrid})
			checkJacobian(t, fx, fx.st, ts, ts.Perturb.Temperature, true, 2e-3,
				func(st *rtatm.State, ip int, h float64) { st.T[ip] += h })

			ts = rtjac.NewSet(rtjac.Target{Kind: rtjac.Species, Species: 1,
				Method: rtjac.Analytical, Unit: rtjac.UnitVMR, Grid: retrievalGrid})
			checkJacobian(t, fx, fx.st, ts, 1e-7, false, 1e-6,
				func(st *rtatm.State, ip int, h float64) { st.VMR[ip][1] += h })

			ts = rtjac.NewSet(rtjac.Target{Kind: rtjac.WindV,
				Method: rtjac.FromProvider, Grid: retrievalGrid})
			checkJacobian(t, fx, fx.st, ts, 1, false, 1e-4,
				func(st *rtatm.State, ip int, h float64) {
					st.Wind[ip][1] += h
					st.F = rtatm.DopplerGrids(freq, fx.path, st.Wind, 0)
				})
		}
	}
}

func TestJacobianNLTE(t *testing.T) {
	fx := newFixture(t, 100e3, 160, 1, lapse)
	tex := append([]float64{}, fx.fs.T.Data...)
	for i := range tex {
		tex[i] += 15
	}
	fx.fs.NLTE = []rtgrid.Field3{rtgrid.Profile(tex)}
	st, err := rtatm.Sample(fx.atm, fx.fs, fx.path, freq, 0)
	require.NoError(t, err)
	g := gas()
	g.Lines[1].Level = 0
	fx.eng.Provider = g

	lte := newFixture(t, 100e3, 160, 1, lapse).radiance(t, fx.st, nil)
	nlte := fx.radiance(t, st, nil)
	for iv := range freq {
		assert.True(t, nlte.I[iv][0] > lte.I[iv][0], "hot excitation adds emission")
	}

	ts := rtjac.NewSet(rtjac.Target{Kind: rtjac.Temperature,
		Method: rtjac.Perturbation, Grid: retrievalGrid})
	checkJacobian(t, fx, st, ts, ts.Perturb.Temperature, true, 2e-3,
		func(st *rtatm.State, ip int, h float64) { st.T[ip] += h })
}

func TestSkippedTarget(t *testing.T) {
	fx := newFixture(t, 0, 30, 1, lapse)
	ts := rtjac.NewSet(
		rtjac.Target{Kind: rtjac.Temperature, Method: rtjac.Skip, Grid: retrievalGrid},
		rtjac.Target{Kind: rtjac.Species, Species: 0, Method: rtjac.Analytical,
			Unit: rtjac.UnitRel, Grid: retrievalGrid},
	)
	res := fx.radiance(t, fx.st, ts)
	require.Len(t, res.DPath, 2)
	assert.Nil(t, res.DPath[0])
	require.Len(t, res.DPath[1], fx.path.NP)
	// more oxygen gives a warmer sky
	for iv := range freq {
		var sum float64
		for ip := range res.DPath[1] {
			sum += res.DPath[1][ip][iv][0]
		}
		assert.True(t, sum > 0)
	}
}

func TestIntegrateChecks(t *testing.T) {
	fx := newFixture(t, 0, 30, 2, lapse)
	pm, err := fx.eng.Evaluate(context.Background(), fx.path, fx.st, freq, nil)
	require.NoError(t, err)
	tr, err := rttrans.Compute(fx.path, pm, nil)
	require.NoError(t, err)
	in := &rtinteg.Input{Path: fx.path, State: fx.st, Prop: pm, Trans: tr, F: freq,
		Background: [][]float64{{1, 0}}}
	_, err = rtinteg.Integrate(in)
	assert.EqualError(t, err, "background radiance frequencies: expected 2, got 1")
	in.Background = [][]float64{{1, 0}, {1}}
	_, err = rtinteg.Integrate(in)
	assert.EqualError(t, err,
		"background radiance at frequency 1: expected Stokes dimension 2, got 1")
	in.Background = [][]float64{{1, 0}, {1, 0}}
	in.F = freq[:1]
	_, err = rtinteg.Integrate(in)
	assert.EqualError(t, err, "frequencies: expected 2, got 1")
	in.F = freq

	// transmission computed for another frequency grid or Stokes dimension
	other := *tr
	other.NF = 1
	in.Trans = &other
	_, err = rtinteg.Integrate(in)
	assert.EqualError(t, err, "transmission frequencies: expected 2, got 1")
	other.NF, other.Stokes = 2, 1
	_, err = rtinteg.Integrate(in)
	assert.EqualError(t, err, "transmission Stokes dimension: expected 2, got 1")
	in.Trans = tr

	in.Particles = grayCloud(fx.path.NP-1, 2, 2, 1e-5, 0, 1)
	_, err = rtinteg.Integrate(in)
	assert.EqualError(t, err, fmt.Sprintf("particle points: expected %d, got %d",
		fx.path.NP, fx.path.NP-1))
	in.Particles = grayCloud(fx.path.NP, 2, 1, 1e-5, 0, 1)
	_, err = rtinteg.Integrate(in)
	assert.EqualError(t, err, "particle absorption at cloud point 0 at frequency 0: "+
		"expected Stokes dimension 2, got 1")
	in.Particles = nil

	in.Aux = []string{rtinteg.AuxOpticalDepth, "Sun"}
	_, err = rtinteg.Integrate(in)
	assert.EqualError(t, err, `auxiliary variable "Sun" not recognised`)
}

// grayCloud returns particles with extinction ke and absorption ka at
// path points 1 to last of a path of np points.
func grayCloud(np, nf, stokes int, ke, ka float64, last int) *rtpropmat.Particles {
	pt := &rtpropmat.Particles{Clear2Cloud: make([]int, np)}
	for ip := range pt.Clear2Cloud {
		pt.Clear2Cloud[ip] = -1
		if ip < 1 || ip > last {
			continue
		}
		pt.Clear2Cloud[ip] = len(pt.Ext)
		pt.PND = append(pt.PND, []float64{1})
		ext := make([]*rtstokes.ExtMat, nf)
		abs := make([][]float64, nf)
		for iv := range ext {
			ext[iv] = rtstokes.Diag(stokes, ke)
			abs[iv] = make([]float64, stokes)
			abs[iv][0] = ka
		}
		pt.Ext = append(pt.Ext, ext)
		pt.Abs = append(pt.Abs, abs)
	}
	return pt
}

func TestParticleEmission(t *testing.T) {
	sky := newFixture(t, 0, 30, 1, lapse)
	np := sky.path.NP
	require.True(t, np > 6)
	base := sky.radiance(t, sky.st, nil)

	// a cloud that only absorbs emits at the blackbody radiance like the gas
	absorbing := newFixture(t, 0, 30, 1, lapse)
	absorbing.pt = grayCloud(np, len(freq), 1, 5e-5, 5e-5, 4)
	iAbs := absorbing.radiance(t, absorbing.st, nil).I

	pm, err := sky.eng.Evaluate(context.Background(), sky.path, sky.st, freq, nil)
	require.NoError(t, err)
	tr, err := rttrans.ComputeCloudy(sky.path, pm, absorbing.pt, nil)
	require.NoError(t, err)
	bg, err := rtinteg.BackgroundRadiance(sky.path.Background, freq, 1, surface)
	require.NoError(t, err)
	noSource, err := rtinteg.Integrate(&rtinteg.Input{Path: sky.path,
		State: sky.st, Prop: pm, Trans: tr, F: freq, Background: bg})
	require.NoError(t, err)

	// a cloud that only scatters absorbs no emission of its own
	scattering := newFixture(t, 0, 30, 1, lapse)
	scattering.pt = grayCloud(np, len(freq), 1, 5e-5, 0, 4)
	iSca := scattering.radiance(t, scattering.st, nil).I
	for iv := range freq {
		assert.InEpsilon(t, noSource.I[iv][0], iAbs[iv][0], 1e-12)
		assert.True(t, iAbs[iv][0] > base.I[iv][0], "absorbing cloud adds emission")
		assert.True(t, iSca[iv][0] < iAbs[iv][0], "scattering cloud emits less")
		assert.True(t, iSca[iv][0] > 0)
	}
}

func TestJacobianCloudy(t *testing.T) {
	for _, stokes := range []int{1, 4} {
		fx := newFixture(t, 0, 30, stokes, lapse)
		fx.pt = grayCloud(fx.path.NP, len(freq), stokes, 5e-5, 2e-5, 4)
		ts := rtjac.NewSet(rtjac.Target{Kind: rtjac.Temperature,
			Method: rtjac.Perturbation, Grid: retrievalGrid})
		checkJacobian(t, fx, fx.st, ts, ts.Perturb.Temperature, true, 2e-3,
			func(st *rtatm.State, ip int, h float64) { st.T[ip] += h })
	}
}

func TestAux(t *testing.T) {
	fx := newFixture(t, 0, 30, 2, lapse)
	pm, err := fx.eng.Evaluate(context.Background(), fx.path, fx.st, freq, nil)
	require.NoError(t, err)
	tr, err := rttrans.Compute(fx.path, pm, nil)
	require.NoError(t, err)
	bg, err := rtinteg.BackgroundRadiance(fx.path.Background, freq, 2, surface)
	require.NoError(t, err)
	res, err := rtinteg.Integrate(&rtinteg.Input{Path: fx.path, State: fx.st,
		Prop: pm, Trans: tr, F: freq, Background: bg,
		Aux: []string{rtinteg.AuxBackground, rtinteg.AuxOpticalDepth,
			rtinteg.AuxTransmission}})
	require.NoError(t, err)
	require.Len(t, res.Aux, 3)
	assert.Equal(t, [][]float64{{float64(rtpath.Space)}}, res.Aux[0])
	require.Len(t, res.Aux[1], len(freq))
	require.Len(t, res.Aux[2], len(freq))
	end := tr.Cumulative[fx.path.NP-1]
	for iv := range freq {
		assert.Equal(t, []float64{tr.ScalarTau[iv]}, res.Aux[1][iv])
		assert.True(t, tr.ScalarTau[iv] > 0)
		require.Len(t, res.Aux[2][iv], 2)
		for is := 0; is < 2; is++ {
			assert.Equal(t, end[iv].At(is, is), res.Aux[2][iv][is])
		}
		assert.True(t, res.Aux[2][iv][0] > 0 && res.Aux[2][iv][0] < 1)
		assert.NoError(t, rtinteg.CheckAux(rtinteg.AuxTransmission, res.Aux[2], 2, 2))
	}
	assert.EqualError(t, rtinteg.CheckAux("x", [][]float64{{1}, {1}, {1}}, 2, 2),
		`auxiliary variable "x": expected 1 or 2 frequencies, got 3`)
	assert.EqualError(t, rtinteg.CheckAux("x", [][]float64{{1, 2, 3}}, 2, 2),
		`auxiliary variable "x" at frequency 0: expected Stokes dimension 1 or 2, got 3`)

	none, err := rtinteg.Integrate(&rtinteg.Input{Path: fx.path, State: fx.st,
		Prop: pm, Trans: tr, F: freq, Background: bg})
	require.NoError(t, err)
	assert.Nil(t, none.Aux)
}

func TestBackgroundRadiance(t *testing.T) {
	f := []float64{1e9, 300e9}
	r, err := rtinteg.BackgroundRadiance(rtpath.Space, f, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{rtphys.B(f[0], rtphys.CosmicBG), 0},
		{rtphys.B(f[1], rtphys.CosmicBG), 0}}, r)

	r, err = rtinteg.BackgroundRadiance(rtpath.Surface, f, 1, surface)
	require.NoError(t, err)
	assert.Equal(t, .9*rtphys.B(f[1], 285), r[1][0])

	cb := &rtinteg.Background{Cloudbox: [][]float64{{1, 2}, {3, 4}}}
	r, err = rtinteg.BackgroundRadiance(rtpath.CloudboxInterior, f, 2, cb)
	require.NoError(t, err)
	assert.Equal(t, cb.Cloudbox, r)
	r[0][0] = 9
	assert.Equal(t, 1., cb.Cloudbox[0][0], "copied")

	_, err = rtinteg.BackgroundRadiance(rtpath.CloudboxSurface, f, 2, surface)
	assert.True(t, errors.Is(err, rtinteg.ErrNoCloudboxRadiance))
	_, err = rtinteg.BackgroundRadiance(rtpath.CloudboxSurface, f, 1, cb)
	assert.EqualError(t, err,
		"cloud box radiance at frequency 0: expected Stokes dimension 1, got 2")
	_, err = rtinteg.BackgroundRadiance(rtpath.Surface, f, 1,
		&rtinteg.Background{SurfaceT: 280, SurfaceEmissivity: 1.2})
	assert.EqualError(t, err, "surface emissivity: expected 0 to 1, got 1.2")
	_, err = rtinteg.BackgroundRadiance(rtpath.Undefined, f, 1, nil)
	assert.EqualError(t, err, "background radiance: undefined background")
}

func TestMapToGrid(t *testing.T) {
	grid := []float64{1e5, 1e3, 10}
	p := []float64{1e5, 1e4, 1e3, 1, 2e5}
	d := make([][][]float64, len(p))
	for ip := range d {
		d[ip] = [][]float64{{1, float64(ip)}}
	}
	m, err := rtinteg.MapToGrid(d, p, grid)
	require.NoError(t, err)
	r, c := m.Dims()
	require.Equal(t, 2, r)
	require.Equal(t, 3, c)
	// points 0 and 4 go to grid point 0, point 1 halfway, point 2 to grid
	// point 1, point 3 clamped to grid point 2
	assert.InDeltaSlice(t, []float64{2.5, 1.5, 1}, m.RawRowView(0), 1e-12)
	assert.InDeltaSlice(t, []float64{0 + .5 + 4, .5 + 2, 3}, m.RawRowView(1), 1e-12)

	_, err = rtinteg.MapToGrid(d, p[:2], grid)
	assert.EqualError(t, err, "jacobian path points: expected 2, got 5")
	_, err = rtinteg.MapToGrid(d, p, []float64{10, 1e3})
	assert.EqualError(t, err, "retrieval grid: expected strictly decreasing pressures")
}
