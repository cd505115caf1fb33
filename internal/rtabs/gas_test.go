// Public domain.

package rtabs_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/soniakeys/rtpath/internal/rtabs"
	"github.com/soniakeys/rtpath/internal/rtatm"
	"github.com/soniakeys/rtpath/internal/rtgeom"
	"github.com/soniakeys/rtpath/internal/rtjac"
	"github.com/soniakeys/rtpath/internal/rtphys"
	"github.com/soniakeys/rtpath/internal/rtpropmat"
	"github.com/soniakeys/rtpath/internal/rtstokes"
)

func o2() *rtabs.Gas {
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

func request(stokes int, f ...float64) *rtpropmat.Request {
	return &rtpropmat.Request{
		Stokes: stokes,
		F:      f,
		LOS:    rtgeom.NewLOS(90, 0),
		P:      1e4,
		T:      296,
		VMR:    []float64{.21, 1e-3},
	}
}

func TestLineCenter(t *testing.T) {
	g := o2()
	g.Continuum = nil
	r, err := g.Propmat(context.Background(), request(1, 118.75e9))
	require.NoError(t, err)
	n := 1e4 / (rtphys.Boltzmann * 296)
	gamma := 2e4 * 1e4
	want := .21 * n * 1e-17 / (math.Pi * gamma)
	assert.InEpsilon(t, want, r.Ext[0][0].At(0, 0), 1e-12)
	assert.True(t, r.Ext[1][0].At(0, 0) > 0)
	assert.True(t, r.Ext[1][0].At(0, 0) < want*1e-2)
	assert.Nil(t, r.NLTESource)
}

func TestMagneticCases(t *testing.T) {
	g := o2()
	for _, tc := range []struct {
		name   string
		stokes int
		mag    rtatm.Vec3
		want   rtstokes.Case
	}{
		{"no field", 4, rtatm.Vec3{}, rtstokes.Unpolarized},
		{"scalar", 1, rtatm.Vec3{20e-6, 30e-6, 40e-6}, rtstokes.Unpolarized},
		{"field in plane", 4, rtatm.Vec3{0, 30e-6, 40e-6}, rtstokes.LinearCircularSymmetric},
		{"field in plane, 3 stokes", 3, rtatm.Vec3{0, 30e-6, 40e-6}, rtstokes.LinearCircularSymmetric},
		{"field across plane", 4, rtatm.Vec3{20e-6, 30e-6, 40e-6}, rtstokes.General},
		{"field across plane, 2 stokes", 2, rtatm.Vec3{20e-6, 30e-6, 40e-6}, rtstokes.LinearCircularSymmetric},
	} {
		r := request(tc.stokes, 118e9, 119e9)
		r.Mag = tc.mag
		resp, err := g.Propmat(context.Background(), r)
		require.NoError(t, err, tc.name)
		for is := range resp.Ext {
			for iv, k := range resp.Ext[is] {
				assert.Equal(t, tc.stokes, k.Stokes(), tc.name)
				assert.Equal(t, tc.want, k.Case(), "%s species %d frequency %d", tc.name, is, iv)
			}
		}
	}
}

func TestSpeciesDerivative(t *testing.T) {
	g := o2()
	r := request(4, 118e9, 183e9)
	r.Mag = rtatm.Vec3{20e-6, 30e-6, 40e-6}
	r.Targets = rtjac.NewSet(rtjac.Target{Kind: rtjac.Species, Method: rtjac.FromProvider,
		Species: 1, Unit: rtjac.UnitVMR, Grid: []float64{1e4}})
	base, err := g.Propmat(context.Background(), r)
	require.NoError(t, err)
	require.Len(t, base.DExt, 1)

	const d = 1e-5
	r2 := *r
	r2.VMR = []float64{.21, 1e-3 + d}
	r2.Targets = nil
	pert, err := g.Propmat(context.Background(), &r2)
	require.NoError(t, err)
	for iv := range r.F {
		var fd mat.Dense
		fd.Sub(pert.Ext[1][iv].Dense(), base.Ext[1][iv].Dense())
		fd.Scale(1/d, &fd)
		assert.True(t, mat.EqualApprox(&fd, base.DExt[0][iv], 1e-6*mat.Norm(&fd, 1)),
			"frequency %d", iv)
	}
}

func TestWindDerivative(t *testing.T) {
	g := o2()
	r := request(1, 118.7e9, 118.75e9, 118.8e9)
	r.Targets = rtjac.NewSet(rtjac.Target{Kind: rtjac.WindW, Method: rtjac.FromProvider,
		Grid: []float64{1e4}})
	base, err := g.Propmat(context.Background(), r)
	require.NoError(t, err)

	const df = 1e3
	scale := math.Abs(base.DExt[0][0].At(0, 0))
	for iv, f := range r.F {
		lo, err := g.Propmat(context.Background(), request(1, f-df))
		require.NoError(t, err)
		hi, err := g.Propmat(context.Background(), request(1, f+df))
		require.NoError(t, err)
		var want float64
		for is := range lo.Ext {
			want += (hi.Ext[is][0].At(0, 0) - lo.Ext[is][0].At(0, 0)) / (2 * df)
		}
		got := base.DExt[0][iv].At(0, 0)
		assert.InDelta(t, want, got, 1e-6*scale, "frequency %d", iv)
	}
	// flat at the line center but for the wing of the other line
	assert.InDelta(t, 0, base.DExt[0][1].At(0, 0), 1e-5*scale)
}

func TestNLTESource(t *testing.T) {
	g := o2()
	g.Lines[0].Level = 0
	r := request(2, 118.75e9)
	resp, err := g.Propmat(context.Background(), r)
	require.NoError(t, err)
	assert.Nil(t, resp.NLTESource, "no NLTE temperatures given")

	r.NLTE = []float64{296}
	resp, err = g.Propmat(context.Background(), r)
	require.NoError(t, err)
	require.Len(t, resp.NLTESource, 2)
	assert.Equal(t, []float64{0, 0}, resp.NLTESource[0][0])
	assert.Equal(t, []float64{0, 0}, resp.NLTESource[1][0])

	r.NLTE = []float64{320}
	resp, err = g.Propmat(context.Background(), r)
	require.NoError(t, err)
	a := resp.Ext[0][0].At(0, 0)
	want := a * (rtphys.B(118.75e9, 320) - rtphys.B(118.75e9, 296))
	// continuum absorbs without contributing to the source
	assert.True(t, resp.NLTESource[0][0][0] > 0)
	assert.True(t, resp.NLTESource[0][0][0] < want)
	assert.Equal(t, 0., resp.NLTESource[0][0][1])
}

func TestPropmatErrors(t *testing.T) {
	g := o2()
	r := request(1, 1e11)
	r.VMR = r.VMR[:1]
	_, err := g.Propmat(context.Background(), r)
	assert.EqualError(t, err, "line 1: species 1, expected 0 to 0")

	g = o2()
	g.Lines[0].Level = 2
	r = request(1, 1e11)
	r.NLTE = []float64{250}
	_, err = g.Propmat(context.Background(), r)
	assert.EqualError(t, err, "line 0: NLTE level 2, expected 0 to 0")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = o2().Propmat(ctx, request(1, 1e11))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGrayParticles(t *testing.T) {
	g := &rtabs.GrayParticles{Ext: []float64{2e-6, 1e-6}, Abs: []float64{1e-6, 0}}
	ext, abs, err := g.Particles(context.Background(), &rtpropmat.ParticleRequest{
		Stokes: 3, F: []float64{1e11, 2e11}, T: 250, PND: []float64{10, 100}})
	require.NoError(t, err)
	require.Len(t, ext, 2)
	for iv := range ext {
		assert.InDelta(t, 1.2e-4, ext[iv].At(0, 0), 1e-18)
		assert.Equal(t, ext[iv].At(0, 0), ext[iv].At(2, 2))
		assert.Equal(t, rtstokes.Unpolarized, ext[iv].Case())
		assert.InDelta(t, 1e-5, abs[iv][0], 1e-18)
		assert.Len(t, abs[iv], 3)
	}
	_, _, err = g.Particles(context.Background(), &rtpropmat.ParticleRequest{
		Stokes: 1, F: []float64{1e11}, PND: []float64{1}})
	assert.EqualError(t, err, "particle types: expected 2, got 1")
}
