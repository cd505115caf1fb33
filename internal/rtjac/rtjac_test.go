// Public domain.

package rtjac_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/soniakeys/rtpath/internal/rtjac"
)

var grid = []float64{1e5, 1e4, 1e3}

func ExampleSet_Check() {
	s := rtjac.NewSet(
		rtjac.Target{Kind: rtjac.Temperature, Method: rtjac.Perturbation, Grid: grid},
		rtjac.Target{Kind: rtjac.Species, Method: rtjac.Analytical, Species: 2,
			Unit: rtjac.UnitVMR, Grid: grid},
	)
	fmt.Println(s.Check(3))
	fmt.Println(s.Check(2))
	fmt.Println(s.Columns())
	// Output:
	// <nil>
	// jacobian target 1: species 2 (vmr, analytical): species index out of range, 2 species
	// 6
}

func TestTargetCheck(t *testing.T) {
	for _, tc := range []struct {
		t  rtjac.Target
		ok bool
	}{
		{rtjac.Target{Kind: rtjac.WindU, Method: rtjac.Perturbation, Grid: grid}, true},
		{rtjac.Target{Kind: rtjac.WindAlong, Method: rtjac.Perturbation, Grid: grid}, false},
		{rtjac.Target{Kind: rtjac.WindAlong, Method: rtjac.FromProvider, Grid: grid}, true},
		{rtjac.Target{Kind: rtjac.MagW, Method: rtjac.Perturbation, Grid: grid}, true},
		{rtjac.Target{Kind: rtjac.Other, Method: rtjac.Perturbation, Grid: grid}, false},
		{rtjac.Target{Kind: rtjac.Temperature, Method: rtjac.Analytical, Grid: grid}, false},
		{rtjac.Target{Kind: rtjac.Species, Method: rtjac.Analytical, Unit: "ppm", Grid: grid}, false},
		{rtjac.Target{Kind: rtjac.Species, Method: rtjac.FromProvider, Unit: "nd", Grid: grid}, true},
		{rtjac.Target{Kind: rtjac.Temperature, Method: rtjac.Flux, Grid: grid}, true},
		{rtjac.Target{Kind: rtjac.Pointing, Method: rtjac.Skip, Grid: grid}, true},
		{rtjac.Target{Kind: rtjac.Temperature, Method: rtjac.Perturbation}, false},
		{rtjac.Target{Kind: rtjac.Temperature, Method: rtjac.Perturbation,
			Grid: []float64{1e3, 1e4}}, false},
		{rtjac.Target{Kind: rtjac.Temperature, Method: 9, Grid: grid}, false},
	} {
		err := tc.t.Check(1)
		if tc.ok {
			assert.NoError(t, err, tc.t.String())
		} else {
			assert.Error(t, err, tc.t.String())
		}
	}
}

func TestZeroPerturbation(t *testing.T) {
	s := rtjac.NewSet(rtjac.Target{Kind: rtjac.MagU, Method: rtjac.Perturbation, Grid: grid})
	s.Perturb.Magnetic = 0
	assert.EqualError(t, s.Check(0),
		"jacobian target 0: magnetic u (perturbation): zero perturbation")
	var empty *rtjac.Set
	assert.NoError(t, empty.Check(0))
	assert.Equal(t, 0, empty.Len())
}

func TestUnitScale(t *testing.T) {
	const vmr, p, temp = 2e-3, 5e4, 250.
	nTot := p / (1.3806504e-23 * temp)
	for _, tc := range []struct {
		unit      string
		scf, dxdv float64
	}{
		{"rel", 1, vmr},
		{"vmr", 1 / vmr, 1},
		{"nd", 1 / (vmr * nTot), 1 / nTot},
	} {
		s, err := rtjac.VMRUnitScale(tc.unit, vmr, p, temp)
		assert.NoError(t, err)
		assert.InEpsilon(t, tc.scf, s, 1e-12, tc.unit)
		d, err := rtjac.DXDVMRScale(tc.unit, vmr, p, temp)
		assert.NoError(t, err)
		assert.InEpsilon(t, tc.dxdv, d, 1e-12, tc.unit)
	}
	for _, u := range []string{"vmr", "nd"} {
		s, err := rtjac.VMRUnitScale(u, 0, p, temp)
		assert.NoError(t, err)
		assert.Equal(t, 0., s, u)
	}
	_, err := rtjac.VMRUnitScale("x", vmr, p, temp)
	assert.Error(t, err)
	_, err = rtjac.DXDVMRScale("x", vmr, p, temp)
	assert.Error(t, err)
}
