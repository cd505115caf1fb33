// Public domain.

// Package rtatm samples gridded atmospheric fields along a propagation path.
package rtatm

import (
	"fmt"

	"github.com/soniakeys/rtpath/internal/rtgeom"
	"github.com/soniakeys/rtpath/internal/rtgrid"
	"github.com/soniakeys/rtpath/internal/rtpath"
)

// Fields holds the atmospheric fields on the grids of an rtpath.Atmosphere.
// Wind, magnetic and NLTE fields are optional and may be empty.  Fields are
// read only during sampling and may be shared between goroutines.
type Fields struct {
	T    rtgrid.Field3   // K
	VMR  []rtgrid.Field3 // per species
	NLTE []rtgrid.Field3 // NLTE temperatures, K, per level
	// m/s, toward east, north and up
	WindU, WindV, WindW rtgrid.Field3
	// T, toward east, north and up
	MagU, MagV, MagW rtgrid.Field3
}

// Vec3 is an east, north, up vector.
type Vec3 [3]float64

// IsZero reports whether all components are zero.
func (v Vec3) IsZero() bool { return v[0] == 0 && v[1] == 0 && v[2] == 0 }

// State is the atmospheric state at each point of one path.  It is owned
// by a single path evaluation.
type State struct {
	NP   int
	P    []float64   // Pa
	T    []float64   // K
	NLTE [][]float64 // [point][level], nil when there are no NLTE fields
	VMR  [][]float64 // [point][species]
	Wind []Vec3
	Mag  []Vec3
	F    [][]float64 // [point][frequency], Doppler shifted
}

// NSpecies returns the number of absorbing species sampled.
func (s *State) NSpecies() int {
	if s.NP == 0 {
		return 0
	}
	return len(s.VMR[0])
}

// Check validates the field shapes against atm.  Optional fields may be
// empty, the temperature field may not.
func (fs *Fields) Check(atm *rtpath.Atmosphere) error {
	np, nlat, nlon := len(atm.PGrid), atm.NLat(), atm.NLon()
	if fs.T.Empty() {
		return fmt.Errorf("t_field: expected size %dx%dx%d, got empty", np, nlat, nlon)
	}
	chk := func(name string, f *rtgrid.Field3) error {
		return f.CheckShape(name, np, nlat, nlon)
	}
	if err := chk("t_field", &fs.T); err != nil {
		return err
	}
	for i := range fs.VMR {
		if fs.VMR[i].Empty() {
			return fmt.Errorf("vmr_field species %d: expected size %dx%dx%d, got empty",
				i, np, nlat, nlon)
		}
		if err := chk(fmt.Sprint("vmr_field species ", i), &fs.VMR[i]); err != nil {
			return err
		}
	}
	for i := range fs.NLTE {
		if fs.NLTE[i].Empty() {
			return fmt.Errorf("t_nlte_field level %d: expected size %dx%dx%d, got empty",
				i, np, nlat, nlon)
		}
		if err := chk(fmt.Sprint("t_nlte_field level ", i), &fs.NLTE[i]); err != nil {
			return err
		}
	}
	for _, f := range []struct {
		name string
		f    *rtgrid.Field3
	}{
		{"wind_u_field", &fs.WindU}, {"wind_v_field", &fs.WindV},
		{"wind_w_field", &fs.WindW}, {"mag_u_field", &fs.MagU},
		{"mag_v_field", &fs.MagV}, {"mag_w_field", &fs.MagW},
	} {
		if err := chk(f.name, f.f); err != nil {
			return err
		}
	}
	return nil
}

// Sample interpolates fs at the points of p.  Pressure is interpolated
// linearly in its logarithm, all other fields linearly in grid position.
// Empty optional fields give zeros.  The Doppler shifted frequencies are
// computed from f, the wind and the along-path velocity vAlong.
func Sample(atm *rtpath.Atmosphere, fs *Fields, p *rtpath.Path, f []float64, vAlong float64) (*State, error) {
	if err := fs.Check(atm); err != nil {
		return nil, err
	}
	if p.Dim != atm.Dim {
		return nil, fmt.Errorf("path dimensionality: expected %d, got %d", atm.Dim, p.Dim)
	}
	n := p.NP
	s := &State{NP: n,
		P:    make([]float64, n),
		T:    make([]float64, n),
		VMR:  make([][]float64, n),
		Wind: make([]Vec3, n),
		Mag:  make([]Vec3, n),
	}
	if len(fs.NLTE) > 0 {
		s.NLTE = make([][]float64, n)
	}
	for i := 0; i < n; i++ {
		gp, glat, glon := p.GpP[i], p.GpLat[i], p.GpLon[i]
		at := func(f *rtgrid.Field3) float64 { return f.Interp(gp, glat, glon) }
		s.P[i] = rtgrid.InterpLog(gp, atm.PGrid)
		s.T[i] = at(&fs.T)
		s.VMR[i] = make([]float64, len(fs.VMR))
		for j := range fs.VMR {
			s.VMR[i][j] = at(&fs.VMR[j])
		}
		if s.NLTE != nil {
			s.NLTE[i] = make([]float64, len(fs.NLTE))
			for j := range fs.NLTE {
				s.NLTE[i][j] = at(&fs.NLTE[j])
			}
		}
		s.Wind[i] = Vec3{at(&fs.WindU), at(&fs.WindV), at(&fs.WindW)}
		s.Mag[i] = Vec3{at(&fs.MagU), at(&fs.MagV), at(&fs.MagW)}
	}
	s.F = DopplerGrids(f, p, s.Wind, vAlong)
	return s, nil
}

// DopplerGrids returns the frequency grid seen at each path point.  The
// Doppler velocity is vAlong plus the wind projected on the photon
// direction.  A point with zero Doppler velocity gets an exact copy of f.
func DopplerGrids(f []float64, p *rtpath.Path, wind []Vec3, vAlong float64) [][]float64 {
	g := make([][]float64, p.NP)
	for i := range g {
		v := vAlong
		if w := wind[i]; !w.IsZero() {
			v += rtgeom.DotProdWithLOS(p.LOS[i], w[0], w[1], w[2], p.Dim)
		}
		g[i] = rtgeom.Doppler(f, v)
	}
	return g
}

// Wind components for FrequencyPartial.
const (
	AlongPath = iota
	WindU
	WindV
	WindW
)

// FrequencyPartial returns the derivative of the Doppler shifted frequency
// at each path point with respect to one velocity component, -f/c times
// the component's projection on the photon direction.
func FrequencyPartial(f []float64, p *rtpath.Path, component int) ([][]float64, error) {
	g := make([][]float64, p.NP)
	for i := range g {
		var dv float64
		switch component {
		case AlongPath:
			dv = 1
		case WindU:
			dv = rtgeom.DotProdWithLOS(p.LOS[i], 1, 0, 0, p.Dim)
		case WindV:
			dv = rtgeom.DotProdWithLOS(p.LOS[i], 0, 1, 0, p.Dim)
		case WindW:
			dv = rtgeom.DotProdWithLOS(p.LOS[i], 0, 0, 1, p.Dim)
		default:
			return nil, fmt.Errorf("frequency partial: invalid wind component %d", component)
		}
		g[i] = make([]float64, len(f))
		if dv == 0 {
			continue
		}
		a := -dv / rtgeom.SpeedOfLight
		for j, fj := range f {
			g[i][j] = a * fj
		}
	}
	return g, nil
}
