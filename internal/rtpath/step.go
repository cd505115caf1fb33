// Public domain.

package rtpath

import (
	"fmt"
	"math"

	"github.com/soniakeys/unit"

	"github.com/soniakeys/rtpath/internal/rtgeom"
	"github.com/soniakeys/rtpath/internal/rtgrid"
)

// GeometricStepper steps straight lines through a 1D spherical atmosphere.
//
// A straight line with impact parameter c = r·sin(za) is parameterized
// by its signed distance s from the tangent point, so that r = √(c²+s²),
// za = atan2(c, s) and the angle covered from the tangent point is
// atan2(s, c).  s increases along the path.  A step runs from the current
// point to the next altitude level, the tangent point or the surface,
// whichever comes first, split into equal parts no longer than lmax.
type GeometricStepper struct{}

// Step implements Stepper.
func (GeometricStepper) Step(atm *Atmosphere, from *Path, lmax float64) (*Path, error) {
	if atm.Dim != 1 {
		return nil, fmt.Errorf("%dD geometric path stepping: %w", atm.Dim, ErrNotHandled)
	}
	i0 := from.last()
	r0 := from.R[i0]
	za0 := from.LOS[i0].Za
	c := from.Constant
	zcol := atm.Z.Column(0, 0)
	rg := atm.RGeoid
	zs := atm.ZSurface[0][0]

	s0 := math.Sqrt(math.Max(r0*r0-c*c, 0))
	if za0 > deg90 {
		s0 = -s0
	}

	// end of step
	var z1, s1 float64
	var ground, tangent bool
	if za0 <= deg90 {
		i := 0
		for i < len(zcol) && rg+zcol[i] <= r0 {
			i++
		}
		if i == len(zcol) {
			return nil, &GeometryError{fmt.Sprintf(
				"upward step from the top of the atmosphere at %.2f km", (r0-rg)/1000)}
		}
		z1 = zcol[i]
		r1 := rg + z1
		s1 = math.Sqrt(r1*r1 - c*c)
	} else {
		i := len(zcol) - 1
		for i >= 0 && rg+zcol[i] >= r0 {
			i--
		}
		z1 = zs
		if i >= 0 && zcol[i] > zs {
			z1 = zcol[i]
		}
		r1 := rg + z1
		if c >= r1 {
			// tangent point before reaching the lower level
			tangent = true
			z1 = c - rg
			s1 = 0
		} else {
			ground = z1 == zs
			s1 = -math.Sqrt(r1*r1 - c*c)
		}
	}

	n := 1
	if l := s1 - s0; lmax > 0 && l > lmax {
		n = int(math.Ceil(l / lmax))
	}
	seg := &Path{Dim: 1, NP: n + 1, Constant: c,
		Pos:   make([]Pos, n+1),
		R:     make([]float64, n+1),
		LOS:   make([]rtgeom.LOS, n+1),
		NReal: make([]float64, n+1),
		GpP:   make([]rtgrid.GridPos, n+1),
		GpLat: make([]rtgrid.GridPos, n+1),
		GpLon: make([]rtgrid.GridPos, n+1),
		Lstep: make([]float64, n),
	}
	ds := (s1 - s0) / float64(n)
	th0 := math.Atan2(s0, c)
	lat0 := from.Pos[i0].Lat
	for k := 0; k <= n; k++ {
		seg.NReal[k] = 1
		if k < n {
			seg.Lstep[k] = ds
		}
		if k == 0 {
			seg.Pos[0] = from.Pos[i0]
			seg.R[0] = r0
			seg.LOS[0] = from.LOS[i0]
			seg.GpP[0] = from.GpP[i0]
			continue
		}
		s := s0 + float64(k)*ds
		r := math.Hypot(c, s)
		z := r - rg
		if k == n {
			s, z, r = s1, z1, rg+z1
		}
		seg.R[k] = r
		seg.Pos[k] = Pos{Z: z, Lat: lat0 + unit.Angle(math.Atan2(s, c)-th0)}
		seg.LOS[k] = rtgeom.LOS{Za: unit.Angle(math.Atan2(c, s))}
		seg.GpP[k] = rtgrid.Find(zcol, z)
	}
	if tangent {
		tp := seg.Pos[n]
		seg.TanPos = &tp
		seg.LOS[n].Za = deg90
	}
	if ground {
		seg.Background = Surface
		seg.Ground = true
	}
	return seg, nil
}

var deg90 = unit.AngleFromDeg(90)
