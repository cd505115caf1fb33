// Public domain.

// Package rtgeom holds line-of-sight and coordinate functions used along
// propagation paths.
//
// Angles are unit.Angle throughout.  A line-of-sight zenith angle is measured
// from the local vertical.  In 1D only the zenith angle is meaningful, in 2D
// the zenith angle is signed, positive toward increasing latitude, and in 3D
// the azimuth angle is measured from north toward east.
package rtgeom

import (
	"math"

	"github.com/soniakeys/unit"
)

// SpeedOfLight in m/s.
const SpeedOfLight = 2.99792458e8

var (
	deg90  = unit.AngleFromDeg(90)
	deg180 = unit.AngleFromDeg(180)
	deg360 = unit.AngleFromDeg(360)
)

// LOS is a line-of-sight.  Aa is ignored for 1D and 2D atmospheres.
type LOS struct {
	Za, Aa unit.Angle
}

// NewLOS constructs a LOS from angles in degrees.
func NewLOS(za, aa float64) LOS {
	return LOS{unit.AngleFromDeg(za), unit.AngleFromDeg(aa)}
}

// Upward reports whether the zenith angle is at most 90 degrees.
func (l LOS) Upward() bool {
	return math.Abs(l.Za.Rad()) <= deg90.Rad()
}

// MirrorLOS returns the line-of-sight for the reversed direction.
//
// For 1D a viewing azimuth of 0 is assumed, which for 2D corresponds to a
// positive zenith angle.
func MirrorLOS(los LOS, dim int) (m LOS) {
	switch dim {
	case 1:
		m.Za = deg180 - los.Za
		m.Aa = deg180
	case 2:
		m.Za = deg180 - unit.Angle(math.Abs(los.Za.Rad()))
		if los.Za >= 0 {
			m.Aa = deg180
		}
	default:
		m.Za = deg180 - los.Za
		m.Aa = los.Aa + deg180
		if m.Aa > deg180 {
			m.Aa -= deg360
		}
	}
	return
}

// AdjustLOS folds a line-of-sight back into the ranges valid for the
// atmospheric dimensionality.
func AdjustLOS(los LOS, dim int) LOS {
	switch dim {
	case 1:
		switch {
		case los.Za < 0:
			los.Za = -los.Za
		case los.Za > deg180:
			los.Za = deg360 - los.Za
		}
	case 2:
		switch {
		case los.Za < -deg180:
			los.Za += deg360
		case los.Za > deg180:
			los.Za -= deg360
		}
	default:
		if math.Abs(los.Aa.Rad()) > deg180.Rad() || los.Za < 0 || los.Za > deg180 {
			d := ZaAaToCart(los)
			los = CartToZaAa(&d)
		}
	}
	return los
}

// LOS3D converts a line-of-sight of any dimensionality to the implied 3D
// line-of-sight.  The returned zenith angle is always >= 0.
func LOS3D(los LOS, dim int) (l3 LOS) {
	l3.Za = unit.Angle(math.Abs(los.Za.Rad()))
	switch dim {
	case 2:
		if los.Za < 0 {
			l3.Aa = deg180
		}
	case 3:
		l3.Aa = los.Aa
	}
	return
}

// VectorFieldLOS returns magnitude and direction of a vector field given by
// its zonal u, meridional v and vertical w components.
//
// A zero field has magnitude 0 and zenith direction.
func VectorFieldLOS(u, v, w float64) (l float64, los LOS) {
	l = math.Sqrt(u*u + v*v + w*w)
	if l == 0 {
		return
	}
	los.Za = unit.Angle(math.Acos(w / l))
	los.Aa = unit.Angle(math.Atan2(u, v))
	return
}

// DotProdWithLOS projects the field (u, v, w) onto the photon direction of
// los.  The line-of-sight is the viewing direction, the photons travel along
// its mirror.  The result is |f|·cos(θ), θ the angle between the field and
// the photon direction.
func DotProdWithLOS(los LOS, u, v, w float64, dim int) float64 {
	f, fl := VectorFieldLOS(u, v, w)
	if f == 0 {
		return 0
	}
	p := MirrorLOS(los, dim)
	sf, cf := fl.Za.Sincos()
	sp, cp := p.Za.Sincos()
	return f * (cf*cp + sf*sp*math.Cos(fl.Aa.Rad()-p.Aa.Rad()))
}

// Doppler returns f shifted for a velocity v (m/s) along the photon
// direction, f·(1−v/c).  For v == 0 the result is an exact copy of f.
func Doppler(f []float64, v float64) []float64 {
	s := append([]float64{}, f...)
	if v == 0 {
		return s
	}
	k := 1 - v/SpeedOfLight
	for i := range s {
		s[i] *= k
	}
	return s
}
