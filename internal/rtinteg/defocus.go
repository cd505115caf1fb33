// Public domain.

package rtinteg

import (
	"errors"
	"fmt"

	"github.com/soniakeys/unit"

	"github.com/soniakeys/rtpath/internal/rtgeom"
	"github.com/soniakeys/rtpath/internal/rtgrid"
	"github.com/soniakeys/rtpath/internal/rtpath"
)

// ErrNotLimb is returned by DefocusingSat2Sat for paths that do not pass a
// tangent point between a sensor looking down and an end looking up.
var ErrNotLimb = errors.New("satellite to satellite defocusing requires limb sounding geometry")

// lengths returns the physical and optical lengths of p including the
// distances beyond both ends.
func lengths(p *rtpath.Path) (lp, lo float64) {
	lp = p.StartLstep + p.EndLstep
	lo = lp
	for i, l := range p.Lstep {
		lp += l
		lo += l * (p.NReal[i] + p.NReal[i+1]) / 2
	}
	return
}

// DefocusingGeneral estimates the defocusing loss factor of p, 1 for no
// loss, for any geometry.  Two paths are traced back from the far end of p
// toward the sensor, with zenith angles offset by ±dza.  Their separation
// at the optical length of p, relative to free space propagation, gives
// the loss.  The azimuth gain is not included.
func DefocusingGeneral(atm *rtpath.Atmosphere, policy rtpath.StepPolicy, p *rtpath.Path, dza unit.Angle) (float64, error) {
	if p.Dim == 3 {
		return 0, fmt.Errorf("3D defocusing: %w", rtpath.ErrNotHandled)
	}
	lp, lo := lengths(p)
	start := p.EndPos
	if p.Dim == 1 {
		start = rtpath.Pos{Z: p.EndPos.Z}
	}
	los0 := rtgeom.MirrorLOS(p.EndLOS, p.Dim)

	retrace := func(los rtgeom.LOS) (r float64, lat unit.Angle, bg rtpath.Background, err error) {
		invert := p.Dim == 1 && (los.Za < 0 || los.Za > deg180)
		los = rtgeom.AdjustLOS(los, p.Dim)
		pol := policy
		pol.Transmitter = 0
		x, err := rtpath.Trace(atm, start, los, pol)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("defocusing: %w", err)
		}
		r, lat = positionAt(x, lo)
		if invert {
			lat = -lat
		}
		return r, lat, x.Background, nil
	}
	l1 := los0
	l1.Za += dza
	r1, lat1, bg1, err := retrace(l1)
	if err != nil {
		return 0, err
	}
	l2 := los0
	l2.Za -= dza
	r2, lat2, bg2, err := retrace(l2)
	if err != nil {
		return 0, err
	}
	if bg1 == bg2 {
		return lp * 2 * dza.Rad() / rtgeom.Distance2D(r1, lat1, r2, lat2), nil
	}
	// only the second path is usable
	var l12 float64
	if p.Dim == 1 {
		l12 = rtgeom.Distance2D(atm.RGeoid+p.StartPos.Z, 0, r2, lat2)
	} else {
		l12 = rtgeom.Distance2D(atm.RGeoid+p.StartPos.Z, p.StartPos.Lat, r2, lat2)
	}
	return lp * dza.Rad() / l12, nil
}

var deg180 = unit.AngleFromDeg(180)

// positionAt returns the position at optical distance lo along x, counted
// from StartLstep before its first point.  Beyond the end of x the last
// point is extended along its line-of-sight.
func positionAt(x *rtpath.Path, lo float64) (r float64, lat unit.Angle) {
	lox := make([]float64, x.NP)
	lox[0] = x.StartLstep
	for i := 1; i < x.NP; i++ {
		lox[i] = lox[i-1] + x.Lstep[i-1]*(x.NReal[i-1]+x.NReal[i])/2
	}
	n := x.NP - 1
	if lox[n] < lo {
		dl := lo - lox[n]
		cx, cz, dx, dz := rtgeom.PosLOSToCart2D(x.R[n], x.Pos[n].Lat, x.LOS[n].Za)
		return rtgeom.CartToPol(cx+dl*dx, cz+dl*dz)
	}
	gp := rtgrid.Find(lox, lo)
	r = rtgrid.Interp(gp, x.R)
	lats := make([]float64, x.NP)
	for i, pos := range x.Pos {
		lats[i] = pos.Lat.Rad()
	}
	return r, unit.Angle(rtgrid.Interp(gp, lats))
}

// DefocusingSat2Sat returns the defocusing loss factor of a limb path
// between two satellites, 1 for no loss.  Both the zenith loss and the
// azimuth gain are included.  The expressions assume a 1D atmosphere.
// The transmitter and receiver distances are taken from EndLstep and
// StartLstep.
func DefocusingSat2Sat(atm *rtpath.Atmosphere, policy rtpath.StepPolicy, p *rtpath.Path, dza unit.Angle) (float64, error) {
	if p.StartLOS.Za < deg90 || p.EndLOS.Za > deg90 {
		return 0, ErrNotLimb
	}
	it := p.TangentIndex()
	if it < 0 {
		return 0, ErrNotLimb
	}
	lt, lr := p.EndLstep, p.StartLstep
	for i, l := range p.Lstep {
		if i >= it {
			lt += l
		} else {
			lr += l
		}
	}
	alpha0, a0 := p.BendingAngle().Rad(), p.Constant
	lf := lr * lt / (lr + lt)
	alt := 1 / (1 - alpha0*lf/atm.RGeoid)

	trace := func(za unit.Angle) (*rtpath.Path, error) {
		los := rtgeom.AdjustLOS(rtgeom.LOS{Za: za, Aa: p.StartLOS.Aa}, p.Dim)
		x, err := rtpath.Trace(atm, p.StartPos, los, policy)
		if err != nil {
			return nil, fmt.Errorf("defocusing: %w", err)
		}
		return x, nil
	}
	x2, err := trace(p.StartLOS.Za - dza)
	if err != nil {
		return 0, err
	}
	alpha2, a2 := x2.BendingAngle().Rad(), x2.Constant
	x1, err := trace(p.StartLOS.Za + dza)
	if err != nil {
		return 0, err
	}
	var dada float64
	if x1.Background == rtpath.Space {
		dada = (alpha2 - x1.BendingAngle().Rad()) / (a2 - x1.Constant)
	} else {
		dada = (alpha2 - alpha0) / (a2 - a0)
	}
	zlt := 1 / (1 - dada*lf)
	return zlt * alt, nil
}

var deg90 = unit.AngleFromDeg(90)
