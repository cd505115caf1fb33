// Public domain.

package rtpath

import (
	"errors"
	"fmt"
	"math"

	"github.com/soniakeys/rtpath/internal/rtgeom"
	"github.com/soniakeys/rtpath/internal/rtgrid"
)

// GeometryError reports a path that cannot be traced through the
// atmosphere as configured.
type GeometryError struct {
	Msg string
}

func (e *GeometryError) Error() string { return e.Msg }

// ErrNotHandled is returned for stepping methods not implemented.
var ErrNotHandled = errors.New("not yet handled")

// StepPolicy controls path stepping.
type StepPolicy struct {
	LMax        float64 // maximum step length in m, <= 0 for no limit
	Refraction  bool    // refractive stepping, not yet handled
	Transmitter float64 // transmitter radius in m for EndLstep, 0 for none
	// ThroughCloudbox traces through an active cloud box instead of ending
	// the path at its boundary.  Particles are then handled along the path.
	ThroughCloudbox bool
}

// Stepper takes one step from the end of a path.  The returned segment
// starts with a copy of the last point of from.  A stepper sets
// Background only for surface intersection; the tracer handles the other
// backgrounds.
type Stepper interface {
	Step(atm *Atmosphere, from *Path, lmax float64) (*Path, error)
}

// Trace computes the path from start along los using the stepper
// selected by policy.
func Trace(atm *Atmosphere, start Pos, los rtgeom.LOS, policy StepPolicy) (*Path, error) {
	var s Stepper
	switch {
	case policy.Refraction:
		return nil, fmt.Errorf("refractive path stepping: %w", ErrNotHandled)
	case atm.Dim != 1:
		return nil, fmt.Errorf("%dD geometric path stepping: %w", atm.Dim, ErrNotHandled)
	default:
		s = GeometricStepper{}
	}
	return TraceWith(atm, start, los, policy, s)
}

// TraceWith computes a path using stepper s.
func TraceWith(atm *Atmosphere, start Pos, los rtgeom.LOS, policy StepPolicy, s Stepper) (*Path, error) {
	if err := atm.Check(); err != nil {
		return nil, err
	}
	if err := atm.checkStart(start, los); err != nil {
		return nil, err
	}
	p := startPath(atm, start, los, policy.ThroughCloudbox)
	for p.Background == Undefined {
		seg, err := s.Step(atm, p, policy.LMax)
		if err != nil {
			return nil, fmt.Errorf("path step at point %d: %w", p.last(), err)
		}
		if err := checkLateral(atm, seg); err != nil {
			return nil, err
		}
		n := seg.NP - 1
		switch {
		case seg.Background != Undefined:
		case atTop(atm, seg.GpP[n]) && seg.LOS[n].Upward():
			seg.Background = Space
		case !policy.ThroughCloudbox && insideCloudbox(atm, seg, n, true):
			seg.Background = CloudboxSurface
		}
		p.appendSegment(seg)
	}
	p.EndPos = p.Pos[p.last()]
	p.EndLOS = p.LOS[p.last()]
	if policy.Transmitter > 0 && p.Background == Space {
		p.EndLstep = transmitterDistance(p, policy.Transmitter)
	}
	return p, nil
}

func startPath(atm *Atmosphere, start Pos, los rtgeom.LOS, through bool) *Path {
	p := newPath(atm.Dim)
	p.StartPos, p.StartLOS = start, los
	p.Pos[0], p.LOS[0] = start, los
	p.R[0] = atm.RGeoid + start.Z
	p.Constant = p.R[0] * math.Abs(los.Za.Sin())
	setGridPos(atm, p, 0)

	switch {
	case atTop(atm, p.GpP[0]) && los.Upward():
		p.Background = Space
	case atm.Dim == 1 && start.Z <= atm.ZSurface[0][0] && !los.Upward():
		p.Background = Surface
		p.Ground = true
	case through:
	case insideCloudbox(atm, p, 0, false):
		p.Background = CloudboxInterior
	case insideCloudbox(atm, p, 0, true) && pointsIntoCloudbox(atm, p):
		p.Background = CloudboxSurface
	}
	return p
}

// setGridPos sets grid positions of point i from its position.
func setGridPos(atm *Atmosphere, p *Path, i int) {
	pos := p.Pos[i]
	ilat, ilon := 0, 0
	if atm.Dim >= 2 {
		p.GpLat[i] = rtgrid.Find(atm.LatGrid, pos.Lat.Deg())
		ilat = nearest(p.GpLat[i])
	}
	if atm.Dim == 3 {
		p.GpLon[i] = rtgrid.Find(atm.LonGrid, pos.Lon.Deg())
		ilon = nearest(p.GpLon[i])
	}
	p.GpP[i] = rtgrid.Find(atm.Z.Column(ilat, ilon), pos.Z)
}

func nearest(gp rtgrid.GridPos) int {
	if gp.Fd0 > .5 {
		return gp.Idx + 1
	}
	return gp.Idx
}

func atTop(atm *Atmosphere, gp rtgrid.GridPos) bool {
	return gp.Index() >= float64(len(atm.PGrid)-1)
}

// InsideCloudbox reports whether point i of p is inside the cloud box or on
// its boundary.
func (a *Atmosphere) InsideCloudbox(p *Path, i int) bool {
	return insideCloudbox(a, p, i, true)
}

func insideCloudbox(atm *Atmosphere, p *Path, i int, boundaries bool) bool {
	cb := atm.Cloudbox
	if cb == nil {
		return false
	}
	in := func(gp rtgrid.GridPos, lim [2]int) bool {
		x := gp.Index()
		lo, hi := float64(lim[0]), float64(lim[1])
		if boundaries {
			return x >= lo && x <= hi
		}
		return x > lo && x < hi
	}
	if !in(p.GpP[i], cb.P) {
		return false
	}
	if atm.Dim >= 2 && !in(p.GpLat[i], cb.Lat) {
		return false
	}
	if atm.Dim == 3 && !in(p.GpLon[i], cb.Lon) {
		return false
	}
	return true
}

// pointsIntoCloudbox, for a 1D start point on a cloud box boundary.
func pointsIntoCloudbox(atm *Atmosphere, p *Path) bool {
	x := p.GpP[0].Index()
	up := p.LOS[0].Upward()
	return x == float64(atm.Cloudbox.P[1]) && !up ||
		x == float64(atm.Cloudbox.P[0]) && up
}

func checkLateral(atm *Atmosphere, seg *Path) error {
	n := seg.NP - 1
	z := seg.Pos[n].Z / 1000
	if atm.Dim >= 2 {
		switch x := seg.GpLat[n].Index(); {
		case x < 0:
			return &GeometryError{fmt.Sprintf("The path exits the atmosphere "+
				"through the lower latitude end face, at altitude %.2f km.", z)}
		case x > float64(len(atm.LatGrid)-1):
			return &GeometryError{fmt.Sprintf("The path exits the atmosphere "+
				"through the upper latitude end face, at altitude %.2f km.", z)}
		}
	}
	if atm.Dim == 3 {
		switch x := seg.GpLon[n].Index(); {
		case x < 0:
			return &GeometryError{fmt.Sprintf("The path exits the atmosphere "+
				"through the lower longitude end face, at altitude %.2f km.", z)}
		case x > float64(len(atm.LonGrid)-1):
			return &GeometryError{fmt.Sprintf("The path exits the atmosphere "+
				"through the upper longitude end face, at altitude %.2f km.", z)}
		}
	}
	return nil
}

func transmitterDistance(p *Path, r2 float64) float64 {
	c := p.Constant
	r1 := p.R[p.last()]
	if r2 <= r1 {
		return 0
	}
	return math.Sqrt(r2*r2-c*c) - math.Sqrt(math.Max(r1*r1-c*c, 0))
}
