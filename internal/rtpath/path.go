// Public domain.

// Package rtpath traces propagation paths through a gridded atmosphere.
package rtpath

import (
	"fmt"
	"math"

	"github.com/soniakeys/unit"

	"github.com/soniakeys/rtpath/internal/rtgeom"
	"github.com/soniakeys/rtpath/internal/rtgrid"
)

// Background is the radiative background where a path ends.
type Background int

const (
	Undefined Background = iota
	Space
	Surface
	CloudboxSurface
	CloudboxInterior
)

var bgNames = [...]string{"undefined", "space", "surface",
	"cloudbox surface", "cloudbox interior"}

func (b Background) String() string {
	if b < 0 || int(b) >= len(bgNames) {
		return fmt.Sprintf("Background(%d)", int(b))
	}
	return bgNames[b]
}

// Pos is a position.  Z is altitude above the geoid in m.  In 1D, Lat is
// the angular distance along the path from the sensor.  Lon is used only
// in 3D.
type Pos struct {
	Z        float64
	Lat, Lon unit.Angle
}

// Path is a propagation path.  Points are ordered from the sensor outward.
// A path is not modified after Trace returns it.
type Path struct {
	Dim        int
	NP         int
	Constant   float64 // r·sin(za), constant along a geometric path
	Background Background

	StartPos   Pos
	StartLOS   rtgeom.LOS
	StartLstep float64
	EndPos     Pos
	EndLOS     rtgeom.LOS
	EndLstep   float64 // distance from the end point to a transmitter

	// per point
	Pos               []Pos
	R                 []float64
	LOS               []rtgeom.LOS
	NReal             []float64
	GpP, GpLat, GpLon []rtgrid.GridPos

	Lstep []float64 // NP-1 distances between consecutive points

	Ground bool // path was terminated by the surface
	TanPos *Pos // tangent point, if the path passed one
}

// Length is the summed geometric length of the path steps.
func (p *Path) Length() (l float64) {
	for _, s := range p.Lstep {
		l += s
	}
	return
}

// TangentIndex returns the index of the lowest path point when the path has
// a tangent point strictly between its ends, else -1.
func (p *Path) TangentIndex() int {
	zmin := math.Inf(1)
	it := -1
	for it < p.NP-1 && p.Pos[it+1].Z < zmin {
		it++
		zmin = p.Pos[it].Z
	}
	if it == 0 || it == p.NP-1 {
		return -1
	}
	return it
}

// BendingAngle returns end za - start za + angular distance, the bending
// angle for a 1D atmosphere and a close approximation for 2D and 3D.
// A straight path has zero bending.
func (p *Path) BendingAngle() unit.Angle {
	var theta unit.Angle
	if p.Dim < 3 {
		theta = unit.Angle(math.Abs((p.StartPos.Lat - p.EndPos.Lat).Rad()))
	} else {
		theta = rtgeom.SphDist(p.StartPos.Lat, p.StartPos.Lon,
			p.EndPos.Lat, p.EndPos.Lon)
	}
	return p.EndLOS.Za - p.StartLOS.Za + theta
}

// single point path
func newPath(dim int) *Path {
	return &Path{Dim: dim, NP: 1,
		Pos:   make([]Pos, 1),
		R:     make([]float64, 1),
		LOS:   make([]rtgeom.LOS, 1),
		NReal: []float64{1},
		GpP:   make([]rtgrid.GridPos, 1),
		GpLat: make([]rtgrid.GridPos, 1),
		GpLon: make([]rtgrid.GridPos, 1),
	}
}

// appendSegment adds a step segment.  The first point of seg repeats the
// last point of p and is skipped, so the step lengths of seg start at
// offset NP-1 of p.
func (p *Path) appendSegment(seg *Path) {
	p.Pos = append(p.Pos, seg.Pos[1:]...)
	p.R = append(p.R, seg.R[1:]...)
	p.LOS = append(p.LOS, seg.LOS[1:]...)
	p.NReal = append(p.NReal, seg.NReal[1:]...)
	p.GpP = append(p.GpP, seg.GpP[1:]...)
	p.GpLat = append(p.GpLat, seg.GpLat[1:]...)
	p.GpLon = append(p.GpLon, seg.GpLon[1:]...)
	p.Lstep = append(p.Lstep[:p.NP-1], seg.Lstep...)
	p.NP += seg.NP - 1
	p.Background = seg.Background
	p.Ground = p.Ground || seg.Ground
	if seg.TanPos != nil {
		p.TanPos = seg.TanPos
	}
}

func (p *Path) last() int { return p.NP - 1 }
