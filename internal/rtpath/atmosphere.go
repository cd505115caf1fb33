// Public domain.

package rtpath

import (
	"fmt"
	"math"

	"github.com/soniakeys/meeus/v3/globe"
	"github.com/soniakeys/unit"

	"github.com/soniakeys/rtpath/internal/rtgeom"
	"github.com/soniakeys/rtpath/internal/rtgrid"
)

// Atmosphere is the geometry a path is traced through.  It is read only
// once tracing starts and may be shared by concurrent tracers.
type Atmosphere struct {
	Dim      int
	PGrid    []float64 // Pa, strictly decreasing
	LatGrid  []float64 // degrees, 2D and 3D only
	LonGrid  []float64 // degrees, 3D only
	Z        rtgrid.Field3
	ZSurface [][]float64 // [lat][lon], 1x1 for 1D
	RGeoid   float64     // reference radius, m
	Cloudbox *Cloudbox   // nil when no cloud box is active
}

// Cloudbox gives index limits into the pressure, latitude and longitude
// grids.  Limits for unused dimensions are ignored.
type Cloudbox struct {
	P, Lat, Lon [2]int
}

// ConfigError reports an invalid atmosphere, position or line-of-sight.
type ConfigError struct {
	Var   string
	Value interface{}
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s = %v: %s", e.Var, e.Value, e.Msg)
}

func configErr(v string, val interface{}, format string, a ...interface{}) error {
	return &ConfigError{Var: v, Value: val, Msg: fmt.Sprintf(format, a...)}
}

// GeoidRadius returns the geocentric radius in meters of ellipsoid e at
// geodetic latitude lat.
func GeoidRadius(e globe.Ellipsoid, lat unit.Angle) float64 {
	s, c := e.ParallaxConstants(lat, 0)
	return math.Hypot(s, c) * e.Er * 1000
}

// NLat returns the latitude extent, 1 for 1D.
func (a *Atmosphere) NLat() int {
	if a.Dim < 2 {
		return 1
	}
	return len(a.LatGrid)
}

// NLon returns the longitude extent, 1 for 1D and 2D.
func (a *Atmosphere) NLon() int {
	if a.Dim < 3 {
		return 1
	}
	return len(a.LonGrid)
}

// ZTop returns the altitude of the top pressure level at the given
// horizontal indexes.
func (a *Atmosphere) ZTop(ilat, ilon int) float64 {
	return a.Z.At(len(a.PGrid)-1, ilat, ilon)
}

// Check validates the atmosphere.  Any violation is reported as a
// *ConfigError.
func (a *Atmosphere) Check() error {
	if a.Dim < 1 || a.Dim > 3 {
		return configErr("atmosphere_dim", a.Dim, "must be 1, 2 or 3")
	}
	np := len(a.PGrid)
	if np < 2 {
		return configErr("p_grid", a.PGrid, "needs at least two levels")
	}
	if !rtgrid.StrictlyDecreasing(a.PGrid) {
		return configErr("p_grid", a.PGrid, "must be strictly decreasing")
	}
	if a.Dim >= 2 {
		if len(a.LatGrid) < 2 {
			return configErr("lat_grid", a.LatGrid, "needs at least two points for %dD", a.Dim)
		}
		if !rtgrid.StrictlyIncreasing(a.LatGrid) {
			return configErr("lat_grid", a.LatGrid, "must be strictly increasing")
		}
	}
	if a.Dim == 3 {
		if a.LatGrid[0] < -90 || a.LatGrid[len(a.LatGrid)-1] > 90 {
			return configErr("lat_grid", a.LatGrid, "must be inside [-90,90]")
		}
		if len(a.LonGrid) < 2 {
			return configErr("lon_grid", a.LonGrid, "needs at least two points for 3D")
		}
		if !rtgrid.StrictlyIncreasing(a.LonGrid) {
			return configErr("lon_grid", a.LonGrid, "must be strictly increasing")
		}
		if a.LonGrid[0] < -360 || a.LonGrid[len(a.LonGrid)-1] > 360 {
			return configErr("lon_grid", a.LonGrid, "must be inside [-360,360]")
		}
	}
	if !(a.RGeoid > 0) {
		return configErr("refellipsoid", a.RGeoid, "radius must be > 0")
	}
	nlat, nlon := a.NLat(), a.NLon()
	if a.Z.Empty() {
		return configErr("z_field", "empty", "altitudes are required")
	}
	if err := a.Z.CheckShape("z_field", np, nlat, nlon); err != nil {
		return err
	}
	if len(a.ZSurface) != nlat {
		return configErr("z_surface", len(a.ZSurface),
			"expected %d latitude rows", nlat)
	}
	for ilat, row := range a.ZSurface {
		if len(row) != nlon {
			return configErr("z_surface", len(row),
				"row %d: expected %d longitude columns", ilat, nlon)
		}
		for ilon, zs := range row {
			col := a.Z.Column(ilat, ilon)
			if !rtgrid.StrictlyIncreasing(col) {
				return configErr("z_field", col,
					"column (%d,%d) must be strictly increasing", ilat, ilon)
			}
			if zs < col[0] || zs >= col[np-1] {
				return configErr("z_surface", zs,
					"at (%d,%d) must be inside [%g,%g)", ilat, ilon, col[0], col[np-1])
			}
		}
	}
	if cb := a.Cloudbox; cb != nil {
		if cb.P[0] < 0 || cb.P[1] <= cb.P[0] || cb.P[1] > np-1 {
			return configErr("cloudbox_limits", cb.P,
				"pressure limits must satisfy 0 <= lo < hi <= %d", np-1)
		}
		if a.Dim >= 2 && (cb.Lat[0] < 1 || cb.Lat[1] <= cb.Lat[0] || cb.Lat[1] > nlat-2) {
			return configErr("cloudbox_limits", cb.Lat,
				"latitude limits must satisfy 1 <= lo < hi <= %d", nlat-2)
		}
		if a.Dim == 3 && (cb.Lon[0] < 1 || cb.Lon[1] <= cb.Lon[0] || cb.Lon[1] > nlon-2) {
			return configErr("cloudbox_limits", cb.Lon,
				"longitude limits must satisfy 1 <= lo < hi <= %d", nlon-2)
		}
	}
	return nil
}

// angTol absorbs degree-radian round trips in range checks, degrees.
const angTol = 1e-9

// checkStart validates a sensor position and line-of-sight.
func (a *Atmosphere) checkStart(pos Pos, los rtgeom.LOS) error {
	za, aa := los.Za.Deg(), los.Aa.Deg()
	switch a.Dim {
	case 1:
		if za < -angTol || za > 180+angTol {
			return configErr("rte_los", za, "zenith angle for 1D must be inside [0,180]")
		}
	case 2:
		if za < -180-angTol || za > 180+angTol {
			return configErr("rte_los", za, "zenith angle for 2D must be inside [-180,180]")
		}
	case 3:
		if za < -angTol || za > 180+angTol {
			return configErr("rte_los", za, "zenith angle for 3D must be inside [0,180]")
		}
		if aa < -180-angTol || aa > 180+angTol {
			return configErr("rte_los", aa, "azimuth angle for 3D must be inside [-180,180]")
		}
		if lat := pos.Lat.Deg(); lat < -90-angTol || lat > 90+angTol {
			return configErr("rte_pos", lat, "latitude must be inside [-90,90]")
		}
		if lon := pos.Lon.Deg(); lon < -360-angTol || lon > 360+angTol {
			return configErr("rte_pos", lon, "longitude must be inside [-360,360]")
		}
	}
	if r := a.RGeoid + pos.Z; !(r > 0) {
		return configErr("rte_pos", pos.Z, "sensor radius must be > 0")
	}
	if a.Dim == 1 {
		if zs := a.ZSurface[0][0]; pos.Z < zs {
			return configErr("rte_pos", pos.Z, "sensor below the surface at %g m", zs)
		}
		if zt := a.ZTop(0, 0); pos.Z > zt {
			return configErr("rte_pos", pos.Z,
				"sensor must be inside the atmosphere, top at %g m", zt)
		}
	}
	return nil
}
