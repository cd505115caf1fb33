// Public domain.

// Package rtgrid holds grid positions and gridded atmospheric fields with
// linear interpolation.
package rtgrid

import (
	"fmt"
	"math"
)

// GridPos is a fractional position in a grid.  The position lies Fd0 of the
// way from grid point Idx to Idx+1 and Fd1 = 1-Fd0.  Fd0 outside [0,1]
// represents linear extrapolation beyond the grid ends.
type GridPos struct {
	Idx      int
	Fd0, Fd1 float64
}

// Index returns the position as a float index into the grid.
func (gp GridPos) Index() float64 {
	return float64(gp.Idx) + gp.Fd0
}

// Weights returns the interpolation weights for grid points Idx and Idx+1.
func (gp GridPos) Weights() (w0, w1 float64) {
	return gp.Fd1, gp.Fd0
}

// Find locates x in grid, which must be strictly monotonic, increasing or
// decreasing, with at least one element.  A grid of length 1 always gives
// Idx 0, Fd0 0.
func Find(grid []float64, x float64) (gp GridPos) {
	n := len(grid)
	if n < 2 {
		gp.Fd1 = 1
		return
	}
	inc := grid[n-1] > grid[0]
	// first index where x is no longer past grid[i+1]
	i := 0
	for i < n-2 {
		if inc && x < grid[i+1] || !inc && x > grid[i+1] {
			break
		}
		i++
	}
	gp.Idx = i
	gp.Fd0 = (x - grid[i]) / (grid[i+1] - grid[i])
	// snap exact grid points so that an interpolated value reproduces
	// the grid value bit for bit
	switch {
	case x == grid[i+1]:
		gp.Fd0 = 1
	case x == grid[i]:
		gp.Fd0 = 0
	}
	gp.Fd1 = 1 - gp.Fd0
	return
}

// Interp interpolates values at gp.  values must have the length of the
// grid gp was found in.
func Interp(gp GridPos, values []float64) float64 {
	if len(values) == 1 {
		return values[0]
	}
	switch gp.Fd0 {
	case 0:
		return values[gp.Idx]
	case 1:
		return values[gp.Idx+1]
	}
	return gp.Fd1*values[gp.Idx] + gp.Fd0*values[gp.Idx+1]
}

// Field3 is a gridded field over pressure, latitude and longitude.
// A field with zero extent is empty and interpolates to zero.
type Field3 struct {
	NP, NLat, NLon int
	Data           []float64 // pressure index varies fastest
}

// NewField3 allocates a zeroed field.
func NewField3(np, nlat, nlon int) Field3 {
	return Field3{np, nlat, nlon, make([]float64, np*nlat*nlon)}
}

// Profile constructs a 1D field from a vertical profile.  The slice is used,
// not copied.
func Profile(v []float64) Field3 {
	if len(v) == 0 {
		return Field3{}
	}
	return Field3{len(v), 1, 1, v}
}

// Empty reports whether the field has zero extent.
func (f *Field3) Empty() bool {
	return len(f.Data) == 0
}

// At returns the value at pressure index ip, latitude index ilat and
// longitude index ilon.
func (f *Field3) At(ip, ilat, ilon int) float64 {
	return f.Data[(ilon*f.NLat+ilat)*f.NP+ip]
}

// Set sets the value at the given indexes.
func (f *Field3) Set(ip, ilat, ilon int, v float64) {
	f.Data[(ilon*f.NLat+ilat)*f.NP+ip] = v
}

// Column returns the vertical profile at ilat, ilon.  It aliases the field.
func (f *Field3) Column(ilat, ilon int) []float64 {
	i := (ilon*f.NLat + ilat) * f.NP
	return f.Data[i : i+f.NP]
}

// CheckShape returns an error if a non-empty field does not match the
// given grid sizes.
func (f *Field3) CheckShape(name string, np, nlat, nlon int) error {
	if f.Empty() {
		return nil
	}
	if f.NP != np || f.NLat != nlat || f.NLon != nlon ||
		len(f.Data) != np*nlat*nlon {
		return fmt.Errorf("%s: expected size %dx%dx%d, got %dx%dx%d (%d values)",
			name, np, nlat, nlon, f.NP, f.NLat, f.NLon, len(f.Data))
	}
	return nil
}

// Interp interpolates the field at the grid positions.  Grid positions for
// unused dimensions are ignored.  An empty field interpolates to zero.
func (f *Field3) Interp(gpP, gpLat, gpLon GridPos) float64 {
	if f.Empty() {
		return 0
	}
	pw := weights(gpP, f.NP)
	aw := weights(gpLat, f.NLat)
	ow := weights(gpLon, f.NLon)
	var s float64
	for _, wo := range ow {
		if wo.w == 0 {
			continue
		}
		for _, wa := range aw {
			if wa.w == 0 {
				continue
			}
			for _, wp := range pw {
				if wp.w == 0 {
					continue
				}
				s += wo.w * wa.w * wp.w * f.At(wp.i, wa.i, wo.i)
			}
		}
	}
	return s
}

type iw struct {
	i int
	w float64
}

func weights(gp GridPos, n int) []iw {
	if n == 1 {
		return []iw{{0, 1}}
	}
	return []iw{{gp.Idx, gp.Fd1}, {gp.Idx + 1, gp.Fd0}}
}

// InterpLog interpolates a positive, pressure-like profile linearly in the
// logarithm.
func InterpLog(gp GridPos, values []float64) float64 {
	if len(values) == 1 {
		return values[0]
	}
	switch gp.Fd0 {
	case 0:
		return values[gp.Idx]
	case 1:
		return values[gp.Idx+1]
	}
	return math.Exp(gp.Fd1*math.Log(values[gp.Idx]) +
		gp.Fd0*math.Log(values[gp.Idx+1]))
}

// StrictlyIncreasing reports whether v is strictly increasing.
func StrictlyIncreasing(v []float64) bool {
	for i := 1; i < len(v); i++ {
		if !(v[i] > v[i-1]) {
			return false
		}
	}
	return true
}

// StrictlyDecreasing reports whether v is strictly decreasing.
func StrictlyDecreasing(v []float64) bool {
	for i := 1; i < len(v); i++ {
		if !(v[i] < v[i-1]) {
			return false
		}
	}
	return true
}
