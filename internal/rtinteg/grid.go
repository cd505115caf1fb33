// Public domain.

package rtinteg

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/soniakeys/rtpath/internal/rtgrid"
)

// MapToGrid maps path point Jacobians d, [point][f][stokes], to the
// retrieval pressure grid of a target.  p is the pressure at each path
// point and grid is strictly decreasing.  Each point is shared between its
// two neighbouring grid points with weights linear in log pressure.  Points
// beyond the grid ends go entirely to the end point.
//
// The result has a row iv·stokes+is per frequency iv and Stokes element is
// and a column per grid point.
func MapToGrid(d [][][]float64, p, grid []float64) (*mat.Dense, error) {
	if len(d) != len(p) {
		return nil, fmt.Errorf("jacobian path points: expected %d, got %d", len(p), len(d))
	}
	if len(grid) == 0 || !rtgrid.StrictlyDecreasing(grid) {
		return nil, fmt.Errorf("retrieval grid: expected strictly decreasing pressures")
	}
	if len(d) == 0 || len(d[0]) == 0 {
		return nil, fmt.Errorf("jacobian: no path points or frequencies")
	}
	nf, ns := len(d[0]), len(d[0][0])
	lg := make([]float64, len(grid))
	for i, g := range grid {
		lg[i] = math.Log(g)
	}
	m := mat.NewDense(nf*ns, len(grid), nil)
	for ip, dp := range d {
		gp := rtgrid.Find(lg, math.Log(p[ip]))
		w0, w1 := gp.Weights()
		switch {
		case gp.Fd0 < 0:
			w0, w1 = 1, 0
		case gp.Fd0 > 1:
			w0, w1 = 0, 1
		}
		for iv, v := range dp {
			for is, x := range v {
				r := iv*ns + is
				if w0 != 0 {
					m.Set(r, gp.Idx, m.At(r, gp.Idx)+w0*x)
				}
				if w1 != 0 {
					m.Set(r, gp.Idx+1, m.At(r, gp.Idx+1)+w1*x)
				}
			}
		}
	}
	return m, nil
}
