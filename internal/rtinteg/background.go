// Public domain.

package rtinteg

import (
	"errors"
	"fmt"

	"github.com/soniakeys/rtpath/internal/rtpath"
	"github.com/soniakeys/rtpath/internal/rtphys"
)

// Background describes the radiation sources at path ends other than
// space.
type Background struct {
	SurfaceT          float64 // K
	SurfaceEmissivity float64 // 0 to 1
	// Cloudbox is the radiance leaving the cloud box toward the sensor,
	// [f][stokes].  It is supplied by a scattering solver.
	Cloudbox [][]float64
}

// ErrNoCloudboxRadiance is returned for a path ending at the cloud box
// when no cloud box radiance is supplied.
var ErrNoCloudboxRadiance = errors.New("no cloud box radiance")

// BackgroundRadiance returns the radiance entering the far end of a path
// with background bg, [f][stokes].  Space gives the cosmic background,
// the surface a blackbody at SurfaceT scaled by the emissivity, and the
// cloud box its supplied radiance.  Only the first Stokes element of the
// space and surface radiances is non-zero.
func BackgroundRadiance(bg rtpath.Background, f []float64, stokes int, b *Background) ([][]float64, error) {
	r := make([][]float64, len(f))
	for iv := range r {
		r[iv] = make([]float64, stokes)
	}
	switch bg {
	case rtpath.Space:
		for iv, fv := range f {
			r[iv][0] = rtphys.B(fv, rtphys.CosmicBG)
		}
	case rtpath.Surface:
		if b == nil || b.SurfaceT <= 0 {
			return nil, fmt.Errorf("surface background: surface temperature not set")
		}
		if e := b.SurfaceEmissivity; e < 0 || e > 1 {
			return nil, fmt.Errorf("surface emissivity: expected 0 to 1, got %g", e)
		}
		for iv, fv := range f {
			r[iv][0] = b.SurfaceEmissivity * rtphys.B(fv, b.SurfaceT)
		}
	case rtpath.CloudboxSurface, rtpath.CloudboxInterior:
		if b == nil || b.Cloudbox == nil {
			return nil, fmt.Errorf("%s background: %w", bg, ErrNoCloudboxRadiance)
		}
		if err := CheckRadiance("cloud box radiance", b.Cloudbox, len(f), stokes); err != nil {
			return nil, err
		}
		for iv := range r {
			copy(r[iv], b.Cloudbox[iv])
		}
	default:
		return nil, fmt.Errorf("background radiance: %s background", bg)
	}
	return r, nil
}
