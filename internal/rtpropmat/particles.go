// Public domain.

package rtpropmat

import (
	"context"
	"fmt"

	"github.com/soniakeys/rtpath/internal/rtatm"
	"github.com/soniakeys/rtpath/internal/rtgeom"
	"github.com/soniakeys/rtpath/internal/rtgrid"
	"github.com/soniakeys/rtpath/internal/rtpath"
	"github.com/soniakeys/rtpath/internal/rtstokes"
)

// ParticleRequest is the state at one cloudy path point.
type ParticleRequest struct {
	Stokes int
	F      []float64
	Dir    rtgeom.LOS // direction of the scattered radiation, the mirrored LOS
	T      float64
	PND    []float64 // number density per particle type, m-3
}

// ParticleProvider computes bulk particle optical properties.
type ParticleProvider interface {
	Particles(ctx context.Context, r *ParticleRequest) (ext []*rtstokes.ExtMat, abs [][]float64, err error)
}

// Particles holds particle extinction at the cloudy points of a path.
type Particles struct {
	// Clear2Cloud maps a path point to its index in Ext, Abs and PND, or
	// -1 outside the cloud box or where all number densities are zero.
	Clear2Cloud []int
	PND         [][]float64          // [cloud point][particle type]
	Ext         [][]*rtstokes.ExtMat // [cloud point][f]
	Abs         [][][]float64        // [cloud point][f][stokes]
}

// ExtractParticles interpolates the particle number density fields pnd
// along p and evaluates particle extinction where the path is in the
// cloud box.  pnd fields are on the atmosphere grids and are zero outside
// the cloud box.
func ExtractParticles(ctx context.Context, atm *rtpath.Atmosphere, p *rtpath.Path, st *rtatm.State, pnd []rtgrid.Field3, prov ParticleProvider, stokes int) (*Particles, error) {
	if atm.Cloudbox == nil {
		return nil, fmt.Errorf("particle extraction: cloud box is off")
	}
	for i := range pnd {
		if err := pnd[i].CheckShape(fmt.Sprint("pnd_field type ", i),
			len(atm.PGrid), atm.NLat(), atm.NLon()); err != nil {
			return nil, err
		}
	}
	pt := &Particles{Clear2Cloud: make([]int, p.NP)}
	for ip := 0; ip < p.NP; ip++ {
		pt.Clear2Cloud[ip] = -1
		if !atm.InsideCloudbox(p, ip) {
			continue
		}
		v := make([]float64, len(pnd))
		some := false
		for i := range pnd {
			v[i] = pnd[i].Interp(p.GpP[ip], p.GpLat[ip], p.GpLon[ip])
			some = some || v[i] > 0
		}
		if !some {
			continue
		}
		pt.Clear2Cloud[ip] = len(pt.PND)
		pt.PND = append(pt.PND, v)
		ext, abs, err := prov.Particles(ctx, &ParticleRequest{
			Stokes: stokes,
			F:      st.F[ip],
			Dir:    rtgeom.MirrorLOS(p.LOS[ip], p.Dim),
			T:      st.T[ip],
			PND:    v,
		})
		if err != nil {
			return nil, fmt.Errorf("particles at path point %d: %w", ip, err)
		}
		if len(ext) != len(st.F[ip]) || len(abs) != len(st.F[ip]) {
			return nil, fmt.Errorf("particles at path point %d: expected %d "+
				"frequencies, got %d and %d", ip, len(st.F[ip]), len(ext), len(abs))
		}
		pt.Ext = append(pt.Ext, ext)
		pt.Abs = append(pt.Abs, abs)
	}
	return pt, nil
}

// ExtAt returns particle extinction at path point ip and frequency iv, or
// nil where there is none.
func (pt *Particles) ExtAt(ip, iv int) *rtstokes.ExtMat {
	if pt == nil {
		return nil
	}
	ic := pt.Clear2Cloud[ip]
	if ic < 0 {
		return nil
	}
	return pt.Ext[ic][iv]
}

// SourceWeight returns abs - ext·e1 at path point ip and frequency iv, or
// nil where there are no particles.  Multiplied by the blackbody radiance it
// is the particle source beyond that of a purely absorbing particle, zero
// when all extinction is absorption.
func (pt *Particles) SourceWeight(ip, iv int) []float64 {
	ext := pt.ExtAt(ip, iv)
	if ext == nil {
		return nil
	}
	w := append([]float64{}, pt.Abs[pt.Clear2Cloud[ip]][iv]...)
	for is := range w {
		w[is] -= ext.At(is, 0)
	}
	return w
}

// ParticleCloner is implemented by particle providers with mutable state.
type ParticleCloner interface {
	CloneParticles() ParticleProvider
}
