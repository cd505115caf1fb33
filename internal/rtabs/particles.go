// Public domain.

package rtabs

import (
	"context"
	"fmt"

	"github.com/soniakeys/rtpath/internal/rtpropmat"
	"github.com/soniakeys/rtpath/internal/rtstokes"
)

// GrayParticles have frequency independent cross sections per particle
// type.
type GrayParticles struct {
	Ext, Abs []float64 // m²
}

// Particles implements rtpropmat.ParticleProvider.
func (g *GrayParticles) Particles(ctx context.Context, r *rtpropmat.ParticleRequest) ([]*rtstokes.ExtMat, [][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if len(r.PND) != len(g.Ext) || len(g.Abs) != len(g.Ext) {
		return nil, nil, fmt.Errorf("particle types: expected %d, got %d",
			len(g.Ext), len(r.PND))
	}
	var ke, ka float64
	for i, n := range r.PND {
		ke += n * g.Ext[i]
		ka += n * g.Abs[i]
	}
	ext := make([]*rtstokes.ExtMat, len(r.F))
	abs := make([][]float64, len(r.F))
	for iv := range r.F {
		ext[iv] = rtstokes.Diag(r.Stokes, ke)
		abs[iv] = make([]float64, r.Stokes)
		abs[iv][0] = ka
	}
	return ext, abs, nil
}
