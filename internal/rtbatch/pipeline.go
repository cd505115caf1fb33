// Public domain.

package rtbatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/soniakeys/unit"
	"gonum.org/v1/gonum/mat"

	"github.com/soniakeys/rtpath/internal/rtatm"
	"github.com/soniakeys/rtpath/internal/rtgeom"
	"github.com/soniakeys/rtpath/internal/rtgrid"
	"github.com/soniakeys/rtpath/internal/rtinteg"
	"github.com/soniakeys/rtpath/internal/rtjac"
	"github.com/soniakeys/rtpath/internal/rtpath"
	"github.com/soniakeys/rtpath/internal/rtpropmat"
	"github.com/soniakeys/rtpath/internal/rttrans"
)

// Defocusing methods.
const (
	DefocusNone    = ""
	DefocusGeneral = "general"
	DefocusSat2Sat = "sat2sat"
)

// Geographic positions of a path.
const (
	GeoPosNone   = ""
	GeoPosEnd    = "end"    // where the path ends
	GeoPosLowest = "lowest" // the path point of lowest altitude
)

// Pipeline is the default Evaluator.  For each line-of-sight it traces the
// path, samples the atmosphere along it, evaluates propagation matrices
// and transmissions and integrates the radiative transfer equation.
// Jacobians are mapped to the retrieval grids of Targets.
type Pipeline struct {
	Atm        *rtpath.Atmosphere
	Fields     *rtatm.Fields
	Policy     rtpath.StepPolicy
	Engine     rtpropmat.Engine
	Targets    *rtjac.Set
	Background *rtinteg.Background

	// Particles and PND, particle number density fields per particle
	// type, add particle extinction inside the cloud box.  Both are
	// optional.
	Particles rtpropmat.ParticleProvider
	PND       []rtgrid.Field3

	Unit      string  // output unit, "" for radiance
	RefrIndex float64 // refractive index at the sensor, 0 for 1

	Defocus string     // defocusing method, DefocusNone to skip
	DZa     unit.Angle // zenith angle offset for defocusing

	Aux    []string // auxiliary quantities, see rtinteg.AuxShape
	GeoPos string   // geographic position method, GeoPosNone to skip

	Log *slog.Logger // nil to discard
}

func (pl *Pipeline) log() *slog.Logger {
	if pl.Log == nil {
		return discard
	}
	return pl.Log
}

// Clone returns a copy of pl with its own provider when the provider is a
// rtpropmat.Cloner, and its own particle provider when that is a
// rtpropmat.ParticleCloner.
func (pl *Pipeline) Clone() Evaluator {
	c := *pl
	if pc, ok := pl.Engine.Provider.(rtpropmat.Cloner); ok {
		c.Engine.Provider = pc.Clone()
	}
	if pc, ok := pl.Particles.(rtpropmat.ParticleCloner); ok {
		c.Particles = pc.CloneParticles()
	}
	return &c
}

// EvaluateLOS evaluates the line-of-sight los from sensor position pos.
func (pl *Pipeline) EvaluateLOS(ctx context.Context, pos rtpath.Pos, los rtgeom.LOS, f []float64, inner bool) (*LOSResult, error) {
	p, err := rtpath.Trace(pl.Atm, pos, los, pl.Policy)
	if err != nil {
		return nil, fmt.Errorf("path: %w", err)
	}
	pl.log().Debug("path", "za", los.Za.Deg(), "points", p.NP,
		"background", p.Background)
	st, err := rtatm.Sample(pl.Atm, pl.Fields, p, f, pl.Engine.Opts.VAlong)
	if err != nil {
		return nil, fmt.Errorf("atmospheric state: %w", err)
	}
	eng := pl.Engine
	eng.Opts.InnerParallel = inner
	if eng.Log == nil {
		eng.Log = pl.Log
	}
	pm, err := eng.Evaluate(ctx, p, st, f, pl.Targets)
	if err != nil {
		return nil, fmt.Errorf("propagation matrices: %w", err)
	}
	var pt *rtpropmat.Particles
	if pl.Particles != nil && pl.Atm.Cloudbox != nil {
		pt, err = rtpropmat.ExtractParticles(ctx, pl.Atm, p, st, pl.PND,
			pl.Particles, pm.Stokes)
		if err != nil {
			return nil, err
		}
	}
	tr, err := rttrans.ComputeCloudy(p, pm, pt, pl.Targets)
	if err != nil {
		return nil, fmt.Errorf("transmission: %w", err)
	}
	bg, err := rtinteg.BackgroundRadiance(p.Background, f, pm.Stokes, pl.Background)
	if err != nil {
		return nil, err
	}
	res, err := rtinteg.Integrate(&rtinteg.Input{Path: p, State: st, Prop: pm,
		Trans: tr, Targets: pl.Targets, F: f, Background: bg, Particles: pt,
		Aux: pl.Aux})
	if err != nil {
		return nil, fmt.Errorf("radiative transfer: %w", err)
	}

	r := &LOSResult{I: res.I, NP: p.NP, Aux: res.Aux}
	if nq := pl.Targets.Len(); nq > 0 {
		r.Jacobians = make([]*mat.Dense, nq)
		for iq := range r.Jacobians {
			grid := pl.Targets.Targets[iq].Grid
			if res.DPath[iq] == nil {
				r.Jacobians[iq] = mat.NewDense(len(f)*pm.Stokes, len(grid), nil)
				continue
			}
			j, err := rtinteg.MapToGrid(res.DPath[iq], st.P, grid)
			if err != nil {
				return nil, fmt.Errorf("jacobian target %d: %w", iq, err)
			}
			r.Jacobians[iq] = j
		}
	}
	if pl.Unit != "" {
		n := pl.RefrIndex
		if n == 0 {
			n = 1
		}
		// Jacobians convert with the radiance, before it is converted
		if err := rtinteg.ApplyUnitJacobian(r.Jacobians, r.I, pl.Unit, f, n); err != nil {
			return nil, err
		}
		if err := rtinteg.ApplyUnit(r.I, pl.Unit, f, n); err != nil {
			return nil, err
		}
	}
	switch pl.Defocus {
	case DefocusNone:
	case DefocusGeneral:
		r.Defocus, err = rtinteg.DefocusingGeneral(pl.Atm, pl.Policy, p, pl.DZa)
	case DefocusSat2Sat:
		r.Defocus, err = rtinteg.DefocusingSat2Sat(pl.Atm, pl.Policy, p, pl.DZa)
	default:
		err = fmt.Errorf("unknown defocusing method %q", pl.Defocus)
	}
	if err != nil {
		return nil, err
	}
	switch pl.GeoPos {
	case GeoPosNone:
	case GeoPosEnd:
		pos := p.EndPos
		r.GeoPos = &pos
	case GeoPosLowest:
		low := 0
		for ip, pos := range p.Pos {
			if pos.Z < p.Pos[low].Z {
				low = ip
			}
		}
		pos := p.Pos[low]
		r.GeoPos = &pos
	default:
		return nil, fmt.Errorf("unknown geographic position method %q", pl.GeoPos)
	}
	return r, nil
}
