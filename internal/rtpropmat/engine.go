// Public domain.

package rtpropmat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/soniakeys/rtpath/internal/rtatm"
	"github.com/soniakeys/rtpath/internal/rtjac"
	"github.com/soniakeys/rtpath/internal/rtmetrics"
	"github.com/soniakeys/rtpath/internal/rtpath"
	"github.com/soniakeys/rtpath/internal/rtstokes"
)

// Options control an Engine.
type Options struct {
	Stokes     int   // Stokes dimension, 1 to 4
	PerSpecies []int // species to keep individual extinction for
	VAlong     float64

	// InnerParallel allows evaluating path points in parallel.  Callers
	// that already run paths in parallel leave it false.
	InnerParallel bool
	// Workers is the number of worker goroutines, 0 for GOMAXPROCS.
	Workers int
	// MinPointsParallel is the fewest path points evaluated in parallel,
	// 0 for the number of workers.
	MinPointsParallel int
}

// Engine evaluates propagation matrices along paths.
type Engine struct {
	Provider Provider
	Opts     Options
	Log      *slog.Logger // nil to discard
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func (e *Engine) log() *slog.Logger {
	if e.Log == nil {
		return discard
	}
	return e.Log
}

// workers returns the number of goroutines to evaluate np points with.
func (e *Engine) workers(np int) int {
	if !e.Opts.InnerParallel {
		return 1
	}
	n := e.Opts.Workers
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	least := e.Opts.MinPointsParallel
	if least <= 0 {
		least = n
	}
	if np < least {
		return 1
	}
	if n > np {
		n = np
	}
	return n
}

// Evaluate computes the propagation matrices at each point of p, and
// derivatives for targets.  f is the frequency grid before Doppler shift.
//
// The first provider error stops evaluation of further points and is
// returned once points already started have finished.
func (e *Engine) Evaluate(ctx context.Context, p *rtpath.Path, st *rtatm.State, f []float64, targets *rtjac.Set) (*Set, error) {
	stokes := e.Opts.Stokes
	if stokes < 1 || stokes > 4 {
		return nil, fmt.Errorf("stokes_dim: expected 1 to 4, got %d", stokes)
	}
	if st.NP != p.NP {
		return nil, fmt.Errorf("atmospheric state points: expected %d, got %d", p.NP, st.NP)
	}
	ns := st.NSpecies()
	for _, is := range e.Opts.PerSpecies {
		if is < 0 || is >= ns {
			return nil, fmt.Errorf("per species index %d: expected 0 to %d", is, ns-1)
		}
	}
	if err := targets.Check(ns); err != nil {
		return nil, err
	}
	ev := &evaluation{Engine: e, path: p, st: st, f: f, targets: targets,
		set: newSet(p.NP, len(f), stokes, targets.Len(), len(e.Opts.PerSpecies))}
	if err := ev.prepare(); err != nil {
		return nil, err
	}
	w := e.workers(p.NP)
	e.log().Debug("propagation matrices", "points", p.NP,
		"frequencies", len(f), "targets", targets.Len(), "workers", w)
	if err := e.run(ctx, p.NP, w, ev.point); err != nil {
		return nil, err
	}
	return ev.set, nil
}

// run calls do for each point index, on w goroutines when w > 1.  Each
// goroutine has its own provider clone when the provider is a Cloner.
func (e *Engine) run(ctx context.Context, np, w int, do func(context.Context, Provider, int) error) error {
	if w <= 1 {
		for ip := 0; ip < np; ip++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := do(ctx, e.Provider, ip); err != nil {
				return fmt.Errorf("path point %d: %w", ip, err)
			}
		}
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	ipCh := make(chan int)
	for i := 0; i < w; i++ {
		prov := e.Provider
		if c, ok := prov.(Cloner); ok {
			prov = c.Clone()
		}
		g.Go(func() error {
			for ip := range ipCh {
				// drain without starting new points after a failure
				if gctx.Err() != nil {
					continue
				}
				if err := do(gctx, prov, ip); err != nil {
					return fmt.Errorf("path point %d: %w", ip, err)
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(ipCh)
		for ip := 0; ip < np; ip++ {
			select {
			case ipCh <- ip:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// evaluation is the state of one Evaluate call.  Workers write disjoint
// point indexes of set.
type evaluation struct {
	*Engine
	path    *rtpath.Path
	st      *rtatm.State
	f       []float64
	targets *rtjac.Set
	set     *Set

	windF [3][][]float64 // frequencies with perturbed u, v, w wind
	dfdv  [4][][]float64 // frequency partials for along-path, u, v, w
}

// prepare allocates derivative storage and precomputes frequency grids.
func (ev *evaluation) prepare() error {
	np := ev.path.NP
	for iq := range ev.set.DExt {
		t := &ev.targets.Targets[iq]
		if t.Method != rtjac.Skip {
			ev.set.DExt[iq] = make([][]*mat.Dense, np)
			ev.set.DSource[iq] = make([][][]float64, np)
		}
		if !t.Kind.Wind() {
			continue
		}
		c := int(t.Kind - rtjac.WindAlong)
		switch t.Method {
		case rtjac.Perturbation:
			if ev.windF[c-1] != nil {
				continue
			}
			wind := append([]rtatm.Vec3{}, ev.st.Wind...)
			for i := range wind {
				wind[i][c-1] += ev.targets.Perturb.Wind
			}
			ev.windF[c-1] = rtatm.DopplerGrids(ev.f, ev.path, wind, ev.Opts.VAlong)
		case rtjac.FromProvider:
			if ev.dfdv[c] != nil {
				continue
			}
			d, err := rtatm.FrequencyPartial(ev.f, ev.path, c)
			if err != nil {
				return err
			}
			ev.dfdv[c] = d
		}
	}
	return nil
}

func (ev *evaluation) request(ip int) *Request {
	st := ev.st
	r := &Request{
		Stokes: ev.Opts.Stokes,
		F:      st.F[ip],
		Mag:    st.Mag[ip],
		LOS:    ev.path.LOS[ip],
		P:      st.P[ip],
		T:      st.T[ip],
		VMR:    st.VMR[ip],
	}
	if st.NLTE != nil {
		r.NLTE = st.NLTE[ip]
	}
	return r
}

func (ev *evaluation) call(ctx context.Context, prov Provider, r *Request, kind string) (*Response, error) {
	rtmetrics.ProviderCalls.WithLabelValues(kind).Inc()
	resp, err := prov.Propmat(ctx, r)
	if err != nil {
		return nil, err
	}
	if err := checkResponse(resp, ev.st.NSpecies(), len(ev.f), ev.Opts.Stokes); err != nil {
		return nil, fmt.Errorf("absorption provider: %w", err)
	}
	return resp, nil
}

// point evaluates path point ip.
func (ev *evaluation) point(ctx context.Context, prov Provider, ip int) error {
	req := ev.request(ip)
	req.Targets = ev.targets
	r, err := ev.call(ctx, prov, req, "base")
	if err != nil {
		return err
	}
	s := ev.set
	nf := len(ev.f)
	s.Ext[ip] = make([]*rtstokes.ExtMat, nf)
	for iv := range s.Ext[ip] {
		s.Ext[ip][iv] = sumExt(r, iv)
	}
	for k, is := range ev.Opts.PerSpecies {
		s.PerSpecies[k][ip] = r.Ext[is]
	}
	s.LTE[ip] = r.NLTESource == nil
	if !s.LTE[ip] {
		s.NLTESource[ip] = make([][]float64, nf)
		for iv := range s.NLTESource[ip] {
			s.NLTESource[ip][iv] = sumSource(r, iv)
		}
	}
	for iq := range s.DExt {
		if err := ev.derivative(ctx, prov, r, ip, iq); err != nil {
			return fmt.Errorf("jacobian target %d, %s: %w", iq, &ev.targets.Targets[iq], err)
		}
	}
	return nil
}

// derivative computes the derivatives for target iq at point ip, given
// the base response r.
func (ev *evaluation) derivative(ctx context.Context, prov Provider, r *Response, ip, iq int) error {
	t := &ev.targets.Targets[iq]
	s := ev.set
	nf := len(ev.f)
	lte := s.LTE[ip]
	dext := make([]*mat.Dense, nf)
	var dsrc [][]float64
	if !lte {
		dsrc = make([][]float64, nf)
		for iv := range dsrc {
			dsrc[iv] = make([]float64, s.Stokes)
		}
	}
	switch t.Method {
	case rtjac.Skip:
		return nil

	case rtjac.Flux:
		for iv := range dext {
			dext[iv] = mat.DenseCopyOf(s.Ext[ip][iv].Dense())
			dext[iv].Scale(-1, dext[iv])
		}

	case rtjac.Perturbation:
		req := ev.request(ip)
		var d float64
		switch {
		case t.Kind == rtjac.Temperature:
			d = ev.targets.Perturb.Temperature
			req.T += d
		case t.Kind.Wind():
			d = ev.targets.Perturb.Wind
			req.F = ev.windF[t.Kind-rtjac.WindU][ip]
		default:
			d = ev.targets.Perturb.Magnetic
			req.Mag[t.Kind-rtjac.MagU] += d
		}
		r2, err := ev.call(ctx, prov, req, "perturbation")
		if err != nil {
			return err
		}
		for iv := range dext {
			var m mat.Dense
			m.Sub(sumExt(r2, iv).Dense(), s.Ext[ip][iv].Dense())
			m.Scale(1/d, &m)
			dext[iv] = &m
		}
		if !lte && r2.NLTESource != nil {
			for iv := range dsrc {
				floats.SubTo(dsrc[iv], sumSource(r2, iv), s.NLTESource[ip][iv])
				floats.Scale(1/d, dsrc[iv])
			}
		}

	case rtjac.Analytical:
		if !lte {
			return fmt.Errorf("analytical species derivatives are not available " +
				"for non-LTE points")
		}
		st := ev.st
		scf, err := rtjac.VMRUnitScale(t.Unit, st.VMR[ip][t.Species], st.P[ip], st.T[ip])
		if err != nil {
			return err
		}
		for iv := range dext {
			dext[iv] = mat.DenseCopyOf(r.Ext[t.Species][iv].Dense())
			dext[iv].Scale(scf, dext[iv])
		}

	case rtjac.FromProvider:
		if len(r.DExt) <= iq || len(r.DExt[iq]) != nf {
			got := 0
			if len(r.DExt) > iq {
				got = len(r.DExt[iq])
			}
			return fmt.Errorf("provider derivative frequencies: expected %d, got %d", nf, got)
		}
		scale := func(iv int) float64 { return 1 }
		switch {
		case t.Kind == rtjac.Species:
			st := ev.st
			scf, err := rtjac.DXDVMRScale(t.Unit, st.VMR[ip][t.Species], st.P[ip], st.T[ip])
			if err != nil {
				return err
			}
			scale = func(int) float64 { return scf }
		case t.Kind.Wind():
			dfdv := ev.dfdv[t.Kind-rtjac.WindAlong][ip]
			scale = func(iv int) float64 { return dfdv[iv] }
		}
		for iv := range dext {
			d := r.DExt[iq][iv]
			if d == nil {
				return fmt.Errorf("provider derivative missing at frequency %d", iv)
			}
			dext[iv] = mat.DenseCopyOf(d)
			dext[iv].Scale(scale(iv), dext[iv])
		}
		if !lte && len(r.DSource) > iq && r.DSource[iq] != nil {
			for iv := range dsrc {
				floats.ScaleTo(dsrc[iv], scale(iv), r.DSource[iq][iv])
			}
		}
	}
	s.DExt[iq][ip] = dext
	s.DSource[iq][ip] = dsrc
	return nil
}
