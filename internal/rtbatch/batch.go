// Public domain.

// Package rtbatch evaluates the lines of sight of a measurement block,
// in parallel, and collects spectra and Jacobians into block matrices.
package rtbatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/soniakeys/rtpath/internal/rtgeom"
	"github.com/soniakeys/rtpath/internal/rtinteg"
	"github.com/soniakeys/rtpath/internal/rtmetrics"
	"github.com/soniakeys/rtpath/internal/rtpath"
)

// Block is one measurement block, a sensor position with a set of lines of
// sight around a sensor line-of-sight.
type Block struct {
	Dim  int // atmospheric dimensionality
	Pos  rtpath.Pos
	LOS  rtgeom.LOS
	DLOS []rtgeom.LOS // offsets from LOS, nil for LOS alone
	F    []float64    // Hz
}

// LOSResult is the evaluation of one line-of-sight.
type LOSResult struct {
	I [][]float64 // [f][stokes]
	// Jacobians holds, per target, a row iv·stokes+is per frequency and
	// Stokes element and a column per retrieval grid point.
	Jacobians []*mat.Dense
	NP        int     // path points
	Defocus   float64 // defocusing loss factor, 0 when not computed
	// Aux holds auxiliary quantities, [aux][f or 1][stokes or 1].
	Aux [][][]float64
	// GeoPos is the geographic position of the path, nil when not
	// computed.
	GeoPos *rtpath.Pos
}

// Evaluator evaluates single lines of sight.  inner reports whether the
// evaluator may use parallelism of its own.
type Evaluator interface {
	EvaluateLOS(ctx context.Context, pos rtpath.Pos, los rtgeom.LOS, f []float64, inner bool) (*LOSResult, error)
}

// Cloner is implemented by evaluators with mutable state.  Each worker
// goroutine of a Run then uses its own clone.
type Cloner interface {
	Clone() Evaluator
}

// Output holds the results of a block.
type Output struct {
	NLOS, NF, Stokes int
	// Iyb is the block spectrum, index ilos·NF·Stokes + iv·Stokes + is.
	Iyb []float64
	// Jacobians has the rows of Iyb and a column per retrieval grid
	// point, per target.
	Jacobians []*mat.Dense
	// Defocus is the defocusing loss factor per line-of-sight, nil when
	// not computed.
	Defocus []float64
	// Aux holds the auxiliary quantities with the layout of Iyb.
	// Quantities constant over frequency or Stokes are repeated.
	Aux [][]float64
	// GeoPos is the geographic position per line-of-sight, nil when not
	// computed.
	GeoPos []rtpath.Pos
}

// Row returns the Iyb index of line-of-sight ilos, frequency iv and
// Stokes element is.
func (o *Output) Row(ilos, iv, is int) int {
	return (ilos*o.NF+iv)*o.Stokes + is
}

// Orchestrator runs blocks.
type Orchestrator struct {
	Workers int          // 0 for GOMAXPROCS
	Log     *slog.Logger // nil to discard
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func (o *Orchestrator) log() *slog.Logger {
	if o.Log == nil {
		return discard
	}
	return o.Log
}

func (o *Orchestrator) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Outer reports whether a block of nlos lines of sight and nf frequencies
// is parallelized over lines of sight.  Otherwise lines of sight are
// evaluated in turn and each may use parallelism within its path.
func (o *Orchestrator) Outer(nlos, nf int) bool {
	return nlos >= o.workers() || 10*nlos >= nf
}

// LOSAt returns line-of-sight i of b.  In 3D the azimuth offset is an
// angle perpendicular to the offset line-of-sight, see rtgeom.MapDAa.
func (b *Block) LOSAt(i int) rtgeom.LOS {
	if len(b.DLOS) == 0 {
		return rtgeom.AdjustLOS(b.LOS, b.Dim)
	}
	d := b.DLOS[i]
	if b.Dim == 3 {
		return rtgeom.MapDAa(b.LOS.Za+d.Za, b.LOS.Aa, d.Aa)
	}
	return rtgeom.AdjustLOS(rtgeom.LOS{Za: b.LOS.Za + d.Za, Aa: b.LOS.Aa + d.Aa}, b.Dim)
}

// NLOS returns the number of lines of sight of b.
func (b *Block) NLOS() int {
	return max(len(b.DLOS), 1)
}

// Run evaluates all lines of sight of b with ev.  On any failure no output
// is returned, only the first error.  Lines of sight already started
// finish but no new ones start.
func (o *Orchestrator) Run(ctx context.Context, ev Evaluator, b *Block) (*Output, error) {
	nlos, nf := b.NLOS(), len(b.F)
	if nf == 0 {
		return nil, errors.New("batch: empty frequency grid")
	}
	outer := o.Outer(nlos, nf)
	w := 1
	if outer {
		w = min(o.workers(), nlos)
	}
	o.log().Debug("batch", "nlos", nlos, "nf", nf, "outer", outer, "workers", w)

	res := make([]*LOSResult, nlos)
	do := func(ctx context.Context, ev Evaluator, i int) error {
		start := time.Now()
		r, err := ev.EvaluateLOS(ctx, b.Pos, b.LOSAt(i), b.F, !outer)
		rtmetrics.ObserveLOS(start, err)
		if err != nil {
			return fmt.Errorf("batch: line of sight %d: %w", i, err)
		}
		rtmetrics.PathPoints.Add(float64(r.NP))
		res[i] = r
		return nil
	}
	if w == 1 {
		for i := 0; i < nlos; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := do(ctx, ev, i); err != nil {
				return nil, err
			}
		}
	} else if err := o.parallel(ctx, ev, nlos, w, do); err != nil {
		return nil, err
	}
	return collect(res, nf)
}

// parallel calls do for each line-of-sight index on w goroutines.
func (o *Orchestrator) parallel(ctx context.Context, ev Evaluator, nlos, w int, do func(context.Context, Evaluator, int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	ch := make(chan int)
	for k := 0; k < w; k++ {
		wev := ev
		if c, ok := ev.(Cloner); ok {
			wev = c.Clone()
		}
		g.Go(func() error {
			for i := range ch {
				if gctx.Err() != nil {
					continue
				}
				if err := do(gctx, wev, i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(ch)
		for i := 0; i < nlos; i++ {
			select {
			case ch <- i:
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

// collect copies line-of-sight results into block matrices.
func collect(res []*LOSResult, nf int) (*Output, error) {
	r0 := res[0]
	if len(r0.I) != nf {
		return nil, fmt.Errorf("batch: line of sight 0: spectrum frequencies: "+
			"expected %d, got %d", nf, len(r0.I))
	}
	out := &Output{NLOS: len(res), NF: nf, Stokes: len(r0.I[0])}
	nrow := nf * out.Stokes
	out.Iyb = make([]float64, len(res)*nrow)
	out.Jacobians = make([]*mat.Dense, len(r0.Jacobians))
	for iq, j := range r0.Jacobians {
		_, c := j.Dims()
		out.Jacobians[iq] = mat.NewDense(len(res)*nrow, c, nil)
	}
	if r0.Defocus != 0 {
		out.Defocus = make([]float64, len(res))
	}
	if r0.GeoPos != nil {
		out.GeoPos = make([]rtpath.Pos, len(res))
	}
	if len(r0.Aux) > 0 {
		out.Aux = make([][]float64, len(r0.Aux))
		for ia := range out.Aux {
			out.Aux[ia] = make([]float64, len(out.Iyb))
		}
	}
	for ilos, r := range res {
		if len(r.I) != nf || len(r.Jacobians) != len(out.Jacobians) ||
			len(r.Aux) != len(out.Aux) || (r.GeoPos == nil) != (out.GeoPos == nil) {
			return nil, fmt.Errorf("batch: line of sight %d: result shape differs "+
				"from line of sight 0", ilos)
		}
		for ia, a := range r.Aux {
			if err := rtinteg.CheckAux(fmt.Sprint(ia), a, nf, out.Stokes); err != nil {
				return nil, fmt.Errorf("batch: line of sight %d: %w", ilos, err)
			}
			for iv := 0; iv < nf; iv++ {
				v := a[min(iv, len(a)-1)]
				for is := 0; is < out.Stokes; is++ {
					out.Aux[ia][out.Row(ilos, iv, is)] = v[min(is, len(v)-1)]
				}
			}
		}
		if out.GeoPos != nil {
			out.GeoPos[ilos] = *r.GeoPos
		}
		for iv, v := range r.I {
			copy(out.Iyb[out.Row(ilos, iv, 0):], v[:out.Stokes])
		}
		for iq, j := range r.Jacobians {
			dst := out.Jacobians[iq].Slice(ilos*nrow, (ilos+1)*nrow, 0,
				out.Jacobians[iq].RawMatrix().Cols).(*mat.Dense)
			dst.Copy(j)
		}
		if out.Defocus != nil {
			out.Defocus[ilos] = r.Defocus
		}
	}
	return out, nil
}
