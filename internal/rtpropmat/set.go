// Public domain.

// Package rtpropmat evaluates propagation matrices along a path by calling
// an absorption provider at each path point, and derives their partial
// derivatives for radiance Jacobians.
package rtpropmat

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/soniakeys/rtpath/internal/rtatm"
	"github.com/soniakeys/rtpath/internal/rtgeom"
	"github.com/soniakeys/rtpath/internal/rtjac"
	"github.com/soniakeys/rtpath/internal/rtstokes"
)

// Request is the atmospheric state at one point, passed to a Provider.
type Request struct {
	Stokes int
	F      []float64 // Hz, Doppler shifted
	Mag    rtatm.Vec3
	LOS    rtgeom.LOS
	P, T   float64
	NLTE   []float64 // nil for LTE
	VMR    []float64
	// Targets lists retrieval quantities.  A provider computes derivatives
	// for the targets with Method FromProvider and leaves the others nil.
	// Targets is nil for finite difference re-evaluations.
	Targets *rtjac.Set
}

// Response is the result of a Provider call.
type Response struct {
	// Ext is extinction per species and frequency, [species][f].  With no
	// species there is a single entry for the total.
	Ext [][]*rtstokes.ExtMat
	// NLTESource is the non-LTE source per species, [species][f][stokes].
	// It is nil when the point is in LTE.
	NLTESource [][][]float64
	// DExt and DSource are derivatives per target, [target][f] and
	// [target][f][stokes].  Entries are nil for targets not differentiated
	// by the provider.  DSource may be nil.
	DExt    [][]*mat.Dense
	DSource [][][]float64
}

// Provider computes propagation matrices.  A Provider must be safe for
// concurrent use unless it also implements Cloner, in which case each
// worker goroutine calls its own clone.
type Provider interface {
	Propmat(ctx context.Context, r *Request) (*Response, error)
}

// Cloner is implemented by providers with mutable state.
type Cloner interface {
	Clone() Provider
}

// Set holds propagation matrices along a path.
type Set struct {
	NP, NF, Stokes int

	Ext        [][]*rtstokes.ExtMat // [point][f]
	NLTESource [][][]float64        // [point][f][stokes], nil at LTE points
	LTE        []bool               // [point]

	// PerSpecies holds extinction for requested species,
	// [requested][point][f].
	PerSpecies [][][]*rtstokes.ExtMat

	// DExt and DSource are derivatives per target, [target][point][f] and
	// [target][point][f][stokes].  DExt[iq] is nil for skipped targets.
	// DSource[iq][ip] is nil at LTE points.
	DExt    [][][]*mat.Dense
	DSource [][][][]float64
}

// AllLTE reports whether no point has a non-LTE source.
func (s *Set) AllLTE() bool {
	for _, l := range s.LTE {
		if !l {
			return false
		}
	}
	return true
}

func newSet(np, nf, stokes, nq, nper int) *Set {
	s := &Set{NP: np, NF: nf, Stokes: stokes,
		Ext:        make([][]*rtstokes.ExtMat, np),
		NLTESource: make([][][]float64, np),
		LTE:        make([]bool, np),
		PerSpecies: make([][][]*rtstokes.ExtMat, nper),
	}
	for i := range s.PerSpecies {
		s.PerSpecies[i] = make([][]*rtstokes.ExtMat, np)
	}
	if nq > 0 {
		s.DExt = make([][][]*mat.Dense, nq)
		s.DSource = make([][][][]float64, nq)
	}
	return s
}

// checkResponse validates the shapes of r.
func checkResponse(r *Response, nSpecies, nf, stokes int) error {
	ns := nSpecies
	if ns == 0 {
		ns = 1
	}
	if len(r.Ext) != ns {
		return fmt.Errorf("extinction species: expected %d, got %d", ns, len(r.Ext))
	}
	for is, e := range r.Ext {
		if len(e) != nf {
			return fmt.Errorf("extinction species %d frequencies: expected %d, got %d",
				is, nf, len(e))
		}
		for _, k := range e {
			if k.Stokes() != stokes {
				return fmt.Errorf("extinction Stokes dimension: expected %d, got %d",
					stokes, k.Stokes())
			}
		}
	}
	if r.NLTESource == nil {
		return nil
	}
	if len(r.NLTESource) != ns {
		return fmt.Errorf("NLTE source species: expected %d, got %d",
			ns, len(r.NLTESource))
	}
	for is, s := range r.NLTESource {
		if len(s) != nf {
			return fmt.Errorf("NLTE source species %d frequencies: expected %d, got %d",
				is, nf, len(s))
		}
		for _, v := range s {
			if len(v) != stokes {
				return fmt.Errorf("NLTE source Stokes dimension: expected %d, got %d",
					stokes, len(v))
			}
		}
	}
	return nil
}

// sumExt sums extinction over species for frequency iv.
func sumExt(r *Response, iv int) *rtstokes.ExtMat {
	t := r.Ext[0][iv].Clone()
	for is := 1; is < len(r.Ext); is++ {
		t.Add(r.Ext[is][iv])
	}
	return t
}

// sumSource sums the NLTE source over species for frequency iv.
func sumSource(r *Response, iv int) []float64 {
	t := append([]float64{}, r.NLTESource[0][iv]...)
	for is := 1; is < len(r.NLTESource); is++ {
		floats.Add(t, r.NLTESource[is][iv])
	}
	return t
}
