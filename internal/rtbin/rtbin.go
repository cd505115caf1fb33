// Public domain.

// Package rtbin defines the binary result file written by rtpath and read
// by rtcmp.
package rtbin

import (
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/soniakeys/rtpath/internal/rtbatch"
	"github.com/soniakeys/rtpath/internal/rtjac"
)

// Fn is the default result file name.
const Fn = "rtpath.gob"

// Version is written first in a result file and checked on reading.
const Version = 2

// Result is the content of a result file.  Angles are in degrees.
type Result struct {
	Created          time.Time
	Scenario         string // scenario file name
	Unit             string
	NLOS, NF, Stokes int
	F                []float64
	Za, Aa           []float64 // per line-of-sight
	Iyb              []float64
	Defocus          []float64
	Targets          []string // target descriptions
	Jacobians        []Matrix
	Aux              []Aux
	// GeoPos is altitude, latitude and longitude per line-of-sight, nil
	// when not computed.
	GeoPos [][3]float64
}

// Aux is an auxiliary quantity with the layout of Iyb.
type Aux struct {
	Name string
	Data []float64
}

// Matrix is a gob encodable dense matrix.
type Matrix struct {
	Rows, Cols int
	Data       []float64
}

// FromOutput returns the Result for out, the output of block b with
// Jacobian targets ts and auxiliary quantities aux.
func FromOutput(out *rtbatch.Output, b *rtbatch.Block, ts *rtjac.Set, aux []string) *Result {
	r := &Result{
		NLOS:    out.NLOS,
		NF:      out.NF,
		Stokes:  out.Stokes,
		F:       append([]float64{}, b.F...),
		Iyb:     out.Iyb,
		Defocus: out.Defocus,
	}
	for i := 0; i < out.NLOS; i++ {
		los := b.LOSAt(i)
		r.Za = append(r.Za, los.Za.Deg())
		r.Aa = append(r.Aa, los.Aa.Deg())
	}
	for i := 0; i < ts.Len(); i++ {
		r.Targets = append(r.Targets, ts.Targets[i].String())
	}
	for _, j := range out.Jacobians {
		rm := j.RawMatrix()
		m := Matrix{Rows: rm.Rows, Cols: rm.Cols, Data: make([]float64, 0, rm.Rows*rm.Cols)}
		for i := 0; i < rm.Rows; i++ {
			m.Data = append(m.Data, j.RawRowView(i)...)
		}
		r.Jacobians = append(r.Jacobians, m)
	}
	for ia, a := range out.Aux {
		r.Aux = append(r.Aux, Aux{Name: aux[ia], Data: a})
	}
	for _, pos := range out.GeoPos {
		r.GeoPos = append(r.GeoPos, [3]float64{pos.Z, pos.Lat.Deg(), pos.Lon.Deg()})
	}
	return r
}

// Dense returns m as a *mat.Dense.
func (m *Matrix) Dense() *mat.Dense {
	if m.Rows == 0 || m.Cols == 0 {
		return &mat.Dense{}
	}
	return mat.NewDense(m.Rows, m.Cols, m.Data)
}

// Check validates the shape of r.
func (r *Result) Check() error {
	n := r.NLOS * r.NF * r.Stokes
	switch {
	case len(r.F) != r.NF:
		return fmt.Errorf("frequencies: expected %d, got %d", r.NF, len(r.F))
	case len(r.Za) != r.NLOS || len(r.Aa) != r.NLOS:
		return fmt.Errorf("lines of sight: expected %d, got %d and %d",
			r.NLOS, len(r.Za), len(r.Aa))
	case len(r.Iyb) != n:
		return fmt.Errorf("spectrum: expected %d values, got %d", n, len(r.Iyb))
	case r.Defocus != nil && len(r.Defocus) != r.NLOS:
		return fmt.Errorf("defocusing: expected %d values, got %d", r.NLOS, len(r.Defocus))
	case len(r.Targets) != len(r.Jacobians):
		return fmt.Errorf("jacobians: expected %d, got %d", len(r.Targets), len(r.Jacobians))
	case r.GeoPos != nil && len(r.GeoPos) != r.NLOS:
		return fmt.Errorf("geographic positions: expected %d, got %d", r.NLOS, len(r.GeoPos))
	}
	for _, a := range r.Aux {
		if len(a.Data) != n {
			return fmt.Errorf("auxiliary variable %q: expected %d values, got %d",
				a.Name, n, len(a.Data))
		}
	}
	for i, j := range r.Jacobians {
		if j.Rows != n || len(j.Data) != j.Rows*j.Cols {
			return fmt.Errorf("jacobian %d: expected %d rows, got %dx%d with %d values",
				i, n, j.Rows, j.Cols, len(j.Data))
		}
	}
	return nil
}

// WriteFile writes r to file fn.
func WriteFile(fn string, r *Result) (err error) {
	if err = r.Check(); err != nil {
		return err
	}
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		if cErr := f.Close(); err == nil {
			err = cErr
		}
	}()
	enc := gob.NewEncoder(f)
	if err = enc.Encode(Version); err != nil {
		return err
	}
	return enc.Encode(r)
}

// ErrVersion is returned for a file written with a different Version.
var ErrVersion = errors.New("result file version")

// ReadFile reads a result file written by WriteFile.
func ReadFile(fn string) (*Result, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec := gob.NewDecoder(f)
	var v int
	if err = dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	if v != Version {
		return nil, fmt.Errorf("%s: %w %d, expected %d", fn, ErrVersion, v, Version)
	}
	var r Result
	if err = dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	if err = r.Check(); err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	return &r, nil
}

// Diff holds the largest differences between two results.
type Diff struct {
	Spectrum  float64   // largest absolute spectrum difference
	Rel       float64   // largest spectrum difference relative to a
	Jacobians []float64 // largest absolute difference per jacobian
}

// Compare returns the differences of b from a.  The results must have
// the same shape.
func Compare(a, b *Result) (*Diff, error) {
	if a.NLOS != b.NLOS || a.NF != b.NF || a.Stokes != b.Stokes {
		return nil, fmt.Errorf("result shapes differ: %dx%dx%d and %dx%dx%d",
			a.NLOS, a.NF, a.Stokes, b.NLOS, b.NF, b.Stokes)
	}
	if len(a.Jacobians) != len(b.Jacobians) {
		return nil, fmt.Errorf("jacobian counts differ: %d and %d",
			len(a.Jacobians), len(b.Jacobians))
	}
	d := &Diff{Jacobians: make([]float64, len(a.Jacobians))}
	for i, v := range a.Iyb {
		e := math.Abs(b.Iyb[i] - v)
		d.Spectrum = max(d.Spectrum, e)
		if v != 0 {
			d.Rel = max(d.Rel, e/math.Abs(v))
		}
	}
	for iq := range a.Jacobians {
		ja, jb := &a.Jacobians[iq], &b.Jacobians[iq]
		if ja.Cols != jb.Cols {
			return nil, fmt.Errorf("jacobian %d columns differ: %d and %d",
				iq, ja.Cols, jb.Cols)
		}
		for i, v := range ja.Data {
			d.Jacobians[iq] = max(d.Jacobians[iq], math.Abs(jb.Data[i]-v))
		}
	}
	return d, nil
}
