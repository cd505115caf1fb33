// Public domain.

// Package rtjac describes the retrieval quantities radiance Jacobians are
// computed for.
package rtjac

import (
	"fmt"

	"github.com/soniakeys/rtpath/internal/rtgrid"
)

// Kind is the physical quantity of a target.
type Kind int

const (
	Temperature Kind = iota
	WindAlong        // along-path velocity
	WindU
	WindV
	WindW
	MagU
	MagV
	MagW
	Species
	Other    // a quantity the absorption provider differentiates
	Pointing // instrumental, not handled along the path
)

var kindNames = [...]string{"temperature", "wind along path", "wind u",
	"wind v", "wind w", "magnetic u", "magnetic v", "magnetic w",
	"species", "other", "pointing"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Wind reports whether k is a wind component.
func (k Kind) Wind() bool { return k >= WindAlong && k <= WindW }

// Magnetic reports whether k is a magnetic field component.
func (k Kind) Magnetic() bool { return k >= MagU && k <= MagW }

// Method is how the derivative of the propagation matrix is obtained.
type Method int

const (
	// Analytical derives a species derivative from that species' own
	// extinction.
	Analytical Method = iota
	// FromProvider copies a derivative computed by the absorption provider.
	FromProvider
	// Perturbation re-evaluates the provider with one perturbed input.
	Perturbation
	// Flux gives -ext, to be finished by an outer flux integration.
	Flux
	// Skip contributes nothing along the path.
	Skip
)

var methodNames = [...]string{"analytical", "from provider", "perturbation",
	"flux", "skip"}

func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return fmt.Sprintf("Method(%d)", int(m))
	}
	return methodNames[m]
}

// Species retrieval units.
const (
	UnitRel = "rel" // fraction of the current value
	UnitVMR = "vmr" // volume mixing ratio
	UnitND  = "nd"  // number density, m-3
)

// Target is one retrieval quantity.
type Target struct {
	Kind    Kind
	Method  Method
	Species int       // species index for Kind Species
	Unit    string    // species retrieval unit
	Grid    []float64 // retrieval pressure grid, Pa, decreasing
}

func (t *Target) String() string {
	if t.Kind == Species {
		return fmt.Sprintf("species %d (%s, %s)", t.Species, t.Unit, t.Method)
	}
	return fmt.Sprintf("%s (%s)", t.Kind, t.Method)
}

// Check validates t for an atmosphere with nSpecies species.
func (t *Target) Check(nSpecies int) error {
	if len(t.Grid) == 0 {
		return fmt.Errorf("%s: empty retrieval grid", t)
	}
	if !rtgrid.StrictlyDecreasing(t.Grid) {
		return fmt.Errorf("%s: retrieval grid must be strictly decreasing", t)
	}
	switch t.Method {
	case Analytical:
		if t.Kind != Species {
			return fmt.Errorf("%s: analytical method is for species only", t)
		}
	case Perturbation:
		if t.Kind != Temperature && !t.Kind.Magnetic() &&
			(!t.Kind.Wind() || t.Kind == WindAlong) {
			return fmt.Errorf("%s: perturbation is for temperature, wind "+
				"and magnetic components only", t)
		}
	case FromProvider, Flux, Skip:
	default:
		return fmt.Errorf("%s: invalid method", t)
	}
	if t.Kind == Species {
		if t.Species < 0 || t.Species >= nSpecies {
			return fmt.Errorf("%s: species index out of range, %d species",
				t, nSpecies)
		}
		switch t.Unit {
		case UnitRel, UnitVMR, UnitND:
		default:
			return fmt.Errorf("%s: unknown species unit %q", t, t.Unit)
		}
	}
	return nil
}

// Perturbations holds finite difference step sizes.
type Perturbations struct {
	Temperature float64 // K
	Wind        float64 // m/s
	Magnetic    float64 // T
}

// DefaultPerturbations are the step sizes used unless configured otherwise.
var DefaultPerturbations = Perturbations{
	Temperature: 0.1,
	Wind:        5,
	Magnetic:    1e-7,
}

// Set is an ordered list of retrieval quantities and the perturbations
// used for them.
type Set struct {
	Targets []Target
	Perturb Perturbations
}

// NewSet returns a Set with default perturbations.
func NewSet(t ...Target) *Set {
	return &Set{Targets: t, Perturb: DefaultPerturbations}
}

// Len returns the number of targets.  A nil Set has none.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Targets)
}

// Check validates every target and the perturbation sizes.
func (s *Set) Check(nSpecies int) error {
	if s.Len() == 0 {
		return nil
	}
	for i := range s.Targets {
		t := &s.Targets[i]
		if err := t.Check(nSpecies); err != nil {
			return fmt.Errorf("jacobian target %d: %w", i, err)
		}
		if t.Method != Perturbation {
			continue
		}
		var d float64
		switch {
		case t.Kind == Temperature:
			d = s.Perturb.Temperature
		case t.Kind.Wind():
			d = s.Perturb.Wind
		default:
			d = s.Perturb.Magnetic
		}
		if d == 0 {
			return fmt.Errorf("jacobian target %d: %s: zero perturbation", i, t)
		}
	}
	return nil
}

// Columns returns the total number of retrieval grid points.
func (s *Set) Columns() (n int) {
	if s == nil {
		return 0
	}
	for i := range s.Targets {
		n += len(s.Targets[i].Grid)
	}
	return
}

const boltzmann = 1.3806504e-23

// VMRUnitScale returns the factor converting a species' own extinction
// into its derivative with respect to the retrieval unit.  For "vmr" and
// "nd" a zero vmr gives 0.
func VMRUnitScale(unit string, vmr, p, t float64) (float64, error) {
	switch unit {
	case UnitRel:
		return 1, nil
	case UnitVMR:
		if vmr == 0 {
			return 0, nil
		}
		return 1 / vmr, nil
	case UnitND:
		if vmr == 0 {
			return 0, nil
		}
		return 1 / (vmr * p / (boltzmann * t)), nil
	}
	return 0, fmt.Errorf("unknown species unit %q", unit)
}

// DXDVMRScale returns the factor converting a derivative with respect to
// vmr into one with respect to the retrieval unit.
func DXDVMRScale(unit string, vmr, p, t float64) (float64, error) {
	switch unit {
	case UnitRel:
		return vmr, nil
	case UnitVMR:
		return 1, nil
	case UnitND:
		return boltzmann * t / p, nil
	}
	return 0, fmt.Errorf("unknown species unit %q", unit)
}
