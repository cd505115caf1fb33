// Public domain.

package rtinteg

import "fmt"

// Auxiliary quantities returned with the radiance of a path.
const (
	// AuxBackground is the Background code of the path, one value.
	AuxBackground = "Radiative background"
	// AuxOpticalDepth is the unpolarized optical depth of the whole path,
	// one value per frequency.
	AuxOpticalDepth = "Optical depth"
	// AuxTransmission is the diagonal of the transmission matrix of the
	// whole path, per frequency and Stokes component.
	AuxTransmission = "Transmission"
)

// AuxShape returns the frequency and Stokes dimensions of auxiliary
// quantity name.  A dimension the quantity does not vary along is 1.
func AuxShape(name string, nf, stokes int) (rows, cols int, err error) {
	switch name {
	case AuxBackground:
		return 1, 1, nil
	case AuxOpticalDepth:
		return nf, 1, nil
	case AuxTransmission:
		return nf, stokes, nil
	}
	return 0, 0, fmt.Errorf("auxiliary variable %q not recognised", name)
}

// auxValues evaluates in.Aux.  The names must have been checked.
func auxValues(in *Input) [][][]float64 {
	if len(in.Aux) == 0 {
		return nil
	}
	nf, ns := in.Prop.NF, in.Prop.Stokes
	end := in.Trans.Cumulative[in.Trans.NP-1]
	r := make([][][]float64, len(in.Aux))
	for ia, name := range in.Aux {
		rows, cols, _ := AuxShape(name, nf, ns)
		a := make([][]float64, rows)
		for iv := range a {
			a[iv] = make([]float64, cols)
			switch name {
			case AuxBackground:
				a[iv][0] = float64(in.Path.Background)
			case AuxOpticalDepth:
				a[iv][0] = in.Trans.ScalarTau[iv]
			case AuxTransmission:
				for is := range a[iv] {
					a[iv][is] = end[iv].At(is, is)
				}
			}
		}
		r[ia] = a
	}
	return r
}

// CheckAux checks that a, the auxiliary quantity name, has 1 or nf rows
// and 1 or stokes columns.
func CheckAux(name string, a [][]float64, nf, stokes int) error {
	if len(a) != 1 && len(a) != nf {
		return fmt.Errorf("auxiliary variable %q: expected 1 or %d frequencies, got %d",
			name, nf, len(a))
	}
	for iv, v := range a {
		if len(v) != 1 && len(v) != stokes {
			return fmt.Errorf("auxiliary variable %q at frequency %d: expected "+
				"Stokes dimension 1 or %d, got %d", name, iv, stokes, len(v))
		}
	}
	return nil
}
