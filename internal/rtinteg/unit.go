// Public domain.

package rtinteg

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/soniakeys/rtpath/internal/rtphys"
)

// Radiance units.
const (
	UnitRadiance   = "1"              // W/(m² Hz sr)
	UnitRJBT       = "RJBT"           // Rayleigh-Jeans brightness temperature
	UnitPlanckBT   = "PlanckBT"       // Planck brightness temperature
	UnitWavelength = "W/(m^2 m sr)"   // per wavelength
	UnitWavenumber = "W/(m^2 m-1 sr)" // per wavenumber
)

func unknownUnit(u string) error {
	return fmt.Errorf("unknown radiance unit %q, expected %q, %q, %q, %q or %q",
		u, UnitRadiance, UnitRJBT, UnitPlanckBT, UnitWavelength, UnitWavenumber)
}

// ApplyUnit converts spectrum iy, [f][stokes] in radiance, to unit u in
// place.  n is the refractive index at the sensor.
//
// For PlanckBT, the Stokes elements after the first are converted as the
// difference of the brightness temperatures of the two orthogonal
// polarizations, so the first element is converted last.
func ApplyUnit(iy [][]float64, u string, f []float64, n float64) error {
	if len(iy) != len(f) {
		return fmt.Errorf("spectrum frequencies: expected %d, got %d", len(f), len(iy))
	}
	switch u {
	case UnitRadiance:
		if n != 1 {
			scale(iy, func(int) float64 { return n * n })
		}
	case UnitRJBT:
		scale(iy, func(iv int) float64 { return rtphys.InvRayleighJeans(1, f[iv]) })
	case UnitPlanckBT:
		for iv, v := range iy {
			for is := len(v) - 1; is >= 0; is-- {
				if is == 0 {
					v[0] = rtphys.InvB(v[0], f[iv])
					continue
				}
				v[is] = rtphys.InvB(.5*(v[0]+v[is]), f[iv]) -
					rtphys.InvB(.5*(v[0]-v[is]), f[iv])
			}
		}
	case UnitWavelength:
		scale(iy, func(iv int) float64 {
			return n * n * f[iv] * (f[iv] / rtphys.SpeedOfLight)
		})
	case UnitWavenumber:
		scale(iy, func(int) float64 { return n * n * rtphys.SpeedOfLight })
	default:
		return unknownUnit(u)
	}
	return nil
}

// ApplyUnitJacobian converts Jacobians j to unit u in place.  Each matrix
// has a row iv·stokes+is per frequency iv and Stokes element is.  iy is the
// spectrum the Jacobians belong to, still in radiance, so Jacobians are
// converted before their spectrum.  For PlanckBT each row is scaled by the
// derivative of its converted element with respect to the same element,
// the coupling of polarized elements to I is not carried.
func ApplyUnitJacobian(j []*mat.Dense, iy [][]float64, u string, f []float64, n float64) error {
	if len(iy) != len(f) {
		return fmt.Errorf("spectrum frequencies: expected %d, got %d", len(f), len(iy))
	}
	var fac func(iv, is int) float64
	switch u {
	case UnitRadiance:
		fac = func(int, int) float64 { return n * n }
	case UnitRJBT:
		fac = func(iv, _ int) float64 { return rtphys.InvRayleighJeans(1, f[iv]) }
	case UnitPlanckBT:
		fac = func(iv, is int) float64 {
			v := iy[iv]
			if is == 0 {
				return rtphys.DInvBDI(v[0], f[iv])
			}
			return .5 * (rtphys.DInvBDI(.5*(v[0]+v[is]), f[iv]) +
				rtphys.DInvBDI(.5*(v[0]-v[is]), f[iv]))
		}
	case UnitWavelength:
		fac = func(iv, _ int) float64 { return n * n * f[iv] * (f[iv] / rtphys.SpeedOfLight) }
	case UnitWavenumber:
		fac = func(int, int) float64 { return n * n * rtphys.SpeedOfLight }
	default:
		return unknownUnit(u)
	}
	rows := 0
	for _, v := range iy {
		rows += len(v)
	}
	for iq, m := range j {
		if m == nil {
			continue
		}
		if r, _ := m.Dims(); r != rows {
			return fmt.Errorf("jacobian %d rows: expected %d, got %d", iq, rows, r)
		}
	}
	for iv, v := range iy {
		for is := range v {
			x := fac(iv, is)
			row := iv*len(v) + is
			for _, m := range j {
				if m != nil {
					floats.Scale(x, m.RawRowView(row))
				}
			}
		}
	}
	return nil
}

func scale(iy [][]float64, fac func(iv int) float64) {
	for iv, v := range iy {
		x := fac(iv)
		for is := range v {
			v[is] *= x
		}
	}
}
