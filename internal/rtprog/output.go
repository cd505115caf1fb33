// Public domain.

package rtprog

import (
	"fmt"
	"io"

	sexa "github.com/soniakeys/sexagesimal"

	"github.com/soniakeys/rtpath/internal/rtbatch"
	"github.com/soniakeys/rtpath/internal/rtjac"
)

var stokesNames = []string{"I", "Q", "U", "V"}

func printHeadings(w io.Writer, opt *Options, out *rtbatch.Output) {
	fmt.Fprintln(w, versionString)
	fmt.Fprintf(w, "Unit %s\n", opt.Unit)
	fmt.Fprint(w, "LOS  Zenith angle     Freq. GHz ")
	for is := 0; is < out.Stokes; is++ {
		fmt.Fprintf(w, " %12s", stokesNames[is])
	}
	if out.Defocus != nil {
		fmt.Fprint(w, "   Defocusing")
	}
	fmt.Fprintln(w)
}

// printSpectra writes a line per line-of-sight and frequency.
func printSpectra(w io.Writer, out *rtbatch.Output, b *rtbatch.Block) {
	for ilos := 0; ilos < out.NLOS; ilos++ {
		za := fmt.Sprintf("%.2s", sexa.FmtAngle(b.LOSAt(ilos).Za))
		for iv, f := range b.F {
			fmt.Fprintf(w, "%3d %14s %13.6f", ilos, za, f*1e-9)
			for is := 0; is < out.Stokes; is++ {
				fmt.Fprintf(w, " %12.6g", out.Iyb[out.Row(ilos, iv, is)])
			}
			if out.Defocus != nil {
				fmt.Fprintf(w, " %12.6f", out.Defocus[ilos])
			}
			fmt.Fprintln(w)
		}
	}
}

// printJacobians writes a block per target with a line per spectrum row
// and a column per retrieval grid point.
func printJacobians(w io.Writer, out *rtbatch.Output, b *rtbatch.Block, ts *rtjac.Set) {
	for iq, j := range out.Jacobians {
		t := &ts.Targets[iq]
		fmt.Fprintf(w, "\nJacobian %s\n", t)
		fmt.Fprint(w, "LOS    Freq. GHz  S")
		for _, p := range t.Grid {
			fmt.Fprintf(w, " %9.3g Pa", p)
		}
		fmt.Fprintln(w)
		for ilos := 0; ilos < out.NLOS; ilos++ {
			for iv, f := range b.F {
				for is := 0; is < out.Stokes; is++ {
					row := out.Row(ilos, iv, is)
					fmt.Fprintf(w, "%3d %13.6f %2s", ilos, f*1e-9, stokesNames[is])
					for _, v := range j.RawRowView(row) {
						fmt.Fprintf(w, " %12.5g", v)
					}
					fmt.Fprintln(w)
				}
			}
		}
	}
}

// printAux writes a block per auxiliary quantity with the layout of the
// spectra.
func printAux(w io.Writer, out *rtbatch.Output, b *rtbatch.Block, names []string) {
	for ia, a := range out.Aux {
		fmt.Fprintf(w, "\nAuxiliary %s\n", names[ia])
		for ilos := 0; ilos < out.NLOS; ilos++ {
			for iv, f := range b.F {
				fmt.Fprintf(w, "%3d %13.6f", ilos, f*1e-9)
				for is := 0; is < out.Stokes; is++ {
					fmt.Fprintf(w, " %12.6g", a[out.Row(ilos, iv, is)])
				}
				fmt.Fprintln(w)
			}
		}
	}
}

func printGeoPos(w io.Writer, out *rtbatch.Output) {
	fmt.Fprintln(w, "\nGeographic position")
	fmt.Fprintln(w, "LOS  Altitude km        Latitude       Longitude")
	for ilos, pos := range out.GeoPos {
		fmt.Fprintf(w, "%3d %12.3f %15s %15s\n", ilos, pos.Z*1e-3,
			fmt.Sprintf("%.2s", sexa.FmtAngle(pos.Lat)),
			fmt.Sprintf("%.2s", sexa.FmtAngle(pos.Lon)))
	}
}
