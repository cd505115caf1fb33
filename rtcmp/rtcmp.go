// Public domain.

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/soniakeys/rtpath/internal/rtbin"
)

const parentImport = "github.com/soniakeys/rtpath"
const versionString = "rtcmp version 0.1"
const copyrightString = "Public domain."

var errTolerance = errors.New("relative difference exceeds tolerance")

func main() {
	flag.Usage = func() {
		os.Stderr.WriteString(
			"Usage: rtcmp [options] <reference> <result> [tolerance]\n")
		flag.PrintDefaults()
		os.Stderr.WriteString(`
For full documentation:
   go doc ` + parentImport + `/rtcmp
`)
	}
	vers := flag.Bool("v", false, "display version and copyright")
	flag.Parse()
	if *vers {
		fmt.Println(versionString)
		fmt.Println(copyrightString)
		os.Exit(0)
	}
	if n := flag.NArg(); n < 2 || n > 3 {
		flag.Usage()
		os.Exit(1)
	}
	tol := -1.
	if flag.NArg() == 3 {
		var err error
		tol, err = strconv.ParseFloat(flag.Arg(2), 64)
		if err != nil {
			log.Fatalln("Bad tolerance:", err)
		}
	}
	err := compare(os.Stdout, flag.Arg(0), flag.Arg(1), tol)
	if errors.Is(err, errTolerance) {
		fmt.Println(err)
		os.Exit(1)
	}
	if err != nil {
		log.Fatalln(err)
	}
}

// compare reads result files fa and fb and writes a report of their
// differences to w.  A negative tol disables the tolerance check.
func compare(w io.Writer, fa, fb string, tol float64) error {
	a, err := rtbin.ReadFile(fa)
	if err != nil {
		return err
	}
	b, err := rtbin.ReadFile(fb)
	if err != nil {
		return err
	}
	if a.Unit != b.Unit {
		return fmt.Errorf("units differ: %s and %s", a.Unit, b.Unit)
	}
	d, err := rtbin.Compare(a, b)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "\nReference: ", fa, a.Created.Format("2006-01-02 15:04:05"))
	fmt.Fprintln(w, "Result:    ", fb, b.Created.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Shape:      %d lines of sight, %d frequencies, %d Stokes\n",
		a.NLOS, a.NF, a.Stokes)
	fmt.Fprintln(w, "Unit:      ", a.Unit)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Spectrum      max abs %12.5g   max rel %12.5g\n", d.Spectrum, d.Rel)
	for iq, dj := range d.Jacobians {
		name := fmt.Sprint(iq)
		if iq < len(a.Targets) {
			name = a.Targets[iq]
		}
		fmt.Fprintf(w, "Jacobian %-30s max abs %12.5g\n", name, dj)
	}
	if tol >= 0 && d.Rel > tol {
		return fmt.Errorf("%w: %g > %g", errTolerance, d.Rel, tol)
	}
	return nil
}
