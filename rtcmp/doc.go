/*
Command rtcmp compares two rtpath result files.

A result file is written by rtpath with the -o option.  It holds the spectra
of each line of sight and the Jacobians of a run.  Rtcmp reports the largest
differences between two runs, typically a reference run and a run after a
change of configuration or program version.

  Usage: rtcmp [options] <reference> <result> [tolerance]
    -v=false: display version and copyright

Both files must have the same number of lines of sight, frequencies, Stokes
components and Jacobian targets.  Rtcmp prints the largest absolute spectrum
difference, the largest difference relative to the reference, and the largest
absolute difference for each Jacobian.

The optional tolerance argument is a relative spectrum difference.  If given,
rtcmp exits with status 1 when the relative difference exceeds it.  This
allows rtcmp to be used in scripts checking that results are unchanged.
*/
package main
