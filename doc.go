/*
Command rtpath simulates the spectra seen by a microwave or infrared sensor
looking through the atmosphere.

Contents

Version 0.1

  Program overview
  Installing
  Command line usage
  File formats
  Algorithm outline


Program overview

Input is a YAML scenario file describing an atmosphere, a set of absorption
lines, a sensor and optional Jacobian targets.  Output is the spectrum of each
line of sight of the sensor and, optionally, Jacobians of the spectra with
respect to atmospheric quantities on a pressure grid.

Sample run:

The file testdata/downlooking.yaml under internal/rtprog describes a sensor
at 50 km looking down at 150 degrees zenith angle through a six level
atmosphere, with three lines of sight 5 degrees apart and three frequencies
around the 183 GHz water vapor line.  Type "rtpath downlooking.yaml" and get
a table of brightness temperatures,

  rtpath version 0.1 Go source.
  Unit PlanckBT
  LOS  Zenith angle     Freq. GHz             I
    0   145°00′00.00″    180.000000      ...

followed by a block per Jacobian target.


Installing

You need Go 1.24 or later.  Then type

    go install github.com/soniakeys/rtpath@latest

The companion command rtcmp compares two result files written with -o.

    go install github.com/soniakeys/rtpath/rtcmp@latest


Command line usage

Invoking the program without command line arguments (or with invalid
arguments) shows this usage prompt.

  Usage: rtpath [options] <scenario>    simulate spectra for a scenario file
         rtpath [options] -             simulate a scenario read from stdin
         rtpath -h                      display help and quick reference
         rtpath -v                      display version and copyright

  Options:
         -c <config-file>
         -o <result-file>
         -m <metrics-file>
         -d <log level>    debug, info, warn or error

The result file is a binary file holding spectra and Jacobians for later
comparison with rtcmp.  The metrics file receives counters of lines of sight,
path points and absorption provider calls in the Prometheus text format.
Logging goes to stderr.  At level debug, each path and batch is logged.


File formats

The scenario is a YAML document.  Unknown fields are an error.  Profiles are
given per pressure level, with pressure strictly decreasing.

  atmosphere:
    geoid_radius: 6371e3          m
    surface_altitude: 0           m
    pressure: [...]               Pa
    altitude: [...]               m
    temperature: [...]            K
    species:                      volume mixing ratio profiles
      - {name: H2O, vmr: [...]}
    nlte: [[...]]                 optional NLTE temperature profiles
    wind: {u: [...], v: [...], w: [...]}        optional, m/s
    magnetic: {u: [...], v: [...], w: [...]}    optional, T
  surface: {temperature: 288, emissivity: 0.9}
  sensor:
    altitude: 50e3                m
    za: 150                       zenith angle, degrees
    dza: [-5, 0, 5]               zenith angle offsets of the lines of sight
    jitter: 0                     standard deviation added to each offset
    transmitter: 0                transmitter altitude for radio links
    defocus_dza: 0.001            angular step for defocusing
  frequency: [...]                Hz
  stokes: 1                       1 to 4
  v_along: 0                      sensor velocity along the line of sight
  lines:
    - {species: 0, f0: 183.31e9, s: 3e-15, gamma: 3e4, n: 0.7, nlte_level: 0}
  continuum: [...]                per species
  zeeman: 0
  faraday: 0
  jacobian:
    - kind: temperature           or wind_along, wind_u, wind_v, wind_w,
                                  mag_u, mag_v, mag_w, species
      method: perturbation        or analytical, provider, flux, skip
      species: 0
      unit: rel                   or vmr, nd, for species only
      grid: [101325, 5600, 300]   Pa
  particles:                      optional cloud box of gray particles
    cloudbox: [0, 2]              lowest and highest pressure level
    types:
      - {ext: 1e-9, abs: 2e-10, pnd: [...]}   cross sections m^2, m^-3
  aux: [Transmission, Optical depth, Radiative background]
  geo_pos: lowest                 or end

With particles, paths pass through the cloud box.  Particles add
extinction and emission by absorption.  Radiation scattered into the path
is not included.  Each aux quantity and the geographic position of each
line of sight are printed after the spectra.

The configuration file is a text file with a simple format.  Empty lines and
lines beginning with # are ignored.  Other lines must contain a keyword.

Allowable keywords:

   headings
   noheadings
   jacobian
   nojacobian
   unit <1|RJBT|PlanckBT|W/(m^2 m sr)|W/(m^2 m-1 sr)>
   workers <n>
   lmax <m>
   perturb t|wind|mag = <x>
   defocus general|sat2sat
   repeatable
   random

Headings and Jacobians can be turned off if desired.

Keyword unit selects the output unit of spectra and Jacobians.  The default
is PlanckBT, the Planck brightness temperature.  Unit 1 leaves radiances
in W/(m^2 Hz sr).

Keyword workers limits the number of goroutines.  The default, 0, uses
GOMAXPROCS.  Lines of sight are computed in parallel when there are at least
as many of them as workers or when there are many more of them than
frequencies.  Otherwise frequencies are computed in parallel.

Keyword lmax is the maximum distance between path points, in m.  The default
is 10000.  Zero means no limit, with path points only at grid crossings.

Keyword perturb sets the perturbation sizes used for Jacobians by the
perturbation method: temperature in K, wind in m/s, magnetic field in T.

Keyword defocus adds a defocusing column to the output.  Method general
retraces the path with a slightly different zenith angle.  Method sat2sat
is for limb links between a transmitter and the sensor.

The keywords repeatable and random determine if jitter of the line of sight
offsets is the same from one run to the next.  The default is repeatable.

Example:

  # brightness temperatures only
  nojacobian
  unit RJBT
  workers 4


Algorithm outline

1.  For each line of sight, the propagation path is traced from the sensor
through the atmosphere until it leaves the top of the atmosphere, hits the
surface, or reaches the transmitter.  Path points are placed where the path
crosses pressure levels, with extra points so that no step exceeds lmax.

2.  Temperature, mixing ratios, wind and magnetic field are interpolated to
the path points.  Doppler shifts from wind and sensor velocity are applied
to the frequency grid.

3.  Absorption lines give the propagation matrix at each point, together with
its derivatives for the Jacobian targets.

4.  The transmission matrix of each step is computed from the average of the
propagation matrices at its two ends.

5.  The radiative transfer equation is integrated from the background toward
the sensor.  Jacobians follow from the chain rule over the two steps adjacent
to each path point, and are mapped from path points to the retrieval grid.

6.  Spectra and Jacobians are converted to the output unit and collected
into block matrices, one row per line of sight, frequency and Stokes
component.

-------------
Public domain.
*/
package main
