// Public domain.

// Package rtphys has physical constants and blackbody radiation functions.
//
// Radiances are spectral radiances per frequency, W/(m² Hz sr).
package rtphys

import "math"

// Physical constants, SI units.
const (
	Planck       = 6.62606896e-34 // J s
	Boltzmann    = 1.3806504e-23  // J/K
	SpeedOfLight = 2.99792458e8   // m/s
	CosmicBG     = 2.735          // K
)

const (
	pa = 2 * Planck / (SpeedOfLight * SpeedOfLight)
	pb = Planck / Boltzmann
)

// B returns blackbody radiance at frequency f and temperature t.
func B(f, t float64) float64 {
	return pa * f * f * f / (math.Exp(pb*f/t) - 1)
}

// DBDT returns the temperature derivative of B.
func DBDT(f, t float64) float64 {
	e := math.Exp(pb * f / t)
	return pa * f * f * f * pb * f / (t * t) * e / ((e - 1) * (e - 1))
}

// DBDF returns the frequency derivative of B.
func DBDF(f, t float64) float64 {
	x := pb * f / t
	e := math.Exp(x)
	return B(f, t) * (3 - x*e/(e-1)) / f
}

// InvB returns the brightness temperature of radiance i at frequency f,
// the inverse of B.
func InvB(i, f float64) float64 {
	return pb * f / math.Log(pa*f*f*f/i+1)
}

// DInvBDI returns the derivative of InvB with respect to i.
func DInvBDI(i, f float64) float64 {
	a := pa * f * f * f
	b := pb * f
	d := a/i + 1
	t := b / math.Log(d)
	return t * t * a / (b * i * i * d)
}

// InvRayleighJeans returns the Rayleigh-Jeans brightness temperature of
// radiance i at frequency f.
func InvRayleighJeans(i, f float64) float64 {
	return SpeedOfLight * SpeedOfLight / (2 * f * f * Boltzmann) * i
}

// Blackbody fills b with B at each frequency of f.  b must have the
// length of f.
func Blackbody(b, f []float64, t float64) {
	for i, fi := range f {
		b[i] = B(fi, t)
	}
}
