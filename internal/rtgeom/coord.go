// Public domain.

package rtgeom

import (
	"math"

	"github.com/soniakeys/coord"
	"github.com/soniakeys/unit"
	"gonum.org/v1/gonum/spatial/r3"
)

// ZaAaToCart returns the unit direction vector of a 3D line-of-sight.
// Z is toward the zenith, X toward north and Y toward east.
func ZaAaToCart(los LOS) coord.Cart {
	sz, cz := los.Za.Sincos()
	sa, ca := los.Aa.Sincos()
	return coord.Cart{X: ca * sz, Y: sa * sz, Z: cz}
}

// CartToZaAa is the inverse of ZaAaToCart.  d need not be normalized.
func CartToZaAa(d *coord.Cart) LOS {
	r := math.Sqrt(d.Square())
	return LOS{
		Za: unit.Angle(math.Acos(d.Z / r)),
		Aa: unit.Angle(math.Atan2(d.Y, d.X)),
	}
}

// MapDAa returns the line-of-sight at angle daa from the line-of-sight
// za0, aa0, measured in the plane through it perpendicular to its vertical
// plane.  At za0 90° daa is a change of azimuth.  Toward the zenith or nadir
// it becomes a change of zenith angle.
func MapDAa(za0, aa0, daa unit.Angle) LOS {
	sa, ca := daa.Sincos()
	v := r3.Vec{X: ca, Y: sa}
	v = r3.NewRotation((za0 - deg90).Rad(), r3.Vec{Y: 1}).Rotate(v)
	v = r3.NewRotation(aa0.Rad(), r3.Vec{Z: 1}).Rotate(v)
	return CartToZaAa(&coord.Cart{X: v.X, Y: v.Y, Z: v.Z})
}

// PolToCart converts a 2D polar position to cartesian x, z.
func PolToCart(r float64, lat unit.Angle) (x, z float64) {
	s, c := lat.Sincos()
	return r * c, r * s
}

// CartToPol converts cartesian x, z to a 2D polar position.
func CartToPol(x, z float64) (r float64, lat unit.Angle) {
	return math.Hypot(x, z), unit.Angle(math.Atan2(z, x))
}

// PosLOSToCart2D returns the cartesian position and unit direction of a 2D
// (or 1D) position and line-of-sight.
func PosLOSToCart2D(r float64, lat, za unit.Angle) (x, z, dx, dz float64) {
	x, z = PolToCart(r, lat)
	dz, dx = (lat + za).Sincos()
	return
}

// SphToCart converts a 3D spherical position to cartesian coordinates.
// X points to latitude 0, longitude 0 and Z to the north pole.
func SphToCart(r float64, lat, lon unit.Angle) coord.Cart {
	slat, clat := lat.Sincos()
	slon, clon := lon.Sincos()
	return coord.Cart{X: r * clat * clon, Y: r * clat * slon, Z: r * slat}
}

// CartToSph is the inverse of SphToCart.
func CartToSph(c *coord.Cart) (r float64, lat, lon unit.Angle) {
	r = math.Sqrt(c.Square())
	lat = unit.Angle(math.Asin(c.Z / r))
	lon = unit.Angle(math.Atan2(c.Y, c.X))
	return
}

// Distance2D is the straight distance between two polar positions.
func Distance2D(r1 float64, lat1 unit.Angle, r2 float64, lat2 unit.Angle) float64 {
	x1, z1 := PolToCart(r1, lat1)
	x2, z2 := PolToCart(r2, lat2)
	return math.Hypot(x2-x1, z2-z1)
}

// Distance3D is the straight distance between two spherical positions.
func Distance3D(r1 float64, lat1, lon1 unit.Angle, r2 float64, lat2, lon2 unit.Angle) float64 {
	p1 := SphToCart(r1, lat1, lon1)
	p2 := SphToCart(r2, lat2, lon2)
	var d coord.Cart
	d.Sub(&p2, &p1)
	return math.Sqrt(d.Square())
}

// SphDist is the angular great circle distance between two positions,
// by the haversine formula.
func SphDist(lat1, lon1, lat2, lon2 unit.Angle) unit.Angle {
	slat := math.Sin((lat2 - lat1).Rad() / 2)
	slon := math.Sin((lon2 - lon1).Rad() / 2)
	a := slat*slat + lat1.Cos()*lat2.Cos()*slon*slon
	return unit.Angle(2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a)))
}
