package reframe

import "math"

// TransverseMercator returns a Convertor from geographic degrees to a
// spherical transverse Mercator projection centered on (lon0, lat0),
// using earthRadius as the sphere radius (Snyder's spherical TM
// formulas). Grounded on the same spherical-earth approximation as
// LonLatToMercator/MercatorToLonLat above rather than a full
// ellipsoidal projection, since calipers only needs the projection to
// be locally conformal near the dataset's own center for its GSD
// estimate, not globally accurate.
func TransverseMercator(lon0, lat0 float64) Convertor {
	lat0r := lat0 * math.Pi / 180
	return ConvertorFunc(func(lon, lat, z float64) (float64, float64, float64, bool) {
		phi := lat * math.Pi / 180
		lambda := (lon - lon0) * math.Pi / 180

		b := math.Cos(phi) * math.Sin(lambda)
		if b >= 1 || b <= -1 {
			return 0, 0, 0, false
		}

		x := earthRadius / 2 * math.Log((1+b)/(1-b))
		y := earthRadius * (math.Atan2(math.Tan(phi), math.Cos(lambda)) - lat0r)
		return x, y, z, true
	})
}
