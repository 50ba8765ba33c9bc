package reframe

// Convertor converts a single point between two named SRS. A real
// implementation wraps PROJ/GDAL's OGRCoordinateTransformation; this
// package treats it purely as an external collaborator (spec.md §1).
// Ok is false when the point falls outside the target SRS's domain
// (e.g. a polar point projected into a UTM zone) rather than returning
// an error, since calipers and metatile both need to test-and-skip many
// points per second without allocating.
type Convertor interface {
	Convert(x, y, z float64) (nx, ny, nz float64, ok bool)
}

// ConvertorFunc adapts a plain function to Convertor.
type ConvertorFunc func(x, y, z float64) (float64, float64, float64, bool)

func (f ConvertorFunc) Convert(x, y, z float64) (float64, float64, float64, bool) {
	return f(x, y, z)
}

// Identity returns a Convertor that passes coordinates through unchanged,
// used when a node's SRS matches the source SRS already.
func Identity() Convertor {
	return ConvertorFunc(func(x, y, z float64) (float64, float64, float64, bool) {
		return x, y, z, true
	})
}

// Chain composes convertors left to right, short-circuiting on the first
// failure — the common case of dataset-SRS -> geographic -> node-SRS.
func Chain(cs ...Convertor) Convertor {
	return ConvertorFunc(func(x, y, z float64) (float64, float64, float64, bool) {
		var ok bool
		for _, c := range cs {
			x, y, z, ok = c.Convert(x, y, z)
			if !ok {
				return 0, 0, 0, false
			}
		}
		return x, y, z, true
	})
}
