package metatile

import "github.com/GrainArc/vtsproxy/gdaldriver"

// validSample matches spec.md §4.3 step 3's "< -1e6" invalidity sentinel,
// the same threshold mapproxy's validSample() uses.
func validSample(v float64) bool { return v >= -1e6 }

// imputeGrid fills invalid samples from their 8-neighborhood average per
// spec.md §4.3 step 3, leaving a sample invalid if it has no valid
// neighbor either.
func imputeGrid(raster *gdaldriver.Raster) []gdaldriver.Sample {
	w, h := raster.Width, raster.Height
	out := make([]gdaldriver.Sample, len(raster.Samples))
	copy(out, raster.Samples)

	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			idx := row*w + col
			if validSample(out[idx].Avg) {
				continue
			}

			var sumAvg float64
			min := 0.0
			max := 0.0
			count := 0
			for dj := -1; dj <= 1; dj++ {
				for di := -1; di <= 1; di++ {
					if di == 0 && dj == 0 {
						continue
					}
					x, y := col+di, row+dj
					if x < 0 || x >= w || y < 0 || y >= h {
						continue
					}
					s := raster.Samples[y*w+x]
					if !validSample(s.Avg) {
						continue
					}
					sumAvg += s.Avg
					if count == 0 || s.Min < min {
						min = s.Min
					}
					if count == 0 || s.Max > max {
						max = s.Max
					}
					count++
				}
			}
			if count > 0 {
				out[idx] = gdaldriver.Sample{Avg: sumAvg / float64(count), Min: min, Max: max}
			}
			// else: leave invalid, propagated as-is per spec.
		}
	}
	return out
}
