package calipers

import "fmt"

// DetectDatasetType classifies a dataset by band count and pixel type,
// matching detectType() in the original tool exactly: 3+ bands is
// always ophoto (RGB/RGBA imagery), a single Byte band is ophoto
// (grayscale imagery), any other single band is a DEM (elevation
// samples), and anything else — 2 bands, or no bands at all — has no
// sensible interpretation.
func DetectDatasetType(bandCount int, dataType string) (DatasetType, error) {
	switch {
	case bandCount >= 3:
		return DatasetOphoto, nil
	case bandCount == 1 && dataType == "Byte":
		return DatasetOphoto, nil
	case bandCount == 1:
		return DatasetDEM, nil
	default:
		return "", fmt.Errorf("calipers: cannot classify dataset with %d bands of type %s", bandCount, dataType)
	}
}
