// Package calipers implements the reference-frame measurement tool of
// spec.md §4.4: given a dataset's extents and a reference frame, work
// out the LOD range and, per LOD, the tile range each of the reference
// frame's nodes would need to cover it. Grounded on the real dataset
// analysis tool this proxy's design descends from
// (_examples/original_source/mapproxy/src/calipers/main.cpp), reworked
// into idiomatic Go: no GDAL binding exists in this module (spec.md §1
// treats coordinate/raster IO as an external collaborator), so Dataset
// below carries exactly the facts a real GDAL dataset read would supply.
package calipers

// DatasetType is the auto-detected or forced interpretation of a
// dataset's pixel values.
type DatasetType string

const (
	DatasetOphoto DatasetType = "ophoto"
	DatasetDEM    DatasetType = "dem"
)

// Dataset describes the facts about a raster dataset that calipers
// needs: its pixel grid and its geographic extents. Extents are
// geographic degrees (WGS84 lon/lat) — a real GDAL/PROJ binding would
// reproject an arbitrarily-SRS'd dataset to this before calling in,
// the same "external collaborator" boundary metatile draws around
// gdaldriver.
type Dataset struct {
	BandCount int
	DataType  string // GDAL-style type name, e.g. "Byte", "Float32"

	Width, Height int // pixel grid size

	MinLon, MinLat, MaxLon, MaxLat float64
}

func (d Dataset) center() (lon, lat float64) {
	return (d.MinLon + d.MaxLon) / 2, (d.MinLat + d.MaxLat) / 2
}

func (d Dataset) pixelSize() (w, h float64) {
	return (d.MaxLon - d.MinLon) / float64(d.Width), (d.MaxLat - d.MinLat) / float64(d.Height)
}
