// Command calipers is the reference-frame measurement tool of
// spec.md §4.4: given a dataset description and a reference frame, it
// prints the ground sample distance and, for every reference-frame node
// the dataset touches, the LOD range and per-LOD tile ranges a
// generator covering that dataset would need.
//
// This module carries no GDAL/PROJ binding (spec.md §1 treats dataset
// IO and coordinate conversion as external collaborators), so the
// dataset and reference frame are both read from a small JSON
// description rather than opened directly — a real deployment would
// wire these same calipers.Dataset and reframe.ReferenceFrame values
// off a GDAL dataset handle and the server's configured reference
// frames instead.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/GrainArc/vtsproxy/calipers"
	"github.com/GrainArc/vtsproxy/reframe"
)

type nodeSpec struct {
	SRS      string       `json:"srs"`
	MinX     float64      `json:"minX"`
	MinY     float64      `json:"minY"`
	MaxX     float64      `json:"maxX"`
	MaxY     float64      `json:"maxY"`
	Valid    bool         `json:"valid"`
	Children [4]*nodeSpec `json:"children"`
}

func (n *nodeSpec) build() *reframe.Node {
	if n == nil {
		return nil
	}
	out := &reframe.Node{
		SRS:     n.SRS,
		Extents: reframe.Extents{MinX: n.MinX, MinY: n.MinY, MaxX: n.MaxX, MaxY: n.MaxY},
		Valid:   n.Valid,
	}
	for i, c := range n.Children {
		out.Children[i] = c.build()
	}
	return out
}

type referenceFrameSpec struct {
	ID   string    `json:"id"`
	Root *nodeSpec `json:"root"`
}

type datasetSpec struct {
	BandCount int     `json:"bandCount"`
	DataType  string  `json:"dataType"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	MinLon    float64 `json:"minLon"`
	MinLat    float64 `json:"minLat"`
	MaxLon    float64 `json:"maxLon"`
	MaxLat    float64 `json:"maxLat"`
}

func (d datasetSpec) build() calipers.Dataset {
	return calipers.Dataset{
		BandCount: d.BandCount,
		DataType:  d.DataType,
		Width:     d.Width,
		Height:    d.Height,
		MinLon:    d.MinLon,
		MinLat:    d.MinLat,
		MaxLon:    d.MaxLon,
		MaxLat:    d.MaxLat,
	}
}

// nodeConvertor builds the Convertor a node needs to go from geographic
// degrees to that node's own SRS. Every reference frame this tool
// measures against shares a single web-Mercator-projected node space,
// so it reduces to the package's own LonLatToMercator — a real
// multi-SRS deployment would look it up in a PROJ-backed registry
// keyed by SRS name instead.
func nodeConvertor(srs string) reframe.Convertor {
	return reframe.ConvertorFunc(func(lon, lat, z float64) (float64, float64, float64, bool) {
		x, y := reframe.LonLatToMercator(lon, lat)
		return x, y, z, true
	})
}

func main() {
	var forcedType string
	var demToOphotoScale float64
	var tileFractionLimit float64

	cmd := &cobra.Command{
		Use:   "calipers <dataset.json> <reference-frame.json>",
		Short: "Measure a dataset's coverage against a reference frame",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := loadDataset(args[0])
			if err != nil {
				return err
			}
			rf, err := loadReferenceFrame(args[1])
			if err != nil {
				return err
			}

			params := calipers.DefaultParams()
			if forcedType != "" {
				params.ForcedType = calipers.DatasetType(forcedType)
			}
			if demToOphotoScale > 0 {
				params.DemToOphotoScale = demToOphotoScale
			}
			if tileFractionLimit > 0 {
				params.TileFractionLimit = tileFractionLimit
			}

			result, err := calipers.Measure(ds, params, rf, nodeConvertor)
			if err != nil {
				return err
			}

			fmt.Printf("gsd: %g\n", result.GSD)
			for _, n := range result.Nodes {
				fmt.Printf("%s: %d-%d", n.SRS, n.LODRange.Min, n.LODRange.Max)
				for lod := n.LODRange.Min; lod <= n.LODRange.Max; lod++ {
					sep := ";"
					if lod == n.LODRange.Min {
						sep = "/"
					}
					tr := n.TileRange[lod]
					fmt.Printf("%s%d,%d,%d,%d", sep, tr.MinX, tr.MinY, tr.MaxX, tr.MaxY)
				}
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&forcedType, "datasetType", "", "force dataset type (ophoto|dem) instead of auto-detecting")
	cmd.Flags().Float64Var(&demToOphotoScale, "demToOphotoScale", 3.0, "invGsdScale applied to DEM datasets")
	cmd.Flags().Float64Var(&tileFractionLimit, "tileFractionLimit", 32.0, "border-refinement stop fraction")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadDataset(path string) (calipers.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return calipers.Dataset{}, err
	}
	defer f.Close()
	var spec datasetSpec
	if err := json.NewDecoder(f).Decode(&spec); err != nil {
		return calipers.Dataset{}, err
	}
	return spec.build(), nil
}

func loadReferenceFrame(path string) (*reframe.ReferenceFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var spec referenceFrameSpec
	if err := json.NewDecoder(f).Decode(&spec); err != nil {
		return nil, err
	}
	return &reframe.ReferenceFrame{ID: spec.ID, Root: spec.Root.build()}, nil
}
