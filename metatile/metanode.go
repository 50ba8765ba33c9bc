// Package metatile implements DEM-to-metatile synthesis: sampling a DEM
// at super-tile resolution, computing per-tile geometry extents, height
// range, surrogate height, texel size, and child validity — component D
// of the map-tile proxy core. Grounded on
// original_source/mapproxy/src/mapproxy/generator/metatile.cpp.
package metatile

import "github.com/GrainArc/vtsproxy/tileindex"

// metatileSamplesPerTileBinLog and the derived sample count are fixed by
// spec.md §4.3: "M is fixed — changing it alters produced data." Do not
// change without also invalidating every previously served metatile.
const (
	metatileSamplesPerTileBinLog = 3
	samplesPerTile               = 1 << metatileSamplesPerTileBinLog // M = 8
)

// Flags mirrors the tile-index content bits plus the four per-quadrant
// child-validity bits a metanode carries.
type Flags uint16

const (
	FlagGeometryPresent Flags = 1 << iota
	FlagNavtilePresent
	FlagAllChildren
	flagChild0
	flagChild1
	flagChild2
	flagChild3
)

func childFlag(quadrant int) Flags { return flagChild0 << uint(quadrant) }

func (f Flags) ChildValid(quadrant int) bool { return f&childFlag(quadrant) != 0 }

func (f Flags) withChild(quadrant int, valid bool) Flags {
	if valid {
		return f | childFlag(quadrant)
	}
	return f &^ childFlag(quadrant)
}

// Box3 is an axis-aligned 3D extent, used for the metanode's physical-
// space extents.
type Box3 struct {
	MinX, MinY, MinZ float64
	MaxX, MaxY, MaxZ float64
}

var emptyBox3 = Box3{MinX: 1, MaxX: 0, MinY: 1, MaxY: 0, MinZ: 1, MaxZ: 0}

func (b Box3) empty() bool { return b.MinX > b.MaxX }

func (b Box3) expand(x, y, z float64) Box3 {
	if b.empty() {
		return Box3{x, y, z, x, y, z}
	}
	if x < b.MinX {
		b.MinX = x
	}
	if x > b.MaxX {
		b.MaxX = x
	}
	if y < b.MinY {
		b.MinY = y
	}
	if y > b.MaxY {
		b.MaxY = y
	}
	if z < b.MinZ {
		b.MinZ = z
	}
	if z > b.MaxZ {
		b.MaxZ = z
	}
	return b
}

// Range is an inclusive [Min, Max] scalar range that tracks emptiness
// explicitly, matching vts::Range<double>::emptyRange() semantics rather
// than relying on a sentinel value.
type Range struct {
	Min, Max float64
	set      bool
}

func (r Range) Empty() bool { return !r.set }

func (r Range) expand(v float64) Range {
	if !r.set {
		return Range{Min: v, Max: v, set: true}
	}
	if v < r.Min {
		r.Min = v
	}
	if v > r.Max {
		r.Max = v
	}
	return r
}

// GeomExtents is the geom-space (SDS geodetic) extent plus the average
// surrogate height accumulated over the tile's contributing samples.
type GeomExtents struct {
	Height    Range
	Surrogate float64
}

// Metanode is the per-tile metadata stored in a Metatile, matching
// spec.md §3's field list exactly.
type Metanode struct {
	Flags          Flags
	Extents        Box3   // 3D extents in physical space
	HeightRange    Range  // navigation-frame height range
	GeomExtents    GeomExtents
	TexelSize      float64
	DisplaySize    int // 0 means "use TexelSize instead"
	Credits        []string
}

func newMetanode() Metanode {
	return Metanode{Extents: emptyBox3}
}

// Metatile is a fixed-size block of metanodes, one per tile-id in the
// block, keyed by tile-id for direct lookup.
type Metatile struct {
	Origin tileindex.TileID // top-left tile of the block
	Order  int              // metaBinaryOrder; block edge = 2^Order tiles
	Nodes  map[tileindex.TileID]Metanode
}

func (m *Metatile) blockSize() int { return 1 << uint(m.Order) }

// Get returns the metanode for t, and whether it exists.
func (m *Metatile) Get(t tileindex.TileID) (Metanode, bool) {
	n, ok := m.Nodes[t]
	return n, ok
}
