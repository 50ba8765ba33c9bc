// Package reframe models the reference frame: a tree of SDS-srs-bounded
// nodes rooted at a single node per reference frame, and the tile-id ->
// owning-node resolution walk. Coordinate conversion between a node's SRS
// and geographic/mercator space is grounded on the teacher's pgmvt
// package (epsg4326to3857.go, xyz2lonlat.go, BoundsExtractor.go); the
// general "convert between two named SRS" contract a real GDAL/PROJ
// binding would provide is exposed as the Convertor interface, an
// external collaborator per spec.md §1.
package reframe

import "github.com/paulmach/orb"

// Extents is an axis-aligned bounding box in some SRS.
type Extents struct {
	MinX, MinY, MaxX, MaxY float64
}

func (e Extents) Empty() bool { return e.MinX > e.MaxX || e.MinY > e.MaxY }

func (e Extents) Width() float64  { return e.MaxX - e.MinX }
func (e Extents) Height() float64 { return e.MaxY - e.MinY }

func (e Extents) Contains(x, y float64) bool {
	return x >= e.MinX && x <= e.MaxX && y >= e.MinY && y <= e.MaxY
}

func (e Extents) Expand(x, y float64) Extents {
	if e.Empty() {
		return Extents{MinX: x, MaxX: x, MinY: y, MaxY: y}
	}
	if x < e.MinX {
		e.MinX = x
	}
	if x > e.MaxX {
		e.MaxX = x
	}
	if y < e.MinY {
		e.MinY = y
	}
	if y > e.MaxY {
		e.MaxY = y
	}
	return e
}

// Bound converts Extents to an orb.Bound for use with orb's planar
// geometry helpers (quad area, corner iteration).
func (e Extents) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{e.MinX, e.MinY}, Max: orb.Point{e.MaxX, e.MaxY}}
}

// EmptyExtents is the identity element for Expand.
var EmptyExtents = Extents{MinX: 1, MaxX: 0, MinY: 1, MaxY: 0}

// Node is one node of the reference-frame tree: a local SRS-bounded
// region with a validity flag and (for interior nodes) children indexed
// by quadrant.
type Node struct {
	SRS        string
	Extents    Extents
	Productive bool
	Valid      bool
	Children   [4]*Node // nil for a leaf; index = 2*dy+dx, matching TileID child ordering
}

// ReferenceFrame is the tree of Nodes rooted at Root, plus the tile edge
// length shared by every node (see TileSize).
type ReferenceFrame struct {
	ID           string
	Root         *Node
	NavigationSRS string
	// TileSize is the SDS-space edge length of a single tile at the
	// node's local LOD 0.
	TileSize float64
}

// ResolveNode walks the tree from Root to find the node owning tile
// (lod, x, y) in global tile coordinates, matching spec.md §3's
// "resolved by walking the tree from root".
func (rf *ReferenceFrame) ResolveNode(lod, x, y int) *Node {
	n, _, _, _ := rf.ResolveLocal(lod, x, y)
	return n
}

// ResolveLocal is ResolveNode plus the tile-id (localLod, localX, localY)
// expressed in the owning node's own coordinate space, where the node's
// Extents is by convention the extents of that node's own LOD-0 tile.
// Every tile-extent computation (metatile block SRS extents, calipers
// tile-range derivation) needs these local coordinates, not the global
// ones the front-end parsed off the URL.
func (rf *ReferenceFrame) ResolveLocal(lod, x, y int) (n *Node, localLod, localX, localY int) {
	n = rf.Root
	depth := 0
	cx, cy := x, y
	for n != nil && depth < lod {
		if n.Children == [4]*Node{} {
			break
		}
		half := 1 << uint(lod-depth-1)
		qx, qy := 0, 0
		if cx >= half {
			qx = 1
			cx -= half
		}
		if cy >= half {
			qy = 1
			cy -= half
		}
		child := n.Children[2*qy+qx]
		if child == nil {
			return n, lod - depth, cx + qx*half, cy + qy*half
		}
		n = child
		depth++
	}
	return n, lod - depth, cx, cy
}

// NodeTileExtents returns the SRS extents of tile (localLod, localX,
// localY) expressed in n's own coordinate space (see ResolveLocal), where
// n.Extents is the extents of n's LOD-0 tile.
func (rf *ReferenceFrame) NodeTileExtents(n *Node, localLod, localX, localY int) Extents {
	count := float64(int(1) << uint(localLod))
	w := n.Extents.Width() / count
	h := n.Extents.Height() / count
	minX := n.Extents.MinX + float64(localX)*w
	// Tile Y grows downward (north-to-south) by the usual XYZ convention,
	// so localY=0 is the northernmost row.
	maxY := n.Extents.MaxY - float64(localY)*h
	return Extents{MinX: minX, MinY: maxY - h, MaxX: minX + w, MaxY: maxY}
}

// Contains reports whether (lod, x, y) falls within any valid node's
// declared coverage — the "R contains t" predicate used by metatile's
// child-validity invariant.
func (rf *ReferenceFrame) Contains(lod, x, y int) bool {
	n := rf.ResolveNode(lod, x, y)
	return n != nil && n.Valid
}
