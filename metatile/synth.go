package metatile

import (
	"context"
	"math"

	"github.com/paulmach/orb"

	"github.com/GrainArc/vtsproxy/arsenal"
	"github.com/GrainArc/vtsproxy/gdaldriver"
	"github.com/GrainArc/vtsproxy/reframe"
	"github.com/GrainArc/vtsproxy/sink"
	"github.com/GrainArc/vtsproxy/tileindex"
)

// Mask restricts which tiles are eligible for content, layering on top
// of the tile index — spec.md §4.3's optional "mask tree".
type Mask interface {
	Valid(t tileindex.TileID) bool
}

// ConvertorSet is the three coordinate converters spec.md §4.3 step 4
// needs per block: physical space (for 3D extents), navigation space
// (for height range), and SDS-geodetic space (for geom extents and
// surrogate height). All three are external collaborators (spec.md §1).
type ConvertorSet struct {
	Physical reframe.Convertor
	Nav      reframe.Convertor
	Geodetic reframe.Convertor
}

// ConvertorFactory builds the ConvertorSet appropriate for a given
// reference-frame node's SRS.
type ConvertorFactory func(nodeSRS string) ConvertorSet

// Params configures a single Synthesize call.
type Params struct {
	Origin      tileindex.TileID // top-left tile of the metatile block
	Order       int              // metaBinaryOrder
	DemDataset  string
	GeoidGrid   string
	Mask        Mask // nil means unrestricted
	DisplaySize *int // override; nil means compute TexelSize instead
	Index       *tileindex.Index
	RF          *reframe.ReferenceFrame
	Convertors  ConvertorFactory
	Credits     []string
}

// blockKey groups tiles that share both an owning node and a local LOD,
// since NodeTileExtents needs a single localLod for the whole block.
type blockKey struct {
	node     *reframe.Node
	localLOD int
}

type block struct {
	key   blockKey
	tiles []tileindex.TileID
	local map[tileindex.TileID][2]int // tile -> (localX, localY)
}

// Synthesize builds the metatile covering the Order-sized block of tiles
// rooted at Origin, per spec.md §4.3.
func Synthesize(ctx context.Context, s sink.Sink, warper *arsenal.Warper, p Params) (*Metatile, error) {
	blocks := decompose(p)
	if len(blocks) == 0 {
		return nil, sink.New(sink.KindNotFound, "metatile completely outside of configured range")
	}

	mt := &Metatile{Origin: p.Origin, Order: p.Order, Nodes: make(map[tileindex.TileID]Metanode)}

	for _, b := range blocks {
		if s.CheckAborted() {
			return nil, sink.New(sink.KindAborted, "metatile synthesis aborted")
		}

		if b.key.node == nil || !b.key.node.Productive {
			generateUnproductive(mt, p, b)
			continue
		}

		if err := synthesizeBlock(ctx, warper, mt, p, b); err != nil {
			return nil, err
		}
	}

	return mt, nil
}

func decompose(p Params) []block {
	size := 1 << uint(p.Order)
	groups := map[blockKey]*block{}
	var order []blockKey

	for dy := 0; dy < size; dy++ {
		for dx := 0; dx < size; dx++ {
			t := tileindex.TileID{LOD: p.Origin.LOD, X: p.Origin.X + dx, Y: p.Origin.Y + dy}
			node, localLOD, lx, ly := p.RF.ResolveLocal(t.LOD, t.X, t.Y)
			k := blockKey{node: node, localLOD: localLOD}
			b, ok := groups[k]
			if !ok {
				b = &block{key: k, local: map[tileindex.TileID][2]int{}}
				groups[k] = b
				order = append(order, k)
			}
			b.tiles = append(b.tiles, t)
			b.local[t] = [2]int{lx, ly}
		}
	}

	out := make([]block, 0, len(order))
	for _, k := range order {
		out = append(out, *groups[k])
	}
	return out
}

func maskAllows(p Params, t tileindex.TileID) bool {
	return p.Mask == nil || p.Mask.Valid(t)
}

func setChildren(p Params, t tileindex.TileID) Flags {
	var f Flags
	f |= FlagAllChildren
	for q := 0; q < 4; q++ {
		dx, dy := q%2, q/2
		child := t.Child(dx, dy)
		valid := p.Index.ValidSubtree(child) && p.RF.Contains(child.LOD, child.X, child.Y)
		f = f.withChild(q, valid)
	}
	return f
}

func generateUnproductive(mt *Metatile, p Params, b block) {
	for _, t := range b.tiles {
		node := newMetanode()
		flags := ti2metaFlags(p.Index.Flags(t)) | setChildren(p, t)
		node.Flags = flags
		mt.Nodes[t] = node
	}
}

func ti2metaFlags(f tileindex.Flag) Flags {
	var out Flags
	if f&tileindex.FlagMesh != 0 {
		out |= FlagGeometryPresent
	}
	if f&tileindex.FlagNavtile != 0 {
		out |= FlagNavtilePresent
	}
	return out
}

// synthesizeBlock runs steps 1-9 of spec.md §4.3 for one block sharing a
// common productive reference-frame node ancestor.
func synthesizeBlock(ctx context.Context, warper *arsenal.Warper, mt *Metatile, p Params, b block) error {
	minX, minY, maxX, maxY := b.tiles[0].X, b.tiles[0].Y, b.tiles[0].X, b.tiles[0].Y
	for _, t := range b.tiles {
		if t.X < minX {
			minX = t.X
		}
		if t.X > maxX {
			maxX = t.X
		}
		if t.Y < minY {
			minY = t.Y
		}
		if t.Y > maxY {
			maxY = t.Y
		}
	}
	bWidth := maxX - minX + 1
	bHeight := maxY - minY + 1

	localMinX, localMinY := b.local[b.tiles[0]][0], b.local[b.tiles[0]][1]
	for _, t := range b.tiles {
		lx, ly := b.local[t][0], b.local[t][1]
		if lx < localMinX {
			localMinX = lx
		}
		if ly < localMinY {
			localMinY = ly
		}
	}

	topLeft := p.RF.NodeTileExtents(b.key.node, b.key.localLOD, localMinX, localMinY)
	bottomRight := p.RF.NodeTileExtents(b.key.node, b.key.localLOD, localMinX+bWidth-1, localMinY+bHeight-1)
	extents := reframe.Extents{
		MinX: topLeft.MinX, MaxX: bottomRight.MaxX,
		MinY: bottomRight.MinY, MaxY: topLeft.MaxY,
	}

	gridW := bWidth*samplesPerTile + 1
	gridH := bHeight*samplesPerTile + 1

	raster, err := warper.Warp(ctx, gdaldriver.WarpRequest{
		DatasetPath: p.DemDataset,
		SRS:         b.key.node.SRS,
		MinX:        extents.MinX, MinY: extents.MinY, MaxX: extents.MaxX, MaxY: extents.MaxY,
		Width: gridW, Height: gridH,
		Resampling: gdaldriver.ResamplingValueMinMax,
	})
	if err != nil {
		return err
	}
	samples := imputeGrid(raster)

	conv := p.Convertors(b.key.node.SRS)
	tileArea := extents.Width() / float64(bWidth) * (extents.Height() / float64(bHeight))

	for _, t := range b.tiles {
		lx, ly := b.local[t][0]-localMinX, b.local[t][1]-localMinY
		accumulateTile(mt, p, t, samples, raster.Width, lx, ly, extents, conv, tileArea)
	}
	return nil
}

// gridPoint is one accumulated (physical, nav-height, geom) triple for a
// single grid corner, or invalid if its source sample was invalid.
type gridPoint struct {
	valid           bool
	physical        [3]float64
	navHeight       float64
	geomHeight      float64
	surrogateHeight float64
}

func toGridPoint(x, y float64, s gdaldriver.Sample, conv ConvertorSet) gridPoint {
	if !validSample(s.Avg) {
		return gridPoint{}
	}
	px, py, pz, ok := conv.Physical.Convert(x, y, s.Avg)
	if !ok {
		return gridPoint{}
	}
	_, _, navH, ok := conv.Nav.Convert(x, y, s.Avg)
	if !ok {
		return gridPoint{}
	}
	_, _, geomH, ok := conv.Geodetic.Convert(x, y, s.Avg)
	if !ok {
		return gridPoint{}
	}
	return gridPoint{
		valid: true, physical: [3]float64{px, py, pz},
		navHeight: navH, geomHeight: geomH, surrogateHeight: geomH,
	}
}

// accumulateTile runs step 5 of spec.md §4.3 for a single tile: iterate
// its (M+1)^2 corner samples and fold them into extents/height/geom/area.
func accumulateTile(mt *Metatile, p Params, t tileindex.TileID, samples []gdaldriver.Sample, gridWidth int, lx, ly int, extents reframe.Extents, conv ConvertorSet, tileArea float64) {
	node := newMetanode()
	stepX := extents.Width() / float64(gridWidth-1)
	gh := len(samples) / gridWidth
	stepY := extents.Height() / float64(gh-1)

	base := lx * samplesPerTile
	baseY := ly * samplesPerTile

	var geomExt Range
	var surrogateSum float64
	var surrogateCount int
	var triangleCount int
	var area float64

	points := make([][]gridPoint, samplesPerTile+1)
	for j := 0; j <= samplesPerTile; j++ {
		points[j] = make([]gridPoint, samplesPerTile+1)
		for i := 0; i <= samplesPerTile; i++ {
			col := base + i
			row := baseY + j
			x := extents.MinX + float64(col)*stepX
			y := extents.MaxY - float64(row)*stepY
			s := samples[row*gridWidth+col]
			gp := toGridPoint(x, y, s, conv)
			points[j][i] = gp

			if gp.valid {
				node.Extents = node.Extents.expand(gp.physical[0], gp.physical[1], s.Min).expand(gp.physical[0], gp.physical[1], s.Max)
				node.HeightRange = node.HeightRange.expand(gp.navHeight)
				geomExt = geomExt.expand(gp.geomHeight)
				surrogateSum += gp.surrogateHeight
				surrogateCount++
			}
		}
	}

	for j := 0; j < samplesPerTile; j++ {
		for i := 0; i < samplesPerTile; i++ {
			a := points[j][i]
			b := points[j][i+1]
			c := points[j+1][i+1]
			d := points[j+1][i]
			pa := orb.Point{a.physical[0], a.physical[1]}
			pb := orb.Point{b.physical[0], b.physical[1]}
			pc := orb.Point{c.physical[0], c.physical[1]}
			pd := orb.Point{d.physical[0], d.physical[1]}
			qa, tris := quadArea(pa, pb, pc, pd, a.valid, b.valid, c.valid, d.valid)
			area += qa
			triangleCount += tris
		}
	}

	flags := ti2metaFlags(p.Index.Flags(t)) | setChildren(p, t)

	if triangleCount == 0 || !maskAllows(p, t) {
		flags &^= FlagGeometryPresent
		flags &^= FlagNavtilePresent
		node.HeightRange = Range{}
		node.GeomExtents = GeomExtents{}
	} else {
		node.GeomExtents = GeomExtents{Height: geomExt, Surrogate: surrogateSum / float64(surrogateCount)}
		if p.DisplaySize != nil {
			node.DisplaySize = *p.DisplaySize
		} else {
			textureArea := float64(triangleCount) * tileArea / (2 * samplesPerTile * samplesPerTile)
			if textureArea > 0 {
				node.TexelSize = sqrtSafe(area / textureArea)
			}
		}
		node.Credits = p.Credits
	}
	node.Flags = flags

	mt.Nodes[t] = node
}

func sqrtSafe(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Sqrt(v)
}
