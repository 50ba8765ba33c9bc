package calipers

import (
	"context"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/GrainArc/vtsproxy/reframe"
	"github.com/GrainArc/vtsproxy/resource"
)

// tileSizePixels and tileAreaPixels are the viewer's standard bound-layer
// tile dimensions in pixels — a fixed convention, not derived from any
// dataset or reference frame, matching vr::BoundLayer::tileSize() in the
// original tool.
const tileSizePixels = 256.0

var tileAreaPixels = tileSizePixels * tileSizePixels

// gridSteps is the number of cells (256x256 points) sampled per node,
// matching the original's steps(255, 255).
const gridSteps = 255

// maxRefineDepth bounds divideBorderBlock's recursion regardless of
// sourceBlockLimit. tileFractionLimit -> infinity drives sourceBlockLimit
// toward zero, which would otherwise make the stop condition
// (span < limit) unreachable and recurse to floating-point noise; this
// cap is the practical backstop for that case.
const maxRefineDepth = 16

// ConvertorFactory returns the Convertor a node needs to project a
// dataset's geographic (lon/lat) coordinates into that node's own SRS.
type ConvertorFactory func(nodeSRS string) reframe.Convertor

// Params configures a Measure run, mirroring the original tool's CLI
// flags.
type Params struct {
	// ForcedType overrides DetectDatasetType when non-empty.
	ForcedType DatasetType

	// DemToOphotoScale is the invGsdScale applied to DEM datasets:
	// how many source (DEM) pixels a viewer tile edge should span
	// relative to an ophoto of the same GSD, since elevation data
	// tolerates coarser tiling than imagery.
	DemToOphotoScale float64

	// TileFractionLimit bounds border refinement: recursion stops once
	// a sub-block's source-pixel span drops below
	// tileSizePixels / (invGsdScale * TileFractionLimit).
	TileFractionLimit float64
}

// DefaultParams matches the original tool's default flag values.
func DefaultParams() Params {
	return Params{DemToOphotoScale: 3.0, TileFractionLimit: 32.0}
}

// NodeResult is one reference-frame node's coverage of a dataset: the
// global LOD range it spans, and — for every LOD in that range — the
// tile range at that LOD. The original tool computes a single tile
// range at the finest LOD and derives every coarser one by halving
// coordinates, since the tree is a strict quadtree.
type NodeResult struct {
	SRS       string
	LODRange  resource.LODRange
	TileRange map[int]resource.TileRange
}

// Result is the output of a Measure run.
type Result struct {
	GSD   float64
	Nodes []NodeResult
}

// Measure runs the full calipers algorithm: detect the dataset type (or
// honor params.ForcedType), compute its GSD, then evaluate every node
// in rf's tree independently and in parallel (mirroring the original's
// OpenMP parallel-for — each node reads only its own inputs and writes
// only its own result slot).
func Measure(ds Dataset, params Params, rf *reframe.ReferenceFrame, convFor ConvertorFactory) (Result, error) {
	dtype := params.ForcedType
	if dtype == "" {
		t, err := DetectDatasetType(ds.BandCount, ds.DataType)
		if err != nil {
			return Result{}, err
		}
		dtype = t
	}

	invGsdScale := 1.0
	if dtype == DatasetDEM {
		invGsdScale = params.DemToOphotoScale
		if invGsdScale <= 0 {
			invGsdScale = 1.0
		}
	}

	fractionLimit := params.TileFractionLimit
	if fractionLimit <= 0 {
		fractionLimit = DefaultParams().TileFractionLimit
	}

	nodes := collectNodes(rf.Root, 0)
	results := make([]*NodeResult, len(nodes))

	// Bounded to GOMAXPROCS, mirroring the original tool's OpenMP
	// parallel-for over nodes — each node reads only its own inputs and
	// writes only its own results[i] slot, so no lock is needed between
	// goroutines beyond the semaphore's own admission control.
	sem := semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0)))
	ctx := context.Background()

	var g errgroup.Group
	for i, n := range nodes {
		i, n := i, n
		if err := sem.Acquire(ctx, 1); err != nil {
			return Result{}, err
		}
		g.Go(func() error {
			defer sem.Release(1)
			m := &nodeMeasurer{
				ds:                ds,
				node:              n.node,
				globalLOD:         n.depth,
				conv:              convFor(n.node.SRS),
				invGsdScale:       invGsdScale,
				tileFractionLimit: fractionLimit,
				localExtents:      reframe.EmptyExtents,
			}
			if !m.sample() {
				return nil
			}
			m.refine()
			m.computeMinLOD()
			results[i] = m.result()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	out := Result{GSD: ComputeGSD(ds)}
	for _, r := range results {
		if r != nil {
			out.Nodes = append(out.Nodes, *r)
		}
	}
	return out, nil
}

type namedNode struct {
	node  *reframe.Node
	depth int
}

// collectNodes walks the whole reference-frame tree; every node (not
// just leaves) is a candidate measurement target, since any node may
// be the finest one whose SRS actually covers the dataset.
func collectNodes(n *reframe.Node, depth int) []namedNode {
	if n == nil {
		return nil
	}
	out := []namedNode{{node: n, depth: depth}}
	for _, c := range n.Children {
		out = append(out, collectNodes(c, depth+1)...)
	}
	return out
}

type optPoint struct {
	x, y float64
	ok   bool
}

// nodeMeasurer holds one node's working state across sample/refine/
// computeMinLOD. Never shared across goroutines — Measure gives each
// node its own instance.
type nodeMeasurer struct {
	ds                Dataset
	node              *reframe.Node
	globalLOD         int
	conv              reframe.Convertor
	invGsdScale       float64
	tileFractionLimit float64

	valid     [][]bool
	projected [][]optPoint

	localExtents reframe.Extents
	localLOD     int
	lod          int
	minLOD       int
	tileRange    resource.TileRange

	sourceBlockLimitW, sourceBlockLimitH float64
	stepPxW, stepPxH                     float64
	stepLonW, stepLatH                   float64
}

// convert projects a geographic point into the node's SRS and checks
// it falls within the node's own extents, expanding localExtents on
// every success — matching Node::convert() in the original, which the
// C++ reuses for both the coarse grid scan and the pixel-corner probes
// inside sample(), so both contribute to the measured extents.
func (m *nodeMeasurer) convert(lon, lat float64) (optPoint, bool) {
	x, y, _, ok := m.conv.Convert(lon, lat, 0)
	if !ok || !m.node.Extents.Contains(x, y) {
		return optPoint{}, false
	}
	m.localExtents = m.localExtents.Expand(x, y)
	return optPoint{x: x, y: y, ok: true}, true
}

// sample scans a 256x256 grid over the dataset, finds the grid point
// closest to the dataset's center whose surrounding pixel converts
// cleanly, and derives the local LOD from that pixel's projected area.
// Returns false if no such point exists (dataset entirely outside the
// node, or entirely on its boundary) — a boundary case, not an error.
func (m *nodeMeasurer) sample() bool {
	paneW := m.node.Extents.Width()
	paneH := m.node.Extents.Height()

	dsLonSpan := m.ds.MaxLon - m.ds.MinLon
	dsLatSpan := m.ds.MaxLat - m.ds.MinLat
	cLon, cLat := m.ds.center()
	pxW, pxH := m.ds.pixelSize()
	hpxW, hpxH := pxW/2, pxH/2

	m.stepLonW = dsLonSpan / gridSteps
	m.stepLatH = dsLatSpan / gridSteps
	m.stepPxW = float64(m.ds.Width) / gridSteps
	m.stepPxH = float64(m.ds.Height) / gridSteps

	n := gridSteps + 1
	m.valid = make([][]bool, n)
	m.projected = make([][]optPoint, n)
	for j := 0; j < n; j++ {
		m.valid[j] = make([]bool, n)
		m.projected[j] = make([]optPoint, n)
	}

	haveBest := false
	bestLOD := 0.0
	bestDist := math.MaxFloat64

	y := m.ds.MinLat
	for j := 0; j < n; j++ {
		x := m.ds.MinLon
		for i := 0; i < n; i++ {
			if p, ok := m.convert(x, y); ok {
				m.valid[j][i] = true
				m.projected[j][i] = p

				c0, ok0 := m.convert(x-hpxW, y-hpxH)
				c1, ok1 := m.convert(x-hpxW, y+hpxH)
				c2, ok2 := m.convert(x+hpxW, y+hpxH)
				c3, ok3 := m.convert(x+hpxW, y-hpxH)
				if ok0 && ok1 && ok2 && ok3 {
					dist := math.Hypot(x-cLon, y-cLat)
					if dist < bestDist {
						pxArea := triangleArea2(c0.x, c0.y, c1.x, c1.y, c2.x, c2.y) +
							triangleArea2(c2.x, c2.y, c3.x, c3.y, c0.x, c0.y)
						if pxArea > 0 {
							tmp := (paneW * m.invGsdScale * m.invGsdScale) / (pxArea * tileAreaPixels)
							lod := 0.5 * math.Log2(tmp*paneH)
							if lod >= 0 {
								bestLOD = lod
								bestDist = dist
								haveBest = true
							}
						}
					}
				}
			}
			x += m.stepLonW
		}
		y += m.stepLatH
	}

	if !haveBest {
		return false
	}

	m.localLOD = int(math.Ceil(bestLOD))
	m.lod = m.globalLOD + m.localLOD

	m.sourceBlockLimitW = tileSizePixels / (m.invGsdScale * m.tileFractionLimit)
	m.sourceBlockLimitH = tileSizePixels / (m.invGsdScale * m.tileFractionLimit)
	return true
}

// refine walks the coarse grid's 2x2 cells; a cell with 1-3 (not 0 or
// 4) valid corners straddles the dataset's true boundary and gets
// recursively subdivided to pin down localExtents more precisely than
// the coarse grid alone would.
func (m *nodeMeasurer) refine() {
	n := gridSteps + 1
	for j := 0; j+1 < n; j++ {
		for i := 0; i+1 < n; i++ {
			c := [4]optPoint{
				m.cornerOf(j, i),
				m.cornerOf(j+1, i),
				m.cornerOf(j+1, i+1),
				m.cornerOf(j, i+1),
			}
			if !partial(c) {
				continue
			}
			minLon := m.ds.MinLon + float64(i)*m.stepLonW
			maxLon := minLon + m.stepLonW
			minLat := m.ds.MinLat + float64(j)*m.stepLatH
			maxLat := minLat + m.stepLatH
			m.divideBorderBlock(0, m.stepPxW, m.stepPxH, minLon, minLat, maxLon, maxLat, c)
		}
	}
}

func (m *nodeMeasurer) cornerOf(j, i int) optPoint {
	if m.valid[j][i] {
		return m.projected[j][i]
	}
	return optPoint{}
}

func partial(c [4]optPoint) bool {
	n := 0
	for _, p := range c {
		if p.ok {
			n++
		}
	}
	return n > 0 && n < 4
}

// divideBorderBlock recursively quarters a border block, converting the
// block center and four edge midpoints at each level and recursing only
// into sub-quadrants that are themselves partial — pinning down the
// dataset's true boundary inside the node without a full-resolution
// scan. Every successful convert() call along the way further expands
// localExtents via the shared convert() method.
func (m *nodeMeasurer) divideBorderBlock(depth int, pxW, pxH, minLon, minLat, maxLon, maxLat float64, c [4]optPoint) {
	if depth >= maxRefineDepth {
		return
	}
	if pxW < m.sourceBlockLimitW && pxH < m.sourceBlockLimitH {
		return
	}
	pxW /= 2
	pxH /= 2

	cLon, cLat := (minLon+maxLon)/2, (minLat+maxLat)/2

	center, _ := m.convert(cLon, cLat)
	left, _ := m.convert(minLon, cLat)
	right, _ := m.convert(maxLon, cLat)
	lower, _ := m.convert(cLon, minLat)
	upper, _ := m.convert(cLon, maxLat)

	if sub := [4]optPoint{c[0], left, center, lower}; partial(sub) {
		m.divideBorderBlock(depth+1, pxW, pxH, minLon, minLat, cLon, cLat, sub)
	}
	if sub := [4]optPoint{left, c[1], upper, center}; partial(sub) {
		m.divideBorderBlock(depth+1, pxW, pxH, minLon, cLat, cLon, maxLat, sub)
	}
	if sub := [4]optPoint{center, upper, c[2], right}; partial(sub) {
		m.divideBorderBlock(depth+1, pxW, pxH, cLon, cLat, maxLon, maxLat, sub)
	}
	if sub := [4]optPoint{lower, center, right, c[3]}; partial(sub) {
		m.divideBorderBlock(depth+1, pxW, pxH, cLon, minLat, maxLon, cLat, sub)
	}
}

// computeMinLOD derives the coarsest LOD at which the whole node's pane
// is still covered by at least one dataset tile, and the tile range at
// the fine (localLOD) end from localExtents' corners.
func (m *nodeMeasurer) computeMinLOD() {
	paneW := m.node.Extents.Width()
	paneH := m.node.Extents.Height()
	localW := m.localExtents.Width()
	localH := m.localExtents.Height()

	lodF := 0.0
	if localW > 0 && localH > 0 {
		lodF = 0.5 * math.Log2((paneW/localW)*(paneH/localH))
	}
	if lodF < 0 {
		lodF = 0
	}
	m.minLOD = m.globalLOD + int(math.Floor(lodF))

	tw, th := m.tileSizeAt(m.localLOD)
	origin := point2{m.node.Extents.MinX, m.node.Extents.MaxY}

	corners := []point2{
		{m.localExtents.MinX, m.localExtents.MinY},
		{m.localExtents.MinX, m.localExtents.MaxY},
		{m.localExtents.MaxX, m.localExtents.MaxY},
		{m.localExtents.MaxX, m.localExtents.MinY},
	}

	m.tileRange = resource.TileRange{}
	first := true
	for _, c := range corners {
		tx := int(math.Floor((c.x - origin.x) / tw))
		ty := int(math.Floor((origin.y - c.y) / th))
		if first {
			m.tileRange = resource.TileRange{MinX: tx, MinY: ty, MaxX: tx, MaxY: ty}
			first = false
			continue
		}
		if tx < m.tileRange.MinX {
			m.tileRange.MinX = tx
		}
		if tx > m.tileRange.MaxX {
			m.tileRange.MaxX = tx
		}
		if ty < m.tileRange.MinY {
			m.tileRange.MinY = ty
		}
		if ty > m.tileRange.MaxY {
			m.tileRange.MaxY = ty
		}
	}
}

type point2 struct{ x, y float64 }

func (m *nodeMeasurer) tileSizeAt(lod int) (w, h float64) {
	count := float64(int64(1) << uint(lod))
	return m.node.Extents.Width() / count, m.node.Extents.Height() / count
}

// result packages the fine-lod tile range plus every coarser one in
// [minLOD, lod], each derived from the next-finer one by halving
// coordinates — the strict-quadtree relationship between adjacent LODs.
func (m *nodeMeasurer) result() *NodeResult {
	ranges := map[int]resource.TileRange{m.lod: m.tileRange}
	cur := m.tileRange
	for l := m.lod - 1; l >= m.minLOD; l-- {
		cur = resource.TileRange{
			MinX: floorDiv2(cur.MinX),
			MinY: floorDiv2(cur.MinY),
			MaxX: floorDiv2(cur.MaxX),
			MaxY: floorDiv2(cur.MaxY),
		}
		ranges[l] = cur
	}
	return &NodeResult{
		SRS:       m.node.SRS,
		LODRange:  resource.LODRange{Min: m.minLOD, Max: m.lod},
		TileRange: ranges,
	}
}

func floorDiv2(v int) int {
	if v >= 0 {
		return v / 2
	}
	return -((-v + 1) / 2)
}
