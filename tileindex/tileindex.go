// Package tileindex implements the compact on-disk tile-flag index of
// spec.md §3: a mapping from tile-id to a small bitset of content flags,
// supporting point queries and validSubtree(). Grounded on
// eak1mov-go-libtiles' tile.ID and tileindex/index binary-record layout;
// tile-ids are additionally encoded to a single sortable key with
// github.com/google/hilbert (as in eak1mov's pm/spec/tileid.go) to keep
// entries compact and sorted for point lookups, though validSubtree()
// still falls back to a coordinate-containment scan (see below) since a
// Hilbert key does not preserve parent/descendant ranges across quadrants.
package tileindex

import (
	"bytes"
	"encoding/binary"
	"io"
	"math/bits"
	"sort"

	"github.com/google/hilbert"
)

// Flag is a single bit of per-tile content metadata.
type Flag uint8

const (
	FlagMesh Flag = 1 << iota
	FlagNavtile
	FlagWatertight
	FlagReal
)

// TileID identifies a tile in the XYZ scheme, mirroring
// eak1mov-go-libtiles/tile.ID but under this package's own name since it
// carries reference-frame semantics the generic tile package doesn't.
type TileID struct {
	LOD  int
	X, Y int
}

// Child returns the (dx, dy) child of t at the next LOD, dx/dy in {0,1}.
func (t TileID) Child(dx, dy int) TileID {
	return TileID{LOD: t.LOD + 1, X: 2*t.X + dx, Y: 2*t.Y + dy}
}

// key encodes t as a single uint64 using a Hilbert curve over the LOD's
// 2^LOD square, offset by the count of tiles at all shallower LODs — the
// same scheme as eak1mov's EncodeTileID. It keeps entries compact and
// sorted for point lookups; it does not make validSubtree a range scan,
// since a Hilbert key does not preserve parent/descendant ranges across
// quadrants (see ValidSubtree below).
func key(t TileID) uint64 {
	side := 1 << uint(t.LOD)
	h, err := hilbert.NewHilbert(side)
	if err != nil {
		// side is always a power of two >= 1, NewHilbert only rejects
		// non-power-of-two sizes.
		panic(err)
	}
	code, _ := h.MapInverse(t.X, t.Y)
	tilesBelow := (uint64(1)<<uint(2*t.LOD) - 1) / 3
	return tilesBelow + uint64(code)
}

// decodeKey is key's inverse, used only by tests to assert the encoding
// round-trips.
func decodeKey(k uint64) TileID {
	lod := (bits.Len64(3*k+1) - 1) / 2
	tilesBelow := (uint64(1)<<uint(2*lod) - 1) / 3
	h, _ := hilbert.NewHilbert(1 << uint(lod))
	x, y, _ := h.Map(int(k - tilesBelow))
	return TileID{LOD: lod, X: x, Y: y}
}

// entry is one record of the sorted index.
type entry struct {
	key   uint64
	flags Flag
}

// Index is an immutable, sorted, in-memory tile-flag index. Read builds
// one from serialized records; it is safe for concurrent read-only use
// after construction, matching spec.md §3's "loaded at preparation,
// immutable thereafter".
type Index struct {
	entries []entry
}

// Builder accumulates (tile, flags) pairs before Build() sorts them into
// an Index. Used by the tileindex and metatile tests to construct an
// index in memory without a round trip through the wire format.
type Builder struct {
	entries []entry
}

func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) Set(t TileID, flags Flag) {
	b.entries = append(b.entries, entry{key: key(t), flags: flags})
}

func (b *Builder) Build() *Index {
	sort.Slice(b.entries, func(i, j int) bool { return b.entries[i].key < b.entries[j].key })
	return &Index{entries: b.entries}
}

// record is the on-disk record shape, binary-encoded exactly like
// eak1mov-go-libtiles' tileindex.IndexItem.
type record struct {
	Key   uint64
	Flags uint8
	Pad   [7]byte
}

// Write serializes the index in LOD-then-Hilbert-key order.
func (idx *Index) Write(w io.Writer) error {
	recs := make([]record, len(idx.entries))
	for i, e := range idx.entries {
		recs[i] = record{Key: e.key, Flags: uint8(e.flags)}
	}
	return binary.Write(w, binary.LittleEndian, recs)
}

// Read deserializes an index previously written by Write.
func Read(data []byte) (*Index, error) {
	count := len(data) / binary.Size(record{})
	recs := make([]record, count)
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, recs); err != nil {
		return nil, err
	}
	entries := make([]entry, count)
	for i, r := range recs {
		entries[i] = entry{key: r.Key, flags: Flag(r.Flags)}
	}
	return &Index{entries: entries}, nil
}

// find returns the position of t's key, or the insertion point and false.
func (idx *Index) find(t TileID) (int, bool) {
	k := key(t)
	i := sort.Search(len(idx.entries), func(i int) bool { return idx.entries[i].key >= k })
	if i < len(idx.entries) && idx.entries[i].key == k {
		return i, true
	}
	return i, false
}

// Flags returns the flags stored for t, or 0 if t has no entry.
func (idx *Index) Flags(t TileID) Flag {
	if i, ok := idx.find(t); ok {
		return idx.entries[i].flags
	}
	return 0
}

// Has reports whether t itself carries any content flag.
func (idx *Index) Has(t TileID) bool {
	return idx.Flags(t) != 0
}

// ValidSubtree reports whether t or any descendant of t produces content.
// Entries are keyed by Hilbert code, which does not preserve a
// parent/descendant range relationship across quadrants, so this scans
// the (typically small, per-metatile-block) entry set decoding each key
// back to a TileID and testing coordinate containment, rather than
// pretending a single sorted-key range would do it.
func (idx *Index) ValidSubtree(t TileID) bool {
	if idx.Has(t) {
		return true
	}
	for _, e := range idx.entries {
		if e.flags == 0 {
			continue
		}
		other := decodeKey(e.key)
		if isDescendant(t, other) {
			return true
		}
	}
	return false
}

// isDescendant reports whether other lies within ancestor's tile subtree.
func isDescendant(ancestor, other TileID) bool {
	if other.LOD <= ancestor.LOD {
		return false
	}
	shift := uint(other.LOD - ancestor.LOD)
	return other.X>>shift == ancestor.X && other.Y>>shift == ancestor.Y
}
