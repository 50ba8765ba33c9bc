package resource

// LODRange is an inclusive [Min, Max] level-of-detail range.
type LODRange struct {
	Min, Max int
}

func (r LODRange) Empty() bool { return r.Min > r.Max }

// TileRange is an inclusive tile-coordinate rectangle at a single LOD.
type TileRange struct {
	MinX, MinY, MaxX, MaxY int
}

func (r TileRange) Empty() bool { return r.MinX > r.MaxX || r.MinY > r.MaxY }

func (r TileRange) Contains(x, y int) bool {
	return x >= r.MinX && x <= r.MaxX && y >= r.MinY && y <= r.MaxY
}

// Generator names the factory (type) and driver used to build a
// Generator for a Resource.
type Generator struct {
	Type   GeneratorType
	Driver string
}

// Resource is the full, driver-agnostic description of a served dataset:
// identity, generator selection, definition, revision, coverage and file
// class policy.
type Resource struct {
	ID          ID
	Generator   Generator
	Definition  Definition
	Revision    int
	LODRange    LODRange
	TileRange   TileRange
	Credits     []string
	FileClasses FileClassSettings
}

// Changed classifies r against other, which must share r.ID and
// r.Generator.Type. Identity and generator/type mismatches are always
// ChangedYes since no revision bump can reconcile them.
func (r Resource) Changed(other Resource) Changed {
	if r.ID != other.ID {
		return ChangedYes
	}
	if r.Generator != other.Generator {
		return ChangedYes
	}
	if r.Definition == nil || other.Definition == nil {
		if r.Definition == other.Definition {
			return ChangedNo
		}
		return ChangedYes
	}
	c := r.Definition.Changed(other.Definition)
	c = maxChanged(c, fileClassChanged(r.FileClasses, other.FileClasses))
	c = maxChanged(c, creditsChanged(r.Credits, other.Credits))
	return c
}

// fileClassChanged and creditsChanged are always "safely" changes: they
// affect served headers and attribution text, never geometry, so they can
// never force a revision bump or a freeze rejection on their own.
func fileClassChanged(a, b FileClassSettings) Changed {
	if len(a.CacheMaxAge) != len(b.CacheMaxAge) {
		return ChangedSafely
	}
	for k, v := range a.CacheMaxAge {
		if b.CacheMaxAge[k] != v {
			return ChangedSafely
		}
	}
	return ChangedNo
}

func creditsChanged(a, b []string) Changed {
	if len(a) != len(b) {
		return ChangedSafely
	}
	for i := range a {
		if a[i] != b[i] {
			return ChangedSafely
		}
	}
	return ChangedNo
}

// Map is the resource set as returned by a ResourceBackend, keyed by ID
// for the registry's merge-walk against the current serving set.
type Map map[ID]Resource
