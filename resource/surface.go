package resource

import "encoding/json"

// GeneratorSurfaceDEM is the generator type for a DEM-backed surface
// resource — the primary consumer of metatile synthesis (component D).
const GeneratorSurfaceDEM GeneratorType = "surface-dem"

func init() {
	RegisterDefinition(GeneratorSurfaceDEM, func() Definition { return &SurfaceDefinition{} })
}

// SurfaceDefinition describes a DEM-backed 3D surface resource: the
// dataset, optional draped ophoto, geoid, and rendering knobs.
type SurfaceDefinition struct {
	Dem              string   `json:"dem"`
	Geoid            string   `json:"geoid,omitempty"`
	Ophoto           string   `json:"ophoto,omitempty"`
	Mask             string   `json:"mask,omitempty"`
	NominalTexelSize float64  `json:"nominalTexelSize"`
	Introspection    bool     `json:"introspection"`
	Credits          []string `json:"credits,omitempty"`
}

func (d *SurfaceDefinition) Type() GeneratorType { return GeneratorSurfaceDEM }

func (d *SurfaceDefinition) Clone() Definition {
	cp := *d
	cp.Credits = append([]string(nil), d.Credits...)
	return &cp
}

func (d *SurfaceDefinition) MarshalJSON() ([]byte, error) {
	type alias SurfaceDefinition
	return json.Marshal((*alias)(d))
}

// Changed compares two surface definitions per spec.md §8 scenario 3:
// a nominalTexelSize-only difference is cosmetic (safely); any change to
// the required datasets (dem, geoid, mask) or a new/removed ophoto is
// incompatible (yes); introspection and credits alone are cosmetic.
func (d *SurfaceDefinition) Changed(otherDef Definition) Changed {
	other, ok := otherDef.(*SurfaceDefinition)
	if !ok {
		return ChangedYes
	}

	if d.Dem != other.Dem || d.Geoid != other.Geoid || d.Mask != other.Mask {
		return ChangedYes
	}
	if d.Ophoto != other.Ophoto {
		return ChangedYes
	}

	result := ChangedNo
	if d.NominalTexelSize != other.NominalTexelSize {
		result = ChangedSafely
	}
	if d.Introspection != other.Introspection {
		result = ChangedSafely
	}
	if !stringSliceEqual(d.Credits, other.Credits) {
		result = ChangedSafely
	}
	return result
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
