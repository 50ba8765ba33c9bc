package resource

import "encoding/json"

// GeneratorTMSRaster is the generator type for a remote raster passthrough
// resource, the Go-native sibling of mapproxy's tms-raster-patchwork
// generator (see original_source/mapproxy/src/mapproxy/generator/
// tms-raster-patchwork.hpp) — supplements the distilled spec with a
// non-DEM generator so Changed's WithRevisionBump case has a natural
// home: re-pointing at a mirror of the same upstream is content-equivalent
// but must still invalidate any cached tiles.
const GeneratorTMSRaster GeneratorType = "tms-raster"

func init() {
	RegisterDefinition(GeneratorTMSRaster, func() Definition { return &TMSDefinition{} })
}

type TMSDefinition struct {
	URLTemplate string `json:"urlTemplate"`
	Format      string `json:"format"`
	// MirrorOf, when non-empty, names the upstream content URLTemplate
	// mirrors; switching URLTemplate between two definitions with the
	// same non-empty MirrorOf is a WithRevisionBump change, not Yes.
	MirrorOf string `json:"mirrorOf,omitempty"`
}

func (d *TMSDefinition) Type() GeneratorType { return GeneratorTMSRaster }

func (d *TMSDefinition) Clone() Definition {
	cp := *d
	return &cp
}

func (d *TMSDefinition) MarshalJSON() ([]byte, error) {
	type alias TMSDefinition
	return json.Marshal((*alias)(d))
}

func (d *TMSDefinition) Changed(otherDef Definition) Changed {
	other, ok := otherDef.(*TMSDefinition)
	if !ok {
		return ChangedYes
	}
	if d.Format != other.Format {
		return ChangedYes
	}
	if d.URLTemplate == other.URLTemplate {
		return ChangedNo
	}
	if d.MirrorOf != "" && d.MirrorOf == other.MirrorOf {
		// Same upstream content served from a different mirror: cached
		// tiles are still valid bytes, but their URL provenance changed,
		// so bump the revision to bust any downstream cache keyed on it.
		return ChangedWithRevisionBump
	}
	return ChangedYes
}
