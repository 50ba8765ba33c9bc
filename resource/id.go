// Package resource defines resource identity, the resource definition
// contract, and the Changed comparison taxonomy that the registry's
// freeze policy acts on — component A of the map-tile proxy core.
package resource

import "fmt"

// ID identifies a resource by the triple (reference-frame, group, id).
// It is comparable so it can be used directly as a map key, unlike the
// original's string-joined identifier.
type ID struct {
	ReferenceFrame string
	Group          string
	ID             string
}

func (r ID) String() string {
	return fmt.Sprintf("%s/%s/%s", r.ReferenceFrame, r.Group, r.ID)
}

// GeneratorType identifies a generator implementation, e.g. "surface-dem"
// or "tms-raster". It doubles as the driver name used to look up a
// registered factory.
type GeneratorType string

// FileClassSettings carries cache-control policy per served file kind.
type FileClassSettings struct {
	CacheMaxAge map[string]int // file-kind -> max-age seconds
}

func (f FileClassSettings) MaxAge(kind string) int {
	if f.CacheMaxAge == nil {
		return 0
	}
	return f.CacheMaxAge[kind]
}
