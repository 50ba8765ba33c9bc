package registry

import (
	"context"
	"sync"

	"github.com/GrainArc/vtsproxy/arsenal"
	"github.com/GrainArc/vtsproxy/resource"
)

// Driver is the generator-type-specific behavior a factory produces. The
// registry owns the generic lifecycle (readiness, live swap, indexing);
// Driver owns whatever a particular generator type needs on disk — a
// tile index for a surface generator, nothing at all for a passthrough
// TMS mirror.
type Driver interface {
	// Prepare builds whatever on-disk state the generator needs under
	// root and returns once ready to serve, or an error if the
	// definition is unusable.
	Prepare(ctx context.Context, res resource.Resource, root string, warper *arsenal.Warper) error
}

// Factory constructs a fresh Driver for one generator instance.
type Factory func() Driver

// factories is the process-global type -> factory map, "write-once,
// read-many after main() starts" per the design notes: registration
// happens from package init() functions before the registry is
// constructed, and lookups thereafter never race registration because
// there aren't any left to race.
var (
	factoriesOnce sync.Once
	factoriesMu   sync.RWMutex
	factories     map[resource.GeneratorType]Factory
	systemTypes   map[resource.GeneratorType]bool
)

func initFactories() {
	factoriesOnce.Do(func() {
		factories = make(map[resource.GeneratorType]Factory)
		systemTypes = make(map[resource.GeneratorType]bool)
	})
}

// RegisterFactory installs f as the factory for generator type t. system
// marks every generator of this type as immune to updater removal
// (spec.md §4.1's "system generators").
func RegisterFactory(t resource.GeneratorType, f Factory, system bool) {
	initFactories()
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[t] = f
	systemTypes[t] = system
}

func lookupFactory(t resource.GeneratorType) (Factory, bool) {
	initFactories()
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[t]
	return f, ok
}

func isSystemType(t resource.GeneratorType) bool {
	initFactories()
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	return systemTypes[t]
}

func listSystemTypes() []resource.GeneratorType {
	initFactories()
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	var out []resource.GeneratorType
	for t, sys := range systemTypes {
		if sys {
			out = append(out, t)
		}
	}
	return out
}
