// Package registry implements the generator registry of spec.md §4.1:
// a continuously-reconciled, multi-indexed set of Generators, each
// backing one served resource. Grounded on the teacher's
// services/tile_server_manager.go singleton-with-mutex-map idiom,
// generalized from a single sync.Once instance to an ordinary
// constructor (the registry itself, not its type registration, is the
// long-lived instance here) and from one flat map to the several keyed
// views spec.md §4.1's "Indexing" paragraph requires.
package registry

import (
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/GrainArc/vtsproxy/arsenal"
	"github.com/GrainArc/vtsproxy/config"
	"github.com/GrainArc/vtsproxy/resource"
)

type rfType struct {
	rf string
	t  resource.GeneratorType
}

type rfTypeGroup struct {
	rf    string
	t     resource.GeneratorType
	group string
}

// Generators is the live in-memory serving set. A single mutex guards
// several keyed views over the same *Generator pointers — the "N sorted
// maps side-by-side under the same lock" fallback spec.md §9 endorses
// when the host language lacks a native multi-index container, which Go
// does.
type Generators struct {
	cfg  config.Config
	log  *logrus.Entry
	root string

	mu          sync.RWMutex
	byID        map[resource.ID]*Generator
	byRFType    map[rfType][]*Generator
	byRFTypeGrp map[rfTypeGroup][]*Generator
	byRF        map[string][]*Generator

	// ready gates Find, ListForReferenceFrame, ListGroups and ListIds
	// until the first updater pass completes. Has, IsReady, URL and
	// UpdatedSince do not consult it: they answer from the serving set
	// even before the first pass has finished.
	ready atomic.Bool

	backend resource.Backend
	updater *updater
}

// New constructs a registry bound to backend but does not start its
// updater; call Start for that.
func New(cfg config.Config, backend resource.Backend, log *logrus.Entry) *Generators {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	g := &Generators{
		cfg:         cfg,
		log:         log.WithField("component", "registry"),
		root:        cfg.DatasetRoot,
		byID:        make(map[resource.ID]*Generator),
		byRFType:    make(map[rfType][]*Generator),
		byRFTypeGrp: make(map[rfTypeGroup][]*Generator),
		byRF:        make(map[string][]*Generator),
		backend:     backend,
	}
	return g
}

// Start launches the background updater thread, which will call
// warper for every generator it prepares.
func (g *Generators) Start(warper *arsenal.Warper) {
	g.updater = newUpdater(g, warper)
	g.updater.start()
}

// Stop terminates the updater and unblocks anything waiting on it.
// Cyclic ownership (a generator's back-reference to its finder) never
// exists here — generators never hold a pointer back to the registry —
// so teardown is just stopping the updater goroutine.
func (g *Generators) Stop() {
	if g.updater != nil {
		g.updater.stop()
	}
}

func (g *Generators) checkReady() bool { return g.ready.Load() }

// Find returns a ready generator for resource id, or
// nil if none exists or it is not yet ready — the request path must
// never observe an unready generator.
func (g *Generators) Find(id resource.ID) *Generator {
	if !g.checkReady() {
		return nil
	}
	g.mu.RLock()
	gen := g.byID[id]
	g.mu.RUnlock()
	if gen == nil || !gen.Ready() {
		return nil
	}
	return gen
}

// ListForReferenceFrame returns every ready generator for rf.
func (g *Generators) ListForReferenceFrame(rf string) []*Generator {
	if !g.checkReady() {
		return nil
	}
	g.mu.RLock()
	src := g.byRF[rf]
	out := make([]*Generator, 0, len(src))
	for _, gen := range src {
		if gen.Ready() {
			out = append(out, gen)
		}
	}
	g.mu.RUnlock()
	return out
}

// ListGroups returns the distinct groups under (rf, t).
func (g *Generators) ListGroups(rf string, t resource.GeneratorType) []string {
	if !g.checkReady() {
		return nil
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	seen := map[string]bool{}
	var out []string
	for _, gen := range g.byRFType[rfType{rf: rf, t: t}] {
		if !gen.Ready() {
			continue
		}
		grp := gen.Resource.ID.Group
		if !seen[grp] {
			seen[grp] = true
			out = append(out, grp)
		}
	}
	return out
}

// ListIds returns the resource-ids under (rf, t, group).
func (g *Generators) ListIds(rf string, t resource.GeneratorType, group string) []string {
	if !g.checkReady() {
		return nil
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	src := g.byRFTypeGrp[rfTypeGroup{rf: rf, t: t, group: group}]
	out := make([]string, 0, len(src))
	for _, gen := range src {
		if gen.Ready() {
			out = append(out, gen.Resource.ID.ID)
		}
	}
	return out
}

// Has reports whether a generator (ready or not) exists for id.
func (g *Generators) Has(id resource.ID) bool {
	g.mu.RLock()
	_, ok := g.byID[id]
	g.mu.RUnlock()
	return ok
}

// IsReady reports whether the generator for id has completed
// preparation.
func (g *Generators) IsReady(id resource.ID) bool {
	g.mu.RLock()
	gen := g.byID[id]
	g.mu.RUnlock()
	return gen != nil && gen.Ready()
}

// URL returns the on-disk root of the generator for id, if any.
func (g *Generators) URL(id resource.ID) (string, bool) {
	g.mu.RLock()
	gen := g.byID[id]
	g.mu.RUnlock()
	if gen == nil {
		return "", false
	}
	return gen.root, true
}

// UpdatedSince reports whether the generator for id became ready at or
// after tsMicros.
func (g *Generators) UpdatedSince(id resource.ID, tsMicros int64) bool {
	g.mu.RLock()
	gen := g.byID[id]
	g.mu.RUnlock()
	return gen != nil && gen.ReadySince() >= tsMicros
}

// RequestUpdate asks the updater to run at its next opportunity and
// returns the timestamp (microseconds since epoch) at which the request
// was enqueued.
func (g *Generators) RequestUpdate() int64 {
	if g.updater == nil {
		return 0
	}
	return g.updater.requestUpdate()
}

func generatorRoot(root string, id resource.ID) string {
	return filepath.Join(root, id.ReferenceFrame, id.Group, id.ID)
}

// insert adds gen to every index. Callers must hold g.mu for writing.
func (g *Generators) insert(gen *Generator) {
	id := gen.ID()
	g.byID[id] = gen
	rt := rfType{rf: id.ReferenceFrame, t: gen.Type()}
	rtg := rfTypeGroup{rf: id.ReferenceFrame, t: gen.Type(), group: id.Group}
	g.byRFType[rt] = append(g.byRFType[rt], gen)
	g.byRFTypeGrp[rtg] = append(g.byRFTypeGrp[rtg], gen)
	g.byRF[id.ReferenceFrame] = append(g.byRF[id.ReferenceFrame], gen)
}

// remove drops gen from every index. Callers must hold g.mu for writing.
func (g *Generators) remove(gen *Generator) {
	id := gen.ID()
	delete(g.byID, id)
	rt := rfType{rf: id.ReferenceFrame, t: gen.Type()}
	rtg := rfTypeGroup{rf: id.ReferenceFrame, t: gen.Type(), group: id.Group}
	g.byRFType[rt] = removeGen(g.byRFType[rt], gen)
	g.byRFTypeGrp[rtg] = removeGen(g.byRFTypeGrp[rtg], gen)
	g.byRF[id.ReferenceFrame] = removeGen(g.byRF[id.ReferenceFrame], gen)
}

// swap atomically replaces old with next in every index it appears in,
// under one lock acquisition, so a concurrent Find sees the old or the
// new generator but never neither (spec.md §5's ordering guarantee).
func (g *Generators) swap(old, next *Generator) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.remove(old)
	g.insert(next)
	next.replacing = nil
}

func removeGen(list []*Generator, target *Generator) []*Generator {
	for i, gen := range list {
		if gen == target {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
