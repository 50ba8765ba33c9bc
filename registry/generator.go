package registry

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/GrainArc/vtsproxy/resource"
)

// Generator owns one resource's serving state: readiness, its on-disk
// root, and the type-specific Driver that actually answers requests once
// ready. At most one Generator per resource-id exists in a registry's
// serving set at any instant (spec.md §8's core invariant).
type Generator struct {
	Resource resource.Resource
	root     string
	driver   Driver
	system   bool

	// ready and readySince are atomic per spec.md §5: "ready_ and
	// readySince_ on a generator are atomic scalars; other generator
	// fields are immutable after makeReady." Every other field here is
	// set once at construction and never mutated afterward.
	ready      atomic.Bool
	readySince atomic.Int64 // microseconds since epoch; 0 until ready

	// replacing is a non-owning pointer at the predecessor generator
	// during a live swap, cleared once the registry has finished
	// swapping this generator into every index. Nothing ever reaches a
	// generator's predecessor except through this field — it is not
	// itself indexed.
	replacing *Generator

	// needsSave records whether resource.json is missing or stale
	// relative to Resource.Definition, so makeReady knows whether it
	// must rewrite it — spec.md §4.1's fresh_/changeEnforced_ bookkeeping.
	needsSave bool
}

// resourceJSONPath is where a generator's definition is replayed from
// and persisted to across restarts (spec.md §6's per-generator
// resource.json).
func resourceJSONPath(root string) string {
	return filepath.Join(root, "resource.json")
}

// newGenerator constructs a Generator, reading the stored resource.json
// beside root (if any) and merging revisions: spec.md §4.1's "Generator
// lifecycle" step. Absence, a corrupt file, or a type mismatch are all
// treated as "nothing usable on disk yet" and just mark the definition
// fresh rather than failing construction.
func newGenerator(res resource.Resource, root string, driver Driver, system bool, log *logrus.Entry) *Generator {
	res, needsSave := mergeStoredDefinition(res, root, log)
	return &Generator{Resource: res, root: root, driver: driver, system: system, needsSave: needsSave}
}

func mergeStoredDefinition(res resource.Resource, root string, log *logrus.Entry) (resource.Resource, bool) {
	data, err := os.ReadFile(resourceJSONPath(root))
	if err != nil {
		return res, true
	}
	storedDef, storedRevision, err := resource.FromPersistedRecord(data)
	if err != nil {
		if log != nil {
			log.WithError(err).WithField("resource_id", res.ID.String()).Warn("ignoring unreadable resource.json")
		}
		return res, true
	}
	if storedRevision > res.Revision {
		res.Revision = storedRevision
	}
	if res.Definition == nil || res.Definition.Changed(storedDef) != resource.ChangedNo {
		return res, true
	}
	return res, false
}

// Ready reports whether the generator has completed preparation and may
// serve requests.
func (g *Generator) Ready() bool { return g.ready.Load() }

// ReadySince returns the microsecond timestamp of the generator's first
// (and only) transition to ready, or 0 if still preparing.
func (g *Generator) ReadySince() int64 { return g.readySince.Load() }

// makeReady persists the definition (if it needs re-saving) and flips
// the ready flag. readySince is written once: a generator instance only
// ever becomes ready a single time, so there is no "non-decreasing" case
// to guard against beyond not calling this twice, which the preparation
// pool already guarantees per-instance.
func (g *Generator) makeReady(log *logrus.Entry) {
	if g.needsSave {
		g.persistDefinition(log)
	}
	g.readySince.Store(time.Now().UnixMicro())
	g.ready.Store(true)
}

// persistDefinition writes resource.json beside root, the "definition,
// replayed on restart" file of spec.md §6's filesystem layout.
func (g *Generator) persistDefinition(log *logrus.Entry) {
	if g.Resource.Definition == nil {
		return
	}
	data, err := resource.ToPersistedRecord(g.Resource.Revision, g.Resource.Definition)
	if err != nil {
		if log != nil {
			log.WithError(err).WithField("resource_id", g.ID().String()).Warn("failed to encode resource.json")
		}
		return
	}
	if err := os.MkdirAll(g.root, 0o755); err != nil {
		if log != nil {
			log.WithError(err).WithField("resource_id", g.ID().String()).Warn("failed to create generator root")
		}
		return
	}
	if err := os.WriteFile(resourceJSONPath(g.root), data, 0o644); err != nil {
		if log != nil {
			log.WithError(err).WithField("resource_id", g.ID().String()).Warn("failed to persist resource.json")
		}
	}
}

func (g *Generator) ID() resource.ID { return g.Resource.ID }

func (g *Generator) Type() resource.GeneratorType { return g.Resource.Generator.Type }

func (g *Generator) Root() string { return g.root }

func (g *Generator) System() bool { return g.system }
