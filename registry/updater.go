package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/GrainArc/vtsproxy/arsenal"
	"github.com/GrainArc/vtsproxy/resource"
)

// updater is the background thread of spec.md §4.1: periodically (or on
// demand) pulls the resource set and merge-walks it against the current
// serving set.
type updater struct {
	g      *Generators
	warper *arsenal.Warper

	requestCh chan chan int64
	stopCh    chan struct{}
	done      chan struct{}

	prep *preparationPool

	systemMu        sync.Mutex
	systemRequested map[rfType]bool
}

func newUpdater(g *Generators, warper *arsenal.Warper) *updater {
	return &updater{
		g:               g,
		warper:          warper,
		requestCh:       make(chan chan int64),
		stopCh:          make(chan struct{}),
		done:            make(chan struct{}),
		prep:            newPreparationPool(g.cfg.PreparationPoolSize),
		systemRequested: make(map[rfType]bool),
	}
}

func (u *updater) start() {
	go u.loop()
}

func (u *updater) stop() {
	close(u.stopCh)
	<-u.done
}

// requestUpdate enqueues an out-of-band pass and returns the timestamp
// (microseconds) at which it was accepted. If the updater has already
// stopped, it returns the current time without effect.
func (u *updater) requestUpdate() int64 {
	reply := make(chan int64, 1)
	select {
	case u.requestCh <- reply:
		return <-reply
	case <-u.stopCh:
		return time.Now().UnixMicro()
	}
}

func (u *updater) loop() {
	defer close(u.done)

	for {
		if err := u.pass(); err != nil {
			u.g.log.WithError(err).Error("updater pass failed")
			if !u.waitOrStop(5 * time.Second) {
				return
			}
			continue
		}
		u.g.ready.Store(true)

		if !u.waitNext() {
			return
		}
	}
}

// waitNext blocks until either the configured period elapses or an
// explicit requestUpdate arrives, whichever comes first. Period <= 0
// means block indefinitely on an explicit request only, per spec.md
// §4.1 step 3.
func (u *updater) waitNext() bool {
	var timer *time.Timer
	var timerCh <-chan time.Time
	if u.g.cfg.UpdaterPeriod > 0 {
		timer = time.NewTimer(u.g.cfg.UpdaterPeriod)
		timerCh = timer.C
		defer timer.Stop()
	}
	select {
	case reply := <-u.requestCh:
		reply <- time.Now().UnixMicro()
		return true
	case <-timerCh:
		return true
	case <-u.stopCh:
		return false
	}
}

func (u *updater) waitOrStop(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-u.stopCh:
		return false
	}
}

// pass performs one update: load the backend's resource set, merge-walk
// it against the serving set, and block until every preparation this
// pass enqueued has drained.
func (u *updater) pass() error {
	incoming, err := u.g.backend.Load(context.Background())
	if err != nil {
		return err
	}

	for _, rf := range distinctReferenceFrames(incoming) {
		u.ensureSystemGenerators(rf)
	}

	current := u.snapshotCurrent()
	adds, removes, replacements := diff(current, incoming)

	for _, id := range removes {
		u.g.mu.RLock()
		gen := u.g.byID[id]
		u.g.mu.RUnlock()
		if gen == nil || gen.System() {
			continue
		}
		u.g.mu.Lock()
		u.g.remove(gen)
		u.g.mu.Unlock()
	}

	for _, res := range adds {
		select {
		case <-u.stopCh:
			u.prep.drain()
			return nil
		default:
		}
		u.enqueuePrepare(res, nil)
	}

	for _, r := range replacements {
		select {
		case <-u.stopCh:
			u.prep.drain()
			return nil
		default:
		}
		u.g.mu.RLock()
		old := u.g.byID[r.id]
		u.g.mu.RUnlock()
		if old == nil {
			continue
		}
		u.applyChange(old, r.next, r.changed)
	}

	u.prep.drain()
	return nil
}

func (u *updater) applyChange(old *Generator, next resource.Resource, changed resource.Changed) {
	switch changed {
	case resource.ChangedNo:
		return
	case resource.ChangedYes:
		if u.g.cfg.FrozenSet()[string(old.Type())] {
			u.g.log.WithFields(map[string]interface{}{
				"resource_id":    old.ID().String(),
				"generator_type": string(old.Type()),
			}).Warn("incompatible change rejected by freeze policy")
			return
		}
		u.enqueuePrepare(next, old)
	case resource.ChangedSafely:
		u.enqueuePrepare(next, old)
	case resource.ChangedWithRevisionBump:
		next.Revision = old.Resource.Revision + 1
		u.enqueuePrepare(next, old)
	}
}

// enqueuePrepare submits res for background preparation; replacing is
// non-nil for a live-swap replacement, nil for a brand-new generator.
func (u *updater) enqueuePrepare(res resource.Resource, replacing *Generator) {
	factory, ok := lookupFactory(res.Generator.Type)
	if !ok {
		u.g.log.WithField("generator_type", string(res.Generator.Type)).Error("unknown generator type")
		u.g.backend.Error(context.Background(), res.ID, "unknown generator type")
		return
	}

	root := generatorRoot(u.g.root, res.ID)
	gen := newGenerator(res, root, factory(), isSystemType(res.Generator.Type), u.g.log)
	gen.replacing = replacing

	u.prep.submit(func() {
		ctx := context.Background()
		if err := gen.driver.Prepare(ctx, res, root, u.warper); err != nil {
			u.g.log.WithError(err).WithField("resource_id", res.ID.String()).Error("preparation failed")
			u.g.backend.Error(ctx, res.ID, err.Error())
			return
		}
		gen.makeReady(u.g.log)
		if replacing != nil {
			u.g.swap(replacing, gen)
		} else {
			u.g.mu.Lock()
			u.g.insert(gen)
			u.g.mu.Unlock()
		}
	})
}

// ensureSystemGenerators creates, once per reference-frame, a synthetic
// generator for every registered system generator type — spec.md §4.1's
// "hardcoded definition (LOD 0-22, tile range (0,0,0,0))" — bypassing
// the backend entirely, since these never come from ResourceBackend.Load.
func (u *updater) ensureSystemGenerators(rf string) {
	for _, t := range listSystemTypes() {
		key := rfType{rf: rf, t: t}
		u.g.mu.RLock()
		_, exists := findSystem(u.g.byRFType[key])
		u.g.mu.RUnlock()
		if exists {
			continue
		}

		u.systemMu.Lock()
		if u.systemRequested[key] {
			u.systemMu.Unlock()
			continue
		}
		u.systemRequested[key] = true
		u.systemMu.Unlock()

		res := resource.Resource{
			ID:        resource.ID{ReferenceFrame: rf, Group: "system", ID: string(t)},
			Generator: resource.Generator{Type: t},
			LODRange:  resource.LODRange{Min: 0, Max: 22},
			TileRange: resource.TileRange{MinX: 0, MinY: 0, MaxX: 0, MaxY: 0},
		}
		u.enqueuePrepare(res, nil)
	}
}

func findSystem(gens []*Generator) (*Generator, bool) {
	for _, gen := range gens {
		if gen.System() {
			return gen, true
		}
	}
	return nil, false
}

func distinctReferenceFrames(m resource.Map) []string {
	seen := map[string]bool{}
	var out []string
	for id := range m {
		if !seen[id.ReferenceFrame] {
			seen[id.ReferenceFrame] = true
			out = append(out, id.ReferenceFrame)
		}
	}
	return out
}

func (u *updater) snapshotCurrent() resource.Map {
	u.g.mu.RLock()
	defer u.g.mu.RUnlock()
	out := make(resource.Map, len(u.g.byID))
	for id, gen := range u.g.byID {
		out[id] = gen.Resource
	}
	return out
}

type replacement struct {
	id      resource.ID
	next    resource.Resource
	changed resource.Changed
}

// diff merge-walks current and incoming (sorted by id) and buckets
// resources into adds, removes, and classified replacements, matching
// spec.md §4.1 step 2 exactly.
func diff(current, incoming resource.Map) (adds []resource.Resource, removes []resource.ID, replacements []replacement) {
	currentIDs := sortedIDs(current)
	incomingIDs := sortedIDs(incoming)

	i, j := 0, 0
	for i < len(currentIDs) && j < len(incomingIDs) {
		a, b := currentIDs[i], incomingIDs[j]
		switch {
		case a == b:
			replacements = append(replacements, replacement{
				id:      a,
				next:    incoming[b],
				changed: current[a].Changed(incoming[b]),
			})
			i++
			j++
		case idLess(a, b):
			removes = append(removes, a)
			i++
		default:
			adds = append(adds, incoming[b])
			j++
		}
	}
	for ; i < len(currentIDs); i++ {
		removes = append(removes, currentIDs[i])
	}
	for ; j < len(incomingIDs); j++ {
		adds = append(adds, incoming[incomingIDs[j]])
	}
	return adds, removes, replacements
}

func sortedIDs(m resource.Map) []resource.ID {
	out := make([]resource.ID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return idLess(out[i], out[j]) })
	return out
}

func idLess(a, b resource.ID) bool {
	if a.ReferenceFrame != b.ReferenceFrame {
		return a.ReferenceFrame < b.ReferenceFrame
	}
	if a.Group != b.Group {
		return a.Group < b.Group
	}
	return a.ID < b.ID
}
