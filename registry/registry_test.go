package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GrainArc/vtsproxy/arsenal"
	"github.com/GrainArc/vtsproxy/config"
	"github.com/GrainArc/vtsproxy/resource"
)

const testGeneratorType resource.GeneratorType = "test-registry-generator"
const testSystemType resource.GeneratorType = "test-registry-system"

func init() {
	RegisterFactory(testGeneratorType, func() Driver { return &fakeDriver{} }, false)
	RegisterFactory(testSystemType, func() Driver { return &fakeDriver{} }, true)
}

// fakeDriver succeeds immediately unless its resource id ends in "fail".
type fakeDriver struct{}

func (d *fakeDriver) Prepare(ctx context.Context, res resource.Resource, root string, warper *arsenal.Warper) error {
	if res.ID.ID == "fail" {
		return assert.AnError
	}
	return nil
}

// fakeBackend is an in-memory resource.Backend a test can mutate between
// updater passes.
type fakeBackend struct {
	mu     sync.Mutex
	set    resource.Map
	errors []string
}

func newFakeBackend() *fakeBackend { return &fakeBackend{set: resource.Map{}} }

func (b *fakeBackend) Load(ctx context.Context) (resource.Map, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(resource.Map, len(b.set))
	for k, v := range b.set {
		out[k] = v
	}
	return out, nil
}

func (b *fakeBackend) Error(ctx context.Context, id resource.ID, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errors = append(b.errors, id.String())
}

func (b *fakeBackend) put(res resource.Resource) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.set[res.ID] = res
}

func (b *fakeBackend) delete(id resource.ID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.set, id)
}

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return logrus.NewEntry(l)
}

func testResource(rf, id string) resource.Resource {
	return resource.Resource{
		ID:        resource.ID{ReferenceFrame: rf, Group: "g", ID: id},
		Generator: resource.Generator{Type: testGeneratorType},
		LODRange:  resource.LODRange{Min: 0, Max: 10},
	}
}

func TestUpdaterAddsAndBecomesReady(t *testing.T) {
	backend := newFakeBackend()
	backend.put(testResource("rf1", "a"))

	g := New(config.Config{PreparationPoolSize: 2}, backend, testLog())
	g.Start(nil)
	defer g.Stop()

	require.NotZero(t, g.RequestUpdate())

	require.Eventually(t, func() bool {
		return g.IsReady(resource.ID{ReferenceFrame: "rf1", Group: "g", ID: "a"})
	}, 2*time.Second, 10*time.Millisecond)

	found := g.Find(resource.ID{ReferenceFrame: "rf1", Group: "g", ID: "a"})
	require.NotNil(t, found)
	assert.Equal(t, testGeneratorType, found.Type())
}

func TestUpdaterRemovesDropped(t *testing.T) {
	backend := newFakeBackend()
	id := resource.ID{ReferenceFrame: "rf1", Group: "g", ID: "a"}
	backend.put(testResource("rf1", "a"))

	g := New(config.Config{PreparationPoolSize: 2}, backend, testLog())
	g.Start(nil)
	defer g.Stop()

	g.RequestUpdate()
	require.Eventually(t, func() bool { return g.IsReady(id) }, 2*time.Second, 10*time.Millisecond)

	backend.delete(id)
	g.RequestUpdate()

	require.Eventually(t, func() bool { return !g.Has(id) }, 2*time.Second, 10*time.Millisecond)
}

func TestFindHidesUnreadyOrMissing(t *testing.T) {
	backend := newFakeBackend()
	g := New(config.Config{PreparationPoolSize: 2}, backend, testLog())
	g.Start(nil)
	defer g.Stop()
	g.RequestUpdate()

	require.Eventually(t, func() bool { return g.checkReady() }, 2*time.Second, 10*time.Millisecond)
	assert.Nil(t, g.Find(resource.ID{ReferenceFrame: "nope", Group: "g", ID: "x"}))
}

func TestFreezePolicyRejectsIncompatibleChange(t *testing.T) {
	backend := newFakeBackend()
	id := resource.ID{ReferenceFrame: "rf1", Group: "g", ID: "a"}
	orig := testResource("rf1", "a")
	backend.put(orig)

	g := New(config.Config{PreparationPoolSize: 2, FrozenTypes: []string{string(testGeneratorType)}}, backend, testLog())
	g.Start(nil)
	defer g.Stop()

	g.RequestUpdate()
	require.Eventually(t, func() bool { return g.IsReady(id) }, 2*time.Second, 10*time.Millisecond)
	firstGen := g.Find(id)
	require.NotNil(t, firstGen)

	changed := orig
	changed.Generator.Driver = "different-driver-forces-yes"
	backend.put(changed)
	g.RequestUpdate()

	time.Sleep(200 * time.Millisecond)
	still := g.Find(id)
	require.NotNil(t, still)
	assert.Same(t, firstGen, still, "frozen type must keep serving the original generator")
}

// revisionBumpDef is a resource.Definition whose Changed reports
// ChangedWithRevisionBump for any value change, letting a test drive the
// updater's cache-busting path without a real generator type.
type revisionBumpDef struct {
	marker string
}

func (d *revisionBumpDef) Type() resource.GeneratorType { return testGeneratorType }
func (d *revisionBumpDef) Clone() resource.Definition   { cp := *d; return &cp }
func (d *revisionBumpDef) Changed(other resource.Definition) resource.Changed {
	o, ok := other.(*revisionBumpDef)
	if !ok {
		return resource.ChangedYes
	}
	if d.marker == o.marker {
		return resource.ChangedNo
	}
	return resource.ChangedWithRevisionBump
}

func TestUpdaterBumpsRevisionOnWithRevisionBumpChange(t *testing.T) {
	backend := newFakeBackend()
	id := resource.ID{ReferenceFrame: "rf1", Group: "g", ID: "a"}
	orig := testResource("rf1", "a")
	orig.Definition = &revisionBumpDef{marker: "a"}
	orig.Revision = 1
	backend.put(orig)

	g := New(config.Config{PreparationPoolSize: 2, DatasetRoot: t.TempDir()}, backend, testLog())
	g.Start(nil)
	defer g.Stop()

	g.RequestUpdate()
	require.Eventually(t, func() bool { return g.IsReady(id) }, 2*time.Second, 10*time.Millisecond)
	first := g.Find(id)
	require.NotNil(t, first)
	assert.Equal(t, 1, first.Resource.Revision)

	changed := orig
	changed.Definition = &revisionBumpDef{marker: "b"}
	backend.put(changed)
	g.RequestUpdate()

	require.Eventually(t, func() bool {
		gen := g.Find(id)
		return gen != nil && gen != first
	}, 2*time.Second, 10*time.Millisecond)

	swapped := g.Find(id)
	require.NotNil(t, swapped)
	assert.Equal(t, 2, swapped.Resource.Revision, "withRevisionBump must increment the revision on apply")
}

func TestSystemGeneratorSeededAndImmuneToRemoval(t *testing.T) {
	backend := newFakeBackend()
	backend.put(testResource("rf1", "a"))

	g := New(config.Config{PreparationPoolSize: 2}, backend, testLog())
	g.Start(nil)
	defer g.Stop()

	g.RequestUpdate()
	require.Eventually(t, func() bool {
		return g.IsReady(resource.ID{ReferenceFrame: "rf1", Group: "system", ID: string(testSystemType)})
	}, 2*time.Second, 10*time.Millisecond)

	backend.delete(resource.ID{ReferenceFrame: "rf1", Group: "g", ID: "a"})
	g.RequestUpdate()
	time.Sleep(200 * time.Millisecond)

	assert.True(t, g.IsReady(resource.ID{ReferenceFrame: "rf1", Group: "system", ID: string(testSystemType)}))
}

func TestUpdaterPeriodZeroNeverAutoReloads(t *testing.T) {
	backend := newFakeBackend()
	g := New(config.Config{PreparationPoolSize: 1, UpdaterPeriod: 0}, backend, testLog())
	g.Start(nil)
	defer g.Stop()

	g.RequestUpdate()
	require.Eventually(t, func() bool { return g.checkReady() }, 2*time.Second, 10*time.Millisecond)

	backend.put(testResource("rf2", "b"))
	id := resource.ID{ReferenceFrame: "rf2", Group: "g", ID: "b"}

	time.Sleep(150 * time.Millisecond)
	assert.False(t, g.Has(id), "no auto-reload should have happened without an explicit request")

	g.RequestUpdate()
	require.Eventually(t, func() bool { return g.Has(id) }, 2*time.Second, 10*time.Millisecond)
}
