package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GrainArc/vtsproxy/resource"
)

// genTestDef is a minimal resource.Definition used only to exercise the
// resource.json read/merge/persist lifecycle in isolation from any real
// generator type's own definition shape.
type genTestDef struct {
	Value string `json:"value"`
}

func (d *genTestDef) Type() resource.GeneratorType { return testGeneratorType }
func (d *genTestDef) Clone() resource.Definition   { cp := *d; return &cp }
func (d *genTestDef) Changed(other resource.Definition) resource.Changed {
	o, ok := other.(*genTestDef)
	if !ok {
		return resource.ChangedYes
	}
	if d.Value == o.Value {
		return resource.ChangedNo
	}
	return resource.ChangedYes
}

func init() {
	resource.RegisterDefinition(testGeneratorType, func() resource.Definition { return &genTestDef{} })
}

func TestGeneratorLifecyclePersistsAndReloadsDefinition(t *testing.T) {
	root := t.TempDir()
	res := resource.Resource{
		ID:         resource.ID{ReferenceFrame: "rf1", Group: "g", ID: "a"},
		Generator:  resource.Generator{Type: testGeneratorType},
		Definition: &genTestDef{Value: "v1"},
		Revision:   1,
	}

	gen := newGenerator(res, root, &fakeDriver{}, false, testLog())
	assert.True(t, gen.needsSave, "no resource.json on disk yet: definition should need saving")
	gen.makeReady(testLog())

	data, err := os.ReadFile(filepath.Join(root, "resource.json"))
	require.NoError(t, err)
	def, revision, err := resource.FromPersistedRecord(data)
	require.NoError(t, err)
	assert.Equal(t, 1, revision)
	assert.Equal(t, resource.ChangedNo, def.Changed(res.Definition))

	// A later restart carrying a stale revision merges up to the
	// persisted one and, given an unchanged definition, needs no re-save.
	stale := res
	stale.Revision = 0
	reloaded := newGenerator(stale, root, &fakeDriver{}, false, testLog())
	assert.Equal(t, 1, reloaded.Resource.Revision)
	assert.False(t, reloaded.needsSave)

	// A changed incoming definition is flagged fresh even though
	// resource.json already exists.
	changed := res
	changed.Definition = &genTestDef{Value: "v2"}
	reloaded2 := newGenerator(changed, root, &fakeDriver{}, false, testLog())
	assert.True(t, reloaded2.needsSave)
}

func TestGeneratorLifecycleIgnoresCorruptResourceJSON(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "resource.json"), []byte("not json"), 0o644))

	res := resource.Resource{
		ID:         resource.ID{ReferenceFrame: "rf1", Group: "g", ID: "a"},
		Generator:  resource.Generator{Type: testGeneratorType},
		Definition: &genTestDef{Value: "v1"},
		Revision:   3,
	}
	gen := newGenerator(res, root, &fakeDriver{}, false, testLog())
	assert.True(t, gen.needsSave)
	assert.Equal(t, 3, gen.Resource.Revision, "a corrupt resource.json must not override the incoming revision")
}

