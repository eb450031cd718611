package manifest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sysarch/internal/assembly"
	"github.com/roach88/sysarch/internal/store"
)

func newTestEngine(t *testing.T) *assembly.Engine {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return assembly.New(st)
}

func mustParse(t *testing.T, src string) *Manifest {
	t.Helper()
	m, err := Parse([]byte(src), "test.cue")
	require.NoError(t, err)
	return m
}

func totalRows(t *testing.T, eng *assembly.Engine) int64 {
	t.Helper()
	counts, err := eng.Reader().Counts(context.Background())
	require.NoError(t, err)
	var n int64
	for _, c := range counts {
		n += c
	}
	return n
}

func TestLoad_Rig(t *testing.T) {
	m, err := Load(filepath.Join("testdata", "rig.cue"))
	require.NoError(t, err)

	require.NotNil(t, m.System)
	assert.Equal(t, "Rig", m.System.Name)
	assert.Equal(t, "Car", m.System.Root)
	assert.Equal(t, []string{"Bolt", "Hub", "Nut"}, m.PartNames())
	assert.Equal(t, []string{"Car", "Wheel"}, m.AssemblyNames())
	assert.Equal(t, []string{"Axis", "Head"}, m.Parts["Bolt"].Features)
	assert.Empty(t, m.Parts["Hub"].Features)
	assert.Equal(t, "img/car.png", m.Assemblies["Car"].Image)
	assert.Equal(t, "Car", m.Assemblies["Wheel"].Parent)
	require.Len(t, m.Assemblies["Wheel"].Items, 3)
	assert.Equal(t, "Bolt", m.Assemblies["Wheel"].Items[1].Part)
	require.Len(t, m.Connectors, 1)
	assert.Equal(t, "concentric", m.Connectors[0].Type)
	assert.Equal(t, "Nut.Bore", m.Connectors[0].To.Feature)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "nope.cue"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidManifest))
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax error", `parts: {`},
		{"unknown top-level field", `widgets: {}`},
		{"unknown part field", `parts: Bolt: {file: "b.prt", colour: "red"}`},
		{"missing file", `parts: Bolt: {features: ["Axis"]}`},
		{"empty system name", `system: name: ""`},
		{"empty item name", `assemblies: A: {file: "a.asm", items: [{name: "", part: "P"}]}`},
		{"unqualified feature", `connectors: [{type: "fixed", from: {assembly: "A", item: "x", feature: "Axis"}, to: {assembly: "A", item: "y", feature: "P.Axis"}}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "test.cue")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidManifest), "got %v", err)
		})
	}
}

func TestParse_RejectsUnknownConnectorType(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "bad_type.cue"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidManifest))
	assert.Contains(t, err.Error(), "welded")
	assert.NotEmpty(t, errors.FlattenHints(err))
}

func TestParse_Empty(t *testing.T) {
	m := mustParse(t, ``)
	assert.Nil(t, m.System)
	assert.Empty(t, m.PartNames())
	assert.Empty(t, m.Connectors)
}

func TestApply_Rig(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	m, err := Load(filepath.Join("testdata", "rig.cue"))
	require.NoError(t, err)

	got, err := Apply(ctx, eng, m)
	require.NoError(t, err)

	require.NotNil(t, got.SystemID)
	assert.Len(t, got.Parts, 3)
	assert.Len(t, got.Features, 3)
	assert.Len(t, got.Assemblies, 2)
	assert.Len(t, got.Items, 5)
	assert.Len(t, got.Connectors, 1)

	sys, err := eng.Reader().System(ctx, *got.SystemID)
	require.NoError(t, err)
	require.NotNil(t, sys.OverallAssemblyID)
	assert.Equal(t, got.Assemblies["Car"], *sys.OverallAssemblyID)

	wheel, err := eng.Reader().Assembly(ctx, got.Assemblies["Wheel"])
	require.NoError(t, err)
	require.NotNil(t, wheel.ParentAssemblyID)
	assert.Equal(t, got.Assemblies["Car"], *wheel.ParentAssemblyID)

	parts, err := eng.ListPartsInAssembly(ctx, got.Assemblies["Car"], true)
	require.NoError(t, err)
	paths := make([]string, len(parts))
	for i, p := range parts {
		paths[i] = p.InstancePath
	}
	assert.Equal(t, []string{
		"Wheel-FL/Hub", "Wheel-FL/Bolt-1", "Wheel-FL/Nut-1",
		"Wheel-FR/Hub", "Wheel-FR/Bolt-1", "Wheel-FR/Nut-1",
	}, paths)

	conns, err := eng.ListConnections(ctx, assembly.ConnectionFilter{PartID: ptr(got.Parts["Nut"])})
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, got.Items["Wheel/Bolt-1"], conns[0].AssemblyItem1ID)
	assert.Equal(t, got.Features["Nut.Bore"], conns[0].Feature2ID)
}

func TestApply_CycleRollsBack(t *testing.T) {
	eng := newTestEngine(t)
	m, err := Load(filepath.Join("testdata", "cycle.cue"))
	require.NoError(t, err)

	_, err = Apply(context.Background(), eng, m)
	require.Error(t, err)
	assert.True(t, assembly.IsCycleError(err), "got %v", err)
	assert.Zero(t, totalRows(t, eng))
}

func TestApply_CoreRejections(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		check func(error) bool
	}{
		{
			name: "item with part and sub-assembly",
			src: `
parts: P: file: "p.prt"
assemblies: {
	A: {file: "a.asm", items: [{name: "x", part: "P", sub_assembly: "B"}]}
	B: file: "b.asm"
}`,
			check: assembly.IsInvalidCompositionError,
		},
		{
			name:  "item with neither part nor sub-assembly",
			src:   `assemblies: A: {file: "a.asm", items: [{name: "x"}]}`,
			check: assembly.IsInvalidCompositionError,
		},
		{
			name: "feature of another part",
			src: `
parts: {
	Bolt: {file: "b.prt", features: ["Axis"]}
	Nut: {file: "n.prt", features: ["Bore"]}
}
assemblies: A: {file: "a.asm", items: [{name: "b", part: "Bolt"}, {name: "n", part: "Nut"}]}
connectors: [{type: "fixed", from: {assembly: "A", item: "b", feature: "Nut.Bore"}, to: {assembly: "A", item: "n", feature: "Nut.Bore"}}]`,
			check: assembly.IsOwnershipError,
		},
		{
			name: "self connection",
			src: `
parts: Bolt: {file: "b.prt", features: ["Axis"]}
assemblies: A: {file: "a.asm", items: [{name: "b", part: "Bolt"}]}
connectors: [{type: "tangent", from: {assembly: "A", item: "b", feature: "Bolt.Axis"}, to: {assembly: "A", item: "b", feature: "Bolt.Axis"}}]`,
			check: assembly.IsSelfConnectionError,
		},
		{
			name: "root with a parent",
			src: `
system: {name: "S", root: "B"}
assemblies: {
	A: file: "a.asm"
	B: {file: "b.asm", parent: "A"}
}`,
			check: assembly.IsInvalidCompositionError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newTestEngine(t)
			_, err := Apply(context.Background(), eng, mustParse(t, tt.src))
			require.Error(t, err)
			assert.True(t, tt.check(err), "got %v", err)
			assert.Zero(t, totalRows(t, eng))
		})
	}
}

func TestApply_Unresolved(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unknown part", `assemblies: A: {file: "a.asm", items: [{name: "x", part: "Ghost"}]}`, `unknown part "Ghost"`},
		{"unknown sub-assembly", `assemblies: A: {file: "a.asm", items: [{name: "x", sub_assembly: "Ghost"}]}`, `unknown assembly "Ghost"`},
		{"unknown parent", `assemblies: A: {file: "a.asm", parent: "Ghost"}`, `unknown assembly "Ghost"`},
		{"unknown root", `system: {name: "S", root: "Ghost"}`, `unknown assembly "Ghost"`},
		{
			"unknown item",
			`
parts: Bolt: {file: "b.prt", features: ["Axis"]}
assemblies: A: {file: "a.asm", items: [{name: "b", part: "Bolt"}]}
connectors: [{type: "fixed", from: {assembly: "A", item: "b", feature: "Bolt.Axis"}, to: {assembly: "A", item: "c", feature: "Bolt.Axis"}}]`,
			`unknown item "A/c"`,
		},
		{
			"unknown feature",
			`
parts: Bolt: {file: "b.prt", features: ["Axis"]}
assemblies: A: {file: "a.asm", items: [{name: "b", part: "Bolt"}, {name: "c", part: "Bolt"}]}
connectors: [{type: "fixed", from: {assembly: "A", item: "b", feature: "Bolt.Head"}, to: {assembly: "A", item: "c", feature: "Bolt.Axis"}}]`,
			`unknown feature "Bolt.Head"`,
		},
		{
			"ambiguous item",
			`
parts: Bolt: {file: "b.prt", features: ["Axis"]}
assemblies: A: {file: "a.asm", items: [{name: "b", part: "Bolt"}, {name: "b", part: "Bolt"}, {name: "c", part: "Bolt"}]}
connectors: [{type: "fixed", from: {assembly: "A", item: "b", feature: "Bolt.Axis"}, to: {assembly: "A", item: "c", feature: "Bolt.Axis"}}]`,
			"declared more than once",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newTestEngine(t)
			_, err := Apply(context.Background(), eng, mustParse(t, tt.src))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnresolved), "got %v", err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Zero(t, totalRows(t, eng))
		})
	}
}

func TestApply_DuplicateItemsWithoutConnectorsSucceed(t *testing.T) {
	eng := newTestEngine(t)
	got, err := Apply(context.Background(), eng, mustParse(t, `
parts: Bolt: file: "b.prt"
assemblies: A: {file: "a.asm", items: [{name: "b", part: "Bolt"}, {name: "b", part: "Bolt"}]}`))
	require.NoError(t, err)

	items, err := eng.Reader().ListItems(context.Background(), got.Assemblies["A"])
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestApply_ItemNamesMatchAfterNormalisation(t *testing.T) {
	ctx := context.Background()

	eng := newTestEngine(t)
	_, err := Apply(ctx, eng, mustParse(t, `
parts: Bolt: {file: "b.prt", features: ["Axis"]}
assemblies: A: {file: "a.asm", items: [
	{name: "Caf\u00e9", part: "Bolt"},
	{name: "Cafe\u0301", part: "Bolt"},
	{name: "Other", part: "Bolt"},
]}
connectors: [{
	type: "fixed"
	from: {assembly: "A", item: "Cafe\u0301", feature: "Bolt.Axis"}
	to: {assembly: "A", item: "Other", feature: "Bolt.Axis"}
}]`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnresolved), "got %v", err)
	assert.Contains(t, err.Error(), "declared more than once")
	counts, err := eng.Reader().Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts[store.KindItem])

	eng = newTestEngine(t)
	got, err := Apply(ctx, eng, mustParse(t, `
parts: Bolt: {file: "b.prt", features: ["Axis"]}
assemblies: A: {file: "a.asm", items: [
	{name: "Caf\u00e9", part: "Bolt"},
	{name: "Other", part: "Bolt"},
]}
connectors: [{
	type: "fixed"
	from: {assembly: "A", item: "Cafe\u0301", feature: "Bolt.Axis"}
	to: {assembly: "A", item: "Other", feature: "Bolt.Axis"}
}]`))
	require.NoError(t, err)
	require.Len(t, got.Connectors, 1)
	conns, err := eng.ListConnections(ctx, assembly.ConnectionFilter{ItemID: ptr(got.Items["A/Caf\u00e9"])})
	require.NoError(t, err)
	assert.Len(t, conns, 1)
}

func ptr(v int64) *int64 { return &v }
