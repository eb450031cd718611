package assembly

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sysarch/internal/model"
)

func TestCycle_LengthOne(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := mustAssembly(t, e, "A")
	before := mustCounts(t, e)

	_, err := e.CreateAssemblyItem(ctx, NewItem{AssemblyID: a, SubAssemblyID: model.ID(a), InstanceName: "self"})
	require.Error(t, err)
	assert.True(t, IsCycleError(err), "got %v", err)

	err = e.SetAssemblyParent(ctx, a, model.ID(a))
	assert.True(t, IsCycleError(err), "got %v", err)

	assert.Equal(t, before, mustCounts(t, e))
	got, err := e.Reader().Assembly(ctx, a)
	require.NoError(t, err)
	assert.Nil(t, got.ParentAssemblyID)
}

func TestCycle_LengthTwo(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := mustAssembly(t, e, "A")
	b := mustAssembly(t, e, "B")
	mustSubItem(t, e, a, b, "B-1")
	before := mustCounts(t, e)

	_, err := e.CreateAssemblyItem(ctx, NewItem{AssemblyID: b, SubAssemblyID: model.ID(a), InstanceName: "A-1"})
	require.Error(t, err)
	assert.True(t, IsCycleError(err), "got %v", err)
	assert.Contains(t, err.Error(), "path=1 -> 2")

	assert.Equal(t, before, mustCounts(t, e))
}

func TestCycle_LengthThree(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := mustAssembly(t, e, "A")
	b := mustAssembly(t, e, "B")
	c := mustAssembly(t, e, "C")
	mustSubItem(t, e, a, b, "B-1")
	mustSubItem(t, e, b, c, "C-1")
	before := mustCounts(t, e)

	_, err := e.CreateAssemblyItem(ctx, NewItem{AssemblyID: c, SubAssemblyID: model.ID(a), InstanceName: "A-1"})
	require.Error(t, err)
	assert.True(t, IsCycleError(err), "got %v", err)
	assert.Contains(t, err.Error(), "path=1 -> 2 -> 3")

	assert.Equal(t, before, mustCounts(t, e))
}

func TestCycle_ThroughParentLinks(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := mustAssembly(t, e, "A")
	b, err := e.CreateAssembly(ctx, NewAssembly{Name: "B", FileLocation: "b.asm", ParentAssemblyID: model.ID(a)})
	require.NoError(t, err)
	c, err := e.CreateAssembly(ctx, NewAssembly{Name: "C", FileLocation: "c.asm", ParentAssemblyID: model.ID(b)})
	require.NoError(t, err)

	// A -> B -> C by parent links; making A a child of C closes the loop.
	err = e.SetAssemblyParent(ctx, a, model.ID(c))
	assert.True(t, IsCycleError(err), "got %v", err)

	// So does instantiating A inside C.
	_, err = e.CreateAssemblyItem(ctx, NewItem{AssemblyID: c, SubAssemblyID: model.ID(a), InstanceName: "A-1"})
	assert.True(t, IsCycleError(err), "got %v", err)

	got, err := e.Reader().Assembly(ctx, a)
	require.NoError(t, err)
	assert.Nil(t, got.ParentAssemblyID)
}

func TestCycle_MixedEdges(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := mustAssembly(t, e, "A")
	b := mustAssembly(t, e, "B")
	mustSubItem(t, e, a, b, "B-1")

	// A contains B as an item; B cannot become A's parent.
	err := e.SetAssemblyParent(ctx, a, model.ID(b))
	assert.True(t, IsCycleError(err), "got %v", err)
}

func TestComposition_AllowsSharedSubAssembly(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	top := mustAssembly(t, e, "Top")
	left := mustAssembly(t, e, "Left")
	right := mustAssembly(t, e, "Right")
	shared := mustAssembly(t, e, "Shared")

	mustSubItem(t, e, top, left, "L")
	mustSubItem(t, e, top, right, "R")
	mustSubItem(t, e, left, shared, "S")
	mustSubItem(t, e, right, shared, "S")
	mustSubItem(t, e, top, shared, "S-direct")

	require.NoError(t, e.SetAssemblyParent(ctx, left, model.ID(top)))
	require.NoError(t, e.SetAssemblyParent(ctx, left, nil))
}

func TestValidateComposition_TerminatesOnExistingCycle(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := mustAssembly(t, e, "A")
	b := mustAssembly(t, e, "B")
	c := mustAssembly(t, e, "C")
	mustSubItem(t, e, a, b, "B-1")

	// Simulate an external write that bypassed validation: B -> A.
	_, err := e.store.DB().ExecContext(ctx,
		`INSERT INTO assembly_items (assembly_id, sub_assembly_id, instance_name) VALUES (?, ?, ?)`, b, a, "A-1")
	require.NoError(t, err)

	// C is unrelated, so the search must finish without finding it.
	require.NoError(t, e.Reader().ValidateComposition(ctx, c, a))
	// And adding A under B is still recognised as a cycle.
	assert.True(t, IsCycleError(e.Reader().ValidateComposition(ctx, b, a)))
}

func TestValidateComposition_MissingAssemblies(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := mustAssembly(t, e, "A")

	_, err := e.CreateAssemblyItem(ctx, NewItem{AssemblyID: a, SubAssemblyID: model.ID(99), InstanceName: "ghost"})
	assert.True(t, IsReferenceError(err), "got %v", err)

	err = e.SetAssemblyParent(ctx, a, model.ID(99))
	assert.True(t, IsReferenceError(err), "got %v", err)

	err = e.SetAssemblyParent(ctx, 99, model.ID(a))
	assert.True(t, IsReferenceError(err), "got %v", err)
}

func TestReconstructPath(t *testing.T) {
	pred := map[int64]int64{3: 2, 2: 1}
	assert.Equal(t, []int64{1, 2, 3}, reconstructPath(pred, 1, 3))
}
