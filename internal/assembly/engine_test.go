package assembly

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/roach88/sysarch/internal/model"
	"github.com/roach88/sysarch/internal/store"
)

func TestEngine_MetricsCountOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	e := newTestEngine(t, WithMetrics(m))
	ctx := context.Background()

	a := mustAssembly(t, e, "A")
	_, err := e.CreateAssemblyItem(ctx, NewItem{AssemblyID: a, SubAssemblyID: model.ID(a), InstanceName: "self"})
	require.Error(t, err)
	_, err = e.CreateConnector(ctx, NewConnector{Type: "glued"})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Mutations.WithLabelValues("CreateAssembly", OutcomeAccepted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Mutations.WithLabelValues("CreateAssemblyItem", OutcomeRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejections.WithLabelValues(string(KindCycle))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejections.WithLabelValues(string(KindInvalidArgument))))

	_, err = e.ListPartsInAssembly(ctx, 404, true)
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejections.WithLabelValues(string(KindReference))))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "sysarch_operation_duration_seconds")
}

func TestEngine_LogsRejections(t *testing.T) {
	e, logs := newObservedEngine(t)
	ctx := context.Background()

	_, err := e.CreateFeature(ctx, 12, "Axis")
	require.Error(t, err)

	entries := logs.FilterMessage("Operation rejected").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "CreateFeature", fields["op"])
	assert.Equal(t, string(KindReference), fields["kind"])
	assert.NotEmpty(t, fields["op_id"])

	mustPart(t, e, "Bolt")
	assert.Equal(t, 1, logs.FilterMessage("Mutation accepted").Len())
}

func TestEngine_ListQueriesAreObserved(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	e, logs := newObservedEngine(t, WithMetrics(m))
	ctx := context.Background()

	_, err := e.ListSystems(ctx)
	require.NoError(t, err)
	_, err = e.ListAssemblies(ctx, nil)
	require.NoError(t, err)
	_, err = e.ListFeatures(ctx, 404)
	require.True(t, IsReferenceError(err), "got %v", err)
	_, err = e.ListAssemblies(ctx, model.ID(404))
	require.True(t, IsReferenceError(err), "got %v", err)

	assert.Equal(t, 3, testutil.CollectAndCount(m.Duration))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Rejections.WithLabelValues(string(KindReference))))

	entries := logs.FilterMessage("Operation rejected").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "ListFeatures", entries[0].ContextMap()["op"])
	assert.Equal(t, "ListAssemblies", entries[1].ContextMap()["op"])
	assert.NotEmpty(t, entries[0].ContextMap()["op_id"])
}

func TestEngine_WithTracerProvider(t *testing.T) {
	e := newTestEngine(t, WithTracerProvider(noop.NewTracerProvider()))
	id, err := e.CreatePart(context.Background(), "Bolt", "bolt.prt")
	require.NoError(t, err)
	assert.Positive(t, id)
}

func TestBatch_CommitsTogether(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	var asm, part int64
	err := e.Batch(ctx, func(ctx context.Context, r *Repository) error {
		var err error
		if part, err = r.CreatePart(ctx, "Bolt", "bolt.prt"); err != nil {
			return err
		}
		if asm, err = r.CreateAssembly(ctx, NewAssembly{Name: "Main", FileLocation: "main.asm"}); err != nil {
			return err
		}
		_, err = r.CreateAssemblyItem(ctx, NewItem{AssemblyID: asm, PartID: model.ID(part), InstanceName: "Bolt-1"})
		return err
	})
	require.NoError(t, err)

	parts, err := e.ListPartsInAssembly(ctx, asm, true)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, part, parts[0].PartID)
}

func TestBatch_RollsBackOnRejection(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	before := mustCounts(t, e)

	err := e.Batch(ctx, func(ctx context.Context, r *Repository) error {
		a, err := r.CreateAssembly(ctx, NewAssembly{Name: "A", FileLocation: "a.asm"})
		if err != nil {
			return err
		}
		b, err := r.CreateAssembly(ctx, NewAssembly{Name: "B", FileLocation: "b.asm"})
		if err != nil {
			return err
		}
		if _, err := r.CreateAssemblyItem(ctx, NewItem{AssemblyID: a, SubAssemblyID: model.ID(b), InstanceName: "B-1"}); err != nil {
			return err
		}
		// Validation sees the batch's own uncommitted writes.
		_, err = r.CreateAssemblyItem(ctx, NewItem{AssemblyID: b, SubAssemblyID: model.ID(a), InstanceName: "A-1"})
		return err
	})
	require.Error(t, err)
	assert.True(t, IsCycleError(err), "got %v", err)
	assert.Equal(t, before, mustCounts(t, e))
}

func TestBatch_RollsBackOnCallerError(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	boom := errors.New("abort")

	err := e.Batch(ctx, func(ctx context.Context, r *Repository) error {
		if _, err := r.CreatePart(ctx, "Bolt", "bolt.prt"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, mustCounts(t, e)[store.KindPart])
}

func TestEngine_SeparatorOptionIgnoresEmpty(t *testing.T) {
	e := newTestEngine(t, WithSeparator(""))
	assert.Equal(t, DefaultSeparator, e.separator)
}
