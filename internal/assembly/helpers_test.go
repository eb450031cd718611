package assembly

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/roach88/sysarch/internal/model"
	"github.com/roach88/sysarch/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	return New(newTestStore(t), opts...)
}

// newObservedEngine returns an engine whose log entries can be inspected.
func newObservedEngine(t *testing.T, opts ...Option) (*Engine, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	opts = append(opts, WithLogger(zap.New(core).Sugar()))
	return newTestEngine(t, opts...), logs
}

func mustCounts(t *testing.T, e *Engine) map[store.Kind]int64 {
	t.Helper()
	counts, err := e.Reader().Counts(context.Background())
	require.NoError(t, err)
	return counts
}

func mustAssembly(t *testing.T, e *Engine, name string) int64 {
	t.Helper()
	id, err := e.CreateAssembly(context.Background(), NewAssembly{Name: name, FileLocation: name + ".asm"})
	require.NoError(t, err)
	return id
}

func mustPart(t *testing.T, e *Engine, name string) int64 {
	t.Helper()
	id, err := e.CreatePart(context.Background(), name, name+".prt")
	require.NoError(t, err)
	return id
}

func mustFeature(t *testing.T, e *Engine, partID int64, name string) int64 {
	t.Helper()
	id, err := e.CreateFeature(context.Background(), partID, name)
	require.NoError(t, err)
	return id
}

func mustPartItem(t *testing.T, e *Engine, assemblyID, partID int64, name string) int64 {
	t.Helper()
	id, err := e.CreateAssemblyItem(context.Background(), NewItem{AssemblyID: assemblyID, PartID: model.ID(partID), InstanceName: name})
	require.NoError(t, err)
	return id
}

func mustSubItem(t *testing.T, e *Engine, assemblyID, subID int64, name string) int64 {
	t.Helper()
	id, err := e.CreateAssemblyItem(context.Background(), NewItem{AssemblyID: assemblyID, SubAssemblyID: model.ID(subID), InstanceName: name})
	require.NoError(t, err)
	return id
}
