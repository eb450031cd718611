package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/sysarch/internal/model"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fixture holds the ids of a small populated model:
// system -> Main assembly containing two Bolt instances and a Sub assembly
// instance; Bolt carries an Axis feature; one connector joins the bolts.
type fixture struct {
	systemID, mainID, subID     int64
	boltID, axisID              int64
	bolt1ID, bolt2ID, subItemID int64
	connectorID                 int64
}

func seedFixture(t *testing.T, r *Records) fixture {
	t.Helper()
	ctx := context.Background()
	var f fixture
	var err error

	f.systemID, err = r.InsertSystem(ctx, model.System{Name: "Rig"})
	require.NoError(t, err)
	f.mainID, err = r.InsertAssembly(ctx, model.Assembly{Name: "Main", FileLocation: "main.asm", SystemID: model.ID(f.systemID)})
	require.NoError(t, err)
	f.subID, err = r.InsertAssembly(ctx, model.Assembly{Name: "Sub", FileLocation: "sub.asm", SystemID: model.ID(f.systemID)})
	require.NoError(t, err)
	f.boltID, err = r.InsertPart(ctx, model.Part{Name: "Bolt", FileLocation: "bolt.prt"})
	require.NoError(t, err)
	f.axisID, err = r.InsertFeature(ctx, model.Feature{Name: "Axis", PartID: f.boltID})
	require.NoError(t, err)
	f.bolt1ID, err = r.InsertItem(ctx, model.AssemblyItem{AssemblyID: f.mainID, PartID: model.ID(f.boltID), InstanceName: "Bolt-1"})
	require.NoError(t, err)
	f.bolt2ID, err = r.InsertItem(ctx, model.AssemblyItem{AssemblyID: f.mainID, PartID: model.ID(f.boltID), InstanceName: "Bolt-2"})
	require.NoError(t, err)
	f.subItemID, err = r.InsertItem(ctx, model.AssemblyItem{AssemblyID: f.mainID, SubAssemblyID: model.ID(f.subID), InstanceName: "Sub-1"})
	require.NoError(t, err)
	f.connectorID, err = r.InsertConnector(ctx, model.Connector{
		Type:            model.Coincident,
		Feature1ID:      f.axisID,
		Feature2ID:      f.axisID,
		AssemblyItem1ID: f.bolt1ID,
		AssemblyItem2ID: f.bolt2ID,
	})
	require.NoError(t, err)
	require.NoError(t, r.UpdateSystemRoot(ctx, f.systemID, model.ID(f.mainID)))
	return f
}
