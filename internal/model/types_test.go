package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssemblyItem_Kind(t *testing.T) {
	part := AssemblyItem{PartID: ID(5)}
	assert.True(t, part.IsPartInstance())
	assert.False(t, part.IsSubAssembly())

	sub := AssemblyItem{SubAssemblyID: ID(7)}
	assert.False(t, sub.IsPartInstance())
	assert.True(t, sub.IsSubAssembly())

	both := AssemblyItem{PartID: ID(5), SubAssemblyID: ID(7)}
	assert.False(t, both.IsPartInstance())
	assert.False(t, both.IsSubAssembly())

	var neither AssemblyItem
	assert.False(t, neither.IsPartInstance())
	assert.False(t, neither.IsSubAssembly())
}

func TestConnectorType_Valid(t *testing.T) {
	for _, ct := range ConnectorTypes {
		assert.True(t, ct.Valid(), ct)
	}
	assert.False(t, ConnectorType("glued").Valid())
	assert.False(t, ConnectorType("").Valid())
}

func TestParseConnectorType(t *testing.T) {
	ct, ok := ParseConnectorType("  Coincident ")
	require.True(t, ok)
	assert.Equal(t, Coincident, ct)

	_, ok = ParseConnectorType("welded")
	assert.False(t, ok)
}

func TestSameID(t *testing.T) {
	assert.True(t, SameID(nil, nil))
	assert.True(t, SameID(ID(3), ID(3)))
	assert.False(t, SameID(ID(3), ID(4)))
	assert.False(t, SameID(ID(3), nil))
	assert.Equal(t, int64(0), IDValue(nil))
	assert.Equal(t, int64(9), IDValue(ID(9)))
}

func TestAssembly_JSONOmitsUnsetReferences(t *testing.T) {
	data, err := json.Marshal(Assembly{ID: 1, Name: "Main", FileLocation: "main.asm"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"name":"Main","file_location":"main.asm"}`, string(data))
}
