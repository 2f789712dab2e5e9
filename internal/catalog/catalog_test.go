package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCatalog_LoadCSVAndLookup(t *testing.T) {
	csvData := `part_number,system,component,component_description,covered,note
PN-100,engine,turbocharger,Turbocharger Assembly,true,
PN-200,engine,air filter,Air Filter,false,wear item
PN-300,brakes,brake pad,Brake Pad Set,,representative only
`
	c := NewMemoryCatalog()
	require.NoError(t, c.LoadCSV(strings.NewReader(csvData)))

	result, err := c.Lookup("pn-100")
	require.NoError(t, err)
	assert.True(t, result.Found)
	assert.Equal(t, "engine", result.System)
	assert.Equal(t, "turbocharger", result.Component)
	require.NotNil(t, result.Covered)
	assert.True(t, *result.Covered)

	excluded, err := c.Lookup("PN-200")
	require.NoError(t, err)
	require.NotNil(t, excluded.Covered)
	assert.False(t, *excluded.Covered)
	assert.Equal(t, "wear item", excluded.Note)

	unknownCoverage, err := c.Lookup("PN-300")
	require.NoError(t, err)
	assert.Nil(t, unknownCoverage.Covered)
}

func TestMemoryCatalog_LookupMiss(t *testing.T) {
	c := NewMemoryCatalog()
	result, err := c.Lookup("NOPE")
	require.NoError(t, err)
	assert.False(t, result.Found)
}

func TestMemoryCatalog_LoadCSVMissingRequiredColumn(t *testing.T) {
	c := NewMemoryCatalog()
	err := c.LoadCSV(strings.NewReader("system,component\nengine,turbocharger\n"))
	assert.Error(t, err)
}

func TestMemoryCatalog_PutOverwrites(t *testing.T) {
	c := NewMemoryCatalog()
	c.Put(Entry{PartNumber: "PN-1", System: "engine", Component: "turbo"})
	c.Put(Entry{PartNumber: "pn-1", System: "engine", Component: "turbocharger"})

	result, err := c.Lookup("PN-1")
	require.NoError(t, err)
	assert.Equal(t, "turbocharger", result.Component)
}
