package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveProviderInlineSchema(t *testing.T) {
	doc := `
[[tables]]
name = "users"
  [[tables.columns]]
  name = "id"
  type = "int64"
  nullable = false
`
	provider, err := resolveProvider(&compileFlags{inlineSchema: doc})
	require.NoError(t, err)

	ts, err := provider.GetTableSchema("users")
	require.NoError(t, err)
	assert.Equal(t, "users", ts.Name)
	require.Len(t, ts.Columns, 1)
	assert.Equal(t, "id", ts.Columns[0].Name)
}

func TestResolveProviderDefaultsToEmptyStatic(t *testing.T) {
	provider, err := resolveProvider(&compileFlags{})
	require.NoError(t, err)
	_, err = provider.GetTableSchema("anything")
	require.Error(t, err)
}

func TestResolveProviderRejectsMultipleSources(t *testing.T) {
	_, err := resolveProvider(&compileFlags{catalogFile: "schema.toml", inlineSchema: "[[tables]]"})
	require.Error(t, err)
}

func TestResolveProviderInvalidInlineSchemaSurfacesParseError(t *testing.T) {
	_, err := resolveProvider(&compileFlags{inlineSchema: "not = [valid toml"})
	require.Error(t, err)
}
