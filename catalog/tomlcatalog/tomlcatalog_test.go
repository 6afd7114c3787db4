package tomlcatalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mlql/schema"
)

const sampleCatalog = `
[[tables]]
name = "users"

  [[tables.columns]]
  name = "id"
  type = "int64"
  nullable = false

  [[tables.columns]]
  name = "email"
  type = "string"
  nullable = true

[[tables]]
name = "orders"

  [[tables.columns]]
  name = "total"
  type = "double"
  nullable = false
`

func TestParseBuildsTableSchemas(t *testing.T) {
	c, err := Parse(strings.NewReader(sampleCatalog))
	require.NoError(t, err)

	users, err := c.GetTableSchema("users")
	require.NoError(t, err)
	assert.Equal(t, "users", users.Name)
	require.Len(t, users.Columns, 2)
	assert.Equal(t, schema.ColumnInfo{Name: "id", DataType: schema.Int64, Nullable: false}, users.Columns[0])
	assert.Equal(t, schema.ColumnInfo{Name: "email", DataType: schema.String, Nullable: true}, users.Columns[1])

	orders, err := c.GetTableSchema("orders")
	require.NoError(t, err)
	assert.Equal(t, schema.Float64, orders.Columns[0].DataType)
}

func TestParseUnknownTableNotFound(t *testing.T) {
	c, err := Parse(strings.NewReader(sampleCatalog))
	require.NoError(t, err)
	_, err = c.GetTableSchema("missing")
	require.Error(t, err)
	var schemaErr *schema.Error
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, schema.TableNotFound, schemaErr.Kind)
}

func TestParseUnknownTypeMapsToOther(t *testing.T) {
	doc := `
[[tables]]
name = "weird"
  [[tables.columns]]
  name = "blob_col"
  type = "mystery_type"
`
	c, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	ts, err := c.GetTableSchema("weird")
	require.NoError(t, err)
	assert.Equal(t, schema.Other, ts.Columns[0].DataType)
}

func TestParseInvalidTOML(t *testing.T) {
	_, err := Parse(strings.NewReader("not = [valid toml"))
	require.Error(t, err)
}

func TestTablesReturnsEveryParsedTable(t *testing.T) {
	c, err := Parse(strings.NewReader(sampleCatalog))
	require.NoError(t, err)

	tables := c.Tables()
	require.Len(t, tables, 2)
	names := map[string]bool{}
	for _, ts := range tables {
		names[ts.Name] = true
	}
	assert.True(t, names["users"])
	assert.True(t, names["orders"])
}
