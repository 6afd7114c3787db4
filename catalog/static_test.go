package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mlql/schema"
)

func TestStaticGetTableSchema(t *testing.T) {
	c := NewStatic(schema.TableSchema{
		Name: "users",
		Columns: []schema.ColumnInfo{
			{Name: "id", DataType: schema.Int64},
		},
	})
	ts, err := c.GetTableSchema("users")
	require.NoError(t, err)
	assert.Equal(t, "users", ts.Name)
	assert.Len(t, ts.Columns, 1)
}

func TestStaticUnknownTable(t *testing.T) {
	c := NewStatic()
	_, err := c.GetTableSchema("missing")
	require.Error(t, err)
	var schemaErr *schema.Error
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, schema.TableNotFound, schemaErr.Kind)
}
