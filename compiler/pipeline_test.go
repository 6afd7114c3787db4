package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mlql/catalog"
	"mlql/ir"
	"mlql/schema"
)

func testProvider() schema.Provider {
	return catalog.NewStatic(
		schema.TableSchema{Name: "users", Columns: []schema.ColumnInfo{
			{Name: "id", DataType: schema.Int64},
			{Name: "name", DataType: schema.String},
			{Name: "age", DataType: schema.Int32},
		}},
		schema.TableSchema{Name: "orders", Columns: []schema.ColumnInfo{
			{Name: "id", DataType: schema.Int64},
			{Name: "user_id", DataType: schema.Int64},
			{Name: "total", DataType: schema.Float64},
		}},
	)
}

func TestEnvAtFilterSortTakeDistinctUnchanged(t *testing.T) {
	pl := &ir.Pipeline{
		Source: ir.Table{Name: "users"},
		Ops: []ir.Operator{
			ir.Filter{Condition: ir.BinaryOp{Op: ir.Gt, Left: ir.Column{ColumnRef: ir.ColumnRef{Column: "age"}}, Right: ir.IntLiteral(18)}},
			ir.Sort{Keys: []ir.SortKey{{Expr: ir.Column{ColumnRef: ir.ColumnRef{Column: "name"}}}}},
			ir.Take{Limit: 10},
			ir.Distinct{},
		},
	}
	envs, err := EnvAt(pl, testProvider())
	require.NoError(t, err)
	for i := 1; i < len(envs); i++ {
		assert.Equal(t, envs[0].Columns, envs[i].Columns)
	}
}

func TestEnvAtSelectProjectsNamesInOrder(t *testing.T) {
	pl := &ir.Pipeline{
		Source: ir.Table{Name: "users"},
		Ops: []ir.Operator{
			ir.Select{Projections: []ir.Projection{
				{Expr: ir.Column{ColumnRef: ir.ColumnRef{Column: "name"}}},
				{Expr: ir.BinaryOp{Op: ir.Mul, Left: ir.Column{ColumnRef: ir.ColumnRef{Column: "age"}}, Right: ir.IntLiteral(2)}, Alias: "double_age"},
			}},
		},
	}
	envs, err := EnvAt(pl, testProvider())
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "double_age"}, envs[1].Columns)
}

func TestEnvAtSelectComputedWithoutAliasRejected(t *testing.T) {
	pl := &ir.Pipeline{
		Source: ir.Table{Name: "users"},
		Ops: []ir.Operator{
			ir.Select{Projections: []ir.Projection{
				{Expr: ir.BinaryOp{Op: ir.Mul, Left: ir.Column{ColumnRef: ir.ColumnRef{Column: "age"}}, Right: ir.IntLiteral(2)}},
			}},
		},
	}
	_, err := EnvAt(pl, testProvider())
	require.Error(t, err)
	var cErr *Error
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, Unsupported, cErr.Kind)
}

func TestEnvAtGroupByKeysThenAggsInOrder(t *testing.T) {
	pl := &ir.Pipeline{
		Source: ir.Table{Name: "orders"},
		Ops: []ir.Operator{
			ir.GroupBy{
				Keys: []ir.ColumnRef{{Column: "user_id"}},
				Aggs: map[string]ir.AggCall{
					"total":    {Func: "sum", Args: []ir.Expr{ir.Column{ColumnRef: ir.ColumnRef{Column: "total"}}}},
					"order_ct": {Func: "count"},
				},
				AggOrder: []string{"order_ct", "total"},
			},
		},
	}
	envs, err := EnvAt(pl, testProvider())
	require.NoError(t, err)
	assert.Equal(t, []string{"user_id", "order_ct", "total"}, envs[1].Columns)
}

func TestEnvAtAggCallRejectedOutsideGroupBy(t *testing.T) {
	pl := &ir.Pipeline{
		Source: ir.Table{Name: "orders"},
		Ops: []ir.Operator{
			ir.Filter{Condition: ir.AggCall{Func: "count"}},
		},
	}
	_, err := EnvAt(pl, testProvider())
	require.Error(t, err)
	var cErr *Error
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, Unsupported, cErr.Kind)
}

func TestEnvAtJoinConcatenatesEnvironments(t *testing.T) {
	pl := &ir.Pipeline{
		Source: ir.Table{Name: "users"},
		Ops: []ir.Operator{
			ir.Join{
				Source: ir.Table{Name: "orders"},
				Kind:   ir.Inner,
				On: ir.BinaryOp{
					Op:    ir.Eq,
					Left:  ir.Column{ColumnRef: ir.ColumnRef{Table: "users", Column: "id"}},
					Right: ir.Column{ColumnRef: ir.ColumnRef{Table: "orders", Column: "user_id"}},
				},
			},
		},
	}
	envs, err := EnvAt(pl, testProvider())
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "age", "id", "user_id", "total"}, envs[1].Columns)
}

func TestEnvAtJoinCrossRejected(t *testing.T) {
	pl := &ir.Pipeline{
		Source: ir.Table{Name: "users"},
		Ops: []ir.Operator{
			ir.Join{Source: ir.Table{Name: "orders"}, Kind: ir.Cross, On: ir.BoolLiteral(true)},
		},
	}
	_, err := EnvAt(pl, testProvider())
	require.Error(t, err)
	var cErr *Error
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, Unsupported, cErr.Kind)
}

func TestEnvAtUnknownColumnSurfacesSchemaError(t *testing.T) {
	pl := &ir.Pipeline{
		Source: ir.Table{Name: "users"},
		Ops: []ir.Operator{
			ir.Filter{Condition: ir.BinaryOp{Op: ir.Gt, Left: ir.Column{ColumnRef: ir.ColumnRef{Column: "nonexistent"}}, Right: ir.IntLiteral(1)}},
		},
	}
	_, err := EnvAt(pl, testProvider())
	require.Error(t, err)
	var schemaErr *schema.Error
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, schema.ColumnNotFound, schemaErr.Kind)
}
