package sql

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
			{Name: "age", DataType: schema.Int32},
		}},
		schema.TableSchema{Name: "locations", Columns: []schema.ColumnInfo{
			{Name: "city", DataType: schema.String},
			{Name: "state", DataType: schema.String},
		}},
		schema.TableSchema{Name: "orders", Columns: []schema.ColumnInfo{
			{Name: "id", DataType: schema.Int64},
			{Name: "state", DataType: schema.String},
			{Name: "total", DataType: schema.Float64},
		}},
		schema.TableSchema{Name: "customers", Columns: []schema.ColumnInfo{
			{Name: "id", DataType: schema.Int64},
			{Name: "name", DataType: schema.String},
		}},
	)
}

// Scenario 1: a Filter then a Take compiles to a flat SELECT with no CTE.
func TestCompileSQLFilterThenTake(t *testing.T) {
	prog := &ir.Program{Pipeline: ir.Pipeline{
		Source: ir.Table{Name: "users"},
		Ops: []ir.Operator{
			ir.Filter{Condition: ir.BinaryOp{
				Op:    ir.Gt,
				Left:  ir.Column{ColumnRef: ir.ColumnRef{Column: "age"}},
				Right: ir.IntLiteral(25),
			}},
			ir.Take{Limit: 3},
		},
	}}
	out, err := CompileSQL(prog, testProvider())
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "users" WHERE ("age" > 25) LIMIT 3`, out)
}

// Scenario 2: GroupBy followed by Sort/Take over the GroupBy's own output
// alias stays a single flat SELECT — no materialization needed since
// ORDER BY and LIMIT apply to the finished row set.
func TestCompileSQLGroupBySortOnAggregateAlias(t *testing.T) {
	prog := &ir.Program{Pipeline: ir.Pipeline{
		Source: ir.Table{Name: "orders"},
		Ops: []ir.Operator{
			ir.GroupBy{
				Keys:     []ir.ColumnRef{{Column: "state"}},
				Aggs:     map[string]ir.AggCall{"total": {Func: "count"}},
				AggOrder: []string{"total"},
			},
			ir.Sort{Keys: []ir.SortKey{{Expr: ir.Column{ColumnRef: ir.ColumnRef{Column: "total"}}, Desc: true}}},
			ir.Take{Limit: 5},
		},
	}}
	out, err := CompileSQL(prog, testProvider())
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "state", count(*) AS "total" FROM "orders" GROUP BY "state" ORDER BY "total" DESC NULLS LAST LIMIT 5`,
		out)
}

// Scenario 3: an inner Join renders as a JOIN clause on the FROM phase.
func TestCompileSQLInnerJoin(t *testing.T) {
	prog := &ir.Program{Pipeline: ir.Pipeline{
		Source: ir.Table{Name: "orders"},
		Ops: []ir.Operator{
			ir.Join{
				Source: ir.Table{Name: "customers"},
				Kind:   ir.Inner,
				On: ir.BinaryOp{
					Op:    ir.Eq,
					Left:  ir.Column{ColumnRef: ir.ColumnRef{Table: "orders", Column: "id"}},
					Right: ir.Column{ColumnRef: ir.ColumnRef{Table: "customers", Column: "id"}},
				},
			},
		},
	}}
	out, err := CompileSQL(prog, testProvider())
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT * FROM "orders" INNER JOIN "customers" ON ("orders"."id" = "customers"."id")`,
		out)
}

// Scenario 4: Distinct over specific columns renders SELECT DISTINCT.
func TestCompileSQLDistinct(t *testing.T) {
	prog := &ir.Program{Pipeline: ir.Pipeline{
		Source: ir.Table{Name: "locations"},
		Ops: []ir.Operator{
			ir.Select{Projections: []ir.Projection{
				{Expr: ir.Column{ColumnRef: ir.ColumnRef{Column: "city"}}},
				{Expr: ir.Column{ColumnRef: ir.ColumnRef{Column: "state"}}},
			}},
			ir.Distinct{},
		},
	}}
	out, err := CompileSQL(prog, testProvider())
	require.NoError(t, err)
	assert.Equal(t, `SELECT DISTINCT "city", "state" FROM "locations"`, out)
}

// Scenario 5: an unknown column surfaces a schema error with the
// offending operator's index, not a generic SQL rendering failure.
func TestCompileSQLUnknownColumnSurfacesSchemaError(t *testing.T) {
	prog := &ir.Program{Pipeline: ir.Pipeline{
		Source: ir.Table{Name: "users"},
		Ops: []ir.Operator{
			ir.Filter{Condition: ir.BinaryOp{
				Op:    ir.Gt,
				Left:  ir.Column{ColumnRef: ir.ColumnRef{Column: "nonexistent"}},
				Right: ir.IntLiteral(1),
			}},
		},
	}}
	_, err := CompileSQL(prog, testProvider())
	require.Error(t, err)
	var schemaErr *schema.Error
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, schema.ColumnNotFound, schemaErr.Kind)
}

// A second Select that would need to reference an alias from a prior
// Select/GroupBy while replacing its projection list forces a CTE
// materialization boundary.
func TestCompileSQLSecondProjectionForcesMaterialization(t *testing.T) {
	prog := &ir.Program{Pipeline: ir.Pipeline{
		Source: ir.Table{Name: "orders"},
		Ops: []ir.Operator{
			ir.GroupBy{
				Keys:     []ir.ColumnRef{{Column: "state"}},
				Aggs:     map[string]ir.AggCall{"total": {Func: "count"}},
				AggOrder: []string{"total"},
			},
			ir.Select{Projections: []ir.Projection{
				{Expr: ir.Column{ColumnRef: ir.ColumnRef{Column: "total"}}},
			}},
		},
	}}
	out, err := CompileSQL(prog, testProvider())
	require.NoError(t, err)
	assert.Equal(t,
		`WITH cte0 AS (SELECT "state", count(*) AS "total" FROM "orders" GROUP BY "state") SELECT "total" FROM "cte0"`,
		out)
}

func TestCompileSQLSubPipelineSource(t *testing.T) {
	inner := &ir.Pipeline{
		Source: ir.Table{Name: "orders"},
		Ops:    []ir.Operator{ir.Filter{Condition: ir.BinaryOp{Op: ir.Gt, Left: ir.Column{ColumnRef: ir.ColumnRef{Column: "total"}}, Right: ir.FloatLiteral(0)}}},
	}
	prog := &ir.Program{Pipeline: ir.Pipeline{
		Source: ir.SubPipeline{Pipeline: inner},
		Ops:    []ir.Operator{ir.Take{Limit: 1}},
	}}
	out, err := CompileSQL(prog, testProvider())
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT * FROM (SELECT * FROM "orders" WHERE ("total" > 0)) LIMIT 1`,
		out)
}
