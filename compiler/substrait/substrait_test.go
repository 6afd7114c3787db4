package substrait

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mlql/catalog"
	"mlql/compiler"
	"mlql/ir"
	"mlql/schema"
)

func testProvider() schema.Provider {
	return catalog.NewStatic(
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

func TestCompileSubstraitFilterProducesRootRelation(t *testing.T) {
	prog := &ir.Program{Pipeline: ir.Pipeline{
		Source: ir.Table{Name: "orders"},
		Ops: []ir.Operator{
			ir.Filter{Condition: ir.BinaryOp{
				Op:    ir.Gt,
				Left:  ir.Column{ColumnRef: ir.ColumnRef{Column: "total"}},
				Right: ir.FloatLiteral(100),
			}},
		},
	}}
	out, err := CompileSubstrait(prog, testProvider())
	require.NoError(t, err)
	assert.Contains(t, out, `"relations"`)
	assert.Contains(t, out, `"extension_uris"`)
	assert.Contains(t, out, `"filter"`)
}

func TestCompileSubstraitGroupByEmitsAggregateRel(t *testing.T) {
	prog := &ir.Program{Pipeline: ir.Pipeline{
		Source: ir.Table{Name: "orders"},
		Ops: []ir.Operator{
			ir.GroupBy{
				Keys: []ir.ColumnRef{{Column: "state"}},
				Aggs: map[string]ir.AggCall{
					"total_amount": {Func: "sum", Args: []ir.Expr{ir.Column{ColumnRef: ir.ColumnRef{Column: "total"}}}},
				},
				AggOrder: []string{"total_amount"},
			},
		},
	}}
	out, err := CompileSubstrait(prog, testProvider())
	require.NoError(t, err)
	assert.Contains(t, out, `"aggregate"`)
	assert.Contains(t, out, `extensions/functions_aggregate_generic.yaml"`)
	assert.Contains(t, out, `"projection"`, "a GroupBy directly on a Table source should push a projection mask into the ReadRel")
	assert.Contains(t, out, `"expression_references"`, "the newer indirection form must be populated alongside the deprecated grouping_expressions list")
}

func TestCompileSubstraitFilterThenGroupByOmitsProjectionMask(t *testing.T) {
	prog := &ir.Program{Pipeline: ir.Pipeline{
		Source: ir.Table{Name: "orders"},
		Ops: []ir.Operator{
			ir.Filter{Condition: ir.BinaryOp{
				Op:    ir.Gt,
				Left:  ir.Column{ColumnRef: ir.ColumnRef{Column: "id"}},
				Right: ir.IntLiteral(0),
			}},
			ir.GroupBy{
				Keys:     []ir.ColumnRef{{Column: "state"}},
				Aggs:     map[string]ir.AggCall{"total_amount": {Func: "sum", Args: []ir.Expr{ir.Column{ColumnRef: ir.ColumnRef{Column: "total"}}}}},
				AggOrder: []string{"total_amount"},
			},
		},
	}}
	out, err := CompileSubstrait(prog, testProvider())
	require.NoError(t, err)
	assert.NotContains(t, out, `"projection"`, "a Filter between the source and the GroupBy means the mask would wrongly prune columns the Filter needs")
}

func TestCompileSubstraitJoinEmitsJoinRel(t *testing.T) {
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
	out, err := CompileSubstrait(prog, testProvider())
	require.NoError(t, err)
	assert.Contains(t, out, `"join"`)
	assert.Contains(t, out, `"JOIN_TYPE_INNER"`)
}

func TestCompileSubstraitCrossJoinRejected(t *testing.T) {
	prog := &ir.Program{Pipeline: ir.Pipeline{
		Source: ir.Table{Name: "orders"},
		Ops: []ir.Operator{
			ir.Join{Source: ir.Table{Name: "customers"}, Kind: ir.Cross, On: ir.BoolLiteral(true)},
		},
	}}
	_, err := CompileSubstrait(prog, testProvider())
	require.Error(t, err)
	var cErr *compiler.Error
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, compiler.Unsupported, cErr.Kind)
}

func TestCompileSubstraitUnknownFunctionIsTypeError(t *testing.T) {
	prog := &ir.Program{Pipeline: ir.Pipeline{
		Source: ir.Table{Name: "orders"},
		Ops: []ir.Operator{
			ir.Select{Projections: []ir.Projection{
				{Expr: ir.FuncCall{Func: "not_a_real_function", Args: []ir.Expr{ir.Column{ColumnRef: ir.ColumnRef{Column: "state"}}}}, Alias: "x"},
			}},
		},
	}}
	_, err := CompileSubstrait(prog, testProvider())
	require.Error(t, err)
	var cErr *compiler.Error
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, compiler.TypeError, cErr.Kind)
}

func TestCompileSubstraitDeterministicAcrossRuns(t *testing.T) {
	prog := &ir.Program{Pipeline: ir.Pipeline{
		Source: ir.Table{Name: "orders"},
		Ops: []ir.Operator{
			ir.GroupBy{
				Keys: []ir.ColumnRef{{Column: "state"}},
				Aggs: map[string]ir.AggCall{
					"n":   {Func: "count"},
					"avg": {Func: "avg", Args: []ir.Expr{ir.Column{ColumnRef: ir.ColumnRef{Column: "total"}}}},
				},
				AggOrder: []string{"n", "avg"},
			},
		},
	}}
	out1, err := CompileSubstrait(prog, testProvider())
	require.NoError(t, err)
	out2, err := CompileSubstrait(prog, testProvider())
	require.NoError(t, err)
	assert.Equal(t, out1, out2, "translating the same program twice must assign identical extension anchors")
	assert.True(t, strings.Contains(out1, `"function_anchor"`))
}
