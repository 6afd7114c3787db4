package substrait

import (
	substraitpb "github.com/substrait-io/substrait-go/v4/proto"

	"mlql/ir"
	"mlql/schema"
)

// typedEnv mirrors a schema.Environment but additionally carries a
// coarse type per column, tracked only by this backend (spec §4.2's
// type tags exist precisely so the Substrait backend can pick function
// signatures; the SQL backend has no analogous need).
type typedEnv struct {
	columns []string
	types   []schema.DataType
}

func (e *typedEnv) len() int { return len(e.columns) }

func (e *typedEnv) indexOf(column string) int {
	for i, c := range e.columns {
		if c == column {
			return i
		}
	}
	return -1
}

func typedEnvFromSchema(ts schema.TableSchema) *typedEnv {
	cols := make([]string, len(ts.Columns))
	types := make([]schema.DataType, len(ts.Columns))
	for i, c := range ts.Columns {
		cols[i] = c.Name
		types[i] = c.DataType
	}
	return &typedEnv{columns: cols, types: types}
}

func concatTypedEnv(left, right *typedEnv) *typedEnv {
	cols := append(append([]string{}, left.columns...), right.columns...)
	types := append(append([]schema.DataType{}, left.types...), right.types...)
	return &typedEnv{columns: cols, types: types}
}

// inferType approximates the coarse result type of an expression. MLQL
// carries no full type system (Non-goal: no cost model); this is only
// precise enough to build a plausible function signature string for the
// extension table (spec §6.5).
func inferType(e ir.Expr, env *typedEnv) schema.DataType {
	switch t := e.(type) {
	case ir.Column:
		if i := env.indexOf(t.Column); i >= 0 {
			return env.types[i]
		}
		return schema.Other
	case ir.Literal:
		switch t.Kind {
		case ir.LiteralBool:
			return schema.Bool
		case ir.LiteralInteger:
			return schema.Int64
		case ir.LiteralFloat:
			return schema.Float64
		case ir.LiteralString:
			return schema.String
		default:
			return schema.Other
		}
	case ir.BinaryOp:
		switch t.Op {
		case ir.Eq, ir.Ne, ir.Lt, ir.Le, ir.Gt, ir.Ge, ir.And, ir.Or, ir.Like, ir.ILike:
			return schema.Bool
		default:
			return inferType(t.Left, env)
		}
	case ir.UnaryOp:
		if t.Op == ir.Not {
			return schema.Bool
		}
		return inferType(t.Arg, env)
	case ir.FuncCall:
		return inferFuncResult(t.Func, t.Args, env)
	case ir.AggCall:
		return inferFuncResult(t.Func, t.Args, env)
	default:
		return schema.Other
	}
}

func inferFuncResult(name string, args []ir.Expr, env *typedEnv) schema.DataType {
	switch name {
	case "count":
		return schema.Int64
	case "avg":
		return schema.Float64
	case "min", "max", "sum":
		if len(args) > 0 {
			return inferType(args[0], env)
		}
		return schema.Other
	default:
		if len(args) > 0 {
			return inferType(args[0], env)
		}
		return schema.Other
	}
}

// typeCode returns the short type code Substrait signature strings use
// (spec §6.5 example: "gt:i32_i32").
func typeCode(dt schema.DataType) string {
	switch dt {
	case schema.Int32:
		return "i32"
	case schema.Int64:
		return "i64"
	case schema.Float32:
		return "fp32"
	case schema.Float64:
		return "fp64"
	case schema.String:
		return "str"
	case schema.Bool:
		return "bool"
	case schema.Date:
		return "date"
	case schema.Timestamp:
		return "ts"
	case schema.Decimal:
		return "dec"
	default:
		return "any"
	}
}

// substraitType builds the Substrait Type message for a coarse MLQL
// data type, used in ReadRel's base_schema (spec §4.5).
func substraitType(dt schema.DataType, nullable bool) *substraitpb.Type {
	nb := substraitpb.Type_NULLABILITY_REQUIRED
	if nullable {
		nb = substraitpb.Type_NULLABILITY_NULLABLE
	}
	switch dt {
	case schema.Int32:
		return &substraitpb.Type{Kind: &substraitpb.Type_I32_{I32: &substraitpb.Type_I32{Nullability: nb}}}
	case schema.Int64:
		return &substraitpb.Type{Kind: &substraitpb.Type_I64_{I64: &substraitpb.Type_I64{Nullability: nb}}}
	case schema.Float32:
		return &substraitpb.Type{Kind: &substraitpb.Type_Fp32_{Fp32: &substraitpb.Type_Fp32{Nullability: nb}}}
	case schema.Float64:
		return &substraitpb.Type{Kind: &substraitpb.Type_Fp64_{Fp64: &substraitpb.Type_Fp64{Nullability: nb}}}
	case schema.Bool:
		return &substraitpb.Type{Kind: &substraitpb.Type_Bool{Bool: &substraitpb.Type_Boolean{Nullability: nb}}}
	case schema.Date:
		return &substraitpb.Type{Kind: &substraitpb.Type_Date_{Date: &substraitpb.Type_Date{Nullability: nb}}}
	case schema.Timestamp:
		return &substraitpb.Type{Kind: &substraitpb.Type_Timestamp_{Timestamp: &substraitpb.Type_Timestamp{Nullability: nb}}}
	case schema.Decimal:
		return &substraitpb.Type{Kind: &substraitpb.Type_Decimal_{Decimal: &substraitpb.Type_Decimal{Nullability: nb}}}
	case schema.String:
		return &substraitpb.Type{Kind: &substraitpb.Type_String_{String_: &substraitpb.Type_String{Nullability: nb}}}
	default:
		return &substraitpb.Type{Kind: &substraitpb.Type_String_{String_: &substraitpb.Type_String{Nullability: nb}}}
	}
}
