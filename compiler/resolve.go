package compiler

import (
	"fmt"

	"mlql/ir"
	"mlql/schema"
)

// ValidateExpr walks an expression tree checking it against env and the
// function table: every Column must resolve, every call must name a
// known function at a legal arity, and an AggCall may only appear when
// allowAgg is true — GroupBy.Aggs is the only legal home for one (spec
// §3.2 "AggCall is valid only directly inside GroupBy.Aggs"). Column
// resolution failures and ambiguity surface as the underlying
// schema.Error via Cause so callers can errors.As down to it.
func ValidateExpr(opIndex int, path string, e ir.Expr, env *schema.Environment, allowAgg bool) error {
	switch t := e.(type) {
	case ir.Column:
		if _, err := env.Resolve(t.Table, t.Column); err != nil {
			return Wrap(opIndex, path, err)
		}
		return nil
	case ir.Literal:
		return nil
	case ir.BinaryOp:
		if err := ValidateExpr(opIndex, path+".left", t.Left, env, false); err != nil {
			return err
		}
		return ValidateExpr(opIndex, path+".right", t.Right, env, false)
	case ir.UnaryOp:
		return ValidateExpr(opIndex, path+".arg", t.Arg, env, false)
	case ir.FuncCall:
		sig, ok := LookupFunc(t.Func)
		if !ok {
			return TypeErr(opIndex, path, fmt.Sprintf("unknown function %q", t.Func))
		}
		if sig.IsAggregate {
			return TypeErr(opIndex, path, fmt.Sprintf("%q is an aggregate function, not a scalar one", t.Func))
		}
		if !sig.CheckArity(len(t.Args)) {
			return TypeErr(opIndex, path, fmt.Sprintf("%q called with %d argument(s)", t.Func, len(t.Args)))
		}
		for i, a := range t.Args {
			if err := ValidateExpr(opIndex, fmt.Sprintf("%s.args[%d]", path, i), a, env, false); err != nil {
				return err
			}
		}
		return nil
	case ir.AggCall:
		if !allowAgg {
			return UnsupportedErr(opIndex, fmt.Sprintf("aggregate call %q outside GroupBy.Aggs", t.Func))
		}
		sig, ok := LookupFunc(t.Func)
		if !ok {
			return TypeErr(opIndex, path, fmt.Sprintf("unknown function %q", t.Func))
		}
		if !sig.IsAggregate {
			return TypeErr(opIndex, path, fmt.Sprintf("%q is a scalar function, not an aggregate one", t.Func))
		}
		if !sig.CheckArity(len(t.Args)) {
			return TypeErr(opIndex, path, fmt.Sprintf("%q called with %d argument(s)", t.Func, len(t.Args)))
		}
		for i, a := range t.Args {
			if err := ValidateExpr(opIndex, fmt.Sprintf("%s.args[%d]", path, i), a, env, false); err != nil {
				return err
			}
		}
		return nil
	default:
		return InternalErr(opIndex, fmt.Sprintf("unhandled expression type %T", e))
	}
}
