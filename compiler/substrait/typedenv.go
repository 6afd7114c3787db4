package substrait

import (
	"mlql/compiler"
	"mlql/ir"
	"mlql/schema"
)

// buildTypedEnvs walks the pipeline in lockstep with the already
// computed (and already validated) schema.Environment slice, producing
// the parallel per-position typedEnv this backend needs for
// function-signature resolution (spec §4.5, §6.5). It never re-reports
// validation errors; compiler.EnvAt already did that.
func buildTypedEnvs(pl *ir.Pipeline, envs []*schema.Environment, provider schema.Provider) ([]*typedEnv, error) {
	seed, err := seedTypedEnv(pl.Source, provider)
	if err != nil {
		return nil, err
	}
	tenvs := make([]*typedEnv, len(pl.Ops)+1)
	tenvs[0] = seed
	cur := seed
	for i, op := range pl.Ops {
		next, err := transitionTypedEnv(cur, op, provider)
		if err != nil {
			return nil, err
		}
		tenvs[i+1] = next
		cur = next
	}
	return tenvs, nil
}

func seedTypedEnv(src ir.Source, provider schema.Provider) (*typedEnv, error) {
	switch t := src.(type) {
	case ir.Table:
		ts, err := provider.GetTableSchema(t.Name)
		if err != nil {
			return nil, compiler.Wrap(-1, "source", err)
		}
		return typedEnvFromSchema(ts), nil
	case ir.SubPipeline:
		envs, err := compiler.EnvAt(t.Pipeline, provider)
		if err != nil {
			return nil, err
		}
		tenvs, err := buildTypedEnvs(t.Pipeline, envs, provider)
		if err != nil {
			return nil, err
		}
		return tenvs[len(tenvs)-1], nil
	default:
		return nil, compiler.InternalErr(-1, "unhandled source type in typed-environment walk")
	}
}

func transitionTypedEnv(cur *typedEnv, op ir.Operator, provider schema.Provider) (*typedEnv, error) {
	switch t := op.(type) {
	case ir.Filter, ir.Sort, ir.Take, ir.Distinct:
		return cur, nil

	case ir.Select:
		cols := make([]string, len(t.Projections))
		types := make([]schema.DataType, len(t.Projections))
		for i, p := range t.Projections {
			types[i] = inferType(p.Expr, cur)
			if p.HasAlias() {
				cols[i] = p.Alias
			} else if col, ok := p.Expr.(ir.Column); ok {
				cols[i] = col.Column
			} else {
				cols[i] = ""
			}
		}
		return &typedEnv{columns: cols, types: types}, nil

	case ir.GroupBy:
		cols := make([]string, 0, len(t.Keys)+len(t.AggOrder))
		types := make([]schema.DataType, 0, len(t.Keys)+len(t.AggOrder))
		for _, k := range t.Keys {
			cols = append(cols, k.Column)
			if i := cur.indexOf(k.Column); i >= 0 {
				types = append(types, cur.types[i])
			} else {
				types = append(types, schema.Other)
			}
		}
		for _, alias := range t.AggOrder {
			call := t.Aggs[alias]
			cols = append(cols, alias)
			types = append(types, inferFuncResult(call.Func, call.Args, cur))
		}
		return &typedEnv{columns: cols, types: types}, nil

	case ir.Join:
		right, err := seedTypedEnv(t.Source, provider)
		if err != nil {
			return nil, err
		}
		return concatTypedEnv(cur, right), nil

	default:
		return nil, compiler.InternalErr(-1, "unhandled operator type in typed-environment walk")
	}
}
