package compiler

import (
	"fmt"

	"mlql/ir"
	"mlql/schema"
)

// EnvAt threads the schema environment through a pipeline exactly as
// spec §4.3 prescribes, validating every expression it encounters along
// the way (§3.2). It returns one environment per position: envs[0] is
// the seeded environment at the source, and envs[i+1] is the
// environment after translating pl.Ops[i]. Both backends call this
// once at the start of a translation so the transition rules live in
// one place instead of two (spec §4.4, §4.5 each restate the same
// table).
func EnvAt(pl *ir.Pipeline, provider schema.Provider) ([]*schema.Environment, error) {
	seed, err := seedEnvironment(pl.Source, provider)
	if err != nil {
		return nil, err
	}
	envs := make([]*schema.Environment, len(pl.Ops)+1)
	envs[0] = seed
	cur := seed
	for i, op := range pl.Ops {
		next, err := transitionEnv(i, cur, op, provider)
		if err != nil {
			return nil, err
		}
		envs[i+1] = next
		cur = next
	}
	return envs, nil
}

// SeedEnvironment computes the environment a Source contributes on its
// own, before any operator is applied — the per-Source half of the
// seeding rule in spec §4.3. Exported so both backends can compute a
// join's right-hand environment without re-walking the whole pipeline.
func SeedEnvironment(src ir.Source, provider schema.Provider) (*schema.Environment, error) {
	return seedEnvironment(src, provider)
}

func seedEnvironment(src ir.Source, provider schema.Provider) (*schema.Environment, error) {
	switch t := src.(type) {
	case ir.Table:
		qualifier := t.Alias
		if qualifier == "" {
			qualifier = t.Name
		}
		ts, err := provider.GetTableSchema(t.Name)
		if err != nil {
			return nil, Wrap(-1, "source", err)
		}
		return schema.FromTableSchema(ts, qualifier), nil
	case ir.SubPipeline:
		envs, err := EnvAt(t.Pipeline, provider)
		if err != nil {
			return nil, err
		}
		return envs[len(envs)-1], nil
	default:
		return nil, InternalErr(-1, fmt.Sprintf("unhandled source type %T", src))
	}
}

func transitionEnv(opIndex int, cur *schema.Environment, op ir.Operator, provider schema.Provider) (*schema.Environment, error) {
	switch t := op.(type) {
	case ir.Filter:
		if err := ValidateExpr(opIndex, "condition", t.Condition, cur, false); err != nil {
			return nil, err
		}
		return cur, nil

	case ir.Sort:
		for i, k := range t.Keys {
			if err := ValidateExpr(opIndex, fmt.Sprintf("keys[%d].expr", i), k.Expr, cur, false); err != nil {
				return nil, err
			}
		}
		return cur, nil

	case ir.Take:
		return cur, nil

	case ir.Distinct:
		return cur, nil

	case ir.Select:
		cols := make([]string, len(t.Projections))
		for i, p := range t.Projections {
			if err := ValidateExpr(opIndex, fmt.Sprintf("projections[%d].expr", i), p.Expr, cur, false); err != nil {
				return nil, err
			}
			name, err := projectionName(opIndex, i, p)
			if err != nil {
				return nil, err
			}
			cols[i] = name
		}
		return schema.NewEnvironment(cols), nil

	case ir.GroupBy:
		for i, k := range t.Keys {
			if _, err := cur.Resolve(k.Table, k.Column); err != nil {
				return nil, Wrap(opIndex, fmt.Sprintf("keys[%d]", i), err)
			}
		}
		cols := make([]string, 0, len(t.Keys)+len(t.AggOrder))
		for _, k := range t.Keys {
			cols = append(cols, k.Column)
		}
		for _, alias := range t.AggOrder {
			call, ok := t.Aggs[alias]
			if !ok {
				return nil, InternalErr(opIndex, fmt.Sprintf("AggOrder names alias %q absent from Aggs", alias))
			}
			if err := ValidateExpr(opIndex, fmt.Sprintf("aggs[%s]", alias), call, cur, true); err != nil {
				return nil, err
			}
			cols = append(cols, alias)
		}
		return schema.NewEnvironment(cols), nil

	case ir.Join:
		if t.Kind == ir.Cross {
			return nil, UnsupportedErr(opIndex, "Join::Cross")
		}
		if _, ok := ir.ValidJoinKind(t.Kind); !ok {
			return nil, InternalErr(opIndex, fmt.Sprintf("unrecognized join kind %q", t.Kind))
		}
		rightEnv, err := seedEnvironment(t.Source, provider)
		if err != nil {
			return nil, err
		}
		combined := schema.Concat(cur, rightEnv)
		if err := ValidateExpr(opIndex, "on", t.On, combined, false); err != nil {
			return nil, err
		}
		return combined, nil

	default:
		return nil, InternalErr(opIndex, fmt.Sprintf("unhandled operator type %T", op))
	}
}

// projectionName computes a Select projection's output column name: the
// alias if given, otherwise the "natural name" of a bare column
// reference. A computed expression without an alias has no natural name
// to fall back to, which spec §3.1's "bare Expr (emitting its natural
// name)" wording implicitly restricts to column references.
func projectionName(opIndex, i int, p ir.Projection) (string, error) {
	if p.HasAlias() {
		return p.Alias, nil
	}
	if col, ok := p.Expr.(ir.Column); ok {
		return col.Column, nil
	}
	return "", UnsupportedErr(opIndex, fmt.Sprintf("projections[%d]: computed expression without alias", i))
}
