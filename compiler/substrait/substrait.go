// Package substrait is the Substrait backend (spec §4.5): it walks an
// IR pipeline bottom-up into a rooted tree of Substrait relations, maintaining a
// function-extension registry alongside, and serializes the result as
// protobuf-JSON text (not binary protobuf — spec calls out a known
// deserialization hang in some native bindings as the reason).
package substrait

import (
	"fmt"
	"sort"

	"google.golang.org/protobuf/encoding/protojson"

	substraitpb "github.com/substrait-io/substrait-go/v4/proto"

	"mlql/compiler"
	"mlql/ir"
	"mlql/schema"
)

// CompileSubstrait translates program into a Substrait Plan, returned as
// protobuf-JSON text (spec §4.5, §6.3). opts accepts compiler.WithLogger
// to receive a Debug-level trace of the schema environment before/after
// each operator and a Trace-level dump of each extension-anchor
// registration (spec §3.2).
func CompileSubstrait(program *ir.Program, provider schema.Provider, opts ...compiler.Option) (string, error) {
	log := compiler.ResolveOptions(opts...).Logger

	envs, err := compiler.EnvAt(&program.Pipeline, provider)
	if err != nil {
		return "", err
	}
	tenvs, err := buildTypedEnvs(&program.Pipeline, envs, provider)
	if err != nil {
		return "", err
	}

	reg := newRegistry(log)
	rel, err := buildSource(program.Pipeline.Source, program.Pipeline.Ops, reg, provider)
	if err != nil {
		return "", err
	}
	for i, op := range program.Pipeline.Ops {
		rel, err = buildOperator(i, op, rel, envs[i], tenvs[i], reg, provider)
		if err != nil {
			return "", err
		}
		log.Debugf("substrait: op[%d] %T: env %v -> %v", i, op, envs[i].Columns, envs[i+1].Columns)
	}

	finalEnv := envs[len(envs)-1]
	uris, decls := reg.finalize()
	plan := &substraitpb.Plan{
		ExtensionUris: uris,
		Extensions:    decls,
		Version: &substraitpb.Version{
			MajorNumber: 0,
			MinorNumber: 55,
			PatchNumber: 0,
			Producer:    "mlql",
		},
		Relations: []*substraitpb.PlanRel{
			{
				RelType: &substraitpb.PlanRel_Root{
					Root: &substraitpb.RelRoot{
						Input: rel,
						Names: append([]string{}, finalEnv.Columns...),
					},
				},
			},
		},
	}

	out, err := protojson.MarshalOptions{UseProtoNames: true}.Marshal(plan)
	if err != nil {
		return "", compiler.InternalErr(-1, fmt.Sprintf("marshaling substrait plan: %v", err))
	}
	return string(out), nil
}

// buildSource constructs the leaf relation for a pipeline source,
// recursing for SubPipeline (spec §4.3 seeding, §4.5 ReadRel).
// followingOps is the operator sequence this source feeds into (empty
// for a Join's right-hand source, which has none of its own); it's
// consulted to push a projection mask into a Table's ReadRel when a
// GroupBy follows directly (spec §4.5).
func buildSource(src ir.Source, followingOps []ir.Operator, reg *registry, provider schema.Provider) (*substraitpb.Rel, error) {
	switch t := src.(type) {
	case ir.Table:
		ts, err := provider.GetTableSchema(t.Name)
		if err != nil {
			return nil, compiler.Wrap(-1, "source", err)
		}
		names := make([]string, len(ts.Columns))
		types := make([]*substraitpb.Type, len(ts.Columns))
		colIndex := make(map[string]int, len(ts.Columns))
		for i, c := range ts.Columns {
			names[i] = c.Name
			types[i] = substraitType(c.DataType, c.Nullable)
			colIndex[c.Name] = i
		}
		read := &substraitpb.ReadRel{
			BaseSchema: &substraitpb.NamedStruct{
				Names: names,
				Struct: &substraitpb.Type_Struct{
					Types:       types,
					Nullability: substraitpb.Type_NULLABILITY_REQUIRED,
				},
			},
			ReadType: &substraitpb.ReadRel_NamedTable_{
				NamedTable: &substraitpb.ReadRel_NamedTable{Names: []string{t.Name}},
			},
		}
		if mask := readProjectionMaskForGroupBy(followingOps, colIndex); mask != nil {
			read.Projection = mask
		}
		return &substraitpb.Rel{RelType: &substraitpb.Rel_Read{Read: read}}, nil

	case ir.SubPipeline:
		envs, err := compiler.EnvAt(t.Pipeline, provider)
		if err != nil {
			return nil, err
		}
		tenvs, err := buildTypedEnvs(t.Pipeline, envs, provider)
		if err != nil {
			return nil, err
		}
		rel, err := buildSource(t.Pipeline.Source, t.Pipeline.Ops, reg, provider)
		if err != nil {
			return nil, err
		}
		for i, op := range t.Pipeline.Ops {
			rel, err = buildOperator(i, op, rel, envs[i], tenvs[i], reg, provider)
			if err != nil {
				return nil, err
			}
		}
		return rel, nil

	default:
		return nil, compiler.InternalErr(-1, fmt.Sprintf("unhandled source type %T", src))
	}
}

// buildOperator wraps input with the relation corresponding to op,
// where env/tenv are the schema *before* this operator is applied (the
// schema the operator's own expressions must resolve against).
func buildOperator(opIndex int, op ir.Operator, input *substraitpb.Rel, env *schema.Environment, tenv *typedEnv, reg *registry, provider schema.Provider) (*substraitpb.Rel, error) {
	switch t := op.(type) {
	case ir.Filter:
		cond, err := buildExpr(opIndex, "condition", t.Condition, env, tenv, reg)
		if err != nil {
			return nil, err
		}
		return &substraitpb.Rel{RelType: &substraitpb.Rel_Filter{Filter: &substraitpb.FilterRel{
			Input:     input,
			Condition: cond,
		}}}, nil

	case ir.Select:
		exprs := make([]*substraitpb.Expression, len(t.Projections))
		for i, p := range t.Projections {
			e, err := buildExpr(opIndex, fmt.Sprintf("projections[%d].expr", i), p.Expr, env, tenv, reg)
			if err != nil {
				return nil, err
			}
			exprs[i] = e
		}
		return &substraitpb.Rel{RelType: &substraitpb.Rel_Project{Project: &substraitpb.ProjectRel{
			Input:       input,
			Expressions: exprs,
		}}}, nil

	case ir.Sort:
		sorts := make([]*substraitpb.SortField, len(t.Keys))
		for i, k := range t.Keys {
			e, err := buildExpr(opIndex, fmt.Sprintf("keys[%d].expr", i), k.Expr, env, tenv, reg)
			if err != nil {
				return nil, err
			}
			dir := substraitpb.SortField_SORT_DIRECTION_ASC_NULLS_FIRST
			if k.Desc {
				dir = substraitpb.SortField_SORT_DIRECTION_DESC_NULLS_LAST
			}
			sorts[i] = &substraitpb.SortField{
				Expr:     e,
				SortKind: &substraitpb.SortField_Direction{Direction: dir},
			}
		}
		return &substraitpb.Rel{RelType: &substraitpb.Rel_Sort{Sort: &substraitpb.SortRel{
			Input: input,
			Sorts: sorts,
		}}}, nil

	case ir.Take:
		var offset int64
		if t.Offset != nil {
			offset = int64(*t.Offset)
		}
		// reg.fetchLevel is resolved once per compile (extfixture.Default,
		// consulted in newRegistry); CompatCurrent is the only level this
		// backend actually produces today, so the deprecated scalar oneof
		// variants are always what gets populated (spec §4.5: target
		// engines dispatch on those accessors, not the newer expression
		// variants), but the decision point stays centralized here rather
		// than hardcoded so a future CompatLegacyFetch has one line to
		// change.
		fetch := &substraitpb.FetchRel{Input: input}
		switch reg.fetchLevel {
		default:
			fetch.OffsetType = &substraitpb.FetchRel_Offset{Offset: offset}
			fetch.CountType = &substraitpb.FetchRel_Count{Count: int64(t.Limit)}
		}
		return &substraitpb.Rel{RelType: &substraitpb.Rel_Fetch{Fetch: fetch}}, nil

	case ir.Distinct:
		groupExprs := make([]*substraitpb.Expression, env.Len())
		for i, col := range env.Columns {
			groupExprs[i] = fieldReferenceExpr(i, col)
		}
		grouping := buildAggregateGrouping(groupExprs)
		return &substraitpb.Rel{RelType: &substraitpb.Rel_Aggregate{Aggregate: &substraitpb.AggregateRel{
			Input:               input,
			Groupings:           []*substraitpb.AggregateRel_Grouping{grouping},
			GroupingExpressions: groupExprs,
		}}}, nil

	case ir.GroupBy:
		// A ReadRel carrying a projection mask (readProjectionMaskForGroupBy)
		// emits only the masked fields, so keys and measure arguments
		// resolve against that narrowed tuple, not the full table schema.
		if read := input.GetRead(); read != nil && read.GetProjection() != nil {
			items := read.GetProjection().GetSelect().GetStruct().GetStructItems()
			cols := make([]string, len(items))
			origins := make([]string, len(items))
			for i, it := range items {
				cols[i] = env.Columns[it.GetField()]
				origins[i] = env.Origin(int(it.GetField()))
			}
			env = schema.NewEnvironmentWithOrigin(cols, origins)
		}
		groupExprs := make([]*substraitpb.Expression, len(t.Keys))
		for i, k := range t.Keys {
			idx, err := env.Resolve(k.Table, k.Column)
			if err != nil {
				return nil, compiler.Wrap(opIndex, fmt.Sprintf("keys[%d]", i), err)
			}
			groupExprs[i] = fieldReferenceExpr(idx, k.Column)
		}
		measures := make([]*substraitpb.AggregateRel_Measure, len(t.AggOrder))
		for i, alias := range t.AggOrder {
			call := t.Aggs[alias]
			m, err := buildMeasure(opIndex, fmt.Sprintf("aggs[%s]", alias), call, env, tenv, reg)
			if err != nil {
				return nil, err
			}
			measures[i] = m
		}
		grouping := buildAggregateGrouping(groupExprs)
		return &substraitpb.Rel{RelType: &substraitpb.Rel_Aggregate{Aggregate: &substraitpb.AggregateRel{
			Input:               input,
			Groupings:           []*substraitpb.AggregateRel_Grouping{grouping},
			GroupingExpressions: groupExprs,
			Measures:            measures,
		}}}, nil

	case ir.Join:
		if t.Kind == ir.Cross {
			return nil, compiler.UnsupportedErr(opIndex, "Join::Cross")
		}
		jt, err := joinType(t.Kind)
		if err != nil {
			return nil, compiler.UnsupportedErr(opIndex, fmt.Sprintf("Join::%s", t.Kind))
		}
		rightRel, err := buildSource(t.Source, nil, reg, provider)
		if err != nil {
			return nil, err
		}
		rightEnv, err := compiler.SeedEnvironment(t.Source, provider)
		if err != nil {
			return nil, err
		}
		rightTenv, err := seedTypedEnv(t.Source, provider)
		if err != nil {
			return nil, err
		}
		combinedEnv := schema.Concat(env, rightEnv)
		combinedTenv := concatTypedEnv(tenv, rightTenv)
		on, err := buildExpr(opIndex, "on", t.On, combinedEnv, combinedTenv, reg)
		if err != nil {
			return nil, err
		}
		return &substraitpb.Rel{RelType: &substraitpb.Rel_Join{Join: &substraitpb.JoinRel{
			Left:       input,
			Right:      rightRel,
			Expression: on,
			Type:       jt,
		}}}, nil

	default:
		return nil, compiler.InternalErr(opIndex, fmt.Sprintf("unhandled operator type %T", op))
	}
}

func joinType(k ir.JoinKind) (substraitpb.JoinRel_JoinType, error) {
	switch k {
	case ir.Inner:
		return substraitpb.JoinRel_JOIN_TYPE_INNER, nil
	case ir.Full:
		return substraitpb.JoinRel_JOIN_TYPE_OUTER, nil
	case ir.Left:
		return substraitpb.JoinRel_JOIN_TYPE_LEFT, nil
	case ir.Right:
		return substraitpb.JoinRel_JOIN_TYPE_RIGHT, nil
	case ir.Semi:
		return substraitpb.JoinRel_JOIN_TYPE_LEFT_SEMI, nil
	case ir.Anti:
		return substraitpb.JoinRel_JOIN_TYPE_LEFT_ANTI, nil
	default:
		return substraitpb.JoinRel_JOIN_TYPE_UNSPECIFIED, fmt.Errorf("unsupported join kind %q", k)
	}
}

// buildMeasure translates a GroupBy aggregate into an
// AggregateRel_Measure, resolving its function against the registry.
func buildMeasure(opIndex int, path string, call ir.AggCall, env *schema.Environment, tenv *typedEnv, reg *registry) (*substraitpb.AggregateRel_Measure, error) {
	args := make([]*substraitpb.FunctionArgument, len(call.Args))
	argCodes := make([]string, len(call.Args))
	for i, a := range call.Args {
		e, err := buildExpr(opIndex, fmt.Sprintf("%s.args[%d]", path, i), a, env, tenv, reg)
		if err != nil {
			return nil, err
		}
		args[i] = &substraitpb.FunctionArgument{ArgType: &substraitpb.FunctionArgument_Value{Value: e}}
		argCodes[i] = typeCode(inferType(a, tenv))
	}
	anchor, err := reg.resolveFunc(opIndex, path, call.Func, argCodes)
	if err != nil {
		return nil, err
	}
	invocation := substraitpb.AggregateFunction_AGGREGATION_INVOCATION_ALL
	if call.Distinct {
		invocation = substraitpb.AggregateFunction_AGGREGATION_INVOCATION_DISTINCT
	}
	return &substraitpb.AggregateRel_Measure{
		Measure: &substraitpb.AggregateFunction{
			FunctionReference: anchor,
			Arguments:         args,
			Phase:             substraitpb.AggregateFunction_AGGREGATION_PHASE_INITIAL_TO_RESULT,
			Invocation:        invocation,
			OutputType:        substraitType(inferFuncResult(call.Func, call.Args, tenv), true),
		},
	}, nil
}

// buildExpr translates a scalar IR expression into a Substrait
// Expression, resolving Columns against env via positional
// FieldReference (spec §4.5 "Field references").
func buildExpr(opIndex int, path string, e ir.Expr, env *schema.Environment, tenv *typedEnv, reg *registry) (*substraitpb.Expression, error) {
	switch t := e.(type) {
	case ir.Column:
		idx, err := env.Resolve(t.Table, t.Column)
		if err != nil {
			return nil, compiler.Wrap(opIndex, path, err)
		}
		return fieldReferenceExpr(idx, t.Column), nil

	case ir.Literal:
		return buildLiteral(t), nil

	case ir.BinaryOp:
		left, err := buildExpr(opIndex, path+".left", t.Left, env, tenv, reg)
		if err != nil {
			return nil, err
		}
		right, err := buildExpr(opIndex, path+".right", t.Right, env, tenv, reg)
		if err != nil {
			return nil, err
		}
		argCodes := []string{typeCode(inferType(t.Left, tenv)), typeCode(inferType(t.Right, tenv))}
		anchor := reg.resolveOpFunc(opIndex, path, string(t.Op), argCodes)
		return &substraitpb.Expression{RexType: &substraitpb.Expression_ScalarFunction_{ScalarFunction: &substraitpb.Expression_ScalarFunction{
			FunctionReference: anchor,
			Arguments: []*substraitpb.FunctionArgument{
				{ArgType: &substraitpb.FunctionArgument_Value{Value: left}},
				{ArgType: &substraitpb.FunctionArgument_Value{Value: right}},
			},
			OutputType: substraitType(inferType(e, tenv), true),
		}}}, nil

	case ir.UnaryOp:
		arg, err := buildExpr(opIndex, path+".arg", t.Arg, env, tenv, reg)
		if err != nil {
			return nil, err
		}
		argCodes := []string{typeCode(inferType(t.Arg, tenv))}
		anchor := reg.resolveOpFunc(opIndex, path, string(t.Op), argCodes)
		return &substraitpb.Expression{RexType: &substraitpb.Expression_ScalarFunction_{ScalarFunction: &substraitpb.Expression_ScalarFunction{
			FunctionReference: anchor,
			Arguments: []*substraitpb.FunctionArgument{
				{ArgType: &substraitpb.FunctionArgument_Value{Value: arg}},
			},
			OutputType: substraitType(inferType(e, tenv), true),
		}}}, nil

	case ir.FuncCall:
		args := make([]*substraitpb.FunctionArgument, len(t.Args))
		argCodes := make([]string, len(t.Args))
		for i, a := range t.Args {
			ae, err := buildExpr(opIndex, fmt.Sprintf("%s.args[%d]", path, i), a, env, tenv, reg)
			if err != nil {
				return nil, err
			}
			args[i] = &substraitpb.FunctionArgument{ArgType: &substraitpb.FunctionArgument_Value{Value: ae}}
			argCodes[i] = typeCode(inferType(a, tenv))
		}
		anchor, err := reg.resolveFunc(opIndex, path, t.Func, argCodes)
		if err != nil {
			return nil, err
		}
		return &substraitpb.Expression{RexType: &substraitpb.Expression_ScalarFunction_{ScalarFunction: &substraitpb.Expression_ScalarFunction{
			FunctionReference: anchor,
			Arguments:         args,
			OutputType:        substraitType(inferType(e, tenv), true),
		}}}, nil

	case ir.AggCall:
		return nil, compiler.InternalErr(opIndex, "AggCall reached buildExpr; aggregates must be translated via buildMeasure")

	default:
		return nil, compiler.InternalErr(opIndex, fmt.Sprintf("unhandled expression type %T", e))
	}
}

func buildLiteral(l ir.Literal) *substraitpb.Expression {
	lit := &substraitpb.Expression_Literal{}
	switch l.Kind {
	case ir.LiteralNull:
		lit.LiteralType = &substraitpb.Expression_Literal_Null{Null: substraitType(schema.String, true)}
	case ir.LiteralBool:
		lit.LiteralType = &substraitpb.Expression_Literal_Boolean{Boolean: l.Bool}
	case ir.LiteralInteger:
		lit.LiteralType = &substraitpb.Expression_Literal_I64{I64: l.Int}
	case ir.LiteralFloat:
		lit.LiteralType = &substraitpb.Expression_Literal_Fp64{Fp64: l.Flt}
	case ir.LiteralString:
		lit.LiteralType = &substraitpb.Expression_Literal_String_{String_: l.Str}
	}
	return &substraitpb.Expression{RexType: &substraitpb.Expression_Literal_{Literal: lit}}
}

// readProjectionMaskForGroupBy builds a ReadRel projection mask
// restricted to [group_keys ∪ agg_arg_columns] when the source feeds
// directly into a GroupBy (spec §4.5). Only the immediate next operator
// is considered: an intervening Filter or Select might need other base
// columns the mask would otherwise prune, and this implementation
// doesn't attempt the cross-operator liveness analysis that general
// case would require (see DESIGN.md).
func readProjectionMaskForGroupBy(ops []ir.Operator, colIndex map[string]int) *substraitpb.Expression_MaskExpression {
	if len(ops) == 0 {
		return nil
	}
	gb, ok := ops[0].(ir.GroupBy)
	if !ok {
		return nil
	}

	seen := map[int]bool{}
	var fields []int
	add := func(col string) {
		idx, ok := colIndex[col]
		if !ok || seen[idx] {
			return
		}
		seen[idx] = true
		fields = append(fields, idx)
	}

	for _, k := range gb.Keys {
		add(k.Column)
	}
	for _, alias := range gb.AggOrder {
		for _, arg := range gb.Aggs[alias].Args {
			collectColumnNames(arg, add)
		}
	}
	if len(fields) == 0 {
		return nil
	}
	sort.Ints(fields)

	items := make([]*substraitpb.Expression_MaskExpression_StructItem, len(fields))
	for i, idx := range fields {
		items[i] = &substraitpb.Expression_MaskExpression_StructItem{Field: int32(idx)}
	}
	return &substraitpb.Expression_MaskExpression{
		Select: &substraitpb.Expression_MaskExpression_Select{
			Type: &substraitpb.Expression_MaskExpression_Select_Struct{
				Struct: &substraitpb.Expression_MaskExpression_StructSelect{StructItems: items},
			},
		},
	}
}

// collectColumnNames walks e, invoking add once per referenced column
// name. Used to gather the base columns an aggregate's argument
// expressions depend on for the read-side projection mask.
func collectColumnNames(e ir.Expr, add func(string)) {
	switch t := e.(type) {
	case ir.Column:
		add(t.Column)
	case ir.Literal:
	case ir.BinaryOp:
		collectColumnNames(t.Left, add)
		collectColumnNames(t.Right, add)
	case ir.UnaryOp:
		collectColumnNames(t.Arg, add)
	case ir.FuncCall:
		for _, a := range t.Args {
			collectColumnNames(a, add)
		}
	}
}

// buildAggregateGrouping populates the deprecated per-Grouping
// grouping_expressions list alongside the newer top-level
// AggregateRel.grouping_expressions + Grouping.expression_references
// indirection, since spec §4.5 requires the deprecated form be populated
// "in addition to any newer form" rather than replaced by it. Callers
// also assign exprs to AggregateRel.GroupingExpressions; the indices
// here reference that same shared pool in declaration order.
func buildAggregateGrouping(exprs []*substraitpb.Expression) *substraitpb.AggregateRel_Grouping {
	refs := make([]int32, len(exprs))
	for i := range exprs {
		refs[i] = int32(i)
	}
	return &substraitpb.AggregateRel_Grouping{
		GroupingExpressions:  exprs,
		ExpressionReferences: refs,
	}
}

// fieldReferenceExpr builds a positional, root-relative FieldReference
// (spec §4.5: "a rootReference marker is attached so the reference
// resolves against the outermost relation's output").
func fieldReferenceExpr(index int, _ string) *substraitpb.Expression {
	return &substraitpb.Expression{RexType: &substraitpb.Expression_Selection{Selection: &substraitpb.Expression_FieldReference{
		ReferenceType: &substraitpb.Expression_FieldReference_DirectReference{
			DirectReference: &substraitpb.Expression_ReferenceSegment{
				ReferenceType: &substraitpb.Expression_ReferenceSegment_StructField_{
					StructField: &substraitpb.Expression_ReferenceSegment_StructField{Field: int32(index)},
				},
			},
		},
		RootType: &substraitpb.Expression_FieldReference_RootReference_{
			RootReference: &substraitpb.Expression_FieldReference_RootReference{},
		},
	}}}
}
