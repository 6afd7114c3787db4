package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DefaultMaxExprDepth bounds expression-tree recursion during decode,
// guarding against attacker-authored IR (spec §5).
const DefaultMaxExprDepth = 256

// Decode parses JSON into the tagged-union IR, rejecting unknown
// discriminators (ir.UnknownTag), missing required fields
// (ir.MissingField), and expression trees deeper than
// DefaultMaxExprDepth (ir.TooDeep).
func Decode(data []byte) (*Program, error) {
	return DecodeWithLimit(data, DefaultMaxExprDepth)
}

// DecodeWithLimit is Decode with an explicit maximum expression depth.
func DecodeWithLimit(data []byte, maxDepth int) (*Program, error) {
	obj, err := rawObject(data)
	if err != nil {
		return nil, errTypeMismatch("", err)
	}
	return decodeProgram(obj, maxDepth)
}

// Canonicalize re-serializes arbitrary well-formed IR JSON into the
// canonical form, satisfying encode(decode(j)) == canonicalize(j).
func Canonicalize(data []byte) ([]byte, error) {
	p, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return Encode(p), nil
}

func rawObject(data []byte) (map[string]json.RawMessage, error) {
	var m map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

func rawArray(data []byte) ([]json.RawMessage, error) {
	var a []json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&a); err != nil {
		return nil, err
	}
	return a, nil
}

func field(obj map[string]json.RawMessage, key, path string) (json.RawMessage, error) {
	v, ok := obj[key]
	if !ok {
		return nil, errMissingField(path + "." + key)
	}
	return v, nil
}

func stringField(obj map[string]json.RawMessage, key, path string) (string, error) {
	raw, err := field(obj, key, path)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", errTypeMismatch(path+"."+key, err)
	}
	return s, nil
}

func optionalStringField(obj map[string]json.RawMessage, key string) string {
	raw, ok := obj[key]
	if !ok {
		return ""
	}
	var s string
	_ = json.Unmarshal(raw, &s)
	return s
}

func uintField(obj map[string]json.RawMessage, key, path string) (uint64, error) {
	raw, err := field(obj, key, path)
	if err != nil {
		return 0, err
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, errTypeMismatch(path+"."+key, err)
	}
	v, err := n.Int64()
	if err != nil || v < 0 {
		return 0, errTypeMismatch(path+"."+key, fmt.Errorf("expected non-negative integer"))
	}
	return uint64(v), nil
}

func optionalUintField(obj map[string]json.RawMessage, key string) (*uint64, error) {
	raw, ok := obj[key]
	if !ok {
		return nil, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, errTypeMismatch(key, err)
	}
	v, err := n.Int64()
	if err != nil || v < 0 {
		return nil, errTypeMismatch(key, fmt.Errorf("expected non-negative integer"))
	}
	u := uint64(v)
	return &u, nil
}

func boolField(obj map[string]json.RawMessage, key, path string) (bool, error) {
	raw, err := field(obj, key, path)
	if err != nil {
		return false, err
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, errTypeMismatch(path+"."+key, err)
	}
	return b, nil
}

func optionalBoolField(obj map[string]json.RawMessage, key string) bool {
	raw, ok := obj[key]
	if !ok {
		return false
	}
	var b bool
	_ = json.Unmarshal(raw, &b)
	return b
}

func objectField(obj map[string]json.RawMessage, key, path string) (map[string]json.RawMessage, error) {
	raw, err := field(obj, key, path)
	if err != nil {
		return nil, err
	}
	o, err := rawObject(raw)
	if err != nil {
		return nil, errTypeMismatch(path+"."+key, err)
	}
	return o, nil
}

func arrayField(obj map[string]json.RawMessage, key, path string) ([]json.RawMessage, error) {
	raw, err := field(obj, key, path)
	if err != nil {
		return nil, err
	}
	a, err := rawArray(raw)
	if err != nil {
		return nil, errTypeMismatch(path+"."+key, err)
	}
	return a, nil
}

func decodeProgram(obj map[string]json.RawMessage, maxDepth int) (*Program, error) {
	pipelineObj, err := objectField(obj, "pipeline", "pipeline")
	if err != nil {
		return nil, err
	}
	pipeline, err := decodePipeline(pipelineObj, "pipeline", maxDepth)
	if err != nil {
		return nil, err
	}
	p := &Program{Pipeline: *pipeline}
	if raw, ok := obj["pragma"]; ok {
		pragmaObj, err := rawObject(raw)
		if err != nil {
			return nil, errTypeMismatch("pragma", err)
		}
		pr, err := decodePragma(pragmaObj)
		if err != nil {
			return nil, err
		}
		p.Pragma = pr
	}
	return p, nil
}

func decodePragma(obj map[string]json.RawMessage) (*Pragma, error) {
	pr := &Pragma{Extra: map[string]any{}}
	known := map[string]bool{"rows": true, "memory": true, "timeout": true}
	var err error
	if pr.MaxRows, err = optionalUintField(obj, "rows"); err != nil {
		return nil, err
	}
	if pr.MaxMemoryBytes, err = optionalUintField(obj, "memory"); err != nil {
		return nil, err
	}
	if pr.TimeoutMillis, err = optionalUintField(obj, "timeout"); err != nil {
		return nil, err
	}
	for k, raw := range obj {
		if known[k] {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errTypeMismatch("pragma."+k, err)
		}
		pr.Extra[k] = v
	}
	if len(pr.Extra) == 0 {
		pr.Extra = nil
	}
	return pr, nil
}

func decodePipeline(obj map[string]json.RawMessage, path string, maxDepth int) (*Pipeline, error) {
	sourceObj, err := objectField(obj, "source", path)
	if err != nil {
		return nil, err
	}
	source, err := decodeSource(sourceObj, path+".source", maxDepth)
	if err != nil {
		return nil, err
	}
	opsArr, err := arrayField(obj, "ops", path)
	if err != nil {
		return nil, err
	}
	ops := make([]Operator, len(opsArr))
	for i, raw := range opsArr {
		opObj, err := rawObject(raw)
		if err != nil {
			return nil, errTypeMismatch(fmt.Sprintf("%s.ops[%d]", path, i), err)
		}
		op, err := decodeOperator(opObj, fmt.Sprintf("%s.ops[%d]", path, i), maxDepth)
		if err != nil {
			return nil, err
		}
		ops[i] = op
	}
	return &Pipeline{Source: source, Ops: ops}, nil
}

func decodeSource(obj map[string]json.RawMessage, path string, maxDepth int) (Source, error) {
	typ, err := stringField(obj, "type", path)
	if err != nil {
		return nil, err
	}
	switch typ {
	case "Table":
		name, err := stringField(obj, "name", path)
		if err != nil {
			return nil, err
		}
		return Table{Name: name, Alias: optionalStringField(obj, "alias")}, nil
	case "SubPipeline":
		plObj, err := objectField(obj, "pipeline", path)
		if err != nil {
			return nil, err
		}
		pl, err := decodePipeline(plObj, path+".pipeline", maxDepth)
		if err != nil {
			return nil, err
		}
		return SubPipeline{Pipeline: pl}, nil
	default:
		return nil, errUnknownTag(path, typ)
	}
}

func decodeColumnRef(obj map[string]json.RawMessage, path string) (ColumnRef, error) {
	col, err := stringField(obj, "column", path)
	if err != nil {
		return ColumnRef{}, err
	}
	return ColumnRef{Table: optionalStringField(obj, "table"), Column: col}, nil
}

func decodeOperator(obj map[string]json.RawMessage, path string, maxDepth int) (Operator, error) {
	opName, err := stringField(obj, "op", path)
	if err != nil {
		return nil, err
	}
	switch opName {
	case "Filter":
		condObj, err := objectField(obj, "condition", path)
		if err != nil {
			return nil, err
		}
		cond, err := decodeExpr(condObj, path+".condition", 1, maxDepth)
		if err != nil {
			return nil, err
		}
		return Filter{Condition: cond}, nil
	case "Select":
		arr, err := arrayField(obj, "projections", path)
		if err != nil {
			return nil, err
		}
		projs := make([]Projection, len(arr))
		for i, raw := range arr {
			pObj, err := rawObject(raw)
			if err != nil {
				return nil, errTypeMismatch(fmt.Sprintf("%s.projections[%d]", path, i), err)
			}
			p, err := decodeProjection(pObj, fmt.Sprintf("%s.projections[%d]", path, i), maxDepth)
			if err != nil {
				return nil, err
			}
			projs[i] = p
		}
		return Select{Projections: projs}, nil
	case "Sort":
		arr, err := arrayField(obj, "keys", path)
		if err != nil {
			return nil, err
		}
		keys := make([]SortKey, len(arr))
		for i, raw := range arr {
			kObj, err := rawObject(raw)
			if err != nil {
				return nil, errTypeMismatch(fmt.Sprintf("%s.keys[%d]", path, i), err)
			}
			exprObj, err := objectField(kObj, "expr", fmt.Sprintf("%s.keys[%d]", path, i))
			if err != nil {
				return nil, err
			}
			e, err := decodeExpr(exprObj, fmt.Sprintf("%s.keys[%d].expr", path, i), 1, maxDepth)
			if err != nil {
				return nil, err
			}
			desc, err := boolField(kObj, "desc", fmt.Sprintf("%s.keys[%d]", path, i))
			if err != nil {
				return nil, err
			}
			keys[i] = SortKey{Expr: e, Desc: desc}
		}
		return Sort{Keys: keys}, nil
	case "Take":
		limit, err := uintField(obj, "limit", path)
		if err != nil {
			return nil, err
		}
		offset, err := optionalUintField(obj, "offset")
		if err != nil {
			return nil, err
		}
		return Take{Limit: limit, Offset: offset}, nil
	case "Distinct":
		return Distinct{}, nil
	case "GroupBy":
		keyArr, err := arrayField(obj, "keys", path)
		if err != nil {
			return nil, err
		}
		keys := make([]ColumnRef, len(keyArr))
		for i, raw := range keyArr {
			kObj, err := rawObject(raw)
			if err != nil {
				return nil, errTypeMismatch(fmt.Sprintf("%s.keys[%d]", path, i), err)
			}
			cr, err := decodeColumnRef(kObj, fmt.Sprintf("%s.keys[%d]", path, i))
			if err != nil {
				return nil, err
			}
			keys[i] = cr
		}
		aggsArr, err := arrayField(obj, "aggs", path)
		if err != nil {
			return nil, err
		}
		aggs := make(map[string]AggCall, len(aggsArr))
		order := make([]string, len(aggsArr))
		for i, raw := range aggsArr {
			entryPath := fmt.Sprintf("%s.aggs[%d]", path, i)
			eObj, err := rawObject(raw)
			if err != nil {
				return nil, errTypeMismatch(entryPath, err)
			}
			alias, err := stringField(eObj, "alias", entryPath)
			if err != nil {
				return nil, err
			}
			callObj, err := objectField(eObj, "call", entryPath)
			if err != nil {
				return nil, err
			}
			e, err := decodeExpr(callObj, entryPath+".call", 1, maxDepth)
			if err != nil {
				return nil, err
			}
			agg, ok := e.(AggCall)
			if !ok {
				return nil, errTypeMismatch(entryPath+".call", fmt.Errorf("expected AggCall"))
			}
			aggs[alias] = agg
			order[i] = alias
		}
		return GroupBy{Keys: keys, Aggs: aggs, AggOrder: order}, nil
	case "Join":
		sourceObj, err := objectField(obj, "source", path)
		if err != nil {
			return nil, err
		}
		source, err := decodeSource(sourceObj, path+".source", maxDepth)
		if err != nil {
			return nil, err
		}
		onObj, err := objectField(obj, "on", path)
		if err != nil {
			return nil, err
		}
		on, err := decodeExpr(onObj, path+".on", 1, maxDepth)
		if err != nil {
			return nil, err
		}
		kindStr, err := stringField(obj, "kind", path)
		if err != nil {
			return nil, err
		}
		kind := JoinKind(kindStr)
		if !validJoinKinds[kind] {
			return nil, errUnknownTag(path+".kind", kindStr)
		}
		return Join{Source: source, On: on, Kind: kind}, nil
	default:
		return nil, errUnknownTag(path, opName)
	}
}

func decodeProjection(obj map[string]json.RawMessage, path string, maxDepth int) (Projection, error) {
	exprObj, err := objectField(obj, "expr", path)
	if err != nil {
		return Projection{}, err
	}
	e, err := decodeExpr(exprObj, path+".expr", 1, maxDepth)
	if err != nil {
		return Projection{}, err
	}
	return Projection{Expr: e, Alias: optionalStringField(obj, "alias")}, nil
}

func decodeExpr(obj map[string]json.RawMessage, path string, depth, maxDepth int) (Expr, error) {
	if depth > maxDepth {
		return nil, errTooDeep(path)
	}
	typ, err := stringField(obj, "type", path)
	if err != nil {
		return nil, err
	}
	switch typ {
	case "Column":
		col, err := stringField(obj, "column", path)
		if err != nil {
			return nil, err
		}
		return Column{ColumnRef{Table: optionalStringField(obj, "table"), Column: col}}, nil
	case "Literal":
		return decodeLiteral(obj, path)
	case "BinaryOp":
		opStr, err := stringField(obj, "op", path)
		if err != nil {
			return nil, err
		}
		opKind := BinaryOpKind(opStr)
		if !validBinaryOps[opKind] {
			return nil, errUnknownTag(path+".op", opStr)
		}
		leftObj, err := objectField(obj, "left", path)
		if err != nil {
			return nil, err
		}
		left, err := decodeExpr(leftObj, path+".left", depth+1, maxDepth)
		if err != nil {
			return nil, err
		}
		rightObj, err := objectField(obj, "right", path)
		if err != nil {
			return nil, err
		}
		right, err := decodeExpr(rightObj, path+".right", depth+1, maxDepth)
		if err != nil {
			return nil, err
		}
		return BinaryOp{Op: opKind, Left: left, Right: right}, nil
	case "UnaryOp":
		opStr, err := stringField(obj, "op", path)
		if err != nil {
			return nil, err
		}
		opKind := UnaryOpKind(opStr)
		if !validUnaryOps[opKind] {
			return nil, errUnknownTag(path+".op", opStr)
		}
		argObj, err := objectField(obj, "arg", path)
		if err != nil {
			return nil, err
		}
		arg, err := decodeExpr(argObj, path+".arg", depth+1, maxDepth)
		if err != nil {
			return nil, err
		}
		return UnaryOp{Op: opKind, Arg: arg}, nil
	case "FuncCall":
		fn, err := stringField(obj, "func", path)
		if err != nil {
			return nil, err
		}
		args, err := decodeExprArray(obj, path, depth, maxDepth)
		if err != nil {
			return nil, err
		}
		return FuncCall{Func: fn, Args: args}, nil
	case "AggCall":
		fn, err := stringField(obj, "func", path)
		if err != nil {
			return nil, err
		}
		args, err := decodeExprArray(obj, path, depth, maxDepth)
		if err != nil {
			return nil, err
		}
		return AggCall{Func: fn, Args: args, Distinct: optionalBoolField(obj, "distinct")}, nil
	default:
		return nil, errUnknownTag(path, typ)
	}
}

func decodeExprArray(obj map[string]json.RawMessage, path string, depth, maxDepth int) ([]Expr, error) {
	raw, ok := obj["args"]
	if !ok {
		return nil, nil
	}
	arr, err := rawArray(raw)
	if err != nil {
		return nil, errTypeMismatch(path+".args", err)
	}
	if len(arr) == 0 {
		return nil, nil
	}
	args := make([]Expr, len(arr))
	for i, r := range arr {
		aObj, err := rawObject(r)
		if err != nil {
			return nil, errTypeMismatch(fmt.Sprintf("%s.args[%d]", path, i), err)
		}
		e, err := decodeExpr(aObj, fmt.Sprintf("%s.args[%d]", path, i), depth+1, maxDepth)
		if err != nil {
			return nil, err
		}
		args[i] = e
	}
	return args, nil
}

func decodeLiteral(obj map[string]json.RawMessage, path string) (Expr, error) {
	kind, err := stringField(obj, "kind", path)
	if err != nil {
		return nil, err
	}
	switch kind {
	case "null":
		return Literal{Kind: LiteralNull}, nil
	case "bool":
		v, err := boolField(obj, "value", path)
		if err != nil {
			return nil, err
		}
		return Literal{Kind: LiteralBool, Bool: v}, nil
	case "integer":
		raw, err := field(obj, "value", path)
		if err != nil {
			return nil, err
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, errTypeMismatch(path+".value", err)
		}
		v, err := n.Int64()
		if err != nil {
			return nil, errTypeMismatch(path+".value", err)
		}
		return Literal{Kind: LiteralInteger, Int: v}, nil
	case "float":
		raw, err := field(obj, "value", path)
		if err != nil {
			return nil, err
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, errTypeMismatch(path+".value", err)
		}
		v, err := n.Float64()
		if err != nil {
			return nil, errTypeMismatch(path+".value", err)
		}
		return Literal{Kind: LiteralFloat, Flt: v}, nil
	case "string":
		v, err := stringField(obj, "value", path)
		if err != nil {
			return nil, err
		}
		return Literal{Kind: LiteralString, Str: v}, nil
	default:
		return nil, errUnknownTag(path+".kind", kind)
	}
}
