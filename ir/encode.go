package ir

import "crypto/sha256"

// Encode produces the canonical JSON encoding of a program: sorted object
// keys, no insignificant whitespace, NFC-normalized strings, and
// unambiguous integer/float literals (spec §4.1, §6.1).
func Encode(p *Program) []byte {
	return marshalCanonical(encodeProgram(p))
}

// Fingerprint is the SHA-256 digest of Encode(p). Identical programs,
// including ones differing only in source-order of object keys before
// decoding, hash identically because Encode always re-sorts (spec §3.2,
// §4.1, §8).
func Fingerprint(p *Program) [32]byte {
	return sha256.Sum256(Encode(p))
}

func encodeProgram(p *Program) cval {
	o := cobj{"pipeline": encodePipeline(&p.Pipeline)}
	if p.Pragma != nil {
		o["pragma"] = encodePragma(p.Pragma)
	}
	return o
}

func encodePragma(pr *Pragma) cval {
	o := cobj{}
	if pr.MaxRows != nil {
		o["rows"] = cint(*pr.MaxRows)
	}
	if pr.MaxMemoryBytes != nil {
		o["memory"] = cint(*pr.MaxMemoryBytes)
	}
	if pr.TimeoutMillis != nil {
		o["timeout"] = cint(*pr.TimeoutMillis)
	}
	for k, v := range pr.Extra {
		o[k] = encodeAny(v)
	}
	return o
}

func encodeAny(v any) cval {
	switch t := v.(type) {
	case nil:
		return cnull{}
	case bool:
		return cbool(t)
	case string:
		return cstr(t)
	case int:
		return cint(int64(t))
	case int64:
		return cint(t)
	case uint64:
		return cint(int64(t))
	case float64:
		return cfloat(t)
	case []any:
		arr := make(carr, len(t))
		for i, e := range t {
			arr[i] = encodeAny(e)
		}
		return arr
	case map[string]any:
		o := cobj{}
		for k, e := range t {
			o[k] = encodeAny(e)
		}
		return o
	default:
		return cnull{}
	}
}

func encodePipeline(pl *Pipeline) cval {
	ops := make(carr, len(pl.Ops))
	for i, op := range pl.Ops {
		ops[i] = encodeOperator(op)
	}
	return cobj{
		"source": encodeSource(pl.Source),
		"ops":    ops,
	}
}

func encodeSource(s Source) cval {
	switch t := s.(type) {
	case Table:
		o := cobj{"type": cstr("Table"), "name": cstr(t.Name)}
		if t.Alias != "" {
			o["alias"] = cstr(t.Alias)
		}
		return o
	case SubPipeline:
		return cobj{"type": cstr("SubPipeline"), "pipeline": encodePipeline(t.Pipeline)}
	default:
		return cnull{}
	}
}

func encodeColumnRef(c ColumnRef) cval {
	o := cobj{"column": cstr(c.Column)}
	if c.Table != "" {
		o["table"] = cstr(c.Table)
	}
	return o
}

func encodeOperator(op Operator) cval {
	switch t := op.(type) {
	case Filter:
		return cobj{"op": cstr("Filter"), "condition": encodeExpr(t.Condition)}
	case Select:
		projs := make(carr, len(t.Projections))
		for i, p := range t.Projections {
			projs[i] = encodeProjection(p)
		}
		return cobj{"op": cstr("Select"), "projections": projs}
	case Sort:
		keys := make(carr, len(t.Keys))
		for i, k := range t.Keys {
			keys[i] = cobj{"expr": encodeExpr(k.Expr), "desc": cbool(k.Desc)}
		}
		return cobj{"op": cstr("Sort"), "keys": keys}
	case Take:
		o := cobj{"op": cstr("Take"), "limit": cint(t.Limit)}
		if t.Offset != nil {
			o["offset"] = cint(*t.Offset)
		}
		return o
	case Distinct:
		return cobj{"op": cstr("Distinct")}
	case GroupBy:
		keys := make(carr, len(t.Keys))
		for i, k := range t.Keys {
			keys[i] = encodeColumnRef(k)
		}
		// aggs is encoded as an ordered array of {alias, call} pairs, not a
		// JSON object: canonical encoding sorts object keys (spec §3.2),
		// which would destroy the aggregate insertion order that defines
		// GroupBy's output column order (spec §3.1, §8).
		aggs := make(carr, len(t.AggOrder))
		for i, alias := range t.AggOrder {
			aggs[i] = cobj{"alias": cstr(alias), "call": encodeExpr(t.Aggs[alias])}
		}
		return cobj{"op": cstr("GroupBy"), "keys": keys, "aggs": aggs}
	case Join:
		return cobj{
			"op":     cstr("Join"),
			"source": encodeSource(t.Source),
			"on":     encodeExpr(t.On),
			"kind":   cstr(string(t.Kind)),
		}
	default:
		return cnull{}
	}
}

func encodeProjection(p Projection) cval {
	o := cobj{"expr": encodeExpr(p.Expr)}
	if p.Alias != "" {
		o["alias"] = cstr(p.Alias)
	}
	return o
}

func encodeExpr(e Expr) cval {
	switch t := e.(type) {
	case Column:
		o := cobj{"type": cstr("Column"), "column": cstr(t.Column)}
		if t.Table != "" {
			o["table"] = cstr(t.Table)
		}
		return o
	case Literal:
		return encodeLiteral(t)
	case BinaryOp:
		return cobj{"type": cstr("BinaryOp"), "op": cstr(string(t.Op)), "left": encodeExpr(t.Left), "right": encodeExpr(t.Right)}
	case UnaryOp:
		return cobj{"type": cstr("UnaryOp"), "op": cstr(string(t.Op)), "arg": encodeExpr(t.Arg)}
	case FuncCall:
		return cobj{"type": cstr("FuncCall"), "func": cstr(t.Func), "args": encodeExprList(t.Args)}
	case AggCall:
		o := cobj{"type": cstr("AggCall"), "func": cstr(t.Func), "args": encodeExprList(t.Args)}
		if t.Distinct {
			o["distinct"] = cbool(true)
		}
		return o
	default:
		return cnull{}
	}
}

func encodeExprList(es []Expr) carr {
	out := make(carr, len(es))
	for i, e := range es {
		out[i] = encodeExpr(e)
	}
	return out
}

func encodeLiteral(l Literal) cval {
	o := cobj{"type": cstr("Literal")}
	switch l.Kind {
	case LiteralNull:
		o["kind"] = cstr("null")
	case LiteralBool:
		o["kind"] = cstr("bool")
		o["value"] = cbool(l.Bool)
	case LiteralInteger:
		o["kind"] = cstr("integer")
		o["value"] = cint(l.Int)
	case LiteralFloat:
		o["kind"] = cstr("float")
		o["value"] = cfloat(l.Flt)
	case LiteralString:
		o["kind"] = cstr("string")
		o["value"] = cstr(l.Str)
	}
	return o
}
