package compiler

// FuncSig describes one recognized function signature: its arity
// (Variadic == true means MinArgs is a floor, not an exact count) and,
// for the Substrait backend, the extension URI and name it maps to
// (spec §4.5, §6.5). Arity is intentionally coarse — argument *type*
// checking is left to the engine the compiled program is handed to;
// MLQL only rejects calls no known function could ever accept.
type FuncSig struct {
	Name          string
	MinArgs       int
	MaxArgs       int // -1 means unbounded
	IsAggregate   bool
	SubstraitURI  string
	SubstraitName string
}

// functionTable is the recognized set of scalar and aggregate functions
// (spec §4.4, §4.5). The set is deliberately small: it covers the
// scalar and aggregate functions exercised by the compatibility fixture
// (spec §8) and the extension URIs published by Substrait's own
// function-extension repository, not the whole of DuckDB's catalog.
var functionTable = map[string]FuncSig{
	"upper":    {Name: "upper", MinArgs: 1, MaxArgs: 1, SubstraitURI: uriString, SubstraitName: "upper"},
	"lower":    {Name: "lower", MinArgs: 1, MaxArgs: 1, SubstraitURI: uriString, SubstraitName: "lower"},
	"length":   {Name: "length", MinArgs: 1, MaxArgs: 1, SubstraitURI: uriString, SubstraitName: "char_length"},
	"concat":   {Name: "concat", MinArgs: 1, MaxArgs: -1, SubstraitURI: uriString, SubstraitName: "concat"},
	"substr":   {Name: "substr", MinArgs: 2, MaxArgs: 3, SubstraitURI: uriString, SubstraitName: "substring"},
	"abs":      {Name: "abs", MinArgs: 1, MaxArgs: 1, SubstraitURI: uriArithmetic, SubstraitName: "abs"},
	"round":    {Name: "round", MinArgs: 1, MaxArgs: 2, SubstraitURI: uriArithmetic, SubstraitName: "round"},
	"coalesce": {Name: "coalesce", MinArgs: 1, MaxArgs: -1, SubstraitURI: uriComparison, SubstraitName: "coalesce"},
	"cast":     {Name: "cast", MinArgs: 2, MaxArgs: 2, SubstraitURI: uriArithmetic, SubstraitName: "cast"},

	"count": {Name: "count", MinArgs: 0, MaxArgs: 1, IsAggregate: true, SubstraitURI: uriAggregateGeneric, SubstraitName: "count"},
	"sum":   {Name: "sum", MinArgs: 1, MaxArgs: 1, IsAggregate: true, SubstraitURI: uriAggregateGeneric, SubstraitName: "sum"},
	"avg":   {Name: "avg", MinArgs: 1, MaxArgs: 1, IsAggregate: true, SubstraitURI: uriAggregateGeneric, SubstraitName: "avg"},
	"min":   {Name: "min", MinArgs: 1, MaxArgs: 1, IsAggregate: true, SubstraitURI: uriAggregateGeneric, SubstraitName: "min"},
	"max":   {Name: "max", MinArgs: 1, MaxArgs: 1, IsAggregate: true, SubstraitURI: uriAggregateGeneric, SubstraitName: "max"},
}

// Substrait's published extension URIs (spec §6.5), named once here so
// both the table above and the Substrait backend's extension-URI
// registry agree on spelling.
const (
	uriArithmetic       = "https://github.com/substrait-io/substrait/blob/main/extensions/functions_arithmetic.yaml"
	uriComparison       = "https://github.com/substrait-io/substrait/blob/main/extensions/functions_comparison.yaml"
	uriString           = "https://github.com/substrait-io/substrait/blob/main/extensions/functions_string.yaml"
	uriAggregateGeneric = "https://github.com/substrait-io/substrait/blob/main/extensions/functions_aggregate_generic.yaml"
)

// LookupFunc returns the signature for a scalar or aggregate function
// name, or false if MLQL doesn't recognize it.
func LookupFunc(name string) (FuncSig, bool) {
	sig, ok := functionTable[name]
	return sig, ok
}

// CheckArity reports whether argc is a legal argument count for sig.
func (s FuncSig) CheckArity(argc int) bool {
	if argc < s.MinArgs {
		return false
	}
	if s.MaxArgs == -1 {
		return true
	}
	return argc <= s.MaxArgs
}
