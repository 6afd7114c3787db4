package substrait

import (
	"github.com/sirupsen/logrus"
	substraitpb "github.com/substrait-io/substrait-go/v4/proto"

	"mlql/compiler"
	"mlql/internal/extfixture"
)

// funcEntry is one resolved (uri, name, signature) triple waiting to be
// serialized as a SimpleExtensionDeclaration once an anchor has been
// assigned (spec §4.5 "Function extensions").
type funcEntry struct {
	anchor    uint32
	uriAnchor uint32
	name      string
	signature string
}

// registry assigns anchors to extension URIs and function signatures in
// first-appearance order during a single left-to-right pipeline walk,
// making the serialized plan's anchor ordering deterministic across
// translations of the same program (spec §4.5, §8 "Deterministic
// anchors").
type registry struct {
	uriAnchor map[string]uint32
	uriOrder  []string
	nextURI   uint32

	funcAnchor map[string]uint32 // key: uri + "\x00" + name + ":" + signature
	funcOrder  []funcEntry
	nextFunc   uint32

	log        *logrus.Entry
	fetchLevel extfixture.CompatLevel
}

func newRegistry(log *logrus.Entry) *registry {
	fetchLevel := extfixture.Default().ResolveFetchLevel(log)
	return &registry{
		uriAnchor:  map[string]uint32{},
		funcAnchor: map[string]uint32{},
		log:        log,
		fetchLevel: fetchLevel,
	}
}

func (r *registry) ensureURI(uri string) uint32 {
	if a, ok := r.uriAnchor[uri]; ok {
		return a
	}
	r.nextURI++
	a := r.nextURI
	r.uriAnchor[uri] = a
	r.uriOrder = append(r.uriOrder, uri)
	return a
}

// funcRef returns the stable anchor for (uri, name, signature),
// assigning one on first use.
func (r *registry) funcRef(uri, name, signature string) uint32 {
	key := uri + "\x00" + name + ":" + signature
	if a, ok := r.funcAnchor[key]; ok {
		return a
	}
	uriAnchor := r.ensureURI(uri)
	r.nextFunc++
	a := r.nextFunc
	r.funcAnchor[key] = a
	r.funcOrder = append(r.funcOrder, funcEntry{anchor: a, uriAnchor: uriAnchor, name: name, signature: signature})
	if r.log != nil {
		r.log.Tracef("substrait: registered function anchor %d: %s (uri anchor %d, signature %s)", a, name, uriAnchor, signature)
	}
	return a
}

// resolveFunc looks up the IR function name's Substrait extension
// binding and signature, registers it, and returns the anchor to embed
// in a ScalarFunction/AggregateFunction node. Unknown functions are a
// TypeError naming the function (spec §6.5).
func (r *registry) resolveFunc(opIndex int, path, name string, argTypeCodes []string) (uint32, error) {
	sig, ok := compiler.LookupFunc(name)
	if !ok {
		return 0, compiler.TypeErr(opIndex, path, "unknown function \""+name+"\"")
	}
	signature := sig.SubstraitName
	for i, tc := range argTypeCodes {
		sep := "_"
		if i == 0 {
			sep = ":"
		}
		signature += sep + tc
	}
	return r.funcRef(sig.SubstraitURI, sig.SubstraitName, signature), nil
}

func (r *registry) uriForBinaryOp(op string) string {
	switch op {
	case "Eq", "Ne", "Lt", "Le", "Gt", "Ge":
		return uriComparison
	case "And", "Or", "Not":
		return uriBoolean
	case "Add", "Sub", "Mul", "Div", "Mod":
		return uriArithmetic
	case "Like", "ILike":
		return uriString
	default:
		return uriComparison
	}
}

// resolveOpFunc resolves a BinaryOp/UnaryOp's operator name the same
// way resolveFunc resolves a named function call: built-in operators
// are themselves Substrait extension functions (spec §6.5).
func (r *registry) resolveOpFunc(opIndex int, path, opName string, argTypeCodes []string) uint32 {
	uri := r.uriForBinaryOp(opName)
	name := substraitOpName(opName)
	signature := name
	for i, tc := range argTypeCodes {
		sep := "_"
		if i == 0 {
			sep = ":"
		}
		signature += sep + tc
	}
	return r.funcRef(uri, name, signature)
}

func substraitOpName(op string) string {
	switch op {
	case "Eq":
		return "equal"
	case "Ne":
		return "not_equal"
	case "Lt":
		return "lt"
	case "Le":
		return "lte"
	case "Gt":
		return "gt"
	case "Ge":
		return "gte"
	case "And":
		return "and"
	case "Or":
		return "or"
	case "Not":
		return "not"
	case "Add":
		return "add"
	case "Sub":
		return "subtract"
	case "Mul":
		return "multiply"
	case "Div":
		return "divide"
	case "Mod":
		return "modulus"
	case "Like":
		return "like"
	case "ILike":
		return "ilike"
	default:
		return op
	}
}

const (
	uriComparison = "https://github.com/substrait-io/substrait/blob/main/extensions/functions_comparison.yaml"
	uriBoolean    = "https://github.com/substrait-io/substrait/blob/main/extensions/functions_boolean.yaml"
	uriArithmetic = "https://github.com/substrait-io/substrait/blob/main/extensions/functions_arithmetic.yaml"
	uriString     = "https://github.com/substrait-io/substrait/blob/main/extensions/functions_string.yaml"
)

// finalize serializes the registry into the plan-level extension
// sections: one ExtensionUri per distinct URI, one
// SimpleExtensionDeclaration per distinct function signature, both in
// first-appearance order.
func (r *registry) finalize() ([]*substraitpb.SimpleExtensionURI, []*substraitpb.SimpleExtensionDeclaration) {
	uris := make([]*substraitpb.SimpleExtensionURI, len(r.uriOrder))
	for i, u := range r.uriOrder {
		uris[i] = &substraitpb.SimpleExtensionURI{
			ExtensionUriAnchor: r.uriAnchor[u],
			Uri:                u,
		}
	}
	decls := make([]*substraitpb.SimpleExtensionDeclaration, len(r.funcOrder))
	for i, f := range r.funcOrder {
		decls[i] = &substraitpb.SimpleExtensionDeclaration{
			MappingType: &substraitpb.SimpleExtensionDeclaration_ExtensionFunction_{
				ExtensionFunction: &substraitpb.SimpleExtensionDeclaration_ExtensionFunction{
					ExtensionUriReference: f.uriAnchor,
					FunctionAnchor:        f.anchor,
					Name:                  f.signature,
				},
			},
		}
	}
	return uris, decls
}
