package substrait

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mlql/compiler"
)

func TestRegistryAssignsAnchorsInFirstAppearanceOrder(t *testing.T) {
	r := newRegistry(nil)

	a1, err := r.resolveFunc(0, "a", "count", nil)
	require.NoError(t, err)
	a2, err := r.resolveFunc(0, "b", "sum", []string{"i64"})
	require.NoError(t, err)
	a3, err := r.resolveFunc(0, "c", "count", nil)
	require.NoError(t, err)

	assert.Equal(t, uint32(1), a1)
	assert.Equal(t, uint32(2), a2)
	assert.Equal(t, a1, a3, "repeated (name, signature) pair reuses its anchor")

	uris, decls := r.finalize()
	require.Len(t, uris, 1, "count and sum both map to the aggregate_generic extension URI")
	require.Len(t, decls, 2)
	assert.Equal(t, uint32(1), uris[0].ExtensionUriAnchor)
}

func TestRegistryDistinctURIsPerOperatorFamily(t *testing.T) {
	r := newRegistry(nil)
	r.resolveOpFunc(0, "left", "Add", []string{"i64", "i64"})
	r.resolveOpFunc(0, "right", "Eq", []string{"i64", "i64"})
	r.resolveOpFunc(0, "third", "And", []string{"bool", "bool"})

	uris, decls := r.finalize()
	assert.Len(t, uris, 3, "arithmetic, comparison, and boolean are distinct extension URIs")
	assert.Len(t, decls, 3)
}

func TestRegistryUnknownFunctionIsTypeError(t *testing.T) {
	r := newRegistry(nil)
	_, err := r.resolveFunc(2, "aggs[x]", "not_a_real_function", nil)
	require.Error(t, err)
	var cErr *compiler.Error
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, compiler.TypeError, cErr.Kind)
}

func TestSubstraitOpNameMapping(t *testing.T) {
	cases := map[string]string{
		"Eq": "equal", "Ne": "not_equal", "Lt": "lt", "Le": "lte",
		"Gt": "gt", "Ge": "gte", "And": "and", "Or": "or", "Not": "not",
		"Add": "add", "Sub": "subtract", "Mul": "multiply", "Div": "divide",
		"Mod": "modulus", "Like": "like", "ILike": "ilike",
	}
	for in, want := range cases {
		assert.Equal(t, want, substraitOpName(in))
	}
}
