package extfixture

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultTargetsCurrentLevel(t *testing.T) {
	r := Default()
	assert.Equal(t, CompatCurrent, r.Level)
	assert.Len(t, r.Notes, 2)
}

func TestResolveFetchLevelFallsBackFromLegacy(t *testing.T) {
	r := &Registry{Level: CompatLegacyFetch}
	assert.Equal(t, CompatCurrent, r.ResolveFetchLevel(nil))
}

func TestResolveFetchLevelPassesThroughCurrent(t *testing.T) {
	r := Default()
	assert.Equal(t, CompatCurrent, r.ResolveFetchLevel(nil))
}
