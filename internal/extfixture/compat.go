// Package extfixture tracks which variant of a handful of deprecated
// Substrait oneofs this module's plan producer targets, so upgrading to a
// newer consuming engine's expectations is a one-field change here rather
// than a grep across the substrait backend (spec §9 "compatibility
// fixture").
package extfixture

import "github.com/sirupsen/logrus"

// CompatLevel names a generation of Substrait oneof shapes this backend
// knows how to emit.
type CompatLevel int

const (
	// CompatCurrent emits FetchRel's deprecated scalar offset/count oneof
	// variants (FetchRel_Offset/FetchRel_Count), not the newer expression
	// variants, because the target engines of interest dispatch on those
	// accessors (spec §4.5). AggregateRel_Grouping.GroupingExpressions is
	// likewise the deprecated per-grouping form, populated here alongside
	// the newer top-level AggregateRel.GroupingExpressions +
	// Grouping.ExpressionReferences indirection, per spec's "must be
	// populated in addition to any newer form."
	CompatCurrent CompatLevel = iota
	// CompatLegacyFetch would emit FetchRel's newer expression-typed
	// offset/count variants instead of the deprecated scalars, for an
	// engine that has moved past the scalar accessors this module
	// currently targets. Not implemented: no engine in scope needs it;
	// requesting it logs a warning and falls back to CompatCurrent.
	CompatLegacyFetch
)

// Registry is the versioned note-and-level pair the Substrait backend
// consults once per compile to decide which oneof variants to populate.
type Registry struct {
	Level CompatLevel
	Notes []string
}

// Default returns the compatibility level this module actually targets,
// annotated with the reasoning for each deprecated oneof it touches.
func Default() *Registry {
	return &Registry{
		Level: CompatCurrent,
		Notes: []string{
			"FetchRel: populating the deprecated OffsetType/CountType scalar oneof variants, not the newer expression-typed variants, to match engines that dispatch on the scalar accessors",
			"AggregateRel_Grouping: populating the deprecated per-grouping GroupingExpressions field in addition to the newer top-level AggregateRel.GroupingExpressions + Grouping.ExpressionReferences indirection",
		},
	}
}

// ResolveFetchLevel reports the level this compile should target for
// FetchRel, falling back to CompatCurrent (with a logged warning) if an
// unsupported legacy level was requested.
func (r *Registry) ResolveFetchLevel(log *logrus.Entry) CompatLevel {
	if r.Level == CompatLegacyFetch {
		if log != nil {
			log.Warnf("extfixture: CompatLegacyFetch requested but not implemented; falling back to CompatCurrent")
		}
		return CompatCurrent
	}
	return r.Level
}
