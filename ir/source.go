package ir

// Source is the closed tagged union of pipeline inputs (spec §3.1).
type Source interface {
	sourceTag() string
}

// Table names a base relation resolved via schema.Provider.
type Table struct {
	Name  string
	Alias string // optional
}

func (Table) sourceTag() string { return "Table" }

// SubPipeline is a nested pipeline whose output feeds the outer one. The
// core spec left this an Open Question ("may be absent"); this
// implementation supports it (see SPEC_FULL.md §5).
type SubPipeline struct {
	Pipeline *Pipeline
}

func (SubPipeline) sourceTag() string { return "SubPipeline" }

// Pipeline is an ordered, finite sequence of operators applied to a source.
type Pipeline struct {
	Source Source
	Ops    []Operator
}

// Pragma carries opaque budget hints passed through untouched by the
// compiler (spec §3.1). Known hints are typed; anything else round-trips
// via Extra.
type Pragma struct {
	MaxRows        *uint64
	MaxMemoryBytes *uint64
	TimeoutMillis  *uint64
	Extra          map[string]any
}

// Program is the top-level compiler input.
type Program struct {
	Pragma   *Pragma
	Pipeline Pipeline
}
