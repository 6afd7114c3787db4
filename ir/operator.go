package ir

// Operator is the closed tagged union of pipeline stages (spec §3.1).
type Operator interface {
	opTag() string
}

// Projection is either a bare expression (natural name) or an aliased one.
type Projection struct {
	Expr  Expr
	Alias string // empty means "no alias": natural name is derived from Expr
}

// HasAlias reports whether this projection carries an explicit alias.
func (p Projection) HasAlias() bool { return p.Alias != "" }

// Filter is a row predicate.
type Filter struct {
	Condition Expr
}

func (Filter) opTag() string { return "Filter" }

// Select replaces the projection list, possibly renaming/computing columns.
type Select struct {
	Projections []Projection
}

func (Select) opTag() string { return "Select" }

// SortKey is one ORDER BY term. Null ordering is fixed by policy (§6.4):
// ASC NULLS FIRST, DESC NULLS LAST.
type SortKey struct {
	Expr Expr
	Desc bool
}

// Sort orders rows by one or more keys, stable across keys.
type Sort struct {
	Keys []SortKey
}

func (Sort) opTag() string { return "Sort" }

// Take windows the row stream by limit and optional offset.
type Take struct {
	Limit  uint64
	Offset *uint64
}

func (Take) opTag() string { return "Take" }

// Distinct deduplicates across the full current tuple.
type Distinct struct{}

func (Distinct) opTag() string { return "Distinct" }

// GroupBy aggregates rows by key columns. Aggs preserves insertion order,
// which defines output column order after the keys (spec §3.1, §3.2).
type GroupBy struct {
	Keys     []ColumnRef
	Aggs     map[string]AggCall
	AggOrder []string // alias order as declared; authoritative over map iteration
}

func (GroupBy) opTag() string { return "GroupBy" }

// JoinKind is the closed set of join kinds.
type JoinKind string

const (
	Inner JoinKind = "Inner"
	Left  JoinKind = "Left"
	Right JoinKind = "Right"
	Full  JoinKind = "Full"
	Semi  JoinKind = "Semi"
	Anti  JoinKind = "Anti"
	Cross JoinKind = "Cross"
)

var validJoinKinds = map[JoinKind]bool{
	Inner: true, Left: true, Right: true, Full: true,
	Semi: true, Anti: true, Cross: true,
}

// ValidJoinKind reports whether k is a member of the closed JoinKind set.
func ValidJoinKind(k JoinKind) (JoinKind, bool) {
	return k, validJoinKinds[k]
}

// Join combines the current pipeline with another source.
type Join struct {
	Source Source
	On     Expr
	Kind   JoinKind
}

func (Join) opTag() string { return "Join" }
