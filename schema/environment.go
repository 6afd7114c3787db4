package schema

// Environment is the ordered list of column names describing the tuple
// shape at a given point in a pipeline (spec §2, §4.3, §9). Substrait
// field references are positional, so the list itself is authoritative
// for index assignment; origin is a parallel per-column slice recording
// the table/alias that contributed each column, used only to resolve
// qualified references and detect ambiguity under Join (spec §3.2, §9
// "Environment-as-list vs environment-as-map").
type Environment struct {
	Columns []string
	origin  []string // parallel to Columns; table/alias that contributed each column, "" if unknown
}

// NewEnvironment builds an environment from a flat, unqualified column
// list with no origin recorded (the output of a Select or GroupBy;
// spec §4.3).
func NewEnvironment(columns []string) *Environment {
	return &Environment{Columns: append([]string(nil), columns...), origin: make([]string, len(columns))}
}

// NewEnvironmentWithOrigin builds an environment where every column is
// additionally tagged with the table/alias it came from, used by the
// Substrait backend to narrow an environment to a ReadRel's projection
// mask while preserving qualification (spec §3.2, §4.5).
func NewEnvironmentWithOrigin(columns, origins []string) *Environment {
	e := &Environment{Columns: append([]string(nil), columns...), origin: append([]string(nil), origins...)}
	return e
}

// Len returns the number of columns in the environment.
func (e *Environment) Len() int { return len(e.Columns) }

// Origin returns the table/alias that contributed column i, or "" if
// unknown.
func (e *Environment) Origin(i int) string {
	if i < 0 || i >= len(e.origin) {
		return ""
	}
	return e.origin[i]
}

// WithOrigin returns a copy of the environment whose every column is
// tagged with the given table/alias, used when seeding from a single
// Source::Table (spec §4.3).
func (e *Environment) WithOrigin(table string) *Environment {
	origins := make([]string, len(e.Columns))
	for i := range origins {
		origins[i] = table
	}
	return &Environment{Columns: append([]string(nil), e.Columns...), origin: origins}
}

// Concat returns the concatenation left ++ right, the Join transition
// rule of spec §4.3.
func Concat(left, right *Environment) *Environment {
	cols := make([]string, 0, left.Len()+right.Len())
	origins := make([]string, 0, left.Len()+right.Len())
	cols = append(cols, left.Columns...)
	origins = append(origins, left.origin...)
	cols = append(cols, right.Columns...)
	origins = append(origins, right.origin...)
	return &Environment{Columns: cols, origin: origins}
}

// Resolve finds the positional index of a (possibly qualified) column
// reference against the environment. An empty table qualifier resolves
// against the first matching column name; if more than one column shares
// that name and no qualifier was given, Resolve returns
// AmbiguousColumn — the "diagnostic option to require qualification"
// called for in spec §3.2.
func (e *Environment) Resolve(table, column string) (int, error) {
	if table != "" {
		for i, c := range e.Columns {
			if c == column && e.origin[i] == table {
				return i, nil
			}
		}
		return -1, NewColumnNotFound(table+"."+column, e.Columns)
	}

	found := -1
	ambiguous := false
	for i, c := range e.Columns {
		if c == column {
			if found == -1 {
				found = i
			} else {
				ambiguous = true
			}
		}
	}
	if found == -1 {
		return -1, NewColumnNotFound(column, e.Columns)
	}
	if ambiguous {
		return -1, NewAmbiguousColumn(column)
	}
	return found, nil
}

// Has reports whether a (possibly qualified) column reference resolves
// unambiguously.
func (e *Environment) Has(table, column string) bool {
	_, err := e.Resolve(table, column)
	return err == nil
}

// FromTableSchema seeds an environment from a catalog lookup, tagging
// every column with the table's name or alias (spec §4.3 seeding rule).
func FromTableSchema(ts TableSchema, qualifier string) *Environment {
	cols := make([]string, len(ts.Columns))
	for i, c := range ts.Columns {
		cols[i] = c.Name
	}
	return NewEnvironment(cols).WithOrigin(qualifier)
}
