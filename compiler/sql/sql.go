// Package sql is the SQL text backend (spec §4.4): it walks an IR
// pipeline and renders a single SQL SELECT statement, introducing a
// WITH clause only when the pipeline's operator order can't be
// expressed as one flat SELECT over DuckDB's fixed clause ordering
// (FROM/JOIN, WHERE, GROUP BY, SELECT/DISTINCT, ORDER BY, LIMIT).
package sql

import (
	"fmt"
	"strconv"
	"strings"

	"mlql/compiler"
	"mlql/ir"
	"mlql/schema"
)

// phase tracks how far the segment currently being built has progressed
// through SQL's fixed clause order. An operator whose natural phase is
// behind the segment's current phase can't be folded into the same flat
// SELECT and forces a CTE boundary.
type phase int

const (
	phaseFrom phase = iota
	phaseWhere
	phaseGroupBy
	phaseSelect
	phaseOrderBy
	phaseLimit
)

// segment accumulates the clauses of one flat SELECT.
type segment struct {
	distinct    bool
	projections []string
	from        string
	joins       []string
	where       []string
	groupBy     []string
	orderBy     []string
	limit       *uint64
	offset      *uint64
	phase       phase
	terminal    bool // true once Take has been applied; any further op forces a flush
	projFixed   bool // true once Select or GroupBy has defined the projection list
}

func newSegment(from string) *segment {
	return &segment{from: from, phase: phaseFrom}
}

// render produces the flat SELECT text for this segment. If no explicit
// projection was ever set (no Select/GroupBy operator occurred), it
// defaults to "SELECT *" over the current tuple.
func (s *segment) render() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	if s.distinct {
		b.WriteString("DISTINCT ")
	}
	if len(s.projections) == 0 {
		b.WriteString("*")
	} else {
		b.WriteString(strings.Join(s.projections, ", "))
	}
	b.WriteString(" FROM ")
	b.WriteString(s.from)
	for _, j := range s.joins {
		b.WriteString(" ")
		b.WriteString(j)
	}
	if len(s.where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(s.where, " AND "))
	}
	if len(s.groupBy) > 0 {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(s.groupBy, ", "))
	}
	if len(s.orderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(s.orderBy, ", "))
	}
	if s.limit != nil {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.FormatUint(*s.limit, 10))
		if s.offset != nil {
			b.WriteString(" OFFSET ")
			b.WriteString(strconv.FormatUint(*s.offset, 10))
		}
	}
	return b.String()
}

// builder accumulates CTEs as segments are flushed, then emits WITH and
// the CTEs followed by the current segment's SELECT, which reads from the
// last CTE (or a bare SELECT when no flush was ever needed).
type builder struct {
	ctes    []string
	cteSeq  int
	current *segment
}

func (b *builder) nextCTEName() string {
	name := fmt.Sprintf("cte%d", b.cteSeq)
	b.cteSeq++
	return name
}

// flush materializes the current segment as a named CTE and starts a
// fresh segment selecting "*" from it.
func (b *builder) flush() {
	name := b.nextCTEName()
	b.ctes = append(b.ctes, fmt.Sprintf("%s AS (%s)", name, b.current.render()))
	b.current = newSegment(quoteIdent(name))
}

// ensurePhase flushes the current segment if it can no longer host an
// operator at the given phase, then advances to it.
func (b *builder) ensurePhase(p phase) {
	if b.current.terminal || p < b.current.phase {
		b.flush()
	}
	b.current.phase = p
}

// beginProjection is ensurePhase plus the rule specific to Select and
// GroupBy: either one can be followed directly by a Sort/Take/Distinct
// referencing its output aliases (ORDER BY and LIMIT apply to the
// finished row set, so that's always safe), but a *second* Select or
// GroupBy would need to reference an alias defined by the first one's
// projection list while simultaneously replacing that list — which
// destroys the defining expression. That case is materialized instead.
func (b *builder) beginProjection(p phase) {
	if b.current.projFixed {
		b.flush()
	} else {
		b.ensurePhase(p)
	}
	b.current.phase = p
	b.current.projFixed = true
}

func (b *builder) finish() string {
	stmt := b.current.render()
	if len(b.ctes) == 0 {
		return stmt
	}
	return "WITH " + strings.Join(b.ctes, ", ") + " " + stmt
}

// CompileSQL translates program into a single SQL statement (spec §4.4,
// §6.3). provider is consulted once per Table source the pipeline names;
// the tables inside a SubPipeline source are looked up again when its
// inner statement is rendered. opts
// accepts compiler.WithLogger to receive a Debug-level trace of the
// schema environment before/after each operator (spec §3.2); compiles
// are otherwise silent.
func CompileSQL(program *ir.Program, provider schema.Provider, opts ...compiler.Option) (string, error) {
	log := compiler.ResolveOptions(opts...).Logger

	// EnvAt validates every expression in the pipeline up front (column
	// resolution, function arity, AggCall placement); the rendering pass
	// below can assume the program is well-formed.
	envs, err := compiler.EnvAt(&program.Pipeline, provider)
	if err != nil {
		return "", err
	}

	from, err := renderSource(program.Pipeline.Source, provider)
	if err != nil {
		return "", err
	}
	b := &builder{current: newSegment(from)}

	for i, op := range program.Pipeline.Ops {
		if err := applyOperator(b, i, op, provider); err != nil {
			return "", err
		}
		log.Debugf("sql: op[%d] %T: env %v -> %v", i, op, envs[i].Columns, envs[i+1].Columns)
	}
	return b.finish(), nil
}

func renderSource(src ir.Source, provider schema.Provider) (string, error) {
	switch t := src.(type) {
	case ir.Table:
		if t.Alias != "" {
			return quoteIdent(t.Name) + " AS " + quoteIdent(t.Alias), nil
		}
		return quoteIdent(t.Name), nil
	case ir.SubPipeline:
		inner, err := CompileSQL(&ir.Program{Pipeline: *t.Pipeline}, provider)
		if err != nil {
			return "", err
		}
		return "(" + inner + ")", nil
	default:
		return "", compiler.InternalErr(-1, fmt.Sprintf("unhandled source type %T", src))
	}
}

func applyOperator(b *builder, opIndex int, op ir.Operator, provider schema.Provider) error {
	switch t := op.(type) {
	case ir.Filter:
		b.ensurePhase(phaseWhere)
		cond, err := renderExpr(t.Condition)
		if err != nil {
			return err
		}
		b.current.where = append(b.current.where, cond)
		return nil

	case ir.Select:
		b.beginProjection(phaseSelect)
		projs := make([]string, len(t.Projections))
		for i, p := range t.Projections {
			exprText, err := renderExpr(p.Expr)
			if err != nil {
				return err
			}
			if p.HasAlias() {
				projs[i] = exprText + " AS " + quoteIdent(p.Alias)
			} else {
				projs[i] = exprText
			}
		}
		b.current.projections = projs
		return nil

	case ir.Sort:
		b.ensurePhase(phaseOrderBy)
		keys := make([]string, len(t.Keys))
		for i, k := range t.Keys {
			exprText, err := renderExpr(k.Expr)
			if err != nil {
				return err
			}
			if k.Desc {
				keys[i] = exprText + " DESC NULLS LAST"
			} else {
				keys[i] = exprText + " ASC NULLS FIRST"
			}
		}
		b.current.orderBy = keys
		return nil

	case ir.Take:
		b.ensurePhase(phaseLimit)
		limit := t.Limit
		b.current.limit = &limit
		b.current.offset = t.Offset
		b.current.terminal = true
		return nil

	case ir.Distinct:
		b.ensurePhase(phaseSelect)
		b.current.distinct = true
		return nil

	case ir.GroupBy:
		b.beginProjection(phaseGroupBy)
		groupBy := make([]string, len(t.Keys))
		projs := make([]string, 0, len(t.Keys)+len(t.AggOrder))
		for i, k := range t.Keys {
			col := quoteColumnRef(k)
			groupBy[i] = col
			projs = append(projs, col)
		}
		for _, alias := range t.AggOrder {
			call := t.Aggs[alias]
			exprText, err := renderExpr(call)
			if err != nil {
				return err
			}
			projs = append(projs, exprText+" AS "+quoteIdent(alias))
		}
		b.current.groupBy = groupBy
		b.current.projections = projs
		return nil

	case ir.Join:
		b.ensurePhase(phaseFrom)
		rightFrom, err := renderSource(t.Source, provider)
		if err != nil {
			return err
		}
		on, err := renderExpr(t.On)
		if err != nil {
			return err
		}
		kw, err := joinKeyword(t.Kind)
		if err != nil {
			return compiler.UnsupportedErr(opIndex, fmt.Sprintf("Join::%s", t.Kind))
		}
		b.current.joins = append(b.current.joins, fmt.Sprintf("%s JOIN %s ON %s", kw, rightFrom, on))
		return nil

	default:
		return compiler.InternalErr(opIndex, fmt.Sprintf("unhandled operator type %T", op))
	}
}

func joinKeyword(k ir.JoinKind) (string, error) {
	switch k {
	case ir.Inner:
		return "INNER", nil
	case ir.Left:
		return "LEFT", nil
	case ir.Right:
		return "RIGHT", nil
	case ir.Full:
		return "FULL", nil
	case ir.Semi:
		return "SEMI", nil
	case ir.Anti:
		return "ANTI", nil
	default:
		return "", fmt.Errorf("unsupported join kind %q", k)
	}
}

func renderExpr(e ir.Expr) (string, error) {
	switch t := e.(type) {
	case ir.Column:
		return quoteColumnRef(t.ColumnRef), nil

	case ir.Literal:
		return renderLiteral(t)

	case ir.BinaryOp:
		left, err := renderExpr(t.Left)
		if err != nil {
			return "", err
		}
		right, err := renderExpr(t.Right)
		if err != nil {
			return "", err
		}
		op, err := binaryOpText(t.Op)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s %s %s)", left, op, right), nil

	case ir.UnaryOp:
		arg, err := renderExpr(t.Arg)
		if err != nil {
			return "", err
		}
		switch t.Op {
		case ir.Neg:
			return fmt.Sprintf("(-%s)", arg), nil
		case ir.Not:
			return fmt.Sprintf("(NOT %s)", arg), nil
		default:
			return "", fmt.Errorf("unsupported unary op %q", t.Op)
		}

	case ir.FuncCall:
		args := make([]string, len(t.Args))
		for i, a := range t.Args {
			s, err := renderExpr(a)
			if err != nil {
				return "", err
			}
			args[i] = s
		}
		return fmt.Sprintf("%s(%s)", t.Func, strings.Join(args, ", ")), nil

	case ir.AggCall:
		if len(t.Args) == 0 {
			return fmt.Sprintf("%s(*)", t.Func), nil
		}
		args := make([]string, len(t.Args))
		for i, a := range t.Args {
			s, err := renderExpr(a)
			if err != nil {
				return "", err
			}
			args[i] = s
		}
		distinct := ""
		if t.Distinct {
			distinct = "DISTINCT "
		}
		return fmt.Sprintf("%s(%s%s)", t.Func, distinct, strings.Join(args, ", ")), nil

	default:
		return "", compiler.InternalErr(-1, fmt.Sprintf("unhandled expression type %T", e))
	}
}

func binaryOpText(op ir.BinaryOpKind) (string, error) {
	switch op {
	case ir.Add:
		return "+", nil
	case ir.Sub:
		return "-", nil
	case ir.Mul:
		return "*", nil
	case ir.Div:
		return "/", nil
	case ir.Mod:
		return "%", nil
	case ir.Eq:
		return "=", nil
	case ir.Ne:
		return "<>", nil
	case ir.Lt:
		return "<", nil
	case ir.Le:
		return "<=", nil
	case ir.Gt:
		return ">", nil
	case ir.Ge:
		return ">=", nil
	case ir.And:
		return "AND", nil
	case ir.Or:
		return "OR", nil
	case ir.Like:
		return "LIKE", nil
	case ir.ILike:
		return "ILIKE", nil
	default:
		return "", fmt.Errorf("unsupported binary op %q", op)
	}
}

func renderLiteral(l ir.Literal) (string, error) {
	switch l.Kind {
	case ir.LiteralNull:
		return "NULL", nil
	case ir.LiteralBool:
		if l.Bool {
			return "TRUE", nil
		}
		return "FALSE", nil
	case ir.LiteralInteger:
		return strconv.FormatInt(l.Int, 10), nil
	case ir.LiteralFloat:
		return strconv.FormatFloat(l.Flt, 'g', -1, 64), nil
	case ir.LiteralString:
		return quoteStringLiteral(l.Str), nil
	default:
		return "", fmt.Errorf("unhandled literal kind %v", l.Kind)
	}
}

func quoteColumnRef(c ir.ColumnRef) string {
	if c.Table != "" {
		return quoteIdent(c.Table) + "." + quoteIdent(c.Column)
	}
	return quoteIdent(c.Column)
}

// quoteIdent double-quotes an identifier, doubling any embedded quote
// character (spec §4.4 "identifiers are quoted using the engine's
// double-quote form").
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// quoteStringLiteral single-quotes a string literal, doubling any
// embedded single quote.
func quoteStringLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
