// Package sqlbuild renders SELECT statements for the query service.
//
// Predicate values are written into the statement as quoted literals. Nothing is escaped
// and no bind parameters are produced, so callers must only pass trusted values.
package sqlbuild

import (
	"strconv"
	"strings"
)

// RowLimit caps every rendered statement.
const RowLimit = 50

// Op is the comparison a predicate renders.
type Op int

const (
	OpEquals Op = iota
	OpIn
	OpLike
	OpLikeAny
)

func (o Op) String() string {
	switch o {
	case OpEquals:
		return "EQUALS"
	case OpIn:
		return "IN"
	case OpLike:
		return "LIKE"
	case OpLikeAny:
		return "LIKE_ANY"
	}
	return "Op(" + strconv.Itoa(int(o)) + ")"
}

// Predicate is one filter on a column. EQUALS and LIKE use Values[0].
type Predicate struct {
	Op     Op
	Column string
	Values []string
}

func Equals(column, value string) Predicate {
	return Predicate{Op: OpEquals, Column: column, Values: []string{value}}
}

func In(column string, values ...string) Predicate {
	return Predicate{Op: OpIn, Column: column, Values: values}
}

func Like(column, pattern string) Predicate {
	return Predicate{Op: OpLike, Column: column, Values: []string{pattern}}
}

// LikeAny matches column against every pattern with OR, each as a substring match.
func LikeAny(column string, patterns ...string) Predicate {
	return Predicate{Op: OpLikeAny, Column: column, Values: patterns}
}

// QuerySpec describes a statement before rendering. No Columns selects all columns.
type QuerySpec struct {
	Table      string
	Columns    []string
	Predicates []Predicate
}

// Select starts a spec for table.
func Select(table string, columns ...string) QuerySpec {
	return QuerySpec{Table: table, Columns: columns}
}

// Where returns a copy of the spec with ps appended. The receiver is left untouched
// so a base spec can be shared between tasks.
func (q QuerySpec) Where(ps ...Predicate) QuerySpec {
	preds := make([]Predicate, 0, len(q.Predicates)+len(ps))
	preds = append(preds, q.Predicates...)
	preds = append(preds, ps...)
	q.Predicates = preds
	return q
}

// SQL renders the spec.
func (q QuerySpec) SQL() string {
	return Build(q.Table, q.Columns, q.Predicates)
}

// Build renders SELECT <columns> FROM <table> [WHERE p1 AND p2 ...] LIMIT RowLimit.
func Build(table string, columns []string, predicates []Predicate) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	if len(columns) == 0 {
		b.WriteString("*")
	} else {
		b.WriteString(strings.Join(columns, ", "))
	}
	b.WriteString(" FROM ")
	b.WriteString(table)
	if len(predicates) > 0 {
		clauses := make([]string, 0, len(predicates))
		for _, p := range predicates {
			clauses = append(clauses, render(p))
		}
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(clauses, " AND "))
	}
	b.WriteString(" LIMIT ")
	b.WriteString(strconv.Itoa(RowLimit))
	return b.String()
}

func render(p Predicate) string {
	switch p.Op {
	case OpEquals:
		return p.Column + " = " + quote(first(p.Values))
	case OpLike:
		return p.Column + " LIKE " + quote("%"+first(p.Values)+"%")
	case OpIn:
		if len(p.Values) == 0 {
			return "1 = 0"
		}
		quoted := make([]string, len(p.Values))
		for i, v := range p.Values {
			quoted[i] = quote(v)
		}
		return p.Column + " IN (" + strings.Join(quoted, ",") + ")"
	case OpLikeAny:
		if len(p.Values) == 0 {
			return "1 = 0"
		}
		parts := make([]string, len(p.Values))
		for i, v := range p.Values {
			parts[i] = p.Column + " LIKE " + quote("%"+v+"%")
		}
		return "(" + strings.Join(parts, " OR ") + ")"
	}
	return "1 = 0"
}

func quote(v string) string {
	return "'" + v + "'"
}

func first(vs []string) string {
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}
