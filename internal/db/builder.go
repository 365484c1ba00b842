package db

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Vector distance operators understood by pgvector.
const (
	VectorOpCosine = "<=>"
	VectorOpL2     = "<->"
	VectorOpIP     = "<#>"
)

// IsValidIdentifier returns true if s is a safe SQL identifier:
// lowercase letter or underscore first, then [a-z0-9_], max 63 bytes.
func IsValidIdentifier(s string) bool {
	if s == "" || len(s) > 63 {
		return false
	}
	for i, r := range s {
		isLower := r >= 'a' && r <= 'z'
		isDigit := r >= '0' && r <= '9'
		if i == 0 {
			if !isLower && r != '_' {
				return false
			}
			continue
		}
		if !isLower && !isDigit && r != '_' {
			return false
		}
	}
	return true
}

// QuoteIdentifier wraps a validated identifier in double quotes.
// Invalid identifiers panic: callers must validate names at the domain
// boundary, a bad name reaching this point is a programming error.
func QuoteIdentifier(s string) string {
	if !IsValidIdentifier(s) {
		panic(fmt.Sprintf("db: invalid identifier %q", s))
	}
	return `"` + s + `"`
}

// InsertBuilder is a fluent builder for INSERT statements against tables
// whose column set is only known at runtime.
type InsertBuilder struct {
	table     string
	columns   []string
	rows      [][]any
	returning []string
	conflict  string
}

// NewInsert starts building an INSERT into the given table.
func NewInsert(table string) *InsertBuilder {
	return &InsertBuilder{table: table}
}

// Columns sets the column list. Call once, before Row.
func (b *InsertBuilder) Columns(cols ...string) *InsertBuilder {
	b.columns = cols
	return b
}

// Row appends one VALUES tuple. Length must match Columns.
func (b *InsertBuilder) Row(values ...any) *InsertBuilder {
	b.rows = append(b.rows, values)
	return b
}

// Returning adds a RETURNING clause.
func (b *InsertBuilder) Returning(cols ...string) *InsertBuilder {
	b.returning = cols
	return b
}

// OnConflictDoNothing adds ON CONFLICT DO NOTHING.
func (b *InsertBuilder) OnConflictDoNothing() *InsertBuilder {
	b.conflict = "DO NOTHING"
	return b
}

// Build renders the statement and its ordered arguments.
func (b *InsertBuilder) Build() (string, []any, error) {
	if !IsValidIdentifier(b.table) {
		return "", nil, fmt.Errorf("invalid table name %q", b.table)
	}
	if len(b.columns) == 0 {
		return "", nil, errors.New("insert requires at least one column")
	}
	if len(b.rows) == 0 {
		return "", nil, errors.New("insert requires at least one row")
	}

	quoted := make([]string, len(b.columns))
	for i, c := range b.columns {
		if !IsValidIdentifier(c) {
			return "", nil, fmt.Errorf("invalid column name %q", c)
		}
		quoted[i] = QuoteIdentifier(c)
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(QuoteIdentifier(b.table))
	sb.WriteString(" (")
	sb.WriteString(strings.Join(quoted, ", "))
	sb.WriteString(") VALUES ")

	args := make([]any, 0, len(b.rows)*len(b.columns))
	placeholder := 1
	for ri, row := range b.rows {
		if len(row) != len(b.columns) {
			return "", nil, fmt.Errorf("row %d has %d values, want %d", ri, len(row), len(b.columns))
		}
		if ri > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for vi := range row {
			if vi > 0 {
				sb.WriteString(", ")
			}
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(placeholder))
			placeholder++
		}
		sb.WriteByte(')')
		args = append(args, row...)
	}

	if b.conflict != "" {
		sb.WriteString(" ON CONFLICT ")
		sb.WriteString(b.conflict)
	}
	if len(b.returning) > 0 {
		ret := make([]string, len(b.returning))
		for i, c := range b.returning {
			if !IsValidIdentifier(c) {
				return "", nil, fmt.Errorf("invalid returning column %q", c)
			}
			ret[i] = QuoteIdentifier(c)
		}
		sb.WriteString(" RETURNING ")
		sb.WriteString(strings.Join(ret, ", "))
	}

	return sb.String(), args, nil
}

// SelectBuilder is a fluent builder for SELECT statements against dynamic
// tables, including pgvector distance projections.
type SelectBuilder struct {
	table    string
	columns  []string
	where    []whereClause
	orderBy  string
	limit    int
	offset   int
	distance *distanceClause
}

type whereClause struct {
	column   string
	operator string
	value    any
	noValue  bool
}

type distanceClause struct {
	column   string
	operator string
	alias    string
	vector   any
}

// NewSelect starts building a SELECT from the given table.
func NewSelect(table string) *SelectBuilder {
	return &SelectBuilder{table: table, limit: -1, offset: -1}
}

// Columns adds plain columns to the projection.
func (b *SelectBuilder) Columns(cols ...string) *SelectBuilder {
	b.columns = append(b.columns, cols...)
	return b
}

// Distance projects a vector distance expression, aliases it, and orders
// ascending by it unless OrderBy overrides.
func (b *SelectBuilder) Distance(column, operator, alias string, vector any) *SelectBuilder {
	b.distance = &distanceClause{column: column, operator: operator, alias: alias, vector: vector}
	return b
}

// Where appends a binary condition binding one argument.
func (b *SelectBuilder) Where(column, operator string, value any) *SelectBuilder {
	b.where = append(b.where, whereClause{column: column, operator: operator, value: value})
	return b
}

// WhereNotNull appends an IS NOT NULL condition.
func (b *SelectBuilder) WhereNotNull(column string) *SelectBuilder {
	b.where = append(b.where, whereClause{column: column, operator: "IS NOT NULL", noValue: true})
	return b
}

// OrderBy sets an explicit ORDER BY expression overriding the distance
// ordering. Expression is not escaped: use only with literal constants.
func (b *SelectBuilder) OrderBy(expr string) *SelectBuilder {
	b.orderBy = expr
	return b
}

// Limit caps the row count.
func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limit = n
	return b
}

// Offset skips the first n rows.
func (b *SelectBuilder) Offset(n int) *SelectBuilder {
	b.offset = n
	return b
}

// Build renders the statement and its ordered arguments.
func (b *SelectBuilder) Build() (string, []any, error) {
	if !IsValidIdentifier(b.table) {
		return "", nil, fmt.Errorf("invalid table name %q", b.table)
	}
	if len(b.columns) == 0 && b.distance == nil {
		return "", nil, errors.New("select requires at least one column")
	}

	projection := make([]string, 0, len(b.columns)+1)
	for _, c := range b.columns {
		if !IsValidIdentifier(c) {
			return "", nil, fmt.Errorf("invalid column name %q", c)
		}
		projection = append(projection, QuoteIdentifier(c))
	}

	args := make([]any, 0, len(b.where)+1)
	placeholder := 1

	var distExpr string
	if b.distance != nil {
		if !IsValidIdentifier(b.distance.column) || !IsValidIdentifier(b.distance.alias) {
			return "", nil, errors.New("invalid distance column or alias")
		}
		if !validVectorOp(b.distance.operator) {
			return "", nil, fmt.Errorf("invalid vector operator %q", b.distance.operator)
		}
		distExpr = fmt.Sprintf("%s %s $%d",
			QuoteIdentifier(b.distance.column), b.distance.operator, placeholder)
		projection = append(projection, distExpr+" AS "+QuoteIdentifier(b.distance.alias))
		args = append(args, b.distance.vector)
		placeholder++
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(projection, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(QuoteIdentifier(b.table))

	if len(b.where) > 0 {
		sb.WriteString(" WHERE ")
		for i, w := range b.where {
			if i > 0 {
				sb.WriteString(" AND ")
			}
			if !IsValidIdentifier(w.column) {
				return "", nil, fmt.Errorf("invalid where column %q", w.column)
			}
			if !validWhereOp(w.operator) {
				return "", nil, fmt.Errorf("invalid where operator %q", w.operator)
			}
			sb.WriteString(QuoteIdentifier(w.column))
			sb.WriteByte(' ')
			sb.WriteString(w.operator)
			if !w.noValue {
				sb.WriteString(" $")
				sb.WriteString(strconv.Itoa(placeholder))
				placeholder++
				args = append(args, w.value)
			}
		}
	}

	switch {
	case b.orderBy != "":
		sb.WriteString(" ORDER BY ")
		sb.WriteString(b.orderBy)
	case distExpr != "":
		sb.WriteString(" ORDER BY ")
		sb.WriteString(distExpr)
	}

	if b.limit >= 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(b.limit))
	}
	if b.offset > 0 {
		sb.WriteString(" OFFSET ")
		sb.WriteString(strconv.Itoa(b.offset))
	}

	return sb.String(), args, nil
}

func validVectorOp(op string) bool {
	return op == VectorOpCosine || op == VectorOpL2 || op == VectorOpIP
}

func validWhereOp(op string) bool {
	switch op {
	case "=", "<>", "<", "<=", ">", ">=", "IS NOT NULL", "IS NULL":
		return true
	}
	return false
}
