package db

import (
	"fmt"
	"strings"
)

// SearchQuery builds the WHERE clause of a filtered, paginated list query and
// keeps the positional argument index in step with the fragments added.
type SearchQuery struct {
	from    string
	cols    string
	where   string
	args    []any
	idx     int
	orderBy string
}

// NewSearchQuery starts a query selecting cols from the given FROM clause,
// which may include joins.
func NewSearchQuery(from, cols string) *SearchQuery {
	return &SearchQuery{from: from, cols: cols, idx: 1}
}

// Idx returns the next available parameter index.
func (q *SearchQuery) Idx() int { return q.idx }

// Add appends a raw WHERE fragment (without leading "AND") whose placeholders
// start at Idx.
func (q *SearchQuery) Add(clause string, args ...any) {
	q.where += " AND " + clause
	q.args = append(q.args, args...)
	q.idx += len(args)
}

// AddEq adds "column = value".
func (q *SearchQuery) AddEq(column string, value any) {
	q.Add(fmt.Sprintf("%s = $%d", column, q.idx), value)
}

// AddContains matches term case-insensitively as a substring of any of the
// columns. A blank term adds nothing.
func (q *SearchQuery) AddContains(term string, columns ...string) {
	term = strings.TrimSpace(term)
	if term == "" || len(columns) == 0 {
		return
	}
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = fmt.Sprintf("%s ILIKE $%d", c, q.idx)
	}
	q.Add("("+strings.Join(parts, " OR ")+")", "%"+escapeLike(term)+"%")
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// OrderBy sets the ORDER BY clause (without the keyword).
func (q *SearchQuery) OrderBy(orderBy string) {
	q.orderBy = orderBy
}

func (q *SearchQuery) CountSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE 1=1%s", q.from, q.where)
}

func (q *SearchQuery) CountArgs() []any {
	return q.args
}

// SQL returns the unpaginated query.
func (q *SearchQuery) SQL() string {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE 1=1%s", q.cols, q.from, q.where)
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	return sql
}

func (q *SearchQuery) Args() []any {
	return q.args
}

// DataSQL returns the page query with ORDER BY and LIMIT/OFFSET.
func (q *SearchQuery) DataSQL() string {
	return q.SQL() + fmt.Sprintf(" LIMIT $%d OFFSET $%d", q.idx, q.idx+1)
}

func (q *SearchQuery) DataArgs(limit, offset int) []any {
	out := make([]any, len(q.args), len(q.args)+2)
	copy(out, q.args)
	return append(out, limit, offset)
}
