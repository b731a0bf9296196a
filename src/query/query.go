// Package query implements rowvault's declarative query builder and
// evaluator (§4.8): join, map, where, select, distinct, sort, filter
// and pagination over a table, with read-through/write-through result
// caching keyed by a canonical, order-independent representation of
// the query.
//
// It is restructured around a materialized []Row slice rather than
// mutable Row objects, and the where clauses AND together rather than
// being evaluated per-clause.
package query

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"rowvault/src/cache"
	"rowvault/src/collection"
	"rowvault/src/compare"
	"rowvault/src/database"
	"rowvault/src/rvErrors"
	"rowvault/src/table"
)

// Row is a single result record: table columns plus "_id", with any
// joined columns imported under their join prefix.
type Row = map[string]any

// JoinOn describes a join predicate evaluated as
// leftRow[Left] Operator rightRow[Right].
type JoinOn struct {
	Left     string
	Operator string
	Right    string
}

type joinClause struct {
	table  string
	on     JoinOn
	prefix string
}

type whereClause struct {
	column   string
	operator string
	value    any
}

type selectClause struct {
	from string
	to   string
}

// SortOrder is one of Asc or Desc.
type SortOrder string

const (
	Asc  SortOrder = "ASC"
	Desc SortOrder = "DESC"
)

type sortClause struct {
	column    string
	ascending bool
}

// MapFunc mutates a row in place, applied before where.
type MapFunc func(Row)

// FilterFunc reports whether a row survives post-sort filtering.
type FilterFunc func(Row) bool

// Query is a declarative, fluent builder over a single table. Every
// clause method returns the same *Query so calls chain; a malformed
// clause (bad sort order, non-positive limit) is recorded on the
// builder and surfaced by Fetch rather than panicking mid-chain.
type Query struct {
	db  *database.Database
	tbl *table.Table

	joins     []joinClause
	maps      []MapFunc
	wheres    []whereClause
	selects   []selectClause
	distincts []string
	sorts     []sortClause
	filters   []FilterFunc

	cacheEnabled bool
	limitMax     int
	limitOffset  int
	err          error
}

// New builds a Query against db's table named tableName. This
// satisfies §4.8's mandatory from(table) clause at construction time,
// since a *Query with no table would have nothing for Join/Where to
// resolve against.
func New(db *database.Database, tableName string) (*Query, error) {
	tbl, err := db.Table(tableName)
	if err != nil {
		return nil, err
	}
	return &Query{db: db, tbl: tbl, cacheEnabled: true}, nil
}

// Join performs a left outer join against tableName: for each left
// row, at most one matching right row's columns are imported under
// prefix+name. An empty prefix defaults to tableName+".".
func (q *Query) Join(tableName string, on JoinOn, prefix string) *Query {
	if prefix == "" {
		prefix = tableName + "."
	}
	q.joins = append(q.joins, joinClause{table: tableName, on: on, prefix: prefix})
	return q
}

// Map appends a row-mutating callback, applied in input order before
// where.
func (q *Query) Map(fn MapFunc) *Query {
	q.maps = append(q.maps, fn)
	return q
}

// Where adds a boolean predicate. Every Where clause on a Query is
// ANDed together.
func (q *Query) Where(column, operator string, value any) *Query {
	q.wheres = append(q.wheres, whereClause{column: column, operator: operator, value: value})
	return q
}

// Select renames a column in the projected result.
func (q *Query) Select(column, newName string) *Query {
	q.selects = append(q.selects, selectClause{from: column, to: newName})
	return q
}

// Distinct keeps only the first occurrence of each value seen for
// column, in iteration order.
func (q *Query) Distinct(column string) *Query {
	q.distincts = append(q.distincts, column)
	return q
}

// Sort appends a sort key; multiple Sort calls compose into a stable
// multi-key sort applied in clause-insertion order.
func (q *Query) Sort(column string, order SortOrder) *Query {
	switch order {
	case Asc:
		q.sorts = append(q.sorts, sortClause{column: column, ascending: true})
	case Desc:
		q.sorts = append(q.sorts, sortClause{column: column, ascending: false})
	default:
		q.err = rvErrors.Wrap(rvErrors.ErrQueryMalformed, rvErrors.ErrQueryMalformed, "sort order must be ASC or DESC")
	}
	return q
}

// Filter appends a post-sort predicate.
func (q *Query) Filter(fn FilterFunc) *Query {
	q.filters = append(q.filters, fn)
	return q
}

// Limit restricts the result window to at most max rows starting at
// offset.
func (q *Query) Limit(max, offset int) *Query {
	if max < 1 {
		q.err = rvErrors.Wrap(rvErrors.ErrQueryMalformed, rvErrors.ErrQueryMalformed, "limit must be greater than zero")
		return q
	}
	q.limitMax = max
	q.limitOffset = offset
	return q
}

// NoCache disables both read-through and write-through caching for
// this query.
func (q *Query) NoCache() *Query {
	q.cacheEnabled = false
	return q
}

// Fetch runs the evaluator in the fixed order rows → join → map →
// where → select → distinct → sort → filter → (cache write) → limit
// and returns the resulting rows.
func (q *Query) Fetch() ([]Row, error) {
	c, err := q.Collect()
	if err != nil {
		return nil, err
	}
	return c.All(), nil
}

// Collect runs the evaluator through the cache write step and hands
// the unwindowed result to a Collection, which applies limit(max,
// offset) per §4.9 rather than the evaluator windowing it directly.
func (q *Query) Collect() (*collection.Collection[Row], error) {
	if q.err != nil {
		return nil, q.err
	}

	limit := q.limitMax
	if limit == 0 {
		limit = q.db.Settings().DefaultPageSize
	}

	var c *cache.Cache
	var key string
	if q.cacheEnabled && q.cacheable() {
		var err error
		key, err = q.cacheKey()
		if err == nil {
			c = cache.New(q.db.Folder(), q.db.Settings().CacheDirName, q.tbl.Name())
			if c.Valid(key) {
				if cached, err := c.Get(key); err == nil {
					return collection.New(cached, q.limitOffset, limit), nil
				}
			}
		}
	}

	rows, err := q.evaluate()
	if err != nil {
		return nil, err
	}

	if c != nil && len(rows) > 0 {
		if err := c.Put(key, rows); err != nil {
			q.db.Logger().Warnw("cache write failed", "table", q.tbl.Name(), "error", err)
		}
	}

	return collection.New(rows, q.limitOffset, limit), nil
}

func (q *Query) evaluate() ([]Row, error) {
	handles := q.tbl.Rows(nil)
	data := make([]Row, 0, len(handles))

	for _, rh := range handles {
		row, err := rh.Columns()
		if err != nil {
			return nil, err
		}

		if err := q.applyJoins(row); err != nil {
			return nil, err
		}

		for _, m := range q.maps {
			m(row)
		}

		if !q.matchesWhere(row) {
			continue
		}

		applySelects(row, q.selects)
		data = append(data, row)
	}

	data = applyDistinct(data, q.distincts)
	applySort(data, q.sorts)
	data = applyFilters(data, q.filters)

	return data, nil
}

func (q *Query) applyJoins(row Row) error {
	for _, j := range q.joins {
		rightTable, err := q.db.Table(j.table)
		if err != nil {
			return err
		}

		match, err := findJoinMatch(rightTable, row, j.on)
		if err != nil {
			return err
		}
		if match == nil {
			continue
		}

		for k, v := range match {
			row[j.prefix+k] = v
		}
	}
	return nil
}

// findJoinMatch returns the first row of rightTable satisfying
// leftRow[on.Left] on.Operator candidateRow[on.Right], or nil if none
// matches.
func findJoinMatch(rightTable *table.Table, leftRow Row, on JoinOn) (Row, error) {
	for _, rh := range rightTable.Rows(nil) {
		candidate, err := rh.Columns()
		if err != nil {
			return nil, err
		}
		if matchOperator(leftRow[on.Left], on.Operator, candidate[on.Right]) {
			return candidate, nil
		}
	}
	return nil, nil
}

func (q *Query) matchesWhere(row Row) bool {
	for _, w := range q.wheres {
		if !matchOperator(row[w.column], w.operator, w.value) {
			return false
		}
	}
	return true
}

func applySelects(row Row, selects []selectClause) {
	for _, s := range selects {
		if s.from == s.to {
			continue
		}
		if v, ok := row[s.from]; ok {
			row[s.to] = v
			delete(row, s.from)
		}
	}
}

func applyDistinct(data []Row, columns []string) []Row {
	for _, col := range columns {
		seen := make(map[string]bool, len(data))
		out := data[:0]
		for _, row := range data {
			key := stableKey(row[col])
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, row)
		}
		data = out
	}
	return data
}

func applySort(data []Row, sorts []sortClause) {
	if len(sorts) == 0 {
		return
	}
	sort.SliceStable(data, func(i, j int) bool {
		for _, s := range sorts {
			cmp := compareValues(data[i][s.column], data[j][s.column])
			if cmp == 0 {
				continue
			}
			if s.ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		return false
	})
}

func applyFilters(data []Row, filters []FilterFunc) []Row {
	for _, fn := range filters {
		out := data[:0]
		for _, row := range data {
			if fn(row) {
				out = append(out, row)
			}
		}
		data = out
	}
	return data
}

// matchOperator implements §4.8's comparison operator set.
func matchOperator(rowValue any, operator string, value any) bool {
	switch operator {
	case "=", "eq", "is":
		return equalValues(rowValue, value)
	case "!=", "neq", "is not":
		return !equalValues(rowValue, value)
	case "<":
		return compareValues(rowValue, value) < 0
	case "<=":
		return compareValues(rowValue, value) <= 0
	case ">":
		return compareValues(rowValue, value) > 0
	case ">=":
		return compareValues(rowValue, value) >= 0
	case "in", "is in":
		return membership(rowValue, value)
	case "not in":
		return !membership(rowValue, value)
	case "between":
		pair, ok := asPair(value)
		if !ok {
			return false
		}
		return compareValues(pair[0], rowValue) <= 0 && compareValues(rowValue, pair[1]) <= 0
	case "not between":
		pair, ok := asPair(value)
		if !ok {
			return false
		}
		return compareValues(rowValue, pair[0]) < 0 || compareValues(rowValue, pair[1]) > 0
	case "like":
		return likeMatch(rowValue, value, false)
	case "not like":
		return likeMatch(rowValue, value, true)
	default:
		return false
	}
}

func equalValues(a, b any) bool {
	return compare.Equal(a, b)
}

// compareValues returns -1, 0 or 1. Numeric values (int/float/bool)
// compare by magnitude, strings compare lexicographically; any other
// pairing is treated as equal, per the design notes' "structural
// otherwise" fallback, which keeps a multi-key sort stable rather
// than imposing an arbitrary order on incomparable values.
func compareValues(a, b any) int {
	if af, aok := compare.ToFloat(a); aok {
		if bf, bok := compare.ToFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			return strings.Compare(as, bs)
		}
	}
	return 0
}

func membership(rowValue, value any) bool {
	switch container := value.(type) {
	case []any:
		for _, item := range container {
			if equalValues(rowValue, item) {
				return true
			}
		}
		return false
	case string:
		s, ok := rowValue.(string)
		if !ok {
			return false
		}
		return strings.Contains(container, s)
	default:
		return false
	}
}

func asPair(value any) ([2]any, bool) {
	switch v := value.(type) {
	case []any:
		if len(v) == 2 {
			return [2]any{v[0], v[1]}, true
		}
	case [2]any:
		return v, true
	}
	return [2]any{}, false
}

// likeMatch implements SQL-style LIKE: the pattern is escaped as a
// literal via regexp.QuoteMeta, then its (still-literal) "%" and "_"
// characters are substituted for ".*" and "." respectively and
// matched as a full-string regexp, per §13's resolution of the
// source's unescaped-wildcard defect.
func likeMatch(rowValue, value any, negate bool) bool {
	pattern := fmt.Sprint(value)
	if !strings.Contains(pattern, "%") && !strings.Contains(pattern, "_") {
		eq := equalValues(rowValue, value)
		if negate {
			return !eq
		}
		return eq
	}

	quoted := regexp.QuoteMeta(pattern)
	quoted = strings.ReplaceAll(quoted, "%", ".*")
	quoted = strings.ReplaceAll(quoted, "_", ".")

	re, err := regexp.Compile("^" + quoted + "$")
	if err != nil {
		return false
	}

	matched := re.MatchString(fmt.Sprint(rowValue))
	if negate {
		return !matched
	}
	return matched
}

func stableKey(v any) string {
	return fmt.Sprintf("%#v", v)
}
