package query

import (
	"sort"

	"rowvault/src/cache"
)

// cacheKey computes §4.8's canonical query identity: every clause
// bucket normalized to a sorted, order-independent representation, so
// two builders describing the same query in a different call order
// hash to the same cache key. This is independent of the
// evaluation-order state used by evaluate(), which must preserve
// clause-insertion order for sort and join.
//
// Map and Filter callbacks are deliberately absent from this payload:
// a Go function value's identity (even via reflect.ValueOf(fn).Pointer())
// is not stable across two closures created from the same call site
// with different captured state, so cacheable() forces caching off
// whenever either is present rather than risk hashing two different
// callbacks to the same key.
func (q *Query) cacheKey() (string, error) {
	payload := map[string]any{
		"table":    q.tbl.Name(),
		"joins":    canonicalJoins(q.joins),
		"wheres":   canonicalWheres(q.wheres),
		"selects":  canonicalSelects(q.selects),
		"distinct": sortedStrings(q.distincts),
		"sorts":    canonicalSorts(q.sorts),
	}
	return cache.HashPayload(payload)
}

// cacheable reports whether this query's clauses can be identified
// safely for caching purposes. Map and Filter carry arbitrary caller
// closures with no stable identity, so their presence disables both
// read-through and write-through caching regardless of NoCache.
func (q *Query) cacheable() bool {
	return len(q.maps) == 0 && len(q.filters) == 0
}

func sortedStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}

type canonicalJoin struct {
	Table    string `bson:"table"`
	Left     string `bson:"left"`
	Operator string `bson:"operator"`
	Right    string `bson:"right"`
	Prefix   string `bson:"prefix"`
}

func canonicalJoins(joins []joinClause) []canonicalJoin {
	out := make([]canonicalJoin, len(joins))
	for i, j := range joins {
		out[i] = canonicalJoin{Table: j.table, Left: j.on.Left, Operator: j.on.Operator, Right: j.on.Right, Prefix: j.prefix}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Table < out[k].Table })
	return out
}

type canonicalWhere struct {
	Column   string `bson:"column"`
	Operator string `bson:"operator"`
	Value    any    `bson:"value"`
}

func canonicalWheres(wheres []whereClause) []canonicalWhere {
	out := make([]canonicalWhere, len(wheres))
	for i, w := range wheres {
		out[i] = canonicalWhere{Column: w.column, Operator: w.operator, Value: w.value}
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].Column != out[k].Column {
			return out[i].Column < out[k].Column
		}
		return out[i].Operator < out[k].Operator
	})
	return out
}

type canonicalSelect struct {
	From string `bson:"from"`
	To   string `bson:"to"`
}

func canonicalSelects(selects []selectClause) []canonicalSelect {
	out := make([]canonicalSelect, len(selects))
	for i, s := range selects {
		out[i] = canonicalSelect{From: s.from, To: s.to}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].From < out[k].From })
	return out
}

type canonicalSort struct {
	Column    string `bson:"column"`
	Ascending bool   `bson:"ascending"`
}

func canonicalSorts(sorts []sortClause) []canonicalSort {
	out := make([]canonicalSort, len(sorts))
	for i, s := range sorts {
		out[i] = canonicalSort{Column: s.column, Ascending: s.ascending}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Column < out[k].Column })
	return out
}
