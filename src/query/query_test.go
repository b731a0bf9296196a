package query

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"rowvault/src/database"
	"rowvault/src/schema"
)

func newTestDB(t *testing.T) *database.Database {
	parent := t.TempDir()
	db, _, err := database.Create(parent, "shop", 0)
	require.NoError(t, err)
	return db
}

func seedOrders(t *testing.T, db *database.Database) {
	sch := schema.New()
	_, err := sch.Add("status", schema.Text, schema.ColumnOptions{})
	require.NoError(t, err)
	_, err = sch.Add("total_amount", schema.Number, schema.ColumnOptions{})
	require.NoError(t, err)
	_, err = sch.Add("customer_id", schema.Text, schema.ColumnOptions{})
	require.NoError(t, err)

	tbl, _, err := db.CreateTable("orders", sch, 0)
	require.NoError(t, err)

	rows := []map[string]any{
		{"status": "processing", "total_amount": float64(50), "customer_id": "c1"},
		{"status": "processing", "total_amount": float64(200), "customer_id": "c2"},
		{"status": "shipped", "total_amount": float64(80), "customer_id": "c1"},
		{"status": "processing", "total_amount": float64(120), "customer_id": "c3"},
		{"status": "cancelled", "total_amount": float64(10), "customer_id": "c1"},
		{"status": "processing", "total_amount": float64(75), "customer_id": "c2"},
	}
	for _, r := range rows {
		_, err := tbl.Insert(r)
		require.NoError(t, err)
	}
}

func TestWhereSortLimit(t *testing.T) {
	db := newTestDB(t)
	seedOrders(t, db)

	q, err := New(db, "orders")
	require.NoError(t, err)

	rows, err := q.Where("status", "=", "processing").Sort("total_amount", Desc).Limit(2, 0).Fetch()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, float64(200), rows[0]["total_amount"])
	require.Equal(t, float64(120), rows[1]["total_amount"])
}

func TestWhereClausesAreANDed(t *testing.T) {
	db := newTestDB(t)
	seedOrders(t, db)

	q, err := New(db, "orders")
	require.NoError(t, err)

	rows, err := q.Where("status", "=", "processing").Where("customer_id", "=", "c2").Fetch()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		require.Equal(t, "c2", r["customer_id"])
	}
}

func TestDistinctKeepsFirstOccurrence(t *testing.T) {
	db := newTestDB(t)
	seedOrders(t, db)

	q, err := New(db, "orders")
	require.NoError(t, err)

	rows, err := q.Distinct("customer_id").Fetch()
	require.NoError(t, err)
	require.Len(t, rows, 3)
}

func TestSelectRenamesColumn(t *testing.T) {
	db := newTestDB(t)
	seedOrders(t, db)

	q, err := New(db, "orders")
	require.NoError(t, err)

	rows, err := q.Where("status", "=", "cancelled").Select("customer_id", "buyer").Fetch()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "c1", rows[0]["buyer"])
	_, present := rows[0]["customer_id"]
	require.False(t, present)
}

func TestLimitRejectsNonPositiveMax(t *testing.T) {
	db := newTestDB(t)
	seedOrders(t, db)

	q, err := New(db, "orders")
	require.NoError(t, err)

	_, err = q.Limit(0, 0).Fetch()
	require.Error(t, err)
}

func TestSortRejectsInvalidOrder(t *testing.T) {
	db := newTestDB(t)
	seedOrders(t, db)

	q, err := New(db, "orders")
	require.NoError(t, err)

	_, err = q.Sort("total_amount", "SIDEWAYS").Fetch()
	require.Error(t, err)
}

func TestJoinImportsPrefixedColumnsOnMatch(t *testing.T) {
	db := newTestDB(t)
	seedOrders(t, db)

	customerSchema := schema.New()
	_, err := customerSchema.Add("name", schema.Text, schema.ColumnOptions{})
	require.NoError(t, err)
	customers, _, err := db.CreateTable("customers", customerSchema, 0)
	require.NoError(t, err)

	c1, err := customers.Insert(map[string]any{"name": "Ada"})
	require.NoError(t, err)

	ordersTbl, err := db.Table("orders")
	require.NoError(t, err)
	_, err = ordersTbl.Insert(map[string]any{"status": "processing", "total_amount": float64(30), "customer_id": c1})
	require.NoError(t, err)

	q, err := New(db, "orders")
	require.NoError(t, err)

	rows, err := q.
		Join("customers", JoinOn{Left: "customer_id", Operator: "=", Right: "_id"}, "cust.").
		Where("customer_id", "=", c1).
		Select("cust.name", "buyer").
		Fetch()
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	for _, r := range rows {
		require.Equal(t, "Ada", r["buyer"])
	}
}

func TestJoinLeavesUnmatchedRowsUnchanged(t *testing.T) {
	db := newTestDB(t)
	seedOrders(t, db)

	customers, _, err := db.CreateTable("customers", schema.New(), 0)
	require.NoError(t, err)
	_ = customers

	q, err := New(db, "orders")
	require.NoError(t, err)

	rows, err := q.Join("customers", JoinOn{Left: "customer_id", Operator: "=", Right: "_id"}, "cust.").Fetch()
	require.NoError(t, err)
	require.Len(t, rows, 6)
	for _, r := range rows {
		_, present := r["cust._id"]
		require.False(t, present)
	}
}

func TestLikeWithWildcard(t *testing.T) {
	db := newTestDB(t)
	seedOrders(t, db)

	q, err := New(db, "orders")
	require.NoError(t, err)

	rows, err := q.Where("status", "like", "s%").Fetch()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "shipped", rows[0]["status"])
}

func TestLikeWithoutWildcardFallsBackToEquality(t *testing.T) {
	db := newTestDB(t)
	seedOrders(t, db)

	q, err := New(db, "orders")
	require.NoError(t, err)

	rows, err := q.Where("status", "like", "shipped").Fetch()
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestBetweenInclusive(t *testing.T) {
	db := newTestDB(t)
	seedOrders(t, db)

	q, err := New(db, "orders")
	require.NoError(t, err)

	rows, err := q.Where("total_amount", "between", []any{float64(50), float64(100)}).Fetch()
	require.NoError(t, err)
	require.Len(t, rows, 3)
}

func TestNoCacheSkipsCacheWrite(t *testing.T) {
	db := newTestDB(t)
	seedOrders(t, db)

	q, err := New(db, "orders")
	require.NoError(t, err)

	rows, err := q.NoCache().Where("status", "=", "processing").Fetch()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	require.NoDirExists(t, filepath.Join(db.Folder(), db.Settings().CacheDirName, "orders"))
}

func matchStatus(status string) FilterFunc {
	return func(row Row) bool {
		return row["status"] == status
	}
}

func TestFilterFromSharedFactoryNeverCrossesCacheKeys(t *testing.T) {
	db := newTestDB(t)
	seedOrders(t, db)

	q1, err := New(db, "orders")
	require.NoError(t, err)
	processing, err := q1.Filter(matchStatus("processing")).Fetch()
	require.NoError(t, err)
	require.Len(t, processing, 4)

	q2, err := New(db, "orders")
	require.NoError(t, err)
	shipped, err := q2.Filter(matchStatus("shipped")).Fetch()
	require.NoError(t, err)
	require.Len(t, shipped, 1)
	require.Equal(t, "shipped", shipped[0]["status"])
}

func TestCacheHitReturnsSameResultAndRespectsInvalidation(t *testing.T) {
	db := newTestDB(t)
	seedOrders(t, db)

	q1, err := New(db, "orders")
	require.NoError(t, err)
	first, err := q1.Where("status", "=", "processing").Fetch()
	require.NoError(t, err)
	require.Len(t, first, 4)

	q2, err := New(db, "orders")
	require.NoError(t, err)
	second, err := q2.Where("status", "=", "processing").Fetch()
	require.NoError(t, err)
	require.Equal(t, first, second)

	tbl, err := db.Table("orders")
	require.NoError(t, err)
	_, err = tbl.Insert(map[string]any{"status": "processing", "total_amount": float64(999), "customer_id": "c9"})
	require.NoError(t, err)

	q3, err := New(db, "orders")
	require.NoError(t, err)
	third, err := q3.Where("status", "=", "processing").Fetch()
	require.NoError(t, err)
	require.Len(t, third, 5)
}
