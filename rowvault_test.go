package rowvault

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublicSurfaceRoundTrips(t *testing.T) {
	parent := t.TempDir()
	db, created, err := Create(parent, "shop", 0)
	require.NoError(t, err)
	require.True(t, created)

	sch := NewSchema()
	_, err = sch.Add("name", Text, ColumnOptions{Required: true})
	require.NoError(t, err)
	_, err = sch.Add("total", Number, ColumnOptions{})
	require.NoError(t, err)

	orders, created, err := db.CreateTable("orders", sch, 0)
	require.NoError(t, err)
	require.True(t, created)

	id, err := orders.Insert(map[string]any{"name": "widget", "total": float64(42)})
	require.NoError(t, err)

	q, err := NewQuery(db, "orders")
	require.NoError(t, err)
	rows, err := q.Where("name", "=", "widget").Sort("total", Desc).Limit(10, 0).Fetch()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, id, rows[0]["_id"])
}
