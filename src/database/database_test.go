package database

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rowvault/src/schema"
)

func TestCreateThenOpen(t *testing.T) {
	parent := t.TempDir()

	db, created, err := Create(parent, "shop", 100)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "shop", db.Name())

	again, created, err := Create(parent, "shop", 100)
	require.NoError(t, err)
	require.False(t, created)
	require.Nil(t, again)

	opened, err := Open(parent, "shop")
	require.NoError(t, err)
	m, err := opened.Metadata(false)
	require.NoError(t, err)
	require.Equal(t, int64(100), m.Created)
}

func TestOpenMissingDatabaseNotFound(t *testing.T) {
	parent := t.TempDir()
	_, err := Open(parent, "ghost")
	require.Error(t, err)
}

func TestCreateTableAndTables(t *testing.T) {
	parent := t.TempDir()
	db, _, err := Create(parent, "shop", 0)
	require.NoError(t, err)

	sch := schema.New()
	_, err = sch.Add("name", schema.Text, schema.ColumnOptions{})
	require.NoError(t, err)

	_, created, err := db.CreateTable("products", sch, 0)
	require.NoError(t, err)
	require.True(t, created)

	_, created, err = db.CreateTable("orders", schema.New(), 0)
	require.NoError(t, err)
	require.True(t, created)

	tables, err := db.Tables(nil)
	require.NoError(t, err)
	require.Len(t, tables, 2)

	tables, err = db.Tables([]string{"orders"})
	require.NoError(t, err)
	require.Len(t, tables, 1)
	require.Equal(t, "products", tables[0].Name())
}

func TestTableOpensExisting(t *testing.T) {
	parent := t.TempDir()
	db, _, err := Create(parent, "shop", 0)
	require.NoError(t, err)

	_, _, err = db.CreateTable("products", schema.New(), 0)
	require.NoError(t, err)

	tbl, err := db.Table("products")
	require.NoError(t, err)
	require.Equal(t, "products", tbl.Name())
}

func TestDatabaseEncryptedColumnsRoundtripThroughKEK(t *testing.T) {
	parent := t.TempDir()
	db, _, err := Create(parent, "shop", 0, WithPassphrase([]byte("s3cr3t")))
	require.NoError(t, err)

	sch := schema.New()
	_, err = sch.Add("card", schema.Text, schema.ColumnOptions{Encrypted: true})
	require.NoError(t, err)

	tbl, _, err := db.CreateTable("payments", sch, 0)
	require.NoError(t, err)

	id, err := tbl.Insert(map[string]any{"card": "4111111111111111"})
	require.NoError(t, err)

	row, err := tbl.FindOne(map[string]any{"_id": id})
	require.NoError(t, err)
	require.Equal(t, "4111111111111111", row["card"])
}

func TestRenameMovesStorageRoot(t *testing.T) {
	parent := t.TempDir()
	db, _, err := Create(parent, "shop", 0)
	require.NoError(t, err)

	ok, err := db.Rename("store")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "store", db.Name())

	_, err = Open(parent, "store")
	require.NoError(t, err)
}

func TestDeleteRemovesStorageRoot(t *testing.T) {
	parent := t.TempDir()
	db, _, err := Create(parent, "shop", 0)
	require.NoError(t, err)

	require.NoError(t, db.Delete())
	_, err = Open(parent, "shop")
	require.Error(t, err)
}

func TestMetadataExcessCountsTablesAndSize(t *testing.T) {
	parent := t.TempDir()
	db, _, err := Create(parent, "shop", 0)
	require.NoError(t, err)

	sch := schema.New()
	_, err = sch.Add("name", schema.Text, schema.ColumnOptions{})
	require.NoError(t, err)

	tbl, _, err := db.CreateTable("products", sch, 0)
	require.NoError(t, err)
	_, err = tbl.Insert(map[string]any{"name": "widget"})
	require.NoError(t, err)

	m, err := db.Metadata(true)
	require.NoError(t, err)
	require.Equal(t, 1, m.Tables())
	require.Greater(t, m.Size(), int64(0))
}
