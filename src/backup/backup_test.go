package backup

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"rowvault/src/database"
	"rowvault/src/query"
	"rowvault/src/schema"
)

func TestDumpThenLoadReproducesRows(t *testing.T) {
	parent := t.TempDir()
	db, _, err := database.Create(parent, "shop", 0)
	require.NoError(t, err)

	sch := schema.New()
	_, err = sch.Add("name", schema.Text, schema.ColumnOptions{})
	require.NoError(t, err)

	tbl, _, err := db.CreateTable("products", sch, 0)
	require.NoError(t, err)

	id, err := tbl.Insert(map[string]any{"name": "widget"})
	require.NoError(t, err)

	archivePath := filepath.Join(t.TempDir(), "shop.zip")
	require.NoError(t, Dump(db, archivePath))

	restoreRoot := t.TempDir()
	require.NoError(t, Load(archivePath, restoreRoot))

	restored, err := database.Open(restoreRoot, "shop")
	require.NoError(t, err)

	restoredTbl, err := restored.Table("products")
	require.NoError(t, err)

	row, err := restoredTbl.FindOne(map[string]any{"_id": id})
	require.NoError(t, err)
	require.Equal(t, "widget", row["name"])
}

func TestDumpExcludesCacheDirectory(t *testing.T) {
	parent := t.TempDir()
	db, _, err := database.Create(parent, "shop", 0)
	require.NoError(t, err)

	sch := schema.New()
	_, err = sch.Add("name", schema.Text, schema.ColumnOptions{})
	require.NoError(t, err)

	tbl, _, err := db.CreateTable("products", sch, 0)
	require.NoError(t, err)
	_, err = tbl.Insert(map[string]any{"name": "widget"})
	require.NoError(t, err)

	q, err := query.New(db, "products")
	require.NoError(t, err)
	_, err = q.Where("name", "=", "widget").Fetch()
	require.NoError(t, err)

	archivePath := filepath.Join(t.TempDir(), "shop.zip")
	require.NoError(t, Dump(db, archivePath))

	restoreRoot := t.TempDir()
	require.NoError(t, Load(archivePath, restoreRoot))

	require.NoFileExists(t, filepath.Join(restoreRoot, "shop", ".cache", "products"))
}
