// Package backup implements archive/restore of a database's on-disk
// layout (§6's "Backup archive"), a straightforward file packager
// over the storage root: metadata files and row files go in, cache
// directories are excluded.
//
// Dump is a standalone function taking the Database explicitly rather
// than an instance method that also holds its own database reference.
package backup

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"rowvault/src/database"
	"rowvault/src/ioutil"
	"rowvault/src/rvErrors"
)

// Dump archives db's storage root into a ZIP file at archivePath,
// including every table's .metadata and row files but excluding the
// cache namespace.
func Dump(db *database.Database, archivePath string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return rvErrors.Wrap(err, rvErrors.ErrIOFailure, "create backup archive")
	}
	defer out.Close()

	zw := zip.NewWriter(out)

	root := db.Folder()
	cacheDir := filepath.Join(root, db.Settings().CacheDirName)
	dbName := filepath.Base(root)

	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == cacheDir || strings.HasPrefix(path, cacheDir+string(filepath.Separator)) {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		w, err := zw.Create(filepath.ToSlash(filepath.Join(dbName, rel)))
		if err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(w, f)
		return err
	})
	if walkErr != nil {
		zw.Close()
		return rvErrors.Wrap(walkErr, rvErrors.ErrIOFailure, "archive storage root")
	}

	if err := zw.Close(); err != nil {
		return rvErrors.Wrap(err, rvErrors.ErrIOFailure, "close backup archive")
	}
	return nil
}

// Load extracts archivePath (as produced by Dump) into storageRoot,
// recreating the database directory and its tables and rows.
func Load(archivePath, storageRoot string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return rvErrors.Wrap(err, rvErrors.ErrIOFailure, "open backup archive")
	}
	defer zr.Close()

	for _, f := range zr.File {
		target := filepath.Join(storageRoot, filepath.FromSlash(f.Name))

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return rvErrors.Wrap(err, rvErrors.ErrIOFailure, "create restored directory")
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return rvErrors.Wrap(err, rvErrors.ErrIOFailure, "create restored directory")
		}

		if err := extractFile(f, target); err != nil {
			return err
		}
	}

	return nil
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return rvErrors.Wrap(err, rvErrors.ErrIOFailure, "read archive entry")
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return rvErrors.Wrap(err, rvErrors.ErrIOFailure, "read archive entry")
	}

	return ioutil.AtomicWrite(target, data, nil)
}
