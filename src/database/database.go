// Package database implements the top-level Database component of
// §4.6: the storage-root lifecycle, table directory enumeration, and
// the database-wide KEK a Database hands down to every Table it owns.
//
// Database satisfies table.DatabaseHandle through a handful of
// accessor methods rather than Table importing Database directly,
// avoiding an import cycle between table and database.
package database

import (
	"os"
	"sort"

	"go.uber.org/zap"

	"rowvault/src/cryptox"
	"rowvault/src/ioutil"
	"rowvault/src/rvErrors"
	"rowvault/src/schema"
	"rowvault/src/settings"
	"rowvault/src/table"
)

// schemaVersion is the metadata format version written into every new
// database's .metadata document (§6).
const schemaVersion = "1.0.0"

// Metadata is a database's persisted .metadata document.
type Metadata struct {
	Created int64  `json:"created"`
	Version string `json:"version"`
	name    string
	tables  int
	size    int64
}

// SchemaVersion returns the metadata format version this database was
// created with.
func (m Metadata) SchemaVersion() string { return m.Version }

// Name returns the database name this metadata describes.
func (m Metadata) Name() string { return m.name }

// Tables returns the number of tables, populated only when Metadata
// was fetched with excess=true.
func (m Metadata) Tables() int { return m.tables }

// Size returns the cumulative byte size of every table under this
// database, populated only when Metadata was fetched with excess=true.
func (m Metadata) Size() int64 { return m.size }

// Database owns a storage root directory containing one subdirectory
// per table plus a shared cache namespace.
type Database struct {
	name     string
	root     string
	kek      []byte
	settings *settings.Settings
	logger   *zap.SugaredLogger
}

// Option configures Open/Create.
type Option func(*Database)

// WithPassphrase derives a KEK from passphrase via cryptox.DeriveKEK
// and attaches it to the database, enabling access to encrypted
// columns in any owned table.
func WithPassphrase(passphrase []byte) Option {
	return func(d *Database) {
		kek, err := cryptox.DeriveKEK(passphrase)
		if err == nil {
			d.kek = kek
		}
	}
}

// WithSettings overrides the default Settings.
func WithSettings(s *settings.Settings) Option {
	return func(d *Database) { d.settings = s }
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(d *Database) { d.logger = logger }
}

// Create makes a new database storage root under parentDir/name.
// Returns false (not an error) if the directory already exists.
func Create(parentDir, name string, now int64, opts ...Option) (*Database, bool, error) {
	if !isAlnum(name) {
		return nil, false, rvErrors.Wrap(rvErrors.ErrNameInvalid, rvErrors.ErrNameInvalid, "database name must be alphanumeric")
	}

	root := ioutil.Join(parentDir, name)
	if ioutil.Exists(root) {
		return nil, false, nil
	}

	d := newDatabase(name, root, opts...)

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, false, rvErrors.Wrap(err, rvErrors.ErrIOFailure, "create database directory")
	}

	meta := Metadata{Created: now, Version: schemaVersion}
	if err := ioutil.WriteJSON(d.metadataPath(), meta, d.logger); err != nil {
		os.RemoveAll(root)
		return nil, false, err
	}

	return d, true, nil
}

// Open attaches to an existing database storage root.
func Open(parentDir, name string, opts ...Option) (*Database, error) {
	if !isAlnum(name) {
		return nil, rvErrors.Wrap(rvErrors.ErrNameInvalid, rvErrors.ErrNameInvalid, "database name must be alphanumeric")
	}

	root := ioutil.Join(parentDir, name)
	d := newDatabase(name, root, opts...)

	if !ioutil.Exists(d.metadataPath()) {
		return nil, rvErrors.Wrap(rvErrors.ErrNotFound, rvErrors.ErrNotFound, "database "+name+" does not exist")
	}

	return d, nil
}

func newDatabase(name, root string, opts ...Option) *Database {
	d := &Database{
		name:     name,
		root:     root,
		settings: settings.Defaults(),
		logger:   zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns the database's name.
func (d *Database) Name() string { return d.name }

// Folder returns the database's storage root, satisfying
// table.DatabaseHandle.
func (d *Database) Folder() string { return d.root }

// KEK returns the database's unwrapped key-encryption key, or nil if
// none was supplied, satisfying table.DatabaseHandle.
func (d *Database) KEK() []byte { return d.kek }

// Settings returns the database's configured tunables, satisfying
// table.DatabaseHandle.
func (d *Database) Settings() *settings.Settings { return d.settings }

// Logger returns the database's logger, satisfying
// table.DatabaseHandle.
func (d *Database) Logger() *zap.SugaredLogger { return d.logger }

func (d *Database) metadataPath() string {
	return ioutil.Join(d.root, ".metadata")
}

// Metadata returns the database's metadata document. When excess is
// true, it additionally counts tables and sums their sizes by asking
// each table for its own excess metadata.
func (d *Database) Metadata(excess bool) (Metadata, error) {
	var m Metadata
	if err := ioutil.ReadJSON(d.metadataPath(), &m); err != nil {
		return Metadata{}, err
	}
	m.name = d.name

	if !excess {
		return m, nil
	}

	names, err := d.tableNames()
	if err != nil {
		return Metadata{}, err
	}
	for _, name := range names {
		tbl, err := table.Open(name, d)
		if err != nil {
			continue
		}
		tm, err := tbl.Metadata(true)
		if err != nil {
			continue
		}
		m.tables++
		m.size += tm.Size()
	}

	return m, nil
}

// CreateTable creates a table named name with the given schema.
// Returns false if a table with that name already exists.
func (d *Database) CreateTable(name string, sch *schema.Schema, now int64) (*table.Table, bool, error) {
	return table.Create(name, d, sch, now)
}

// Table opens an existing table by name.
func (d *Database) Table(name string) (*table.Table, error) {
	return table.Open(name, d)
}

// Tables returns every table in the database, excluding any name in
// exclude.
func (d *Database) Tables(exclude []string) ([]*table.Table, error) {
	skip := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		skip[e] = true
	}

	names, err := d.tableNames()
	if err != nil {
		return nil, err
	}

	var tables []*table.Table
	for _, name := range names {
		if skip[name] {
			continue
		}
		tbl, err := table.Open(name, d)
		if err != nil {
			continue
		}
		tables = append(tables, tbl)
	}

	return tables, nil
}

func (d *Database) tableNames() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, rvErrors.Wrap(err, rvErrors.ErrIOFailure, "list database directory")
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if len(name) > 0 && name[0] == '.' {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Rename moves the database's storage root to a new directory name
// under the same parent. Returns false if the target already exists.
func (d *Database) Rename(newName string) (bool, error) {
	if !isAlnum(newName) {
		return false, rvErrors.Wrap(rvErrors.ErrNameInvalid, rvErrors.ErrNameInvalid, "database name must be alphanumeric")
	}

	parent := ioutil.Join(d.root, "..")
	target := ioutil.Join(parent, newName)
	if ioutil.Exists(target) {
		return false, nil
	}

	if err := os.Rename(d.root, target); err != nil {
		return false, rvErrors.Wrap(err, rvErrors.ErrIOFailure, "rename database directory")
	}

	d.root = target
	d.name = newName
	return true, nil
}

// Delete removes the database's entire storage root, tables and
// cache namespace included.
func (d *Database) Delete() error {
	tombstone := ioutil.Join(ioutil.Join(d.root, ".."), ".deleted_"+d.name)
	if err := os.Rename(d.root, tombstone); err != nil {
		return rvErrors.Wrap(err, rvErrors.ErrIOFailure, "tombstone database directory")
	}
	return ioutil.RemoveTree(tombstone)
}

// FlushCache removes every cached query result for every table in the
// database by deleting the whole cache namespace. Writes to a table
// invalidate only that table's namespace and do not go through here.
func (d *Database) FlushCache() error {
	return ioutil.RemoveTree(ioutil.Join(d.root, d.settings.CacheDirName))
}

func isAlnum(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}
