// Package table implements row lifecycle (insert/find/update/delete),
// table metadata and DEK storage — §4.5's Table component.
//
// Table depends on a narrow DatabaseHandle interface rather than the
// concrete database package, so database can freely depend on table
// (to hand back *Table from CreateTable/Table) without an import
// cycle.
package table

import (
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"rowvault/src/cache"
	"rowvault/src/compare"
	"rowvault/src/cryptox"
	"rowvault/src/ioutil"
	"rowvault/src/rvErrors"
	"rowvault/src/rowfile"
	"rowvault/src/schema"
	"rowvault/src/settings"
)

// DatabaseHandle is the slice of Database that Table needs: where it
// lives on disk, its unwrapped KEK, its configured settings, and a
// logger.
type DatabaseHandle interface {
	Folder() string
	KEK() []byte
	Settings() *settings.Settings
	Logger() *zap.SugaredLogger
}

// Metadata is a table's persisted .metadata document, §6.
type Metadata struct {
	Created int64                              `json:"created"`
	Schema  map[string]schema.ColumnDescriptor `json:"schema"`
	DEK     string                             `json:"dek"`
	name    string
	rows    int
	size    int64
}

// Name returns the table name this metadata describes.
func (m Metadata) Name() string { return m.name }

// Rows returns the row count, populated only when Metadata was
// fetched with excess=true.
func (m Metadata) Rows() int { return m.rows }

// Size returns the cumulative byte size of all row files, populated
// only when Metadata was fetched with excess=true.
func (m Metadata) Size() int64 { return m.size }

// HumanSize renders Size using github.com/dustin/go-humanize, the way
// dolt's CLI reports table and chunk sizes to a human.
func (m Metadata) HumanSize() string { return humanize.Bytes(uint64(m.size)) }

// Table manages the rows of a single table directory.
type Table struct {
	name   string
	db     DatabaseHandle
	logger *zap.SugaredLogger

	schema *schema.Schema
	dek    string
}

// Open constructs a Table handle for an existing table directory.
// Returns ErrNameInvalid if name is not alphanumeric, ErrNotFound if
// the directory does not exist or has no metadata file.
func Open(name string, db DatabaseHandle) (*Table, error) {
	if !isAlnum(name) {
		return nil, rvErrors.Wrap(rvErrors.ErrNameInvalid, rvErrors.ErrNameInvalid, "table name must be alphanumeric")
	}

	t := &Table{name: name, db: db, logger: orNop(db.Logger())}
	if !ioutil.Exists(t.metadataPath()) {
		return nil, rvErrors.Wrap(rvErrors.ErrNotFound, rvErrors.ErrNotFound, "table "+name+" does not exist")
	}

	return t, nil
}

// Create makes a new table directory with a schema and, if the schema
// has encrypted columns, a freshly generated DEK wrapped under the
// database's KEK. Returns false (not an error) if the directory
// already exists, matching §4.5/§4.6's "create returns false rather
// than raising" convention.
func Create(name string, db DatabaseHandle, sch *schema.Schema, now int64) (*Table, bool, error) {
	if !isAlnum(name) {
		return nil, false, rvErrors.Wrap(rvErrors.ErrNameInvalid, rvErrors.ErrNameInvalid, "table name must be alphanumeric")
	}

	folder := ioutil.Join(db.Folder(), name)
	if ioutil.Exists(folder) {
		return nil, false, nil
	}

	if sch == nil {
		sch = schema.New()
	}
	sch.Remove("_id")

	dek := ""
	if sch.HasEncryptedColumns() {
		kek := db.KEK()
		switch {
		case len(kek) > 0:
			wrapped, err := cryptox.RandomDEK(kek)
			if err != nil {
				return nil, false, err
			}
			dek = wrapped
		case db.Settings().RequireKEKForEncryptedTables:
			return nil, false, rvErrors.Wrap(rvErrors.ErrCryptoRequired, rvErrors.ErrCryptoRequired, "kek required to create table with encrypted columns")
		default:
			// No KEK yet and the database allows it: the DEK is
			// generated lazily on first insert, once a KEK is
			// available to wrap it under.
		}
	}

	if err := os.MkdirAll(folder, 0o755); err != nil {
		return nil, false, rvErrors.Wrap(err, rvErrors.ErrIOFailure, "create table directory")
	}

	metadata := Metadata{Created: now, Schema: sch.SortedSchema(), DEK: dek}
	metaPath := ioutil.Join(folder, ".metadata")
	if err := ioutil.WriteJSON(metaPath, metadata, db.Logger()); err != nil {
		os.RemoveAll(folder)
		return nil, false, err
	}

	return &Table{name: name, db: db, logger: orNop(db.Logger()), schema: sch, dek: dek}, true, nil
}

// Name returns the table's name.
func (t *Table) Name() string { return t.name }

// Folder returns the absolute path to the table's directory.
func (t *Table) Folder() string { return ioutil.Join(t.db.Folder(), t.name) }

func (t *Table) metadataPath() string {
	return ioutil.Join(t.db.Folder(), t.name, ".metadata")
}

// Metadata returns the table's metadata document. When excess is
// true, it additionally walks every row to compute Rows() and Size().
func (t *Table) Metadata(excess bool) (Metadata, error) {
	var m Metadata
	if err := ioutil.ReadJSON(t.metadataPath(), &m); err != nil {
		return Metadata{}, err
	}
	m.name = t.name
	t.schema = schema.FromMap(m.Schema)
	t.dek = m.DEK

	if !excess {
		return m, nil
	}

	for id := range t.rowIDs(nil) {
		info, err := os.Stat(t.rowPath(id))
		if err != nil {
			continue
		}
		m.rows++
		m.size += info.Size()
	}

	return m, nil
}

// Schema returns the table's schema, loading it from metadata on
// first access and caching it thereafter.
func (t *Table) Schema() (*schema.Schema, error) {
	if t.schema != nil {
		return t.schema, nil
	}
	if _, err := t.Metadata(false); err != nil {
		return nil, err
	}
	return t.schema, nil
}

// DEK returns the table's wrapped (still-encrypted) data encryption
// key, or "" if the table has no encrypted columns.
func (t *Table) DEK() (string, error) {
	if t.dek != "" {
		return t.dek, nil
	}
	if _, err := t.Metadata(false); err != nil {
		return "", err
	}
	return t.dek, nil
}

// unwrapDEK decrypts the table's DEK under the database's KEK,
// generating and persisting a DEK on first use if the table was
// created before a KEK was available (§13's deferred-DEK decision).
// Fails with ErrCryptoRequired if no KEK is available at all and
// ErrCryptoFailed if the KEK does not unwrap the stored DEK.
func (t *Table) unwrapDEK() ([]byte, error) {
	wrapped, err := t.DEK()
	if err != nil {
		return nil, err
	}

	kek := t.db.KEK()
	if len(kek) == 0 {
		return nil, rvErrors.Wrap(rvErrors.ErrCryptoRequired, rvErrors.ErrCryptoRequired, "kek required to access encrypted columns")
	}

	if wrapped == "" {
		wrapped, err = cryptox.RandomDEK(kek)
		if err != nil {
			return nil, err
		}
		if err := t.persistDEK(wrapped); err != nil {
			return nil, err
		}
	}

	dek, err := cryptox.UnwrapDEK(wrapped, kek)
	if err != nil {
		return nil, rvErrors.Wrap(rvErrors.ErrCryptoFailed, rvErrors.ErrCryptoFailed, "invalid kek for table "+t.name)
	}
	return dek, nil
}

// persistDEK writes a freshly generated wrapped DEK into the table's
// metadata and caches it on the handle.
func (t *Table) persistDEK(wrapped string) error {
	var m Metadata
	if err := ioutil.ReadJSON(t.metadataPath(), &m); err != nil {
		return err
	}
	m.DEK = wrapped

	if err := ioutil.WriteJSON(t.metadataPath(), m, t.logger); err != nil {
		return err
	}
	t.dek = wrapped
	return nil
}

// Alter rewrites the table's schema in metadata via mutate, which
// receives the current schema and returns the desired new schema. It
// does not rewrite existing rows; per §4.5, validation of pre-existing
// rows against the altered schema only happens on their next write.
func (t *Table) Alter(mutate func(*schema.Schema) (*schema.Schema, error)) error {
	current, err := t.Schema()
	if err != nil {
		return err
	}

	next, err := mutate(current)
	if err != nil {
		return err
	}
	next.Remove("_id")

	var m Metadata
	if err := ioutil.ReadJSON(t.metadataPath(), &m); err != nil {
		return err
	}
	m.Schema = next.SortedSchema()

	if err := ioutil.WriteJSON(t.metadataPath(), m, t.logger); err != nil {
		return err
	}
	t.schema = next
	return nil
}

// Rename renames the table's directory and flushes its cache
// namespace under the new name check. Returns false if a table with
// newName already exists.
func (t *Table) Rename(newName string) (bool, error) {
	if !isAlnum(newName) {
		return false, rvErrors.Wrap(rvErrors.ErrNameInvalid, rvErrors.ErrNameInvalid, "table name must be alphanumeric")
	}

	target := ioutil.Join(t.db.Folder(), newName)
	if ioutil.Exists(target) {
		return false, nil
	}

	if err := os.Rename(t.Folder(), target); err != nil {
		return false, rvErrors.Wrap(err, rvErrors.ErrIOFailure, "rename table directory")
	}

	_ = t.flushCache()
	t.name = newName
	return true, nil
}

// Delete removes the table's directory: rename to a tombstone name,
// then recursively remove it, and flush the cache namespace (§4.5's
// state machine).
func (t *Table) Delete() error {
	tombstone := ioutil.Join(t.db.Folder(), ".deleted_"+t.name)
	if err := os.Rename(t.Folder(), tombstone); err != nil {
		return rvErrors.Wrap(err, rvErrors.ErrIOFailure, "tombstone table directory")
	}
	if err := ioutil.RemoveTree(tombstone); err != nil {
		return err
	}
	return t.flushCache()
}

func (t *Table) flushCache() error {
	return cache.FlushDir(t.db.Folder(), t.db.Settings().CacheDirName, t.name)
}

func (t *Table) rowPath(id string) string {
	return ioutil.Join(t.Folder(), id+".ndjson")
}

// Insert writes columns as a row. If columns["_id"] is set and a row
// with that id exists, the write merges into the existing row
// (update semantics); if it is set but no such row exists, returns
// ErrNotFound; if unset, a fresh id is generated. Returns the row id
// on success.
func (t *Table) Insert(columns map[string]any) (string, error) {
	if len(columns) == 0 {
		return "", rvErrors.Wrap(rvErrors.ErrSchemaViolation, rvErrors.ErrSchemaViolation, "columns cannot be empty")
	}

	columns = cloneColumns(columns)

	id, _ := columns["_id"].(string)
	delete(columns, "_id")

	existing := false
	if id != "" {
		if !ioutil.Exists(t.rowPath(id)) {
			return "", rvErrors.Wrap(rvErrors.ErrNotFound, rvErrors.ErrNotFound, "row "+id+" does not exist")
		}
		existing = true
	} else {
		generated, err := t.freshID()
		if err != nil {
			return "", err
		}
		id = generated
	}

	sch, err := t.Schema()
	if err != nil {
		return "", err
	}

	if existing {
		prior, err := t.readColumns(id, sch)
		if err != nil {
			return "", err
		}
		for k, v := range prior {
			if _, ok := columns[k]; !ok {
				columns[k] = v
			}
		}
	} else {
		for name := range sch.SortedSchema() {
			if _, ok := columns[name]; !ok {
				columns[name] = nil
			}
		}
	}

	for name, value := range columns {
		if !sch.Valid(name, value) {
			return "", rvErrors.Wrap(rvErrors.ErrSchemaViolation, rvErrors.ErrSchemaViolation, "invalid type for column "+name)
		}
	}

	var dek []byte
	if sch.HasEncryptedColumns() {
		dek, err = t.unwrapDEK()
		if err != nil {
			return "", err
		}
	}

	data, err := rowfile.Encode(columns, sch, dek)
	if err != nil {
		return "", err
	}

	if err := ioutil.AtomicWrite(t.rowPath(id), data, t.logger); err != nil {
		return "", err
	}

	if err := t.flushCache(); err != nil {
		t.logger.Warnw("cache flush after insert failed", "table", t.name, "error", err)
	}

	return id, nil
}

// InsertMany inserts every record best-effort: a failure in one row
// does not stop the rest (§4.5, an explicit non-goal of
// cross-row atomicity). It returns one error per record (nil for a
// successful insert) and a combined summary error built with
// go.uber.org/multierr for callers that only want to know whether
// anything failed.
func (t *Table) InsertMany(records []map[string]any) ([]error, error) {
	statuses := make([]error, len(records))
	var combined error

	for i, columns := range records {
		_, err := t.Insert(columns)
		statuses[i] = err
		if err != nil {
			combined = multierr.Append(combined, err)
		}
	}

	return statuses, combined
}

// freshID generates a random row id that doesn't collide with an
// existing row file.
func (t *Table) freshID() (string, error) {
	for {
		id, err := cryptox.RandomID(8)
		if err != nil {
			return "", err
		}
		if !ioutil.Exists(t.rowPath(id)) {
			return id, nil
		}
	}
}

func (t *Table) readColumns(id string, sch *schema.Schema) (map[string]any, error) {
	data, err := ioutil.ReadAll(t.rowPath(id))
	if err != nil {
		return nil, err
	}

	var dek []byte
	if sch.HasEncryptedColumns() {
		dek, err = t.unwrapDEK()
		if err != nil {
			return nil, err
		}
	}

	return rowfile.Decode(data, sch, dek)
}

// Row returns a handle bound to id. The row file is not read until a
// column is accessed.
func (t *Table) Row(id string) *RowHandle {
	return &RowHandle{id: id, t: t}
}

// rowIDs lazily yields every row id in the table directory, excluding
// any name in exclude, per §4.5's Table.rows(exclude=[]).
func (t *Table) rowIDs(exclude []string) func(func(string) bool) {
	skip := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		skip[e] = true
	}

	return func(yield func(string) bool) {
		entries, err := os.ReadDir(t.Folder())
		if err != nil {
			return
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			name := e.Name()
			if !e.IsDir() && hasSuffix(name, ".ndjson") {
				names = append(names, name[:len(name)-len(".ndjson")])
			}
		}
		sort.Strings(names)

		for _, id := range names {
			if skip[id] {
				continue
			}
			if !yield(id) {
				return
			}
		}
	}
}

// Rows returns every row handle in the table, excluding the given ids.
func (t *Table) Rows(exclude []string) []*RowHandle {
	var rows []*RowHandle
	for id := range t.rowIDs(exclude) {
		rows = append(rows, t.Row(id))
	}
	return rows
}

// FindOne runs an equality query built from criteria and returns the
// first matching row, or nil if none match. Caching is disabled, as
// §4.5 specifies.
func (t *Table) FindOne(criteria map[string]any) (map[string]any, error) {
	rows, err := t.find(criteria, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Find runs an equality query built from criteria and returns every
// matching row.
func (t *Table) Find(criteria map[string]any) ([]map[string]any, error) {
	return t.find(criteria, 0)
}

// find is the shared bare-equality query path used by FindOne/Find.
// It is deliberately independent of the query package (which itself
// depends on Table), reading and filtering rows directly, but matches
// criteria using the same numeric-normalizing equality the query
// engine's "=" operator uses (rowvault/src/compare), so a caller
// passing a native int criteria value matches a row column decoded
// from JSON as float64.
func (t *Table) find(criteria map[string]any, limit int) ([]map[string]any, error) {
	sch, err := t.Schema()
	if err != nil {
		return nil, err
	}

	var dek []byte
	if sch.HasEncryptedColumns() {
		dek, err = t.unwrapDEK()
		if err != nil {
			return nil, err
		}
	}

	var out []map[string]any
	for id := range t.rowIDs(nil) {
		data, err := ioutil.ReadAll(t.rowPath(id))
		if err != nil {
			continue
		}
		row, err := rowfile.Decode(data, sch, dek)
		if err != nil {
			return nil, err
		}
		row["_id"] = id

		if matchesAll(row, criteria) {
			out = append(out, row)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}

	return out, nil
}

func matchesAll(row map[string]any, criteria map[string]any) bool {
	for k, v := range criteria {
		if !compare.Equal(row[k], v) {
			return false
		}
	}
	return true
}

func cloneColumns(columns map[string]any) map[string]any {
	out := make(map[string]any, len(columns))
	for k, v := range columns {
		out[k] = v
	}
	return out
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
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

func orNop(logger *zap.SugaredLogger) *zap.SugaredLogger {
	if logger == nil {
		return zap.NewNop().Sugar()
	}
	return logger
}
