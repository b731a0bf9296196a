package table

import (
	"rowvault/src/ioutil"
	"rowvault/src/rowfile"
	"rowvault/src/rvErrors"
)

// RowHandle is a thin, stateless reference to one row: it carries only
// an id and the owning table, and reads the row file lazily on first
// column access rather than caching a copy of the row's data. This
// keeps a RowHandle cheap to construct in bulk (Table.Rows iterates
// the whole directory) and avoids stale reads if the row changes
// between two RowHandle method calls.
type RowHandle struct {
	id       string
	t        *Table
	readonly bool
}

// ID returns the row's identifier.
func (r *RowHandle) ID() string { return r.id }

// Readonly reports whether this handle refuses Update/Delete. Handles
// returned by Table.Row and Table.Rows are writable; only a handle
// made by AsReadonly is read-only.
func (r *RowHandle) Readonly() bool { return r.readonly }

// AsReadonly returns a copy of the handle marked read-only, on which
// Update and Delete fail with ErrSchemaViolation. Query results are
// plain maps rather than handles and carry no read-only mark.
func (r *RowHandle) AsReadonly() *RowHandle {
	return &RowHandle{id: r.id, t: r.t, readonly: true}
}

func (r *RowHandle) exists() bool {
	return ioutil.Exists(r.t.rowPath(r.id))
}

// Columns returns every column of the row as a decoded, decrypted map,
// with "_id" included.
func (r *RowHandle) Columns() (map[string]any, error) {
	sch, err := r.t.Schema()
	if err != nil {
		return nil, err
	}

	columns, err := r.t.readColumns(r.id, sch)
	if err != nil {
		return nil, err
	}
	columns["_id"] = r.id
	return columns, nil
}

// Column returns the decoded value of a single column, using
// ioutil.ReadLine so a lookup on a wide row doesn't require decoding
// every other column.
func (r *RowHandle) Column(name string) (any, error) {
	if name == "_id" {
		return r.id, nil
	}

	sch, err := r.t.Schema()
	if err != nil {
		return nil, err
	}

	header, err := ioutil.ReadLine(r.t.rowPath(r.id), 0)
	if err != nil {
		return nil, err
	}
	names, err := rowfile.Header(header)
	if err != nil {
		return nil, err
	}

	position := -1
	for i, n := range names {
		if n == name {
			position = i
			break
		}
	}
	if position == -1 {
		return nil, rvErrors.Wrap(rvErrors.ErrNotFound, rvErrors.ErrNotFound, "column "+name+" not present")
	}

	line, err := ioutil.ReadLine(r.t.rowPath(r.id), position+1)
	if err != nil {
		return nil, err
	}

	var dek []byte
	if sch.HasEncryptedColumns() {
		dek, err = r.t.unwrapDEK()
		if err != nil {
			return nil, err
		}
	}

	return rowfile.DecodeColumn(name, line, sch, dek)
}

// Update merges columns into the row and rewrites it, going through
// Table.Insert so validation, encryption and cache invalidation stay
// in one place.
func (r *RowHandle) Update(columns map[string]any) error {
	if r.readonly {
		return rvErrors.Wrap(rvErrors.ErrSchemaViolation, rvErrors.ErrSchemaViolation, "row is read-only")
	}
	if !r.exists() {
		return rvErrors.Wrap(rvErrors.ErrNotFound, rvErrors.ErrNotFound, "row "+r.id+" does not exist")
	}

	merged := make(map[string]any, len(columns)+1)
	for k, v := range columns {
		merged[k] = v
	}
	merged["_id"] = r.id

	_, err := r.t.Insert(merged)
	return err
}

// Delete removes the row file and flushes the table's cache.
func (r *RowHandle) Delete() error {
	if r.readonly {
		return rvErrors.Wrap(rvErrors.ErrSchemaViolation, rvErrors.ErrSchemaViolation, "row is read-only")
	}
	if !r.exists() {
		return rvErrors.Wrap(rvErrors.ErrNotFound, rvErrors.ErrNotFound, "row "+r.id+" does not exist")
	}

	if err := ioutil.RemoveTree(r.t.rowPath(r.id)); err != nil {
		return err
	}
	return r.t.flushCache()
}
