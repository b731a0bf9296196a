// Package rowvault re-exports the public surface of the rowvault
// embeddable document store: database and table lifecycle, the
// declarative query builder, the paginated result collection, backup,
// and the schema/settings/error types a caller needs without reaching
// into src/* directly. Implementation lives under src/<component>.
package rowvault

import (
	"rowvault/src/backup"
	"rowvault/src/collection"
	"rowvault/src/database"
	"rowvault/src/query"
	"rowvault/src/rvErrors"
	"rowvault/src/schema"
	"rowvault/src/settings"
	"rowvault/src/table"
)

// Database owns a storage root directory containing one subdirectory
// per table plus a shared cache namespace.
type Database = database.Database

// Option configures Create/Open.
type Option = database.Option

// Create makes a new database storage root under parentDir/name.
var Create = database.Create

// Open attaches to an existing database storage root.
var Open = database.Open

// WithPassphrase derives a KEK from a passphrase and attaches it to
// the database, enabling access to encrypted columns.
var WithPassphrase = database.WithPassphrase

// WithSettings overrides the default Settings for a database.
var WithSettings = database.WithSettings

// WithLogger attaches a logger to a database.
var WithLogger = database.WithLogger

// Table manages the rows of a single table directory.
type Table = table.Table

// RowHandle is a thin, stateless reference to one row.
type RowHandle = table.RowHandle

// Schema is a mapping from column name to descriptor.
type Schema = schema.Schema

// ColumnType is the closed set of column types rowvault allows.
type ColumnType = schema.ColumnType

// ColumnOptions configures Schema.Add.
type ColumnOptions = schema.ColumnOptions

// ColumnDescriptor is the persisted shape of a column definition.
type ColumnDescriptor = schema.ColumnDescriptor

// NewSchema returns an empty schema.
var NewSchema = schema.New

// Column type constants, re-exported from the schema package.
const (
	Bool   = schema.Bool
	Int    = schema.Int
	Float  = schema.Float
	Number = schema.Number
	Text   = schema.Text
	List   = schema.List
	Object = schema.Object
	Enum   = schema.Enum
)

// Query is the declarative query builder and evaluator.
type Query = query.Query

// Row is the materialized shape a query operates over and returns.
type Row = query.Row

// JoinOn describes a join's equi-join condition.
type JoinOn = query.JoinOn

// SortOrder is a Sort clause's direction.
type SortOrder = query.SortOrder

// Sort directions, re-exported from the query package.
const (
	Asc  = query.Asc
	Desc = query.Desc
)

// MapFunc transforms a row in place during query evaluation.
type MapFunc = query.MapFunc

// FilterFunc is a post-sort predicate used by Query.Filter.
type FilterFunc = query.FilterFunc

// NewQuery builds a query over tableName, the mandatory from(table)
// step every query starts with.
var NewQuery = query.New

// Collection is a bounded (offset, limit) window over a materialized
// result.
type Collection[T any] = collection.Collection[T]

// NewCollection wraps items in a windowed Collection.
func NewCollection[T any](items []T, offset, limit int) *Collection[T] {
	return collection.New(items, offset, limit)
}

// Dump archives a database's storage root into a ZIP file.
var Dump = backup.Dump

// Load extracts a Dump archive into a storage root.
var Load = backup.Load

// Settings is the full set of tunables a Database may be constructed
// with.
type Settings = settings.Settings

// DefaultSettings returns the configuration rowvault uses when no
// overrides are supplied.
var DefaultSettings = settings.Defaults

// LoadSettings overlays DefaultSettings() with a config file and
// ROWVAULT_-prefixed environment variables.
var LoadSettings = settings.Load

// Error sentinels, re-exported from rvErrors for errors.Is matching
// against the taxonomy every rowvault component returns.
var (
	ErrNameInvalid     = rvErrors.ErrNameInvalid
	ErrNotFound        = rvErrors.ErrNotFound
	ErrAlreadyExists   = rvErrors.ErrAlreadyExists
	ErrSchemaViolation = rvErrors.ErrSchemaViolation
	ErrCryptoRequired  = rvErrors.ErrCryptoRequired
	ErrCryptoFailed    = rvErrors.ErrCryptoFailed
	ErrIOFailure       = rvErrors.ErrIOFailure
	ErrQueryMalformed  = rvErrors.ErrQueryMalformed
	ErrInternal        = rvErrors.ErrInternal
)
