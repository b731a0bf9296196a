// Package schema is rowvault's column type registry: it defines the
// closed set of column types §3 allows, validates values against a
// column descriptor, and tracks whether a schema has any encrypted
// column so callers can short-circuit the KEK/DEK dance when it isn't
// needed.
//
// Column types form a single closed enum (§9): they are never
// dispatched by string name at runtime beyond (de)serialization.
package schema

import (
	"fmt"
	"sort"

	"rowvault/src/rvErrors"
)

// ColumnType is the closed set of column types §3 allows.
type ColumnType int

const (
	Bool ColumnType = iota
	Int
	Float
	Number
	Text
	List
	Object
	Enum
)

var columnTypeNames = map[ColumnType]string{
	Bool:   "bool",
	Int:    "int",
	Float:  "float",
	Number: "number",
	Text:   "text",
	List:   "list",
	Object: "object",
	Enum:   "enum",
}

var columnTypeByName = func() map[string]ColumnType {
	m := make(map[string]ColumnType, len(columnTypeNames))
	for t, name := range columnTypeNames {
		m[name] = t
	}
	return m
}()

func (t ColumnType) String() string {
	if name, ok := columnTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON serializes a ColumnType as its name, so table metadata
// on disk reads as {"type": "text"} rather than a bare integer.
func (t ColumnType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON parses a ColumnType from its name.
func (t *ColumnType) UnmarshalJSON(data []byte) error {
	name := string(data)
	if len(name) >= 2 && name[0] == '"' && name[len(name)-1] == '"' {
		name = name[1 : len(name)-1]
	}
	ct, ok := columnTypeByName[name]
	if !ok {
		return fmt.Errorf("schema: unsupported column type %q", name)
	}
	*t = ct
	return nil
}

// ColumnOptions configures Add. EnumValues is only consulted when
// Type is Enum; the caller supplies the allowed values directly, they
// are never read back out of the descriptor under construction.
type ColumnOptions struct {
	Required   bool
	Encrypted  bool
	EnumValues []any
}

// ColumnDescriptor is the persisted shape of a single column
// definition, §3's "{type, required, encrypted, type_args}".
type ColumnDescriptor struct {
	Type       ColumnType `json:"type"`
	Required   bool       `json:"required"`
	Encrypted  bool       `json:"encrypted"`
	EnumValues []any      `json:"enum_values,omitempty"`
}

// Schema is a mapping from column name to descriptor. Names() returns
// the column names in the ascending lexical order the on-disk
// metadata format requires.
type Schema struct {
	columns         map[string]ColumnDescriptor
	hasEncryptedCol bool
}

// New returns an empty schema.
func New() *Schema {
	return &Schema{columns: map[string]ColumnDescriptor{}}
}

// FromMap rebuilds a Schema from a decoded metadata map, as read back
// from a table's .metadata file.
func FromMap(m map[string]ColumnDescriptor) *Schema {
	s := New()
	for name, desc := range m {
		s.columns[name] = desc
		if desc.Encrypted {
			s.hasEncryptedCol = true
		}
	}
	return s
}

// Add defines column_name's descriptor. The reserved name "_id" is
// rejected: it is a logical attribute, never a schema column (§3).
func (s *Schema) Add(name string, colType ColumnType, opts ColumnOptions) (*Schema, error) {
	if name == "_id" {
		return s, rvErrors.Wrap(rvErrors.ErrSchemaViolation, rvErrors.ErrSchemaViolation, `"_id" is reserved and cannot be a schema column`)
	}

	desc := ColumnDescriptor{
		Type:      colType,
		Required:  opts.Required,
		Encrypted: opts.Encrypted,
	}

	if colType == Enum {
		if len(opts.EnumValues) == 0 {
			return s, rvErrors.Wrap(rvErrors.ErrSchemaViolation, rvErrors.ErrSchemaViolation, "enum column requires at least one allowed value")
		}
		desc.EnumValues = opts.EnumValues
	}

	s.columns[name] = desc
	if desc.Encrypted {
		s.hasEncryptedCol = true
	}

	return s, nil
}

// Remove deletes a column from the schema. Removing an unknown column
// is a no-op.
func (s *Schema) Remove(name string) {
	delete(s.columns, name)
}

// Get returns the descriptor for name, or false if the column is
// unknown.
func (s *Schema) Get(name string) (ColumnDescriptor, bool) {
	d, ok := s.columns[name]
	return d, ok
}

// Valid reports whether value is acceptable for column name, per
// §4.3: unknown columns are tolerated (true), null is valid for any
// non-required column, and enum values must be a member of the
// allowed set.
func (s *Schema) Valid(name string, value any) bool {
	desc, ok := s.columns[name]
	if !ok {
		return true
	}
	if !desc.Required && value == nil {
		return true
	}
	if desc.Type == Enum {
		for _, allowed := range desc.EnumValues {
			if allowed == value {
				return true
			}
		}
		return false
	}
	return typeMatches(desc.Type, value)
}

func typeMatches(t ColumnType, value any) bool {
	switch t {
	case Bool:
		_, ok := value.(bool)
		return ok
	case Int:
		return isInt(value)
	case Float:
		_, ok := value.(float64)
		return ok
	case Number:
		return isInt(value) || isFloat(value)
	case Text:
		_, ok := value.(string)
		return ok
	case List:
		_, ok := value.([]any)
		return ok
	case Object:
		_, ok := value.(map[string]any)
		return ok
	default:
		return false
	}
}

func isInt(value any) bool {
	switch value.(type) {
	case int, int8, int16, int32, int64:
		return true
	case float64:
		f := value.(float64)
		return f == float64(int64(f))
	default:
		return false
	}
}

func isFloat(value any) bool {
	_, ok := value.(float64)
	return ok
}

// HasEncryptedColumns reports whether any column in the schema is
// marked encrypted.
func (s *Schema) HasEncryptedColumns() bool {
	for _, desc := range s.columns {
		if desc.Encrypted {
			return true
		}
	}
	return false
}

// SortedSchema returns the schema's columns keyed by name. The map
// itself carries no iteration order; callers that need ascending
// lexical order (metadata serialization per §4.3, a row file's header
// line per §4.4) get it for free from encoding/json's sorted-key map
// marshaling, or should call Names() to iterate in that order
// directly.
func (s *Schema) SortedSchema() map[string]ColumnDescriptor {
	return s.columns
}

// Names returns the column names in ascending lexical order.
func (s *Schema) Names() []string {
	names := make([]string, 0, len(s.columns))
	for name := range s.columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of defined columns.
func (s *Schema) Len() int {
	return len(s.columns)
}
