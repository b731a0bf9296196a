// Package rowfile implements the on-disk row format described in
// §4.4: a header line holding a JSON array of column names in
// ascending lexical order, followed by one line per value in the same
// order, with encrypted columns holding a base64 AEAD blob instead of
// their plaintext JSON encoding.
//
// The wire format (this package) is kept independent of row lifecycle
// and ownership, which belongs to the table package.
package rowfile

import (
	"encoding/json"
	"sort"
	"strings"

	"rowvault/src/cryptox"
	"rowvault/src/rvErrors"
	"rowvault/src/schema"
)

// Encode serializes columns (which must not include "_id") into the
// NDJSON row format, encrypting any column the schema marks
// encrypted. dek is required, and must be non-nil, iff the schema has
// at least one encrypted column.
func Encode(columns map[string]any, sch *schema.Schema, dek []byte) ([]byte, error) {
	names := make([]string, 0, len(columns))
	for name := range columns {
		names = append(names, name)
	}
	sort.Strings(names)

	headerJSON, err := json.Marshal(names)
	if err != nil {
		return nil, rvErrors.Wrap(err, rvErrors.ErrInternal, "marshal row header")
	}

	var b strings.Builder
	b.Write(headerJSON)
	b.WriteByte('\n')

	for _, name := range names {
		value := columns[name]

		if desc, ok := sch.Get(name); ok && desc.Encrypted {
			if dek == nil {
				return nil, rvErrors.Wrap(rvErrors.ErrCryptoRequired, rvErrors.ErrCryptoRequired, "dek required to encrypt column "+name)
			}
			blob, err := cryptox.Encrypt(value, dek)
			if err != nil {
				return nil, err
			}
			value = blob
		}

		valueJSON, err := json.Marshal(value)
		if err != nil {
			return nil, rvErrors.Wrap(err, rvErrors.ErrInternal, "marshal column "+name)
		}
		b.Write(valueJSON)
		b.WriteByte('\n')
	}

	return []byte(b.String()), nil
}

// Decode parses the full NDJSON row format back into a column map,
// decrypting any encrypted column via dek. dek may be nil if the
// schema has no encrypted columns.
func Decode(data []byte, sch *schema.Schema, dek []byte) (map[string]any, error) {
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 0 {
		return nil, rvErrors.Wrap(rvErrors.ErrInternal, rvErrors.ErrInternal, "empty row file")
	}

	var names []string
	if err := json.Unmarshal([]byte(lines[0]), &names); err != nil {
		return nil, rvErrors.Wrap(err, rvErrors.ErrInternal, "decode row header")
	}

	columns := make(map[string]any, len(names))
	for i, name := range names {
		lineIdx := i + 1
		if lineIdx >= len(lines) {
			return nil, rvErrors.Wrap(rvErrors.ErrInternal, rvErrors.ErrInternal, "row file missing value for column "+name)
		}

		var raw any
		if err := json.Unmarshal([]byte(lines[lineIdx]), &raw); err != nil {
			return nil, rvErrors.Wrap(err, rvErrors.ErrInternal, "decode column "+name)
		}

		if desc, ok := sch.Get(name); ok && desc.Encrypted {
			if raw == nil {
				columns[name] = nil
				continue
			}
			blob, ok := raw.(string)
			if !ok {
				return nil, rvErrors.Wrap(rvErrors.ErrCryptoFailed, rvErrors.ErrCryptoFailed, "encrypted column is not a string blob")
			}
			if dek == nil {
				return nil, rvErrors.Wrap(rvErrors.ErrCryptoRequired, rvErrors.ErrCryptoRequired, "dek required to decrypt column "+name)
			}
			value, err := cryptox.Decrypt(blob, dek)
			if err != nil {
				return nil, err
			}
			columns[name] = value
			continue
		}

		columns[name] = raw
	}

	return columns, nil
}

// Header parses just the header line (line 0) of an already-read row
// file, without touching the value lines.
func Header(headerLine string) ([]string, error) {
	var names []string
	if err := json.Unmarshal([]byte(headerLine), &names); err != nil {
		return nil, rvErrors.Wrap(err, rvErrors.ErrInternal, "decode row header")
	}
	return names, nil
}

// DecodeColumn decodes a single value line for column at the given
// schema position, applying decryption if the schema marks it
// encrypted. Used by the table package's cheap-lookup path built on
// ioutil.ReadLine.
func DecodeColumn(name, valueLine string, sch *schema.Schema, dek []byte) (any, error) {
	var raw any
	if err := json.Unmarshal([]byte(valueLine), &raw); err != nil {
		return nil, rvErrors.Wrap(err, rvErrors.ErrInternal, "decode column "+name)
	}

	desc, ok := sch.Get(name)
	if !ok || !desc.Encrypted || raw == nil {
		return raw, nil
	}

	blob, ok := raw.(string)
	if !ok {
		return nil, rvErrors.Wrap(rvErrors.ErrCryptoFailed, rvErrors.ErrCryptoFailed, "encrypted column is not a string blob")
	}
	if dek == nil {
		return nil, rvErrors.Wrap(rvErrors.ErrCryptoRequired, rvErrors.ErrCryptoRequired, "dek required to decrypt column "+name)
	}
	return cryptox.Decrypt(blob, dek)
}
