// Package cache implements rowvault's query-result cache: a
// content-addressed store of gzip-compressed, BSON-encoded result
// vectors, keyed by a hash of the table identity and the canonical
// query payload (§4.7).
//
// The payload codec round-trips arbitrary map[string]interface{} data
// through BSON, the same way bundle storage does; the key hash uses
// xxhash.
package cache

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"rowvault/src/ioutil"
	"rowvault/src/rvErrors"
)

// Cache manages the cached query results for a single table.
type Cache struct {
	dir        string
	expiration *time.Duration
	logger     *zap.SugaredLogger
}

// Option configures a Cache.
type Option func(*Cache)

// WithExpiration sets a TTL after which a cache entry is treated as a
// miss and unlinked on next lookup, per §12's supplemented-feature
// carrying the original's cache.py expiration window forward.
func WithExpiration(d time.Duration) Option {
	return func(c *Cache) { c.expiration = &d }
}

// WithLogger attaches a logger for cache read/write diagnostics.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *Cache) { c.logger = logger }
}

// New returns a Cache rooted at <storageDbFolder>/<cacheDirName>/<tableName>.
func New(dbFolder, cacheDirName, tableName string, opts ...Option) *Cache {
	c := &Cache{
		dir:    ioutil.Join(dbFolder, cacheDirName, tableName),
		logger: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HashPayload returns a stable content-addressed key for an arbitrary
// canonical query payload, encoding it as JSON (encoding/json writes
// map keys in sorted order, so map key order never affects the hash)
// and hashing the encoded bytes with xxhash.
func HashPayload(payload any) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", rvErrors.Wrap(err, rvErrors.ErrInternal, "encode cache payload")
	}
	sum := xxhash.Sum64(encoded)
	return hexUint64(sum), nil
}

func (c *Cache) file(key string) string {
	return filepath.Join(c.dir, key)
}

// Valid reports whether a cache entry for key exists and has not
// expired. An expired entry is unlinked as a side effect, per §4.7.
func (c *Cache) Valid(key string) bool {
	path := c.file(key)
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	if c.expiration != nil && time.Since(info.ModTime()) > *c.expiration {
		os.Remove(path)
		return false
	}

	return true
}

// Put writes data as the cached result for key, gzip-compressing its
// BSON encoding. Cache write failures are non-fatal per §7: the
// caller should log and ignore, never fail the query that produced
// data.
func (c *Cache) Put(key string, data []map[string]any) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return rvErrors.Wrap(err, rvErrors.ErrIOFailure, "create cache dir")
	}

	encoded, err := bson.Marshal(bson.M{"rows": data})
	if err != nil {
		return rvErrors.Wrap(err, rvErrors.ErrInternal, "encode cache payload")
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(encoded); err != nil {
		return rvErrors.Wrap(err, rvErrors.ErrInternal, "gzip cache payload")
	}
	if err := gz.Close(); err != nil {
		return rvErrors.Wrap(err, rvErrors.ErrInternal, "close gzip writer")
	}

	return ioutil.AtomicWrite(c.file(key), buf.Bytes(), c.logger)
}

// Get decompresses and decodes the cached result for key.
func (c *Cache) Get(key string) ([]map[string]any, error) {
	raw, err := ioutil.ReadAll(c.file(key))
	if err != nil {
		return nil, err
	}

	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, rvErrors.Wrap(err, rvErrors.ErrInternal, "open gzip reader")
	}
	defer gz.Close()

	encoded, err := io.ReadAll(gz)
	if err != nil {
		return nil, rvErrors.Wrap(err, rvErrors.ErrInternal, "read gzip payload")
	}

	var payload struct {
		Rows []map[string]any `bson:"rows"`
	}
	if err := bson.Unmarshal(encoded, &payload); err != nil {
		return nil, rvErrors.Wrap(err, rvErrors.ErrInternal, "decode cache payload")
	}

	return payload.Rows, nil
}

// Flush recursively removes every cached entry for this table, the
// mandatory whole-table invalidation §4.7 requires after any
// successful write.
func (c *Cache) Flush() error {
	if err := os.RemoveAll(c.dir); err != nil {
		return rvErrors.Wrap(err, rvErrors.ErrIOFailure, "flush cache dir")
	}
	return nil
}

// FlushDir is Flush without constructing a Cache, for call sites
// (Table's write path) that only know the directory, not any
// in-flight query payload.
func FlushDir(dbFolder, cacheDirName, tableName string) error {
	dir := ioutil.Join(dbFolder, cacheDirName, tableName)
	if err := os.RemoveAll(dir); err != nil {
		return rvErrors.Wrap(err, rvErrors.ErrIOFailure, "flush cache dir")
	}
	return nil
}

func hexUint64(v uint64) string {
	const hextable = "0123456789abcdef"
	buf := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		buf[i] = hextable[v&0xf]
		v >>= 4
	}
	return string(buf)
}
