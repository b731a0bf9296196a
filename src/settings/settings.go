// Package settings holds the process-wide and per-database defaults
// that configure the ambient behavior of rowvault: where cache files
// live, how aggressively stale write-ahead temp files are swept, and
// the default page size Collection uses when a query omits limit().
//
// Settings load in layers: compiled defaults, overlaid by an optional
// config file, overlaid by environment variables.
package settings

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings is the full set of tunables a Database may be constructed
// with. The zero value is never used directly; call Defaults() to get
// a valid baseline.
type Settings struct {
	// CacheDirName is the directory name (relative to a database's
	// folder) that holds cached query results. Defaults to ".cache".
	CacheDirName string

	// WalSweepAge is how old an orphaned "<path>.wal.<id>" temp file
	// must be before a sweep removes it. Defaults to 10 minutes.
	WalSweepAge time.Duration

	// WalSweepInterval is how often a background sweeper (if started)
	// scans for orphaned temp files. Defaults to 1 minute.
	WalSweepInterval time.Duration

	// DefaultPageSize is the limit Collection uses when a Query
	// specifies none. Zero means "no implicit limit".
	DefaultPageSize int

	// RequireKEKForEncryptedTables, when true, causes CreateTable to
	// refuse schemas with encrypted columns unless the owning
	// Database was given a KEK, even before the first insert. When
	// false (the default) the check is deferred to insert time, per
	// spec.
	RequireKEKForEncryptedTables bool
}

// Defaults returns the configuration rowvault uses when no overrides
// are supplied, matching §6's "Environment: None required."
func Defaults() *Settings {
	return &Settings{
		CacheDirName:                 ".cache",
		WalSweepAge:                  10 * time.Minute,
		WalSweepInterval:             time.Minute,
		DefaultPageSize:              0,
		RequireKEKForEncryptedTables: false,
	}
}

// Load overlays Defaults() with values from an optional config file
// and from ROWVAULT_-prefixed environment variables, using viper the
// way bunbase/pkg loads its service configuration. configFile may be
// empty, in which case only the environment is consulted.
func Load(configFile string) (*Settings, error) {
	s := Defaults()

	v := viper.New()
	v.SetEnvPrefix("ROWVAULT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("cache_dir_name", s.CacheDirName)
	v.SetDefault("wal_sweep_age", s.WalSweepAge)
	v.SetDefault("wal_sweep_interval", s.WalSweepInterval)
	v.SetDefault("default_page_size", s.DefaultPageSize)
	v.SetDefault("require_kek_for_encrypted_tables", s.RequireKEKForEncryptedTables)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	s.CacheDirName = v.GetString("cache_dir_name")
	s.WalSweepAge = v.GetDuration("wal_sweep_age")
	s.WalSweepInterval = v.GetDuration("wal_sweep_interval")
	s.DefaultPageSize = v.GetInt("default_page_size")
	s.RequireKEKForEncryptedTables = v.GetBool("require_kek_for_encrypted_tables")

	return s, nil
}
