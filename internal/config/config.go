// Package config holds the runtime configuration for the submission pipeline:
// storage backend selection, durable buffer location, snapshot target, and
// the tuning knobs for the duplicate check and the reconciliation sweep.
//
// Precedence (highest to lowest): CLI flags > CLUBATLAS_* env vars >
// clubatlas.yaml > built-in defaults.
package config

import (
	"fmt"
	"time"
)

// Config is the complete pipeline configuration.
type Config struct {
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Buffer   BufferConfig   `mapstructure:"buffer" yaml:"buffer"`
	Snapshot SnapshotConfig `mapstructure:"snapshot" yaml:"snapshot"`
	DupCheck DupCheckConfig `mapstructure:"dupcheck" yaml:"dupcheck"`
	Sweep    SweepConfig    `mapstructure:"sweep" yaml:"sweep"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// StorageConfig selects the authoritative store backend.
type StorageConfig struct {
	// Driver is one of memory, sqlite, postgres.
	Driver string `mapstructure:"driver" yaml:"driver"`

	// SQLitePath is the sqlite database file, used when driver=sqlite.
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`

	// PostgresDSN is the connection string, used when driver=postgres.
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`

	// Timeout bounds authoritative-store calls on the intake path.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// BufferConfig selects the durable intake buffer backend.
type BufferConfig struct {
	// Driver is one of fs, memory, s3.
	Driver string `mapstructure:"driver" yaml:"driver"`

	// Root is the filesystem root for driver=fs.
	Root string `mapstructure:"root" yaml:"root"`

	// Bucket, Region, Endpoint and PathStyle apply to driver=s3. Endpoint
	// enables S3-compatible backends such as MinIO.
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	Region    string `mapstructure:"region" yaml:"region"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	PathStyle bool   `mapstructure:"path_style" yaml:"path_style"`
}

// SnapshotConfig controls the read-optimized snapshot file.
type SnapshotConfig struct {
	// Path is where the snapshot is written.
	Path string `mapstructure:"path" yaml:"path"`

	// BackupPath receives the previous snapshot bytes before each replace.
	// Empty means Path + ".bak".
	BackupPath string `mapstructure:"backup_path" yaml:"backup_path"`
}

// DupCheckConfig tunes the advisory duplicate check at intake.
type DupCheckConfig struct {
	// Threshold is the minimum similarity score to report a match.
	Threshold float64 `mapstructure:"threshold" yaml:"threshold"`

	// MaxMatches caps the number of reported matches.
	MaxMatches int `mapstructure:"max_matches" yaml:"max_matches"`
}

// SweepConfig tunes the reconciliation sweep over the durable buffer.
type SweepConfig struct {
	// Interval between sweep passes when running continuously.
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`

	// Grace is the minimum age of a buffer record before the sweep
	// considers it, leaving in-flight intakes alone.
	Grace time.Duration `mapstructure:"grace" yaml:"grace"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level" yaml:"level"`

	// Format is text or json.
	Format string `mapstructure:"format" yaml:"format"`
}

// Defaults returns a configuration that is valid without any external input.
func Defaults() *Config {
	return &Config{
		Storage: StorageConfig{
			Driver:     "sqlite",
			SQLitePath: "clubatlas.db",
			Timeout:    5 * time.Second,
		},
		Buffer: BufferConfig{
			Driver: "fs",
			Root:   "buffer",
		},
		Snapshot: SnapshotConfig{
			Path: "clubs.json",
		},
		DupCheck: DupCheckConfig{
			Threshold:  0.35,
			MaxMatches: 5,
		},
		Sweep: SweepConfig{
			Interval: time.Minute,
			Grace:    30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate reports the first structural problem found.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("storage.driver must be memory, sqlite or postgres, got %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("storage.postgres_dsn is required when storage.driver=postgres")
	}
	switch c.Buffer.Driver {
	case "fs", "memory", "s3":
	default:
		return fmt.Errorf("buffer.driver must be fs, memory or s3, got %q", c.Buffer.Driver)
	}
	if c.Buffer.Driver == "s3" && c.Buffer.Bucket == "" {
		return fmt.Errorf("buffer.bucket is required when buffer.driver=s3")
	}
	if c.Snapshot.Path == "" {
		return fmt.Errorf("snapshot.path must not be empty")
	}
	if c.DupCheck.Threshold < 0 || c.DupCheck.Threshold > 1 {
		return fmt.Errorf("dupcheck.threshold must be within [0,1], got %v", c.DupCheck.Threshold)
	}
	if c.DupCheck.MaxMatches < 1 {
		return fmt.Errorf("dupcheck.max_matches must be positive, got %d", c.DupCheck.MaxMatches)
	}
	if c.Sweep.Interval <= 0 {
		return fmt.Errorf("sweep.interval must be positive, got %v", c.Sweep.Interval)
	}
	if c.Sweep.Grace < 0 {
		return fmt.Errorf("sweep.grace must not be negative, got %v", c.Sweep.Grace)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}
