package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigDir returns the per-user configuration directory.
func DefaultConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "clubatlas"), nil
}

// DefaultConfigPath returns the full path to the default config file.
func DefaultConfigPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "clubatlas.yaml"), nil
}

// Generate writes a documented default config file to path. When path is
// empty the default location is used. Existing files are never overwritten.
func Generate(path string) (string, error) {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return "", err
		}
	}
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}

	defaults := Defaults()
	body := `# clubatlas configuration file.
#
# Precedence (highest to lowest):
#   1. CLI flags
#   2. Environment variables (CLUBATLAS_*)
#   3. This file
#   4. Built-in defaults
#
# Durations accept Go syntax, e.g. 5s, 1m, 250ms.

storage:
  driver: ` + defaults.Storage.Driver + `
  sqlite_path: ` + defaults.Storage.SQLitePath + `
  postgres_dsn: ""
  timeout: ` + defaults.Storage.Timeout.String() + `

buffer:
  driver: ` + defaults.Buffer.Driver + `
  root: ` + defaults.Buffer.Root + `
  bucket: ""
  region: ""
  endpoint: ""
  path_style: false

snapshot:
  path: ` + defaults.Snapshot.Path + `
  backup_path: ""

dupcheck:
  threshold: ` + fmt.Sprintf("%.2f", defaults.DupCheck.Threshold) + `
  max_matches: ` + fmt.Sprintf("%d", defaults.DupCheck.MaxMatches) + `

sweep:
  interval: ` + defaults.Sweep.Interval.String() + `
  grace: ` + defaults.Sweep.Grace.String() + `

log:
  level: ` + defaults.Log.Level + `
  format: ` + defaults.Log.Format + `
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("write config file: %w", err)
	}
	return path, nil
}

// Render returns the effective configuration as YAML, with durations in Go
// syntax rather than raw nanoseconds.
func (c *Config) Render() ([]byte, error) {
	view := struct {
		Storage struct {
			Driver      string `yaml:"driver"`
			SQLitePath  string `yaml:"sqlite_path"`
			PostgresDSN string `yaml:"postgres_dsn"`
			Timeout     string `yaml:"timeout"`
		} `yaml:"storage"`
		Buffer   BufferConfig   `yaml:"buffer"`
		Snapshot SnapshotConfig `yaml:"snapshot"`
		DupCheck DupCheckConfig `yaml:"dupcheck"`
		Sweep    struct {
			Interval string `yaml:"interval"`
			Grace    string `yaml:"grace"`
		} `yaml:"sweep"`
		Log LogConfig `yaml:"log"`
	}{
		Buffer:   c.Buffer,
		Snapshot: c.Snapshot,
		DupCheck: c.DupCheck,
		Log:      c.Log,
	}
	view.Storage.Driver = c.Storage.Driver
	view.Storage.SQLitePath = c.Storage.SQLitePath
	view.Storage.PostgresDSN = c.Storage.PostgresDSN
	view.Storage.Timeout = c.Storage.Timeout.String()
	view.Sweep.Interval = c.Sweep.Interval.String()
	view.Sweep.Grace = c.Sweep.Grace.String()
	return yaml.Marshal(view)
}

// ValidateFile reads a config file and reports whether it parses and validates.
func ValidateFile(path string) error {
	_, err := Load(path)
	return err
}
