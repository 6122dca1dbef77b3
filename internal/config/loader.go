package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from a YAML file and the environment and returns a
// validated Config. If path is empty, default locations are searched:
//   - ./clubatlas.yaml
//   - ~/.config/clubatlas/clubatlas.yaml
//
// Environment variables use the CLUBATLAS_ prefix with underscores for
// nesting, e.g. CLUBATLAS_STORAGE_DRIVER, CLUBATLAS_SNAPSHOT_PATH.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("CLUBATLAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("clubatlas")
		v.AddConfigPath(".")
		if homeDir, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".config", "clubatlas"))
		}
	}

	cfg := Defaults()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if path != "" {
				return nil, fmt.Errorf("read config file: %w", err)
			}
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
		// No file found: defaults plus environment overrides.
		applyEnv(v, cfg)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	applyEnv(v, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv copies environment overrides into cfg. AutomaticEnv alone does not
// populate Unmarshal for keys absent from the file, so the known keys are
// checked explicitly.
func applyEnv(v *viper.Viper, cfg *Config) {
	if s := v.GetString("storage.driver"); v.IsSet("storage.driver") && s != "" {
		cfg.Storage.Driver = s
	}
	if s := v.GetString("storage.sqlite_path"); v.IsSet("storage.sqlite_path") && s != "" {
		cfg.Storage.SQLitePath = s
	}
	if s := v.GetString("storage.postgres_dsn"); v.IsSet("storage.postgres_dsn") && s != "" {
		cfg.Storage.PostgresDSN = s
	}
	if v.IsSet("storage.timeout") {
		if d := v.GetDuration("storage.timeout"); d > 0 {
			cfg.Storage.Timeout = d
		}
	}
	if s := v.GetString("buffer.driver"); v.IsSet("buffer.driver") && s != "" {
		cfg.Buffer.Driver = s
	}
	if s := v.GetString("buffer.root"); v.IsSet("buffer.root") && s != "" {
		cfg.Buffer.Root = s
	}
	if s := v.GetString("buffer.bucket"); v.IsSet("buffer.bucket") && s != "" {
		cfg.Buffer.Bucket = s
	}
	if s := v.GetString("buffer.region"); v.IsSet("buffer.region") && s != "" {
		cfg.Buffer.Region = s
	}
	if s := v.GetString("buffer.endpoint"); v.IsSet("buffer.endpoint") && s != "" {
		cfg.Buffer.Endpoint = s
	}
	if v.IsSet("buffer.path_style") {
		cfg.Buffer.PathStyle = v.GetBool("buffer.path_style")
	}
	if s := v.GetString("snapshot.path"); v.IsSet("snapshot.path") && s != "" {
		cfg.Snapshot.Path = s
	}
	if s := v.GetString("snapshot.backup_path"); v.IsSet("snapshot.backup_path") && s != "" {
		cfg.Snapshot.BackupPath = s
	}
	if v.IsSet("dupcheck.threshold") {
		cfg.DupCheck.Threshold = v.GetFloat64("dupcheck.threshold")
	}
	if v.IsSet("dupcheck.max_matches") {
		cfg.DupCheck.MaxMatches = v.GetInt("dupcheck.max_matches")
	}
	if v.IsSet("sweep.interval") {
		if d := v.GetDuration("sweep.interval"); d > 0 {
			cfg.Sweep.Interval = d
		}
	}
	if v.IsSet("sweep.grace") {
		if d := v.GetDuration("sweep.grace"); d >= 0 {
			cfg.Sweep.Grace = d
		}
	}
	if s := v.GetString("log.level"); v.IsSet("log.level") && s != "" {
		cfg.Log.Level = s
	}
	if s := v.GetString("log.format"); v.IsSet("log.format") && s != "" {
		cfg.Log.Format = s
	}
}
