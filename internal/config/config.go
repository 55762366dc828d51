// Package config loads the engine's environment-level knobs. Every tunable
// named by the projection contract lives here with its documented default.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full environment surface of the projection engine.
type Config struct {
	// BiasWindowDays bounds how many recent actual-vs-profile observations
	// feed the temperature bias.
	BiasWindowDays int `env:"AQUACAST_BIAS_WINDOW_DAYS" envDefault:"14"`
	// BiasClamp is the symmetric clamp (±°C) applied to the averaged bias.
	BiasClamp float64 `env:"AQUACAST_BIAS_CLAMP" envDefault:"2.0"`
	// MaxHorizonDays is the hard safety cap on simulation length.
	MaxHorizonDays int `env:"AQUACAST_MAX_HORIZON_DAYS" envDefault:"1000"`
	// AttentionWindowDays is the urgency window for tier classification.
	AttentionWindowDays int `env:"AQUACAST_ATTENTION_WINDOW_DAYS" envDefault:"30"`

	// RetentionDays drops run-date partitions older than this many days.
	RetentionDays int `env:"AQUACAST_RETENTION_DAYS" envDefault:"90"`
	// CompressAfterDays archives partitions older than this many days.
	CompressAfterDays int `env:"AQUACAST_COMPRESS_AFTER_DAYS" envDefault:"7"`

	// Workers bounds the per-run fan-out pool.
	Workers int `env:"AQUACAST_WORKERS" envDefault:"8"`
	// JobTimeout covers one assignment's full horizon simulation and commit.
	JobTimeout time.Duration `env:"AQUACAST_JOB_TIMEOUT" envDefault:"30s"`
	// StoreRetries is how many times a failed per-assignment commit is retried.
	StoreRetries int `env:"AQUACAST_STORE_RETRIES" envDefault:"3"`

	// StorageDriver selects the projection store backend: memory|sqlite|postgres.
	StorageDriver string `env:"AQUACAST_STORAGE_DRIVER" envDefault:"sqlite"`
	// SQLitePath locates the embedded store file when driver=sqlite.
	SQLitePath string `env:"AQUACAST_SQLITE_PATH" envDefault:"aquacast.db"`
	// PostgresDSN is the connection string when driver=postgres.
	PostgresDSN string `env:"AQUACAST_POSTGRES_DSN"`

	// BlobDriver selects the partition archive backend: fs|s3|memory.
	BlobDriver string `env:"AQUACAST_BLOB_DRIVER" envDefault:"fs"`
	// BlobFSRoot is the archive directory when the blob driver is fs.
	BlobFSRoot string `env:"AQUACAST_BLOB_FS_ROOT" envDefault:"./archive"`

	// InputSnapshot points at the JSON snapshot exported by the upstream
	// assimilation and planning systems. Empty means no assignments.
	InputSnapshot string `env:"AQUACAST_INPUT_SNAPSHOT"`

	// RunAtUTC is the daily trigger time (HH:MM, UTC) in daemon mode.
	RunAtUTC string `env:"AQUACAST_RUN_AT_UTC" envDefault:"02:00"`
	// MetricsAddr serves prometheus + expvar when non-empty, e.g. ":9108".
	MetricsAddr string `env:"AQUACAST_METRICS_ADDR"`
}

// Load parses configuration from the process environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects knob values the engine cannot honor.
func (c Config) Validate() error {
	if c.BiasWindowDays <= 0 {
		return fmt.Errorf("bias window must be positive, got %d", c.BiasWindowDays)
	}
	if c.BiasClamp < 0 {
		return fmt.Errorf("bias clamp must be non-negative, got %v", c.BiasClamp)
	}
	if c.MaxHorizonDays <= 0 {
		return fmt.Errorf("max horizon must be positive, got %d", c.MaxHorizonDays)
	}
	if c.AttentionWindowDays < 0 {
		return fmt.Errorf("attention window must be non-negative, got %d", c.AttentionWindowDays)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.StoreRetries < 0 {
		return fmt.Errorf("store retries must be non-negative, got %d", c.StoreRetries)
	}
	if c.CompressAfterDays > c.RetentionDays {
		return fmt.Errorf("compress-after window %d exceeds retention window %d", c.CompressAfterDays, c.RetentionDays)
	}
	if _, err := time.Parse("15:04", c.RunAtUTC); err != nil {
		return fmt.Errorf("run-at time %q: %w", c.RunAtUTC, err)
	}
	return nil
}
