// Package config loads server configuration with viper and wires up the
// shared logrus logger. Load returns a Config value built from a YAML
// file and environment variables; the only package-level global is the
// logger.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the server-wide configuration for the registry, arsenal and
// dataset root.
type Config struct {
	// DatasetRoot is the filesystem root under which every generator's
	// <rf>/<group>/<id>/ directory is created.
	DatasetRoot string

	// UpdaterPeriod is how often the registry updater re-pulls the
	// resource set. Zero or negative means "wait indefinitely for an
	// explicit RequestUpdate".
	UpdaterPeriod time.Duration

	// PreparationPoolSize bounds concurrent generator.Prepare() calls.
	PreparationPoolSize int

	// FrozenTypes is the set of generator type names for which an
	// incompatible resource change is rejected rather than applied.
	FrozenTypes []string

	// ArsenalWorkers is the number of forked GDAL worker processes.
	ArsenalWorkers int

	// ArsenalArenaBytes is the configured per-worker arena size in bytes.
	// Nothing in this module reads it: arsenal.Pool applies back-pressure
	// by its own Config.ArenaSlots job count, not by bytes.
	ArsenalArenaBytes int64

	// ArsenalWorkerBinary is the path to the cmd/gdalworker binary.
	ArsenalWorkerBinary string
}

// Default returns the configuration used when nothing overrides it, the
// same role the teacher's zero-value package globals played before
// config.xml was read.
func Default() Config {
	return Config{
		DatasetRoot:          "./data",
		UpdaterPeriod:        60 * time.Second,
		PreparationPoolSize:  5,
		FrozenTypes:          nil,
		ArsenalWorkers:       4,
		ArsenalArenaBytes:    64 << 20,
		ArsenalWorkerBinary:  "gdalworker",
	}
}

// Load reads configuration from configFile (if non-empty) and from
// VTSPROXY_-prefixed environment variables, layered over Default().
func Load(configFile string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("VTSPROXY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("dataset_root", cfg.DatasetRoot)
	v.SetDefault("updater_period", cfg.UpdaterPeriod)
	v.SetDefault("preparation_pool_size", cfg.PreparationPoolSize)
	v.SetDefault("frozen_types", cfg.FrozenTypes)
	v.SetDefault("arsenal_workers", cfg.ArsenalWorkers)
	v.SetDefault("arsenal_arena_bytes", cfg.ArsenalArenaBytes)
	v.SetDefault("arsenal_worker_binary", cfg.ArsenalWorkerBinary)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return cfg, err
		}
	}

	cfg.DatasetRoot = v.GetString("dataset_root")
	cfg.UpdaterPeriod = v.GetDuration("updater_period")
	cfg.PreparationPoolSize = v.GetInt("preparation_pool_size")
	cfg.FrozenTypes = v.GetStringSlice("frozen_types")
	cfg.ArsenalWorkers = v.GetInt("arsenal_workers")
	cfg.ArsenalArenaBytes = v.GetInt64("arsenal_arena_bytes")
	cfg.ArsenalWorkerBinary = v.GetString("arsenal_worker_binary")

	return cfg, nil
}

// FrozenSet returns FrozenTypes as a lookup set.
func (c Config) FrozenSet() map[string]bool {
	out := make(map[string]bool, len(c.FrozenTypes))
	for _, t := range c.FrozenTypes {
		out[t] = true
	}
	return out
}
