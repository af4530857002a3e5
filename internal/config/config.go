// Package config loads process-wide configuration for the fleet manager
// process. Per-container Configuration (§6 of the platform contract) is
// constructed programmatically by callers — the fleet manager or tests —
// since many containers can exist inside one process; only the ambient,
// process-level settings are environment-driven here.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// FleetConfig is the process-level configuration for cmd/simfleetd.
type FleetConfig struct {
	ListenAddr             string        `env:"SIMFLEET_LISTEN_ADDR,default=:8080"`
	MetricsAddr            string        `env:"SIMFLEET_METRICS_ADDR,default=:9090"`
	ModuleScanRoot         string        `env:"SIMFLEET_MODULE_SCAN_ROOT,default=modules"`
	DefaultMaxEntities     int           `env:"SIMFLEET_DEFAULT_MAX_ENTITIES,default=100000"`
	DefaultMaxComponents   int           `env:"SIMFLEET_DEFAULT_MAX_COMPONENTS,default=256"`
	DefaultMaxCommandsTick int           `env:"SIMFLEET_DEFAULT_MAX_COMMANDS_PER_TICK,default=10000"`
	DefaultMaxMemoryMB     int           `env:"SIMFLEET_DEFAULT_MAX_MEMORY_MB,default=0"`
	SessionSweepInterval   time.Duration `env:"SIMFLEET_SESSION_SWEEP_INTERVAL,default=1m"`
}

// Load reads a .env file if present (ignored if absent, mirroring the
// teacher's entrypoints) then decodes FleetConfig from the process
// environment via struct tags, falling back to the defaults above for
// anything unset or malformed.
func Load() FleetConfig {
	_ = godotenv.Load()

	var cfg FleetConfig
	if err := envdecode.Decode(&cfg); err != nil {
		// envdecode.Decode fails when a set variable cannot be parsed into
		// its field; fall back to reading each variable on its own, using
		// the default for any that is unset or malformed.
		cfg = FleetConfig{
			ListenAddr:             GetEnv("SIMFLEET_LISTEN_ADDR", ":8080"),
			MetricsAddr:            GetEnv("SIMFLEET_METRICS_ADDR", ":9090"),
			ModuleScanRoot:         GetEnv("SIMFLEET_MODULE_SCAN_ROOT", "modules"),
			DefaultMaxEntities:     GetEnvInt("SIMFLEET_DEFAULT_MAX_ENTITIES", 100_000),
			DefaultMaxComponents:   GetEnvInt("SIMFLEET_DEFAULT_MAX_COMPONENTS", 256),
			DefaultMaxCommandsTick: GetEnvInt("SIMFLEET_DEFAULT_MAX_COMMANDS_PER_TICK", 10_000),
			DefaultMaxMemoryMB:     GetEnvInt("SIMFLEET_DEFAULT_MAX_MEMORY_MB", 0),
			SessionSweepInterval:   ParseDurationOrDefault(GetEnv("SIMFLEET_SESSION_SWEEP_INTERVAL", ""), time.Minute),
		}
	}
	return cfg
}

// GetEnv retrieves an environment variable with a default fallback.
func GetEnv(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvInt retrieves an integer environment variable with a default
// fallback; an unparseable value also falls back to the default.
func GetEnvInt(key string, defaultValue int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// ParseDurationOrDefault parses a duration string, falling back to
// defaultDuration when raw is empty or unparseable.
func ParseDurationOrDefault(raw string, defaultDuration time.Duration) time.Duration {
	if raw == "" {
		return defaultDuration
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return defaultDuration
	}
	return parsed
}
