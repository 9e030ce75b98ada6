package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load builds the run configuration: defaults, then the TOML file (path
// may be empty), then .env, then CLOSIM_* environment overrides. The
// result is validated before it is returned.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	// .env is optional
	_ = godotenv.Load()

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setStr("CLOSIM_NETWORK", &cfg.Network)
	setInt("CLOSIM_BREAKPOINT", &cfg.Breakpoint)
	setStr("CLOSIM_POSTGRES_DSN", &cfg.Postgres.DSN)
	setStr("CLOSIM_MIGRATIONS_DIR", &cfg.Postgres.MigrationsDir)
	setStr("CLOSIM_NATS_URL", &cfg.NATS.URL)
	setStr("CLOSIM_METRICS_ADDR", &cfg.Metrics.Addr)
}

func setStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
