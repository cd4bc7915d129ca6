package config

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type lookuper = envconfig.Lookuper

// osEnv loads a .env file (if present) into the process environment without
// overriding variables that are already set, then returns the OS lookuper.
func osEnv() lookuper {
	_ = godotenv.Load()
	return envconfig.OsLookuper()
}

// parseEnv overlays environment variables onto config. Only variables that
// are set replace the current value; list values are comma-separated.
func parseEnv(ctx context.Context, config *Config, env lookuper) error {
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   config,
		Lookuper: env,
	}); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	return nil
}
