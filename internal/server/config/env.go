package config

import "github.com/caarlos0/env/v11"

// parseEnv overlays values from environment variables (see the env tags on
// Config). Unset variables leave the current value untouched.
func parseEnv(config *Config) {
	if err := env.Parse(config); err != nil {
		panic(err)
	}
}
