package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvConfigFile   = "FLASHARB_CONFIG"
	EnvUniverseFile = "FLASHARB_UNIVERSE"
	EnvDebug        = "FLASHARB_DEBUG"
	EnvMetricsAddr  = "FLASHARB_METRICS_ADDR"
)

// LoadEnv loads environment variables from .env file
func LoadEnv() error {
	return godotenv.Load()
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
