// Package config reads the vault daemon's environment-variable
// configuration, following the teacher's pattern of resolving settings
// directly with os.Getenv rather than a config-struct library.
package config

import (
	"os"
	"strconv"
)

// Config holds every environment-derived setting the server needs at
// startup.
type Config struct {
	AppName            string
	AppEnv             string
	Host               string
	Port               string
	LogLevel           string
	CORSAllowedOrigin  string
	SessionIdleMinutes int
	DataDir            string
}

// Load reads APP_NAME, APP_ENV, APP_HOST, APP_PORT, APP_LOG_LEVEL,
// APP_CORS_ALLOWED_ORIGIN, APP_SESSION_IDLE_MINUTES, and APP_DATA_DIR,
// applying the documented defaults where unset.
func Load() Config {
	return Config{
		AppName:            getenv("APP_NAME", "local-vault"),
		AppEnv:             getenv("APP_ENV", "production"),
		Host:               getenv("APP_HOST", "127.0.0.1"),
		Port:               getenv("APP_PORT", "8080"),
		LogLevel:           getenv("APP_LOG_LEVEL", "info"),
		CORSAllowedOrigin:  os.Getenv("APP_CORS_ALLOWED_ORIGIN"),
		SessionIdleMinutes: getenvInt("APP_SESSION_IDLE_MINUTES", 15),
		DataDir:            getenv("APP_DATA_DIR", defaultDataDir()),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return home + "/.local-vault"
}
