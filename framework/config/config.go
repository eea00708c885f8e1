package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the central typed configuration struct.
type Config struct {
	App       AppConfig
	Container ContainerConfig
	Log       LogConfig
	Metrics   MetricsConfig
	DB        DBConfig
}

type AppConfig struct {
	Name  string
	Env   string // local | production | testing
	Debug bool
	Port  string
}

// ContainerConfig tunes the injection container.
type ContainerConfig struct {
	GlobalScope string // name of the root scope
	Manifest    string // optional YAML scope manifest
	Inspect     bool   // mount the /ioc introspection routes
}

type LogConfig struct {
	Level  string // debug | info | warn | error
	Format string // json | console
}

type MetricsConfig struct {
	Enabled   bool
	Namespace string
	Path      string
}

// DBConfig selects the connection class bound to ~IDBConn.
type DBConfig struct {
	Driver string // mysql | pgsql
	Host   string
	Port   string
}

// Load reads .env (if present) and populates a Config from environment variables.
// Call once at bootstrap: cfg := config.Load()
func Load(envFiles ...string) *Config {
	files := envFiles
	if len(files) == 0 {
		files = []string{".env"}
	}
	// Non-fatal: .env may not exist in production
	_ = godotenv.Load(files...)

	return &Config{
		App: AppConfig{
			Name:  env("APP_NAME", "GoInject"),
			Env:   env("APP_ENV", "local"),
			Debug: envBool("APP_DEBUG", true),
			Port:  env("APP_PORT", "8000"),
		},
		Container: ContainerConfig{
			GlobalScope: env("IOC_GLOBAL_SCOPE", "_global"),
			Manifest:    env("IOC_MANIFEST", ""),
			Inspect:     envBool("IOC_INSPECT", true),
		},
		Log: LogConfig{
			Level:  env("LOG_LEVEL", "info"),
			Format: env("LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled:   envBool("METRICS_ENABLED", true),
			Namespace: env("METRICS_NAMESPACE", "ioc"),
			Path:      env("METRICS_PATH", "/metrics"),
		},
		DB: DBConfig{
			Driver: env("DB_DRIVER", "mysql"),
			Host:   env("DB_HOST", "127.0.0.1"),
			Port:   env("DB_PORT", "3306"),
		},
	}
}

// IsProduction reports whether APP_ENV is "production".
func (c *Config) IsProduction() bool { return c.App.Env == "production" }

// Get returns a raw env value, falling back to defaultVal.
func Get(key, defaultVal string) string {
	return env(key, defaultVal)
}

// GetInt returns an int env value.
func GetInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

// GetBool returns a bool env value.
func GetBool(key string, defaultVal bool) bool {
	return envBool(key, defaultVal)
}

// ── helpers ─────────────────────────────────────────────────────────────────

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
