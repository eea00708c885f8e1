package config_test

import (
	"os"
	"testing"

	"github.com/km-arc/go-inject/framework/config"
)

// ── helpers ──────────────────────────────────────────────────────────────────

func setEnv(t *testing.T, key, val string) {
	t.Helper()
	t.Setenv(key, val) // automatically restored after test
}

// unsetEnv clears key for the duration of the test.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

// ── Load ─────────────────────────────────────────────────────────────────────

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{
		"APP_NAME", "APP_ENV", "APP_PORT", "IOC_GLOBAL_SCOPE", "IOC_MANIFEST",
		"LOG_LEVEL", "LOG_FORMAT", "METRICS_NAMESPACE", "METRICS_PATH", "DB_DRIVER",
	} {
		unsetEnv(t, k)
	}
	cfg := config.Load("testdata/empty.env")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"App.Name", cfg.App.Name, "GoInject"},
		{"App.Env", cfg.App.Env, "local"},
		{"App.Port", cfg.App.Port, "8000"},
		{"Container.GlobalScope", cfg.Container.GlobalScope, "_global"},
		{"Container.Manifest", cfg.Container.Manifest, ""},
		{"Log.Level", cfg.Log.Level, "info"},
		{"Log.Format", cfg.Log.Format, "json"},
		{"Metrics.Namespace", cfg.Metrics.Namespace, "ioc"},
		{"Metrics.Path", cfg.Metrics.Path, "/metrics"},
		{"DB.Driver", cfg.DB.Driver, "mysql"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	setEnv(t, "APP_NAME", "MyApp")
	setEnv(t, "APP_ENV", "production")
	setEnv(t, "APP_PORT", "9000")
	setEnv(t, "IOC_GLOBAL_SCOPE", "root")

	cfg := config.Load("testdata/empty.env")

	if cfg.App.Name != "MyApp" {
		t.Errorf("App.Name: got %q want %q", cfg.App.Name, "MyApp")
	}
	if !cfg.IsProduction() {
		t.Errorf("App.Env: got %q want %q", cfg.App.Env, "production")
	}
	if cfg.App.Port != "9000" {
		t.Errorf("App.Port: got %q want %q", cfg.App.Port, "9000")
	}
	if cfg.Container.GlobalScope != "root" {
		t.Errorf("Container.GlobalScope: got %q want %q", cfg.Container.GlobalScope, "root")
	}
}

func TestLoad_EnvFile(t *testing.T) {
	for _, k := range []string{"APP_NAME", "IOC_GLOBAL_SCOPE", "IOC_MANIFEST", "DB_DRIVER"} {
		unsetEnv(t, k)
	}
	// godotenv writes the process env; unsetEnv's cleanup restores it.
	cfg := config.Load("testdata/app.env")

	if cfg.App.Name != "FromFile" {
		t.Errorf("App.Name: got %q want %q", cfg.App.Name, "FromFile")
	}
	if cfg.Container.GlobalScope != "root" {
		t.Errorf("Container.GlobalScope: got %q want %q", cfg.Container.GlobalScope, "root")
	}
	if cfg.Container.Manifest != "config/scopes.yaml" {
		t.Errorf("Container.Manifest: got %q", cfg.Container.Manifest)
	}
	if cfg.DB.Driver != "pgsql" {
		t.Errorf("DB.Driver: got %q want %q", cfg.DB.Driver, "pgsql")
	}
}

func TestLoad_AppDebugTrue(t *testing.T) {
	setEnv(t, "APP_DEBUG", "true")
	cfg := config.Load("testdata/empty.env")
	if !cfg.App.Debug {
		t.Error("expected App.Debug to be true")
	}
}

func TestLoad_AppDebugFalse(t *testing.T) {
	setEnv(t, "APP_DEBUG", "false")
	cfg := config.Load("testdata/empty.env")
	if cfg.App.Debug {
		t.Error("expected App.Debug to be false")
	}
}

func TestLoad_MetricsDisabled(t *testing.T) {
	setEnv(t, "METRICS_ENABLED", "0")
	cfg := config.Load("testdata/empty.env")
	if cfg.Metrics.Enabled {
		t.Error("expected Metrics.Enabled to be false")
	}
}

// ── Get / GetInt / GetBool ───────────────────────────────────────────────────

func TestGet_ReturnsValue(t *testing.T) {
	setEnv(t, "CUSTOM_KEY", "hello")
	if got := config.Get("CUSTOM_KEY", "default"); got != "hello" {
		t.Errorf("got %q want %q", got, "hello")
	}
}

func TestGet_ReturnsFallback(t *testing.T) {
	unsetEnv(t, "MISSING_KEY")
	if got := config.Get("MISSING_KEY", "fallback"); got != "fallback" {
		t.Errorf("got %q want %q", got, "fallback")
	}
}

func TestGetInt_ReturnsInt(t *testing.T) {
	setEnv(t, "SOME_INT", "42")
	if got := config.GetInt("SOME_INT", 0); got != 42 {
		t.Errorf("got %d want %d", got, 42)
	}
}

func TestGetInt_ReturnsFallbackOnInvalid(t *testing.T) {
	setEnv(t, "SOME_INT", "notanint")
	if got := config.GetInt("SOME_INT", 99); got != 99 {
		t.Errorf("got %d want %d", got, 99)
	}
}

func TestGetBool_True(t *testing.T) {
	for _, val := range []string{"true", "1", "True", "TRUE"} {
		setEnv(t, "BOOL_KEY", val)
		if !config.GetBool("BOOL_KEY", false) {
			t.Errorf("expected true for %q", val)
		}
	}
}

func TestGetBool_False(t *testing.T) {
	setEnv(t, "BOOL_KEY", "false")
	if config.GetBool("BOOL_KEY", true) {
		t.Error("expected false")
	}
}

func TestGetBool_ReturnsFallbackOnInvalid(t *testing.T) {
	setEnv(t, "BOOL_KEY", "notabool")
	if config.GetBool("BOOL_KEY", true) != true {
		t.Error("expected fallback true")
	}
}
