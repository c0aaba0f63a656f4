package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	"padelslots-backend/lib/browser"
	"padelslots-backend/lib/configutil"
	"padelslots-backend/lib/scrapers/eversports"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func envFrom(values map[string]string) lookupEnv {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func TestApplyEnvDefaults(t *testing.T) {
	cfg, err := applyEnv(defaultConfig(), envFrom(nil))
	require.NoError(t, err)
	require.Equal(t, 3000, cfg.Port)
	require.Equal(t, developmentOrigins, cfg.AllowedOrigins)

	opts := cfg.coordinatorOptions()
	require.Equal(t, time.Second*10, opts.TTL)
	require.Equal(t, time.Second*45, opts.FetchTimeout)
	require.Equal(t, eversports.DefaultUserAgent, opts.UserAgent)
	require.Equal(t, eversports.DefaultEndpoint(), opts.Endpoint)
	require.IsType(t, browser.RodLauncher{}, opts.Launcher)
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg, err := applyEnv(defaultConfig(), envFrom(map[string]string{
		"PORT":                "8080",
		"APP_ENV":             "production",
		"ALLOWED_ORIGIN":      " https://a.example ,https://b.example,",
		"CHROME_BIN":          "/usr/bin/chromium",
		"BROWSER_CONTROL_URL": " ",
	}))
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, "production", cfg.Environment)
	require.Equal(t, "/usr/bin/chromium", cfg.Browser.Bin)
	require.Empty(t, cfg.Browser.ControlUrl)

	diff := cmp.Diff([]string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	if diff != "" {
		t.Fatal(diff)
	}
}

func TestApplyEnvProductionOrigins(t *testing.T) {
	cfg, err := applyEnv(defaultConfig(), envFrom(map[string]string{
		"APP_ENV": "production",
	}))
	require.NoError(t, err)
	require.Equal(t, productionOrigins, cfg.AllowedOrigins)
}

func TestApplyEnvNodeEnvFallback(t *testing.T) {
	cfg, err := applyEnv(defaultConfig(), envFrom(map[string]string{
		"NODE_ENV": "production",
	}))
	require.NoError(t, err)
	require.Equal(t, "production", cfg.Environment)
	require.Equal(t, productionOrigins, cfg.AllowedOrigins)

	cfg, err = applyEnv(defaultConfig(), envFrom(map[string]string{
		"APP_ENV":  "development",
		"NODE_ENV": "production",
	}))
	require.NoError(t, err)
	require.Equal(t, developmentOrigins, cfg.AllowedOrigins)
}

func TestApplyEnvInvalidPort(t *testing.T) {
	_, err := applyEnv(defaultConfig(), envFrom(map[string]string{
		"PORT": "http",
	}))
	require.Error(t, err)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")
	err := os.WriteFile(path, []byte(`{
		// overrides only what is set
		port: 4000,
		cache: { ttl_ms: 2500 },
		browser: { backend: "http" },
	}`), 0600)
	require.NoError(t, err)

	cfg, err := configutil.ReadConfigOr(path, defaultConfig())
	require.NoError(t, err)
	cfg, err = applyEnv(cfg, envFrom(nil))
	require.NoError(t, err)

	require.Equal(t, 4000, cfg.Port)
	require.Equal(t, 1024, cfg.Cache.Size)

	opts := cfg.coordinatorOptions()
	require.Equal(t, time.Millisecond*2500, opts.TTL)
	require.IsType(t, browser.HttpLauncher{}, opts.Launcher)
}
