package main

import (
	"os"
	"strconv"
	"strings"
	"time"
	"padelslots-backend/lib/browser"
	"padelslots-backend/lib/configutil"
	"padelslots-backend/lib/scrapers/eversports"
	"padelslots-backend/lib/telemetry"
	"padelslots-backend/services/slots"
)

const (
	environmentProduction  = "production"
	environmentDevelopment = "development"
)

var developmentOrigins = []string{"http://localhost:4200", "http://localhost:8080"}
var productionOrigins = []string{"https://padel.pokebot.at"}

type CacheConfig struct {
	TtlMs int `json:"ttl_ms"`
	Size  int `json:"size"`
}

type FetchConfig struct {
	TimeoutSeconds int `json:"timeout_seconds"`
}

type UpstreamConfig struct {
	BaseUrl    string   `json:"base_url"`
	FacilityId string   `json:"facility_id"`
	Courts     []string `json:"courts"`
	UserAgent  string   `json:"user_agent"`
}

type BrowserConfig struct {
	// Backend is either "rod" (headless chrome) or "http".
	Backend    string `json:"backend"`
	Bin        string `json:"bin"`
	ControlUrl string `json:"control_url"`
	Headless   *bool  `json:"headless"`
}

type Config struct {
	Port           int                 `json:"port"`
	Environment    string              `json:"environment"`
	AllowedOrigins []string            `json:"allowed_origins"`
	Cache          CacheConfig         `json:"cache"`
	Fetch          FetchConfig         `json:"fetch"`
	Upstream       UpstreamConfig      `json:"upstream"`
	Browser        BrowserConfig       `json:"browser"`
	Log            telemetry.LogConfig `json:"log"`
}

func defaultConfig() Config {
	return Config{
		Port:        3000,
		Environment: environmentDevelopment,
		Cache: CacheConfig{
			TtlMs: int(slots.DefaultTTL / time.Millisecond),
			Size:  slots.DefaultCacheSize,
		},
		Fetch: FetchConfig{
			TimeoutSeconds: int(slots.DefaultFetchTimeout / time.Second),
		},
		Upstream: UpstreamConfig{
			BaseUrl:    eversports.DefaultBaseUrl,
			FacilityId: eversports.DefaultFacilityId,
			Courts:     eversports.DefaultCourts,
			UserAgent:  eversports.DefaultUserAgent,
		},
		Browser: BrowserConfig{Backend: "rod"},
	}
}

type lookupEnv func(key string) (string, bool)

func lookup(env lookupEnv, key string) (string, bool) {
	value, ok := env(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

// applyEnv overrides cfg with the environment and fills in the origin
// allow-list for the environment when none is configured.
func applyEnv(cfg Config, env lookupEnv) (Config, error) {
	if value, ok := lookup(env, "PORT"); ok {
		port, err := strconv.Atoi(value)
		if err != nil {
			return cfg, err
		}
		cfg.Port = port
	}
	// NODE_ENV is still read so existing deployment env files keep working.
	if value, ok := lookup(env, "APP_ENV"); ok {
		cfg.Environment = value
	} else if value, ok := lookup(env, "NODE_ENV"); ok {
		cfg.Environment = value
	}
	if value, ok := lookup(env, "ALLOWED_ORIGIN"); ok {
		cfg.AllowedOrigins = nil
		for _, origin := range strings.Split(value, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
			}
		}
	}
	if value, ok := lookup(env, "CHROME_BIN"); ok {
		cfg.Browser.Bin = value
	}
	if value, ok := lookup(env, "BROWSER_CONTROL_URL"); ok {
		cfg.Browser.ControlUrl = value
	}

	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = developmentOrigins
		if cfg.Environment == environmentProduction {
			cfg.AllowedOrigins = productionOrigins
		}
	}
	return cfg, nil
}

func readConfig(path string) (Config, error) {
	cfg, err := configutil.ReadConfigOr(path, defaultConfig())
	if err != nil {
		return Config{}, err
	}
	return applyEnv(cfg, os.LookupEnv)
}

func (c Config) launcher() browser.Launcher {
	if c.Browser.Backend == "http" {
		return browser.HttpLauncher{Timeout: time.Duration(c.Fetch.TimeoutSeconds) * time.Second}
	}
	headless := true
	if c.Browser.Headless != nil {
		headless = *c.Browser.Headless
	}
	return browser.NewRodLauncher(browser.RodOptions{
		Bin:        c.Browser.Bin,
		ControlUrl: c.Browser.ControlUrl,
		Headless:   headless,
	})
}

func (c Config) coordinatorOptions() slots.Options {
	return slots.Options{
		Launcher: c.launcher(),
		Endpoint: eversports.Endpoint{
			BaseUrl:    c.Upstream.BaseUrl,
			FacilityId: c.Upstream.FacilityId,
			Courts:     c.Upstream.Courts,
		},
		UserAgent:    c.Upstream.UserAgent,
		TTL:          time.Duration(c.Cache.TtlMs) * time.Millisecond,
		FetchTimeout: time.Duration(c.Fetch.TimeoutSeconds) * time.Second,
		CacheSize:    c.Cache.Size,
	}
}
