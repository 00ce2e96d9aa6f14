package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration.
type Config struct {
	General General `toml:"general"`
	Rate    Rate    `toml:"rate"`
	Images  Images  `toml:"images"`
	Store   Store   `toml:"store"`
	Log     Log     `toml:"log"`
	HTTP    HTTP    `toml:"http"`
}

type General struct {
	DefaultPlatform string `toml:"platform"`
	RespectRobots   bool   `toml:"respect_robots"`
	DelayProfile    string `toml:"delay_profile"` // "cautious", "normal", "aggressive", "none"
	Headless        bool   `toml:"headless"`      // enables the Ozon browser fallback
}

type Rate struct {
	RatePerSecond float64 `toml:"per_second"`
	RateBurst     int     `toml:"burst"`
	MaxConcurrent int     `toml:"max_concurrent"`
	MaxRetries    int     `toml:"max_retries"`
}

// Images tunes the resolution pipeline. Durations are TOML strings ("2s").
type Images struct {
	MaxCandidates     int      `toml:"max_candidates"`
	MaxHints          int      `toml:"max_hints"`
	ProbeTimeout      Duration `toml:"probe_timeout"`
	BatchSize         int      `toml:"batch_size"`
	MaxProbes         int      `toml:"max_probes"`
	DownloadTimeout   Duration `toml:"download_timeout"`
	DownloadAttempts  int      `toml:"download_attempts"`
	MaxDownloads      int      `toml:"max_downloads"`
	TopN              int      `toml:"top_n"`
	Budget            Duration `toml:"budget"`
	ResolveRetries    int      `toml:"resolve_retries"` // 0 disables top-level retries
	FallbackTimeout   Duration `toml:"fallback_timeout"`
	ValidationTTL     Duration `toml:"validation_ttl"`
	HintTTL           Duration `toml:"hint_ttl"`
	CDNConnsPerHost   int      `toml:"cdn_conns_per_host"`
	CacheJanitorEvery Duration `toml:"cache_janitor_every"`
}

type Store struct {
	Driver string `toml:"driver"` // "memory", "sqlite", "postgres"
	Path   string `toml:"path"`
	DSN    string `toml:"dsn"`
}

type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type HTTP struct {
	Port   string `toml:"port"`
	APIKey string `toml:"api_key"`
}

// Duration is a time.Duration read from a TOML string.
type Duration struct{ time.Duration }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		General: General{
			DefaultPlatform: "wildberries",
			RespectRobots:   true,
			DelayProfile:    "normal",
		},
		Rate: Rate{
			RatePerSecond: 2.0,
			RateBurst:     3,
			MaxConcurrent: 5,
			MaxRetries:    2,
		},
		Images: Images{
			MaxCandidates:     150,
			MaxHints:          2,
			ProbeTimeout:      Duration{2 * time.Second},
			BatchSize:         30,
			MaxProbes:         30,
			DownloadTimeout:   Duration{10 * time.Second},
			DownloadAttempts:  3,
			MaxDownloads:      5,
			TopN:              3,
			Budget:            Duration{15 * time.Second},
			ResolveRetries:    2,
			FallbackTimeout:   Duration{3 * time.Second},
			ValidationTTL:     Duration{2 * time.Hour},
			HintTTL:           Duration{time.Hour},
			CDNConnsPerHost:   30,
			CacheJanitorEvery: Duration{10 * time.Minute},
		},
		Store: Store{
			Driver: "sqlite",
			Path:   "data/catalog.db",
		},
		Log: Log{
			Level:  "info",
			Format: "console",
		},
		HTTP: HTTP{
			Port: "8080",
		},
	}
}

// Load builds the configuration from defaults, the TOML file at path (or
// KIDKAZZ_CONFIG), then .env and the environment. A missing file is not an
// error when path was not given explicitly.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	// Auto-load .env file; silently ignored if missing
	_ = godotenv.Load()

	explicit := path != ""
	if !explicit {
		path = os.Getenv("KIDKAZZ_CONFIG")
	}
	if path == "" {
		path = "kidkazz.toml"
	}
	if err := cfg.LoadFile(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || explicit {
			return nil, err
		}
	}

	cfg.LoadFromEnv()
	return cfg, nil
}

// LoadFile decodes the TOML file at path over c.
func (c *Config) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv overrides config from KIDKAZZ_* environment variables.
// Unparseable numbers are ignored.
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("KIDKAZZ_PLATFORM"); v != "" {
		c.General.DefaultPlatform = v
	}
	if v := os.Getenv("KIDKAZZ_DELAY_PROFILE"); v != "" {
		c.General.DelayProfile = v
	}
	if v := os.Getenv("KIDKAZZ_RESPECT_ROBOTS"); v == "false" {
		c.General.RespectRobots = false
	}
	if v := os.Getenv("KIDKAZZ_HEADLESS"); v == "true" {
		c.General.Headless = true
	}
	if v := os.Getenv("KIDKAZZ_RATE_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Rate.RatePerSecond = f
		}
	}
	envInt("KIDKAZZ_RATE_BURST", &c.Rate.RateBurst)
	envInt("KIDKAZZ_MAX_CONCURRENT", &c.Rate.MaxConcurrent)
	envInt("KIDKAZZ_MAX_CANDIDATES", &c.Images.MaxCandidates)
	envDuration("KIDKAZZ_IMAGE_BUDGET", &c.Images.Budget)
	envDuration("KIDKAZZ_PROBE_TIMEOUT", &c.Images.ProbeTimeout)

	if v := os.Getenv("KIDKAZZ_STORE"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("KIDKAZZ_DB_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("KIDKAZZ_DATABASE_URL"); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv("KIDKAZZ_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("KIDKAZZ_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.HTTP.Port = v
	}
	if v := os.Getenv("KIDKAZZ_API_KEY"); v != "" {
		c.HTTP.APIKey = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	switch c.General.DelayProfile {
	case "cautious", "normal", "aggressive", "none":
	default:
		return fmt.Errorf("general.delay_profile %q must be cautious, normal, aggressive or none", c.General.DelayProfile)
	}
	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if strings.TrimSpace(c.Store.Path) == "" {
			return errors.New("store.path is required for the sqlite driver")
		}
	case "postgres":
		if strings.TrimSpace(c.Store.DSN) == "" {
			return errors.New("store.dsn is required for the postgres driver (set KIDKAZZ_DATABASE_URL)")
		}
	default:
		return fmt.Errorf("store.driver %q must be memory, sqlite or postgres", c.Store.Driver)
	}

	positive := []struct {
		name  string
		value int
	}{
		{"rate.max_concurrent", c.Rate.MaxConcurrent},
		{"images.max_candidates", c.Images.MaxCandidates},
		{"images.batch_size", c.Images.BatchSize},
		{"images.max_probes", c.Images.MaxProbes},
		{"images.download_attempts", c.Images.DownloadAttempts},
		{"images.max_downloads", c.Images.MaxDownloads},
		{"images.top_n", c.Images.TopN},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}
	if c.Images.MaxHints < 0 || c.Images.ResolveRetries < 0 {
		return errors.New("images.max_hints and images.resolve_retries must not be negative")
	}

	timeouts := []struct {
		name  string
		value time.Duration
	}{
		{"images.probe_timeout", c.Images.ProbeTimeout.Duration},
		{"images.download_timeout", c.Images.DownloadTimeout.Duration},
		{"images.budget", c.Images.Budget.Duration},
		{"images.fallback_timeout", c.Images.FallbackTimeout.Duration},
		{"images.validation_ttl", c.Images.ValidationTTL.Duration},
		{"images.hint_ttl", c.Images.HintTTL.Duration},
		{"images.cache_janitor_every", c.Images.CacheJanitorEvery.Duration},
	}
	for _, tm := range timeouts {
		if tm.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", tm.name, tm.value)
		}
	}
	if c.Rate.RatePerSecond < 0 {
		return errors.New("rate.per_second must not be negative")
	}
	return nil
}
