package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts "30s" / "1h30m" strings in YAML, or a bare number of
// seconds.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		dur, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(dur)
		return nil
	}
	var secs int64
	if err := value.Decode(&secs); err != nil {
		return err
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

// Config holds the full service configuration, loaded once at startup and
// read-only afterwards.
type Config struct {
	Server struct {
		Host    string `yaml:"host"`
		Port    string `yaml:"port"`
		Prefork bool   `yaml:"prefork"`
	} `yaml:"server"`

	Logger struct {
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
		Level      string `yaml:"level"`
	} `yaml:"logger"`

	Engine struct {
		ChromePath      string `yaml:"chrome_path"`
		ChromeNoSandbox bool   `yaml:"chrome_no_sandbox"`
		TimeoutSecs     int    `yaml:"timeout_secs"`
		// IdleWindowMS is how long the page must stay free of in-flight
		// network requests before it counts as settled.
		IdleWindowMS  int    `yaml:"idle_window_ms"`
		DefaultFormat string `yaml:"default_format"`
		DefaultMargin string `yaml:"default_margin"`
	} `yaml:"engine"`

	Cache struct {
		RedisHost       string        `yaml:"redis_host"`
		PDFCacheDB      int           `yaml:"pdf_cache_db"`
		RateLimitDB     int           `yaml:"rate_limit_db"`
		PDFCacheEnabled bool     `yaml:"pdf_cache_enabled"`
		PDFCacheTTL     Duration `yaml:"pdf_cache_ttl"`
	} `yaml:"cache"`

	RateLimiter struct {
		Interval          Duration `yaml:"interval"`
		UserLimit         int      `yaml:"user_limit"`
		EnableUserLimiter bool     `yaml:"enable_user_limiter"`
	} `yaml:"rate_limiter"`

	Auth struct {
		Postgres PostgresConfig `yaml:"postgres"`
	} `yaml:"auth"`

	Limits struct {
		MaxHTMLBytes int `yaml:"max_html_bytes"`
		MaxPDFBytes  int `yaml:"max_pdf_bytes"`
	} `yaml:"limits"`
}

// PostgresConfig describes the optional API-token database. Auth is disabled
// when Host is empty.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// Load reads the configuration from the path given in CONFIG_PATH, falling
// back to ./config.yaml. A missing file yields the built-in defaults.
func Load() Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	return LoadFrom(path)
}

// LoadFrom reads the configuration from the given YAML file. Unset fields are
// filled with defaults; a missing file is not an error.
func LoadFrom(path string) Config {
	var cfg Config
	if data, err := os.ReadFile(path); err == nil {
		_ = yaml.Unmarshal(data, &cfg)
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8000"
	}
	if cfg.Logger.File == "" {
		cfg.Logger.File = "logs.log"
	}
	if cfg.Logger.MaxSizeMB == 0 {
		cfg.Logger.MaxSizeMB = 50
	}
	if cfg.Logger.MaxBackups == 0 {
		cfg.Logger.MaxBackups = 3
	}
	if cfg.Logger.MaxAgeDays == 0 {
		cfg.Logger.MaxAgeDays = 14
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Engine.TimeoutSecs <= 0 {
		cfg.Engine.TimeoutSecs = 60
	}
	if cfg.Engine.IdleWindowMS <= 0 {
		cfg.Engine.IdleWindowMS = 500
	}
	if cfg.Engine.DefaultFormat == "" {
		cfg.Engine.DefaultFormat = "A4"
	}
	if cfg.Engine.DefaultMargin == "" {
		cfg.Engine.DefaultMargin = "1cm"
	}
	if cfg.Cache.PDFCacheTTL <= 0 {
		cfg.Cache.PDFCacheTTL = Duration(24 * time.Hour)
	}
	if cfg.RateLimiter.Interval <= 0 {
		cfg.RateLimiter.Interval = Duration(time.Minute)
	}
	if cfg.Limits.MaxHTMLBytes <= 0 {
		cfg.Limits.MaxHTMLBytes = 2 * 1024 * 1024
	}
	if cfg.Limits.MaxPDFBytes <= 0 {
		cfg.Limits.MaxPDFBytes = 50 * 1024 * 1024
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CHROME_BIN"); v != "" && cfg.Engine.ChromePath == "" {
		cfg.Engine.ChromePath = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Logger.File = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
}
