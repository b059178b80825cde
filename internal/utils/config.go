package utils

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PaperSize describes a paper format in inches, as expected by Chrome's
// PrintToPDF.
type PaperSize struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// PostgresConfig holds connection settings for the API token store.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// Config is the process-wide configuration, loaded once at startup.
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

	Cache struct {
		RedisHost       string        `yaml:"redis_host"`
		PDFCacheDB      int           `yaml:"pdf_cache_db"`
		RateLimitDB     int           `yaml:"rate_limit_db"`
		PDFCacheEnabled bool          `yaml:"pdf_cache_enabled"`
		PDFCacheTTL     time.Duration `yaml:"pdf_cache_ttl"`
	} `yaml:"cache"`

	PDF struct {
		ChromePath      string               `yaml:"chrome_path"`
		ChromeNoSandbox bool                 `yaml:"chrome_no_sandbox"`
		ChromePoolSize  int                  `yaml:"chrome_pool_size"`
		UserDataDir     string               `yaml:"user_data_dir"`
		TimeoutSecs     int                  `yaml:"timeout_secs"`
		DefaultPaper    string               `yaml:"default_paper"`
		PaperSizes      map[string]PaperSize `yaml:"paper_sizes"`
		Margin          float64              `yaml:"margin"`
	} `yaml:"pdf"`

	Images struct {
		FetchTimeoutSecs int    `yaml:"fetch_timeout_secs"`
		MaxFetchBytes    int    `yaml:"max_fetch_bytes"`
		MaxDimensionPx   int    `yaml:"max_dimension_px"`
		RemoveBackground bool   `yaml:"remove_background"`
		SegmentationURL  string `yaml:"segmentation_url"`
		SegmentationSecs int    `yaml:"segmentation_timeout_secs"`
	} `yaml:"images"`

	SMTP struct {
		Host        string `yaml:"host"`
		Port        int    `yaml:"port"`
		Account     string `yaml:"account"`
		AppPassword string `yaml:"app_password"`
	} `yaml:"smtp"`

	RateLimiter struct {
		Interval          time.Duration `yaml:"interval"`
		UserLimit         int           `yaml:"user_limit"`
		EnableUserLimiter bool          `yaml:"enable_user_limiter"`
	} `yaml:"rate_limiter"`

	Limits struct {
		MaxItems    int `yaml:"max_items"`
		MaxPDFBytes int `yaml:"max_pdf_bytes"`
	} `yaml:"limits"`

	Auth struct {
		Postgres PostgresConfig `yaml:"postgres"`
	} `yaml:"auth"`
}

// AppConfig holds the last configuration loaded by LoadConfig. Tests mutate it
// directly where needed.
var AppConfig Config

// LoadConfig reads the YAML config file (CONFIG_PATH, falling back to
// ./config.yaml) and fills in defaults for anything left unset. A missing file
// is not an error; the defaults describe a working local setup minus
// credentials.
func LoadConfig() Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}

	var cfg Config
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			panic("invalid config file " + path + ": " + err.Error())
		}
	}

	applyDefaults(&cfg)
	AppConfig = cfg
	return cfg
}

// GetConfig returns the configuration loaded by the last LoadConfig call.
func GetConfig() Config {
	return AppConfig
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Cache.RedisHost == "" {
		cfg.Cache.RedisHost = "localhost:6379"
	}
	if cfg.Cache.PDFCacheTTL <= 0 {
		cfg.Cache.PDFCacheTTL = 24 * time.Hour
	}
	if cfg.PDF.TimeoutSecs <= 0 {
		cfg.PDF.TimeoutSecs = 60
	}
	if cfg.PDF.DefaultPaper == "" {
		cfg.PDF.DefaultPaper = "A4"
	}
	if cfg.PDF.PaperSizes == nil {
		cfg.PDF.PaperSizes = map[string]PaperSize{
			"A4":     {Width: 8.27, Height: 11.69},
			"LETTER": {Width: 8.5, Height: 11},
		}
	}
	if cfg.PDF.Margin <= 0 {
		cfg.PDF.Margin = 0.4
	}
	if cfg.Images.FetchTimeoutSecs <= 0 {
		cfg.Images.FetchTimeoutSecs = 3
	}
	if cfg.Images.MaxFetchBytes <= 0 {
		cfg.Images.MaxFetchBytes = 10 * 1024 * 1024
	}
	if cfg.Images.MaxDimensionPx <= 0 {
		cfg.Images.MaxDimensionPx = 400
	}
	if cfg.Images.SegmentationSecs <= 0 {
		cfg.Images.SegmentationSecs = 10
	}
	if cfg.SMTP.Host == "" {
		cfg.SMTP.Host = "smtp.gmail.com"
	}
	if cfg.SMTP.Port <= 0 {
		cfg.SMTP.Port = 587
	}
	if cfg.RateLimiter.Interval <= 0 {
		cfg.RateLimiter.Interval = time.Minute
	}
	if cfg.Limits.MaxItems <= 0 {
		cfg.Limits.MaxItems = 100
	}
	if cfg.Limits.MaxPDFBytes <= 0 {
		cfg.Limits.MaxPDFBytes = 25 * 1024 * 1024
	}
}
