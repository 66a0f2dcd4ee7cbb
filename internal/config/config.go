package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Census   CensusConfig   `yaml:"census" mapstructure:"census"`
	Google   GoogleConfig   `yaml:"google" mapstructure:"google"`
	Reviews  ReviewsConfig  `yaml:"reviews" mapstructure:"reviews"`
	Cost     CostConfig     `yaml:"cost" mapstructure:"cost"`
	Business BusinessConfig `yaml:"business" mapstructure:"business"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// CensusConfig configures the free US Census geocoding tier.
type CensusConfig struct {
	RateLimit     int `yaml:"rate_limit" mapstructure:"rate_limit"`
	CacheTTLHours int `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// GoogleConfig holds credentials shared by the paid geocoding tier and the
// review upstream.
type GoogleConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	RateLimit int    `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ReviewsConfig configures review aggregation and pagination.
type ReviewsConfig struct {
	PageSize      int `yaml:"page_size" mapstructure:"page_size"`
	MaxPageSize   int `yaml:"max_page_size" mapstructure:"max_page_size"`
	CacheTTLHours int `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// CostConfig configures route-distance cost estimation. Bands are ordered
// by MaxKm; a zero MaxKm marks the open-ended final band.
type CostConfig struct {
	Currency string     `yaml:"currency" mapstructure:"currency"`
	Bands    []CostBand `yaml:"bands" mapstructure:"bands"`
}

// CostBand is one pricing tier.
type CostBand struct {
	MaxKm float64 `yaml:"max_km" mapstructure:"max_km"`
	Cost  float64 `yaml:"cost" mapstructure:"cost"`
}

// BusinessConfig holds OAuth client settings for the business-profile flow.
type BusinessConfig struct {
	ClientID     string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string `yaml:"client_secret" mapstructure:"client_secret"`
	RedirectURL  string `yaml:"redirect_url" mapstructure:"redirect_url"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PLACEGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("census.rate_limit", 50)
	v.SetDefault("census.cache_ttl_hours", 24)
	v.SetDefault("google.rate_limit", 10)
	v.SetDefault("reviews.page_size", 5)
	v.SetDefault("reviews.max_page_size", 20)
	v.SetDefault("reviews.cache_ttl_hours", 1)
	v.SetDefault("cost.currency", "USD")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields a given run mode requires. Modes: "serve"
// (HTTP API, needs a listen port and sane page sizes), "geocode" (nothing
// mandatory; the free tier works without credentials), "reviews" (needs the
// Google key), "business" (needs the OAuth client).
func (c *Config) Validate(mode string) error {
	var missing []string

	checkCommon := func() {
		if c.Reviews.PageSize < 1 || c.Reviews.PageSize > c.Reviews.MaxPageSize {
			missing = append(missing, "reviews.page_size must be between 1 and reviews.max_page_size")
		}
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
		checkCommon()
	case "geocode":
		// The Census tier needs no key; the Google tier degrades to
		// unavailable without one.
	case "reviews":
		if c.Google.Key == "" {
			missing = append(missing, "google.key is required")
		}
		checkCommon()
	case "business":
		if c.Business.ClientID == "" {
			missing = append(missing, "business.client_id is required")
		}
		if c.Business.ClientSecret == "" {
			missing = append(missing, "business.client_secret is required")
		}
		if c.Business.RedirectURL == "" {
			missing = append(missing, "business.redirect_url is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.New("config: " + strings.Join(missing, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
