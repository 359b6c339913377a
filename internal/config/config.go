package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML, .env and the environment.
type Config struct {
	TestingMode bool

	ServerPort string `validate:"required,numeric"`

	WeatherAPIKey     string        `validate:"required,min=10"`
	WeatherAPIBaseURL string        `validate:"required,url"`
	GeocodingURL      string        `validate:"required,url"`
	WeatherAPITimeout time.Duration `validate:"gt=0"`

	RequestTimeout time.Duration `validate:"gt=0"`

	CacheBackend string        `validate:"oneof=in_memory memcached redis mongo sqlite"`
	CacheTTL     time.Duration `validate:"gt=0"`

	MemcachedAddrs        string        `validate:"required_if=CacheBackend memcached"`
	MemcachedTimeout      time.Duration `validate:"gt=0"`
	MemcachedMaxIdleConns int           `validate:"gte=1"`

	RedisAddr     string `validate:"required_if=CacheBackend redis"`
	RedisPassword string
	RedisDB       int `validate:"gte=0"`

	MongoURI        string `validate:"required_if=CacheBackend mongo"`
	MongoDatabase   string `validate:"required_if=CacheBackend mongo"`
	MongoCollection string `validate:"required_if=CacheBackend mongo"`

	SQLitePath string `validate:"required_if=CacheBackend sqlite"`

	BreakerEnabled          bool
	BreakerFailureThreshold uint32        `validate:"required_if=BreakerEnabled true"`
	BreakerTimeout          time.Duration `validate:"gte=0"`

	RateLimitRPS   int `validate:"gte=0"`
	RateLimitBurst int `validate:"gte=0"`

	ComparisonConcurrency int `validate:"gte=1,lte=64"`
	MaxCompareLocations   int `validate:"gte=1"`

	WarmingEnabled   bool
	WarmingInterval  time.Duration `validate:"gt=0"`
	WarmingLocations []string      `validate:"dive,required"`

	ShutdownTimeout time.Duration `validate:"gt=0"`

	DegradedWindow   time.Duration `validate:"gt=0"`
	DegradedErrorPct int           `validate:"gte=0,lte=100"`
}

type fileConfig struct {
	TestingMode *bool `yaml:"testing_mode"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		BaseURL      string `yaml:"base_url"`
		GeocodingURL string `yaml:"geocoding_url"`
		Timeout      string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Redis struct {
			Addr string `yaml:"addr"`
			DB   int    `yaml:"db"`
		} `yaml:"redis"`
		Mongo struct {
			URI        string `yaml:"uri"`
			Database   string `yaml:"database"`
			Collection string `yaml:"collection"`
		} `yaml:"mongo"`
		SQLite struct {
			Path string `yaml:"path"`
		} `yaml:"sqlite"`
	} `yaml:"cache"`

	Breaker struct {
		Enabled          *bool  `yaml:"enabled"`
		FailureThreshold uint32 `yaml:"failure_threshold"`
		Timeout          string `yaml:"timeout"`
	} `yaml:"breaker"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Comparison struct {
		Concurrency  int `yaml:"concurrency"`
		MaxLocations int `yaml:"max_locations"`
	} `yaml:"comparison"`

	Warming struct {
		Enabled   bool     `yaml:"enabled"`
		Interval  string   `yaml:"interval"`
		Locations []string `yaml:"locations"`
	} `yaml:"warming"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Health struct {
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
	RedisPassword string `yaml:"redis_password"`
	MongoURI      string `yaml:"mongo_uri"`
}

// envOverrides are read from the process environment after .env is applied. Set values
// win over the YAML files.
type envOverrides struct {
	WeatherAPIKey  string `envconfig:"WEATHER_API_KEY"`
	ServerPort     string `envconfig:"SERVER_PORT"`
	CacheBackend   string `envconfig:"CACHE_BACKEND"`
	MemcachedAddrs string `envconfig:"MEMCACHED_ADDRS"`
	RedisAddr      string `envconfig:"REDIS_ADDR"`
	RedisPassword  string `envconfig:"REDIS_PASSWORD"`
	MongoURI       string `envconfig:"MONGO_URI"`
	SQLitePath     string `envconfig:"SQLITE_PATH"`
	TestingMode    *bool  `envconfig:"TESTING_MODE"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml
// under the working directory. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFrom(cwd)
}

// LoadFrom is Load rooted at dir. A .env file in dir is applied to the environment first;
// it never replaces variables that are already set.
func LoadFrom(dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read .env file: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	configPath := filepath.Join(dir, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	var sec secretsFile
	secretsData, err := os.ReadFile(filepath.Join(dir, "config", "secrets.yaml"))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read secrets file: %w", err)
		}
	} else if err := yaml.Unmarshal(secretsData, &sec); err != nil {
		return nil, fmt.Errorf("parse secrets file: %w", err)
	}

	var ov envOverrides
	if err := envconfig.Process("", &ov); err != nil {
		return nil, fmt.Errorf("read environment overrides: %w", err)
	}

	cfg := fromFile(fc, sec)
	applyOverrides(cfg, ov)

	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env or config/secrets.yaml weather_api_key)")
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromFile(fc fileConfig, sec secretsFile) *Config {
	cfg := &Config{}
	if fc.TestingMode != nil {
		cfg.TestingMode = *fc.TestingMode
	}

	cfg.ServerPort = orDefault(fc.Server.Port, "8080")

	cfg.WeatherAPIKey = sec.WeatherAPIKey
	cfg.WeatherAPIBaseURL = orDefault(fc.WeatherAPI.BaseURL, "https://api.openweathermap.org/data/2.5/")
	cfg.GeocodingURL = orDefault(fc.WeatherAPI.GeocodingURL, "https://api.openweathermap.org/geo/1.0/direct")
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 5*time.Second)
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 3*time.Hour)

	cfg.MemcachedAddrs = orDefault(fc.Cache.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.RedisAddr = orDefault(fc.Cache.Redis.Addr, "localhost:6379")
	cfg.RedisDB = fc.Cache.Redis.DB
	cfg.RedisPassword = sec.RedisPassword

	cfg.MongoURI = orDefault(sec.MongoURI, fc.Cache.Mongo.URI)
	cfg.MongoDatabase = orDefault(fc.Cache.Mongo.Database, "event_planner")
	cfg.MongoCollection = orDefault(fc.Cache.Mongo.Collection, "weather_cache")

	cfg.SQLitePath = orDefault(fc.Cache.SQLite.Path, "weather_cache.db")

	cfg.BreakerEnabled = true
	if fc.Breaker.Enabled != nil {
		cfg.BreakerEnabled = *fc.Breaker.Enabled
	}
	cfg.BreakerFailureThreshold = fc.Breaker.FailureThreshold
	if cfg.BreakerFailureThreshold == 0 {
		cfg.BreakerFailureThreshold = 5
	}
	cfg.BreakerTimeout = parseDuration(fc.Breaker.Timeout, 30*time.Second)

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}

	cfg.ComparisonConcurrency = fc.Comparison.Concurrency
	if cfg.ComparisonConcurrency <= 0 {
		cfg.ComparisonConcurrency = 4
	}
	cfg.MaxCompareLocations = fc.Comparison.MaxLocations
	if cfg.MaxCompareLocations <= 0 {
		cfg.MaxCompareLocations = 20
	}

	cfg.WarmingEnabled = fc.Warming.Enabled
	cfg.WarmingInterval = parseDuration(fc.Warming.Interval, time.Hour)
	cfg.WarmingLocations = fc.Warming.Locations

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}
	return cfg
}

func applyOverrides(cfg *Config, ov envOverrides) {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&cfg.WeatherAPIKey, ov.WeatherAPIKey)
	set(&cfg.ServerPort, ov.ServerPort)
	set(&cfg.CacheBackend, strings.ToLower(ov.CacheBackend))
	set(&cfg.MemcachedAddrs, ov.MemcachedAddrs)
	set(&cfg.RedisAddr, ov.RedisAddr)
	set(&cfg.RedisPassword, ov.RedisPassword)
	set(&cfg.MongoURI, ov.MongoURI)
	set(&cfg.SQLitePath, ov.SQLitePath)
	if ov.TestingMode != nil {
		cfg.TestingMode = *ov.TestingMode
	}
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero or negative durations are returned as-is so validate can reject them.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

var structValidator = validator.New()

// validate checks struct constraints, then cross-field rules. RequestTimeout is raised to
// exceed WeatherAPITimeout when it does not already.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if err := structValidator.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Field(), fe.Tag(), redact(fe)))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	return nil
}

func redact(fe validator.FieldError) any {
	switch fe.Field() {
	case "WeatherAPIKey", "RedisPassword", "MongoURI":
		return "<redacted>"
	}
	return fe.Value()
}
