package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultAPIURL       = "http://localhost:8000/api"
	defaultPollInterval = 5 * time.Second
	defaultPollTimeout  = 30 * time.Minute
	defaultHTTPTimeout  = 15 * time.Second
	defaultRateLimit    = 2.0
	defaultRateBurst    = 5
)

type Config struct {
	AppEnv       string        `yaml:"app_env"`
	APIURL       string        `yaml:"api_url"`
	APIToken     string        `yaml:"api_token"`
	APITokenFile string        `yaml:"api_token_file"`
	PollInterval time.Duration `yaml:"poll_interval"`
	PollTimeout  time.Duration `yaml:"poll_timeout"`
	HTTPTimeout  time.Duration `yaml:"http_timeout"`
	RateLimit    float64       `yaml:"rate_limit"`
	RateBurst    int           `yaml:"rate_burst"`
	MetricsAddr  string        `yaml:"metrics_addr"`

	DBHost     string `yaml:"db_host"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`
	DBName     string `yaml:"db_name"`
	DBPort     string `yaml:"db_port"`
}

// LogRepositoryEnabled reports whether payment logs should be written to Postgres.
func (c *Config) LogRepositoryEnabled() bool {
	return c.DBHost != ""
}

// LoadConfig reads .env (if present), then the YAML file named by
// PAYWATCH_CONFIG (if set), then environment variables. Later sources win.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		APIURL:       defaultAPIURL,
		PollInterval: defaultPollInterval,
		PollTimeout:  defaultPollTimeout,
		HTTPTimeout:  defaultHTTPTimeout,
		RateLimit:    defaultRateLimit,
		RateBurst:    defaultRateBurst,
	}

	if path := os.Getenv("PAYWATCH_CONFIG"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	setString(&cfg.AppEnv, "APP_ENV")
	setString(&cfg.APIURL, "API_URL")
	setString(&cfg.APIToken, "API_TOKEN")
	setString(&cfg.APITokenFile, "API_TOKEN_FILE")
	setString(&cfg.MetricsAddr, "METRICS_ADDR")
	setString(&cfg.DBHost, "DB_HOST")
	setString(&cfg.DBUser, "DB_USER")
	setString(&cfg.DBPassword, "DB_PASSWORD")
	setString(&cfg.DBName, "DB_NAME")
	setString(&cfg.DBPort, "DB_PORT")

	if err := setDuration(&cfg.PollInterval, "PAYWATCH_POLL_INTERVAL"); err != nil {
		return nil, err
	}
	if err := setDuration(&cfg.PollTimeout, "PAYWATCH_POLL_TIMEOUT"); err != nil {
		return nil, err
	}
	if err := setDuration(&cfg.HTTPTimeout, "PAYWATCH_HTTP_TIMEOUT"); err != nil {
		return nil, err
	}

	if v := os.Getenv("PAYWATCH_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid PAYWATCH_RATE_LIMIT %q: %w", v, err)
		}
		cfg.RateLimit = f
	}
	if v := os.Getenv("PAYWATCH_RATE_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid PAYWATCH_RATE_BURST %q: %w", v, err)
		}
		cfg.RateBurst = n
	}

	if cfg.APIURL == "" {
		return nil, fmt.Errorf("API_URL must not be empty")
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = d
	return nil
}
