package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/xtrntr/energytrade/internal/logging"
	"github.com/xtrntr/energytrade/internal/tokenstore"
)

// Config holds every setting of the client and the local simulator.
// Precedence: defaults, then the YAML file, then ENERGY_* environment
// variables (including those loaded from a .env file).
type Config struct {
	API        APIConfig         `yaml:"api"`
	Session    SessionConfig     `yaml:"session"`
	TokenStore tokenstore.Config `yaml:"token_store"`
	Log        LogConfig         `yaml:"log"`
	Metrics    MetricsConfig     `yaml:"metrics"`
	Sim        SimConfig         `yaml:"sim"`
}

type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type SessionConfig struct {
	RevalidateInterval time.Duration `yaml:"revalidate_interval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// SimConfig configures the local exchange simulator
type SimConfig struct {
	Addr           string        `yaml:"addr"`
	JWTSecret      string        `yaml:"jwt_secret"`
	TokenTTL       time.Duration `yaml:"token_ttl"`
	StartingMoney  float64       `yaml:"starting_money_eur"`
	StartingEnergy float64       `yaml:"starting_energy_mwh"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL: "http://localhost:8080",
			Timeout: 10 * time.Second,
		},
		Session: SessionConfig{
			RevalidateInterval: time.Minute,
		},
		TokenStore: tokenstore.Config{
			Driver: tokenstore.DriverFile,
			Key:    "default",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Addr: ":9464",
		},
		Sim: SimConfig{
			Addr:           ":8080",
			JWTSecret:      "change-this-secret",
			TokenTTL:       24 * time.Hour,
			StartingMoney:  10000,
			StartingEnergy: 100,
			AllowedOrigins: []string{"http://localhost:3000"},
		},
	}
}

// Load builds the configuration. path is an optional YAML file; envFile is
// an optional dotenv file whose variables never override the process env.
// Missing optional files are not an error.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid api base url: %q", c.API.BaseURL)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api timeout must be positive")
	}
	if c.Session.RevalidateInterval <= 0 {
		return fmt.Errorf("session revalidate interval must be positive")
	}

	switch strings.ToLower(c.TokenStore.Driver) {
	case "", tokenstore.DriverFile, tokenstore.DriverMemory, tokenstore.DriverSQLite:
	case tokenstore.DriverRedis:
		if c.TokenStore.RedisAddr == "" {
			return fmt.Errorf("token store driver redis needs redis_addr")
		}
	case tokenstore.DriverPostgres:
		if c.TokenStore.PostgresURL == "" {
			return fmt.Errorf("token store driver postgres needs postgres_url")
		}
	default:
		return fmt.Errorf("unknown token store driver %q", c.TokenStore.Driver)
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}

	if c.Sim.StartingMoney < 0 || c.Sim.StartingEnergy < 0 {
		return fmt.Errorf("simulator starting balances must not be negative")
	}
	if c.Sim.JWTSecret == "" {
		return fmt.Errorf("simulator jwt secret must not be empty")
	}
	return nil
}

func overrideWithEnv(cfg *Config) {
	cfg.API.BaseURL = getEnv("ENERGY_API_URL", cfg.API.BaseURL)
	cfg.API.Timeout = getDuration("ENERGY_API_TIMEOUT", cfg.API.Timeout)
	cfg.Session.RevalidateInterval = getDuration("ENERGY_REVALIDATE_INTERVAL", cfg.Session.RevalidateInterval)

	cfg.TokenStore.Driver = getEnv("ENERGY_TOKEN_STORE", cfg.TokenStore.Driver)
	cfg.TokenStore.Path = getEnv("ENERGY_TOKEN_PATH", cfg.TokenStore.Path)
	cfg.TokenStore.Key = getEnv("ENERGY_TOKEN_KEY", cfg.TokenStore.Key)
	cfg.TokenStore.RedisAddr = getEnv("ENERGY_REDIS_ADDR", cfg.TokenStore.RedisAddr)
	cfg.TokenStore.RedisPassword = getEnv("ENERGY_REDIS_PASSWORD", cfg.TokenStore.RedisPassword)
	cfg.TokenStore.RedisDB = getInt("ENERGY_REDIS_DB", cfg.TokenStore.RedisDB)
	cfg.TokenStore.RedisTTL = getDuration("ENERGY_REDIS_TTL", cfg.TokenStore.RedisTTL)
	cfg.TokenStore.PostgresURL = getEnv("ENERGY_POSTGRES_URL", cfg.TokenStore.PostgresURL)

	cfg.Log.Level = getEnv("ENERGY_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("ENERGY_LOG_FORMAT", cfg.Log.Format)
	cfg.Metrics.Addr = getEnv("ENERGY_METRICS_ADDR", cfg.Metrics.Addr)

	cfg.Sim.Addr = getEnv("ENERGY_SIM_ADDR", cfg.Sim.Addr)
	cfg.Sim.JWTSecret = getEnv("ENERGY_SIM_JWT_SECRET", cfg.Sim.JWTSecret)
	cfg.Sim.TokenTTL = getDuration("ENERGY_SIM_TOKEN_TTL", cfg.Sim.TokenTTL)
	cfg.Sim.StartingMoney = getFloat("ENERGY_SIM_STARTING_MONEY", cfg.Sim.StartingMoney)
	cfg.Sim.StartingEnergy = getFloat("ENERGY_SIM_STARTING_ENERGY", cfg.Sim.StartingEnergy)
	if origins := os.Getenv("ENERGY_SIM_ALLOWED_ORIGINS"); origins != "" {
		cfg.Sim.AllowedOrigins = splitList(origins)
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
