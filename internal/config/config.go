// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	RepositoryPostgres = "postgres"
	RepositoryInMemory = "inmemory"

	FeedMemory   = "memory"
	FeedRedis    = "redis"
	FeedPostgres = "postgres"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
	Repository RepositoryConfig `yaml:"repository"`
	Auth       AuthConfig       `yaml:"auth"`
	Realtime   RealtimeConfig   `yaml:"realtime"`
	Worker     WorkerConfig     `yaml:"worker"`
}

type ServerConfig struct {
	Port      string `yaml:"port"`
	Host      string `yaml:"host"`
	RateLimit int    `yaml:"rate_limit"`
}

type DatabaseConfig struct {
	URL            string        `yaml:"url"`
	MaxConnections int32         `yaml:"max_connections"`
	MinConnections int32         `yaml:"min_connections"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	Migrate        bool          `yaml:"migrate"`
}

type LoggingConfig struct {
	Development bool `yaml:"development"`
	Verbose     bool `yaml:"verbose"`
}

type RepositoryConfig struct {
	Type string `yaml:"type"` // "postgres" или "inmemory"
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
	// базовый адрес фронтенда: CORS, проверка Origin у websocket, OAuth redirect
	SiteURL string `yaml:"site_url"`
}

type RealtimeConfig struct {
	Feed              string        `yaml:"feed"` // "memory", "redis" или "postgres"
	RedisAddr         string        `yaml:"redis_addr"`
	RedisPassword     string        `yaml:"redis_password"`
	RedisDB           int           `yaml:"redis_db"`
	StatusPoll        time.Duration `yaml:"status_poll"`
	AnalyticsDebounce time.Duration `yaml:"analytics_debounce"`
}

type WorkerConfig struct {
	RolloverInterval time.Duration `yaml:"rollover_interval"`
	Timezone         string        `yaml:"timezone"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      "8080",
			RateLimit: 100,
		},
		Database: DatabaseConfig{
			MaxConnections: 10,
			MinConnections: 2,
			IdleTimeout:    5 * time.Minute,
			Migrate:        true,
		},
		Repository: RepositoryConfig{Type: RepositoryInMemory},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Realtime: RealtimeConfig{
			Feed:              FeedMemory,
			StatusPoll:        5 * time.Second,
			AnalyticsDebounce: time.Second,
		},
		Worker: WorkerConfig{
			RolloverInterval: time.Minute,
			Timezone:         "UTC",
		},
	}
}

// Load читает config.yml (если он есть), затем .env и переменные окружения
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	file, err := os.Open(path)
	switch {
	case err == nil:
		defer file.Close()
		decoder := yaml.NewDecoder(file)
		if err := decoder.Decode(cfg); err != nil {
			return nil, fmt.Errorf("ошибка парсинга %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("не могу открыть %s: %w", path, err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("APP_PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("SITE_URL"); v != "" {
		cfg.Auth.SiteURL = v
	}
	if v := os.Getenv("REPOSITORY_TYPE"); v != "" {
		cfg.Repository.Type = v
	}
	if v := os.Getenv("FEED_TYPE"); v != "" {
		cfg.Realtime.Feed = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Realtime.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Realtime.RedisPassword = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Realtime.RedisDB = n
		}
	}
	if v := os.Getenv("ENABLE_LOGGING"); v != "" {
		cfg.Logging.Verbose = v == "true"
	}
	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.Logging.Development = v == "development"
	}
}

func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET не задан")
	}

	switch c.Repository.Type {
	case RepositoryInMemory:
	case RepositoryPostgres:
		if c.Database.URL == "" {
			return errors.New("DATABASE_URL не задан для postgres репозитория")
		}
	default:
		return fmt.Errorf("неизвестный тип репозитория: %q", c.Repository.Type)
	}

	switch c.Realtime.Feed {
	case FeedMemory:
	case FeedRedis:
		if c.Realtime.RedisAddr == "" {
			return errors.New("REDIS_ADDR не задан для redis фида")
		}
	case FeedPostgres:
		if c.Repository.Type != RepositoryPostgres {
			return errors.New("postgres фид работает только с postgres репозиторием")
		}
	default:
		return fmt.Errorf("неизвестный тип фида: %q", c.Realtime.Feed)
	}

	if _, err := time.LoadLocation(c.Worker.Timezone); err != nil {
		return fmt.Errorf("неверная таймзона %q: %w", c.Worker.Timezone, err)
	}
	return nil
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Worker.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}
