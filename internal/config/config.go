package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"fidoochat/internal/domain"
)

const (
	EnvPrefix = "FIDOO_"

	// BackendURLEnv is the one required variable. It is kept flat so the
	// deployment only needs a single setting.
	BackendURLEnv = "FIDOO_BACKEND_WEB"

	DefaultFile = "config.yaml"
)

const (
	TransportRedis    = "redis"
	TransportPostgres = "postgres"
	TransportPoll     = "poll"
	TransportKafka    = "kafka"
)

type Config struct {
	Backend BackendConfig `koanf:"backend"`
	Auth    AuthConfig    `koanf:"auth"`
	Feed    FeedConfig    `koanf:"feed"`
	Server  ServerConfig  `koanf:"server"`
	Log     LogConfig     `koanf:"log"`
}

type BackendConfig struct {
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
}

type AuthConfig struct {
	APIKey        string        `koanf:"api_key"`
	Endpoint      string        `koanf:"endpoint"`
	TokenEndpoint string        `koanf:"token_endpoint"`
	Timeout       time.Duration `koanf:"timeout"`
	// SessionFile keeps the refresh token between runs. Empty keeps the
	// session in memory only.
	SessionFile string `koanf:"session_file"`
}

type FeedConfig struct {
	Transport  string         `koanf:"transport"`
	Collection string         `koanf:"collection"`
	Redis      RedisConfig    `koanf:"redis"`
	Postgres   PostgresConfig `koanf:"postgres"`
	Poll       PollConfig     `koanf:"poll"`
	Kafka      KafkaConfig    `koanf:"kafka"`
}

type RedisConfig struct {
	Addr    string `koanf:"addr"`
	Channel string `koanf:"channel"`
}

type PostgresConfig struct {
	DSN     string `koanf:"dsn"`
	Channel string `koanf:"channel"`
}

// KafkaConfig names the topic that announces collection changes. The
// messages themselves are read from Postgres.
type KafkaConfig struct {
	Brokers []string `koanf:"brokers"`
	GroupID string   `koanf:"group_id"`
	Topic   string   `koanf:"topic"`
}

type PollConfig struct {
	URL      string        `koanf:"url"`
	Interval time.Duration `koanf:"interval"`
}

// ServerConfig is the web front end's listen address. The process holds a
// single session, so anything beyond loopback shares it.
type ServerConfig struct {
	Port string `koanf:"port"`
}

// Loopback reports whether Port only accepts local connections.
func (s ServerConfig) Loopback() bool {
	host, _, err := net.SplitHostPort(s.Port)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

type LogConfig struct {
	Level       string `koanf:"level"`
	Development bool   `koanf:"development"`
}

// Load reads DefaultFile from the working directory.
func Load() (*Config, error) {
	return LoadFile(DefaultFile)
}

// LoadFile layers, lowest first: path (if present), a .env file (if
// present) and FIDOO_ environment variables. Nested keys use a double
// underscore: FIDOO_FEED__TRANSPORT=redis.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// listKeys are split on commas when they come from the environment.
var listKeys = map[string]bool{
	"feed.kafka.brokers": true,
}

func envValue(key, value string) (string, any) {
	key = envKey(key)
	if listKeys[key] {
		return key, strings.Split(value, ",")
	}
	return key, value
}

func envKey(s string) string {
	if s == BackendURLEnv {
		return "backend.base_url"
	}
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func (c *Config) applyDefaults() {
	c.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(c.Backend.BaseURL), "/")
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = 15 * time.Second
	}
	if c.Auth.Endpoint == "" {
		c.Auth.Endpoint = "https://identitytoolkit.googleapis.com"
	}
	if c.Auth.TokenEndpoint == "" {
		c.Auth.TokenEndpoint = "https://securetoken.googleapis.com"
	}
	if c.Auth.Timeout == 0 {
		c.Auth.Timeout = 10 * time.Second
	}
	if c.Feed.Transport == "" {
		c.Feed.Transport = TransportRedis
	}
	if c.Feed.Collection == "" {
		c.Feed.Collection = "messages"
	}
	if c.Feed.Redis.Addr == "" {
		c.Feed.Redis.Addr = "localhost:6379"
	}
	if c.Feed.Redis.Channel == "" {
		c.Feed.Redis.Channel = c.Feed.Collection + ":changes"
	}
	if c.Feed.Postgres.Channel == "" {
		c.Feed.Postgres.Channel = c.Feed.Collection + "_changes"
	}
	if c.Feed.Kafka.Topic == "" {
		c.Feed.Kafka.Topic = c.Feed.Collection + ".changes"
	}
	if c.Feed.Poll.Interval == 0 {
		c.Feed.Poll.Interval = 5 * time.Second
	}
	if c.Server.Port == "" {
		c.Server.Port = "127.0.0.1:8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate reports a missing backend URL as domain.ErrConfigurationMissing
// so callers fail before any network call.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("%w: set %s or backend.base_url", domain.ErrConfigurationMissing, BackendURLEnv)
	}

	switch c.Feed.Transport {
	case TransportRedis:
	case TransportPostgres:
		if c.Feed.Postgres.DSN == "" {
			return errors.New("feed.postgres.dsn is required for the postgres transport")
		}
	case TransportKafka:
		if len(c.Feed.Kafka.Brokers) == 0 {
			return errors.New("feed.kafka.brokers is required for the kafka transport")
		}
		if c.Feed.Postgres.DSN == "" {
			return errors.New("feed.postgres.dsn is required for the kafka transport")
		}
	case TransportPoll:
		if c.Feed.Poll.URL == "" {
			return errors.New("feed.poll.url is required for the poll transport")
		}
	default:
		return fmt.Errorf("unknown feed transport %q", c.Feed.Transport)
	}

	return nil
}
