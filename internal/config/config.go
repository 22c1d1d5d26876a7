package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Env     string        `mapstructure:"env"`
	Engine  string        `mapstructure:"engine"`
	Port    int           `mapstructure:"port"`
	Origin  string        `mapstructure:"origin"`
	WS      WSConfig      `mapstructure:"ws"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Log     LogConfig     `mapstructure:"log"`
}

type WSConfig struct {
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`
}

type CatalogConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Provider string        `mapstructure:"provider"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// RedisConfig enables the shared catalog cache when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

const (
	EngineHertz = "hertz"
	EngineEcho  = "echo"
)

// Load reads config/config.<CONFIG_ENV>.yaml when present, then applies
// defaults and environment overrides.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return load(env, fmt.Sprintf("config/config.%s.yaml", env))
}

func load(env, fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)

	v.SetDefault("env", env)
	v.SetDefault("engine", EngineHertz)
	v.SetDefault("port", 8080)
	v.SetDefault("origin", "*")
	v.SetDefault("ws.read_limit", 1<<20)
	v.SetDefault("ws.ping_period", "54s")
	v.SetDefault("ws.pong_wait", "60s")
	v.SetDefault("ws.write_wait", "10s")
	v.SetDefault("ws.send_buffer", 64)
	v.SetDefault("catalog.base_url", "http://localhost:3000")
	v.SetDefault("catalog.provider", "animepahe")
	v.SetDefault("catalog.timeout", "15s")
	v.SetDefault("catalog.cache_ttl", "10m")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("log.level", "info")

	_ = v.BindEnv("engine", "ENGINE")
	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("origin", "ORIGIN")
	_ = v.BindEnv("catalog.base_url", "CATALOG_URL")
	_ = v.BindEnv("catalog.provider", "CATALOG_PROVIDER")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("log.level", "LOG_LEVEL")

	if err := v.ReadInConfig(); err != nil {
		log.Info().Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Engine != EngineHertz && c.Engine != EngineEcho {
		return fmt.Errorf("unknown engine %q", c.Engine)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.WS.PingPeriod >= c.WS.PongWait {
		return errors.New("ws.ping_period must be shorter than ws.pong_wait")
	}
	if c.WS.SendBuffer <= 0 {
		return errors.New("ws.send_buffer must be positive")
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
