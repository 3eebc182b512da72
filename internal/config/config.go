package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"ethereumSource/internal/source"
)

const (
	SinkJSONL    = "jsonl"
	SinkRedis    = "redis"
	SinkPostgres = "postgres"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	URI             string
	Filter          string
	FromBlock       string
	ToBlock         string
	PollingInterval int64
	Sink            string
	Out             string
	RedisURL        string
	RedisChannel    string
	RedisBuffer     int64
	PGDSN           string
	LogLevel        string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ETHSOURCE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("filter", source.FilterNewBlock)
	v.SetDefault("from-block", "earliest")
	v.SetDefault("to-block", "latest")
	v.SetDefault("polling-interval", source.DefaultPollingInterval.Milliseconds())
	v.SetDefault("sink", SinkJSONL)
	v.SetDefault("out", "./data/events.jsonl")
	v.SetDefault("redis-channel", "ethereum:events")
	v.SetDefault("redis-buffer", int64(1000))
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	pollingInterval, err := cast.ToInt64E(v.Get("polling-interval"))
	if err != nil {
		return Config{}, fmt.Errorf("%w: malformed polling interval %q", source.ErrInvalidConfig, v.GetString("polling-interval"))
	}

	cfg := Config{
		URI:             strings.TrimSpace(v.GetString("uri")),
		Filter:          strings.TrimSpace(v.GetString("filter")),
		FromBlock:       strings.TrimSpace(v.GetString("from-block")),
		ToBlock:         strings.TrimSpace(v.GetString("to-block")),
		PollingInterval: pollingInterval,
		Sink:            strings.ToLower(strings.TrimSpace(v.GetString("sink"))),
		Out:             v.GetString("out"),
		RedisURL:        v.GetString("redis-url"),
		RedisChannel:    v.GetString("redis-channel"),
		RedisBuffer:     v.GetInt64("redis-buffer"),
		PGDSN:           v.GetString("pg-dsn"),
		LogLevel:        v.GetString("log-level"),
	}

	return cfg, nil
}

// Connector returns the connector part of the configuration. The polling
// interval is given in milliseconds.
func (c Config) Connector() (source.Config, error) {
	if c.PollingInterval <= 0 {
		return source.Config{}, fmt.Errorf("%w: polling interval must be a positive number of milliseconds, got %d", source.ErrInvalidConfig, c.PollingInterval)
	}
	return source.Config{
		URI:             c.URI,
		Filter:          c.Filter,
		FromBlock:       c.FromBlock,
		ToBlock:         c.ToBlock,
		PollingInterval: time.Duration(c.PollingInterval) * time.Millisecond,
	}, nil
}

// Validate checks the filter, the replay range, the polling interval and the
// sink settings. Nothing is dialed.
func (c Config) Validate() error {
	if _, err := source.ParseFilter(c.Filter, c.FromBlock, c.ToBlock); err != nil {
		return err
	}
	if c.PollingInterval <= 0 {
		return fmt.Errorf("%w: polling interval must be a positive number of milliseconds, got %d", source.ErrInvalidConfig, c.PollingInterval)
	}

	switch c.Sink {
	case SinkJSONL:
		if c.Out == "" {
			return fmt.Errorf("%w: out path is required for the jsonl sink", source.ErrInvalidConfig)
		}
	case SinkRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("%w: redis-url is required for the redis sink", source.ErrInvalidConfig)
		}
	case SinkPostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("%w: pg-dsn is required for the postgres sink", source.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: expected '%s' or '%s' or '%s' for sink, but got '%s'", source.ErrInvalidConfig,
			SinkJSONL, SinkRedis, SinkPostgres, c.Sink)
	}
	return nil
}
