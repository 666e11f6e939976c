// Package config loads service configuration: YAML file, .env, then
// process environment, in increasing precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	Stream    StreamConfig    `yaml:"stream"`
	Tripwire  TripwireConfig  `yaml:"tripwire"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	// Separate logical databases, one per concern.
	UserDB     int `yaml:"user_db"`
	StreamDB   int `yaml:"stream_db"`
	TripwireDB int `yaml:"tripwire_db"`
}

type StreamConfig struct {
	Key       string `yaml:"key"`
	Group     string `yaml:"group"`
	Consumer  string `yaml:"consumer"`
	BatchSize int64  `yaml:"batch_size"`
	BlockMs   int    `yaml:"block_ms"`
}

type TripwireConfig struct {
	WindowSeconds int     `yaml:"window_seconds"`
	Threshold     float64 `yaml:"threshold"`
}

type LifecycleConfig struct {
	// Flush wipes the stream, user and tripwire databases around the
	// consumer lifecycle. Development and test convenience; disable in
	// production.
	Flush bool `yaml:"flush"`
}

// Default returns the development configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "8000"},
		Redis: RedisConfig{
			Host:       "localhost",
			Port:       6379,
			UserDB:     0,
			StreamDB:   1,
			TripwireDB: 2,
		},
		Stream: StreamConfig{
			Key:       "event_stream",
			Group:     "group1",
			Consumer:  "consumer1",
			BatchSize: 10,
			BlockMs:   1000,
		},
		Tripwire: TripwireConfig{
			WindowSeconds: 300,
			Threshold:     0.05,
		},
		Lifecycle: LifecycleConfig{Flush: true},
	}
}

// Load reads the YAML file at path (skipped when path is empty) over the
// defaults, then applies environment overrides. A .env file is honored when
// present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config %q: %w", path, err)
		}
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		cfg.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT %q: %w", v, err)
		}
		cfg.Redis.Port = p
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("CONSUMER_NAME"); v != "" {
		cfg.Stream.Consumer = v
	}

	return cfg, nil
}

// Addr returns the Redis host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Block returns the consumer read block as a duration.
func (s StreamConfig) Block() time.Duration {
	return time.Duration(s.BlockMs) * time.Millisecond
}

// Window returns the tripwire window as a duration.
func (t TripwireConfig) Window() time.Duration {
	return time.Duration(t.WindowSeconds) * time.Second
}
