// Package config loads server settings: defaults, then an optional YAML
// file, then environment variables. main applies flags last.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr        string `yaml:"addr"`
	DatabaseURL string `yaml:"database_url"`
	JWTSecret   string `yaml:"jwt_secret"`
	LogLevel    string `yaml:"log_level"`
	MDNS        bool   `yaml:"mdns"`
	// OutboxSize bounds the frames queued per session before it is dropped.
	OutboxSize int `yaml:"outbox_size"`
}

func Default() Config {
	return Config{
		Addr:        ":8888",
		DatabaseURL: "memory:",
		LogLevel:    "info",
		OutboxSize:  256,
	}
}

// Load builds the config. An empty path skips the file.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	getenv := func(key, def string) string {
		if v, ok := lookup(key); ok && v != "" {
			return v
		}
		return def
	}
	cfg.Addr = getenv("ADDR", cfg.Addr)
	cfg.DatabaseURL = getenv("DATABASE_URL", cfg.DatabaseURL)
	cfg.JWTSecret = getenv("JWT_SECRET", cfg.JWTSecret)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	if v := getenv("MDNS", ""); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: MDNS: %w", err)
		}
		cfg.MDNS = b
	}
	if v := getenv("OUTBOX_SIZE", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: OUTBOX_SIZE: %w", err)
		}
		cfg.OutboxSize = n
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: addr is empty")
	}
	if c.OutboxSize <= 0 {
		return fmt.Errorf("config: outbox_size must be positive, got %d", c.OutboxSize)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps debug/info/warn/error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("config: log level %q: %w", s, err)
	}
	return l, nil
}

// Port extracts the numeric port from Addr.
func (c Config) Port() (int, error) {
	i := strings.LastIndex(c.Addr, ":")
	if i < 0 {
		return 0, fmt.Errorf("config: addr %q has no port", c.Addr)
	}
	return strconv.Atoi(c.Addr[i+1:])
}
