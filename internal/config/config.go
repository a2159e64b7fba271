// Package config loads application configuration from a YAML file with
// environment-variable overrides. A .env file is honored in development.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the campaign engine.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	SES       SESConfig       `yaml:"ses"`
	Estimator EstimatorConfig `yaml:"estimator"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the change-notification stream broker settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SESConfig holds outbound dispatch settings. When Enabled is false the
// engine uses the logging sender.
type SESConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	FromName  string `yaml:"from_name"`
	FromEmail string `yaml:"from_email"`
}

// EstimatorConfig tunes the interactive estimator.
type EstimatorConfig struct {
	DebounceMS int `yaml:"debounce_ms"`
}

// Debounce returns the configured quiescence window.
func (c EstimatorConfig) Debounce() time.Duration {
	if c.DebounceMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// WorkflowConfig tunes the post-purchase workflow engine.
type WorkflowConfig struct {
	FallbackDelaySeconds int `yaml:"fallback_delay_seconds"`
}

// FallbackDelay is the delay applied to misconfigured wait nodes.
func (c WorkflowConfig) FallbackDelay() time.Duration {
	if c.FallbackDelaySeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.FallbackDelaySeconds) * time.Second
}

// Default returns a configuration suitable for local development.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{MaxOpenConns: 25, MaxIdleConns: 5},
		Redis:    RedisConfig{Addr: "localhost:6379"},
		SES:      SESConfig{Region: "us-east-1", FromName: "Brightwave", FromEmail: "noreply@brightwave.io"},
	}
}

// Load reads the YAML file at path (optional) and applies environment
// overrides. Environment always wins over the file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		c.SES.Region = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		c.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		c.SES.SecretKey = v
	}
	if v := os.Getenv("SES_FROM_EMAIL"); v != "" {
		c.SES.FromEmail = v
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		c.Server.Host = v
	}
}

// Addr returns the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
