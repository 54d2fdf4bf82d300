package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	StaticDir       string        `yaml:"static_dir"` // SPA build output, empty = API only
	Cert            string        `yaml:"cert"`
	Key             string        `yaml:"key"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Username     string `yaml:"user"`
	Password     string `yaml:"password"`
	DBName       string `yaml:"dbname"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type JWTConfig struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
}

type CORSConfig struct {
	AllowOrigins []string `yaml:"allow_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// LedgerConfig tunes the retry loop around borrow/return transactions.
type LedgerConfig struct {
	MaxAttempts      int           `yaml:"max_attempts"`
	BaseDelay        time.Duration `yaml:"base_delay"`
	OperationTimeout time.Duration `yaml:"operation_timeout"`
}

type AdminConfig struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

type Config struct {
	Version        string         `yaml:"version"`
	Mode           string         `yaml:"mode"`
	Server         ServerConfig   `yaml:"server"`
	DB             DatabaseConfig `yaml:"database"`
	JWT            JWTConfig      `yaml:"jwt"`
	CORS           CORSConfig     `yaml:"cors"`
	Log            LogConfig      `yaml:"log"`
	Ledger         LedgerConfig   `yaml:"ledger"`
	BootstrapAdmin AdminConfig    `yaml:"bootstrap_admin"`
}

func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(buf)
}

// Parse decodes YAML, applies environment overrides and defaults, then validates.
func Parse(buf []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	cfg.overrideWithEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) overrideWithEnv() {
	if v := os.Getenv("APP_MODE"); v != "" {
		c.Mode = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Port = n
		}
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		c.DB.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DB.Port = n
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		c.DB.Username = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.DB.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.DB.DBName = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.JWT.Secret = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = "dev"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.DB.Port == 0 {
		c.DB.Port = 3306
	}
	if c.DB.MaxOpenConns == 0 {
		c.DB.MaxOpenConns = 80
	}
	if c.DB.MaxIdleConns == 0 {
		c.DB.MaxIdleConns = 20
	}
	if c.JWT.TTL == 0 {
		c.JWT.TTL = 24 * time.Hour
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Ledger.MaxAttempts == 0 {
		c.Ledger.MaxAttempts = 6
	}
	if c.Ledger.BaseDelay == 0 {
		c.Ledger.BaseDelay = 10 * time.Millisecond
	}
	if c.Ledger.OperationTimeout == 0 {
		c.Ledger.OperationTimeout = 5 * time.Second
	}
}

func (c *Config) Validate() error {
	if c.Mode != "dev" && c.Mode != "release" {
		return fmt.Errorf("mode must be dev or release, got %q", c.Mode)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if (c.Server.Cert == "") != (c.Server.Key == "") {
		return fmt.Errorf("server cert and key must be set together")
	}
	if c.DB.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.DB.Username == "" {
		return fmt.Errorf("database user is required")
	}
	if c.DB.DBName == "" {
		return fmt.Errorf("database name is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}
	if c.Ledger.MaxAttempts < 1 {
		return fmt.Errorf("ledger max_attempts must be positive")
	}
	if c.Ledger.BaseDelay < 0 {
		return fmt.Errorf("ledger base_delay must not be negative")
	}
	if c.BootstrapAdmin.Email != "" && c.BootstrapAdmin.Password == "" {
		return fmt.Errorf("bootstrap_admin password is required when email is set")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) TLSEnabled() bool {
	return c.Server.Cert != "" && c.Server.Key != ""
}
