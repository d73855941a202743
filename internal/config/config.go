// Package config handles configuration loading and validation for graphd
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the graphd server.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Query  QueryConfig  `mapstructure:"query"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Log    LogConfig    `mapstructure:"log"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            int    `mapstructure:"port"`
	Host            string `mapstructure:"host"`
	MaxConnections  int    `mapstructure:"max_connections"`
	ReadTimeoutSec  int    `mapstructure:"read_timeout_sec"`
	WriteTimeoutSec int    `mapstructure:"write_timeout_sec"`
}

// QueryConfig controls the gql interpreter's planner and plan cache. It
// mirrors interpret.Config field for field so Load's result can be handed
// straight to interpret.New.
type QueryConfig struct {
	CostPlanner     bool `mapstructure:"cost_planner"`
	PlanCache       bool `mapstructure:"plan_cache"`
	PlanCacheTTLSec int  `mapstructure:"plan_cache_ttl_sec"`
}

// AuthConfig points at the on-disk user catalog. DataDir holds users.json
// and nothing else; the graph store itself keeps no on-disk state.
type AuthConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Default configuration values
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            7687,
			Host:            "localhost",
			MaxConnections:  100,
			ReadTimeoutSec:  30,
			WriteTimeoutSec: 30,
		},
		Query: QueryConfig{
			CostPlanner:     true,
			PlanCache:       true,
			PlanCacheTTLSec: 60,
		},
		Auth: AuthConfig{
			DataDir: "./data",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	cfg := defaultConfig()
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.max_connections", cfg.Server.MaxConnections)
	v.SetDefault("server.read_timeout_sec", cfg.Server.ReadTimeoutSec)
	v.SetDefault("server.write_timeout_sec", cfg.Server.WriteTimeoutSec)
	v.SetDefault("query.cost_planner", cfg.Query.CostPlanner)
	v.SetDefault("query.plan_cache", cfg.Query.PlanCache)
	v.SetDefault("query.plan_cache_ttl_sec", cfg.Query.PlanCacheTTLSec)
	v.SetDefault("auth.data_dir", cfg.Auth.DataDir)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.output", cfg.Log.Output)

	// Environment variable support
	v.SetEnvPrefix("GRAPHD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file if specified
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		// Search for config in common locations
		v.SetConfigName("graphd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.graphd")
		v.AddConfigPath("/etc/graphd")

		// It's okay if no config file is found - we use defaults
		_ = v.ReadInConfig()
	}

	// Unmarshal into struct
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that configuration values are sensible
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Server.MaxConnections < 1 {
		return fmt.Errorf("max_connections must be at least 1")
	}

	if c.Query.PlanCache && c.Query.PlanCacheTTLSec < 1 {
		return fmt.Errorf("plan_cache_ttl_sec must be at least 1 when plan_cache is enabled")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	return nil
}

// ValidateDataDir checks if the auth data directory exists and is valid
func ValidateDataDir(dir string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return fmt.Errorf("data directory does not exist: %s", dir)
	}
	if err != nil {
		return fmt.Errorf("cannot access data directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data path is not a directory: %s", dir)
	}

	// Check for marker file that indicates initialized data dir
	markerPath := filepath.Join(dir, ".graphd")
	if _, err := os.Stat(markerPath); os.IsNotExist(err) {
		return fmt.Errorf("directory is not a graphd data directory: %s", dir)
	}

	return nil
}

// InitDataDir creates and initializes a new auth data directory. The graph
// store keeps everything in memory, so the only thing that lives on disk
// here is pkg/auth's user catalog.
func InitDataDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	markerPath := filepath.Join(dir, ".graphd")
	markerContent := []byte("graphd data directory v1\n")
	if err := os.WriteFile(markerPath, markerContent, 0644); err != nil {
		return fmt.Errorf("failed to create marker file: %w", err)
	}

	return nil
}

// CreateDefaultConfig writes a default configuration file
func CreateDefaultConfig(path string, dataDir string) error {
	content := fmt.Sprintf(`# graphd configuration file

server:
  host: localhost
  port: 7687
  max_connections: 100
  read_timeout_sec: 30
  write_timeout_sec: 30

query:
  cost_planner: true         # use cardinality estimates to order MATCH clauses
  plan_cache: true           # cache compiled query plans by query text
  plan_cache_ttl_sec: 60

auth:
  data_dir: %s

log:
  level: info            # debug, info, warn, error
  format: text           # text or json
  output: stderr         # stderr, stdout, or file path
`, dataDir)

	return os.WriteFile(path, []byte(content), 0644)
}
