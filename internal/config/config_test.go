package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load default config: %v", err)
	}

	// Check defaults
	if cfg.Server.Port != 7687 {
		t.Errorf("Expected default port 7687, got %d", cfg.Server.Port)
	}

	if !cfg.Query.CostPlanner {
		t.Errorf("Expected cost_planner to default to true")
	}

	if cfg.Query.PlanCacheTTLSec != 60 {
		t.Errorf("Expected default plan cache TTL 60, got %d", cfg.Query.PlanCacheTTLSec)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Expected default log level 'info', got %s", cfg.Log.Level)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		shouldError bool
	}{
		{
			name:        "valid config",
			modify:      func(c *Config) {},
			shouldError: false,
		},
		{
			name: "invalid port",
			modify: func(c *Config) {
				c.Server.Port = 0
			},
			shouldError: true,
		},
		{
			name: "invalid max connections",
			modify: func(c *Config) {
				c.Server.MaxConnections = 0
			},
			shouldError: true,
		},
		{
			name: "plan cache enabled with zero ttl",
			modify: func(c *Config) {
				c.Query.PlanCache = true
				c.Query.PlanCacheTTLSec = 0
			},
			shouldError: true,
		},
		{
			name: "plan cache disabled tolerates zero ttl",
			modify: func(c *Config) {
				c.Query.PlanCache = false
				c.Query.PlanCacheTTLSec = 0
			},
			shouldError: false,
		},
		{
			name: "invalid log level",
			modify: func(c *Config) {
				c.Log.Level = "invalid"
			},
			shouldError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, _ := Load("")
			tt.modify(cfg)
			err := cfg.Validate()

			if tt.shouldError && err == nil {
				t.Error("Expected validation error, got nil")
			}
			if !tt.shouldError && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestInitDataDir(t *testing.T) {
	tmpDir := t.TempDir()
	dataDir := filepath.Join(tmpDir, "testdb")

	err := InitDataDir(dataDir)
	if err != nil {
		t.Fatalf("InitDataDir failed: %v", err)
	}

	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		t.Errorf("Expected data directory %s to exist", dataDir)
	}

	markerPath := filepath.Join(dataDir, ".graphd")
	if _, err := os.Stat(markerPath); os.IsNotExist(err) {
		t.Error("Expected marker file .graphd to exist")
	}

	err = ValidateDataDir(dataDir)
	if err != nil {
		t.Errorf("ValidateDataDir failed: %v", err)
	}
}

func TestValidateDataDir_NotExists(t *testing.T) {
	err := ValidateDataDir("/nonexistent/path")
	if err == nil {
		t.Error("Expected error for nonexistent directory")
	}
}

func TestValidateDataDir_NotInitialized(t *testing.T) {
	tmpDir := t.TempDir()
	err := ValidateDataDir(tmpDir)
	if err == nil {
		t.Error("Expected error for uninitialized directory")
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "test.yaml")

	content := `
server:
  port: 9999
  host: 0.0.0.0
query:
  plan_cache_ttl_sec: 120
auth:
  data_dir: /custom/path
log:
  level: debug
`
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("Expected port 9999, got %d", cfg.Server.Port)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Expected host 0.0.0.0, got %s", cfg.Server.Host)
	}

	if cfg.Query.PlanCacheTTLSec != 120 {
		t.Errorf("Expected plan cache TTL 120, got %d", cfg.Query.PlanCacheTTLSec)
	}

	if cfg.Auth.DataDir != "/custom/path" {
		t.Errorf("Expected auth data dir /custom/path, got %s", cfg.Auth.DataDir)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.Log.Level)
	}
}
