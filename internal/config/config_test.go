package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Port:         "8081",
		DataBackend:  "memory",
		VATRate:      "0.10",
		SyncInterval: 30 * time.Second,
		CacheTTL:     time.Minute,
		CacheSize:    10,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		wantErr     bool
		errorString string
	}{
		{
			name:    "valid memory backend config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "valid rest backend config",
			mutate: func(c *Config) {
				c.DataBackend = "rest"
				c.APIBaseURL = "https://api.example.com/v1"
				c.APITimeout = 5 * time.Second
			},
			wantErr: false,
		},
		{
			name:        "invalid port - non-numeric",
			mutate:      func(c *Config) { c.Port = "abc" },
			wantErr:     true,
			errorString: "invalid port 'abc': must be a number",
		},
		{
			name:        "invalid port - out of range high",
			mutate:      func(c *Config) { c.Port = "70000" },
			wantErr:     true,
			errorString: "invalid port 70000: must be between 1 and 65535",
		},
		{
			name:        "invalid data backend",
			mutate:      func(c *Config) { c.DataBackend = "sheets" },
			wantErr:     true,
			errorString: "invalid data backend 'sheets': must be one of [memory sqlite rest]",
		},
		{
			name: "sqlite backend missing database path",
			mutate: func(c *Config) {
				c.DataBackend = "sqlite"
				c.SQLiteDBPath = ""
			},
			wantErr:     true,
			errorString: "SQLite database path cannot be empty when using sqlite backend",
		},
		{
			name:        "rest backend missing URL",
			mutate: func(c *Config) {
				c.DataBackend = "rest"
				c.APITimeout = time.Second
			},
			wantErr:     true,
			errorString: "API base URL is required when using rest backend",
		},
		{
			name: "rest backend relative URL",
			mutate: func(c *Config) {
				c.DataBackend = "rest"
				c.APIBaseURL = "/api"
				c.APITimeout = time.Second
			},
			wantErr:     true,
			errorString: "invalid API base URL '/api'",
		},
		{
			name:        "invalid AMQP URL scheme",
			mutate: func(c *Config) {
				c.AMQPURL = "http://localhost:5672/"
				c.AMQPExchange = "x"
			},
			wantErr:     true,
			errorString: "invalid AMQP URL scheme 'http': must be 'amqp' or 'amqps'",
		},
		{
			name:        "AMQP URL without exchange",
			mutate:      func(c *Config) { c.AMQPURL = "amqp://localhost:5672/" },
			wantErr:     true,
			errorString: "AMQP exchange name cannot be empty when AMQP URL is provided",
		},
		{
			name:        "VAT rate not a number",
			mutate:      func(c *Config) { c.VATRate = "dieci" },
			wantErr:     true,
			errorString: "invalid VAT rate 'dieci'",
		},
		{
			name:        "VAT rate out of range",
			mutate:      func(c *Config) { c.VATRate = "150%" },
			wantErr:     true,
			errorString: "must be between 0 and 1",
		},
		{
			name:        "sync interval too short",
			mutate:      func(c *Config) { c.SyncInterval = 500 * time.Millisecond },
			wantErr:     true,
			errorString: "invalid sync interval 500ms: must be at least 1 second",
		},
		{
			name:        "cache size zero",
			mutate:      func(c *Config) { c.CacheSize = 0 },
			wantErr:     true,
			errorString: "invalid cache size 0: must be at least 1",
		},
		{
			name: "spreadsheet without sheet name",
			mutate: func(c *Config) {
				c.GoogleSpreadsheetID = "abc"
				c.GoogleSheetName = ""
			},
			wantErr:     true,
			errorString: "Google Sheet name is required when a spreadsheet ID is set",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error but got nil")
				}
				if tt.errorString != "" && !strings.Contains(err.Error(), tt.errorString) {
					t.Errorf("expected error to contain %q, got %q", tt.errorString, err.Error())
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Port = "x"
	cfg.CacheSize = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "invalid port") || !strings.Contains(err.Error(), "invalid cache size") {
		t.Fatalf("expected both problems reported, got %q", err.Error())
	}
}

func TestConfig_ValidateCreatesSQLiteDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "db")
	cfg := validConfig()
	cfg.DataBackend = "sqlite"
	cfg.SQLiteDBPath = filepath.Join(dir, "bilancio.db")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("expected directory to be created: %v", err)
	}
}

func TestConfig_ValidateMissingCredentialsFile(t *testing.T) {
	cfg := validConfig()
	cfg.GoogleSpreadsheetID = "abc"
	cfg.GoogleSheetName = "Bilancio"
	cfg.GoogleCredentialsFile = filepath.Join(t.TempDir(), "missing.json")
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "Google credentials file does not exist") {
		t.Fatalf("expected missing credentials error, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		for _, key := range []string{"PORT", "DATA_BACKEND", "VAT_RATE", "SYNC_INTERVAL", "CACHE_SIZE", "AMQP_URL"} {
			t.Setenv(key, "")
		}
		cfg := Load()
		if cfg.Port != "8081" || cfg.DataBackend != "memory" || cfg.VATRate != "0.10" {
			t.Fatalf("unexpected defaults: %+v", cfg)
		}
		if cfg.SyncInterval != 5*time.Minute || cfg.CacheSize != 64 || cfg.AMQPURL != "" {
			t.Fatalf("unexpected defaults: %+v", cfg)
		}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("defaults should validate: %v", err)
		}
		if cfg.Rate().String() != "0.1" {
			t.Fatalf("unexpected rate: %s", cfg.Rate())
		}
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("PORT", "9090")
		t.Setenv("DATA_BACKEND", "rest")
		t.Setenv("API_BASE_URL", "http://localhost:3000")
		t.Setenv("VAT_RATE", "22%")
		t.Setenv("SYNC_INTERVAL", "45s")
		t.Setenv("CACHE_SIZE", "5")
		cfg := Load()
		if cfg.Port != "9090" || cfg.DataBackend != "rest" || cfg.APIBaseURL != "http://localhost:3000" {
			t.Fatalf("overrides not applied: %+v", cfg)
		}
		if cfg.SyncInterval != 45*time.Second || cfg.CacheSize != 5 {
			t.Fatalf("overrides not applied: %+v", cfg)
		}
		if cfg.Rate().String() != "0.22" {
			t.Fatalf("unexpected rate: %s", cfg.Rate())
		}
	})

	t.Run("invalid numbers fall back", func(t *testing.T) {
		t.Setenv("CACHE_SIZE", "invalid")
		t.Setenv("SYNC_INTERVAL", "invalid")
		cfg := Load()
		if cfg.CacheSize != 64 || cfg.SyncInterval != 5*time.Minute {
			t.Fatalf("expected defaults for invalid values: %+v", cfg)
		}
	})
}
