package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()
		if config.Database.Path != "./musemix.db" {
			t.Errorf("expected database path ./musemix.db, got %s", config.Database.Path)
		}
		if config.Server.Port != 3000 {
			t.Errorf("expected server port 3000, got %d", config.Server.Port)
		}
		if config.Backend.URL != "http://127.0.0.1:8000" {
			t.Errorf("expected backend URL http://127.0.0.1:8000, got %s", config.Backend.URL)
		}
		if config.Mix.SeedCap != 20 || config.Mix.MinViable != 5 || config.Mix.SearchLimit != 5 {
			t.Errorf("unexpected mix defaults: %+v", config.Mix)
		}
		if !config.Mix.AbortOnTransportFailure {
			t.Error("expected abort_on_transport_failure to default to true")
		}
		if config.Sync.ClearAttempts != 3 {
			t.Errorf("expected 3 clear attempts, got %d", config.Sync.ClearAttempts)
		}
		if config.Sync.RetryDelay != 200*time.Millisecond {
			t.Errorf("expected retry delay 200ms, got %v", config.Sync.RetryDelay)
		}
		if config.Sync.PlaylistSuffix != "-fingerprint" {
			t.Errorf("expected playlist suffix -fingerprint, got %s", config.Sync.PlaylistSuffix)
		}
		if err := config.Validate(); err != nil {
			t.Errorf("default config should validate: %v", err)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		if config.Database.Path != DefaultConfig().Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[backend]
url = "http://audiomuse:8000"
timeout = "5s"

[media_server]
url = "http://jellyfin:8096"
api_key = "secret"

[mix]
fill_to_limit = true
abort_on_transport_failure = false

[sync]
retry_delay = "1s"

[server]
port = 8080
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Backend.URL != "http://audiomuse:8000" {
			t.Errorf("expected backend URL http://audiomuse:8000, got %s", config.Backend.URL)
		}
		if config.Backend.Timeout != 5*time.Second {
			t.Errorf("expected backend timeout 5s, got %v", config.Backend.Timeout)
		}
		if config.MediaServer.APIKey != "secret" {
			t.Errorf("expected api key secret, got %s", config.MediaServer.APIKey)
		}
		if !config.Mix.FillToLimit || config.Mix.AbortOnTransportFailure {
			t.Errorf("mix flags not applied: %+v", config.Mix)
		}
		if config.Sync.RetryDelay != time.Second {
			t.Errorf("expected retry delay 1s, got %v", config.Sync.RetryDelay)
		}
		if config.Server.Port != 8080 {
			t.Errorf("expected server port 8080, got %d", config.Server.Port)
		}
		if config.Mix.SeedCap != 20 {
			t.Errorf("unset values should keep defaults, seed cap = %d", config.Mix.SeedCap)
		}
	})

	t.Run("Validate", func(t *testing.T) {
		tests := []struct {
			name   string
			mutate func(*Config)
		}{
			{name: "relative backend url", mutate: func(c *Config) { c.Backend.URL = "audiomuse" }},
			{name: "empty media server url", mutate: func(c *Config) { c.MediaServer.URL = "" }},
			{name: "zero seed cap", mutate: func(c *Config) { c.Mix.SeedCap = 0 }},
			{name: "zero clear attempts", mutate: func(c *Config) { c.Sync.ClearAttempts = 0 }},
			{name: "negative retry delay", mutate: func(c *Config) { c.Sync.RetryDelay = -time.Second }},
			{name: "negative analysis interval", mutate: func(c *Config) { c.Backend.AnalysisInterval = -time.Minute }},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				config := DefaultConfig()
				tt.mutate(config)
				if err := config.Validate(); !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig, got %v", err)
				}
			})
		}
	})
}
