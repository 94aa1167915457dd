package shared

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Backend     BackendConfig     `toml:"backend"`
	MediaServer MediaServerConfig `toml:"media_server"`
	Mix         MixConfig         `toml:"mix"`
	Sync        SyncConfig        `toml:"sync"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Log         LogConfig         `toml:"log"`
}

// BackendConfig contains the AudioMuse similarity backend connection settings.
type BackendConfig struct {
	URL               string        `toml:"url"`
	Token             string        `toml:"token"`
	Timeout           time.Duration `toml:"timeout"`
	RequestsPerSecond float64       `toml:"requests_per_second"`
	FailureThreshold  uint32        `toml:"failure_threshold"`
	BreakerTimeout    time.Duration `toml:"breaker_timeout"`

	// Schedules for `serve` to start backend jobs; 0 disables.
	AnalysisInterval   time.Duration `toml:"analysis_interval"`
	ClusteringInterval time.Duration `toml:"clustering_interval"`
}

// MediaServerConfig contains the Jellyfin-compatible media server settings.
type MediaServerConfig struct {
	URL     string        `toml:"url"`
	APIKey  string        `toml:"api_key"`
	Timeout time.Duration `toml:"timeout"`
}

// MixConfig holds the instant mix aggregation policy.
type MixConfig struct {
	DefaultLimit            int  `toml:"default_limit"`
	SeedCap                 int  `toml:"seed_cap"`
	MinViable               int  `toml:"min_viable"`
	SearchLimit             int  `toml:"search_limit"`
	FillToLimit             bool `toml:"fill_to_limit"`
	AbortOnTransportFailure bool `toml:"abort_on_transport_failure"`
}

// SyncConfig holds the playlist sync and fingerprint sweep settings.
type SyncConfig struct {
	PlaylistSuffix   string        `toml:"playlist_suffix"`
	ClearAttempts    int           `toml:"clear_attempts"`
	RetryDelay       time.Duration `toml:"retry_delay"`
	FingerprintLimit int           `toml:"fingerprint_limit"`
	Shuffle          bool          `toml:"shuffle"`
	LockPath         string        `toml:"lock_path"`
	Interval         time.Duration `toml:"interval"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LogConfig selects the logger verbosity.
type LogConfig struct {
	Level string `toml:"level"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// Validate checks URLs and numeric bounds.
func (c *Config) Validate() error {
	for name, raw := range map[string]string{"backend.url": c.Backend.URL, "media_server.url": c.MediaServer.URL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: %s must be an absolute URL, got %q", ErrInvalidConfig, name, raw)
		}
	}

	switch {
	case c.Mix.DefaultLimit <= 0:
		return fmt.Errorf("%w: mix.default_limit must be positive", ErrInvalidConfig)
	case c.Mix.SeedCap <= 0:
		return fmt.Errorf("%w: mix.seed_cap must be positive", ErrInvalidConfig)
	case c.Mix.MinViable < 0:
		return fmt.Errorf("%w: mix.min_viable cannot be negative", ErrInvalidConfig)
	case c.Mix.SearchLimit <= 0:
		return fmt.Errorf("%w: mix.search_limit must be positive", ErrInvalidConfig)
	case c.Sync.ClearAttempts <= 0:
		return fmt.Errorf("%w: sync.clear_attempts must be positive", ErrInvalidConfig)
	case c.Sync.RetryDelay < 0:
		return fmt.Errorf("%w: sync.retry_delay cannot be negative", ErrInvalidConfig)
	case c.Backend.RequestsPerSecond < 0:
		return fmt.Errorf("%w: backend.requests_per_second cannot be negative", ErrInvalidConfig)
	case c.Backend.AnalysisInterval < 0 || c.Backend.ClusteringInterval < 0:
		return fmt.Errorf("%w: backend task intervals cannot be negative", ErrInvalidConfig)
	}

	return nil
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: config file already exists at %s", ErrInvalidArgument, path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
