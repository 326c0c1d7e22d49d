package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Server    ServerConfig    `toml:"server"`
	Platform  PlatformConfig  `toml:"platform"`
	Backend   BackendConfig   `toml:"backend"`
	Batch     BatchConfig     `toml:"batch"`
	Polling   PollingConfig   `toml:"polling"`
	Sync      SyncConfig      `toml:"sync"`
	Whitelist WhitelistConfig `toml:"whitelist"`
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

// PlatformConfig describes the publishing platform being automated.
type PlatformConfig struct {
	BaseURL         string `toml:"base_url"`
	UserAgent       string `toml:"user_agent"`
	RequestTimeoutS int    `toml:"request_timeout_s"`
}

// BackendConfig points at an optional remote account store.
// An empty URL keeps accounts in the local database only.
type BackendConfig struct {
	URL   string `toml:"url"`
	Token string `toml:"token"`
}

// BatchConfig holds the default pause between batch items, per operation.
type BatchConfig struct {
	DeleteDelayMS  int `toml:"delete_delay_ms"`
	SyncDelayMS    int `toml:"sync_delay_ms"`
	PublishDelayMS int `toml:"publish_delay_ms"`
	CheckDelayMS   int `toml:"check_delay_ms"`
	PausePollMS    int `toml:"pause_poll_ms"`
}

// PollingConfig bounds the copyright-check and QR-confirmation loops.
type PollingConfig struct {
	CopyrightAttempts   int `toml:"copyright_attempts"`
	CopyrightIntervalMS int `toml:"copyright_interval_ms"`
	QRCodeTimeoutS      int `toml:"qrcode_timeout_s"`
	QRCodeIntervalMS    int `toml:"qrcode_interval_ms"`
}

// SyncConfig controls credential sync after browsing sessions.
type SyncConfig struct {
	DebounceMS int    `toml:"debounce_ms"`
	Domain     string `toml:"domain"`
}

// WhitelistConfig lists hosts the transport may contact.
type WhitelistConfig struct {
	Domains []string `toml:"domains"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
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

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv loads a .env file when one exists and overrides config values from MPSYNC_* variables.
func (c *Config) ApplyEnv(files ...string) {
	_ = godotenv.Load(files...)

	if v := os.Getenv("MPSYNC_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("MPSYNC_BACKEND_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv("MPSYNC_BACKEND_TOKEN"); v != "" {
		c.Backend.Token = v
	}
	if v := os.Getenv("MPSYNC_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

// Millis converts a millisecond count from the config into a [time.Duration].
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
