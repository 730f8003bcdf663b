package shared

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	API      APIConfig      `toml:"api"`
	Upload   UploadConfig   `toml:"upload"`
	Polling  PollingConfig  `toml:"polling"`
	Sessions SessionsConfig `toml:"sessions"`
	Playback PlaybackConfig `toml:"playback"`
	Export   ExportConfig   `toml:"export"`
}

// APIConfig contains separation backend connection settings.
type APIConfig struct {
	BaseURL  string `toml:"base_url"`
	TokenEnv string `toml:"token_env"`
}

// UploadConfig contains upload transport settings.
type UploadConfig struct {
	ChunkThresholdBytes int64   `toml:"chunk_threshold_bytes"`
	ChunkSizeBytes      int64   `toml:"chunk_size_bytes"`
	MaxFileBytes        int64   `toml:"max_file_bytes"`
	RateLimit           float64 `toml:"rate_limit"`
}

// PollingConfig contains task status polling settings.
type PollingConfig struct {
	IntervalSeconds int `toml:"interval_seconds"`
	TimeoutMinutes  int `toml:"timeout_minutes"`
	MissTolerance   int `toml:"miss_tolerance"`
}

// SessionsConfig contains persisted session store settings. Session
// lifetimes are fixed per job kind and are not configurable.
type SessionsConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// PlaybackConfig contains playback synchronization settings.
type PlaybackConfig struct {
	TickHz              int     `toml:"tick_hz"`
	DriftEpsilonSeconds float64 `toml:"drift_epsilon_seconds"`
}

// ExportConfig contains default export encoding settings.
type ExportConfig struct {
	DefaultFormat string `toml:"default_format"`
	SampleRate    int    `toml:"sample_rate"`
	BitDepth      int    `toml:"bit_depth"`
	Channels      int    `toml:"channels"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
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
	// Check if file already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	// Write the embedded example config to the file
	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
