package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LogConfig controls the bridge's log output
type LogConfig struct {
	Level string `json:"level"`          // "debug", "info", "warn", "error", "none"
	Path  string `json:"path,omitempty"` // empty means stderr
}

// SocketConfig controls the editor-extension socket front
type SocketConfig struct {
	Path           string `json:"path"`
	MaxConnections int    `json:"max_connections"`
	Permissions    string `json:"permissions,omitempty"` // octal, e.g. "0600"
}

// HTTPConfig controls the tool-protocol HTTP front. Port 0 means a free
// loopback port is allocated at start.
type HTTPConfig struct {
	Port          int `json:"port"`
	PortRangeFrom int `json:"port_range_from,omitempty"`
	PortRangeTo   int `json:"port_range_to,omitempty"`
}

// Config is the daemon configuration, stored as JSON
type Config struct {
	Log           LogConfig    `json:"log"`
	Socket        SocketConfig `json:"socket"`
	HTTP          HTTPConfig   `json:"http"`
	DataDir       string       `json:"data_dir"`
	AgentEndpoint string       `json:"agent_endpoint,omitempty"` // loopback URL of the agent server, for model lookups
}

// DefaultConfig returns the configuration used when no config file exists
func DefaultConfig() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Socket: SocketConfig{
			Path:           filepath.Join(dataDir, "bridge.sock"),
			MaxConnections: 10,
		},
		HTTP:    HTTPConfig{},
		DataDir: dataDir,
	}
}

// DefaultPath returns the default config file location
func DefaultPath() string {
	return filepath.Join(defaultDataDir(), "config.json")
}

// Load reads the config file at path, falling back to defaults when the file
// does not exist
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if cfg.Socket.MaxConnections <= 0 {
		cfg.Socket.MaxConnections = 10
	}

	return cfg, nil
}

// Save writes the config as indented JSON, creating parent directories
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func defaultDataDir() string {
	if base, err := os.UserConfigDir(); err == nil {
		return filepath.Join(base, "codehydra")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".codehydra"
	}
	return filepath.Join(home, ".codehydra")
}
