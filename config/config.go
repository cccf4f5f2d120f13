package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// NetworkConfig holds network-level configuration for HTTP clients
type NetworkConfig struct {
	DelayEnabled bool `json:"delay_enabled"`
	MinDelayMs   int  `json:"min_delay_ms"` // Minimum delay in milliseconds
	MaxDelayMs   int  `json:"max_delay_ms"` // Maximum delay in milliseconds
}

// Config holds all configurable parameters for a node (manager or shard)
type Config struct {
	// ListenAddr is the host:port this node serves on, e.g. ":9000"
	ListenAddr string `json:"listen_addr"`
	// SelfURL is the public base URL of this node, used to identify it
	// to its peers on privileged calls, e.g. "http://shard-1:9000"
	SelfURL string `json:"self_url"`
	// ManagerURL is the trusted manager node (shard nodes only)
	ManagerURL string `json:"manager_url"`
	// UnderlyingToken is the base URL of the wrapped asset service
	UnderlyingToken string `json:"underlying_token"`
	// Owner is the hex address allowed to administer this node
	Owner string `json:"owner"`
	// Fee is the transfer fee as a decimal string (manager node)
	Fee string `json:"fee,omitempty"`
	// SnapshotPath is where node state is saved on controlled restarts
	SnapshotPath string `json:"snapshot_path,omitempty"`

	Network NetworkConfig `json:"network"`
}

// Load reads and parses a JSON config file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// LoadDefault loads the default config from config.json in the current directory
func LoadDefault() (*Config, error) {
	return Load("config/config.json")
}
