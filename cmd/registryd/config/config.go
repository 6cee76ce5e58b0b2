// Package config loads the registryd configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Config holds the registryd configuration.
type Config struct {
	// ListenAddress is the host:port the JSON-RPC websocket listens on.
	ListenAddress string `yaml:"listen_address"`

	// MetricsAddress is the host:port the Prometheus endpoint listens on.
	MetricsAddress string `yaml:"metrics_address"`

	// Owner is the address authorized to mutate the registry. It seeds a
	// fresh registry only; a restored snapshot carries its own owner pair.
	Owner string `yaml:"owner"`

	// Identity is the registry's own address, rejected as a register
	// argument. Optional.
	Identity string `yaml:"identity"`

	// SnapshotPath is the JSON file the registry state persists to.
	SnapshotPath string `yaml:"snapshot_path"`

	// SnapshotInterval is how often the state is persisted, e.g. "30s".
	SnapshotInterval string `yaml:"snapshot_interval"`

	// StreamBufferSize is the per-subscriber update buffer.
	StreamBufferSize uint `yaml:"stream_buffer_size"`
}

// Load reads and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.ListenAddress == "" {
		return errors.New("config: listen_address is required")
	}
	if c.MetricsAddress == "" {
		return errors.New("config: metrics_address is required")
	}
	if c.Owner == "" {
		return errors.New("config: owner is required")
	}
	if !common.IsHexAddress(c.Owner) {
		return fmt.Errorf("config: owner is not a valid address: %s", c.Owner)
	}
	if c.Identity != "" && !common.IsHexAddress(c.Identity) {
		return fmt.Errorf("config: identity is not a valid address: %s", c.Identity)
	}
	if c.SnapshotPath == "" {
		return errors.New("config: snapshot_path is required")
	}
	if _, err := c.SnapshotEvery(); err != nil {
		return fmt.Errorf("config: snapshot_interval: %w", err)
	}
	if c.StreamBufferSize < 1 {
		return errors.New("config: stream_buffer_size must be greater than 0")
	}
	return nil
}

// OwnerAddress returns the parsed owner address.
func (c *Config) OwnerAddress() common.Address {
	return common.HexToAddress(c.Owner)
}

// IdentityAddress returns the parsed identity address, zero when unset.
func (c *Config) IdentityAddress() common.Address {
	if c.Identity == "" {
		return common.Address{}
	}
	return common.HexToAddress(c.Identity)
}

// SnapshotEvery returns the parsed snapshot interval.
func (c *Config) SnapshotEvery() (time.Duration, error) {
	interval, err := time.ParseDuration(c.SnapshotInterval)
	if err != nil {
		return 0, err
	}
	if interval <= 0 {
		return 0, errors.New("must be greater than 0")
	}
	return interval, nil
}
