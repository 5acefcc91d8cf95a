package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"ShardRelay/internal/primitives"
)

// ShardConfig registers a shard at genesis.
type ShardConfig struct {
	ID          primitives.ShardID `yaml:"id"`           // ID is the shard identifier
	Kind        string             `yaml:"kind"`         // Kind is "parachain" or "parathread"
	GenesisHead string             `yaml:"genesis_head"` // GenesisHead is the hex-encoded initial head
	Code        string             `yaml:"code"`         // Code is the hex-encoded initial validation code
}

// NodeConfig is the relay node configuration file.
type NodeConfig struct {
	Network       string            `yaml:"network"`        // Network names the devnet and seeds its keys
	DataDir       string            `yaml:"data_dir"`       // DataDir is the pebble directory
	HTTPAddress   string            `yaml:"http_address"`   // HTTPAddress is the API listen address, empty disables
	LogLevel      string            `yaml:"log_level"`      // LogLevel is debug, info, warn or error
	Validators    int               `yaml:"validators"`     // Validators is the devnet validator count
	SessionLength primitives.Round  `yaml:"session_length"` // SessionLength is the number of rounds per session
	Rounds        int               `yaml:"rounds"`         // Rounds is how many rounds to drive, 0 runs until stopped
	Shards        []ShardConfig     `yaml:"shards"`         // Shards are registered at genesis
	Host          HostConfiguration `yaml:"host"`           // Host is the genesis host configuration
}

// DefaultNode returns a single-parachain devnet configuration.
func DefaultNode() NodeConfig {
	return NodeConfig{
		Network:       "devnet",
		DataDir:       "./data",
		HTTPAddress:   ":8080",
		LogLevel:      "info",
		Validators:    5,
		SessionLength: 20,
		Shards: []ShardConfig{
			{ID: 100, Kind: "parachain"},
		},
		Host: Default(),
	}
}

// Load reads a node configuration file on top of the defaults.
func Load(path string) (NodeConfig, error) {
	cfg := DefaultNode()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s:\n%w", path, err)
	}

	if err := Parse(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s:\n%w", path, err)
	}

	return cfg, nil
}

// Parse decodes YAML into cfg, keeping fields the document omits.
func Parse(data []byte, cfg *NodeConfig) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}

	return cfg.Validate()
}

// Validate checks the node configuration.
func (c NodeConfig) Validate() error {
	var errs []error

	if c.Validators <= 0 {
		errs = append(errs, fmt.Errorf("validators must be positive"))
	}

	if c.SessionLength == 0 {
		errs = append(errs, fmt.Errorf("session_length must be positive"))
	}

	seen := make(map[primitives.ShardID]bool, len(c.Shards))
	for _, s := range c.Shards {
		if seen[s.ID] {
			errs = append(errs, fmt.Errorf("shard %d registered twice", s.ID))
		}
		seen[s.ID] = true

		if s.Kind != "parachain" && s.Kind != "parathread" {
			errs = append(errs, fmt.Errorf("shard %d: unknown kind %q", s.ID, s.Kind))
		}
	}

	if err := c.Host.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
