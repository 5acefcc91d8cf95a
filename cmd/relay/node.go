package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"ShardRelay/internal/config"
	"ShardRelay/internal/devnet"
	"ShardRelay/internal/logger"
	"ShardRelay/internal/relay"
	"ShardRelay/internal/storage"
)

// node bundles everything a subcommand needs from an opened data directory.
type node struct {
	cfg      config.NodeConfig
	db       *storage.Storage
	net      *devnet.Network
	chain    *relay.Chain
	registry *prometheus.Registry
}

// loadConfig reads the config file, or the defaults without one, and applies flag overrides.
func loadConfig(f *flags) (config.NodeConfig, error) {
	cfg := config.DefaultNode()

	if f.configPath != "" {
		var err error
		if cfg, err = config.Load(f.configPath); err != nil {
			return cfg, err
		}
	}

	if f.dataDir != "" {
		cfg.DataDir = f.dataDir
	}

	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}

	lvl, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return cfg, err
	}
	logger.SetLevel(lvl)

	return cfg, nil
}

// openNode opens storage and the chain. It does not run genesis.
func openNode(cfg config.NodeConfig) (*node, error) {
	db, err := storage.New(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open storage %s:\n%w", cfg.DataDir, err)
	}

	n, err := openChain(cfg, db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return n, nil
}

func openChain(cfg config.NodeConfig, db *storage.Storage) (*node, error) {
	net, err := devnet.New(cfg.Network, cfg.Validators)
	if err != nil {
		return nil, fmt.Errorf("create devnet:\n%w", err)
	}

	reg := prometheus.NewRegistry()

	chain, err := relay.Open(db, config.NewManager(cfg.Host), net, cfg.SessionLength, relay.WithRegistry(reg))
	if err != nil {
		return nil, fmt.Errorf("open chain:\n%w", err)
	}

	return &node{cfg: cfg, db: db, net: net, chain: chain, registry: reg}, nil
}

// Close closes the underlying storage.
func (n *node) Close() error {
	return n.db.Close()
}
