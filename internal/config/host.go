// Package config holds the relay host configuration consumed by the
// inclusion engine and the node configuration loaded from YAML.
package config

import (
	"errors"
	"fmt"
	"sync"

	"ShardRelay/internal/primitives"
)

// HostConfiguration are the chain parameters the runtime modules read.
type HostConfiguration struct {
	ParathreadCores            uint32           `yaml:"parathread_cores"`             // ParathreadCores is the number of shared parathread cores
	ValidationUpgradeFrequency primitives.Round `yaml:"validation_upgrade_frequency"` // ValidationUpgradeFrequency is the minimum distance between code upgrades
	ValidationUpgradeDelay     primitives.Round `yaml:"validation_upgrade_delay"`     // ValidationUpgradeDelay is the wait before a scheduled upgrade applies
	MaxCodeSize                uint32           `yaml:"max_code_size"`                // MaxCodeSize bounds validation code
	MaxHeadDataSize            uint32           `yaml:"max_head_data_size"`           // MaxHeadDataSize bounds head data
	MaxPoVSize                 uint32           `yaml:"max_pov_size"`                 // MaxPoVSize bounds proof-of-validity blocks
	ChainAvailabilityPeriod    primitives.Round `yaml:"chain_availability_period"`    // ChainAvailabilityPeriod is the parachain availability timeout, 0 disables
	ThreadAvailabilityPeriod   primitives.Round `yaml:"thread_availability_period"`   // ThreadAvailabilityPeriod is the parathread availability timeout, 0 disables
	GroupRotationFrequency     primitives.Round `yaml:"group_rotation_frequency"`     // GroupRotationFrequency is how often groups move to the next core, 0 disables
}

// Default returns the development host configuration.
func Default() HostConfiguration {
	return HostConfiguration{
		ParathreadCores:            0,
		ValidationUpgradeFrequency: 10,
		ValidationUpgradeDelay:     5,
		MaxCodeSize:                1 << 20,
		MaxHeadDataSize:            1 << 15,
		MaxPoVSize:                 5 << 20,
		ChainAvailabilityPeriod:    10,
		ThreadAvailabilityPeriod:   10,
		GroupRotationFrequency:     10,
	}
}

// Validate checks the configuration for values the runtime cannot operate with.
func (c HostConfiguration) Validate() error {
	var errs []error

	if c.ValidationUpgradeDelay == 0 {
		errs = append(errs, fmt.Errorf("validation_upgrade_delay must be positive"))
	}

	if c.MaxCodeSize == 0 {
		errs = append(errs, fmt.Errorf("max_code_size must be positive"))
	}

	if c.MaxHeadDataSize == 0 {
		errs = append(errs, fmt.Errorf("max_head_data_size must be positive"))
	}

	if c.MaxPoVSize == 0 {
		errs = append(errs, fmt.Errorf("max_pov_size must be positive"))
	}

	return errors.Join(errs...)
}

// Manager holds the active host configuration and an optional pending one
// that takes effect at the next session boundary.
type Manager struct {
	mu      sync.RWMutex
	active  HostConfiguration
	pending *HostConfiguration
}

// NewManager creates a manager with the given active configuration.
func NewManager(active HostConfiguration) *Manager {
	return &Manager{active: active}
}

// Config returns the active configuration.
func (m *Manager) Config() HostConfiguration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.active
}

// SetPending stages a configuration for the next session.
func (m *Manager) SetPending(cfg HostConfiguration) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid host configuration:\n%w", err)
	}

	m.mu.Lock()
	m.pending = &cfg
	m.mu.Unlock()

	return nil
}

// Rotate applies the pending configuration, if any, and returns the
// previous and new active configurations.
func (m *Manager) Rotate() (prev, next HostConfiguration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev = m.active
	if m.pending != nil {
		m.active = *m.pending
		m.pending = nil
	}

	return prev, m.active
}
